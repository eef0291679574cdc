package kafka

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"
	"unsafe"

	jsoniter "github.com/json-iterator/go"
	"github.com/segmentio/kafka-go"

	"github.com/siqueiraa/RecipeFlow/pkg/avro"
	"github.com/siqueiraa/RecipeFlow/pkg/config"
)

const (
	batchTimeoutMillis = 100 // Batch timeout in milliseconds
	intKeyCapacity     = 12  // Buffer capacity for int keys
	int64KeyCapacity   = 20  // Buffer capacity for int64 keys
	batchTimeoutSecs   = 10  // Batch write timeout in seconds
	decimalBase        = 10  // Base for decimal number conversion
)

var (
	// jsonFast is our high-performance JSON API.
	jsonFast = jsoniter.ConfigFastest
)

// MessageWriter is satisfied by *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Encoder turns a record into a wire payload for a subject.
type Encoder interface {
	Encode(subject string, native map[string]any) ([]byte, error)
}

// Producer wraps a kafka.Writer and optional Avro support.
type Producer struct {
	writer MessageWriter
	codec  Encoder // nil means JSON
	now    func() time.Time
}

// NewProducer creates a Kafka producer from config. With UseAvro the values
// are encoded against the "<topic>-value" subject of the schema registry.
func NewProducer(cfg config.KafkaConfig) (*Producer, *avro.Codec, error) {
	if len(cfg.Brokers) == 0 {
		return nil, nil, fmt.Errorf("no kafka brokers configured")
	}
	w := kafka.NewWriter(kafka.WriterConfig{
		Brokers:      cfg.Brokers,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: batchTimeoutMillis * time.Millisecond,
		// RequiredAcks is an int, so cast the constant.
		RequiredAcks: int(kafka.RequireAll),
	})

	var codec *avro.Codec
	if cfg.UseAvro {
		codec = avro.NewRegistryCodec(cfg.SchemaRegistry)
		return NewProducerWithWriter(w, codec), codec, nil
	}
	return NewProducerWithWriter(w, nil), nil, nil
}

// NewProducerWithWriter builds a producer over an existing writer.
func NewProducerWithWriter(w MessageWriter, codec Encoder) *Producer {
	return &Producer{writer: w, codec: codec, now: time.Now}
}

// Subject is the schema registry subject for values on topic.
func Subject(topic string) string { return topic + "-value" }

func (p *Producer) encode(topic string, value map[string]any) ([]byte, error) {
	if p.codec != nil {
		payload, err := p.codec.Encode(Subject(topic), value)
		if err != nil {
			return nil, fmt.Errorf("avro encode failed: %w", err)
		}
		return payload, nil
	}
	payload, err := jsonFast.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("json marshal failed: %w", err)
	}
	return payload, nil
}

// Publish sends a single message, encoding as Avro or JSON.
func (p *Producer) Publish(ctx context.Context, topic string, key []byte, value map[string]any) error {
	payload, err := p.encode(topic, value)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Topic: topic,
		Key:   key,
		Value: payload,
		Time:  p.now(),
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		log.Printf("[Kafka] publish failed topic=%s: %v", topic, err)
		return err
	}
	return nil
}

// PublishBatch serializes every record and writes them in one batch, keyed
// by keyField. Records that fail to encode are dropped and logged.
func (p *Producer) PublishBatch(ctx context.Context, topic string, records []map[string]any, keyField string) error {
	if len(records) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(records))

	now := p.now()

	for _, rec := range records {
		payload, err := p.encode(topic, rec)
		if err != nil {
			log.Printf("[Kafka] encode failed: %v", err)
			continue
		}

		msgs = append(msgs, kafka.Message{
			Topic: topic,
			Key:   recordKey(rec, keyField),
			Value: payload,
			Time:  now,
		})
	}
	if len(msgs) == 0 {
		return fmt.Errorf("no record of %d could be encoded for topic %s", len(records), topic)
	}

	ctx, cancel := context.WithTimeout(ctx, batchTimeoutSecs*time.Second)
	defer cancel()

	return p.writer.WriteMessages(ctx, msgs...)
}

func recordKey(rec map[string]any, keyField string) []byte {
	raw, ok := rec[keyField]
	if !ok || raw == nil {
		return nil
	}
	switch v := raw.(type) {
	case string:
		// zero-copy string to []byte; the writer never mutates keys
		return unsafe.Slice(unsafe.StringData(v), len(v))
	case []byte:
		return v
	case int:
		return strconv.AppendInt(make([]byte, 0, intKeyCapacity), int64(v), decimalBase)
	case int64:
		return strconv.AppendInt(make([]byte, 0, int64KeyCapacity), v, decimalBase)
	default:
		return fmt.Append(nil, v)
	}
}

// Close shuts down the writer cleanly.
func (p *Producer) Close() error {
	return p.writer.Close()
}
