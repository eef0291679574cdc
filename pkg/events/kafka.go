package events

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/siqueiraa/RecipeFlow/pkg/component"
	"github.com/siqueiraa/RecipeFlow/pkg/kafka"
)

// NotificationSchema is the Avro value schema of published notifications.
const NotificationSchema = `{
  "type": "record",
  "name": "TrainingNotification",
  "namespace": "recipeflow",
  "fields": [
    {"name": "run_id", "type": "string"},
    {"name": "stage", "type": "string"},
    {"name": "epoch", "type": "long"},
    {"name": "epochs", "type": "long"},
    {"name": "time_ms", "type": "long"},
    {"name": "values", "type": {"type": "map", "values": "double"}}
  ]
}`

// Publisher is satisfied by *kafka.Producer.
type Publisher interface {
	Publish(ctx context.Context, topic string, key []byte, value map[string]any) error
	PublishBatch(ctx context.Context, topic string, records []map[string]any, keyField string) error
}

// SchemaRegistrar is satisfied by *avro.Codec.
type SchemaRegistrar interface {
	Register(subject, schemaJSON string) (int, error)
}

// KafkaPublisher sends every notification to a topic keyed by run id. In
// buffered mode records are held per run and written in one batch at training
// end. A training_begin drops whatever an earlier aborted attempt of the same
// run left behind.
type KafkaPublisher struct {
	producer Publisher
	topic    string
	buffered bool

	mu      sync.Mutex
	pending map[string][]map[string]any
}

// NewKafkaPublisher registers the notification schema first when a
// registrar is given.
func NewKafkaPublisher(producer Publisher, topic string, registrar SchemaRegistrar, buffered bool) (*KafkaPublisher, error) {
	if topic == "" {
		return nil, fmt.Errorf("kafka publisher needs a topic")
	}
	if registrar != nil {
		id, err := registrar.Register(kafka.Subject(topic), NotificationSchema)
		if err != nil {
			return nil, fmt.Errorf("registering notification schema: %w", err)
		}
		log.Printf("[Event] Notification schema for %s has ID %d", topic, id)
	}
	return &KafkaPublisher{
		producer: producer,
		topic:    topic,
		buffered: buffered,
		pending:  make(map[string][]map[string]any),
	}, nil
}

func (k *KafkaPublisher) Notify(ctx context.Context, n component.Notification) error {
	rec := record(n)
	if !k.buffered {
		return k.producer.Publish(ctx, k.topic, []byte(n.RunID), rec)
	}

	k.mu.Lock()
	if n.Stage == component.StageTrainingBegin {
		delete(k.pending, n.RunID)
	}
	k.pending[n.RunID] = append(k.pending[n.RunID], rec)
	if n.Stage != component.StageTrainingEnd {
		k.mu.Unlock()
		return nil
	}
	batch := k.pending[n.RunID]
	delete(k.pending, n.RunID)
	k.mu.Unlock()

	if err := k.producer.PublishBatch(ctx, k.topic, batch, "run_id"); err != nil {
		return fmt.Errorf("publishing %d notification(s): %w", len(batch), err)
	}
	return nil
}

func record(n component.Notification) map[string]any {
	values := make(map[string]any, len(n.Values))
	for k, v := range n.Values {
		values[k] = v
	}
	return map[string]any{
		"run_id":  n.RunID,
		"stage":   string(n.Stage),
		"epoch":   int64(n.Epoch),
		"epochs":  int64(n.Epochs),
		"time_ms": n.Time.UnixMilli(),
		"values":  values,
	}
}
