package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/siqueiraa/RecipeFlow/pkg/config"
)

type mockWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (m *mockWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if m.err != nil {
		return m.err
	}
	m.messages = append(m.messages, msgs...)
	return nil
}

func (m *mockWriter) Close() error {
	m.closed = true
	return nil
}

type mockEncoder struct {
	subjects []string
	fail     bool
}

func (m *mockEncoder) Encode(subject string, _ map[string]any) ([]byte, error) {
	if m.fail {
		return nil, errors.New("encode failed")
	}
	m.subjects = append(m.subjects, subject)
	return []byte{0, 0, 0, 0, 1}, nil
}

func TestProducerCreation(t *testing.T) {
	producer, codec, err := NewProducer(config.KafkaConfig{Brokers: []string{"localhost:9092"}})
	if err != nil {
		t.Fatalf("NewProducer failed: %v", err)
	}
	defer producer.Close()
	if codec != nil {
		t.Errorf("Expected no codec without Avro")
	}

	if _, _, err := NewProducer(config.KafkaConfig{}); err == nil {
		t.Errorf("Expected error without brokers")
	}
}

func TestProducerPublishJSON(t *testing.T) {
	w := &mockWriter{}
	producer := NewProducerWithWriter(w, nil)
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	producer.now = func() time.Time { return fixed }

	err := producer.Publish(context.Background(), "events", []byte("run-1"), map[string]any{"epoch": 1})
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	if len(w.messages) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(w.messages))
	}
	msg := w.messages[0]
	if msg.Topic != "events" || string(msg.Key) != "run-1" || !msg.Time.Equal(fixed) {
		t.Errorf("Unexpected message %+v", msg)
	}
	if string(msg.Value) != `{"epoch":1}` {
		t.Errorf("Unexpected payload %s", msg.Value)
	}
}

func TestProducerPublishAvro(t *testing.T) {
	w := &mockWriter{}
	enc := &mockEncoder{}
	producer := NewProducerWithWriter(w, enc)

	if err := producer.Publish(context.Background(), "events", nil, map[string]any{}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if len(enc.subjects) != 1 || enc.subjects[0] != "events-value" {
		t.Errorf("Expected subject events-value, got %v", enc.subjects)
	}

	enc.fail = true
	if err := producer.Publish(context.Background(), "events", nil, map[string]any{}); err == nil {
		t.Errorf("Expected encode error")
	}
}

func TestProducerPublishBatch(t *testing.T) {
	t.Run("ValidBatch", func(t *testing.T) {
		w := &mockWriter{}
		producer := NewProducerWithWriter(w, nil)

		batch := []map[string]any{
			{"metric": "Accuracy", "value": 0.9},
			{"metric": "WallclockTime", "value": 1.5},
			{"metric": 7, "value": 2.0},
		}
		if err := producer.PublishBatch(context.Background(), "results", batch, "metric"); err != nil {
			t.Fatalf("PublishBatch failed: %v", err)
		}
		if len(w.messages) != len(batch) {
			t.Fatalf("Published count mismatch: got %d, want %d", len(w.messages), len(batch))
		}
		if string(w.messages[0].Key) != "Accuracy" || string(w.messages[2].Key) != "7" {
			t.Errorf("Unexpected keys %q %q", w.messages[0].Key, w.messages[2].Key)
		}
	})

	t.Run("EmptyBatch", func(t *testing.T) {
		w := &mockWriter{}
		if err := NewProducerWithWriter(w, nil).PublishBatch(context.Background(), "results", nil, "metric"); err != nil {
			t.Errorf("Empty batch should not error: %v", err)
		}
		if len(w.messages) != 0 {
			t.Errorf("Expected nothing written")
		}
	})

	t.Run("NothingEncodable", func(t *testing.T) {
		producer := NewProducerWithWriter(&mockWriter{}, &mockEncoder{fail: true})
		err := producer.PublishBatch(context.Background(), "results", []map[string]any{{"metric": "a"}}, "metric")
		if err == nil {
			t.Errorf("Expected error when no record encodes")
		}
	})

	t.Run("WriterError", func(t *testing.T) {
		producer := NewProducerWithWriter(&mockWriter{err: errors.New("broker down")}, nil)
		err := producer.PublishBatch(context.Background(), "results", []map[string]any{{"metric": "a"}}, "metric")
		if err == nil {
			t.Errorf("Expected writer error")
		}
	})
}

func TestRecordKey(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  string
	}{
		{"string", "abc", "abc"},
		{"bytes", []byte("xyz"), "xyz"},
		{"int", 42, "42"},
		{"int64", int64(-7), "-7"},
		{"float", 1.5, "1.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := string(recordKey(map[string]any{"k": tt.value}, "k")); got != tt.want {
				t.Errorf("Expected key %q, got %q", tt.want, got)
			}
		})
	}

	if recordKey(map[string]any{}, "k") != nil {
		t.Errorf("Expected nil key for missing field")
	}
}

func TestProducerClose(t *testing.T) {
	w := &mockWriter{}
	if err := NewProducerWithWriter(w, nil).Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !w.closed {
		t.Errorf("Expected writer to be closed")
	}
}
