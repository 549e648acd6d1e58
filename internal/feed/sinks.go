package feed

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"github.com/marketwire/quotefeed/internal/store"
	"github.com/marketwire/quotefeed/pkg/models"
)

// StoreSink writes quotes straight to the quote store. The store pipelines
// its own publish, so this is the whole write path in single-binary runs.
type StoreSink struct {
	Store store.QuoteStore
}

func (s StoreSink) Publish(ctx context.Context, q models.Quote) error {
	return s.Store.Put(ctx, q)
}

// KafkaWriter abstracts the kafka producer for testing.
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink writes quotes to a topic, keyed by symbol so every quote for a
// symbol lands on the same partition and per-symbol order survives.
type KafkaSink struct {
	Writer KafkaWriter
}

func (s KafkaSink) Publish(ctx context.Context, q models.Quote) error {
	payload, err := json.Marshal(q)
	if err != nil {
		return err
	}
	return s.Writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(q.Symbol),
		Value: payload,
	})
}
