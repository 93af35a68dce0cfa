// Package kafka publishes completion events for saved arrays, so downstream
// consumers can react without polling the output directory. Disabled unless
// KAFKA_ENABLED is set.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/atkinslab/smap-extract/internal/config"
	"github.com/atkinslab/smap-extract/internal/domain"
)

// Notifier produces one message per saved band array.
type Notifier struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewNotifier creates a Kafka producer for the configured topic.
func NewNotifier(cfg *config.Config, logger *slog.Logger) *Notifier {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Notifier{writer: w, logger: logger}
}

// Publish serializes and writes one completion event.
func (n *Notifier) Publish(ctx context.Context, ev domain.ArchiveEvent) error {
	msg, err := serializeToMessage(ev)
	if err != nil {
		return err
	}
	return n.writer.WriteMessages(ctx, msg)
}

func (n *Notifier) Close() error {
	return n.writer.Close()
}

// serializeToMessage marshals an ArchiveEvent into a Kafka message keyed by
// (date, band) so re-runs of the same range compact cleanly.
func serializeToMessage(ev domain.ArchiveEvent) (kafkago.Message, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize archive event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(fmt.Sprintf("%s/%s", ev.Date, ev.Band)),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "band", Value: []byte(ev.Band)},
			{Key: "processed_at", Value: []byte(ev.ProcessedAt.Format(time.RFC3339))},
		},
	}, nil
}
