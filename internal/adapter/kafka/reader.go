// Package kafka consumes raw aurora fields from a Kafka topic and publishes
// downsampled ones.
package kafka

import (
	"context"
	"fmt"
	"log/slog"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/aurora-field/internal/adapter/ovation"
	"github.com/couchcryptid/aurora-field/internal/config"
	"github.com/couchcryptid/aurora-field/internal/domain"
)

// maxMessageBytes fits a full OVATION grid.
const maxMessageBytes = 16 << 20

// Reader implements domain.FieldSource over a topic of OVATION documents.
// Each FetchField call blocks until the next decodable message arrives.
type Reader struct {
	reader *kafkago.Reader
	logger *slog.Logger
}

// NewReader creates a consumer-group reader for the configured source topic.
func NewReader(cfg *config.Config, logger *slog.Logger) *Reader {
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     cfg.KafkaBrokers,
		Topic:       cfg.KafkaSourceTopic,
		GroupID:     cfg.KafkaGroupID,
		MinBytes:    1,
		MaxBytes:    maxMessageBytes,
		StartOffset: kafkago.FirstOffset,
	})
	return &Reader{reader: r, logger: logger}
}

// FetchField returns the next raw field on the topic. Undecodable messages
// are logged, committed and skipped.
func (r *Reader) FetchField(ctx context.Context) (domain.FieldSnapshot, error) {
	for {
		msg, err := r.reader.FetchMessage(ctx)
		if err != nil {
			return domain.FieldSnapshot{}, fmt.Errorf("fetch message: %w", err)
		}

		snap, decodeErr := snapshotFromMessage(msg)
		if commitErr := r.reader.CommitMessages(ctx, msg); commitErr != nil {
			r.logger.Warn("commit offset failed", "error", commitErr,
				"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset)
		}
		if decodeErr != nil {
			r.logger.Warn("skipping undecodable field message",
				"error", decodeErr,
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
			)
			continue
		}
		return snap, nil
	}
}

func (r *Reader) Close() error {
	return r.reader.Close()
}

// snapshotFromMessage decodes a message value, falling back to the message
// timestamp when the document carries no observation time.
func snapshotFromMessage(msg kafkago.Message) (domain.FieldSnapshot, error) {
	snap, err := ovation.DecodeBytes(msg.Value)
	if err != nil {
		return domain.FieldSnapshot{}, err
	}
	if snap.ObservedAt.IsZero() && !msg.Time.IsZero() {
		snap.ObservedAt = msg.Time.UTC()
	}
	return snap, nil
}
