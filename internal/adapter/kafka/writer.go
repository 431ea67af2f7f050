package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/aurora-field/internal/adapter/ovation"
	"github.com/couchcryptid/aurora-field/internal/config"
	"github.com/couchcryptid/aurora-field/internal/domain"
	"github.com/couchcryptid/aurora-field/internal/observability"
)

// Message header keys.
const (
	HeaderVersion    = "version"
	HeaderHemisphere = "hemisphere"
	HeaderComputedAt = "computed_at"
	HeaderObservedAt = "observed_at"
)

// HemisphereMessage is the value of one published hemisphere.
type HemisphereMessage struct {
	Version        uint64          `json:"version"`
	Hemisphere     string          `json:"hemisphere"`
	TargetCount    int             `json:"target_count"`
	MinProbability float64         `json:"min_probability"`
	ComputedAt     time.Time       `json:"computed_at"`
	ObservedAt     time.Time       `json:"observed_at,omitempty"`
	ForecastAt     time.Time       `json:"forecast_at,omitempty"`
	Samples        []domain.Sample `json:"samples"`
}

// Writer produces messages to a Kafka topic. It implements
// pipeline.FieldPublisher.
type Writer struct {
	writer  *kafkago.Writer
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewWriter creates a producer for the configured sink topic.
func NewWriter(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *Writer {
	return newWriter(cfg.KafkaBrokers, cfg.KafkaSinkTopic, logger, metrics)
}

// NewSourceWriter creates a producer for the raw-field source topic. It is
// used to seed the topic a kafka-sourced service consumes.
func NewSourceWriter(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *Writer {
	return newWriter(cfg.KafkaBrokers, cfg.KafkaSourceTopic, logger, metrics)
}

func newWriter(brokers []string, topic string, logger *slog.Logger, metrics *observability.Metrics) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
		BatchBytes:   maxMessageBytes,
		Compression:  kafkago.Snappy,
	}
	return &Writer{writer: w, logger: logger, metrics: metrics}
}

// PublishField writes both hemispheres of a published field in a single
// WriteMessages call. Messages are keyed by hemisphere so each hemisphere
// stays ordered on one partition.
func (w *Writer) PublishField(ctx context.Context, field *domain.DownsampledField) error {
	msgs := make([]kafkago.Message, 0, 2)
	for _, h := range []domain.Hemisphere{domain.North, domain.South} {
		msg, err := serializeHemisphere(field, h)
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write field messages: %w", err)
	}
	w.metrics.MessagesProduced.Add(float64(len(msgs)))
	w.logger.Debug("field written to kafka",
		"topic", w.writer.Topic,
		"version", field.Version,
	)
	return nil
}

// PublishSnapshot writes one raw field as an OVATION document.
func (w *Writer) PublishSnapshot(ctx context.Context, snap domain.FieldSnapshot) error {
	value, err := json.Marshal(ovation.NewDocument(snap))
	if err != nil {
		return fmt.Errorf("serialize field snapshot: %w", err)
	}
	msg := kafkago.Message{
		Key:   []byte("ovation"),
		Value: value,
		Time:  snap.ObservedAt,
	}
	if !snap.ObservedAt.IsZero() {
		msg.Headers = []kafkago.Header{
			{Key: HeaderObservedAt, Value: []byte(snap.ObservedAt.UTC().Format(time.RFC3339))},
		}
	}
	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write snapshot message: %w", err)
	}
	w.metrics.MessagesProduced.Inc()
	return nil
}

// Close flushes pending messages and closes the producer.
func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeHemisphere marshals one hemisphere of a field into a message.
func serializeHemisphere(field *domain.DownsampledField, h domain.Hemisphere) (kafkago.Message, error) {
	samples := field.Samples(h)
	if samples == nil {
		samples = []domain.Sample{}
	}
	value := HemisphereMessage{
		Version:        field.Version,
		Hemisphere:     h.String(),
		TargetCount:    field.TargetCount,
		MinProbability: field.MinProbability,
		ComputedAt:     field.ComputedAt,
		ObservedAt:     field.ObservedAt,
		ForecastAt:     field.ForecastAt,
		Samples:        samples,
	}
	data, err := json.Marshal(value)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize %s hemisphere: %w", h, err)
	}
	headers := []kafkago.Header{
		{Key: HeaderVersion, Value: []byte(strconv.FormatUint(field.Version, 10))},
		{Key: HeaderHemisphere, Value: []byte(h.String())},
		{Key: HeaderComputedAt, Value: []byte(field.ComputedAt.UTC().Format(time.RFC3339))},
	}
	if !field.ObservedAt.IsZero() {
		headers = append(headers, kafkago.Header{
			Key:   HeaderObservedAt,
			Value: []byte(field.ObservedAt.UTC().Format(time.RFC3339)),
		})
	}
	return kafkago.Message{
		Key:     []byte(h.String()),
		Value:   data,
		Headers: headers,
	}, nil
}
