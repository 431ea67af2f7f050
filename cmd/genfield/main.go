// Command genfield writes a synthetic OVATION aurora document for local
// development and load testing. It can also publish the document to the raw
// field topic so the service can run with FIELD_SOURCE=kafka.
//
// Usage:
//
//	go run ./cmd/genfield -kp 5 -seed 42 -out data/mock/ovation_kp5.json
//	go run ./cmd/genfield -kp 7 -kafka
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	kafkaadapter "github.com/couchcryptid/aurora-field/internal/adapter/kafka"
	"github.com/couchcryptid/aurora-field/internal/adapter/ovation"
	"github.com/couchcryptid/aurora-field/internal/config"
	"github.com/couchcryptid/aurora-field/internal/domain"
	"github.com/couchcryptid/aurora-field/internal/observability"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "-", "output path for the OVATION JSON document, - for stdout")
	seed := flag.Uint64("seed", 1, "noise seed")
	kp := flag.Float64("kp", 4, "planetary K index, 0-9")
	observedFlag := flag.String("observed", "", "observation time (RFC3339), default now")
	latLon := flag.Bool("lat-lon", false, "emit [lat, lon, prob] entries instead of [lon, lat, prob]")
	publish := flag.Bool("kafka", false, "publish to KAFKA_SOURCE_TOPIC instead of writing a file")
	flag.Parse()

	observed := time.Now().UTC().Truncate(time.Minute)
	if *observedFlag != "" {
		t, err := time.Parse(time.RFC3339, *observedFlag)
		if err != nil {
			return fmt.Errorf("invalid -observed: %w", err)
		}
		observed = t
	}

	snap := ovation.Synthetic(ovation.SyntheticOptions{
		Seed:       *seed,
		Kp:         *kp,
		ObservedAt: observed,
		LatLon:     *latLon,
	})
	printStats(snap)

	if *publish {
		return publishSnapshot(snap)
	}
	return writeDocument(*out, snap)
}

func writeDocument(path string, snap domain.FieldSnapshot) error {
	var buf bytes.Buffer
	if err := ovation.Encode(&buf, snap); err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	if path == "-" {
		_, err := os.Stdout.Write(buf.Bytes())
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil { //nolint:gosec // fixture file, not secret
		return fmt.Errorf("write %s: %w", path, err)
	}
	log.Printf("wrote %s (%d bytes)", path, buf.Len())
	return nil
}

func publishSnapshot(snap domain.FieldSnapshot) error {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLoggerTo(os.Stderr, cfg.LogLevel, "text")
	metrics := observability.NewMetricsWithRegistry(prometheus.NewRegistry())
	writer := kafkaadapter.NewSourceWriter(cfg, logger, metrics)
	defer writer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := writer.PublishSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("publish snapshot: %w", err)
	}
	logger.Info("published synthetic field",
		slog.String("topic", cfg.KafkaSourceTopic),
		slog.Int("entries", len(snap.Entries)),
	)
	return nil
}

func printStats(snap domain.FieldSnapshot) {
	samples, stats := domain.IngestWithStats(snap.Entries)
	var north, south int
	var peak float64
	for _, s := range samples {
		if s.Lat >= 0 {
			north++
		} else {
			south++
		}
		peak = max(peak, s.Probability)
	}
	log.Printf("entries: %d, nonzero: %d (north %d, south %d), peak %.0f%%, axes %s",
		stats.Total, stats.Kept, north, south, peak, stats.Axes.Order)
}
