package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	httpadapter "github.com/couchcryptid/aurora-field/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/aurora-field/internal/adapter/kafka"
	"github.com/couchcryptid/aurora-field/internal/adapter/ovation"
	"github.com/couchcryptid/aurora-field/internal/config"
	"github.com/couchcryptid/aurora-field/internal/domain"
	"github.com/couchcryptid/aurora-field/internal/observability"
	"github.com/couchcryptid/aurora-field/internal/pipeline"
	"github.com/couchcryptid/aurora-field/internal/render"
	"github.com/couchcryptid/aurora-field/internal/scheduler"
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	var closers []func() error

	// Field source: poll the OVATION endpoint or consume raw documents from Kafka.
	var (
		source   domain.FieldSource
		pipeOpts []pipeline.Option
	)
	switch cfg.FieldSource {
	case config.SourceKafka:
		reader := kafkaadapter.NewReader(cfg, logger)
		closers = append(closers, reader.Close)
		source = reader
		logger.Info("consuming raw fields from kafka", "topic", cfg.KafkaSourceTopic, "group_id", cfg.KafkaGroupID)
	default:
		source = ovation.NewClient(cfg.FieldURL, cfg.FetchTimeout, logger, metrics)
		pipeOpts = append(pipeOpts,
			pipeline.WithInterval(cfg.FetchInterval),
			pipeline.WithFetchTimeout(cfg.FetchTimeout),
		)
		logger.Info("polling ovation endpoint", "url", cfg.FieldURL, "interval", cfg.FetchInterval)
	}

	// Field sink (feature-flagged via KAFKA_ENABLED).
	if cfg.KafkaEnabled {
		writer := kafkaadapter.NewWriter(cfg, logger, metrics)
		closers = append(closers, writer.Close)
		pipeOpts = append(pipeOpts, pipeline.WithPublisher(writer))
		logger.Info("kafka publishing enabled", "topic", cfg.KafkaSinkTopic)
	} else {
		logger.Info("kafka publishing disabled")
	}

	sched := scheduler.New(cfg.TargetCount, cfg.MinProbability, logger, metrics)
	p := pipeline.New(source, sched, logger, metrics, pipeOpts...)

	serverOpts := []httpadapter.Option{httpadapter.WithRenderCacheSize(cfg.RenderCacheSize)}
	if cfg.BasemapPath != "" {
		basemap, err := loadBasemap(cfg.BasemapPath)
		if err != nil {
			logger.Error("failed to load basemap", "error", err, "path", cfg.BasemapPath)
			os.Exit(1)
		}
		logger.Info("basemap loaded", "path", cfg.BasemapPath, "polygons", basemap.Len())
		serverOpts = append(serverOpts, httpadapter.WithBasemap(basemap))
	}
	srv := httpadapter.NewServer(cfg.HTTPAddr, p, sched, logger, metrics, serverOpts...)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start the recompute worker and the fetch pipeline.
	go func() {
		if err := sched.Run(ctx); err != nil {
			logger.Error("scheduler error", "error", err)
		}
	}()
	go func() {
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Error("kafka client close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}

func loadBasemap(path string) (*render.Basemap, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return render.LoadBasemap(f)
}
