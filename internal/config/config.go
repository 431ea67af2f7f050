package config

import (
	"errors"
	"time"
)

// Field sources.
const (
	SourceHTTP  = "http"
	SourceKafka = "kafka"
)

// DefaultFieldURL is the SWPC OVATION nowcast.
const DefaultFieldURL = "https://services.swpc.noaa.gov/json/ovation_aurora_latest.json"

// MaxTargetCount bounds the per-hemisphere budget accepted from config and
// the budget endpoint.
const MaxTargetCount = 50000

// Config holds all service settings, populated from environment variables.
type Config struct {
	FieldSource   string
	FieldURL      string
	FetchInterval time.Duration
	FetchTimeout  time.Duration

	TargetCount    int
	MinProbability float64

	// KafkaEnabled publishes every accepted field to KafkaSinkTopic.
	KafkaEnabled     bool
	KafkaBrokers     []string
	KafkaSourceTopic string
	KafkaSinkTopic   string
	KafkaGroupID     string

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
	RenderCacheSize int

	// BasemapPath is an optional GeoJSON file of land polygons drawn under
	// rendered fields.
	BasemapPath string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := parsePositiveDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	fetchInterval, err := parsePositiveDuration("FETCH_INTERVAL", "5m")
	if err != nil {
		return nil, err
	}
	fetchTimeout, err := parsePositiveDuration("FETCH_TIMEOUT", "15s")
	if err != nil {
		return nil, err
	}
	targetCount, err := parseIntInRange("TARGET_COUNT", 5000, 1, MaxTargetCount)
	if err != nil {
		return nil, err
	}
	minProbability, err := parseFloatInRange("MIN_PROBABILITY", 3.0, 0, 100)
	if err != nil {
		return nil, err
	}
	renderCacheSize, err := parseIntInRange("RENDER_CACHE_SIZE", 64, 1, 10000)
	if err != nil {
		return nil, err
	}
	kafkaEnabled, err := parseBool("KAFKA_ENABLED", false)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		FieldSource:      EnvOrDefault("FIELD_SOURCE", SourceHTTP),
		FieldURL:         EnvOrDefault("FIELD_URL", DefaultFieldURL),
		FetchInterval:    fetchInterval,
		FetchTimeout:     fetchTimeout,
		TargetCount:      targetCount,
		MinProbability:   minProbability,
		KafkaEnabled:     kafkaEnabled,
		KafkaBrokers:     ParseBrokers(EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic: EnvOrDefault("KAFKA_SOURCE_TOPIC", "raw-aurora-field"),
		KafkaSinkTopic:   EnvOrDefault("KAFKA_SINK_TOPIC", "aurora-field"),
		KafkaGroupID:     EnvOrDefault("KAFKA_GROUP_ID", "aurora-field"),
		HTTPAddr:         EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:         EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:        EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:  shutdownTimeout,
		RenderCacheSize:  renderCacheSize,
		BasemapPath:      EnvOrDefault("BASEMAP_PATH", ""),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.FieldSource {
	case SourceHTTP:
		if c.FieldURL == "" {
			return errors.New("FIELD_URL is required when FIELD_SOURCE is http")
		}
	case SourceKafka:
		if c.KafkaSourceTopic == "" {
			return errors.New("KAFKA_SOURCE_TOPIC is required when FIELD_SOURCE is kafka")
		}
	default:
		return errors.New("invalid FIELD_SOURCE: must be http or kafka")
	}

	if c.usesKafka() && len(c.KafkaBrokers) == 0 {
		return errors.New("KAFKA_BROKERS is required")
	}
	if c.KafkaEnabled && c.KafkaSinkTopic == "" {
		return errors.New("KAFKA_SINK_TOPIC is required when KAFKA_ENABLED is true")
	}
	return nil
}

func (c *Config) usesKafka() bool {
	return c.KafkaEnabled || c.FieldSource == SourceKafka
}
