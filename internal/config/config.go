package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	KafkaEnabled       bool
	KafkaBrokers       []string
	KafkaSinkTopic     string
	BatchSize          int
	BatchFlushInterval time.Duration

	DuckDBPath string

	// BlobPath is the badger directory for stored pages and exports.
	// Empty keeps blobs in memory.
	BlobPath      string
	BlobURLTTL    time.Duration
	PublicBaseURL string

	AnalysisInterval time.Duration
	StorePageLimit   int
	StoreConcurrency int
	ExportPageSize   int

	Analysis *Analysis
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	blobTTL, err := parsePositiveDuration("BLOB_URL_TTL", "2h")
	if err != nil {
		return nil, err
	}

	interval, err := parsePositiveDuration("ANALYSIS_INTERVAL", "1h")
	if err != nil {
		return nil, err
	}

	pageLimit, err := parsePositiveInt("STORE_PAGE_LIMIT", 1000, 1000)
	if err != nil {
		return nil, err
	}

	concurrency, err := parsePositiveInt("STORE_CONCURRENCY", 5, 64)
	if err != nil {
		return nil, err
	}

	exportPageSize, err := parsePositiveInt("EXPORT_PAGE_SIZE", 12400, 1_000_000)
	if err != nil {
		return nil, err
	}

	analysis, err := LoadAnalysis(os.Getenv("ANALYSIS_CONFIG_FILE"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		KafkaEnabled:       os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSinkTopic:     sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "station-patterns"),
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,

		DuckDBPath: sharedcfg.EnvOrDefault("DUCKDB_PATH", "data/demand.duckdb"),

		BlobPath:      os.Getenv("BLOB_PATH"),
		BlobURLTTL:    blobTTL,
		PublicBaseURL: sharedcfg.EnvOrDefault("PUBLIC_BASE_URL", "http://localhost:8080"),

		AnalysisInterval: interval,
		StorePageLimit:   pageLimit,
		StoreConcurrency: concurrency,
		ExportPageSize:   exportPageSize,

		Analysis: analysis,
	}

	if cfg.KafkaEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is true")
		}
		if cfg.KafkaSinkTopic == "" {
			return nil, errors.New("KAFKA_SINK_TOPIC is required when KAFKA_ENABLED is true")
		}
	}

	return cfg, nil
}

func parsePositiveDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, fallback))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive duration", key)
	}
	return d, nil
}

func parsePositiveInt(key string, fallback, maxValue int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > maxValue {
		return 0, fmt.Errorf("invalid %s: must be 1-%d", key, maxValue)
	}
	return n, nil
}
