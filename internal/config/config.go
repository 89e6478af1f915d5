// Package config loads the adapter settings from the environment and the
// run file Delft-FEWS writes for every model run.
package config

import (
	"errors"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds the adapter settings, populated from environment variables.
type Config struct {
	LogLevel        string
	LogFormat       string
	MetricsTextfile string

	// Results publishing is disabled when no brokers are set.
	KafkaBrokers         []string
	KafkaResultsTopic    string
	KafkaPublishAttempts int

	DatasetAttributesFile string
	ModelTimeout          time.Duration
}

// PublishEnabled reports whether table summaries go to Kafka after post.
func (c *Config) PublishEnabled() bool { return len(c.KafkaBrokers) > 0 }

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	attempts, err := strconv.Atoi(sharedcfg.EnvOrDefault("KAFKA_PUBLISH_ATTEMPTS", "3"))
	if err != nil || attempts < 1 {
		return nil, errors.New("invalid KAFKA_PUBLISH_ATTEMPTS: must be a positive integer")
	}

	modelTimeout, err := time.ParseDuration(sharedcfg.EnvOrDefault("MODEL_TIMEOUT", "0s"))
	if err != nil || modelTimeout < 0 {
		return nil, errors.New("invalid MODEL_TIMEOUT")
	}

	cfg := &Config{
		LogLevel:              sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:             sharedcfg.EnvOrDefault("LOG_FORMAT", "text"),
		MetricsTextfile:       sharedcfg.EnvOrDefault("METRICS_TEXTFILE", ""),
		KafkaBrokers:          sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "")),
		KafkaResultsTopic:     sharedcfg.EnvOrDefault("KAFKA_RESULTS_TOPIC", "swmm-results"),
		KafkaPublishAttempts:  attempts,
		DatasetAttributesFile: sharedcfg.EnvOrDefault("DATASET_ATTRIBUTES_FILE", ""),
		ModelTimeout:          modelTimeout,
	}
	return cfg, nil
}
