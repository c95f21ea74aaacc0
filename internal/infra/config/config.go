package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config aggregates service configuration loaded from environment variables.
type Config struct {
	Env                string
	HTTPAddr           string
	MongoURI           string
	MongoDB            string
	KafkaBrokers       []string
	KafkaTopicPrefix   string
	RequestsTopic      string
	UpdatesTopic       string
	ConsumerGroup      string
	ConsumerMaxRetries int
	PublishTimeout     time.Duration
	OutboxPollInterval time.Duration
	RetryBackoff       []time.Duration
	IdempotencyTTL     time.Duration
	SweepInterval      time.Duration
	PropertyFixtures   string
}

// Load parses configuration from the current environment. Mongo and Kafka
// endpoints are mandatory; mains fall back to in-memory wiring when Load
// fails.
func Load(service string) (Config, error) {
	cfg := Config{
		Env:              getEnv("APP_ENV", "dev"),
		HTTPAddr:         getEnv("HTTP_ADDR", ":8080"),
		MongoURI:         os.Getenv("MONGO_URI"),
		MongoDB:          getEnv("MONGO_DB", "staybook"),
		KafkaTopicPrefix: getEnv("KAFKA_TOPIC_PREFIX", ""),
		RequestsTopic:    getEnv("BOOKING_REQUESTS_TOPIC", "booking-requests"),
		UpdatesTopic:     getEnv("BOOKING_UPDATES_TOPIC", "booking-updates"),
		ConsumerGroup:    getEnv("CONSUMER_GROUP", service),
		PropertyFixtures: getEnv("PROPERTY_FIXTURES", ""),
	}
	brokers := getEnv("KAFKA_BROKERS", "")
	if brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}

	maxRetries, err := parseIntEnv("CONSUMER_MAX_RETRIES", 5)
	if err != nil {
		return Config{}, err
	}
	cfg.ConsumerMaxRetries = maxRetries

	publishTimeout, err := parseDurationEnv("PUBLISH_TIMEOUT", 10*time.Second)
	if err != nil {
		return Config{}, err
	}
	cfg.PublishTimeout = publishTimeout

	poll, err := parseDurationEnv("OUTBOX_POLL_INTERVAL", 500*time.Millisecond)
	if err != nil {
		return Config{}, err
	}
	cfg.OutboxPollInterval = poll

	idempotencyTTL, err := parseDurationEnv("IDEMP_TTL", 168*time.Hour)
	if err != nil {
		return Config{}, err
	}
	cfg.IdempotencyTTL = idempotencyTTL

	sweep, err := parseDurationEnv("SWEEP_INTERVAL", time.Minute)
	if err != nil {
		return Config{}, err
	}
	cfg.SweepInterval = sweep

	retryStr := getEnv("RETRY_BACKOFF", "1s,5s,30s")
	for _, raw := range strings.Split(retryStr, ",") {
		val := strings.TrimSpace(raw)
		if val == "" {
			continue
		}
		d, err := time.ParseDuration(val)
		if err != nil {
			return Config{}, fmt.Errorf("invalid RETRY_BACKOFF component %q: %w", raw, err)
		}
		cfg.RetryBackoff = append(cfg.RetryBackoff, d)
	}

	if cfg.MongoURI == "" {
		return Config{}, fmt.Errorf("MONGO_URI is required")
	}
	if len(cfg.KafkaBrokers) == 0 {
		return Config{}, fmt.Errorf("KAFKA_BROKERS is required")
	}
	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseDurationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration: %w", key, err)
	}
	return d, nil
}

func parseIntEnv(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s integer: %w", key, err)
	}
	return n, nil
}
