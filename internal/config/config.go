// Package config loads orchestrator configuration, combining a
// structured YAML document (via viper, as the teacher does) with flat
// environment-variable overrides loaded through godotenv for the pieces
// that are naturally per-deployment secrets (DSNs, webhook secret). No
// rate API key is read. Grounded on internal/config/config.go.
package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Database struct {
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	SSLMode  string `mapstructure:"ssl-mode"`
}

type KafkaWriter struct {
	BatchSize      int `mapstructure:"batch-size"`
	BatchTimeoutMs int `mapstructure:"batch-timeout-ms"`
}

type KafkaBroker struct {
	URL string `mapstructure:"url"`
}

type KafkaTopic struct {
	PaymentProcessing string `mapstructure:"payment-processing"`
	WebhookDelivery   string `mapstructure:"webhook-delivery"`
}

type KafkaReader struct {
	GroupID string `mapstructure:"group-id"`
}

type Kafka struct {
	Writer KafkaWriter `mapstructure:"writer"`
	Broker KafkaBroker `mapstructure:"broker"`
	Topic  KafkaTopic  `mapstructure:"topic"`
	Reader KafkaReader `mapstructure:"reader"`
}

// Orchestrator configures the Payment Orchestrator Worker (component H).
type Orchestrator struct {
	Concurrency   int `mapstructure:"concurrency"`
	MaxAttempts   int `mapstructure:"max-attempts"`
	BackoffBaseMs int `mapstructure:"backoff-base-ms"`
}

// Webhook configures the Webhook Delivery Worker (component I).
type Webhook struct {
	Concurrency       int    `mapstructure:"concurrency"`
	MaxAttempts       int    `mapstructure:"max-attempts"`
	BackoffBaseMs     int    `mapstructure:"backoff-base-ms"`
	TimeoutMs         int    `mapstructure:"timeout-ms"`
	SinkURL           string `mapstructure:"sink-url"`
	Enabled           bool   `mapstructure:"enabled"`
}

// JobProducer configures the polling producer that drains the job_queue
// staging table into Kafka (the SUPPLEMENTED job-queue mechanism).
type JobProducer struct {
	PollingIntervalMs  int `mapstructure:"polling-interval-ms"`
	FetchSize          int `mapstructure:"fetch-size"`
	RescheduleDelayMs  int `mapstructure:"reschedule-delay-ms"`
	MaxPublishAttempts int `mapstructure:"max-publish-attempts"`
}

type Server struct {
	Port string `mapstructure:"port"`
}

type Metrics struct {
	URL          string `mapstructure:"url"`
	IntervalMs   int    `mapstructure:"interval-ms"`
	CommonLabels string `mapstructure:"common-labels"`
}

type Logs struct {
	URL string `mapstructure:"url"`
}

// Idempotency configures the idempotency layer (component C).
type Idempotency struct {
	TTLHours int `mapstructure:"ttl-hours"`
}

// Fanout configures the event fan-out endpoints (component K).
type Fanout struct {
	PollIntervalMs int `mapstructure:"poll-interval-ms"`
	QueueSize      int `mapstructure:"queue-size"`
}

type Config struct {
	Database     Database     `mapstructure:"database"`
	Redis        RedisConfig  `mapstructure:"redis"`
	Kafka        Kafka        `mapstructure:"kafka"`
	Orchestrator Orchestrator `mapstructure:"orchestrator"`
	Webhook      Webhook      `mapstructure:"webhook"`
	JobProducer  JobProducer  `mapstructure:"job-producer"`
	Idempotency  Idempotency  `mapstructure:"idempotency"`
	Fanout       Fanout       `mapstructure:"fanout"`
	Server       Server       `mapstructure:"server"`
	Metrics      Metrics      `mapstructure:"metrics"`
	Logs         Logs         `mapstructure:"logs"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func LoadConfig(path string) (*Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func MustLoadConfig(path string) *Config {
	config, err := LoadConfig(path)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	return config
}

// LoadDotEnv loads a local .env file if present; missing files are not an
// error (production deployments inject real environment variables).
func LoadDotEnv() {
	_ = godotenv.Load()
}

// GetRequired returns the named environment variable or terminates the
// process — used for connection secrets that have no sane default.
func GetRequired(name string) string {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		log.Fatalf("missing required environment variable: %s", name)
	}
	return v
}

// GetEnv returns the named environment variable or def if unset.
func GetEnv(name, def string) string {
	if v, ok := os.LookupEnv(name); ok && v != "" {
		return v
	}
	return def
}

// GetInt parses the named environment variable as an int, falling back to
// def on absence or parse failure.
func GetInt(name string, def int) int {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// GetEnvInt is an alias kept for parity with the teacher's naming at
// call sites that predate GetInt.
func GetEnvInt(name string, def int) int {
	return GetInt(name, def)
}

// GetBool parses the named environment variable as a bool, falling back
// to def on absence or parse failure.
func GetBool(name string, def bool) bool {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
