package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds every runtime parameter; all of it comes from the
// environment with sane defaults for local development.
type Config struct {
	Database struct {
		Host     string `env:"HOST" envDefault:"localhost"`
		Port     int    `env:"PORT" envDefault:"5432"`
		User     string `env:"USER" envDefault:"postgres"`
		Password string `env:"PASSWORD" envDefault:"postgres"`
		Name     string `env:"NAME" envDefault:"delivery"`
	} `envPrefix:"DB_"`

	RabbitMQ struct {
		Host     string `env:"HOST" envDefault:"localhost"`
		Port     int    `env:"PORT" envDefault:"5672"`
		User     string `env:"USER" envDefault:"guest"`
		Password string `env:"PASSWORD" envDefault:"guest"`
	} `envPrefix:"RABBITMQ_"`

	// comma-separated; empty disables the Kafka analytics stream and the
	// reconciliation sweep becomes the only analytics path
	KafkaBrokers string `env:"KAFKA_BROKERS" envDefault:""`
	KafkaTopic   string `env:"KAFKA_TOPIC" envDefault:"order-events"`
	KafkaGroupID string `env:"KAFKA_GROUP_ID" envDefault:"analytics"`

	JWTSecret string `env:"JWT_SECRET" envDefault:""`

	RelayInterval    time.Duration `env:"RELAY_INTERVAL" envDefault:"2s"`
	RelayBatchSize   int           `env:"RELAY_BATCH_SIZE" envDefault:"100"`
	SweepInterval    time.Duration `env:"SWEEP_INTERVAL" envDefault:"60s"`
	SweepBatchSize   int           `env:"SWEEP_BATCH_SIZE" envDefault:"100"`
	FinalizeInterval time.Duration `env:"FINALIZE_INTERVAL" envDefault:"1h"`
	SettlementGrace  time.Duration `env:"SETTLEMENT_GRACE" envDefault:"1h"`
	CleanupInterval  time.Duration `env:"CLEANUP_INTERVAL" envDefault:"24h"`
	RetentionDays    int           `env:"RETENTION_DAYS" envDefault:"30"`
}

// Load reads the config from the environment and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	var problems []string

	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		problems = append(problems, "DB_PORT must be in 1..65535")
	}
	if c.Database.Name == "" {
		problems = append(problems, "DB_NAME is required")
	}
	if c.RabbitMQ.Port <= 0 || c.RabbitMQ.Port > 65535 {
		problems = append(problems, "RABBITMQ_PORT must be in 1..65535")
	}
	if c.RelayBatchSize <= 0 {
		problems = append(problems, "RELAY_BATCH_SIZE must be > 0")
	}
	if c.SweepBatchSize <= 0 {
		problems = append(problems, "SWEEP_BATCH_SIZE must be > 0")
	}
	if c.RetentionDays <= 0 {
		problems = append(problems, "RETENTION_DAYS must be > 0")
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}
