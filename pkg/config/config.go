package config

import (
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// MustLoad loads the configuration from environment variables and .env file.
func MustLoad[T any](cfg T) {
	_ = godotenv.Load() // Load environment variables from .env file

	env.Must(cfg, env.Parse(cfg))
}

// Load loads the configuration from environment variables and .env file.
func Load[T any](cfg T) error {
	_ = godotenv.Load() // a missing .env file is fine, env vars still apply

	if err := env.Parse(cfg); err != nil {
		return err
	}

	return nil
}

// Config holds the configuration for the exchange process.
type Config struct {
	Symbol string `env:"SYMBOL,required"` // Stock symbol this book trades, e.g. KEQ

	QuoteReader    KafkaConfig `envPrefix:"KAFKA_QUOTE_"` // Incoming quote stream
	TradePublisher KafkaConfig `envPrefix:"KAFKA_TRADE_"` // Outgoing trade stream
	Redis          RedisConfig `envPrefix:"REDIS_"`       // Snapshot store and open-order cache
}

// KafkaConfig holds the configuration for one Kafka topic connection.
type KafkaConfig struct {
	Topic   string   `env:"TOPIC,required"`
	GroupID string   `env:"GROUP_ID" envDefault:"default_group"`
	Brokers []string `env:"BROKER,required"`
}

// RedisConfig holds the configuration for the Redis client.
type RedisConfig struct {
	Addrs    string `env:"ADDRESS,required"` // Comma-separated list of Redis addresses
	Password string `env:"PASSWORD" envDefault:""`
	Username string `env:"USERNAME" envDefault:""`
	DB       int    `env:"DB" envDefault:"0"`
}
