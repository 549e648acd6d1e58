package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	App     AppConfig     `mapstructure:"app"`
	Store   StoreConfig   `mapstructure:"store"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Kafka   KafkaConfig   `mapstructure:"kafka"`
	Feed    FeedConfig    `mapstructure:"feed"`
	Gateway GatewayConfig `mapstructure:"gateway"`
	Ingest  IngestConfig  `mapstructure:"ingest"`
	Audit   AuditConfig   `mapstructure:"audit"`
}

type AppConfig struct {
	Port string `mapstructure:"port"`
	Env  string `mapstructure:"env"` // e.g., "local", "prod"
}

// StoreConfig selects the quote store backend.
type StoreConfig struct {
	Backend string `mapstructure:"backend"` // "redis" or "memory"
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

type FeedConfig struct {
	Symbols  []string      `mapstructure:"symbols"`
	Interval time.Duration `mapstructure:"interval"`
	TTL      time.Duration `mapstructure:"ttl"`
	PriceMin float64       `mapstructure:"price_min"`
	PriceMax float64       `mapstructure:"price_max"`
}

type GatewayConfig struct {
	SubscriberBuffer int `mapstructure:"subscriber_buffer"`
}

type IngestConfig struct {
	NumWorkers int `mapstructure:"num_workers"`
}

type AuditConfig struct {
	Path   string `mapstructure:"path"`
	Buffer int    `mapstructure:"buffer"`
}

// LoadConfig reads configuration from .env file, environment variables, and defaults.
func LoadConfig() (*Config, error) {
	v := viper.New()

	// Load .env into the process environment first so viper sees the keys
	if err := godotenv.Load(); err != nil {
		log.Println("Note: No .env file found, relying on System Env Vars")
	}

	v.SetDefault("app.port", ":8080")
	v.SetDefault("app.env", "local")

	v.SetDefault("store.backend", "redis")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "quotes")
	v.SetDefault("kafka.group_id", "quotefeed-ingest")

	v.SetDefault("feed.symbols", []string{"AAPL", "GOOGL", "TSLA", "MSFT"})
	v.SetDefault("feed.interval", 100*time.Millisecond)
	v.SetDefault("feed.ttl", 1*time.Second)
	v.SetDefault("feed.price_min", 100.0)
	v.SetDefault("feed.price_max", 500.0)

	v.SetDefault("gateway.subscriber_buffer", 256)

	v.SetDefault("ingest.num_workers", 4)

	v.SetDefault("audit.path", "quotefeed_audit.log")
	v.SetDefault("audit.buffer", 1024)

	// Map dot-notation keys to underscore env vars (e.g., "app.port" -> "APP_PORT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicit binds so flat env vars land in the nested struct
	bindEnv(v, "app.port", "app.env")
	bindEnv(v, "store.backend")
	bindEnv(v, "redis.addr", "redis.password", "redis.db")
	bindEnv(v, "kafka.brokers", "kafka.topic", "kafka.group_id")
	bindEnv(v, "feed.symbols", "feed.interval", "feed.ttl", "feed.price_min", "feed.price_max")
	bindEnv(v, "gateway.subscriber_buffer")
	bindEnv(v, "ingest.num_workers")
	bindEnv(v, "audit.path", "audit.buffer")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %v", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Store.Backend != "redis" && c.Store.Backend != "memory" {
		return fmt.Errorf("store backend must be redis or memory, got %q", c.Store.Backend)
	}
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka brokers cannot be empty")
	}
	if len(c.Feed.Symbols) == 0 {
		return fmt.Errorf("feed symbols cannot be empty")
	}
	if c.Feed.Interval <= 0 {
		return fmt.Errorf("feed interval must be positive, got %s", c.Feed.Interval)
	}
	if c.Feed.TTL <= 0 {
		return fmt.Errorf("feed ttl must be positive, got %s", c.Feed.TTL)
	}
	if c.Feed.PriceMin >= c.Feed.PriceMax {
		return fmt.Errorf("feed price range invalid: min %.2f >= max %.2f", c.Feed.PriceMin, c.Feed.PriceMax)
	}
	if c.Gateway.SubscriberBuffer <= 0 {
		return fmt.Errorf("gateway subscriber buffer must be positive, got %d", c.Gateway.SubscriberBuffer)
	}
	if c.Ingest.NumWorkers <= 0 {
		return fmt.Errorf("ingest workers must be positive, got %d", c.Ingest.NumWorkers)
	}
	return nil
}

// bindEnv is a helper to bind multiple keys at once
func bindEnv(v *viper.Viper, keys ...string) {
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			log.Printf("Could not bind env var for key %s: %v", key, err)
		}
	}
}
