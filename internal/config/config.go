package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"

	redisbroker "github.com/hireflowhq/delivery-api/pkg/messaging/redis"
	"github.com/hireflowhq/delivery-api/pkg/worker"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Outbox    OutboxConfig    `mapstructure:"outbox"`
	Webhook   WebhookConfig   `mapstructure:"webhook"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port           int `mapstructure:"port" envconfig:"SERVER_PORT" default:"8080" validate:"min=1,max=65535"`
	TimeoutSeconds int `mapstructure:"timeout_seconds" envconfig:"SERVER_TIMEOUT_SECONDS" default:"30" validate:"min=1"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host" envconfig:"DB_HOST" default:"localhost" validate:"required"`
	Port     int    `mapstructure:"port" envconfig:"DB_PORT" default:"5432" validate:"min=1,max=65535"`
	User     string `mapstructure:"user" envconfig:"DB_USER" validate:"required"`
	Password string `mapstructure:"password" envconfig:"DB_PASSWORD"`
	Name     string `mapstructure:"name" envconfig:"DB_NAME" validate:"required"`
	SSLMode  string `mapstructure:"sslmode" envconfig:"DB_SSLMODE" default:"disable" validate:"oneof=disable require verify-ca verify-full"`
}

type RedisConfig struct {
	URL          string        `mapstructure:"url" envconfig:"REDIS_URL" default:"redis://localhost:6379/0" validate:"required"`
	MaxRetries   int           `mapstructure:"max_retries" envconfig:"REDIS_MAX_RETRIES" default:"3"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff" envconfig:"REDIS_RETRY_BACKOFF" default:"100ms"`
	PoolSize     int           `mapstructure:"pool_size" envconfig:"REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `mapstructure:"min_idle_conns" envconfig:"REDIS_MIN_IDLE_CONNS" default:"2"`
}

type OutboxConfig struct {
	BatchSize       int           `mapstructure:"batch_size" envconfig:"OUTBOX_BATCH_SIZE" default:"100" validate:"min=1"`
	PollInterval    time.Duration `mapstructure:"poll_interval" envconfig:"OUTBOX_POLL_INTERVAL" default:"1s"`
	RetryAttempts   int           `mapstructure:"retry_attempts" envconfig:"OUTBOX_RETRY_ATTEMPTS" default:"3" validate:"min=1"`
	RetryDelay      time.Duration `mapstructure:"retry_delay" envconfig:"OUTBOX_RETRY_DELAY" default:"5s"`
	RetentionDays   int           `mapstructure:"retention_days" envconfig:"OUTBOX_RETENTION_DAYS" default:"7" validate:"min=1"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" envconfig:"OUTBOX_CLEANUP_INTERVAL" default:"1h"`
}

type WebhookConfig struct {
	// SharedSecret, when set, must match the X-Webhook-Token header on
	// ingestion calls. Empty disables the check.
	SharedSecret string `mapstructure:"shared_secret" envconfig:"WEBHOOK_SHARED_SECRET"`
}

type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps" envconfig:"RATE_LIMIT_RPS" default:"50"`
	Burst int     `mapstructure:"burst" envconfig:"RATE_LIMIT_BURST" default:"100"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	Pretty bool   `mapstructure:"pretty" envconfig:"LOG_PRETTY" default:"false"`
}

// LoadConfig reads config.yaml and lets environment variables override
// individual keys (DATABASE_PASSWORD overrides database.password).
// The API server uses this path.
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// LoadFromEnv builds the config from environment variables only. The
// outbox worker runs in containers with no config file mounted.
func LoadFromEnv() (*Config, error) {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// ToBrokerConfig maps the Redis section to the broker's own config type.
func (c RedisConfig) ToBrokerConfig() redisbroker.Config {
	return redisbroker.Config{
		URL:          c.URL,
		MaxRetries:   c.MaxRetries,
		RetryBackoff: c.RetryBackoff,
		PoolSize:     c.PoolSize,
		MinIdleConns: c.MinIdleConns,
	}
}

// ToProcessorConfig maps the outbox section to the worker's config type.
func (c OutboxConfig) ToProcessorConfig() worker.OutboxProcessorConfig {
	return worker.OutboxProcessorConfig{
		BatchSize:     c.BatchSize,
		PollInterval:  c.PollInterval,
		RetryAttempts: c.RetryAttempts,
		RetryDelay:    c.RetryDelay,
	}
}

func setDefaults() {
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.timeout_seconds", 30)
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("redis.url", "redis://localhost:6379/0")
	viper.SetDefault("redis.max_retries", 3)
	viper.SetDefault("redis.retry_backoff", "100ms")
	viper.SetDefault("redis.pool_size", 10)
	viper.SetDefault("redis.min_idle_conns", 2)
	viper.SetDefault("outbox.batch_size", 100)
	viper.SetDefault("outbox.poll_interval", "1s")
	viper.SetDefault("outbox.retry_attempts", 3)
	viper.SetDefault("outbox.retry_delay", "5s")
	viper.SetDefault("outbox.retention_days", 7)
	viper.SetDefault("outbox.cleanup_interval", "1h")
	viper.SetDefault("rate_limit.rps", 50)
	viper.SetDefault("rate_limit.burst", 100)
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.pretty", false)
}
