package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const defaultConfigPath = "configs/config.yaml"

// Config is the main struct that holds all configuration for the application.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
	RabbitMQ  RabbitMQConfig  `mapstructure:"rabbitmq"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Reminders RemindersConfig `mapstructure:"reminders"`
	Notifiers NotifiersConfig `mapstructure:"notifiers"`
	Alerts    AlertsConfig    `mapstructure:"alerts"`
}

// LoggerConfig holds logging-specific settings.
type LoggerConfig struct {
	Level string `mapstructure:"level"`
	// Format is "console" for human-readable output or "json".
	Format string `mapstructure:"format" validate:"oneof=console json"`
}

// HTTPConfig holds HTTP server-specific settings.
type HTTPConfig struct {
	Port    string `mapstructure:"port" validate:"required"`
	GinMode string `mapstructure:"gin_mode"`
}

// MetricsConfig holds the address of the worker's Prometheus endpoint.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// PostgresConfig holds all settings for the PostgreSQL database connection.
type PostgresConfig struct {
	MasterDSN string     `mapstructure:"master_dsn" validate:"required"`
	Pool      PoolConfig `mapstructure:"pool"`
}

// PoolConfig defines the connection pool settings for the database.
type PoolConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"gte=0"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RabbitMQConfig holds all settings for the RabbitMQ connection.
type RabbitMQConfig struct {
	DSN         string `mapstructure:"dsn" validate:"required"`
	WorkerCount int    `mapstructure:"worker_count" validate:"gte=1"`
}

// RedisConfig holds all settings for the Redis connection.
type RedisConfig struct {
	Addr     string `mapstructure:"addr" validate:"required"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// CacheConfig controls the notification read-through cache.
type CacheConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// SchedulerConfig controls the dispatch sweep.
type SchedulerConfig struct {
	// WorkerID prefixes claim tokens. Defaults to the hostname.
	WorkerID      string        `mapstructure:"worker_id"`
	BatchSize     int           `mapstructure:"batch_size" validate:"gte=1"`
	Concurrency   int           `mapstructure:"concurrency" validate:"gte=1"`
	SweepInterval time.Duration `mapstructure:"sweep_interval" validate:"gt=0"`
	SendTimeout   time.Duration `mapstructure:"send_timeout" validate:"gt=0"`
	// ClaimTTL must outlive SendTimeout, otherwise a slow send can be claimed twice.
	ClaimTTL time.Duration `mapstructure:"claim_ttl" validate:"gtfield=SendTimeout"`
}

// RetryConfig is the backoff policy for transient send failures.
type RetryConfig struct {
	MaxRetries int           `mapstructure:"max_retries" validate:"gte=0"`
	BaseDelay  time.Duration `mapstructure:"base_delay" validate:"gt=0"`
	Multiplier float64       `mapstructure:"multiplier" validate:"gte=1"`
	MaxDelay   time.Duration `mapstructure:"max_delay" validate:"gtefield=BaseDelay"`
}

// RemindersConfig controls which rows a booking produces.
type RemindersConfig struct {
	// Offsets are durations before the appointment at which reminders are sent.
	Offsets        []time.Duration `mapstructure:"offsets"`
	FollowUpAfter  time.Duration   `mapstructure:"follow_up_after"`
	DefaultChannel string          `mapstructure:"default_channel" validate:"oneof=whatsapp email sms"`
}

// NotifiersConfig holds configurations for all notification channels.
type NotifiersConfig struct {
	// Mode can be "development" or "production".
	// Outside "production" every channel is served by the LogSender.
	Mode     string         `mapstructure:"mode"`
	Email    EmailConfig    `mapstructure:"email"`
	SMS      SMSConfig      `mapstructure:"sms"`
	WhatsApp WhatsAppConfig `mapstructure:"whatsapp"`
}

// EmailConfig holds SMTP settings for the email sender.
type EmailConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

// SMSConfig holds Kavenegar settings for the SMS sender.
type SMSConfig struct {
	APIKey string `mapstructure:"api_key"`
	Sender string `mapstructure:"sender"`
}

// WhatsAppConfig holds WhatsApp Cloud API settings.
type WhatsAppConfig struct {
	BaseURL       string `mapstructure:"base_url"`
	PhoneNumberID string `mapstructure:"phone_number_id"`
	AccessToken   string `mapstructure:"access_token"`
}

// AlertsConfig holds operational alert settings.
type AlertsConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig holds settings for the Telegram failure alerter.
type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   int64  `mapstructure:"chat_id"`
}

// NewConfig parses the YAML file and environment variables to return a configuration struct.
// A .env file in the working directory is loaded first when present.
func NewConfig() (*Config, error) {
	_ = godotenv.Load()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = defaultConfigPath
	}
	return Load(path)
}

// Load reads the configuration from path. An empty path skips the file and
// relies on defaults and environment variables only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if cfg.Scheduler.WorkerID == "" {
		host, err := os.Hostname()
		if err != nil || host == "" {
			host = "worker"
		}
		cfg.Scheduler.WorkerID = host
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config: invalid: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("http.port", ":8080")
	v.SetDefault("http.gin_mode", "release")
	v.SetDefault("metrics.addr", ":9090")

	// Keys without a sensible default are still registered so AutomaticEnv can fill them.
	v.SetDefault("postgres.master_dsn", "")
	v.SetDefault("rabbitmq.dsn", "")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("scheduler.worker_id", "")
	for _, key := range []string{
		"notifiers.email.host", "notifiers.email.port", "notifiers.email.username",
		"notifiers.email.password", "notifiers.email.from",
		"notifiers.sms.api_key", "notifiers.sms.sender",
		"notifiers.whatsapp.phone_number_id", "notifiers.whatsapp.access_token",
		"alerts.telegram.bot_token", "alerts.telegram.chat_id",
	} {
		v.SetDefault(key, nil)
	}

	v.SetDefault("postgres.pool.max_open_conns", 10)
	v.SetDefault("postgres.pool.max_idle_conns", 2)
	v.SetDefault("postgres.pool.conn_max_lifetime", time.Hour)
	v.SetDefault("rabbitmq.worker_count", 5)
	v.SetDefault("cache.ttl", 24*time.Hour)

	v.SetDefault("scheduler.batch_size", 100)
	v.SetDefault("scheduler.concurrency", 8)
	v.SetDefault("scheduler.sweep_interval", 30*time.Second)
	v.SetDefault("scheduler.send_timeout", 15*time.Second)
	v.SetDefault("scheduler.claim_ttl", 2*time.Minute)

	v.SetDefault("retry.max_retries", 3)
	v.SetDefault("retry.base_delay", time.Minute)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.max_delay", time.Hour)

	v.SetDefault("reminders.offsets", []time.Duration{24 * time.Hour, 2 * time.Hour})
	v.SetDefault("reminders.follow_up_after", 72*time.Hour)
	v.SetDefault("reminders.default_channel", "whatsapp")

	v.SetDefault("notifiers.mode", "log_only")
	v.SetDefault("notifiers.whatsapp.base_url", "https://graph.facebook.com/v21.0")
}
