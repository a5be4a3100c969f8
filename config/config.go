package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DevMode bool `yaml:"dev_mode"`

	Server struct {
		Address         string        `yaml:"address"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		AllowedOrigins  []string      `yaml:"allowed_origins"`
	} `yaml:"server"`

	Auth struct {
		// JWTSecret is base64 encoded.
		JWTSecret string        `yaml:"jwt_secret"`
		TokenTTL  time.Duration `yaml:"token_ttl"`
	} `yaml:"auth"`

	Store struct {
		Driver         string        `yaml:"driver"`
		DynamoEndpoint string        `yaml:"dynamo_endpoint"`
		DynamoTable    string        `yaml:"dynamo_table"`
		PostgresURL    string        `yaml:"postgres_url"`
		ConnectTimeout time.Duration `yaml:"connect_timeout"`
	} `yaml:"store"`

	Redis struct {
		Address string `yaml:"address"`
	} `yaml:"redis"`

	Queue struct {
		Endpoint  string `yaml:"endpoint"`
		MailQueue string `yaml:"mail_queue"`
	} `yaml:"queue"`

	Mail struct {
		Host          string        `yaml:"host"`
		Port          string        `yaml:"port"`
		Username      string        `yaml:"username"`
		Password      string        `yaml:"password"`
		From          string        `yaml:"from"`
		FromName      string        `yaml:"from_name"`
		FrontendURL   string        `yaml:"frontend_url"`
		ResetTokenTTL time.Duration `yaml:"reset_token_ttl"`
	} `yaml:"mail"`

	Realtime struct {
		DisplacementGrace time.Duration `yaml:"displacement_grace"`
		MessagesPerSecond float64       `yaml:"messages_per_second"`
		Burst             int           `yaml:"burst"`
	} `yaml:"realtime"`

	Admin struct {
		APIKey string `yaml:"api_key"`
	} `yaml:"admin"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

const (
	DriverDynamo   = "dynamo"
	DriverPostgres = "postgres"
)

func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Address = ":8080"
	cfg.Server.ReadTimeout = 15 * time.Second
	cfg.Server.WriteTimeout = 15 * time.Second
	cfg.Server.ShutdownTimeout = 10 * time.Second

	cfg.Auth.TokenTTL = 24 * time.Hour

	cfg.Store.Driver = DriverDynamo
	cfg.Store.DynamoTable = "CollabDocs"
	cfg.Store.ConnectTimeout = 10 * time.Second

	cfg.Redis.Address = "localhost:6379"

	cfg.Queue.MailQueue = "MailQueue"

	cfg.Mail.Port = "587"
	cfg.Mail.FromName = "CollabDocs"
	cfg.Mail.FrontendURL = "http://localhost:3000"
	cfg.Mail.ResetTokenTTL = time.Hour

	cfg.Realtime.DisplacementGrace = 2 * time.Second
	cfg.Realtime.MessagesPerSecond = 20
	cfg.Realtime.Burst = 40

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	return cfg
}

// Load reads .env (if present), then the optional YAML file at path, then
// environment overrides.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("DEV_MODE"); v != "" {
		c.DevMode = v == "true"
	}
	setString(&c.Server.Address, "HOST_ADDRESS")
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		c.Server.AllowedOrigins = splitList(v)
	}

	setString(&c.Auth.JWTSecret, "JWT_SECRET")
	if err := setDuration(&c.Auth.TokenTTL, "TOKEN_TTL"); err != nil {
		return err
	}

	setString(&c.Store.Driver, "STORE_DRIVER")
	setString(&c.Store.DynamoEndpoint, "DYNAMODB_ENDPOINT")
	setString(&c.Store.DynamoTable, "DYNAMODB_TABLE")
	setString(&c.Store.PostgresURL, "DATABASE_URL")
	if err := setDuration(&c.Store.ConnectTimeout, "STORE_CONNECT_TIMEOUT"); err != nil {
		return err
	}

	setString(&c.Redis.Address, "REDIS_ENDPOINT")

	setString(&c.Queue.Endpoint, "SQS_ENDPOINT")
	setString(&c.Queue.MailQueue, "SQS_MAIL_QUEUE")

	setString(&c.Mail.Host, "SMTP_HOST")
	setString(&c.Mail.Port, "SMTP_PORT")
	setString(&c.Mail.Username, "SMTP_USER")
	setString(&c.Mail.Password, "SMTP_PASS")
	setString(&c.Mail.From, "SMTP_FROM")
	setString(&c.Mail.FrontendURL, "FRONTEND_URL")
	if err := setDuration(&c.Mail.ResetTokenTTL, "RESET_TOKEN_TTL"); err != nil {
		return err
	}

	if err := setDuration(&c.Realtime.DisplacementGrace, "DISPLACEMENT_GRACE"); err != nil {
		return err
	}
	if v := os.Getenv("WS_MESSAGES_PER_SECOND"); v != "" {
		rate, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("WS_MESSAGES_PER_SECOND: %w", err)
		}
		c.Realtime.MessagesPerSecond = rate
	}

	setString(&c.Admin.APIKey, "ADMIN_API_KEY")
	setString(&c.Logging.Level, "LOG_LEVEL")
	setString(&c.Logging.Format, "LOG_FORMAT")

	return nil
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be > 0")
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret must not be empty")
	}
	if _, err := c.JWTSecretBytes(); err != nil {
		return err
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be > 0")
	}

	switch c.Store.Driver {
	case DriverDynamo:
		if c.Store.DynamoTable == "" {
			return fmt.Errorf("store.dynamo_table must not be empty")
		}
	case DriverPostgres:
		if c.Store.PostgresURL == "" {
			return fmt.Errorf("store.postgres_url must not be empty when store.driver=postgres")
		}
	default:
		return fmt.Errorf("store.driver must be %q or %q", DriverDynamo, DriverPostgres)
	}
	if c.Store.ConnectTimeout <= 0 {
		return fmt.Errorf("store.connect_timeout must be > 0")
	}

	if c.Redis.Address == "" {
		return fmt.Errorf("redis.address must not be empty")
	}
	if c.Queue.MailQueue == "" {
		return fmt.Errorf("queue.mail_queue must not be empty")
	}
	if c.Mail.ResetTokenTTL <= 0 {
		return fmt.Errorf("mail.reset_token_ttl must be > 0")
	}

	if c.Realtime.DisplacementGrace <= 0 {
		return fmt.Errorf("realtime.displacement_grace must be > 0")
	}
	if c.Realtime.MessagesPerSecond <= 0 || c.Realtime.Burst <= 0 {
		return fmt.Errorf("realtime.messages_per_second and realtime.burst must be > 0")
	}

	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	return nil
}

func (c *Config) JWTSecretBytes() ([]byte, error) {
	secret, err := base64.StdEncoding.DecodeString(c.Auth.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("auth.jwt_secret must be base64: %w", err)
	}
	return secret, nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
