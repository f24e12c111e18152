package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/Wollie333/vilo-sub009/shared/utils"
)

// Config is the settings shared by every service
type Config struct {
	App           AppConfig          `yaml:"app"`
	Database      DatabaseConfig     `yaml:"database"`
	Redis         RedisConfig        `yaml:"redis"`
	Kafka         KafkaConfig        `yaml:"kafka"`
	Auth          AuthConfig         `yaml:"auth"`
	Sync          SyncConfig         `yaml:"sync"`
	Services      ServicesConfig     `yaml:"services"`
	Notifications NotificationConfig `yaml:"notifications"`
}

type AppConfig struct {
	Environment string `yaml:"environment"`
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Options converts the section into client options
func (r RedisConfig) Options() utils.RedisOptions {
	return utils.RedisOptions{Addr: r.Address, Password: r.Password, DB: r.DB}
}

type KafkaConfig struct {
	Broker string `yaml:"broker"`
}

type AuthConfig struct {
	Region     string `yaml:"region"`
	UserPoolID string `yaml:"user_pool_id"`
	// JWKSURL overrides the Cognito key set location
	JWKSURL string `yaml:"jwks_url"`
	// TenantClaim names the token claim holding the tenant id
	TenantClaim string `yaml:"tenant_claim"`
}

type SyncConfig struct {
	FeedTimeout       time.Duration `yaml:"feed_timeout"`
	LeaseTTL          time.Duration `yaml:"lease_ttl"`
	SchedulerInterval time.Duration `yaml:"scheduler_interval"`
}

type ServicesConfig struct {
	GatewayPort       string `yaml:"gateway_port"`
	AvailabilityPort  string `yaml:"availability_port"`
	ChannelSyncPort   string `yaml:"channel_sync_port"`
	SchedulerPort     string `yaml:"scheduler_port"`
	NotificationsPort string `yaml:"notifications_port"`
	AvailabilityURL   string `yaml:"availability_url"`
	ChannelSyncURL    string `yaml:"channel_sync_url"`
}

type NotificationConfig struct {
	WebhookURL string `yaml:"webhook_url"`
}

// Defaults returns the configuration used when nothing is overridden
func Defaults() *Config {
	return &Config{
		App: AppConfig{Environment: "development", LogLevel: "info", LogFormat: "text"},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     "5432",
			User:     "postgres",
			Password: "password",
			DBName:   "vilo",
			SSLMode:  "disable",
		},
		Redis:       RedisConfig{Address: "localhost:6379"},
		Kafka:       KafkaConfig{},
		Auth:        AuthConfig{Region: "us-east-1", TenantClaim: "custom:tenant_id"},
		Sync:        SyncConfig{FeedTimeout: 30 * time.Second, LeaseTTL: 15 * time.Minute, SchedulerInterval: time.Minute},
		Services: ServicesConfig{
			GatewayPort:       "8080",
			AvailabilityPort:  "8081",
			ChannelSyncPort:   "8082",
			SchedulerPort:     "8083",
			NotificationsPort: "8084",
			AvailabilityURL:   "http://localhost:8081",
			ChannelSyncURL:    "http://localhost:8082",
		},
	}
}

// Load reads .env, then the YAML file named by CONFIG_FILE (if any), then
// environment overrides. Later sources win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logrus.Warn("No .env file found, using environment variables")
	}

	cfg := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	expanded := []byte(os.ExpandEnv(string(data)))
	if err := yaml.Unmarshal(expanded, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.App.Environment = getEnv("APP_ENV", c.App.Environment)
	c.App.LogLevel = getEnv("LOG_LEVEL", c.App.LogLevel)
	c.App.LogFormat = getEnv("LOG_FORMAT", c.App.LogFormat)

	c.Database.Host = getEnv("DB_HOST", c.Database.Host)
	c.Database.Port = getEnv("DB_PORT", c.Database.Port)
	c.Database.User = getEnv("DB_USER", c.Database.User)
	c.Database.Password = getEnv("DB_PASSWORD", c.Database.Password)
	c.Database.DBName = getEnv("DB_NAME", c.Database.DBName)
	c.Database.SSLMode = getEnv("DB_SSL_MODE", c.Database.SSLMode)
	if v := os.Getenv("AUTO_MIGRATE"); v != "" {
		c.Database.AutoMigrate = v == "1" || v == "true"
	}

	if host := os.Getenv("REDIS_HOST"); host != "" {
		c.Redis.Address = host + ":" + getEnv("REDIS_PORT", "6379")
	}
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Kafka.Broker = getEnv("KAFKA_BROKER", c.Kafka.Broker)

	c.Auth.Region = getEnv("AWS_REGION", c.Auth.Region)
	c.Auth.UserPoolID = getEnv("COGNITO_USER_POOL_ID", c.Auth.UserPoolID)
	c.Auth.JWKSURL = getEnv("JWKS_URL", c.Auth.JWKSURL)
	c.Auth.TenantClaim = getEnv("TENANT_CLAIM", c.Auth.TenantClaim)

	var err error
	if c.Sync.FeedTimeout, err = getDuration("FEED_TIMEOUT", c.Sync.FeedTimeout); err != nil {
		return err
	}
	if c.Sync.LeaseTTL, err = getDuration("SYNC_LEASE_TTL", c.Sync.LeaseTTL); err != nil {
		return err
	}
	if c.Sync.SchedulerInterval, err = getDuration("SCHEDULER_INTERVAL", c.Sync.SchedulerInterval); err != nil {
		return err
	}

	c.Services.GatewayPort = getEnv("GATEWAY_PORT", c.Services.GatewayPort)
	c.Services.AvailabilityPort = getEnv("AVAILABILITY_SERVICE_PORT", c.Services.AvailabilityPort)
	c.Services.ChannelSyncPort = getEnv("CHANNEL_SYNC_SERVICE_PORT", c.Services.ChannelSyncPort)
	c.Services.SchedulerPort = getEnv("SYNC_SCHEDULER_PORT", c.Services.SchedulerPort)
	c.Services.NotificationsPort = getEnv("NOTIFICATIONS_SERVICE_PORT", c.Services.NotificationsPort)
	c.Services.AvailabilityURL = getEnv("AVAILABILITY_SERVICE_URL", c.Services.AvailabilityURL)
	c.Services.ChannelSyncURL = getEnv("CHANNEL_SYNC_SERVICE_URL", c.Services.ChannelSyncURL)

	c.Notifications.WebhookURL = getEnv("NOTIFICATION_WEBHOOK_URL", c.Notifications.WebhookURL)
	return nil
}

// JWKSLocation returns the configured key set URL, falling back to the Cognito pool
func (a AuthConfig) JWKSLocation() string {
	if a.JWKSURL != "" {
		return a.JWKSURL
	}
	if a.UserPoolID == "" {
		return ""
	}
	return utils.CognitoJWKSURL(a.Region, a.UserPoolID)
}

// Issuer returns the expected token issuer; empty when no user pool is configured
func (a AuthConfig) Issuer() string {
	if a.UserPoolID == "" {
		return ""
	}
	return utils.CognitoIssuer(a.Region, a.UserPoolID)
}

// NewLogger builds the service logger from LOG_LEVEL / LOG_FORMAT and makes
// the package-level logrus logger match it.
func NewLogger(app AppConfig, service string) *logrus.Entry {
	level, err := logrus.ParseLevel(app.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}

	logger := logrus.New()
	logger.SetLevel(level)
	logrus.SetLevel(level)
	if app.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}
	return logger.WithField("service", service)
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d, nil
	}
	// bare numbers are seconds
	secs, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %s=%q", key, raw)
	}
	return time.Duration(secs) * time.Second, nil
}
