package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	ServiceName string
	ServicePort int
	Database    DatabaseConfig
	RabbitMQ    RabbitMQConfig
	MQTT        MQTTConfig
	Redis       RedisConfig
	Alerting    AlertingConfig
	Retention   RetentionConfig
	Auth        AuthConfig
	Log         LogConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	URL string
}

// RabbitMQConfig holds RabbitMQ connection and exchange settings
type RabbitMQConfig struct {
	URL              string
	DeviceExchange   string
	RegistryQueue    string
	ReconnectBackoff time.Duration
	PrefetchCount    int
}

// MQTTConfig holds the device broker settings
type MQTTConfig struct {
	BrokerURL        string
	ClientID         string
	Username         string
	Password         string
	Topic            string
	ReconnectBackoff time.Duration
	Workers          int
	QueueSize        int
}

// RedisConfig holds the latest-state cache settings
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	LatestTTL time.Duration
}

// AlertingConfig holds threshold alerting settings
type AlertingConfig struct {
	WebhookURL        string
	DevicesServiceURL string
	Cooldown          time.Duration
	SweepInterval     time.Duration
	DispatchTimeout   time.Duration
	LookupTimeout     time.Duration
	ThresholdsFile    string
	Workers           int
	QueueSize         int
}

// RetentionConfig holds telemetry retention settings
type RetentionConfig struct {
	MaxAge        time.Duration
	SweepInterval time.Duration
}

// AuthConfig holds bearer token settings
type AuthConfig struct {
	JWTSecret string
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string
	Format string
}

// Requirement names a setting a process cannot run without.
type Requirement int

const (
	RequireDatabase Requirement = iota
	RequireRabbitMQ
	RequireMQTT
	RequireRedis
	RequireAuth
)

// Load loads configuration from environment variables
func Load() (*Config, error) {
	return load("iot-telemetry-hub", 8080)
}

// LoadService loads configuration for one process, using serviceName and port
// unless SERVICE_NAME or SERVICE_PORT are set, and checks its requirements
func LoadService(serviceName string, port int, reqs ...Requirement) (*Config, error) {
	cfg, err := load(serviceName, port)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(reqs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

func load(serviceName string, port int) (*Config, error) {
	cfg := &Config{
		ServiceName: getEnv("SERVICE_NAME", serviceName),
		ServicePort: getEnvAsInt("SERVICE_PORT", port),
		Database: DatabaseConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		RabbitMQ: RabbitMQConfig{
			URL:              getEnv("RABBITMQ_URL", ""),
			DeviceExchange:   getEnv("RABBITMQ_DEVICE_EXCHANGE", "device-updates"),
			RegistryQueue:    getEnv("RABBITMQ_REGISTRY_QUEUE", "device-registry.latest"),
			ReconnectBackoff: getEnvAsDuration("RABBITMQ_RECONNECT_BACKOFF", 5*time.Second),
			PrefetchCount:    getEnvAsInt("RABBITMQ_PREFETCH", 10),
		},
		MQTT: MQTTConfig{
			BrokerURL:        getEnv("MQTT_BROKER_URL", "tcp://localhost:1883"),
			ClientID:         getEnv("MQTT_CLIENT_ID", "telemetry-service"),
			Username:         getEnv("MQTT_USERNAME", ""),
			Password:         getEnv("MQTT_PASSWORD", ""),
			Topic:            getEnv("MQTT_TOPIC", "devices/+/sensors"),
			ReconnectBackoff: getEnvAsDuration("MQTT_RECONNECT_BACKOFF", 5*time.Second),
			Workers:          getEnvAsInt("MQTT_WORKERS", 8),
			QueueSize:        getEnvAsInt("MQTT_QUEUE_SIZE", 256),
		},
		Redis: RedisConfig{
			Addr:      getEnv("REDIS_ADDR", "localhost:6379"),
			Password:  getEnv("REDIS_PASSWORD", ""),
			DB:        getEnvAsInt("REDIS_DB", 0),
			LatestTTL: getEnvAsDuration("REDIS_LATEST_TTL", 0),
		},
		Alerting: AlertingConfig{
			WebhookURL:        getEnv("ALERT_WEBHOOK_URL", ""),
			DevicesServiceURL: getEnv("DEVICES_SERVICE_URL", "http://localhost:3002"),
			Cooldown:          getEnvAsDuration("ALERT_COOLDOWN", 60*time.Second),
			SweepInterval:     getEnvAsDuration("ALERT_SWEEP_INTERVAL", 5*time.Minute),
			DispatchTimeout:   getEnvAsDuration("ALERT_DISPATCH_TIMEOUT", 10*time.Second),
			LookupTimeout:     getEnvAsDuration("ALERT_LOOKUP_TIMEOUT", 5*time.Second),
			ThresholdsFile:    getEnv("ALERT_THRESHOLDS_FILE", ""),
			Workers:           getEnvAsInt("ALERT_WORKERS", 4),
			QueueSize:         getEnvAsInt("ALERT_QUEUE_SIZE", 1024),
		},
		Retention: RetentionConfig{
			MaxAge:        getEnvAsDuration("TELEMETRY_RETENTION", 365*24*time.Hour),
			SweepInterval: getEnvAsDuration("TELEMETRY_RETENTION_SWEEP", time.Hour),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if cfg.ServicePort <= 0 || cfg.ServicePort > 65535 {
		return nil, fmt.Errorf("SERVICE_PORT must be between 1 and 65535, got %d", cfg.ServicePort)
	}
	if cfg.Alerting.Cooldown <= 0 {
		return nil, fmt.Errorf("ALERT_COOLDOWN must be positive")
	}

	return cfg, nil
}

// Validate checks that the settings a process depends on are present
func (c *Config) Validate(reqs ...Requirement) error {
	for _, req := range reqs {
		switch req {
		case RequireDatabase:
			if c.Database.URL == "" {
				return fmt.Errorf("DATABASE_URL is required but not set in environment variables")
			}
		case RequireRabbitMQ:
			if c.RabbitMQ.URL == "" {
				return fmt.Errorf("RABBITMQ_URL is required but not set in environment variables")
			}
		case RequireMQTT:
			if c.MQTT.BrokerURL == "" {
				return fmt.Errorf("MQTT_BROKER_URL is required but not set in environment variables")
			}
		case RequireRedis:
			if c.Redis.Addr == "" {
				return fmt.Errorf("REDIS_ADDR is required but not set in environment variables")
			}
		case RequireAuth:
			if c.Auth.JWTSecret == "" {
				return fmt.Errorf("JWT_SECRET is required but not set in environment variables")
			}
		}
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration accepts Go duration strings ("90s") or plain seconds ("90")
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(valueStr); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
