package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"tessera/internal/cache"
	"tessera/internal/credential"
	"tessera/internal/database"
	"tessera/internal/messaging"
	"tessera/internal/search"

	"github.com/joho/godotenv"
)

// Config содержит конфигурацию приложения
type Config struct {
	Port           string
	GinMode        string
	AppEnv         string
	LogLevel       string
	LogFormat      string
	RequestTimeout time.Duration
	MetricsEnabled bool

	// Card issuing and sales
	HMACSecretHex     string
	CardValidityDays  int
	DefaultRegisterID string

	Database      database.Config
	NATS          messaging.Config
	Valkey        cache.Config
	Elasticsearch search.Config
}

// Load загружает конфигурацию из переменных окружения (и из .env, если он есть)
func Load() *Config {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	return &Config{
		Port:           getEnv("PORT", "5173"),
		GinMode:        getEnv("GIN_MODE", "debug"),
		AppEnv:         getEnv("APP_ENV", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "json"),
		RequestTimeout: time.Duration(getEnvInt("REQUEST_TIMEOUT_SEC", 30)) * time.Second,
		MetricsEnabled: getEnv("METRICS_ENABLED", "true") == "true",

		HMACSecretHex:     os.Getenv("HMAC_SECRET_HEX"),
		CardValidityDays:  getEnvInt("CARD_VALIDITY_DAYS", 365),
		DefaultRegisterID: getEnv("DEFAULT_REGISTER_ID", "cassa1"),

		Database: database.Config{
			Host:               getEnv("DB_HOST", "localhost"),
			Port:               getEnvInt("DB_PORT", 5432),
			User:               getEnv("DB_USER", "tessera"),
			Password:           getEnv("DB_PASSWORD", "tessera"),
			DBName:             getEnv("DB_NAME", "tessera"),
			SSLMode:            getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetimeMin: getEnvInt("DB_CONN_MAX_LIFETIME_MIN", 5),
			ConnMaxIdleTimeMin: getEnvInt("DB_CONN_MAX_IDLE_TIME_MIN", 1),
			LockTimeout:        time.Duration(getEnvInt("DB_LOCK_TIMEOUT_MS", 5000)) * time.Millisecond,
		},

		NATS: messaging.Config{
			URL:       os.Getenv("NATS_URL"),
			ClusterID: getEnv("NATS_CLUSTER_ID", "tessera"),
			ClientID:  getEnv("NATS_CLIENT_ID", "tessera-api"),
		},

		Valkey: cache.Config{
			Addr:      os.Getenv("VALKEY_ADDR"),
			Password:  os.Getenv("VALKEY_PASSWORD"),
			ReportKey: getEnv("VALKEY_REPORT_HASH_KEY", "reports:daily"),
			ReportTTL: time.Duration(getEnvInt("VALKEY_REPORT_TTL_SEC", 60)) * time.Second,
		},

		Elasticsearch: search.Config{
			URL:        os.Getenv("ELASTICSEARCH_URL"),
			Index:      getEnv("ELASTICSEARCH_INDEX", "cards"),
			Username:   os.Getenv("ELASTICSEARCH_USERNAME"),
			Password:   os.Getenv("ELASTICSEARCH_PASSWORD"),
			MaxRetries: getEnvInt("ELASTICSEARCH_MAX_RETRIES", 3),
			Timeout:    getEnvDuration("ELASTICSEARCH_TIMEOUT", 30*time.Second),
		},
	}
}

// Validate проверяет значения, которые нельзя исправить значением по умолчанию
func (c *Config) Validate() error {
	if c.HMACSecretHex != "" {
		if err := credential.ValidateSecret(c.HMACSecretHex); err != nil {
			return fmt.Errorf("HMAC_SECRET_HEX: %w", err)
		}
	}
	if c.CardValidityDays < 1 {
		return fmt.Errorf("CARD_VALIDITY_DAYS must be positive, got %d", c.CardValidityDays)
	}
	if c.Database.LockTimeout <= 0 {
		return fmt.Errorf("DB_LOCK_TIMEOUT_MS must be positive")
	}
	return nil
}

// Production reports whether internal error details must be hidden
func (c *Config) Production() bool {
	return c.AppEnv == "production"
}

// getEnv получает значение переменной окружения или возвращает значение по умолчанию
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt получает целочисленное значение переменной окружения
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvDuration понимает значения вида "500ms" или "30s"
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
