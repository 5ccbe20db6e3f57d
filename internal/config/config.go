package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Port string
	Env  string
	Host string

	LogFormat string
	LogLevel  string

	StoreDriver string
	DatabaseURL string
	SQLitePath  string
	RedisURL    string

	AuthKey       string
	TokenTTL      time.Duration
	RelayTokenTTL time.Duration
	AdminUsers    string

	AllowedOrigins       []string
	AllowedOriginPattern string
	TrustedProxies       []string

	PingInterval time.Duration
	PingTimeout  time.Duration
	HistoryLimit int
	StoreTimeout time.Duration

	EmailProvider    string
	EmailAPIKey      string
	EmailSender      string
	BookingRecipient string

	ReviewsPrimaryCSV   string
	ReviewsSecondaryCSV string
	ReviewsSchedule     string

	// DotEnvLoaded and Defaulted describe where the values came from, for
	// logging once the logger is configured.
	DotEnvLoaded bool
	Defaulted    []string
}

// Load reads configuration from the environment, loading a .env file first
// when one is present.
func Load() (*Config, error) {
	dotenv := godotenv.Load() == nil
	env := &envReader{}

	cfg := &Config{
		Port:      env.get("PORT", "8080"),
		Env:       env.get("APP_ENV", "development"),
		Host:      env.get("HOST", ""),
		LogFormat: env.get("LOG_FORMAT", ""),
		LogLevel:  env.get("LOG_LEVEL", "info"),

		StoreDriver: env.get("STORE_DRIVER", DriverPostgres),
		DatabaseURL: env.get("DATABASE_URL", ""),
		SQLitePath:  env.get("SQLITE_PATH", "./data/chat.db"),
		RedisURL:    env.get("REDIS_URL", ""),

		AuthKey:    env.get("AUTH_KEY", ""),
		AdminUsers: env.get("ADMIN_USERS", ""),

		AllowedOrigins:       splitList(env.get("ALLOWED_ORIGINS", "http://localhost:3000")),
		AllowedOriginPattern: env.get("ALLOWED_ORIGIN_PATTERN", `^https://[a-z0-9-]+\.vercel\.app$`),
		TrustedProxies:       splitList(env.get("TRUSTED_PROXIES", "")),

		EmailProvider:    env.get("EMAIL_PROVIDER", "log"),
		EmailAPIKey:      env.get("EMAIL_API_KEY", ""),
		EmailSender:      env.get("EMAIL_SENDER", ""),
		BookingRecipient: env.get("BOOKING_RECIPIENT", "reservations@localhost"),

		ReviewsPrimaryCSV:   env.get("REVIEWS_PRIMARY_CSV", "./data/reviews_google.csv"),
		ReviewsSecondaryCSV: env.get("REVIEWS_SECONDARY_CSV", "./data/reviews_tripadvisor.csv"),
		ReviewsSchedule:     env.get("REVIEWS_SCHEDULE", "0 3 * * *"),
	}

	var errs []error
	cfg.TokenTTL = env.duration("TOKEN_TTL", 24*time.Hour, &errs)
	cfg.RelayTokenTTL = env.duration("RELAY_TOKEN_TTL", 15*time.Minute, &errs)
	cfg.PingInterval = env.duration("RELAY_PING_INTERVAL", 25*time.Second, &errs)
	cfg.PingTimeout = env.duration("RELAY_PING_TIMEOUT", 20*time.Second, &errs)
	cfg.StoreTimeout = env.duration("RELAY_STORE_TIMEOUT", 3*time.Second, &errs)
	cfg.HistoryLimit = env.integer("RELAY_HISTORY_LIMIT", 50, &errs)

	cfg.DotEnvLoaded = dotenv
	cfg.Defaulted = env.defaulted

	if cfg.AuthKey == "" {
		errs = append(errs, errors.New("AUTH_KEY (JWT secret) is missing"))
	}

	switch cfg.StoreDriver {
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is missing"))
		}
	case DriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver))
	}

	if cfg.HistoryLimit <= 0 {
		errs = append(errs, fmt.Errorf("RELAY_HISTORY_LIMIT must be positive, got %d", cfg.HistoryLimit))
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c *Config) Addr() string {
	return c.Host + ":" + c.Port
}

// MaskedDatabaseURL hides credentials so the DSN can be logged.
func (c *Config) MaskedDatabaseURL() string {
	return maskDBSource(c.DatabaseURL)
}

// envReader looks variables up and remembers which fell back to a default.
type envReader struct {
	defaulted []string
}

func (e *envReader) get(key, defaultValue string) string {
	value, exists := os.LookupEnv(key)
	if !exists {
		e.defaulted = append(e.defaulted, key)
		return defaultValue
	}
	return value
}

func (e *envReader) duration(key string, defaultValue time.Duration, errs *[]error) time.Duration {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		e.defaulted = append(e.defaulted, key)
		return defaultValue
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return d
}

func (e *envReader) integer(key string, defaultValue int, errs *[]error) int {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		e.defaulted = append(e.defaulted, key)
		return defaultValue
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return n
}

func splitList(raw string) []string {
	var out []string
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry != "" {
			out = append(out, entry)
		}
	}
	return out
}

func maskDBSource(dsn string) string {
	parts := strings.Split(dsn, "@")
	if len(parts) < 2 {
		return "invalid-dsn-format"
	}
	return "postgres://****:****@" + parts[len(parts)-1]
}
