package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds runtime configuration sourced from env vars.
type Config struct {
	Port        string
	CORSOrigins []string
	StaticDir   string

	LogLevel  string
	LogFormat string

	Database DatabaseConfig
	Catalog  CatalogConfig
}

// DatabaseConfig describes how to reach the users store.
type DatabaseConfig struct {
	URL            string
	Host           string
	Port           string
	User           string
	Password       string
	Name           string
	SSLMode        string
	MaxConns       int32
	ConnectTimeout time.Duration
	RetryInterval  time.Duration
}

// CatalogConfig describes the upstream movie catalog.
type CatalogConfig struct {
	BaseURL      string
	Timeout      time.Duration
	FallbackFile string
}

// Load reads configuration from the environment and performs minimal validation.
func Load() (Config, error) {
	cfg := Config{
		Port:        fallback(os.Getenv("PORT"), "3000"),
		CORSOrigins: parseCSV(fallback(os.Getenv("CORS_ALLOWED_ORIGINS"), "*")),
		StaticDir:   fallback(os.Getenv("STATIC_DIR"), "client/dist"),
		LogLevel:    fallback(os.Getenv("LOG_LEVEL"), "info"),
		LogFormat:   fallback(os.Getenv("LOG_FORMAT"), "json"),
		Database: DatabaseConfig{
			URL:      strings.TrimSpace(os.Getenv("DATABASE_URL")),
			Host:     fallback(os.Getenv("DB_HOST"), "localhost"),
			Port:     fallback(os.Getenv("DB_PORT"), "5432"),
			User:     strings.TrimSpace(os.Getenv("DB_USER")),
			Password: os.Getenv("DB_PASSWORD"),
			Name:     strings.TrimSpace(os.Getenv("DB_NAME")),
			SSLMode:  fallback(os.Getenv("DB_SSLMODE"), "require"),
		},
		Catalog: CatalogConfig{
			BaseURL:      strings.TrimRight(fallback(os.Getenv("TMDB_BASE_URL"), "https://api.themoviedb.org/3"), "/"),
			FallbackFile: strings.TrimSpace(os.Getenv("TMDB_FALLBACK_FILE")),
		},
	}

	maxConns, err := positiveInt("DB_MAX_CONNS", 10)
	if err != nil {
		return Config{}, err
	}
	cfg.Database.MaxConns = int32(maxConns)

	if cfg.Database.ConnectTimeout, err = positiveDuration("DB_CONNECT_TIMEOUT", 10*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.Database.RetryInterval, err = positiveDuration("DB_RETRY_INTERVAL", 5*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.Catalog.Timeout, err = positiveDuration("TMDB_TIMEOUT", 2*time.Second); err != nil {
		return Config{}, err
	}

	if _, err := url.ParseRequestURI(cfg.Catalog.BaseURL); err != nil {
		return Config{}, fmt.Errorf("TMDB_BASE_URL is invalid: %w", err)
	}

	return cfg, nil
}

// HTTPAddress returns the host:port pair for the HTTP server to bind to.
func (c Config) HTTPAddress() string {
	return fmt.Sprintf(":%s", c.Port)
}

// DSN returns the connection string for the store. DATABASE_URL wins over the
// discrete DB_* settings when present.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(d.Host, d.Port),
		Path:   "/" + d.Name,
	}
	if d.User != "" {
		if d.Password != "" {
			u.User = url.UserPassword(d.User, d.Password)
		} else {
			u.User = url.User(d.User)
		}
	}
	q := url.Values{}
	if d.SSLMode != "" {
		q.Set("sslmode", d.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func fallback(value, def string) string {
	if strings.TrimSpace(value) == "" {
		return def
	}
	return strings.TrimSpace(value)
}

func positiveInt(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, raw)
	}
	return n, nil
}

// positiveDuration accepts Go durations ("2s") or bare milliseconds ("2000").
func positiveDuration(key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	if ms, err := strconv.Atoi(raw); err == nil {
		if ms <= 0 {
			return 0, fmt.Errorf("%s must be positive, got %q", key, raw)
		}
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration, got %q", key, raw)
	}
	return d, nil
}

func parseCSV(input string) []string {
	parts := strings.Split(input, ",")
	var out []string
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}
