package dbconfig

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds Postgres connection and pool settings. The pool stays
// small: a gateway process holds a handful of sessions and each touches
// the store only at turn boundaries, resyncs, and terminal transitions.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	PoolMaxConns    int
	ConnMaxLifetime time.Duration
}

// NewConfigFromEnv reads DB_* environment variables (with defaults).
func NewConfigFromEnv() Config {
	return Config{
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnvAsInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", "postgres"),
		Password:        getEnv("DB_PASSWORD", "postgres"),
		Database:        getEnv("DB_NAME", "ludorush"),
		SSLMode:         getEnv("DB_SSLMODE", "disable"),
		PoolMaxConns:    getEnvAsInt("DB_POOL_MAX_CONNS", 8),
		ConnMaxLifetime: time.Duration(getEnvAsInt("DB_CONN_MAX_LIFETIME_MINUTES", 30)) * time.Minute,
	}
}

// DSN returns the pgxpool connection URL, pool settings included.
func (c Config) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s&pool_max_conns=%d&pool_max_conn_lifetime=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
		c.PoolMaxConns, c.ConnMaxLifetime,
	)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
