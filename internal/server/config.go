package server

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StoreNATS     = "nats"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

// Lock backends.
const (
	LockMemory = "memory"
	LockNATS   = "nats"
	LockRedis  = "redis"
)

// Config holds server configuration from environment variables.
type Config struct {
	Port     string
	GRPCPort string

	Store       string
	Lock        string
	NatsURL     string
	DatabaseURL string
	SQLitePath  string
	RedisAddr   string
	LockTTL     time.Duration

	TickSpec   string
	OutputFile string
	APIKey     string
	LogLevel   slog.Level

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// LoadConfig reads configuration from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		Port:     getEnv("CRON_PORT", "8080"),
		GRPCPort: getEnv("CRON_GRPC_PORT", "9090"),

		Store:       strings.ToLower(getEnv("CRON_STORE", StoreMemory)),
		Lock:        strings.ToLower(getEnv("CRON_LOCK", LockMemory)),
		NatsURL:     getEnv("NATS_URL", "nats://localhost:4222"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		SQLitePath:  getEnv("SQLITE_PATH", "ojs-cron.db"),
		RedisAddr:   getEnv("REDIS_ADDR", "localhost:6379"),
		LockTTL:     getEnvDuration("CRON_LOCK_TTL", 30*time.Second),

		TickSpec:   getEnv("CRON_TICK_SPEC", "* * * * *"),
		OutputFile: getEnv("CRON_OUTPUT_FILE", "cron-demo.txt"),
		APIKey:     getEnv("CRON_API_KEY", ""),
		LogLevel:   getEnvLevel("CRON_LOG_LEVEL", slog.LevelInfo),

		ReadTimeout:     getEnvDuration("CRON_READ_TIMEOUT", 10*time.Second),
		WriteTimeout:    getEnvDuration("CRON_WRITE_TIMEOUT", 30*time.Second),
		IdleTimeout:     getEnvDuration("CRON_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("CRON_SHUTDOWN_TIMEOUT", 30*time.Second),
	}
}

// Validate checks the backend selections.
func (c Config) Validate() error {
	switch c.Store {
	case StoreMemory, StoreNATS, StoreSQLite:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("CRON_STORE=postgres requires DATABASE_URL")
		}
	default:
		return fmt.Errorf("unknown CRON_STORE %q", c.Store)
	}
	switch c.Lock {
	case LockMemory, LockNATS, LockRedis:
	default:
		return fmt.Errorf("unknown CRON_LOCK %q", c.Lock)
	}
	if c.LockTTL <= 0 {
		return fmt.Errorf("CRON_LOCK_TTL must be positive")
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnvLevel(key string, defaultVal slog.Level) slog.Level {
	if val, ok := os.LookupEnv(key); ok {
		var l slog.Level
		if err := l.UnmarshalText([]byte(val)); err == nil {
			return l
		}
	}
	return defaultVal
}
