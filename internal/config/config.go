package config

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

const (
	defaultListenAddr    = ":8080"
	defaultDBPath        = "skewplay.db"
	defaultEngineURL     = "http://localhost:8000"
	defaultEngineTimeout = 5 * time.Minute

	envListenAddr    = "SKEWPLAY_LISTEN_ADDR"
	envDBPath        = "SKEWPLAY_DB_PATH"
	envEngineURL     = "SKEWPLAY_ENGINE_URL"
	envEngineTimeout = "SKEWPLAY_ENGINE_TIMEOUT"
	envLogLevel      = "SKEWPLAY_LOG_LEVEL"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	ListenAddr    string
	DBPath        string
	EngineURL     string
	EngineTimeout time.Duration
	LogLevel      slog.Level
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	cfg := Config{
		ListenAddr:    defaultListenAddr,
		DBPath:        defaultDBPath,
		EngineURL:     defaultEngineURL,
		EngineTimeout: defaultEngineTimeout,
		LogLevel:      slog.LevelInfo,
	}

	if v := os.Getenv(envListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(envDBPath); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(envEngineURL); v != "" {
		cfg.EngineURL = v
	}
	if v := os.Getenv(envEngineTimeout); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.EngineTimeout = d
		}
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = parseLogLevel(v)
	}

	return cfg
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
