package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Runtime holds daemon settings read from the environment.
type Runtime struct {
	DBPath        string `env:"KINGDOMS_DB_PATH" envDefault:"data/kingdoms.db"`
	SnapshotDir   string `env:"KINGDOMS_SNAPSHOT_DIR" envDefault:"data/snapshots"`
	APIPort       int    `env:"KINGDOMS_API_PORT" envDefault:"8080"`
	Seed          int64  `env:"KINGDOMS_SEED" envDefault:"42"`
	TuningPath    string `env:"KINGDOMS_TUNING_PATH"`
	AdminKey      string `env:"KINGDOMS_ADMIN_KEY"`
	TickMillis    int    `env:"KINGDOMS_TICK_MS" envDefault:"50"`
	AutosaveTicks uint64 `env:"KINGDOMS_AUTOSAVE_TICKS" envDefault:"6000"`
	LogLevel      string `env:"KINGDOMS_LOG_LEVEL" envDefault:"info"`

	CORSOrigins []string `env:"KINGDOMS_CORS_ORIGINS" envSeparator:","`
}

// LoadRuntime reads a .env file if present, then the environment.
func LoadRuntime() (Runtime, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, using system environment")
	}
	var r Runtime
	if err := env.Parse(&r); err != nil {
		return r, fmt.Errorf("parse env: %w", err)
	}
	if r.TickMillis <= 0 {
		return r, fmt.Errorf("KINGDOMS_TICK_MS must be positive, got %d", r.TickMillis)
	}
	return r, nil
}

// Tuning loads the tuning file when configured, otherwise the defaults.
func (r Runtime) Tuning() (Tuning, error) {
	if r.TuningPath == "" {
		return DefaultTuning(), nil
	}
	return LoadTuning(r.TuningPath)
}

// Level maps the configured log level name to a slog level.
func (r Runtime) Level() slog.Level {
	switch strings.ToLower(r.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
