// Package config handles verifier configuration and environment loading.
package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"sqlverify/internal/domain"
	"sqlverify/internal/sandbox"
)

// Config holds the settings for a verification run.
type Config struct {
	SandboxDriver string        // sandbox engine: "duckdb" (default) or "sqlite3"
	QueryTimeout  time.Duration // per-query execution bound (default 30s)
	WitnessSeed   int64         // base seed for synthetic data (default 1)
	WitnessRows   int           // default rows per table (default 50)
	Rigor         domain.Rigor  // verification rigor level (default "full")
	Dialect       string        // SQL dialect label carried through reports
	LogLevel      string        // log level: debug, info, warn, error (default "info")

	// Warnings collects non-fatal warnings generated during config
	// loading. These are logged by the caller after the logger is
	// initialised.
	Warnings []string
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
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

// LoadFromEnv loads configuration from environment variables, applying
// defaults for everything unset.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		SandboxDriver: os.Getenv("SANDBOX_DRIVER"),
		Dialect:       os.Getenv("SQL_DIALECT"),
		LogLevel:      os.Getenv("LOG_LEVEL"),
		Rigor:         domain.Rigor(os.Getenv("RIGOR")),
	}

	if v := os.Getenv("QUERY_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("QUERY_TIMEOUT: %w", err)
		}
		cfg.QueryTimeout = d
	}
	if v := os.Getenv("WITNESS_SEED"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("WITNESS_SEED: %w", err)
		}
		cfg.WitnessSeed = n
	}
	if v := os.Getenv("WITNESS_ROWS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("WITNESS_ROWS: %w", err)
		}
		cfg.WitnessRows = n
	}

	// Defaults
	if cfg.SandboxDriver == "" {
		cfg.SandboxDriver = sandbox.DriverDuckDB
	}
	if cfg.SandboxDriver != sandbox.DriverDuckDB && cfg.SandboxDriver != sandbox.DriverSQLite {
		return nil, fmt.Errorf("SANDBOX_DRIVER must be %q or %q", sandbox.DriverDuckDB, sandbox.DriverSQLite)
	}
	if cfg.QueryTimeout == 0 {
		cfg.QueryTimeout = 30 * time.Second
	}
	if cfg.WitnessSeed == 0 {
		cfg.WitnessSeed = 1
	}
	if cfg.WitnessRows == 0 {
		cfg.WitnessRows = 50
	}
	if cfg.Rigor == "" {
		cfg.Rigor = domain.RigorFull
	}
	if !cfg.Rigor.Valid() {
		return nil, fmt.Errorf("RIGOR must be one of structural, standard, full")
	}
	if cfg.Dialect == "" {
		cfg.Dialect = "postgres"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.SandboxDriver == sandbox.DriverSQLite {
		cfg.Warnings = append(cfg.Warnings, "sqlite3 sandbox has weaker type affinity than duckdb: date comparisons are textual")
	}

	return cfg, nil
}

// LoadDotEnv reads a .env file and sets any variables not already in the
// environment. Lines must be in KEY=VALUE format. Comments (#) and blank
// lines are skipped.
func LoadDotEnv(path string) error {
	f, err := os.Open(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return nil // .env not found is not an error
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = stripQuotes(strings.TrimSpace(value))
		// Env vars take precedence over the file.
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("setenv %s: %w", key, err)
			}
		}
	}
	return scanner.Err()
}

// stripQuotes removes surrounding double or single quotes from a value.
func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
