// Package config loads the server settings.
//
// Settings are layered, later layers overriding earlier ones:
//
//  1. Defaults
//  2. A YAML file (optional)
//  3. A .env file, which only fills environment variables that are not set yet
//  4. Environment variables prefixed with BEANCOUNT_MCP_
//  5. Command-line flags, applied by the cli package
//
// Example config file:
//
//	ledger_file: ~/finance/main.beancount
//	tolerance: ["*:0.005", "JPY:0.5"]
//	row_limit: 500
//	debounce: 2s
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/robinvdvleuten/beancount-mcp/ledger"
)

// EnvPrefix prefixes every environment variable the config reads.
const EnvPrefix = "BEANCOUNT_MCP_"

// Defaults applied by Default.
const (
	DefaultRowLimit = 200
	DefaultDebounce = 2 * time.Second
	DefaultHTTPAddr = "127.0.0.1:8080"
	DefaultLogLevel = "info"
)

// Config holds the server settings.
type Config struct {
	// LedgerFile is the ledger the server reads and appends to.
	LedgerFile string `yaml:"ledger_file" env:"LEDGER_FILE"`
	// Tolerance lists COMMODITY:TOLERANCE overrides; "*" sets the default.
	Tolerance []string `yaml:"tolerance" env:"TOLERANCE" envSeparator:","`
	// RowLimit caps query results. Zero disables the cap.
	RowLimit int `yaml:"row_limit" env:"ROW_LIMIT"`
	// AuditDB is the SQLite submission index. Empty disables it.
	AuditDB  string        `yaml:"audit_db" env:"AUDIT_DB"`
	HTTPAddr string        `yaml:"http_addr" env:"HTTP_ADDR"`
	Watch    bool          `yaml:"watch" env:"WATCH"`
	Debounce time.Duration `yaml:"debounce" env:"DEBOUNCE"`
	LogLevel string        `yaml:"log_level" env:"LOG_LEVEL"`
}

// Default returns the settings used when nothing overrides them.
func Default() *Config {
	return &Config{
		RowLimit: DefaultRowLimit,
		HTTPAddr: DefaultHTTPAddr,
		Watch:    true,
		Debounce: DefaultDebounce,
		LogLevel: DefaultLogLevel,
	}
}

// Load layers the YAML file at path (skipped when empty), the .env file at envFile
// (./.env when empty, ignored if missing) and the environment over the defaults.
func Load(path, envFile string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
	} else {
		_ = godotenv.Load()
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.LedgerFile = expandHome(cfg.LedgerFile)
	cfg.AuditDB = expandHome(cfg.AuditDB)
	return cfg, cfg.Validate()
}

// Validate checks that every setting is usable.
func (c *Config) Validate() error {
	var errs []error
	if c.RowLimit < 0 {
		errs = append(errs, fmt.Errorf("row_limit must not be negative, got %d", c.RowLimit))
	}
	if c.Debounce < 0 {
		errs = append(errs, fmt.Errorf("debounce must not be negative, got %s", c.Debounce))
	}
	if _, err := c.ToleranceConfig(); err != nil {
		errs = append(errs, err)
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid log_level: %w", err))
	}
	return errors.Join(errs...)
}

// ToleranceConfig parses the tolerance overrides.
func (c *Config) ToleranceConfig() (*ledger.ToleranceConfig, error) {
	return ledger.ParseToleranceConfig(c.Tolerance)
}

// LedgerConfig returns the validation settings for the ledger.
func (c *Config) LedgerConfig() (*ledger.Config, error) {
	tolerance, err := c.ToleranceConfig()
	if err != nil {
		return nil, err
	}
	lc := ledger.NewConfig()
	lc.Tolerance = tolerance
	return lc, nil
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
