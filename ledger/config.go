package ledger

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultTolerance is the residual a transaction or balance assertion may be off by in
// any commodity without an explicit override.
var DefaultTolerance = decimal.RequireFromString("0.005")

// wildcard is the key of the tolerance applying to every commodity without an override.
const wildcard = "*"

// ToleranceConfig maps commodities to the epsilon used when checking the double-entry
// law and balance assertions. Tolerances are configured, never inferred from the
// precision of the amounts involved.
type ToleranceConfig struct {
	values map[string]decimal.Decimal
}

// NewToleranceConfig returns a config with DefaultTolerance for every commodity.
func NewToleranceConfig() *ToleranceConfig {
	return &ToleranceConfig{
		values: map[string]decimal.Decimal{wildcard: DefaultTolerance},
	}
}

// ParseToleranceConfig parses entries of the form "COMMODITY:TOLERANCE" or
// "*:TOLERANCE" on top of the defaults.
func ParseToleranceConfig(entries []string) (*ToleranceConfig, error) {
	config := NewToleranceConfig()
	for _, entry := range entries {
		commodity, value, ok := strings.Cut(entry, ":")
		if !ok {
			return nil, fmt.Errorf("invalid tolerance %q, expected COMMODITY:TOLERANCE", entry)
		}
		tolerance, err := decimal.NewFromString(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("invalid tolerance value in %q: %w", entry, err)
		}
		if err := config.Set(strings.TrimSpace(commodity), tolerance); err != nil {
			return nil, err
		}
	}
	return config, nil
}

// Set overrides the tolerance of commodity, or of every commodity for "*".
func (c *ToleranceConfig) Set(commodity string, tolerance decimal.Decimal) error {
	if tolerance.IsNegative() {
		return fmt.Errorf("tolerance for %s must not be negative, got %s", commodity, tolerance)
	}
	c.values[commodity] = tolerance
	return nil
}

// Tolerance returns the epsilon for commodity.
func (c *ToleranceConfig) Tolerance(commodity string) decimal.Decimal {
	if tolerance, ok := c.values[commodity]; ok {
		return tolerance
	}
	return c.values[wildcard]
}

// Within reports whether residual is small enough to count as zero in commodity.
func (c *ToleranceConfig) Within(commodity string, residual decimal.Decimal) bool {
	return residual.Abs().LessThanOrEqual(c.Tolerance(commodity))
}

// String renders the config as comma-separated COMMODITY:TOLERANCE pairs.
func (c *ToleranceConfig) String() string {
	keys := make([]string, 0, len(c.values))
	for key := range c.values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, key := range keys {
		parts[i] = key + ":" + c.values[key].String()
	}
	return strings.Join(parts, ",")
}

// Config holds the settings that influence validation.
type Config struct {
	Tolerance *ToleranceConfig
}

// NewConfig creates a Config with defaults.
func NewConfig() *Config {
	return &Config{
		Tolerance: NewToleranceConfig(),
	}
}

// contextKey is a private type to avoid key collisions in context.
type contextKey struct{}

// WithContext returns a new context with the Config attached.
func (c *Config) WithContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, contextKey{}, c)
}

// ConfigFromContext retrieves the Config from context.
// Returns a default Config if not found.
func ConfigFromContext(ctx context.Context) *Config {
	if cfg, ok := ctx.Value(contextKey{}).(*Config); ok {
		return cfg
	}
	return NewConfig()
}

// Option adjusts how Load builds a ledger.
type Option func(*Config)

// WithTolerance overrides the tolerance taken from the context.
func WithTolerance(tolerance *ToleranceConfig) Option {
	return func(c *Config) {
		c.Tolerance = tolerance
	}
}
