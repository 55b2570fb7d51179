// File path: internal/validator/config.go
package validator

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config carries the row cap and the complexity guardrails, each
// independently tunable.
type Config struct {
	MaxRows         int `json:"max_rows"`
	DefaultRows     int `json:"default_rows"`
	ExploratoryRows int `json:"exploratory_rows"`

	MaxJoins         int `json:"max_joins"`
	MaxSubqueryDepth int `json:"max_subquery_depth"`
	MaxAggregates    int `json:"max_aggregates"`

	StatementTimeout       time.Duration `json:"-"`
	StatementTimeoutString string        `json:"statement_timeout"`
}

// DefaultConfig returns the production guardrails.
func DefaultConfig() Config {
	return Config{
		MaxRows:          500,
		DefaultRows:      100,
		ExploratoryRows:  20,
		MaxJoins:         6,
		MaxSubqueryDepth: 3,
		MaxAggregates:    8,
		StatementTimeout: 3 * time.Second,
	}
}

// LoadConfig reads environment overrides on top of the defaults.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	intVars := []struct {
		name  string
		field *int
	}{
		{"NLSQL_VALIDATOR_MAX_ROWS", &cfg.MaxRows},
		{"NLSQL_VALIDATOR_DEFAULT_ROWS", &cfg.DefaultRows},
		{"NLSQL_VALIDATOR_EXPLORATORY_ROWS", &cfg.ExploratoryRows},
		{"NLSQL_VALIDATOR_MAX_JOINS", &cfg.MaxJoins},
		{"NLSQL_VALIDATOR_MAX_SUBQUERY_DEPTH", &cfg.MaxSubqueryDepth},
		{"NLSQL_VALIDATOR_MAX_AGGREGATES", &cfg.MaxAggregates},
	}
	for _, v := range intVars {
		raw := strings.TrimSpace(os.Getenv(v.name))
		if raw == "" {
			continue
		}
		value, err := strconv.Atoi(raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", v.name, err)
		}
		if value > 0 {
			*v.field = value
		}
	}
	if raw := strings.TrimSpace(os.Getenv("NLSQL_VALIDATOR_STATEMENT_TIMEOUT")); raw != "" {
		dur, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse NLSQL_VALIDATOR_STATEMENT_TIMEOUT: %w", err)
		}
		cfg.StatementTimeout = dur
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.MaxRows <= 0 {
		c.MaxRows = def.MaxRows
	}
	if c.DefaultRows <= 0 || c.DefaultRows > c.MaxRows {
		c.DefaultRows = min(def.DefaultRows, c.MaxRows)
	}
	if c.ExploratoryRows <= 0 || c.ExploratoryRows > c.MaxRows {
		c.ExploratoryRows = min(def.ExploratoryRows, c.MaxRows)
	}
	if c.MaxJoins <= 0 {
		c.MaxJoins = def.MaxJoins
	}
	if c.MaxSubqueryDepth <= 0 {
		c.MaxSubqueryDepth = def.MaxSubqueryDepth
	}
	if c.MaxAggregates <= 0 {
		c.MaxAggregates = def.MaxAggregates
	}
	if c.StatementTimeout <= 0 {
		if c.StatementTimeoutString != "" {
			if parsed, err := time.ParseDuration(c.StatementTimeoutString); err == nil {
				c.StatementTimeout = parsed
			}
		}
		if c.StatementTimeout <= 0 {
			c.StatementTimeout = def.StatementTimeout
		}
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
