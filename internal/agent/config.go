// File path: internal/agent/config.go
package agent

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config bounds one generation request and names the fuzzy-lookup target.
type Config struct {
	MaxIterations     int `json:"max_iterations"`
	ValidationRetries int `json:"validation_retries"`

	WallClock       time.Duration `json:"-"`
	WallClockString string        `json:"wall_clock"`

	ExploratoryRows int `json:"exploratory_rows"`

	LookupTable  string `json:"lookup_table"`
	LookupColumn string `json:"lookup_column"`
	LookupLimit  int    `json:"lookup_limit"`
}

// DefaultConfig returns the production budgets.
func DefaultConfig() Config {
	return Config{
		MaxIterations:     6,
		ValidationRetries: 1,
		WallClock:         90 * time.Second,
		ExploratoryRows:   20,
		LookupTable:       "lab_tests",
		LookupColumn:      "test_name",
		LookupLimit:       10,
	}
}

// LoadConfig reads environment overrides on top of the defaults.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	if raw := strings.TrimSpace(os.Getenv("NLSQL_AGENT_MAX_ITERATIONS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse NLSQL_AGENT_MAX_ITERATIONS: %w", err)
		}
		if value > 0 {
			cfg.MaxIterations = value
		}
	}
	if raw := strings.TrimSpace(os.Getenv("NLSQL_AGENT_VALIDATION_RETRIES")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse NLSQL_AGENT_VALIDATION_RETRIES: %w", err)
		}
		if value >= 0 {
			cfg.ValidationRetries = value
		}
	}
	if raw := strings.TrimSpace(os.Getenv("NLSQL_AGENT_WALL_CLOCK")); raw != "" {
		dur, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse NLSQL_AGENT_WALL_CLOCK: %w", err)
		}
		cfg.WallClock = dur
	}
	if raw := strings.TrimSpace(os.Getenv("NLSQL_AGENT_LOOKUP_TABLE")); raw != "" {
		cfg.LookupTable = raw
	}
	if raw := strings.TrimSpace(os.Getenv("NLSQL_AGENT_LOOKUP_COLUMN")); raw != "" {
		cfg.LookupColumn = raw
	}
	if raw := strings.TrimSpace(os.Getenv("NLSQL_AGENT_LOOKUP_LIMIT")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse NLSQL_AGENT_LOOKUP_LIMIT: %w", err)
		}
		if value > 0 {
			cfg.LookupLimit = value
		}
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.MaxIterations <= 0 {
		c.MaxIterations = def.MaxIterations
	}
	if c.ValidationRetries < 0 {
		c.ValidationRetries = def.ValidationRetries
	}
	if c.WallClock <= 0 {
		if c.WallClockString != "" {
			if parsed, err := time.ParseDuration(c.WallClockString); err == nil {
				c.WallClock = parsed
			}
		}
		if c.WallClock <= 0 {
			c.WallClock = def.WallClock
		}
	}
	if c.ExploratoryRows <= 0 {
		c.ExploratoryRows = def.ExploratoryRows
	}
	if strings.TrimSpace(c.LookupTable) == "" {
		c.LookupTable = def.LookupTable
	}
	if strings.TrimSpace(c.LookupColumn) == "" {
		c.LookupColumn = def.LookupColumn
	}
	if c.LookupLimit <= 0 {
		c.LookupLimit = def.LookupLimit
	}
}
