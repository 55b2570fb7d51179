// File path: internal/context/config.go
package context

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// TermTarget maps one dictionary alias onto a table and optionally a column.
type TermTarget struct {
	Table  string `json:"table"`
	Column string `json:"column,omitempty"`
}

// Config controls ranking weights and budget ceilings for the builder.
type Config struct {
	MaxTables   int `json:"max_tables"`
	MaxColumns  int `json:"max_columns"`
	TokenBudget int `json:"token_budget"`

	MatchWeight     float64 `json:"match_weight"`
	AdjacencyWeight float64 `json:"adjacency_weight"`
	RecencyWeight   float64 `json:"recency_weight"`

	// Dictionary overlays the built-in alias map; keys are lowercase terms.
	Dictionary map[string]TermTarget `json:"dictionary,omitempty"`
}

// DefaultConfig returns the production ranking parameters.
func DefaultConfig() Config {
	return Config{
		MaxTables:       8,
		MaxColumns:      64,
		TokenBudget:     1200,
		MatchWeight:     10,
		AdjacencyWeight: 3,
		RecencyWeight:   1.5,
	}
}

// LoadConfig reads an optional JSON dictionary file plus environment
// overrides on top of the defaults.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	if path := strings.TrimSpace(os.Getenv("NLSQL_CONTEXT_CONFIG_FILE")); path != "" {
		data, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return Config{}, fmt.Errorf("read context config: %w", err)
		}
		var fileCfg Config
		if err := json.Unmarshal(data, &fileCfg); err != nil {
			return Config{}, fmt.Errorf("parse context config: %w", err)
		}
		cfg = cfg.Merge(fileCfg)
	}
	if raw := strings.TrimSpace(os.Getenv("NLSQL_CONTEXT_TOKEN_BUDGET")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse NLSQL_CONTEXT_TOKEN_BUDGET: %w", err)
		}
		if value > 0 {
			cfg.TokenBudget = value
		}
	}
	if raw := strings.TrimSpace(os.Getenv("NLSQL_CONTEXT_MAX_TABLES")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse NLSQL_CONTEXT_MAX_TABLES: %w", err)
		}
		if value > 0 {
			cfg.MaxTables = value
		}
	}
	cfg.applyDefaults()
	return cfg, nil
}

// Merge overlays non-zero override values onto the base configuration.
func (c Config) Merge(override Config) Config {
	result := c
	if override.MaxTables > 0 {
		result.MaxTables = override.MaxTables
	}
	if override.MaxColumns > 0 {
		result.MaxColumns = override.MaxColumns
	}
	if override.TokenBudget > 0 {
		result.TokenBudget = override.TokenBudget
	}
	if override.MatchWeight > 0 {
		result.MatchWeight = override.MatchWeight
	}
	if override.AdjacencyWeight > 0 {
		result.AdjacencyWeight = override.AdjacencyWeight
	}
	if override.RecencyWeight > 0 {
		result.RecencyWeight = override.RecencyWeight
	}
	if len(override.Dictionary) > 0 {
		merged := make(map[string]TermTarget, len(c.Dictionary)+len(override.Dictionary))
		for term, target := range c.Dictionary {
			merged[term] = target
		}
		for term, target := range override.Dictionary {
			merged[strings.ToLower(strings.TrimSpace(term))] = target
		}
		result.Dictionary = merged
	}
	return result
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.MaxTables <= 0 {
		c.MaxTables = def.MaxTables
	}
	if c.MaxColumns <= 0 {
		c.MaxColumns = def.MaxColumns
	}
	if c.TokenBudget <= 0 {
		c.TokenBudget = def.TokenBudget
	}
	if c.MatchWeight <= 0 {
		c.MatchWeight = def.MatchWeight
	}
	if c.AdjacencyWeight <= 0 {
		c.AdjacencyWeight = def.AdjacencyWeight
	}
	if c.RecencyWeight <= 0 {
		c.RecencyWeight = def.RecencyWeight
	}
}
