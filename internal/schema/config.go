// File path: internal/schema/config.go
package schema

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config controls snapshot staleness and refresh behaviour.
type Config struct {
	Schemas        []string      `json:"schemas"`
	TTL            time.Duration `json:"-"`
	TTLString      string        `json:"ttl"`
	RefreshTimeout time.Duration `json:"-"`
	TimeoutString  string        `json:"refresh_timeout"`
	Channel        string        `json:"channel"`
}

// DefaultConfig returns the staleness policy shared by every environment;
// only the TTL value differs between them.
func DefaultConfig() Config {
	return Config{
		Schemas:        []string{"public"},
		TTL:            10 * time.Minute,
		RefreshTimeout: 30 * time.Second,
		Channel:        "nlsql:invalidate-schema",
	}
}

// LoadConfig reads overrides from the environment on top of the defaults.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	if raw := strings.TrimSpace(os.Getenv("NLSQL_SCHEMA_NAMESPACES")); raw != "" {
		parts := strings.Split(raw, ",")
		schemas := make([]string, 0, len(parts))
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				schemas = append(schemas, trimmed)
			}
		}
		if len(schemas) > 0 {
			cfg.Schemas = schemas
		}
	}
	if raw := strings.TrimSpace(os.Getenv("NLSQL_SCHEMA_TTL")); raw != "" {
		dur, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse NLSQL_SCHEMA_TTL: %w", err)
		}
		cfg.TTL = dur
	}
	if raw := strings.TrimSpace(os.Getenv("NLSQL_SCHEMA_REFRESH_TIMEOUT")); raw != "" {
		dur, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse NLSQL_SCHEMA_REFRESH_TIMEOUT: %w", err)
		}
		cfg.RefreshTimeout = dur
	}
	if raw := strings.TrimSpace(os.Getenv("NLSQL_SCHEMA_CHANNEL")); raw != "" {
		cfg.Channel = raw
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if len(c.Schemas) == 0 {
		c.Schemas = []string{"public"}
	}
	if c.TTL <= 0 {
		c.TTL = 10 * time.Minute
	}
	if c.RefreshTimeout <= 0 {
		c.RefreshTimeout = 30 * time.Second
	}
	if strings.TrimSpace(c.Channel) == "" {
		c.Channel = "nlsql:invalidate-schema"
	}
}
