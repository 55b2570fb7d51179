// File path: internal/context/types.go
package context

import (
	"fmt"
	"strings"
)

// RankedColumn is one column kept in the context excerpt.
type RankedColumn struct {
	Name     string  `json:"name"`
	Type     string  `json:"type"`
	Nullable bool    `json:"nullable"`
	Score    float64 `json:"score"`
}

// RankedTable is one table kept in the context excerpt, with its surviving
// columns and the join hints derived from its foreign keys.
type RankedTable struct {
	Name      string         `json:"name"`
	Score     float64        `json:"score"`
	Forced    bool           `json:"forced"`
	Columns   []RankedColumn `json:"columns"`
	JoinHints []string       `json:"join_hints,omitempty"`
}

// RankedContext is the token-budgeted schema excerpt produced for one
// question. It is always derived from exactly one manifest identity.
type RankedContext struct {
	SnapshotID    string        `json:"snapshot_id"`
	Tables        []RankedTable `json:"tables"`
	ForcedTables  []string      `json:"forced_tables,omitempty"`
	EvictedTables []string      `json:"evicted_tables,omitempty"`
	Truncated     bool          `json:"truncated"`
	TokenEstimate int           `json:"token_estimate"`
}

// Prompt renders the excerpt in the compact form handed to the reasoning
// engine.
func (rc RankedContext) Prompt() string {
	var b strings.Builder
	b.WriteString("Available tables:\n")
	for _, table := range rc.Tables {
		b.WriteString(table.Name)
		b.WriteString(" (")
		for i, col := range table.Columns {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(col.Name)
			b.WriteString(" ")
			b.WriteString(col.Type)
			if col.Nullable {
				b.WriteString(" null")
			}
		}
		b.WriteString(")\n")
		for _, hint := range table.JoinHints {
			b.WriteString("  join: ")
			b.WriteString(hint)
			b.WriteString("\n")
		}
	}
	if rc.Truncated {
		b.WriteString("Note: schema excerpt truncated to fit the context budget.\n")
	}
	return b.String()
}

// EstimateTokens approximates the token count of rendered text. A four
// characters per token heuristic keeps the builder deterministic and free of
// tokenizer dependencies.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

func joinHint(table, column, refTable, refColumn string) string {
	return fmt.Sprintf("%s.%s = %s.%s", table, column, refTable, refColumn)
}
