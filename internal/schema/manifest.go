// File path: internal/schema/manifest.go
package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// Column describes one column of an introspected table.
type Column struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

// ForeignKey describes one outbound reference from a table.
type ForeignKey struct {
	Column    string `json:"column"`
	RefTable  string `json:"ref_table"`
	RefColumn string `json:"ref_column"`
}

// Table describes one introspected table.
type Table struct {
	Name        string       `json:"name"`
	Columns     []Column     `json:"columns"`
	ForeignKeys []ForeignKey `json:"foreign_keys,omitempty"`
}

// Manifest is an immutable snapshot of the queryable schema. It is never
// mutated after construction; a refresh produces a new Manifest that
// supersedes it.
type Manifest struct {
	SnapshotID string    `json:"snapshot_id"`
	Tables     []Table   `json:"tables"`
	BuiltAt    time.Time `json:"built_at"`
}

// NewManifest canonicalizes the provided tables and derives the content hash
// that identifies the snapshot.
func NewManifest(tables []Table) *Manifest {
	canonical := make([]Table, len(tables))
	copy(canonical, tables)
	sort.Slice(canonical, func(i, j int) bool {
		return canonical[i].Name < canonical[j].Name
	})
	for i := range canonical {
		// The copy above shares the FK backing arrays with the caller's
		// tables; clone them so sorting never mutates the input.
		fks := append([]ForeignKey(nil), canonical[i].ForeignKeys...)
		canonical[i].ForeignKeys = fks
		sort.Slice(fks, func(a, b int) bool {
			if fks[a].Column == fks[b].Column {
				return fks[a].RefTable < fks[b].RefTable
			}
			return fks[a].Column < fks[b].Column
		})
	}
	return &Manifest{
		SnapshotID: hashTables(canonical),
		Tables:     canonical,
		BuiltAt:    time.Now().UTC(),
	}
}

func hashTables(tables []Table) string {
	payload, err := json.Marshal(tables)
	if err != nil {
		// Table marshalling cannot fail for these plain value types.
		payload = []byte{}
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Table returns the descriptor for the named table, matching
// case-insensitively.
func (m *Manifest) Table(name string) (Table, bool) {
	if m == nil {
		return Table{}, false
	}
	for _, table := range m.Tables {
		if strings.EqualFold(table.Name, name) {
			return table, true
		}
	}
	return Table{}, false
}

// TableNames returns the manifest's table names in canonical order.
func (m *Manifest) TableNames() []string {
	if m == nil {
		return nil
	}
	names := make([]string, 0, len(m.Tables))
	for _, table := range m.Tables {
		names = append(names, table.Name)
	}
	return names
}
