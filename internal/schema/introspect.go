// File path: internal/schema/introspect.go
package schema

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Introspector produces the raw table descriptors a manifest is built from.
type Introspector interface {
	Introspect(ctx context.Context) ([]Table, error)
}

// PGIntrospector reads table structure from the Postgres information schema,
// restricted to a whitelist of namespaces.
type PGIntrospector struct {
	db      *sqlx.DB
	schemas []string
}

// NewPGIntrospector wires an introspector over the provided connection pool.
// An empty whitelist defaults to the public schema.
func NewPGIntrospector(db *sqlx.DB, schemas []string) *PGIntrospector {
	cleaned := make([]string, 0, len(schemas))
	for _, s := range schemas {
		if trimmed := strings.TrimSpace(s); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	if len(cleaned) == 0 {
		cleaned = []string{"public"}
	}
	return &PGIntrospector{db: db, schemas: cleaned}
}

const columnQuery = `
SELECT table_name, column_name, data_type, is_nullable
FROM information_schema.columns
WHERE table_schema = ANY($1)
ORDER BY table_name, ordinal_position`

const foreignKeyQuery = `
SELECT tc.table_name,
       kcu.column_name,
       ccu.table_name  AS ref_table,
       ccu.column_name AS ref_column
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
  ON tc.constraint_name = kcu.constraint_name
 AND tc.table_schema = kcu.table_schema
JOIN information_schema.constraint_column_usage ccu
  ON tc.constraint_name = ccu.constraint_name
 AND tc.table_schema = ccu.table_schema
WHERE tc.constraint_type = 'FOREIGN KEY'
  AND tc.table_schema = ANY($1)
ORDER BY tc.table_name, kcu.column_name`

type columnRow struct {
	TableName  string `db:"table_name"`
	ColumnName string `db:"column_name"`
	DataType   string `db:"data_type"`
	IsNullable string `db:"is_nullable"`
}

type foreignKeyRow struct {
	TableName  string `db:"table_name"`
	ColumnName string `db:"column_name"`
	RefTable   string `db:"ref_table"`
	RefColumn  string `db:"ref_column"`
}

// Introspect loads columns first and foreign keys second, then assembles the
// per-table descriptors in catalog order.
func (p *PGIntrospector) Introspect(ctx context.Context) ([]Table, error) {
	if p == nil || p.db == nil {
		return nil, fmt.Errorf("introspector not initialised")
	}
	var columns []columnRow
	if err := p.db.SelectContext(ctx, &columns, columnQuery, pq.Array(p.schemas)); err != nil {
		return nil, fmt.Errorf("introspect columns: %w", err)
	}
	var fks []foreignKeyRow
	if err := p.db.SelectContext(ctx, &fks, foreignKeyQuery, pq.Array(p.schemas)); err != nil {
		return nil, fmt.Errorf("introspect foreign keys: %w", err)
	}

	byName := make(map[string]*Table)
	order := make([]string, 0)
	for _, row := range columns {
		table, ok := byName[row.TableName]
		if !ok {
			table = &Table{Name: row.TableName}
			byName[row.TableName] = table
			order = append(order, row.TableName)
		}
		table.Columns = append(table.Columns, Column{
			Name:     row.ColumnName,
			Type:     row.DataType,
			Nullable: strings.EqualFold(row.IsNullable, "YES"),
		})
	}
	for _, row := range fks {
		table, ok := byName[row.TableName]
		if !ok {
			// Constraint on a table outside the column whitelist; skip.
			continue
		}
		table.ForeignKeys = append(table.ForeignKeys, ForeignKey{
			Column:    row.ColumnName,
			RefTable:  row.RefTable,
			RefColumn: row.RefColumn,
		})
	}

	tables := make([]Table, 0, len(order))
	for _, name := range order {
		tables = append(tables, *byName[name])
	}
	return tables, nil
}
