// File path: internal/schema/manifest_test.go
package schema

import "testing"

func sampleTables() []Table {
	return []Table{
		{
			Name: "reports",
			Columns: []Column{
				{Name: "id", Type: "integer"},
				{Name: "patient_id", Type: "integer"},
				{Name: "body", Type: "text", Nullable: true},
			},
			ForeignKeys: []ForeignKey{
				{Column: "patient_id", RefTable: "patients", RefColumn: "id"},
			},
		},
		{
			Name: "patients",
			Columns: []Column{
				{Name: "id", Type: "integer"},
				{Name: "full_name", Type: "text"},
			},
		},
	}
}

func TestNewManifestCanonicalOrder(t *testing.T) {
	manifest := NewManifest(sampleTables())
	names := manifest.TableNames()
	if len(names) != 2 {
		t.Fatalf("expected 2 tables, got %d", len(names))
	}
	if names[0] != "patients" || names[1] != "reports" {
		t.Fatalf("tables not in canonical order: %v", names)
	}
}

func TestNewManifestHashIgnoresInputOrder(t *testing.T) {
	tables := sampleTables()
	forward := NewManifest(tables)
	reversed := NewManifest([]Table{tables[1], tables[0]})
	if forward.SnapshotID != reversed.SnapshotID {
		t.Fatalf("snapshot id depends on input order: %s vs %s", forward.SnapshotID, reversed.SnapshotID)
	}
	if forward.SnapshotID == "" {
		t.Fatal("expected non-empty snapshot id")
	}
}

func TestNewManifestHashChangesWithContent(t *testing.T) {
	base := NewManifest(sampleTables())
	altered := sampleTables()
	altered[0].Columns = append(altered[0].Columns, Column{Name: "created_at", Type: "timestamptz"})
	changed := NewManifest(altered)
	if base.SnapshotID == changed.SnapshotID {
		t.Fatal("snapshot id did not change with schema content")
	}
}

func TestNewManifestLeavesInputUntouched(t *testing.T) {
	tables := []Table{
		{
			Name:    "lab_tests",
			Columns: []Column{{Name: "id", Type: "integer"}},
			ForeignKeys: []ForeignKey{
				{Column: "report_id", RefTable: "reports", RefColumn: "id"},
				{Column: "patient_id", RefTable: "patients", RefColumn: "id"},
			},
		},
	}
	NewManifest(tables)
	if tables[0].ForeignKeys[0].Column != "report_id" {
		t.Fatalf("caller's foreign keys reordered in place: %+v", tables[0].ForeignKeys)
	}
}

func TestManifestTableLookupCaseInsensitive(t *testing.T) {
	manifest := NewManifest(sampleTables())
	table, ok := manifest.Table("PATIENTS")
	if !ok {
		t.Fatal("expected case-insensitive match for PATIENTS")
	}
	if table.Name != "patients" {
		t.Fatalf("unexpected table %q", table.Name)
	}
	if _, ok := manifest.Table("missing"); ok {
		t.Fatal("expected no match for unknown table")
	}
}

func TestNilManifestAccessors(t *testing.T) {
	var manifest *Manifest
	if _, ok := manifest.Table("patients"); ok {
		t.Fatal("nil manifest should never match")
	}
	if names := manifest.TableNames(); names != nil {
		t.Fatalf("nil manifest returned names: %v", names)
	}
}
