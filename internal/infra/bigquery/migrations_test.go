package bigquery

import (
	"strings"
	"testing"
	"testing/fstest"
)

func TestParseMigrationName(t *testing.T) {
	tests := []struct {
		filename string
		valid    bool
		version  int
		name     string
	}{
		{"0001_create_sync_runs.sql", true, 1, "create_sync_runs"},
		{"0012_add_view.sql", true, 12, "add_view"},
		{"001_invalid.sql", false, 0, ""},
		{"0001_test", false, 0, ""},
		{"0001.sql", false, 0, ""},
		{"invalid_0001_test.sql", false, 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			version, name, ok := ParseMigrationName(tt.filename)
			if ok != tt.valid || version != tt.version || name != tt.name {
				t.Errorf("ParseMigrationName(%q) = %d, %q, %v; want %d, %q, %v",
					tt.filename, version, name, ok, tt.version, tt.name, tt.valid)
			}
		})
	}
}

func TestLoadMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"m/0002_second.sql": {Data: []byte("SELECT 2 FROM `{{PROJECT_ID}}.{{DATASET_ID}}.{{TABLE_ID}}`")},
		"m/0001_first.sql":  {Data: []byte("SELECT 1")},
		"m/README.md":       {Data: []byte("ignored")},
	}

	migrations, err := LoadMigrations(fsys, "m", "proj", "ds", "runs")
	if err != nil {
		t.Fatalf("LoadMigrations() error = %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("got %d migrations, want 2", len(migrations))
	}
	if migrations[0].Version != 1 || migrations[1].Version != 2 {
		t.Errorf("migrations not sorted: %d, %d", migrations[0].Version, migrations[1].Version)
	}
	if migrations[1].SQL != "SELECT 2 FROM `proj.ds.runs`" {
		t.Errorf("placeholders not substituted: %s", migrations[1].SQL)
	}

	// checksum ignores the target
	other, err := LoadMigrations(fsys, "m", "other", "other", "other")
	if err != nil {
		t.Fatalf("LoadMigrations() error = %v", err)
	}
	if other[1].Checksum != migrations[1].Checksum {
		t.Error("checksum should not depend on the substituted target")
	}
	if migrations[0].Checksum == migrations[1].Checksum {
		t.Error("different content should have different checksums")
	}
}

func TestLoadMigrations_DuplicateVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"m/0001_a.sql": {Data: []byte("SELECT 1")},
		"m/0001_b.sql": {Data: []byte("SELECT 2")},
	}
	if _, err := LoadMigrations(fsys, "m", "p", "d", "t"); err == nil {
		t.Error("duplicate versions should fail")
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	migrations, err := LoadMigrations(embeddedMigrations, "migrations", "proj", "ledger", "sync_runs")
	if err != nil {
		t.Fatalf("LoadMigrations() error = %v", err)
	}
	if len(migrations) == 0 || migrations[0].Name != "create_sync_runs" {
		t.Fatalf("unexpected embedded migrations: %+v", migrations)
	}
	for _, m := range migrations {
		if strings.Contains(m.SQL, "{{") {
			t.Errorf("%s has unsubstituted placeholders", m.Filename)
		}
	}
	if !strings.Contains(migrations[0].SQL, "`proj.ledger.sync_runs`") {
		t.Errorf("create statement targets the wrong table: %s", migrations[0].SQL)
	}
}
