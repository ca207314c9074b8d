package bigquery

import (
	"context"
	"crypto/sha256"
	"embed"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// Migration represents a single migration file
type Migration struct {
	Version  int
	Name     string
	Filename string
	SQL      string
	Checksum string
}

// AppliedMigration represents a migration that has already been applied
type AppliedMigration struct {
	Version   int
	Name      string
	AppliedAt time.Time
	Checksum  string
	AppliedBy string
}

// Pattern to match migration files: 0001_name.sql
var migrationPattern = regexp.MustCompile(`^(\d{4})_(.+)\.sql$`)

// ParseMigrationName splits "0001_name.sql" into its version and name.
func ParseMigrationName(filename string) (int, string, bool) {
	m := migrationPattern.FindStringSubmatch(filename)
	if m == nil {
		return 0, "", false
	}
	version, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, "", false
	}
	return version, m[2], true
}

// LoadMigrations reads the *.sql files of dir in fsys, substitutes the
// target placeholders and sorts them by version. The checksum is taken
// before substitution so it tracks the migration, not its target.
func LoadMigrations(fsys fs.FS, dir, projectID, datasetID, tableID string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("reading migrations directory: %w", err)
	}

	replacer := strings.NewReplacer(
		"{{PROJECT_ID}}", projectID,
		"{{DATASET_ID}}", datasetID,
		"{{TABLE_ID}}", tableID,
	)

	var migrations []Migration
	seen := make(map[int]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version, name, ok := ParseMigrationName(entry.Name())
		if !ok {
			continue
		}
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("duplicate migration version %04d: %s and %s", version, prev, entry.Name())
		}
		seen[version] = entry.Name()

		content, err := fs.ReadFile(fsys, dir+"/"+entry.Name())
		if err != nil {
			return nil, fmt.Errorf("reading file %s: %w", entry.Name(), err)
		}

		migrations = append(migrations, Migration{
			Version:  version,
			Name:     name,
			Filename: entry.Name(),
			SQL:      replacer.Replace(string(content)),
			Checksum: fmt.Sprintf("%x", sha256.Sum256(content)),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// Migrator applies the embedded archive migrations to one dataset.
type Migrator struct {
	client    *bigquery.Client
	projectID string
	datasetID string
	tableID   string
	appliedBy string
}

// NewMigrator wraps an existing client. The caller closes it.
func NewMigrator(client *bigquery.Client, projectID, datasetID, tableID, appliedBy string) *Migrator {
	if tableID == "" {
		tableID = DefaultTable
	}
	return &Migrator{client: client, projectID: projectID, datasetID: datasetID, tableID: tableID, appliedBy: appliedBy}
}

// Pending returns the embedded migrations not yet recorded in schema_migrations.
func (m *Migrator) Pending(ctx context.Context) ([]Migration, error) {
	if err := m.ensureSchemaMigrationsTable(ctx); err != nil {
		return nil, fmt.Errorf("Pending: %w", err)
	}

	migrations, err := LoadMigrations(embeddedMigrations, "migrations", m.projectID, m.datasetID, m.tableID)
	if err != nil {
		return nil, fmt.Errorf("Pending: %w", err)
	}

	applied, err := m.applied(ctx)
	if err != nil {
		return nil, fmt.Errorf("Pending: %w", err)
	}
	done := make(map[int]bool, len(applied))
	for _, am := range applied {
		done[am.Version] = true
	}

	var pending []Migration
	for _, mg := range migrations {
		if !done[mg.Version] {
			pending = append(pending, mg)
		}
	}
	return pending, nil
}

// Apply runs one migration and records it.
func (m *Migrator) Apply(ctx context.Context, mg Migration) error {
	if err := m.exec(ctx, mg.SQL, nil); err != nil {
		return fmt.Errorf("Apply %04d_%s: %w", mg.Version, mg.Name, err)
	}

	record := fmt.Sprintf(`
		INSERT INTO `+"`%s.%s.schema_migrations`"+`
		(version, name, applied_at, checksum, applied_by)
		VALUES (@version, @name, CURRENT_TIMESTAMP(), @checksum, @applied_by)
	`, m.projectID, m.datasetID)

	err := m.exec(ctx, record, []bigquery.QueryParameter{
		{Name: "version", Value: mg.Version},
		{Name: "name", Value: mg.Name},
		{Name: "checksum", Value: mg.Checksum},
		{Name: "applied_by", Value: m.appliedBy},
	})
	if err != nil {
		return fmt.Errorf("Apply: recording %04d_%s: %w", mg.Version, mg.Name, err)
	}
	return nil
}

func (m *Migrator) ensureSchemaMigrationsTable(ctx context.Context) error {
	sql := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS `+"`%s.%s.schema_migrations`"+` (
			version       INT64 NOT NULL,
			name          STRING NOT NULL,
			applied_at    TIMESTAMP NOT NULL,
			checksum      STRING,
			applied_by    STRING
		)
	`, m.projectID, m.datasetID)
	return m.exec(ctx, sql, nil)
}

func (m *Migrator) applied(ctx context.Context) ([]AppliedMigration, error) {
	sql := fmt.Sprintf(`
		SELECT version, name, applied_at, checksum, applied_by
		FROM `+"`%s.%s.schema_migrations`"+`
		ORDER BY version ASC
	`, m.projectID, m.datasetID)

	it, err := m.client.Query(sql).Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading applied migrations: %w", err)
	}

	var applied []AppliedMigration
	for {
		var row struct {
			Version   int64
			Name      string
			AppliedAt time.Time
			Checksum  bigquery.NullString
			AppliedBy bigquery.NullString
		}

		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterating results: %w", err)
		}

		applied = append(applied, AppliedMigration{
			Version:   int(row.Version),
			Name:      row.Name,
			AppliedAt: row.AppliedAt,
			Checksum:  row.Checksum.StringVal,
			AppliedBy: row.AppliedBy.StringVal,
		})
	}
	return applied, nil
}

func (m *Migrator) exec(ctx context.Context, sql string, params []bigquery.QueryParameter) error {
	q := m.client.Query(sql)
	q.Parameters = params

	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("running query: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}
	return nil
}
