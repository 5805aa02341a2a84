package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Migration represents a database schema migration.
type Migration struct {
	Version     int
	Description string
	Up          string
}

// migrations contains all database migrations in order.
var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema with certificates and revocations",
		Up:          migrationV1Up,
	},
	{
		Version:     2,
		Description: "Add root_commitments table for published roots",
		Up:          migrationV2Up,
	},
	{
		Version:     3,
		Description: "Add meta table recording the content hash algorithm",
		Up:          migrationV3Up,
	},
}

const migrationV1Up = `
CREATE TABLE IF NOT EXISTS certificates (
    seq                     INTEGER PRIMARY KEY AUTOINCREMENT,
    certificate_id          TEXT NOT NULL UNIQUE,
    issuer_name             TEXT NOT NULL,
    issuer_origin_id        TEXT NOT NULL,
    issuer_verification_url TEXT NOT NULL,
    recipient_name          TEXT NOT NULL,
    student_id              TEXT NOT NULL,
    principal_id            TEXT NOT NULL,
    degree_type             TEXT NOT NULL,
    major                   TEXT NOT NULL,
    graduation_date         TEXT NOT NULL,
    issue_date              TEXT NOT NULL,
    gpa                     REAL NOT NULL,
    honors                  TEXT NOT NULL,
    content_hash            BLOB NOT NULL,
    signature               BLOB NOT NULL,
    issued_at_ns            INTEGER NOT NULL,
    schema_version          TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_certificates_student ON certificates(student_id);
CREATE INDEX IF NOT EXISTS idx_certificates_issuer ON certificates(issuer_name);

CREATE TABLE IF NOT EXISTS revocations (
    certificate_id  TEXT PRIMARY KEY REFERENCES certificates(certificate_id),
    revoked_at_ns   INTEGER NOT NULL
);
`

const migrationV2Up = `
CREATE TABLE IF NOT EXISTS root_commitments (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    root            BLOB NOT NULL,
    leaf_count      INTEGER NOT NULL,
    algorithm       TEXT NOT NULL,
    signature       BLOB,
    public_key      BLOB,
    committed_at_ns INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_root_commitments_root ON root_commitments(root);
`

const migrationV3Up = `
CREATE TABLE IF NOT EXISTS meta (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

// MigrateDB applies all pending migrations to the database.
func MigrateDB(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version     INTEGER PRIMARY KEY,
			applied_at  INTEGER NOT NULL,
			description TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	var currentVersion int
	err = db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("get current version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= currentVersion {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction for migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.Up); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, applied_at, description) VALUES (?, ?, ?)",
			m.Version, time.Now().UnixNano(), m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// SchemaStatus describes the applied and pending migrations of a journal.
type SchemaStatus struct {
	Version int
	Latest  int
	Applied []AppliedMigration
	Pending []Migration
}

// AppliedMigration is one row of schema_migrations.
type AppliedMigration struct {
	Version     int
	AppliedAt   time.Time
	Description string
}

// UpToDate reports whether no migration is pending.
func (st *SchemaStatus) UpToDate() bool {
	return len(st.Pending) == 0
}

func schemaStatus(db *sql.DB) (*SchemaStatus, error) {
	st := &SchemaStatus{Latest: migrations[len(migrations)-1].Version}

	rows, err := db.Query("SELECT version, applied_at, description FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("query migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var am AppliedMigration
		var appliedAtNs int64
		if err := rows.Scan(&am.Version, &appliedAtNs, &am.Description); err != nil {
			return nil, fmt.Errorf("scan migration: %w", err)
		}
		am.AppliedAt = time.Unix(0, appliedAtNs).UTC()
		st.Applied = append(st.Applied, am)
		applied[am.Version] = true
		st.Version = max(st.Version, am.Version)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate migrations: %w", err)
	}

	for _, m := range migrations {
		if !applied[m.Version] {
			st.Pending = append(st.Pending, m)
		}
	}
	return st, nil
}

// requiredTables must exist once every migration has run.
var requiredTables = []string{
	"certificates",
	"revocations",
	"root_commitments",
	"meta",
	"schema_migrations",
}

func validateSchema(db *sql.DB) error {
	for _, table := range requiredTables {
		var n int
		err := db.QueryRow(
			"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table,
		).Scan(&n)
		if err != nil {
			return fmt.Errorf("check table %s: %w", table, err)
		}
		if n == 0 {
			return fmt.Errorf("missing required table: %s", table)
		}
	}
	return nil
}
