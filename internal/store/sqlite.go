package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"credledger/internal/credential"
	"credledger/internal/hashcodec"
)

// SQLiteJournal is a Journal backed by a SQLite database. It also keeps the
// history of committed roots.
type SQLiteJournal struct {
	db *sql.DB
}

// OpenSQLite opens or creates the SQLite database at the given path and runs migrations.
func OpenSQLite(path string, busyTimeoutMs int) (*SQLiteJournal, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	if busyTimeoutMs <= 0 {
		busyTimeoutMs = 5000
	}
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=%d", path, busyTimeoutMs)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := MigrateDB(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	if err := validateSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("validate schema: %w", err)
	}

	return &SQLiteJournal{db: db}, nil
}

// Close closes the database connection.
func (j *SQLiteJournal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}

// SchemaStatus reports the applied and pending migrations.
func (j *SQLiteJournal) SchemaStatus() (*SchemaStatus, error) {
	return schemaStatus(j.db)
}

const metaHashAlgorithm = "hash_algorithm"

// HashAlgorithm returns the algorithm bound to this journal, or "" before
// the first BindAlgorithm.
func (j *SQLiteJournal) HashAlgorithm() (string, error) {
	var name string
	err := j.db.QueryRow(`SELECT value FROM meta WHERE key = ?`, metaHashAlgorithm).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get hash algorithm: %w", err)
	}
	return name, nil
}

// BindAlgorithm records name as the content hash algorithm on first use
// and rejects any other name afterwards. It implements AlgorithmBinder.
func (j *SQLiteJournal) BindAlgorithm(name string) error {
	if _, err := j.db.Exec(
		`INSERT OR IGNORE INTO meta (key, value) VALUES (?, ?)`, metaHashAlgorithm, name,
	); err != nil {
		return fmt.Errorf("bind hash algorithm: %w", err)
	}

	bound, err := j.HashAlgorithm()
	if err != nil {
		return err
	}
	if bound != name {
		return fmt.Errorf("%w: journal is %s, requested %s", ErrAlgorithmMismatch, bound, name)
	}
	return nil
}

// RecordIssue inserts a newly issued certificate.
func (j *SQLiteJournal) RecordIssue(c *credential.Certificate) error {
	_, err := j.db.Exec(`
		INSERT INTO certificates (
			certificate_id, issuer_name, issuer_origin_id, issuer_verification_url,
			recipient_name, student_id, principal_id,
			degree_type, major, graduation_date, issue_date, gpa, honors,
			content_hash, signature, issued_at_ns, schema_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Issuer.Name, c.Issuer.OriginID, c.Issuer.VerificationURL,
		c.Recipient.Name, c.Recipient.StudentID, c.Recipient.PrincipalID,
		c.Credential.DegreeType, c.Credential.Major, c.Credential.GraduationDate,
		c.Credential.IssueDate, c.Credential.GPA, c.Credential.Honors,
		c.ContentHash[:], c.Signature[:], c.IssuedAt.UnixNano(), c.SchemaVersion,
	)
	if err != nil {
		return fmt.Errorf("insert certificate: %w", err)
	}
	return nil
}

// RecordRevoke records a revocation. Re-recording is a no-op.
func (j *SQLiteJournal) RecordRevoke(id string, at time.Time) error {
	_, err := j.db.Exec(`
		INSERT OR IGNORE INTO revocations (certificate_id, revoked_at_ns)
		VALUES (?, ?)`, id, at.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert revocation: %w", err)
	}
	return nil
}

// Load returns all certificates in issue order.
func (j *SQLiteJournal) Load() ([]credential.Certificate, error) {
	rows, err := j.db.Query(`
		SELECT c.certificate_id, c.issuer_name, c.issuer_origin_id, c.issuer_verification_url,
		       c.recipient_name, c.student_id, c.principal_id,
		       c.degree_type, c.major, c.graduation_date, c.issue_date, c.gpa, c.honors,
		       c.content_hash, c.signature, c.issued_at_ns, c.schema_version,
		       r.certificate_id IS NOT NULL
		FROM certificates c
		LEFT JOIN revocations r ON r.certificate_id = c.certificate_id
		ORDER BY c.seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("query certificates: %w", err)
	}
	defer rows.Close()

	var certs []credential.Certificate
	for rows.Next() {
		var c credential.Certificate
		var contentHash, signature []byte
		var issuedAtNs int64

		if err := rows.Scan(
			&c.ID, &c.Issuer.Name, &c.Issuer.OriginID, &c.Issuer.VerificationURL,
			&c.Recipient.Name, &c.Recipient.StudentID, &c.Recipient.PrincipalID,
			&c.Credential.DegreeType, &c.Credential.Major, &c.Credential.GraduationDate,
			&c.Credential.IssueDate, &c.Credential.GPA, &c.Credential.Honors,
			&contentHash, &signature, &issuedAtNs, &c.SchemaVersion,
			&c.Revoked,
		); err != nil {
			return nil, fmt.Errorf("scan certificate: %w", err)
		}

		if c.ContentHash, err = hashcodec.FromBytes(contentHash); err != nil {
			return nil, fmt.Errorf("certificate %s content hash: %w", c.ID, err)
		}
		if c.Signature, err = hashcodec.FromBytes(signature); err != nil {
			return nil, fmt.Errorf("certificate %s signature: %w", c.ID, err)
		}
		c.IssuedAt = time.Unix(0, issuedAtNs).UTC()

		certs = append(certs, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate certificates: %w", err)
	}

	return certs, nil
}

// RevokedAt returns when a certificate was revoked, or nil if it is active.
func (j *SQLiteJournal) RevokedAt(id string) (*time.Time, error) {
	var ns int64
	err := j.db.QueryRow(`SELECT revoked_at_ns FROM revocations WHERE certificate_id = ?`, id).Scan(&ns)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get revocation: %w", err)
	}
	t := time.Unix(0, ns).UTC()
	return &t, nil
}

// RootCommitment is one published root.
type RootCommitment struct {
	ID          int64
	Root        hashcodec.Hash
	LeafCount   int
	Algorithm   string
	Signature   []byte
	PublicKey   []byte
	CommittedAt time.Time
}

// RecordRoot appends a root commitment.
func (j *SQLiteJournal) RecordRoot(rc *RootCommitment) (int64, error) {
	result, err := j.db.Exec(`
		INSERT INTO root_commitments (root, leaf_count, algorithm, signature, public_key, committed_at_ns)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rc.Root[:], rc.LeafCount, rc.Algorithm, rc.Signature, rc.PublicKey, rc.CommittedAt.UnixNano(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert root commitment: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last insert id: %w", err)
	}
	return id, nil
}

// RootHistory returns the most recent root commitments, newest first.
// A limit of zero or less returns all of them.
func (j *SQLiteJournal) RootHistory(limit int) ([]RootCommitment, error) {
	query := `
		SELECT id, root, leaf_count, algorithm, signature, public_key, committed_at_ns
		FROM root_commitments
		ORDER BY id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := j.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query root commitments: %w", err)
	}
	defer rows.Close()

	var out []RootCommitment
	for rows.Next() {
		var rc RootCommitment
		var root []byte
		var committedNs int64
		if err := rows.Scan(&rc.ID, &root, &rc.LeafCount, &rc.Algorithm, &rc.Signature, &rc.PublicKey, &committedNs); err != nil {
			return nil, fmt.Errorf("scan root commitment: %w", err)
		}
		if rc.Root, err = hashcodec.FromBytes(root); err != nil {
			return nil, fmt.Errorf("root commitment %d: %w", rc.ID, err)
		}
		rc.CommittedAt = time.Unix(0, committedNs).UTC()
		out = append(out, rc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate root commitments: %w", err)
	}

	return out, nil
}

// FindRoot returns the commitment that published root, or nil.
func (j *SQLiteJournal) FindRoot(root hashcodec.Hash) (*RootCommitment, error) {
	var rc RootCommitment
	var rootBytes []byte
	var committedNs int64

	err := j.db.QueryRow(`
		SELECT id, root, leaf_count, algorithm, signature, public_key, committed_at_ns
		FROM root_commitments WHERE root = ?
		ORDER BY id DESC LIMIT 1`, root[:],
	).Scan(&rc.ID, &rootBytes, &rc.LeafCount, &rc.Algorithm, &rc.Signature, &rc.PublicKey, &committedNs)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find root commitment: %w", err)
	}

	copy(rc.Root[:], rootBytes)
	rc.CommittedAt = time.Unix(0, committedNs).UTC()
	return &rc, nil
}
