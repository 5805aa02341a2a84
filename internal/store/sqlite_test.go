package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"credledger/internal/credential"
	"credledger/internal/hashcodec"
)

func openTestJournal(t *testing.T) *SQLiteJournal {
	t.Helper()
	j, err := OpenSQLite(filepath.Join(t.TempDir(), "credledger.db"), 0)
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestOpenSQLiteCreatesDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "subdir", "nested", "test.db")

	j, err := OpenSQLite(dbPath, 1000)
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	defer j.Close()

	if err := validateSchema(j.db); err != nil {
		t.Errorf("schema invalid: %v", err)
	}
}

func TestCloseNilDB(t *testing.T) {
	j := &SQLiteJournal{db: nil}
	if err := j.Close(); err != nil {
		t.Errorf("Close on nil db should not error: %v", err)
	}
}

func TestSQLiteJournalRoundTrip(t *testing.T) {
	j := openTestJournal(t)

	s, err := Open(hashcodec.SHA256{}, j)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	for _, c := range []credential.Certificate{
		testCert("cert-b", "s1", "MIT"),
		testCert("cert-a", "s2", "Stanford"),
	} {
		if _, err := s.Issue(c); err != nil {
			t.Fatalf("Issue failed: %v", err)
		}
	}
	if _, err := s.Revoke("cert-a"); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}

	reopened, err := Open(hashcodec.SHA256{}, j)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}

	if reopened.Count() != 2 {
		t.Fatalf("expected 2 certificates, got %d", reopened.Count())
	}

	all := reopened.All()
	if all[0].ID != "cert-b" || all[1].ID != "cert-a" {
		t.Errorf("issue order not preserved: %s, %s", all[0].ID, all[1].ID)
	}

	orig, _ := s.Get("cert-b")
	got, _ := reopened.Get("cert-b")
	if got.ContentHash != orig.ContentHash || got.Signature != orig.Signature {
		t.Error("hashes changed across reload")
	}
	if got.Credential.GPA != 3.8 || got.Credential.Honors != "cum laude" {
		t.Errorf("credential details lost: %+v", got.Credential)
	}
	if !got.IssuedAt.Equal(orig.IssuedAt) {
		t.Errorf("issued_at mismatch: %v vs %v", got.IssuedAt, orig.IssuedAt)
	}

	revoked, _ := reopened.Get("cert-a")
	if !revoked.Revoked {
		t.Error("revocation lost across reload")
	}

	at, err := j.RevokedAt("cert-a")
	if err != nil || at == nil {
		t.Errorf("expected revocation timestamp, got %v, %v", at, err)
	}
	at, err = j.RevokedAt("cert-b")
	if err != nil || at != nil {
		t.Errorf("expected no revocation timestamp, got %v, %v", at, err)
	}
}

func TestSQLiteJournalTamperSurfacesOnReload(t *testing.T) {
	j := openTestJournal(t)

	s, err := Open(hashcodec.SHA256{}, j)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, err := s.Issue(testCert("cert-1", "s1", "MIT")); err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	if _, err := j.db.Exec(`UPDATE certificates SET major = 'Forgery' WHERE certificate_id = ?`, "cert-1"); err != nil {
		t.Fatalf("tamper failed: %v", err)
	}

	reopened, err := Open(hashcodec.SHA256{}, j)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}

	got, _ := reopened.Get("cert-1")
	if got.ComputeHash(hashcodec.SHA256{}) == got.ContentHash {
		t.Error("tampered field should no longer match stored hash")
	}
}

func TestSQLiteRootCommitments(t *testing.T) {
	j := openTestJournal(t)
	codec := hashcodec.SHA256{}

	for i := 0; i < 3; i++ {
		rc := &RootCommitment{
			Root:        codec.Hash([]byte{byte(i)}),
			LeafCount:   i + 1,
			Algorithm:   codec.Name(),
			CommittedAt: time.Now(),
		}
		if _, err := j.RecordRoot(rc); err != nil {
			t.Fatalf("RecordRoot failed: %v", err)
		}
	}

	history, err := j.RootHistory(2)
	if err != nil {
		t.Fatalf("RootHistory failed: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 commitments, got %d", len(history))
	}
	if history[0].LeafCount != 3 {
		t.Errorf("expected newest first, got leaf count %d", history[0].LeafCount)
	}
	if history[0].Signature != nil {
		t.Error("unsigned commitment should have nil signature")
	}

	all, err := j.RootHistory(0)
	if err != nil || len(all) != 3 {
		t.Errorf("expected 3 commitments, got %d (%v)", len(all), err)
	}

	found, err := j.FindRoot(codec.Hash([]byte{1}))
	if err != nil || found == nil {
		t.Fatalf("FindRoot failed: %v", err)
	}
	if found.LeafCount != 2 {
		t.Errorf("expected leaf count 2, got %d", found.LeafCount)
	}

	missing, err := j.FindRoot(codec.Hash([]byte("never")))
	if err != nil || missing != nil {
		t.Errorf("expected nil for unknown root, got %v, %v", missing, err)
	}
}

func TestSchemaStatus(t *testing.T) {
	j := openTestJournal(t)

	status, err := j.SchemaStatus()
	if err != nil {
		t.Fatalf("SchemaStatus failed: %v", err)
	}
	if !status.UpToDate() {
		t.Errorf("expected no pending migrations, got %d", len(status.Pending))
	}
	if status.Version != 3 || status.Latest != 3 {
		t.Errorf("expected version 3 of 3, got %d of %d", status.Version, status.Latest)
	}
	if len(status.Applied) != 3 || status.Applied[2].Description == "" {
		t.Errorf("unexpected applied migrations: %+v", status.Applied)
	}

	if _, err := j.db.Exec(`DELETE FROM schema_migrations WHERE version = 3`); err != nil {
		t.Fatalf("delete migration row failed: %v", err)
	}
	status, err = j.SchemaStatus()
	if err != nil {
		t.Fatalf("SchemaStatus failed: %v", err)
	}
	if status.UpToDate() || len(status.Pending) != 1 || status.Pending[0].Version != 3 {
		t.Errorf("expected migration 3 pending, got %+v", status.Pending)
	}
}

func TestValidateSchemaMissingTable(t *testing.T) {
	j := openTestJournal(t)

	if _, err := j.db.Exec(`DROP TABLE meta`); err != nil {
		t.Fatalf("drop failed: %v", err)
	}
	if err := validateSchema(j.db); err == nil {
		t.Error("expected missing table error")
	}
}

func TestOpenRejectsAlgorithmChange(t *testing.T) {
	j := openTestJournal(t)

	name, err := j.HashAlgorithm()
	if err != nil || name != "" {
		t.Fatalf("expected unbound journal, got %q, %v", name, err)
	}

	s, err := Open(hashcodec.SHA256{}, j)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, err := s.Issue(testCert("cert-1", "s1", "MIT")); err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	name, err = j.HashAlgorithm()
	if err != nil || name != hashcodec.AlgorithmSHA256 {
		t.Fatalf("expected %s bound, got %q, %v", hashcodec.AlgorithmSHA256, name, err)
	}

	_, err = Open(hashcodec.BLAKE2b{}, j)
	if !errors.Is(err, ErrAlgorithmMismatch) {
		t.Fatalf("expected ErrAlgorithmMismatch, got %v", err)
	}

	if _, err := Open(hashcodec.SHA256{}, j); err != nil {
		t.Errorf("reopen with bound algorithm failed: %v", err)
	}
}
