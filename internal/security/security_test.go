package security

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"testing"
)

// =============================================================================
// File Security Tests
// =============================================================================

func TestWriteSecureFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "proof.json")
	data := []byte(`{"leaf":"abc"}`)

	if err := WriteSecureFile(path, data, PermSecretFile); err != nil {
		t.Fatalf("WriteSecureFile failed: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != string(data) {
		t.Errorf("content mismatch: %q", got)
	}

	if runtime.GOOS != "windows" {
		info, _ := os.Stat(path)
		if info.Mode().Perm() != PermSecretFile {
			t.Errorf("expected mode %04o, got %04o", PermSecretFile, info.Mode().Perm())
		}
	}

	// No temp files left behind
	entries, _ := os.ReadDir(filepath.Dir(path))
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp.") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestWriteSecureFileOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "root.json")

	if err := WriteSecureFile(path, []byte("old"), PermPublicFile); err != nil {
		t.Fatal(err)
	}
	if err := WriteSecureFile(path, []byte("new"), PermPublicFile); err != nil {
		t.Fatal(err)
	}

	got, _ := os.ReadFile(path)
	if string(got) != "new" {
		t.Errorf("expected overwritten content, got %q", got)
	}
}

func TestReadSecureFile(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permissions only")
	}

	dir := t.TempDir()
	private := filepath.Join(dir, "key")
	if err := os.WriteFile(private, []byte("seed"), 0600); err != nil {
		t.Fatal(err)
	}

	data, err := ReadSecureFile(private, 1024)
	if err != nil {
		t.Fatalf("ReadSecureFile failed: %v", err)
	}
	if string(data) != "seed" {
		t.Errorf("unexpected content %q", data)
	}

	if _, err := ReadSecureFile(private, 2); !errors.Is(err, ErrFileTooLarge) {
		t.Errorf("expected ErrFileTooLarge, got %v", err)
	}

	open := filepath.Join(dir, "open")
	if err := os.WriteFile(open, []byte("seed"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(open, 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadSecureFile(open, 0); !errors.Is(err, ErrInsecurePermissions) {
		t.Errorf("expected ErrInsecurePermissions, got %v", err)
	}
}

func TestEnsureSecureDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")

	if err := EnsureSecureDir(dir); err != nil {
		t.Fatalf("EnsureSecureDir failed: %v", err)
	}

	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		t.Fatalf("directory not created: %v", err)
	}

	if runtime.GOOS != "windows" {
		if err := os.Chmod(dir, 0755); err != nil {
			t.Fatal(err)
		}
		if err := EnsureSecureDir(dir); err != nil {
			t.Fatal(err)
		}
		info, _ = os.Stat(dir)
		if info.Mode().Perm() != PermSecretDir {
			t.Errorf("permissions not tightened: %04o", info.Mode().Perm())
		}
	}

	file := filepath.Join(dir, "file")
	os.WriteFile(file, nil, 0600)
	if err := EnsureSecureDir(file); !errors.Is(err, ErrNotDirectory) {
		t.Errorf("expected ErrNotDirectory, got %v", err)
	}
}

// =============================================================================
// Directory Lock Tests
// =============================================================================

func TestLockDir(t *testing.T) {
	dir := t.TempDir()

	lock, err := LockDir(dir)
	if err != nil {
		t.Fatalf("LockDir failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, LockFileName))
	if err != nil {
		t.Fatalf("read lock file: %v", err)
	}
	if strings.TrimSpace(string(data)) != strconv.Itoa(os.Getpid()) {
		t.Errorf("lock file should hold pid, got %q", data)
	}

	if runtime.GOOS == "linux" || runtime.GOOS == "darwin" {
		if _, err := LockDir(dir); !errors.Is(err, ErrLocked) {
			t.Errorf("expected ErrLocked for second lock, got %v", err)
		}
	}

	if err := lock.Unlock(); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
	if err := lock.Unlock(); err != nil {
		t.Errorf("second Unlock should be a no-op: %v", err)
	}

	relock, err := LockDir(dir)
	if err != nil {
		t.Fatalf("relock after unlock failed: %v", err)
	}
	relock.Unlock()
}

func TestLockDirCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "fresh", "data")

	lock, err := LockDir(dir)
	if err != nil {
		t.Fatalf("LockDir failed: %v", err)
	}
	defer lock.Unlock()

	if _, err := os.Stat(filepath.Join(dir, LockFileName)); err != nil {
		t.Errorf("lock file missing: %v", err)
	}
}
