// write_test.go tests [Write] for basic correctness, replacement of an
// existing file, directory creation, concurrent writers and cleanup of temp
// files on failure.
package atomicfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func assertNoTemp(t *testing.T, dir string) {
	t.Helper()
	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp.") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestWriteBasic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	if err := Write(path, []byte("[player]\nvolume = 70\n"), 0o644); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(got) != "[player]\nvolume = 70\n" {
		t.Fatalf("got %q", got)
	}
	assertNoTemp(t, dir)
}

func TestWriteOverwriteExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overwrite.txt")

	if err := Write(path, []byte("original contents"), 0o644); err != nil {
		t.Fatalf("first Write failed: %v", err)
	}
	if err := Write(path, []byte("new"), 0o644); err != nil {
		t.Fatalf("second Write failed: %v", err)
	}

	got, _ := os.ReadFile(path)
	if string(got) != "new" {
		t.Errorf("content = %q, want %q", got, "new")
	}
}

func TestWriteCreatesParents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "state.toml")

	if err := Write(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("Stat: %v", err)
	}
}

func TestWritePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "perms.txt")

	if err := Write(path, []byte("secret"), 0o600); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	// Windows only reports the read-only bit, so check owner rw alone.
	if info.Mode().Perm()&0o600 != 0o600 {
		t.Errorf("permissions = %o, expected owner rw", info.Mode().Perm())
	}
}

func TestWriteConcurrent(t *testing.T) {
	dir := t.TempDir()
	const n = 20

	// Distinct targets: Windows refuses to rename over a file another
	// writer holds open.
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			path := filepath.Join(dir, fmt.Sprintf("file-%02d", i))
			if err := Write(path, []byte(fmt.Sprintf("writer-%d", i)), 0o644); err != nil {
				t.Errorf("concurrent Write %d failed: %v", i, err)
			}
		}()
	}
	wg.Wait()

	for i := range n {
		got, err := os.ReadFile(filepath.Join(dir, fmt.Sprintf("file-%02d", i)))
		if err != nil {
			t.Errorf("ReadFile %d: %v", i, err)
			continue
		}
		if want := fmt.Sprintf("writer-%d", i); string(got) != want {
			t.Errorf("file %d: got %q, want %q", i, got, want)
		}
	}
	assertNoTemp(t, dir)
}

func TestWriteCleanupOnFailure(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "target")
	if err := os.Mkdir(target, 0o755); err != nil {
		t.Fatal(err)
	}
	// A non-empty directory cannot be replaced by a file, so the rename fails.
	if err := os.WriteFile(filepath.Join(target, "keep"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	if err := Write(target, []byte("data"), 0o644); err == nil {
		t.Fatal("expected error replacing a directory")
	}
	assertNoTemp(t, dir)

	if info, err := os.Stat(target); err != nil || !info.IsDir() {
		t.Error("failed write disturbed the existing target")
	}
}

func TestWriteParentIsFile(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := Write(filepath.Join(blocker, "file.txt"), []byte("x"), 0o644); err == nil {
		t.Fatal("expected error when the parent is a regular file")
	}
}
