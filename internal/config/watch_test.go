// Tests for the config file [Watcher]: events on atomic replacement, events
// for unrelated files are filtered, the polling fallback, and Close.
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func waitEvent(t *testing.T, w *Watcher, timeout time.Duration) bool {
	t.Helper()
	select {
	case <-w.Events():
		return true
	case <-time.After(timeout):
		return false
	}
}

// drainEvents discards anything already pending.
func drainEvents(w *Watcher) {
	for {
		select {
		case <-w.Events():
		case <-time.After(100 * time.Millisecond):
			return
		}
	}
}

func TestWatcher_Save(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := DefaultConfig().Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	w := NewWatcher(path)
	defer w.Close()

	cfg := DefaultConfig()
	cfg.Player.Volume = 10
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !waitEvent(t, w, 5*time.Second) {
		t.Fatal("no event after atomic save")
	}
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	writeFile(t, path, "")

	w := NewWatcher(path)
	defer w.Close()
	if w.Polling() {
		t.Skip("native watcher unavailable")
	}
	drainEvents(w)

	writeFile(t, filepath.Join(dir, "cadence.log"), "noise")
	if waitEvent(t, w, 300*time.Millisecond) {
		t.Error("event for an unrelated file")
	}
}

func TestWatcher_Polling(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	w := newWatcher(path, 20*time.Millisecond, true)
	defer w.Close()
	if !w.Polling() {
		t.Fatal("Polling() = false for a forced polling watcher")
	}

	// Appearance counts as a change.
	writeFile(t, path, "[player]\nvolume = 10\n")
	if !waitEvent(t, w, 2*time.Second) {
		t.Fatal("no event when the file appeared")
	}

	writeFile(t, path, "[player]\nvolume = 100\n")
	if !waitEvent(t, w, 2*time.Second) {
		t.Fatal("no event after the size changed")
	}

	os.Remove(path)
	if !waitEvent(t, w, 2*time.Second) {
		t.Fatal("no event after removal")
	}
}

func TestWatcher_Coalesces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	w := newWatcher(path, time.Hour, true)
	defer w.Close()

	w.notify()
	w.notify()
	w.notify()

	if !waitEvent(t, w, time.Second) {
		t.Fatal("no pending event")
	}
	if waitEvent(t, w, 50*time.Millisecond) {
		t.Error("notifications were not coalesced")
	}
}

func TestWatcher_CloseIdempotent(t *testing.T) {
	w := NewWatcher(filepath.Join(t.TempDir(), "config.toml"))
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
