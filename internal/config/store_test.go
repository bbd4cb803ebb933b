// Tests for [Store]: copies are isolated, updates validate, saves persist,
// and reloads replace the config only on success.
package config

import (
	"path/filepath"
	"sync"
	"testing"
)

func TestStore_GetReturnsCopy(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "config.toml"), nil)

	cfg := s.Get()
	cfg.Player.Volume = 1
	cfg.Player.Ignore = append(cfg.Player.Ignore, "*.tmp")

	got := s.Get()
	if got.Player.Volume != DefaultConfig().Player.Volume || len(got.Player.Ignore) != 0 {
		t.Errorf("mutating a copy changed the store: %+v", got.Player)
	}
}

func TestStore_Update(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "config.toml"), nil)

	if err := s.Update(func(c *Config) { c.Player.Volume = 90 }); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if s.Get().Player.Volume != 90 {
		t.Errorf("Volume = %d, want 90", s.Get().Player.Volume)
	}

	if err := s.Update(func(c *Config) { c.Player.Volume = 900 }); err == nil {
		t.Fatal("expected invalid update to fail")
	}
	if s.Get().Player.Volume != 90 {
		t.Errorf("invalid update applied: Volume = %d", s.Get().Player.Volume)
	}
}

func TestStore_SaveAndOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	s := NewStore(path, nil)
	s.Update(func(c *Config) { c.Player.LastFile = "/music/c.mp3" })

	if err := s.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reopened, err := OpenStore(path)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	if reopened.Get().Player.LastFile != "/music/c.mp3" {
		t.Errorf("LastFile = %q after reopen", reopened.Get().Player.LastFile)
	}
	if reopened.Path() != path {
		t.Errorf("Path = %q, want %q", reopened.Path(), path)
	}
}

func TestStore_Reload(t *testing.T) {
	path := writeConfig(t, "[log]\nlevel = \"info\"\n")
	s, err := OpenStore(path)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}

	writeFile(t, path, "[log]\nlevel = \"debug\"\n")
	prev, next, err := s.Reload()
	if err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if prev.Log.Level != "info" || next.Log.Level != "debug" {
		t.Errorf("Reload = %q -> %q, want info -> debug", prev.Log.Level, next.Log.Level)
	}
	if s.Get().Log.Level != "debug" {
		t.Errorf("store not updated: %q", s.Get().Log.Level)
	}
}

func TestStore_ReloadKeepsConfigOnError(t *testing.T) {
	path := writeConfig(t, "[player]\nvolume = 33\n")
	s, err := OpenStore(path)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}

	writeFile(t, path, "[player\n")
	if _, _, err := s.Reload(); err == nil {
		t.Fatal("expected reload of malformed file to fail")
	}
	if s.Get().Player.Volume != 33 {
		t.Errorf("Volume = %d after failed reload, want 33", s.Get().Player.Volume)
	}
}

func TestStore_ConcurrentSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	s := NewStore(path, nil)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.Update(func(c *Config) { c.Player.Volume = i })
		}()
		go func() {
			defer wg.Done()
			if err := s.Save(); err != nil {
				t.Errorf("Save: %v", err)
			}
		}()
	}
	wg.Wait()

	if _, err := Load(path); err != nil {
		t.Fatalf("saved file does not load: %v", err)
	}
}
