package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	rootpkg "tools.zach/dev/cadence"
	"tools.zach/dev/cadence/internal/config"
	"tools.zach/dev/cadence/internal/logger"
	"tools.zach/dev/cadence/internal/mainloop"
	"tools.zach/dev/cadence/internal/paths"
)

// syncBuffer is a bytes.Buffer safe for the signal goroutine and the test
// to share.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// testConfig avoids the threading probe and keeps autosave out of the way.
const testConfig = `
[log]
level = "info"

[signals]
mode = "wait"

[behavior]
autosave_seconds = 0
`

// newTestApp builds an app in a temp data directory on a private main loop.
// The process-wide default logger and loop are restored afterwards.
func newTestApp(t *testing.T, cfg string) (*app, *syncBuffer) {
	t.Helper()

	dir := paths.DataDir{Root: t.TempDir()}
	if cfg != "" {
		if err := os.WriteFile(dir.Config(), []byte(cfg), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	origLog := slog.Default()
	loop := mainloop.NewLoop()
	mainloop.SetDefault(loop)
	t.Cleanup(func() {
		mainloop.SetDefault(nil)
		slog.SetDefault(origLog)
	})

	stderr := &syncBuffer{}
	a, err := newApp(dir, stderr)
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	a.inhibit = func() {}
	return a, stderr
}

// runApp runs the main loop in the background and returns a channel that
// receives run's result.
func runApp(a *app) <-chan error {
	done := make(chan error, 1)
	go func() { done <- a.run() }()
	return done
}

func waitRun(t *testing.T, done <-chan error) {
	t.Helper()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("main loop did not quit")
	}
}

// ///////////////////////////////////////////////
// Startup
// ///////////////////////////////////////////////

func TestNewApp_WritesDefaultConfig(t *testing.T) {
	a, stderr := newTestApp(t, "")
	defer a.logCloser.Close()

	data, err := os.ReadFile(a.dir.Config())
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(data, rootpkg.DefaultConfigTOML) {
		t.Error("first run did not write the embedded default config")
	}
	if !strings.Contains(stderr.String(), "wrote default config") {
		t.Errorf("stderr = %q", stderr.String())
	}
}

func TestDefaultConfigParses(t *testing.T) {
	cfg, err := config.Parse(rootpkg.DefaultConfigTOML)
	if err != nil {
		t.Fatalf("embedded default config does not parse: %v", err)
	}
	if cfg.Player.Volume != config.DefaultConfig().Player.Volume {
		t.Errorf("embedded volume %d differs from built-in default", cfg.Player.Volume)
	}
}

func TestNewApp_InvalidConfig(t *testing.T) {
	dir := paths.DataDir{Root: t.TempDir()}
	os.WriteFile(dir.Config(), []byte("[player]\nvolume = -3\n"), 0o644)

	if _, err := newApp(dir, &syncBuffer{}); err == nil {
		t.Fatal("expected newApp to reject an invalid config")
	}
}

// ///////////////////////////////////////////////
// Lifecycle
// ///////////////////////////////////////////////

func TestApp_Lifecycle(t *testing.T) {
	a, _ := newTestApp(t, testConfig)
	if err := a.start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer a.sigs.Close()

	if _, err := os.Stat(a.dir.PID()); err != nil {
		t.Fatalf("PID file missing after start: %v", err)
	}
	if err := a.store.Update(func(c *config.Config) { c.Player.LastFile = "/music/last.ogg" }); err != nil {
		t.Fatal(err)
	}

	done := runApp(a)
	a.requestQuit()
	waitRun(t, done)

	if _, err := os.Stat(a.dir.PID()); !os.IsNotExist(err) {
		t.Error("PID file not removed at shutdown")
	}
	saved, err := config.Load(a.dir.Config())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if saved.Player.LastFile != "/music/last.ogg" {
		t.Errorf("final save missing: LastFile = %q", saved.Player.LastFile)
	}

	tail, err := logger.ReadTail(a.dir.Log(), 20)
	if err != nil {
		t.Fatalf("ReadTail: %v", err)
	}
	for _, want := range []string{"cadence starting", "signal_mode=wait", "shutting down"} {
		if !strings.Contains(tail, want) {
			t.Errorf("log missing %q:\n%s", want, tail)
		}
	}
}

func TestApp_Autosave(t *testing.T) {
	a, _ := newTestApp(t, testConfig)
	if err := a.start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer a.sigs.Close()
	if err := a.store.Update(func(c *config.Config) { c.Player.LastFile = "/music/auto.ogg" }); err != nil {
		t.Fatal(err)
	}

	done := runApp(a)
	a.setAutosave(20 * time.Millisecond)

	deadline := time.Now().Add(5 * time.Second)
	for {
		if saved, err := config.Load(a.dir.Config()); err == nil && saved.Player.LastFile == "/music/auto.ogg" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("autosave never wrote the config")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !a.autosave.Running() {
		t.Error("autosave not running")
	}

	a.requestQuit()
	waitRun(t, done)
	if a.autosave.Running() {
		t.Error("autosave still running after shutdown")
	}
}

// ///////////////////////////////////////////////
// Reload
// ///////////////////////////////////////////////

func TestApp_ApplyReload(t *testing.T) {
	a, _ := newTestApp(t, testConfig)
	if err := a.start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer a.close()

	newCfg := strings.Replace(testConfig, `level = "info"`, `level = "debug"`, 1)
	newCfg = strings.Replace(newCfg, "autosave_seconds = 0", "autosave_seconds = 60", 1)
	if err := os.WriteFile(a.dir.Config(), []byte(newCfg), 0o644); err != nil {
		t.Fatal(err)
	}

	a.applyReload()

	if a.level.Level() != logger.LevelDebug {
		t.Errorf("log level = %v, want debug", a.level.Level())
	}
	if !a.autosave.Running() {
		t.Error("autosave not started by reload")
	}
}

func TestApp_ApplyReloadInvalidKeepsConfig(t *testing.T) {
	a, _ := newTestApp(t, testConfig)
	if err := a.start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer a.close()

	os.WriteFile(a.dir.Config(), []byte("[log]\nlevel = \"loud\"\n"), 0o644)
	a.applyReload()

	if a.level.Level() != logger.LevelInfo {
		t.Errorf("log level = %v after invalid reload, want info", a.level.Level())
	}
	if a.store.Get().Log.Level != "info" {
		t.Errorf("store level = %q", a.store.Get().Log.Level)
	}
}

func TestApp_WatcherQueuesReload(t *testing.T) {
	a, _ := newTestApp(t, testConfig)
	if err := a.start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer a.sigs.Close()
	done := runApp(a)

	cfg := a.store.Get()
	cfg.Log.Level = "warn"
	if err := cfg.Save(filepath.Join(a.dir.Root, paths.ConfigFile)); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(10 * time.Second)
	for a.level.Level() != logger.LevelWarn {
		if time.Now().After(deadline) {
			t.Fatal("config change was not applied")
		}
		time.Sleep(20 * time.Millisecond)
	}

	a.requestQuit()
	waitRun(t, done)
}
