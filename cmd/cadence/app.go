package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	rootpkg "tools.zach/dev/cadence"
	"tools.zach/dev/cadence/internal/config"
	"tools.zach/dev/cadence/internal/fault"
	"tools.zach/dev/cadence/internal/logger"
	"tools.zach/dev/cadence/internal/mainloop"
	"tools.zach/dev/cadence/internal/paths"
	"tools.zach/dev/cadence/internal/signals"
)

// reportURL is where crash reports direct users.
const reportURL = "https://bugs.tools.zach.dev/cadence"

// ///////////////////////////////////////////////
// App
// ///////////////////////////////////////////////

// app wires the player's subsystems together. Everything that touches
// player state runs on the main loop; other goroutines hand work to it
// through the QueuedFunc handles.
type app struct {
	dir    paths.DataDir
	stderr io.Writer

	store     *config.Store
	level     *slog.LevelVar
	log       *slog.Logger
	logCloser io.Closer

	reporter *fault.Reporter
	sigs     *signals.Service
	watcher  *config.Watcher
	// stopWatch ends the goroutine forwarding watcher events.
	stopWatch chan struct{}
	watchDone chan struct{}

	// quitFunc posts the loop quit requested by a signal.
	quitFunc *mainloop.QueuedFunc
	// reloadFunc applies a changed config file.
	reloadFunc *mainloop.QueuedFunc
	// autosave periodically persists the player state.
	autosave *mainloop.QueuedFunc

	pidToken string
	pidFile  *os.File

	// inhibit stops all deferred callbacks at shutdown. Replaced in tests,
	// where the process-wide latch would leak into later tests.
	inhibit func()
}

// newApp loads the configuration and opens the log. It starts no
// goroutines, so signal setup in [app.start] still precedes every worker.
func newApp(dir paths.DataDir, stderr io.Writer) (*app, error) {
	if wrote, err := config.WriteDefault(dir.Config(), rootpkg.DefaultConfigTOML); err != nil {
		fmt.Fprintf(stderr, "warning: %v\n", err)
	} else if wrote {
		fmt.Fprintf(stderr, "wrote default config to %s\n", dir.Config())
	}

	store, err := config.OpenStore(dir.Config())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg := store.Get()

	level := new(slog.LevelVar)
	level.Set(cfg.LogLevel())

	var console io.Writer
	if cfg.Log.Console {
		console = stderr
	}
	log, closer, err := logger.NewLogger(logger.Options{
		Path:      dir.Log(),
		Level:     level,
		MaxSizeMB: cfg.Log.MaxSizeMB,
		Console:   console,
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &app{
		dir:       dir,
		stderr:    stderr,
		store:     store,
		level:     level,
		log:       log,
		logCloser: closer,
		inhibit:   mainloop.InhibitAll,
	}
	a.reporter = &fault.Reporter{
		Out:       stderr,
		AppName:   paths.BinaryName,
		Version:   resolveVersion(),
		BuildID:   resolveBuildID(),
		ReportURL: reportURL,
		Log:       log,
		Save:      store.Save,
	}
	return a, nil
}

// start brings up signal handling first, then the single-instance lock,
// the config watcher and autosave.
func (a *app) start(ctx context.Context) error {
	slog.SetDefault(a.log)
	cfg := a.store.Get()

	backend := mainloop.Default()
	a.quitFunc = mainloop.NewQueuedFunc(backend)
	a.reloadFunc = mainloop.NewQueuedFunc(backend)
	a.autosave = mainloop.NewQueuedFunc(backend)

	sigs, err := signals.Start(ctx, signals.Options{
		Mode:         cfg.Signals.Mode,
		PollInterval: cfg.PollInterval(),
		Out:          a.stderr,
		Dispatcher: &signals.Dispatcher{
			Out:   a.stderr,
			Name:  paths.BinaryName,
			Quit:  a.requestQuit,
			Fault: a.reporter.Report,
		},
	})
	if err != nil {
		return fmt.Errorf("start signal handling: %w", err)
	}
	a.sigs = sigs

	a.log.Info("cadence starting",
		"version", a.reporter.Version,
		"buildid", a.reporter.BuildID,
		"data_dir", a.dir.Root,
		"signal_mode", sigs.Mode().String())

	a.pidToken = pidToken()
	f, err := writePID(a.dir, a.pidToken)
	if err != nil {
		return err
	}
	a.pidFile = f

	a.watcher = config.NewWatcher(a.dir.Config())
	if a.watcher.Polling() {
		a.log.Info("using polling mode for config watching")
	}
	a.stopWatch = make(chan struct{})
	a.watchDone = make(chan struct{})
	go a.forwardConfigChanges()

	a.setAutosave(cfg.AutosaveInterval())

	if file := cfg.ResumeFile(); file != "" {
		a.log.Info("resuming playback", "file", file, "volume", cfg.Player.Volume)
	}
	return nil
}

// run blocks in the main loop until a quit is requested, then shuts down.
func (a *app) run() error {
	defer fault.Guard(a.reporter)

	if err := mainloop.Run(); err != nil {
		return fmt.Errorf("main loop: %w", err)
	}
	a.shutdown()
	return nil
}

// requestQuit is the shutdown routine handed to the signal dispatcher. It
// runs on the signal goroutine and defers the actual quit to the main loop.
func (a *app) requestQuit() {
	a.quitFunc.Queue(mainloop.Quit)
}

// forwardConfigChanges runs on its own goroutine and queues a reload on the
// main loop for every change notification.
func (a *app) forwardConfigChanges() {
	defer close(a.watchDone)
	defer fault.Guard(a.reporter)
	for {
		select {
		case <-a.stopWatch:
			return
		case <-a.watcher.Events():
			a.reloadFunc.Queue(a.applyReload)
		}
	}
}

// applyReload re-reads the config file. Runs on the main loop.
func (a *app) applyReload() {
	prev, next, err := a.store.Reload()
	if err != nil {
		a.log.Warn("ignoring invalid config change", "error", err)
		return
	}

	if prev.Log.Level != next.Log.Level {
		a.level.Set(next.LogLevel())
		a.log.Info("log level changed", "level", next.Log.Level)
	}
	if prev.AutosaveInterval() != next.AutosaveInterval() {
		a.setAutosave(next.AutosaveInterval())
	}
	if prev.Signals != next.Signals {
		a.log.Info("signal settings change on next start", "mode", next.Signals.Mode)
	}
	logger.Trace(a.log, "config reloaded", "path", a.store.Path())
}

// setAutosave (re)starts the periodic save, or stops it for d == 0.
func (a *app) setAutosave(d time.Duration) {
	if d <= 0 {
		a.autosave.Stop()
		a.log.Info("autosave disabled")
		return
	}
	a.autosave.Start(d, a.save)
	a.log.Debug("autosave scheduled", "interval", d)
}

func (a *app) save() {
	if err := a.store.Save(); err != nil {
		a.log.Error("failed to save state", "error", err)
	}
}

// shutdown runs after the main loop returns. No deferred callback fires
// once it begins.
func (a *app) shutdown() {
	a.inhibit()
	a.log.Info("shutting down")

	if a.stopWatch != nil {
		close(a.stopWatch)
		<-a.watchDone
		a.watcher.Close()
	}
	for _, q := range []*mainloop.QueuedFunc{a.autosave, a.reloadFunc, a.quitFunc} {
		if q != nil {
			q.Close()
		}
	}

	a.save()

	if a.pidFile != nil {
		removePID(a.dir, a.pidToken, a.pidFile)
		a.pidFile = nil
	}
	a.logCloser.Close()
}

// close releases what [app.start] acquired without running the main loop.
// Signal handling is restored to the defaults.
func (a *app) close() {
	if a.sigs != nil {
		a.sigs.Close()
		a.sigs = nil
	}
	a.shutdown()
}
