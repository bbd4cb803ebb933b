// Package main implements the cadence media player process: configuration,
// logging, signal handling, crash reporting and the main loop that every
// deferred callback runs on.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"runtime/debug"

	"tools.zach/dev/cadence/internal/logger"
	"tools.zach/dev/cadence/internal/paths"
)

// ///////////////////////////////////////////////
// Version
// ///////////////////////////////////////////////

// version and buildID are set at build time via ldflags:
//
//	-X main.version=$(VERSION) -X main.buildID=$(git rev-parse --short HEAD)
//
// Bare go build leaves them unset and the VCS info embedded by the toolchain
// is used instead.
var (
	version = "dev"
	buildID = ""
)

// readVCS returns the embedded VCS revision and dirty flag.
var readVCS = func() (revision string, dirty bool) {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "", false
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	return revision, dirty
}

// resolveVersion returns [version] when set via ldflags, otherwise
// "dev+<hash>" with a ".dirty" suffix for modified trees.
func resolveVersion() string {
	if version != "dev" {
		return version
	}
	revision, dirty := readVCS()
	if revision == "" {
		return version
	}
	hash := revision[:min(7, len(revision))]
	if dirty {
		return "dev+" + hash + ".dirty"
	}
	return "dev+" + hash
}

// resolveBuildID returns [buildID] when set via ldflags, otherwise the full
// VCS revision, or "unknown".
func resolveBuildID() string {
	if buildID != "" {
		return buildID
	}
	if revision, _ := readVCS(); revision != "" {
		return revision
	}
	return "unknown"
}

// ///////////////////////////////////////////////
// Main
// ///////////////////////////////////////////////

func main() {
	defDir, err := paths.Default()
	if err != nil {
		defDir = paths.DataDir{Root: paths.DataDirRel}
	}

	dataDir := flag.String("data-dir", defDir.Root, "Data directory for config, logs and the PID file")
	showVersion := flag.Bool("version", false, "Print version and build id, then exit")
	logTail := flag.Int("log-tail", 0, "Print the last N lines of the log, then exit")
	flag.Parse()

	dir := paths.DataDir{Root: *dataDir}

	if *showVersion {
		fmt.Printf("%s %s (buildid: %s)\n", paths.BinaryName, resolveVersion(), resolveBuildID())
		return
	}

	if *logTail > 0 {
		tail, err := logger.ReadTail(dir.Log(), *logTail)
		if err != nil {
			fmt.Fprintf(os.Stderr, "fatal: read log: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(tail)
		return
	}

	if err := dir.Ensure(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}

	if alive, pid := checkStalePID(dir); alive {
		fmt.Fprintf(os.Stderr, "%s already running (pid %d)\n", paths.BinaryName, pid)
		os.Exit(1)
	}

	a, err := newApp(dir, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}

	if err := a.start(context.Background()); err != nil {
		a.log.Error("startup failed", "error", err)
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		a.close()
		os.Exit(1)
	}

	if err := a.run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}
