package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"

	"tools.zach/dev/cadence/internal/paths"
)

// ///////////////////////////////////////////////
// PID Management
// ///////////////////////////////////////////////

// pidToken returns a random token written next to the PID so [removePID]
// only deletes a file this instance created.
func pidToken() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// writePID creates the PID file, takes its lock and writes "PID:TOKEN". The
// returned file must stay open for the life of the process to hold the lock.
func writePID(dir paths.DataDir, token string) (*os.File, error) {
	f, err := os.OpenFile(dir.PID(), os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open PID file: %w", err)
	}
	fail := func(step string, err error) (*os.File, error) {
		_ = unlockFile(f)
		f.Close()
		return nil, fmt.Errorf("%s PID file: %w", step, err)
	}
	if err := lockFile(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("lock PID file: %w", err)
	}
	if err := f.Truncate(0); err != nil {
		return fail("truncate", err)
	}
	if _, err := f.WriteAt([]byte(fmt.Sprintf("%d:%s", os.Getpid(), token)), 0); err != nil {
		return fail("write", err)
	}
	return f, nil
}

// readPID parses a PID file's "PID:TOKEN" content.
func readPID(path string) (pid int, token string, ok bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, "", false
	}
	pidStr, token, found := strings.Cut(strings.TrimSpace(string(data)), ":")
	pid, err = strconv.Atoi(pidStr)
	if err != nil || !found {
		return pid, "", false
	}
	return pid, token, true
}

// removePID releases the lock, closes f and removes the PID file if it still
// carries token.
func removePID(dir paths.DataDir, token string, f *os.File) {
	if f != nil {
		_ = unlockFile(f)
		f.Close()
	}
	if _, got, ok := readPID(dir.PID()); ok && got == token {
		os.Remove(dir.PID())
	}
}

// checkStalePID reports whether another instance holds the PID file lock.
// A file left behind by a dead instance is removed.
func checkStalePID(dir paths.DataDir) (alive bool, pid int) {
	f, err := os.OpenFile(dir.PID(), os.O_RDWR, 0o600)
	if err != nil {
		return false, 0
	}

	if lockErr := lockFile(f); lockErr != nil {
		f.Close()
		pid, _, _ := readPID(dir.PID())
		return true, pid
	}

	_ = unlockFile(f)
	f.Close()
	os.Remove(dir.PID())
	return false, 0
}
