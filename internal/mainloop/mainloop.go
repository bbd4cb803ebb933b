// Package mainloop is the main loop abstraction layer of the player.
//
// A [Backend] owns the single goroutine that runs every posted callback. The
// package keeps one process-wide backend (see [Default] and [SetDefault]) and
// exposes [Run] and [Quit] for it. [QueuedFunc] is the thread-safe handle the
// rest of the program uses to call back into that goroutine from workers,
// signal goroutines and timers.
package mainloop

import (
	"errors"
	"sync"
	"time"
)

// ///////////////////////////////////////////////
// Backend
// ///////////////////////////////////////////////

// ErrAlreadyRunning is returned by [Backend.Run] when the loop is already
// dispatching on another goroutine.
var ErrAlreadyRunning = errors.New("mainloop: already running")

// Source is a registered idle or timeout callback.
type Source interface {
	// Remove detaches the source from its backend. It is safe to call from
	// any goroutine and more than once. An invocation the backend has already
	// picked for dispatch may still run; [QueuedFunc] gates its own callbacks
	// for the stronger guarantee.
	Remove()
}

// Backend is an event-processing runtime that executes callbacks on a single
// goroutine. All methods except Run may be called from any goroutine.
type Backend interface {
	// Run dispatches callbacks on the calling goroutine until Quit is called.
	Run() error
	// Quit makes a running (or the next) Run return.
	Quit()
	// AddIdle runs fn once, the next time the loop is idle. Idle callbacks
	// run in the order they were added.
	AddIdle(fn func()) Source
	// AddTimeout runs fn after d has elapsed, and again every d for as long
	// as fn returns true.
	AddTimeout(d time.Duration, fn func() bool) Source
}

// ///////////////////////////////////////////////
// Process-wide Facade
// ///////////////////////////////////////////////

var (
	defaultMu      sync.Mutex
	defaultBackend Backend
)

// Default returns the process-wide backend, creating a native [Loop] on
// first use.
func Default() Backend {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultBackend == nil {
		defaultBackend = NewLoop()
	}
	return defaultBackend
}

// SetDefault replaces the process-wide backend. It must be called before any
// [QueuedFunc] bound to the default backend is scheduled.
func SetDefault(b Backend) {
	defaultMu.Lock()
	defaultBackend = b
	defaultMu.Unlock()
}

// Run runs the process-wide backend on the calling goroutine.
func Run() error {
	return Default().Run()
}

// Quit stops the process-wide backend.
func Quit() {
	Default().Quit()
}
