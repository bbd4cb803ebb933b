package mainloop

import (
	"sync"
	"time"

	"go.uber.org/atomic"
)

// inhibited is the process-wide latch set by [InhibitAll]. It is never
// cleared.
var inhibited = atomic.NewBool(false)

// InhibitAll stops every [QueuedFunc] in the process from firing again,
// including handles scheduled after the call. It is meant for the final
// stage of shutdown, while the backend is being torn down.
func InhibitAll() {
	inhibited.Store(true)
}

// Inhibited reports whether [InhibitAll] has been called.
func Inhibited() bool {
	return inhibited.Load()
}

// ///////////////////////////////////////////////
// QueuedFunc
// ///////////////////////////////////////////////

// QueuedFunc is a handle owning at most one scheduled callback on a
// [Backend]. Every method is safe to call from any goroutine. Scheduling a
// new callback cancels the previous one.
//
// The zero value is ready to use and schedules on [Default]. A QueuedFunc
// must not be copied after first use.
type QueuedFunc struct {
	// backend is the loop callbacks are posted to; nil means [Default].
	backend Backend

	// mu guards every field below.
	mu sync.Mutex
	// done is signalled whenever an invocation finishes; its L is mu.
	done sync.Cond
	// gen identifies the current schedule. Each schedule, cancel and
	// one-shot completion bumps it, which orphans older callbacks.
	gen uint64
	// src is the backend source of the current schedule, if any.
	src Source
	// running is true while a periodic schedule is active.
	running bool
	// firing counts in-flight invocations per goroutine id.
	firing map[uint64]int
	// closed is set by [QueuedFunc.Close]; later schedules are dropped.
	closed bool
}

// NewQueuedFunc returns a handle that posts its callbacks to b.
func NewQueuedFunc(b Backend) *QueuedFunc {
	return &QueuedFunc{backend: b}
}

// Queue runs fn once, as soon as the loop is next idle.
func (q *QueuedFunc) Queue(fn func()) {
	q.schedule(0, false, true, fn)
}

// QueueAfter runs fn once, no earlier than delay from now.
func (q *QueuedFunc) QueueAfter(delay time.Duration, fn func()) {
	q.schedule(delay, false, false, fn)
}

// Start runs fn every interval until [QueuedFunc.Stop] or
// [QueuedFunc.Close] is called, or [InhibitAll] latches.
func (q *QueuedFunc) Start(interval time.Duration, fn func()) {
	q.schedule(interval, true, false, fn)
}

// Stop cancels any pending or periodic callback. If an invocation of this
// handle is executing on another goroutine, Stop waits for it to return, so
// no invocation outlives the call. Calling Stop from inside the callback
// itself does not wait. Stop is idempotent.
func (q *QueuedFunc) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cancelLocked()
	q.waitLocked()
}

// Running reports whether a periodic schedule is active. One-shot callbacks
// are never reported.
func (q *QueuedFunc) Running() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.running && !inhibited.Load()
}

// Close stops the handle for good: it cancels like [QueuedFunc.Stop] and
// makes every later Queue, QueueAfter and Start a no-op. It always returns
// nil.
func (q *QueuedFunc) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cancelLocked()
	q.waitLocked()
	return nil
}

// schedule replaces the current schedule. idle selects an idle source;
// otherwise a timeout of d is registered, repeating when periodic is set.
func (q *QueuedFunc) schedule(d time.Duration, periodic, idle bool, fn func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cancelLocked()
	if q.closed || inhibited.Load() {
		return
	}

	b := q.backend
	if b == nil {
		b = Default()
	}
	gen := q.gen
	if idle {
		q.src = b.AddIdle(func() { q.fire(gen, false, fn) })
	} else {
		q.src = b.AddTimeout(d, func() bool { return q.fire(gen, periodic, fn) })
	}
	q.running = periodic
}

// cancelLocked orphans the current schedule and detaches its source.
func (q *QueuedFunc) cancelLocked() {
	q.gen++
	if q.src != nil {
		q.src.Remove()
		q.src = nil
	}
	q.running = false
}

// waitLocked blocks until no goroutine other than the caller is inside an
// invocation of this handle.
func (q *QueuedFunc) waitLocked() {
	if len(q.firing) == 0 {
		return
	}
	if q.done.L == nil {
		q.done.L = &q.mu
	}
	me := goid()
	for q.othersFiringLocked(me) {
		q.done.Wait()
	}
}

func (q *QueuedFunc) othersFiringLocked(me uint64) bool {
	for id, n := range q.firing {
		if id != me && n > 0 {
			return true
		}
	}
	return false
}

// fire is the callback registered with the backend. It runs fn only if gen
// is still the current schedule and the process is not inhibited, and
// reports whether a periodic schedule should keep repeating.
func (q *QueuedFunc) fire(gen uint64, periodic bool, fn func()) bool {
	q.mu.Lock()
	if q.gen != gen || inhibited.Load() {
		q.mu.Unlock()
		return false
	}
	if !periodic {
		q.gen++
		q.src = nil
	}
	me := goid()
	if q.firing == nil {
		q.firing = make(map[uint64]int)
	}
	q.firing[me]++
	q.mu.Unlock()

	defer q.finish(me)
	fn()

	q.mu.Lock()
	defer q.mu.Unlock()
	return periodic && q.gen == gen && !inhibited.Load()
}

// finish records the end of an invocation on goroutine me and wakes any
// Stop or Close waiting on it.
func (q *QueuedFunc) finish(me uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.firing[me]--; q.firing[me] <= 0 {
		delete(q.firing, me)
	}
	if q.done.L == nil {
		q.done.L = &q.mu
	}
	q.done.Broadcast()
}
