package mainloop

import (
	"container/heap"
	"runtime"
	"sync"
	"time"

	"github.com/eapache/queue"
)

// ///////////////////////////////////////////////
// Native Loop
// ///////////////////////////////////////////////

// Loop is the native [Backend]. Idle callbacks are kept in a FIFO queue and
// timeouts in a min-heap ordered by deadline. Both live in one registry guarded
// by mu; callbacks are always invoked with mu released so they may freely add
// or remove sources.
type Loop struct {
	// mu guards every field below.
	mu sync.Mutex
	// idle holds *source values in the order they were added.
	idle *queue.Queue
	// timers holds pending timeouts, earliest deadline first.
	timers timerHeap
	// seq breaks deadline ties so timeouts added first fire first.
	seq uint64
	// wake is buffered to 1 so back-to-back wakeups coalesce.
	wake chan struct{}
	// quit is set by [Loop.Quit] and cleared when Run returns.
	quit bool
	// running is true while a goroutine is inside [Loop.Run].
	running bool
}

// NewLoop returns an empty native loop.
func NewLoop() *Loop {
	return &Loop{
		idle: queue.New(),
		wake: make(chan struct{}, 1),
	}
}

// source is a registered callback. Exactly one of idle and tick is set.
type source struct {
	loop     *Loop
	idle     func()
	tick     func() bool
	interval time.Duration
	when     time.Time
	seq      uint64
	// index is the position in the timer heap, -1 when not queued there.
	index   int
	removed bool
}

// Remove implements [Source].
func (s *source) Remove() {
	l := s.loop
	l.mu.Lock()
	defer l.mu.Unlock()
	if s.removed {
		return
	}
	s.removed = true
	if s.index >= 0 {
		heap.Remove(&l.timers, s.index)
	}
}

// AddIdle implements [Backend].
func (l *Loop) AddIdle(fn func()) Source {
	s := &source{loop: l, idle: fn, index: -1}
	l.mu.Lock()
	l.idle.Add(s)
	l.mu.Unlock()
	l.signal()
	return s
}

// AddTimeout implements [Backend]. A non-positive d is treated as an
// immediate deadline.
func (l *Loop) AddTimeout(d time.Duration, fn func() bool) Source {
	if d < 0 {
		d = 0
	}
	s := &source{loop: l, tick: fn, interval: d, index: -1}
	l.mu.Lock()
	s.when = time.Now().Add(d)
	l.seq++
	s.seq = l.seq
	heap.Push(&l.timers, s)
	l.mu.Unlock()
	l.signal()
	return s
}

// Run dispatches callbacks until [Loop.Quit] is called. The dispatching
// goroutine is locked to its OS thread for the duration so that callbacks
// touching thread-affine state always see the same thread.
func (l *Loop) Run() error {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return ErrAlreadyRunning
	}
	l.running = true
	l.mu.Unlock()

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	defer func() {
		l.mu.Lock()
		l.running = false
		l.quit = false
		l.mu.Unlock()
	}()

	for !l.quitting() {
		l.Iterate(true)
	}
	return nil
}

// Quit makes a running [Loop.Run] return after the current callback. If the
// loop is not running, the next Run returns immediately.
func (l *Loop) Quit() {
	l.mu.Lock()
	l.quit = true
	l.mu.Unlock()
	l.signal()
}

// Pending returns the number of sources still registered.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := len(l.timers)
	for i := 0; i < l.idle.Length(); i++ {
		if !l.idle.Get(i).(*source).removed {
			n++
		}
	}
	return n
}

// Iterate performs a single dispatch step: the earliest due timeout, or
// failing that the oldest idle callback. When block is true and nothing is
// ready it waits until something is, or until Quit is called. It reports
// whether a callback ran.
func (l *Loop) Iterate(block bool) bool {
	l.mu.Lock()
	for {
		s, wait := l.nextLocked(time.Now())
		if s != nil {
			l.mu.Unlock()
			l.dispatch(s)
			return true
		}
		if !block || l.quit {
			l.mu.Unlock()
			return false
		}
		l.mu.Unlock()
		l.sleep(wait)
		l.mu.Lock()
	}
}

// nextLocked pops the next ready source. When none is ready it returns the
// time until the earliest deadline, or -1 if there is no timeout at all.
func (l *Loop) nextLocked(now time.Time) (*source, time.Duration) {
	if len(l.timers) > 0 && !l.timers[0].when.After(now) {
		return heap.Pop(&l.timers).(*source), 0
	}
	for l.idle.Length() > 0 {
		s := l.idle.Remove().(*source)
		if !s.removed {
			return s, 0
		}
	}
	if len(l.timers) > 0 {
		return nil, l.timers[0].when.Sub(now)
	}
	return nil, -1
}

// dispatch invokes s and, for a repeating timeout, puts it back on the heap.
func (l *Loop) dispatch(s *source) {
	if s.idle != nil {
		s.idle()
		return
	}
	if !s.tick() {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if s.removed {
		return
	}
	now := time.Now()
	next := s.when.Add(s.interval)
	if !next.After(now) {
		// Fell behind; skip the missed ticks instead of firing a burst.
		next = now.Add(s.interval)
	}
	s.when = next
	l.seq++
	s.seq = l.seq
	heap.Push(&l.timers, s)
}

func (l *Loop) quitting() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.quit
}

// signal wakes a sleeping dispatcher without blocking.
func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// sleep waits for a wakeup, or for wait to elapse when wait is non-negative.
func (l *Loop) sleep(wait time.Duration) {
	if wait < 0 {
		<-l.wake
		return
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-l.wake:
	case <-t.C:
	}
}

// ///////////////////////////////////////////////
// Timer Heap
// ///////////////////////////////////////////////

// timerHeap implements [heap.Interface] over timeout sources.
type timerHeap []*source

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].when.Equal(h[j].when) {
		return h[i].seq < h[j].seq
	}
	return h[i].when.Before(h[j].when)
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	s := x.(*source)
	s.index = len(*h)
	*h = append(*h, s)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	s := old[n-1]
	old[n-1] = nil
	s.index = -1
	*h = old[:n-1]
	return s
}
