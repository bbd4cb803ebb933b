package signals

import (
	"fmt"
	"os"
	"os/signal"
	"slices"
	"sync"
	"syscall"
	"time"

	"go.uber.org/atomic"
)

// DefaultPollInterval is the [Poller] cadence used when none is configured.
const DefaultPollInterval = time.Second

// ///////////////////////////////////////////////
// Pending Signal Slot
// ///////////////////////////////////////////////

// Slot holds at most one pending signal number, zero meaning none. A second
// signal recorded before the slot is taken overwrites the first. The zero
// value is an empty slot.
type Slot struct {
	v atomic.Int32
}

// Record stores sig. It performs a single atomic store and nothing else, so
// it is the whole body of a fallback handler.
func (s *Slot) Record(sig os.Signal) {
	if n, ok := sig.(syscall.Signal); ok {
		s.v.Store(int32(n))
	}
}

// Take returns the pending signal and clears the slot, or nil when empty.
func (s *Slot) Take() os.Signal {
	n := s.v.Swap(0)
	if n == 0 {
		return nil
	}
	return syscall.Signal(n)
}

// ///////////////////////////////////////////////
// Handler Installation
// ///////////////////////////////////////////////

// Handler is a signal handling routine.
type Handler func(sig os.Signal)

// Action describes an installed handler, in the manner of sigaction(2).
type Action struct {
	// Handler is invoked for every delivery. It is never reset to the
	// default after the first delivery.
	Handler Handler
	// Mask lists additional signals held off while Handler runs. The
	// signal being handled is always held off.
	Mask []os.Signal
}

// Installer installs persistent per-signal handlers. Interrupted system
// calls are restarted by the runtime, which installs its own OS handlers
// with SA_RESTART. Deliveries of one signal are serialized, and a handler
// holds a gate for its signal and each Mask member while it runs, so a
// masked signal waits in its queue until the handler returns.
type Installer struct {
	mu        sync.Mutex
	gates     map[os.Signal]chan struct{}
	installed map[os.Signal]*installation
}

// installation is the delivery goroutine state for one signal.
type installation struct {
	ch     chan os.Signal
	act    Action
	done   chan struct{}
	exited chan struct{}
}

// NewInstaller returns an Installer with nothing installed.
func NewInstaller() *Installer {
	return &Installer{
		gates:     make(map[os.Signal]chan struct{}),
		installed: make(map[os.Signal]*installation),
	}
}

// Install sets act as the handler for sig and returns the previous handler,
// or nil if there was none. An error means the handler was not installed
// and sig keeps its previous disposition.
func (in *Installer) Install(sig os.Signal, act Action) (Handler, error) {
	if err := routable(sig); err != nil {
		return nil, fmt.Errorf("install handler: %w", err)
	}
	if act.Handler == nil {
		return nil, fmt.Errorf("install handler for %s: nil handler", Name(sig))
	}

	in.mu.Lock()
	defer in.mu.Unlock()

	in.gateLocked(sig)
	for _, m := range act.Mask {
		in.gateLocked(m)
	}

	if cur, ok := in.installed[sig]; ok {
		prev := cur.act.Handler
		cur.act = act
		return prev, nil
	}

	inst := &installation{
		ch:     make(chan os.Signal, 1),
		act:    act,
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	in.installed[sig] = inst
	signal.Notify(inst.ch, sig)
	go in.deliver(sig, inst)
	return nil, nil
}

// Close removes every installed handler and restores default behavior.
func (in *Installer) Close() error {
	in.mu.Lock()
	insts := make([]*installation, 0, len(in.installed))
	for sig, inst := range in.installed {
		signal.Stop(inst.ch)
		close(inst.done)
		insts = append(insts, inst)
		delete(in.installed, sig)
	}
	in.mu.Unlock()

	for _, inst := range insts {
		<-inst.exited
	}
	return nil
}

func (in *Installer) gateLocked(sig os.Signal) chan struct{} {
	g, ok := in.gates[sig]
	if !ok {
		g = make(chan struct{}, 1)
		in.gates[sig] = g
	}
	return g
}

// deliver is the per-signal delivery goroutine.
func (in *Installer) deliver(sig os.Signal, inst *installation) {
	defer close(inst.exited)
	for {
		select {
		case <-inst.done:
			return
		case got := <-inst.ch:
			in.mu.Lock()
			act := inst.act
			gates := in.gatesFor(sig, act.Mask)
			in.mu.Unlock()

			for _, g := range gates {
				g <- struct{}{}
			}
			act.Handler(got)
			for i := len(gates) - 1; i >= 0; i-- {
				<-gates[i]
			}
		}
	}
}

// gatesFor returns the gates of sig and mask, deduplicated and in a fixed
// order so that overlapping handlers cannot deadlock. Caller holds in.mu.
func (in *Installer) gatesFor(sig os.Signal, mask []os.Signal) []chan struct{} {
	sigs := append([]os.Signal{sig}, mask...)
	slices.SortFunc(sigs, func(a, b os.Signal) int {
		return signalOrder(a) - signalOrder(b)
	})
	sigs = slices.CompactFunc(sigs, func(a, b os.Signal) bool {
		return signalOrder(a) == signalOrder(b)
	})
	gates := make([]chan struct{}, 0, len(sigs))
	for _, s := range sigs {
		gates = append(gates, in.gateLocked(s))
	}
	return gates
}

func signalOrder(sig os.Signal) int {
	if s, ok := sig.(syscall.Signal); ok {
		return int(s)
	}
	return 0
}

// ///////////////////////////////////////////////
// Poller
// ///////////////////////////////////////////////

// Poller is the [HandlerPoll] consumer. It wakes every interval, takes the
// pending signal from the slot and dispatches it. Signals overwritten in the
// slot between two polls are lost.
type Poller struct {
	slot     *Slot
	interval time.Duration
	d        *Dispatcher
	done     chan struct{}
	exited   chan struct{}
	once     sync.Once
}

// NewPoller returns a Poller over slot. It does not start polling; see
// [Poller.Start]. A non-positive interval means [DefaultPollInterval].
func NewPoller(slot *Slot, interval time.Duration, d *Dispatcher) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		slot:     slot,
		interval: interval,
		d:        d,
		done:     make(chan struct{}),
		exited:   make(chan struct{}),
	}
}

// Start launches the polling goroutine.
func (p *Poller) Start() {
	go p.run()
}

func (p *Poller) run() {
	defer close(p.exited)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			p.PollOnce()
		}
	}
}

// PollOnce takes and dispatches the pending signal, reporting whether there
// was one.
func (p *Poller) PollOnce() bool {
	sig := p.slot.Take()
	if sig == nil {
		return false
	}
	p.d.Dispatch(sig)
	return true
}

// Close stops the polling goroutine if it was started.
func (p *Poller) Close() error {
	p.once.Do(func() {
		close(p.done)
	})
	return nil
}
