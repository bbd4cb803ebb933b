package signals

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// ///////////////////////////////////////////////
// Mask
// ///////////////////////////////////////////////

// Block routes set to the returned channel, taking those signals away from
// their default actions. Call it before starting any worker goroutine. The
// runtime receives signals on its own thread and queues them to the channel;
// the channel is buffered so a signal is not lost while the consumer is busy.
//
// Members the platform cannot route are skipped and reported in the returned
// error, which is a warning: the remaining members are still blocked.
func Block(set []os.Signal) (chan os.Signal, error) {
	var (
		routed []os.Signal
		errs   []error
	)
	for _, sig := range set {
		if err := routable(sig); err != nil {
			errs = append(errs, err)
			continue
		}
		routed = append(routed, sig)
	}

	ch := make(chan os.Signal, len(set)+1)
	if len(routed) > 0 {
		signal.Notify(ch, routed...)
	}
	return ch, errors.Join(errs...)
}

// routable reports whether sig can be handed to [signal.Notify].
func routable(sig os.Signal) error {
	if sig == nil {
		return fmt.Errorf("nil signal: %w", ErrUnsupported)
	}
	if s, ok := sig.(syscall.Signal); ok && s <= 0 {
		return fmt.Errorf("signal %d: %w", int(s), ErrUnsupported)
	}
	return nil
}

// ///////////////////////////////////////////////
// Waiter
// ///////////////////////////////////////////////

// Waiter is the [ThreadWait] consumer: one goroutine blocked on the signal
// channel, dispatching each signal in turn.
type Waiter struct {
	// ch receives the blocked signal set.
	ch chan os.Signal
	// d handles every received signal.
	d *Dispatcher
	// done is closed by [Waiter.Close] to stop the goroutine.
	done chan struct{}
	// exited is closed when the goroutine returns.
	exited chan struct{}
	// once makes Close idempotent.
	once sync.Once
}

// NewWaiter starts consuming ch. Under normal operation the goroutine lives
// until the process exits.
func NewWaiter(ch chan os.Signal, d *Dispatcher) *Waiter {
	w := &Waiter{
		ch:     ch,
		d:      d,
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *Waiter) run() {
	defer close(w.exited)
	for {
		select {
		case <-w.done:
			return
		case sig := <-w.ch:
			w.d.Dispatch(sig)
		}
	}
}

// Close unregisters the channel and stops the goroutine, restoring default
// signal behavior. It is used by embedders and tests; the player never
// calls it.
func (w *Waiter) Close() error {
	w.once.Do(func() {
		signal.Stop(w.ch)
		close(w.done)
		<-w.exited
	})
	return nil
}
