// Package signals moves asynchronous OS signals out of the restricted context
// they are delivered in and into an ordinary goroutine where arbitrary logic
// may run.
//
// Two delivery strategies exist and exactly one is chosen at startup:
//
//   - [ThreadWait]: the signal set is routed to a single channel before any
//     worker goroutine starts ([Block]) and one dedicated goroutine
//     ([Waiter]) consumes it synchronously.
//   - [HandlerPoll]: for threading implementations that cannot support
//     synchronous waiting ([IsBroken]), handlers only record the signal in
//     the shared [Slot], and a [Poller] inspects it on a coarse cadence.
//
// Either way every signal ends up in [Dispatcher.Dispatch].
package signals

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrUnsupported is wrapped by setup warnings for signals the platform
// cannot route.
var ErrUnsupported = errors.New("signal not supported")

// ///////////////////////////////////////////////
// Delivery Mode
// ///////////////////////////////////////////////

// Mode selects how signals are consumed.
type Mode int

const (
	// ThreadWait consumes signals on a dedicated goroutine.
	ThreadWait Mode = iota
	// HandlerPoll records signals from a handler and polls for them.
	HandlerPoll
)

// String implements [fmt.Stringer].
func (m Mode) String() string {
	switch m {
	case ThreadWait:
		return "wait"
	case HandlerPoll:
		return "poll"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode converts a config string to a Mode. "auto" (or empty) returns
// ok=false to request a capability probe.
func ParseMode(s string) (m Mode, ok bool, err error) {
	switch strings.ToLower(s) {
	case "", "auto":
		return ThreadWait, false, nil
	case "wait":
		return ThreadWait, true, nil
	case "poll":
		return HandlerPoll, true, nil
	default:
		return ThreadWait, false, fmt.Errorf("invalid signal mode %q: must be auto, wait, or poll", s)
	}
}

// ///////////////////////////////////////////////
// Interest Set
// ///////////////////////////////////////////////

// Interest returns the fixed set of signals the player handles. The slice
// is a fresh copy.
func Interest() []os.Signal {
	return append([]os.Signal(nil), interest...)
}

// Name returns the conventional name of sig, e.g. "SIGINT".
func Name(sig os.Signal) string {
	if n := signalName(sig); n != "" {
		return n
	}
	return sig.String()
}
