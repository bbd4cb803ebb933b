package signals

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"syscall"
)

// ///////////////////////////////////////////////
// Dispatcher
// ///////////////////////////////////////////////

// Dispatcher maps a received signal to its handling routine. It always runs
// in ordinary goroutine context, so the routines may log, persist state or
// terminate the process.
type Dispatcher struct {
	// Out is the diagnostic stream for shutdown notices. Nil means stderr.
	Out io.Writer
	// Name is the program name used in notices.
	Name string
	// Quit requests application shutdown. It must be safe to call from a
	// non-main goroutine; it is expected to post to the main loop.
	Quit func()
	// Fault handles the fatal-fault signal. It is not expected to return.
	Fault func(sig os.Signal)
}

// Dispatch handles sig synchronously.
func (d *Dispatcher) Dispatch(sig os.Signal) {
	s, _ := sig.(syscall.Signal)
	switch s {
	case syscall.SIGPIPE:
		// Broken pipes surface as EPIPE on the failing write; nothing to do.
		slog.Debug("ignoring signal", "signal", Name(sig))

	case syscall.SIGSEGV:
		if d.Fault != nil {
			d.Fault(sig)
		}

	case syscall.SIGINT, syscall.SIGTERM:
		fmt.Fprintf(d.out(), "%s has received %s and is shutting down.\n", d.Name, Name(sig))
		slog.Info("received shutdown signal", "signal", Name(sig))
		if d.Quit != nil {
			d.Quit()
		}

	default:
		slog.Debug("unhandled signal", "signal", sig)
	}
}

func (d *Dispatcher) out() io.Writer {
	if d.Out == nil {
		return os.Stderr
	}
	return d.Out
}
