// Signal set for Unix-like platforms (Linux, macOS, *BSD).

//go:build !windows

package signals

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// interest is the signal set handled on Unix: broken pipe, fatal fault,
// interrupt (Ctrl+C) and terminate (process managers, container runtimes).
var interest = []os.Signal{
	unix.SIGPIPE,
	unix.SIGSEGV,
	unix.SIGINT,
	unix.SIGTERM,
}

// signalName returns the SIGxxx name of sig, or "" if unknown.
func signalName(sig os.Signal) string {
	s, ok := sig.(syscall.Signal)
	if !ok {
		return ""
	}
	return unix.SignalName(s)
}
