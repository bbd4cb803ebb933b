// Signal set for Windows.
//
// Windows has no POSIX signals; the Go runtime maps CTRL_C_EVENT,
// CTRL_BREAK_EVENT and console-close events to [os.Interrupt], so that is
// the only member. Broken pipes surface as write errors and access
// violations as runtime panics instead.

//go:build windows

package signals

import (
	"os"
	"syscall"
)

var interest = []os.Signal{
	os.Interrupt,
}

var windowsNames = map[syscall.Signal]string{
	syscall.SIGINT:  "SIGINT",
	syscall.SIGTERM: "SIGTERM",
	syscall.SIGPIPE: "SIGPIPE",
	syscall.SIGSEGV: "SIGSEGV",
}

func signalName(sig os.Signal) string {
	s, ok := sig.(syscall.Signal)
	if !ok {
		return ""
	}
	return windowsNames[s]
}
