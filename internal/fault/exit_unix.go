//go:build !windows

package fault

import "os"

// AbortStatus is the exit status of a process killed by SIGABRT.
const AbortStatus = 128 + 6

// Abort terminates the process immediately without running deferred calls.
func Abort(code int) {
	os.Exit(code)
}
