//go:build windows

package fault

import "os"

// AbortStatus matches the exit code of abort() in the Windows C runtime.
const AbortStatus = 3

// Abort terminates the process immediately without running deferred calls.
func Abort(code int) {
	os.Exit(code)
}
