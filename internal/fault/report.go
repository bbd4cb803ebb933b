// Package fault produces the crash report for a fatal fault and terminates
// the process.
//
// The report is written to the diagnostic stream in a fixed order: an
// apology for the end user, the program version and build id, a best-effort
// stack trace, and where to file a bug. A FAIL-level log entry and a final
// configuration save follow, then the process exits. Nothing in this path
// retries or recovers.
package fault

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"tools.zach/dev/cadence/internal/logger"
	"tools.zach/dev/cadence/internal/signals"
)

// defaultMaxFrames is the stack depth captured when Reporter.MaxFrames is 0.
const defaultMaxFrames = 20

// ///////////////////////////////////////////////
// Reporter
// ///////////////////////////////////////////////

// Reporter writes crash reports. Zero-valued fields fall back to stderr,
// the default logger, no save and [Abort].
type Reporter struct {
	// Out is the diagnostic stream.
	Out io.Writer
	// AppName is the program name shown to the user.
	AppName string
	// Version is the release version string.
	Version string
	// BuildID identifies the exact build (VCS revision).
	BuildID string
	// ReportURL is where bugs should be filed.
	ReportURL string
	// Log receives the critical entry.
	Log *slog.Logger
	// Save persists configuration before exit. Its error is logged only.
	Save func() error
	// Exit terminates the process with the given status.
	Exit func(code int)
	// MaxFrames caps the captured stack depth.
	MaxFrames int
}

// Report handles a fatal-fault signal. It does not return unless Exit does.
func (r *Reporter) Report(sig os.Signal) {
	r.report(fmt.Sprintf("signal %s", signals.Name(sig)), 1)
}

// Crash handles a recovered panic value the same way as a fatal signal.
func (r *Reporter) Crash(reason any) {
	r.report(fmt.Sprintf("a runtime panic (%v)", reason), 1)
}

func (r *Reporter) report(what string, skip int) {
	w := r.out()
	name := r.name()

	fmt.Fprintf(w, "\n%s has caught %s.\n\n", name, what)
	fmt.Fprintf(w, "We apologize for the inconvenience, but %s has crashed.\n"+
		"This is a bug in the program, and should never happen under normal circumstances.\n"+
		"Your current configuration has been saved and should not be damaged.\n\n", name)
	fmt.Fprintf(w, "You can help improve the quality of %s by filing a bug at %s\n"+
		"Please include the entire text of this message and a description of what you were doing when\n"+
		"this crash occurred in order to quickly expedite the handling of your bug report:\n\n", name, r.ReportURL)

	fmt.Fprintf(w, "Program version: %s %s (buildid: %s)\n\n", name, r.Version, r.BuildID)

	frames := captureStack(skip+1, r.maxFrames())
	if len(frames) == 0 {
		fmt.Fprint(w, "Stacktrace was unavailable.\n")
	} else {
		fmt.Fprintf(w, "Stacktrace (%d frames):\n", len(frames))
		for i, f := range frames {
			fmt.Fprintf(w, "   %d. %s\n", i+1, f)
		}
	}

	fmt.Fprintf(w, "\nBugs can be reported at %s against the %s product.\n", r.ReportURL, name)

	logger.Fail(r.logger(), fmt.Sprintf("received %s -- %s has crashed", what, name))

	if r.Save != nil {
		if err := r.Save(); err != nil {
			r.logger().Error("failed to save configuration", "error", err)
		}
	}

	r.exit()(AbortStatus)
}

func (r *Reporter) out() io.Writer {
	if r.Out == nil {
		return os.Stderr
	}
	return r.Out
}

func (r *Reporter) name() string {
	if r.AppName == "" {
		return "cadence"
	}
	return r.AppName
}

func (r *Reporter) logger() *slog.Logger {
	if r.Log == nil {
		return slog.Default()
	}
	return r.Log
}

func (r *Reporter) exit() func(int) {
	if r.Exit == nil {
		return Abort
	}
	return r.Exit
}

func (r *Reporter) maxFrames() int {
	if r.MaxFrames <= 0 {
		return defaultMaxFrames
	}
	return r.MaxFrames
}

// ///////////////////////////////////////////////
// Guard
// ///////////////////////////////////////////////

// Guard reports a panic in the calling goroutine as a crash. Use it as the
// first deferred call of a goroutine:
//
//	go func() {
//		defer fault.Guard(reporter)
//		...
//	}()
func Guard(r *Reporter) {
	if v := recover(); v != nil {
		r.report(fmt.Sprintf("a runtime panic (%v)", v), 2)
	}
}
