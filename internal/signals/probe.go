package signals

import (
	"context"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// probeTimeout bounds the getconf call made by [Probe].
const probeTimeout = 2 * time.Second

// getconf is the command used to query the C threading implementation;
// replaced in tests.
var getconf = func(ctx context.Context) ([]byte, error) {
	return exec.CommandContext(ctx, "getconf", "GNU_LIBPTHREAD_VERSION").Output()
}

// Probe returns the identifying string of the active threading
// implementation (e.g. "NPTL 2.39"), or "" when it cannot be determined.
func Probe(ctx context.Context) string {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	out, err := getconf(ctx)
	if err != nil {
		slog.Debug("threading implementation unknown", "error", err)
		return ""
	}
	return strings.TrimSpace(string(out))
}

// IsBroken reports whether impl is a threading implementation known to
// mis-deliver signals to waiting threads (LinuxThreads).
func IsBroken(impl string) bool {
	return len(impl) >= 12 && strings.EqualFold(impl[:12], "linuxthreads")
}

// ProbeMode runs [Probe] and picks the delivery mode for the result.
func ProbeMode(ctx context.Context) Mode {
	impl := Probe(ctx)
	if IsBroken(impl) {
		return HandlerPoll
	}
	return ThreadWait
}
