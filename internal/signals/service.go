package signals

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"
)

// ///////////////////////////////////////////////
// Service
// ///////////////////////////////////////////////

// Options configures [Start].
type Options struct {
	// Mode is the configured delivery mode: "auto", "wait" or "poll".
	Mode string
	// PollInterval is the [Poller] cadence in HandlerPoll mode.
	PollInterval time.Duration
	// Dispatcher handles every received signal.
	Dispatcher *Dispatcher
	// Out receives setup warnings. Nil means stderr.
	Out io.Writer
}

// Service is the running signal subsystem.
type Service struct {
	mode      Mode
	waiter    *Waiter
	installer *Installer
	poller    *Poller
}

// Start selects the delivery mode once and starts the matching consumer.
// It must be called before any worker goroutine is started. Setup failures
// are printed as warnings and do not stop the service; only an invalid
// mode string is returned as an error.
func Start(ctx context.Context, opts Options) (*Service, error) {
	if opts.Dispatcher == nil {
		return nil, errors.New("signals: nil dispatcher")
	}
	mode, explicit, err := ParseMode(opts.Mode)
	if err != nil {
		return nil, err
	}
	if !explicit {
		mode = ProbeMode(ctx)
	}

	out := opts.Out
	if out == nil {
		out = os.Stderr
	}

	s := &Service{mode: mode}
	switch mode {
	case HandlerPoll:
		fmt.Fprint(out, "Your signaling implementation is broken.\nExpect unusable crash reports.\n")
		slot := &Slot{}
		s.installer = NewInstaller()
		for _, sig := range Interest() {
			if _, err := s.installer.Install(sig, Action{Handler: slot.Record}); err != nil {
				warn(out, err)
			}
		}
		s.poller = NewPoller(slot, opts.PollInterval, opts.Dispatcher)
		s.poller.Start()

	default:
		ch, err := Block(Interest())
		if err != nil {
			warn(out, err)
		}
		s.waiter = NewWaiter(ch, opts.Dispatcher)
	}

	slog.Info("signal handling started", "mode", mode.String(), "explicit", explicit)
	return s, nil
}

// Mode returns the active delivery mode.
func (s *Service) Mode() Mode {
	return s.mode
}

// Close stops the consumer and restores default signal behavior.
func (s *Service) Close() error {
	var errs []error
	if s.waiter != nil {
		errs = append(errs, s.waiter.Close())
	}
	if s.poller != nil {
		errs = append(errs, s.poller.Close())
	}
	if s.installer != nil {
		errs = append(errs, s.installer.Close())
	}
	return errors.Join(errs...)
}

func warn(out io.Writer, err error) {
	fmt.Fprintf(out, "warning: signal setup: %v\n", err)
	slog.Warn("signal setup failed", "error", err)
}
