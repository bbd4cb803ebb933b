// Package logger provides the player's structured log: a fixed line format,
// two extra severities, a rotating file sink with an optional console
// mirror, and a level that can be changed while the player runs.
//
// Log output format:
//
//	2006-01-02T15:04:05.000Z [LEVEL] message | key=value, group.key=value
//
// Custom levels beyond the standard slog set:
//   - LevelTrace (-8): verbose diagnostic tracing
//   - LevelFail  (12): fatal faults, written just before the process exits
package logger

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// ///////////////////////////////////////////////
// Custom Levels
// ///////////////////////////////////////////////

const (
	LevelTrace slog.Level = -8
	LevelDebug slog.Level = slog.LevelDebug // -4
	LevelInfo  slog.Level = slog.LevelInfo  // 0
	LevelWarn  slog.Level = slog.LevelWarn  // 4
	LevelError slog.Level = slog.LevelError // 8
	LevelFail  slog.Level = 12
)

var levelNames = []struct {
	level slog.Level
	name  string
}{
	{LevelTrace, "TRACE"},
	{LevelDebug, "DEBUG"},
	{LevelInfo, "INFO"},
	{LevelWarn, "WARN"},
	{LevelError, "ERROR"},
	{LevelFail, "FAIL"},
}

// levelName returns the display name for a log level. Levels between two
// named ones take the name of the higher.
func levelName(l slog.Level) string {
	for _, n := range levelNames {
		if l <= n.level {
			return n.name
		}
	}
	return "FAIL"
}

// ParseLevel converts a level name to slog.Level, case-insensitively.
// The boolean is false for an unknown name, in which case LevelInfo is
// returned.
func ParseLevel(s string) (slog.Level, bool) {
	for _, n := range levelNames {
		if strings.EqualFold(s, n.name) {
			return n.level, true
		}
	}
	return LevelInfo, false
}

// ///////////////////////////////////////////////
// Handler
// ///////////////////////////////////////////////

// lineEnding is CRLF on Windows, LF elsewhere.
var lineEnding = "\n"

func init() {
	if runtime.GOOS == "windows" {
		lineEnding = "\r\n"
	}
}

// Handler is a slog.Handler that formats records as:
//
//	2006-01-02T15:04:05.000Z [LEVEL] message | key=value, ...
//
// The minimum level is read on every record, so passing a *slog.LevelVar
// makes the threshold adjustable at run time.
type Handler struct {
	// w is the destination writer.
	w io.Writer
	// mu serializes writes to w. Shared by derived handlers.
	mu *sync.Mutex
	// level is the minimum severity emitted.
	level slog.Leveler
	// prefix is written before pre-applied attrs; it already ends in " | "
	// or is empty.
	prefix string
	// group is the dot-joined key prefix set via [Handler.WithGroup].
	group string
}

// NewHandler creates a Handler that writes to w, filtering records below level.
func NewHandler(w io.Writer, level slog.Leveler) *Handler {
	if level == nil {
		level = LevelInfo
	}
	return &Handler{w: w, level: level, mu: &sync.Mutex{}}
}

// Enabled reports whether the handler handles records at the given level.
func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle formats and writes a log record.
func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	var buf strings.Builder

	buf.WriteString(r.Time.UTC().Format("2006-01-02T15:04:05.000Z"))
	buf.WriteString(" [")
	buf.WriteString(levelName(r.Level))
	buf.WriteString("] ")
	buf.WriteString(r.Message)

	n := 0
	if h.prefix != "" {
		buf.WriteString(h.prefix)
		n++
	}
	r.Attrs(func(a slog.Attr) bool {
		n = writeAttr(&buf, h.group, a, n)
		return true
	})

	buf.WriteString(lineEnding)

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, buf.String())
	return err
}

// writeAttr appends a as key=value, flattening groups into dotted keys. n is
// the number of attrs already written and is returned updated.
func writeAttr(buf *strings.Builder, group string, a slog.Attr, n int) int {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return n
	}
	if a.Value.Kind() == slog.KindGroup {
		sub := a.Key
		if group != "" && sub != "" {
			sub = group + "." + sub
		} else if sub == "" {
			sub = group
		}
		for _, ga := range a.Value.Group() {
			n = writeAttr(buf, sub, ga, n)
		}
		return n
	}

	if n == 0 {
		buf.WriteString(" | ")
	} else {
		buf.WriteString(", ")
	}
	if group != "" {
		buf.WriteString(group)
		buf.WriteString(".")
	}
	buf.WriteString(a.Key)
	buf.WriteString("=")
	buf.WriteString(a.Value.String())
	return n + 1
}

// WithAttrs returns a Handler with attrs rendered once and reused.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	var buf strings.Builder
	n := 0
	if h.prefix != "" {
		buf.WriteString(h.prefix)
		n = 1
	}
	for _, a := range attrs {
		n = writeAttr(&buf, h.group, a, n)
	}
	return &Handler{w: h.w, mu: h.mu, level: h.level, prefix: buf.String(), group: h.group}
}

// WithGroup returns a Handler whose subsequent attribute keys are prefixed
// with name (e.g., "group.key").
func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	g := name
	if h.group != "" {
		g = h.group + "." + name
	}
	return &Handler{w: h.w, mu: h.mu, level: h.level, prefix: h.prefix, group: g}
}

// ///////////////////////////////////////////////
// Logger Constructor
// ///////////////////////////////////////////////

// Options configures [NewLogger].
type Options struct {
	// Path is the log file. Rotated by size.
	Path string
	// Level is the minimum severity. Nil means LevelInfo; a *slog.LevelVar
	// may be changed later to adjust it.
	Level slog.Leveler
	// MaxSizeMB is the size at which the file is rotated.
	MaxSizeMB int
	// Console, if set, receives a copy of every line.
	Console io.Writer
}

// NewLogger creates a slog.Logger that writes to a rotating log file and,
// optionally, a console. The returned io.Closer must be closed to release
// the file.
func NewLogger(opts Options) (*slog.Logger, io.Closer, error) {
	if opts.Path == "" {
		return nil, nil, fmt.Errorf("log file path is empty")
	}
	lj := &lumberjack.Logger{
		Filename:   opts.Path,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: 3,
		MaxAge:     28,
	}

	var w io.Writer = lj
	if opts.Console != nil {
		w = io.MultiWriter(lj, opts.Console)
	}
	return slog.New(NewHandler(w, opts.Level)), lj, nil
}

// ///////////////////////////////////////////////
// Helper Functions
// ///////////////////////////////////////////////

// Trace logs a message at LevelTrace.
func Trace(logger *slog.Logger, msg string, args ...any) {
	logger.Log(context.Background(), LevelTrace, msg, args...)
}

// Fail logs a message at LevelFail.
func Fail(logger *slog.Logger, msg string, args ...any) {
	logger.Log(context.Background(), LevelFail, msg, args...)
}

// ///////////////////////////////////////////////
// ReadTail
// ///////////////////////////////////////////////

// ReadTail returns the last n lines of the file at path, oldest first.
func ReadTail(path string, n int) (string, error) {
	if n <= 0 {
		return "", nil
	}
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	ring := make([]string, n)
	total := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		ring[total%n] = strings.TrimRight(scanner.Text(), "\r")
		total++
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("reading log file: %w", err)
	}

	if total < n {
		return strings.Join(ring[:total], "\n"), nil
	}
	start := total % n
	return strings.Join(append(ring[start:], ring[:start]...), "\n"), nil
}
