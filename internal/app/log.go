package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"xsync-go/internal/xsync"
)

// sink is one destination of a lineHandler with its own threshold.
type sink struct {
	w   io.Writer
	min slog.Level
}

// lineHandler is a slog.Handler that formats log records as:
//
//	<timestamp>\t<level>\t<component>\t<message>\t<key=value ...>
//
// The component column comes from a "component" attribute attached with
// With; it is "-" when none was set.
type lineHandler struct {
	sinks     []sink
	component string
	attrs     []slog.Attr
}

func (h *lineHandler) Enabled(_ context.Context, level slog.Level) bool {
	for _, s := range h.sinks {
		if level >= s.min {
			return true
		}
	}
	return false
}

func (h *lineHandler) Handle(_ context.Context, r slog.Record) error {
	component := h.component
	if component == "" {
		component = "-"
	}
	line := fmt.Sprintf("%s\t%s\t%s\t%s", r.Time.UTC().Format("2006-01-02T15:04:05.000Z"), r.Level, component, r.Message)
	for _, a := range h.attrs {
		line += fmt.Sprintf("\t%s=%v", a.Key, a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		line += fmt.Sprintf("\t%s=%v", a.Key, a.Value)
		return true
	})
	line += "\n"

	var firstErr error
	for _, s := range h.sinks {
		if r.Level < s.min {
			continue
		}
		if _, err := io.WriteString(s.w, line); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (h *lineHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := &lineHandler{
		sinks:     h.sinks,
		component: h.component,
		attrs:     append([]slog.Attr{}, h.attrs...),
	}
	for _, a := range attrs {
		if a.Key == "component" {
			next.component = a.Value.String()
			continue
		}
		next.attrs = append(next.attrs, a)
	}
	return next
}

func (h *lineHandler) WithGroup(string) slog.Handler { return h }

// LogOptions selects where a process logs.
type LogOptions struct {
	Dir         string     // daily files are written here
	Name        string     // file prefix, e.g. "xsync"
	FileLevel   slog.Level // threshold for the log file
	StderrLevel slog.Level // threshold for stderr
	Clock       xsync.Clock
}

// newLogger creates a logger writing to <Dir>/<Name>-<date>.log and to
// stderr. It returns the open log file for cleanup.
func newLogger(opts LogOptions) (*slog.Logger, *os.File, error) {
	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}
	clock := opts.Clock
	if clock == nil {
		clock = xsync.RealClock{}
	}
	logPath := filepath.Join(opts.Dir, logFileName(opts.Name, clock.Now()))
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	handler := &lineHandler{sinks: []sink{
		{w: f, min: opts.FileLevel},
		{w: os.Stderr, min: opts.StderrLevel},
	}}
	return slog.New(handler), f, nil
}

func logFileName(name string, now time.Time) string {
	return fmt.Sprintf("%s-%s.log", name, now.UTC().Format("2006-01-02"))
}

// parseLevel accepts debug, info, warn and error.
func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("%w: log level %q", xsync.ErrConfiguration, s)
	}
	return l, nil
}

// slogAdapter wraps *slog.Logger to satisfy the xsync.Logger interface.
type slogAdapter struct {
	l *slog.Logger
}

var _ xsync.Logger = (*slogAdapter)(nil)

func (a *slogAdapter) Debug(msg string, args ...any) { a.l.Debug(msg, args...) }
func (a *slogAdapter) Info(msg string, args ...any)  { a.l.Info(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.l.Warn(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.l.Error(msg, args...) }
func (a *slogAdapter) With(args ...any) xsync.Logger { return &slogAdapter{l: a.l.With(args...)} }
