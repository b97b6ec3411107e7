// Package notify delivers build notifications (mostly compile errors) to the
// log, connected browsers, the desktop and an optional NATS subject.
package notify

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/assetpipe/internal/compileerr"
	"git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
	"git.home.luguber.info/inful/assetpipe/internal/logfields"
)

// Level is the severity of a notification.
type Level string

const (
	LevelError   Level = "error"
	LevelWarning Level = "warning"
	LevelInfo    Level = "info"
)

// Notification is a single user-facing message.
type Notification struct {
	Level     Level     `json:"level"`
	Task      string    `json:"task,omitempty"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	File      string    `json:"file,omitempty"`
	Line      int       `json:"line,omitempty"`
	Column    int       `json:"column,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier delivers notifications.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Func adapts a function to a Notifier.
type Func func(ctx context.Context, n Notification) error

func (f Func) Notify(ctx context.Context, n Notification) error { return f(ctx, n) }

// FromError builds an error notification for a failed task. Compile errors
// carry their source location.
func FromError(task string, err error) Notification {
	n := Notification{
		Level:     LevelError,
		Task:      task,
		Title:     "Build error",
		Message:   err.Error(),
		Timestamp: time.Now(),
	}
	if ce, ok := errors.AsClassified(err); ok {
		n.Message = ce.Message()
		if ce.IsCategory(errors.CategoryCompile) {
			n.Title = "Compile error"
		}
	}
	if loc, ok := compileerr.LocationOf(err); ok {
		n.File, n.Line, n.Column = loc.File, loc.Line, loc.Column
	}
	if task != "" {
		n.Title += " in " + task
	}
	return n
}

// Where renders the location, if any.
func (n Notification) Where() string {
	return compileerr.Location{File: n.File, Line: n.Line, Column: n.Column}.String()
}

// Log writes notifications to a logger.
type Log struct {
	Logger *slog.Logger
}

func (l Log) Notify(ctx context.Context, n Notification) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	level := slog.LevelInfo
	switch n.Level {
	case LevelError:
		level = slog.LevelError
	case LevelWarning:
		level = slog.LevelWarn
	}
	attrs := []slog.Attr{slog.String("message", n.Message)}
	if n.Task != "" {
		attrs = append(attrs, logfields.Task(n.Task))
	}
	if where := n.Where(); where != "" {
		attrs = append(attrs, logfields.File(where))
	}
	logger.LogAttrs(ctx, level, n.Title, attrs...)
	return nil
}

// Multi fans a notification out to every notifier. Delivery continues past
// failures; the failures are joined into one notify error.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, target := range m {
		if target == nil {
			continue
		}
		if err := target.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errors.WrapError(stderrors.Join(errs...), errors.CategoryNotify, "notification delivery failed").Build()
}

// reportedError marks an error whose notification was already delivered.
type reportedError struct{ err error }

func (e *reportedError) Error() string { return e.err.Error() }
func (e *reportedError) Unwrap() error { return e.err }

// MarkReported records that a notification for err was delivered, so callers
// further up the stack do not report it again.
func MarkReported(err error) error {
	if err == nil || WasReported(err) {
		return err
	}
	return &reportedError{err: err}
}

// WasReported reports whether err, or an error it wraps, was marked with
// MarkReported.
func WasReported(err error) bool {
	var r *reportedError
	return stderrors.As(err, &r)
}

// Report sends a notification and logs delivery failures instead of
// returning them. Notifications are best effort.
func Report(ctx context.Context, target Notifier, n Notification) {
	if target == nil {
		return
	}
	if err := target.Notify(ctx, n); err != nil {
		slog.WarnContext(ctx, "Failed to deliver notification", logfields.Error(err))
	}
}
