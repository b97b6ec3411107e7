package taskgraph

import (
	"context"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/assetpipe/internal/logfields"
)

// Event describes one task invocation. Err is set for every outcome except
// OutcomeSucceeded, including tolerated failures.
type Event struct {
	RunID    string
	Task     string
	Started  time.Time
	Duration time.Duration
	Outcome  Outcome
	Err      error
}

// Observer receives task lifecycle events. Calls may be concurrent when tasks
// run in parallel.
type Observer interface {
	TaskStarted(ctx context.Context, ev Event)
	TaskFinished(ctx context.Context, ev Event)
}

// LogObserver logs task start and finish lines.
type LogObserver struct {
	Logger *slog.Logger
}

func (o LogObserver) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

func (o LogObserver) TaskStarted(ctx context.Context, ev Event) {
	o.logger().LogAttrs(ctx, slog.LevelInfo, "Starting task",
		logfields.Task(ev.Task), logfields.RunID(ev.RunID))
}

func (o LogObserver) TaskFinished(ctx context.Context, ev Event) {
	attrs := []slog.Attr{
		logfields.Task(ev.Task),
		logfields.RunID(ev.RunID),
		logfields.Outcome(string(ev.Outcome)),
		logfields.Duration(ev.Duration),
	}
	switch ev.Outcome {
	case OutcomeSucceeded:
		o.logger().LogAttrs(ctx, slog.LevelInfo, "Finished task", attrs...)
	case OutcomeTolerated:
		o.logger().LogAttrs(ctx, slog.LevelWarn, "Task failed, continuing", append(attrs, logfields.Error(ev.Err))...)
	default:
		o.logger().LogAttrs(ctx, slog.LevelError, "Task failed", append(attrs, logfields.Error(ev.Err))...)
	}
}

// ObserverFunc adapts a function to an Observer that only watches finishes.
type ObserverFunc func(ctx context.Context, ev Event)

func (f ObserverFunc) TaskStarted(context.Context, Event)         {}
func (f ObserverFunc) TaskFinished(ctx context.Context, ev Event) { f(ctx, ev) }
