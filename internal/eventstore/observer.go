package eventstore

import (
	"context"
	"log/slog"

	"git.home.luguber.info/inful/assetpipe/internal/logfields"
	"git.home.luguber.info/inful/assetpipe/internal/taskgraph"
)

// Recorder persists task events. Write failures are logged and never affect
// the task that produced the event.
type Recorder struct {
	Store Store
}

func (r Recorder) TaskStarted(ctx context.Context, ev taskgraph.Event) {
	e, err := NewTaskStarted(ev.RunID, ev.Task, ev.Started)
	if err != nil {
		r.logFailure(ctx, ev, err)
		return
	}
	r.append(ctx, ev, &e.BaseEvent)
}

func (r Recorder) TaskFinished(ctx context.Context, ev taskgraph.Event) {
	p := TaskFinishedPayload{
		Task:       ev.Task,
		Outcome:    string(ev.Outcome),
		StartedAt:  ev.Started.UTC(),
		DurationMS: ev.Duration.Milliseconds(),
	}
	if ev.Err != nil {
		p.Error = ev.Err.Error()
	}
	e, err := NewTaskFinished(ev.RunID, p)
	if err != nil {
		r.logFailure(ctx, ev, err)
		return
	}
	r.append(ctx, ev, &e.BaseEvent)
}

func (r Recorder) append(ctx context.Context, ev taskgraph.Event, e *BaseEvent) {
	if r.Store == nil {
		return
	}
	// Recording must not be cut short by the cancellation that ended the task.
	ctx = context.WithoutCancel(ctx)
	if err := r.Store.Append(ctx, e.RunID(), e.Type(), e.Payload(), nil); err != nil {
		r.logFailure(ctx, ev, err)
	}
}

func (r Recorder) logFailure(ctx context.Context, ev taskgraph.Event, err error) {
	slog.WarnContext(ctx, "Failed to record task event",
		logfields.Task(ev.Task), logfields.RunID(ev.RunID), logfields.Error(err))
}
