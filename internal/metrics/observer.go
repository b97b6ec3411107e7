package metrics

import (
	"context"

	"git.home.luguber.info/inful/assetpipe/internal/taskgraph"
)

// TaskObserver feeds task events into a Recorder.
type TaskObserver struct {
	Recorder Recorder
}

func (o TaskObserver) TaskStarted(context.Context, taskgraph.Event) {}

func (o TaskObserver) TaskFinished(_ context.Context, ev taskgraph.Event) {
	if o.Recorder == nil {
		return
	}
	o.Recorder.ObserveTaskDuration(ev.Task, ev.Duration)
	o.Recorder.IncTaskResult(ev.Task, string(ev.Outcome))
}
