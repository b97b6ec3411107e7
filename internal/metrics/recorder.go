package metrics

import "time"

// Recorder defines observability hooks for task, watch and live-reload metrics.
// Implementations must be safe for concurrent use: parallel tasks report at
// the same time.
type Recorder interface {
	ObserveTaskDuration(task string, d time.Duration)
	IncTaskResult(task, outcome string)
	IncWatchTrigger(task string)
	SetLiveReloadClients(n int)
	IncLiveReloadBroadcast(kind string)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveTaskDuration(string, time.Duration) {}
func (NoopRecorder) IncTaskResult(string, string)              {}
func (NoopRecorder) IncWatchTrigger(string)                    {}
func (NoopRecorder) SetLiveReloadClients(int)                  {}
func (NoopRecorder) IncLiveReloadBroadcast(string)             {}
