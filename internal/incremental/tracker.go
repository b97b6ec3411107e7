package incremental

import (
	"sync"
	"time"
)

// Tracker remembers, per task, when its last successful run started.
// The zero time means the task has not completed a run in this process.
type Tracker struct {
	mu   sync.Mutex
	last map[string]time.Time
	now  func() time.Time
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{last: make(map[string]time.Time), now: time.Now}
}

// Run is an in-flight invocation of an incremental task.
type Run struct {
	Task    string
	Started time.Time
	// Since is the cutoff: files modified after it must be processed.
	Since time.Time
}

// Begin starts a run of task, capturing the cutoff from the previous
// successful run.
func (t *Tracker) Begin(task string) Run {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Run{Task: task, Started: t.now(), Since: t.last[task]}
}

// Complete records a successful run. The start time is stored rather than the
// completion time so files edited while the run was in progress are picked up
// next time. Overlapping runs keep the latest start.
func (t *Tracker) Complete(r Run) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if r.Started.After(t.last[r.Task]) {
		t.last[r.Task] = r.Started
	}
}

// LastRun returns the start time of task's last successful run.
func (t *Tracker) LastRun(task string) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ts, ok := t.last[task]
	return ts, ok
}

// Reset forgets every recorded run.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last = make(map[string]time.Time)
}
