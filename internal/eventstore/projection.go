// Package eventstore records task runs in SQLite and projects them into a
// per-run history.
package eventstore

import (
	"context"
	"encoding/json"
	"sort"
	"time"
)

// Outcome ranks, worst last. A run's outcome is the worst of its tasks.
var outcomeRank = map[string]int{
	"succeeded": 0,
	"tolerated": 1,
	"canceled":  2,
	"failed":    3,
}

// TaskRecord is one finished task invocation.
type TaskRecord struct {
	Task      string        `json:"task"`
	Outcome   string        `json:"outcome"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Error     string        `json:"error,omitempty"`
}

// RunSummary is a read model of one graph run.
type RunSummary struct {
	RunID     string        `json:"run_id"`
	Root      string        `json:"root"` // first task started in the run
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Outcome   string        `json:"outcome"` // "running" until a task finished
	Tasks     []TaskRecord  `json:"tasks"`
}

// Failed returns the first failed or tolerated task, if any.
func (r *RunSummary) Failed() (TaskRecord, bool) {
	for _, t := range r.Tasks {
		if t.Outcome == "failed" || t.Outcome == "tolerated" {
			return t, true
		}
	}
	return TaskRecord{}, false
}

// Summarize folds the events of one run into a summary.
func Summarize(runID string, events []Event) *RunSummary {
	s := &RunSummary{RunID: runID, Outcome: "running"}
	var end time.Time
	for _, ev := range events {
		switch ev.Type() {
		case TypeTaskStarted:
			var p struct {
				Task      string    `json:"task"`
				StartedAt time.Time `json:"started_at"`
			}
			if err := json.Unmarshal(ev.Payload(), &p); err != nil {
				continue
			}
			if s.Root == "" {
				s.Root = p.Task
				s.StartedAt = p.StartedAt
			}

		case TypeTaskFinished:
			var p TaskFinishedPayload
			if err := json.Unmarshal(ev.Payload(), &p); err != nil {
				continue
			}
			rec := TaskRecord{
				Task:      p.Task,
				Outcome:   p.Outcome,
				StartedAt: p.StartedAt,
				Duration:  time.Duration(p.DurationMS) * time.Millisecond,
				Error:     p.Error,
			}
			s.Tasks = append(s.Tasks, rec)
			if s.Outcome == "running" || outcomeRank[p.Outcome] > outcomeRank[s.Outcome] {
				s.Outcome = p.Outcome
			}
			if e := rec.StartedAt.Add(rec.Duration); e.After(end) {
				end = e
			}
			if s.Root == "" {
				s.Root = p.Task
				s.StartedAt = p.StartedAt
			}
		}
	}
	if !end.IsZero() && !s.StartedAt.IsZero() {
		s.Duration = end.Sub(s.StartedAt)
	}
	return s
}

// RunHistory reads recent run summaries from a SQLite store.
type RunHistory struct {
	store *SQLiteStore
}

// NewRunHistory creates a history reader.
func NewRunHistory(store *SQLiteStore) *RunHistory {
	return &RunHistory{store: store}
}

// Recent returns the latest runs, newest first.
func (h *RunHistory) Recent(ctx context.Context, limit int) ([]*RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	ids, err := h.store.RecentRunIDs(ctx, limit)
	if err != nil {
		return nil, err
	}

	out := make([]*RunSummary, 0, len(ids))
	for _, id := range ids {
		events, err := h.store.GetByRunID(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, Summarize(id, events))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}
