package eventstore

import (
	"encoding/json"
	"time"

	"git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
)

const (
	TypeTaskStarted  = "TaskStarted"
	TypeTaskFinished = "TaskFinished"
)

// TaskStarted is emitted when a task invocation begins.
type TaskStarted struct {
	BaseEvent
	Task string `json:"task"`
}

// NewTaskStarted creates a TaskStarted event.
func NewTaskStarted(runID, task string, at time.Time) (*TaskStarted, error) {
	payload, err := json.Marshal(map[string]any{
		"task":       task,
		"started_at": at.UTC(),
	})
	if err != nil {
		return nil, errors.HistoryError("failed to marshal TaskStarted payload").
			WithCause(err).
			WithContext("run_id", runID).
			Build()
	}

	return &TaskStarted{
		BaseEvent: BaseEvent{
			EventRunID:     runID,
			EventType:      TypeTaskStarted,
			EventTimestamp: at,
			EventPayload:   payload,
		},
		Task: task,
	}, nil
}

// TaskFinishedPayload is the stored body of a TaskFinished event.
type TaskFinishedPayload struct {
	Task       string    `json:"task"`
	Outcome    string    `json:"outcome"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
}

// TaskFinished is emitted when a task invocation ends, whatever its outcome.
type TaskFinished struct {
	BaseEvent
	TaskFinishedPayload
}

// NewTaskFinished creates a TaskFinished event.
func NewTaskFinished(runID string, p TaskFinishedPayload) (*TaskFinished, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, errors.HistoryError("failed to marshal TaskFinished payload").
			WithCause(err).
			WithContext("run_id", runID).
			WithContext("task", p.Task).
			Build()
	}

	return &TaskFinished{
		BaseEvent: BaseEvent{
			EventRunID:     runID,
			EventType:      TypeTaskFinished,
			EventTimestamp: p.StartedAt.Add(time.Duration(p.DurationMS) * time.Millisecond),
			EventPayload:   payload,
		},
		TaskFinishedPayload: p,
	}, nil
}
