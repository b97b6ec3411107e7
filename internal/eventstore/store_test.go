package eventstore

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
	"git.home.luguber.info/inful/assetpipe/internal/taskgraph"
)

const testRunID = "run-123"

func newStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestEventStoreAppendAndRetrieve(t *testing.T) {
	store := newStore(t)
	ctx := t.Context()
	payload := []byte(`{"test": "data"}`)

	require.NoError(t, store.Append(ctx, testRunID, "TestEvent", payload, map[string]string{"key": "value"}))
	require.NoError(t, store.Append(ctx, "other", "TestEvent", payload, nil))

	events, err := store.GetByRunID(ctx, testRunID)
	require.NoError(t, err)
	require.Len(t, events, 1)

	event := events[0]
	assert.Equal(t, testRunID, event.RunID())
	assert.Equal(t, "TestEvent", event.Type())
	assert.True(t, bytes.Equal(payload, event.Payload()))
	assert.Equal(t, "value", event.Metadata()["key"])
	assert.WithinDuration(t, time.Now(), event.Timestamp(), time.Minute)
}

func TestEventStoreGetRange(t *testing.T) {
	store := newStore(t)
	ctx := t.Context()
	before := time.Now().Add(-time.Second)

	require.NoError(t, store.Append(ctx, "a", "TestEvent", []byte("{}"), nil))
	require.NoError(t, store.Append(ctx, "b", "TestEvent", []byte("{}"), nil))

	events, err := store.GetRange(ctx, before, time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Len(t, events, 2)

	events, err = store.GetRange(ctx, time.Now().Add(time.Hour), time.Now().Add(2*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestNewSQLiteStore_CreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".assetpipe", "history.db")
	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Close())
	assert.FileExists(t, path)
}

func TestRecorderAndHistory(t *testing.T) {
	store := newStore(t)
	rec := Recorder{Store: store}
	ctx := context.Background()

	start := time.Now().Add(-time.Minute)
	rec.TaskStarted(ctx, taskgraph.Event{RunID: "r1", Task: "build", Started: start})
	rec.TaskStarted(ctx, taskgraph.Event{RunID: "r1", Task: "styles", Started: start})
	rec.TaskFinished(ctx, taskgraph.Event{
		RunID: "r1", Task: "styles", Started: start, Duration: 200 * time.Millisecond,
		Outcome: taskgraph.OutcomeTolerated, Err: errors.New("bad scss"),
	})
	rec.TaskFinished(ctx, taskgraph.Event{
		RunID: "r1", Task: "build", Started: start, Duration: time.Second, Outcome: taskgraph.OutcomeSucceeded,
	})

	later := time.Now()
	rec.TaskStarted(ctx, taskgraph.Event{RunID: "r2", Task: "assets", Started: later})
	rec.TaskFinished(ctx, taskgraph.Event{
		RunID: "r2", Task: "assets", Started: later, Duration: 10 * time.Millisecond,
		Outcome: taskgraph.OutcomeFailed, Err: errors.New("disk full"),
	})

	runs, err := NewRunHistory(store).Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	assert.Equal(t, "r2", runs[0].RunID)
	assert.Equal(t, "failed", runs[0].Outcome)

	r1 := runs[1]
	assert.Equal(t, "build", r1.Root)
	assert.Equal(t, "tolerated", r1.Outcome)
	assert.Equal(t, time.Second, r1.Duration)
	require.Len(t, r1.Tasks, 2)
	failed, ok := r1.Failed()
	require.True(t, ok)
	assert.Equal(t, "styles", failed.Task)
	assert.Equal(t, "bad scss", failed.Error)

	runs, err = NewRunHistory(store).Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "r2", runs[0].RunID)
}

func TestSummarize_RunningRun(t *testing.T) {
	started, err := NewTaskStarted("r", "dev", time.Now())
	require.NoError(t, err)
	s := Summarize("r", []Event{started})
	assert.Equal(t, "running", s.Outcome)
	assert.Equal(t, "dev", s.Root)
	_, ok := s.Failed()
	assert.False(t, ok)
}

func TestSentinelErrorsAreHistoryCategory(t *testing.T) {
	err := wrap(ErrEventQueryFailed, errors.New("locked"))
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryHistory))
	assert.Contains(t, err.Error(), "locked")
}
