package notify

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/assetpipe/internal/compileerr"
	"git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
)

func TestFromError_CompileError(t *testing.T) {
	err := compileerr.New("Undefined variable.", compileerr.Location{File: "src/css/index.scss", Line: 4, Column: 10}, nil)
	n := FromError("styles", err)

	assert.Equal(t, LevelError, n.Level)
	assert.Equal(t, "Compile error in styles", n.Title)
	assert.Equal(t, "Undefined variable.", n.Message)
	assert.Equal(t, "src/css/index.scss:4:10", n.Where())
	assert.False(t, n.Timestamp.IsZero())
}

func TestFromError_PlainError(t *testing.T) {
	n := FromError("", stderrors.New("disk full"))
	assert.Equal(t, "Build error", n.Title)
	assert.Equal(t, "disk full", n.Message)
	assert.Empty(t, n.Where())
}

func TestLog(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	n := Notification{Level: LevelError, Task: "styles", Title: "Compile error", Message: "boom", File: "a.scss", Line: 2}

	require.NoError(t, Log{Logger: logger}.Notify(context.Background(), n))
	out := buf.String()
	assert.Contains(t, out, "level=ERROR")
	assert.Contains(t, out, "task=styles")
	assert.Contains(t, out, "file=a.scss:2")
}

func TestMulti_ContinuesPastFailures(t *testing.T) {
	var got []string
	ok := Func(func(_ context.Context, n Notification) error {
		got = append(got, n.Message)
		return nil
	})
	failing := Func(func(context.Context, Notification) error { return stderrors.New("offline") })

	err := Multi{failing, nil, ok}.Notify(context.Background(), Notification{Message: "hello"})
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryNotify))
	assert.Contains(t, err.Error(), "offline")
	assert.Equal(t, []string{"hello"}, got)

	require.NoError(t, Multi{ok}.Notify(context.Background(), Notification{Message: "again"}))
}

func TestReport_SwallowsErrors(t *testing.T) {
	failing := Func(func(context.Context, Notification) error { return stderrors.New("offline") })
	Report(context.Background(), failing, Notification{})
	Report(context.Background(), nil, Notification{})
}

func TestEncode(t *testing.T) {
	data, err := Encode(Notification{Level: LevelWarning, Title: "t", Message: "m", Line: 3})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "warning", decoded["level"])
	assert.InDelta(t, 3, decoded["line"], 0)
	assert.NotContains(t, decoded, "file")
}

func TestNewNATS_Unreachable(t *testing.T) {
	_, err := NewNATS("nats://127.0.0.1:1", "")
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryNotify))
}

func TestDesktop(t *testing.T) {
	type shown struct{ title, message string }
	var got []shown
	d := Desktop{Send: func(title, message, _ string) error {
		got = append(got, shown{title, message})
		return nil
	}}

	err := compileerr.New("Undefined variable.", compileerr.Location{File: "src/css/index.scss", Line: 4, Column: 10}, nil)
	require.NoError(t, d.Notify(context.Background(), FromError("styles", err)))
	require.NoError(t, d.Notify(context.Background(), Notification{Level: LevelWarning, Title: "Bundler warning", Message: "unused"}))

	require.Len(t, got, 1, "only errors reach the desktop")
	assert.Equal(t, "Compile error in styles", got[0].title)
	assert.Equal(t, "src/css/index.scss:4:10\nUndefined variable.", got[0].message)
}

func TestDesktop_SendFailure(t *testing.T) {
	d := Desktop{Send: func(string, string, string) error { return stderrors.New("no notification daemon") }}

	err := d.Notify(context.Background(), Notification{Level: LevelError, Title: "Build error", Message: "boom"})
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryNotify))
}

func TestMarkReported(t *testing.T) {
	base := errors.CompileError("bad token").Build()
	assert.False(t, WasReported(base))
	assert.Nil(t, MarkReported(nil))

	marked := MarkReported(base)
	assert.True(t, WasReported(marked))
	assert.True(t, WasReported(fmt.Errorf("task %q: %w", "styles", marked)))
	assert.Same(t, marked, MarkReported(marked))
	assert.EqualError(t, marked, base.Error())
	assert.True(t, errors.HasCategory(marked, errors.CategoryCompile))
}
