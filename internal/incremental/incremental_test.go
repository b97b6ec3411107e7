package incremental

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string, mtime time.Time) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func TestGlob_BracesAndBase(t *testing.T) {
	dir := t.TempDir()
	old := time.Now().Add(-time.Hour)
	writeFile(t, filepath.Join(dir, "images", "a.svg"), "a", old)
	writeFile(t, filepath.Join(dir, "images", "b.png"), "b", old)
	writeFile(t, filepath.Join(dir, "images", "c.gif"), "c", old)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "images", "dir.png"), 0o755))

	files, err := Glob(filepath.Join(dir, "images", "*.{svg,png}"))
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "a.svg", files[0].Rel)
	assert.Equal(t, "b.png", files[1].Rel)
	assert.Equal(t, filepath.Join(dir, "images"), Base(filepath.Join(dir, "images", "*.{svg,png}")))
}

func TestGlob_MissingBaseIsEmpty(t *testing.T) {
	files, err := Glob(filepath.Join(t.TempDir(), "nope", "*.html"))
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestChanged(t *testing.T) {
	dir := t.TempDir()
	cutoff := time.Now().Add(-time.Minute)
	writeFile(t, filepath.Join(dir, "old.html"), "o", cutoff.Add(-time.Minute))
	writeFile(t, filepath.Join(dir, "new.html"), "n", cutoff.Add(time.Second))

	all, err := Changed(filepath.Join(dir, "*.html"), time.Time{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	changed, err := Changed(filepath.Join(dir, "*.html"), cutoff)
	require.NoError(t, err)
	require.Len(t, changed, 1)
	assert.Equal(t, "new.html", changed[0].Rel)
}

func TestTracker(t *testing.T) {
	tr := NewTracker()
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	tick := base
	tr.now = func() time.Time { return tick }

	first := tr.Begin("styles:assets")
	assert.True(t, first.Since.IsZero(), "first run has no cutoff")

	_, ok := tr.LastRun("styles:assets")
	assert.False(t, ok)

	tr.Complete(first)
	tick = base.Add(time.Minute)
	second := tr.Begin("styles:assets")
	assert.Equal(t, base, second.Since)

	// A failed run never completes, so the cutoff does not move.
	tick = base.Add(2 * time.Minute)
	third := tr.Begin("styles:assets")
	assert.Equal(t, base, third.Since)

	// Overlapping runs keep the latest start.
	tr.Complete(third)
	tr.Complete(second)
	last, ok := tr.LastRun("styles:assets")
	require.True(t, ok)
	assert.Equal(t, base.Add(2*time.Minute), last)

	tr.Reset()
	_, ok = tr.LastRun("styles:assets")
	assert.False(t, ok)
}

func TestMatch(t *testing.T) {
	assert.True(t, Match("src/images/*.{svg,png}", filepath.FromSlash("src/images/logo.svg")))
	assert.False(t, Match("src/images/*.{svg,png}", filepath.FromSlash("src/images/logo.gif")))
	assert.True(t, Match("src/css/**/*.scss", filepath.FromSlash("src/css/a/b/_vars.scss")))
}

func TestBaseAndValidate(t *testing.T) {
	assert.Equal(t, ".", Base("*.html"))
	assert.Equal(t, filepath.Join("src", "css"), Base("src/css/**/*.scss"))
	assert.NoError(t, Validate("src/images/*.{svg,png}"))
	assert.Error(t, Validate("src/[css"))
	assert.Error(t, Validate(""))
}
