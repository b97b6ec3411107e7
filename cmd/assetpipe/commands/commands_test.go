package commands

import (
	"bytes"
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/assetpipe/internal/config"
	"git.home.luguber.info/inful/assetpipe/internal/eventstore"
	"git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
	"git.home.luguber.info/inful/assetpipe/internal/taskgraph"
)

func TestParse(t *testing.T) {
	var cli CLI
	parser, err := kong.New(&cli, kong.Vars{"version": "test"})
	require.NoError(t, err)

	ctx, err := parser.Parse([]string{"-c", "custom.yaml", "-v", "run", "build", "assets"})
	require.NoError(t, err)
	assert.Equal(t, "run <task>", ctx.Command())
	assert.Equal(t, "custom.yaml", cli.Config)
	assert.True(t, cli.Verbose)
	assert.Equal(t, []string{"build", "assets"}, cli.Run.Tasks)

	_, err = parser.Parse([]string{"history", "-n", "3"})
	require.NoError(t, err)
	assert.Equal(t, 3, cli.History.Limit)

	_, err = parser.Parse([]string{"run"})
	require.Error(t, err, "run needs at least one task")
}

func TestInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "assetpipe.yaml")
	root := &CLI{Config: path}
	var out bytes.Buffer

	require.NoError(t, (&InitCmd{}).Run(&Global{Out: &out}, root))
	assert.FileExists(t, path)
	assert.Contains(t, out.String(), "initialized successfully")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "dist", cfg.Paths.Output)

	err = (&InitCmd{}).Run(&Global{Out: &out}, root)
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryConfig))

	require.NoError(t, (&InitCmd{Force: true}).Run(&Global{Out: &out}, root))
}

func TestTasks(t *testing.T) {
	root := &CLI{Config: filepath.Join(t.TempDir(), "missing.yaml")}
	var out bytes.Buffer

	require.NoError(t, (&TasksCmd{}).Run(&Global{Out: &out}, root))
	for _, name := range []string{"clean", "styles", "styles:assets", "webpack", "assets", "build", "serve", "dev"} {
		assert.Contains(t, out.String(), name)
	}
	assert.Contains(t, out.String(), "Clean, then compile every asset")
	assert.NotContains(t, out.String(), "<parallel>")

	out.Reset()
	require.NoError(t, (&TasksCmd{Tree: true}).Run(&Global{Out: &out}, root))
	assert.Contains(t, out.String(), "<parallel>")
	assert.Contains(t, out.String(), "<watch>")
}

func TestRunTasks_UnknownTask(t *testing.T) {
	cfg := config.Default()
	dir := t.TempDir()
	cfg.Paths.Output = filepath.Join(dir, "dist")
	cfg.Paths.Manifest = filepath.Join(dir, "manifest")
	cfg.History.Disabled = true
	require.NoError(t, os.MkdirAll(cfg.Paths.Output, 0o755))

	err := RunTasks(context.Background(), cfg, config.ModeProduction, []string{"clean", "publish"})
	require.Error(t, err)
	assert.Equal(t, 7, errors.NewCLIErrorAdapter(false, nil).ExitCodeFor(err))
	assert.DirExists(t, cfg.Paths.Output, "nothing runs when a task is unknown")
}

func TestRunTasks_OneShotReturnsWithHistoryEnabled(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	cfg := config.Default()
	require.False(t, cfg.History.Disabled)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "dist", "css"), 0o755))

	done := make(chan error, 1)
	go func() {
		done <- RunTasks(context.Background(), cfg, config.ModeProduction, []string{"clean"})
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("one-shot run did not return")
	}
	assert.NoDirExists(t, filepath.Join(dir, "dist"))
	assert.FileExists(t, filepath.Join(dir, ".assetpipe", "history.db"), "the run was recorded")
}

func TestHistory(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "history.db")
	cfgPath := filepath.Join(dir, "assetpipe.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("history:\n  path: "+dbPath+"\n"), 0o600))
	root := &CLI{Config: cfgPath}

	var out bytes.Buffer
	require.NoError(t, (&HistoryCmd{Limit: 10}).Run(&Global{Out: &out}, root))
	assert.Contains(t, out.String(), "No runs recorded yet")

	store, err := eventstore.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	g := taskgraph.New(taskgraph.WithObserver(eventstore.Recorder{Store: store}))
	require.NoError(t, g.DefineFunc("styles", "", func(context.Context) error { return stderrors.New("boom") }))
	require.NoError(t, g.DefineFunc("clean", "", func(context.Context) error { return nil }))
	require.NoError(t, g.Define("build", "", taskgraph.Series(taskgraph.Refs("clean", "styles")...)))
	require.NoError(t, g.Run(context.Background(), "clean"))
	require.Error(t, g.Run(context.Background(), "build"))
	require.NoError(t, store.Close())

	out.Reset()
	require.NoError(t, (&HistoryCmd{Limit: 10}).Run(&Global{Out: &out}, root))
	text := out.String()
	assert.Contains(t, text, "OUTCOME")
	assert.Contains(t, text, "succeeded")
	assert.Contains(t, text, "failed")
	assert.Contains(t, text, "styles: boom")
	assert.Less(t, bytes.Index(out.Bytes(), []byte("build")), bytes.Index(out.Bytes(), []byte("clean ")),
		"newest run first")
}
