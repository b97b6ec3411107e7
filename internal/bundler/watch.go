package bundler

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/evanw/esbuild/pkg/api"

	"git.home.luguber.info/inful/assetpipe/internal/compileerr"
	"git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
)

// RebuildFunc receives the outcome of every rebuild after the first compile.
type RebuildFunc func(*Result, error)

const (
	phaseFirstCompile int32 = iota
	phaseWatchStarting
	phaseWatching
)

const armTimeout = 30 * time.Second

// Watcher is a running esbuild watch session.
type Watcher struct {
	ctx  api.BuildContext
	once sync.Once
}

// Watch performs the first compile and then starts esbuild's watch mode.
// The first compile's outcome is returned directly; onRebuild only sees
// rebuilds caused by later changes. On a first-compile error the watcher is
// still running and must be closed by the caller.
func Watch(o Options, onRebuild RebuildFunc) (*Watcher, *Result, error) {
	opts, err := o.buildOptions()
	if err != nil {
		return nil, nil, err
	}

	// esbuild's Watch runs one more build of its own to collect the files to
	// watch. It repeats the first compile and is not reported.
	var phase atomic.Int32
	armed := make(chan struct{})
	opts.Plugins = append(opts.Plugins, api.Plugin{
		Name: "assetpipe-rebuild",
		Setup: func(pb api.PluginBuild) {
			pb.OnEnd(func(r *api.BuildResult) (api.OnEndResult, error) {
				if phase.CompareAndSwap(phaseWatchStarting, phaseWatching) {
					close(armed)
					return api.OnEndResult{}, nil
				}
				if phase.Load() == phaseWatching && onRebuild != nil {
					onRebuild(o.collect(*r, opts.AbsWorkingDir))
				}
				return api.OnEndResult{}, nil
			})
		},
	})

	ctx, ctxErr := api.Context(opts)
	if ctxErr != nil {
		return nil, nil, compileerr.FromEsbuild(ctxErr.Errors)
	}
	w := &Watcher{ctx: ctx}

	res, firstErr := o.collect(ctx.Rebuild(), opts.AbsWorkingDir)
	phase.Store(phaseWatchStarting)

	if err := ctx.Watch(api.WatchOptions{}); err != nil {
		ctx.Dispose()
		return nil, nil, errors.WrapError(err, errors.CategoryRuntime, "failed to start bundler watch").Build()
	}

	// Changes made after Watch returns are seen by the watcher.
	select {
	case <-armed:
	case <-time.After(armTimeout):
		slog.Warn("Bundler watch did not confirm its first build", slog.Duration("timeout", armTimeout))
	}
	return w, res, firstErr
}

// Close stops watching and releases esbuild resources.
func (w *Watcher) Close() error {
	w.once.Do(w.ctx.Dispose)
	return nil
}
