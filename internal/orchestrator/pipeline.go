// Package orchestrator wires the pipeline stages into the named task graph and
// owns everything that outlives a single run.
package orchestrator

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"git.home.luguber.info/inful/assetpipe/internal/config"
	"git.home.luguber.info/inful/assetpipe/internal/eventstore"
	"git.home.luguber.info/inful/assetpipe/internal/incremental"
	"git.home.luguber.info/inful/assetpipe/internal/logfields"
	"git.home.luguber.info/inful/assetpipe/internal/metrics"
	"git.home.luguber.info/inful/assetpipe/internal/notify"
	"git.home.luguber.info/inful/assetpipe/internal/server"
	"git.home.luguber.info/inful/assetpipe/internal/stages"
	"git.home.luguber.info/inful/assetpipe/internal/stylecompiler"
	"git.home.luguber.info/inful/assetpipe/internal/taskgraph"
	"git.home.luguber.info/inful/assetpipe/internal/watch"
)

// Task names.
const (
	TaskClean   = "clean"
	TaskStyles  = "styles"
	TaskStatic  = "styles:assets"
	TaskScripts = "webpack"
	TaskAssets  = "assets"
	TaskBuild   = "build"
	TaskServe   = "serve"
	TaskDev     = "dev"
)

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithCompiler replaces the style compiler service.
func WithCompiler(c stylecompiler.Compiler) Option {
	return func(p *Pipeline) { p.compiler = c }
}

// WithNotifier adds a notification target.
func WithNotifier(n notify.Notifier) Option {
	return func(p *Pipeline) { p.extra = append(p.extra, n) }
}

// WithObserver adds a task graph observer.
func WithObserver(o taskgraph.Observer) Option {
	return func(p *Pipeline) { p.observers = append(p.observers, o) }
}

// Pipeline is the assembled task graph for one process.
type Pipeline struct {
	cfg       *config.Config
	mode      config.BuildMode
	graph     *taskgraph.Graph
	lifecycle *Lifecycle
	// infra holds process-wide integrations (history store, NATS). They are
	// closed on shutdown but never keep a one-shot run alive.
	infra     *Lifecycle
	tracker   *incremental.Tracker
	compiler  stylecompiler.Compiler
	notifier  notify.Notifier
	extra     []notify.Notifier
	observers []taskgraph.Observer
	metrics   *metrics.PrometheusRecorder
	server    *server.Server

	// ctx parents watch-triggered runs; Shutdown cancels it.
	ctx      context.Context
	cancel   context.CancelFunc
	mu       sync.Mutex
	stopping bool
	runs     sync.WaitGroup
	shutdown sync.Once
}

// New assembles the pipeline. Optional integrations that fail to start
// (NATS, run history) are logged and left out.
func New(cfg *config.Config, mode config.BuildMode, opts ...Option) (*Pipeline, error) {
	p := &Pipeline{
		cfg:       cfg,
		mode:      mode,
		lifecycle: &Lifecycle{},
		infra:     &Lifecycle{},
		tracker:   incremental.NewTracker(),
		metrics:   metrics.NewPrometheusRecorder(nil),
	}
	p.ctx, p.cancel = context.WithCancel(context.Background())
	for _, opt := range opts {
		opt(p)
	}
	if p.compiler == nil {
		p.compiler = stylecompiler.New(cfg.Styles.SassBin)
	}

	var metricsHandler http.Handler
	if cfg.Serve.Metrics {
		p.metrics.RegisterRuntimeCollectors()
		metricsHandler = p.metrics.Handler()
	}
	p.server = server.New(server.Options{
		Root:       cfg.Paths.Output,
		Host:       cfg.Serve.Host,
		Port:       cfg.Serve.Port,
		LiveReload: cfg.Serve.LiveReload,
		Metrics:    metricsHandler,
		Recorder:   p.metrics,
		Debounce:   cfg.Watch.Debounce,
	})

	p.notifier = p.buildNotifier()
	p.graph = taskgraph.New(
		taskgraph.WithObserver(taskgraph.LogObserver{}),
		taskgraph.WithObserver(metrics.TaskObserver{Recorder: p.metrics}),
	)
	if store := p.openHistory(); store != nil {
		p.graph.AddObserver(eventstore.Recorder{Store: store})
	}
	for _, o := range p.observers {
		p.graph.AddObserver(o)
	}

	if err := p.define(); err != nil {
		p.cancel()
		_ = p.lifecycle.Close()
		_ = p.infra.Close()
		return nil, err
	}
	return p, nil
}

func (p *Pipeline) buildNotifier() notify.Notifier {
	targets := notify.Multi{notify.Log{}}
	if p.mode.IsDevelopment() && p.cfg.Serve.LiveReload {
		targets = append(targets, p.server)
	}
	if p.cfg.Notify.Desktop {
		targets = append(targets, notify.Desktop{})
	}
	if url := p.cfg.Notify.NATSURL; url != "" {
		n, err := notify.NewNATS(url, p.cfg.Notify.Subject)
		if err != nil {
			slog.Warn("NATS notifications disabled", logfields.Error(err))
		} else {
			p.infra.Track("nats", n)
			targets = append(targets, n)
		}
	}
	return append(targets, p.extra...)
}

func (p *Pipeline) openHistory() *eventstore.SQLiteStore {
	if p.cfg.History.Disabled {
		return nil
	}
	store, err := eventstore.NewSQLiteStore(p.cfg.History.Path)
	if err != nil {
		slog.Warn("Run history disabled", logfields.File(p.cfg.History.Path), logfields.Error(err))
		return nil
	}
	p.infra.Track("history", store)
	return store
}

// define registers every named task. Tasks that serve or watch are defined
// in every mode; only their behavior depends on it.
func (p *Pipeline) define() error {
	cfg, mode := p.cfg, p.mode

	cleaner := &stages.Cleaner{Paths: []string{cfg.Paths.Output, cfg.Paths.Manifest}, Tracker: p.tracker}
	styles := stages.NewStyles(cfg, mode, p.compiler, p.notifier)
	static := stages.NewStatic(cfg, p.tracker)
	scripts := stages.NewScripts(cfg, mode, p.notifier, p.lifecycle)
	assets := stages.NewAssets(cfg, mode, p.tracker)

	defs := []struct {
		name, description string
		body              taskgraph.Node
	}{
		{TaskClean, "Remove the output and manifest directories", taskgraph.Leaf(cleaner.Run)},
		{TaskStyles, "Compile the stylesheet entry", taskgraph.Leaf(styles.Run)},
		{TaskStatic, "Copy changed images", taskgraph.Leaf(static.Run)},
		{TaskScripts, "Bundle the script entries", taskgraph.Leaf(scripts.Run)},
		{TaskAssets, "Copy HTML files, rewriting asset references in production", taskgraph.Leaf(assets.Run)},
		{TaskBuild, "Clean, then compile every asset", taskgraph.Series(
			taskgraph.Ref(TaskClean),
			taskgraph.Parallel(taskgraph.Refs(TaskStatic, TaskStyles, TaskScripts)...),
			taskgraph.Ref(TaskAssets),
		)},
		{TaskServe, "Serve the output with live reload", taskgraph.Leaf(p.serve)},
		{TaskDev, "Build, serve and rebuild on change", taskgraph.Series(
			taskgraph.Ref(TaskBuild),
			taskgraph.Parallel(taskgraph.Ref(TaskServe), taskgraph.Inline("watch", p.startWatch)),
		)},
	}
	for _, d := range defs {
		if err := p.graph.Define(d.name, d.description, d.body); err != nil {
			return err
		}
	}
	return p.graph.Validate()
}

// Graph returns the task graph.
func (p *Pipeline) Graph() *taskgraph.Graph { return p.graph }

// Lifecycle returns the subscriptions opened by tasks so far.
func (p *Pipeline) Lifecycle() *Lifecycle { return p.lifecycle }

// Server returns the development server. It is bound only by the serve task.
func (p *Pipeline) Server() *server.Server { return p.server }

// Metrics returns the Prometheus recorder.
func (p *Pipeline) Metrics() *metrics.PrometheusRecorder { return p.metrics }

// Mode returns the build mode the pipeline was assembled for.
func (p *Pipeline) Mode() config.BuildMode { return p.mode }

// Run validates and runs the named tasks in series.
func (p *Pipeline) Run(ctx context.Context, names ...string) error {
	return p.graph.Run(ctx, names...)
}

// Wait blocks until ctx is done when tasks left subscriptions open (watchers,
// the dev server). It returns immediately after a one-shot run; integrations
// such as the history store do not count.
func (p *Pipeline) Wait(ctx context.Context) {
	if p.lifecycle.Len() == 0 {
		return
	}
	slog.Info("Watching for changes, press Ctrl+C to stop", slog.Any("subscriptions", p.lifecycle.Names()))
	<-ctx.Done()
}

// Shutdown cancels watch-triggered runs, waits for them and closes every
// subscription, task subscriptions before integrations.
func (p *Pipeline) Shutdown() error {
	var err error
	p.shutdown.Do(func() {
		p.mu.Lock()
		p.stopping = true
		p.cancel()
		p.mu.Unlock()
		p.runs.Wait()
		err = p.lifecycle.Close()
		if infraErr := p.infra.Close(); err == nil {
			err = infraErr
		}
	})
	return err
}

func (p *Pipeline) serve(ctx context.Context) error {
	if err := p.server.Start(ctx); err != nil {
		return err
	}
	p.lifecycle.Track("dev server", p.server)
	return nil
}

// Bindings returns the source watch bindings.
func (p *Pipeline) Bindings() []watch.Binding {
	return []watch.Binding{
		{Pattern: p.cfg.Styles.Watch, Task: TaskStyles},
		{Pattern: p.cfg.Assets.Pattern, Task: TaskAssets},
		{Pattern: p.cfg.Static.Pattern, Task: TaskStatic},
	}
}

func (p *Pipeline) startWatch(context.Context) error {
	w, err := watch.New(p.Bindings(), p.cfg.Watch.Debounce, p.trigger)
	if err != nil {
		return err
	}
	p.lifecycle.Track("source watcher", w)
	return nil
}

// trigger starts a run of task. Runs are neither serialized nor deduplicated;
// a failing run is reported, unless its stage already did, and the watch goes on.
func (p *Pipeline) trigger(task string, changed []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopping {
		return
	}
	p.metrics.IncWatchTrigger(task)
	slog.Info("Source changed", logfields.Task(task), logfields.Count(len(changed)))

	p.runs.Add(1)
	go func() {
		defer p.runs.Done()
		err := p.graph.Run(p.ctx, task)
		if err != nil && p.ctx.Err() == nil && !notify.WasReported(err) {
			notify.Report(p.ctx, p.notifier, notify.FromError(task, err))
		}
	}()
}
