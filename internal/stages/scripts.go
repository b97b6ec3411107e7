package stages

import (
	"context"
	"io"
	"log/slog"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"git.home.luguber.info/inful/assetpipe/internal/bundler"
	"git.home.luguber.info/inful/assetpipe/internal/config"
	"git.home.luguber.info/inful/assetpipe/internal/logfields"
	"git.home.luguber.info/inful/assetpipe/internal/manifest"
	"git.home.luguber.info/inful/assetpipe/internal/notify"
)

// Lifecycle receives long-lived handles that must be closed on shutdown.
type Lifecycle interface {
	Track(name string, c io.Closer)
}

// Scripts bundles the script entries.
type Scripts struct {
	Mode         config.BuildMode
	Options      bundler.Options
	ManifestPath string
	Notifier     notify.Notifier
	Lifecycle    Lifecycle
}

// NewScripts builds the scripts stage from configuration.
func NewScripts(cfg *config.Config, mode config.BuildMode, n notify.Notifier, lc Lifecycle) *Scripts {
	return &Scripts{
		Mode: mode,
		Options: bundler.Options{
			Entries:    cfg.Scripts.Entries,
			OutDir:     cfg.ScriptsOutputDir(),
			Target:     cfg.Scripts.Target,
			PublicPath: cfg.Scripts.PublicPath,
			Production: mode.IsProduction(),
		},
		ManifestPath: cfg.ScriptsManifestPath(),
		Notifier:     n,
		Lifecycle:    lc,
	}
}

// Run performs a one-shot production build, or in development starts the
// bundler's watch mode and returns once the first compile finished.
func (s *Scripts) Run(ctx context.Context) error {
	if s.Mode.IsDevelopment() {
		return s.watch(ctx)
	}

	res, err := bundler.Build(s.Options)
	if err != nil {
		return failCompile(ctx, s.Mode, s.Notifier, "webpack", err)
	}
	s.logResult(ctx, res)

	m := manifest.New()
	for _, o := range res.Outputs {
		url := o.PublicURL(s.Options.OutDir, s.Options.PublicPath)
		if err := m.Set(o.Entry+".js", bundler.ManifestName(url, s.Options.PublicPath)); err != nil {
			return err
		}
	}
	return manifest.Write(s.ManifestPath, m)
}

func (s *Scripts) watch(ctx context.Context) error {
	// Rebuilds happen long after this task returned; they must not inherit
	// its cancellation.
	bg := context.WithoutCancel(ctx)
	w, res, err := bundler.Watch(s.Options, func(res *bundler.Result, err error) {
		if err != nil {
			notify.Report(bg, s.Notifier, notify.FromError("webpack", err))
			return
		}
		s.logResult(bg, res)
	})
	if w != nil && s.Lifecycle != nil {
		s.Lifecycle.Track("webpack watch", w)
	}
	if err != nil {
		return failCompile(ctx, s.Mode, s.Notifier, "webpack", err)
	}
	s.logResult(ctx, res)
	return nil
}

var sizePrinter = message.NewPrinter(language.English)

// logResult prints bundle statistics.
func (s *Scripts) logResult(ctx context.Context, res *bundler.Result) {
	for _, o := range res.Outputs {
		slog.InfoContext(ctx, "Bundled",
			slog.String("entry", o.Entry),
			logfields.File(o.FileName(s.Options.OutDir)),
			slog.String("url", o.PublicURL(s.Options.OutDir, s.Options.PublicPath)),
			slog.String("size", sizePrinter.Sprintf("%d B", o.Bytes)))
	}
	for _, w := range res.Warnings {
		slog.WarnContext(ctx, "Bundler warning", slog.String("message", w))
		notify.Report(ctx, s.Notifier, notify.Notification{
			Level: notify.LevelWarning, Task: "webpack", Title: "Bundler warning", Message: w,
			Timestamp: time.Now(),
		})
	}
}
