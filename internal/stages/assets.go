package stages

import (
	"context"
	"log/slog"
	"path/filepath"

	"git.home.luguber.info/inful/assetpipe/internal/config"
	"git.home.luguber.info/inful/assetpipe/internal/incremental"
	"git.home.luguber.info/inful/assetpipe/internal/logfields"
	"git.home.luguber.info/inful/assetpipe/internal/manifest"
	"git.home.luguber.info/inful/assetpipe/internal/rewrite"
)

// Assets copies HTML files to the output root. In production, references to
// manifest keys are rewritten to hashed names on the way.
type Assets struct {
	Name            string
	Mode            config.BuildMode
	Pattern         string
	OutDir          string
	StylesManifest  string
	ScriptsManifest string
	Tracker         *incremental.Tracker
}

// NewAssets builds the HTML stage from configuration.
func NewAssets(cfg *config.Config, mode config.BuildMode, tracker *incremental.Tracker) *Assets {
	return &Assets{
		Name:            "assets",
		Mode:            mode,
		Pattern:         cfg.Assets.Pattern,
		OutDir:          cfg.Paths.Output,
		StylesManifest:  cfg.StylesManifestPath(),
		ScriptsManifest: cfg.ScriptsManifestPath(),
		Tracker:         tracker,
	}
}

func (a *Assets) Run(ctx context.Context) error {
	run := a.Tracker.Begin(a.Name)
	files, err := incremental.Changed(a.Pattern, run.Since)
	if err != nil {
		return err
	}

	var rw *rewrite.Rewriter
	if a.Mode.IsProduction() && len(files) > 0 {
		if rw, err = a.rewriter(); err != nil {
			return err
		}
	}

	rewritten := 0
	for _, f := range files {
		dst := filepath.Join(a.OutDir, f.Rel)
		if rw == nil {
			if _, err := copyFile(f.Path, dst); err != nil {
				return err
			}
			continue
		}
		n, err := rw.File(f.Path, dst)
		if err != nil {
			return err
		}
		rewritten += n
	}
	a.Tracker.Complete(run)

	slog.DebugContext(ctx, "Processed HTML files",
		logfields.Pattern(a.Pattern), logfields.Count(len(files)), slog.Int("rewritten", rewritten))
	return nil
}

// rewriter loads both manifests. A missing manifest counts as empty.
func (a *Assets) rewriter() (*rewrite.Rewriter, error) {
	styles, err := manifest.Load(a.StylesManifest)
	if err != nil {
		return nil, err
	}
	scripts, err := manifest.Load(a.ScriptsManifest)
	if err != nil {
		return nil, err
	}
	return rewrite.New(styles, scripts)
}
