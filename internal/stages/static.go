package stages

import (
	"context"
	"log/slog"
	"path/filepath"

	"git.home.luguber.info/inful/assetpipe/internal/config"
	"git.home.luguber.info/inful/assetpipe/internal/incremental"
	"git.home.luguber.info/inful/assetpipe/internal/logfields"
)

// Static copies image files into the output tree, skipping files unchanged
// since the previous successful run.
type Static struct {
	Name    string
	Pattern string
	OutDir  string
	Tracker *incremental.Tracker
}

// NewStatic builds the static copier from configuration.
func NewStatic(cfg *config.Config, tracker *incremental.Tracker) *Static {
	return &Static{
		Name:    "styles:assets",
		Pattern: cfg.Static.Pattern,
		OutDir:  cfg.StaticOutputDir(),
		Tracker: tracker,
	}
}

func (s *Static) Run(ctx context.Context) error {
	run := s.Tracker.Begin(s.Name)
	files, err := incremental.Changed(s.Pattern, run.Since)
	if err != nil {
		return err
	}

	var total int64
	for _, f := range files {
		n, err := copyFile(f.Path, filepath.Join(s.OutDir, f.Rel))
		if err != nil {
			return err
		}
		total += n
	}
	s.Tracker.Complete(run)

	slog.DebugContext(ctx, "Copied static files",
		logfields.Pattern(s.Pattern), logfields.Count(len(files)), logfields.Bytes(total))
	return nil
}
