package stages

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
	"git.home.luguber.info/inful/assetpipe/internal/incremental"
	"git.home.luguber.info/inful/assetpipe/internal/logfields"
)

// Cleaner removes the output and manifest directories.
type Cleaner struct {
	Paths []string
	// Tracker is reset after a clean so incremental tasks copy everything again.
	Tracker *incremental.Tracker
}

// Run removes every path. Missing paths are fine.
func (c *Cleaner) Run(ctx context.Context) error {
	for _, p := range c.Paths {
		if err := checkRemovable(p); err != nil {
			return err
		}
	}
	for _, p := range c.Paths {
		if err := os.RemoveAll(p); err != nil {
			return errors.WrapError(err, errors.CategoryFileSystem, "failed to remove directory").
				WithContext("path", p).Build()
		}
		slog.DebugContext(ctx, "Removed", logfields.File(p))
	}
	if c.Tracker != nil {
		c.Tracker.Reset()
	}
	return nil
}

// checkRemovable refuses empty paths, filesystem roots and the working
// directory or any of its ancestors.
func checkRemovable(p string) error {
	if strings.TrimSpace(p) == "" {
		return errors.ConfigError("refusing to remove an empty path").Build()
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return errors.WrapError(err, errors.CategoryConfig, "cannot resolve path").WithContext("path", p).Build()
	}
	if abs == filepath.Dir(abs) {
		return errors.ConfigError("refusing to remove the filesystem root").WithContext("path", p).Build()
	}
	wd, err := os.Getwd()
	if err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "cannot determine working directory").Build()
	}
	if abs == wd || isWithin(wd, abs) {
		return errors.ConfigError("refusing to remove the working directory").WithContext("path", p).Build()
	}
	return nil
}

// isWithin reports whether path lies strictly below dir.
func isWithin(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	return err == nil && rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
