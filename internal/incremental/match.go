// Package incremental implements the "only what changed since my last run"
// filtering shared by the static copier and the HTML rewriter.
package incremental

import (
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
)

// File is a source file selected by a glob.
type File struct {
	// Path is the file path as it should be opened (base joined with Rel).
	Path string
	// Rel is the path relative to the glob base; outputs mirror it.
	Rel     string
	ModTime time.Time
}

// Base returns the static directory prefix of pattern (the part before the
// first glob meta character).
func Base(pattern string) string {
	base, _ := doublestar.SplitPattern(filepath.ToSlash(pattern))
	if base == "" {
		return "."
	}
	return filepath.FromSlash(base)
}

// Validate checks that pattern is a well-formed glob.
func Validate(pattern string) error {
	if pattern == "" || !doublestar.ValidatePattern(filepath.ToSlash(pattern)) {
		return errors.ConfigError("invalid glob pattern").WithContext("pattern", pattern).Build()
	}
	return nil
}

// Glob returns every regular file matching pattern, sorted by path.
// Brace alternatives ({svg,png}) and ** are supported.
func Glob(pattern string) ([]File, error) {
	if err := Validate(pattern); err != nil {
		return nil, err
	}
	_, rest := doublestar.SplitPattern(filepath.ToSlash(pattern))
	root := Base(pattern)
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return nil, nil
	}

	matches, err := doublestar.Glob(os.DirFS(root), rest, doublestar.WithFilesOnly())
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryFileSystem, "glob failed").
			WithContext("pattern", pattern).Build()
	}

	files := make([]File, 0, len(matches))
	for _, m := range matches {
		p := filepath.Join(root, filepath.FromSlash(m))
		info, err := os.Stat(p)
		if err != nil {
			if os.IsNotExist(err) {
				continue // removed between glob and stat
			}
			return nil, errors.WrapError(err, errors.CategoryFileSystem, "stat failed").
				WithContext("file", p).Build()
		}
		if !info.Mode().IsRegular() {
			continue
		}
		files = append(files, File{Path: p, Rel: filepath.FromSlash(m), ModTime: info.ModTime()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// Changed returns the files matching pattern modified after since. A zero
// since selects every file.
func Changed(pattern string, since time.Time) ([]File, error) {
	files, err := Glob(pattern)
	if err != nil || since.IsZero() {
		return files, err
	}
	out := files[:0]
	for _, f := range files {
		if f.ModTime.After(since) {
			out = append(out, f)
		}
	}
	return out, nil
}

// Match reports whether path matches pattern. Both are compared in slash form.
func Match(pattern, path string) bool {
	ok, err := doublestar.PathMatch(filepath.FromSlash(pattern), path)
	return err == nil && ok
}
