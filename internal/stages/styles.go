package stages

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/assetpipe/internal/config"
	"git.home.luguber.info/inful/assetpipe/internal/logfields"
	"git.home.luguber.info/inful/assetpipe/internal/manifest"
	"git.home.luguber.info/inful/assetpipe/internal/notify"
	"git.home.luguber.info/inful/assetpipe/internal/stylecompiler"
	"git.home.luguber.info/inful/assetpipe/internal/taskgraph"
)

// HashLength is the number of hex digits in content-hashed file names.
const HashLength = 10

// Styles compiles the stylesheet entry.
type Styles struct {
	Mode         config.BuildMode
	Entry        string
	OutDir       string
	LoadPaths    []string
	ManifestPath string
	Compiler     stylecompiler.Compiler
	Notifier     notify.Notifier
}

// NewStyles builds the styles stage from configuration.
func NewStyles(cfg *config.Config, mode config.BuildMode, compiler stylecompiler.Compiler, n notify.Notifier) *Styles {
	return &Styles{
		Mode:         mode,
		Entry:        cfg.Styles.Entry,
		OutDir:       cfg.StylesOutputDir(),
		LoadPaths:    cfg.Styles.LoadPaths,
		ManifestPath: cfg.StylesManifestPath(),
		Compiler:     compiler,
		Notifier:     n,
	}
}

// Run compiles, and in production minifies, hashes and records the result in
// the styles manifest. The manifest is written only after the CSS exists.
func (s *Styles) Run(ctx context.Context) error {
	css, err := s.Compiler.Compile(ctx, stylecompiler.Options{
		Entry:     s.Entry,
		LoadPaths: s.LoadPaths,
		SourceMap: s.Mode.IsDevelopment(),
	})
	if err != nil {
		return failCompile(ctx, s.Mode, s.Notifier, "styles", err)
	}

	name := strings.TrimSuffix(filepath.Base(s.Entry), filepath.Ext(s.Entry)) + ".css"

	if s.Mode.IsDevelopment() {
		out := filepath.Join(s.OutDir, name)
		if err := writeFile(out, css); err != nil {
			return err
		}
		slog.DebugContext(ctx, "Wrote stylesheet", logfields.File(out), logfields.Bytes(int64(len(css))))
		return nil
	}

	css, err = stylecompiler.Minify(css)
	if err != nil {
		return failCompile(ctx, s.Mode, s.Notifier, "styles", err)
	}
	hashed := HashedName(name, css)
	out := filepath.Join(s.OutDir, hashed)
	if err := writeFile(out, css); err != nil {
		return err
	}

	m := manifest.New()
	if err := m.Set(name, hashed); err != nil {
		return err
	}
	if err := manifest.Write(s.ManifestPath, m); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Wrote stylesheet", logfields.File(out), logfields.Bytes(int64(len(css))))
	return nil
}

// HashedName inserts the first HashLength hex digits of the content's SHA-256
// before the extension: index.css becomes index-<hash>.css.
func HashedName(name string, content []byte) string {
	sum := sha256.Sum256(content)
	ext := filepath.Ext(name)
	return strings.TrimSuffix(name, ext) + "-" + hex.EncodeToString(sum[:])[:HashLength] + ext
}

// failCompile reports a compile failure and applies the mode's failure policy.
func failCompile(ctx context.Context, mode config.BuildMode, n notify.Notifier, task string, err error) error {
	notify.Report(ctx, n, notify.FromError(task, err))
	err = notify.MarkReported(err)
	if mode.IsDevelopment() {
		return taskgraph.Tolerate(err)
	}
	return err
}
