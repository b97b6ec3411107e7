// Package stylecompiler turns a stylesheet entry into CSS.
//
// Sass sources (.scss, .sass) are compiled by the sass executable. Plain CSS
// entries are bundled with esbuild so that @import chains are inlined. Both
// paths honour load paths and can embed an inline source map.
package stylecompiler

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"git.home.luguber.info/inful/assetpipe/internal/compileerr"
	"git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
)

// Options describe one compilation.
type Options struct {
	Entry     string
	LoadPaths []string
	// SourceMap embeds an inline source map in the output.
	SourceMap bool
}

// Compiler compiles a stylesheet entry to CSS.
type Compiler interface {
	Compile(ctx context.Context, opts Options) ([]byte, error)
}

// Dispatch selects a compiler by the entry's extension.
type Dispatch struct {
	Sass Compiler
	CSS  Compiler
}

// New returns the default compiler: the given sass executable for Sass
// sources and esbuild for CSS.
func New(sassBinary string) *Dispatch {
	return &Dispatch{
		Sass: &SassCLI{Binary: sassBinary},
		CSS:  Esbuild{},
	}
}

func (d *Dispatch) Compile(ctx context.Context, opts Options) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(opts.Entry)) {
	case ".scss", ".sass":
		return d.Sass.Compile(ctx, opts)
	case ".css":
		return d.CSS.Compile(ctx, opts)
	default:
		return nil, errors.ConfigError("unsupported stylesheet entry type").
			WithContext("file", opts.Entry).Build()
	}
}

// Esbuild bundles plain CSS entries.
type Esbuild struct{}

func (Esbuild) Compile(_ context.Context, opts Options) ([]byte, error) {
	build := api.BuildOptions{
		EntryPoints: []string{opts.Entry},
		Bundle:      true,
		Write:       false,
		Outdir:      filepath.Dir(opts.Entry),
		NodePaths:   opts.LoadPaths,
		LogLevel:    api.LogLevelSilent,
		Loader: map[string]api.Loader{
			".css": api.LoaderCSS,
		},
	}
	if opts.SourceMap {
		build.Sourcemap = api.SourceMapInline
	}

	result := api.Build(build)
	if len(result.Errors) > 0 {
		return nil, compileerr.FromEsbuild(result.Errors)
	}
	for _, f := range result.OutputFiles {
		if strings.HasSuffix(f.Path, ".css") {
			return f.Contents, nil
		}
	}
	return nil, errors.InternalError("esbuild produced no CSS output").
		WithContext("file", opts.Entry).Build()
}

// Minify compresses CSS with esbuild's minifier.
func Minify(css []byte) ([]byte, error) {
	result := api.Transform(string(css), api.TransformOptions{
		Loader:            api.LoaderCSS,
		MinifyWhitespace:  true,
		MinifySyntax:      true,
		MinifyIdentifiers: true,
		LogLevel:          api.LogLevelSilent,
	})
	if len(result.Errors) > 0 {
		return nil, compileerr.FromEsbuild(result.Errors)
	}
	return result.Code, nil
}
