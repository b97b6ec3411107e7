// Package bundler bundles script entry points with esbuild.
package bundler

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/tidwall/gjson"

	"git.home.luguber.info/inful/assetpipe/internal/compileerr"
	"git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
)

// Options configures a bundle.
type Options struct {
	// Entries maps entry name (output base name) to source path.
	Entries map[string]string
	OutDir  string
	// WorkDir resolves relative paths. Defaults to the process working directory.
	WorkDir string
	Target  string
	// PublicPath is the URL prefix OutDir is served under, e.g. "/js/".
	PublicPath string
	// Production minifies and content-hashes output names. Otherwise outputs
	// keep their entry names and carry inline source maps.
	Production bool
}

// Output is one emitted entry bundle.
type Output struct {
	Entry string // entry name
	Path  string // absolute path on disk
	Bytes int64
}

// Result describes a completed build.
type Result struct {
	Outputs  []Output
	Warnings []string
}

// FileName returns the bundle's file name relative to outDir, with forward slashes.
func (o Output) FileName(outDir string) string {
	rel, err := filepath.Rel(outDir, o.Path)
	if err != nil {
		return filepath.Base(o.Path)
	}
	return filepath.ToSlash(rel)
}

// PublicURL returns the URL the bundle is served under.
func (o Output) PublicURL(outDir, publicPath string) string {
	name := o.FileName(outDir)
	if publicPath == "" {
		return name
	}
	return strings.TrimSuffix(publicPath, "/") + "/" + name
}

// ManifestName strips the public path from a bundle URL, leaving the name the
// scripts manifest records.
func ManifestName(url, publicPath string) string {
	if publicPath == "" {
		return url
	}
	return strings.TrimPrefix(strings.TrimPrefix(url, strings.TrimSuffix(publicPath, "/")), "/")
}

var targets = map[string]api.Target{
	"es5":    api.ES5,
	"es2015": api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"es2021": api.ES2021,
	"es2022": api.ES2022,
	"esnext": api.ESNext,
}

// ParseTarget maps a target name such as "es2015" to its esbuild constant.
func ParseTarget(name string) (api.Target, error) {
	if name == "" {
		return api.ES2015, nil
	}
	t, ok := targets[strings.ToLower(name)]
	if !ok {
		return 0, errors.ConfigError("unsupported script target: "+name).
			WithContext("target", name).Build()
	}
	return t, nil
}

// fileLoaders emit imported images and fonts next to the bundle; the import
// resolves to their URL under PublicPath.
var fileLoaders = map[string]api.Loader{
	".png":   api.LoaderFile,
	".jpg":   api.LoaderFile,
	".gif":   api.LoaderFile,
	".svg":   api.LoaderFile,
	".woff":  api.LoaderFile,
	".woff2": api.LoaderFile,
}

func (o Options) workDir() (string, error) {
	if o.WorkDir != "" {
		return filepath.Abs(o.WorkDir)
	}
	return os.Getwd()
}

func (o Options) entryNames() []string {
	names := make([]string, 0, len(o.Entries))
	for name := range o.Entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (o Options) buildOptions() (api.BuildOptions, error) {
	if len(o.Entries) == 0 {
		return api.BuildOptions{}, errors.ConfigError("no script entries configured").Build()
	}
	target, err := ParseTarget(o.Target)
	if err != nil {
		return api.BuildOptions{}, err
	}
	wd, err := o.workDir()
	if err != nil {
		return api.BuildOptions{}, errors.WrapError(err, errors.CategoryFileSystem, "failed to resolve working directory").Build()
	}

	entries := make([]api.EntryPoint, 0, len(o.Entries))
	for _, name := range o.entryNames() {
		entries = append(entries, api.EntryPoint{InputPath: o.Entries[name], OutputPath: name})
	}

	opts := api.BuildOptions{
		EntryPointsAdvanced: entries,
		AbsWorkingDir:       wd,
		Outdir:              o.OutDir,
		Bundle:              true,
		Write:               true,
		Metafile:            true,
		Target:              target,
		LogLevel:            api.LogLevelSilent,
		EntryNames:          "[name]",
		PublicPath:          o.PublicPath,
		AssetNames:          "[name]-[hash]",
		Loader:              fileLoaders,
	}
	if o.Production {
		opts.EntryNames = "[name]-[hash]"
		opts.MinifyWhitespace = true
		opts.MinifyIdentifiers = true
		opts.MinifySyntax = true
	} else {
		opts.Sourcemap = api.SourceMapInline
	}
	return opts, nil
}

// Build runs a one-shot build.
func Build(o Options) (*Result, error) {
	opts, err := o.buildOptions()
	if err != nil {
		return nil, err
	}
	return o.collect(api.Build(opts), opts.AbsWorkingDir)
}

func (o Options) collect(r api.BuildResult, wd string) (*Result, error) {
	if len(r.Errors) > 0 {
		return nil, compileerr.FromEsbuild(r.Errors)
	}
	outputs, err := o.parseMetafile(r.Metafile, wd)
	if err != nil {
		return nil, err
	}
	res := &Result{Outputs: outputs}
	for _, w := range r.Warnings {
		res.Warnings = append(res.Warnings, compileerr.Describe(w))
	}
	return res, nil
}

// parseMetafile maps esbuild's outputs back to entry names. Metafile paths are
// relative to the working directory.
func (o Options) parseMetafile(metafile, wd string) ([]Output, error) {
	if !gjson.Valid(metafile) {
		return nil, errors.InternalError("esbuild returned an invalid metafile").Build()
	}

	byInput := make(map[string]string, len(o.Entries))
	for name, src := range o.Entries {
		byInput[absPath(wd, src)] = name
	}

	var outputs []Output
	gjson.Get(metafile, "outputs").ForEach(func(key, value gjson.Result) bool {
		entryPoint := value.Get("entryPoint")
		if !entryPoint.Exists() {
			return true
		}
		name, ok := byInput[absPath(wd, entryPoint.String())]
		if !ok {
			return true
		}
		outputs = append(outputs, Output{
			Entry: name,
			Path:  absPath(wd, key.String()),
			Bytes: value.Get("bytes").Int(),
		})
		return true
	})
	sort.Slice(outputs, func(i, j int) bool { return outputs[i].Entry < outputs[j].Entry })

	if len(outputs) != len(o.Entries) {
		return nil, errors.InternalError("esbuild metafile does not list every entry").
			WithContext("expected", len(o.Entries)).WithContext("found", len(outputs)).Build()
	}
	return outputs, nil
}

func absPath(wd, p string) string {
	p = filepath.FromSlash(p)
	if !filepath.IsAbs(p) {
		p = filepath.Join(wd, p)
	}
	return filepath.Clean(p)
}
