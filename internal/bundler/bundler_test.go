package bundler

import (
	"os"
	"path/filepath"
	"regexp"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/assetpipe/internal/compileerr"
	"git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
)

func writeSources(t *testing.T, dir string) string {
	t.Helper()
	src := filepath.Join(dir, "src", "js")
	require.NoError(t, os.MkdirAll(src, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "util.js"),
		[]byte("export const pick = (a, b) => a ?? b;\n"), 0o600))
	entry := filepath.Join(src, "index.js")
	require.NoError(t, os.WriteFile(entry,
		[]byte("import { pick } from './util.js';\nconsole.log(pick(null, 'fallback'));\n"), 0o600))
	return entry
}

func TestBuild_Production(t *testing.T) {
	dir := t.TempDir()
	entry := writeSources(t, dir)
	out := filepath.Join(dir, "dist", "js")

	res, err := Build(Options{
		Entries:    map[string]string{"index": entry},
		OutDir:     out,
		WorkDir:    dir,
		Target:     "es2015",
		Production: true,
	})
	require.NoError(t, err)
	require.Len(t, res.Outputs, 1)

	o := res.Outputs[0]
	assert.Equal(t, "index", o.Entry)
	assert.Regexp(t, regexp.MustCompile(`^index-[A-Z0-9]+\.js$`), o.FileName(out))
	assert.Positive(t, o.Bytes)

	data, err := os.ReadFile(o.Path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "??", "ES2015 target lowers nullish coalescing")
	assert.NotContains(t, string(data), "sourceMappingURL")
	assert.Contains(t, string(data), "fallback")
}

func TestBuild_Development(t *testing.T) {
	dir := t.TempDir()
	entry := writeSources(t, dir)
	out := filepath.Join(dir, "dist", "js")

	res, err := Build(Options{
		Entries: map[string]string{"index": entry},
		OutDir:  out,
		WorkDir: dir,
	})
	require.NoError(t, err)
	require.Len(t, res.Outputs, 1)
	assert.Equal(t, "index.js", res.Outputs[0].FileName(out))

	data, err := os.ReadFile(filepath.Join(out, "index.js"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "sourceMappingURL=data:")
}

func TestBuild_CompileError(t *testing.T) {
	dir := t.TempDir()
	entry := filepath.Join(dir, "index.js")
	require.NoError(t, os.WriteFile(entry, []byte("const = ;\n"), 0o600))

	_, err := Build(Options{
		Entries: map[string]string{"index": entry},
		OutDir:  filepath.Join(dir, "dist"),
		WorkDir: dir,
	})
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryCompile))

	loc, ok := compileerr.LocationOf(err)
	require.True(t, ok)
	assert.Equal(t, 1, loc.Line)
}

func TestBuild_NoEntries(t *testing.T) {
	_, err := Build(Options{OutDir: t.TempDir()})
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryConfig))
}

func TestOutput_PublicURL(t *testing.T) {
	out := filepath.Join("dist", "js")
	o := Output{Entry: "index", Path: filepath.Join(out, "index-ABC123.js")}

	tests := []struct {
		publicPath string
		url        string
	}{
		{"/js/", "/js/index-ABC123.js"},
		{"/js", "/js/index-ABC123.js"},
		{"https://cdn.example.com/js/", "https://cdn.example.com/js/index-ABC123.js"},
		{"", "index-ABC123.js"},
	}
	for _, tt := range tests {
		t.Run(tt.publicPath, func(t *testing.T) {
			url := o.PublicURL(out, tt.publicPath)
			assert.Equal(t, tt.url, url)
			assert.Equal(t, "index-ABC123.js", ManifestName(url, tt.publicPath))
		})
	}
}

func TestBuild_PublicPathAppliesToFileAssets(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src", "js")
	require.NoError(t, os.MkdirAll(src, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "logo.svg"), []byte("<svg xmlns=\"http://www.w3.org/2000/svg\"/>"), 0o600))
	entry := filepath.Join(src, "index.js")
	require.NoError(t, os.WriteFile(entry, []byte("import logo from './logo.svg';\nconsole.log(logo);\n"), 0o600))

	opts := Options{
		Entries:    map[string]string{"index": entry},
		OutDir:     filepath.Join(dir, "dist", "js"),
		WorkDir:    dir,
		PublicPath: "/js/",
	}
	bo, err := opts.buildOptions()
	require.NoError(t, err)
	assert.Equal(t, "/js/", bo.PublicPath)

	res, err := Build(opts)
	require.NoError(t, err)
	data, err := os.ReadFile(res.Outputs[0].Path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "/js/logo")
}

func TestParseTarget(t *testing.T) {
	_, err := ParseTarget("es2015")
	require.NoError(t, err)
	_, err = ParseTarget("")
	require.NoError(t, err)
	_, err = ParseTarget("es1999")
	require.Error(t, err)
}

func TestParseMetafile(t *testing.T) {
	o := Options{Entries: map[string]string{"index": "src/js/index.js", "admin": "src/js/admin.js"}}
	meta := `{
	  "inputs": {},
	  "outputs": {
	    "dist/js/index-ABC123.js": {"bytes": 120, "entryPoint": "src/js/index.js"},
	    "dist/js/chunk-XYZ.js": {"bytes": 10},
	    "dist/js/admin-DEF456.js": {"bytes": 80, "entryPoint": "src/js/admin.js"}
	  }
	}`

	outputs, err := o.parseMetafile(meta, "/work")
	require.NoError(t, err)
	require.Len(t, outputs, 2)
	assert.Equal(t, "admin", outputs[0].Entry)
	assert.Equal(t, "admin-DEF456.js", outputs[0].FileName("/work/dist/js"))
	assert.Equal(t, int64(80), outputs[0].Bytes)
	assert.Equal(t, "index-ABC123.js", outputs[1].FileName("/work/dist/js"))

	_, err = o.parseMetafile("{not json", "/work")
	require.Error(t, err)

	_, err = o.parseMetafile(`{"outputs": {}}`, "/work")
	require.Error(t, err)
}

func TestWatch_RebuildsOnChange(t *testing.T) {
	dir := t.TempDir()
	entry := writeSources(t, dir)
	out := filepath.Join(dir, "dist", "js")

	rebuilt := make(chan error, 8)
	w, res, err := Watch(Options{
		Entries: map[string]string{"index": entry},
		OutDir:  out,
		WorkDir: dir,
	}, func(_ *Result, err error) { rebuilt <- err })
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	require.Len(t, res.Outputs, 1)
	assert.FileExists(t, filepath.Join(out, "index.js"))

	require.NoError(t, os.WriteFile(entry, []byte("console.log('changed');\n"), 0o600))

	deadline := time.After(10 * time.Second)
	for {
		select {
		case err := <-rebuilt:
			if err != nil {
				continue
			}
			data, readErr := os.ReadFile(filepath.Join(out, "index.js"))
			require.NoError(t, readErr)
			if regexp.MustCompile(`changed`).Match(data) {
				require.NoError(t, w.Close())
				return
			}
		case <-deadline:
			t.Fatal("watch did not rebuild after the entry changed")
		}
	}
}

func TestWatch_FirstCompileIsNotReportedAgain(t *testing.T) {
	dir := t.TempDir()
	entry := writeSources(t, dir)

	var calls atomic.Int32
	w, _, err := Watch(Options{
		Entries: map[string]string{"index": entry},
		OutDir:  filepath.Join(dir, "dist", "js"),
		WorkDir: dir,
	}, func(*Result, error) { calls.Add(1) })
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	time.Sleep(200 * time.Millisecond)
	assert.Zero(t, calls.Load(), "no rebuild without a change")
}
