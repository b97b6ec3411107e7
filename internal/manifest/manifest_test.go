package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManifest_SetIsWriteOnce(t *testing.T) {
	m := New()
	require.NoError(t, m.Set("app.css", "app-ab12cd34ef.css"))
	require.Error(t, m.Set("app.css", "app-0000000000.css"))

	got, ok := m.Lookup("app.css")
	require.True(t, ok)
	assert.Equal(t, "app-ab12cd34ef.css", got)

	require.Error(t, m.Set("", "x.css"))
}

func TestManifest_WriteThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest", "css.json")
	m := New()
	require.NoError(t, m.Set("index.css", "index-0123456789.css"))

	require.NoError(t, Write(path, m))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"index.css":"index-0123456789.css"}`, string(data))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, m.Entries(), loaded.Entries())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files may be left behind")
}

func TestManifest_WriteReplacesFromScratch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "webpack.json")
	first := New()
	require.NoError(t, first.Set("index.js", "index-AAAA.js"))
	require.NoError(t, first.Set("admin.js", "admin-BBBB.js"))
	require.NoError(t, Write(path, first))

	second := New()
	require.NoError(t, second.Set("index.js", "index-CCCC.js"))
	require.NoError(t, Write(path, second))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"index.js": "index-CCCC.js"}, loaded.Entries())
}

func TestLoad_MissingIsEmpty(t *testing.T) {
	m, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Equal(t, 0, m.Len())
}

func TestLoad_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "css.json")
	require.NoError(t, os.WriteFile(path, []byte(`["not", "an", "object"]`), 0o644))
	_, err := Load(path)
	require.Error(t, err)
}

func TestKeysLongestFirst(t *testing.T) {
	m := New()
	require.NoError(t, m.Set("index.js", "index-1.js"))
	require.NoError(t, m.Set("admin.index.js", "admin.index-2.js"))
	require.NoError(t, m.Set("a.js", "a-3.js"))

	assert.Equal(t, []string{"admin.index.js", "index.js", "a.js"}, m.Keys())
}

func TestMerge(t *testing.T) {
	css := New()
	require.NoError(t, css.Set("index.css", "index-1.css"))
	js := New()
	require.NoError(t, js.Set("index.js", "index-2.js"))

	merged, err := Merge(css, nil, js)
	require.NoError(t, err)
	assert.Equal(t, 2, merged.Len())

	_, err = Merge(css, css)
	require.Error(t, err)
}
