// Package manifest reads and writes asset manifests: JSON objects mapping a
// logical asset name (index.css, index.js) to the content-hashed file name
// written to disk.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
)

// Manifest maps logical asset keys to hashed file names.
type Manifest struct {
	entries map[string]string
}

// New returns an empty manifest.
func New() *Manifest {
	return &Manifest{entries: make(map[string]string)}
}

// Set records key → file. Entries are write-once: setting an existing key fails.
func (m *Manifest) Set(key, file string) error {
	if key == "" || file == "" {
		return errors.ValidationError("manifest key and file must not be empty").
			WithContext("key", key).WithContext("file", file).Build()
	}
	if prev, ok := m.entries[key]; ok {
		return errors.InternalError(fmt.Sprintf("manifest entry %q already set", key)).
			WithContext("existing", prev).WithContext("file", file).Build()
	}
	m.entries[key] = file
	return nil
}

// Lookup returns the hashed file name for key.
func (m *Manifest) Lookup(key string) (string, bool) {
	if m == nil {
		return "", false
	}
	f, ok := m.entries[key]
	return f, ok
}

// Len returns the number of entries.
func (m *Manifest) Len() int {
	if m == nil {
		return 0
	}
	return len(m.entries)
}

// Keys returns the logical keys sorted by descending length, then lexically.
// Longer keys first lets a rewriter prefer "admin.index.js" over "index.js".
func (m *Manifest) Keys() []string {
	if m == nil {
		return nil
	}
	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return keys
}

// Entries returns a copy of the underlying mapping.
func (m *Manifest) Entries() map[string]string {
	out := make(map[string]string, m.Len())
	if m == nil {
		return out
	}
	for k, v := range m.entries {
		out[k] = v
	}
	return out
}

// Merge combines manifests into a new one. Later manifests do not override
// earlier ones; a key present in both is reported as an error.
func Merge(ms ...*Manifest) (*Manifest, error) {
	out := New()
	for _, m := range ms {
		if m == nil {
			continue
		}
		for k, v := range m.entries {
			if err := out.Set(k, v); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// MarshalJSON implements json.Marshaler. encoding/json sorts map keys, so the
// output is stable between builds with identical inputs.
func (m *Manifest) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Entries())
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *Manifest) UnmarshalJSON(data []byte) error {
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.entries = make(map[string]string, len(raw))
	for k, v := range raw {
		m.entries[k] = v
	}
	return nil
}

// Load reads a manifest from path. A missing file yields an empty manifest:
// a styles-only or scripts-only build legitimately leaves one manifest absent.
func Load(path string) (*Manifest, error) {
	// #nosec G304 - manifest paths come from validated configuration
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return New(), nil
	}
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryFileSystem, "failed to read manifest").
			WithContext("path", path).Build()
	}
	m := New()
	if err := json.Unmarshal(data, m); err != nil {
		return nil, errors.WrapError(err, errors.CategoryConfig, "invalid manifest file").
			WithContext("path", path).Build()
	}
	return m, nil
}

// Write stores the manifest at path, replacing any previous manifest
// atomically (temp file in the same directory, then rename). Readers never
// observe a partially written manifest.
func Write(path string, m *Manifest) error {
	data, err := json.MarshalIndent(m.Entries(), "", "  ")
	if err != nil {
		return errors.WrapError(err, errors.CategoryInternal, "failed to marshal manifest").Build()
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "failed to create manifest directory").
			WithContext("path", dir).Build()
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "failed to create temporary manifest").
			WithContext("path", path).Build()
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		return errors.WrapError(err, errors.CategoryFileSystem, "failed to write manifest").
			WithContext("path", path).Build()
	}
	if err := tmp.Close(); err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "failed to close manifest").
			WithContext("path", path).Build()
	}
	if err := os.Rename(tmpName, path); err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "failed to replace manifest").
			WithContext("path", path).Build()
	}
	return nil
}
