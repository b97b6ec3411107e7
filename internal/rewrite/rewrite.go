// Package rewrite replaces logical asset names in HTML attributes with their
// content-hashed file names from the build manifests.
package rewrite

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"

	"git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
	"git.home.luguber.info/inful/assetpipe/internal/manifest"
)

// Attributes that may carry asset references.
var urlAttributes = map[string]bool{
	"href":     true,
	"src":      true,
	"srcset":   true,
	"poster":   true,
	"data-src": true,
}

// Rewriter maps references to hashed names.
type Rewriter struct {
	m    *manifest.Manifest
	keys []string
}

// New builds a rewriter from one or more manifests. Keys must not collide
// across manifests.
func New(manifests ...*manifest.Manifest) (*Rewriter, error) {
	m, err := manifest.Merge(manifests...)
	if err != nil {
		return nil, err
	}
	return &Rewriter{m: m, keys: m.Keys()}, nil
}

// URL rewrites a single attribute value. It reports whether anything changed.
// A reference matches a key when its path equals the key or ends in "/"+key.
// Query strings and fragments are kept. Absolute URLs are left alone.
func (r *Rewriter) URL(value string) (string, bool) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" || isExternal(trimmed) {
		return value, false
	}

	path, rest := trimmed, ""
	if i := strings.IndexAny(trimmed, "?#"); i >= 0 {
		path, rest = trimmed[:i], trimmed[i:]
	}

	for _, key := range r.keys {
		if path != key && !strings.HasSuffix(path, "/"+key) {
			continue
		}
		hashed, _ := r.m.Lookup(key)
		return path[:len(path)-len(key)] + hashed + rest, true
	}
	return value, false
}

// SrcSet rewrites every candidate URL of a srcset value.
func (r *Rewriter) SrcSet(value string) (string, bool) {
	candidates := strings.Split(value, ",")
	changed := false
	for i, c := range candidates {
		fields := strings.Fields(c)
		if len(fields) == 0 {
			continue
		}
		if nu, ok := r.URL(fields[0]); ok {
			fields[0] = nu
			candidates[i] = strings.Join(fields, " ")
			changed = true
		}
	}
	if !changed {
		return value, false
	}
	for i := range candidates {
		candidates[i] = strings.TrimSpace(candidates[i])
	}
	return strings.Join(candidates, ", "), true
}

func isExternal(v string) bool {
	if strings.HasPrefix(v, "//") || strings.HasPrefix(v, "#") {
		return true
	}
	// A scheme is letters followed by ':' before any '/', '?' or '#'.
	for i, c := range v {
		switch {
		case c == ':':
			return i > 0
		case c == '/' || c == '?' || c == '#':
			return false
		}
	}
	return false
}

// HTML copies an HTML document from src to dst, rewriting asset references.
// Tags without a rewritten attribute are copied byte for byte. It returns the
// number of rewritten attributes.
func (r *Rewriter) HTML(dst io.Writer, src io.Reader) (int, error) {
	z := html.NewTokenizer(src)
	rewritten := 0

	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if z.Err() == io.EOF {
				return rewritten, nil
			}
			return rewritten, errors.WrapError(z.Err(), errors.CategoryFileSystem, "failed to read HTML").Build()
		}

		raw := bytes.Clone(z.Raw())
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			if _, err := dst.Write(raw); err != nil {
				return rewritten, err
			}
			continue
		}

		tok := z.Token()
		changed := 0
		for i, a := range tok.Attr {
			if a.Namespace != "" || !urlAttributes[a.Key] {
				continue
			}
			var nv string
			var ok bool
			if a.Key == "srcset" {
				nv, ok = r.SrcSet(a.Val)
			} else {
				nv, ok = r.URL(a.Val)
			}
			if ok {
				tok.Attr[i].Val = nv
				changed++
			}
		}

		out := raw
		if changed > 0 {
			out = []byte(tok.String())
			rewritten += changed
		}
		if _, err := dst.Write(out); err != nil {
			return rewritten, err
		}
	}
}

// File rewrites the HTML file at src into dst, creating parent directories.
func (r *Rewriter) File(src, dst string) (int, error) {
	in, err := os.Open(filepath.Clean(src))
	if err != nil {
		return 0, errors.WrapError(err, errors.CategoryFileSystem, "failed to open HTML file").
			WithContext("file", src).Build()
	}
	defer func() { _ = in.Close() }()

	var buf bytes.Buffer
	n, err := r.HTML(&buf, in)
	if err != nil {
		return 0, errors.WrapError(err, errors.CategoryFileSystem, "failed to rewrite HTML file").
			WithContext("file", src).Build()
	}
	if err := writeFile(dst, buf.Bytes()); err != nil {
		return 0, err
	}
	return n, nil
}

func writeFile(dst string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "failed to create output directory").
			WithContext("file", dst).Build()
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "failed to write HTML file").
			WithContext("file", dst).Build()
	}
	return nil
}
