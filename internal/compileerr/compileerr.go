// Package compileerr builds classified compile errors carrying a source location.
package compileerr

import (
	"fmt"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
)

// Location identifies a position in a source file. Line and Column are 1-based;
// zero means unknown.
type Location struct {
	File   string
	Line   int
	Column int
}

func (l Location) String() string {
	switch {
	case l.File == "":
		return ""
	case l.Line == 0:
		return l.File
	case l.Column == 0:
		return fmt.Sprintf("%s:%d", l.File, l.Line)
	default:
		return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
	}
}

// New returns a compile error. The location is attached as error context.
func New(message string, loc Location, cause error) error {
	b := errors.CompileError(message)
	if cause != nil {
		b = b.WithCause(cause)
	}
	if loc.File != "" {
		b = b.WithContext("file", loc.File)
	}
	if loc.Line > 0 {
		b = b.WithContext("line", loc.Line)
	}
	if loc.Column > 0 {
		b = b.WithContext("column", loc.Column)
	}
	return b.Build()
}

// LocationOf extracts the location attached by New.
func LocationOf(err error) (Location, bool) {
	ce, ok := errors.AsClassified(err)
	if !ok || !ce.IsCategory(errors.CategoryCompile) {
		return Location{}, false
	}
	var loc Location
	loc.File, _ = ce.Context().GetString("file")
	if v, ok := ce.Context().Get("line"); ok {
		loc.Line, _ = v.(int)
	}
	if v, ok := ce.Context().Get("column"); ok {
		loc.Column, _ = v.(int)
	}
	return loc, loc.File != ""
}

// FromEsbuild converts esbuild error messages to a single compile error. The
// first message determines the location; the rest are appended to the text.
func FromEsbuild(msgs []api.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	var loc Location
	if l := msgs[0].Location; l != nil {
		// esbuild columns are 0-based.
		loc = Location{File: l.File, Line: l.Line, Column: l.Column + 1}
	}
	texts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		texts = append(texts, Describe(m))
	}
	return New(strings.Join(texts, "; "), loc, nil)
}

// Describe renders one esbuild message as "file:line:col: text".
func Describe(m api.Message) string {
	if m.Location == nil {
		return m.Text
	}
	loc := Location{File: m.Location.File, Line: m.Location.Line, Column: m.Location.Column + 1}
	return loc.String() + ": " + m.Text
}
