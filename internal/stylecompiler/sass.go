package stylecompiler

import (
	"bytes"
	"context"
	stderrors "errors"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"git.home.luguber.info/inful/assetpipe/internal/compileerr"
	"git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
)

// SassCLI runs the dart-sass executable and reads CSS from its stdout.
type SassCLI struct {
	Binary string
}

// Args returns the command line for opts, without the binary.
func (s *SassCLI) Args(opts Options) []string {
	args := []string{"--no-error-css"}
	for _, p := range opts.LoadPaths {
		args = append(args, "--load-path="+p)
	}
	if opts.SourceMap {
		args = append(args, "--embed-source-map", "--embed-sources")
	} else {
		args = append(args, "--no-source-map")
	}
	return append(args, opts.Entry)
}

func (s *SassCLI) Compile(ctx context.Context, opts Options) ([]byte, error) {
	bin := s.Binary
	if bin == "" {
		bin = "sass"
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, s.Args(opts)...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if stderrors.As(err, &exitErr) {
			return nil, parseSassError(stderr.String(), opts.Entry)
		}
		return nil, errors.WrapError(err, errors.CategoryConfig, "failed to run sass").
			WithContext("binary", bin).Build()
	}
	return stdout.Bytes(), nil
}

// sass prints the failing location as "  path/to/file.scss 12:3  root stylesheet".
var sassLocation = regexp.MustCompile(`(?m)^\s*(\S+\.(?:scss|sass|css)) (\d+):(\d+)`)

func parseSassError(stderr, entry string) error {
	message := strings.TrimSpace(stderr)
	if first, _, ok := strings.Cut(message, "\n"); ok {
		message = first
	}
	message = strings.TrimPrefix(message, "Error: ")
	if message == "" {
		message = "sass compilation failed"
	}

	loc := compileerr.Location{File: entry}
	if m := sassLocation.FindStringSubmatch(stderr); m != nil {
		loc.File = m[1]
		loc.Line, _ = strconv.Atoi(m[2])
		loc.Column, _ = strconv.Atoi(m[3])
	}
	return compileerr.New(message, loc, nil)
}
