package stages

import (
	"io"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
)

// copyFile copies src to dst byte for byte, creating parent directories.
func copyFile(src, dst string) (int64, error) {
	in, err := os.Open(filepath.Clean(src))
	if err != nil {
		return 0, errors.WrapError(err, errors.CategoryFileSystem, "failed to open source file").
			WithContext("file", src).Build()
	}
	defer func() { _ = in.Close() }()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, errors.WrapError(err, errors.CategoryFileSystem, "failed to create output directory").
			WithContext("file", dst).Build()
	}
	out, err := os.Create(filepath.Clean(dst))
	if err != nil {
		return 0, errors.WrapError(err, errors.CategoryFileSystem, "failed to create output file").
			WithContext("file", dst).Build()
	}
	n, err := io.Copy(out, in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, errors.WrapError(err, errors.CategoryFileSystem, "failed to copy file").
			WithContext("file", src).WithContext("target", dst).Build()
	}
	return n, nil
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "failed to create output directory").
			WithContext("file", path).Build()
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "failed to write file").
			WithContext("file", path).Build()
	}
	return nil
}
