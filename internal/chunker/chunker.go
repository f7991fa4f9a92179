// Package chunker splits a local file into bounded-size temporary part files
// for multi-request upload sessions.
package chunker

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/tonimelisma/dropbox-upload/internal/failure"
)

// partPerms restricts part files to owner-only access; they hold a verbatim
// copy of the source bytes.
const partPerms = 0o600

// Part is one window of the source file, copied to its own temporary file.
type Part struct {
	Index int    // position in read order, 0-based
	Size  int64  // bytes in this part
	Path  string // temporary file holding the bytes
}

// Split reads path sequentially and writes successive chunkSize-byte windows
// (the last may be shorter) to temporary files in dir. An empty dir means
// os.TempDir(). Parts are returned in read order.
//
// On success the caller owns every part file and must delete them with
// Remove. On failure any part files already written are removed before the
// error is returned.
func Split(path string, chunkSize int64, dir string) ([]Part, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", failure.ErrIO, chunkSize)
	}

	src, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %w", failure.ErrIO, path, err)
	}
	defer src.Close()

	base := filepath.Base(path)

	var parts []Part

	success := false
	defer func() {
		if !success {
			_ = Remove(parts) //nolint:errcheck // best-effort on the error path
		}
	}()

	for index := 0; ; index++ {
		part, done, err := writePart(src, dir, base, index, chunkSize)
		if err != nil {
			return nil, err
		}

		if part != nil {
			parts = append(parts, *part)
		}

		if done {
			break
		}
	}

	success = true

	return parts, nil
}

// writePart copies up to chunkSize bytes from src into a new temp file.
// Returns done=true once src is exhausted. A window that turns out to be
// empty produces no part.
func writePart(src io.Reader, dir, base string, index int, chunkSize int64) (*Part, bool, error) {
	tmp, err := os.CreateTemp(dir, fmt.Sprintf(".%s.part%d-*", base, index))
	if err != nil {
		return nil, false, fmt.Errorf("%w: creating part %d: %w", failure.ErrIO, index, err)
	}

	tmpPath := tmp.Name()

	if err := os.Chmod(tmpPath, partPerms); err != nil {
		tmp.Close()
		os.Remove(tmpPath)

		return nil, false, fmt.Errorf("%w: setting part %d permissions: %w", failure.ErrIO, index, err)
	}

	n, copyErr := io.CopyN(tmp, src, chunkSize)
	closeErr := tmp.Close()

	if copyErr != nil && !errors.Is(copyErr, io.EOF) {
		os.Remove(tmpPath)
		return nil, false, fmt.Errorf("%w: writing part %d: %w", failure.ErrIO, index, copyErr)
	}

	if closeErr != nil {
		os.Remove(tmpPath)
		return nil, false, fmt.Errorf("%w: closing part %d: %w", failure.ErrIO, index, closeErr)
	}

	// io.EOF from CopyN means fewer than chunkSize bytes were left.
	done := errors.Is(copyErr, io.EOF)

	if n == 0 {
		os.Remove(tmpPath)
		return nil, true, nil
	}

	return &Part{Index: index, Size: n, Path: tmpPath}, done, nil
}

// Remove deletes every part file. It keeps going past individual failures and
// reports them together. Already-missing files are not errors.
func Remove(parts []Part) error {
	var errs []error

	for _, p := range parts {
		if err := os.Remove(p.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: removing part files: %w", failure.ErrIO, errors.Join(errs...))
	}

	return nil
}
