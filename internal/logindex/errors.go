package logindex

import (
	"errors"
	"fmt"
	"os"
)

// Error taxonomy for index and range-read failures. Callers classify with
// errors.Is; nothing in this package returns an unclassified error.
var (
	// ErrNotFound: the log file does not exist.
	ErrNotFound = errors.New("log file not found")

	// ErrIO: a read, seek or stat failed.
	ErrIO = errors.New("log i/o failure")

	// ErrCorruptIndex: the index and the file disagree (e.g. the file was
	// truncated after indexing). The caller should rebuild.
	ErrCorruptIndex = errors.New("index out of sync with file")
)

// ioErr wraps a filesystem error with the matching sentinel.
func ioErr(op, path string, err error) error {
	if os.IsNotExist(err) {
		return fmt.Errorf("%s %s: %w", op, path, ErrNotFound)
	}
	return fmt.Errorf("%s %s: %v: %w", op, path, err, ErrIO)
}
