package audio

import (
	"fmt"
	"os"
)

// WithTempDir creates a fresh directory under base, runs fn with it and
// removes the directory and everything in it afterwards, including when fn
// fails or panics. An empty base uses the system temp directory.
func WithTempDir(base, prefix string, fn func(dir string) error) (err error) {
	if base != "" {
		if mkErr := os.MkdirAll(base, 0o755); mkErr != nil {
			return fmt.Errorf("cannot create temp base dir: %w", mkErr)
		}
	}

	dir, err := os.MkdirTemp(base, prefix)
	if err != nil {
		return fmt.Errorf("cannot create temp dir: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(dir); rmErr != nil && err == nil {
			err = fmt.Errorf("cannot remove temp dir: %w", rmErr)
		}
	}()

	return fn(dir)
}
