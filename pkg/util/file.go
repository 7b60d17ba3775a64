// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package util

import (
	"fmt"
	"os"
	"path/filepath"
)

// ReadFileSafely reads a file after resolving the path to an absolute
// location, so relative config paths stay stable regardless of the working
// directory at reload time.
func ReadFileSafely(path string) ([]byte, error) {
	if path == "" {
		return nil, fmt.Errorf("empty file path")
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("could not resolve path %s: %w", path, err)
	}
	return os.ReadFile(absPath) // #nosec G304
}
