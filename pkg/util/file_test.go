// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package util

import (
	"os"
	"path/filepath"
	"testing"
)

func TestReadFileSafely(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.txt")
	if err := os.WriteFile(path, []byte("payload"), 0o600); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}

	data, err := ReadFileSafely(path)
	if err != nil {
		t.Fatalf("ReadFileSafely() error = %v", err)
	}
	if string(data) != "payload" {
		t.Errorf("ReadFileSafely() = %q, want %q", data, "payload")
	}
}

func TestReadFileSafelyEmptyPath(t *testing.T) {
	if _, err := ReadFileSafely(""); err == nil {
		t.Error("ReadFileSafely(\"\") expected error")
	}
}

func TestReadFileSafelyMissingFile(t *testing.T) {
	if _, err := ReadFileSafely(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Error("ReadFileSafely() expected error for missing file")
	}
}
