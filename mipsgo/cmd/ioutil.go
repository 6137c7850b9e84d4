package cmd

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/zkmips-labs/obelisc/mipsgo/fast"
)

func loadJSON[X any](inputPath string) (*X, error) {
	if inputPath == "" {
		return nil, fmt.Errorf("no path specified")
	}
	f, err := os.OpenFile(inputPath, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %q: %w", inputPath, err)
	}
	defer f.Close()
	var r io.Reader = f
	if isGzip(inputPath) {
		r, err = gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip reader for %q: %w", inputPath, err)
		}
	}
	var obj X
	if err := json.NewDecoder(r).Decode(&obj); err != nil {
		return nil, fmt.Errorf("failed to decode file %q: %w", inputPath, err)
	}
	return &obj, nil
}

func writeJSON(outputPath string, value any) error {
	if outputPath == "" {
		return nil
	}
	var out io.Writer
	finish := func() error { return nil }
	if outputPath != "-" {
		f, err := os.OpenFile(outputPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0755)
		if err != nil {
			return fmt.Errorf("failed to open output file: %w", err)
		}
		defer f.Close()
		out = f
		if isGzip(outputPath) {
			g := gzip.NewWriter(f)
			out = g
			finish = g.Close
		}
	} else {
		out = os.Stdout
	}
	enc := json.NewEncoder(out)
	if err := enc.Encode(value); err != nil {
		return fmt.Errorf("failed to encode to JSON: %w", err)
	}
	if _, err := io.WriteString(out, "\n"); err != nil {
		return fmt.Errorf("failed to append new-line: %w", err)
	}
	if err := finish(); err != nil {
		return fmt.Errorf("failed to finish write: %w", err)
	}
	return nil
}

func isGzip(path string) bool {
	return strings.HasSuffix(path, ".gz")
}

func isBinary(path string) bool {
	base := strings.TrimSuffix(filepath.Base(path), ".gz")
	return strings.HasSuffix(base, ".bin")
}

// loadVMState reads a VM state checkpoint, in JSON or binary form
// depending on the file extension, with optional gzip compression.
func loadVMState(path string) (*fast.VMState, error) {
	if !isBinary(path) {
		return loadJSON[fast.VMState](path)
	}
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open state file %q: %w", path, err)
	}
	defer f.Close()
	var r io.Reader = f
	if isGzip(path) {
		r, err = gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip reader for %q: %w", path, err)
		}
	}
	var state fast.VMState
	if err := state.Deserialize(r); err != nil {
		return nil, fmt.Errorf("failed to deserialize state %q: %w", path, err)
	}
	return &state, nil
}

func writeVMState(path string, state *fast.VMState) error {
	if path == "" {
		return nil
	}
	if !isBinary(path) {
		return writeJSON(path, state)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0755)
	if err != nil {
		return fmt.Errorf("failed to open state output file: %w", err)
	}
	defer f.Close()
	var out io.Writer = f
	finish := func() error { return nil }
	if isGzip(path) {
		g := gzip.NewWriter(f)
		out = g
		finish = g.Close
	}
	if err := state.Serialize(out); err != nil {
		return fmt.Errorf("failed to serialize state: %w", err)
	}
	return finish()
}
