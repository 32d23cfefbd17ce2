package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// LocalSource is the source name of the local reader.
const LocalSource = "local"

// Compile-time interface check.
var _ Reader = (*localReader)(nil)

type localReader struct {
	root string
}

// NewLocalReader creates a Reader over {resultsDir}/runs.
func NewLocalReader(resultsDir string) Reader {
	return &localReader{root: filepath.Clean(resultsDir)}
}

func (r *localReader) Source() string {
	return LocalSource
}

// ListRunIDs returns run directory names under {root}/runs/, sorted.
func (r *localReader) ListRunIDs(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(r.root, runsDir))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("reading runs directory: %w", err)
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}

	sort.Strings(ids)

	return ids, nil
}

// GetRunFile reads {root}/runs/{runID}/{filename}.
// Returns (nil, nil) when the file does not exist.
func (r *localReader) GetRunFile(_ context.Context, runID, filename string) ([]byte, error) {
	if !validName(runID) {
		return nil, fmt.Errorf("invalid run id %q", runID)
	}

	p := filepath.Join(r.root, runsDir, runID, filepath.FromSlash(filename))

	data, err := os.ReadFile(p) //nolint:gosec // run id validated, filename from code
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("reading file %s: %w", p, err)
	}

	return data, nil
}

// validName rejects ids that would escape the runs directory.
func validName(id string) bool {
	return id != "" && id != "." && id != ".." && filepath.Base(id) == id
}
