// Package storage reads run directories from the local results directory
// or from an S3 bucket populated by upload-results.
package storage

import "context"

// Reader provides read access to run data stored in a backend. It is used
// by the indexer to discover and read run files without knowing the
// underlying storage details.
type Reader interface {
	// Source identifies the backend, for example "local" or
	// "s3://bucket/prefix". Indexed runs are keyed by source and run ID.
	Source() string

	// ListRunIDs returns the run IDs (directory names) under the runs
	// directory.
	ListRunIDs(ctx context.Context) ([]string, error)

	// GetRunFile reads a file from a specific run directory.
	// Returns (nil, nil) when the file does not exist.
	GetRunFile(ctx context.Context, runID, filename string) ([]byte, error)
}

// runsDir is the directory below a results root holding run directories.
const runsDir = "runs"
