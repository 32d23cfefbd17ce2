// Package upload copies run directories to remote object storage.
package upload

import "context"

// Uploader uploads a local run directory to remote storage.
type Uploader interface {
	// Preflight verifies that the remote storage is reachable and writable.
	// Writes a small test object to the bucket to fail fast on misconfiguration.
	Preflight(ctx context.Context) error

	// Upload uploads all files in runDir. The directory basename is used
	// as the run key under the configured prefix.
	Upload(ctx context.Context, runDir string) (*Summary, error)
}

// Summary reports what an upload wrote.
type Summary struct {
	Prefix string
	Files  int
	Bytes  int64
}
