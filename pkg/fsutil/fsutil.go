package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// OwnerConfig holds the UID/GID applied to result artifacts.
type OwnerConfig struct {
	UID int
	GID int
}

// ParseOwner parses a "UID:GID" string. An empty string yields a nil owner,
// meaning files keep the ownership of the running process.
func ParseOwner(owner string) (*OwnerConfig, error) {
	if owner == "" {
		return nil, nil
	}

	uidStr, gidStr, ok := strings.Cut(owner, ":")
	if !ok || strings.Contains(gidStr, ":") {
		return nil, fmt.Errorf("invalid format %q, expected UID:GID", owner)
	}

	uid, err := strconv.Atoi(uidStr)
	if err != nil {
		return nil, fmt.Errorf("invalid UID %q: %w", uidStr, err)
	}

	gid, err := strconv.Atoi(gidStr)
	if err != nil {
		return nil, fmt.Errorf("invalid GID %q: %w", gidStr, err)
	}

	return &OwnerConfig{UID: uid, GID: gid}, nil
}

// Chown sets ownership if owner is not nil. Best-effort, ignores errors.
func Chown(path string, owner *OwnerConfig) {
	if owner == nil {
		return
	}

	_ = os.Chown(path, owner.UID, owner.GID)
}

// MkdirAll creates the directory tree and applies ownership to the leaf.
func MkdirAll(path string, owner *OwnerConfig) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return err
	}

	Chown(path, owner)

	return nil
}

// EnsureParent creates the parent directory of path.
func EnsureParent(path string, owner *OwnerConfig) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}

	return MkdirAll(dir, owner)
}

// WriteFile writes data to path, creating parent directories, and sets
// ownership. Existing files are truncated.
func WriteFile(path string, data []byte, owner *OwnerConfig) error {
	if err := EnsureParent(path, owner); err != nil {
		return fmt.Errorf("creating parent of %s: %w", path, err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}

	Chown(path, owner)

	return nil
}

// Create creates (or truncates) a file, creating parent directories, and
// sets ownership.
func Create(path string, owner *OwnerConfig) (*os.File, error) {
	if err := EnsureParent(path, owner); err != nil {
		return nil, fmt.Errorf("creating parent of %s: %w", path, err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	Chown(path, owner)

	return f, nil
}
