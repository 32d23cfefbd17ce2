package cpufreq

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	stateFilePrefix = "chbench-cpufreq-"
	stateFileSuffix = ".json"
)

// StateFile is a saved OriginalSettings left on disk.
type StateFile struct {
	Path      string
	Timestamp time.Time
}

// DefaultStateDir is where state files go when none is configured.
func DefaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return os.TempDir()
	}

	return filepath.Join(home, ".cache", "chbench")
}

// SaveState writes settings to a new state file in dir.
func SaveState(dir string, settings *OriginalSettings) (string, error) {
	if dir == "" {
		dir = DefaultStateDir()
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating state directory: %w", err)
	}

	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling settings: %w", err)
	}

	f, err := os.CreateTemp(dir, stateFilePrefix+"*"+stateFileSuffix)
	if err != nil {
		return "", fmt.Errorf("creating state file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return "", fmt.Errorf("writing state file: %w", err)
	}

	return f.Name(), nil
}

// LoadState reads a state file.
func LoadState(path string) (*OriginalSettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading state file: %w", err)
	}

	var settings OriginalSettings
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("parsing state file: %w", err)
	}

	return &settings, nil
}

// RemoveStateFile deletes a state file. A missing file is not an error.
func RemoveStateFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing state file: %w", err)
	}

	return nil
}

// ListOrphanedStateFiles returns state files left behind by runs that
// never restored their settings.
func ListOrphanedStateFiles(dir string) ([]StateFile, error) {
	if dir == "" {
		dir = DefaultStateDir()
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("reading state directory: %w", err)
	}

	var files []StateFile

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, stateFilePrefix) || !strings.HasSuffix(name, stateFileSuffix) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		files = append(files, StateFile{
			Path:      filepath.Join(dir, name),
			Timestamp: info.ModTime(),
		})
	}

	return files, nil
}

// RestoreFromStateFile writes the saved settings back and removes the
// file. sysfsPath overrides the path recorded in the file when set.
func RestoreFromStateFile(log logrus.FieldLogger, path, sysfsPath string) error {
	settings, err := LoadState(path)
	if err != nil {
		return err
	}

	if sysfsPath == "" {
		sysfsPath = settings.SysfsPath
	}

	if sysfsPath == "" {
		sysfsPath = DefaultSysfsCPUPath
	}

	log.WithField("state_file", path).Info("Restoring CPU frequency settings from state file")

	restore(log, sysfsPath, settings)

	return RemoveStateFile(path)
}
