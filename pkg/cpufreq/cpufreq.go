// Package cpufreq pins CPU frequency settings for the duration of an
// experiment and restores them afterwards.
package cpufreq

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Manager controls the frequency of the CPUs the engine runs on.
type Manager interface {
	Start(ctx context.Context) error
	// Stop restores any settings changed by Apply.
	Stop() error

	// Apply pins settings on cpus, or on every online CPU when cpus is
	// empty. The previous values are captured on the first call and
	// persisted to a state file until Restore runs.
	Apply(ctx context.Context, settings *Settings, cpus []int) error
	Restore(ctx context.Context) error

	// CPUInfo reports the current frequency state of every online CPU.
	CPUInfo() ([]CPUInfo, error)
}

// Settings is the requested frequency state.
type Settings struct {
	Frequency  string // "2000MHz", "2.4GHz", "MAX" or empty for unchanged
	TurboBoost *bool  // nil leaves turbo untouched
	Governor   string
}

// CPUInfo contains frequency information for a single CPU.
type CPUInfo struct {
	ID             int
	MinFreqKHz     uint64
	MaxFreqKHz     uint64
	CurrentFreqKHz uint64
	Governor       string
	AvailGovernors []string
	ScalingMinKHz  uint64
	ScalingMaxKHz  uint64
}

// OriginalSettings is the pre-Apply state written to a state file.
type OriginalSettings struct {
	SysfsPath  string               `json:"sysfs_path"`
	CPUs       map[int]*CPUSettings `json:"cpus"`
	TurboBoost *TurboBoostSettings  `json:"turbo_boost,omitempty"`
}

// CPUSettings stores the scaling state of one CPU.
type CPUSettings struct {
	ScalingMaxKHz uint64 `json:"scaling_max_khz"`
	ScalingMinKHz uint64 `json:"scaling_min_khz"`
	Governor      string `json:"governor"`
}

// TurboBoostSettings stores the raw turbo control value.
type TurboBoostSettings struct {
	Type  string `json:"type"`
	Value int    `json:"value"`
}

// NewManager creates a manager that writes state files to stateDir and
// controls the sysfs tree rooted at sysfsPath.
func NewManager(log logrus.FieldLogger, stateDir, sysfsPath string) Manager {
	if sysfsPath == "" {
		sysfsPath = DefaultSysfsCPUPath
	}

	return &manager{
		log:       log.WithField("component", "cpufreq"),
		stateDir:  stateDir,
		sysfsPath: sysfsPath,
	}
}

type manager struct {
	log       logrus.FieldLogger
	stateDir  string
	sysfsPath string

	mu        sync.Mutex
	original  *OriginalSettings
	stateFile string
}

var _ Manager = (*manager)(nil)

func (m *manager) Start(_ context.Context) error {
	if !IsSupported(m.sysfsPath) {
		return fmt.Errorf("cpufreq control not available under %s", m.sysfsPath)
	}

	m.log.Debug("CPU frequency manager started")

	return nil
}

func (m *manager) Stop() error {
	return m.Restore(context.Background())
}

func (m *manager) Apply(_ context.Context, settings *Settings, cpus []int) error {
	if settings == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(cpus) == 0 {
		var err error

		cpus, err = onlineCPUs(m.sysfsPath)
		if err != nil {
			return fmt.Errorf("getting online CPUs: %w", err)
		}
	}

	var target uint64

	if settings.Frequency != "" {
		var err error

		target, err = ParseFrequency(settings.Frequency)
		if err != nil {
			return fmt.Errorf("parsing frequency %q: %w", settings.Frequency, err)
		}
	}

	if m.original == nil {
		m.original = m.capture(cpus)

		stateFile, err := SaveState(m.stateDir, m.original)
		if err != nil {
			m.log.WithError(err).Warn("Failed to save CPU frequency state file")
		} else {
			m.stateFile = stateFile
		}
	}

	// Governor goes first; some drivers reject frequency writes under
	// the wrong governor.
	if settings.Governor != "" {
		for _, cpu := range cpus {
			if err := setGovernor(m.sysfsPath, cpu, settings.Governor); err != nil {
				return fmt.Errorf("setting governor for CPU %d: %w", cpu, err)
			}
		}
	}

	if settings.Frequency != "" {
		for _, cpu := range cpus {
			if err := m.pin(cpu, target, strings.EqualFold(settings.Frequency, "max")); err != nil {
				return err
			}
		}
	}

	if settings.TurboBoost != nil {
		if err := setTurboBoost(m.sysfsPath, *settings.TurboBoost); err != nil {
			m.log.WithError(err).Warn("Failed to set turbo boost")
		}
	}

	m.log.WithFields(logrus.Fields{
		"cpus":      cpus,
		"frequency": settings.Frequency,
		"governor":  settings.Governor,
	}).Info("Applied CPU frequency settings")

	return nil
}

// pin fixes a CPU at freqKHz by setting both scaling bounds.
func (m *manager) pin(cpu int, freqKHz uint64, useMax bool) error {
	hwMin, err := readUint(cpufreqPath(m.sysfsPath, cpu, cpuinfoMinFreqFile))
	if err != nil {
		return fmt.Errorf("getting min frequency for CPU %d: %w", cpu, err)
	}

	hwMax, err := readUint(cpufreqPath(m.sysfsPath, cpu, cpuinfoMaxFreqFile))
	if err != nil {
		return fmt.Errorf("getting max frequency for CPU %d: %w", cpu, err)
	}

	if useMax {
		freqKHz = hwMax
	}

	if freqKHz < hwMin || freqKHz > hwMax {
		return fmt.Errorf("frequency %d kHz out of range for CPU %d (min: %d, max: %d)",
			freqKHz, cpu, hwMin, hwMax)
	}

	minPath := cpufreqPath(m.sysfsPath, cpu, scalingMinFreqFile)
	maxPath := cpufreqPath(m.sysfsPath, cpu, scalingMaxFreqFile)

	// Raising the floor above the current ceiling fails, so order the
	// writes by direction.
	first, second := minPath, maxPath

	if current, err := readUint(maxPath); err == nil && freqKHz > current {
		first, second = maxPath, minPath
	}

	if err := writeUint(first, freqKHz); err != nil {
		return fmt.Errorf("setting frequency for CPU %d: %w", cpu, err)
	}

	if err := writeUint(second, freqKHz); err != nil {
		return fmt.Errorf("setting frequency for CPU %d: %w", cpu, err)
	}

	return nil
}

func (m *manager) Restore(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.original == nil {
		return nil
	}

	restore(m.log, m.sysfsPath, m.original)

	if m.stateFile != "" {
		if err := RemoveStateFile(m.stateFile); err != nil {
			m.log.WithError(err).Warn("Failed to remove state file")
		}

		m.stateFile = ""
	}

	m.original = nil

	m.log.Info("CPU frequency settings restored")

	return nil
}

func (m *manager) CPUInfo() ([]CPUInfo, error) {
	cpus, err := onlineCPUs(m.sysfsPath)
	if err != nil {
		return nil, fmt.Errorf("getting online CPUs: %w", err)
	}

	infos := make([]CPUInfo, 0, len(cpus))
	for _, cpu := range cpus {
		infos = append(infos, readCPUInfo(m.sysfsPath, cpu))
	}

	return infos, nil
}

func (m *manager) capture(cpus []int) *OriginalSettings {
	original := &OriginalSettings{
		SysfsPath: m.sysfsPath,
		CPUs:      make(map[int]*CPUSettings, len(cpus)),
	}

	for _, cpu := range cpus {
		info := readCPUInfo(m.sysfsPath, cpu)

		original.CPUs[cpu] = &CPUSettings{
			ScalingMinKHz: info.ScalingMinKHz,
			ScalingMaxKHz: info.ScalingMaxKHz,
			Governor:      info.Governor,
		}
	}

	turbo, err := captureTurboBoost(m.sysfsPath)
	if err != nil {
		m.log.WithError(err).Debug("Turbo boost settings not available")
	} else {
		original.TurboBoost = turbo
	}

	return original
}

// restore writes original back. Failures are logged and skipped so one
// stuck CPU does not leave the others pinned.
func restore(log logrus.FieldLogger, sysfsPath string, original *OriginalSettings) {
	if original.TurboBoost != nil {
		if err := restoreTurboBoost(sysfsPath, original.TurboBoost); err != nil {
			log.WithError(err).Warn("Failed to restore turbo boost")
		}
	}

	for cpu, s := range original.CPUs {
		fields := logrus.Fields{"cpu": cpu}

		if s.Governor != "" {
			if err := setGovernor(sysfsPath, cpu, s.Governor); err != nil {
				log.WithFields(fields).WithError(err).Warn("Failed to restore governor")
			}
		}

		// Max first so that min <= max holds throughout.
		if s.ScalingMaxKHz > 0 {
			if err := writeUint(cpufreqPath(sysfsPath, cpu, scalingMaxFreqFile), s.ScalingMaxKHz); err != nil {
				log.WithFields(fields).WithError(err).Warn("Failed to restore max frequency")
			}
		}

		if s.ScalingMinKHz > 0 {
			if err := writeUint(cpufreqPath(sysfsPath, cpu, scalingMinFreqFile), s.ScalingMinKHz); err != nil {
				log.WithFields(fields).WithError(err).Warn("Failed to restore min frequency")
			}
		}
	}
}

var frequencyPattern = regexp.MustCompile(`(?i)^(\d+(?:\.\d+)?)\s*(mhz|ghz|khz)?$`)

// ParseFrequency parses "2000MHz", "2.4GHz", "2400000KHz" or a bare kHz
// value. "MAX" parses to 0 and is resolved per CPU by Apply.
func ParseFrequency(freq string) (uint64, error) {
	freq = strings.TrimSpace(freq)
	if freq == "" {
		return 0, fmt.Errorf("empty frequency string")
	}

	if strings.EqualFold(freq, "max") {
		return 0, nil
	}

	matches := frequencyPattern.FindStringSubmatch(freq)
	if matches == nil {
		return 0, fmt.Errorf("invalid frequency format: %s", freq)
	}

	value, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0, fmt.Errorf("parsing frequency value: %w", err)
	}

	switch strings.ToLower(matches[2]) {
	case "ghz":
		value *= 1_000_000
	case "mhz":
		value *= 1_000
	}

	if value <= 0 {
		return 0, fmt.Errorf("frequency must be positive: %s", freq)
	}

	return uint64(math.Round(value)), nil
}

// ParseCPUList parses a cpuset string such as "0-3,6".
func ParseCPUList(s string) ([]int, error) {
	return parseCPURange(strings.TrimSpace(s))
}
