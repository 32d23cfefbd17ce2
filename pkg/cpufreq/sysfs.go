package cpufreq

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultSysfsCPUPath is the sysfs root of CPU frequency control.
const DefaultSysfsCPUPath = "/sys/devices/system/cpu"

const (
	scalingMinFreqFile   = "scaling_min_freq"
	scalingMaxFreqFile   = "scaling_max_freq"
	scalingCurFreqFile   = "scaling_cur_freq"
	scalingGovernorFile  = "scaling_governor"
	scalingAvailGovsFile = "scaling_available_governors"
	cpuinfoMinFreqFile   = "cpuinfo_min_freq"
	cpuinfoMaxFreqFile   = "cpuinfo_max_freq"
)

const (
	turboIntel = "intel"
	turboAMD   = "amd"
)

func onlineCPUs(basePath string) ([]int, error) {
	data, err := os.ReadFile(filepath.Join(basePath, "online"))
	if err != nil {
		data, err = os.ReadFile(filepath.Join(basePath, "present"))
		if err != nil {
			return nil, fmt.Errorf("reading CPU online/present: %w", err)
		}
	}

	return parseCPURange(strings.TrimSpace(string(data)))
}

// parseCPURange parses ranges like "0-7" or "0,2,4-6".
func parseCPURange(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}

	var cpus []int

	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)

		lo, hi, isRange := strings.Cut(part, "-")
		if !isRange {
			hi = lo
		}

		start, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return nil, fmt.Errorf("invalid CPU range %q: %w", part, err)
		}

		end, err := strconv.Atoi(strings.TrimSpace(hi))
		if err != nil {
			return nil, fmt.Errorf("invalid CPU range %q: %w", part, err)
		}

		if end < start {
			return nil, fmt.Errorf("invalid CPU range %q", part)
		}

		for i := start; i <= end; i++ {
			cpus = append(cpus, i)
		}
	}

	return cpus, nil
}

func cpufreqPath(basePath string, cpu int, name string) string {
	return filepath.Join(basePath, fmt.Sprintf("cpu%d", cpu), "cpufreq", name)
}

func intelNoTurboPath(basePath string) string {
	return filepath.Join(basePath, "intel_pstate", "no_turbo")
}

func amdBoostPath(basePath string) string {
	return filepath.Join(basePath, "cpufreq", "boost")
}

func readUint(path string) (uint64, error) {
	s, err := readString(path)
	if err != nil {
		return 0, err
	}

	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", path, err)
	}

	return v, nil
}

func writeUint(path string, v uint64) error {
	return writeString(path, strconv.FormatUint(v, 10))
}

func readString(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}

	return strings.TrimSpace(string(data)), nil
}

func writeString(path, v string) error {
	if err := os.WriteFile(path, []byte(v), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}

	return nil
}

func setGovernor(basePath string, cpu int, governor string) error {
	return writeString(cpufreqPath(basePath, cpu, scalingGovernorFile), governor)
}

// readCPUInfo collects whatever the driver exposes; missing files leave
// zero values.
func readCPUInfo(basePath string, cpu int) CPUInfo {
	info := CPUInfo{ID: cpu}

	info.MinFreqKHz, _ = readUint(cpufreqPath(basePath, cpu, cpuinfoMinFreqFile))
	info.MaxFreqKHz, _ = readUint(cpufreqPath(basePath, cpu, cpuinfoMaxFreqFile))
	info.CurrentFreqKHz, _ = readUint(cpufreqPath(basePath, cpu, scalingCurFreqFile))
	info.ScalingMinKHz, _ = readUint(cpufreqPath(basePath, cpu, scalingMinFreqFile))
	info.ScalingMaxKHz, _ = readUint(cpufreqPath(basePath, cpu, scalingMaxFreqFile))
	info.Governor, _ = readString(cpufreqPath(basePath, cpu, scalingGovernorFile))

	if govs, err := readString(cpufreqPath(basePath, cpu, scalingAvailGovsFile)); err == nil {
		info.AvailGovernors = strings.Fields(govs)
	}

	return info
}

func turboType(basePath string) string {
	if _, err := os.Stat(intelNoTurboPath(basePath)); err == nil {
		return turboIntel
	}

	if _, err := os.Stat(amdBoostPath(basePath)); err == nil {
		return turboAMD
	}

	return ""
}

// Intel exposes no_turbo (1 disables), AMD exposes boost (1 enables).
func setTurboBoost(basePath string, enabled bool) error {
	switch turboType(basePath) {
	case turboIntel:
		var v uint64
		if !enabled {
			v = 1
		}

		return writeUint(intelNoTurboPath(basePath), v)
	case turboAMD:
		var v uint64
		if enabled {
			v = 1
		}

		return writeUint(amdBoostPath(basePath), v)
	default:
		return fmt.Errorf("turbo boost control not available")
	}
}

func captureTurboBoost(basePath string) (*TurboBoostSettings, error) {
	var path string

	kind := turboType(basePath)

	switch kind {
	case turboIntel:
		path = intelNoTurboPath(basePath)
	case turboAMD:
		path = amdBoostPath(basePath)
	default:
		return nil, fmt.Errorf("turbo boost control not available")
	}

	v, err := readUint(path)
	if err != nil {
		return nil, err
	}

	return &TurboBoostSettings{Type: kind, Value: int(v)}, nil
}

func restoreTurboBoost(basePath string, s *TurboBoostSettings) error {
	switch s.Type {
	case turboIntel:
		return writeUint(intelNoTurboPath(basePath), uint64(s.Value))
	case turboAMD:
		return writeUint(amdBoostPath(basePath), uint64(s.Value))
	default:
		return fmt.Errorf("unknown turbo boost type: %s", s.Type)
	}
}

// IsSupported reports whether basePath exposes a cpufreq governor for the
// first online CPU.
func IsSupported(basePath string) bool {
	cpus, err := onlineCPUs(basePath)
	if err != nil || len(cpus) == 0 {
		return false
	}

	_, err = os.Stat(cpufreqPath(basePath, cpus[0], scalingGovernorFile))

	return err == nil
}
