package cpufreq

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSysfs(t *testing.T, path, value string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(value+"\n"), 0o644))
}

// fakeSysfs lays out two CPUs running powersave at 800-3600 MHz with an
// Intel turbo switch.
func fakeSysfs(t *testing.T) string {
	t.Helper()

	base := t.TempDir()
	writeSysfs(t, filepath.Join(base, "online"), "0-1")
	writeSysfs(t, intelNoTurboPath(base), "0")

	for cpu := range 2 {
		writeSysfs(t, cpufreqPath(base, cpu, cpuinfoMinFreqFile), "800000")
		writeSysfs(t, cpufreqPath(base, cpu, cpuinfoMaxFreqFile), "3600000")
		writeSysfs(t, cpufreqPath(base, cpu, scalingMinFreqFile), "800000")
		writeSysfs(t, cpufreqPath(base, cpu, scalingMaxFreqFile), "3600000")
		writeSysfs(t, cpufreqPath(base, cpu, scalingCurFreqFile), "1200000")
		writeSysfs(t, cpufreqPath(base, cpu, scalingGovernorFile), "powersave")
		writeSysfs(t, cpufreqPath(base, cpu, scalingAvailGovsFile), "performance powersave")
	}

	return base
}

func readSysfs(t *testing.T, path string) string {
	t.Helper()

	v, err := readString(path)
	require.NoError(t, err)

	return v
}

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	return log
}

func TestParseFrequency(t *testing.T) {
	tests := []struct {
		in      string
		want    uint64
		wantErr bool
	}{
		{in: "2000MHz", want: 2_000_000},
		{in: "2.4GHz", want: 2_400_000},
		{in: "2400000khz", want: 2_400_000},
		{in: "1800000", want: 1_800_000},
		{in: " 3 ghz ", want: 3_000_000},
		{in: "MAX", want: 0},
		{in: "", wantErr: true},
		{in: "fast", wantErr: true},
		{in: "0MHz", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFrequency(tt.in)
			if tt.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseCPUList(t *testing.T) {
	tests := []struct {
		in      string
		want    []int
		wantErr bool
	}{
		{in: "", want: nil},
		{in: "3", want: []int{3}},
		{in: "0-3", want: []int{0, 1, 2, 3}},
		{in: "0,2,4-5", want: []int{0, 2, 4, 5}},
		{in: "4-2", wantErr: true},
		{in: "a-b", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCPUList(tt.in)
			if tt.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestManagerApplyAndRestore(t *testing.T) {
	base := fakeSysfs(t)
	stateDir := t.TempDir()
	turboOff := false

	mgr := NewManager(testLogger(), stateDir, base)
	require.NoError(t, mgr.Start(context.Background()))

	require.NoError(t, mgr.Apply(context.Background(), &Settings{
		Frequency:  "2GHz",
		Governor:   "performance",
		TurboBoost: &turboOff,
	}, []int{1}))

	assert.Equal(t, "performance", readSysfs(t, cpufreqPath(base, 1, scalingGovernorFile)))
	assert.Equal(t, "2000000", readSysfs(t, cpufreqPath(base, 1, scalingMinFreqFile)))
	assert.Equal(t, "2000000", readSysfs(t, cpufreqPath(base, 1, scalingMaxFreqFile)))
	assert.Equal(t, "1", readSysfs(t, intelNoTurboPath(base)))

	// CPU 0 was not selected.
	assert.Equal(t, "powersave", readSysfs(t, cpufreqPath(base, 0, scalingGovernorFile)))

	files, err := ListOrphanedStateFiles(stateDir)
	require.NoError(t, err)
	require.Len(t, files, 1)

	require.NoError(t, mgr.Stop())

	assert.Equal(t, "powersave", readSysfs(t, cpufreqPath(base, 1, scalingGovernorFile)))
	assert.Equal(t, "800000", readSysfs(t, cpufreqPath(base, 1, scalingMinFreqFile)))
	assert.Equal(t, "3600000", readSysfs(t, cpufreqPath(base, 1, scalingMaxFreqFile)))
	assert.Equal(t, "0", readSysfs(t, intelNoTurboPath(base)))

	files, err = ListOrphanedStateFiles(stateDir)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestManagerApplyMaxAllCPUs(t *testing.T) {
	base := fakeSysfs(t)

	mgr := NewManager(testLogger(), t.TempDir(), base)
	require.NoError(t, mgr.Apply(context.Background(), &Settings{Frequency: "max"}, nil))

	for cpu := range 2 {
		assert.Equal(t, "3600000", readSysfs(t, cpufreqPath(base, cpu, scalingMinFreqFile)),
			"cpu %d", cpu)
	}

	infos, err := mgr.CPUInfo()
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, []string{"performance", "powersave"}, infos[0].AvailGovernors)
	assert.Equal(t, uint64(1_200_000), infos[0].CurrentFreqKHz)

	require.NoError(t, mgr.Restore(context.Background()))
	assert.Equal(t, "800000", readSysfs(t, cpufreqPath(base, 0, scalingMinFreqFile)))
}

func TestManagerApplyOutOfRange(t *testing.T) {
	base := fakeSysfs(t)

	mgr := NewManager(testLogger(), t.TempDir(), base)
	err := mgr.Apply(context.Background(), &Settings{Frequency: "5GHz"}, []int{0})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")

	require.NoError(t, mgr.Stop())
}

func TestManagerStartUnsupported(t *testing.T) {
	mgr := NewManager(testLogger(), t.TempDir(), t.TempDir())
	require.Error(t, mgr.Start(context.Background()))
}

func TestRestoreFromStateFile(t *testing.T) {
	base := fakeSysfs(t)
	stateDir := t.TempDir()

	path, err := SaveState(stateDir, &OriginalSettings{
		SysfsPath: base,
		CPUs: map[int]*CPUSettings{
			0: {ScalingMinKHz: 1_000_000, ScalingMaxKHz: 3_000_000, Governor: "schedutil"},
		},
		TurboBoost: &TurboBoostSettings{Type: turboIntel, Value: 1},
	})
	require.NoError(t, err)

	files, err := ListOrphanedStateFiles(stateDir)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, path, files[0].Path)

	require.NoError(t, RestoreFromStateFile(testLogger(), path, ""))

	assert.Equal(t, "schedutil", readSysfs(t, cpufreqPath(base, 0, scalingGovernorFile)))
	assert.Equal(t, strconv.Itoa(1_000_000), readSysfs(t, cpufreqPath(base, 0, scalingMinFreqFile)))
	assert.Equal(t, "3000000", readSysfs(t, cpufreqPath(base, 0, scalingMaxFreqFile)))
	assert.Equal(t, "1", readSysfs(t, intelNoTurboPath(base)))

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestListOrphanedStateFilesMissingDir(t *testing.T) {
	files, err := ListOrphanedStateFiles(filepath.Join(t.TempDir(), "missing"))
	require.NoError(t, err)
	assert.Empty(t, files)
}
