// Package sysinfo collects a description of the host a run executed on.
package sysinfo

import (
	"context"
	"runtime"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/sirupsen/logrus"
)

const bytesPerGB = 1 << 30

// SystemInfo describes the machine that executed a run.
type SystemInfo struct {
	Hostname        string  `json:"hostname"`
	OS              string  `json:"os"`
	Platform        string  `json:"platform"`
	PlatformVersion string  `json:"platform_version"`
	KernelVersion   string  `json:"kernel_version"`
	Arch            string  `json:"arch"`
	CPUModel        string  `json:"cpu_model"`
	CPUCores        int     `json:"cpu_cores"`
	CPUMhz          float64 `json:"cpu_mhz"`
	MemoryTotalGB   float64 `json:"memory_total_gb"`
}

// Collect gathers host details. Probes that fail are logged and left
// empty; Collect never fails a run.
func Collect(ctx context.Context, log logrus.FieldLogger) *SystemInfo {
	log = log.WithField("component", "sysinfo")

	info := &SystemInfo{
		OS:   runtime.GOOS,
		Arch: runtime.GOARCH,
	}

	if h, err := host.InfoWithContext(ctx); err != nil {
		log.WithError(err).Debug("Failed to read host info")
	} else {
		info.Hostname = h.Hostname
		info.Platform = h.Platform
		info.PlatformVersion = h.PlatformVersion
		info.KernelVersion = h.KernelVersion

		if h.KernelArch != "" {
			info.Arch = h.KernelArch
		}
	}

	if cpus, err := cpu.InfoWithContext(ctx); err != nil {
		log.WithError(err).Debug("Failed to read cpu info")
	} else if len(cpus) > 0 {
		info.CPUModel = cpus[0].ModelName
		info.CPUMhz = cpus[0].Mhz
	}

	if n, err := cpu.CountsWithContext(ctx, true); err != nil {
		log.WithError(err).Debug("Failed to count cpus")
		info.CPUCores = runtime.NumCPU()
	} else {
		info.CPUCores = n
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		log.WithError(err).Debug("Failed to read memory info")
	} else {
		info.MemoryTotalGB = float64(vm.Total) / bytesPerGB
	}

	return info
}
