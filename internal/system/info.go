package system

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
)

// GetSystemInfo returns general system information. Card discovery failures
// are not fatal; the card list is left empty.
func GetSystemInfo(ctx context.Context, gpuDevice, sysfsRoot string) (*SystemInfo, error) {
	hostInfo, err := host.InfoWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get host info: %w", err)
	}

	cpuModel, err := GetCPUInfo(ctx)
	if err != nil {
		return nil, err
	}

	cpuCount, err := cpu.CountsWithContext(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("failed to get CPU count: %w", err)
	}

	cards, err := DiscoverGPUs(sysfsRoot)
	if err != nil {
		cards = nil
	}
	if cards == nil {
		cards = []GPUCard{}
	}

	// the driver is informational; an unreadable device is reported by GET /
	var gpuDriver string
	if dev, err := OpenGPU(gpuDevice); err == nil {
		gpuDriver = dev.Driver
	}

	bootTime := time.Unix(int64(hostInfo.BootTime), 0).UTC()

	return &SystemInfo{
		Hostname:  hostInfo.Hostname,
		OS:        fmt.Sprintf("%s %s %s", hostInfo.Platform, hostInfo.PlatformVersion, hostInfo.KernelArch),
		Kernel:    fmt.Sprintf("%s %s", hostInfo.OS, hostInfo.KernelVersion),
		CPU:       cpuModel,
		CPUCount:  cpuCount,
		BootTime:  bootTime,
		Uptime:    uptime(bootTime),
		GPUDevice: gpuDevice,
		GPUDriver: gpuDriver,
		GPUCards:  cards,
	}, nil
}

// uptime renders the time since boot, e.g. "3 days"
func uptime(boot time.Time) string {
	return strings.TrimSpace(humanize.RelTime(boot, time.Now(), "", ""))
}

// GetCPUInfo returns formatted CPU information
func GetCPUInfo(ctx context.Context) (string, error) {
	cpuStat, err := cpu.InfoWithContext(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get CPU info: %w", err)
	}

	if len(cpuStat) == 0 {
		return "Unknown CPU", nil
	}

	return cpuStat[0].ModelName, nil
}
