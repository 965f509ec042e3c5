package system

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"hoststat/internal/apperr"
)

// amdgpu sysfs attributes, relative to the device directory
const (
	attrVRAMTotal   = "mem_info_vram_total"
	attrVRAMUsed    = "mem_info_vram_used"
	attrBusyPercent = "gpu_busy_percent"
	attrUevent      = "uevent"
)

// ErrNoGPUDevice is returned when no device path is configured and none was
// discovered.
var ErrNoGPUDevice = errors.New("no gpu device configured or discovered")

// GPUDevice is an opened sysfs device directory such as
// /sys/class/drm/card1/device. It holds no file descriptors; every read goes
// back to sysfs.
type GPUDevice struct {
	Path   string
	Driver string
}

// OpenGPU validates that path is a GPU sysfs device directory
func OpenGPU(path string) (*GPUDevice, error) {
	if path == "" {
		return nil, apperr.NewSamplingError(apperr.SourceGPU, ErrNoGPUDevice)
	}

	st, err := os.Stat(path)
	if err != nil {
		return nil, apperr.NewSamplingError(apperr.SourceGPU, err)
	}
	if !st.IsDir() {
		return nil, apperr.NewSamplingError(apperr.SourceGPU, fmt.Errorf("%s is not a directory", path))
	}

	driver, err := readDriver(path)
	if err != nil {
		return nil, apperr.NewSamplingError(apperr.SourceGPU, err)
	}
	return &GPUDevice{Path: path, Driver: driver}, nil
}

// Read returns VRAM and busy counters. Any unreadable counter fails the
// whole read.
func (d *GPUDevice) Read() (*GPUUsage, error) {
	total, err := d.readUint(attrVRAMTotal)
	if err != nil {
		return nil, err
	}
	used, err := d.readUint(attrVRAMUsed)
	if err != nil {
		return nil, err
	}
	busy, err := d.readUint(attrBusyPercent)
	if err != nil {
		return nil, err
	}
	if busy > 100 {
		return nil, apperr.NewSamplingError(apperr.SourceGPU,
			fmt.Errorf("%s: busy percent %d out of range", filepath.Join(d.Path, attrBusyPercent), busy))
	}

	return &GPUUsage{
		BusyPercent: busy,
		VRAMTotal:   total,
		VRAMUsed:    used,
	}, nil
}

func (d *GPUDevice) readUint(attr string) (uint64, error) {
	path := filepath.Join(d.Path, attr)
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, apperr.NewSamplingError(apperr.SourceGPU, err)
	}
	v, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, apperr.NewSamplingError(apperr.SourceGPU, fmt.Errorf("%s: %w", path, err))
	}
	return v, nil
}

// readDriver returns the DRIVER= value of the device uevent file
func readDriver(device string) (string, error) {
	path := filepath.Join(device, attrUevent)
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%s is not a gpu sysfs device: %w", device, err)
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		if driver, ok := strings.CutPrefix(scanner.Text(), "DRIVER="); ok && driver != "" {
			return driver, nil
		}
	}
	return "", fmt.Errorf("%s is not a gpu sysfs device: no DRIVER in uevent", device)
}
