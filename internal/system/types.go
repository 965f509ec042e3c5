package system

import "time"

// Snapshot is the per-request resource report served on GET /.
// GPU fields are omitted only when the GPU is optional and could not be read.
type Snapshot struct {
	CPUUsageCores []float64 `json:"cpu_usage_cores"`
	CPUUsageTotal float64   `json:"cpu_usage_total"`
	GPUUsage      *float64  `json:"gpu_usage,omitempty"`
	GPUVRAMTotal  string    `json:"gpu_vram_total,omitempty"`
	GPUVRAMUsage  *float64  `json:"gpu_vram_usage,omitempty"`
	GPUVRAMUsed   string    `json:"gpu_vram_used,omitempty"`
	RAMTotal      string    `json:"ram_total"`
	RAMUsage      float64   `json:"ram_usage"`
	RAMUsed       string    `json:"ram_used"`
	SwapTotal     string    `json:"swap_total"`
	SwapUsage     float64   `json:"swap_usage"`
	SwapUsed      string    `json:"swap_used"`
}

// MemoryUsage represents memory and swap counters in bytes
type MemoryUsage struct {
	Total     uint64
	Used      uint64
	SwapTotal uint64
	SwapUsed  uint64
}

// CPUUsage holds busy fractions in [0,1]
type CPUUsage struct {
	Cores []float64
	Total float64
}

// GPUUsage represents one read of an amdgpu device
type GPUUsage struct {
	BusyPercent uint64
	VRAMTotal   uint64
	VRAMUsed    uint64
}

// GPUCard is an amdgpu card found under /sys/class/drm
type GPUCard struct {
	Name      string `json:"name"`
	Device    string `json:"device"`
	VRAMTotal string `json:"vram_total"`
}

// SystemInfo represents general system information
type SystemInfo struct {
	Hostname  string    `json:"hostname"`
	OS        string    `json:"os"`
	Kernel    string    `json:"kernel"`
	CPU       string    `json:"cpu"`
	CPUCount  int       `json:"cpu_count"`
	BootTime  time.Time `json:"boot_time"`
	Uptime    string    `json:"uptime"`
	GPUDevice string    `json:"gpu_device"`
	GPUDriver string    `json:"gpu_driver,omitempty"`
	GPUCards  []GPUCard `json:"gpu_cards"`
}
