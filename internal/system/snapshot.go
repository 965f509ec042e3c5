package system

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Collector takes Snapshots. It keeps no state between calls, so one value
// can serve any number of concurrent requests.
type Collector struct {
	CPUInterval time.Duration
	GPUDevice   string
	GPUOptional bool
	Logger      zerolog.Logger

	// sampling sources, replaceable in tests
	memory func(context.Context) (*MemoryUsage, error)
	cpu    func(context.Context, time.Duration) (*CPUUsage, error)
	gpu    func(string) (*GPUUsage, error)
}

// NewCollector returns a Collector backed by gopsutil and amdgpu sysfs
func NewCollector(cpuInterval time.Duration, gpuDevice string, gpuOptional bool, logger zerolog.Logger) *Collector {
	return &Collector{
		CPUInterval: cpuInterval,
		GPUDevice:   gpuDevice,
		GPUOptional: gpuOptional,
		Logger:      logger,
		memory:      GetMemoryUsage,
		cpu:         GetCPUUsage,
		gpu:         GetGPUUsage,
	}
}

// GetGPUUsage opens the device at path and reads it once
func GetGPUUsage(path string) (*GPUUsage, error) {
	dev, err := OpenGPU(path)
	if err != nil {
		return nil, err
	}
	return dev.Read()
}

// Collect samples memory, cpu and gpu concurrently and builds a Snapshot.
// The first failure cancels the remaining samples. With GPUOptional set, a
// gpu failure is logged and the gpu fields are left out instead.
func (c *Collector) Collect(ctx context.Context) (*Snapshot, error) {
	var (
		memUsage *MemoryUsage
		cpuUsage *CPUUsage
		gpuUsage *GPUUsage
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		memUsage, err = c.memory(gctx)
		return err
	})
	g.Go(func() (err error) {
		cpuUsage, err = c.cpu(gctx, c.CPUInterval)
		return err
	})
	g.Go(func() error {
		usage, err := c.gpu(c.GPUDevice)
		if err != nil {
			if c.GPUOptional {
				c.Logger.Warn().Err(err).Str("device", c.GPUDevice).Msg("gpu unavailable, omitting gpu fields")
				return nil
			}
			return err
		}
		gpuUsage = usage
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return buildSnapshot(memUsage, cpuUsage, gpuUsage), nil
}

func buildSnapshot(m *MemoryUsage, c *CPUUsage, g *GPUUsage) *Snapshot {
	snap := &Snapshot{
		CPUUsageCores: c.Cores,
		CPUUsageTotal: c.Total,
		RAMTotal:      ProperUnit(m.Total),
		RAMUsage:      Ratio(m.Used, m.Total),
		RAMUsed:       ProperUnit(m.Used),
		SwapTotal:     ProperUnit(m.SwapTotal),
		SwapUsage:     Ratio(m.SwapUsed, m.SwapTotal),
		SwapUsed:      ProperUnit(m.SwapUsed),
	}
	if snap.CPUUsageCores == nil {
		snap.CPUUsageCores = []float64{}
	}

	if g != nil {
		busy := math.Min(1, float64(g.BusyPercent)/100)
		vram := Ratio(g.VRAMUsed, g.VRAMTotal)
		snap.GPUUsage = &busy
		snap.GPUVRAMTotal = ProperUnit(g.VRAMTotal)
		snap.GPUVRAMUsage = &vram
		snap.GPUVRAMUsed = ProperUnit(g.VRAMUsed)
	}
	return snap
}
