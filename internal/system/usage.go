package system

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"strconv"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"

	"hoststat/internal/apperr"
)

// GetMemoryUsage returns memory and swap counters
func GetMemoryUsage(ctx context.Context) (*MemoryUsage, error) {
	memStat, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, apperr.NewSamplingError(apperr.SourceMemory, err)
	}

	swapStat, err := mem.SwapMemoryWithContext(ctx)
	if err != nil {
		return nil, apperr.NewSamplingError(apperr.SourceSwap, err)
	}

	return &MemoryUsage{
		Total:     memStat.Total,
		Used:      memStat.Used,
		SwapTotal: swapStat.Total,
		SwapUsed:  swapStat.Used,
	}, nil
}

// GetCPUUsage reads the cpu time counters, waits for interval and reads them
// again. Per-core and total values come from the same two reads. The wait
// returns early with ctx.Err() when ctx is done.
func GetCPUUsage(ctx context.Context, interval time.Duration) (*CPUUsage, error) {
	coresBefore, totalBefore, err := readCPUTimes(ctx)
	if err != nil {
		return nil, err
	}

	timer := time.NewTimer(interval)
	select {
	case <-ctx.Done():
		timer.Stop()
		return nil, ctx.Err()
	case <-timer.C:
	}

	coresAfter, totalAfter, err := readCPUTimes(ctx)
	if err != nil {
		return nil, err
	}
	if len(coresBefore) != len(coresAfter) {
		return nil, apperr.NewSamplingError(apperr.SourceCPU,
			fmt.Errorf("cpu count changed between reads: %d != %d", len(coresBefore), len(coresAfter)))
	}

	usage := &CPUUsage{
		Cores: make([]float64, len(coresAfter)),
		Total: busyFraction(totalBefore, totalAfter),
	}
	for i := range coresAfter {
		usage.Cores[i] = busyFraction(coresBefore[i], coresAfter[i])
	}
	return usage, nil
}

func readCPUTimes(ctx context.Context) ([]cpu.TimesStat, cpu.TimesStat, error) {
	cores, err := cpu.TimesWithContext(ctx, true)
	if err != nil {
		return nil, cpu.TimesStat{}, apperr.NewSamplingError(apperr.SourceCPU, err)
	}
	total, err := cpu.TimesWithContext(ctx, false)
	if err != nil {
		return nil, cpu.TimesStat{}, apperr.NewSamplingError(apperr.SourceCPU, err)
	}
	if len(total) == 0 {
		return nil, cpu.TimesStat{}, apperr.NewSamplingError(apperr.SourceCPU, fmt.Errorf("no cpu times available"))
	}
	return cores, total[0], nil
}

func busyTimes(t cpu.TimesStat) (all, busy float64) {
	all = t.Total()
	if runtime.GOOS == "linux" {
		// guest time is already counted in user and nice
		all -= t.Guest + t.GuestNice
	}
	return all, all - t.Idle - t.Iowait
}

// busyFraction returns the busy share of the interval between two reads,
// clamped to [0,1].
func busyFraction(before, after cpu.TimesStat) float64 {
	allBefore, busyBefore := busyTimes(before)
	allAfter, busyAfter := busyTimes(after)

	if busyAfter <= busyBefore {
		return 0
	}
	if allAfter <= allBefore {
		return 1
	}
	return math.Min(1, math.Max(0, (busyAfter-busyBefore)/(allAfter-allBefore)))
}

// Ratio returns used/total. It is not clamped above 1; a zero total gives 0.
func Ratio(used, total uint64) float64 {
	if total == 0 {
		return 0
	}
	return float64(used) / float64(total)
}

func properUnitHelper(bytes uint64, pow uint8, unit string) string {
	quotient := bytes >> pow
	temp := bytes & ((1 << pow) - 1)
	temp = ((temp * 10) + ((1 << pow) >> 1)) >> pow
	if temp == 10 {
		temp = 0
		quotient += 1
	}
	return strconv.FormatUint(quotient, 10) +
		"." + strconv.FormatUint(temp, 10) + " " + unit
}

// ProperUnit converts bytes to an IEC string with one decimal place
func ProperUnit(byteNum uint64) (formatted string) {
	if byteNum >= 1<<50 { // PiB
		return properUnitHelper(byteNum, 50, "PiB")
	} else if byteNum >= 1<<40 { // TiB
		return properUnitHelper(byteNum, 40, "TiB")
	} else if byteNum >= 1<<30 { // GiB
		return properUnitHelper(byteNum, 30, "GiB")
	} else if byteNum >= 1<<20 { // MiB
		return properUnitHelper(byteNum, 20, "MiB")
	} else if byteNum >= 1<<10 { // KiB
		return properUnitHelper(byteNum, 10, "KiB")
	}
	return strconv.FormatUint(byteNum, 10) + " B"
}
