package system

import (
	"context"
	"math"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hoststat/internal/apperr"
)

func TestProperUnit(t *testing.T) {
	tests := []struct {
		bytes uint64
		want  string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{1280, "1.3 KiB"}, // exact tie rounds up
		{1536, "1.5 KiB"},
		{512 << 20, "512.0 MiB"},
		{1 << 30, "1.0 GiB"},
		{1073741824 + 107374182, "1.1 GiB"},
		{16 << 30, "16.0 GiB"},
		{3 << 40, "3.0 TiB"},
		{2 << 50, "2.0 PiB"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, ProperUnit(tt.bytes))
		})
	}
}

var unitFactors = map[string]float64{
	"KiB": 1 << 10,
	"MiB": 1 << 20,
	"GiB": 1 << 30,
	"TiB": 1 << 40,
	"PiB": 1 << 50,
}

// TestProperUnit_PropertyBased checks that the rendered value is the input
// rounded to one decimal place of its unit.
func TestProperUnit_PropertyBased(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	properties.Property("IEC string is within half a tenth of the input", prop.ForAll(
		func(n uint64) bool {
			s := ProperUnit(n)
			parts := strings.Split(s, " ")
			if len(parts) != 2 {
				return false
			}
			factor, ok := unitFactors[parts[1]]
			if !ok {
				return false
			}
			dot := strings.Index(parts[0], ".")
			if dot < 0 || len(parts[0])-dot != 2 {
				return false
			}
			v, err := strconv.ParseFloat(parts[0], 64)
			if err != nil {
				return false
			}
			return math.Abs(float64(n)/factor-v) <= 0.05+1e-9
		},
		gen.UInt64Range(1<<10, 1<<60),
	))

	properties.Property("values below 1 KiB render as plain bytes", prop.ForAll(
		func(n uint64) bool {
			return ProperUnit(n) == strconv.FormatUint(n, 10)+" B"
		},
		gen.UInt64Range(0, 1023),
	))

	properties.TestingRun(t)
}

func TestRatio(t *testing.T) {
	assert.Equal(t, 0.0, Ratio(0, 0))
	assert.Equal(t, 0.0, Ratio(123, 0))
	assert.Equal(t, 0.5, Ratio(512, 1024))
	assert.Equal(t, 1.5, Ratio(3, 2), "ratios are not clamped above 1")
}

func TestRatio_PropertyBased(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("ratio times total gives used back", prop.ForAll(
		func(total, used uint64) bool {
			used %= total + 1
			r := Ratio(used, total)
			return r >= 0 && r <= 1 && math.Abs(r*float64(total)-float64(used)) <= 1e-6*float64(total)
		},
		gen.UInt64Range(1, 1<<48),
		gen.UInt64Range(0, 1<<48),
	))

	properties.TestingRun(t)
}

func TestBusyFraction(t *testing.T) {
	before := cpu.TimesStat{User: 100, System: 50, Idle: 800, Iowait: 50}
	tests := []struct {
		name  string
		after cpu.TimesStat
		want  float64
	}{
		{"half busy", cpu.TimesStat{User: 150, System: 100, Idle: 850, Iowait: 100}, 0.5},
		{"idle", cpu.TimesStat{User: 100, System: 50, Idle: 900, Iowait: 50}, 0},
		{"fully busy", cpu.TimesStat{User: 200, System: 50, Idle: 800, Iowait: 50}, 1},
		{"counter went backwards", cpu.TimesStat{User: 90, System: 50, Idle: 800, Iowait: 50}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, busyFraction(before, tt.after), 1e-9)
		})
	}
}

func TestGetMemoryUsage(t *testing.T) {
	m, err := GetMemoryUsage(context.Background())
	require.NoError(t, err)

	assert.NotZero(t, m.Total, "expected non-zero memory total on a running system")
	assert.LessOrEqual(t, m.Used, m.Total)
	assert.LessOrEqual(t, m.SwapUsed, m.SwapTotal)
}

func TestGetCPUUsage(t *testing.T) {
	u, err := GetCPUUsage(context.Background(), 50*time.Millisecond)
	require.NoError(t, err)

	assert.NotEmpty(t, u.Cores)
	assert.GreaterOrEqual(t, u.Total, 0.0)
	assert.LessOrEqual(t, u.Total, 1.0)
	for i, c := range u.Cores {
		assert.GreaterOrEqual(t, c, 0.0, "core %d", i)
		assert.LessOrEqual(t, c, 1.0, "core %d", i)
	}
}

func TestGetCPUUsage_WaitsForInterval(t *testing.T) {
	start := time.Now()
	_, err := GetCPUUsage(context.Background(), 100*time.Millisecond)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestGetCPUUsage_Canceled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := GetCPUUsage(ctx, 10*time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, "", apperr.SourceOf(err), "cancellation is not a sampling failure")
}
