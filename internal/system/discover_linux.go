//go:build linux

package system

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/prometheus/procfs/sysfs"
)

// DiscoverGPUs lists the amdgpu cards under sysfsRoot/class/drm, sorted by
// card name.
func DiscoverGPUs(sysfsRoot string) ([]GPUCard, error) {
	fs, err := sysfs.NewFS(sysfsRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to open sysfs at %s: %w", sysfsRoot, err)
	}

	stats, err := fs.ClassDRMCardAMDGPUStats()
	if err != nil {
		return nil, fmt.Errorf("failed to list drm cards: %w", err)
	}

	cards := make([]GPUCard, 0, len(stats))
	for _, s := range stats {
		device := filepath.Join(sysfsRoot, "class", "drm", s.Name, "device")
		// procfs also returns empty entries for cards bound to other drivers
		if driver, err := readDriver(device); err != nil || driver != "amdgpu" {
			continue
		}
		cards = append(cards, GPUCard{
			Name:      s.Name,
			Device:    device,
			VRAMTotal: ProperUnit(s.MemoryVRAMSize),
		})
	}
	sort.Slice(cards, func(i, j int) bool { return cards[i].Name < cards[j].Name })
	return cards, nil
}
