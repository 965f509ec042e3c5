//go:build !linux

package system

// DiscoverGPUs finds nothing outside Linux; amdgpu sysfs is Linux only.
func DiscoverGPUs(sysfsRoot string) ([]GPUCard, error) {
	return nil, nil
}
