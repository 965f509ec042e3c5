package conf

import "time"

type Config struct {
	Host   string `toml:"host" yaml:"host"`
	Port   int    `toml:"-" yaml:"-"` // positional argument only
	GPU    GPU    `toml:"gpu" yaml:"gpu"`
	CPU    CPU    `toml:"cpu" yaml:"cpu"`
	Stream Stream `toml:"stream" yaml:"stream"`
	Auth   Auth   `toml:"auth" yaml:"auth"`
	Log    Log    `toml:"log" yaml:"log"`
}

// GPU selects the sysfs device sampled for gpu_* fields
type GPU struct {
	Device    string `toml:"device" yaml:"device"`         // e.g. /sys/class/drm/card1/device, empty for auto-detect
	SysfsRoot string `toml:"sysfs_root" yaml:"sysfs_root"` // used for card discovery
	Optional  bool   `toml:"optional" yaml:"optional"`
}

type CPU struct {
	Interval time.Duration `toml:"interval" yaml:"interval"`
}

type Stream struct {
	Enabled     bool          `toml:"enabled" yaml:"enabled"`
	DefaultRate time.Duration `toml:"default_rate" yaml:"default_rate"`
	MinRate     time.Duration `toml:"min_rate" yaml:"min_rate"`
}

type Auth struct {
	Users map[string]string `toml:"users" yaml:"users"` // name -> bcrypt hash
}

type Log struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
}

// Addr returns the listen address
func (c Config) Addr() string {
	return joinHostPort(c.Host, c.Port)
}
