package conf

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "HOSTSTAT_"

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Host: "127.0.0.1",
		GPU: GPU{
			Device:    "/sys/class/drm/card1/device",
			SysfsRoot: "/sys",
		},
		CPU: CPU{
			Interval: 200 * time.Millisecond,
		},
		Stream: Stream{
			Enabled:     true,
			DefaultRate: 5 * time.Second,
			MinRate:     time.Second,
		},
		Log: Log{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadConfig reads path on top of cfg. TOML and YAML are chosen by extension.
// An empty path leaves cfg untouched.
func LoadConfig(path string, cfg *Config) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("config file %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	default:
		return fmt.Errorf("unsupported config format %q (want .toml, .yaml or .yml)", filepath.Ext(path))
	}
	return nil
}

// ApplyEnv overrides cfg from HOSTSTAT_* variables
func ApplyEnv(cfg *Config) error {
	var err error
	if v, ok := lookupEnv("HOST"); ok {
		cfg.Host = v
	}
	if v, ok := lookupEnv("GPU_DEVICE"); ok {
		cfg.GPU.Device = v
	}
	if v, ok := lookupEnv("GPU_OPTIONAL"); ok {
		if cfg.GPU.Optional, err = cast.ToBoolE(v); err != nil {
			return envError("GPU_OPTIONAL", v, err)
		}
	}
	if v, ok := lookupEnv("CPU_INTERVAL"); ok {
		if cfg.CPU.Interval, err = cast.ToDurationE(v); err != nil {
			return envError("CPU_INTERVAL", v, err)
		}
	}
	if v, ok := lookupEnv("STREAM_ENABLED"); ok {
		if cfg.Stream.Enabled, err = cast.ToBoolE(v); err != nil {
			return envError("STREAM_ENABLED", v, err)
		}
	}
	if v, ok := lookupEnv("LOG_LEVEL"); ok {
		cfg.Log.Level = v
	}
	if v, ok := lookupEnv("LOG_FORMAT"); ok {
		cfg.Log.Format = v
	}
	return nil
}

func lookupEnv(key string) (string, bool) {
	v, ok := os.LookupEnv(EnvPrefix + key)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func envError(key, value string, err error) error {
	return fmt.Errorf("invalid %s%s=%q: %w", EnvPrefix, key, value, err)
}

// ParsePort parses the positional port argument
func ParsePort(arg string) (int, error) {
	port, err := strconv.ParseUint(arg, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid port %q: must be a number between 0 and 65535", arg)
	}
	return int(port), nil
}

// Validate checks the values that cannot be fixed by defaults
func (c Config) Validate() error {
	if c.CPU.Interval <= 0 {
		return fmt.Errorf("cpu.interval must be positive")
	}
	if c.Stream.MinRate <= 0 {
		return fmt.Errorf("stream.min_rate must be positive")
	}
	if c.Stream.DefaultRate < c.Stream.MinRate {
		return fmt.Errorf("stream.default_rate (%s) is below stream.min_rate (%s)", c.Stream.DefaultRate, c.Stream.MinRate)
	}
	switch strings.ToLower(c.Log.Level) {
	case "trace", "debug", "info", "warn", "error", "fatal", "panic", "disabled":
	default:
		return fmt.Errorf("unknown log.level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("unknown log.format %q", c.Log.Format)
	}
	if c.GPU.Device == "" && c.GPU.SysfsRoot == "" {
		return fmt.Errorf("gpu.sysfs_root is required when gpu.device is empty")
	}
	return nil
}

func joinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
