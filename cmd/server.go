package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"hoststat/internal/apperr"
	"hoststat/internal/auth"
	"hoststat/internal/conf"
	"hoststat/internal/logging"
	"hoststat/internal/netx"
	"hoststat/internal/system"
	"hoststat/internal/web"
)

var version = "dev"

const shutdownTimeout = 5 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// cliFlags holds the command line flags. Only flags that were set override
// the config file and environment.
type cliFlags struct {
	configPath   string
	host         string
	gpuDevice    string
	gpuOptional  bool
	cpuInterval  time.Duration
	logLevel     string
	logFormat    string
	hashPassword string
	version      bool
}

func newFlagSet(stderr io.Writer) (*flag.FlagSet, *cliFlags) {
	f := &cliFlags{}
	fs := flag.NewFlagSet("hoststat", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: hoststat [flags] <port>")
		fs.PrintDefaults()
	}

	defaults := conf.Default()
	fs.StringVar(&f.configPath, "config", "", "config file (.toml, .yaml or .yml)")
	fs.StringVar(&f.host, "host", defaults.Host, "address to listen on")
	fs.StringVar(&f.gpuDevice, "gpu-device", defaults.GPU.Device, "amdgpu sysfs device directory, empty to auto-detect")
	fs.BoolVar(&f.gpuOptional, "gpu-optional", defaults.GPU.Optional, "omit gpu fields instead of failing when the gpu cannot be read")
	fs.DurationVar(&f.cpuInterval, "cpu-interval", defaults.CPU.Interval, "cpu sampling window")
	fs.StringVar(&f.logLevel, "log-level", defaults.Log.Level, "log level")
	fs.StringVar(&f.logFormat, "log-format", defaults.Log.Format, "log format: json or console")
	fs.StringVar(&f.hashPassword, "hash-password", "", "print a bcrypt hash of the password for auth.users and exit")
	fs.BoolVar(&f.version, "version", false, "print version and exit")
	return fs, f
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs, f := newFlagSet(stderr)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return apperr.ExitSuccess
		}
		return apperr.ExitErrorConfig
	}

	if f.version {
		fmt.Fprintln(stdout, "hoststat", version)
		return apperr.ExitSuccess
	}
	if f.hashPassword != "" {
		hash, err := auth.HashPassword(f.hashPassword)
		if err != nil {
			fmt.Fprintf(stderr, "hoststat: %v\n", err)
			return apperr.ExitErrorGeneric
		}
		fmt.Fprintln(stdout, hash)
		return apperr.ExitSuccess
	}

	cfg, err := loadConfig(fs, f)
	if err != nil {
		fmt.Fprintf(stderr, "hoststat: %v\n", err)
		fs.Usage()
		return apperr.ExitCode(err)
	}

	logger := logging.New(stderr, cfg.Log.Level, cfg.Log.Format)
	if err := serve(ctx, cfg, logger); err != nil {
		logger.Error().Err(err).Msg("server stopped")
		return apperr.ExitCode(err)
	}
	return apperr.ExitSuccess
}

// loadConfig layers defaults, the config file, the environment, the flags
// that were set and finally the positional port.
func loadConfig(fs *flag.FlagSet, f *cliFlags) (conf.Config, error) {
	cfg := conf.Default()

	switch fs.NArg() {
	case 0:
		return cfg, apperr.NewStartupError(nil, "missing port argument")
	case 1:
	default:
		return cfg, apperr.NewStartupError(nil, "unexpected arguments: %v", fs.Args()[1:])
	}
	port, err := conf.ParsePort(fs.Arg(0))
	if err != nil {
		return cfg, apperr.NewStartupError(err, "invalid port %q", fs.Arg(0))
	}

	if err := conf.LoadConfig(f.configPath, &cfg); err != nil {
		return cfg, apperr.NewStartupError(err, "failed to load config")
	}
	if err := conf.ApplyEnv(&cfg); err != nil {
		return cfg, apperr.NewStartupError(err, "invalid environment")
	}

	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "host":
			cfg.Host = f.host
		case "gpu-device":
			cfg.GPU.Device = f.gpuDevice
		case "gpu-optional":
			cfg.GPU.Optional = f.gpuOptional
		case "cpu-interval":
			cfg.CPU.Interval = f.cpuInterval
		case "log-level":
			cfg.Log.Level = f.logLevel
		case "log-format":
			cfg.Log.Format = f.logFormat
		}
	})
	cfg.Port = port

	if err := cfg.Validate(); err != nil {
		return cfg, apperr.NewStartupError(err, "invalid config")
	}
	return cfg, nil
}

// serve runs the HTTP server until ctx is done, then drains it.
func serve(ctx context.Context, cfg conf.Config, logger zerolog.Logger) error {
	gpuDevice := resolveGPUDevice(cfg.GPU, logger)
	users := auth.Users(cfg.Auth.Users)

	collector := system.NewCollector(cfg.CPU.Interval, gpuDevice, cfg.GPU.Optional, logging.Component(logger, "collector"))
	info := func(ctx context.Context) (*system.SystemInfo, error) {
		return system.GetSystemInfo(ctx, gpuDevice, cfg.GPU.SysfsRoot)
	}
	svc := web.NewService(collector, info, web.NewMetrics(), logging.Component(logger, "http"))

	var (
		sock   *netx.Socket
		stream *web.StreamService
	)
	if cfg.Stream.Enabled {
		sock = netx.NewSocket()
		stream = web.NewStreamService(svc, cfg.Stream.DefaultRate, cfg.Stream.MinRate, logging.Component(logger, "stream"))
		stream.Register(sock.AddNamespace(web.StreamNamespace), users)
	}

	ln, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		return apperr.NewListenError(cfg.Addr(), err)
	}

	srv := &http.Server{
		Handler:           web.NewHandler(svc, sock, users, logging.Component(logger, "access")),
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.Info().
		Str("addr", ln.Addr().String()).
		Str("gpu_device", gpuDevice).
		Bool("auth", users.Enabled()).
		Bool("stream", cfg.Stream.Enabled).
		Msg("listening")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")
		if stream != nil {
			stream.Close()
			sock.Close()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// resolveGPUDevice returns the configured device, or the first amdgpu card
// found under the sysfs root. An empty result makes every gpu sample fail.
func resolveGPUDevice(cfg conf.GPU, logger zerolog.Logger) string {
	if cfg.Device != "" {
		return cfg.Device
	}

	cards, err := system.DiscoverGPUs(cfg.SysfsRoot)
	if err != nil || len(cards) == 0 {
		logger.Warn().Err(err).Str("sysfs_root", cfg.SysfsRoot).Msg("no amdgpu card found")
		return ""
	}
	logger.Info().Str("card", cards[0].Name).Str("device", cards[0].Device).Msg("gpu auto-detected")
	return cards[0].Device
}
