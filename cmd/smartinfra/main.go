package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"

	"codeberg.org/mutker/smartinfra/internal/config"
	"codeberg.org/mutker/smartinfra/internal/dcim"
	"codeberg.org/mutker/smartinfra/internal/demoapi"
	"codeberg.org/mutker/smartinfra/internal/diag"
	"codeberg.org/mutker/smartinfra/internal/errors"
	"codeberg.org/mutker/smartinfra/internal/gpu"
	"codeberg.org/mutker/smartinfra/internal/logger"
	"codeberg.org/mutker/smartinfra/internal/metrics"
	"codeberg.org/mutker/smartinfra/internal/monitor"
	"codeberg.org/mutker/smartinfra/internal/pid"
	"codeberg.org/mutker/smartinfra/internal/publish"
	"codeberg.org/mutker/smartinfra/internal/telemetry"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

const banner = "SmartAI-MLInfrastructure System"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) (code int) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().
				Str("panic", fmt.Sprint(r)).
				Str("stack", string(debug.Stack())).
				Msg("Unexpected error")
			code = 1
		}
	}()

	cfg, err := config.Load(args)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}

	level, _ := logger.ParseLevel(cfg.LogLevel)
	logger.Init(nil, level, logger.IsService())
	logger.Debug().
		Str("mode", cfg.Mode.String()).
		Str("config_file", cfg.ConfigFile).
		Msg("Config loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(ctx, cancel)

	fmt.Println(banner)
	fmt.Println(strings.Repeat("=", 50))

	if cfg.Mode.LongRunning() {
		err = runService(ctx, cfg)
	} else {
		err = runTask(ctx, cfg)
	}
	if err != nil {
		var appErr errors.Error
		if errors.As(err, &appErr) {
			logger.ErrorWithCode(appErr).Msg("Exiting with error")
		} else {
			logger.Error().Err(err).Msg("Exiting with error")
		}
		return 1
	}

	fmt.Println("\nDone!")
	return 0
}

func handleSignals(ctx context.Context, cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	select {
	case <-sigs:
		logger.Info().Msg("Received termination signal.")
		cancel()
	case <-ctx.Done():
	}
}

// runTask handles the one-shot modes.
func runTask(ctx context.Context, cfg *config.Config) error {
	switch cfg.Mode {
	case config.ModeTest:
		info(cfg)
		fmt.Println(strings.Repeat("-", 50))
		if err := diag.SelfTest(ctx, os.Stdout, diag.DefaultChecks(cfg.DataDir)); err != nil {
			fmt.Println("Some tests failed. Check your environment setup.")
			return err
		}
		fmt.Println("System is ready for full deployment!")
	case config.ModeBenchmark:
		gpus, _ := openGPU()
		if gpus != nil {
			defer shutdownGPU(gpus)
		}
		diag.Benchmark(os.Stdout, gpus)
	case config.ModeInfo:
		info(cfg)
	default:
		return errors.New().WithMessage(errors.ErrInvalidMode, "unhandled mode "+cfg.Mode.String())
	}
	return nil
}

func info(cfg *config.Config) {
	env := diag.Environment{DataDir: cfg.DataDir, MQTTBroker: cfg.MQTTBroker}
	if gpus, err := openGPU(); err != nil {
		env.GPUErr = err
	} else {
		shutdownGPU(gpus)
	}
	diag.CollectInfo(env).Print(os.Stdout)
}

// runService runs a long-running mode under a PID file until ctx is done.
func runService(ctx context.Context, cfg *config.Config) error {
	pidFile := pid.New("", cfg.Mode.String())
	if err := pidFile.Write(); err != nil {
		return err
	}
	defer func() {
		if err := pidFile.Remove(); err != nil {
			logger.Warn().Err(err).Msg("Failed to remove PID file")
		}
	}()

	pub, err := publish.New(publish.Config{
		Broker:      cfg.MQTTBroker,
		TopicPrefix: cfg.MQTTTopicPrefix,
	}, logger.New("mqtt"))
	if err != nil {
		return err
	}
	defer pub.Close()

	switch cfg.Mode {
	case config.ModeMockDCIM:
		return runMockDCIM(ctx, cfg, pub)
	case config.ModeDemoAPI:
		return demoapi.New(demoapi.Config{
			Port:     cfg.DemoPort,
			Upstream: cfg.DemoUpstream,
		}, logger.New("demo-api")).Run(ctx)
	case config.ModeMonitor:
		return runMonitor(ctx, cfg, pub)
	default:
		return errors.New().WithMessage(errors.ErrInvalidMode, "unhandled mode "+cfg.Mode.String())
	}
}

func runMockDCIM(ctx context.Context, cfg *config.Config, pub publish.Publisher) error {
	gen := telemetry.NewSeededGenerator(cfg.Seed)
	srv := dcim.New(dcim.Config{
		Port:         cfg.Port,
		RackCount:    cfg.RackCount,
		CoolingCount: cfg.CoolingCount,
	}, gen, pub, logger.New("dcim"))
	return srv.Run(ctx)
}

func runMonitor(ctx context.Context, cfg *config.Config, pub publish.Publisher) error {
	log := logger.New("monitor")

	mcfg := metrics.DefaultConfig()
	mcfg.Enabled = cfg.MetricsEnabled
	mcfg.DBPath = cfg.MetricsDB
	history, err := metrics.NewService(mcfg, logger.New("metrics"))
	if err != nil {
		return err
	}
	defer func() {
		if err := history.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close metrics history")
		}
	}()

	gpus, gpuErr := openGPU()
	if gpus != nil {
		defer shutdownGPU(gpus)
	} else {
		log.Warn().Err(gpuErr).Msg("GPU statistics unavailable")
	}

	collector := monitor.NewCollector(monitor.NewHostSampler(cfg.CPUSample), gpus,
		monitor.WithGPUUnavailable(gpuErr))
	poller := monitor.NewPoller(monitor.PollerConfig{
		Interval:    cfg.MonitorInterval,
		AutoRefresh: true,
	}, collector, history, pub, log)
	dashboard := monitor.NewDashboard(poller, history, log.With("dashboard"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return poller.Run(gctx) })
	g.Go(func() error {
		log.Info().Msgf("Dashboard at http://localhost:%d/", cfg.MonitorPort)
		return dashboard.Run(gctx, fmt.Sprintf(":%d", cfg.MonitorPort))
	})
	return g.Wait()
}

// openGPU returns a nil Reader and the reason when NVML cannot be used.
func openGPU() (gpu.Reader, error) {
	r, err := gpu.New(gpu.NVML(), logger.New("gpu"))
	if err != nil {
		logger.Debug().Err(err).Msg("NVML not available")
		return nil, err
	}
	return r, nil
}

func shutdownGPU(r gpu.Reader) {
	if err := r.Shutdown(); err != nil {
		logger.Debug().Err(err).Msg("NVML shutdown failed")
	}
}
