// Package main runs the MAVLink to Cursor-on-Target bridge. Sessions are
// controlled over NATS request/reply or started at boot with --autostart.
package main

import (
	"context"
	stderrors "errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/c360/mavcot/bridge"
	"github.com/c360/mavcot/config"
	"github.com/c360/mavcot/control"
	"github.com/c360/mavcot/health"
	"github.com/c360/mavcot/metric"
	"github.com/c360/mavcot/natsclient"
	"github.com/c360/mavcot/pkg/retry"
	"github.com/c360/mavcot/statecache"
	"github.com/c360/mavcot/telemetry"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "mavcot"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(os.Args[1:]); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run(args []string) error {
	cliCfg, err := parseFlags(args)
	if stderrors.Is(err, flag.ErrHelp) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s (%s)\n", appName, Version, BuildTime)
		return nil
	}

	cfg, cfgPath, err := loadConfiguration(cliCfg)
	if err != nil {
		return err
	}

	logger, syncLogs := setupLogger(cfg.Logging.Level, cfg.Logging.Format)
	defer syncLogs()
	slog.SetDefault(logger)

	if cliCfg.Validate {
		logger.Info("Configuration is valid", "config_path", cfgPath)
		return nil
	}

	logger.Info("Starting mavcot",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cfgPath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}

	if cfg.Session.Autostart {
		result := app.ctrl.Start(cfg.Session.Bridge())
		logger.Info("Autostart", "result", result)
	}

	logger.Info("mavcot ready", "ops_addr", app.opsAddr())
	<-ctx.Done()
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cliCfg.ShutdownTimeout)
	defer cancel()
	if err := app.shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	logger.Info("mavcot shutdown complete")
	return nil
}

// loadConfiguration applies file, dotenv, environment and flags in that order.
func loadConfiguration(cliCfg *CLIConfig) (*config.Config, string, error) {
	config.LoadDotEnv(cliCfg.EnvFile)

	cfg, path, err := config.LoadWithFallback(cliCfg.ConfigPath)
	if err != nil {
		return nil, "", fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, "", fmt.Errorf("apply environment: %w", err)
	}

	if cliCfg.LogLevel != "" {
		cfg.Logging.Level = cliCfg.LogLevel
	}
	if cliCfg.LogFormat != "" {
		cfg.Logging.Format = cliCfg.LogFormat
	}
	if cliCfg.Autostart {
		cfg.Session.Autostart = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, path, nil
}

// app holds everything that needs shutting down.
type app struct {
	logger   *slog.Logger
	registry *metric.MetricsRegistry
	monitor  *health.Monitor
	ctrl     *bridge.Controller
	ops      *metric.Server
	nats     *natsclient.Client
	cache    *statecache.Cache
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{
		logger:   logger,
		registry: metric.NewMetricsRegistry(),
		monitor:  health.NewMonitor(),
	}
	a.monitor.UpdateHealthy("process", "running")

	fail := func(err error) (*app, error) {
		_ = a.shutdown(context.WithoutCancel(ctx))
		return nil, err
	}

	// Side services connect in parallel; each degrades on its own failure.
	var g errgroup.Group
	if cfg.Redis.Enabled {
		g.Go(func() error {
			a.setupCache(ctx, cfg.Redis)
			return ctx.Err()
		})
	}
	if cfg.NATS.Enabled {
		g.Go(func() error {
			a.setupNATS(ctx, cfg.NATS)
			return ctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return fail(fmt.Errorf("connect side services: %w", err))
	}

	busDeps := telemetry.Deps{Logger: logger, Registry: a.registry}
	if a.cache != nil {
		busDeps.OnStatus = a.cache.Offer
	}
	bus, err := telemetry.NewBus(telemetry.DefaultCapacity, busDeps)
	if err != nil {
		return fail(fmt.Errorf("create telemetry bus: %w", err))
	}

	var mirror bridge.CotSink
	if a.nats != nil {
		mirror = control.NewMirror(a.nats, cfg.NATS.CotSubject, logger)
	}

	a.ctrl, err = bridge.NewController(bridge.Deps{
		Logger:  logger,
		Bus:     bus,
		Metrics: a.registry.Pipeline,
		Monitor: a.monitor,
		Mirror:  mirror,
	})
	if err != nil {
		return fail(fmt.Errorf("create controller: %w", err))
	}

	if a.nats != nil {
		adapter := control.NewAdapter(a.ctrl, cfg.NATS.ControlSubject, cfg.Session.Bridge(), logger)
		if err := adapter.Register(ctx, a.nats); err != nil {
			return fail(fmt.Errorf("register control subjects: %w", err))
		}
	}

	if cfg.Metrics.Enabled {
		a.ops = metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, a.registry, a.monitor,
			func() any { return a.ctrl.GetStatus() })
		if err := a.ops.Start(); err != nil {
			return fail(fmt.Errorf("start ops server: %w", err))
		}
	}

	return a, nil
}

// setupNATS connects the control client. Failure leaves the bridge usable
// through autostart and is reported as degraded health.
func (a *app) setupNATS(ctx context.Context, cfg config.NATSConfig) {
	pipeline := a.registry.Pipeline
	client, err := natsclient.NewClient(cfg.URL,
		natsclient.WithLogger(a.logger),
		natsclient.WithName(appName),
		natsclient.WithHealthChangeCallback(func(up bool) {
			pipeline.SetSideService("nats", up)
			if up {
				a.monitor.UpdateHealthy("nats", "connected")
			} else {
				a.monitor.UpdateDegraded("nats", "disconnected")
			}
		}),
	)
	if err != nil {
		a.logger.Error("Invalid NATS client options", "error", err)
		a.monitor.Update("nats", health.FromError("nats", err))
		return
	}

	if err := client.ConnectWithRetry(ctx, retry.DefaultConfig()); err != nil {
		a.logger.Error("NATS unavailable, control subjects disabled", "url", cfg.URL, "error", err)
		a.monitor.UpdateDegraded("nats", "unavailable")
		pipeline.SetSideService("nats", false)
		return
	}

	if rtt, err := client.RTT(); err == nil {
		a.logger.Info("NATS connected", "url", cfg.URL, "rtt", rtt)
	}
	a.nats = client
}

// setupCache connects the Redis status mirror. Failure disables the mirror.
func (a *app) setupCache(ctx context.Context, cfg config.RedisConfig) {
	pipeline := a.registry.Pipeline
	client, err := statecache.Connect(ctx, cfg.Addr, retry.DefaultConfig())
	if err != nil {
		a.logger.Error("Redis unavailable, status mirror disabled", "addr", cfg.Addr, "error", err)
		a.monitor.UpdateDegraded("redis", "unavailable")
		pipeline.SetSideService("redis", false)
		return
	}

	a.cache = statecache.New(client, statecache.Config{Key: cfg.Key, TTL: cfg.TTL.Duration}, a.logger,
		func(ok bool) { pipeline.SetSideService("redis", ok) })

	// A snapshot left by an earlier process is reported, never restored.
	if prev, found, err := a.cache.Load(ctx); err != nil {
		a.logger.Warn("Reading previous status failed", "key", cfg.Key, "error", err)
	} else if found {
		a.logger.Info("Previous status found", "key", cfg.Key,
			"running", prev.Running, "mavlink_msg_count", prev.MessageCount, "cot_sent_count", prev.CotSentCount)
	}
	a.cache.Start(context.WithoutCancel(ctx))
	a.monitor.UpdateHealthy("redis", "connected")
	pipeline.SetSideService("redis", true)
}

func (a *app) opsAddr() string {
	if a.ops == nil {
		return ""
	}
	return a.ops.Address()
}

// shutdown stops the session first so its final status reaches the mirrors.
func (a *app) shutdown(ctx context.Context) error {
	var errs []error

	if a.ctrl != nil && a.ctrl.State() != bridge.Idle {
		a.logger.Info("Stopping session", "result", a.ctrl.Stop())
	}
	if a.nats != nil {
		if err := a.nats.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close NATS: %w", err))
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close Redis: %w", err))
		}
	}
	if a.ops != nil {
		if err := a.ops.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop ops server: %w", err))
		}
	}
	return stderrors.Join(errs...)
}
