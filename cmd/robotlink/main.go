// Package main implements the entry point for the robotlink daemon.
// Robotlink bridges a vision client streaming 3D body coordinates to a robot
// controller, over either a raw TCP connection or a message bus.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/c360/robotlink/command"
	"github.com/c360/robotlink/config"
	"github.com/c360/robotlink/connection"
	"github.com/c360/robotlink/health"
	"github.com/c360/robotlink/metric"
	"github.com/c360/robotlink/preflight"
	"github.com/c360/robotlink/stream"
	"github.com/c360/robotlink/tracker"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "robotlink"
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

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

// app holds the wired subsystems
type app struct {
	cfg          *config.Config
	registry     *metric.Registry
	manager      *connection.Manager
	executor     *command.Executor
	streamClient *stream.Client
	tracker      *tracker.Server
	monitor      *health.Monitor
	metricServer *metric.Server
	healthServer *http.Server
}

func run() error {
	cliCfg, shouldExit, err := initializeCLI()
	if shouldExit || err != nil {
		return err
	}

	cfg, err := loadConfig(cliCfg)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	slog.Info("Starting robotlink",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath,
		"backend", cfg.Backend)

	if cliCfg.Validate {
		slog.Info("Configuration is valid")
		return nil
	}

	a, err := buildApp(cfg, cliCfg, logger)
	if err != nil {
		return err
	}

	return a.runWithSignalHandling(cliCfg)
}

// initializeCLI parses and validates flags, handling version/help early exit
func initializeCLI() (*CLIConfig, bool, error) {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return nil, false, fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil, true, nil
	}
	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil, true, nil
	}

	return cliCfg, false, nil
}

// loadConfig loads the file configuration and applies CLI overrides
func loadConfig(cliCfg *CLIConfig) (*config.Config, error) {
	cfg, err := config.NewLoader().LoadFile(cliCfg.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if cliCfg.LogLevel != "" {
		cfg.Logging.Level = cliCfg.LogLevel
	}
	if cliCfg.LogFormat != "" {
		cfg.Logging.Format = cliCfg.LogFormat
	}

	return cfg, nil
}

// buildApp wires the subsystems together
func buildApp(cfg *config.Config, cliCfg *CLIConfig, logger *slog.Logger) (*app, error) {
	registry := metric.NewRegistry()

	manager, err := connection.NewManager(cfg.Robot, connection.Deps{
		Logger:   logger,
		Registry: registry,
	})
	if err != nil {
		return nil, fmt.Errorf("create connection manager: %w", err)
	}

	executor, err := command.NewExecutor(manager, command.Deps{
		Logger:   logger,
		Registry: registry,
	})
	if err != nil {
		return nil, fmt.Errorf("create command executor: %w", err)
	}

	streamClient, err := stream.NewClient(manager, cfg.Stream, stream.Deps{
		Logger:   logger,
		Registry: registry,
	})
	if err != nil {
		return nil, fmt.Errorf("create stream client: %w", err)
	}

	// Every sample from a vision client goes straight at the robot. Delivery
	// is best-effort; the stream client drops when the link is down.
	trackerServer, err := tracker.NewServer(cfg.Tracker, func(s stream.Sample) {
		streamClient.Send(s)
	}, tracker.Deps{
		Logger:   logger,
		Registry: registry,
	})
	if err != nil {
		return nil, fmt.Errorf("create tracker server: %w", err)
	}

	a := &app{
		cfg:          cfg,
		registry:     registry,
		manager:      manager,
		executor:     executor,
		streamClient: streamClient,
		tracker:      trackerServer,
		monitor:      health.NewMonitor(),
	}

	if cfg.Metrics.Enabled {
		a.metricServer = metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, registry)
	}
	if cliCfg.HealthPort > 0 {
		mux := http.NewServeMux()
		mux.Handle("/healthz", a.monitor.Handler(appName))
		a.healthServer = &http.Server{
			Addr:              fmt.Sprintf(":%d", cliCfg.HealthPort),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	return a, nil
}

// runWithSignalHandling brings the link up and runs until SIGINT/SIGTERM
func (a *app) runWithSignalHandling(cliCfg *CLIConfig) error {
	signalCtx, signalCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	a.startServers()

	if err := a.bringUpLink(signalCtx, cliCfg.SkipPreflight); err != nil {
		return err
	}

	if err := a.streamClient.Start(signalCtx); err != nil {
		return fmt.Errorf("start stream client: %w", err)
	}
	if err := a.tracker.Start(signalCtx); err != nil {
		return fmt.Errorf("start tracker: %w", err)
	}

	go a.healthLoop(signalCtx)

	slog.Info("Robotlink started", "tracker", a.cfg.Tracker.TCPAddress)

	<-signalCtx.Done()
	slog.Info("Received shutdown signal")

	a.shutdown(cliCfg.ShutdownTimeout)
	slog.Info("Robotlink shutdown complete")
	return nil
}

func (a *app) startServers() {
	if a.metricServer != nil {
		if err := a.metricServer.Start(); err != nil {
			slog.Warn("Metrics server failed to start", "error", err)
		}
	}
	if a.healthServer != nil {
		go func() {
			if err := a.healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("Health server failed", "error", err)
			}
		}()
	}
}

// bringUpLink connects to the robot, optionally running the preflight check
// sequence. Without preflight a failed initial connect is tolerated; the
// stream client's reconnect loop keeps trying.
func (a *app) bringUpLink(ctx context.Context, skipPreflight bool) error {
	if skipPreflight {
		if err := a.manager.Connect(ctx); err != nil {
			slog.Warn("Initial connect failed, reconnect loop will retry", "error", err)
		}
		return nil
	}

	runner, err := preflight.NewRunner(a.cfg.Preflight, a.manager, a.executor, slog.Default())
	if err != nil {
		return fmt.Errorf("create preflight runner: %w", err)
	}

	report := runner.Run(ctx)
	if !report.Passed {
		last := report.Steps[len(report.Steps)-1]
		return fmt.Errorf("preflight failed at step %s: %s", last.Name, last.Detail)
	}
	return nil
}

// healthLoop keeps the health monitor in sync with the link state
func (a *app) healthLoop(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.monitor.Update("robot", health.FromConnection("robot", a.manager.Info()))
			a.monitor.Update("tracker", health.NewHealthy("tracker",
				fmt.Sprintf("listening, %d frames sent, %d dropped",
					a.streamClient.Sent(), a.streamClient.Dropped())))
		}
	}
}

func (a *app) shutdown(timeout time.Duration) {
	if err := a.tracker.Stop(timeout); err != nil {
		slog.Warn("Tracker stop", "error", err)
	}
	a.streamClient.Stop()
	a.manager.Disconnect()

	if a.healthServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		_ = a.healthServer.Shutdown(ctx)
		cancel()
	}
	if a.metricServer != nil {
		if err := a.metricServer.Stop(timeout); err != nil {
			slog.Warn("Metrics server stop", "error", err)
		}
	}
}
