// Package main is the entry point for the policy decision point.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vyrodovalexey/avpdp/internal/audit"
	"github.com/vyrodovalexey/avpdp/internal/config"
	"github.com/vyrodovalexey/avpdp/internal/observability"
	"github.com/vyrodovalexey/avpdp/internal/pdp"
	"github.com/vyrodovalexey/avpdp/internal/server"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// shutdownTimeout bounds graceful shutdown.
const shutdownTimeout = 30 * time.Second

// cliFlags holds command line flags.
type cliFlags struct {
	configPath  string
	showVersion bool
}

func main() {
	flags := parseFlags()

	if flags.showVersion {
		printVersion()
		return
	}

	cfg, err := config.Load(flags.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := observability.NewLogger(cfg.Observability.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting avpdp",
		observability.String("version", version),
		observability.String("config", flags.configPath),
	)

	if err := run(cfg, flags.configPath, logger); err != nil {
		logger.Error("fatal error", observability.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

// parseFlags parses command line flags.
func parseFlags() cliFlags {
	configPath := flag.String("config", getEnvOrDefault("PDP_CONFIG_PATH", "configs/pdp.yaml"),
		"Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	return cliFlags{
		configPath:  *configPath,
		showVersion: *showVersion,
	}
}

// printVersion prints version information.
func printVersion() {
	fmt.Printf("avpdp version %s\n", version)
	fmt.Printf("  Build time: %s\n", buildTime)
	fmt.Printf("  Git commit: %s\n", gitCommit)
}

// run wires the application together and blocks until shutdown.
func run(cfg *config.Config, configPath string, logger observability.Logger) error {
	ctx := context.Background()

	tracing, err := observability.NewTracingProvider(ctx,
		cfg.Observability.ServiceName, version, cfg.Observability.Tracing)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}

	registry := observability.NewRegistry()
	stream := server.NewStreamHub(server.WithStreamLogger(logger))

	dispatcher, err := buildAuditDispatcher(cfg, registry, logger, stream)
	if err != nil {
		return fmt.Errorf("audit: %w", err)
	}

	var emitter audit.Emitter = audit.NopEmitter()
	if dispatcher != nil {
		emitter = dispatcher
	}

	engine, err := pdp.New(&cfg.Engine,
		pdp.WithEngineLogger(logger),
		pdp.WithEngineMetrics(pdp.NewMetricsWithRegisterer("pdp", registry)),
		pdp.WithAuditEmitter(emitter),
	)
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}

	srv := server.New(cfg.Server, engine, &cfg.Engine,
		server.WithServerLogger(logger),
		server.WithServerMetrics(server.NewMetricsWithRegisterer("pdp", registry)),
		server.WithStreamHub(stream),
	)

	var metricsServer *observability.MetricsServer
	if cfg.Observability.Metrics.Enabled {
		metricsServer = observability.NewMetricsServer(cfg.Observability.Metrics, registry, logger)
		metricsServer.Start()
	}

	watcher := startConfigWatcher(configPath, engine, srv, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", observability.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if watcher != nil {
		_ = watcher.Stop()
	}
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Error("failed to stop server gracefully", observability.Error(err))
	}
	if metricsServer != nil {
		_ = metricsServer.Stop(shutdownCtx)
	}
	if dispatcher != nil {
		_ = dispatcher.Close()
	}
	_ = engine.Close()
	if err := tracing.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown tracing", observability.Error(err))
	}

	logger.Info("avpdp stopped")
	return nil
}

// buildAuditDispatcher assembles the audit pipeline: the writer sink,
// the optional Redis Streams sink, the live stream hub, and the
// dispatcher in front of them. Returns nil when auditing is disabled.
func buildAuditDispatcher(
	cfg *config.Config,
	registry *prometheus.Registry,
	logger observability.Logger,
	stream *server.StreamHub,
) (*audit.Dispatcher, error) {
	if !cfg.Audit.Enabled {
		logger.Warn("audit emission is disabled")
		return nil, nil
	}

	writerSink, err := audit.NewFileSink(cfg.Audit.Output, logger)
	if err != nil {
		return nil, err
	}

	sinks := []audit.Sink{writerSink}
	if cfg.Audit.Redis.Enabled {
		sinks = append(sinks, audit.NewRedisSink(&cfg.Audit.Redis,
			audit.WithRedisSinkLogger(logger)))
	}
	if stream != nil {
		sinks = append(sinks, stream)
	}

	opts := []audit.DispatcherOption{
		audit.WithDispatcherLogger(logger),
		audit.WithDispatcherMetrics(audit.NewMetricsWithRegisterer("pdp", registry)),
		audit.WithFallback(writerSink),
	}
	if cfg.Audit.QueueSize > 0 {
		opts = append(opts, audit.WithQueueSize(cfg.Audit.QueueSize))
	}

	return audit.NewDispatcher(sinks, opts...), nil
}

// startConfigWatcher starts the configuration watcher that hot-reloads
// the engine's policy data. Watcher failures degrade to a static
// configuration rather than aborting startup.
func startConfigWatcher(
	configPath string,
	engine pdp.Engine,
	srv *server.Server,
	logger observability.Logger,
) *config.Watcher {
	watcher, err := config.NewWatcher(configPath, func(newCfg *config.Config) {
		logger.Info("configuration changed, reloading policy data")
		if reloadErr := engine.Reload(&newCfg.Engine); reloadErr != nil {
			logger.Error("failed to reload engine configuration", observability.Error(reloadErr))
			return
		}
		srv.UpdateEngineConfig(&newCfg.Engine)
	}, config.WithWatcherLogger(logger))

	if err != nil {
		logger.Warn("failed to create config watcher", observability.Error(err))
		return nil
	}

	if err := watcher.Start(); err != nil {
		logger.Warn("failed to start config watcher", observability.Error(err))
	}

	return watcher
}

// getEnvOrDefault returns the environment variable value or a default.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
