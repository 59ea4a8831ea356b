// Package main implements the standalone streaming daemon. It runs the
// WebSocket event-distribution server without an embedding host: inbound
// task commands are handled by a loopback handler that drives the event
// transformer, so clients can exercise the full wire contract.
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

	"github.com/spf13/cobra"

	"github.com/sudocode-ai/Roo-Code-server/config"
	"github.com/sudocode-ai/Roo-Code-server/metric"
	"github.com/sudocode-ai/Roo-Code-server/stream"
)

// Build information constants
const (
	Version = "0.1.0"
	appName = "roostreamd"
)

type cliConfig struct {
	ConfigPath      string
	Port            int
	LogLevel        string
	LogFormat       string
	MetricsPort     int
	ShutdownTimeout time.Duration
	ForceEnable     bool
	Validate        bool
}

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := newRootCommand().Execute(); err != nil {
		slog.Error("daemon failed", "error", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cli := &cliConfig{}

	cmd := &cobra.Command{
		Use:     appName,
		Short:   "Real-time event distribution server for agent activity",
		Version: Version,
		RunE: func(_ *cobra.Command, _ []string) error {
			return run(cli)
		},
		SilenceUsage: true,
	}

	flags := cmd.Flags()
	flags.StringVarP(&cli.ConfigPath, "config", "c",
		os.Getenv("ROOSTREAM_CONFIG"),
		"path to configuration file (env: ROOSTREAM_CONFIG)")
	flags.IntVar(&cli.Port, "port", -1,
		"listen port override, -1 keeps the configured port")
	flags.StringVar(&cli.LogLevel, "log-level",
		envOr("ROOSTREAM_LOG_LEVEL", ""),
		"log level override: debug, info, warn, error")
	flags.StringVar(&cli.LogFormat, "log-format",
		envOr("ROOSTREAM_LOG_FORMAT", "json"),
		"log format: json, text")
	flags.IntVar(&cli.MetricsPort, "metrics-port", 0,
		"Prometheus /metrics port, 0 to disable")
	flags.DurationVar(&cli.ShutdownTimeout, "shutdown-timeout", 10*time.Second,
		"graceful shutdown timeout")
	flags.BoolVar(&cli.ForceEnable, "enable", false,
		"run even when the configuration has the subsystem disabled")
	flags.BoolVar(&cli.Validate, "validate", false,
		"validate configuration and exit")

	return cmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func run(cli *cliConfig) error {
	cfg, err := loadConfig(cli)
	if err != nil {
		return err
	}

	logger := setupLogger(cli.LogFormat, cfg)
	slog.SetDefault(logger)

	if cli.Validate {
		logger.Info("configuration is valid")
		return nil
	}
	if !cfg.Enabled {
		logger.Info("streaming subsystem disabled by configuration, exiting",
			"hint", "pass --enable or set enabled: true")
		return nil
	}

	registry := metric.NewRegistry()
	handler := newLoopbackHandler(logger)

	server := stream.NewServer(cfg,
		stream.WithLogger(logger),
		stream.WithMetrics(registry),
		stream.WithCommandHandler(handler.handle),
	)
	handler.attach(server)

	ctx := context.Background()
	if err := server.Start(ctx); err != nil {
		return err
	}
	logger.Info("daemon started", "port", server.BoundPort(), "version", Version)

	var metricsServer *http.Server
	if cli.MetricsPort > 0 {
		metricsServer = startMetricsServer(cli.MetricsPort, registry, server, logger)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutdown signal received", "signal", sig.String())

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, cli.ShutdownTimeout)
		_ = metricsServer.Shutdown(shutdownCtx)
		cancel()
	}
	return server.Stop(cli.ShutdownTimeout)
}

// loadConfig resolves the effective configuration: file (or defaults)
// merged with CLI overrides.
func loadConfig(cli *cliConfig) (config.Server, error) {
	cfg := config.Default()
	if cli.ConfigPath != "" {
		loaded, err := config.Load(cli.ConfigPath)
		if err != nil {
			return config.Server{}, err
		}
		cfg = loaded
	}

	patch := config.Patch{}
	if cli.Port >= 0 {
		patch.Port = &cli.Port
	}
	if cli.LogLevel != "" {
		patch.LoggingLevel = &cli.LogLevel
	}
	if cli.ForceEnable {
		enabled := true
		patch.Enabled = &enabled
	}
	cfg = cfg.Apply(patch)
	return cfg, cfg.Validate()
}

// startMetricsServer exposes /metrics and /healthz on a side port.
func startMetricsServer(port int, registry *metric.Registry, server *stream.Server, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", registry.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		h := server.HealthStatus()
		if !h.Running {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_, _ = fmt.Fprintf(w, `{"running":%t,"connections":%d}`, h.Running, h.Connections)
	})

	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server exited", "error", err)
		}
	}()
	logger.Info("metrics server listening", "port", port)
	return metricsServer
}
