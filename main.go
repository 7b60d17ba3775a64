// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/soothill/qlink-enumerator/bridge"
	"github.com/soothill/qlink-enumerator/config"
	"github.com/soothill/qlink-enumerator/discovery"
	"github.com/soothill/qlink-enumerator/export"
	"github.com/soothill/qlink-enumerator/pkg/interfaces"
	"github.com/soothill/qlink-enumerator/pkg/logger"
	"github.com/soothill/qlink-enumerator/pkg/metrics"
	"github.com/soothill/qlink-enumerator/session"
	"github.com/soothill/qlink-enumerator/topology"
	"golang.org/x/time/rate"
)

const (
	signalChannelSize     = 1
	readinessCheckTimeout = 2 * time.Second
	shutdownTimeout       = 5 * time.Second
	healthCheckTimeout    = 5 * time.Second
)

// App represents the main application
type App struct {
	cfg           *config.Config
	metricsPort   string
	server        *http.Server
	client        *bridge.Client
	controller    *session.Controller
	exporters     []interfaces.Exporter
	influx        *export.InfluxDBExporter
	configWatcher *config.Watcher
	lastTopo      *topology.Topology
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
	mu            sync.Mutex
}

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	format := flag.String("format", "", "Export format override (csv or homekit)")
	output := flag.String("output", "", "Export file path override")
	watch := flag.Bool("watch", false, "Re-enumerate periodically instead of exiting after one run")
	metricsPort := flag.String("metrics-port", "9090", "Port for Prometheus metrics endpoint (watch mode)")
	healthCheck := flag.Bool("health-check", false, "Check bridge reachability and exit")
	validateConfig := flag.Bool("validate-config", false, "Validate configuration file and exit")
	flag.Parse()

	if *validateConfig {
		os.Exit(performConfigValidation(*configPath))
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Initialize("error")
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if *format != "" {
		cfg.Export.Format = *format
	}
	if *output != "" {
		cfg.Export.Path = *output
	}
	if err = cfg.Validate(); err != nil {
		logger.Initialize("error")
		logger.Fatal().Err(err).Msg("Invalid configuration")
	}

	logger.Initialize(cfg.Logging.Level)

	if *healthCheck {
		os.Exit(performHealthCheck(cfg))
	}

	logger.Info().Msg("Starting QLink Network Enumerator")
	logger.Info().Str("strategy", cfg.Enumeration.Strategy).
		Str("format", cfg.Export.Format).
		Dur("settle_delay", cfg.Bridge.SettleDelay.Std()).
		Msg("Configuration loaded")

	if err = resolveBridgeURL(cfg); err != nil {
		logger.Fatal().Err(err).Msg("Failed to locate a bridge")
	}

	configChan := make(chan *config.Config)
	configWatcher := config.NewWatcher(*configPath, configChan)

	application, err := New(cfg, *metricsPort, configWatcher)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create application")
	}
	if !*watch {
		code := application.RunOnce()
		application.Close()
		os.Exit(code)
	}

	setupDebugSignalHandlers(application)
	application.Run(configChan)
	application.Close()
}

// New creates a new application instance
func New(cfg *config.Config, metricsPort string, configWatcher *config.Watcher) (*App, error) {
	app := &App{
		cfg:           cfg,
		metricsPort:   metricsPort,
		configWatcher: configWatcher,
	}

	app.client = bridge.NewClient(cfg.Bridge.URL, cfg.Bridge.CommandTimeout.Std(), cfg.Bridge.SendInterval.Std())
	app.controller = session.New(app.client, session.Config{
		ServerIndex: cfg.Bridge.ServerIndex,
		Strategy:    topology.Strategy(cfg.Enumeration.Strategy),
		SettleDelay: cfg.Bridge.SettleDelay.Std(),
	})

	var err error
	app.exporters, app.influx, err = buildExporters(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize exporters: %w", err)
	}

	app.server = newMetricsServer(metricsPort, app.currentClient)

	return app, nil
}

// currentClient returns the bridge client for the configuration in effect,
// so long-lived HTTP handlers track config reloads.
func (a *App) currentClient() *bridge.Client {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.client
}

// watchInterval returns the re-enumeration interval in effect.
func (a *App) watchInterval() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg.Watch.Interval.Std()
}

// Close releases resources held by long-lived components.
func (a *App) Close() {
	if a.influx != nil {
		a.influx.Close()
	}
}

// RunOnce performs a single enumeration and export, returning the process
// exit code. A run that completes with recorded warnings still succeeds.
func (a *App) RunOnce() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.enumerateAndExport(ctx); err != nil {
		logger.Error().Err(err).Msg("Enumeration failed")
		return 1
	}
	return 0
}

// Run starts the application in watch mode and blocks until shutdown
func (a *App) Run(configChan <-chan *config.Config) {
	ctx, cancel := context.WithCancel(context.Background())
	a.ctx = ctx
	a.cancel = cancel
	defer a.cancel()

	a.configWatcher.Start(ctx)
	defer a.configWatcher.Stop()

	a.startMetricsServer()
	a.setupSignalHandler()
	a.startConfigWatcher(configChan)

	if err := a.enumerateAndExport(ctx); err != nil {
		logger.Error().Err(err).Msg("Initial enumeration failed")
	}

	a.runMainLoop(ctx)
}

// enumerateAndExport performs one enumeration run and writes the topology
// to every configured sink.
func (a *App) enumerateAndExport(ctx context.Context) error {
	a.mu.Lock()
	controller := a.controller
	exporters := a.exporters
	a.mu.Unlock()

	logger.Info().Msg("Starting topology enumeration")
	start := time.Now()
	topo, err := controller.Run(ctx)
	metrics.EnumerationDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.EnumerationRuns.WithLabelValues("failure").Inc()
		return err
	}
	metrics.EnumerationRuns.WithLabelValues("success").Inc()
	a.mu.Lock()
	a.lastTopo = topo
	a.mu.Unlock()
	metrics.MastersDiscovered.Set(float64(len(topo.Masters)))
	metrics.StationsDiscovered.Set(float64(topo.StationCount()))
	metrics.TopologyWarnings.Add(float64(len(topo.Warnings)))

	logger.Info().Int("masters", len(topo.Masters)).
		Int("stations", topo.StationCount()).
		Int("warnings", len(topo.Warnings)).
		Dur("elapsed", time.Since(start)).
		Msg("Enumeration complete")

	for _, w := range topo.Warnings {
		logger.Warn().Str("master", w.Master).Str("module", w.Module).
			Err(w.Err).Msg("Topology warning")
	}

	var exportErr error
	for _, exporter := range exporters {
		if err := exporter.Export(ctx, topo); err != nil {
			logger.Error().Err(err).Str("sink", exporter.Name()).Msg("Export failed")
			metrics.ExportErrors.WithLabelValues(exporter.Name()).Inc()
			exportErr = err
			continue
		}
		logger.Info().Str("sink", exporter.Name()).Msg("Topology exported")
	}

	return exportErr
}

// startMetricsServer starts the HTTP server for metrics and health checks
func (a *App) startMetricsServer() {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		logger.Info().Str("addr", a.server.Addr).Msg("Starting metrics and health check server (localhost only)")
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()
}

// setupSignalHandler sets up graceful shutdown on interrupt signals
func (a *App) setupSignalHandler() {
	sigChan := make(chan os.Signal, signalChannelSize)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		a.performGracefulShutdown()
	}()
}

// runMainLoop re-enumerates on the configured interval until shutdown. The
// interval is re-read after each run so a reloaded configuration takes
// effect without a restart.
func (a *App) runMainLoop(ctx context.Context) {
	interval := a.watchInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Shutting down")
			a.wg.Wait()
			logger.Info().Msg("All goroutines finished, exiting")
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			if err := a.enumerateAndExport(ctx); err != nil {
				logger.Error().Err(err).Msg("Enumeration run failed")
			}
			if next := a.watchInterval(); next != interval {
				interval = next
				ticker.Reset(interval)
				logger.Info().Dur("interval", interval).Msg("Watch interval updated")
			}
		}
	}
}

// DumpApplicationState dumps the last enumerated topology to logs
func (a *App) DumpApplicationState() {
	logger.Info().Msg("=== APPLICATION STATE DUMP (SIGUSR1) ===")

	a.mu.Lock()
	topo := a.lastTopo
	a.mu.Unlock()

	if topo == nil {
		logger.Info().Msg("No topology enumerated yet")
	} else {
		logger.Info().
			Int("masters", len(topo.Masters)).
			Int("stations", topo.StationCount()).
			Int("warnings", len(topo.Warnings)).
			Msg("Last topology")

		for _, master := range topo.Masters {
			logger.Info().
				Str("master", master.Address).
				Int("modules", len(master.Modules)).
				Int("stations", len(master.Stations)).
				Msg("Master")
		}
		for _, station := range topo.Stations() {
			logger.Info().
				Str("master", station.Master).
				Str("station", station.Address).
				Str("type", station.Type).
				Str("serial", station.Serial).
				Msg("Station")
		}
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	logger.Info().
		Uint64("alloc_mb", m.Alloc/1024/1024).
		Uint32("num_gc", m.NumGC).
		Int("num_goroutines", runtime.NumGoroutine()).
		Msg("Runtime statistics")

	logger.Info().Msg("=== END STATE DUMP ===")
}

// DumpGoroutineStackTraces dumps all goroutine stack traces to logs
func DumpGoroutineStackTraces() {
	logger.Info().Msg("=== GOROUTINE STACK TRACES (SIGUSR2) ===")
	logger.Info().Int("num_goroutines", runtime.NumGoroutine()).Msg("Current goroutine count")

	buf := make([]byte, 1024*1024) // 1MB buffer
	stackLen := runtime.Stack(buf, true)
	logger.Info().Str("stack_traces", string(buf[:stackLen])).Msg("Full stack trace")

	logger.Info().Msg("=== END STACK TRACES ===")
}

// performGracefulShutdown handles graceful shutdown of all components
func (a *App) performGracefulShutdown() {
	logger.Info().Msg("Initiating graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	} else {
		logger.Info().Msg("HTTP server stopped")
	}

	a.configWatcher.Stop()
	a.cancel()
}

// UpdateConfig applies a reloaded configuration. The bridge client and
// exporters are rebuilt so URL, pacing, and sink changes take effect on
// the next run.
func (a *App) UpdateConfig(newCfg *config.Config) {
	exporters, influx, err := buildExporters(newCfg)
	if err != nil {
		logger.Error().Err(err).Msg("Reloaded configuration rejected: exporter initialization failed")
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.influx != nil {
		a.influx.Close()
	}
	a.cfg = newCfg
	a.client = bridge.NewClient(newCfg.Bridge.URL, newCfg.Bridge.CommandTimeout.Std(), newCfg.Bridge.SendInterval.Std())
	a.controller = session.New(a.client, session.Config{
		ServerIndex: newCfg.Bridge.ServerIndex,
		Strategy:    topology.Strategy(newCfg.Enumeration.Strategy),
		SettleDelay: newCfg.Bridge.SettleDelay.Std(),
	})
	a.exporters = exporters
	a.influx = influx

	logger.Info().Msg("Application configuration updated")
}

// startConfigWatcher starts a goroutine to listen for config file changes and reloads
func (a *App) startConfigWatcher(configChan <-chan *config.Config) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for {
			select {
			case <-a.ctx.Done():
				logger.Info().Msg("Config watcher goroutine shutting down")
				return
			case newCfg := <-configChan:
				a.UpdateConfig(newCfg)
			}
		}
	}()
}

// resolveBridgeURL fills in the bridge URL from mDNS discovery when the
// configuration left it empty.
func resolveBridgeURL(cfg *config.Config) error {
	if cfg.Bridge.URL != "" {
		return nil
	}
	if !cfg.Discovery.Enabled {
		return fmt.Errorf("bridge.url is empty and discovery is disabled")
	}

	logger.Info().Str("service_type", cfg.Discovery.ServiceType).Msg("Discovering bridge via mDNS")
	scanner := discovery.NewScanner(cfg.Discovery.ServiceType, cfg.Discovery.Domain)
	endpoints, err := scanner.Discover(context.Background(), cfg.Discovery.Timeout.Std())
	if err != nil {
		return fmt.Errorf("bridge discovery failed: %w", err)
	}
	if len(endpoints) == 0 {
		return fmt.Errorf("no bridge advertised as %s on the local network", cfg.Discovery.ServiceType)
	}

	cfg.Bridge.URL = endpoints[0].BaseURL()
	logger.Info().Str("name", endpoints[0].Name).Str("url", cfg.Bridge.URL).Msg("Bridge discovered")
	return nil
}

// buildExporters constructs the configured export sinks. The InfluxDB
// exporter is returned separately so its client can be closed on shutdown.
func buildExporters(cfg *config.Config) ([]interfaces.Exporter, *export.InfluxDBExporter, error) {
	var exporters []interfaces.Exporter

	switch cfg.Export.Format {
	case "homekit":
		exporters = append(exporters, export.NewHomeKitExporter(cfg.Export.Path))
	default:
		exporters = append(exporters, export.NewCSVExporter(cfg.Export.Path))
	}

	var influx *export.InfluxDBExporter
	if cfg.InfluxDB.Enabled {
		var err error
		influx, err = export.NewInfluxDBExporter(
			cfg.InfluxDB.URL,
			cfg.InfluxDB.Token,
			cfg.InfluxDB.Organization,
			cfg.InfluxDB.Bucket,
		)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize InfluxDB: %w", err)
		}
		exporters = append(exporters, influx)
	}

	return exporters, influx, nil
}

// newMetricsServer builds the localhost HTTP server exposing Prometheus
// metrics and rate-limited health endpoints. The readiness handler resolves
// the bridge client per request so it follows config reloads.
func newMetricsServer(port string, current func() *bridge.Client) *http.Server {
	healthLimiter := rate.NewLimiter(10, 20)
	readyLimiter := rate.NewLimiter(10, 20)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", rateLimitMiddleware(healthLimiter, healthCheckHandler))
	mux.HandleFunc("/ready", rateLimitMiddleware(readyLimiter, func(w http.ResponseWriter, r *http.Request) {
		readinessCheckHandler(w, r, current)
	}))

	return &http.Server{
		Addr:    "localhost:" + port,
		Handler: mux,
	}
}

// rateLimitMiddleware wraps an HTTP handler with rate limiting
func rateLimitMiddleware(limiter *rate.Limiter, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			logger.Warn().
				Str("path", r.URL.Path).
				Str("remote_addr", r.RemoteAddr).
				Msg("Rate limit exceeded for health endpoint")
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}

// healthCheckHandler handles health check requests
func healthCheckHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, writeErr := w.Write([]byte("OK")); writeErr != nil {
		logger.Error().Err(writeErr).Msg("Failed to write health check response")
	}
}

// readinessCheckHandler reports whether the bridge answers a server listing
func readinessCheckHandler(w http.ResponseWriter, _ *http.Request, current func() *bridge.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), readinessCheckTimeout)
	defer cancel()

	if _, err := current().ListServers(ctx); err != nil {
		logger.Warn().Err(err).Msg("Readiness check failed: bridge unreachable")
		w.WriteHeader(http.StatusServiceUnavailable)
		if _, writeErr := w.Write([]byte("NOT READY: bridge unreachable")); writeErr != nil {
			logger.Error().Err(writeErr).Msg("Failed to write readiness check response")
		}
		return
	}

	w.WriteHeader(http.StatusOK)
	if _, writeErr := w.Write([]byte("READY")); writeErr != nil {
		logger.Error().Err(writeErr).Msg("Failed to write readiness check response")
	}
}

// performHealthCheck checks bridge reachability and returns an exit code
func performHealthCheck(cfg *config.Config) int {
	if err := resolveBridgeURL(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		return 1
	}

	client := bridge.NewClient(cfg.Bridge.URL, cfg.Bridge.CommandTimeout.Std(), cfg.Bridge.SendInterval.Std())

	ctx, cancel := context.WithTimeout(context.Background(), healthCheckTimeout)
	defer cancel()

	servers, err := client.ListServers(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: bridge is unreachable: %v\n", err)
		return 1
	}

	fmt.Printf("Health check passed: bridge at %s reports %d server(s)\n", cfg.Bridge.URL, len(servers))
	return 0
}

// performConfigValidation validates the configuration file and returns exit code
func performConfigValidation(configPath string) int {
	logger.Initialize("info")
	logger.Info().Str("path", configPath).Msg("Validating configuration file")

	if err := config.ValidateWithSchema(configPath); err != nil {
		logger.Error().Err(err).Msg("Configuration schema validation failed")
		fmt.Fprintf(os.Stderr, "\n❌ Configuration validation FAILED\n")
		return 1
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error().Err(err).Msg("Configuration validation failed")
		fmt.Fprintf(os.Stderr, "\n❌ Configuration validation FAILED\n")
		fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
		return 1
	}

	fmt.Println("\n✅ Configuration validation PASSED")
	fmt.Println("\nConfiguration summary:")
	fmt.Printf("  Bridge URL: %s\n", cfg.Bridge.URL)
	fmt.Printf("  Server Index: %d\n", cfg.Bridge.ServerIndex)
	fmt.Printf("  Settle Delay: %s\n", cfg.Bridge.SettleDelay.Std())
	fmt.Printf("  Command Timeout: %s\n", cfg.Bridge.CommandTimeout.Std())
	fmt.Printf("  Strategy: %s\n", cfg.Enumeration.Strategy)
	fmt.Printf("  Export Format: %s\n", cfg.Export.Format)
	fmt.Printf("  Export Path: %s\n", cfg.Export.Path)
	fmt.Printf("  Watch Interval: %s\n", cfg.Watch.Interval.Std())
	fmt.Printf("  Log Level: %s\n", cfg.Logging.Level)

	if cfg.InfluxDB.Enabled {
		fmt.Println("  InfluxDB Sink: Enabled")
		fmt.Printf("  InfluxDB URL: %s\n", cfg.InfluxDB.URL)
		fmt.Printf("  InfluxDB Bucket: %s\n", cfg.InfluxDB.Bucket)
	} else {
		fmt.Println("  InfluxDB Sink: Disabled")
	}
	if cfg.Discovery.Enabled {
		fmt.Printf("  Discovery: Enabled (%s)\n", cfg.Discovery.ServiceType)
	} else {
		fmt.Println("  Discovery: Disabled")
	}

	fmt.Println("\nAll validation checks passed. Configuration is ready for use.")
	return 0
}
