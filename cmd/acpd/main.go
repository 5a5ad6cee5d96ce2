// acpd is the reference daemon embedding the acp core: it accepts Unix
// socket connections, frames incoming bytes through acp.Decode against a
// keystore-backed session, serves Prometheus metrics, and integrates with
// systemd readiness/watchdog notifications. None of this is part of the
// acp core itself (SPEC_FULL.md §4.J) -- it exists to demonstrate the
// core wired end-to-end the way an embedder would, mirroring the
// teacher's cmd/gobfd/main.go structure.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/skyward-systems/acp"
	"github.com/skyward-systems/acp/internal/clockutil"
	"github.com/skyward-systems/acp/internal/config"
	daemonpkg "github.com/skyward-systems/acp/internal/daemon"
	"github.com/skyward-systems/acp/internal/keystore"
	acpmetrics "github.com/skyward-systems/acp/internal/metrics"
)

// shutdownTimeout bounds how long the metrics HTTP server gets to drain
// active connections during graceful shutdown.
const shutdownTimeout = 10 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to configuration file (YAML)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("failed to load configuration",
			slog.String("error", err.Error()),
		)
		return 1
	}

	logLevel := new(slog.LevelVar)
	logLevel.Set(config.ParseLogLevel(cfg.Log.Level))
	logger := newLoggerWithLevel(cfg.Log, logLevel)

	logger.Info("acpd starting",
		slog.String("socket_path", cfg.Transport.SocketPath),
		slog.String("metrics_addr", cfg.Metrics.Addr),
	)

	reg := prometheus.NewRegistry()
	collector := acpmetrics.NewCollector(reg)

	ks, err := keystore.LoadFile(cfg.Keystore.Path)
	if err != nil {
		logger.Error("failed to load keystore", slog.String("error", err.Error()))
		return 1
	}

	guarded, err := newDefaultSession(ks, cfg.Session, clockutil.System{})
	if err != nil {
		logger.Error("failed to construct default session", slog.String("error", err.Error()))
		return 1
	}
	defer guarded.Terminate()

	if err := runServers(cfg, guarded, collector, reg, logger, *configPath, logLevel, ks); err != nil {
		logger.Error("acpd exited with error", slog.String("error", err.Error()))
		return 1
	}

	logger.Info("acpd stopped")
	return 0
}

// newDefaultSession constructs the single acp.Session acpd serves all
// accepted connections against, per SPEC_FULL.md §4.I's single
// default_key_id/default_nonce configuration, wrapped for concurrent use.
func newDefaultSession(ks *keystore.MapKeyStore, sc config.SessionConfig, clk acp.Clock) (*daemonpkg.GuardedSession, error) {
	key, err := ks.Get(sc.DefaultKeyID)
	if err != nil {
		return nil, fmt.Errorf("look up default session key %d: %w", sc.DefaultKeyID, err)
	}

	sess, err := acp.NewSession(sc.DefaultKeyID, key[:], sc.DefaultNonce)
	if err != nil {
		return nil, fmt.Errorf("init default session: %w", err)
	}
	sess.CreatedAtMS = clk.NowMS()

	return daemonpkg.NewGuardedSession(sess), nil
}

// runServers sets up and runs the accept loop and metrics HTTP server
// using an errgroup with a signal-aware context for graceful shutdown.
func runServers(
	cfg *config.Config,
	guarded *daemonpkg.GuardedSession,
	collector *acpmetrics.Collector,
	reg *prometheus.Registry,
	logger *slog.Logger,
	configPath string,
	logLevel *slog.LevelVar,
	ks *keystore.MapKeyStore,
) error {
	if err := os.Remove(cfg.Transport.SocketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale socket %s: %w", cfg.Transport.SocketPath, err)
	}

	ln, err := net.Listen("unix", cfg.Transport.SocketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Transport.SocketPath, err)
	}
	defer ln.Close()

	metricsSrv := newMetricsServer(cfg.Metrics, reg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return acceptLoop(gCtx, ln, guarded, collector, logger)
	})

	g.Go(func() error {
		logger.Info("metrics server listening",
			slog.String("addr", cfg.Metrics.Addr),
			slog.String("path", cfg.Metrics.Path),
		)
		return listenAndServeHTTP(gCtx, metricsSrv, cfg.Metrics.Addr)
	})

	g.Go(func() error {
		return runWatchdog(gCtx, logger)
	})

	sigHUP := make(chan os.Signal, 1)
	signal.Notify(sigHUP, syscall.SIGHUP)
	g.Go(func() error {
		defer signal.Stop(sigHUP)
		handleSIGHUP(gCtx, sigHUP, configPath, logLevel, ks, logger)
		return nil
	})

	notifyReady(logger)

	g.Go(func() error {
		<-gCtx.Done()
		return gracefulShutdown(gCtx, logger, metricsSrv)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run servers: %w", err)
	}
	return nil
}

// acceptLoop accepts connections on ln and serves each on its own
// goroutine until ctx is cancelled.
func acceptLoop(ctx context.Context, ln net.Listener, guarded *daemonpkg.GuardedSession, collector *acpmetrics.Collector, logger *slog.Logger) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		go func() {
			defer conn.Close()
			handler := daemonpkg.NewConnHandler(guarded, collector, logger)
			if err := handler.Serve(ctx, conn); err != nil && ctx.Err() == nil {
				logger.Warn("connection serve error", slog.String("error", err.Error()))
			}
		}()
	}
}

// -------------------------------------------------------------------------
// Systemd Integration -- sd_notify + watchdog
// -------------------------------------------------------------------------

func notifyReady(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		logger.Warn("failed to notify systemd readiness", slog.String("error", err.Error()))
		return
	}
	if sent {
		logger.Info("notified systemd: READY")
	}
}

func notifyStopping(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyStopping)
	if err != nil {
		logger.Warn("failed to notify systemd stopping", slog.String("error", err.Error()))
		return
	}
	if sent {
		logger.Info("notified systemd: STOPPING")
	}
}

// runWatchdog sends periodic watchdog keepalives to systemd at half the
// configured watchdog interval. If watchdog is not configured the
// goroutine exits immediately.
func runWatchdog(ctx context.Context, logger *slog.Logger) error {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		logger.Warn("failed to check systemd watchdog", slog.String("error", err.Error()))
		return nil
	}
	if interval == 0 {
		logger.Debug("systemd watchdog not configured, skipping keepalive")
		return nil
	}

	tickInterval := interval / 2
	logger.Info("systemd watchdog enabled",
		slog.Duration("watchdog_sec", interval),
		slog.Duration("keepalive_interval", tickInterval),
	)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, wdErr := daemon.SdNotify(false, daemon.SdNotifyWatchdog); wdErr != nil {
				logger.Warn("failed to send watchdog keepalive", slog.String("error", wdErr.Error()))
			}
		}
	}
}

// -------------------------------------------------------------------------
// SIGHUP Reload -- log level + keystore
// -------------------------------------------------------------------------

func handleSIGHUP(ctx context.Context, sigHUP <-chan os.Signal, configPath string, logLevel *slog.LevelVar, ks *keystore.MapKeyStore, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sigHUP:
			logger.Info("received SIGHUP, reloading configuration")
			reloadConfig(configPath, logLevel, ks, logger)
		}
	}
}

// reloadConfig loads a fresh configuration, updates the dynamic log
// level, and reloads the keystore file in place. Errors are logged but
// never stop the daemon; the previous configuration and keys remain in
// effect.
func reloadConfig(configPath string, logLevel *slog.LevelVar, ks *keystore.MapKeyStore, logger *slog.Logger) {
	newCfg, err := loadConfig(configPath)
	if err != nil {
		logger.Error("failed to reload configuration, keeping current settings", slog.String("error", err.Error()))
		return
	}

	oldLevel := logLevel.Level()
	newLevel := config.ParseLogLevel(newCfg.Log.Level)
	logLevel.Set(newLevel)

	if err := ks.Reload(newCfg.Keystore.Path); err != nil {
		logger.Error("failed to reload keystore, keeping previous keys", slog.String("error", err.Error()))
	}

	logger.Info("configuration reloaded",
		slog.String("old_log_level", oldLevel.String()),
		slog.String("new_log_level", newLevel.String()),
		slog.Int("keys_loaded", ks.Len()),
	)
}

// -------------------------------------------------------------------------
// Graceful Shutdown
// -------------------------------------------------------------------------

func gracefulShutdown(ctx context.Context, logger *slog.Logger, metricsSrv *http.Server) error {
	logger.Info("initiating graceful shutdown")
	notifyStopping(logger)

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown metrics server: %w", err)
	}
	return nil
}

// -------------------------------------------------------------------------
// Server Setup
// -------------------------------------------------------------------------

func listenAndServeHTTP(ctx context.Context, srv *http.Server, addr string) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve on %s: %w", addr, err)
	}
	return nil
}

func newMetricsServer(cfg config.MetricsConfig, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
		return cfg, nil
	}
	return config.DefaultConfig(), nil
}

func newLoggerWithLevel(cfg config.LogConfig, level *slog.LevelVar) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
