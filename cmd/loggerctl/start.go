package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	_ "rvdas.dev/logger/plugins/all"

	"rvdas.dev/logger/internal/cds"
	"rvdas.dev/logger/internal/config"
	logwriter "rvdas.dev/logger/internal/log"
	"rvdas.dev/logger/internal/manager"
	"rvdas.dev/logger/internal/metrics"
	"rvdas.dev/logger/internal/status"
	"rvdas.dev/logger/internal/store"
)

// buildLogHandler turns DaemonConfig.Log into a slog.Handler: JSON or
// text per cfg.Format, writing to stderr plus a rotating file when
// cfg.File is set (internal/log.WriterFor).
func buildLogHandler(dc *config.DaemonConfig) slog.Handler {
	level := slog.LevelInfo
	cfg := config.LogConfig{Format: "text"}
	if dc != nil {
		cfg = dc.Log
		if lvl, err := parseSlogLevel(dc.Log.Level); err == nil {
			level = lvl
		}
	}
	w := logwriter.WriterFor(cfg)
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

var daemonConfigPath string

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the logger manager daemon in the foreground",
	Long: `Start the logger manager: load a cruise definition, reconcile its
active mode against running per-logger pipelines, and serve the command
socket other loggerctl invocations talk to.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runManager(cmd)
	},
}

// applyDaemonConfig loads ambient settings from --daemon_config (node
// identity, control socket, logging, CDS listen addresses, store backend)
// and fills in any start flag the user left at its cobra default, layering
// file-based ambient config under explicit flags. Flags the user actually
// passed on the command line always win.
func applyDaemonConfig(cmd *cobra.Command) (*config.DaemonConfig, error) {
	if daemonConfigPath == "" {
		return nil, nil
	}
	dc, err := config.LoadDaemonConfig(daemonConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load daemon config %q: %w", daemonConfigPath, err)
	}
	if !cmd.Flags().Changed("database") && dc.Store.Backend != "" {
		databaseBackend = dc.Store.Backend
	}
	if !cmd.Flags().Changed("data_server_websocket") && dc.CDS.WebsocketAddr != "" {
		dataServerWS = dc.CDS.WebsocketAddr
	}
	if !cmd.Flags().Changed("start_data_server") {
		startDataServer = dc.CDS.Enabled
	}
	if !cmd.Flags().Changed("socket") && dc.Control.Socket != "" {
		commandSocket = dc.Control.Socket
	}
	return dc, nil
}

func runManager(cmd *cobra.Command) error {
	dc, err := applyDaemonConfig(cmd)
	if err != nil {
		return err
	}

	slog.SetDefault(slog.New(buildLogHandler(dc)))

	backingStore, err := openStore(databaseBackend)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	var sharedCache *cds.Cache
	var publisher manager.StatusPublisher
	if startDataServer {
		back := 3600
		if dc != nil && dc.CDS.BackSeconds > 0 {
			back = dc.CDS.BackSeconds
		}
		sharedCache = cds.NewCache(float64(back), 1)
		publisher = status.NewPublisher(sharedCache)
	}

	if !strings.Contains(stderrFilePattern, "{logger}") {
		return fmt.Errorf("stderr_file_pattern must contain {logger}")
	}

	exePath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve own executable path: %w", err)
	}
	loggerBinary := filepath.Join(filepath.Dir(exePath), "logger")

	factory := manager.NewChildProcessHandleFactory(loggerBinary, publisher)

	defaults := manager.ReconcileDefaults{}
	if dc != nil {
		defaults.TickInterval = time.Duration(dc.Reconcile.IntervalMS) * time.Millisecond
	}
	m := manager.New(defaults, backingStore, publisher, factory)

	if configPath != "" {
		if err := m.LoadConfiguration(configPath); err != nil {
			return fmt.Errorf("load configuration %q: %w", configPath, err)
		}
	}
	if initialMode != "" {
		if err := m.SetActiveMode(initialMode); err != nil {
			return fmt.Errorf("set initial mode %q: %w", initialMode, err)
		}
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := m.Start(ctx); err != nil {
		return fmt.Errorf("start manager: %w", err)
	}

	cmdServer := manager.NewCommandServer(commandSocket, m)
	if err := cmdServer.Start(); err != nil {
		return fmt.Errorf("start command socket: %w", err)
	}
	defer cmdServer.Stop()

	var dataServer *cds.Server
	if startDataServer {
		dataServer = cds.NewServer(dataServerWS, "/ws", sharedCache)
		if err := dataServer.Start(ctx); err != nil {
			return fmt.Errorf("start data server: %w", err)
		}
		defer dataServer.Stop(context.Background())
	}

	if dc != nil && dc.Metrics.Enabled {
		metricsServer := metrics.NewServer(dc.Metrics.Listen, dc.Metrics.Path)
		if err := metricsServer.Start(ctx); err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
		defer metricsServer.Stop(context.Background())
	}

	slog.Info("loggerctl started", "socket", commandSocket, "config", configPath)

	go watchReload(ctx, m)

	<-ctx.Done()
	slog.Info("loggerctl shutting down")
	m.Stop()
	return nil
}

// watchReload re-loads the active configuration on SIGHUP, following
// the teacher's daemon.go signal-loop convention. runManager's
// signal.NotifyContext covers only SIGINT and SIGTERM, so SIGHUP arrives
// on this dedicated channel without cancelling ctx.
func watchReload(ctx context.Context, m *manager.Manager) {
	sigHup := make(chan os.Signal, 1)
	signal.Notify(sigHup, syscall.SIGHUP)
	defer signal.Stop(sigHup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-sigHup:
			if err := m.ReloadConfiguration(); err != nil {
				slog.Error("reload failed", "error", err)
			} else {
				slog.Info("configuration reloaded")
			}
		}
	}
}

func parseSlogLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	err := lvl.UnmarshalText([]byte(s))
	return lvl, err
}

func openStore(backend string) (store.Store, error) {
	switch backend {
	case "", "memory":
		return store.NewNoopStore(), nil
	case "sqlite":
		return store.NewSQLiteStore(snapshotPath("loggerctl.db"))
	case "django":
		// django is an external ORM-backed service out of scope here; the
		// file-backed store stands in for it (see DESIGN.md).
		return store.NewFileStore(snapshotPath("loggerctl.json"))
	default:
		return nil, fmt.Errorf("unknown database backend %q", backend)
	}
}

func snapshotPath(name string) string {
	dir := os.Getenv("LOGGERCTL_STATE_DIR")
	if dir == "" {
		dir = "/var/lib/loggerctl"
	}
	return filepath.Join(dir, name)
}
