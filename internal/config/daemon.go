// Package config handles the two configuration mechanisms this daemon
// uses: ambient daemon configuration (this file, viper-based, flat
// key/value) and cruise/logger definitions (cruise.go/expand.go/load.go, a
// loader that decodes yaml.v3 into a generic map and applies variable and
// template expansion that viper's flat model cannot express).
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// DaemonConfig is the top-level ambient configuration, loaded from the
// `logger:` root key in YAML with env override via a LOGGER_ prefix,
// covering the ambient concerns this domain actually has: node identity,
// control socket, logging, metrics, persistence and the Cached Data
// Server's listen addresses.
type DaemonConfig struct {
	Node       NodeConfig       `mapstructure:"node"`
	Control    ControlConfig    `mapstructure:"control"`
	Log        LogConfig        `mapstructure:"log"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	DataDir    string           `mapstructure:"data_dir"`
	Store      StoreConfig      `mapstructure:"store"`
	CDS        CDSConfig        `mapstructure:"cds"`
	Reconcile  ReconcileConfig  `mapstructure:"reconcile"`
}

// NodeConfig identifies this daemon instance.
type NodeConfig struct {
	Hostname string            `mapstructure:"hostname"` // empty = os.Hostname()
	Tags     map[string]string `mapstructure:"tags"`
}

// ControlConfig configures the JSON-RPC-over-UDS command surface (spec §6).
type ControlConfig struct {
	Socket  string `mapstructure:"socket"`
	PIDFile string `mapstructure:"pid_file"`
}

// LogConfig configures structured logging, grounded on the teacher's
// log/* package (slog.SetDefault + lumberjack rotation) and its secondary
// logrus CLI-facing output.
type LogConfig struct {
	Level    string         `mapstructure:"level"`  // debug / info / warn / error
	Format   string         `mapstructure:"format"` // json / text
	File     string         `mapstructure:"file"`   // empty = stderr only
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig configures lumberjack.v2 log rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	MaxBackups int  `mapstructure:"max_backups"`
	Compress   bool `mapstructure:"compress"`
}

// MetricsConfig configures the Prometheus /metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// StoreConfig selects and configures the logger store backend (spec §6
// `--database {memory|sqlite|django}`).
type StoreConfig struct {
	Backend string `mapstructure:"backend"` // memory | sqlite | django
	Path    string `mapstructure:"path"`    // not read by loggerctl start, which keeps its store file under $LOGGERCTL_STATE_DIR (default /var/lib/loggerctl)
}

// CDSConfig configures the Cached Data Server (spec §4.6/§6).
type CDSConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	WebsocketAddr string `mapstructure:"websocket_addr"`
	UDPAddr      string `mapstructure:"udp_addr"`
	BackSeconds  int    `mapstructure:"back_seconds"`
	BackRecords  int    `mapstructure:"back_records"`
}

// ReconcileConfig tunes the Logger Manager's reconciliation loop (spec §4.4).
type ReconcileConfig struct {
	IntervalMS int `mapstructure:"interval_ms"` // default 1000 (1Hz)
}

type daemonConfigRoot struct {
	Logger DaemonConfig `mapstructure:"logger"`
}

// LoadDaemonConfig loads ambient configuration from path, applying defaults
// and LOGGER_-prefixed environment variable overrides, exactly the
// defaults-then-env-then-unmarshal sequence of internal/config/config.go's
// Load.
func LoadDaemonConfig(path string) (*DaemonConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDaemonDefaults(v)

	var root daemonConfigRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	cfg := root.Logger

	if err := cfg.applyDefaultsAndValidate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

func setDaemonDefaults(v *viper.Viper) {
	v.SetDefault("logger.control.socket", "/var/run/rvdas-logger.sock")
	v.SetDefault("logger.control.pid_file", "/var/run/rvdas-logger.pid")

	v.SetDefault("logger.log.level", "info")
	v.SetDefault("logger.log.format", "json")
	v.SetDefault("logger.log.rotation.max_size_mb", 100)
	v.SetDefault("logger.log.rotation.max_age_days", 30)
	v.SetDefault("logger.log.rotation.max_backups", 5)
	v.SetDefault("logger.log.rotation.compress", true)

	v.SetDefault("logger.metrics.enabled", true)
	v.SetDefault("logger.metrics.listen", ":9091")
	v.SetDefault("logger.metrics.path", "/metrics")

	v.SetDefault("logger.data_dir", "/var/lib/rvdas-logger")
	v.SetDefault("logger.store.backend", "memory")
	v.SetDefault("logger.store.path", "/var/lib/rvdas-logger/store.json")

	v.SetDefault("logger.cds.enabled", true)
	v.SetDefault("logger.cds.websocket_addr", ":8766")
	v.SetDefault("logger.cds.udp_addr", ":8767")
	v.SetDefault("logger.cds.back_seconds", 3600)
	v.SetDefault("logger.cds.back_records", 0)

	v.SetDefault("logger.reconcile.interval_ms", 1000)
}

func (c *DaemonConfig) applyDefaultsAndValidate() error {
	switch c.Store.Backend {
	case "", "memory":
		c.Store.Backend = "memory"
	case "sqlite", "django":
		// django maps to the file-backed store (see DESIGN.md).
	default:
		return fmt.Errorf("store.backend must be memory, sqlite or django, got %q", c.Store.Backend)
	}
	if c.Reconcile.IntervalMS <= 0 {
		c.Reconcile.IntervalMS = 1000
	}
	return nil
}
