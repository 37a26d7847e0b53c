// Package manager implements the Logger Manager of spec §4.4: it holds
// the current cruise definition and desired mode/overrides, reconciles
// them against the set of running Listener processes on a 1Hz tick, and
// exposes a non-blocking command surface. Grounded directly on
// internal/daemon/daemon.go (process lifecycle, signal handling, SIGHUP
// reload) and internal/task/manager.go (CRUD + resolve-then-construct
// staging), generalized from "at most one task" to "N named loggers, each
// switching among named configs as the active mode changes."
package manager

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"rvdas.dev/logger/internal/config"
	"rvdas.dev/logger/internal/store"
)

// LoggerStatusKind mirrors spec §3's LoggerState.status enum.
type LoggerStatusKind string

const (
	StatusStopped  LoggerStatusKind = "STOPPED"
	StatusStarting LoggerStatusKind = "STARTING"
	StatusRunning  LoggerStatusKind = "RUNNING"
	StatusBackoff  LoggerStatusKind = "BACKOFF"
	StatusExited   LoggerStatusKind = "EXITED"
	StatusFatal    LoggerStatusKind = "FATAL"
)

// LoggerState is the observed state of one logger (spec §3).
type LoggerState struct {
	ActiveConfig string           `json:"active_config"`
	Status       LoggerStatusKind `json:"status"`
	PID          int              `json:"pid,omitempty"`
	LastStart    time.Time        `json:"last_start,omitempty"`
	Failures     int              `json:"failures"`
	LastError    string           `json:"last_error,omitempty"`
}

// StatusPublisher receives manager/listener state changes for republishing
// through the Cached Data Server (spec §4.4's "status publication"). The
// manager depends only on this interface, not on package internal/status,
// so internal/status can depend on manager's exported types without an
// import cycle.
type StatusPublisher interface {
	PublishCruiseDefinition(def *config.CruiseDefinition, activeMode string, loadedAt time.Time)
	PublishCruiseMode(mode string)
	PublishLoggerStatus(states map[string]LoggerState)
	PublishFileUpdate(modTime time.Time)
	PublishStderrLine(loggerName, line string)
}

type noopPublisher struct{}

func (noopPublisher) PublishCruiseDefinition(*config.CruiseDefinition, string, time.Time) {}
func (noopPublisher) PublishCruiseMode(string)                                           {}
func (noopPublisher) PublishLoggerStatus(map[string]LoggerState)                         {}
func (noopPublisher) PublishFileUpdate(time.Time)                                        {}
func (noopPublisher) PublishStderrLine(string, string)                                   {}

// ReconcileDefaults holds the spec §4.4 tunables.
type ReconcileDefaults struct {
	TickInterval    time.Duration // default 1s
	StopGrace       time.Duration // default 5s
	MinUptime       time.Duration // default 2s
	FailureLimit    int           // default 3
	FailureWindow   time.Duration // default 60s
	BackoffMax      time.Duration // default 30s
}

func (d *ReconcileDefaults) setDefaults() {
	if d.TickInterval <= 0 {
		d.TickInterval = time.Second
	}
	if d.StopGrace <= 0 {
		d.StopGrace = 5 * time.Second
	}
	if d.MinUptime <= 0 {
		d.MinUptime = 2 * time.Second
	}
	if d.FailureLimit <= 0 {
		d.FailureLimit = 3
	}
	if d.FailureWindow <= 0 {
		d.FailureWindow = 60 * time.Second
	}
	if d.BackoffMax <= 0 {
		d.BackoffMax = 30 * time.Second
	}
}

// loggerRuntime is the manager's bookkeeping for one logger: its observed
// state plus the handle to the running process (if any) and backoff
// tracking, analogous to internal/task/task.go's per-Task state fields
// generalized to per-logger.
type loggerRuntime struct {
	state       LoggerState
	handle      ListenerHandle
	startedAt   time.Time
	failureLog  []time.Time
	nextRetryAt time.Time
	backoff     time.Duration
}

// Manager is the Logger Manager of spec §4.4.
type Manager struct {
	defaults  ReconcileDefaults
	store     store.Store
	publisher StatusPublisher
	factory   HandleFactory

	mu             sync.Mutex
	definition     *config.CruiseDefinition
	definitionPath string
	loadedAt       time.Time
	activeMode     string
	overrides      map[string]string // logger name -> config name override
	runtimes       map[string]*loggerRuntime

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// HandleFactory constructs a ListenerHandle for a resolved LoggerConfig;
// childproc.go's NewChildProcessHandleFactory and handle.go's
// NewInProcessHandleFactory build the two implementations.
type HandleFactory func(loggerName string, cfg config.LoggerConfig) ListenerHandle

// New creates a Manager. publisher and backingStore may be nil (a
// noopPublisher / store.NewNoopStore() is substituted).
func New(defaults ReconcileDefaults, backingStore store.Store, publisher StatusPublisher, factory HandleFactory) *Manager {
	defaults.setDefaults()
	if backingStore == nil {
		backingStore = store.NewNoopStore()
	}
	if publisher == nil {
		publisher = noopPublisher{}
	}
	return &Manager{
		defaults:  defaults,
		store:     backingStore,
		publisher: publisher,
		factory:   factory,
		overrides: make(map[string]string),
		runtimes:  make(map[string]*loggerRuntime),
	}
}

// Start begins the reconciliation loop. Restores a persisted snapshot
// first, if one exists.
func (m *Manager) Start(ctx context.Context) error {
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})

	if snap, err := m.store.Load(); err == nil {
		m.mu.Lock()
		m.definition = snap.Definition
		m.loadedAt = snap.DefinitionLoadedAt
		m.activeMode = snap.DesiredMode
		if snap.PerLoggerOverrides != nil {
			m.overrides = snap.PerLoggerOverrides
		}
		m.mu.Unlock()
		slog.Info("manager: restored snapshot", "mode", snap.DesiredMode)
	}

	go m.reconcileLoop()
	return nil
}

// Stop halts reconciliation and stops every running logger.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	if m.done != nil {
		<-m.done
	}

	m.mu.Lock()
	runtimes := make([]*loggerRuntime, 0, len(m.runtimes))
	for _, rt := range m.runtimes {
		runtimes = append(runtimes, rt)
	}
	m.mu.Unlock()

	for _, rt := range runtimes {
		if rt.handle != nil {
			_ = rt.handle.Stop(m.defaults.StopGrace)
		}
	}
}

// LoadConfiguration loads a cruise definition from source and makes it
// the manager's active definition (spec §4.4 LoadConfiguration).
func (m *Manager) LoadConfiguration(source string) error {
	def, err := config.LoadCruiseDefinition(source)
	if err != nil {
		return fmt.Errorf("manager: load configuration: %w", err)
	}

	m.mu.Lock()
	m.definition = def
	m.definitionPath = source
	m.loadedAt = time.Now()
	m.activeMode = def.DefaultMode
	m.overrides = make(map[string]string)
	m.mu.Unlock()

	m.persist()
	m.publishDefinition()
	return nil
}

// ReloadConfiguration re-reads the definition from its last-loaded source.
func (m *Manager) ReloadConfiguration() error {
	m.mu.Lock()
	path := m.definitionPath
	m.mu.Unlock()
	if path == "" {
		return fmt.Errorf("manager: no configuration loaded yet")
	}
	return m.LoadConfiguration(path)
}

// DeleteConfiguration clears the active definition; reconciliation will
// stop every logger.
func (m *Manager) DeleteConfiguration() {
	m.mu.Lock()
	m.definition = nil
	m.definitionPath = ""
	m.overrides = make(map[string]string)
	m.mu.Unlock()
	m.persist()
}

// GetModes returns the mode names of the active definition.
func (m *Manager) GetModes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.definition == nil {
		return nil
	}
	names := make([]string, 0, len(m.definition.Modes))
	for name := range m.definition.Modes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetActiveMode returns the currently active mode name.
func (m *Manager) GetActiveMode() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeMode
}

// SetActiveMode sets the desired mode. Non-blocking: it mutates desired
// state and returns; the reconciliation loop applies the transition
// (spec §4.4 "non-blocking with respect to reconciliation").
func (m *Manager) SetActiveMode(name string) error {
	m.mu.Lock()
	if m.definition == nil {
		m.mu.Unlock()
		return fmt.Errorf("manager: no configuration loaded")
	}
	if _, ok := m.definition.Modes[name]; !ok {
		m.mu.Unlock()
		return fmt.Errorf("manager: unknown mode %q", name)
	}
	m.activeMode = name
	m.overrides = make(map[string]string)
	m.mu.Unlock()

	m.persist()
	m.publisher.PublishCruiseMode(name)
	return nil
}

// GetLoggers returns the logger names in the active definition.
func (m *Manager) GetLoggers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.definition == nil {
		return nil
	}
	names := make([]string, 0, len(m.definition.Loggers))
	for name := range m.definition.Loggers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetLoggerConfigs returns the config names available to logger.
func (m *Manager) GetLoggerConfigs(logger string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.definition == nil {
		return nil, fmt.Errorf("manager: no configuration loaded")
	}
	entry, ok := m.definition.Loggers[logger]
	if !ok {
		return nil, fmt.Errorf("manager: unknown logger %q", logger)
	}
	return entry.Configs, nil
}

// GetActiveLoggerConfig returns the config name currently desired for
// logger (override, else the active mode's assignment).
func (m *Manager) GetActiveLoggerConfig(logger string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.desiredConfigLocked(logger)
}

func (m *Manager) desiredConfigLocked(logger string) (string, error) {
	if m.definition == nil {
		return "", fmt.Errorf("manager: no configuration loaded")
	}
	if cfg, ok := m.overrides[logger]; ok {
		return cfg, nil
	}
	mode, ok := m.definition.Modes[m.activeMode]
	if !ok {
		return "", fmt.Errorf("manager: active mode %q not found", m.activeMode)
	}
	cfg, ok := mode[logger]
	if !ok {
		return "", fmt.Errorf("manager: logger %q has no assignment in mode %q", logger, m.activeMode)
	}
	return cfg, nil
}

// SetActiveLoggerConfig overrides the desired config for one logger,
// independent of the active mode (spec §4.4 SetActiveLoggerConfig).
func (m *Manager) SetActiveLoggerConfig(logger, cfgName string) error {
	m.mu.Lock()
	if m.definition == nil {
		m.mu.Unlock()
		return fmt.Errorf("manager: no configuration loaded")
	}
	if _, ok := m.definition.Configs[cfgName]; !ok {
		m.mu.Unlock()
		return fmt.Errorf("manager: unknown config %q", cfgName)
	}
	m.overrides[logger] = cfgName
	m.mu.Unlock()
	m.persist()
	return nil
}

// GetStatus returns a snapshot of every logger's observed LoggerState
// (spec §4.4 GetStatus).
func (m *Manager) GetStatus() map[string]LoggerState {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]LoggerState, len(m.runtimes))
	for name, rt := range m.runtimes {
		out[name] = rt.state
	}
	return out
}

// Quit triggers manager shutdown (spec §4.4 Quit); equivalent to Stop.
func (m *Manager) Quit() { m.Stop() }

func (m *Manager) persist() {
	m.mu.Lock()
	snap := store.Snapshot{
		Definition:         m.definition,
		DefinitionLoadedAt: m.loadedAt,
		DesiredMode:        m.activeMode,
		PerLoggerOverrides: m.overrides,
	}
	m.mu.Unlock()
	if err := m.store.Save(snap); err != nil {
		slog.Warn("manager: persist snapshot failed", "error", err)
	}
}

func (m *Manager) publishDefinition() {
	m.mu.Lock()
	def, mode, loadedAt := m.definition, m.activeMode, m.loadedAt
	m.mu.Unlock()
	m.publisher.PublishCruiseDefinition(def, mode, loadedAt)
	m.publisher.PublishCruiseMode(mode)
}
