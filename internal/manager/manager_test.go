package manager

import (
	"context"
	"sync"
	"testing"
	"time"

	"rvdas.dev/logger/internal/config"
	"rvdas.dev/logger/internal/store"
)

// fakeHandle is a ListenerHandle whose Start/Exited behavior a test
// controls directly, standing in for a real child process or in-process
// Listener so reconcile.go's logic can be exercised without any I/O. A
// handle configured to crash immediately reports Exited() true as soon as
// it starts, modeling a reader whose config is broken from the first byte.
type fakeHandle struct {
	cfg              config.LoggerConfig
	crashImmediately bool

	mu      sync.Mutex
	started bool
	exited  bool
	exitErr error
	stopped bool
}

func (h *fakeHandle) Config() config.LoggerConfig { return h.cfg }

func (h *fakeHandle) Start() error {
	h.mu.Lock()
	h.started = true
	if h.crashImmediately {
		h.exited = true
		h.exitErr = errCrashed
	}
	h.mu.Unlock()
	return nil
}

func (h *fakeHandle) Stop(grace time.Duration) error {
	h.mu.Lock()
	h.stopped = true
	h.mu.Unlock()
	return nil
}

func (h *fakeHandle) PID() int { return 1234 }

func (h *fakeHandle) Exited() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exited
}

func (h *fakeHandle) ExitError() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitErr
}

var errCrashed = &fakeCrashError{}

type fakeCrashError struct{}

func (*fakeCrashError) Error() string { return "injected crash" }

// fakeFactory hands out a fakeHandle per logger name, crashing immediately
// for every name in crashing, and remembers every handle it created.
type fakeFactory struct {
	mu       sync.Mutex
	crashing map[string]bool
	handles  []*fakeHandle
}

func newFakeFactory(crashing map[string]bool) *fakeFactory {
	return &fakeFactory{crashing: crashing}
}

func (f *fakeFactory) factory(name string, cfg config.LoggerConfig) ListenerHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	h := &fakeHandle{cfg: cfg, crashImmediately: f.crashing[name]}
	f.handles = append(f.handles, h)
	return h
}

func onePipeLogger(name string) config.LoggerConfig {
	return config.LoggerConfig{
		Name:    name,
		Readers: []config.StageSpec{{Class: "text_file"}},
		Writers: []config.StageSpec{{Class: "text_file"}},
	}
}

func offLogger(name string) config.LoggerConfig {
	return config.LoggerConfig{Name: name}
}

func twoModeDefinition() *config.CruiseDefinition {
	return &config.CruiseDefinition{
		Cruise:  config.CruiseInfo{ID: "test-cruise"},
		Loggers: map[string]config.LoggerEntry{"gyro": {Configs: []string{"gyro->net", "gyro->off"}}},
		Configs: map[string]config.LoggerConfig{
			"gyro->net": onePipeLogger("gyro->net"),
			"gyro->off": offLogger("gyro->off"),
		},
		Modes: map[string]map[string]string{
			"under_way": {"gyro": "gyro->net"},
			"no_write":  {"gyro": "gyro->off"},
		},
		DefaultMode: "under_way",
	}
}

func waitForStatus(t *testing.T, m *Manager, logger string, want LoggerStatusKind, timeout time.Duration) LoggerState {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if s, ok := m.GetStatus()[logger]; ok && s.Status == want {
			return s
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("logger %q did not reach status %s within %s (last: %+v)", logger, want, timeout, m.GetStatus()[logger])
	return LoggerState{}
}

// scenario 3: after SetActiveMode, the logger converges to its new mode's
// config within tick_interval + a couple of ticks; no_write assigns gyro an
// off config, so it converges to STOPPED.
func TestManagerConvergesOnModeChange(t *testing.T) {
	factory := newFakeFactory(nil)
	m := New(ReconcileDefaults{TickInterval: 20 * time.Millisecond}, store.NewNoopStore(), nil, factory.factory)

	def := twoModeDefinition()
	m.mu.Lock()
	m.definition = def
	m.activeMode = def.DefaultMode
	m.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := m.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer m.Stop()

	waitForStatus(t, m, "gyro", StatusRunning, time.Second)
	if got := m.GetStatus()["gyro"].ActiveConfig; got != "gyro->net" {
		t.Fatalf("active config = %q, want gyro->net", got)
	}

	if err := m.SetActiveMode("no_write"); err != nil {
		t.Fatalf("set active mode: %v", err)
	}

	waitForStatus(t, m, "gyro", StatusStopped, time.Second)
}

// scenario 4: a logger whose reader always fails immediately escalates to
// FATAL after FailureLimit restart attempts within FailureWindow, and
// reconciliation stops retrying it once FATAL.
func TestManagerEscalatesFailingLoggerToFatal(t *testing.T) {
	factory := newFakeFactory(map[string]bool{"broken": true})
	m := New(ReconcileDefaults{
		TickInterval:  10 * time.Millisecond,
		FailureLimit:  3,
		FailureWindow: time.Minute,
		BackoffMax:    time.Second,
	}, store.NewNoopStore(), nil, factory.factory)

	def := &config.CruiseDefinition{
		Cruise:      config.CruiseInfo{ID: "broken-cruise"},
		Loggers:     map[string]config.LoggerEntry{"broken": {Configs: []string{"broken->net"}}},
		Configs:     map[string]config.LoggerConfig{"broken->net": onePipeLogger("broken->net")},
		Modes:       map[string]map[string]string{"under_way": {"broken": "broken->net"}},
		DefaultMode: "under_way",
	}
	m.mu.Lock()
	m.definition = def
	m.activeMode = def.DefaultMode
	m.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := m.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer m.Stop()

	// Each tick starts the handle, observes it already exited (before
	// MinUptime), and backs off; after FailureLimit such cycles the
	// logger escalates to FATAL and reconcileOnce stops retrying it.
	waitForStatus(t, m, "broken", StatusFatal, 5*time.Second)

	state := m.GetStatus()["broken"]
	if state.Status != StatusFatal {
		t.Fatalf("expected FATAL, got %+v", state)
	}
	if state.Failures < 3 {
		t.Fatalf("expected at least 3 recorded failures, got %d", state.Failures)
	}

	time.Sleep(100 * time.Millisecond)
	settled := m.GetStatus()["broken"]
	if settled.Status != StatusFatal {
		t.Fatalf("expected FATAL status to persist once reached, got %+v", settled)
	}
}
