package manager

import (
	"log/slog"
	"reflect"
	"time"

	"rvdas.dev/logger/internal/config"
	"rvdas.dev/logger/internal/metrics"
)

// reconcileLoop ticks at m.defaults.TickInterval and runs the spec §4.4
// three-step algorithm: compute desired config per logger, stop/start
// loggers whose observed state doesn't match, then process handles that
// have exited since the last tick. Grounded on internal/daemon/daemon.go's
// Run() select loop, generalized from "wait for a signal or a one-shot
// reload" to "tick forever and diff against desired state" per
// internal/task/manager.go's resolve-before-construct staging.
func (m *Manager) reconcileLoop() {
	defer close(m.done)
	ticker := time.NewTicker(m.defaults.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.reconcileOnce()
		}
	}
}

// desiredLogger is step 1's output: what should be running for one
// logger, or ok=false if nothing should run (definition absent, logger
// off, or config resolution failed).
type desiredLogger struct {
	name   string
	cfg    config.LoggerConfig
	cfgKey string // cfg name, used to detect a config swap under an unchanged logger name
}

func (m *Manager) reconcileOnce() {
	metrics.ReconcileCyclesTotal.Inc()
	desired := m.computeDesired()
	m.applyDesired(desired)
	m.reapExited()
	m.publishStatus()
}

// computeDesired is step 1: resolve every logger's currently-assigned
// config, skipping loggers whose config is "off" (spec §3 IsOff).
func (m *Manager) computeDesired() map[string]desiredLogger {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]desiredLogger)
	if m.definition == nil {
		return out
	}
	for logger := range m.definition.Loggers {
		cfgName, err := m.desiredConfigLocked(logger)
		if err != nil {
			slog.Warn("manager: cannot resolve desired config", "logger", logger, "error", err)
			continue
		}
		cfg, ok := m.definition.Configs[cfgName]
		if !ok {
			slog.Warn("manager: desired config not found", "logger", logger, "config", cfgName)
			continue
		}
		if cfg.IsOff() {
			continue
		}
		out[logger] = desiredLogger{name: logger, cfg: cfg, cfgKey: cfgName}
	}
	return out
}

// applyDesired is step 2: stop loggers whose running config no longer
// matches desired (or that should no longer run at all), then start
// loggers that should run but aren't. A deep-equal diff decides whether
// a config "actually changed" per Open Question decision #2 in the
// ledger, rather than a blanket stop-everything-then-restart.
func (m *Manager) applyDesired(desired map[string]desiredLogger) {
	m.mu.Lock()
	toStop := make([]*loggerRuntime, 0)
	toStopNames := make([]string, 0)
	toStart := make([]desiredLogger, 0)

	for name, rt := range m.runtimes {
		d, want := desired[name]
		if !want {
			toStop = append(toStop, rt)
			toStopNames = append(toStopNames, name)
			continue
		}
		if rt.handle != nil && !reflect.DeepEqual(rt.handle.Config(), d.cfg) {
			toStop = append(toStop, rt)
			toStopNames = append(toStopNames, name)
		}
	}
	for name, d := range desired {
		rt, exists := m.runtimes[name]
		if !exists || rt.handle == nil {
			toStart = append(toStart, d)
			continue
		}
		if !reflect.DeepEqual(rt.handle.Config(), d.cfg) {
			toStart = append(toStart, d)
		}
	}
	m.mu.Unlock()

	for i, rt := range toStop {
		metrics.ReconcileActionsTotal.WithLabelValues(toStopNames[i], "stop").Inc()
		m.stopRuntime(rt)
	}
	for _, d := range toStart {
		metrics.ReconcileActionsTotal.WithLabelValues(d.name, "start").Inc()
		m.startLogger(d)
	}
}

func (m *Manager) stopRuntime(rt *loggerRuntime) {
	if rt.handle == nil {
		return
	}
	if err := rt.handle.Stop(m.defaults.StopGrace); err != nil {
		slog.Warn("manager: stop logger failed", "error", err)
	}
	m.mu.Lock()
	rt.handle = nil
	rt.state.Status = StatusStopped
	rt.state.PID = 0
	m.mu.Unlock()
}

func (m *Manager) startLogger(d desiredLogger) {
	m.mu.Lock()
	rt, ok := m.runtimes[d.name]
	if !ok {
		rt = &loggerRuntime{}
		m.runtimes[d.name] = rt
	}
	// A FATAL logger stays down until its desired config actually changes
	// (spec: "stop auto-restart until desired_config changes or operator
	// clears"); the operator-clear path is SetActiveLoggerConfig, which
	// also changes d.cfgKey.
	if rt.state.Status == StatusFatal && rt.state.ActiveConfig == d.cfgKey {
		m.mu.Unlock()
		return
	}
	now := time.Now()
	if now.Before(rt.nextRetryAt) {
		m.mu.Unlock()
		return
	}
	rt.state.Status = StatusStarting
	rt.state.ActiveConfig = d.cfgKey
	m.mu.Unlock()

	handle := m.factory(d.name, d.cfg)
	if err := handle.Start(); err != nil {
		m.mu.Lock()
		rt.state.Status = StatusBackoff
		rt.state.LastError = err.Error()
		rt.backoff = nextBackoff(rt.backoff, m.defaults.BackoffMax)
		rt.nextRetryAt = now.Add(rt.backoff)
		m.mu.Unlock()
		slog.Warn("manager: start logger failed", "logger", d.name, "error", err)
		return
	}

	m.mu.Lock()
	rt.handle = handle
	rt.startedAt = now
	rt.state.Status = StatusRunning
	rt.state.PID = handle.PID()
	rt.state.LastStart = now
	rt.state.LastError = ""
	rt.backoff = 0
	m.mu.Unlock()
}

func nextBackoff(cur, max time.Duration) time.Duration {
	if cur <= 0 {
		return time.Second
	}
	next := cur * 2
	if next > max {
		return max
	}
	return next
}

// reapExited is step 3: detect handles whose underlying process has
// exited since the last tick, update the failure-window bookkeeping, and
// escalate to FATAL once the failure limit is exceeded within the window
// (spec §4.4, Open Question decision #1: escalation is per-logger, never
// crashes the manager itself).
func (m *Manager) reapExited() {
	m.mu.Lock()
	exited := make([]*loggerRuntime, 0)
	for name, rt := range m.runtimes {
		if rt.handle == nil || rt.state.Status != StatusRunning {
			continue
		}
		if !rt.handle.Exited() {
			continue
		}
		exited = append(exited, rt)
		_ = name
	}
	m.mu.Unlock()

	for _, rt := range exited {
		m.handleExit(rt)
	}
}

func (m *Manager) handleExit(rt *loggerRuntime) {
	err := rt.handle.ExitError()
	ranLongEnough := !rt.startedAt.IsZero() && time.Since(rt.startedAt) >= m.defaults.MinUptime

	m.mu.Lock()
	defer m.mu.Unlock()

	rt.handle = nil
	rt.state.PID = 0
	if err != nil {
		rt.state.LastError = err.Error()
	}

	if ranLongEnough {
		// A logger that ran past MinUptime before exiting resets its
		// failure count; only a crash loop escalates.
		rt.failureLog = nil
		rt.state.Status = StatusExited
		return
	}

	now := time.Now()
	cutoff := now.Add(-m.defaults.FailureWindow)
	kept := rt.failureLog[:0]
	for _, t := range rt.failureLog {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	rt.failureLog = append(kept, now)
	rt.state.Failures = len(rt.failureLog)

	if len(rt.failureLog) >= m.defaults.FailureLimit {
		rt.state.Status = StatusFatal
		slog.Error("manager: logger exceeded failure limit, marking FATAL", "failures", len(rt.failureLog))
		return
	}

	rt.backoff = nextBackoff(rt.backoff, m.defaults.BackoffMax)
	rt.nextRetryAt = now.Add(rt.backoff)
	rt.state.Status = StatusBackoff
}

func (m *Manager) publishStatus() {
	m.publisher.PublishLoggerStatus(m.GetStatus())
}
