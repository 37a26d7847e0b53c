// Package status implements manager.StatusPublisher, translating Logger
// Manager and Listener state into the `status:*` and `stderr:*` Cached
// Data Server fields spec §4.4 and §7 describe ("user-visible failures
// appear in stderr:* fields and in the status dashboard"). Grounded on
// internal/command/handler.go's response-shaping conventions (flat
// JSON-friendly maps keyed by a fixed vocabulary of field names), since
// the teacher has no direct analogue of a telemetry republisher.
package status

import (
	"time"

	"rvdas.dev/logger/internal/cds"
	"rvdas.dev/logger/internal/config"
	"rvdas.dev/logger/internal/manager"
)

// Publisher implements manager.StatusPublisher by writing into a cds.Cache.
type Publisher struct {
	cache *cds.Cache
}

// NewPublisher builds a Publisher writing into cache.
func NewPublisher(cache *cds.Cache) *Publisher {
	return &Publisher{cache: cache}
}

var _ manager.StatusPublisher = (*Publisher)(nil)

// PublishCruiseDefinition writes the status:cruise_definition field.
func (p *Publisher) PublishCruiseDefinition(def *config.CruiseDefinition, activeMode string, loadedAt time.Time) {
	id := ""
	if def != nil {
		id = def.Cruise.ID
	}
	p.cache.Publish("status:cruise_definition", cds.Sample{
		Timestamp: nowSeconds(),
		Value: map[string]any{
			"cruise_id":   id,
			"active_mode": activeMode,
			"loaded_at":   loadedAt.UTC().Format(time.RFC3339),
		},
	})
}

// PublishCruiseMode writes the status:cruise_mode field.
func (p *Publisher) PublishCruiseMode(mode string) {
	p.cache.Publish("status:cruise_mode", cds.Sample{Timestamp: nowSeconds(), Value: mode})
}

// PublishLoggerStatus writes one status:<logger> field per logger plus an
// aggregate status:loggers field listing every logger's status kind.
func (p *Publisher) PublishLoggerStatus(states map[string]manager.LoggerState) {
	now := nowSeconds()
	summary := make(map[string]string, len(states))
	for name, st := range states {
		p.cache.Publish("status:"+name, cds.Sample{
			Timestamp: now,
			Value: map[string]any{
				"status":        string(st.Status),
				"active_config": st.ActiveConfig,
				"pid":           st.PID,
				"failures":      st.Failures,
				"last_error":    st.LastError,
			},
		})
		summary[name] = string(st.Status)
	}
	p.cache.Publish("status:loggers", cds.Sample{Timestamp: now, Value: summary})
}

// PublishFileUpdate writes the status:file_update field, the timestamp of
// the most recent cruise definition change.
func (p *Publisher) PublishFileUpdate(modTime time.Time) {
	p.cache.Publish("status:file_update", cds.Sample{
		Timestamp: nowSeconds(),
		Value:     modTime.UTC().Format(time.RFC3339),
	})
}

// PublishStderrLine writes one line of a logger child process's captured
// stderr to its stderr:<logger> field.
func (p *Publisher) PublishStderrLine(loggerName, line string) {
	p.cache.Publish("stderr:"+loggerName, cds.Sample{Timestamp: nowSeconds(), Value: line})
}

func nowSeconds() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}
