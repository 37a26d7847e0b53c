// Package timestamp implements TimestampTransform: prepends the current
// UTC time to a text record, the one Transform the spec allows to read
// the wall clock (stage.Transform's purity contract explicitly carves
// this out: "unless the transform's whole purpose is timestamping").
package timestamp

import (
	"context"
	"time"

	"rvdas.dev/logger/internal/record"
	"rvdas.dev/logger/internal/registry"
	"rvdas.dev/logger/internal/stage"
)

func init() {
	registry.RegisterTransform("timestamp", New)
}

// Transform prepends an ISO-8601 UTC timestamp and a separator to each
// text record.
type Transform struct {
	sep string
}

// New builds a Transform from kwargs: optional "separator" (default " ").
func New(kwargs map[string]any) (stage.Transform, error) {
	sep := " "
	if v, ok := kwargs["separator"].(string); ok {
		sep = v
	}
	return &Transform{sep: sep}, nil
}

func (t *Transform) Name() string                { return "timestamp" }
func (t *Transform) AcceptedKinds() []record.Kind { return []record.Kind{record.KindText, record.KindBytes} }
func (t *Transform) ProducedKind() record.Kind    { return record.KindText }

func (t *Transform) Apply(ctx context.Context, r record.Record) ([]record.Record, error) {
	stamp := time.Now().UTC().Format(time.RFC3339Nano)
	return []record.Record{record.NewText(t.Name(), stamp+t.sep+r.AsText())}, nil
}
