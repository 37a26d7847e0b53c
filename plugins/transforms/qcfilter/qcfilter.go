// Package qcfilter implements QCFilterTransform: drops structured records
// whose named field falls outside [lower, upper] (spec §7 FilterDrop,
// normal control flow, not an error). Distinct from
// internal/transform/geofence's "qc" mode, which emits a command record
// on a bound *transition* rather than filtering every out-of-bounds record.
package qcfilter

import (
	"context"
	"fmt"

	"rvdas.dev/logger/internal/record"
	"rvdas.dev/logger/internal/registry"
	"rvdas.dev/logger/internal/stage"
)

func init() {
	registry.RegisterTransform("qc_filter", New)
}

// Transform drops structured records whose Field is outside [Lower, Upper].
type Transform struct {
	field        string
	lower, upper float64
}

// New builds a Transform from kwargs: "field", "lower_bound",
// "upper_bound" (all required).
func New(kwargs map[string]any) (stage.Transform, error) {
	field, _ := kwargs["field"].(string)
	if field == "" {
		return nil, fmt.Errorf("qc_filter transform: field is required")
	}
	lower, ok1 := toFloat(kwargs["lower_bound"])
	upper, ok2 := toFloat(kwargs["upper_bound"])
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("qc_filter transform: lower_bound and upper_bound are required")
	}
	return &Transform{field: field, lower: lower, upper: upper}, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

func (t *Transform) Name() string                { return "qc_filter" }
func (t *Transform) AcceptedKinds() []record.Kind { return []record.Kind{record.KindStructured} }
func (t *Transform) ProducedKind() record.Kind    { return record.KindStructured }

func (t *Transform) Apply(ctx context.Context, r record.Record) ([]record.Record, error) {
	fv, ok := r.Structured().Fields[t.field]
	if !ok || fv.IsSeries() {
		return []record.Record{r}, nil
	}
	val, ok := toFloat(fv.Scalar)
	if !ok {
		return []record.Record{r}, nil
	}
	if val < t.lower || val > t.upper {
		return nil, nil
	}
	return []record.Record{r}, nil
}
