// Package prefix implements PrefixTransform: prepends a fixed string to
// every text record (spec §6's `--transform_prefix STR` CLI flag).
package prefix

import (
	"context"
	"fmt"

	"rvdas.dev/logger/internal/record"
	"rvdas.dev/logger/internal/registry"
	"rvdas.dev/logger/internal/stage"
)

func init() {
	registry.RegisterTransform("prefix", New)
}

// Transform prepends a fixed prefix to each record's text.
type Transform struct {
	prefix string
}

// New builds a Transform from kwargs: "prefix" (required).
func New(kwargs map[string]any) (stage.Transform, error) {
	prefix, _ := kwargs["prefix"].(string)
	if prefix == "" {
		return nil, fmt.Errorf("prefix transform: prefix is required")
	}
	return &Transform{prefix: prefix}, nil
}

func (t *Transform) Name() string                { return "prefix" }
func (t *Transform) AcceptedKinds() []record.Kind { return []record.Kind{record.KindText, record.KindBytes} }
func (t *Transform) ProducedKind() record.Kind    { return record.KindText }

func (t *Transform) Apply(ctx context.Context, r record.Record) ([]record.Record, error) {
	return []record.Record{record.NewText(t.Name(), t.prefix+r.AsText())}, nil
}
