// Package regexfilter implements RegexFilterTransform: drops text records
// that don't match (or, inverted, that do match) a regular expression
// (spec §6's `--transform_regex_filter PAT` CLI flag; a FilterDrop per
// spec §7, not an error).
package regexfilter

import (
	"context"
	"fmt"
	"regexp"

	"rvdas.dev/logger/internal/record"
	"rvdas.dev/logger/internal/registry"
	"rvdas.dev/logger/internal/stage"
)

func init() {
	registry.RegisterTransform("regex_filter", New)
}

// Transform drops records whose text doesn't match pattern (or, if
// negate, that do match).
type Transform struct {
	pattern *regexp.Regexp
	negate  bool
}

// New builds a Transform from kwargs: "pattern" (required) and optional
// "negate" (bool, default false).
func New(kwargs map[string]any) (stage.Transform, error) {
	patStr, _ := kwargs["pattern"].(string)
	if patStr == "" {
		return nil, fmt.Errorf("regex_filter transform: pattern is required")
	}
	re, err := regexp.Compile(patStr)
	if err != nil {
		return nil, fmt.Errorf("regex_filter transform: %w", err)
	}
	negate, _ := kwargs["negate"].(bool)
	return &Transform{pattern: re, negate: negate}, nil
}

func (t *Transform) Name() string                { return "regex_filter" }
func (t *Transform) AcceptedKinds() []record.Kind { return []record.Kind{record.KindText, record.KindBytes} }
func (t *Transform) ProducedKind() record.Kind    { return record.KindText }

func (t *Transform) Apply(ctx context.Context, r record.Record) ([]record.Record, error) {
	matched := t.pattern.MatchString(r.AsText())
	if matched == t.negate {
		return nil, nil
	}
	return []record.Record{record.NewText(t.Name(), r.AsText())}, nil
}
