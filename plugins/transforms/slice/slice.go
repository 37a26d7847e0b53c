// Package slice implements SliceTransform: splits a text record on a
// separator and keeps a Python-slice-style subset of the fields (spec §6's
// `--transform_slice SPEC` / `--slice_separator` CLI flags).
package slice

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"rvdas.dev/logger/internal/record"
	"rvdas.dev/logger/internal/registry"
	"rvdas.dev/logger/internal/stage"
)

func init() {
	registry.RegisterTransform("slice", New)
}

// Transform selects fields[start:end] after splitting on sep and rejoins
// them with sep.
type Transform struct {
	sep        string
	start, end int // end is used only when hasEnd; otherwise the slice runs to the end
	hasEnd     bool
}

// New builds a Transform from kwargs: "spec" (required, "start:end" or
// "start:" or ":end" or "start", Python-slice-like, negative indices
// counting from the end) and optional "separator" (default " ").
func New(kwargs map[string]any) (stage.Transform, error) {
	spec, _ := kwargs["spec"].(string)
	if spec == "" {
		return nil, fmt.Errorf("slice transform: spec is required")
	}
	sep := " "
	if v, ok := kwargs["separator"].(string); ok {
		sep = v
	}

	start, end, hasEnd, err := parseSlice(spec)
	if err != nil {
		return nil, fmt.Errorf("slice transform: %w", err)
	}
	return &Transform{sep: sep, start: start, end: end, hasEnd: hasEnd}, nil
}

func parseSlice(spec string) (start, end int, hasEnd bool, err error) {
	parts := strings.SplitN(spec, ":", 2)
	if parts[0] != "" {
		start, err = strconv.Atoi(parts[0])
		if err != nil {
			return 0, 0, false, fmt.Errorf("invalid start %q", parts[0])
		}
	}
	if len(parts) == 1 {
		end = start + 1
		hasEnd = true
		return start, end, hasEnd, nil
	}
	if parts[1] != "" {
		end, err = strconv.Atoi(parts[1])
		if err != nil {
			return 0, 0, false, fmt.Errorf("invalid end %q", parts[1])
		}
		hasEnd = true
	}
	return start, end, hasEnd, nil
}

func (t *Transform) Name() string                { return "slice" }
func (t *Transform) AcceptedKinds() []record.Kind { return []record.Kind{record.KindText, record.KindBytes} }
func (t *Transform) ProducedKind() record.Kind    { return record.KindText }

func (t *Transform) Apply(ctx context.Context, r record.Record) ([]record.Record, error) {
	fields := strings.Split(r.AsText(), t.sep)
	start := resolveIndex(t.start, len(fields))
	end := len(fields)
	if t.hasEnd {
		end = resolveIndex(t.end, len(fields))
	}
	if start < 0 {
		start = 0
	}
	if end > len(fields) {
		end = len(fields)
	}
	if start > end {
		start = end
	}
	return []record.Record{record.NewText(t.Name(), strings.Join(fields[start:end], t.sep))}, nil
}

func resolveIndex(i, length int) int {
	if i < 0 {
		return length + i
	}
	return i
}
