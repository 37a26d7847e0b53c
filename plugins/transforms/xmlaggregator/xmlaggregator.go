// Package xmlaggregator implements XMLAggregatorTransform: buffers text
// lines until a complete top-level XML element has accumulated (an open
// tag matched by its corresponding close tag at depth zero), then emits
// the whole buffered document as one text record. Some instruments (e.g.
// a CTD's XML status block) emit a multi-line document one line at a
// time; downstream parsing needs the whole thing.
package xmlaggregator

import (
	"context"
	"regexp"
	"strings"

	"rvdas.dev/logger/internal/record"
	"rvdas.dev/logger/internal/registry"
	"rvdas.dev/logger/internal/stage"
)

func init() {
	registry.RegisterTransform("xml_aggregator", New)
}

var tagPattern = regexp.MustCompile(`<(/?)([A-Za-z_][\w:.-]*)[^>]*?(/?)>`)

// Transform accumulates lines into buf until depth returns to zero, then
// emits buf as one record.
type Transform struct {
	buf   strings.Builder
	depth int
}

// New builds a Transform. No kwargs are required.
func New(kwargs map[string]any) (stage.Transform, error) {
	return &Transform{}, nil
}

func (t *Transform) Name() string                { return "xml_aggregator" }
func (t *Transform) AcceptedKinds() []record.Kind { return []record.Kind{record.KindText} }
func (t *Transform) ProducedKind() record.Kind    { return record.KindText }

func (t *Transform) Apply(ctx context.Context, r record.Record) ([]record.Record, error) {
	line := r.Text()
	if t.buf.Len() > 0 {
		t.buf.WriteByte('\n')
	}
	t.buf.WriteString(line)

	for _, m := range tagPattern.FindAllStringSubmatch(line, -1) {
		closing, selfClosing := m[1] == "/", m[3] == "/"
		switch {
		case selfClosing:
			// no depth change
		case closing:
			t.depth--
		default:
			t.depth++
		}
	}

	if t.depth > 0 {
		return nil, nil
	}

	doc := t.buf.String()
	t.buf.Reset()
	t.depth = 0
	if strings.TrimSpace(doc) == "" {
		return nil, nil
	}
	return []record.Record{record.NewText(t.Name(), doc)}, nil
}
