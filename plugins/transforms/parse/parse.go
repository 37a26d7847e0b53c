// Package parse implements ParseTransform (spec §4.5): applies a
// top-level record_format to an incoming text record to extract a
// data_id and a field_string, then hands field_string to an
// internal/parse.Resolver for the Device/DeviceType second pass.
package parse

import (
	"context"
	"fmt"
	"sync"
	"time"

	"rvdas.dev/logger/internal/parse"
	"rvdas.dev/logger/internal/record"
	"rvdas.dev/logger/internal/registry"
	"rvdas.dev/logger/internal/stage"
)

func init() {
	registry.RegisterTransform("parse", New)
}

// Transform parses text records into structured ones.
type Transform struct {
	name             string
	topLevel         *parse.CompiledFormat
	resolver         *parse.Resolver
	metadataInterval time.Duration

	mu           sync.Mutex
	lastMetadata map[string]time.Time
}

// New builds a parse Transform from kwargs: "record_format" (required,
// must name data_id and field_string placeholders, e.g.
// "%data_id:word% %field_string:string%"), "devices" and "device_types"
// (the CruiseDefinition's maps, copied into this transform's kwargs by
// the config loader), and optional "metadata_interval" (seconds).
func New(kwargs map[string]any) (stage.Transform, error) {
	formatStr, _ := kwargs["record_format"].(string)
	if formatStr == "" {
		return nil, fmt.Errorf("parse: record_format is required")
	}
	cf, err := parse.CompileFormat(formatStr)
	if err != nil {
		return nil, err
	}

	devices, _ := kwargs["devices"].(map[string]any)
	deviceTypes, _ := kwargs["device_types"].(map[string]any)

	var interval time.Duration
	if v, ok := kwargs["metadata_interval"]; ok {
		if secs, ok := toFloat(v); ok {
			interval = time.Duration(secs * float64(time.Second))
		}
	}

	return &Transform{
		name:             "parse",
		topLevel:         cf,
		resolver:         parse.NewResolver(devices, deviceTypes),
		metadataInterval: interval,
		lastMetadata:     make(map[string]time.Time),
	}, nil
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

func (t *Transform) Name() string                    { return t.name }
func (t *Transform) AcceptedKinds() []record.Kind     { return []record.Kind{record.KindText} }
func (t *Transform) ProducedKind() record.Kind        { return record.KindStructured }

// Apply parses one text record. A record that doesn't match the top-level
// format or whose data_id/field_string don't resolve is dropped (spec §7
// ParseError: "per-record, logged at DEBUG, record dropped").
func (t *Transform) Apply(ctx context.Context, r record.Record) ([]record.Record, error) {
	top, err := t.topLevel.Match(r.Text())
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}

	dataID, _ := top["data_id"].(string)
	fieldString, _ := top["field_string"].(string)
	if dataID == "" {
		return nil, fmt.Errorf("parse: record_format produced empty data_id")
	}

	ts, ok := top["timestamp"].(float64)
	if !ok {
		ts = float64(time.Now().UnixNano()) / 1e9
	}

	fields, err := t.resolver.Resolve(dataID, fieldString)
	if err != nil {
		return nil, err
	}

	fv := make(map[string]record.FieldValue, len(fields))
	for name, v := range fields {
		fv[name] = record.Scalar(v)
	}

	structured := record.Structured{DataID: dataID, Timestamp: ts, Fields: fv}
	if t.metadataInterval > 0 && t.dueForMetadata(dataID) {
		if md, err := t.resolver.Metadata(dataID); err == nil {
			meta := make(map[string]any, len(md))
			for k, v := range md {
				meta[k] = v
			}
			structured.Metadata = meta
		}
	}

	return []record.Record{record.NewStructured(t.name, structured)}, nil
}

func (t *Transform) dueForMetadata(dataID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	if last, ok := t.lastMetadata[dataID]; ok && now.Sub(last) < t.metadataInterval {
		return false
	}
	t.lastMetadata[dataID] = now
	return true
}
