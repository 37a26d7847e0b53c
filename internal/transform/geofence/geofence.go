// Package geofence implements spec §4.7's geofence/QC control Transform: it
// watches a named lat/lon pair or a named scalar bound, and on boundary
// crossing or bound violation emits a textual command record for a paired
// LoggerManagerWriter (internal/writer/loggermanager) to submit to the
// Logger Manager's command API. This closes a data-driven control loop
// without coupling the pipeline engine to the manager (spec §9: "break the
// cycle... fire-and-forget").
package geofence

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"rvdas.dev/logger/internal/record"
	"rvdas.dev/logger/internal/stage"
)

// Point is one polygon vertex (decimal degrees).
type Point struct {
	Lat, Lon float64
}

// Config configures one geofence or QC watch.
type Config struct {
	Mode string // "geofence" or "qc"

	// geofence mode
	LatField      string
	LonField      string
	Boundary      []Point
	OffsetDegrees float64 // signed; positive expands the boundary outward
	EnterCommand  string  // emitted when a point moves inside the boundary
	ExitCommand   string  // emitted when a point moves outside the boundary

	// qc mode
	ValueField        string
	LowerBound        float64
	UpperBound        float64
	ViolationCommand  string
	RecoveredCommand  string

	MinCheckInterval time.Duration
}

// Transform watches incoming structured records and emits command text
// records on state transitions.
type Transform struct {
	cfg     Config
	polygon []Point // cfg.Boundary, inflated by cfg.OffsetDegrees

	mu         sync.Mutex
	lastCheck  time.Time
	wasInside  bool
	hasState   bool
	wasInBound bool
}

// New builds a Transform from kwargs.
func New(kwargs map[string]any) (stage.Transform, error) {
	cfg := Config{
		Mode:             strVal(kwargs, "mode", "geofence"),
		LatField:         strVal(kwargs, "lat_field", "Latitude"),
		LonField:         strVal(kwargs, "lon_field", "Longitude"),
		OffsetDegrees:    floatVal(kwargs, "offset_degrees", 0),
		EnterCommand:     strVal(kwargs, "enter_command", ""),
		ExitCommand:      strVal(kwargs, "exit_command", ""),
		ValueField:       strVal(kwargs, "value_field", ""),
		LowerBound:       floatVal(kwargs, "lower_bound", 0),
		UpperBound:       floatVal(kwargs, "upper_bound", 0),
		ViolationCommand: strVal(kwargs, "violation_command", ""),
		RecoveredCommand: strVal(kwargs, "recovered_command", ""),
		MinCheckInterval: time.Duration(floatVal(kwargs, "min_interval_seconds", 0) * float64(time.Second)),
	}

	if cfg.Mode == "geofence" {
		pts, err := decodeBoundary(kwargs["boundary"])
		if err != nil {
			return nil, err
		}
		if len(pts) < 3 {
			return nil, fmt.Errorf("geofence: boundary must have at least 3 points")
		}
		cfg.Boundary = pts
	}

	t := &Transform{cfg: cfg}
	t.polygon = inflate(cfg.Boundary, cfg.OffsetDegrees)
	return t, nil
}

func decodeBoundary(raw any) ([]Point, error) {
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("geofence: boundary must be a list of [lat, lon] pairs")
	}
	out := make([]Point, 0, len(list))
	for i, item := range list {
		pair, ok := item.([]any)
		if !ok || len(pair) != 2 {
			return nil, fmt.Errorf("geofence: boundary[%d]: expected [lat, lon]", i)
		}
		lat, _ := toFloat(pair[0])
		lon, _ := toFloat(pair[1])
		out = append(out, Point{Lat: lat, Lon: lon})
	}
	return out, nil
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

func strVal(kwargs map[string]any, key, def string) string {
	if v, ok := kwargs[key].(string); ok && v != "" {
		return v
	}
	return def
}

func floatVal(kwargs map[string]any, key string, def float64) float64 {
	if v, ok := toFloat(kwargs[key]); ok {
		return v
	}
	return def
}

// inflate moves each vertex away from the polygon's centroid by offsetDeg
// degrees, a deliberately simple approximation to a true geometric buffer
// — adequate for the hysteresis band the spec's "optional signed offset"
// exists to provide, not a general polygon-offsetting algorithm.
func inflate(pts []Point, offsetDeg float64) []Point {
	if offsetDeg == 0 || len(pts) == 0 {
		return pts
	}
	var cLat, cLon float64
	for _, p := range pts {
		cLat += p.Lat
		cLon += p.Lon
	}
	cLat /= float64(len(pts))
	cLon /= float64(len(pts))

	out := make([]Point, len(pts))
	for i, p := range pts {
		dLat, dLon := p.Lat-cLat, p.Lon-cLon
		dist := math.Hypot(dLat, dLon)
		if dist == 0 {
			out[i] = p
			continue
		}
		scale := (dist + offsetDeg) / dist
		out[i] = Point{Lat: cLat + dLat*scale, Lon: cLon + dLon*scale}
	}
	return out
}


// pointInPolygon is the standard ray-casting test.
func pointInPolygon(lat, lon float64, poly []Point) bool {
	inside := false
	n := len(poly)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		pi, pj := poly[i], poly[j]
		if (pi.Lon > lon) != (pj.Lon > lon) &&
			lat < (pj.Lat-pi.Lat)*(lon-pi.Lon)/(pj.Lon-pi.Lon)+pi.Lat {
			inside = !inside
		}
	}
	return inside
}

func (t *Transform) Name() string                { return "geofence:" + t.cfg.Mode }
func (t *Transform) AcceptedKinds() []record.Kind { return []record.Kind{record.KindStructured} }
func (t *Transform) ProducedKind() record.Kind    { return record.KindText }

// Apply checks the configured watch against r's fields; on a state
// transition it emits a command text record. Non-transition ticks and
// missing-field ticks produce no output (spec §4.7: only crossings emit).
// The first reading only records the starting state, except that a first
// QC reading outside the bounds counts as a violation.
func (t *Transform) Apply(ctx context.Context, r record.Record) ([]record.Record, error) {
	if r.Kind() != record.KindStructured {
		return nil, nil
	}

	t.mu.Lock()
	if t.cfg.MinCheckInterval > 0 && !t.lastCheck.IsZero() && time.Since(t.lastCheck) < t.cfg.MinCheckInterval {
		t.mu.Unlock()
		return nil, nil
	}
	t.lastCheck = time.Now()
	t.mu.Unlock()

	if t.cfg.Mode == "qc" {
		return t.checkQC(r)
	}
	return t.checkGeofence(r)
}

func (t *Transform) checkGeofence(r record.Record) ([]record.Record, error) {
	lat, ok1 := fieldFloat(r, t.cfg.LatField)
	lon, ok2 := fieldFloat(r, t.cfg.LonField)
	if !ok1 || !ok2 {
		return nil, nil
	}

	inside := pointInPolygon(lat, lon, t.polygon)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.hasState && inside == t.wasInside {
		return nil, nil
	}
	first := !t.hasState
	t.hasState = true
	t.wasInside = inside
	if first {
		return nil, nil
	}

	var cmd string
	if inside {
		cmd = t.cfg.EnterCommand
	} else {
		cmd = t.cfg.ExitCommand
	}
	if cmd == "" {
		return nil, nil
	}
	return []record.Record{record.NewText(t.Name(), cmd)}, nil
}

func (t *Transform) checkQC(r record.Record) ([]record.Record, error) {
	val, ok := fieldFloat(r, t.cfg.ValueField)
	if !ok {
		return nil, nil
	}
	inBounds := val >= t.cfg.LowerBound && val <= t.cfg.UpperBound

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.hasState && inBounds == t.wasInBound {
		return nil, nil
	}
	first := !t.hasState
	t.hasState = true
	t.wasInBound = inBounds
	if first && inBounds {
		return nil, nil
	}

	var cmd string
	if inBounds {
		cmd = t.cfg.RecoveredCommand
	} else {
		cmd = t.cfg.ViolationCommand
	}
	if cmd == "" {
		return nil, nil
	}
	return []record.Record{record.NewText(t.Name(), cmd)}, nil
}

func fieldFloat(r record.Record, name string) (float64, bool) {
	fv, ok := r.Structured().Fields[name]
	if !ok || fv.IsSeries() {
		return 0, false
	}
	switch v := fv.Scalar.(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}

