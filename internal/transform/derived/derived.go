// Package derived implements spec §4.1/§4.7's derived-value Transform,
// whose named example is true-wind calculation from apparent wind plus
// vessel speed/heading. Purely a function of its declared inputs, no
// hidden state, matching the stage.Transform purity contract.
package derived

import (
	"context"
	"fmt"
	"math"

	"rvdas.dev/logger/internal/record"
	"rvdas.dev/logger/internal/stage"
)

// Config names the input/output field mapping for one derived calculation.
type Config struct {
	// Calculation selects which derived value to compute. Only "true_wind"
	// is implemented; spec names it as the worked example.
	Calculation string

	ApparentSpeedField     string
	ApparentAngleField     string // degrees, relative to bow, 0..360
	VesselSpeedField       string
	VesselHeadingField     string // true heading, degrees
	TrueWindSpeedField     string
	TrueWindDirectionField string
}

// Transform computes a derived value and adds it to the record's fields.
type Transform struct {
	cfg Config
}

// New builds a Transform from kwargs. Every *_field kwarg is optional and
// defaults to the field name shown below.
func New(kwargs map[string]any) (stage.Transform, error) {
	cfg := Config{
		Calculation:            str(kwargs, "calculation", "true_wind"),
		ApparentSpeedField:     str(kwargs, "apparent_speed_field", "ApparentWindSpeed"),
		ApparentAngleField:     str(kwargs, "apparent_angle_field", "ApparentWindAngle"),
		VesselSpeedField:       str(kwargs, "vessel_speed_field", "SpeedOverGround"),
		VesselHeadingField:     str(kwargs, "vessel_heading_field", "HeadingTrue"),
		TrueWindSpeedField:     str(kwargs, "true_wind_speed_field", "TrueWindSpeed"),
		TrueWindDirectionField: str(kwargs, "true_wind_direction_field", "TrueWindDirection"),
	}
	if cfg.Calculation != "true_wind" {
		return nil, fmt.Errorf("derived: unsupported calculation %q", cfg.Calculation)
	}
	return &Transform{cfg: cfg}, nil
}

func str(kwargs map[string]any, key, def string) string {
	if v, ok := kwargs[key].(string); ok && v != "" {
		return v
	}
	return def
}

func (t *Transform) Name() string                { return "derived:" + t.cfg.Calculation }
func (t *Transform) AcceptedKinds() []record.Kind { return []record.Kind{record.KindStructured} }
func (t *Transform) ProducedKind() record.Kind    { return record.KindStructured }

// Apply adds TrueWindSpeed/TrueWindDirection fields when the required
// inputs are present; otherwise it passes the record through unchanged
// (a missing sensor reading is not an error worth dropping the record for).
func (t *Transform) Apply(ctx context.Context, r record.Record) ([]record.Record, error) {
	aws, ok1 := fieldFloat(r, t.cfg.ApparentSpeedField)
	awa, ok2 := fieldFloat(r, t.cfg.ApparentAngleField)
	vs, ok3 := fieldFloat(r, t.cfg.VesselSpeedField)
	heading, ok4 := fieldFloat(r, t.cfg.VesselHeadingField)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return []record.Record{r}, nil
	}

	tws, twd := trueWind(aws, awa, vs, heading)

	out := r.Clone()
	s := out.Structured()
	if s.Fields == nil {
		s.Fields = make(map[string]record.FieldValue)
	}
	s.Fields[t.cfg.TrueWindSpeedField] = record.Scalar(tws)
	s.Fields[t.cfg.TrueWindDirectionField] = record.Scalar(twd)
	out = record.NewStructured(out.Source, s)
	return []record.Record{out}, nil
}

// trueWind converts apparent wind speed/angle (relative to the bow) and
// vessel speed/true heading into true wind speed and direction (degrees
// true), via vector subtraction of the vessel's motion from the apparent
// wind vector.
func trueWind(aws, awaDeg, vesselSpeed, headingDeg float64) (speed, directionDeg float64) {
	awa := awaDeg * math.Pi / 180
	u := aws * math.Sin(awa) // athwartship component
	v := aws*math.Cos(awa) - vesselSpeed // fore-aft component, bow-relative

	speed = math.Hypot(u, v)
	relAngle := math.Atan2(u, v) * 180 / math.Pi
	directionDeg = math.Mod(headingDeg+relAngle+360, 360)
	return speed, directionDeg
}

func fieldFloat(r record.Record, name string) (float64, bool) {
	if r.Kind() != record.KindStructured {
		return 0, false
	}
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
