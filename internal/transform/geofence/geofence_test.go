package geofence

import (
	"context"
	"testing"

	"rvdas.dev/logger/internal/record"
)

func gpsRecord(lat, lon float64) record.Record {
	return record.NewStructured("gps", record.Structured{
		DataID: "gps",
		Fields: map[string]record.FieldValue{
			"Latitude":  record.Scalar(lat),
			"Longitude": record.Scalar(lon),
		},
	})
}

// square boundary around (0,0), +/-1 degree.
func squareKwargs(enter, exit string) map[string]any {
	return map[string]any{
		"mode": "geofence",
		"boundary": []any{
			[]any{-1.0, -1.0},
			[]any{-1.0, 1.0},
			[]any{1.0, 1.0},
			[]any{1.0, -1.0},
		},
		"enter_command": enter,
		"exit_command":  exit,
	}
}

func TestGeofenceEmitsOnlyOnCrossing(t *testing.T) {
	tr, err := New(squareKwargs("ENTER", "EXIT"))
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	// first observation establishes state (outside) with no emit, since
	// spec says only crossings emit, not the initial reading.
	out, err := tr.Apply(context.Background(), gpsRecord(5, 5))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected no emit on first observation, got %v", out)
	}

	// still outside: no emit.
	out, _ = tr.Apply(context.Background(), gpsRecord(6, 6))
	if len(out) != 0 {
		t.Fatalf("expected no emit while staying outside, got %v", out)
	}

	// crosses inside: emit ENTER.
	out, err = tr.Apply(context.Background(), gpsRecord(0, 0))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(out) != 1 || out[0].Text() != "ENTER" {
		t.Fatalf("expected [ENTER], got %v", out)
	}

	// stays inside: no further emit.
	out, _ = tr.Apply(context.Background(), gpsRecord(0.1, 0.1))
	if len(out) != 0 {
		t.Fatalf("expected no emit while staying inside, got %v", out)
	}

	// crosses back outside: emit EXIT.
	out, err = tr.Apply(context.Background(), gpsRecord(10, 10))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(out) != 1 || out[0].Text() != "EXIT" {
		t.Fatalf("expected [EXIT], got %v", out)
	}
}

func TestGeofenceMissingFieldsProduceNoOutput(t *testing.T) {
	tr, err := New(squareKwargs("ENTER", "EXIT"))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	rec := record.NewStructured("gps", record.Structured{
		DataID: "gps",
		Fields: map[string]record.FieldValue{"Latitude": record.Scalar(0.0)},
	})
	out, err := tr.Apply(context.Background(), rec)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected no output for a record missing Longitude, got %v", out)
	}
}

func TestGeofenceRejectsShortBoundary(t *testing.T) {
	kwargs := squareKwargs("E", "X")
	kwargs["boundary"] = []any{[]any{0.0, 0.0}, []any{1.0, 1.0}}
	if _, err := New(kwargs); err == nil {
		t.Fatal("expected error for a boundary with fewer than 3 points")
	}
}

func TestQCModeEmitsOnBoundViolationAndRecovery(t *testing.T) {
	tr, err := New(map[string]any{
		"mode":              "qc",
		"value_field":       "Depth",
		"lower_bound":       0.0,
		"upper_bound":       100.0,
		"violation_command": "ALARM",
		"recovered_command": "CLEAR",
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	depth := func(v float64) record.Record {
		return record.NewStructured("depth", record.Structured{
			DataID: "depth",
			Fields: map[string]record.FieldValue{"Depth": record.Scalar(v)},
		})
	}

	out, _ := tr.Apply(context.Background(), depth(50))
	if len(out) != 0 {
		t.Fatalf("expected no emit on first in-bounds reading, got %v", out)
	}

	out, _ = tr.Apply(context.Background(), depth(150))
	if len(out) != 1 || out[0].Text() != "ALARM" {
		t.Fatalf("expected [ALARM] on violation, got %v", out)
	}

	out, _ = tr.Apply(context.Background(), depth(50))
	if len(out) != 1 || out[0].Text() != "CLEAR" {
		t.Fatalf("expected [CLEAR] on recovery, got %v", out)
	}
}
