package parse

import "testing"

func TestCompileFormatMatchesTypedFields(t *testing.T) {
	cf, err := CompileFormat("$GPGGA,%Time:float%,%Latitude:latlon%,%Longitude:latlon%")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	fields, err := cf.Match("$GPGGA,123519.00,4807.038,N,01131.000,E")
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if fields["Time"].(float64) != 123519.00 {
		t.Fatalf("Time = %v, want 123519.00", fields["Time"])
	}
	if _, ok := fields["Latitude"]; !ok {
		t.Fatalf("expected Latitude field, got %#v", fields)
	}
}

func TestCompileFormatNoMatchReturnsErrNoMatch(t *testing.T) {
	cf, err := CompileFormat("%Heading:float%,T")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if _, err := cf.Match("not a heading sentence"); err == nil {
		t.Fatal("expected ErrNoMatch for a non-matching line")
	}
}

func TestCompileFormatLatLonRoundTrip(t *testing.T) {
	cf, err := CompileFormat("%Latitude:latlon%,%Longitude:latlon%")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	fields, err := cf.Match("4807.038,N,01131.000,E")
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	lat, ok := fields["Latitude"].(float64)
	if !ok {
		t.Fatalf("Latitude not a float64: %#v", fields["Latitude"])
	}
	if lat < 48.1172 || lat > 48.1173 {
		t.Fatalf("Latitude = %v, want ~48.1172", lat)
	}
	lon := fields["Longitude"].(float64)
	if lon < 11.5166 || lon > 11.5167 {
		t.Fatalf("Longitude = %v, want ~11.5166", lon)
	}
}

func TestCompileFormatRejectsUnknownFieldType(t *testing.T) {
	if _, err := CompileFormat("%Foo:nonsense%"); err == nil {
		t.Fatal("expected error for unknown field type")
	}
}

func newGPSResolver() *Resolver {
	devices := map[string]any{
		"gyro1": map[string]any{
			"device_type": "gyro",
			"fields":      map[string]string{"Heading": "Gyro1Heading"},
		},
	}
	deviceTypes := map[string]any{
		"gyro": map[string]any{
			"fields": map[string]any{
				"Heading": map[string]any{"units": "degrees", "description": "true heading"},
			},
			"formats": []any{
				map[string]any{"message_type": "HDT", "format": "%Heading:float%,T"},
			},
		},
	}
	return NewResolver(devices, deviceTypes)
}

func TestResolverRenamesFieldsPerDevice(t *testing.T) {
	r := newGPSResolver()
	fields, err := r.Resolve("gyro1", "123.4,T")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	v, ok := fields["Gyro1Heading"]
	if !ok {
		t.Fatalf("expected renamed field Gyro1Heading, got %#v", fields)
	}
	if v.(float64) != 123.4 {
		t.Fatalf("Gyro1Heading = %v, want 123.4", v)
	}
}

func TestResolverUnknownDataID(t *testing.T) {
	r := newGPSResolver()
	if _, err := r.Resolve("nope", "123.4,T"); err == nil {
		t.Fatal("expected error for unregistered data_id")
	}
}

func TestResolverMetadataUsesRenamedFieldNames(t *testing.T) {
	r := newGPSResolver()
	meta, err := r.Metadata("gyro1")
	if err != nil {
		t.Fatalf("metadata: %v", err)
	}
	entry, ok := meta["Gyro1Heading"]
	if !ok {
		t.Fatalf("expected metadata keyed by renamed field, got %#v", meta)
	}
	if entry["device"] != "gyro1" || entry["device_type"] != "gyro" {
		t.Fatalf("unexpected metadata entry: %#v", entry)
	}
}
