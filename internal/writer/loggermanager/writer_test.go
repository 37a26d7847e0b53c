package loggermanager

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"rvdas.dev/logger/internal/manager"
	"rvdas.dev/logger/internal/record"
	"rvdas.dev/logger/internal/store"
)

const testCruiseYAML = `
cruise:
  id: eez-cruise
loggers: {}
configs: {}
modes:
  underway_mode: {}
  eez_mode: {}
default_mode: underway_mode
`

// end-to-end scenario 6 chain, minus GeofenceTransform itself (covered in
// internal/transform/geofence): a "set_active_mode" command text record,
// as GeofenceTransform would emit on a boundary crossing, submitted
// through this Writer to a real Manager's command socket, drives the
// manager into the named mode.
func TestWriterDrivesManagerSetActiveMode(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "manager.sock")

	m := manager.New(manager.ReconcileDefaults{TickInterval: time.Hour}, store.NewNoopStore(), nil, nil)

	cruisePath := filepath.Join(t.TempDir(), "cruise.yaml")
	if err := os.WriteFile(cruisePath, []byte(testCruiseYAML), 0o644); err != nil {
		t.Fatalf("write cruise file: %v", err)
	}
	if err := m.LoadConfiguration(cruisePath); err != nil {
		t.Fatalf("load configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := m.Start(ctx); err != nil {
		t.Fatalf("manager start: %v", err)
	}
	defer m.Stop()

	server := manager.NewCommandServer(sock, m)
	if err := server.Start(); err != nil {
		t.Fatalf("command server start: %v", err)
	}
	defer server.Stop()

	w, err := New(map[string]any{"socket": sock})
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}

	if got := m.GetActiveMode(); got != "underway_mode" {
		t.Fatalf("active mode = %q before write, want underway_mode", got)
	}

	rec := record.NewText("geofence", "set_active_mode eez_mode")
	if err := w.Write(context.Background(), rec); err != nil {
		t.Fatalf("write: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m.GetActiveMode() == "eez_mode" {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if got := m.GetActiveMode(); got != "eez_mode" {
		t.Fatalf("active mode = %q, want eez_mode after set_active_mode command", got)
	}
}

func TestWriterRejectsNonWhitelistedCommand(t *testing.T) {
	w, err := New(map[string]any{"socket": "/nonexistent/does/not/matter.sock"})
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}

	rec := record.NewText("geofence", "rm -rf /")
	if err := w.Write(context.Background(), rec); err == nil {
		t.Fatal("expected a whitelist rejection for an unlisted command")
	}
	if w.Rejected() != 1 {
		t.Fatalf("rejected count = %d, want 1", w.Rejected())
	}
}
