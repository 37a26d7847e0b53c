package log

import (
	"os"
	"path/filepath"
	"testing"

	"rvdas.dev/logger/internal/config"
)

func TestWriterForNoFileIsStderrOnly(t *testing.T) {
	w := WriterFor(config.LogConfig{})
	mw, ok := w.(*MultiWriter)
	if !ok {
		t.Fatalf("expected *MultiWriter, got %T", w)
	}
	if len(mw.writers) != 1 {
		t.Fatalf("expected 1 writer (stderr), got %d", len(mw.writers))
	}
}

func TestWriterForFileAddsRotatingAppender(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.log")
	w := WriterFor(config.LogConfig{File: path, Rotation: config.RotationConfig{MaxSizeMB: 10}})

	if _, err := w.Write([]byte("hello\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected log file to exist: %v", err)
	}
}
