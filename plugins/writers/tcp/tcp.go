// Package tcp implements TCPWriter: writes each record's text as a
// newline-terminated line to a TCP connection, reconnecting lazily on
// the next write after a dropped connection (spec §6's `--write_tcp`
// CLI flag).
package tcp

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"rvdas.dev/logger/internal/record"
	"rvdas.dev/logger/internal/registry"
	"rvdas.dev/logger/internal/stage"
)

func init() {
	registry.RegisterWriter("tcp", New)
}

// Writer dials addr on first Write and redials on any write error.
type Writer struct {
	addr    string
	timeout time.Duration
	mu      sync.Mutex
	conn    net.Conn
}

// New builds a Writer from kwargs: "address" (required, "host:port"),
// optional "dial_timeout_secs" (default 5).
func New(kwargs map[string]any) (stage.Writer, error) {
	addr, _ := kwargs["address"].(string)
	if addr == "" {
		return nil, fmt.Errorf("tcp writer: address is required")
	}
	timeout := 5 * time.Second
	if v, ok := kwargs["dial_timeout_secs"].(float64); ok {
		timeout = time.Duration(v * float64(time.Second))
	}
	return &Writer{addr: addr, timeout: timeout}, nil
}

func (w *Writer) Name() string                 { return "tcp:" + w.addr }
func (w *Writer) AcceptedKinds() []record.Kind { return nil }
func (w *Writer) ProducedKind() record.Kind    { return 0 }

func (w *Writer) ensureConn() (net.Conn, error) {
	if w.conn != nil {
		return w.conn, nil
	}
	conn, err := net.DialTimeout("tcp", w.addr, w.timeout)
	if err != nil {
		return nil, fmt.Errorf("tcp writer: dial %s: %w", w.addr, err)
	}
	w.conn = conn
	return conn, nil
}

func (w *Writer) Write(ctx context.Context, r record.Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	conn, err := w.ensureConn()
	if err != nil {
		return err
	}
	if _, err := conn.Write([]byte(r.AsText() + "\n")); err != nil {
		conn.Close()
		w.conn = nil
		return fmt.Errorf("tcp writer: write to %s: %w", w.addr, err)
	}
	return nil
}

func (w *Writer) Flush(ctx context.Context) error { return nil }

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn == nil {
		return nil
	}
	err := w.conn.Close()
	w.conn = nil
	return err
}
