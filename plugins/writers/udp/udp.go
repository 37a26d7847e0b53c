// Package udp implements UDPWriter: sends each record's text as one UDP
// datagram, optionally to a broadcast address (spec §6's `--write_udp`
// CLI flag).
package udp

import (
	"context"
	"fmt"
	"net"

	"rvdas.dev/logger/internal/record"
	"rvdas.dev/logger/internal/registry"
	"rvdas.dev/logger/internal/stage"
)

func init() {
	registry.RegisterWriter("udp", New)
}

// Writer sends one UDP datagram per record.
type Writer struct {
	addr string
	conn net.Conn
}

// New builds a Writer from kwargs: "address" (required, "host:port").
func New(kwargs map[string]any) (stage.Writer, error) {
	addr, _ := kwargs["address"].(string)
	if addr == "" {
		return nil, fmt.Errorf("udp writer: address is required")
	}
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("udp writer: dial %s: %w", addr, err)
	}
	return &Writer{addr: addr, conn: conn}, nil
}

func (w *Writer) Name() string                 { return "udp:" + w.addr }
func (w *Writer) AcceptedKinds() []record.Kind { return nil }
func (w *Writer) ProducedKind() record.Kind    { return 0 }

func (w *Writer) Write(ctx context.Context, r record.Record) error {
	_, err := w.conn.Write([]byte(r.AsText()))
	if err != nil {
		return fmt.Errorf("udp writer: write to %s: %w", w.addr, err)
	}
	return nil
}

func (w *Writer) Flush(ctx context.Context) error { return nil }
func (w *Writer) Close() error                    { return w.conn.Close() }
