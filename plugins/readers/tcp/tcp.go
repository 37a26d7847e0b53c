// Package tcp implements TCPReader: reads newline-delimited text from a
// TCP connection, acting as either client (dial) or server (listen for
// one connection) (spec §6's `--tcp` CLI flag).
package tcp

import (
	"bufio"
	"context"
	"fmt"
	"net"

	"rvdas.dev/logger/internal/record"
	"rvdas.dev/logger/internal/registry"
	"rvdas.dev/logger/internal/stage"
)

func init() {
	registry.RegisterReader("tcp", New)
}

// Reader reads lines from a TCP connection it either dialed or accepted.
type Reader struct {
	addr     string
	listener net.Listener
	conn     net.Conn
	scanner  *bufio.Scanner
}

// New builds a Reader from kwargs: "address" (required, "host:port") and
// optional "listen" (bool; if true, act as server and accept one
// connection on first Read instead of dialing).
func New(kwargs map[string]any) (stage.Reader, error) {
	addr, _ := kwargs["address"].(string)
	if addr == "" {
		return nil, fmt.Errorf("tcp reader: address is required")
	}
	listen, _ := kwargs["listen"].(bool)

	r := &Reader{addr: addr}
	if listen {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("tcp reader: listen %s: %w", addr, err)
		}
		r.listener = ln
	} else {
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("tcp reader: dial %s: %w", addr, err)
		}
		r.conn = conn
		r.scanner = bufio.NewScanner(conn)
	}
	return r, nil
}

func (r *Reader) Name() string                 { return "tcp:" + r.addr }
func (r *Reader) AcceptedKinds() []record.Kind { return nil }
func (r *Reader) ProducedKind() record.Kind    { return record.KindText }

func (r *Reader) Read(ctx context.Context) (record.Record, error) {
	if r.conn == nil {
		conn, err := r.listener.Accept()
		if err != nil {
			return record.Record{}, fmt.Errorf("tcp reader: accept on %s: %w", r.addr, err)
		}
		r.conn = conn
		r.scanner = bufio.NewScanner(conn)
	}
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return record.Record{}, fmt.Errorf("tcp reader: read from %s: %w", r.addr, err)
		}
		return record.Record{}, fmt.Errorf("tcp reader: connection closed on %s", r.addr)
	}
	return record.NewText(r.Name(), r.scanner.Text()), nil
}

func (r *Reader) Close() error {
	if r.conn != nil {
		r.conn.Close()
	}
	if r.listener != nil {
		r.listener.Close()
	}
	return nil
}
