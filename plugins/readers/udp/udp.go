// Package udp implements UDPReader: reads one text record per UDP
// datagram, optionally joining a multicast group (spec §6's `--udp` CLI
// flag).
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
	registry.RegisterReader("udp", New)
}

// Reader reads one Record per datagram received on a UDP socket.
type Reader struct {
	addr string
	conn *net.UDPConn
	buf  []byte
}

// New builds a Reader from kwargs: "address" (required, "host:port" or
// ":port" to listen on all interfaces), optional "multicast_group"
// (joins the given multicast address on the same interface).
func New(kwargs map[string]any) (stage.Reader, error) {
	addr, _ := kwargs["address"].(string)
	if addr == "" {
		return nil, fmt.Errorf("udp reader: address is required")
	}

	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("udp reader: resolve %s: %w", addr, err)
	}

	var conn *net.UDPConn
	if group, ok := kwargs["multicast_group"].(string); ok && group != "" {
		groupAddr, err := net.ResolveUDPAddr("udp", group)
		if err != nil {
			return nil, fmt.Errorf("udp reader: resolve multicast group %s: %w", group, err)
		}
		conn, err = net.ListenMulticastUDP("udp", nil, groupAddr)
		if err != nil {
			return nil, fmt.Errorf("udp reader: listen multicast %s: %w", group, err)
		}
	} else {
		conn, err = net.ListenUDP("udp", udpAddr)
		if err != nil {
			return nil, fmt.Errorf("udp reader: listen %s: %w", addr, err)
		}
	}

	return &Reader{addr: addr, conn: conn, buf: make([]byte, 64*1024)}, nil
}

func (r *Reader) Name() string                 { return "udp:" + r.addr }
func (r *Reader) AcceptedKinds() []record.Kind { return nil }
func (r *Reader) ProducedKind() record.Kind    { return record.KindText }

func (r *Reader) Read(ctx context.Context) (record.Record, error) {
	n, _, err := r.conn.ReadFromUDP(r.buf)
	if err != nil {
		return record.Record{}, fmt.Errorf("udp reader: read on %s: %w", r.addr, err)
	}
	return record.NewText(r.Name(), string(r.buf[:n])), nil
}

func (r *Reader) Close() error { return r.conn.Close() }
