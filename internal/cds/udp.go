package cds

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"time"
)

// UDPIngest accepts the same `publish` payload's `data` dict over UDP
// (spec §4.6), for writers that would rather fire-and-forget a datagram
// than hold a websocket connection open.
type UDPIngest struct {
	addr  string
	cache *Cache
	conn  *net.UDPConn
	done  chan struct{}
}

// NewUDPIngest builds a UDPIngest bound to addr, backed by cache.
func NewUDPIngest(addr string, cache *Cache) *UDPIngest {
	return &UDPIngest{addr: addr, cache: cache, done: make(chan struct{})}
}

// Start begins listening for UDP datagrams in the background.
func (u *UDPIngest) Start(ctx context.Context) error {
	udpAddr, err := net.ResolveUDPAddr("udp", u.addr)
	if err != nil {
		return err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return err
	}
	u.conn = conn

	slog.Info("starting cached data server udp ingest", "addr", u.addr)
	go u.readLoop()
	return nil
}

func (u *UDPIngest) readLoop() {
	buf := make([]byte, 65536)
	for {
		n, _, err := u.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-u.done:
				return
			default:
			}
			slog.Debug("cds udp ingest: read error", "error", err)
			continue
		}
		u.ingest(buf[:n])
	}
}

func (u *UDPIngest) ingest(payload []byte) {
	var data publishData
	if err := json.Unmarshal(payload, &data); err != nil {
		slog.Debug("cds udp ingest: malformed payload", "error", err)
		return
	}
	ts := data.Timestamp
	if ts == 0 {
		ts = float64(time.Now().UnixNano()) / 1e9
	}
	for name, v := range data.Fields {
		if series, ok := v.([]any); ok {
			for _, pair := range series {
				p, ok := pair.([]any)
				if !ok || len(p) != 2 {
					continue
				}
				t, _ := p[0].(float64)
				u.cache.Publish(name, Sample{Timestamp: t, Value: p[1]})
			}
			continue
		}
		u.cache.Publish(name, Sample{Timestamp: ts, Value: v})
	}
	for name, md := range data.Metadata {
		u.cache.SetMetadata(name, md)
	}
}

// Stop closes the UDP socket.
func (u *UDPIngest) Stop() error {
	close(u.done)
	if u.conn == nil {
		return nil
	}
	return u.conn.Close()
}
