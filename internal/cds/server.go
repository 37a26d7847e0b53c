package cds

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/robfig/cron/v3"
)

// Server is the Cached Data Server's websocket frontend (spec §4.6, §6).
// Its http.Server lifecycle is grounded directly on internal/metrics
// /server.go's NewServer/Start/Stop (ListenAndServe in a goroutine,
// context-bounded graceful Shutdown); the per-subscriber dispatch loop
// generalizes internal/eventbus/bus.go's partitioned-subscriber fan-out
// to a ready/ack-gated push model instead of an unbounded channel.
type Server struct {
	addr  string
	path  string
	cache *Cache

	httpServer *http.Server
	upgrader   websocket.Upgrader
	cron       *cron.Cron
}

// NewServer builds a Server serving the websocket protocol at path over
// addr, backed by cache. Also schedules cache's retention sweep once a
// minute via robfig/cron/v3 (DESIGN.md Open Question 3).
func NewServer(addr, path string, cache *Cache) *Server {
	if path == "" {
		path = "/"
	}
	return &Server{
		addr:  addr,
		path:  path,
		cache: cache,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		cron: cron.New(),
	}
}

// Start begins serving websocket connections and the retention sweep.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc(s.path, s.handleWebsocket)

	s.httpServer = &http.Server{
		Addr:         s.addr,
		Handler:      mux,
		ReadTimeout:  0, // websocket connections are long-lived
		WriteTimeout: 0,
		IdleTimeout:  0,
	}

	if _, err := s.cron.AddFunc("@every 1m", s.cache.Sweep); err != nil {
		return fmt.Errorf("cds: schedule sweep: %w", err)
	}
	s.cron.Start()

	slog.Info("starting cached data server", "addr", s.addr, "path", s.path)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("cached data server error", "error", err)
		}
	}()
	return nil
}

// Stop gracefully stops the websocket server and the retention sweep.
func (s *Server) Stop(ctx context.Context) error {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()

	if s.httpServer == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("cds: shutdown: %w", err)
	}
	slog.Info("cached data server stopped")
	return nil
}

// wireMessage is the envelope for every client<->server frame (spec §6).
type wireMessage struct {
	Type     string                      `json:"type"`
	Status   int                         `json:"status,omitempty"`
	Error    string                      `json:"error,omitempty"`
	Fields   []string                    `json:"fields,omitempty"`
	Data     *publishData                `json:"data,omitempty"`
	Describe map[string]FieldMetadata    `json:"describe,omitempty"`
	Sub      map[string]subscribeRequest `json:"subscribe,omitempty"`
}

type subscribeRequest struct {
	Seconds     float64 `json:"seconds"`
	BackRecords int     `json:"back_records,omitempty"`
}

type publishData struct {
	Timestamp float64                  `json:"timestamp,omitempty"`
	Fields    map[string]any           `json:"fields"`
	Metadata  map[string]FieldMetadata `json:"metadata,omitempty"`
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("cds: upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sub := &subscriberConn{conn: conn, cache: s.cache, ready: make(chan struct{}, 1)}
	sub.run()
}

// subscriberConn tracks one websocket client's subscription state and
// runs its ready/ack-gated push loop (spec §4.6).
type subscriberConn struct {
	conn  *websocket.Conn
	cache *Cache

	fields map[string]subscribeRequest
	cursor map[string]float64 // field -> last-sent timestamp (exclusive)
	ready  chan struct{}
}

func (s *subscriberConn) run() {
	for {
		var req struct {
			Type string `json:"type"`
			wireMessage
		}
		if err := s.conn.ReadJSON(&req); err != nil {
			return
		}
		switch req.Type {
		case "fields":
			s.respond(wireMessage{Type: "fields", Status: 200, Fields: s.cache.Fields()})
		case "describe":
			s.respond(wireMessage{Type: "describe", Status: 200, Describe: s.cache.Describe(req.Fields)})
		case "subscribe":
			s.subscribe(req.Sub)
		case "ready":
			select {
			case s.ready <- struct{}{}:
			default:
			}
		case "publish":
			s.publish(req.Data)
		default:
			s.respond(wireMessage{Type: req.Type, Status: 400, Error: fmt.Sprintf("unknown request type %q", req.Type)})
		}
	}
}

func (s *subscriberConn) respond(msg wireMessage) {
	if msg.Status == 0 {
		msg.Status = 200
	}
	if err := s.conn.WriteJSON(msg); err != nil {
		slog.Debug("cds: write failed", "error", err)
	}
}

// subscribe records the field interest set and starts the dispatch
// goroutine if this is the first subscribe on this connection.
func (s *subscriberConn) subscribe(fields map[string]subscribeRequest) {
	first := s.fields == nil
	s.fields = fields
	if s.cursor == nil {
		s.cursor = make(map[string]float64, len(fields))
	}
	now := float64(time.Now().UnixNano()) / 1e9
	for name, req := range fields {
		switch {
		case req.Seconds == 0:
			s.cursor[name] = now // future only
		case req.Seconds == -1:
			if latest, ok := s.cache.Latest(name); ok {
				s.cursor[name] = latest.Timestamp - 1
			} else {
				s.cursor[name] = now
			}
		default:
			s.cursor[name] = now - req.Seconds
		}
	}
	s.respond(wireMessage{Type: "subscribe", Status: 200})
	if first {
		go s.dispatchLoop()
	}
}

// dispatchLoop pushes newly-available samples for subscribed fields,
// waiting for a `ready` between batches (spec §4.6's per-subscriber
// backpressure).
func (s *subscriberConn) dispatchLoop() {
	s.ready <- struct{}{} // first batch may send without an explicit ready
	for {
		<-s.ready
		batch := map[string]any{}
		newest := map[string]float64{}
		for name, req := range s.fields {
			cutoff := s.cursor[name]
			samples := s.cache.Since(name, cutoff+1e-9, req.BackRecords)
			if len(samples) == 0 {
				continue
			}
			vals := make([][2]any, 0, len(samples))
			for _, sa := range samples {
				vals = append(vals, [2]any{sa.Timestamp, sa.Value})
			}
			batch[name] = vals
			newest[name] = samples[len(samples)-1].Timestamp
		}
		if len(batch) == 0 {
			// Nothing new yet: wait briefly then re-check rather than
			// spinning, still gated by the next `ready`.
			select {
			case s.ready <- struct{}{}:
			default:
			}
			time.Sleep(200 * time.Millisecond)
			continue
		}
		for name, ts := range newest {
			s.cursor[name] = ts
		}
		if err := s.conn.WriteJSON(wireMessage{
			Type:   "publish",
			Status: 200,
			Data:   &publishData{Fields: batch},
		}); err != nil {
			return
		}
	}
}

func (s *subscriberConn) publish(data *publishData) {
	if data == nil {
		s.respond(wireMessage{Type: "publish", Status: 400, Error: "missing data"})
		return
	}
	ts := data.Timestamp
	if ts == 0 {
		ts = float64(time.Now().UnixNano()) / 1e9
	}
	for name, v := range data.Fields {
		switch val := v.(type) {
		case []any:
			for _, pair := range val {
				p, ok := pair.([]any)
				if !ok || len(p) != 2 {
					continue
				}
				t, _ := p[0].(float64)
				s.cache.Publish(name, Sample{Timestamp: t, Value: p[1]})
			}
		default:
			s.cache.Publish(name, Sample{Timestamp: ts, Value: val})
		}
	}
	for name, md := range data.Metadata {
		s.cache.SetMetadata(name, md)
	}
	s.respond(wireMessage{Type: "publish", Status: 200})
}
