// Package loggermanager implements LoggerManagerWriter (spec §4.7): it
// receives command text records from a geofence/QC Transform, validates
// each against a whitelist of allowed command prefixes, and submits
// accepted ones fire-and-forget to the Logger Manager's JSON-RPC command
// socket — closing the data-driven control loop without coupling the
// pipeline engine to the manager itself (spec §9).
package loggermanager

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"rvdas.dev/logger/internal/record"
)

// defaultWhitelist covers the two command shapes spec §4.7's worked
// example names ("set_active_mode underway_mode").
var defaultWhitelist = []string{"set_active_mode", "set_active_logger_config"}

// Writer submits whitelisted command text records to a manager command
// socket. Writes never block on the manager's response: each command is
// sent and its connection closed without waiting to read a reply, per the
// "fire-and-forget" requirement.
type Writer struct {
	name       string
	socketPath string
	whitelist  []string

	mu       sync.Mutex
	rejected int
}

// New builds a Writer from kwargs: "socket" (required, the manager's
// command socket path) and optional "whitelist" ([]string of allowed
// command prefixes, replacing defaultWhitelist if given).
func New(kwargs map[string]any) (*Writer, error) {
	socketPath, _ := kwargs["socket"].(string)
	if socketPath == "" {
		return nil, fmt.Errorf("loggermanager writer: socket is required")
	}
	whitelist := defaultWhitelist
	if raw, ok := kwargs["whitelist"].([]any); ok {
		whitelist = make([]string, 0, len(raw))
		for _, v := range raw {
			if s, ok := v.(string); ok {
				whitelist = append(whitelist, s)
			}
		}
	}
	return &Writer{name: "loggermanager", socketPath: socketPath, whitelist: whitelist}, nil
}

func (w *Writer) Name() string                    { return w.name }
func (w *Writer) AcceptedKinds() []record.Kind    { return []record.Kind{record.KindText} }
func (w *Writer) ProducedKind() record.Kind       { return 0 }

// Write validates r's text against the whitelist and, if accepted, dials
// the command socket and submits it as a JSON-RPC request without waiting
// for the response (spec §7 CommandRejected: "unauthorized ... reported
// to caller" — here, counted and logged rather than surfaced to a remote
// caller, since this Writer has none).
func (w *Writer) Write(ctx context.Context, r record.Record) error {
	cmd := strings.TrimSpace(r.AsText())
	method, params, err := parseCommand(cmd, w.whitelist)
	if err != nil {
		w.mu.Lock()
		w.rejected++
		w.mu.Unlock()
		return fmt.Errorf("loggermanager writer: %w", err)
	}

	conn, err := net.DialTimeout("unix", w.socketPath, 2*time.Second)
	if err != nil {
		return fmt.Errorf("loggermanager writer: dial %q: %w", w.socketPath, err)
	}
	defer conn.Close()

	req := struct {
		Method string          `json:"method"`
		Params json.RawMessage `json:"params,omitempty"`
	}{Method: method, Params: params}

	enc := json.NewEncoder(conn)
	if err := enc.Encode(req); err != nil {
		return fmt.Errorf("loggermanager writer: send command: %w", err)
	}
	return nil
}

// parseCommand maps a whitespace-separated command string to a JSON-RPC
// method name and params, rejecting anything whose leading token isn't in
// whitelist.
func parseCommand(cmd string, whitelist []string) (method string, params json.RawMessage, err error) {
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return "", nil, fmt.Errorf("empty command")
	}
	verb := parts[0]
	allowed := false
	for _, w := range whitelist {
		if w == verb {
			allowed = true
			break
		}
	}
	if !allowed {
		return "", nil, fmt.Errorf("command %q not in whitelist", verb)
	}

	switch verb {
	case "set_active_mode":
		if len(parts) != 2 {
			return "", nil, fmt.Errorf("set_active_mode requires exactly one argument")
		}
		p, _ := json.Marshal(map[string]string{"mode": parts[1]})
		return "SetActiveMode", p, nil
	case "set_active_logger_config":
		if len(parts) != 3 {
			return "", nil, fmt.Errorf("set_active_logger_config requires exactly two arguments")
		}
		p, _ := json.Marshal(map[string]string{"logger": parts[1], "config": parts[2]})
		return "SetActiveLoggerConfig", p, nil
	default:
		// A custom whitelisted verb outside the two built-in shapes is
		// forwarded verbatim as method name with its remaining tokens as
		// a positional "args" array.
		args := parts[1:]
		p, _ := json.Marshal(map[string]any{"args": args})
		return verb, p, nil
	}
}

func (w *Writer) Flush(ctx context.Context) error { return nil }
func (w *Writer) Close() error                    { return nil }

// Rejected returns the count of commands rejected by the whitelist, for
// status reporting.
func (w *Writer) Rejected() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rejected
}
