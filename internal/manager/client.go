package manager

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"sync/atomic"
	"time"
)

// Client is a JSON-RPC-over-Unix-Domain-Socket client for a CommandServer,
// used by cmd/loggerctl. Grounded on internal/command's UDS client pattern:
// dial, encode one line, read one line back.
type Client struct {
	socketPath string
	timeout    time.Duration
	nextID     int64
}

// NewClient builds a Client bound to socketPath. Dialing happens per-Call,
// not at construction time.
func NewClient(socketPath string, timeout time.Duration) *Client {
	return &Client{socketPath: socketPath, timeout: timeout}
}

// Call sends one JSON-RPC request and waits for its response.
func (c *Client) Call(method string, params any, out any) error {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return fmt.Errorf("manager client: dial %q: %w", c.socketPath, err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(c.timeout))

	var raw json.RawMessage
	if params != nil {
		raw, err = json.Marshal(params)
		if err != nil {
			return fmt.Errorf("manager client: marshal params: %w", err)
		}
	}

	req := Request{Method: method, Params: raw, ID: atomic.AddInt64(&c.nextID, 1)}
	enc := json.NewEncoder(conn)
	if err := enc.Encode(req); err != nil {
		return fmt.Errorf("manager client: send %s: %w", method, err)
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("manager client: read response to %s: %w", method, err)
		}
		return fmt.Errorf("manager client: no response to %s", method)
	}

	var resp Response
	if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
		return fmt.Errorf("manager client: decode response to %s: %w", method, err)
	}
	if resp.Error != nil {
		return fmt.Errorf("manager client: %s: %s (code %d)", method, resp.Error.Message, resp.Error.Code)
	}
	if out == nil || resp.Result == nil {
		return nil
	}
	rawResult, err := json.Marshal(resp.Result)
	if err != nil {
		return fmt.Errorf("manager client: remarshal result of %s: %w", method, err)
	}
	return json.Unmarshal(rawResult, out)
}

// Ping checks the daemon is reachable by calling GetActiveMode, which every
// Manager answers cheaply regardless of state.
func (c *Client) Ping() error {
	var mode string
	return c.Call("GetActiveMode", nil, &mode)
}
