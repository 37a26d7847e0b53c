// Package serial implements SerialReader: reads newline-delimited text
// from a serial port. The port is abstracted behind io.ReadWriteCloser
// so the reader is testable without real hardware; New opens a real
// port through the package-level PortFactory when one is set, and
// otherwise (with no "conn" kwarg) returns an error — no real serial transport library is
// wired by default since the teacher's go.mod carries none, but
// production use is expected to inject one (e.g. go.bug.st/serial's
// Open) through PortFactory (see DESIGN.md's dropped-dependency note).
package serial

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"rvdas.dev/logger/internal/record"
	"rvdas.dev/logger/internal/registry"
	"rvdas.dev/logger/internal/stage"
)

func init() {
	registry.RegisterReader("serial", New)
}

// PortFactory opens a serial port given a device path and baud rate.
// Nothing in this module sets it; it defaults to nil, which makes New
// return an error telling the caller how to wire one in.
var PortFactory func(device string, baud int) (io.ReadWriteCloser, error)

// Reader reads lines from an injected io.ReadWriteCloser.
type Reader struct {
	device  string
	port    io.ReadWriteCloser
	scanner *bufio.Scanner
}

// New builds a Reader from kwargs: "port" (required, device path, e.g.
// "/dev/ttyUSB0"), optional "baud" (default 4800), and optional "conn"
// (an io.ReadWriteCloser, used directly by tests instead of calling
// PortFactory).
func New(kwargs map[string]any) (stage.Reader, error) {
	device, _ := kwargs["port"].(string)
	if device == "" {
		return nil, fmt.Errorf("serial reader: port is required")
	}
	baud := 4800
	if v, ok := kwargs["baud"].(int); ok {
		baud = v
	}

	if conn, ok := kwargs["conn"].(io.ReadWriteCloser); ok {
		return newWithPort(device, conn), nil
	}

	if PortFactory == nil {
		return nil, fmt.Errorf("serial reader: no serial.PortFactory registered; inject one at startup or pass a \"conn\" kwarg")
	}
	port, err := PortFactory(device, baud)
	if err != nil {
		return nil, fmt.Errorf("serial reader: open %s: %w", device, err)
	}
	return newWithPort(device, port), nil
}

func newWithPort(device string, port io.ReadWriteCloser) *Reader {
	return &Reader{device: device, port: port, scanner: bufio.NewScanner(port)}
}

func (r *Reader) Name() string                 { return "serial:" + r.device }
func (r *Reader) AcceptedKinds() []record.Kind { return nil }
func (r *Reader) ProducedKind() record.Kind    { return record.KindText }

func (r *Reader) Read(ctx context.Context) (record.Record, error) {
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return record.Record{}, fmt.Errorf("serial reader: read %s: %w", r.device, err)
		}
		return record.Record{}, io.EOF
	}
	return record.NewText(r.Name(), r.scanner.Text()), nil
}

func (r *Reader) Close() error { return r.port.Close() }
