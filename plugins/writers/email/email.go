// Package email implements EmailWriter: batches record text and sends it
// as one plain-text email each time the writer is flushed (spec §6's
// `--write_email` CLI flag). There is no timed send and no alert-pattern
// match; Write only appends to the pending batch.
//
// Uses net/smtp: no example repo in the retrieval pack wires an SMTP
// client library, and net/smtp's PlainAuth + SendMail cover this need
// directly, so no third-party mail library is justified here.
package email

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"sync"
	"time"

	"rvdas.dev/logger/internal/record"
	"rvdas.dev/logger/internal/registry"
	"rvdas.dev/logger/internal/stage"
)

func init() {
	registry.RegisterWriter("email", New)
}

// Writer accumulates lines and sends them as a single email body on each
// Flush.
type Writer struct {
	smtpAddr string
	auth     smtp.Auth
	from     string
	to       []string
	subject  string

	mu      sync.Mutex
	pending strings.Builder
}

// New builds a Writer from kwargs: "smtp_host", "smtp_port", "username",
// "password", "from", "to" ([]string), optional "subject" (default
// "logger alert").
func New(kwargs map[string]any) (stage.Writer, error) {
	host, _ := kwargs["smtp_host"].(string)
	port, _ := kwargs["smtp_port"].(string)
	username, _ := kwargs["username"].(string)
	password, _ := kwargs["password"].(string)
	from, _ := kwargs["from"].(string)
	subject := "logger alert"
	if v, ok := kwargs["subject"].(string); ok && v != "" {
		subject = v
	}
	if host == "" || from == "" {
		return nil, fmt.Errorf("email writer: smtp_host and from are required")
	}
	var to []string
	switch v := kwargs["to"].(type) {
	case []string:
		to = v
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				to = append(to, s)
			}
		}
	}
	if len(to) == 0 {
		return nil, fmt.Errorf("email writer: to is required")
	}
	if port == "" {
		port = "587"
	}

	return &Writer{
		smtpAddr: host + ":" + port,
		auth:     smtp.PlainAuth("", username, password, host),
		from:     from,
		to:       to,
		subject:  subject,
	}, nil
}

func (w *Writer) Name() string                 { return "email:" + strings.Join(w.to, ",") }
func (w *Writer) AcceptedKinds() []record.Kind { return nil }
func (w *Writer) ProducedKind() record.Kind    { return 0 }

func (w *Writer) Write(ctx context.Context, r record.Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending.WriteString(r.AsText())
	w.pending.WriteByte('\n')
	return nil
}

func (w *Writer) Flush(ctx context.Context) error {
	w.mu.Lock()
	body := w.pending.String()
	w.pending.Reset()
	w.mu.Unlock()

	if strings.TrimSpace(body) == "" {
		return nil
	}

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nDate: %s\r\n\r\n%s",
		w.from, strings.Join(w.to, ","), w.subject, time.Now().UTC().Format(time.RFC1123Z), body)

	if err := smtp.SendMail(w.smtpAddr, w.auth, w.from, w.to, []byte(msg)); err != nil {
		return fmt.Errorf("email writer: send: %w", err)
	}
	return nil
}

func (w *Writer) Close() error { return nil }
