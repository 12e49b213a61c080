// Package notify delivers owner-addressed messages.
package notify

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"solana-sweeper/internal/observability"
)

// Kind classifies a message.
type Kind string

const (
	KindDeposit        Kind = "deposit"
	KindForwardSuccess Kind = "forward_success"
	KindForwardFailure Kind = "forward_failure"
	KindReport         Kind = "report"
	KindSession        Kind = "session"
)

// Message is one notification for an owner.
type Message struct {
	Owner string    `json:"owner"`
	Kind  Kind      `json:"kind"`
	Text  string    `json:"text"`
	Time  time.Time `json:"time"`

	// Optional structured context, published by machine-facing notifiers.
	Account   string `json:"account,omitempty"`
	Lamports  uint64 `json:"lamports,omitempty"`
	Signature string `json:"signature,omitempty"`
}

// Notifier delivers messages.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// Send stamps the message time, delivers it and records the outcome.
func Send(ctx context.Context, n Notifier, msg Message) error {
	if msg.Time.IsZero() {
		msg.Time = time.Now().UTC()
	}
	err := n.Notify(ctx, msg)
	observability.RecordNotify(string(msg.Kind), err)
	return err
}

// Multi fans a message out to every notifier. All notifiers are tried;
// the joined error reports every failure.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, msg Message) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Log writes messages to a logger.
type Log struct {
	logger *log.Logger
}

// NewLog creates a Log notifier. A nil logger uses log.Default().
func NewLog(logger *log.Logger) *Log {
	if logger == nil {
		logger = log.Default()
	}
	return &Log{logger: logger}
}

// Notify implements Notifier.
func (l *Log) Notify(_ context.Context, msg Message) error {
	l.logger.Printf("owner=%s kind=%s %q", msg.Owner, msg.Kind, msg.Text)
	return nil
}

// Recorder keeps every message in memory.
type Recorder struct {
	mu   sync.Mutex
	msgs []Message
}

// Notify implements Notifier.
func (r *Recorder) Notify(_ context.Context, msg Message) error {
	r.mu.Lock()
	r.msgs = append(r.msgs, msg)
	r.mu.Unlock()
	return nil
}

// Messages returns a copy of the recorded messages.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.msgs))
	copy(out, r.msgs)
	return out
}

// OfKind returns the recorded messages of kind k.
func (r *Recorder) OfKind(k Kind) []Message {
	var out []Message
	for _, m := range r.Messages() {
		if m.Kind == k {
			out = append(out, m)
		}
	}
	return out
}

// Reset drops every recorded message.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.msgs = nil
	r.mu.Unlock()
}

var (
	_ Notifier = Multi(nil)
	_ Notifier = (*Log)(nil)
	_ Notifier = (*Recorder)(nil)
)
