// Package events publishes guest access link lifecycle events so other
// services (notifications, analytics) can follow link usage without polling
// the database.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Event types. The subject is "<prefix>.<type>".
const (
	TypeLinkIssued   = "link.issued"
	TypeLinkRevoked  = "link.revoked"
	TypeLinkAccessed = "link.accessed"
	TypeGuestExited  = "guest.exited"
)

// DefaultSubjectPrefix is used when NATSPublisher is given no prefix.
const DefaultSubjectPrefix = "promptshelf.guestlinks"

// Event is the JSON payload of every published message.
type Event struct {
	Type   string    `json:"type"`
	LinkID string    `json:"linkId,omitempty"`
	TeamID string    `json:"teamId"`
	Actor  string    `json:"actor,omitempty"`
	At     time.Time `json:"at"`
}

// Publisher sends events. Publish must not block on slow consumers.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// NATSPublisher publishes events as core NATS messages.
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
	log    *zap.Logger
}

// Connect dials url and returns the connection for NewNATSPublisher.
func Connect(url string, logger *zap.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("promptshelf"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return nc, nil
}

// NewNATSPublisher wraps an open connection.
func NewNATSPublisher(nc *nats.Conn, prefix string, logger *zap.Logger) *NATSPublisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSPublisher{nc: nc, prefix: prefix, log: logger}
}

// Subject returns the subject an event of type typ is published on.
func (p *NATSPublisher) Subject(typ string) string {
	return p.prefix + "." + typ
}

func (p *NATSPublisher) Publish(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.nc.Publish(p.Subject(ev.Type), data); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	return nil
}

// Recorder keeps published events in memory for tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, ev Event) error {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	return nil
}

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}
