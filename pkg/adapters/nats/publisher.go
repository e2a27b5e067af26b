// Package nats publishes wizard events to a NATS subject per thread.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nats-io/nats.go"

	"github.com/aretw0/canvas/internal/logging"
	"github.com/aretw0/canvas/pkg/domain"
	"github.com/aretw0/canvas/pkg/ports"
)

// DefaultSubjectPrefix is used when no prefix is configured.
const DefaultSubjectPrefix = "canvas.advance"

// Conn is the part of *nats.Conn the publisher uses.
type Conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// Publisher implements ports.EventPublisher on top of NATS core publish.
type Publisher struct {
	conn   Conn
	prefix string
	logger *slog.Logger
}

var _ ports.EventPublisher = (*Publisher)(nil)

// Option configures a Publisher.
type Option func(*Publisher)

// WithSubjectPrefix sets the subject prefix. Events go to "<prefix>.<thread_id>".
func WithSubjectPrefix(prefix string) Option {
	return func(p *Publisher) {
		if prefix = strings.Trim(prefix, ". "); prefix != "" {
			p.prefix = prefix
		}
	}
}

// WithLogger sets the publisher logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// New connects to url and returns a Publisher owning the connection.
func New(url string, opts ...Option) (*Publisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("canvas"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return NewFromConn(conn, opts...), nil
}

// NewFromConn wraps an existing connection.
func NewFromConn(conn Conn, opts ...Option) *Publisher {
	p := &Publisher{
		conn:   conn,
		prefix: DefaultSubjectPrefix,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = logging.NewNop()
	}
	return p
}

// Subject returns the subject events of threadID are published on.
func (p *Publisher) Subject(threadID string) string {
	return p.prefix + "." + subjectToken(threadID)
}

// Publish sends the event as JSON. NATS publish is fire-and-forget, so ctx
// is only checked before sending.
func (p *Publisher) Publish(ctx context.Context, event *domain.AdvanceEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding advance event: %w", err)
	}
	subject := p.Subject(event.ThreadID)
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	p.logger.Debug("published advance", "subject", subject, "thread_id", event.ThreadID)
	return nil
}

// Close drains pending messages and closes the connection.
func (p *Publisher) Close() error {
	return p.conn.Drain()
}

// subjectToken makes threadID a single subject token.
func subjectToken(threadID string) string {
	if threadID == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, threadID)
}
