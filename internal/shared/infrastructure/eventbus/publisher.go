package eventbus

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Envelope is one event on its way to the broker: the JSON payload plus
// the identifiers consumers use for deduplication and tracing.
type Envelope struct {
	MessageID     string
	RoutingKey    string
	CorrelationID string
	UserID        string
	OccurredAt    time.Time
	Payload       []byte
}

// Publisher delivers envelopes to a message broker.
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
	Close() error
}

// NoopPublisher drops every envelope. Used in local mode where no broker is
// configured.
type NoopPublisher struct {
	logger *slog.Logger
}

// NewNoopPublisher creates a publisher that does nothing.
func NewNoopPublisher(logger *slog.Logger) *NoopPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &NoopPublisher{logger: logger}
}

func (p *NoopPublisher) Publish(ctx context.Context, env Envelope) error {
	p.logger.DebugContext(ctx, "noop publish",
		"routing_key", env.RoutingKey,
		"message_id", env.MessageID,
		"size", len(env.Payload),
	)
	return nil
}

func (p *NoopPublisher) Close() error {
	return nil
}

// RecordingPublisher keeps every published envelope in memory.
type RecordingPublisher struct {
	mu        sync.Mutex
	envelopes []Envelope
	// Err, when set, is returned from Publish instead of recording.
	Err error
}

// NewRecordingPublisher creates an empty recording publisher.
func NewRecordingPublisher() *RecordingPublisher {
	return &RecordingPublisher{}
}

func (p *RecordingPublisher) Publish(_ context.Context, env Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	env.Payload = append([]byte(nil), env.Payload...)
	p.envelopes = append(p.envelopes, env)
	return nil
}

func (p *RecordingPublisher) Close() error {
	return nil
}

// Messages returns a copy of the recorded envelopes.
func (p *RecordingPublisher) Messages() []Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Envelope, len(p.envelopes))
	copy(out, p.envelopes)
	return out
}
