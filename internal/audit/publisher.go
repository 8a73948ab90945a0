package audit

import (
	"context"
	"log/slog"
	"time"

	"faceledger/internal/platform/middleware"
)

// DropCounter counts events lost to a full buffer. Satisfied by the platform
// metrics registry; nil disables counting.
type DropCounter interface {
	IncrementAuditDropped()
}

// Publisher accepts events from domain logic and hands them to the worker
// through a bounded inbox. Emit never blocks: when the inbox is full the
// event is dropped and counted, and the caller proceeds untouched.
type Publisher struct {
	inbox chan Event
	log   *slog.Logger
	drops DropCounter
	clock func() time.Time
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithDropCounter wires the dropped-event metric.
func WithDropCounter(c DropCounter) PublisherOption {
	return func(p *Publisher) { p.drops = c }
}

// WithPublisherClock sets the clock function for testability.
func WithPublisherClock(clock func() time.Time) PublisherOption {
	return func(p *Publisher) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// NewPublisher builds a publisher with the given inbox capacity.
func NewPublisher(buffer int, log *slog.Logger, opts ...PublisherOption) *Publisher {
	if buffer <= 0 {
		buffer = 256
	}
	p := &Publisher{
		inbox: make(chan Event, buffer),
		log:   log,
		clock: time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Inbox is the channel the worker consumes.
func (p *Publisher) Inbox() <-chan Event { return p.inbox }

// Emit queues an event, stamping the timestamp and request ID when absent.
// It has no error return on purpose: auditing is an observer of the
// operation, never a gate on it.
func (p *Publisher) Emit(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = p.clock()
	}
	if event.RequestID == "" {
		event.RequestID = middleware.GetRequestID(ctx)
	}

	select {
	case p.inbox <- event:
	default:
		if p.drops != nil {
			p.drops.IncrementAuditDropped()
		}
		p.log.Warn("audit inbox full, dropping event",
			"operation", event.Operation, "owner_id", event.OwnerID)
	}
}
