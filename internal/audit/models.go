// Package audit records every biometric operation for compliance review.
// Recording is strictly best-effort: a full buffer or a failing sink must
// never abort the operation being audited.
package audit

import (
	"context"
	"time"
)

// Operation names the engine action an event describes.
type Operation string

const (
	OpStore       Operation = "store"
	OpVerify      Operation = "verify"
	OpFindSimilar Operation = "find_similar"
	OpUpdate      Operation = "update"
	OpDelete      Operation = "delete"
	OpCapture     Operation = "capture"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Timestamp   time.Time
	RequestID   string
	Operation   Operation
	OwnerID     string
	EmbeddingID string
	SessionID   string
	Success     bool
	Error       string
}

// Store persists audit events. Append-only; events are never rewritten.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByOwner(ctx context.Context, ownerID string) ([]Event, error)
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}
