package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and device layers return
// these (optionally wrapped) so services can translate them into domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: record does not exist in the embedding store
// - ErrConflict: record or camera lease already held by someone else
// - ErrInvalidState: entity in wrong state for requested operation
// - ErrUnavailable: store, device, or model temporarily unavailable
//
// For validation errors (bad input, malformed vectors), use pkg/domain-errors.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
