package models

import "errors"

// Error taxonomy for the face engine. Callers branch on these with errors.Is;
// services wrap them with pkg/domain-errors codes at transport boundaries.
var (
	// ErrNoFaceDetected is recoverable: the caller retries with a new frame.
	ErrNoFaceDetected = errors.New("no face detected")

	// ErrInvalidEmbedding covers dimension mismatch, NaN/Inf components, and
	// the zero vector. Such vectors are never stored.
	ErrInvalidEmbedding = errors.New("invalid embedding")

	// ErrCameraAccessDenied means the device exists but access was refused.
	ErrCameraAccessDenied = errors.New("camera access denied")

	// ErrDeviceUnavailable means no usable capture device was found.
	ErrDeviceUnavailable = errors.New("capture device unavailable")

	// ErrModelUnavailable means the descriptor capability is not ready. The
	// engine fails fast instead of substituting a fabricated embedding.
	ErrModelUnavailable = errors.New("descriptor model unavailable")

	// ErrStoreUnavailable means the embedding store could not be reached.
	// Verification fails safe with an explicit "could not check" result.
	ErrStoreUnavailable = errors.New("embedding store unavailable")
)
