package capture

import (
	"context"
	"image"
)

// Camera is the device handle a session exclusively owns for its lifetime.
// Implementations map driver failures onto the engine taxonomy:
// models.ErrCameraAccessDenied when the device refuses access and
// models.ErrDeviceUnavailable when no usable device exists.
type Camera interface {
	// Acquire opens the device. Called exactly once, before the first frame.
	Acquire(ctx context.Context) error

	// ReadFrame returns the current frame. Called once per tick.
	ReadFrame(ctx context.Context) (image.Image, error)

	// Release closes the device. Safe to call after a failed Acquire.
	Release() error
}
