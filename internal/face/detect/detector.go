// Package detect defines the external detector capability consumed by the
// engine. The real model runtime lives outside this module; the engine only
// depends on this narrow contract.
package detect

//go:generate mockgen -source=detector.go -destination=mocks/mocks.go -package=mocks Detector

import (
	"context"
	"image"

	"faceledger/internal/face/models"
)

// Detector is the black-box face detection capability: given an image region,
// return zero or more detections, optionally with a fixed-length descriptor.
type Detector interface {
	// Detect returns every face found in the frame. An empty slice is a
	// normal outcome, not an error.
	Detect(ctx context.Context, frame image.Image) ([]models.Detection, error)

	// DetectWithDescriptor runs detection plus descriptor extraction on a
	// (typically cropped) region. Returns models.ErrNoFaceDetected when the
	// region contains no face.
	DetectWithDescriptor(ctx context.Context, region image.Image) (models.Detection, models.Embedding, error)

	// Ready reports whether the descriptor capability is loaded. Returns
	// models.ErrModelUnavailable when it is not; the engine fails fast
	// rather than fabricating embeddings.
	Ready() error
}
