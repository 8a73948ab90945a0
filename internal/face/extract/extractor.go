// Package extract turns a detected face region into a validated, normalized
// embedding via the external descriptor capability.
package extract

import (
	"context"
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"faceledger/internal/face/detect"
	"faceledger/internal/face/models"
	"faceledger/internal/face/quality"
)

// DefaultPaddingPx is the symmetric crop padding applied around a detection
// before descriptor extraction.
const DefaultPaddingPx = 20

// Extractor crops a padded face region, runs the descriptor capability, and
// validates and normalizes the result.
type Extractor struct {
	detector detect.Detector
	scorer   *quality.Scorer
	padding  int
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithPadding overrides the symmetric crop padding in pixels.
func WithPadding(px int) Option {
	return func(e *Extractor) {
		if px >= 0 {
			e.padding = px
		}
	}
}

// New constructs an Extractor.
func New(detector detect.Detector, scorer *quality.Scorer, opts ...Option) (*Extractor, error) {
	if detector == nil {
		return nil, fmt.Errorf("detector is required")
	}
	if scorer == nil {
		return nil, fmt.Errorf("quality scorer is required")
	}
	e := &Extractor{detector: detector, scorer: scorer, padding: DefaultPaddingPx}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e, nil
}

// Result is one successful extraction.
type Result struct {
	Embedding models.Embedding
	Detection models.Detection
	Quality   float64
}

// Extract produces a normalized embedding for the given detection within the
// frame. The crop is padded symmetrically and clamped to the frame bounds.
// If the descriptor capability finds no face in the padded crop (padding can
// introduce occlusion), it returns models.ErrNoFaceDetected. The engine never
// substitutes a fabricated vector.
func (e *Extractor) Extract(ctx context.Context, frame image.Image, det models.Detection) (*Result, error) {
	if err := e.detector.Ready(); err != nil {
		return nil, err
	}
	if err := det.Validate(); err != nil {
		return nil, err
	}

	padded := det.Box.Pad(e.padding, frame.Bounds())
	if padded.Area() == 0 {
		return nil, fmt.Errorf("%w: detection outside frame bounds", models.ErrNoFaceDetected)
	}
	crop := imaging.Crop(frame, padded.Rect())

	_, raw, err := e.detector.DetectWithDescriptor(ctx, crop)
	if err != nil {
		return nil, err
	}

	normalized, err := raw.Normalized()
	if err != nil {
		return nil, err
	}

	return &Result{
		Embedding: normalized,
		Detection: det,
		Quality:   e.scorer.Score(frame, det),
	}, nil
}

// ExtractBest selects the best candidate among the frame's detections and
// extracts from it. Fails with models.ErrNoFaceDetected when the slice is
// empty.
func (e *Extractor) ExtractBest(ctx context.Context, frame image.Image, dets []models.Detection) (*Result, error) {
	best, ok := e.SelectBest(frame, dets)
	if !ok {
		return nil, models.ErrNoFaceDetected
	}
	return e.Extract(ctx, frame, best)
}

// SelectBest applies the multi-candidate policy: highest quality wins, ties
// broken by larger box area, then by earliest index in detection order. The
// selection is fully deterministic.
func (e *Extractor) SelectBest(frame image.Image, dets []models.Detection) (models.Detection, bool) {
	if len(dets) == 0 {
		return models.Detection{}, false
	}

	bestIdx := 0
	bestScore := e.scorer.Score(frame, dets[0])
	for i := 1; i < len(dets); i++ {
		score := e.scorer.Score(frame, dets[i])
		switch {
		case score > bestScore:
			bestIdx, bestScore = i, score
		case score == bestScore && dets[i].Box.Area() > dets[bestIdx].Box.Area():
			bestIdx = i
		}
	}
	return dets[bestIdx], true
}
