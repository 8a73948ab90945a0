package detect

import (
	"context"
	"image"
	"log/slog"
	"math"

	"faceledger/internal/face/models"
)

// Simulated is a development-only detector. It is wired ONLY when the
// simulated-detector config flag is set explicitly; the production path never
// falls back to it, because a fabricated descriptor can fake a verification.
//
// Descriptors are derived deterministically from image content so dev flows
// are reproducible; no randomness is involved.
type Simulated struct {
	log *slog.Logger
}

// NewSimulated constructs the simulated detector and logs a warning so its
// presence is never silent.
func NewSimulated(log *slog.Logger) *Simulated {
	log.Warn("simulated face detector enabled; embeddings are NOT biometric data")
	return &Simulated{log: log}
}

// Ready always succeeds: the simulated detector has no model to load.
func (s *Simulated) Ready() error { return nil }

// Detect reports one centered face covering the middle two-thirds of the
// frame, or nothing when the frame is too small to hold a face.
func (s *Simulated) Detect(_ context.Context, frame image.Image) ([]models.Detection, error) {
	b := frame.Bounds()
	if b.Dx() < 48 || b.Dy() < 48 {
		return nil, nil
	}
	w, h := b.Dx()*2/3, b.Dy()*2/3
	return []models.Detection{{
		Box: models.BoundingBox{
			X:      b.Min.X + (b.Dx()-w)/2,
			Y:      b.Min.Y + (b.Dy()-h)/2,
			Width:  w,
			Height: h,
		},
		Confidence: 0.95,
	}}, nil
}

// DetectWithDescriptor derives a unit-normalized descriptor from coarse image
// statistics. Identical regions produce identical descriptors.
func (s *Simulated) DetectWithDescriptor(ctx context.Context, region image.Image) (models.Detection, models.Embedding, error) {
	dets, err := s.Detect(ctx, region)
	if err != nil {
		return models.Detection{}, nil, err
	}
	if len(dets) == 0 {
		return models.Detection{}, nil, models.ErrNoFaceDetected
	}

	vec := descriptorFromContent(region)
	normalized, err := vec.Normalized()
	if err != nil {
		return models.Detection{}, nil, err
	}
	return dets[0], normalized, nil
}

// descriptorFromContent buckets the region into a Dimension-cell grid of mean
// luma values. Crude, but stable under identical input, which is all a dev
// flow needs.
func descriptorFromContent(region image.Image) models.Embedding {
	b := region.Bounds()
	vec := make(models.Embedding, models.Dimension)

	// 16x8 grid over the region.
	const cols, rows = 16, 8
	cellW := float64(b.Dx()) / cols
	cellH := float64(b.Dy()) / rows

	for cy := 0; cy < rows; cy++ {
		for cx := 0; cx < cols; cx++ {
			x0 := b.Min.X + int(float64(cx)*cellW)
			y0 := b.Min.Y + int(float64(cy)*cellH)
			x1 := b.Min.X + int(float64(cx+1)*cellW)
			y1 := b.Min.Y + int(float64(cy+1)*cellH)

			var sum, n float64
			for y := y0; y < y1; y++ {
				for x := x0; x < x1; x++ {
					r, g, bb, _ := region.At(x, y).RGBA()
					sum += 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(bb>>8)
					n++
				}
			}
			idx := cy*cols + cx
			if n > 0 {
				// Centering around mid-gray keeps descriptors from collapsing
				// toward a single direction.
				vec[idx] = sum/n - 128
			}
		}
	}

	// A perfectly uniform mid-gray region would produce the zero vector;
	// nudge one component so the result stays valid.
	allZero := true
	for _, v := range vec {
		if math.Abs(v) > 1e-9 {
			allZero = false
			break
		}
	}
	if allZero {
		vec[0] = 1
	}
	return vec
}
