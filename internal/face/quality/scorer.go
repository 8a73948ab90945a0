// Package quality turns one detection plus its source frame into a scalar
// usability score in [0,1]. Scoring is pure: a bad crop degrades the score,
// it never fails the frame.
package quality

import (
	"image"

	"github.com/disintegration/imaging"

	"faceledger/internal/face/models"
)

// Fixed sub-score weights. Sharpness dominates because a blurry crop ruins
// the descriptor regardless of exposure or size.
const (
	weightSharpness  = 0.4
	weightBrightness = 0.3
	weightSize       = 0.3

	// referenceArea is the face box area (100x100 px) that earns a full size
	// sub-score.
	referenceArea = 100 * 100

	// sharpnessScale maps Laplacian variance onto [0,1]. Variance above this
	// value saturates the sharpness sub-score.
	sharpnessScale = 1000.0
)

// Scorer computes quality scores for detected faces.
type Scorer struct{}

// NewScorer returns a Scorer with the calibrated weights.
func NewScorer() *Scorer { return &Scorer{} }

// Score combines sharpness, brightness, and size into one quality value.
// An out-of-bounds or empty crop yields quality 0.
func (s *Scorer) Score(frame image.Image, det models.Detection) float64 {
	return s.Breakdown(frame, det).Overall
}

// Breakdown returns the individual sub-scores alongside the combined value so
// capture events can explain rejected frames.
func (s *Scorer) Breakdown(frame image.Image, det models.Detection) models.QualityBreakdown {
	crop := cropFace(frame, det.Box)
	if crop == nil {
		return models.QualityBreakdown{}
	}

	gray := imaging.Grayscale(crop)
	sharpness := clamp01(laplacianVariance(gray) / sharpnessScale)
	brightness := brightnessScore(gray)
	size := clamp01(float64(det.Box.Area()) / referenceArea)

	return models.QualityBreakdown{
		Sharpness:  sharpness,
		Brightness: brightness,
		Size:       size,
		Overall:    weightSharpness*sharpness + weightBrightness*brightness + weightSize*size,
	}
}

// cropFace extracts the face region. Returns nil when the box falls outside
// the frame or degenerates to an empty rectangle.
func cropFace(frame image.Image, box models.BoundingBox) *image.NRGBA {
	rect := box.Rect().Intersect(frame.Bounds())
	if rect.Empty() {
		return nil
	}
	return imaging.Crop(frame, rect)
}

// brightnessScore peaks at mid-gray and degrades linearly toward black or
// white: 1 - |meanLuma-128|/128.
func brightnessScore(gray *image.NRGBA) float64 {
	bounds := gray.Bounds()
	if bounds.Empty() {
		return 0
	}
	var sum float64
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		row := gray.Pix[(y-bounds.Min.Y)*gray.Stride:]
		for x := 0; x < bounds.Dx(); x++ {
			sum += float64(row[x*4]) // grayscale image: R == G == B
		}
	}
	mean := sum / float64(bounds.Dx()*bounds.Dy())
	score := 1 - abs(mean-128)/128
	return clamp01(score)
}

// laplacianVariance applies a 3x3 Laplacian kernel to the grayscale crop and
// returns the variance of the response. Higher variance means sharper edges.
func laplacianVariance(gray *image.NRGBA) float64 {
	w, h := gray.Bounds().Dx(), gray.Bounds().Dy()
	if w < 3 || h < 3 {
		return 0
	}

	luma := func(x, y int) float64 {
		return float64(gray.Pix[y*gray.Stride+x*4])
	}

	n := float64((w - 2) * (h - 2))
	var sum, sumSq float64
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			v := 4*luma(x, y) - luma(x-1, y) - luma(x+1, y) - luma(x, y-1) - luma(x, y+1)
			sum += v
			sumSq += v * v
		}
	}
	mean := sum / n
	return sumSq/n - mean*mean
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
