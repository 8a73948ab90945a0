package extract

import (
	"context"
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"faceledger/internal/face/detect/mocks"
	"faceledger/internal/face/models"
	"faceledger/internal/face/quality"
)

// =============================================================================
// Extractor Test Suite
// =============================================================================
// Justification for unit tests: extraction is the bridge between the capture
// pipeline and the store. Padding/clamping, descriptor validation, the
// no-fallback rule, and the deterministic candidate policy all live here.

type ExtractorSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	detector *mocks.MockDetector
	scorer   *quality.Scorer
}

func TestExtractorSuite(t *testing.T) {
	suite.Run(t, new(ExtractorSuite))
}

func (s *ExtractorSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.detector = mocks.NewMockDetector(s.ctrl)
	s.scorer = quality.NewScorer()
}

func (s *ExtractorSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *ExtractorSuite) newExtractor(opts ...Option) *Extractor {
	e, err := New(s.detector, s.scorer, opts...)
	s.Require().NoError(err)
	return e
}

// grayFrame returns a mid-gray frame so quality scoring behaves predictably.
func grayFrame(w, h int) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 128, G: 128, B: 128, A: 255})
		}
	}
	return img
}

func rawVector() models.Embedding {
	vec := make(models.Embedding, models.Dimension)
	for i := range vec {
		vec[i] = float64(i + 1)
	}
	return vec
}

func (s *ExtractorSuite) TestNew() {
	s.Run("nil detector returns error", func() {
		_, err := New(nil, s.scorer)
		s.Error(err)
	})

	s.Run("nil scorer returns error", func() {
		_, err := New(s.detector, nil)
		s.Error(err)
	})
}

func (s *ExtractorSuite) TestExtract() {
	ctx := context.Background()
	frame := grayFrame(200, 200)
	det := models.Detection{
		Box:        models.BoundingBox{X: 60, Y: 60, Width: 80, Height: 80},
		Confidence: 0.9,
	}

	s.Run("returns a unit-norm embedding", func() {
		s.detector.EXPECT().Ready().Return(nil)
		s.detector.EXPECT().
			DetectWithDescriptor(gomock.Any(), gomock.Any()).
			Return(det, rawVector(), nil)

		e := s.newExtractor()
		res, err := e.Extract(ctx, frame, det)
		s.Require().NoError(err)
		s.InDelta(1.0, res.Embedding.Norm(), models.NormEpsilon)
		s.Len(res.Embedding, models.Dimension)
	})

	s.Run("pads the crop symmetrically and clamps to bounds", func() {
		s.detector.EXPECT().Ready().Return(nil)
		s.detector.EXPECT().
			DetectWithDescriptor(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, region image.Image) (models.Detection, models.Embedding, error) {
				// 80x80 box + 20px padding on each side.
				s.Equal(120, region.Bounds().Dx())
				s.Equal(120, region.Bounds().Dy())
				return det, rawVector(), nil
			})

		e := s.newExtractor()
		_, err := e.Extract(ctx, frame, det)
		s.NoError(err)
	})

	s.Run("clamps padding at the frame edge", func() {
		edge := models.Detection{
			Box:        models.BoundingBox{X: 0, Y: 0, Width: 50, Height: 50},
			Confidence: 0.9,
		}
		s.detector.EXPECT().Ready().Return(nil)
		s.detector.EXPECT().
			DetectWithDescriptor(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, region image.Image) (models.Detection, models.Embedding, error) {
				// Padding cannot extend above or left of the frame.
				s.Equal(70, region.Bounds().Dx())
				s.Equal(70, region.Bounds().Dy())
				return edge, rawVector(), nil
			})

		e := s.newExtractor()
		_, err := e.Extract(ctx, frame, edge)
		s.NoError(err)
	})

	s.Run("no face in padded crop surfaces ErrNoFaceDetected", func() {
		s.detector.EXPECT().Ready().Return(nil)
		s.detector.EXPECT().
			DetectWithDescriptor(gomock.Any(), gomock.Any()).
			Return(models.Detection{}, nil, models.ErrNoFaceDetected)

		e := s.newExtractor()
		_, err := e.Extract(ctx, frame, det)
		s.ErrorIs(err, models.ErrNoFaceDetected)
	})

	s.Run("model not ready fails fast without fabricating a vector", func() {
		s.detector.EXPECT().Ready().Return(models.ErrModelUnavailable)

		e := s.newExtractor()
		_, err := e.Extract(ctx, frame, det)
		s.ErrorIs(err, models.ErrModelUnavailable)
	})

	s.Run("degenerate descriptor is rejected never stored", func() {
		s.detector.EXPECT().Ready().Return(nil)
		bad := make(models.Embedding, models.Dimension)
		bad[3] = math.NaN()
		s.detector.EXPECT().
			DetectWithDescriptor(gomock.Any(), gomock.Any()).
			Return(det, bad, nil)

		e := s.newExtractor()
		_, err := e.Extract(ctx, frame, det)
		s.ErrorIs(err, models.ErrInvalidEmbedding)
	})

	s.Run("wrong dimension descriptor is rejected", func() {
		s.detector.EXPECT().Ready().Return(nil)
		s.detector.EXPECT().
			DetectWithDescriptor(gomock.Any(), gomock.Any()).
			Return(det, models.Embedding{1, 2, 3}, nil)

		e := s.newExtractor()
		_, err := e.Extract(ctx, frame, det)
		s.ErrorIs(err, models.ErrInvalidEmbedding)
	})
}

func (s *ExtractorSuite) TestSelectBest() {
	frame := grayFrame(300, 300)

	s.Run("empty slice selects nothing", func() {
		e := s.newExtractor()
		_, ok := e.SelectBest(frame, nil)
		s.False(ok)
	})

	s.Run("higher quality wins", func() {
		small := models.Detection{Box: models.BoundingBox{X: 10, Y: 10, Width: 20, Height: 20}, Confidence: 0.9}
		large := models.Detection{Box: models.BoundingBox{X: 100, Y: 100, Width: 100, Height: 100}, Confidence: 0.9}

		e := s.newExtractor()
		best, ok := e.SelectBest(frame, []models.Detection{small, large})
		s.True(ok)
		s.Equal(large, best)
	})

	s.Run("quality tie broken by larger area then earliest index", func() {
		// Both boxes exceed the reference area on a uniform frame, so their
		// quality scores are identical.
		a := models.Detection{Box: models.BoundingBox{X: 0, Y: 0, Width: 120, Height: 120}, Confidence: 0.9}
		b := models.Detection{Box: models.BoundingBox{X: 150, Y: 150, Width: 140, Height: 140}, Confidence: 0.9}
		aTwin := models.Detection{Box: models.BoundingBox{X: 30, Y: 30, Width: 120, Height: 120}, Confidence: 0.8}

		e := s.newExtractor()
		best, ok := e.SelectBest(frame, []models.Detection{a, b})
		s.True(ok)
		s.Equal(b, best, "larger area wins the tie")

		best, ok = e.SelectBest(frame, []models.Detection{a, aTwin})
		s.True(ok)
		s.Equal(a, best, "equal area falls back to detection order")
	})
}

func (s *ExtractorSuite) TestExtractBest() {
	ctx := context.Background()
	frame := grayFrame(200, 200)

	s.Run("empty detections fail with ErrNoFaceDetected", func() {
		e := s.newExtractor()
		_, err := e.ExtractBest(ctx, frame, nil)
		s.ErrorIs(err, models.ErrNoFaceDetected)
	})
}
