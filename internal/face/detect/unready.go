package detect

import (
	"context"
	"fmt"
	"image"

	"faceledger/internal/face/models"
)

// Unready is the detector wired when no model runtime is configured. Every
// call fails with models.ErrModelUnavailable, so capture sessions refuse to
// start instead of running against nothing. Enrollment and verification over
// pre-extracted embeddings keep working.
type Unready struct {
	reason string
}

// NewUnready returns a detector that reports the model as unavailable.
func NewUnready(reason string) *Unready {
	return &Unready{reason: reason}
}

func (u *Unready) Ready() error {
	return fmt.Errorf("%w: %s", models.ErrModelUnavailable, u.reason)
}

func (u *Unready) Detect(context.Context, image.Image) ([]models.Detection, error) {
	return nil, u.Ready()
}

func (u *Unready) DetectWithDescriptor(context.Context, image.Image) (models.Detection, models.Embedding, error) {
	return models.Detection{}, nil, u.Ready()
}
