package capture

import (
	"context"
	"image"
	"image/color"
	"sync"

	"faceledger/internal/face/models"
)

// SimulatedCamera is a development-only Camera that synthesizes frames. Like
// the simulated detector it is wired only behind the explicit dev flag; it
// exists so the capture loop can be exercised without hardware.
type SimulatedCamera struct {
	mu       sync.Mutex
	acquired bool
	frame    *image.NRGBA
}

// NewSimulatedCamera builds a camera producing a fixed synthetic frame with a
// textured center region the simulated detector will report as a face.
func NewSimulatedCamera() *SimulatedCamera {
	img := image.NewNRGBA(image.Rect(0, 0, 320, 240))
	for y := 0; y < 240; y++ {
		for x := 0; x < 320; x++ {
			level := uint8(128)
			// Texture inside the center region so sharpness scores non-zero.
			if x > 80 && x < 240 && y > 40 && y < 200 && (x+y)%3 == 0 {
				level = 90
			}
			img.SetNRGBA(x, y, color.NRGBA{R: level, G: level, B: level, A: 255})
		}
	}
	return &SimulatedCamera{frame: img}
}

func (c *SimulatedCamera) Acquire(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.acquired {
		return models.ErrDeviceUnavailable
	}
	c.acquired = true
	return nil
}

func (c *SimulatedCamera) ReadFrame(ctx context.Context) (image.Image, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.acquired {
		return nil, models.ErrDeviceUnavailable
	}
	return c.frame, nil
}

func (c *SimulatedCamera) Release() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.acquired = false
	return nil
}
