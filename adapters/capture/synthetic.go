package capture

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/segstream/domain/entities"
	"github.com/satriahrh/segstream/domain/repositories"
)

// SyntheticSource renders a moving test pattern, standing in for a camera
type SyntheticSource struct {
	width   int
	height  int
	encoder Encoder
	logger  *zap.Logger

	mu     sync.Mutex
	tick   int
	closed bool
}

var _ repositories.CaptureSource = (*SyntheticSource)(nil)

// NewSyntheticSource creates a test-pattern source of the given size
func NewSyntheticSource(width, height int, encoder Encoder, logger *zap.Logger) (*SyntheticSource, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", width, height)
	}
	return &SyntheticSource{
		width:   width,
		height:  height,
		encoder: encoder,
		logger:  logger,
	}, nil
}

// Snapshot renders and encodes the next pattern frame
func (s *SyntheticSource) Snapshot(ctx context.Context) (entities.Frame, error) {
	if err := ctx.Err(); err != nil {
		return entities.Frame{}, fmt.Errorf("%w: %v", entities.ErrCaptureUnavailable, err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return entities.Frame{}, fmt.Errorf("%w: source closed", entities.ErrCaptureUnavailable)
	}
	s.tick++
	tick := s.tick
	s.mu.Unlock()

	img := s.render(tick)
	data, err := s.encoder.Encode(img)
	if err != nil {
		return entities.Frame{}, fmt.Errorf("%w: encode: %v", entities.ErrCaptureUnavailable, err)
	}

	return entities.Frame{
		Data:        data,
		ContentType: s.encoder.ContentType(),
		Width:       s.width,
		Height:      s.height,
		CapturedAt:  time.Now(),
	}, nil
}

// render draws a diagonal gradient with a bright square drifting across it
func (s *SyntheticSource) render(tick int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, s.width, s.height))

	side := s.height / 4
	if side < 1 {
		side = 1
	}
	offset := (tick * 8) % s.width

	for y := 0; y < s.height; y++ {
		for x := 0; x < s.width; x++ {
			v := uint8((x + y + tick) % 256)
			c := color.RGBA{R: v / 2, G: v / 2, B: v / 2, A: 255}
			if x >= offset && x < offset+side && y >= s.height/2-side/2 && y < s.height/2+side/2 {
				c = color.RGBA{R: 240, G: 240, B: 240, A: 255}
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

// Close stops the source; later snapshots fail
func (s *SyntheticSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
