package segmenter

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/segstream/domain/entities"
	"github.com/satriahrh/segstream/domain/repositories"
)

// Options tune the mock segmenter
type Options struct {
	// Pixels brighter than Threshold are foreground
	Threshold uint8
	// Alpha is the weight of the tint in the overlay, 0..1
	Alpha float64
	// Latency is added to every frame, plus up to Jitter more
	Latency time.Duration
	Jitter  time.Duration
}

// DefaultOptions blends a green mask at half weight, like the real model service
func DefaultOptions() Options {
	return Options{
		Threshold: 128,
		Alpha:     0.5,
	}
}

// MockSegmenter is a placeholder for the segmentation model: it thresholds
// luminance and tints the foreground green
type MockSegmenter struct {
	opts   Options
	logger *zap.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// NewMockSegmenter creates a new mock segmenter
func NewMockSegmenter(opts Options, logger *zap.Logger) repositories.FrameProcessor {
	if opts.Alpha < 0 {
		opts.Alpha = 0
	}
	if opts.Alpha > 1 {
		opts.Alpha = 1
	}
	return &MockSegmenter{
		opts:   opts,
		logger: logger,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Ready implements repositories.FrameProcessor
func (m *MockSegmenter) Ready() bool {
	return true
}

// Process implements repositories.FrameProcessor
func (m *MockSegmenter) Process(ctx context.Context, data []byte) (entities.Segmentation, error) {
	start := time.Now()

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return entities.Segmentation{}, fmt.Errorf("decode image: %w", err)
	}

	if err := m.wait(ctx); err != nil {
		return entities.Segmentation{}, err
	}

	bounds := img.Bounds()
	mask := image.NewGray(bounds)
	overlay := image.NewRGBA(bounds)
	alpha := m.opts.Alpha

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			src := color.RGBAModel.Convert(img.At(x, y)).(color.RGBA)
			lum := color.GrayModel.Convert(src).(color.Gray).Y

			var m8 uint8
			if lum > m.opts.Threshold {
				m8 = 255
			}
			mask.SetGray(x, y, color.Gray{Y: m8})

			overlay.SetRGBA(x, y, color.RGBA{
				R: uint8(float64(src.R) * (1 - alpha)),
				G: uint8(float64(src.G)*(1-alpha) + float64(m8)*alpha),
				B: uint8(float64(src.B) * (1 - alpha)),
				A: 255,
			})
		}
	}

	maskPNG, err := encodePNG(mask)
	if err != nil {
		return entities.Segmentation{}, fmt.Errorf("encode mask: %w", err)
	}
	overlayPNG, err := encodePNG(overlay)
	if err != nil {
		return entities.Segmentation{}, fmt.Errorf("encode overlay: %w", err)
	}

	elapsed := time.Since(start)
	m.logger.Debug("Frame segmented",
		zap.String("format", format),
		zap.Int("width", bounds.Dx()),
		zap.Int("height", bounds.Dy()),
		zap.Duration("elapsed", elapsed))

	return entities.Segmentation{
		Mask:           maskPNG,
		Overlay:        overlayPNG,
		ProcessingTime: elapsed,
	}, nil
}

// wait simulates model latency
func (m *MockSegmenter) wait(ctx context.Context) error {
	delay := m.opts.Latency
	if m.opts.Jitter > 0 {
		m.mu.Lock()
		delay += time.Duration(m.rng.Int63n(int64(m.opts.Jitter) + 1))
		m.mu.Unlock()
	}
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
