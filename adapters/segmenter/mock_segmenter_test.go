package segmenter

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"go.uber.org/zap"
)

func testImage(t *testing.T) []byte {
	t.Helper()
	// left half dark, right half bright
	img := image.NewRGBA(image.Rect(0, 0, 4, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 4; x++ {
			v := uint8(20)
			if x >= 2 {
				v = 230
			}
			img.SetRGBA(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("Failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

func TestMockSegmenter_Process(t *testing.T) {
	seg := NewMockSegmenter(DefaultOptions(), zap.NewNop())
	if !seg.Ready() {
		t.Fatal("Mock segmenter should always be ready")
	}

	out, err := seg.Process(context.Background(), testImage(t))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	mask, err := png.Decode(bytes.NewReader(out.Mask))
	if err != nil {
		t.Fatalf("Mask is not a PNG: %v", err)
	}
	if got := color.GrayModel.Convert(mask.At(0, 0)).(color.Gray).Y; got != 0 {
		t.Errorf("Dark pixel should be background, got %d", got)
	}
	if got := color.GrayModel.Convert(mask.At(3, 1)).(color.Gray).Y; got != 255 {
		t.Errorf("Bright pixel should be foreground, got %d", got)
	}

	overlay, err := png.Decode(bytes.NewReader(out.Overlay))
	if err != nil {
		t.Fatalf("Overlay is not a PNG: %v", err)
	}
	if overlay.Bounds().Dx() != 4 || overlay.Bounds().Dy() != 2 {
		t.Errorf("Overlay size changed: %v", overlay.Bounds())
	}
	r, g, _, _ := overlay.At(3, 0).RGBA()
	if g <= r {
		t.Errorf("Foreground should be tinted green, got r=%d g=%d", r>>8, g>>8)
	}
}

func TestMockSegmenter_Errors(t *testing.T) {
	seg := NewMockSegmenter(DefaultOptions(), zap.NewNop())
	if _, err := seg.Process(context.Background(), []byte("not an image")); err == nil {
		t.Error("Expected a decode error")
	}

	slow := NewMockSegmenter(Options{Threshold: 128, Alpha: 0.5, Latency: time.Second}, zap.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := slow.Process(ctx, testImage(t)); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected the latency wait to honour the context, got %v", err)
	}
}

func TestMockSegmenter_Latency(t *testing.T) {
	seg := NewMockSegmenter(Options{Threshold: 128, Alpha: 0.5, Latency: 20 * time.Millisecond, Jitter: 5 * time.Millisecond}, zap.NewNop())

	start := time.Now()
	out, err := seg.Process(context.Background(), testImage(t))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("Expected at least the configured latency, took %s", elapsed)
	}
	if out.ProcessingTime < 20*time.Millisecond {
		t.Errorf("Processing time should include latency, got %s", out.ProcessingTime)
	}
}
