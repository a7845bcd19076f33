package capture

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
)

// Encoder encodes an image into bytes
type Encoder interface {
	Encode(img image.Image) ([]byte, error)
	ContentType() string
}

// JPEGEncoder encodes frames as JPEG
type JPEGEncoder struct {
	quality int
}

// NewJPEGEncoder creates a JPEG encoder with the given quality (1-100)
func NewJPEGEncoder(quality int) *JPEGEncoder {
	if quality < 1 {
		quality = 1
	}
	if quality > 100 {
		quality = 100
	}
	return &JPEGEncoder{quality: quality}
}

func (e *JPEGEncoder) Encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(256 * 1024)
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: e.quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (e *JPEGEncoder) ContentType() string {
	return "image/jpeg"
}

// PNGEncoder encodes frames as PNG
type PNGEncoder struct{}

func (PNGEncoder) Encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (PNGEncoder) ContentType() string {
	return "image/png"
}

// NewEncoder picks an encoder by name: "jpeg" (default) or "png"
func NewEncoder(name string, quality int) (Encoder, error) {
	switch name {
	case "", "jpeg", "jpg":
		return NewJPEGEncoder(quality), nil
	case "png":
		return PNGEncoder{}, nil
	default:
		return nil, fmt.Errorf("unsupported encoding %q: must be one of jpeg, png", name)
	}
}
