package entities

import (
	"errors"
	"time"
)

// Frame is one encoded snapshot produced by a capture source
type Frame struct {
	Data        []byte    `json:"-"`
	ContentType string    `json:"content_type"` // e.g. image/jpeg
	Width       int       `json:"width,omitempty"`
	Height      int       `json:"height,omitempty"`
	CapturedAt  time.Time `json:"captured_at"`
}

// Validate checks that the frame carries a payload the transport can ship
func (f *Frame) Validate() error {
	if len(f.Data) == 0 {
		return errors.New("frame data is empty")
	}
	if f.ContentType == "" {
		return errors.New("frame content type is required")
	}
	return nil
}

// FrameResult is the service's answer to exactly one frame.
// Immutable once received; superseded by the next result.
type FrameResult struct {
	Success        bool          `json:"success"`
	SequenceNumber int64         `json:"frame_number"`
	Overlay        string        `json:"overlay,omitempty"` // base64 encoded image
	Mask           string        `json:"segmentation_mask,omitempty"`
	ProcessingTime float64       `json:"processing_time"` // seconds, as reported by the service
	Error          string        `json:"error,omitempty"`
	RoundTrip      time.Duration `json:"round_trip"`
	ReceivedAt     time.Time     `json:"received_at"`
}

// ProcessingDuration converts the service-reported processing time
func (r FrameResult) ProcessingDuration() time.Duration {
	return time.Duration(r.ProcessingTime * float64(time.Second))
}
