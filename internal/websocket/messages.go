package websocket

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/satriahrh/segstream/domain/entities"
)

// Service-side error texts, kept identical to what clients already match on
const (
	ErrTextInvalidJSON = "Invalid JSON data"
	ErrTextNoImage     = "No image data provided"
)

var (
	ErrInvalidJSON = errors.New("invalid JSON data")
	ErrNoImageData = errors.New("no image data provided")
)

// FrameRequest is the client→service message carrying one frame
type FrameRequest struct {
	Image string `json:"image"` // data URI, e.g. data:image/jpeg;base64,...
}

// FrameResponse is the service→client reply for one frame
type FrameResponse struct {
	Success          *bool   `json:"success"`
	Overlay          string  `json:"overlay,omitempty"`
	SegmentationMask string  `json:"segmentation_mask,omitempty"`
	FrameNumber      *int64  `json:"frame_number,omitempty"`
	ProcessingTime   float64 `json:"processing_time,omitempty"`
	Error            string  `json:"error,omitempty"`
}

// EncodeFrameRequest wraps a frame as a data URI inside a FrameRequest
func EncodeFrameRequest(frame entities.Frame) ([]byte, error) {
	if err := frame.Validate(); err != nil {
		return nil, fmt.Errorf("invalid frame: %w", err)
	}
	uri := "data:" + frame.ContentType + ";base64," + base64.StdEncoding.EncodeToString(frame.Data)
	return json.Marshal(FrameRequest{Image: uri})
}

// DecodeFrameRequest extracts the raw image bytes from a FrameRequest.
// A bare base64 string without the data URI prefix is also accepted.
func DecodeFrameRequest(messageBytes []byte) ([]byte, error) {
	var req FrameRequest
	if err := json.Unmarshal(messageBytes, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	if req.Image == "" {
		return nil, ErrNoImageData
	}

	data := req.Image
	if strings.HasPrefix(data, "data:image") {
		_, payload, ok := strings.Cut(data, ",")
		if !ok {
			return nil, fmt.Errorf("data URI has no payload")
		}
		data = payload
	}

	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 image: %w", err)
	}
	if len(raw) == 0 {
		return nil, ErrNoImageData
	}
	return raw, nil
}

// MessageValidator turns raw service replies into results
type MessageValidator struct{}

// NewMessageValidator creates a new message validator
func NewMessageValidator() *MessageValidator {
	return &MessageValidator{}
}

// ValidateFrameResponse parses one reply. Every failure wraps
// entities.ErrMalformedResult; a well-formed success=false reply is not an error.
func (v *MessageValidator) ValidateFrameResponse(messageBytes []byte) (entities.FrameResult, error) {
	var resp FrameResponse
	if err := json.Unmarshal(messageBytes, &resp); err != nil {
		return entities.FrameResult{}, fmt.Errorf("%w: invalid JSON format: %v", entities.ErrMalformedResult, err)
	}
	if resp.Success == nil {
		return entities.FrameResult{}, fmt.Errorf("%w: success is required", entities.ErrMalformedResult)
	}

	result := entities.FrameResult{
		Success:        *resp.Success,
		Overlay:        resp.Overlay,
		Mask:           resp.SegmentationMask,
		ProcessingTime: resp.ProcessingTime,
		Error:          resp.Error,
	}
	if resp.FrameNumber != nil {
		result.SequenceNumber = *resp.FrameNumber
	}

	if result.Success {
		if resp.Overlay == "" {
			return entities.FrameResult{}, fmt.Errorf("%w: overlay is required on success", entities.ErrMalformedResult)
		}
		if resp.FrameNumber == nil {
			return entities.FrameResult{}, fmt.Errorf("%w: frame_number is required on success", entities.ErrMalformedResult)
		}
		if resp.ProcessingTime < 0 {
			return entities.FrameResult{}, fmt.Errorf("%w: processing_time must not be negative", entities.ErrMalformedResult)
		}
	} else if result.Error == "" {
		result.Error = "unknown service error"
	}

	return result, nil
}

// CreateSuccessResponse builds a success reply
func CreateSuccessResponse(frameNumber int64, overlay, mask string, processingTime float64) *FrameResponse {
	success := true
	return &FrameResponse{
		Success:          &success,
		Overlay:          overlay,
		SegmentationMask: mask,
		FrameNumber:      &frameNumber,
		ProcessingTime:   processingTime,
	}
}

// CreateErrorResponse builds a failure reply; frameNumber <= 0 is omitted
func CreateErrorResponse(message string, frameNumber int64) *FrameResponse {
	success := false
	resp := &FrameResponse{
		Success: &success,
		Error:   message,
	}
	if frameNumber > 0 {
		resp.FrameNumber = &frameNumber
	}
	return resp
}
