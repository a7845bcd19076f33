package repositories

import (
	"context"

	"github.com/satriahrh/segstream/domain/entities"
)

// FrameProcessor segments one decoded image for the inference service
type FrameProcessor interface {
	Process(ctx context.Context, image []byte) (entities.Segmentation, error)
	// Ready reports whether the model is loaded
	Ready() bool
}
