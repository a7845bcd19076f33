package repositories

import (
	"context"

	"github.com/satriahrh/segstream/domain/entities"
)

// CaptureSource produces raw frame snapshots on demand
type CaptureSource interface {
	// Snapshot returns the current frame, or an error wrapping
	// entities.ErrCaptureUnavailable when none is available
	Snapshot(ctx context.Context) (entities.Frame, error)
	Close() error
}
