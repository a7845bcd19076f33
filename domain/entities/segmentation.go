package entities

import "time"

// Segmentation is what a frame processor produces for one image
type Segmentation struct {
	Mask           []byte // PNG, single channel
	Overlay        []byte // PNG, mask blended over the input
	ProcessingTime time.Duration
}
