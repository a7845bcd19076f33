package repositories

import "github.com/satriahrh/segstream/domain/entities"

// ResultSink renders a received result, e.g. writes the overlay somewhere visible
type ResultSink interface {
	Render(result entities.FrameResult) error
}
