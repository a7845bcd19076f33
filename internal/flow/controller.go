// Package flow gates frame sends so that at most one frame is ever in flight.
//
// The Controller is a two-state machine (Idle, AwaitingResult) layered on a
// Transport. It is not safe for concurrent use: drive it from the single
// goroutine that also consumes the transport's messages.
package flow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/segstream/domain/entities"
	"github.com/satriahrh/segstream/domain/repositories"
)

// State of the gate
type State int

const (
	Idle State = iota
	AwaitingResult
)

func (s State) String() string {
	if s == AwaitingResult {
		return "awaiting_result"
	}
	return "idle"
}

// Encoder turns a captured frame into one wire message
type Encoder func(frame entities.Frame) ([]byte, error)

// Stats counts sends against results; Outstanding never exceeds one
type Stats struct {
	Sent           int64
	Resolved       int64
	Abandoned      int64
	Outstanding    int
	MaxOutstanding int
}

// Controller owns the in-flight flag
type Controller struct {
	transport repositories.Transport
	source    repositories.CaptureSource
	encode    Encoder
	logger    *zap.Logger

	state  State
	sentAt time.Time
	stats  Stats
	now    func() time.Time
}

// NewController creates an idle controller
func NewController(transport repositories.Transport, source repositories.CaptureSource, encode Encoder, logger *zap.Logger) *Controller {
	return &Controller{
		transport: transport,
		source:    source,
		encode:    encode,
		logger:    logger,
		state:     Idle,
		now:       time.Now,
	}
}

// State returns the gate state
func (c *Controller) State() State {
	return c.state
}

// InFlight reports whether a frame is outstanding
func (c *Controller) InFlight() bool {
	return c.state == AwaitingResult
}

// Stats returns the send/result counters
func (c *Controller) Stats() Stats {
	return c.stats
}

// TryBeginSend captures, encodes and sends one frame, moving Idle→AwaitingResult.
// Nothing changes when it fails; the error says why:
// ErrAlreadyAwaiting, ErrNotConnected, ErrCaptureUnavailable or a transport error.
func (c *Controller) TryBeginSend(ctx context.Context) error {
	if c.state == AwaitingResult {
		return entities.ErrAlreadyAwaiting
	}
	if c.transport.State() != entities.ConnectionOpen {
		return entities.ErrNotConnected
	}

	frame, err := c.source.Snapshot(ctx)
	if err != nil {
		if errors.Is(err, entities.ErrCaptureUnavailable) {
			return err
		}
		return fmt.Errorf("%w: %v", entities.ErrCaptureUnavailable, err)
	}

	payload, err := c.encode(frame)
	if err != nil {
		return fmt.Errorf("%w: encode frame: %v", entities.ErrCaptureUnavailable, err)
	}

	if err := c.transport.Send(payload); err != nil {
		return err
	}

	c.state = AwaitingResult
	c.sentAt = c.now()
	c.stats.Sent++
	c.stats.Outstanding++
	if c.stats.Outstanding > c.stats.MaxOutstanding {
		c.stats.MaxOutstanding = c.stats.Outstanding
	}

	c.logger.Debug("Frame sent",
		zap.Int64("sent", c.stats.Sent),
		zap.Int("bytes", len(payload)))
	return nil
}

// OnResultReceived moves AwaitingResult→Idle whatever the message contained,
// so a poisoned reply cannot wedge the pipeline. It returns false when no
// frame was outstanding, along with the round trip of the resolved frame.
func (c *Controller) OnResultReceived() (bool, time.Duration) {
	if c.state != AwaitingResult {
		return false, 0
	}
	c.state = Idle
	c.stats.Resolved++
	c.stats.Outstanding--
	return true, c.now().Sub(c.sentAt)
}

// Reset forces the gate to Idle after a timeout or disconnect.
// It reports whether a frame was abandoned.
func (c *Controller) Reset() bool {
	if c.state != AwaitingResult {
		return false
	}
	c.state = Idle
	c.stats.Abandoned++
	c.stats.Outstanding--
	return true
}
