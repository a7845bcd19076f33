package repositories

import (
	"context"

	"github.com/satriahrh/segstream/domain/entities"
)

// ChannelHandler receives the events of a duplex channel.
// Callbacks run on the channel's read goroutine and must not block.
type ChannelHandler struct {
	OnStateChange func(state entities.ConnectionState)
	OnMessage     func(payload []byte)
	// OnClosed fires once per connection; err is nil for a local Close
	OnClosed func(err error)
}

// Transport is a persistent, ordered, message-based duplex connection
type Transport interface {
	// Open dials endpoint. It moves Disconnected→Connecting→Open,
	// or to Failed when the dial errors.
	Open(ctx context.Context, endpoint string, handler ChannelHandler) error
	// Send enqueues one message. It returns entities.ErrNotConnected
	// unless the channel is Open; it does not apply flow control.
	Send(payload []byte) error
	// Close releases the connection and moves to Closed. Safe to call twice.
	Close() error
	State() entities.ConnectionState
}
