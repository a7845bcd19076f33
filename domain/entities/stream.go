package entities

import "errors"

// ConnectionState is the lifecycle state of the duplex channel
type ConnectionState int

const (
	ConnectionDisconnected ConnectionState = iota
	ConnectionConnecting
	ConnectionOpen
	ConnectionClosed
	ConnectionFailed
)

func (s ConnectionState) String() string {
	switch s {
	case ConnectionDisconnected:
		return "disconnected"
	case ConnectionConnecting:
		return "connecting"
	case ConnectionOpen:
		return "open"
	case ConnectionClosed:
		return "closed"
	case ConnectionFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether the channel has ended and needs a fresh Open
func (s ConnectionState) IsTerminal() bool {
	return s == ConnectionClosed || s == ConnectionFailed
}

// StreamingMode decides whether a new capture is chained after each result
type StreamingMode int

const (
	ModeIdle StreamingMode = iota
	ModeRunning
	ModeAwaitingSingleShot
)

func (m StreamingMode) String() string {
	switch m {
	case ModeIdle:
		return "idle"
	case ModeRunning:
		return "running"
	case ModeAwaitingSingleShot:
		return "awaiting_single_shot"
	default:
		return "unknown"
	}
}

// Stream errors. Capture and parse errors are absorbed into status text,
// transport errors end the streaming chain.
var (
	ErrNotConnected       = errors.New("not connected")
	ErrBusy               = errors.New("a frame is already in flight")
	ErrAlreadyAwaiting    = errors.New("already awaiting a result")
	ErrCaptureUnavailable = errors.New("capture source produced no frame")
	ErrMalformedResult    = errors.New("malformed result")
	ErrTransportFailure   = errors.New("transport failure")
	ErrSessionClosed      = errors.New("session closed")
)
