package session

import "github.com/satriahrh/segstream/domain/entities"

type eventKind int

const (
	evStart eventKind = iota
	evStop
	evSingleShot
	evDrain
	evStateChange
	evMessage
	evClosed
	evRequestTimeout
	evCaptureRetry
)

func (k eventKind) String() string {
	switch k {
	case evStart:
		return "start"
	case evStop:
		return "stop"
	case evSingleShot:
		return "single_shot"
	case evDrain:
		return "drain"
	case evStateChange:
		return "state_change"
	case evMessage:
		return "message"
	case evClosed:
		return "closed"
	case evRequestTimeout:
		return "request_timeout"
	case evCaptureRetry:
		return "capture_retry"
	default:
		return "unknown"
	}
}

// event is the only way anything reaches the session loop
type event struct {
	kind    eventKind
	state   entities.ConnectionState
	payload []byte
	err     error
	seq     uint64
	reply   chan error
}
