package entities

import "time"

// Metrics are the counters a streaming session exposes alongside its status
type Metrics struct {
	FramesSent         int64 `json:"frames_sent"`
	ResultsReceived    int64 `json:"results_received"`
	FailedResults      int64 `json:"failed_results"`
	MalformedResults   int64 `json:"malformed_results"`
	CaptureFailures    int64 `json:"capture_failures"`
	Timeouts           int64 `json:"timeouts"`
	UnsolicitedResults int64 `json:"unsolicited_results"`
	SequenceAnomalies  int64 `json:"sequence_anomalies"`
	MaxOutstanding     int   `json:"max_outstanding"`

	LastProcessingTime time.Duration `json:"last_processing_time"`
	AvgProcessingTime  time.Duration `json:"avg_processing_time"`
	LastRoundTrip      time.Duration `json:"last_round_trip"`
	AvgRoundTrip       time.Duration `json:"avg_round_trip"`
	EffectiveFPS       float64       `json:"effective_fps"`
}

// Status is a point-in-time view of a streaming session
type Status struct {
	SessionID  string          `json:"session_id"`
	Connection ConnectionState `json:"connection"`
	Mode       StreamingMode   `json:"mode"`
	InFlight   bool            `json:"in_flight"`
	Message    string          `json:"message"`
	LastError  string          `json:"last_error,omitempty"`
	LastResult *FrameResult    `json:"last_result,omitempty"`
	Metrics    Metrics         `json:"metrics"`
}
