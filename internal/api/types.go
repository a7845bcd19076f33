package api

// HealthResponse is the liveness payload of the inference service
type HealthResponse struct {
	Status          string `json:"status"`
	ModelLoaded     bool   `json:"model_loaded"`
	Connections     int    `json:"connections"`
	FramesProcessed int64  `json:"frames_processed"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
