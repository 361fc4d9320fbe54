package dto

type HealthCheckResponse struct {
	Name      string `json:"name"`
	Status    string `json:"status"`
	Critical  bool   `json:"critical"`
	Message   string `json:"message,omitempty"`
	LatencyMs int64  `json:"latency_ms"`
}

type HealthResponse struct {
	Status string                `json:"status"`
	Checks []HealthCheckResponse `json:"checks"`
}
