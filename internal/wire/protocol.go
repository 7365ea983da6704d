// Package wire defines the JSON contract exchanged between the edge and
// cloud processes: the speculative-decoding verification protocol and the
// cloud-direct generation call. Both cmd/edged and cmd/cloudd import this
// package so the two processes can never drift on field names.
package wire

// VerifyRequest is the body POSTed to the cloud's /verify endpoint.
type VerifyRequest struct {
	RequestID string  `json:"request_id,omitempty"`
	Prompt    string  `json:"prompt"`
	Draft     string  `json:"draft"`
	Threshold float64 `json:"threshold"`
	MaxTokens int     `json:"max_tokens"`
}

// VerifyResponse is returned by /verify. Per spec.md §9 open question (b),
// this implementation sticks to characters as its single unit throughout:
// AcceptedCount and TotalCount are rune counts of the draft text, not token
// counts.
type VerifyResponse struct {
	VerifiedTokens     []string `json:"verified_tokens"`
	AcceptedCount      int      `json:"accepted_count"`
	TotalCount         int      `json:"total_count"`
	AcceptanceRate     float64  `json:"acceptance_rate"`
	CorrectedPositions []int    `json:"corrected_positions"`
	FinalText          string   `json:"final_text"`
	LatencyMs          float64  `json:"latency_ms"`
}

// VerifyBatchRequest is the array form accepted by /verify/batch.
type VerifyBatchRequest struct {
	Requests []VerifyRequest `json:"requests"`
}

// VerifyBatchResponse is the array form returned by /verify/batch.
type VerifyBatchResponse struct {
	Responses []VerifyResponse `json:"responses"`
}

// DirectRequest is the body POSTed to the cloud's /inference/direct
// endpoint, mirroring domain.InferenceRequest's generation parameters
// without importing the edge-only domain package (cloudd has no reason to
// depend on edge decision types).
type DirectRequest struct {
	RequestID   string  `json:"request_id,omitempty"`
	Prompt      string  `json:"prompt"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	TopK        int     `json:"top_k"`
}

// DirectResponse is returned by /inference/direct.
type DirectResponse struct {
	Text            string   `json:"text"`
	Tokens          []string `json:"tokens"`
	TokensGenerated int      `json:"tokens_generated"`
	LatencyMs       float64  `json:"latency_ms"`
}

// HealthResponse is returned by GET /health on both processes.
type HealthResponse struct {
	Status              string `json:"status"`
	Component           string `json:"component"`
	CacheStats          any    `json:"cache_stats,omitempty"`
	ConfidenceStrategy  string `json:"confidence_strategy,omitempty"`
}

// ErrorResponse is the 400 body for a ProtocolShape error (malformed JSON,
// schema mismatch).
type ErrorResponse struct {
	Error string `json:"error"`
}

// SimulateRequest is the body accepted by POST /admin/simulate.
type SimulateRequest struct {
	CPUUsagePercent   *float64 `json:"cpu_usage_percent,omitempty"`
	MemoryAvailableMB *float64 `json:"memory_available_mb,omitempty"`
	GPUUsagePercent   *float64 `json:"gpu_usage_percent,omitempty"`
	GPUMemoryFreeMB   *float64 `json:"gpu_memory_free_mb,omitempty"`
	DeviceType        string   `json:"device_type,omitempty"`
	RTTMs             *float64 `json:"rtt_ms,omitempty"`
	PacketLossRate    *float64 `json:"packet_loss_rate,omitempty"`
	IsWeakNetwork     *bool    `json:"is_weak_network,omitempty"`
	Clear             bool     `json:"clear,omitempty"`
}
