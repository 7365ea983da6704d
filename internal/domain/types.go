// Package domain holds the wire- and decision-level types shared by every
// component of the edge/cloud inference router: requests, system and
// network observations, execution strategies/plans, and the records the
// history tracker accumulates. It has no dependencies beyond the standard
// library and github.com/google/uuid, so every other internal package can
// import it without risking a cycle.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// ExecutionStrategy is one of the four strategies the decision module can
// select for a request.
type ExecutionStrategy string

const (
	EdgeOnly             ExecutionStrategy = "EDGE_ONLY"
	CloudDirect          ExecutionStrategy = "CLOUD_DIRECT"
	SpeculativeStandard  ExecutionStrategy = "SPECULATIVE_STANDARD"
	AdaptiveConfidence   ExecutionStrategy = "ADAPTIVE_CONFIDENCE"
)

// AllStrategies lists the four enumerated strategies in a stable order.
func AllStrategies() []ExecutionStrategy {
	return []ExecutionStrategy{EdgeOnly, CloudDirect, SpeculativeStandard, AdaptiveConfidence}
}

// IsSpeculative reports whether the strategy runs the draft+verify protocol.
func (s ExecutionStrategy) IsSpeculative() bool {
	return s == SpeculativeStandard || s == AdaptiveConfidence
}

// DeviceType names the hardware tier the edge process runs on.
type DeviceType string

const (
	DeviceCPU DeviceType = "cpu"
	DeviceGPU DeviceType = "gpu"
)

// TaskRequirements is the per-request SLO and privacy sub-record.
type TaskRequirements struct {
	MaxLatencyMs    float64 `json:"max_latency_ms"`
	MinQualityScore float64 `json:"min_quality_score"`
	Priority        int     `json:"priority"`
	PrivacyLevel    int     `json:"privacy_level"`
}

// InferenceRequest is the top-level request accepted by POST /inference.
type InferenceRequest struct {
	RequestID           string           `json:"request_id,omitempty"`
	Prompt              string           `json:"prompt"`
	MaxTokens           int              `json:"max_tokens"`
	Temperature         float64          `json:"temperature"`
	TopP                float64          `json:"top_p"`
	TopK                int              `json:"top_k"`
	AllowSpeculative    bool             `json:"allow_speculative"`
	AllowConfidenceGate bool             `json:"allow_confidence_gate"`
	Requirements        TaskRequirements `json:"requirements"`
}

// WithRequestID returns a copy of the request with a generated RequestID
// filled in when one was not supplied by the caller.
func (r InferenceRequest) WithRequestID() InferenceRequest {
	if r.RequestID == "" {
		r.RequestID = uuid.NewString()
	}
	return r
}

// SystemStats is a snapshot of local resource usage, TTL-cached by
// StateMonitor.
type SystemStats struct {
	CPUUsagePercent  float64    `json:"cpu_usage_percent"`
	MemoryAvailableMB float64   `json:"memory_available_mb"`
	GPUUsagePercent  float64    `json:"gpu_usage_percent"`
	GPUMemoryFreeMB  float64    `json:"gpu_memory_free_mb"`
	DeviceType       DeviceType `json:"device_type"`
	Timestamp        time.Time  `json:"timestamp"`
}

// NetworkStats is a snapshot of the edge<->cloud link, TTL-cached and
// refreshed by a health-endpoint probe.
type NetworkStats struct {
	RTTMs          float64   `json:"rtt_ms"`
	BandwidthMbps  float64   `json:"bandwidth_mbps"`
	PacketLossRate float64   `json:"packet_loss_rate"`
	IsWeakNetwork  bool      `json:"is_weak_network"`
	Timestamp      time.Time `json:"timestamp"`
}

// DecisionContext bundles everything the decision pipeline needs to pick and
// parameterize a strategy for one request.
type DecisionContext struct {
	Request      InferenceRequest
	SystemStats  SystemStats
	Requirements TaskRequirements
	Network      *NetworkStats // nil when no probe result is available
}

// ExecutionPlan is the fully parameterized outcome of DecisionModule.Decide.
type ExecutionPlan struct {
	Strategy             ExecutionStrategy `json:"strategy"`
	Score                float64           `json:"score"`
	Reason               string            `json:"reason"`
	ConfidenceThreshold  float64           `json:"confidence_threshold"`
	DraftMaxTokens       int               `json:"draft_max_tokens"`
	Params               map[string]any    `json:"params,omitempty"`
}

// ParamDuration reads a named duration parameter, stored either as a
// time.Duration or as an int64 count of milliseconds, falling back to the
// given default when absent or of another type.
func (p ExecutionPlan) ParamDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := p.Params[key]; ok {
		if d, ok := v.(time.Duration); ok {
			return d
		}
		if ms, ok := v.(int64); ok {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return fallback
}

// ConfidenceStrategyKind names which scalar-computation strategy produced a
// ConfidenceMetrics value.
type ConfidenceStrategyKind string

const (
	MaxProb     ConfidenceStrategyKind = "MAX_PROB"
	Entropy     ConfidenceStrategyKind = "ENTROPY"
	Temperature ConfidenceStrategyKind = "TEMPERATURE"
	TopKAgg     ConfidenceStrategyKind = "TOP_K_AGG"
)

// TokenProb is one drafted token's probability distribution summary, as
// reported by the draft engine collaborator.
type TokenProb struct {
	TokenID     int       `json:"token_id"`
	Token       string    `json:"token"`
	Probability float64   `json:"probability"`      // probability assigned to the chosen token
	TopK        []float64 `json:"top_k,omitempty"`   // probabilities of the top-K candidates, descending
}

// ConfidenceMetrics is derived from the draft's per-token probabilities.
type ConfidenceMetrics struct {
	Score      float64                `json:"score"`
	Entropy    float64                `json:"entropy"`
	MaxProb    float64                `json:"max_prob"`
	MinProb    float64                `json:"min_prob"`
	AvgProb    float64                `json:"avg_prob"`
	Strategy   ConfidenceStrategyKind `json:"strategy"`
}

// InferenceResponse is the body returned by POST /inference.
type InferenceResponse struct {
	Text             string            `json:"text"`
	Tokens           []string          `json:"tokens"`
	TotalLatencyMs   float64           `json:"total_latency_ms"`
	EdgeLatencyMs    float64           `json:"edge_latency_ms"`
	CloudLatencyMs   float64           `json:"cloud_latency_ms"`
	ConfidenceScore  float64           `json:"confidence_score"`
	AcceptanceRate   float64           `json:"acceptance_rate"`
	UsedDraftVerify  bool              `json:"used_draft_verify"`
	Strategy         ExecutionStrategy `json:"strategy"`
}

// ExecutionRecord is an immutable, append-only observation of one completed
// request. It is never mutated once appended to the HistoryTracker.
type ExecutionRecord struct {
	RequestID       string            `json:"request_id"`
	Timestamp       time.Time         `json:"timestamp"`
	Strategy        ExecutionStrategy `json:"strategy"`
	AcceptanceRate  float64           `json:"acceptance_rate"`
	TotalLatencyMs  float64           `json:"total_latency_ms"`
	EdgeLatencyMs   float64           `json:"edge_latency_ms"`
	CloudLatencyMs  float64           `json:"cloud_latency_ms"`
	DraftConfidence float64           `json:"draft_confidence"`
	Success         bool              `json:"success"`
	TokensGenerated int               `json:"tokens_generated"`
	Degraded        bool              `json:"degraded"`
	UsedDraftVerify bool              `json:"used_draft_verify"`
}
