// Package config provides typed, validated configuration for the edge and
// cloud inference router processes.
// Configuration resolution order (highest priority last):
// 1. Defaults
// 2. YAML config file
// 3. Environment variables (REACH_*)
package config

import "time"

// Config is the top-level configuration structure, mirroring the nested
// YAML sections edge.*, communication, cloud.*.
type Config struct {
	Edge          EdgeConfig          `yaml:"edge" json:"edge"`
	Communication CommunicationConfig `yaml:"communication" json:"communication"`
	Cloud         CloudConfig         `yaml:"cloud" json:"cloud"`
}

// EdgeConfig groups every edge-process setting.
type EdgeConfig struct {
	Server  EdgeServerConfig  `yaml:"server" json:"server"`
	Model   EdgeModelConfig   `yaml:"model" json:"model"`
	Confidence ConfidenceConfig `yaml:"confidence" json:"confidence"`
	KVCache KVCacheConfig     `yaml:"kv_cache" json:"kv_cache"`
	F1      F1Config          `yaml:"f1" json:"f1"`
}

// EdgeServerConfig controls the edge HTTP listener.
type EdgeServerConfig struct {
	Host string `yaml:"host" json:"host" env:"REACH_EDGE_HOST" default:"0.0.0.0"`
	Port int    `yaml:"port" json:"port" env:"REACH_EDGE_PORT" default:"8080"`
}

// EdgeModelConfig describes the draft model the edge dispatches to.
type EdgeModelConfig struct {
	Path       string `yaml:"path" json:"path" env:"REACH_EDGE_MODEL_PATH" default:"models/llama-7b-q4.gguf"`
	MaxTokens  int    `yaml:"max_tokens" json:"max_tokens" env:"REACH_EDGE_MODEL_MAX_TOKENS" default:"128"`
}

// ConfidenceConfig selects and tunes the ConfidenceStrategy used by the draft path.
type ConfidenceConfig struct {
	Strategy    string  `yaml:"strategy" json:"strategy" env:"REACH_CONFIDENCE_STRATEGY" default:"max_prob"`
	TopK        int     `yaml:"top_k" json:"top_k" env:"REACH_CONFIDENCE_TOP_K" default:"5"`
	Temperature float64 `yaml:"temperature" json:"temperature" env:"REACH_CONFIDENCE_TEMPERATURE" default:"1.0"`
}

// KVCacheConfig bounds the edge-side prompt cache.
type KVCacheConfig struct {
	MaxSize        int    `yaml:"max_size" json:"max_size" env:"REACH_KV_CACHE_MAX_SIZE" default:"1000"`
	MaxSeqLen      int    `yaml:"max_seq_len" json:"max_seq_len" env:"REACH_KV_CACHE_MAX_SEQ_LEN" default:"4096"`
	SnapshotPath   string `yaml:"snapshot_path" json:"snapshot_path" env:"REACH_KV_CACHE_SNAPSHOT_PATH" default:""`
	EnableCompress bool   `yaml:"enable_compression" json:"enable_compression" env:"REACH_KV_CACHE_COMPRESS" default:"false"`
}

// F1Config is the decision-module configuration tree (spec §4.1-§4.7).
type F1Config struct {
	HardConstraints  HardConstraintsConfig  `yaml:"hard_constraints" json:"hard_constraints"`
	ScoringWeights   ScoringWeightsConfig   `yaml:"scoring_weights" json:"scoring_weights"`
	LatencyEstimates LatencyEstimatesConfig `yaml:"latency_estimates" json:"latency_estimates"`
	Hardware         HardwareConfig         `yaml:"hardware" json:"hardware"`
	HardwareAdaptive HardwareAdaptiveConfig `yaml:"hardware_adaptive" json:"hardware_adaptive"`
	AdaptiveThreshold AdaptiveThresholdConfig `yaml:"adaptive_threshold" json:"adaptive_threshold"`
	HistoryTracker   HistoryTrackerConfig   `yaml:"history_tracker" json:"history_tracker"`
	EnableNetworkProbe bool `yaml:"enable_network_probe" json:"enable_network_probe" env:"REACH_ENABLE_NETWORK_PROBE" default:"true"`
	EnableAdaptive     bool `yaml:"enable_adaptive" json:"enable_adaptive" env:"REACH_ENABLE_ADAPTIVE" default:"true"`
	CloudEndpoint      string `yaml:"cloud_endpoint" json:"cloud_endpoint" env:"REACH_CLOUD_ENDPOINT" default:"http://localhost:8081"`
}

// HardConstraintsConfig holds the priority-ordered forced-strategy thresholds.
type HardConstraintsConfig struct {
	GPUOverloadThreshold   float64 `yaml:"gpu_overload_threshold" json:"gpu_overload_threshold" env:"REACH_GPU_OVERLOAD_THRESHOLD" default:"85.0"`
	CPUOverloadThreshold   float64 `yaml:"cpu_overload_threshold" json:"cpu_overload_threshold" env:"REACH_CPU_OVERLOAD_THRESHOLD" default:"95.0"`
	MemoryCriticalMB       float64 `yaml:"memory_critical_mb" json:"memory_critical_mb" env:"REACH_MEMORY_CRITICAL_MB" default:"500.0"`
	UltraLowLatencyMs      float64 `yaml:"ultra_low_latency_ms" json:"ultra_low_latency_ms" env:"REACH_ULTRA_LOW_LATENCY_MS" default:"50.0"`
	PrivacyStrictLevel     int     `yaml:"privacy_strict_level" json:"privacy_strict_level" env:"REACH_PRIVACY_STRICT_LEVEL" default:"2"`
	WeakNetworkRTTMs       float64 `yaml:"weak_network_rtt" json:"weak_network_rtt" env:"REACH_WEAK_NETWORK_RTT_MS" default:"150.0"`
	HighPriorityThreshold  int     `yaml:"high_priority_threshold" json:"high_priority_threshold" env:"REACH_HIGH_PRIORITY_THRESHOLD" default:"3"`
	HighPriorityMinQuality float64 `yaml:"high_priority_min_quality" json:"high_priority_min_quality" env:"REACH_HIGH_PRIORITY_MIN_QUALITY" default:"0.7"`
}

// ScoringWeightsConfig is the MultiObjectiveScorer's objective weighting.
type ScoringWeightsConfig struct {
	Latency float64 `yaml:"latency" json:"latency" env:"REACH_WEIGHT_LATENCY" default:"0.4"`
	Cost    float64 `yaml:"cost" json:"cost" env:"REACH_WEIGHT_COST" default:"0.3"`
	Quality float64 `yaml:"quality" json:"quality" env:"REACH_WEIGHT_QUALITY" default:"0.3"`
}

// LatencyEstimatesConfig supplies per-strategy reference latencies (ms) used
// until enough history exists to prefer observed averages.
type LatencyEstimatesConfig struct {
	EdgeOnlyMs            float64 `yaml:"edge_only_ms" json:"edge_only_ms" default:"30.0"`
	CloudDirectMs         float64 `yaml:"cloud_direct_ms" json:"cloud_direct_ms" default:"200.0"`
	SpeculativeStandardMs float64 `yaml:"speculative_standard_ms" json:"speculative_standard_ms" default:"80.0"`
}

// HardwareConfig names the device the edge process runs on.
type HardwareConfig struct {
	DeviceType string `yaml:"device_type" json:"device_type" env:"REACH_DEVICE_TYPE" default:"cpu"`
}

// HardwareAdaptiveConfig holds the GPU/CPU token-budget tables consulted by
// the ExecutionPlanner.
type HardwareAdaptiveConfig struct {
	GPUMode HardwareModeConfig `yaml:"gpu_mode" json:"gpu_mode"`
	CPUMode HardwareModeConfig `yaml:"cpu_mode" json:"cpu_mode"`
}

// HardwareModeConfig is one hardware tier's token budgets.
type HardwareModeConfig struct {
	EdgeOnlyMaxTokens        int `yaml:"edge_only_max_tokens" json:"edge_only_max_tokens"`
	CollaborativeDraftTokens int `yaml:"collaborative_draft_tokens" json:"collaborative_draft_tokens"`
}

// AdaptiveThresholdConfig tunes AdaptiveThresholdCalculator's online retuning.
type AdaptiveThresholdConfig struct {
	TargetAcceptanceMin   float64 `yaml:"target_acceptance_min" json:"target_acceptance_min" default:"0.80"`
	TargetAcceptanceMax   float64 `yaml:"target_acceptance_max" json:"target_acceptance_max" default:"0.90"`
	ThresholdStep         float64 `yaml:"threshold_step" json:"threshold_step" default:"0.05"`
	SmoothingFactor       float64 `yaml:"smoothing_factor" json:"smoothing_factor" default:"0.1"`
	ThresholdMin          float64 `yaml:"threshold_min" json:"threshold_min" default:"0.50"`
	ThresholdMax          float64 `yaml:"threshold_max" json:"threshold_max" default:"0.95"`
	InitialConfidence     float64 `yaml:"initial_confidence_threshold" json:"initial_confidence_threshold" default:"0.80"`
	UpdateInterval        int     `yaml:"update_interval" json:"update_interval" default:"10"`
	DefaultLatencySLOMs   float64 `yaml:"default_latency_slo_ms" json:"default_latency_slo_ms" default:"150"`
	InitialDraftMaxTokens int     `yaml:"initial_draft_max_tokens" json:"initial_draft_max_tokens" default:"64"`
}

// HistoryTrackerConfig bounds the in-memory execution-record ring buffer.
type HistoryTrackerConfig struct {
	MaxHistorySize int `yaml:"max_history_size" json:"max_history_size" env:"REACH_HISTORY_MAX_SIZE" default:"100"`
}

// CommunicationConfig holds edge<->cloud wiring shared by both processes.
type CommunicationConfig struct {
	CloudEndpoint    string        `yaml:"cloud_endpoint" json:"cloud_endpoint" env:"REACH_CLOUD_ENDPOINT" default:"http://localhost:8081"`
	DirectTimeout    time.Duration `yaml:"direct_timeout" json:"direct_timeout" env:"REACH_DIRECT_TIMEOUT" default:"30s"`
	HealthTimeout    time.Duration `yaml:"health_timeout" json:"health_timeout" env:"REACH_HEALTH_TIMEOUT" default:"5s"`
	CircuitThreshold int           `yaml:"circuit_breaker_threshold" json:"circuit_breaker_threshold" env:"REACH_CIRCUIT_BREAKER_THRESHOLD" default:"5"`
	CircuitTimeout   time.Duration `yaml:"circuit_breaker_timeout" json:"circuit_breaker_timeout" env:"REACH_CIRCUIT_BREAKER_TIMEOUT" default:"30s"`
	MaxConcurrentCalls int         `yaml:"max_concurrent_calls" json:"max_concurrent_calls" env:"REACH_MAX_CONCURRENT_CALLS" default:"16"`
}

// CloudConfig groups every cloud-process setting.
type CloudConfig struct {
	Server        CloudServerConfig        `yaml:"server" json:"server"`
	Model         CloudModelConfig         `yaml:"model" json:"model"`
	DraftVerifier DraftVerifierConfig      `yaml:"draft_verifier" json:"draft_verifier"`
	Audit         AuditConfig              `yaml:"audit" json:"audit"`
}

// CloudServerConfig controls the cloud HTTP listener.
type CloudServerConfig struct {
	Host string `yaml:"host" json:"host" env:"REACH_CLOUD_HOST" default:"0.0.0.0"`
	Port int    `yaml:"port" json:"port" env:"REACH_CLOUD_PORT" default:"8081"`
}

// CloudModelConfig describes the verifier/ground-truth model.
type CloudModelConfig struct {
	Path      string `yaml:"path" json:"path" env:"REACH_CLOUD_MODEL_PATH" default:"models/llama-70b.gguf"`
	MaxTokens int    `yaml:"max_tokens" json:"max_tokens" env:"REACH_CLOUD_MODEL_MAX_TOKENS" default:"512"`
}

// DraftVerifierConfig tunes the character-LCP verification protocol.
type DraftVerifierConfig struct {
	GroundTruthTokenMargin int `yaml:"ground_truth_token_margin" json:"ground_truth_token_margin" default:"20"`
}

// AuditConfig controls the optional SQLite audit ledger on the cloud side.
// Disabled by default: this is strictly additive bookkeeping, never read by
// the decision path.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled" env:"REACH_AUDIT_ENABLED" default:"false"`
	DBPath  string `yaml:"db_path" json:"db_path" env:"REACH_AUDIT_DB_PATH" default:""`
}

// Default returns the configuration with every documented default applied,
// matching the original implementation's numeric constants.
func Default() *Config {
	return &Config{
		Edge: EdgeConfig{
			Server: EdgeServerConfig{Host: "0.0.0.0", Port: 8080},
			Model:  EdgeModelConfig{Path: "models/llama-7b-q4.gguf", MaxTokens: 128},
			Confidence: ConfidenceConfig{Strategy: "max_prob", TopK: 5, Temperature: 1.0},
			KVCache: KVCacheConfig{MaxSize: 1000, MaxSeqLen: 4096},
			F1: F1Config{
				HardConstraints: HardConstraintsConfig{
					GPUOverloadThreshold:   85.0,
					CPUOverloadThreshold:   95.0,
					MemoryCriticalMB:       500.0,
					UltraLowLatencyMs:      50.0,
					PrivacyStrictLevel:     2,
					WeakNetworkRTTMs:       150.0,
					HighPriorityThreshold:  3,
					HighPriorityMinQuality: 0.7,
				},
				ScoringWeights: ScoringWeightsConfig{Latency: 0.4, Cost: 0.3, Quality: 0.3},
				LatencyEstimates: LatencyEstimatesConfig{
					EdgeOnlyMs:            30.0,
					CloudDirectMs:         200.0,
					SpeculativeStandardMs: 80.0,
				},
				Hardware: HardwareConfig{DeviceType: "cpu"},
				HardwareAdaptive: HardwareAdaptiveConfig{
					GPUMode: HardwareModeConfig{EdgeOnlyMaxTokens: 256, CollaborativeDraftTokens: 96},
					CPUMode: HardwareModeConfig{EdgeOnlyMaxTokens: 128, CollaborativeDraftTokens: 48},
				},
				AdaptiveThreshold: AdaptiveThresholdConfig{
					TargetAcceptanceMin:   0.80,
					TargetAcceptanceMax:   0.90,
					ThresholdStep:         0.05,
					SmoothingFactor:       0.1,
					ThresholdMin:          0.50,
					ThresholdMax:          0.95,
					InitialConfidence:     0.80,
					UpdateInterval:        10,
					DefaultLatencySLOMs:   150,
					InitialDraftMaxTokens: 64,
				},
				HistoryTracker:     HistoryTrackerConfig{MaxHistorySize: 100},
				EnableNetworkProbe: true,
				EnableAdaptive:     true,
				CloudEndpoint:      "http://localhost:8081",
			},
		},
		Communication: CommunicationConfig{
			CloudEndpoint:      "http://localhost:8081",
			DirectTimeout:      30 * time.Second,
			HealthTimeout:      5 * time.Second,
			CircuitThreshold:   5,
			CircuitTimeout:     30 * time.Second,
			MaxConcurrentCalls: 16,
		},
		Cloud: CloudConfig{
			Server: CloudServerConfig{Host: "0.0.0.0", Port: 8081},
			Model:  CloudModelConfig{Path: "models/llama-70b.gguf", MaxTokens: 512},
			DraftVerifier: DraftVerifierConfig{GroundTruthTokenMargin: 20},
			Audit:  AuditConfig{Enabled: false},
		},
	}
}
