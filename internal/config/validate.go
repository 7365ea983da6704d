package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation error: %s: %s", e.Field, e.Message)
}

// ValidationResult contains validation errors.
type ValidationResult struct {
	Errors []*ValidationError
}

// Valid returns true if there are no validation errors.
func (r *ValidationResult) Valid() bool {
	return len(r.Errors) == 0
}

func (r *ValidationResult) Error() string {
	if r.Valid() {
		return ""
	}
	var msgs []string
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

func (r *ValidationResult) add(field, message string) {
	r.Errors = append(r.Errors, &ValidationError{Field: field, Message: message})
}

// Validate checks a Config for internally-inconsistent or out-of-range
// values before it is wired into the decision module.
func Validate(cfg *Config) *ValidationResult {
	result := &ValidationResult{}

	weights := cfg.Edge.F1.ScoringWeights
	sum := weights.Latency + weights.Cost + weights.Quality
	if sum < 0.99 || sum > 1.01 {
		result.add("edge.f1.scoring_weights", fmt.Sprintf("latency+cost+quality must sum to ~1.0, got %.3f", sum))
	}

	at := cfg.Edge.F1.AdaptiveThreshold
	if at.ThresholdMin > at.ThresholdMax {
		result.add("edge.f1.adaptive_threshold", "threshold_min must be <= threshold_max")
	}
	if at.TargetAcceptanceMin > at.TargetAcceptanceMax {
		result.add("edge.f1.adaptive_threshold", "target_acceptance_min must be <= target_acceptance_max")
	}
	if at.UpdateInterval <= 0 {
		result.add("edge.f1.adaptive_threshold.update_interval", "must be positive")
	}

	if cfg.Edge.F1.HistoryTracker.MaxHistorySize <= 0 {
		result.add("edge.f1.history_tracker.max_history_size", "must be positive")
	}

	dt := cfg.Edge.F1.Hardware.DeviceType
	if dt != "cpu" && dt != "gpu" {
		result.add("edge.f1.hardware.device_type", fmt.Sprintf("must be 'cpu' or 'gpu', got %q", dt))
	}

	strategy := cfg.Edge.Confidence.Strategy
	switch strategy {
	case "max_prob", "entropy", "temperature", "top_k_agg":
	default:
		result.add("edge.confidence.strategy", fmt.Sprintf("unknown confidence strategy %q", strategy))
	}

	if cfg.Communication.CloudEndpoint == "" {
		result.add("communication.cloud_endpoint", "must not be empty")
	}

	return result
}
