// Package constraint implements HardConstraintChecker: the first-pass gate
// that forces a strategy when an invariant is violated, evaluated in fixed
// priority order with first-match-wins semantics.
package constraint

import (
	"fmt"

	"inferouter/internal/config"
	"inferouter/internal/domain"
)

// Checker is the process-scoped HardConstraintChecker.
type Checker struct {
	cfg config.HardConstraintsConfig
}

// New creates a Checker bound to the hard-constraint thresholds.
func New(cfg config.HardConstraintsConfig) *Checker {
	return &Checker{cfg: cfg}
}

// Check evaluates every rule in priority order and returns the first forced
// strategy, or ok=false when no hard constraint fires and scoring should
// take over.
func (c *Checker) Check(ctx domain.DecisionContext) (strategy domain.ExecutionStrategy, reason string, ok bool) {
	sys := ctx.SystemStats
	req := ctx.Requirements

	// 1. Hardware overload.
	if sys.DeviceType == domain.DeviceGPU && sys.GPUUsagePercent > c.cfg.GPUOverloadThreshold {
		return domain.CloudDirect, fmt.Sprintf("GPU usage %.1f%% exceeds overload threshold %.1f%%", sys.GPUUsagePercent, c.cfg.GPUOverloadThreshold), true
	}
	if sys.DeviceType == domain.DeviceCPU && sys.CPUUsagePercent > c.cfg.CPUOverloadThreshold {
		return domain.CloudDirect, fmt.Sprintf("CPU usage %.1f%% exceeds overload threshold %.1f%%", sys.CPUUsagePercent, c.cfg.CPUOverloadThreshold), true
	}

	// 2. Memory pressure.
	if sys.MemoryAvailableMB < c.cfg.MemoryCriticalMB {
		return domain.CloudDirect, fmt.Sprintf("available memory %.0fMB below critical threshold %.0fMB", sys.MemoryAvailableMB, c.cfg.MemoryCriticalMB), true
	}

	// 3. Ultra-low latency SLO.
	if req.MaxLatencyMs < c.cfg.UltraLowLatencyMs {
		return domain.EdgeOnly, fmt.Sprintf("SLO %.0fms below ultra-low-latency threshold %.0fms, no time for a round trip", req.MaxLatencyMs, c.cfg.UltraLowLatencyMs), true
	}

	// 4. Confidentiality.
	if req.PrivacyLevel >= c.cfg.PrivacyStrictLevel {
		return domain.EdgeOnly, fmt.Sprintf("privacy_level %d forbids upload (privacy/隐私)", req.PrivacyLevel), true
	}

	// 5. Weak network.
	if ctx.Network != nil && (ctx.Network.IsWeakNetwork || ctx.Network.RTTMs > c.cfg.WeakNetworkRTTMs) {
		return domain.EdgeOnly, fmt.Sprintf("weak network (rtt=%.0fms, threshold=%.0fms)", ctx.Network.RTTMs, c.cfg.WeakNetworkRTTMs), true
	}

	// 6. Urgent low-quality.
	if req.Priority >= c.cfg.HighPriorityThreshold && req.MinQualityScore < c.cfg.HighPriorityMinQuality {
		return domain.EdgeOnly, fmt.Sprintf("priority %d with min_quality_score %.2f below %.2f demands immediate local response", req.Priority, req.MinQualityScore, c.cfg.HighPriorityMinQuality), true
	}

	return "", "", false
}
