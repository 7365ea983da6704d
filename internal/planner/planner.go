// Package planner implements ExecutionPlanner: turns (strategy, context)
// into a fully-parameterized domain.ExecutionPlan.
package planner

import (
	"time"

	"inferouter/internal/config"
	"inferouter/internal/domain"
	"inferouter/internal/threshold"
)

// Planner is the process-scoped ExecutionPlanner.
type Planner struct {
	cfg config.F1Config
}

// New creates a Planner bound to the F1 configuration tree.
func New(cfg config.F1Config) *Planner {
	return &Planner{cfg: cfg}
}

// Plan builds a fully-parameterized ExecutionPlan for the chosen strategy.
func (p *Planner) Plan(strategy domain.ExecutionStrategy, score float64, reason string, ctx domain.DecisionContext, params threshold.Snapshot) domain.ExecutionPlan {
	gpu := ctx.SystemStats.DeviceType == domain.DeviceGPU

	draftMaxTokens := p.hardwareDraftTokens(strategy, gpu, params)
	draftMaxTokens = p.compressForLatency(strategy, draftMaxTokens, ctx.Requirements.MaxLatencyMs, gpu)

	confidenceThreshold := p.confidenceThreshold(strategy, ctx, params)

	verifyTimeout := p.verifyTimeout(ctx)

	plan := domain.ExecutionPlan{
		Strategy:            strategy,
		Score:               score,
		Reason:              reason,
		ConfidenceThreshold:  confidenceThreshold,
		DraftMaxTokens:      draftMaxTokens,
		Params: map[string]any{
			"verify_timeout_ms": verifyTimeout.Milliseconds(),
		},
	}
	if plan.Reason == "" {
		plan.Reason = string(strategy) + " selected"
	}
	return plan
}

func (p *Planner) hardwareDraftTokens(strategy domain.ExecutionStrategy, gpu bool, params threshold.Snapshot) int {
	mode := p.cfg.HardwareAdaptive.CPUMode
	if gpu {
		mode = p.cfg.HardwareAdaptive.GPUMode
	}

	switch strategy {
	case domain.EdgeOnly:
		return mode.EdgeOnlyMaxTokens
	case domain.SpeculativeStandard, domain.AdaptiveConfidence:
		tokens := mode.CollaborativeDraftTokens
		if params.DraftMaxTokens > 0 && params.DraftMaxTokens < tokens {
			tokens = params.DraftMaxTokens
		}
		return tokens
	default:
		return mode.EdgeOnlyMaxTokens
	}
}

func (p *Planner) compressForLatency(strategy domain.ExecutionStrategy, tokens int, sloMs float64, gpu bool) int {
	if !strategy.IsSpeculative() || sloMs <= 0 {
		return tokens
	}

	hardwareCap := p.cfg.HardwareAdaptive.CPUMode.CollaborativeDraftTokens
	if gpu {
		hardwareCap = p.cfg.HardwareAdaptive.GPUMode.CollaborativeDraftTokens
	}

	switch {
	case sloMs < 500:
		shrunk := hardwareCap / 3
		if shrunk < 1 {
			shrunk = 1
		}
		if shrunk > 32 {
			shrunk = 32
		}
		if tokens > shrunk {
			tokens = shrunk
		}
	case sloMs < 1000:
		tokens = int(float64(tokens) * 0.75)
	}
	if tokens < 1 {
		tokens = 1
	}
	return tokens
}

func (p *Planner) confidenceThreshold(strategy domain.ExecutionStrategy, ctx domain.DecisionContext, params threshold.Snapshot) float64 {
	switch strategy {
	case domain.SpeculativeStandard:
		return 0.80
	case domain.AdaptiveConfidence:
		t := 0.75
		if ctx.Requirements.MinQualityScore > 0.9 {
			t += 0.10
		}
		if ctx.Requirements.MinQualityScore < 0.7 {
			t -= 0.10
		}
		if ctx.Requirements.Priority >= 3 {
			t -= 0.05
		}
		if t < params.ThresholdMin {
			t = params.ThresholdMin
		}
		if t > params.ThresholdMax {
			t = params.ThresholdMax
		}
		return t
	default:
		return params.ConfidenceThreshold
	}
}

func (p *Planner) verifyTimeout(ctx domain.DecisionContext) time.Duration {
	base := 2 * time.Second
	heavyLoad := ctx.SystemStats.CPUUsagePercent > 80 || ctx.SystemStats.GPUUsagePercent > 70
	if heavyLoad {
		base = time.Duration(float64(base) * 1.2)
	}
	return base
}
