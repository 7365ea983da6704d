package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"inferouter/internal/config"
	"inferouter/internal/domain"
	"inferouter/internal/threshold"
)

func snapFor(cfg config.Config) threshold.Snapshot {
	p := threshold.NewParameters(cfg.Edge.F1.AdaptiveThreshold, cfg.Edge.F1.ScoringWeights)
	return p.Snapshot()
}

func TestEdgeOnlyDraftTokensByHardware(t *testing.T) {
	cfg := config.Default()
	pl := New(cfg.Edge.F1)

	ctxCPU := domain.DecisionContext{SystemStats: domain.SystemStats{DeviceType: domain.DeviceCPU}, Requirements: domain.TaskRequirements{MaxLatencyMs: 2000}}
	plan := pl.Plan(domain.EdgeOnly, 1, "", ctxCPU, snapFor(cfg))
	assert.Equal(t, 128, plan.DraftMaxTokens)

	ctxGPU := domain.DecisionContext{SystemStats: domain.SystemStats{DeviceType: domain.DeviceGPU}, Requirements: domain.TaskRequirements{MaxLatencyMs: 2000}}
	plan2 := pl.Plan(domain.EdgeOnly, 1, "", ctxGPU, snapFor(cfg))
	assert.Equal(t, 256, plan2.DraftMaxTokens)
}

func TestSpeculativeCompressesUnderTightSLO(t *testing.T) {
	cfg := config.Default()
	pl := New(cfg.Edge.F1)

	ctx := domain.DecisionContext{SystemStats: domain.SystemStats{DeviceType: domain.DeviceCPU}, Requirements: domain.TaskRequirements{MaxLatencyMs: 400}}
	plan := pl.Plan(domain.SpeculativeStandard, 1, "", ctx, snapFor(cfg))
	assert.LessOrEqual(t, plan.DraftMaxTokens, 32)
	assert.GreaterOrEqual(t, plan.DraftMaxTokens, 1)
}

func TestSpeculativeConfidenceThresholdFixed(t *testing.T) {
	cfg := config.Default()
	pl := New(cfg.Edge.F1)
	ctx := domain.DecisionContext{SystemStats: domain.SystemStats{}, Requirements: domain.TaskRequirements{MaxLatencyMs: 2000}}
	plan := pl.Plan(domain.SpeculativeStandard, 1, "", ctx, snapFor(cfg))
	assert.Equal(t, 0.80, plan.ConfidenceThreshold)
}

func TestAdaptiveConfidenceThresholdAdjustments(t *testing.T) {
	cfg := config.Default()
	pl := New(cfg.Edge.F1)

	highQuality := domain.DecisionContext{Requirements: domain.TaskRequirements{MaxLatencyMs: 2000, MinQualityScore: 0.95}}
	plan := pl.Plan(domain.AdaptiveConfidence, 1, "", highQuality, snapFor(cfg))
	assert.InDelta(t, 0.85, plan.ConfidenceThreshold, 0.0001)

	urgent := domain.DecisionContext{Requirements: domain.TaskRequirements{MaxLatencyMs: 2000, MinQualityScore: 0.5, Priority: 4}}
	plan2 := pl.Plan(domain.AdaptiveConfidence, 1, "", urgent, snapFor(cfg))
	assert.InDelta(t, 0.60, plan2.ConfidenceThreshold, 0.0001)
}

func TestConfidenceThresholdAlwaysClamped(t *testing.T) {
	cfg := config.Default()
	pl := New(cfg.Edge.F1)
	ctx := domain.DecisionContext{Requirements: domain.TaskRequirements{MaxLatencyMs: 2000, MinQualityScore: 0.3, Priority: 5}}
	plan := pl.Plan(domain.AdaptiveConfidence, 1, "", ctx, snapFor(cfg))
	assert.GreaterOrEqual(t, plan.ConfidenceThreshold, cfg.Edge.F1.AdaptiveThreshold.ThresholdMin)
	assert.LessOrEqual(t, plan.ConfidenceThreshold, cfg.Edge.F1.AdaptiveThreshold.ThresholdMax)
}

func TestVerifyTimeoutWidensUnderLoad(t *testing.T) {
	cfg := config.Default()
	pl := New(cfg.Edge.F1)

	light := domain.DecisionContext{SystemStats: domain.SystemStats{CPUUsagePercent: 20}, Requirements: domain.TaskRequirements{MaxLatencyMs: 2000}}
	planLight := pl.Plan(domain.SpeculativeStandard, 1, "", light, snapFor(cfg))

	heavy := domain.DecisionContext{SystemStats: domain.SystemStats{CPUUsagePercent: 90}, Requirements: domain.TaskRequirements{MaxLatencyMs: 2000}}
	planHeavy := pl.Plan(domain.SpeculativeStandard, 1, "", heavy, snapFor(cfg))

	assert.Greater(t, planHeavy.Params["verify_timeout_ms"], planLight.Params["verify_timeout_ms"])
}

func TestReasonNeverEmpty(t *testing.T) {
	cfg := config.Default()
	pl := New(cfg.Edge.F1)
	ctx := domain.DecisionContext{Requirements: domain.TaskRequirements{MaxLatencyMs: 2000}}
	plan := pl.Plan(domain.EdgeOnly, 1, "", ctx, snapFor(cfg))
	assert.NotEmpty(t, plan.Reason)
}
