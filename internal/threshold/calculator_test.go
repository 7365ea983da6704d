package threshold

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inferouter/internal/config"
	"inferouter/internal/domain"
	"inferouter/internal/history"
)

func defaultCfg() config.AdaptiveThresholdConfig {
	return config.Default().Edge.F1.AdaptiveThreshold
}

func TestShouldUpdateFiresOnInterval(t *testing.T) {
	cfg := defaultCfg()
	cfg.UpdateInterval = 10
	c := New(NewParameters(cfg, config.Default().Edge.F1.ScoringWeights), history.New(100), cfg)

	fired := 0
	for i := 0; i < 25; i++ {
		if c.ShouldUpdate() {
			fired++
		}
	}
	assert.Equal(t, 2, fired)
}

func TestUpdateSkippedBelowFiveSamples(t *testing.T) {
	cfg := defaultCfg()
	params := NewParameters(cfg, config.Default().Edge.F1.ScoringWeights)
	tracker := history.New(100)
	tracker.Add(domain.ExecutionRecord{Strategy: domain.SpeculativeStandard, AcceptanceRate: 0.99, Timestamp: time.Now()})
	c := New(params, tracker, cfg)

	before := params.Snapshot().ConfidenceThreshold
	c.Update(cfg.DefaultLatencySLOMs)
	after := params.Snapshot().ConfidenceThreshold
	assert.Equal(t, before, after)
}

func TestUpdateLowersThresholdOnHighAcceptance(t *testing.T) {
	cfg := defaultCfg()
	cfg.InitialConfidence = 0.80
	params := NewParameters(cfg, config.Default().Edge.F1.ScoringWeights)
	tracker := history.New(100)
	for i := 0; i < 20; i++ {
		tracker.Add(domain.ExecutionRecord{Strategy: domain.SpeculativeStandard, AcceptanceRate: 0.95, TotalLatencyMs: 50, Timestamp: time.Now()})
	}
	c := New(params, tracker, cfg)

	c.Update(cfg.DefaultLatencySLOMs)
	c.Update(cfg.DefaultLatencySLOMs)

	snap := params.Snapshot()
	assert.Less(t, snap.ConfidenceThreshold, 0.80)
	assert.GreaterOrEqual(t, snap.ConfidenceThreshold, cfg.ThresholdMin)
}

func TestUpdateRaisesThresholdOnLowAcceptance(t *testing.T) {
	cfg := defaultCfg()
	cfg.InitialConfidence = 0.80
	params := NewParameters(cfg, config.Default().Edge.F1.ScoringWeights)
	tracker := history.New(100)
	for i := 0; i < 20; i++ {
		tracker.Add(domain.ExecutionRecord{Strategy: domain.SpeculativeStandard, AcceptanceRate: 0.5, TotalLatencyMs: 50, Timestamp: time.Now()})
	}
	c := New(params, tracker, cfg)
	c.Update(cfg.DefaultLatencySLOMs)

	snap := params.Snapshot()
	assert.Greater(t, snap.ConfidenceThreshold, 0.80)
	assert.LessOrEqual(t, snap.ConfidenceThreshold, cfg.ThresholdMax)
}

func TestThresholdNeverLeavesClampRange(t *testing.T) {
	cfg := defaultCfg()
	params := NewParameters(cfg, config.Default().Edge.F1.ScoringWeights)
	tracker := history.New(100)
	for i := 0; i < 50; i++ {
		tracker.Add(domain.ExecutionRecord{Strategy: domain.SpeculativeStandard, AcceptanceRate: 1.0, TotalLatencyMs: 10, Timestamp: time.Now()})
	}
	c := New(params, tracker, cfg)
	for i := 0; i < 200; i++ {
		c.Update(cfg.DefaultLatencySLOMs)
		snap := params.Snapshot()
		require.GreaterOrEqual(t, snap.ConfidenceThreshold, cfg.ThresholdMin)
		require.LessOrEqual(t, snap.ConfidenceThreshold, cfg.ThresholdMax)
	}
}

func TestDraftLengthShrinksUnderLatencyPressure(t *testing.T) {
	cfg := defaultCfg()
	cfg.InitialDraftMaxTokens = 64
	params := NewParameters(cfg, config.Default().Edge.F1.ScoringWeights)
	tracker := history.New(100)
	for i := 0; i < 20; i++ {
		// latency very close to SLO -> margin < 10%
		tracker.Add(domain.ExecutionRecord{Strategy: domain.SpeculativeStandard, AcceptanceRate: 0.85, TotalLatencyMs: 145, Timestamp: time.Now()})
	}
	c := New(params, tracker, cfg)
	c.Update(150)
	assert.Equal(t, 56, params.Snapshot().DraftMaxTokens)
}

func TestDraftLengthGrowsWithAmpleMargin(t *testing.T) {
	cfg := defaultCfg()
	cfg.InitialDraftMaxTokens = 64
	params := NewParameters(cfg, config.Default().Edge.F1.ScoringWeights)
	tracker := history.New(100)
	for i := 0; i < 20; i++ {
		tracker.Add(domain.ExecutionRecord{Strategy: domain.SpeculativeStandard, AcceptanceRate: 0.85, TotalLatencyMs: 50, Timestamp: time.Now()})
	}
	c := New(params, tracker, cfg)
	c.Update(150)
	assert.Equal(t, 72, params.Snapshot().DraftMaxTokens)
}
