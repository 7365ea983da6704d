// Package threshold owns the shared, mutable decision Parameters and the
// AdaptiveThresholdCalculator that retunes them online. Hoisting Parameters
// into its own leaf component (rather than letting DecisionModule,
// HistoryTracker, and the calculator reference each other directly) cuts
// the cyclic coupling called out in spec.md §9: every reader takes an
// atomic snapshot and the calculator is the only writer.
package threshold

import (
	"sync"

	"inferouter/internal/config"
)

// Parameters is the live, mutable decision state every request reads and
// only the AdaptiveThresholdCalculator writes. Guarded by an RWMutex:
// concurrent reads do not block each other, and a write briefly excludes
// reads (both are O(1) copies).
type Parameters struct {
	mu sync.RWMutex

	confidenceThreshold float64
	draftMaxTokens      int

	thresholdMin float64
	thresholdMax float64

	scoringWeightLatency float64
	scoringWeightCost    float64
	scoringWeightQuality float64
}

// NewParameters seeds Parameters from configuration defaults.
func NewParameters(cfg config.AdaptiveThresholdConfig, weights config.ScoringWeightsConfig) *Parameters {
	return &Parameters{
		confidenceThreshold:  cfg.InitialConfidence,
		draftMaxTokens:       cfg.InitialDraftMaxTokens,
		thresholdMin:         cfg.ThresholdMin,
		thresholdMax:         cfg.ThresholdMax,
		scoringWeightLatency: weights.Latency,
		scoringWeightCost:    weights.Cost,
		scoringWeightQuality: weights.Quality,
	}
}

// Snapshot is an immutable read of every live parameter, safe to pass
// around without further locking.
type Snapshot struct {
	ConfidenceThreshold float64
	DraftMaxTokens      int
	ThresholdMin        float64
	ThresholdMax        float64
	WeightLatency       float64
	WeightCost          float64
	WeightQuality       float64
}

// Snapshot takes a consistent read of all parameters.
func (p *Parameters) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return Snapshot{
		ConfidenceThreshold: p.confidenceThreshold,
		DraftMaxTokens:      p.draftMaxTokens,
		ThresholdMin:        p.thresholdMin,
		ThresholdMax:        p.thresholdMax,
		WeightLatency:       p.scoringWeightLatency,
		WeightCost:          p.scoringWeightCost,
		WeightQuality:       p.scoringWeightQuality,
	}
}

// setConfidenceThreshold clamps and stores a new threshold. Invariant:
// confidence_threshold in [threshold_min, threshold_max] at all times.
func (p *Parameters) setConfidenceThreshold(v float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if v < p.thresholdMin {
		v = p.thresholdMin
	}
	if v > p.thresholdMax {
		v = p.thresholdMax
	}
	p.confidenceThreshold = v
}

// adjustDraftMaxTokens adds delta, clamping to [floor, ceiling].
func (p *Parameters) adjustDraftMaxTokens(delta, floor, ceiling int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v := p.draftMaxTokens + delta
	if v < floor {
		v = floor
	}
	if v > ceiling {
		v = ceiling
	}
	p.draftMaxTokens = v
}
