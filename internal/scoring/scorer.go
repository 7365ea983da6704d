// Package scoring implements MultiObjectiveScorer: per-strategy scores on
// latency/cost/quality axes, and the fallback plan used when every
// candidate strategy zeroes out.
package scoring

import (
	"inferouter/internal/config"
	"inferouter/internal/domain"
	"inferouter/internal/history"
	"inferouter/internal/threshold"
)

// Scorer is the process-scoped MultiObjectiveScorer.
type Scorer struct {
	history *history.Tracker
	cfg     config.F1Config
}

// New creates a Scorer bound to the given HistoryTracker and F1 config.
func New(tracker *history.Tracker, cfg config.F1Config) *Scorer {
	return &Scorer{history: tracker, cfg: cfg}
}

// Scored is one strategy's score breakdown.
type Scored struct {
	Strategy domain.ExecutionStrategy
	Score    float64
	Eligible bool // false when latency-score hard-zeroed the strategy
}

// ScoreAll scores every enumerated strategy for the given context, using
// the supplied parameter snapshot for the speculative strategies'
// confidence/acceptance behavior.
func (s *Scorer) ScoreAll(ctx domain.DecisionContext, params threshold.Snapshot) []Scored {
	out := make([]Scored, 0, 4)
	for _, strat := range domain.AllStrategies() {
		out = append(out, s.score(strat, ctx, params))
	}
	return out
}

// Best returns the argmax of ScoreAll's non-zero entries, or ok=false when
// every strategy scored zero (the caller should use the fallback plan).
func Best(scored []Scored) (domain.ExecutionStrategy, float64, bool) {
	var bestStrat domain.ExecutionStrategy
	bestScore := -1.0
	found := false
	for _, sc := range scored {
		if !sc.Eligible || sc.Score <= 0 {
			continue
		}
		if sc.Score > bestScore {
			bestScore = sc.Score
			bestStrat = sc.Strategy
			found = true
		}
	}
	return bestStrat, bestScore, found
}

// Fallback implements the documented fallback: SPECULATIVE_STANDARD when
// CPU < 90%, else CLOUD_DIRECT when memory allows a network round trip,
// else EDGE_ONLY.
func Fallback(sys domain.SystemStats, memCriticalMB float64) domain.ExecutionStrategy {
	if sys.CPUUsagePercent < 90 {
		return domain.SpeculativeStandard
	}
	if sys.MemoryAvailableMB >= memCriticalMB {
		return domain.CloudDirect
	}
	return domain.EdgeOnly
}

func (s *Scorer) score(strat domain.ExecutionStrategy, ctx domain.DecisionContext, params threshold.Snapshot) Scored {
	lat, eligible := s.latencyScore(strat, ctx)
	if !eligible {
		return Scored{Strategy: strat, Score: 0, Eligible: false}
	}
	cost := costScore(strat)
	qual := s.qualityScore(strat, ctx, params)

	weights := s.cfg.ScoringWeights
	score := weights.Latency*lat + weights.Cost*cost + weights.Quality*qual
	if ctx.Requirements.Priority >= 2 {
		score += 0.1 * lat
	}
	if score < 0 {
		score = 0
	}
	return Scored{Strategy: strat, Score: score, Eligible: true}
}

func (s *Scorer) latencyScore(strat domain.ExecutionStrategy, ctx domain.DecisionContext) (float64, bool) {
	const n = 20
	var estimate float64
	switch strat {
	case domain.EdgeOnly:
		estimate = s.cfg.LatencyEstimates.EdgeOnlyMs
	case domain.CloudDirect:
		estimate = s.cfg.LatencyEstimates.CloudDirectMs
	case domain.SpeculativeStandard, domain.AdaptiveConfidence:
		estimate = s.cfg.LatencyEstimates.SpeculativeStandardMs
	}

	if s.history.SampleCount(strat, false, n) >= 5 {
		estimate = s.history.AvgLatency(strat, false, n)
	}

	if ctx.Network != nil {
		switch strat {
		case domain.CloudDirect:
			estimate += 2 * ctx.Network.RTTMs
		case domain.SpeculativeStandard, domain.AdaptiveConfidence:
			estimate += 1 * ctx.Network.RTTMs
		}
	}

	slo := ctx.Requirements.MaxLatencyMs
	if slo <= 0 {
		return 1, true
	}
	if estimate > slo {
		return 0, false
	}
	score := 1 - estimate/slo
	if score < 0 {
		score = 0
	}
	return score, true
}

func costScore(strat domain.ExecutionStrategy) float64 {
	switch strat {
	case domain.EdgeOnly:
		return 1.0
	case domain.SpeculativeStandard:
		return 0.6
	case domain.AdaptiveConfidence:
		return 0.7
	case domain.CloudDirect:
		return 0.0
	default:
		return 0.0
	}
}

func baseQuality(strat domain.ExecutionStrategy) float64 {
	switch strat {
	case domain.EdgeOnly:
		return 0.7
	case domain.SpeculativeStandard:
		return 0.95
	case domain.AdaptiveConfidence:
		return 0.92
	case domain.CloudDirect:
		return 1.0
	default:
		return 0.5
	}
}

func (s *Scorer) qualityScore(strat domain.ExecutionStrategy, ctx domain.DecisionContext, params threshold.Snapshot) float64 {
	const n = 20
	q := baseQuality(strat)

	if s.history.SampleCount(strat, false, n) >= 5 {
		q *= s.history.SuccessRate(strat, false, n)
		if strat.IsSpeculative() {
			acceptance := s.history.RecentAcceptanceRate(strat, false, n)
			q *= 0.8 + 0.2*acceptance
		}
	}

	touchesCloud := strat == domain.CloudDirect || strat.IsSpeculative()
	if touchesCloud && ctx.Requirements.MinQualityScore > 0.9 {
		q += 0.1
	}
	if q > 1.0 {
		q = 1.0
	}
	return q
}
