package threshold

import (
	"inferouter/internal/config"
	"inferouter/internal/domain"
	"inferouter/internal/history"
)

// Calculator is AdaptiveThresholdCalculator: a lazy controller that fires
// every UpdateInterval executions, reads the HistoryTracker, and mutates
// the shared Parameters. Updates are advisory: there is no rollback, only
// the clamps and the exponential smoothing keep the system stable.
type Calculator struct {
	params  *Parameters
	history *history.Tracker
	cfg     config.AdaptiveThresholdConfig

	count int
}

// New creates a Calculator bound to the given Parameters and HistoryTracker.
func New(params *Parameters, tracker *history.Tracker, cfg config.AdaptiveThresholdConfig) *Calculator {
	return &Calculator{params: params, history: tracker, cfg: cfg}
}

// ShouldUpdate increments the internal execution counter and reports
// whether this call crossed an UpdateInterval boundary.
func (c *Calculator) ShouldUpdate() bool {
	c.count++
	if c.count >= c.cfg.UpdateInterval {
		c.count = 0
		return true
	}
	return false
}

// Update reads the recent history window and retunes confidence_threshold
// and draft_max_tokens. Skips the threshold leg when fewer than 5 samples
// of SPECULATIVE_STANDARD exist. Weight auto-tuning is reserved (§4.6): a
// no-op passthrough pending a bandit/regret analysis this repo does not
// attempt.
func (c *Calculator) Update(sloMs float64) {
	c.updateConfidenceThreshold()
	c.updateDraftLength(sloMs)
}

func (c *Calculator) updateConfidenceThreshold() {
	n := 20
	if c.history.SampleCount(domain.SpeculativeStandard, false, n) < 5 {
		return
	}
	rate := c.history.RecentAcceptanceRate(domain.SpeculativeStandard, false, n)

	var adj float64
	switch {
	case rate > c.cfg.TargetAcceptanceMax:
		overshoot := rate - c.cfg.TargetAcceptanceMax
		adj = -(overshoot / 0.1) * c.cfg.ThresholdStep
	case rate < c.cfg.TargetAcceptanceMin:
		shortfall := c.cfg.TargetAcceptanceMin - rate
		adj = (shortfall / 0.1) * c.cfg.ThresholdStep
	default:
		return
	}

	snap := c.params.Snapshot()
	current := snap.ConfidenceThreshold
	alpha := c.cfg.SmoothingFactor
	next := current*(1-alpha) + (current+adj)*alpha
	c.params.setConfidenceThreshold(next)
}

func (c *Calculator) updateDraftLength(sloMs float64) {
	if sloMs <= 0 {
		sloMs = c.cfg.DefaultLatencySLOMs
	}
	n := 20
	if c.history.SampleCount(domain.SpeculativeStandard, false, n) < 5 {
		return
	}
	avgLatency := c.history.AvgLatency(domain.SpeculativeStandard, false, n)
	margin := (sloMs - avgLatency) / sloMs

	const (
		step  = 8
		floor = 32
		ceil  = 128
	)

	switch {
	case margin < 0.10:
		c.params.adjustDraftMaxTokens(-step, floor, ceil)
	case margin > 0.50:
		c.params.adjustDraftMaxTokens(step, floor, ceil)
	}
}
