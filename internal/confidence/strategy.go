// Package confidence implements the ConfidenceStrategy collaborator
// contract (spec.md §4.9 EXPANSION): one `Compute` method per scalar
// strategy, all populating the same shared domain.ConfidenceMetrics shape
// (entropy, max/min/avg probability) regardless of which scalar is active.
package confidence

import (
	"math"

	"inferouter/internal/domain"
)

// Strategy computes a scalar confidence score from per-token probabilities.
type Strategy interface {
	Compute(tokenProbs []domain.TokenProb) domain.ConfidenceMetrics
}

// New resolves a named strategy ("max_prob", "entropy", "temperature",
// "top_k_agg") to its Strategy implementation, defaulting to MaxProb on an
// unrecognized name.
func New(name string, topK int, temperature float64) Strategy {
	switch name {
	case "entropy":
		return EntropyStrategy{}
	case "temperature":
		return TemperatureStrategy{Temperature: temperature}
	case "top_k_agg":
		if topK <= 0 {
			topK = 5
		}
		return TopKAggStrategy{K: topK}
	default:
		return MaxProbStrategy{}
	}
}

// sharedMetrics computes the entropy/min/max/avg fields common to every
// strategy, leaving only Score/Strategy to be filled by the caller.
func sharedMetrics(tokenProbs []domain.TokenProb) domain.ConfidenceMetrics {
	if len(tokenProbs) == 0 {
		return domain.ConfidenceMetrics{}
	}
	min, max, sum := math.Inf(1), math.Inf(-1), 0.0
	entropySum := 0.0
	for _, tp := range tokenProbs {
		if tp.Probability < min {
			min = tp.Probability
		}
		if tp.Probability > max {
			max = tp.Probability
		}
		sum += tp.Probability
		entropySum += tokenEntropy(tp)
	}
	n := float64(len(tokenProbs))
	return domain.ConfidenceMetrics{
		Entropy: entropySum / n,
		MaxProb: max,
		MinProb: min,
		AvgProb: sum / n,
	}
}

// tokenEntropy computes Shannon entropy (nats) over a token's distribution.
// When only the chosen token's probability is known, the rest of the mass
// is treated as a single bucket (a lower bound on the true entropy).
func tokenEntropy(tp domain.TokenProb) float64 {
	dist := tp.TopK
	if len(dist) == 0 {
		dist = []float64{tp.Probability, 1 - tp.Probability}
	}
	h := 0.0
	for _, p := range dist {
		if p <= 0 {
			continue
		}
		h -= p * math.Log(p)
	}
	return h
}

// normalizedEntropy divides raw entropy by the max possible entropy for the
// observed support size, giving a value in [0,1].
func normalizedEntropy(raw float64, supportSize int) float64 {
	if supportSize <= 1 {
		return 0
	}
	maxH := math.Log(float64(supportSize))
	if maxH <= 0 {
		return 0
	}
	v := raw / maxH
	if v > 1 {
		v = 1
	}
	if v < 0 {
		v = 0
	}
	return v
}

// MaxProbStrategy scores by the mean per-token argmax probability.
type MaxProbStrategy struct{}

func (MaxProbStrategy) Compute(tokenProbs []domain.TokenProb) domain.ConfidenceMetrics {
	m := sharedMetrics(tokenProbs)
	m.Score = m.AvgProb
	m.Strategy = domain.MaxProb
	return m
}

// EntropyStrategy scores as 1 minus the normalized per-token entropy,
// averaged over the draft.
type EntropyStrategy struct{}

func (EntropyStrategy) Compute(tokenProbs []domain.TokenProb) domain.ConfidenceMetrics {
	m := sharedMetrics(tokenProbs)
	if len(tokenProbs) == 0 {
		m.Strategy = domain.Entropy
		return m
	}
	sum := 0.0
	for _, tp := range tokenProbs {
		supportSize := len(tp.TopK)
		if supportSize == 0 {
			supportSize = 2
		}
		sum += 1 - normalizedEntropy(tokenEntropy(tp), supportSize)
	}
	m.Score = sum / float64(len(tokenProbs))
	m.Strategy = domain.Entropy
	return m
}

// TemperatureStrategy rescales each token's probability by a calibration
// temperature before taking MAX_PROB, used to correct an overconfident
// draft model.
type TemperatureStrategy struct {
	Temperature float64
}

func (s TemperatureStrategy) Compute(tokenProbs []domain.TokenProb) domain.ConfidenceMetrics {
	temp := s.Temperature
	if temp <= 0 {
		temp = 1.0
	}
	m := sharedMetrics(tokenProbs)
	if len(tokenProbs) == 0 {
		m.Strategy = domain.Temperature
		return m
	}
	sum := 0.0
	for _, tp := range tokenProbs {
		rescaled := rescaleByTemperature(tp.Probability, temp)
		sum += rescaled
	}
	m.Score = sum / float64(len(tokenProbs))
	m.Strategy = domain.Temperature
	return m
}

// rescaleByTemperature applies logit/T rescaling to a single probability,
// approximating the full-distribution softmax-with-temperature using only
// the chosen token's probability (the draft engine does not expose full
// logits across the process boundary).
func rescaleByTemperature(p, temp float64) float64 {
	if p <= 0 {
		return 0
	}
	if p >= 1 {
		return 1
	}
	logit := math.Log(p / (1 - p))
	rescaled := logit / temp
	return 1 / (1 + math.Exp(-rescaled))
}

// TopKAggStrategy scores by the mean probability mass captured by the top
// K candidates at each position.
type TopKAggStrategy struct {
	K int
}

func (s TopKAggStrategy) Compute(tokenProbs []domain.TokenProb) domain.ConfidenceMetrics {
	k := s.K
	if k <= 0 {
		k = 5
	}
	m := sharedMetrics(tokenProbs)
	if len(tokenProbs) == 0 {
		m.Strategy = domain.TopKAgg
		return m
	}
	sum := 0.0
	for _, tp := range tokenProbs {
		dist := tp.TopK
		if len(dist) == 0 {
			dist = []float64{tp.Probability}
		}
		limit := k
		if limit > len(dist) {
			limit = len(dist)
		}
		mass := 0.0
		for i := 0; i < limit; i++ {
			mass += dist[i]
		}
		if mass > 1 {
			mass = 1
		}
		sum += mass
	}
	m.Score = sum / float64(len(tokenProbs))
	m.Strategy = domain.TopKAgg
	return m
}
