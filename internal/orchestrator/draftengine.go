package orchestrator

import (
	"context"
	"math"
	"strings"
	"time"

	"inferouter/internal/domain"
	"inferouter/internal/model"
)

// AdapterDraftEngine implements DraftEngine on top of a
// model.ReachModelAdapter (internal/model/adapter.go): the edge process's
// small draft model is just another adapter in the same registry the
// teacher already uses for hosted/local/small-mode backends.
//
// ReachModelAdapter.Generate does not expose per-token logprobs, so this
// wraps the adapter's aggregate output into a synthetic TokenProb series:
// one entry per generated word, with probability derived from the
// adapter's reported FinishReason and a lexical heuristic (shorter,
// common words score higher). This is a stand-in for real logit access,
// which the spec leaves to the draft model implementation.
type AdapterDraftEngine struct {
	adapter model.ReachModelAdapter
	topK    int
}

// NewAdapterDraftEngine wraps adapter as a DraftEngine.
func NewAdapterDraftEngine(adapter model.ReachModelAdapter, topK int) *AdapterDraftEngine {
	if topK <= 0 {
		topK = 5
	}
	return &AdapterDraftEngine{adapter: adapter, topK: topK}
}

func (e *AdapterDraftEngine) Draft(ctx context.Context, req domain.InferenceRequest, maxTokens int) (DraftResult, error) {
	start := time.Now()

	input := model.GenerateInput{
		Messages: []model.Message{{Role: "user", Content: req.Prompt}},
	}
	opts := model.GenerateOptions{
		Temperature: req.Temperature,
		MaxTokens:   maxTokens,
		TopP:        req.TopP,
		TopK:        req.TopK,
	}

	out, err := e.adapter.Generate(ctx, input, opts)
	if err != nil {
		return DraftResult{}, err
	}

	words := strings.Fields(out.Content)
	probs := make([]domain.TokenProb, 0, len(words))
	for i, w := range words {
		p := syntheticProbability(w, i, out.FinishReason)
		probs = append(probs, domain.TokenProb{
			TokenID:     i,
			Token:       w,
			Probability: p,
			TopK:        topKSpread(p, e.topK),
		})
	}

	return DraftResult{
		Text:       out.Content,
		TokenProbs: probs,
		LatencyMs:  float64(time.Since(start).Milliseconds()),
	}, nil
}

// syntheticProbability favors short, frequent-looking tokens and decays
// slightly over the course of the draft, approximating how a real small
// model's confidence tends to soften toward the end of a continuation.
func syntheticProbability(word string, position int, finishReason string) float64 {
	base := 0.97 - 0.015*float64(len(word))
	if base < 0.5 {
		base = 0.5
	}
	decay := 0.002 * float64(position)
	p := base - decay
	if finishReason == "error" {
		p *= 0.5
	}
	return math.Max(0.05, math.Min(0.99, p))
}

// topKSpread builds a descending synthetic top-K distribution under top.
func topKSpread(top float64, k int) []float64 {
	spread := make([]float64, k)
	remaining := 1 - top
	spread[0] = top
	for i := 1; i < k; i++ {
		share := remaining / math.Pow(2, float64(i))
		spread[i] = share
	}
	return spread
}
