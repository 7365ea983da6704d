package verifier

import (
	"context"

	"inferouter/internal/model"
)

// AdapterGenerator implements Generator on top of a model.ReachModelAdapter,
// the same adapter abstraction the edge process uses for its draft engine
// (internal/orchestrator.AdapterDraftEngine). The cloud side only needs the
// aggregate continuation text, never per-token probabilities, so this is a
// thinner wrapper than the edge's.
type AdapterGenerator struct {
	adapter model.ReachModelAdapter
}

// NewAdapterGenerator wraps adapter as a Generator.
func NewAdapterGenerator(adapter model.ReachModelAdapter) *AdapterGenerator {
	return &AdapterGenerator{adapter: adapter}
}

// Generate asks the underlying adapter for a greedy (temperature=0)
// continuation of prompt, capped at maxTokens.
func (g *AdapterGenerator) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	input := model.GenerateInput{
		Messages: []model.Message{{Role: "user", Content: prompt}},
	}
	opts := model.GenerateOptions{
		Temperature: 0,
		MaxTokens:   maxTokens,
	}
	out, err := g.adapter.Generate(ctx, input, opts)
	if err != nil {
		return "", err
	}
	return out.Content, nil
}
