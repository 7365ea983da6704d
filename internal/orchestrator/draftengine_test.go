package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inferouter/internal/domain"
	"inferouter/internal/model"
)

func TestAdapterDraftEngineProducesTokenProbsPerWord(t *testing.T) {
	adapter := model.NewSmallModeAdapter(model.SmallModeConfig{EnableTemplating: false})
	engine := NewAdapterDraftEngine(adapter, 5)

	result, err := engine.Draft(context.Background(), domain.InferenceRequest{Prompt: "hello there"}, 64)
	require.NoError(t, err)

	assert.NotEmpty(t, result.Text)
	assert.Equal(t, len(result.TokenProbs), len(splitWords(result.Text)))
	for _, tp := range result.TokenProbs {
		assert.True(t, tp.Probability > 0 && tp.Probability <= 1)
		assert.Len(t, tp.TopK, 5)
	}
}

func splitWords(s string) []string {
	var words []string
	cur := ""
	for _, r := range s {
		if r == ' ' || r == '\n' || r == '\t' {
			if cur != "" {
				words = append(words, cur)
				cur = ""
			}
			continue
		}
		cur += string(r)
	}
	if cur != "" {
		words = append(words, cur)
	}
	return words
}
