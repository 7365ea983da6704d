package verifier

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inferouter/internal/model"
)

func TestAdapterGeneratorReturnsAdapterContent(t *testing.T) {
	adapter := model.NewSmallModeAdapter(model.SmallModeConfig{EnableTemplating: false})
	gen := NewAdapterGenerator(adapter)

	text, err := gen.Generate(context.Background(), "the quick brown fox", 8)
	require.NoError(t, err)
	assert.NotEmpty(t, text)
}

func TestAdapterGeneratorUsableByMatch(t *testing.T) {
	adapter := model.NewSmallModeAdapter(model.SmallModeConfig{EnableTemplating: false})
	gen := NewAdapterGenerator(adapter)

	prompt := "once upon a time"
	continuation, err := gen.Generate(context.Background(), prompt, 10)
	require.NoError(t, err)

	resp := Match(prompt, continuation, continuation)
	assert.Equal(t, resp.AcceptedCount, resp.TotalCount)
	assert.InDelta(t, 1.0, resp.AcceptanceRate, 0.0001)
}
