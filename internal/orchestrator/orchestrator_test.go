package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inferouter/internal/domain"
	"inferouter/internal/history"
)

type stubDraft struct {
	result DraftResult
	err    error
}

func (s stubDraft) Draft(ctx context.Context, req domain.InferenceRequest, maxTokens int) (DraftResult, error) {
	return s.result, s.err
}

type stubConfidence struct {
	metrics domain.ConfidenceMetrics
}

func (s stubConfidence) Compute(tokenProbs []domain.TokenProb) domain.ConfidenceMetrics {
	return s.metrics
}

type stubVerifier struct {
	result VerifyResult
	err    error
}

func (s stubVerifier) Verify(ctx context.Context, requestID, prompt, draft string, threshold float64, timeout time.Duration) (VerifyResult, error) {
	return s.result, s.err
}

type stubDirect struct {
	result DirectResult
	err    error
}

func (s stubDirect) GenerateDirect(ctx context.Context, req domain.InferenceRequest, timeout time.Duration) (DirectResult, error) {
	return s.result, s.err
}

func plan(strategy domain.ExecutionStrategy) domain.ExecutionPlan {
	return domain.ExecutionPlan{
		Strategy:            strategy,
		ConfidenceThreshold: 0.8,
		DraftMaxTokens:      64,
	}
}

func baseReq() domain.InferenceRequest {
	return domain.InferenceRequest{
		Prompt:              "hello",
		AllowSpeculative:    true,
		AllowConfidenceGate: true,
	}
}

func TestEdgeOnlyReturnsDraftText(t *testing.T) {
	tracker := history.New(10)
	o := New(stubDraft{result: DraftResult{Text: "hello world", LatencyMs: 5}}, stubConfidence{}, stubVerifier{}, stubDirect{}, tracker, nil, nil)

	resp := o.Execute(context.Background(), baseReq(), plan(domain.EdgeOnly))

	assert.Equal(t, "hello world", resp.Text)
	assert.Equal(t, domain.EdgeOnly, resp.Strategy)
	assert.Equal(t, 1, tracker.Len())
}

func TestCloudDirectDegradesToEdgeOnlyOnFailure(t *testing.T) {
	tracker := history.New(10)
	o := New(
		stubDraft{result: DraftResult{Text: "edge fallback text", LatencyMs: 3}},
		stubConfidence{},
		stubVerifier{},
		stubDirect{err: errors.New("cloud unreachable")},
		tracker, nil, nil,
	)

	resp := o.Execute(context.Background(), baseReq(), plan(domain.CloudDirect))

	assert.Equal(t, "edge fallback text", resp.Text)
	assert.Equal(t, domain.CloudDirect, resp.Strategy)
}

func TestCloudDirectReturnsCloudTextOnSuccess(t *testing.T) {
	tracker := history.New(10)
	o := New(
		stubDraft{},
		stubConfidence{},
		stubVerifier{},
		stubDirect{result: DirectResult{Text: "cloud answer", LatencyMs: 50}},
		tracker, nil, nil,
	)

	resp := o.Execute(context.Background(), baseReq(), plan(domain.CloudDirect))

	assert.Equal(t, "cloud answer", resp.Text)
	assert.Equal(t, 50.0, resp.CloudLatencyMs)
}

// Scenario 6: cloud /verify returns an error (e.g. HTTP 503). The response
// must fall back to the draft text untouched, used_draft_verify must be
// false, and a history record with success=true must still be recorded.
func TestSpeculativeVerifyFailureDegradesToDraft(t *testing.T) {
	tracker := history.New(10)
	o := New(
		stubDraft{result: DraftResult{
			Text:      "draft text",
			LatencyMs: 10,
			TokenProbs: []domain.TokenProb{
				{Token: "draft", Probability: 0.95},
			},
		}},
		stubConfidence{metrics: domain.ConfidenceMetrics{Score: 0.9}},
		stubVerifier{err: errors.New("503 service unavailable")},
		stubDirect{},
		tracker, nil, nil,
	)

	resp := o.Execute(context.Background(), baseReq(), plan(domain.SpeculativeStandard))

	assert.Equal(t, "draft text", resp.Text)
	assert.False(t, resp.UsedDraftVerify)
	require.Equal(t, 1, tracker.Len())
	recs := tracker.StatisticsSummary()
	assert.Equal(t, 1, recs.TotalRecords)
	assert.True(t, recs.OverallSuccessRate > 0)
}

func TestSpeculativeVerifySuccessUsesFinalText(t *testing.T) {
	tracker := history.New(10)
	o := New(
		stubDraft{result: DraftResult{Text: "draft text", LatencyMs: 10, TokenProbs: []domain.TokenProb{{Probability: 0.9}}}},
		stubConfidence{metrics: domain.ConfidenceMetrics{Score: 0.9}},
		stubVerifier{result: VerifyResult{FinalText: "final corrected text", AcceptanceRate: 0.7, LatencyMs: 40}},
		stubDirect{},
		tracker, nil, nil,
	)

	resp := o.Execute(context.Background(), baseReq(), plan(domain.SpeculativeStandard))

	assert.Equal(t, "final corrected text", resp.Text)
	assert.True(t, resp.UsedDraftVerify)
	assert.Equal(t, 0.7, resp.AcceptanceRate)
	assert.True(t, resp.AcceptanceRate >= 0 && resp.AcceptanceRate <= 1)
}

func TestAdaptiveConfidenceLowScoreShortCircuitsBeforeVerify(t *testing.T) {
	tracker := history.New(10)
	verifyCalled := false
	o := New(
		stubDraft{result: DraftResult{Text: "low confidence draft", LatencyMs: 10, TokenProbs: []domain.TokenProb{{Probability: 0.3}}}},
		stubConfidence{metrics: domain.ConfidenceMetrics{Score: 0.3}},
		verifierFunc(func(ctx context.Context, requestID, prompt, draft string, threshold float64, timeout time.Duration) (VerifyResult, error) {
			verifyCalled = true
			return VerifyResult{}, nil
		}),
		stubDirect{},
		tracker, nil, nil,
	)

	resp := o.Execute(context.Background(), baseReq(), plan(domain.AdaptiveConfidence))

	assert.False(t, verifyCalled)
	assert.Equal(t, "low confidence draft", resp.Text)
	assert.False(t, resp.UsedDraftVerify)
}

func TestDraftFailureReturnsEmptyTextAndIsRecorded(t *testing.T) {
	tracker := history.New(10)
	o := New(
		stubDraft{err: errors.New("draft engine exploded")},
		stubConfidence{},
		stubVerifier{},
		stubDirect{},
		tracker, nil, nil,
	)

	resp := o.Execute(context.Background(), baseReq(), plan(domain.SpeculativeStandard))

	assert.Empty(t, resp.Text)
	require.Equal(t, 1, tracker.Len())
}

func TestTotalLatencyIsNonNegative(t *testing.T) {
	tracker := history.New(10)
	o := New(
		stubDraft{result: DraftResult{Text: "x", LatencyMs: 10, TokenProbs: []domain.TokenProb{{Probability: 0.9}}}},
		stubConfidence{metrics: domain.ConfidenceMetrics{Score: 0.9}},
		stubVerifier{result: VerifyResult{FinalText: "xy", AcceptanceRate: 1, LatencyMs: 20}},
		stubDirect{},
		tracker, nil, nil,
	)

	resp := o.Execute(context.Background(), baseReq(), plan(domain.SpeculativeStandard))
	assert.GreaterOrEqual(t, resp.TotalLatencyMs, 0.0)
}

type verifierFunc func(ctx context.Context, requestID, prompt, draft string, threshold float64, timeout time.Duration) (VerifyResult, error)

func (f verifierFunc) Verify(ctx context.Context, requestID, prompt, draft string, threshold float64, timeout time.Duration) (VerifyResult, error) {
	return f(ctx, requestID, prompt, draft, threshold, timeout)
}
