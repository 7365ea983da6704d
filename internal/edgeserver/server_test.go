package edgeserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inferouter/internal/config"
	"inferouter/internal/decision"
	"inferouter/internal/domain"
	"inferouter/internal/history"
	"inferouter/internal/kvcache"
	"inferouter/internal/model"
	"inferouter/internal/orchestrator"
	"inferouter/internal/state"
	"inferouter/internal/telemetry"
	"inferouter/internal/threshold"
	"inferouter/internal/wire"
)

type noopProber struct{}

func (noopProber) Probe(ctx context.Context) (float64, error) {
	return 0, nil
}

type noopConfidence struct{}

func (noopConfidence) Compute(tokenProbs []domain.TokenProb) domain.ConfidenceMetrics {
	return domain.ConfidenceMetrics{Score: 1.0}
}

type noopCloud struct{}

func (noopCloud) Verify(ctx context.Context, requestID, prompt, draft string, threshold float64, timeout time.Duration) (orchestrator.VerifyResult, error) {
	return orchestrator.VerifyResult{FinalText: prompt + draft, AcceptanceRate: 1.0}, nil
}

func (noopCloud) GenerateDirect(ctx context.Context, req domain.InferenceRequest, timeout time.Duration) (orchestrator.DirectResult, error) {
	return orchestrator.DirectResult{Text: req.Prompt, TokensGenerated: 1}, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Default()

	monitor := state.New(state.RuntimeSampler{Device: domain.DeviceCPU}, noopProber{}, cfg.Edge.F1.HardConstraints.WeakNetworkRTTMs)
	tracker := history.New(cfg.Edge.F1.HistoryTracker.MaxHistorySize)
	params := threshold.NewParameters(cfg.Edge.F1.AdaptiveThreshold, cfg.Edge.F1.ScoringWeights)
	calc := threshold.New(params, tracker, cfg.Edge.F1.AdaptiveThreshold)
	dm := decision.New(cfg.Edge.F1, monitor, tracker, params, calc)

	cache := kvcache.New(cfg.Edge.KVCache.MaxSize)
	adapter := model.NewSmallModeAdapter(model.SmallModeConfig{EnableTemplating: false})
	draftEngine := orchestrator.NewAdapterDraftEngine(adapter, cfg.Edge.Confidence.TopK)

	orch := orchestrator.New(draftEngine, noopConfidence{}, noopCloud{}, noopCloud{}, tracker, cache, telemetry.NewMetrics())

	return NewServer(dm, orch, monitor, cache, cfg.Edge.Confidence.Strategy, telemetry.NewMetrics())
}

func TestHandleInferenceReturnsOK(t *testing.T) {
	srv := newTestServer(t)

	body, err := json.Marshal(domain.InferenceRequest{Prompt: "hello there", MaxTokens: 16})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/inference", bytes.NewReader(body))
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleDraftForcesEdgeOnly(t *testing.T) {
	srv := newTestServer(t)

	body, err := json.Marshal(domain.InferenceRequest{Prompt: "hello there", MaxTokens: 16})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/draft", bytes.NewReader(body))
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp domain.InferenceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, domain.EdgeOnly, resp.Strategy)
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleSimulateSetsOverride(t *testing.T) {
	srv := newTestServer(t)

	cpu := 99.0
	body, err := json.Marshal(wire.SimulateRequest{CPUUsagePercent: &cpu})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/admin/simulate", bytes.NewReader(body))
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	stats := srv.monitor.SampleSystem()
	assert.Equal(t, cpu, stats.CPUUsagePercent)
}

func TestHandleSimulateClearRemovesOverride(t *testing.T) {
	srv := newTestServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/admin/simulate", bytes.NewReader([]byte(`{"clear":true}`)))
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpointExposesPrometheusFormat(t *testing.T) {
	srv := newTestServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "inferouter_edge_requests_total")
}
