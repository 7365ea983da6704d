package cloudserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inferouter/internal/cloudserver/verifier"
	"inferouter/internal/config"
	"inferouter/internal/model"
	"inferouter/internal/telemetry"
	"inferouter/internal/wire"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	adapter := model.NewSmallModeAdapter(model.SmallModeConfig{EnableTemplating: false})
	gen := verifier.NewAdapterGenerator(adapter)
	return NewServer(config.Default().Cloud, gen, nil, telemetry.NewMetrics())
}

func TestHandleVerifyAcceptsDraftMatchingContinuation(t *testing.T) {
	srv := newTestServer(t)

	body, err := json.Marshal(wire.VerifyRequest{
		RequestID: "req-1",
		Prompt:    "the quick brown fox",
		Draft:     "jumps over the lazy dog",
		Threshold: 0.5,
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/verify", bytes.NewReader(body))
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp wire.VerifyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.GreaterOrEqual(t, resp.AcceptanceRate, 0.0)
	assert.LessOrEqual(t, resp.AcceptanceRate, 1.0)
}

func TestHandleVerifyRejectsMalformedBody(t *testing.T) {
	srv := newTestServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/verify", bytes.NewReader([]byte("not json")))
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleDirectReturnsGeneratedText(t *testing.T) {
	srv := newTestServer(t)

	body, err := json.Marshal(wire.DirectRequest{
		RequestID: "req-2",
		Prompt:    "hello world",
		MaxTokens: 16,
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/inference/direct", bytes.NewReader(body))
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp wire.DirectResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Text)
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleCacheStatsReportsAuditDisabled(t *testing.T) {
	srv := newTestServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/cache/stats", nil)
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var stats map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, false, stats["audit_enabled"])
}

func TestMetricsEndpointExposesPrometheusFormat(t *testing.T) {
	srv := newTestServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "inferouter_cloud_requests_total")
}
