// Package cloudserver implements the cloudd process's HTTP surface
// (spec.md §6 "Cloud" endpoints): POST /verify, POST /verify/batch,
// POST /inference/direct, GET /health, GET /cache/stats, and GET /metrics,
// grounded on the teacher's cmd/reach-serve/main.go middleware chain
// (correlation ID -> logging -> rate limit -> recovery) and Go 1.22+
// ServeMux method-pattern routing.
package cloudserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"inferouter/internal/cloudserver/verifier"
	"inferouter/internal/config"
	"inferouter/internal/errors"
	"inferouter/internal/storage"
	"inferouter/internal/telemetry"
	"inferouter/internal/wire"
)

// Server is the cloud process's HTTP layer.
type Server struct {
	cfg        config.CloudConfig
	generator  verifier.Generator
	audit      *storage.SQLiteStore // nil when the audit ledger is disabled
	log        *telemetry.Logger
	metrics    *telemetry.Metrics
	promReg    *prometheus.Registry
	requests   prometheus.Counter
	acceptHist prometheus.Histogram
	latency    prometheus.Histogram
	reqCount   int64
}

// NewServer wires a cloudserver.Server.
func NewServer(cfg config.CloudConfig, generator verifier.Generator, audit *storage.SQLiteStore, metrics *telemetry.Metrics) *Server {
	s := &Server{
		cfg:       cfg,
		generator: generator,
		audit:     audit,
		log:       telemetry.Default().WithComponent("cloudd"),
		metrics:   metrics,
		promReg:   prometheus.NewRegistry(),
	}
	s.requests = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "inferouter_cloud_requests_total",
		Help: "Total requests handled by the cloud process.",
	})
	s.acceptHist = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "inferouter_cloud_acceptance_rate",
		Help:    "Distribution of /verify acceptance rates.",
		Buckets: prometheus.LinearBuckets(0, 0.1, 11),
	})
	s.latency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "inferouter_cloud_request_latency_ms",
		Help:    "Cloud request latency in milliseconds.",
		Buckets: prometheus.ExponentialBuckets(5, 2, 12),
	})
	s.promReg.MustRegister(s.requests, s.acceptHist, s.latency)
	return s
}

// Handler builds the full middleware-wrapped mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /verify", s.handleVerify)
	mux.HandleFunc("POST /verify/batch", s.handleVerifyBatch)
	mux.HandleFunc("POST /inference/direct", s.handleDirect)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /cache/stats", s.handleCacheStats)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.promReg, promhttp.HandlerOpts{}))

	return withRecovery(s.log, withRateLimit(withLogging(s.log, withCorrelationID(mux))))
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req wire.VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	margin := s.cfg.DraftVerifier.GroundTruthTokenMargin
	if margin <= 0 {
		margin = verifier.MarginTokens
	}
	targetLen := len([]rune(req.Draft)) + margin

	continuation, err := s.generator.Generate(r.Context(), req.Prompt, targetLen)
	if err != nil {
		s.log.Warnf("generator failed during verify: %v", err)
		writeReachError(w, errors.Wrap(err, errors.CodeDraftFailed, "cloud continuation failed"))
		return
	}

	resp := verifier.Match(req.Prompt, req.Draft, continuation)
	resp.LatencyMs = float64(time.Since(start).Milliseconds())

	s.observe("verify", resp.AcceptanceRate, resp.LatencyMs)
	s.appendAudit(r.Context(), req.RequestID, "verify", len(req.Prompt), resp.AcceptedCount > 0, resp.AcceptanceRate, resp.LatencyMs)

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleVerifyBatch(w http.ResponseWriter, r *http.Request) {
	var batch wire.VerifyBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	out := wire.VerifyBatchResponse{Responses: make([]wire.VerifyResponse, 0, len(batch.Requests))}
	for _, req := range batch.Requests {
		start := time.Now()
		margin := s.cfg.DraftVerifier.GroundTruthTokenMargin
		if margin <= 0 {
			margin = verifier.MarginTokens
		}
		targetLen := len([]rune(req.Draft)) + margin

		continuation, err := s.generator.Generate(r.Context(), req.Prompt, targetLen)
		if err != nil {
			s.log.Warnf("generator failed in batch verify: %v", err)
			out.Responses = append(out.Responses, wire.VerifyResponse{FinalText: req.Prompt})
			continue
		}

		resp := verifier.Match(req.Prompt, req.Draft, continuation)
		resp.LatencyMs = float64(time.Since(start).Milliseconds())
		s.observe("verify_batch", resp.AcceptanceRate, resp.LatencyMs)
		s.appendAudit(r.Context(), req.RequestID, "verify", len(req.Prompt), resp.AcceptedCount > 0, resp.AcceptanceRate, resp.LatencyMs)
		out.Responses = append(out.Responses, resp)
	}

	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDirect(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req wire.DirectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = s.cfg.Model.MaxTokens
	}

	text, err := s.generator.Generate(r.Context(), req.Prompt, maxTokens)
	if err != nil {
		s.log.Warnf("generator failed during direct inference: %v", err)
		writeReachError(w, errors.Wrap(err, errors.CodeDraftFailed, "cloud direct generation failed"))
		return
	}

	latencyMs := float64(time.Since(start).Milliseconds())
	resp := wire.DirectResponse{
		Text:            text,
		Tokens:          splitFields(text),
		TokensGenerated: len(splitFields(text)),
		LatencyMs:       latencyMs,
	}

	s.observe("inference_direct", 0, latencyMs)
	s.appendAudit(r.Context(), req.RequestID, "inference/direct", len(req.Prompt), true, 0, latencyMs)

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, wire.HealthResponse{
		Status:    "ok",
		Component: "cloud",
	})
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]any{"audit_enabled": s.audit != nil}
	if s.audit != nil {
		recs, err := s.audit.RecentAudit(r.Context(), 1)
		if err == nil {
			stats["recent_sample"] = recs
		}
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) observe(endpoint string, acceptance, latencyMs float64) {
	s.requests.Inc()
	s.acceptHist.Observe(acceptance)
	s.latency.Observe(latencyMs)
	if s.metrics != nil {
		s.metrics.Counter("cloudd.requests." + endpoint)
		s.metrics.Timer("cloudd.latency_ms", time.Duration(latencyMs)*time.Millisecond)
	}
}

func (s *Server) appendAudit(ctx context.Context, requestID, endpoint string, promptLen int, accepted bool, acceptanceRate, latencyMs float64) {
	if s.audit == nil {
		return
	}
	if requestID == "" {
		requestID = uuid.NewString()
	}
	rec := storage.AuditRecord{
		RequestID:      requestID,
		Endpoint:       endpoint,
		PromptLen:      promptLen,
		Accepted:       accepted,
		AcceptanceRate: acceptanceRate,
		LatencyMs:      latencyMs,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.audit.AppendAudit(ctx, rec); err != nil {
		s.log.Warnf("audit append failed (non-fatal): %v", err)
	}
}

func splitFields(s string) []string {
	if s == "" {
		return nil
	}
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

// --- middleware, grounded on the teacher's cmd/reach-serve/main.go chain ---

type correlationIDKey struct{}

func withCorrelationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := context.WithValue(r.Context(), correlationIDKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func withLogging(log *telemetry.Logger, next http.Handler) http.Handler {
	var counter int64
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt64(&counter, 1)
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		log.Infof("#%d %s %s -> %d (%s)", n, r.Method, r.URL.Path, rw.status, time.Since(start))
	})
}

func withRateLimit(next http.Handler) http.Handler {
	limiter := make(chan struct{}, 256)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case limiter <- struct{}{}:
			defer func() { <-limiter }()
			next.ServeHTTP(w, r)
		default:
			writeError(w, http.StatusTooManyRequests, fmt.Errorf("too many concurrent requests"))
		}
	})
}

func withRecovery(log *telemetry.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Errorf("panic handling %s %s: %v", r.Method, r.URL.Path, rec)
				writeError(w, http.StatusInternalServerError, fmt.Errorf("internal error"))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, wire.ErrorResponse{Error: err.Error()})
}

func writeReachError(w http.ResponseWriter, err *errors.ReachError) {
	status := http.StatusInternalServerError
	if err.Code.IsRetryable() {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, wire.ErrorResponse{Error: err.SafeError()})
}
