// Package edgeserver implements the edged process's HTTP surface
// (spec.md §6 "Edge" endpoints): POST /inference, POST /draft, GET /health,
// GET /cache/stats, POST /admin/simulate, and GET /metrics, grounded on the
// teacher's cmd/reach-serve/main.go middleware chain and Go 1.22+ ServeMux
// method-pattern routing.
package edgeserver

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

	"inferouter/internal/decision"
	"inferouter/internal/domain"
	"inferouter/internal/kvcache"
	"inferouter/internal/orchestrator"
	"inferouter/internal/state"
	"inferouter/internal/telemetry"
	"inferouter/internal/wire"
)

// Server is the edge process's HTTP layer: ingress -> DecisionModule ->
// Orchestrator -> response, plus the diagnostic/admin surface.
type Server struct {
	decision     *decision.Module
	orchestrator *orchestrator.Orchestrator
	monitor      *state.Monitor
	cache        *kvcache.Cache
	confidence   string
	log          *telemetry.Logger
	metrics      *telemetry.Metrics
	promReg      *prometheus.Registry
	requests     *prometheus.CounterVec
	latency      prometheus.Histogram
}

// NewServer wires an edgeserver.Server.
func NewServer(dm *decision.Module, orch *orchestrator.Orchestrator, monitor *state.Monitor, cache *kvcache.Cache, confidenceStrategy string, metrics *telemetry.Metrics) *Server {
	s := &Server{
		decision:     dm,
		orchestrator: orch,
		monitor:      monitor,
		cache:        cache,
		confidence:   confidenceStrategy,
		log:          telemetry.Default().WithComponent("edged"),
		metrics:      metrics,
		promReg:      prometheus.NewRegistry(),
	}
	s.requests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "inferouter_edge_requests_total",
		Help: "Total edge requests handled, by selected strategy.",
	}, []string{"strategy"})
	s.latency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "inferouter_edge_request_latency_ms",
		Help:    "Edge request latency in milliseconds.",
		Buckets: prometheus.ExponentialBuckets(5, 2, 12),
	})
	s.promReg.MustRegister(s.requests, s.latency)
	return s
}

// Handler builds the full middleware-wrapped mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /inference", s.handleInference)
	mux.HandleFunc("POST /draft", s.handleDraft)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /cache/stats", s.handleCacheStats)
	mux.HandleFunc("POST /admin/simulate", s.handleSimulate)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.promReg, promhttp.HandlerOpts{}))

	return withRecovery(s.log, withRateLimit(withLogging(s.log, withCorrelationID(mux))))
}

func (s *Server) handleInference(w http.ResponseWriter, r *http.Request) {
	var req domain.InferenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	req = req.WithRequestID()

	cached, hit := s.cache.Get(req.Prompt)
	if hit {
		s.log.Debugf("kv-cache hit for request %s (seq_len=%d)", req.RequestID, cached.SeqLen)
	}

	plan := s.decision.Decide(r.Context(), req, nil)
	resp := s.orchestrator.Execute(r.Context(), req, plan)

	s.cache.Put(req.Prompt, nil, len(req.Prompt), req.MaxTokens)

	s.requests.WithLabelValues(string(resp.Strategy)).Inc()
	s.latency.Observe(resp.TotalLatencyMs)
	if s.metrics != nil {
		s.metrics.Counter("edged.requests." + string(resp.Strategy))
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleDraft runs only the draft step: it takes DraftMaxTokens from the
// decision module's plan, then has the orchestrator execute a forced
// EDGE_ONLY plan with speculation disabled, so no verify call is made;
// used internally for diagnostics and by tests that want to observe the
// draft engine apart from strategy selection.
func (s *Server) handleDraft(w http.ResponseWriter, r *http.Request) {
	var req domain.InferenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	req = req.WithRequestID()

	plan := s.decision.Decide(r.Context(), req, nil)
	resp := s.orchestrator.Execute(r.Context(), domain.InferenceRequest{
		RequestID:        req.RequestID,
		Prompt:           req.Prompt,
		MaxTokens:        req.MaxTokens,
		Temperature:      req.Temperature,
		TopP:             req.TopP,
		TopK:             req.TopK,
		AllowSpeculative: false,
		Requirements:     req.Requirements,
	}, domain.ExecutionPlan{Strategy: domain.EdgeOnly, DraftMaxTokens: plan.DraftMaxTokens})

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, wire.HealthResponse{
		Status:             "ok",
		Component:          "edge",
		CacheStats:         s.cache.Stats(),
		ConfidenceStrategy: s.confidence,
	})
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cache.Stats())
}

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	var req wire.SimulateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if req.Clear {
		s.monitor.ClearSimulation()
		writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
		return
	}

	var sys *domain.SystemStats
	if req.CPUUsagePercent != nil || req.MemoryAvailableMB != nil || req.GPUUsagePercent != nil || req.GPUMemoryFreeMB != nil || req.DeviceType != "" {
		base := s.monitor.SampleSystem()
		if req.CPUUsagePercent != nil {
			base.CPUUsagePercent = *req.CPUUsagePercent
		}
		if req.MemoryAvailableMB != nil {
			base.MemoryAvailableMB = *req.MemoryAvailableMB
		}
		if req.GPUUsagePercent != nil {
			base.GPUUsagePercent = *req.GPUUsagePercent
		}
		if req.GPUMemoryFreeMB != nil {
			base.GPUMemoryFreeMB = *req.GPUMemoryFreeMB
		}
		if req.DeviceType != "" {
			base.DeviceType = domain.DeviceType(req.DeviceType)
		}
		base.Timestamp = time.Now()
		sys = &base
	}

	var net *domain.NetworkStats
	if req.RTTMs != nil || req.PacketLossRate != nil || req.IsWeakNetwork != nil {
		base := domain.NetworkStats{}
		if req.RTTMs != nil {
			base.RTTMs = *req.RTTMs
		}
		if req.PacketLossRate != nil {
			base.PacketLossRate = *req.PacketLossRate
		}
		if req.IsWeakNetwork != nil {
			base.IsWeakNetwork = *req.IsWeakNetwork
		}
		base.Timestamp = time.Now()
		net = &base
	}

	s.monitor.SetSimulation(sys, net)
	writeJSON(w, http.StatusOK, map[string]string{"status": "simulating"})
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
