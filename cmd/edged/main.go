// Command edged runs the edge inference process: decision module, draft
// engine, KV cache, and the HTTP surface described in spec.md §6. Wiring
// is grounded on the teacher's cmd/reach-serve/main.go: config.Load,
// construct the dependency graph bottom-up, serve, shut down on SIGTERM.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"inferouter/internal/backpressure"
	"inferouter/internal/confidence"
	"inferouter/internal/config"
	"inferouter/internal/decision"
	"inferouter/internal/domain"
	"inferouter/internal/edgeserver"
	"inferouter/internal/history"
	"inferouter/internal/kvcache"
	"inferouter/internal/model"
	"inferouter/internal/orchestrator"
	"inferouter/internal/state"
	"inferouter/internal/telemetry"
	"inferouter/internal/threshold"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("edged: load config: %v", err)
	}

	logger := telemetry.Default().WithComponent("edged")
	metrics := telemetry.DefaultMetrics()

	monitor := state.New(
		state.RuntimeSampler{Device: domain.DeviceType(cfg.Edge.F1.Hardware.DeviceType)},
		state.NewHTTPProber(strings.TrimSuffix(cfg.Communication.CloudEndpoint, "/")+"/health"),
		cfg.Edge.F1.HardConstraints.WeakNetworkRTTMs,
	)

	tracker := history.New(cfg.Edge.F1.HistoryTracker.MaxHistorySize)
	params := threshold.NewParameters(cfg.Edge.F1.AdaptiveThreshold, cfg.Edge.F1.ScoringWeights)
	calc := threshold.New(params, tracker, cfg.Edge.F1.AdaptiveThreshold)
	dm := decision.New(cfg.Edge.F1, monitor, tracker, params, calc)

	cache := kvcache.New(cfg.Edge.KVCache.MaxSize)
	if cfg.Edge.KVCache.SnapshotPath != "" {
		if err := cache.LoadSnapshot(cfg.Edge.KVCache.SnapshotPath); err != nil {
			logger.Warnf("kv-cache snapshot load skipped: %v", err)
		}
	}

	confidenceComputer := confidence.New(cfg.Edge.Confidence.Strategy, cfg.Edge.Confidence.TopK, cfg.Edge.Confidence.Temperature)

	draftAdapter := buildDraftAdapter(cfg.Edge.Model)
	draftEngine := orchestrator.NewAdapterDraftEngine(draftAdapter, cfg.Edge.Confidence.TopK)

	breakerOpts := backpressure.CircuitBreakerOptions{
		Threshold:   cfg.Communication.CircuitThreshold,
		Timeout:     cfg.Communication.CircuitTimeout,
		HalfOpenMax: 1,
	}
	cloudClient := orchestrator.NewHTTPCloudClient(cfg.Communication.CloudEndpoint, breakerOpts, cfg.Communication.MaxConcurrentCalls)

	orch := orchestrator.New(draftEngine, confidenceComputer, cloudClient, cloudClient, tracker, cache, metrics)

	srv := edgeserver.NewServer(dm, orch, monitor, cache, cfg.Edge.Confidence.Strategy, metrics)

	httpServer := &http.Server{
		Addr:    cfg.Edge.Server.Host + ":" + strconv.Itoa(cfg.Edge.Server.Port),
		Handler: srv.Handler(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Infof("edged listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("edged: listen: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Infof("edged: shutting down")

	if cfg.Edge.KVCache.SnapshotPath != "" {
		if err := cache.SaveSnapshot(cfg.Edge.KVCache.SnapshotPath); err != nil {
			logger.Warnf("kv-cache snapshot save failed: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("edged: shutdown: %v", err)
	}
}

// buildDraftAdapter resolves the draft model adapter the edge dispatches
// to: the deterministic small-mode adapter is always registered as the
// guaranteed-available fallback; an http(s) Model.Path additionally
// registers a local (Ollama-compatible) adapter and lets the Router's
// edge-mode (smallest-VRAM-first) selection pick between them.
func buildDraftAdapter(cfg config.EdgeModelConfig) model.ReachModelAdapter {
	registry := model.NewAdapterRegistry()
	small := model.NewSmallModeAdapter(model.SmallModeConfig{EnableTemplating: true})
	_ = registry.Register(small)
	_ = registry.SetDefault(small.Name())

	if strings.HasPrefix(cfg.Path, "http://") || strings.HasPrefix(cfg.Path, "https://") {
		local := model.NewLocalAdapter(model.LocalConfig{
			Name:     "edge-local",
			Endpoint: cfg.Path,
			ModelID:  "edge-draft",
		})
		_ = registry.Register(local)
	}

	router := model.NewRouter(registry, model.RouterConfig{EdgeMode: true, FallbackEnabled: true})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	adapter, err := router.Route(ctx, model.RouteInput{
		Complexity:    model.ComplexitySimple,
		ContextTokens: cfg.MaxTokens,
	})
	if err != nil {
		return small
	}
	return adapter
}
