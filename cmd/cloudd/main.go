// Command cloudd runs the cloud verification/ground-truth process: the
// draft verifier, direct-inference path, optional audit ledger, and the
// HTTP surface described in spec.md §6. Wiring is grounded on the
// teacher's cmd/reach-serve/main.go shutdown pattern.
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

	"inferouter/internal/cloudserver"
	"inferouter/internal/cloudserver/verifier"
	"inferouter/internal/config"
	"inferouter/internal/model"
	"inferouter/internal/storage"
	"inferouter/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("cloudd: load config: %v", err)
	}

	logger := telemetry.Default().WithComponent("cloudd")
	metrics := telemetry.DefaultMetrics()

	var audit *storage.SQLiteStore
	if cfg.Cloud.Audit.Enabled {
		audit, err = storage.Open(cfg.Cloud.Audit.DBPath)
		if err != nil {
			logger.Errorf("cloudd: audit ledger disabled, open failed: %v", err)
			audit = nil
		} else {
			defer audit.Close()
		}
	}

	adapter := buildGeneratorAdapter(cfg.Cloud.Model)
	generator := verifier.NewAdapterGenerator(adapter)

	srv := cloudserver.NewServer(cfg.Cloud, generator, audit, metrics)

	httpServer := &http.Server{
		Addr:    cfg.Cloud.Server.Host + ":" + strconv.Itoa(cfg.Cloud.Server.Port),
		Handler: srv.Handler(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Infof("cloudd listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("cloudd: listen: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Infof("cloudd: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("cloudd: shutdown: %v", err)
	}
}

// buildGeneratorAdapter resolves the ground-truth model adapter the cloud
// verifies against. The small-mode adapter is always registered as the
// guaranteed-available fallback; an http(s) Model.Path additionally
// registers a hosted (OpenAI-compatible) adapter and lets the Router's
// normal (non-edge-mode) capability scoring pick between them.
func buildGeneratorAdapter(cfg config.CloudModelConfig) model.ReachModelAdapter {
	registry := model.NewAdapterRegistry()
	small := model.NewSmallModeAdapter(model.SmallModeConfig{EnableTemplating: true})
	_ = registry.Register(small)
	_ = registry.SetDefault(small.Name())

	if strings.HasPrefix(cfg.Path, "http://") || strings.HasPrefix(cfg.Path, "https://") {
		hosted := model.NewHostedAdapter(model.HostedConfig{
			Name:     "cloud-hosted",
			Endpoint: cfg.Path,
			ModelID:  "cloud-verifier",
		})
		_ = registry.Register(hosted)
	}

	router := model.NewRouter(registry, model.RouterConfig{EdgeMode: false, FallbackEnabled: true})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	adapter, err := router.Route(ctx, model.RouteInput{
		Complexity:    model.ComplexityNormal,
		ContextTokens: cfg.MaxTokens,
	})
	if err != nil {
		return small
	}
	return adapter
}
