// Package decision implements DecisionModule: the external entry point that
// composes StateMonitor, HardConstraintChecker, MultiObjectiveScorer,
// ExecutionPlanner, AdaptiveThresholdCalculator, and HistoryTracker into a
// single `Decide(request) -> plan` call. Failures inside the pipeline never
// raise to the caller, per the teacher's error-through-fallback idiom
// (internal/backpressure, internal/errors).
package decision

import (
	"context"
	"fmt"

	"inferouter/internal/config"
	"inferouter/internal/constraint"
	"inferouter/internal/domain"
	"inferouter/internal/history"
	"inferouter/internal/planner"
	"inferouter/internal/scoring"
	"inferouter/internal/state"
	"inferouter/internal/telemetry"
	"inferouter/internal/threshold"
)

// Module is the process-singleton DecisionModule.
type Module struct {
	cfg        config.F1Config
	monitor    *state.Monitor
	history    *history.Tracker
	params     *threshold.Parameters
	calculator *threshold.Calculator
	checker    *constraint.Checker
	scorer     *scoring.Scorer
	planner    *planner.Planner
	log        *telemetry.Logger
}

// New wires every component into a DecisionModule.
func New(cfg config.F1Config, monitor *state.Monitor, tracker *history.Tracker, params *threshold.Parameters, calc *threshold.Calculator) *Module {
	return &Module{
		cfg:        cfg,
		monitor:    monitor,
		history:    tracker,
		params:     params,
		calculator: calc,
		checker:    constraint.New(cfg.HardConstraints),
		scorer:     scoring.New(tracker, cfg),
		planner:    planner.New(cfg),
		log:        telemetry.Default().WithComponent("decision"),
	}
}

// Decide runs the full pipeline for one request. maybeSysStats is consulted
// when non-nil (used by tests and the simulate endpoint); otherwise fresh
// state is sampled. It never panics or returns an error: any internal
// failure degrades to a fallback plan.
func (m *Module) Decide(ctx context.Context, req domain.InferenceRequest, maybeSysStats *domain.SystemStats) (plan domain.ExecutionPlan) {
	var observedCPU float64

	defer func() {
		if r := recover(); r != nil {
			m.log.Errorf("panic in decision pipeline: %v", r)
			plan = m.degradedFallback(observedCPU, "internal error: decision pipeline recovered from panic")
		}
	}()

	if m.calculator.ShouldUpdate() {
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.log.Warnf("adaptive threshold update panicked: %v", r)
				}
			}()
			m.calculator.Update(req.Requirements.MaxLatencyMs)
		}()
	}

	dctx := m.buildContext(ctx, req, maybeSysStats)
	observedCPU = dctx.SystemStats.CPUUsagePercent

	if strat, reason, ok := m.checker.Check(dctx); ok {
		return m.planner.Plan(strat, 1.0, reason, dctx, m.params.Snapshot())
	}

	scored := m.scorer.ScoreAll(dctx, m.params.Snapshot())
	if strat, score, ok := scoring.Best(scored); ok {
		reason := fmt.Sprintf("%s scored highest (%.3f) across latency/cost/quality", strat, score)
		return m.planner.Plan(strat, score, reason, dctx, m.params.Snapshot())
	}

	strat := scoring.Fallback(dctx.SystemStats, m.cfg.HardConstraints.MemoryCriticalMB)
	reason := fmt.Sprintf("every candidate strategy exceeded its latency SLO; falling back to %s", strat)
	return m.planner.Plan(strat, 0, reason, dctx, m.params.Snapshot())
}

func (m *Module) buildContext(ctx context.Context, req domain.InferenceRequest, maybeSysStats *domain.SystemStats) domain.DecisionContext {
	var sys domain.SystemStats
	if maybeSysStats != nil {
		sys = *maybeSysStats
	} else {
		sys = m.monitor.SampleSystem()
	}

	dctx := domain.DecisionContext{
		Request:      req,
		SystemStats:  sys,
		Requirements: req.Requirements,
	}

	if m.cfg.EnableNetworkProbe {
		dctx.Network = m.probeNetworkSafely(ctx)
	}

	return dctx
}

// probeNetworkSafely wraps StateMonitor.ProbeNetwork so any failure is
// caught and logged; the context falls back to network_state=none.
func (m *Module) probeNetworkSafely(ctx context.Context) (net *domain.NetworkStats) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Warnf("network probe panicked: %v", r)
			net = nil
		}
	}()
	stats := m.monitor.ProbeNetwork(ctx, false)
	return &stats
}

// degradedFallback returns CLOUD_DIRECT or SPECULATIVE_STANDARD depending on
// observed CPU load, per §4.7's "any exception inside the pipeline" clause.
func (m *Module) degradedFallback(observedCPU float64, reason string) domain.ExecutionPlan {
	strat := domain.CloudDirect
	if observedCPU < m.cfg.HardConstraints.CPUOverloadThreshold {
		strat = domain.SpeculativeStandard
	}
	return domain.ExecutionPlan{
		Strategy:            strat,
		Score:               0,
		Reason:              reason,
		ConfidenceThreshold: m.params.Snapshot().ConfidenceThreshold,
		DraftMaxTokens:      m.params.Snapshot().DraftMaxTokens,
		Params:              map[string]any{"verify_timeout_ms": int64(2000)},
	}
}
