// Package orchestrator implements Orchestrator: executes an
// domain.ExecutionPlan against one of the four strategies, talks to the
// cloud collaborator, and records the outcome to HistoryTracker. Never
// allowed to throw into the caller (spec.md §4.8, §7).
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"inferouter/internal/domain"
	"inferouter/internal/history"
	"inferouter/internal/kvcache"
	"inferouter/internal/telemetry"
)

// DraftEngine is the local generator collaborator (spec.md §6: "the spec
// does not prescribe how draft ... models are implemented"). It produces
// draft tokens and per-token confidence in one call.
type DraftEngine interface {
	Draft(ctx context.Context, req domain.InferenceRequest, maxTokens int) (DraftResult, error)
}

// DraftResult is what a DraftEngine call returns.
type DraftResult struct {
	Text       string
	TokenIDs   []int
	TokenProbs []domain.TokenProb
	LatencyMs  float64
}

// ConfidenceComputer scores a DraftResult's token probabilities into a
// domain.ConfidenceMetrics using the configured strategy.
type ConfidenceComputer interface {
	Compute(tokenProbs []domain.TokenProb) domain.ConfidenceMetrics
}

// VerifierClient is the remote call that validates a draft against the
// cloud's own continuation.
type VerifierClient interface {
	Verify(ctx context.Context, requestID, prompt, draft string, threshold float64, timeout time.Duration) (VerifyResult, error)
}

// VerifyResult is what a successful VerifierClient.Verify call returns.
type VerifyResult struct {
	FinalText      string
	AcceptanceRate float64
	LatencyMs      float64
}

// CloudDirectClient forwards a whole request to the cloud's direct
// inference endpoint.
type CloudDirectClient interface {
	GenerateDirect(ctx context.Context, req domain.InferenceRequest, timeout time.Duration) (DirectResult, error)
}

// DirectResult is what a successful CloudDirectClient.GenerateDirect call
// returns.
type DirectResult struct {
	Text            string
	TokensGenerated int
	LatencyMs       float64
}

// Orchestrator executes plans and records outcomes.
type Orchestrator struct {
	draft      DraftEngine
	confidence ConfidenceComputer
	verifier   VerifierClient
	direct     CloudDirectClient
	history    *history.Tracker
	cache      *kvcache.Cache
	log        *telemetry.Logger
	metrics    *telemetry.Metrics
	tracer     *telemetry.Tracer
}

// New wires an Orchestrator from its collaborators.
func New(draft DraftEngine, confidence ConfidenceComputer, verifier VerifierClient, direct CloudDirectClient, tracker *history.Tracker, cache *kvcache.Cache, metrics *telemetry.Metrics) *Orchestrator {
	return &Orchestrator{
		draft:      draft,
		confidence: confidence,
		verifier:   verifier,
		direct:     direct,
		history:    tracker,
		cache:      cache,
		metrics:    metrics,
		log:        telemetry.Default().WithComponent("orchestrator"),
		tracer:     telemetry.DefaultTracer(),
	}
}

// Execute runs plan.Strategy to completion and records the outcome. It
// never panics or returns an error to the HTTP layer: degraded execution is
// represented in the response itself (used_draft_verify=false, etc.).
func (o *Orchestrator) Execute(ctx context.Context, req domain.InferenceRequest, plan domain.ExecutionPlan) (resp domain.InferenceResponse) {
	req = req.WithRequestID()
	start := time.Now()

	span := o.tracer.StartSpan("orchestrator.execute")
	span.TagExecution(req.RequestID, string(plan.Strategy))

	defer func() {
		if r := recover(); r != nil {
			o.log.Errorf("panic during execution, degrading to draft surrogate: %v", r)
			resp = domain.InferenceResponse{Text: "", Strategy: plan.Strategy}
			span.FinishWithError(fmt.Errorf("panic: %v", r))
		} else {
			span.Finish()
		}
		resp.TotalLatencyMs = float64(time.Since(start).Milliseconds())
		o.recordSafely(req, plan, resp)
	}()

	switch plan.Strategy {
	case domain.EdgeOnly:
		resp = o.runEdgeOnly(ctx, req, plan)
	case domain.CloudDirect:
		resp = o.runCloudDirect(ctx, req, plan)
	case domain.SpeculativeStandard, domain.AdaptiveConfidence:
		resp = o.runSpeculative(ctx, req, plan)
	default:
		resp = o.runEdgeOnly(ctx, req, plan)
	}
	return resp
}

func (o *Orchestrator) runEdgeOnly(ctx context.Context, req domain.InferenceRequest, plan domain.ExecutionPlan) domain.InferenceResponse {
	draft, err := o.draft.Draft(ctx, req, plan.DraftMaxTokens)
	if err != nil {
		o.log.WithRequestID(req.RequestID).Warnf("draft engine failed on EDGE_ONLY: %v", err)
		return domain.InferenceResponse{Strategy: domain.EdgeOnly}
	}
	return domain.InferenceResponse{
		Text:           draft.Text,
		Tokens:         tokensGenerated(draft.Text),
		EdgeLatencyMs:  draft.LatencyMs,
		Strategy:       domain.EdgeOnly,
		AcceptanceRate: 0,
	}
}

func (o *Orchestrator) runCloudDirect(ctx context.Context, req domain.InferenceRequest, plan domain.ExecutionPlan) domain.InferenceResponse {
	timeout := plan.ParamDuration("direct_timeout", 30*time.Second)
	result, err := o.direct.GenerateDirect(ctx, req, timeout)
	if err != nil {
		o.log.WithRequestID(req.RequestID).Warnf("cloud-direct failed, degrading to EDGE_ONLY: %v", err)
		degraded := o.runEdgeOnly(ctx, req, plan)
		degraded.Strategy = domain.CloudDirect
		return degraded
	}
	return domain.InferenceResponse{
		Text:           result.Text,
		Tokens:         tokensGenerated(result.Text),
		CloudLatencyMs: result.LatencyMs,
		Strategy:       domain.CloudDirect,
		AcceptanceRate: 0,
	}
}

func (o *Orchestrator) runSpeculative(ctx context.Context, req domain.InferenceRequest, plan domain.ExecutionPlan) domain.InferenceResponse {
	draft, err := o.draft.Draft(ctx, req, plan.DraftMaxTokens)
	if err != nil {
		o.log.WithRequestID(req.RequestID).Warnf("draft engine failed on %s: %v", plan.Strategy, err)
		return domain.InferenceResponse{Strategy: plan.Strategy}
	}

	metrics := o.confidence.Compute(draft.TokenProbs)

	useConfidenceCheck := req.AllowConfidenceGate && plan.Strategy == domain.AdaptiveConfidence
	if useConfidenceCheck && metrics.Score < plan.ConfidenceThreshold {
		return domain.InferenceResponse{
			Text:            draft.Text,
			Tokens:          tokensGenerated(draft.Text),
			EdgeLatencyMs:   draft.LatencyMs,
			ConfidenceScore: metrics.Score,
			Strategy:        plan.Strategy,
			UsedDraftVerify: false,
			AcceptanceRate:  0,
		}
	}

	if !req.AllowSpeculative {
		return domain.InferenceResponse{
			Text:            draft.Text,
			Tokens:          tokensGenerated(draft.Text),
			EdgeLatencyMs:   draft.LatencyMs,
			ConfidenceScore: metrics.Score,
			Strategy:        plan.Strategy,
			UsedDraftVerify: false,
		}
	}

	verifyTimeout := plan.ParamDuration("verify_timeout_ms", 2*time.Second)
	result, err := o.verifier.Verify(ctx, req.RequestID, req.Prompt, draft.Text, plan.ConfidenceThreshold, verifyTimeout)
	if err != nil {
		o.log.WithRequestID(req.RequestID).Warnf("verify failed or timed out, returning draft: %v", err)
		return domain.InferenceResponse{
			Text:            draft.Text,
			Tokens:          tokensGenerated(draft.Text),
			EdgeLatencyMs:   draft.LatencyMs,
			ConfidenceScore: metrics.Score,
			Strategy:        plan.Strategy,
			UsedDraftVerify: false,
		}
	}

	return domain.InferenceResponse{
		Text:            result.FinalText,
		Tokens:          tokensGenerated(result.FinalText),
		EdgeLatencyMs:   draft.LatencyMs,
		CloudLatencyMs:  result.LatencyMs,
		ConfidenceScore: metrics.Score,
		AcceptanceRate:  result.AcceptanceRate,
		UsedDraftVerify: true,
		Strategy:        plan.Strategy,
	}
}

// tokensGenerated is a best-effort observation, not a contract (spec.md §9
// open question (a)): it is the number of whitespace-separated pieces when
// the collaborator does not report a model-native count.
func tokensGenerated(text string) []string {
	if text == "" {
		return nil
	}
	return strings.Fields(text)
}

func (o *Orchestrator) recordSafely(req domain.InferenceRequest, plan domain.ExecutionPlan, resp domain.InferenceResponse) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Warnf("history record panicked and was swallowed: %v", r)
		}
	}()

	degraded := resp.Strategy != plan.Strategy || (plan.Strategy.IsSpeculative() && !resp.UsedDraftVerify && req.AllowSpeculative)
	success := resp.Text != "" || plan.Strategy == domain.CloudDirect

	rec := domain.ExecutionRecord{
		RequestID:       req.RequestID,
		Timestamp:       time.Now().UTC(),
		Strategy:        plan.Strategy,
		AcceptanceRate:  resp.AcceptanceRate,
		TotalLatencyMs:  resp.TotalLatencyMs,
		EdgeLatencyMs:   resp.EdgeLatencyMs,
		CloudLatencyMs:  resp.CloudLatencyMs,
		DraftConfidence: resp.ConfidenceScore,
		Success:         success,
		TokensGenerated: len(resp.Tokens),
		Degraded:        degraded,
		UsedDraftVerify: resp.UsedDraftVerify,
	}
	o.history.Add(rec)
	if o.metrics != nil {
		o.metrics.RecordExecution(string(plan.Strategy), resp.AcceptanceRate, time.Duration(resp.TotalLatencyMs)*time.Millisecond, resp.UsedDraftVerify)
	}
}
