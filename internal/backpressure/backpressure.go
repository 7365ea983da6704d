// Package backpressure guards the edge process's outbound calls to its
// cloud collaborator: a semaphore bounding concurrency, a circuit breaker
// per call target, and a retry budget. The two call kinds the edge makes
// (spec.md §4.8 draft/verify round trips, and spec.md §4.4 CLOUD_DIRECT
// fallback calls) sit at different points in the latency budget, so they
// get different CallGuard configurations rather than one generic policy.
package backpressure

import (
	"context"
	"time"
)

// CallGuard wraps one kind of outbound edge->cloud call with a concurrency
// cap, a per-target circuit breaker, and a retry budget tuned to that call
// kind's place in the speculative-decoding critical path.
type CallGuard struct {
	semaphore *Semaphore
	breakers  *CircuitBreakerGroup
	retry     RetryOptions
}

// NewCallGuard builds a CallGuard. maxConcurrent bounds simultaneous calls
// of this kind; <= 0 means unlimited. breakerOpts is shared across every
// target this guard ever calls (keyed by the target string passed to Do).
func NewCallGuard(maxConcurrent int, breakerOpts CircuitBreakerOptions, retry RetryOptions) *CallGuard {
	return &CallGuard{
		semaphore: NewSemaphore(maxConcurrent),
		breakers:  NewCircuitBreakerGroup(breakerOpts),
		retry:     retry,
	}
}

// Do acquires a concurrency slot, then runs fn under the circuit breaker for
// target with this guard's retry budget. The breaker is keyed by target so a
// single unreachable cloud endpoint doesn't trip calls bound for another.
func (g *CallGuard) Do(ctx context.Context, target string, fn func(ctx context.Context) error) error {
	if err := g.semaphore.Acquire(ctx); err != nil {
		return err
	}
	defer g.semaphore.Release()

	breaker := g.breakers.Get(target)
	return RetryWithCircuitBreaker(ctx, breaker, g.retry, func() error {
		return fn(ctx)
	})
}

// Stats reports the circuit breaker state for every target this guard has
// called, keyed by target.
func (g *CallGuard) Stats() map[string]CircuitStats {
	return g.breakers.Stats()
}

// VerifyRetryOptions governs the /verify round trip. A verify call sits on
// the critical path of every SPECULATIVE_STANDARD/ADAPTIVE_CONFIDENCE
// request: on failure the orchestrator already has a safe fallback (return
// the draft text, spec.md §4.8 "verify failed or timed out"), so a single
// quick retry is the right tradeoff between absorbing a blip and not
// burning the request's latency budget chasing a dead cloud node.
func VerifyRetryOptions() RetryOptions {
	return RetryOptions{
		MaxRetries: 1,
		BaseDelay:  25 * time.Millisecond,
		MaxDelay:   200 * time.Millisecond,
		Multiplier: 2.0,
		Jitter:     0.2,
	}
}

// DirectRetryOptions governs the /inference/direct call. CLOUD_DIRECT has
// already given up the edge draft as the fallback, so there is no cheaper
// path left to protect and it can afford one more attempt than a verify
// call before degrading to EDGE_ONLY.
func DirectRetryOptions() RetryOptions {
	return RetryOptions{
		MaxRetries: 2,
		BaseDelay:  50 * time.Millisecond,
		MaxDelay:   500 * time.Millisecond,
		Multiplier: 2.0,
		Jitter:     0.2,
	}
}
