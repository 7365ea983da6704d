package backpressure

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSemaphore(t *testing.T) {
	s := NewSemaphore(2)

	if s.Max() != 2 {
		t.Errorf("expected max=2, got: %d", s.Max())
	}

	// Acquire two permits
	ctx := context.Background()
	if err := s.Acquire(ctx); err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}
	if err := s.Acquire(ctx); err != nil {
		t.Fatalf("second acquire failed: %v", err)
	}

	if s.Count() != 2 {
		t.Errorf("expected count=2, got: %d", s.Count())
	}

	// Third acquire should block (test with TryAcquire)
	if s.TryAcquire() {
		t.Error("third acquire should fail")
	}

	// Release one
	s.Release()
	if s.Count() != 1 {
		t.Errorf("expected count=1 after release, got: %d", s.Count())
	}

	// Now TryAcquire should succeed
	if !s.TryAcquire() {
		t.Error("acquire should succeed after release")
	}
}

func TestSemaphoreUnlimited(t *testing.T) {
	s := NewSemaphore(0)

	if s.Max() != 0 {
		t.Errorf("expected max=0, got: %d", s.Max())
	}

	ctx := context.Background()
	// Should always succeed
	for i := 0; i < 100; i++ {
		if err := s.Acquire(ctx); err != nil {
			t.Fatalf("unlimited acquire failed: %v", err)
		}
	}
}

func TestSemaphoreContextCancellation(t *testing.T) {
	s := NewSemaphore(1)

	ctx, cancel := context.WithCancel(context.Background())
	if err := s.Acquire(ctx); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	// Cancel context
	cancel()

	// Next acquire should fail with context error
	if err := s.Acquire(ctx); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestCircuitBreaker(t *testing.T) {
	opts := CircuitBreakerOptions{
		Threshold:   3,
		Timeout:     100 * time.Millisecond,
		HalfOpenMax: 1,
	}
	cb := NewCircuitBreaker(opts)

	// Initially closed
	if cb.State() != CircuitClosed {
		t.Errorf("expected closed, got: %s", cb.State())
	}

	// Record failures to open circuit
	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}

	if cb.State() != CircuitOpen {
		t.Errorf("expected open, got: %s", cb.State())
	}

	// Allow should fail
	if err := cb.Allow(); err == nil {
		t.Error("expected error for open circuit")
	}

	// Wait for timeout
	time.Sleep(150 * time.Millisecond)

	// Should transition to half-open on next allow
	if err := cb.Allow(); err != nil {
		t.Errorf("expected allow in half-open: %v", err)
	}

	if cb.State() != CircuitHalfOpen {
		t.Errorf("expected half-open, got: %s", cb.State())
	}

	// Record success to close circuit
	cb.RecordSuccess()

	if cb.State() != CircuitClosed {
		t.Errorf("expected closed after success, got: %s", cb.State())
	}
}

func TestCircuitBreakerForceOpenClose(t *testing.T) {
	cb := NewCircuitBreaker(DefaultCircuitBreakerOptions())

	cb.ForceOpen()
	if cb.State() != CircuitOpen {
		t.Errorf("expected open, got: %s", cb.State())
	}

	cb.ForceClose()
	if cb.State() != CircuitClosed {
		t.Errorf("expected closed, got: %s", cb.State())
	}
}

func TestCircuitBreakerStats(t *testing.T) {
	cb := NewCircuitBreaker(DefaultCircuitBreakerOptions())

	cb.RecordFailure()
	cb.RecordFailure()

	stats := cb.Stats()
	if stats.Failures != 2 {
		t.Errorf("expected 2 failures, got: %d", stats.Failures)
	}
	if stats.Threshold != 5 {
		t.Errorf("expected threshold=5, got: %d", stats.Threshold)
	}
}

func TestCircuitBreakerGroup(t *testing.T) {
	g := NewCircuitBreakerGroup(DefaultCircuitBreakerOptions())

	cb1 := g.Get("target1")
	cb2 := g.Get("target2")

	if cb1 == cb2 {
		t.Error("different targets should have different circuit breakers")
	}

	// Same target should return same breaker
	cb1Again := g.Get("target1")
	if cb1 != cb1Again {
		t.Error("same target should return same circuit breaker")
	}

	// Record failure on target1
	cb1.RecordFailure()
	cb1.RecordFailure()
	cb1.RecordFailure()
	cb1.RecordFailure()
	cb1.RecordFailure()

	// target1 should be open, target2 should be closed
	if cb1.State() != CircuitOpen {
		t.Errorf("expected target1 open, got: %s", cb1.State())
	}
	if cb2.State() != CircuitClosed {
		t.Errorf("expected target2 closed, got: %s", cb2.State())
	}

	// Stats
	stats := g.Stats()
	if len(stats) != 2 {
		t.Errorf("expected 2 stats, got: %d", len(stats))
	}
}

func TestRetry(t *testing.T) {
	opts := RetryOptions{
		MaxRetries: 3,
		BaseDelay:  10 * time.Millisecond,
		MaxDelay:   100 * time.Millisecond,
		Multiplier: 2.0,
		Jitter:     0,
	}

	ctx := context.Background()

	// Success on first try
	callCount := 0
	err := Retry(ctx, opts, func() error {
		callCount++
		return nil
	})
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if callCount != 1 {
		t.Errorf("expected 1 call, got: %d", callCount)
	}

	// Success after retries
	callCount = 0
	err = Retry(ctx, opts, func() error {
		callCount++
		if callCount < 3 {
			return errors.New("temporary error")
		}
		return nil
	})
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if callCount != 3 {
		t.Errorf("expected 3 calls, got: %d", callCount)
	}

	// Failure after max retries
	callCount = 0
	err = Retry(ctx, opts, func() error {
		callCount++
		return errors.New("persistent error")
	})
	if err == nil {
		t.Error("expected error after max retries")
	}
	if callCount != opts.MaxRetries+1 {
		t.Errorf("expected %d calls, got: %d", opts.MaxRetries+1, callCount)
	}
}

func TestRetryContextCancellation(t *testing.T) {
	opts := RetryOptions{
		MaxRetries: 10,
		BaseDelay:  1 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())

	// Cancel immediately
	cancel()

	callCount := 0
	err := Retry(ctx, opts, func() error {
		callCount++
		return errors.New("error")
	})

	if err == nil {
		t.Error("expected error for cancelled context")
	}
	// Call count could be 0 or 1 depending on timing
	if callCount > 1 {
		t.Errorf("expected at most 1 call, got: %d", callCount)
	}
}

func TestRetryWithCircuitBreaker(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerOptions{
		Threshold:   2,
		Timeout:     1 * time.Hour, // Don't auto-transition to half-open
		HalfOpenMax: 1,
	})

	opts := RetryOptions{
		MaxRetries: 3,
		BaseDelay:  10 * time.Millisecond,
	}

	ctx := context.Background()

	// Success
	callCount := 0
	err := RetryWithCircuitBreaker(ctx, cb, opts, func() error {
		callCount++
		return nil
	})
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	// Failures that open circuit
	callCount = 0
	err = RetryWithCircuitBreaker(ctx, cb, opts, func() error {
		callCount++
		return errors.New("error")
	})
	if err == nil {
		t.Error("expected error")
	}

	// Circuit should be open
	if cb.State() != CircuitOpen {
		t.Errorf("expected circuit open, got: %s", cb.State())
	}

	// Next call should fail immediately due to open circuit
	callCount = 0
	err = RetryWithCircuitBreaker(ctx, cb, opts, func() error {
		callCount++
		return nil
	})
	if err == nil {
		t.Error("expected error for open circuit")
	}
	if callCount != 0 {
		t.Errorf("expected 0 calls (circuit open), got: %d", callCount)
	}
}

func TestCallGuardRetriesThenSucceeds(t *testing.T) {
	guard := NewCallGuard(2, CircuitBreakerOptions{Threshold: 5, Timeout: time.Hour, HalfOpenMax: 1}, RetryOptions{
		MaxRetries: 2,
		BaseDelay:  1 * time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
	})

	ctx := context.Background()
	callCount := 0
	err := guard.Do(ctx, "http://cloud/verify", func(ctx context.Context) error {
		callCount++
		if callCount < 2 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if callCount != 2 {
		t.Errorf("expected 2 calls, got: %d", callCount)
	}
}

func TestCallGuardKeysBreakerByTarget(t *testing.T) {
	guard := NewCallGuard(4, CircuitBreakerOptions{Threshold: 1, Timeout: time.Hour, HalfOpenMax: 1}, RetryOptions{MaxRetries: 0})

	ctx := context.Background()
	_ = guard.Do(ctx, "http://cloud/verify", func(ctx context.Context) error {
		return errors.New("verify down")
	})

	// The verify target's breaker should now be open...
	if err := guard.Do(ctx, "http://cloud/verify", func(ctx context.Context) error { return nil }); err == nil {
		t.Error("expected verify target breaker to be open")
	}

	// ...but the direct target is unaffected.
	called := false
	if err := guard.Do(ctx, "http://cloud/inference/direct", func(ctx context.Context) error {
		called = true
		return nil
	}); err != nil {
		t.Errorf("unexpected error on unrelated target: %v", err)
	}
	if !called {
		t.Error("expected direct target call to go through")
	}
}

func TestCallGuardRespectsConcurrencyLimit(t *testing.T) {
	guard := NewCallGuard(1, DefaultCircuitBreakerOptions(), RetryOptions{MaxRetries: 0})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	release := make(chan struct{})
	go guard.Do(context.Background(), "http://cloud/verify", func(ctx context.Context) error {
		<-release
		return nil
	})
	time.Sleep(5 * time.Millisecond) // let the first call acquire the only slot

	err := guard.Do(ctx, "http://cloud/verify", func(ctx context.Context) error { return nil })
	close(release)
	if err == nil {
		t.Error("expected second call to block until context deadline")
	}
}
