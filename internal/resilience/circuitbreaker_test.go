package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	now := time.Date(2024, 5, 1, 7, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker("fetch", CircuitBreakerConfig{FailureThreshold: 2, Timeout: time.Minute})
	cb.now = func() time.Time { return now }

	calls := 0
	failing := func(ctx context.Context) error {
		calls++
		return errBoom
	}

	for i := 0; i < 2; i++ {
		if err := cb.Execute(context.Background(), failing); !errors.Is(err, errBoom) {
			t.Fatalf("Attempt %d: expected boom, got %v", i, err)
		}
	}
	if cb.State() != CircuitOpen {
		t.Fatalf("Expected open circuit, got %s", cb.State())
	}

	if err := cb.Execute(context.Background(), failing); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("Expected ErrCircuitOpen, got %v", err)
	}
	if calls != 2 {
		t.Errorf("Open circuit must not call through, calls=%d", calls)
	}

	// After the timeout a single trial call is allowed and closes the circuit.
	now = now.Add(2 * time.Minute)
	if err := cb.Execute(context.Background(), func(ctx context.Context) error { return nil }); err != nil {
		t.Fatalf("Expected the trial call to pass, got %v", err)
	}
	if cb.State() != CircuitClosed {
		t.Errorf("Expected closed circuit, got %s", cb.State())
	}

	stats := cb.Stats()
	if stats.TotalRejected != 1 || stats.TotalFailures != 2 || stats.TotalSuccesses != 1 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	cb := NewCircuitBreaker("fetch", CircuitBreakerConfig{FailureThreshold: 2, Timeout: time.Minute})
	ctx := context.Background()

	_ = cb.Execute(ctx, func(ctx context.Context) error { return errBoom })
	_ = cb.Execute(ctx, func(ctx context.Context) error { return nil })
	_ = cb.Execute(ctx, func(ctx context.Context) error { return errBoom })

	if cb.State() != CircuitClosed {
		t.Errorf("Non-consecutive failures must not open the circuit")
	}
}

func TestCircuitBreaker_DisabledWithZeroThreshold(t *testing.T) {
	cb := NewCircuitBreaker("fetch", CircuitBreakerConfig{})
	for i := 0; i < 10; i++ {
		_ = cb.Execute(context.Background(), func(ctx context.Context) error { return errBoom })
	}
	if cb.State() != CircuitClosed {
		t.Errorf("Disabled breaker must stay closed")
	}
}

func TestExecuteWithResult(t *testing.T) {
	cb := NewCircuitBreaker("fetch", DefaultCircuitBreakerConfig())
	v, err := ExecuteWithResult(cb, context.Background(), func(ctx context.Context) (int, error) { return 42, nil })
	if err != nil || v != 42 {
		t.Fatalf("Expected 42, got %d (%v)", v, err)
	}
}

func TestGroup_KeysAreIsolated(t *testing.T) {
	g := NewGroup("catalog", CircuitBreakerConfig{FailureThreshold: 2, Timeout: time.Hour})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_ = g.Get("bad@1").Execute(ctx, func(ctx context.Context) error { return errBoom })
	}
	if g.Get("bad@1").State() != CircuitOpen {
		t.Fatalf("Expected bad@1 to be open")
	}

	if err := g.Get("good@1").Execute(ctx, func(ctx context.Context) error { return nil }); err != nil {
		t.Fatalf("Healthy key rejected: %v", err)
	}
	if g.Get("good@1") != g.Get("good@1") {
		t.Error("Get must return the same breaker for a key")
	}

	stats := g.Stats()
	if len(stats) != 2 || stats[0].Name != "catalog/bad@1" || stats[1].Name != "catalog/good@1" {
		t.Fatalf("Unexpected stats %+v", stats)
	}
	// Two failures opened the breaker; the other three calls were rejected.
	if rate := stats[0].FailureRate(); rate != 40 || stats[0].TotalRejected != 3 {
		t.Errorf("Unexpected bad@1 stats %+v (rate %.1f)", stats[0], rate)
	}
	if stats[1].State != CircuitClosed || stats[1].FailureRate() != 0 {
		t.Errorf("Unexpected good@1 stats %+v", stats[1])
	}
}
