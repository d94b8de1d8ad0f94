package util

import (
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestBreaker(threshold int, timeout time.Duration) (*CircuitBreaker, *time.Time) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(threshold, timeout, zap.NewNop())
	cb.now = func() time.Time { return now }
	return cb, &now
}

func TestCircuitBreakerOpensAtThreshold(t *testing.T) {
	cb, _ := newTestBreaker(2, time.Minute)

	cb.RecordFailure(0)
	if !cb.CanExecute() {
		t.Fatalf("expected breaker to stay closed after one failure")
	}

	cb.RecordFailure(0)
	if cb.CanExecute() {
		t.Fatalf("expected breaker to open after reaching threshold")
	}

	status := cb.Status()
	if status.State != CircuitStateOpen || status.NextRetryTime == nil {
		t.Fatalf("expected open status with retry time, got %+v", status)
	}
}

func TestCircuitBreakerHalfOpenAfterTimeout(t *testing.T) {
	cb, now := newTestBreaker(1, time.Minute)

	cb.RecordFailure(0)
	if cb.State() != CircuitStateOpen {
		t.Fatalf("expected open state")
	}

	*now = now.Add(2 * time.Minute)
	if cb.State() != CircuitStateHalfOpen {
		t.Fatalf("expected half-open after cool-down, got %s", cb.State())
	}

	cb.RecordSuccess()
	if cb.State() != CircuitStateClosed {
		t.Fatalf("expected closed after trial success, got %s", cb.State())
	}
}

func TestCircuitBreakerReopensOnHalfOpenFailure(t *testing.T) {
	cb, now := newTestBreaker(3, time.Minute)

	cb.RecordFailure(0)
	cb.RecordFailure(0)
	cb.RecordFailure(0)
	*now = now.Add(time.Minute)
	if cb.State() != CircuitStateHalfOpen {
		t.Fatalf("expected half-open")
	}

	cb.RecordFailure(10 * time.Minute)
	if cb.State() != CircuitStateOpen {
		t.Fatalf("expected reopen after half-open failure")
	}

	*now = now.Add(5 * time.Minute)
	if cb.State() != CircuitStateOpen {
		t.Fatalf("expected custom timeout to keep breaker open")
	}
}

func TestTruncateString(t *testing.T) {
	if got := TruncateString("abcdef", 3); got != "abc..." {
		t.Fatalf("unexpected truncation: %q", got)
	}
	if got := TruncateString("ab", 3); got != "ab" {
		t.Fatalf("expected short string unchanged, got %q", got)
	}
}

func TestSplitTrimmed(t *testing.T) {
	got := SplitTrimmed(" a, ,b ,c", ",")
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("unexpected split: %v", got)
	}
}
