package fallback

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	reg := NewBreakerRegistry(Settings{FailureThreshold: 5, RecoveryWindow: time.Minute, SuccessThreshold: 3})
	id := uuid.New()

	for i := 0; i < 4; i++ {
		reg.RecordFailure(id)
	}
	if state := reg.State(id); state != StateClosed {
		t.Fatalf("expected closed before threshold, got %s", state)
	}
	if !reg.Allow(id) {
		t.Fatal("closed breaker must allow attempts")
	}

	reg.RecordFailure(id)
	if state := reg.State(id); state != StateOpen {
		t.Fatalf("expected open after threshold, got %s", state)
	}
	if reg.Allow(id) {
		t.Fatal("open breaker must reject attempts")
	}
}

func TestBreakerSuccessResetsFailureStreak(t *testing.T) {
	reg := NewBreakerRegistry(Settings{FailureThreshold: 3, RecoveryWindow: time.Minute, SuccessThreshold: 1})
	id := uuid.New()

	reg.RecordFailure(id)
	reg.RecordFailure(id)
	reg.RecordSuccess(id)
	reg.RecordFailure(id)
	reg.RecordFailure(id)
	if state := reg.State(id); state != StateClosed {
		t.Fatalf("non-consecutive failures must not open the breaker, got %s", state)
	}
}

func TestBreakerRecoveryCycle(t *testing.T) {
	now := time.Now()
	reg := NewBreakerRegistry(Settings{FailureThreshold: 1, RecoveryWindow: time.Minute, SuccessThreshold: 3})
	reg.now = func() time.Time { return now }
	id := uuid.New()

	reg.RecordFailure(id)
	if reg.Allow(id) {
		t.Fatal("open breaker must reject before recovery window")
	}

	now = now.Add(61 * time.Second)
	if !reg.Allow(id) {
		t.Fatal("elapsed recovery window must admit a probationary attempt")
	}
	if state := reg.State(id); state != StateHalfOpen {
		t.Fatalf("expected half-open, got %s", state)
	}

	reg.RecordSuccess(id)
	reg.RecordSuccess(id)
	if state := reg.State(id); state != StateHalfOpen {
		t.Fatalf("expected half-open until success threshold, got %s", state)
	}
	reg.RecordSuccess(id)
	if state := reg.State(id); state != StateClosed {
		t.Fatalf("expected closed after success threshold, got %s", state)
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	now := time.Now()
	reg := NewBreakerRegistry(Settings{FailureThreshold: 1, RecoveryWindow: time.Minute, SuccessThreshold: 3})
	reg.now = func() time.Time { return now }
	id := uuid.New()

	reg.RecordFailure(id)
	now = now.Add(61 * time.Second)
	if !reg.Allow(id) {
		t.Fatal("expected probationary attempt")
	}
	reg.RecordFailure(id)
	if state := reg.State(id); state != StateOpen {
		t.Fatalf("half-open failure must reopen, got %s", state)
	}
	if reg.Allow(id) {
		t.Fatal("reopened breaker must reject until the next window")
	}
}

func TestBreakerResetAndRemove(t *testing.T) {
	reg := NewBreakerRegistry(Settings{FailureThreshold: 1, RecoveryWindow: time.Minute, SuccessThreshold: 3})
	id := uuid.New()

	reg.RecordFailure(id)
	reg.Reset(id)
	if state := reg.State(id); state != StateClosed {
		t.Fatalf("reset must close the breaker, got %s", state)
	}

	reg.RecordFailure(id)
	reg.Remove(id)
	if state := reg.State(id); state != StateClosed {
		t.Fatalf("removed breaker must start fresh, got %s", state)
	}
}
