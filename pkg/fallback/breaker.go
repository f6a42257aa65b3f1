package fallback

import (
	"sync"
	"time"

	"github.com/goliatone/go-credentials/pkg/config"
	"github.com/google/uuid"
)

// BreakerState is the per-credential circuit position.
type BreakerState string

const (
	StateClosed   BreakerState = "closed"
	StateOpen     BreakerState = "open"
	StateHalfOpen BreakerState = "half_open"
)

// Settings tune the breaker state machine.
type Settings struct {
	FailureThreshold int
	RecoveryWindow   time.Duration
	SuccessThreshold int
}

func (s Settings) withDefaults() Settings {
	defaults := config.Defaults().Fallback
	if s.FailureThreshold <= 0 {
		s.FailureThreshold = defaults.FailureThreshold
	}
	if s.RecoveryWindow <= 0 {
		s.RecoveryWindow = defaults.RecoveryWindow
	}
	if s.SuccessThreshold <= 0 {
		s.SuccessThreshold = defaults.SuccessThreshold
	}
	return s
}

type breaker struct {
	mu          sync.Mutex
	state       BreakerState
	failures    int
	successes   int
	lastFailure time.Time
	nextRetry   time.Time
	settings    Settings
}

// BreakerRegistry tracks recent failure history per credential. State is
// process-local and never persisted; it is a liveness optimization, not a
// correctness-critical invariant.
type BreakerRegistry struct {
	mu       sync.Mutex
	breakers map[uuid.UUID]*breaker
	settings Settings
	now      func() time.Time
}

// NewBreakerRegistry returns a registry with the given settings; zero fields
// fall back to defaults.
func NewBreakerRegistry(settings Settings) *BreakerRegistry {
	return &BreakerRegistry{
		breakers: make(map[uuid.UUID]*breaker),
		settings: settings.withDefaults(),
		now:      time.Now,
	}
}

func (r *BreakerRegistry) get(id uuid.UUID) *breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[id]
	if !ok {
		b = &breaker{state: StateClosed, settings: r.settings}
		r.breakers[id] = b
	}
	return b
}

// Allow reports whether an attempt against the credential may proceed. An
// open breaker whose recovery window has elapsed transitions to half-open and
// admits one probationary attempt.
func (r *BreakerRegistry) Allow(id uuid.UUID) bool {
	b := r.get(id)
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		if !r.now().Before(b.nextRetry) {
			b.state = StateHalfOpen
			b.successes = 0
			return true
		}
		return false
	}
	return true
}

// RecordSuccess feeds a successful attempt into the state machine.
func (r *BreakerRegistry) RecordSuccess(id uuid.UUID) {
	b := r.get(id)
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.settings.SuccessThreshold {
			b.state = StateClosed
			b.failures = 0
			b.successes = 0
		}
	case StateClosed:
		b.failures = 0
	}
}

// RecordFailure feeds a failed attempt into the state machine.
func (r *BreakerRegistry) RecordFailure(id uuid.UUID) {
	b := r.get(id)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastFailure = r.now()
	switch b.state {
	case StateHalfOpen:
		b.state = StateOpen
		b.failures = 0
		b.successes = 0
		b.nextRetry = r.now().Add(b.settings.RecoveryWindow)
	case StateClosed:
		b.failures++
		if b.failures >= b.settings.FailureThreshold {
			b.state = StateOpen
			b.failures = 0
			b.nextRetry = r.now().Add(b.settings.RecoveryWindow)
		}
	}
}

// State reports the current position without mutating it.
func (r *BreakerRegistry) State(id uuid.UUID) BreakerState {
	b := r.get(id)
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset closes the breaker on explicit operator action.
func (r *BreakerRegistry) Reset(id uuid.UUID) {
	b := r.get(id)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
	b.successes = 0
}

// Remove evicts breaker state for a deleted credential.
func (r *BreakerRegistry) Remove(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.breakers, id)
}
