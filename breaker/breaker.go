package breaker

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// State is the circuit breaker's position in its CLOSED/OPEN/HALF_OPEN state machine
type State int

const (
	// Closed lets calls pass through while counting consecutive failures
	Closed State = iota
	// Open rejects calls immediately until the recovery timeout elapses
	Open
	// HalfOpen lets a bounded number of probe calls through to test recovery
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	}
	return "unknown"
}

// Settings are per-dependency thresholds; zero values fall back to the defaults below
type Settings struct {
	FailureThreshold uint
	RecoveryTimeout  time.Duration
	HalfOpenMaxCalls uint
	SuccessThreshold uint
}

// DefaultSettings mirror the thresholds the pipeline ships with
func DefaultSettings() Settings {
	return Settings{
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
		HalfOpenMaxCalls: 2,
		SuccessThreshold: 2,
	}
}

func (s Settings) withDefaults() Settings {
	defaults := DefaultSettings()
	if s.FailureThreshold == 0 {
		s.FailureThreshold = defaults.FailureThreshold
	}
	if s.RecoveryTimeout == 0 {
		s.RecoveryTimeout = defaults.RecoveryTimeout
	}
	if s.HalfOpenMaxCalls == 0 {
		s.HalfOpenMaxCalls = defaults.HalfOpenMaxCalls
	}
	if s.SuccessThreshold == 0 {
		s.SuccessThreshold = defaults.SuccessThreshold
	}
	return s
}

// Snapshot is a read-only view of breaker state for health reporting
type Snapshot struct {
	Name                 string    `json:"name"`
	State                string    `json:"state"`
	ConsecutiveFailures  uint      `json:"consecutiveFailures"`
	ConsecutiveSuccesses uint      `json:"consecutiveSuccesses"`
	LastFailureAt        time.Time `json:"lastFailureAt"`
	LastStateChangeAt    time.Time `json:"lastStateChangeAt"`
}

// Breaker is a failure gate for one downstream dependency. One instance is shared by all
// concurrent callers of that dependency, so every mutation happens under the mutex.
type Breaker struct {
	name     string
	settings Settings

	mu                   sync.Mutex
	state                State
	consecutiveFailures  uint
	consecutiveSuccesses uint
	halfOpenInflight     uint
	openedAt             time.Time
	lastFailureAt        time.Time
	lastStateChangeAt    time.Time

	now func() time.Time
}

// New creates a breaker for the named dependency
func New(name string, settings Settings) *Breaker {
	return &Breaker{
		name:              name,
		settings:          settings.withDefaults(),
		state:             Closed,
		lastStateChangeAt: time.Now(),
		now:               time.Now,
	}
}

// Name returns the dependency name this breaker guards
func (b *Breaker) Name() string {
	return b.name
}

// Allow reports whether a call may proceed right now. It is non-blocking; in half-open it
// also reserves one of the bounded probe slots, released by RecordSuccess/RecordFailure.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case Closed:
		return true
	case Open:
		if b.now().Sub(b.openedAt) >= b.settings.RecoveryTimeout {
			b.transitionLocked(HalfOpen)
			b.halfOpenInflight = 1
			return true
		}
		return false
	case HalfOpen:
		if b.halfOpenInflight < b.settings.HalfOpenMaxCalls {
			b.halfOpenInflight++
			return true
		}
		return false
	}
	return false
}

// RecordSuccess notes a successful call against the dependency
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case Closed:
		b.consecutiveFailures = 0
	case HalfOpen:
		if b.halfOpenInflight > 0 {
			b.halfOpenInflight--
		}
		b.consecutiveSuccesses++
		if b.consecutiveSuccesses >= b.settings.SuccessThreshold {
			b.transitionLocked(Closed)
		}
	case Open:
		// a straggler finishing after the trip; the recovery timer governs reopening
	}
}

// RecordFailure notes a failed call against the dependency
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastFailureAt = b.now()
	switch b.state {
	case Closed:
		b.consecutiveFailures++
		if b.consecutiveFailures >= b.settings.FailureThreshold {
			b.openLocked()
		}
	case HalfOpen:
		// any probe failure sends the breaker straight back to open
		b.openLocked()
	case Open:
	}
}

// State returns the current state, applying the open-to-half-open timeout check
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open && b.now().Sub(b.openedAt) >= b.settings.RecoveryTimeout {
		return HalfOpen
	}
	return b.state
}

// GetSnapshot captures the breaker state for the health endpoint
func (b *Breaker) GetSnapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		Name:                 b.name,
		State:                b.state.String(),
		ConsecutiveFailures:  b.consecutiveFailures,
		ConsecutiveSuccesses: b.consecutiveSuccesses,
		LastFailureAt:        b.lastFailureAt,
		LastStateChangeAt:    b.lastStateChangeAt,
	}
}

func (b *Breaker) openLocked() {
	b.openedAt = b.now()
	b.halfOpenInflight = 0
	b.consecutiveSuccesses = 0
	b.transitionLocked(Open)
}

func (b *Breaker) transitionLocked(next State) {
	if b.state == next {
		return
	}
	log.Info().Str("dependency", b.name).Str("from", b.state.String()).Str("to", next.String()).Msg("circuit breaker state change")
	b.state = next
	b.lastStateChangeAt = b.now()
	if next == Closed {
		b.consecutiveFailures = 0
		b.consecutiveSuccesses = 0
		b.halfOpenInflight = 0
	}
	if next == HalfOpen {
		b.consecutiveSuccesses = 0
	}
}
