package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// State of the breaker. CLOSED passes calls through, OPEN fails fast,
// HALF_OPEN lets a single trial call test for recovery.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "CLOSED"
	case Open:
		return "OPEN"
	case HalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// ErrOpen is returned without invoking the wrapped operation while the
// breaker is open and the reset timeout has not elapsed.
var ErrOpen = errors.New("breaker: circuit open")

// Breaker guards one logical external dependency. One instance per
// dependency, constructed explicitly and owned by the container.
type Breaker struct {
	name         string
	threshold    int
	resetTimeout time.Duration

	mu          sync.Mutex
	state       State
	failures    int
	successes   uint64
	lastFailure time.Time
	resetTimer  *time.Timer

	// One trial call at a time while half-open; concurrent callers fail
	// fast instead of stampeding a barely-recovered dependency.
	trialInFlight bool
}

func New(name string, threshold int, resetTimeout time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 3
	}
	if resetTimeout <= 0 {
		resetTimeout = 30 * time.Second
	}
	return &Breaker{
		name:         name,
		threshold:    threshold,
		resetTimeout: resetTimeout,
		state:        Closed,
	}
}

// Execute runs op through the breaker. While open and before the reset
// timeout it fails fast with ErrOpen; if the timeout has elapsed the call
// itself is the half-open trial.
func (b *Breaker) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	b.mu.Lock()
	if b.state == Open {
		if time.Since(b.lastFailure) < b.resetTimeout {
			b.mu.Unlock()
			return fmt.Errorf("%s: %w", b.name, ErrOpen)
		}
		// Timer may not have fired yet (or was lost); the attempt itself
		// moves us to half-open.
		b.toHalfOpenLocked()
	}
	halfOpenTrial := false
	if b.state == HalfOpen {
		if b.trialInFlight {
			b.mu.Unlock()
			return fmt.Errorf("%s: %w", b.name, ErrOpen)
		}
		b.trialInFlight = true
		halfOpenTrial = true
	}
	b.mu.Unlock()

	err := op(ctx)

	b.mu.Lock()
	defer b.mu.Unlock()
	if halfOpenTrial {
		b.trialInFlight = false
	}
	if err != nil {
		b.onFailureLocked()
		return err
	}
	b.onSuccessLocked()
	return nil
}

func (b *Breaker) onSuccessLocked() {
	b.successes++
	if b.state == HalfOpen {
		b.state = Closed
	}
	b.failures = 0
}

func (b *Breaker) onFailureLocked() {
	b.failures++
	b.lastFailure = time.Now()

	if b.state == HalfOpen || b.failures >= b.threshold {
		b.state = Open
		b.armResetTimerLocked()
	}
}

// armResetTimerLocked replaces (never merely overwrites) the reset timer so
// rapid failure/recovery cycles cannot leave duplicate timers in flight.
func (b *Breaker) armResetTimerLocked() {
	if b.resetTimer != nil {
		b.resetTimer.Stop()
	}
	b.resetTimer = time.AfterFunc(b.resetTimeout, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.state == Open {
			b.toHalfOpenLocked()
		}
	})
}

func (b *Breaker) toHalfOpenLocked() {
	b.state = HalfOpen
	if b.resetTimer != nil {
		b.resetTimer.Stop()
		b.resetTimer = nil
	}
}

func (b *Breaker) Name() string { return b.name }

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

func (b *Breaker) Successes() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.successes
}

// Snapshot reports breaker state for observability endpoints.
type Snapshot struct {
	Name        string    `json:"name"`
	State       string    `json:"state"`
	Failures    int       `json:"failures"`
	Successes   uint64    `json:"successes"`
	LastFailure time.Time `json:"last_failure,omitempty"`
}

func (b *Breaker) Stats() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		Name:        b.name,
		State:       b.state.String(),
		Failures:    b.failures,
		Successes:   b.successes,
		LastFailure: b.lastFailure,
	}
}
