// Package breaker adapts sony/gobreaker into the three-state circuit
// breaker the client facade uses to protect the transport from cascading
// failures, adding the admin override and rejection accounting gobreaker
// doesn't provide natively.
package breaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// State mirrors the client-visible CircuitState sum: Closed, Open, HalfOpen.
type State int

const (
	Closed State = iota
	Open
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
	default:
		return "unknown"
	}
}

// ErrOpen is returned by Execute when the breaker is open (or forced open)
// and rejects the call without running it.
var ErrOpen = errors.New("breaker: circuit is open")

// Config tunes trip/reset behavior.
type Config struct {
	// MaxFailures is the number of consecutive failures that trips the
	// circuit from Closed to Open.
	MaxFailures uint32
	// Timeout is how long the circuit stays Open before allowing a trial
	// request (HalfOpen).
	Timeout time.Duration
	// HalfOpenMaxSuccesses is the number of consecutive trial successes
	// needed to close the circuit again.
	HalfOpenMaxSuccesses uint32
	// OnStateChange is called after every state transition, admin-forced
	// or automatic.
	OnStateChange func(from, to State)
}

// DefaultConfig trips after 5 consecutive failures, stays open 30s, and
// needs 2 consecutive half-open successes to close.
func DefaultConfig() Config {
	return Config{
		MaxFailures:          5,
		Timeout:              30 * time.Second,
		HalfOpenMaxSuccesses: 2,
	}
}

// override is the admin forcing mode layered on top of gobreaker's
// automatic state machine.
type override int

const (
	overrideNone override = iota
	overrideOpen
	overrideClosed
)

// Stats reports cumulative counters alongside the current state.
type Stats struct {
	State       State
	Total       uint64
	Successes   uint64
	Failures    uint64
	Rejections  uint64
	Transitions uint64
}

// Breaker is a three-state circuit breaker with an admin override: an
// operator can force it open (reject everything) or force it closed
// (bypass trip logic) independent of observed failures.
type Breaker struct {
	gb     *gobreaker.CircuitBreaker
	config Config

	mu          sync.Mutex
	override    override
	total       uint64
	successes   uint64
	failures    uint64
	rejections  uint64
	transitions uint64
	lastState   State
}

// New constructs a Breaker, starting Closed.
func New(config Config) *Breaker {
	b := &Breaker{config: config, lastState: Closed}

	settings := gobreaker.Settings{
		Name:        "mcp-client",
		MaxRequests: config.HalfOpenMaxSuccesses,
		Interval:    0,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.noteTransition(mapState(from), mapState(to))
		},
	}
	b.gb = gobreaker.NewCircuitBreaker(settings)
	return b
}

func mapState(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return Open
	case gobreaker.StateHalfOpen:
		return HalfOpen
	default:
		return Closed
	}
}

// Execute runs fn if the breaker admits the call, recording the outcome.
// Admission order: admin override first, then the underlying automatic
// state machine. Returns ErrOpen without calling fn when rejected.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error) {
	b.mu.Lock()
	ov := b.override
	b.mu.Unlock()

	if ov == overrideOpen {
		b.recordRejection()
		return nil, ErrOpen
	}

	if ov == overrideClosed {
		result, err := fn(ctx)
		if err != nil {
			b.recordFailure()
			return nil, err
		}
		b.recordSuccess()
		return result, nil
	}

	result, err := b.gb.Execute(func() (any, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		return fn(ctx)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			b.recordRejection()
			return nil, ErrOpen
		}
		b.recordFailure()
		return nil, err
	}
	b.recordSuccess()
	return result, nil
}

// State returns the effective state, accounting for any admin override.
func (b *Breaker) State() State {
	b.mu.Lock()
	ov := b.override
	b.mu.Unlock()

	switch ov {
	case overrideOpen:
		return Open
	case overrideClosed:
		return Closed
	default:
		return mapState(b.gb.State())
	}
}

// ForceOpen makes the breaker reject every call until ForceClosed or Reset
// is called, regardless of observed success/failure.
func (b *Breaker) ForceOpen() {
	b.mu.Lock()
	from := b.effectiveStateLocked()
	b.override = overrideOpen
	b.mu.Unlock()
	b.noteTransition(from, Open)
}

// ForceClosed makes the breaker admit every call, bypassing trip logic,
// until Reset returns control to the automatic state machine.
func (b *Breaker) ForceClosed() {
	b.mu.Lock()
	from := b.effectiveStateLocked()
	b.override = overrideClosed
	b.mu.Unlock()
	b.noteTransition(from, Closed)
}

// Reset clears any admin override, returning control to the automatic
// trip/reset state machine. It does not affect gobreaker's own counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	from := b.effectiveStateLocked()
	b.override = overrideNone
	to := mapState(b.gb.State())
	b.mu.Unlock()
	if from != to {
		b.noteTransition(from, to)
	}
}

func (b *Breaker) effectiveStateLocked() State {
	switch b.override {
	case overrideOpen:
		return Open
	case overrideClosed:
		return Closed
	default:
		return mapState(b.gb.State())
	}
}

// Stats returns a snapshot of cumulative counters and current state.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		State:       b.effectiveStateLocked(),
		Total:       b.total,
		Successes:   b.successes,
		Failures:    b.failures,
		Rejections:  b.rejections,
		Transitions: b.transitions,
	}
}

func (b *Breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.total++
	b.successes++
}

func (b *Breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.total++
	b.failures++
}

func (b *Breaker) recordRejection() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rejections++
}

func (b *Breaker) noteTransition(from, to State) {
	if from == to {
		return
	}
	b.mu.Lock()
	b.transitions++
	b.lastState = to
	b.mu.Unlock()
	if b.config.OnStateChange != nil {
		b.config.OnStateChange(from, to)
	}
}
