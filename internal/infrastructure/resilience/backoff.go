package resilience

import (
	"context"
	"sync"
	"time"
)

// State represents whether attempts currently pay the backoff delay
type State int

const (
	StateReady State = iota
	StateBackingOff
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateBackingOff:
		return "backing-off"
	default:
		return "unknown"
	}
}

// Settings configures the backoff behavior
type Settings struct {
	// Threshold is the number of consecutive failures after which every
	// further attempt is delayed
	Threshold uint32
	// Delay is the fixed pause inserted before a delayed attempt
	Delay time.Duration
	// OnStateChange is called whenever the state changes
	OnStateChange func(name string, from State, to State)
}

// Counts holds attempt statistics
type Counts struct {
	Attempts            uint32
	TotalFailures       uint32
	ConsecutiveFailures uint32
	Delayed             uint32
}

// Backoff gates a repeatable operation, such as dialing the agent, so that a
// run of failures stops turning into a hot loop. Below the threshold attempts
// run immediately; at or above it each attempt first waits Delay. A single
// success resets the run.
type Backoff struct {
	name     string
	settings Settings

	mu     sync.Mutex
	state  State
	counts Counts
}

// New creates a backoff gate with the given settings
func New(name string, settings Settings) *Backoff {
	if settings.Threshold == 0 {
		settings.Threshold = 3
	}
	if settings.Delay <= 0 {
		settings.Delay = 500 * time.Millisecond
	}

	return &Backoff{
		name:     name,
		settings: settings,
		state:    StateReady,
	}
}

// Name returns the name of the gate
func (b *Backoff) Name() string {
	return b.name
}

// State returns the current state
func (b *Backoff) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.state
}

// Counts returns a copy of the internal counts
func (b *Backoff) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.counts
}

// Do runs attempt, waiting Delay first if the failure run has reached the
// threshold. The wait honours ctx; a cancelled wait returns ctx.Err() without
// running attempt and without counting as a failure.
func (b *Backoff) Do(ctx context.Context, attempt func(ctx context.Context) error) error {
	if b.beforeAttempt() {
		timer := time.NewTimer(b.settings.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	defer func() {
		if e := recover(); e != nil {
			b.afterAttempt(false)
			panic(e)
		}
	}()

	err := attempt(ctx)
	b.afterAttempt(err == nil)
	return err
}

// Reset clears the failure run
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.counts.ConsecutiveFailures = 0
	b.setState(StateReady)
}

// beforeAttempt records the attempt and reports whether it must be delayed
func (b *Backoff) beforeAttempt() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.counts.Attempts++
	if b.state == StateBackingOff {
		b.counts.Delayed++
		return true
	}
	return false
}

func (b *Backoff) afterAttempt(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if success {
		b.counts.ConsecutiveFailures = 0
		b.setState(StateReady)
		return
	}

	b.counts.TotalFailures++
	b.counts.ConsecutiveFailures++
	if b.counts.ConsecutiveFailures >= b.settings.Threshold {
		b.setState(StateBackingOff)
	}
}

// setState must be called with mu held
func (b *Backoff) setState(state State) {
	if b.state == state {
		return
	}

	prev := b.state
	b.state = state

	if b.settings.OnStateChange != nil {
		b.settings.OnStateChange(b.name, prev, state)
	}
}
