// Package breaker implements a per-tool circuit breaker so a tool that is
// failing consistently (a broken MCP server, a misconfigured command) stops
// being retried on every turn and instead backs off.
package breaker

import (
	"sync"
	"time"
)

// State is the circuit breaker's current disposition toward a tool.
type State int

const (
	// Closed means calls are allowed through normally.
	Closed State = iota
	// Open means calls are rejected until the reset timeout elapses.
	Open
	// HalfOpen means a single probe call is allowed to test recovery.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// Config tunes a Breaker's thresholds.
type Config struct {
	// FailureThreshold is the number of consecutive failures that trips the
	// breaker open.
	FailureThreshold int
	// ResetTimeout is how long the breaker stays open before allowing a
	// half-open probe.
	ResetTimeout time.Duration
	// BackoffFactor multiplies ResetTimeout on each repeated trip.
	BackoffFactor float64
	// MaxBackoff caps the growth of the reset timeout.
	MaxBackoff time.Duration
}

// DefaultConfig returns reasonable defaults: trip after 3 consecutive
// failures, reset after 30s, doubling on repeat trips up to 5 minutes.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 3,
		ResetTimeout:     30 * time.Second,
		BackoffFactor:    2.0,
		MaxBackoff:       5 * time.Minute,
	}
}

type toolState struct {
	state           State
	consecutiveFail int
	openedAt        time.Time
	currentBackoff  time.Duration
	probeInFlight   bool
}

// Breaker tracks circuit state per tool name.
type Breaker struct {
	mu    sync.Mutex
	cfg   Config
	tools map[string]*toolState
}

// New creates a Breaker with the given configuration.
func New(cfg Config) *Breaker {
	return &Breaker{cfg: cfg, tools: make(map[string]*toolState)}
}

func (b *Breaker) stateFor(tool string) *toolState {
	ts, ok := b.tools[tool]
	if !ok {
		ts = &toolState{state: Closed, currentBackoff: b.cfg.ResetTimeout}
		b.tools[tool] = ts
	}
	return ts
}

// Allow reports whether a call to tool should proceed. An Open breaker
// whose reset timeout has elapsed transitions to HalfOpen and allows
// exactly one probe call through.
func (b *Breaker) Allow(tool string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	ts := b.stateFor(tool)

	switch ts.state {
	case Closed:
		return true
	case Open:
		if time.Since(ts.openedAt) >= ts.currentBackoff {
			ts.state = HalfOpen
			ts.probeInFlight = true
			return true
		}
		return false
	case HalfOpen:
		// Only one probe is allowed in flight at a time.
		if ts.probeInFlight {
			return false
		}
		ts.probeInFlight = true
		return true
	default:
		return true
	}
}

// RecordResult reports the outcome of a call previously allowed by Allow.
func (b *Breaker) RecordResult(tool string, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ts := b.stateFor(tool)

	if success {
		ts.state = Closed
		ts.consecutiveFail = 0
		ts.probeInFlight = false
		ts.currentBackoff = b.cfg.ResetTimeout
		return
	}

	ts.probeInFlight = false
	ts.consecutiveFail++

	if ts.state == HalfOpen {
		// Probe failed: back off further and re-open.
		ts.currentBackoff = nextBackoff(ts.currentBackoff, b.cfg)
		ts.state = Open
		ts.openedAt = time.Now()
		return
	}

	if ts.state == Closed && ts.consecutiveFail >= b.cfg.FailureThreshold {
		ts.state = Open
		ts.openedAt = time.Now()
	}
}

func nextBackoff(cur time.Duration, cfg Config) time.Duration {
	next := time.Duration(float64(cur) * cfg.BackoffFactor)
	if next > cfg.MaxBackoff {
		next = cfg.MaxBackoff
	}
	return next
}

// StateOf returns the current state of a tool's breaker, for status
// projection.
func (b *Breaker) StateOf(tool string) State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ts, ok := b.tools[tool]; ok {
		return ts.state
	}
	return Closed
}
