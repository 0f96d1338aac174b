// Package safety enforces per-turn and per-session tool call caps so a
// model that gets stuck calling tools can't run away with the session.
package safety

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Outcome describes the result of validating a tool call against the
// configured limits.
type Outcome int

const (
	// Allowed means the call is within all configured limits.
	Allowed Outcome = iota
	// TurnCapExceeded means the call would exceed the per-turn tool call cap.
	TurnCapExceeded
	// SessionCapExceeded means the call would exceed the per-session cap.
	SessionCapExceeded
	// RateLimited means the call would exceed the per-second or per-minute cap.
	RateLimited
)

func (o Outcome) String() string {
	switch o {
	case TurnCapExceeded:
		return "turn_cap_exceeded"
	case SessionCapExceeded:
		return "session_cap_exceeded"
	case RateLimited:
		return "rate_limited"
	default:
		return "allowed"
	}
}

// Error reports a safety cap being exceeded.
type Error struct {
	Tool    string
	Outcome Outcome
}

func (e *Error) Error() string {
	return fmt.Sprintf("tool %q blocked: %s", e.Tool, e.Outcome)
}

// Limits configures the caps a Validator enforces.
type Limits struct {
	// MaxToolLoops is the maximum number of tool calls permitted in a single
	// turn. The session-wide cap is derived as three times this value,
	// matching the original runtime's "generous but bounded" session
	// allowance.
	MaxToolLoops int
	// PerSecond and PerMinute cap the call rate regardless of per-turn/
	// per-session counts, guarding against a tight tool-call loop that
	// never crosses the turn boundary.
	PerSecond int
	PerMinute int
}

// SessionMultiplier is how the session cap is derived from MaxToolLoops.
const SessionMultiplier = 3

// Validator enforces Limits across the life of a session. Call StartTurn at
// the beginning of each turn to reset the per-turn counter.
type Validator struct {
	mu           sync.Mutex
	limits       Limits
	turnCalls    int
	sessionCalls int

	perSecond *rate.Limiter
	perMinute *rate.Limiter
}

// New creates a Validator enforcing the given limits.
func New(limits Limits) *Validator {
	v := &Validator{limits: limits}
	if limits.PerSecond > 0 {
		v.perSecond = rate.NewLimiter(rate.Limit(limits.PerSecond), limits.PerSecond)
	}
	if limits.PerMinute > 0 {
		v.perMinute = rate.NewLimiter(rate.Limit(float64(limits.PerMinute)/60.0), limits.PerMinute)
	}
	return v
}

// StartTurn resets the per-turn call counter. Self-review calls made by the
// turn loop after the model's final answer do not go through ValidateCall
// and so never count against these caps.
func (v *Validator) StartTurn() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.turnCalls = 0
}

// ValidateCall checks whether a call to tool is currently permitted,
// incrementing the turn and session counters if so.
func (v *Validator) ValidateCall(tool string) (Outcome, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.limits.MaxToolLoops > 0 && v.turnCalls >= v.limits.MaxToolLoops {
		return TurnCapExceeded, &Error{Tool: tool, Outcome: TurnCapExceeded}
	}
	sessionCap := v.limits.MaxToolLoops * SessionMultiplier
	if sessionCap > 0 && v.sessionCalls >= sessionCap {
		return SessionCapExceeded, &Error{Tool: tool, Outcome: SessionCapExceeded}
	}
	if v.perSecond != nil && !v.perSecond.Allow() {
		return RateLimited, &Error{Tool: tool, Outcome: RateLimited}
	}
	if v.perMinute != nil && !v.perMinute.Allow() {
		return RateLimited, &Error{Tool: tool, Outcome: RateLimited}
	}

	v.turnCalls++
	v.sessionCalls++
	return Allowed, nil
}

// TurnCalls returns the number of calls recorded so far this turn.
func (v *Validator) TurnCalls() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.turnCalls
}

// SessionCalls returns the number of calls recorded so far this session.
func (v *Validator) SessionCalls() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.sessionCalls
}

// WaitReset reports, without blocking, the time until the per-second limiter
// would allow another call (0 when no per-second cap is set), useful for
// surfacing "try again in Ns" notices.
func (v *Validator) WaitReset() time.Duration {
	if v.perSecond == nil {
		return 0
	}
	r := v.perSecond.Reserve()
	defer r.Cancel()
	return r.Delay()
}
