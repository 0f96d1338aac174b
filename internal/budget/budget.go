// Package budget tracks token consumption against a context window and
// raises a cascading series of threshold crossings the turn loop uses to
// decide when to trim, compact, or abort.
package budget

import "sync"

// Threshold names the four budget checkpoints, each crossed in order as
// usage climbs toward the window limit.
type Threshold string

const (
	// ThresholdWarning is the first checkpoint: usage is getting high but
	// no action is required yet beyond surfacing a notice.
	ThresholdWarning Threshold = "warning"
	// ThresholdAlert asks the context manager to consider trimming soon.
	ThresholdAlert Threshold = "alert"
	// ThresholdCompact requests an adaptive trim before the next model call.
	ThresholdCompact Threshold = "compact"
	// ThresholdEmergency forces an immediate trim even mid-turn.
	ThresholdEmergency Threshold = "emergency"
)

// ratios, in crossing order. Matches the cascade used by the original
// turn-loop budget guard: 75% / 85% / 90% / 95% of the window.
var cascade = []struct {
	name  Threshold
	ratio float64
}{
	{ThresholdWarning, 0.75},
	{ThresholdAlert, 0.85},
	{ThresholdCompact, 0.90},
	{ThresholdEmergency, 0.95},
}

// Counts tracks token usage broken down by conversation role, mirroring
// client.TokenUsage but split finer for trim-phase decisions.
type Counts struct {
	System    int
	User      int
	Assistant int
	ToolOut   int
}

// Total returns the sum of all tracked kinds.
func (c Counts) Total() int {
	return c.System + c.User + c.Assistant + c.ToolOut
}

// Counter accumulates token usage against a fixed window limit and reports
// threshold crossings exactly once per threshold until Reset clears them.
// Safe for concurrent use.
type Counter struct {
	mu     sync.Mutex
	limit  int
	counts Counts
	warned map[Threshold]bool
}

// NewCounter creates a Counter for a context window of the given size in
// tokens.
func NewCounter(limit int) *Counter {
	return &Counter{
		limit:  limit,
		warned: make(map[Threshold]bool, len(cascade)),
	}
}

// Add accumulates usage for one completion round.
func (c *Counter) Add(kind string, tokens int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch kind {
	case "system":
		c.counts.System += tokens
	case "user":
		c.counts.User += tokens
	case "assistant":
		c.counts.Assistant += tokens
	case "tool_output":
		c.counts.ToolOut += tokens
	}
}

// Counts returns a snapshot of the accumulated counts.
func (c *Counter) Counts() Counts {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts
}

// UsageRatio returns the fraction of the window consumed so far.
func (c *Counter) UsageRatio() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.limit <= 0 {
		return 0
	}
	return float64(c.counts.Total()) / float64(c.limit)
}

// CheckThreshold reports the highest threshold crossed since the last call
// that has not yet been reported, or ("", false) if none is newly crossed.
// Each threshold fires at most once per turn's worth of accumulation,
// matching the idempotent "already warned" cascade in the original runtime.
func (c *Counter) CheckThreshold() (Threshold, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ratio := 0.0
	if c.limit > 0 {
		ratio = float64(c.counts.Total()) / float64(c.limit)
	}

	// Walk from the highest threshold down so an emergency jump reports
	// emergency, not warning, even if warning was never individually seen.
	for i := len(cascade) - 1; i >= 0; i-- {
		t := cascade[i]
		if ratio >= t.ratio && !c.warned[t.name] {
			c.warned[t.name] = true
			return t.name, true
		}
	}
	return "", false
}

// ResetWarnings clears crossed-threshold state, e.g. after a trim brings
// usage back down and the cascade should be able to fire again.
func (c *Counter) ResetWarnings() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.warned = make(map[Threshold]bool, len(cascade))
}

// Snapshot captures enough state to restore a Counter after a session
// resume, round-tripping through session persistence.
type Snapshot struct {
	Limit  int
	Counts Counts
	Warned map[Threshold]bool
}

// Snapshot captures the counter's current state.
func (c *Counter) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	warned := make(map[Threshold]bool, len(c.warned))
	for k, v := range c.warned {
		warned[k] = v
	}
	return Snapshot{Limit: c.limit, Counts: c.counts, Warned: warned}
}

// RestoreStats rebuilds a Counter's state from a prior Snapshot, e.g. when
// resuming a persisted session so the budget cascade doesn't re-fire
// warnings already surfaced before the process exited.
func RestoreStats(s Snapshot) *Counter {
	c := NewCounter(s.Limit)
	c.counts = s.Counts
	for k, v := range s.Warned {
		c.warned[k] = v
	}
	return c
}
