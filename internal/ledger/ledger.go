// Package ledger records the decisions the turn loop makes about tool
// permissions and context pruning, giving a per-turn audit trail that the
// status projector and session archive can both read.
package ledger

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DecisionRecord captures one permission or safety decision made during a
// turn.
type DecisionRecord struct {
	ID          string
	Turn        int
	Description string
	Action      string // e.g. "permit", "deny", "prompt", "cache_hit"
	Outcome     string
	At          time.Time
}

// PruningDecision captures one context-trimming action taken by the context
// manager.
type PruningDecision struct {
	ID          string
	Turn        int
	Phase       string // e.g. "drop_superseded_tool_output", "summarize_oldest_pair"
	MessagesHit int
	TokensSaved int
	At          time.Time
}

// Ledger accumulates decision and pruning records for the life of a
// session. Safe for concurrent use; readers (the status projector) and
// writers (the turn loop) share the same RWMutex-guarded slices.
type Ledger struct {
	mu        sync.RWMutex
	decisions []DecisionRecord
	prunings  []PruningDecision
}

// New creates an empty Ledger.
func New() *Ledger {
	return &Ledger{}
}

// RecordDecision appends a decision record, stamping it with an ID and
// timestamp.
func (l *Ledger) RecordDecision(turn int, description, action, outcome string) DecisionRecord {
	rec := DecisionRecord{
		ID:          uuid.NewString(),
		Turn:        turn,
		Description: description,
		Action:      action,
		Outcome:     outcome,
		At:          time.Now(),
	}
	l.mu.Lock()
	l.decisions = append(l.decisions, rec)
	l.mu.Unlock()
	return rec
}

// RecordPruning appends a pruning decision record.
func (l *Ledger) RecordPruning(turn int, phase string, messagesHit, tokensSaved int) PruningDecision {
	rec := PruningDecision{
		ID:          uuid.NewString(),
		Turn:        turn,
		Phase:       phase,
		MessagesHit: messagesHit,
		TokensSaved: tokensSaved,
		At:          time.Now(),
	}
	l.mu.Lock()
	l.prunings = append(l.prunings, rec)
	l.mu.Unlock()
	return rec
}

// Decisions returns a copy of all recorded decisions.
func (l *Ledger) Decisions() []DecisionRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]DecisionRecord, len(l.decisions))
	copy(out, l.decisions)
	return out
}

// Prunings returns a copy of all recorded pruning decisions.
func (l *Ledger) Prunings() []PruningDecision {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]PruningDecision, len(l.prunings))
	copy(out, l.prunings)
	return out
}

// DecisionsForTurn filters decisions down to a single turn.
func (l *Ledger) DecisionsForTurn(turn int) []DecisionRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []DecisionRecord
	for _, d := range l.decisions {
		if d.Turn == turn {
			out = append(out, d)
		}
	}
	return out
}
