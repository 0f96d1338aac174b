// Package interrupt implements cooperative cancellation for the turn loop.
//
// Two levels are distinguished: a cancel request aborts the in-flight turn
// only (the user pressed Ctrl-C once, wanting their shell back), while an
// exit request tears down the whole session (a second Ctrl-C within the
// grace window, or an explicit quit). Both levels share one wake channel so
// any suspension point — a model stream read, a tool execution, a
// permission prompt, a session archive append — can race a single select
// against cancellation without missing a signal raised between the check
// and the wait (no lost wakeup).
package interrupt

import (
	"sync"
	"sync/atomic"
)

// Level identifies which kind of interrupt was raised.
type Level int

const (
	// LevelNone means no interrupt is pending.
	LevelNone Level = iota
	// LevelCancel aborts the current turn and returns control to the prompt.
	LevelCancel
	// LevelExit tears down the session entirely.
	LevelExit
)

// Bus is a process-wide cancellation signal shared by the turn loop and
// everything it calls into. The zero value is not usable; call New.
type Bus struct {
	cancelRequested atomic.Bool
	exitRequested   atomic.Bool

	mu   sync.Mutex
	wake chan struct{}
}

// New returns a ready-to-use Bus.
func New() *Bus {
	return &Bus{wake: make(chan struct{})}
}

// Done returns a channel that is closed the next time a signal is raised.
// Callers must re-fetch Done() after it fires if they intend to keep
// waiting, since the bus replaces the channel on every raise.
func (b *Bus) Done() <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.wake
}

// RaiseCancel requests cancellation of the current turn. Safe to call from
// a signal handler goroutine.
func (b *Bus) RaiseCancel() {
	b.cancelRequested.Store(true)
	b.broadcast()
}

// RaiseExit requests termination of the whole session.
func (b *Bus) RaiseExit() {
	b.exitRequested.Store(true)
	b.broadcast()
}

func (b *Bus) broadcast() {
	b.mu.Lock()
	defer b.mu.Unlock()
	close(b.wake)
	b.wake = make(chan struct{})
}

// IsCancelRequested reports whether a turn cancellation is pending.
func (b *Bus) IsCancelRequested() bool {
	return b.cancelRequested.Load()
}

// IsExitRequested reports whether a session exit is pending.
func (b *Bus) IsExitRequested() bool {
	return b.exitRequested.Load()
}

// Level reports the highest-priority pending interrupt, if any.
func (b *Bus) Level() Level {
	if b.exitRequested.Load() {
		return LevelExit
	}
	if b.cancelRequested.Load() {
		return LevelCancel
	}
	return LevelNone
}

// ClearCancel clears a pending turn cancellation once the loop has folded it
// into a clean turn end. Exit requests are never cleared — the process is
// going down.
func (b *Bus) ClearCancel() {
	b.cancelRequested.Store(false)
}
