package scheduler

import (
	"errors"
	"fmt"
	"sync"
)

// sessionState is the lifecycle of a single SessionMarker, from the moment
// its SESSION_START is observed to the moment its final segment's audio is
// acknowledged downstream. Transitions are guarded by a mutex; the
// dispatcher loop is the only caller, and the httpapi status snapshot is
// taken on that loop and does not read this state.
type sessionState int

const (
	// sessionPending is enqueued but not yet the head of its participant's
	// session timeline; another, older session is still active.
	sessionPending sessionState = iota
	// sessionActive is at the head of the timeline and may be draining its
	// segment queue.
	sessionActive
	// sessionCompleted is terminal: its final segment was acknowledged and
	// it has been popped from the timeline.
	sessionCompleted
)

func (s sessionState) String() string {
	switch s {
	case sessionPending:
		return "PENDING"
	case sessionActive:
		return "ACTIVE"
	case sessionCompleted:
		return "COMPLETED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

var (
	errSessionAlreadyActive    = errors.New("session is already active")
	errSessionTerminal         = errors.New("session is already completed")
	errSessionNotYetActivated  = errors.New("session has not been activated")
)

// sessionLifecycle guards a SessionMarker's state transitions. It is
// intentionally small: the STSD only ever moves a session from pending to
// active (on election) to completed (on its final AudioComplete), never
// back.
type sessionLifecycle struct {
	mu    sync.RWMutex
	state sessionState
}

func newSessionLifecycle() *sessionLifecycle {
	return &sessionLifecycle{state: sessionPending}
}

func (l *sessionLifecycle) State() sessionState {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// activate transitions PENDING -> ACTIVE. Idempotent no-op if already
// active (re-election of the same still-active session after an empty-head
// pop of an older sibling is a normal occurrence, not an error).
func (l *sessionLifecycle) activate() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch l.state {
	case sessionPending:
		l.state = sessionActive
		return nil
	case sessionActive:
		return nil
	default:
		return errSessionTerminal
	}
}

// complete transitions ACTIVE -> COMPLETED.
func (l *sessionLifecycle) complete() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch l.state {
	case sessionActive:
		l.state = sessionCompleted
		return nil
	case sessionPending:
		return errSessionNotYetActivated
	default:
		return errSessionTerminal
	}
}
