package service

import (
	"sync"

	"github.com/MisterZedd/SourceStalker/internal/domain"
)

// StateTracker holds the last observed presence of the tracked player.
// The first observation seeds the state and never produces a transition.
type StateTracker struct {
	mu       sync.RWMutex
	seeded   bool
	state    domain.PresenceState
	snapshot *domain.LiveGameSnapshot
}

func NewStateTracker() *StateTracker {
	return &StateTracker{}
}

// Observe compares the current poll result with the stored presence. For
// TransitionEnteredGame the returned snapshot is the one just cached; for
// TransitionLeftGame it is the snapshot of the game that ended, whose start
// time anchors reconciliation.
func (t *StateTracker) Observe(inGame bool, snapshot *domain.LiveGameSnapshot) (domain.Transition, *domain.LiveGameSnapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()

	next := domain.PresenceAbsent
	if inGame {
		next = domain.PresenceInGame
	}

	if !t.seeded {
		t.seeded = true
		t.state = next
		if inGame {
			t.snapshot = snapshot
		}
		return domain.TransitionNone, nil
	}

	switch {
	case t.state == domain.PresenceAbsent && next == domain.PresenceInGame:
		t.state = next
		t.snapshot = snapshot
		return domain.TransitionEnteredGame, snapshot

	case t.state == domain.PresenceInGame && next == domain.PresenceAbsent:
		left := t.snapshot
		t.state = next
		t.snapshot = nil
		return domain.TransitionLeftGame, left
	}
	return domain.TransitionNone, nil
}

// Presence returns the current state and, while in game, the cached
// snapshot.
func (t *StateTracker) Presence() (domain.PresenceState, *domain.LiveGameSnapshot) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state, t.snapshot
}

func (t *StateTracker) Seeded() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.seeded
}
