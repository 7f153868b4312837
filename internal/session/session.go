// Package session holds the client's belief about who is signed in. The
// store is a three-state machine (Loading, SignedOut, SignedIn) driven
// exclusively by auth gateway change notifications: it never derives a
// transition from a sign-in call's return value, and it never retries.
package session

import (
	"sync"

	"github.com/tradieiq/engine/internal/domain"
)

// State is the authentication state of the session.
type State int

const (
	// Loading is the initial state, held until the first gateway
	// notification arrives. It is exited exactly once.
	Loading State = iota
	// SignedOut means the gateway reported no identity.
	SignedOut
	// SignedIn means the gateway reported an identity.
	SignedIn
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case SignedOut:
		return "signed-out"
	case SignedIn:
		return "signed-in"
	default:
		return "unknown"
	}
}

// Change describes one applied notification.
type Change struct {
	From State
	To   State
	// First is true for the notification that exited Loading.
	First bool
	// Switched is true when one identity was replaced by a different one
	// without an intervening sign-out.
	Switched bool
}

// Store owns the session value. All mutation goes through Apply; reads are
// safe from any goroutine.
type Store struct {
	mu       sync.RWMutex
	state    State
	identity domain.Identity
}

// NewStore returns a store in the Loading state.
func NewStore() *Store {
	return &Store{state: Loading}
}

// Apply records a gateway notification: an identity means SignedIn, nil means
// SignedOut. The first notification exits Loading regardless of its payload.
func (s *Store) Apply(id *domain.Identity) Change {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := Change{From: s.state, First: s.state == Loading}

	if id == nil {
		s.state = SignedOut
		s.identity = domain.Identity{}
	} else {
		ch.Switched = ch.From == SignedIn && s.identity.ID != id.ID
		s.state = SignedIn
		s.identity = *id
	}

	ch.To = s.state
	return ch
}

// State returns the current state.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Identity returns the signed-in identity. ok is false unless the state is
// SignedIn.
func (s *Store) Identity() (domain.Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != SignedIn {
		return domain.Identity{}, false
	}
	return s.identity, true
}

// SignedIn reports whether an identity is currently held.
func (s *Store) SignedIn() bool {
	return s.State() == SignedIn
}
