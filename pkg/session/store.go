package session

import (
	"sync"
	"time"

	"github.com/harun/zipbot/internal/observability"
)

// entry pairs a session with the lock that serializes its mutations
type entry struct {
	mu      sync.Mutex
	session Session
	removed bool
}

// Store maps owners to their live sessions
type Store struct {
	mu       sync.RWMutex
	sessions map[Owner]*entry
	now      func() time.Time
}

// NewStore creates an empty session store
func NewStore() *Store {
	observability.EnsureRegistered()

	return &Store{
		sessions: make(map[Owner]*entry),
		now:      time.Now,
	}
}

// lookup returns the locked entry for owner, or nil if there is none.
// The caller must unlock the returned entry.
func (s *Store) lookup(owner Owner) *entry {
	for {
		s.mu.RLock()
		e, ok := s.sessions[owner]
		s.mu.RUnlock()
		if !ok {
			return nil
		}

		e.mu.Lock()
		if !e.removed {
			return e
		}
		// Replaced or removed while we waited; retry against the map
		e.mu.Unlock()
	}
}

// Create starts a fresh, empty session for owner. Any unfinished session is
// discarded and its staged files are returned so the caller can release them.
func (s *Store) Create(owner Owner) []StagedFile {
	fresh := &entry{
		session: Session{
			Owner:     owner,
			Files:     []StagedFile{},
			State:     StateIdle,
			CreatedAt: s.now(),
		},
	}

	s.mu.Lock()
	prev, existed := s.sessions[owner]
	s.sessions[owner] = fresh
	count := len(s.sessions)
	s.mu.Unlock()

	observability.SetActiveSessions(count)

	if !existed {
		return nil
	}

	prev.mu.Lock()
	defer prev.mu.Unlock()
	prev.removed = true
	return prev.session.Files
}

// Get returns a copy of owner's session
func (s *Store) Get(owner Owner) (Session, error) {
	e := s.lookup(owner)
	if e == nil {
		return Session{}, ErrSessionNotFound
	}
	defer e.mu.Unlock()

	return e.session.clone(), nil
}

// AppendFile adds file to the end of owner's session and returns the new file count
func (s *Store) AppendFile(owner Owner, file StagedFile) (int, error) {
	e := s.lookup(owner)
	if e == nil {
		return 0, ErrSessionNotFound
	}
	defer e.mu.Unlock()

	if file.StagedAt.IsZero() {
		file.StagedAt = s.now()
	}
	e.session.Files = append(e.session.Files, file)
	return len(e.session.Files), nil
}

// SetNameOverride sets the archive name for owner's session
func (s *Store) SetNameOverride(owner Owner, name string) error {
	e := s.lookup(owner)
	if e == nil {
		return ErrSessionNotFound
	}
	defer e.mu.Unlock()

	e.session.NameOverride = name
	e.session.HasName = true
	return nil
}

// SetState moves owner's session to state
func (s *Store) SetState(owner Owner, state State) error {
	e := s.lookup(owner)
	if e == nil {
		return ErrSessionNotFound
	}
	defer e.mu.Unlock()

	e.session.State = state
	return nil
}

// CompleteNaming atomically applies name and returns the session to
// StateIdle, but only while it is awaiting a name. It reports whether the
// name was applied.
func (s *Store) CompleteNaming(owner Owner, name string) (bool, error) {
	e := s.lookup(owner)
	if e == nil {
		return false, ErrSessionNotFound
	}
	defer e.mu.Unlock()

	if e.session.State != StateAwaitingName {
		return false, nil
	}

	e.session.NameOverride = name
	e.session.HasName = true
	e.session.State = StateIdle
	return true, nil
}

// Remove deletes owner's session. Removing an absent session is a no-op.
func (s *Store) Remove(owner Owner) {
	s.mu.Lock()
	e, ok := s.sessions[owner]
	if ok {
		delete(s.sessions, owner)
	}
	count := len(s.sessions)
	s.mu.Unlock()

	if !ok {
		return
	}

	e.mu.Lock()
	e.removed = true
	e.mu.Unlock()

	observability.SetActiveSessions(count)
}

// Len returns the number of live sessions
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// StagedPaths returns the blob paths referenced by every live session
func (s *Store) StagedPaths() map[string]struct{} {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.sessions))
	for _, e := range s.sessions {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	paths := make(map[string]struct{})
	for _, e := range entries {
		e.mu.Lock()
		if !e.removed {
			for _, f := range e.session.Files {
				paths[f.Path] = struct{}{}
			}
		}
		e.mu.Unlock()
	}
	return paths
}
