package session

import (
	"sort"
	"sync"
)

// Store is the process-lifetime registry of live calls keyed by call ID.
// Callers always receive and hand over copies, so a session returned by Get
// can be mutated without holding any lock.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*CallSession
}

func NewStore() *Store {
	return &Store{sessions: make(map[string]*CallSession)}
}

func (m *Store) Get(callID string) (*CallSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[callID]
	if !ok {
		return nil, false
	}
	return clone(s), true
}

// Put inserts or overwrites the session for s.CallID.
func (m *Store) Put(s *CallSession) {
	if s == nil || s.CallID == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.CallID] = clone(s)
}

// Replace overwrites an existing session. It reports false, and stores
// nothing, when the call was removed in the meantime (finalized by another
// path), so a finalized call is never resurrected.
func (m *Store) Replace(s *CallSession) bool {
	if s == nil || s.CallID == "" {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.CallID]; !ok {
		return false
	}
	m.sessions[s.CallID] = clone(s)
	return true
}

func (m *Store) Delete(callID string) bool {
	_, ok := m.Take(callID)
	return ok
}

// Take atomically removes and returns the session. Exactly one concurrent
// caller observes ok == true for a given live session.
func (m *Store) Take(callID string) (*CallSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[callID]
	if !ok {
		return nil, false
	}
	delete(m.sessions, callID)
	return s, true
}

// TakeIf removes and returns the session only if keep reports true for it.
// keep runs under the store lock and must not call back into the store.
func (m *Store) TakeIf(callID string, keep func(*CallSession) bool) (*CallSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[callID]
	if !ok || !keep(s) {
		return nil, false
	}
	delete(m.sessions, callID)
	return s, true
}

// Snapshot returns copies of all live sessions, oldest first.
func (m *Store) Snapshot() []*CallSession {
	m.mu.RLock()
	out := make([]*CallSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, clone(s))
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].CallID < out[j].CallID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

func (m *Store) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
