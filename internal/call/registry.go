package call

import (
	"log/slog"
	"sync"
)

// Registry tracks all active call sessions in memory. It is the single
// source of truth for "is this call known, and in what state". Sessions
// do not survive a process restart.
//
// Access is serialized per call ID by the engine; the registry itself
// is safe for concurrent use across different call IDs.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session // keyed by call ID
	logger   *slog.Logger
}

// NewRegistry creates an empty session registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		logger:   logger.With("subsystem", "registry"),
	}
}

// Put creates or replaces the session for its call ID.
func (r *Registry) Put(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[s.CallID] = s
	r.logger.Info("session registered",
		"call_id", s.CallID,
		"from", s.From,
		"to", s.To,
		"state", s.CurrentState(),
	)
}

// Get returns the session for the call ID, if known.
func (r *Registry) Get(callID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[callID]
	return s, ok
}

// Remove deletes the session for the call ID. Removing an unknown call
// ID is a no-op.
func (r *Registry) Remove(callID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[callID]; !ok {
		return
	}
	delete(r.sessions, callID)
	r.logger.Info("session removed", "call_id", callID)
}

// ActiveCount returns the number of active sessions.
func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// ActiveSessions returns a snapshot of all active sessions, safe for
// iteration without holding the lock.
func (r *Registry) ActiveSessions() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}
