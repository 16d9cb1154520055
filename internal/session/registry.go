package session

import (
	"errors"
	"sync"
)

// ErrDuplicateSession is returned when registering an id that is already
// live. Connection ids are minted server-side, so hitting this means the
// transport layer reused an id without removing the old session first.
var ErrDuplicateSession = errors.New("session: duplicate session id")

// Sink is the outbound side of a connection. Deliver must not block; a
// false return means the frame was dropped (closed or congested peer).
type Sink interface {
	Deliver(data []byte) bool
}

// Session is the identity record for one live connection. Immutable after
// Register; the registry owns it and hands out the shared pointer.
type Session struct {
	ID   string
	Name string
	Out  Sink
}

// Registry maps connection ids to sessions. It is a pure lookup table: no
// broadcast side effects, no room knowledge.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
	}
}

func (r *Registry) Register(id, name string, out Sink) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; ok {
		return ErrDuplicateSession
	}
	r.sessions[id] = &Session{ID: id, Name: name, Out: out}
	return nil
}

func (r *Registry) Lookup(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Remove deletes the session; removing an unknown id is a no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
