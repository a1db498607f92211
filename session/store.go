package session

import (
	"sort"
	"sync"
)

// Store manages named sessions for long-running hosts such as the
// language server.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	defaults Options
}

// NewStore creates a store whose sessions start with defaults.
func NewStore(defaults Options) *Store {
	return &Store{
		sessions: make(map[string]*Session),
		defaults: defaults,
	}
}

// Create starts a new session with an optional name.
func (st *Store) Create(name string) (*Session, error) {
	opts := st.defaults
	opts.Name = name
	s, err := New(opts)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	st.sessions[s.ID] = s
	st.mu.Unlock()

	return s, nil
}

// Get retrieves a session by ID.
func (st *Store) Get(id string) (*Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	s, ok := st.sessions[id]
	return s, ok
}

// Named returns the session with the given name, creating it on first
// use.
func (st *Store) Named(name string) (*Session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	for _, s := range st.sessions {
		if s.Name == name {
			return s, nil
		}
	}
	opts := st.defaults
	opts.Name = name
	s, err := New(opts)
	if err != nil {
		return nil, err
	}
	st.sessions[s.ID] = s
	return s, nil
}

// List returns the live sessions ordered by name, then ID.
func (st *Store) List() []*Session {
	st.mu.RLock()
	out := make([]*Session, 0, len(st.sessions))
	for _, s := range st.sessions {
		out = append(out, s)
	}
	st.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Destroy closes and removes a session.
func (st *Store) Destroy(id string) {
	st.mu.Lock()
	s, ok := st.sessions[id]
	delete(st.sessions, id)
	st.mu.Unlock()

	if ok {
		s.Close()
	}
}

// CloseAll closes every session.
func (st *Store) CloseAll() {
	st.mu.Lock()
	sessions := st.sessions
	st.sessions = make(map[string]*Session)
	st.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}
