package server

import (
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Registry is the authoritative set of live sessions and username bindings.
//
// Usernames are unique case-insensitively: "Alice" and "alice" cannot both be
// logged in, and listings sort on the same folded form. Lookups by name are
// exact matches on the stored username.
//
// The registry is owned by the hub goroutine and is not safe for concurrent use.
type Registry struct {
	sessions map[uuid.UUID]*Session
	names    map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[uuid.UUID]*Session),
		names:    make(map[string]*Session),
	}
}

func collationKey(name string) string {
	return strings.ToLower(name)
}

// Add registers a freshly accepted session.
func (r *Registry) Add(s *Session) {
	r.sessions[s.ID] = s
}

// Remove deregisters a session and releases its username. Removing an unknown
// session is a no-op and reports false.
func (r *Registry) Remove(id uuid.UUID) (*Session, bool) {
	s, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	delete(r.sessions, id)

	if s.username != "" {
		key := collationKey(s.username)
		if bound, exists := r.names[key]; exists && bound.ID == id {
			delete(r.names, key)
		}
	}
	return s, true
}

// FindByID returns the session registered under id, or nil.
func (r *Registry) FindByID(id uuid.UUID) *Session {
	return r.sessions[id]
}

// FindByUsername returns the active session whose username is exactly name.
func (r *Registry) FindByUsername(name string) *Session {
	s, ok := r.names[collationKey(name)]
	if !ok || s.username != name {
		return nil
	}
	return s
}

// Taken reports whether name collides with a bound username.
func (r *Registry) Taken(name string) bool {
	_, ok := r.names[collationKey(name)]
	return ok
}

// Bind assigns name to a registered session. The binding is permanent for the
// session's lifetime.
func (r *Registry) Bind(s *Session, name string) error {
	if s.username != "" {
		return ErrAlreadyRegistered
	}
	if _, ok := r.sessions[s.ID]; !ok {
		return ErrUnknownSession
	}
	if r.Taken(name) {
		return ErrUsernameTaken
	}

	s.username = name
	r.names[collationKey(name)] = s
	return nil
}

// Usernames lists the distinct bound names sorted case-insensitively.
func (r *Registry) Usernames() []string {
	names := lo.Uniq(lo.Map(r.Active(), func(s *Session, _ int) string {
		return s.username
	}))
	slices.SortFunc(names, compareUsernames)
	return names
}

func compareUsernames(a, b string) int {
	if c := strings.Compare(collationKey(a), collationKey(b)); c != 0 {
		return c
	}
	return strings.Compare(a, b)
}

// Sessions returns a snapshot of every live session.
func (r *Registry) Sessions() []*Session {
	return lo.Values(r.sessions)
}

// Active returns a snapshot of the sessions that completed HELLO.
func (r *Registry) Active() []*Session {
	return lo.Values(r.names)
}

// Len is the number of live sessions, registered or not.
func (r *Registry) Len() int {
	return len(r.sessions)
}

// ActiveLen is the number of sessions with a bound username.
func (r *Registry) ActiveLen() int {
	return len(r.names)
}
