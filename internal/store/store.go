// Package store is the client-side cache of server entities: the current user,
// the feed, connections and incoming requests.
package store

import (
	"sync"

	"techtribe-client/internal/models"
)

// Collection names a cached collection
type Collection string

const (
	CollectionUser        Collection = "user"
	CollectionFeed        Collection = "feed"
	CollectionConnections Collection = "connections"
	CollectionRequests    Collection = "requests"
)

// Snapshot is a copy of the store contents at one point in time
type Snapshot struct {
	User        *models.User
	Feed        []models.FeedCandidate
	Connections []models.Connection
	Requests    []models.ConnectionRequest
}

// Listener is called after a mutation with the collection that changed.
// Listeners must not mutate the store.
type Listener func(changed Collection, snap Snapshot)

// Store holds the entity collections. Mutations are serialized and listeners run
// synchronously, in mutation order, after each change.
type Store struct {
	mu          sync.RWMutex
	user        *models.User
	feed        []models.FeedCandidate
	connections map[string]models.Connection
	requests    map[string]models.ConnectionRequest
	// session counts ClearSession calls; responses fetched before a clear must not be applied
	session uint64

	// notifyMu keeps listener delivery in mutation order
	notifyMu  sync.Mutex
	listeners map[int]Listener
	nextID    int
}

// New creates an empty store
func New() *Store {
	return &Store{
		connections: make(map[string]models.Connection),
		requests:    make(map[string]models.ConnectionRequest),
		listeners:   make(map[int]Listener),
	}
}

// Subscribe registers l and returns a function that removes it
func (s *Store) Subscribe(l Listener) (unsubscribe func()) {
	s.notifyMu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	s.notifyMu.Unlock()

	return func() {
		s.notifyMu.Lock()
		delete(s.listeners, id)
		s.notifyMu.Unlock()
	}
}

// mutate applies fn under the write lock and notifies listeners when fn reports a change
func (s *Store) mutate(c Collection, fn func() bool) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	changed := fn()
	s.mu.Unlock()

	if !changed || len(s.listeners) == 0 {
		return
	}
	snap := s.Snapshot()
	for _, l := range s.listeners {
		l(c, snap)
	}
}

// SetUser replaces the current user
func (s *Store) SetUser(u models.User) {
	s.mutate(CollectionUser, func() bool {
		c := u.Clone()
		s.user = &c
		return true
	})
}

// ClearUser removes the current user
func (s *Store) ClearUser() {
	s.mutate(CollectionUser, func() bool {
		if s.user == nil {
			return false
		}
		s.user = nil
		return true
	})
}

// User returns the current user, or false when unauthenticated
func (s *Store) User() (models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return models.User{}, false
	}
	return s.user.Clone(), true
}

// SetFeed replaces the feed. Duplicate IDs keep their first position.
func (s *Store) SetFeed(candidates []models.FeedCandidate) {
	s.mutate(CollectionFeed, func() bool {
		s.replaceFeed(candidates)
		return true
	})
}

// SetSessionFeed replaces the feed only if ClearSession has not run since session was read
// with Session. It reports whether the feed was applied.
func (s *Store) SetSessionFeed(session uint64, candidates []models.FeedCandidate) bool {
	applied := false
	s.mutate(CollectionFeed, func() bool {
		if s.session != session {
			return false
		}
		s.replaceFeed(candidates)
		applied = true
		return true
	})
	return applied
}

// Session returns the current session number
func (s *Store) Session() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

func (s *Store) replaceFeed(candidates []models.FeedCandidate) {
	seen := make(map[string]struct{}, len(candidates))
	feed := make([]models.FeedCandidate, 0, len(candidates))
	for _, c := range candidates {
		if _, dup := seen[c.ID]; dup {
			continue
		}
		seen[c.ID] = struct{}{}
		feed = append(feed, c.Clone())
	}
	s.feed = feed
}

// RemoveFeedCandidate removes a candidate by ID; absent IDs are ignored
func (s *Store) RemoveFeedCandidate(id string) {
	s.mutate(CollectionFeed, func() bool {
		for i, c := range s.feed {
			if c.ID == id {
				feed := make([]models.FeedCandidate, 0, len(s.feed)-1)
				feed = append(feed, s.feed[:i]...)
				s.feed = append(feed, s.feed[i+1:]...)
				return true
			}
		}
		return false
	})
}

// Feed returns the feed in presentation order
func (s *Store) Feed() []models.FeedCandidate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneUsers(s.feed)
}

// SetConnections replaces the connections
func (s *Store) SetConnections(list []models.Connection) {
	s.mutate(CollectionConnections, func() bool {
		s.connections = make(map[string]models.Connection, len(list))
		for _, c := range list {
			s.connections[c.ID] = c.Clone()
		}
		return true
	})
}

// Connections returns the connections in no particular order
func (s *Store) Connections() []models.Connection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Connection, 0, len(s.connections))
	for _, c := range s.connections {
		out = append(out, c.Clone())
	}
	return out
}

// SetRequests replaces the incoming requests
func (s *Store) SetRequests(list []models.ConnectionRequest) {
	s.mutate(CollectionRequests, func() bool {
		s.requests = make(map[string]models.ConnectionRequest, len(list))
		for _, r := range list {
			r.FromUser = r.FromUser.Clone()
			s.requests[r.ID] = r
		}
		return true
	})
}

// RemoveRequest removes a request by ID; absent IDs are ignored
func (s *Store) RemoveRequest(id string) {
	s.mutate(CollectionRequests, func() bool {
		if _, ok := s.requests[id]; !ok {
			return false
		}
		delete(s.requests, id)
		return true
	})
}

// Requests returns the incoming requests in no particular order
func (s *Store) Requests() []models.ConnectionRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.ConnectionRequest, 0, len(s.requests))
	for _, r := range s.requests {
		r.FromUser = r.FromUser.Clone()
		out = append(out, r)
	}
	return out
}

// Request looks up a request by ID
func (s *Store) Request(id string) (models.ConnectionRequest, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.requests[id]
	if ok {
		r.FromUser = r.FromUser.Clone()
	}
	return r, ok
}

// ClearSession empties the session-scoped collections and starts a new session
func (s *Store) ClearSession() {
	s.mu.Lock()
	s.session++
	s.mu.Unlock()

	s.ClearUser()
	s.SetFeed(nil)
	s.SetConnections(nil)
	s.SetRequests(nil)
}

// Snapshot copies every collection
func (s *Store) Snapshot() Snapshot {
	snap := Snapshot{
		Feed:        s.Feed(),
		Connections: s.Connections(),
		Requests:    s.Requests(),
	}
	if u, ok := s.User(); ok {
		snap.User = &u
	}
	return snap
}

func cloneUsers(in []models.User) []models.User {
	out := make([]models.User, len(in))
	for i, u := range in {
		out[i] = u.Clone()
	}
	return out
}
