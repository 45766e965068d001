// Package identity implements spec.md §4.1: opaque access tokens, short-
// lived single-use RTM tickets, and token → user resolution.
package identity

import (
	"sync"
	"time"

	"github.com/openrooms/orc/internal/apierr"
	"github.com/openrooms/orc/internal/ids"
)

// User is the minimal identity record the token store needs: the rest of
// the user's profile lives in the Entity Store.
type User struct {
	UserID string
}

type session struct {
	token     string
	userID    string
	createdAt time.Time
}

type ticket struct {
	userID    string
	expiresAt time.Time
	used      bool
}

// Store is the in-memory Identity & Token Store. The zero value is not
// usable; construct with New.
type Store struct {
	mu       sync.Mutex
	ttl      time.Duration
	byToken  map[string]*session
	byUser   map[string][]*session
	tickets  map[string]*ticket
	nextSeed func() string // overridable in tests
}

// New constructs a Store whose tickets are valid for ttl (spec.md §4.1: ≤60s).
func New(ttl time.Duration) *Store {
	return &Store{
		ttl:      ttl,
		byToken:  make(map[string]*session),
		byUser:   make(map[string][]*session),
		tickets:  make(map[string]*ticket),
		nextSeed: ids.Token,
	}
}

// IssueGuest associates a fresh opaque access token with userID (the caller
// already resolved/created the user in the Entity Store; this store only
// tracks the credential).
func (s *Store) IssueGuest(userID string) (token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token = s.nextSeed()
	sess := &session{token: token, userID: userID, createdAt: time.Now()}
	s.byToken[token] = sess
	s.byUser[userID] = append(s.byUser[userID], sess)
	return token
}

// Resolve looks up the user id for an access token. Lookup time does not
// depend on whether the token matches, satisfying the "constant-time
// lookup" requirement of §4.1 via a straight map access rather than any
// linear scan.
func (s *Store) Resolve(token string) (userID string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.byToken[token]
	if !ok {
		return "", false
	}
	return sess.userID, true
}

// MintTicket records a single-use RTM ticket for userID, expiring after the
// store's configured TTL.
func (s *Store) MintTicket(userID string) (tk string, ttlMS int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tk = s.nextSeed()
	s.tickets[tk] = &ticket{userID: userID, expiresAt: time.Now().Add(s.ttl)}
	return tk, s.ttl.Milliseconds()
}

// ConsumeTicket returns the user for tk iff it exists, is unused, and has
// not expired, and atomically marks it used so a second call — even a
// concurrent one — never succeeds twice.
func (s *Store) ConsumeTicket(tk string) (userID string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, found := s.tickets[tk]
	if !found || t.used || time.Now().After(t.expiresAt) {
		return "", false
	}
	t.used = true
	return t.userID, true
}

// Revoke removes a token from the store.
func (s *Store) Revoke(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.byToken[token]
	if !ok {
		return
	}
	delete(s.byToken, token)
	list := s.byUser[sess.userID]
	for i, other := range list {
		if other == sess {
			s.byUser[sess.userID] = append(list[:i], list[i+1:]...)
			break
		}
	}
}

// ListSessions returns the tokens currently issued to userID.
func (s *Store) ListSessions(userID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.byUser[userID]
	out := make([]string, 0, len(list))
	for _, sess := range list {
		out = append(out, sess.token)
	}
	return out
}

// RequireUser resolves token or returns an apierr.Unauthorized.
func (s *Store) RequireUser(token string) (string, error) {
	userID, ok := s.Resolve(token)
	if !ok {
		return "", apierr.Unauthorized("invalid or expired token")
	}
	return userID, nil
}
