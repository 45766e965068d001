// Package redisstore is an alternate Identity & Token Store backed by
// Redis, substitutable behind identity.Store's contract per spec.md §6.4.
// It is grounded on the teacher's go-redis/v9 dependency, repurposed from
// pub/sub fan-out to the TTL and atomic-command primitives that are a
// direct fit for §4.1's single-use, 60-second-TTL tickets. Its method set
// mirrors identity.Store's, except that it has no ListSessions, so both satisfy httpapi.IdentityStore and
// realtime.TokenResolver without a context.Context parameter, matching the
// rest of the Core's synchronous, in-process contracts.
package redisstore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/openrooms/orc/internal/apierr"
	"github.com/openrooms/orc/internal/ids"
)

const (
	tokenPrefix  = "orc:token:"
	ticketPrefix = "orc:ticket:"
)

// Store implements the same operations as identity.Store, against Redis.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

// New wraps an already-connected *redis.Client.
func New(rdb *redis.Client, ticketTTL time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ticketTTL}
}

// IssueGuest stores token -> userID with no expiry (tokens are revoked
// explicitly, not time-limited). A Redis error here is discarded and the
// token is returned anyway; a later Resolve of it then fails.
func (s *Store) IssueGuest(userID string) string {
	token := ids.Token()
	_ = s.rdb.Set(context.Background(), tokenPrefix+token, userID, 0).Err()
	return token
}

// Resolve looks up the user id for an access token.
func (s *Store) Resolve(token string) (string, bool) {
	userID, err := s.rdb.Get(context.Background(), tokenPrefix+token).Result()
	if err != nil {
		return "", false
	}
	return userID, true
}

// MintTicket sets a key with the store's TTL; Redis expires it server-side,
// so an unconsumed ticket disappears on its own once that TTL lapses.
func (s *Store) MintTicket(userID string) (string, int64) {
	tk := ids.Token()
	_ = s.rdb.Set(context.Background(), ticketPrefix+tk, userID, s.ttl).Err()
	return tk, s.ttl.Milliseconds()
}

// ConsumeTicket atomically deletes the ticket key and returns its value in
// one round trip (GETDEL), so a second concurrent caller racing the first
// sees a miss rather than a used-but-present ticket.
func (s *Store) ConsumeTicket(tk string) (string, bool) {
	userID, err := s.rdb.GetDel(context.Background(), ticketPrefix+tk).Result()
	if errors.Is(err, redis.Nil) || err != nil {
		return "", false
	}
	return userID, true
}

// Revoke removes a token from the store.
func (s *Store) Revoke(token string) {
	_ = s.rdb.Del(context.Background(), tokenPrefix+token).Err()
}

// RequireUser resolves token or returns an apierr.Unauthorized, matching
// identity.Store.RequireUser's contract.
func (s *Store) RequireUser(token string) (string, error) {
	userID, ok := s.Resolve(token)
	if !ok {
		return "", apierr.Unauthorized("invalid or expired token")
	}
	return userID, nil
}
