package identity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openrooms/orc/internal/apierr"
)

func TestIssueGuestThenResolve(t *testing.T) {
	s := New(60 * time.Second)
	token := s.IssueGuest("user-1")

	userID, ok := s.Resolve(token)
	require.True(t, ok)
	assert.Equal(t, "user-1", userID)
}

func TestResolveUnknownTokenFails(t *testing.T) {
	s := New(60 * time.Second)
	_, ok := s.Resolve("nope")
	assert.False(t, ok)
}

func TestConsumeTicketIsSingleUse(t *testing.T) {
	s := New(60 * time.Second)
	tk, ttlMS := s.MintTicket("user-1")
	assert.EqualValues(t, 60000, ttlMS)

	userID, ok := s.ConsumeTicket(tk)
	require.True(t, ok)
	assert.Equal(t, "user-1", userID)

	_, ok = s.ConsumeTicket(tk)
	assert.False(t, ok, "a ticket must not be consumable twice")
}

func TestConsumeTicketRejectsExpired(t *testing.T) {
	s := New(time.Millisecond)
	tk, _ := s.MintTicket("user-1")
	time.Sleep(5 * time.Millisecond)

	_, ok := s.ConsumeTicket(tk)
	assert.False(t, ok)
}

func TestRevokeRemovesToken(t *testing.T) {
	s := New(60 * time.Second)
	token := s.IssueGuest("user-1")
	s.Revoke(token)

	_, ok := s.Resolve(token)
	assert.False(t, ok)
}

func TestListSessionsTracksIssuedTokens(t *testing.T) {
	s := New(60 * time.Second)
	t1 := s.IssueGuest("user-1")
	t2 := s.IssueGuest("user-1")

	sessions := s.ListSessions("user-1")
	assert.ElementsMatch(t, []string{t1, t2}, sessions)

	s.Revoke(t1)
	assert.ElementsMatch(t, []string{t2}, s.ListSessions("user-1"))
}

func TestRequireUserMapsMissingTokenToUnauthorized(t *testing.T) {
	s := New(60 * time.Second)
	_, err := s.RequireUser("missing")
	require.Error(t, err)
	assert.Equal(t, apierr.KindUnauthorized, apierr.KindOf(err))
}
