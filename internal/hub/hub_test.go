package hub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	id     string
	userID string
	inbox  chan []byte
	full   bool
}

func newFakeSession(id, userID string) *fakeSession {
	return &fakeSession{id: id, userID: userID, inbox: make(chan []byte, 8)}
}

func (f *fakeSession) ID() string     { return f.id }
func (f *fakeSession) UserID() string { return f.userID }

func (f *fakeSession) TryEnqueue(frame []byte) bool {
	if f.full {
		return false
	}
	select {
	case f.inbox <- frame:
		return true
	default:
		return false
	}
}

func TestAttachDeliversRoomPublish(t *testing.T) {
	h := New(nil)
	s := newFakeSession("s1", "alice")
	h.Attach(s, Subscriptions{Rooms: map[string]struct{}{"room-1": {}}})

	h.PublishRoom("room-1", []byte("frame"))

	require.Len(t, s.inbox, 1)
	assert.Equal(t, []byte("frame"), <-s.inbox)
}

func TestPublishRoomSkipsUnsubscribedSessions(t *testing.T) {
	h := New(nil)
	s := newFakeSession("s1", "alice")
	h.Attach(s, Subscriptions{Rooms: map[string]struct{}{"room-1": {}}})

	h.PublishRoom("room-2", []byte("frame"))

	assert.Len(t, s.inbox, 0)
}

func TestAttachReplacesRoomSet(t *testing.T) {
	h := New(nil)
	s := newFakeSession("s1", "alice")
	h.Attach(s, Subscriptions{Rooms: map[string]struct{}{"room-1": {}}})
	h.Attach(s, Subscriptions{Rooms: map[string]struct{}{"room-2": {}}})

	h.PublishRoom("room-1", []byte("frame"))
	assert.Len(t, s.inbox, 0)

	h.PublishRoom("room-2", []byte("frame"))
	assert.Len(t, s.inbox, 1)
}

func TestPublishDMReachesEitherParticipant(t *testing.T) {
	h := New(nil)
	alice := newFakeSession("s1", "alice")
	bob := newFakeSession("s2", "bob")
	h.Attach(alice, Subscriptions{DMs: true})
	h.Attach(bob, Subscriptions{DMs: true})

	h.PublishDM("alice", "bob", []byte("frame"))

	assert.Len(t, alice.inbox, 1)
	assert.Len(t, bob.inbox, 1)
}

func TestDetachRemovesFromAllIndexes(t *testing.T) {
	h := New(nil)
	s := newFakeSession("s1", "alice")
	h.Attach(s, Subscriptions{Rooms: map[string]struct{}{"room-1": {}}, DMs: true})

	h.Detach(s)

	h.PublishRoom("room-1", []byte("frame"))
	h.PublishDM("alice", "bob", []byte("frame"))
	assert.Len(t, s.inbox, 0)
	assert.Empty(t, h.Sessions())
}

func TestPresenceFiresOnlyOnFirstAttachAndLastDetach(t *testing.T) {
	h := New(nil)
	var events []string
	h.OnPresenceChange(func(userID string, online bool) {
		state := "offline"
		if online {
			state = "online"
		}
		events = append(events, userID+":"+state)
	})

	s1 := newFakeSession("s1", "alice")
	s2 := newFakeSession("s2", "alice")

	h.Attach(s1, Subscriptions{Rooms: map[string]struct{}{"room-1": {}}})
	h.Attach(s2, Subscriptions{Rooms: map[string]struct{}{"room-1": {}}})
	assert.Equal(t, []string{"alice:online"}, events, "a second session for the same user must not re-announce online")

	h.Attach(s1, Subscriptions{Rooms: map[string]struct{}{"room-2": {}}})
	assert.Equal(t, []string{"alice:online"}, events, "re-hello on an already-attached session is not a new presence transition")

	h.Detach(s1)
	assert.Equal(t, []string{"alice:online"}, events, "one remaining session must keep the user online")

	h.Detach(s2)
	assert.Equal(t, []string{"alice:online", "alice:offline"}, events)
}

func TestBroadcastAllReachesEverySession(t *testing.T) {
	h := New(nil)
	alice := newFakeSession("s1", "alice")
	bob := newFakeSession("s2", "bob")
	h.Attach(alice, Subscriptions{Rooms: map[string]struct{}{"room-1": {}}})
	h.Attach(bob, Subscriptions{DMs: true})

	h.BroadcastAll([]byte("frame"))

	assert.Len(t, alice.inbox, 1)
	assert.Len(t, bob.inbox, 1)
}

func TestFanoutDetachesOnFullOutboundBuffer(t *testing.T) {
	var failed Session
	h := New(func(s Session) { failed = s })
	s := newFakeSession("s1", "alice")
	s.full = true
	h.Attach(s, Subscriptions{Rooms: map[string]struct{}{"room-1": {}}})

	h.PublishRoom("room-1", []byte("frame"))

	assert.Equal(t, Session(s), failed)
	assert.Empty(t, h.Sessions())
}
