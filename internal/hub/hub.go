// Package hub implements spec.md §4.4: the Subscription Hub that indexes
// live WebSocket sessions by room and by user, and fans out events to the
// right sockets. Grounded on the teacher's internal/chat/hub.go Run()
// select loop, generalized from one global broadcast channel into indexed
// room/user sets with snapshot-then-send fan-out so a slow consumer never
// blocks a publisher.
package hub

import (
	"sync"
	"time"

	"github.com/openrooms/orc/internal/metrics"
)

// Session is the subset of a realtime connection the Hub needs. It is
// satisfied by *realtime.Session; the interface lives here so hub has no
// dependency on gorilla/websocket.
type Session interface {
	ID() string
	UserID() string
	// TryEnqueue attempts a non-blocking send of frame to the session's
	// outbound channel. false means the channel is full or closed; the Hub
	// treats that as "schedule this session for teardown" per spec.md §5's
	// backpressure policy — publishers MUST NOT block on one slow consumer.
	TryEnqueue(frame []byte) bool
}

type roomSet = map[Session]struct{}

// Hub is safe for concurrent attach/detach/publish.
type Hub struct {
	mu             sync.RWMutex
	byRoom         map[string]roomSet
	byDMUser       map[string]roomSet
	all            map[Session]struct{}
	sessionsByUser map[string]int // user_id -> count of attached sessions, for presence
	onFailure      func(Session)                    // called outside the lock when TryEnqueue fails
	onPresence     func(userID string, online bool) // called outside the lock on a user's first/last session
}

func New(onFailure func(Session)) *Hub {
	return &Hub{
		byRoom:         make(map[string]roomSet),
		byDMUser:       make(map[string]roomSet),
		all:            make(map[Session]struct{}),
		sessionsByUser: make(map[string]int),
		onFailure:      onFailure,
	}
}

// OnPresenceChange registers the callback the Hub invokes when a user's
// attached-session count transitions 0->1 ("online") or 1->0 ("offline"),
// so spec.md:151's event.presence can be published without the Hub itself
// knowing how to marshal or fan out a presence event.
func (h *Hub) OnPresenceChange(fn func(userID string, online bool)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onPresence = fn
}

// Subscriptions is what a session's `hello` frame requests: the set of
// room ids/names to receive room events for, and whether to receive DMs
// addressed to the session's authenticated user.
type Subscriptions struct {
	Rooms map[string]struct{}
	DMs   bool
}

// Attach atomically updates session's indexes: re-entering a room already
// subscribed to is a no-op, and rooms no longer present in subs.Rooms are
// removed.
func (h *Hub) Attach(s Session, subs Subscriptions) {
	h.mu.Lock()

	_, alreadyAttached := h.all[s]
	h.all[s] = struct{}{}
	becameOnline := false
	if !alreadyAttached {
		h.sessionsByUser[s.UserID()]++
		becameOnline = h.sessionsByUser[s.UserID()] == 1
	}

	for roomID, set := range h.byRoom {
		if _, want := subs.Rooms[roomID]; !want {
			delete(set, s)
			if len(set) == 0 {
				delete(h.byRoom, roomID)
			}
		}
	}
	for roomID := range subs.Rooms {
		set, ok := h.byRoom[roomID]
		if !ok {
			set = make(roomSet)
			h.byRoom[roomID] = set
		}
		set[s] = struct{}{}
	}

	if set, ok := h.byDMUser[s.UserID()]; ok {
		delete(set, s)
	}
	if subs.DMs {
		set, ok := h.byDMUser[s.UserID()]
		if !ok {
			set = make(roomSet)
			h.byDMUser[s.UserID()] = set
		}
		set[s] = struct{}{}
	}

	onPresence := h.onPresence
	h.mu.Unlock()

	if becameOnline && onPresence != nil {
		onPresence(s.UserID(), true)
	}
}

// Detach removes a session from every index.
func (h *Hub) Detach(s Session) {
	h.mu.Lock()
	becameOffline, userID := h.detachLocked(s)
	onPresence := h.onPresence
	h.mu.Unlock()

	if becameOffline && onPresence != nil {
		onPresence(userID, false)
	}
}

func (h *Hub) detachLocked(s Session) (becameOffline bool, userID string) {
	userID = s.UserID()
	_, existed := h.all[s]
	delete(h.all, s)
	for roomID, set := range h.byRoom {
		delete(set, s)
		if len(set) == 0 {
			delete(h.byRoom, roomID)
		}
	}
	if set, ok := h.byDMUser[userID]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(h.byDMUser, userID)
		}
	}
	if existed {
		h.sessionsByUser[userID]--
		if h.sessionsByUser[userID] <= 0 {
			delete(h.sessionsByUser, userID)
			becameOffline = true
		}
	}
	return becameOffline, userID
}

// PublishRoom sends frame to every session subscribed to roomID. A
// snapshot of the session set is taken under the lock; sends happen
// outside it so one slow consumer cannot stall attach/detach or other
// publishers.
func (h *Hub) PublishRoom(roomID string, frame []byte) {
	h.fanout(h.snapshotRoom(roomID), frame)
}

// PublishDM sends frame to every session subscribed to DMs for either
// participant of the pair.
func (h *Hub) PublishDM(userA, userB string, frame []byte) {
	h.mu.RLock()
	set := make(map[Session]struct{})
	for s := range h.byDMUser[userA] {
		set[s] = struct{}{}
	}
	for s := range h.byDMUser[userB] {
		set[s] = struct{}{}
	}
	h.mu.RUnlock()

	sessions := make([]Session, 0, len(set))
	for s := range set {
		sessions = append(sessions, s)
	}
	h.fanout(sessions, frame)
}

// snapshotRoom reads h.byRoom[roomID] and copies it to a slice in one
// locked section, so the map lookup itself is never done outside the lock.
func (h *Hub) snapshotRoom(roomID string) []Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	set := h.byRoom[roomID]
	out := make([]Session, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	return out
}

func (h *Hub) fanout(sessions []Session, frame []byte) {
	defer metrics.ObserveFanout(time.Now())
	for _, s := range sessions {
		if !s.TryEnqueue(frame) {
			h.Detach(s)
			if h.onFailure != nil {
				h.onFailure(s)
			}
		}
	}
}

// BroadcastAll sends frame to every currently attached session, regardless
// of room/DM subscription. Used for global events like presence, which are
// not scoped to a single stream.
func (h *Hub) BroadcastAll(frame []byte) {
	h.fanout(h.Sessions(), frame)
}

// Sessions returns a snapshot of every attached session, for diagnostics.
func (h *Hub) Sessions() []Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Session, 0, len(h.all))
	for s := range h.all {
		out = append(out, s)
	}
	return out
}
