// Package realtime implements spec.md §4.5: the per-connection WebSocket
// state machine (upgrading -> open -> terminal), grounded on the teacher's
// client.go (readPump/writePump, ping/pong heartbeat) and
// internal/chat/handler.go (ServeWs's auth-then-upgrade shape), generalized
// into the full hello/ready/ack table instead of one global broadcast.
package realtime

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/openrooms/orc/internal/hub"
	"github.com/openrooms/orc/internal/ids"
	"github.com/openrooms/orc/internal/metrics"
	"github.com/openrooms/orc/internal/stream"
)

const (
	writeWait     = 10 * time.Second
	maxFrameBytes = 64 * 1024
	maxMissedPing = 1
)

// TokenResolver is the subset of identity.Store a realtime upgrade needs.
type TokenResolver interface {
	Resolve(token string) (userID string, ok bool)
	ConsumeTicket(ticket string) (userID string, ok bool)
}

// Session is a single WebSocket connection's state machine.
type Session struct {
	id     string
	userID string
	conn   *websocket.Conn
	send   chan []byte
	deps   Deps
	log    *zap.Logger

	missed    atomic.Int32
	closeOnce sync.Once
	closed    chan struct{}
}

var _ hub.Session = (*Session)(nil)

func (s *Session) ID() string     { return s.id }
func (s *Session) UserID() string { return s.userID }

// TryEnqueue is the non-blocking send hub.Session requires: a full buffer
// means a slow consumer, and per spec.md §5 the Hub must not block on it, so
// the session is terminated instead.
func (s *Session) TryEnqueue(frame []byte) bool {
	select {
	case s.send <- frame:
		return true
	default:
		s.terminate()
		return false
	}
}

func newSession(conn *websocket.Conn, userID string, deps Deps, log *zap.Logger, bufSize int) *Session {
	return &Session{
		id:     ids.New(),
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, bufSize),
		deps:   deps,
		log:    log,
		closed: make(chan struct{}),
	}
}

// Upgrade performs spec.md §4.5's "upgrading" state: it authenticates via
// ticket or bearer token, validates Origin, and — only once both succeed —
// upgrades the connection and starts the open-state pumps.
func Upgrade(w http.ResponseWriter, r *http.Request, resolver TokenResolver, deps Deps, originAllowlist []string, bufSize int, log *zap.Logger) {
	if !originAllowed(originAllowlist, r.Header.Get("Origin")) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	cred, ok := extractCredential(r)
	if !ok {
		http.Error(w, "missing ticket or bearer credential", http.StatusUnauthorized)
		return
	}

	var userID string
	switch cred.kind {
	case "ticket":
		userID, ok = resolver.ConsumeTicket(cred.value)
	case "bearer":
		userID, ok = resolver.Resolve(cred.value)
	}
	if !ok {
		http.Error(w, "invalid or expired credential", http.StatusUnauthorized)
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(*http.Request) bool { return true }, // already checked above
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Info("ws upgrade failed", zap.Error(err))
		return
	}

	s := newSession(conn, userID, deps, log, bufSize)
	conn.SetReadLimit(maxFrameBytes)
	metrics.ActiveSessions.Inc()

	go s.writePump()
	s.sendReady()
	go s.readPump()
}

func (s *Session) sendReady() {
	ready := ReadyFrame{
		Type:         "ready",
		SessionID:    s.id,
		HeartbeatMS:  s.deps.HeartbeatMS,
		ServerTime:   time.Now().UTC().Format(time.RFC3339),
		Capabilities: s.deps.Capabilities,
	}
	s.TryEnqueue(marshal(ready))
}

// readPump consumes inbound frames and drives attach/ack/pong handling. It
// owns the connection's read side exclusively, per gorilla/websocket's
// one-reader contract.
func (s *Session) readPump() {
	defer s.terminate()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		s.handleFrame(data)
	}
}

func (s *Session) handleFrame(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.sendError("bad_request", "malformed frame")
		return
	}

	switch env.Type {
	case "hello":
		s.handleHello(data)
	case "ack":
		s.handleAck(data)
	case "typing":
		s.handleTyping(data)
	case "pong":
		s.missed.Store(0)
	default:
		s.sendError("bad_request", "unknown frame type")
	}
}

func (s *Session) handleHello(data []byte) {
	var hello HelloFrame
	if err := json.Unmarshal(data, &hello); err != nil {
		s.sendError("bad_request", "malformed hello")
		return
	}
	subs := hub.Subscriptions{
		Rooms: s.deps.resolveRoomSubscriptions(hello.Subscriptions.Rooms),
		DMs:   hello.Subscriptions.DMs,
	}
	s.deps.Hub.Attach(s, subs)
	s.sendReady()
}

func (s *Session) handleAck(data []byte) {
	var ack AckFrame
	if err := json.Unmarshal(data, &ack); err != nil {
		s.sendError("bad_request", "malformed ack")
		return
	}
	for key, seq := range ack.Cursors {
		streamKey, userID, ok := parseCursorKey(key, s.userID)
		if !ok {
			continue
		}
		resolvedKey := streamKey
		if streamKey.IsRoom() {
			if r, err := s.deps.Entities.Resolve(streamKey.RoomID()); err == nil {
				resolvedKey = stream.RoomKey(r.RoomID)
			}
		}
		s.deps.Streams.SetCursor(resolvedKey, userID, seq)
	}
}

// handleTyping relays a start/stop typing indicator to the target stream's
// subscribers. It is a pure fan-out: no Entity Store or Stream Engine state
// changes, so there is nothing for the Orchestrator to authorize or mutate.
// No check is made that the sender is a member of, or subscribed to, the
// target room.
func (s *Session) handleTyping(data []byte) {
	var typing TypingFrame
	if err := json.Unmarshal(data, &typing); err != nil {
		s.sendError("bad_request", "malformed typing")
		return
	}
	evt := TypingEvent{Type: "event.typing", UserID: s.userID, State: typing.State}
	switch {
	case typing.RoomID != "":
		r, err := s.deps.Entities.Resolve(typing.RoomID)
		if err != nil {
			return
		}
		evt.RoomID = r.RoomID
		s.deps.Hub.PublishRoom(r.RoomID, marshal(evt))
	case typing.DMPeerID != "":
		s.deps.Hub.PublishDM(s.userID, typing.DMPeerID, marshal(evt))
	default:
		s.sendError("bad_request", "typing requires room_id or dm_peer_id")
	}
}

// parseCursorKey decodes a "room:<key>" | "dm:<user_id>" ack key per
// spec.md §6.2, returning the stream Key and the acking user id.
func parseCursorKey(key, ackingUserID string) (stream.Key, string, bool) {
	const roomPrefix, dmPrefix = "room:", "dm:"
	switch {
	case len(key) > len(roomPrefix) && key[:len(roomPrefix)] == roomPrefix:
		return stream.RoomKey(key[len(roomPrefix):]), ackingUserID, true
	case len(key) > len(dmPrefix) && key[:len(dmPrefix)] == dmPrefix:
		peer := key[len(dmPrefix):]
		return stream.DMKey(ackingUserID, peer), ackingUserID, true
	default:
		return stream.Key{}, "", false
	}
}

func (s *Session) sendError(code, message string) {
	s.TryEnqueue(marshal(ErrorFrame{Type: "error", Error: ErrorDetail{Code: code, Message: message}}))
}

// writePump owns the connection's write side exclusively and is the only
// place heartbeat pings are sent, ticking every deps.HeartbeatMS.
func (s *Session) writePump() {
	period := time.Duration(s.deps.HeartbeatMS) * time.Millisecond
	ticker := time.NewTicker(period)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-s.send:
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			if s.missed.Add(1) > maxMissedPing {
				return
			}
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			ping := PingFrame{Type: "ping", TS: time.Now().UTC().Format(time.RFC3339)}
			if err := s.conn.WriteMessage(websocket.TextMessage, marshal(ping)); err != nil {
				return
			}

		case <-s.closed:
			s.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// terminate moves the session to the terminal state: detach from the hub
// and unblock writePump. Safe to call more than once.
func (s *Session) terminate() {
	s.closeOnce.Do(func() {
		s.deps.Hub.Detach(s)
		metrics.ActiveSessions.Dec()
		close(s.closed)
	})
}
