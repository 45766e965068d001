package realtime

import "encoding/json"

// envelope is used only to sniff a client frame's "type" before decoding
// the rest of it into a concrete struct.
type envelope struct {
	Type string `json:"type"`
}

// ReadyFrame is sent immediately on open, and again after hello per the
// spec-canonical flow of spec.md §4.5.
type ReadyFrame struct {
	Type         string   `json:"type"`
	SessionID    string   `json:"session_id"`
	HeartbeatMS  int64    `json:"heartbeat_ms"`
	ServerTime   string   `json:"server_time"`
	Capabilities []string `json:"capabilities"`
}

type PingFrame struct {
	Type string `json:"type"`
	TS   string `json:"ts"`
}

type PongFrame struct {
	Type string `json:"type"`
	TS   string `json:"ts"`
}

type ErrorFrame struct {
	Type  string      `json:"type"`
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HelloFrame is the client's subscription request.
type HelloFrame struct {
	Type          string              `json:"type"`
	Subscriptions HelloSubscriptions  `json:"subscriptions"`
	Cursors       map[string]uint64   `json:"cursors,omitempty"`
	Want          []string            `json:"want,omitempty"`
}

type HelloSubscriptions struct {
	Rooms []string `json:"rooms"`
	DMs   bool     `json:"dms"`
}

// AckFrame advances read cursors; Cursors keys are "room:<key>" or
// "dm:<user_id>" per spec.md §6.2.
type AckFrame struct {
	Type    string            `json:"type"`
	Cursors map[string]uint64 `json:"cursors"`
}

// TypingFrame is a client's start/stop typing indicator for a room or DM.
// Exactly one of RoomID/DMPeerID is set. It carries no Stream Engine or
// Entity Store mutation, so the Session relays it straight to the Hub
// instead of routing it through the Orchestrator.
type TypingFrame struct {
	Type     string `json:"type"`
	RoomID   string `json:"room_id,omitempty"`
	DMPeerID string `json:"dm_peer_id,omitempty"`
	State    string `json:"state"`
}

// TypingEvent is the fanned-out event.typing frame per spec.md:150. For a
// DM, RoomID is empty and UserID alone identifies the conversation (it IS
// the peer, from the recipient's point of view).
type TypingEvent struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id,omitempty"`
	UserID string `json:"user_id"`
	State  string `json:"state"`
}

func marshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		// every frame type here is a fixed, marshalable struct; a failure
		// here means a programming error, not a runtime condition to
		// recover from.
		panic("realtime: marshal: " + err.Error())
	}
	return b
}
