package orchestrator

import (
	"encoding/json"
	"time"

	"github.com/openrooms/orc/internal/stream"
)

// Wire event frames published to the Hub. Kept independent of the
// internal/realtime frame set since the Orchestrator never imports
// gorilla/websocket.

// Event type literals are the wire-format names a client listens for;
// these must match the event.* family exactly, not an internal name.
const (
	eventMessageCreate  = "event.message.create"
	eventMessageEdit    = "event.message.edit"
	eventMessageDelete  = "event.message.delete"
	eventReactionAdd    = "event.reaction.add"
	eventReactionRemove = "event.reaction.remove"
	eventPinAdd         = "event.pin.add"
	eventPinRemove      = "event.pin.remove"
	eventRoomUpdate     = "event.room.update"
	eventMemberUpdate   = "event.member.update"
	eventMemberBan      = "event.member.ban"
	eventMemberMute     = "event.member.mute"
)

type messageCreatedEvent struct {
	Type    string          `json:"type"`
	Message *stream.Message `json:"message"`
}

type messageEditedEvent struct {
	Type    string          `json:"type"`
	Message *stream.Message `json:"message"`
}

type messageDeletedEvent struct {
	Type      string    `json:"type"`
	MessageID string    `json:"message_id"`
	RoomID    string    `json:"room_id,omitempty"`
	DMPeerID  string    `json:"dm_peer_id,omitempty"`
	TS        time.Time `json:"ts"`
}

// reactionEvent carries the same shape for both add and remove per
// spec.md:148 ("...same shape..."); the direction lives in Type.
type reactionEvent struct {
	Type      string                 `json:"type"`
	MessageID string                 `json:"message_id"`
	Emoji     string                 `json:"emoji"`
	Counts    []stream.ReactionCount `json:"counts"`
}

type pinEvent struct {
	Type      string `json:"type"`
	RoomID    string `json:"room_id"`
	MessageID string `json:"message_id"`
}

type roomUpdatedEvent struct {
	Type string      `json:"type"`
	Room interface{} `json:"room"`
}

type memberChangedEvent struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id"`
	UserID string `json:"user_id"`
	Role   string `json:"role,omitempty"`
	Left   bool   `json:"left,omitempty"`
}

func marshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic("orchestrator: marshal: " + err.Error())
	}
	return b
}
