package stream

import "time"

// Attachment references an upload by content id.
type Attachment struct {
	CID      string `json:"cid"`
	MimeHint string `json:"mime,omitempty"`
}

// ReactionCount is one emoji's tally on a message, derived on read from the
// Engine's reaction index (spec.md §9: reactions are a first-class field
// owned by the Stream Engine, not a dynamic attribute on Message).
type ReactionCount struct {
	Emoji string `json:"emoji"`
	Count int    `json:"count"`
	Me    bool   `json:"me,omitempty"`
}

// Message is the canonical record spec.md §3 defines. Exactly one of
// RoomID / DMPeerID is set when a message is rendered for a given reader;
// internally the Engine stores messages by Key, not by these fields.
type Message struct {
	MessageID        string          `json:"message_id"`
	RoomID           string          `json:"room_id,omitempty"`
	DMPeerID         string          `json:"dm_peer_id,omitempty"`
	AuthorID         string          `json:"author_id"`
	Seq              uint64          `json:"seq"`
	TS               time.Time       `json:"ts"`
	ParentID         string          `json:"parent_id,omitempty"`
	ContentType      string          `json:"content_type"`
	Text             string          `json:"text,omitempty"`
	Attachments      []Attachment    `json:"attachments,omitempty"`
	Reactions        []ReactionCount `json:"reactions,omitempty"`
	Tombstone        bool            `json:"tombstone,omitempty"`
	EditedAt         *time.Time      `json:"edited_at,omitempty"`
	ModerationReason string          `json:"moderation_reason,omitempty"`

	key Key // internal: which stream this message belongs to
}

func (m *Message) clone() *Message {
	c := *m
	c.Attachments = append([]Attachment(nil), m.Attachments...)
	c.Reactions = append([]ReactionCount(nil), m.Reactions...)
	if m.EditedAt != nil {
		t := *m.EditedAt
		c.EditedAt = &t
	}
	return &c
}

// render fills RoomID/DMPeerID for external callers, who always address a
// DM stream relative to one of its two participants (readerID). A
// tombstoned message is rendered without Text/Attachments, even when the
// engine retains them.
func (m *Message) render(readerID string) *Message {
	out := m.clone()
	if m.Tombstone {
		out.Text = ""
		out.Attachments = nil
	}
	if m.key.IsRoom() {
		out.RoomID = m.key.RoomID()
		out.DMPeerID = ""
	} else {
		a, b := m.key.DMPair()
		out.RoomID = ""
		if readerID == a {
			out.DMPeerID = b
		} else {
			out.DMPeerID = a
		}
	}
	return out
}
