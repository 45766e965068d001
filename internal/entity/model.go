// Package entity implements spec.md §4.2: the authoritative mappings for
// users, rooms, memberships/roles, and uploads.
package entity

import "time"

// User is the mutable profile record; UserID is immutable once assigned.
type User struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	PhotoCID    string `json:"photo_cid,omitempty"`
	Bio         string `json:"bio,omitempty"`
	StatusText  string `json:"status_text,omitempty"`
	StatusEmoji string `json:"status_emoji,omitempty"`
}

// Visibility is a Room's visibility, either public or private.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// Role is a member's role within a room, in descending precedence.
type Role string

const (
	RoleOwner     Role = "owner"
	RoleAdmin     Role = "admin"
	RoleModerator Role = "moderator"
	RoleMember    Role = "member"
	RoleGuest     Role = "guest"
)

// rolePrecedence maps a Role to its rank; lower is more privileged.
var rolePrecedence = map[Role]int{
	RoleOwner:     0,
	RoleAdmin:     1,
	RoleModerator: 2,
	RoleMember:    3,
	RoleGuest:     4,
}

// AtLeast reports whether r has at least the privilege of min (r's rank is
// numerically <= min's rank).
func (r Role) AtLeast(min Role) bool {
	rr, ok1 := rolePrecedence[r]
	mr, ok2 := rolePrecedence[min]
	if !ok1 || !ok2 {
		return false
	}
	return rr <= mr
}

// Room is the authoritative room record. Name is globally unique,
// case-insensitively, with casing preserved as stored.
type Room struct {
	RoomID          string     `json:"room_id"`
	Name            string     `json:"name"`
	Topic           string     `json:"topic,omitempty"`
	Visibility      Visibility `json:"visibility"`
	OwnerID         string     `json:"owner_id"`
	CreatedAt       time.Time  `json:"created_at"`
	MemberCount     int        `json:"member_count"`
	PinnedMessageIDs []string  `json:"pinned_message_ids,omitempty"`
}

// UploadMeta describes a stored content-addressed blob.
type UploadMeta struct {
	CID      string `json:"cid"`
	MimeHint string `json:"mime"`
	Bytes    int    `json:"bytes"`
	SHA256   string `json:"sha256"`
}
