package entity

import "time"

// Interface is the Entity Store contract. internal/entity.Store satisfies
// it with in-memory indexes; internal/entity/postgres.Store satisfies it
// against a relational backend, per spec.md §6.4's "MAY substitute a
// durable backend by implementing the same ... contracts."
type Interface interface {
	EnsureUser(userID, displayName string) *User
	GetUser(userID string) (*User, error)
	UpdateUser(userID string, patch func(*User)) (*User, error)
	SearchUsers(query string, limit int) []*User

	CreateRoom(ownerID, name, topic string, vis Visibility) (*Room, error)
	GetRoomByID(roomID string) (*Room, error)
	GetRoomByName(name string) (*Room, error)
	Resolve(idOrName string) (*Room, error)
	RenameRoom(roomID, newName string) (*Room, error)
	UpdateRoomTopic(roomID, topic string) (*Room, error)
	ListPublicRooms(query string, limit int) []*Room
	ListMyRooms(userID string) []*Room
	AddPin(roomID, messageID string) (*Room, error)
	RemovePin(roomID, messageID string) (*Room, error)

	AddMember(roomID, userID string, role Role) (*Room, error)
	RemoveMember(roomID, userID string, policy OwnerLeavePolicy, transferTo string) (*Room, error)
	SetRole(roomID, callerID, targetID string, role Role) (*Room, error)
	GetRole(roomID, userID string) (Role, bool)
	IsMember(roomID, userID string) bool
	ListMembers(roomID string) map[string]Role

	BanMember(roomID, userID string) (*Room, error)
	UnbanMember(roomID, userID string) (*Room, error)
	IsBanned(roomID, userID string) bool
	MuteMember(roomID, userID string, until time.Time) (*Room, error)
	UnmuteMember(roomID, userID string) (*Room, error)
	IsMuted(roomID, userID string) bool

	PutBlob(blob []byte, mimeHint string) *UploadMeta
	GetBlob(cid string) (string, []byte, error)
}

var _ Interface = (*Store)(nil)
