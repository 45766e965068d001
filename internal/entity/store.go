package entity

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/openrooms/orc/internal/apierr"
	"github.com/openrooms/orc/internal/ids"
)

// Store is the in-memory Entity Store. Readers receive copies safe to
// serialize without further locking; all mutation goes through the named
// operations below, which hold the single RWMutex for their duration.
type Store struct {
	mu sync.RWMutex

	usersByID map[string]*User

	roomsByID       map[string]*Room
	roomsByNameLow  map[string]string // lower(name) -> room_id
	members         map[string]map[string]Role // room_id -> user_id -> role
	bans           map[string]map[string]bool      // room_id -> user_id -> banned
	mutes          map[string]map[string]time.Time // room_id -> user_id -> muted_until

	uploadsByCID map[string]*UploadMeta
	uploadBytes  map[string][]byte
}

func New() *Store {
	return &Store{
		usersByID:      make(map[string]*User),
		roomsByID:      make(map[string]*Room),
		roomsByNameLow: make(map[string]string),
		members:        make(map[string]map[string]Role),
		bans:           make(map[string]map[string]bool),
		mutes:          make(map[string]map[string]time.Time),
		uploadsByCID:   make(map[string]*UploadMeta),
		uploadBytes:    make(map[string][]byte),
	}
}

// --- Users ---

// EnsureUser returns the user for userID, creating a default-named user on
// first sight — the "created on first guest login" lifecycle of spec.md §3.
func (s *Store) EnsureUser(userID, displayName string) *User {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u, ok := s.usersByID[userID]; ok {
		return copyUser(u)
	}
	if displayName == "" {
		displayName = "guest-" + userID[:8]
	}
	u := &User{UserID: userID, DisplayName: displayName}
	s.usersByID[userID] = u
	return copyUser(u)
}

func (s *Store) GetUser(userID string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.usersByID[userID]
	if !ok {
		return nil, apierr.NotFound("user not found")
	}
	return copyUser(u), nil
}

// UpdateUser mutates the fields of userID's profile that the owning caller
// is allowed to change; userID itself is immutable per spec.md §3.
func (s *Store) UpdateUser(userID string, patch func(*User)) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.usersByID[userID]
	if !ok {
		return nil, apierr.NotFound("user not found")
	}
	patch(u)
	return copyUser(u), nil
}

func (s *Store) SearchUsers(query string, limit int) []*User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ql := strings.ToLower(query)
	out := make([]*User, 0, limit)
	for _, u := range s.usersByID {
		if ql == "" || strings.Contains(strings.ToLower(u.DisplayName), ql) {
			out = append(out, copyUser(u))
			if len(out) >= limit {
				break
			}
		}
	}
	return out
}

func copyUser(u *User) *User {
	c := *u
	return &c
}

// --- Rooms ---

// CreateRoom fails with apierr.Conflict if name's lowercase form already
// maps to a room; the owner becomes the sole `owner` member.
func (s *Store) CreateRoom(ownerID, name, topic string, vis Visibility) (*Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nameLow := strings.ToLower(name)
	if _, exists := s.roomsByNameLow[nameLow]; exists {
		return nil, apierr.Conflict("room name already exists")
	}

	r := &Room{
		RoomID:      ids.New(),
		Name:        name,
		Topic:       topic,
		Visibility:  vis,
		OwnerID:     ownerID,
		CreatedAt:   time.Now().UTC(),
		MemberCount: 1,
	}
	s.roomsByID[r.RoomID] = r
	s.roomsByNameLow[nameLow] = r.RoomID
	s.members[r.RoomID] = map[string]Role{ownerID: RoleOwner}
	return copyRoom(r), nil
}

func (s *Store) GetRoomByID(roomID string) (*Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.roomsByID[roomID]
	if !ok {
		return nil, apierr.NotFound("room not found")
	}
	return copyRoom(r), nil
}

func (s *Store) GetRoomByName(name string) (*Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	roomID, ok := s.roomsByNameLow[strings.ToLower(name)]
	if !ok {
		return nil, apierr.NotFound("room not found")
	}
	return copyRoom(s.roomsByID[roomID]), nil
}

// Resolve accepts either a room_id or a room name (spec.md §9's Open
// Question on room addressing): ids always match [a-z2-7]+; anything else
// is looked up by name.
func (s *Store) Resolve(idOrName string) (*Room, error) {
	if ids.Valid(idOrName) {
		if r, err := s.GetRoomByID(idOrName); err == nil {
			return r, nil
		}
	}
	return s.GetRoomByName(idOrName)
}

// RenameRoom rechecks uniqueness and moves the name index atomically.
func (s *Store) RenameRoom(roomID, newName string) (*Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.roomsByID[roomID]
	if !ok {
		return nil, apierr.NotFound("room not found")
	}
	newLow := strings.ToLower(newName)
	oldLow := strings.ToLower(r.Name)
	if newLow != oldLow {
		if _, exists := s.roomsByNameLow[newLow]; exists {
			return nil, apierr.Conflict("room name already exists")
		}
		delete(s.roomsByNameLow, oldLow)
		s.roomsByNameLow[newLow] = roomID
	}
	r.Name = newName
	return copyRoom(r), nil
}

func (s *Store) UpdateRoomTopic(roomID, topic string) (*Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.roomsByID[roomID]
	if !ok {
		return nil, apierr.NotFound("room not found")
	}
	r.Topic = topic
	return copyRoom(r), nil
}

func (s *Store) ListPublicRooms(query string, limit int) []*Room {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ql := strings.ToLower(query)
	out := make([]*Room, 0, limit)
	for _, r := range s.roomsByID {
		if r.Visibility != VisibilityPublic {
			continue
		}
		if ql != "" && !strings.Contains(strings.ToLower(r.Name), ql) {
			continue
		}
		out = append(out, copyRoom(r))
		if len(out) >= limit {
			break
		}
	}
	return out
}

func (s *Store) ListMyRooms(userID string) []*Room {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Room, 0)
	for roomID, members := range s.members {
		if _, ok := members[userID]; ok {
			out = append(out, copyRoom(s.roomsByID[roomID]))
		}
	}
	return out
}

func (s *Store) AddPin(roomID, messageID string) (*Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.roomsByID[roomID]
	if !ok {
		return nil, apierr.NotFound("room not found")
	}
	for _, id := range r.PinnedMessageIDs {
		if id == messageID {
			return copyRoom(r), nil // idempotent
		}
	}
	r.PinnedMessageIDs = append(r.PinnedMessageIDs, messageID)
	return copyRoom(r), nil
}

func (s *Store) RemovePin(roomID, messageID string) (*Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.roomsByID[roomID]
	if !ok {
		return nil, apierr.NotFound("room not found")
	}
	out := r.PinnedMessageIDs[:0]
	for _, id := range r.PinnedMessageIDs {
		if id != messageID {
			out = append(out, id)
		}
	}
	r.PinnedMessageIDs = out
	return copyRoom(r), nil
}

func copyRoom(r *Room) *Room {
	c := *r
	c.PinnedMessageIDs = append([]string(nil), r.PinnedMessageIDs...)
	return &c
}

// --- Membership ---

// AddMember is idempotent: re-adding an existing member preserves their
// current role rather than downgrading it to the requested one.
func (s *Store) AddMember(roomID, userID string, role Role) (*Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.roomsByID[roomID]
	if !ok {
		return nil, apierr.NotFound("room not found")
	}
	mm := s.members[roomID]
	if _, exists := mm[userID]; exists {
		return copyRoom(r), nil
	}
	mm[userID] = role
	r.MemberCount = len(mm)
	return copyRoom(r), nil
}

// OwnerLeavePolicy controls what RemoveMember does when the owner leaves.
type OwnerLeavePolicy string

const (
	OwnerLeaveForbid       OwnerLeavePolicy = "forbid"
	OwnerLeaveAutoPromote  OwnerLeavePolicy = "auto_promote"
)

// RemoveMember is idempotent and decrements member_count iff the user was
// present. Per DESIGN.md's Open Question decision, removing the current
// owner under OwnerLeaveForbid is rejected unless transferTo names another
// member, who is promoted to owner first.
func (s *Store) RemoveMember(roomID, userID string, policy OwnerLeavePolicy, transferTo string) (*Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.roomsByID[roomID]
	if !ok {
		return nil, apierr.NotFound("room not found")
	}
	mm := s.members[roomID]
	role, exists := mm[userID]
	if !exists {
		return copyRoom(r), nil
	}

	if role == RoleOwner {
		switch policy {
		case OwnerLeaveAutoPromote:
			next := s.longestStandingAdmin(roomID, userID)
			if next != "" {
				mm[next] = RoleOwner
				r.OwnerID = next
			}
		default: // OwnerLeaveForbid
			if transferTo == "" {
				return nil, apierr.Conflict("owner must transfer ownership before leaving")
			}
			if _, isMember := mm[transferTo]; !isMember || transferTo == userID {
				return nil, apierr.BadRequest("transfer_to must be an existing member")
			}
			mm[transferTo] = RoleOwner
			r.OwnerID = transferTo
		}
	}

	delete(mm, userID)
	r.MemberCount = len(mm)
	return copyRoom(r), nil
}

// longestStandingAdmin returns an admin of roomID other than excluding, or
// "" if there is none. Members carry no join time, so the admin returned is
// whichever one map iteration reaches first, not necessarily the
// longest-standing one.
func (s *Store) longestStandingAdmin(roomID, excluding string) string {
	for uid, role := range s.members[roomID] {
		if uid != excluding && role == RoleAdmin {
			return uid
		}
	}
	return ""
}

// SetRole changes a member's role; only an owner may assign RoleOwner.
func (s *Store) SetRole(roomID, callerID, targetID string, role Role) (*Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.roomsByID[roomID]
	if !ok {
		return nil, apierr.NotFound("room not found")
	}
	mm := s.members[roomID]
	callerRole, ok := mm[callerID]
	if !ok {
		return nil, apierr.Forbidden("caller is not a member")
	}
	if role == RoleOwner && callerRole != RoleOwner {
		return nil, apierr.Forbidden("only the owner may assign ownership")
	}
	if _, exists := mm[targetID]; !exists {
		return nil, apierr.NotFound("target is not a member")
	}
	if role == RoleOwner {
		mm[callerID] = RoleAdmin
		r.OwnerID = targetID
	}
	mm[targetID] = role
	return copyRoom(r), nil
}

func (s *Store) GetRole(roomID, userID string) (Role, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	role, ok := s.members[roomID][userID]
	return role, ok
}

func (s *Store) IsMember(roomID, userID string) bool {
	_, ok := s.GetRole(roomID, userID)
	return ok
}

func (s *Store) ListMembers(roomID string) map[string]Role {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]Role, len(s.members[roomID]))
	for uid, role := range s.members[roomID] {
		out[uid] = role
	}
	return out
}

// --- Bans & mutes ---

// BanMember removes roomID's membership for userID (if present) and
// records the ban so a later JoinRoom is rejected.
func (s *Store) BanMember(roomID, userID string) (*Room, error) {
	s.mu.Lock()
	r, ok := s.roomsByID[roomID]
	if !ok {
		s.mu.Unlock()
		return nil, apierr.NotFound("room not found")
	}
	if mm, exists := s.bans[roomID]; exists {
		mm[userID] = true
	} else {
		s.bans[roomID] = map[string]bool{userID: true}
	}
	if mm := s.members[roomID]; mm != nil {
		delete(mm, userID)
		r.MemberCount = len(mm)
	}
	out := copyRoom(r)
	s.mu.Unlock()
	return out, nil
}

func (s *Store) UnbanMember(roomID, userID string) (*Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.roomsByID[roomID]
	if !ok {
		return nil, apierr.NotFound("room not found")
	}
	delete(s.bans[roomID], userID)
	return copyRoom(r), nil
}

func (s *Store) IsBanned(roomID, userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bans[roomID][userID]
}

// MuteMember prevents userID from posting in roomID until the given time.
func (s *Store) MuteMember(roomID, userID string, until time.Time) (*Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.roomsByID[roomID]
	if !ok {
		return nil, apierr.NotFound("room not found")
	}
	if mm, exists := s.mutes[roomID]; exists {
		mm[userID] = until
	} else {
		s.mutes[roomID] = map[string]time.Time{userID: until}
	}
	return copyRoom(r), nil
}

func (s *Store) UnmuteMember(roomID, userID string) (*Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.roomsByID[roomID]
	if !ok {
		return nil, apierr.NotFound("room not found")
	}
	delete(s.mutes[roomID], userID)
	return copyRoom(r), nil
}

func (s *Store) IsMuted(roomID, userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	until, ok := s.mutes[roomID][userID]
	return ok && time.Now().Before(until)
}

// --- Uploads ---

// PutBlob computes the sha256/cid of bytes and dedupes by cid: a second
// upload of identical bytes returns the existing metadata unchanged.
func (s *Store) PutBlob(blob []byte, mimeHint string) *UploadMeta {
	sum := sha256.Sum256(blob)
	cid := ids.CID(blob)

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.uploadsByCID[cid]; ok {
		c := *existing
		return &c
	}
	meta := &UploadMeta{
		CID:      cid,
		MimeHint: mimeHint,
		Bytes:    len(blob),
		SHA256:   hex.EncodeToString(sum[:]),
	}
	s.uploadsByCID[cid] = meta
	s.uploadBytes[cid] = append([]byte(nil), blob...)
	c := *meta
	return &c
}

func (s *Store) GetBlob(cid string) (string, []byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	meta, ok := s.uploadsByCID[cid]
	if !ok {
		return "", nil, apierr.NotFound("upload not found")
	}
	return meta.MimeHint, append([]byte(nil), s.uploadBytes[cid]...), nil
}
