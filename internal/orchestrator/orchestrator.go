// Package orchestrator implements spec.md §4.6: the Authorize -> Validate
// -> Mutate -> Publish template that every external operation goes through.
// Grounded on the teacher's internal/chat/hub.go Publish case, which saves
// to the repository and only then broadcasts — generalized here into one
// method per operation instead of one switch case on a single channel.
package orchestrator

import (
	"sync"
	"time"

	"github.com/openrooms/orc/internal/apierr"
	"github.com/openrooms/orc/internal/entity"
	"github.com/openrooms/orc/internal/hub"
	"github.com/openrooms/orc/internal/metrics"
	"github.com/openrooms/orc/internal/stream"
)

// Orchestrator wires the Entity Store, Stream Engine and Subscription Hub
// together. It holds no state of its own beyond the per-stream publish
// locks that keep same-stream publish order matching mutation order.
type Orchestrator struct {
	Entities entity.Interface
	Streams  *stream.Engine
	Hub      *hub.Hub

	OwnerLeavePolicy entity.OwnerLeavePolicy

	streamLocksMu sync.Mutex
	streamLocks   map[string]*sync.Mutex
}

func New(entities entity.Interface, streams *stream.Engine, h *hub.Hub, ownerLeavePolicy entity.OwnerLeavePolicy) *Orchestrator {
	return &Orchestrator{
		Entities:         entities,
		Streams:          streams,
		Hub:              h,
		OwnerLeavePolicy: ownerLeavePolicy,
		streamLocks:      make(map[string]*sync.Mutex),
	}
}

// lockFor returns the serialization lock for a stream key, so a mutate and
// its publish happen as one unit relative to every other mutate+publish on
// the same stream: without this, two concurrent callers could commit in
// one order (seq 5 then 6) but publish in the other.
func (o *Orchestrator) lockFor(key stream.Key) *sync.Mutex {
	k := key.String()

	o.streamLocksMu.Lock()
	defer o.streamLocksMu.Unlock()
	l, ok := o.streamLocks[k]
	if !ok {
		l = &sync.Mutex{}
		o.streamLocks[k] = l
	}
	return l
}

func (o *Orchestrator) publishToKey(key stream.Key, frame []byte) {
	if key.IsRoom() {
		o.Hub.PublishRoom(key.RoomID(), frame)
	} else {
		a, b := key.DMPair()
		o.Hub.PublishDM(a, b, frame)
	}
}

// requireMember is the common Authorize step for room-scoped operations.
func (o *Orchestrator) requireMember(roomID, userID string) (entity.Role, error) {
	role, ok := o.Entities.GetRole(roomID, userID)
	if !ok {
		return "", apierr.Forbidden("caller is not a member of this room")
	}
	return role, nil
}

// PostMessage authorizes room membership (DMs require no membership check,
// any two users may message each other), validates via the Stream Engine,
// mutates, and publishes MessageCreated to the stream's subscribers.
func (o *Orchestrator) PostMessage(key stream.Key, authorID, text, contentType, parentID string, attachments []stream.Attachment) (*stream.Message, error) {
	if key.IsRoom() {
		if _, err := o.requireMember(key.RoomID(), authorID); err != nil {
			return nil, err
		}
		if o.Entities.IsMuted(key.RoomID(), authorID) {
			return nil, apierr.Forbidden("caller is muted in this room")
		}
	}

	lock := o.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	evt, err := o.Streams.Post(key, authorID, text, contentType, parentID, attachments)
	if err != nil {
		return nil, err
	}
	o.publishToKey(key, marshal(messageCreatedEvent{Type: eventMessageCreate, Message: evt.Message}))
	metrics.MessagesPosted.WithLabelValues(streamKind(key)).Inc()
	return evt.Message, nil
}

func streamKind(key stream.Key) string {
	if key.IsRoom() {
		return "room"
	}
	return "dm"
}

// EditMessage is authorized entirely inside the Stream Engine (author-only);
// the Orchestrator's job is just to sequence mutate-then-publish.
func (o *Orchestrator) EditMessage(key stream.Key, messageID, callerID string, text *string, attachments []stream.Attachment) (*stream.Message, error) {
	lock := o.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	evt, err := o.Streams.Edit(key, messageID, callerID, text, attachments)
	if err != nil {
		return nil, err
	}
	o.publishToKey(key, marshal(messageEditedEvent{Type: eventMessageEdit, Message: evt.Message}))
	return evt.Message, nil
}

// DeleteMessage grants purge rights to callers with at least moderator role
// in a room stream; DM streams have no moderators, so canPurge is always
// false there and only the author may delete.
func (o *Orchestrator) DeleteMessage(key stream.Key, messageID, callerID, reason string) error {
	canPurge := false
	if key.IsRoom() {
		if role, ok := o.Entities.GetRole(key.RoomID(), callerID); ok {
			canPurge = role.AtLeast(entity.RoleModerator)
		}
	}

	lock := o.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	evt, err := o.Streams.Tombstone(key, messageID, callerID, reason, canPurge)
	if err != nil {
		return err
	}
	o.publishToKey(key, marshal(messageDeletedEvent{
		Type:      eventMessageDelete,
		MessageID: evt.MessageID,
		RoomID:    evt.RoomID,
		DMPeerID:  evt.DMPeerID,
		TS:        evt.TS,
	}))
	return nil
}

// React requires no special role beyond stream access (room membership for
// a room stream); the Stream Engine itself rejects an unknown messageID.
func (o *Orchestrator) React(key stream.Key, messageID, callerID, emoji string, add bool) ([]stream.ReactionCount, error) {
	if key.IsRoom() {
		if _, err := o.requireMember(key.RoomID(), callerID); err != nil {
			return nil, err
		}
	}
	lock := o.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	evt, err := o.Streams.React(key, messageID, callerID, emoji, add)
	if err != nil {
		return nil, err
	}
	eventType := eventReactionRemove
	direction := "remove"
	if add {
		eventType = eventReactionAdd
		direction = "add"
	}
	o.publishToKey(key, marshal(reactionEvent{
		Type:      eventType,
		MessageID: evt.MessageID,
		Emoji:     evt.Emoji,
		Counts:    evt.Counts,
	}))
	metrics.ReactionsChanged.WithLabelValues(direction).Inc()
	return evt.Counts, nil
}

// PinMessage/UnpinMessage require at least moderator in the target room,
// then publish a dedicated pin event so subscribers learn of the change
// without re-fetching the room.
func (o *Orchestrator) PinMessage(roomID, messageID, callerID string) (*entity.Room, error) {
	role, err := o.requireMember(roomID, callerID)
	if err != nil {
		return nil, err
	}
	if !role.AtLeast(entity.RoleModerator) {
		return nil, apierr.Forbidden("moderator role required to pin messages")
	}
	r, err := o.Entities.AddPin(roomID, messageID)
	if err != nil {
		return nil, err
	}
	o.Hub.PublishRoom(roomID, marshal(pinEvent{Type: eventPinAdd, RoomID: roomID, MessageID: messageID}))
	return r, nil
}

func (o *Orchestrator) UnpinMessage(roomID, messageID, callerID string) (*entity.Room, error) {
	role, err := o.requireMember(roomID, callerID)
	if err != nil {
		return nil, err
	}
	if !role.AtLeast(entity.RoleModerator) {
		return nil, apierr.Forbidden("moderator role required to unpin messages")
	}
	r, err := o.Entities.RemovePin(roomID, messageID)
	if err != nil {
		return nil, err
	}
	o.Hub.PublishRoom(roomID, marshal(pinEvent{Type: eventPinRemove, RoomID: roomID, MessageID: messageID}))
	return r, nil
}

// CreateRoom has no Authorize step beyond being an authenticated user; any
// user may create a room and becomes its owner.
func (o *Orchestrator) CreateRoom(ownerID, name, topic string, vis entity.Visibility) (*entity.Room, error) {
	return o.Entities.CreateRoom(ownerID, name, topic, vis)
}

// RenameRoom/UpdateTopic require at least admin, then publish event.room.update
// so members see the change live.
func (o *Orchestrator) RenameRoom(roomID, newName, callerID string) (*entity.Room, error) {
	role, err := o.requireMember(roomID, callerID)
	if err != nil {
		return nil, err
	}
	if !role.AtLeast(entity.RoleAdmin) {
		return nil, apierr.Forbidden("admin role required to rename a room")
	}
	r, err := o.Entities.RenameRoom(roomID, newName)
	if err != nil {
		return nil, err
	}
	o.Hub.PublishRoom(roomID, marshal(roomUpdatedEvent{Type: eventRoomUpdate, Room: r}))
	return r, nil
}

func (o *Orchestrator) UpdateTopic(roomID, topic, callerID string) (*entity.Room, error) {
	role, err := o.requireMember(roomID, callerID)
	if err != nil {
		return nil, err
	}
	if !role.AtLeast(entity.RoleAdmin) {
		return nil, apierr.Forbidden("admin role required to change the topic")
	}
	r, err := o.Entities.UpdateRoomTopic(roomID, topic)
	if err != nil {
		return nil, err
	}
	o.Hub.PublishRoom(roomID, marshal(roomUpdatedEvent{Type: eventRoomUpdate, Room: r}))
	return r, nil
}

// JoinRoom self-adds the caller as a member (public rooms only; private
// rooms require an invite, represented here as the caller already having
// been AddMember'd by an admin via AddMemberByAdmin).
func (o *Orchestrator) JoinRoom(roomID, userID string) (*entity.Room, error) {
	r, err := o.Entities.GetRoomByID(roomID)
	if err != nil {
		return nil, err
	}
	if o.Entities.IsBanned(roomID, userID) {
		return nil, apierr.Forbidden("caller is banned from this room")
	}
	if r.Visibility != entity.VisibilityPublic {
		return nil, apierr.Forbidden("room is private; an invite is required")
	}
	r, err = o.Entities.AddMember(roomID, userID, entity.RoleMember)
	if err != nil {
		return nil, err
	}
	o.Hub.PublishRoom(roomID, marshal(memberChangedEvent{Type: eventMemberUpdate, RoomID: roomID, UserID: userID, Role: string(entity.RoleMember)}))
	return r, nil
}

// AddMemberByAdmin lets an admin add someone to a private room directly.
func (o *Orchestrator) AddMemberByAdmin(roomID, targetID, callerID string) (*entity.Room, error) {
	role, err := o.requireMember(roomID, callerID)
	if err != nil {
		return nil, err
	}
	if !role.AtLeast(entity.RoleAdmin) {
		return nil, apierr.Forbidden("admin role required to add members")
	}
	if o.Entities.IsBanned(roomID, targetID) {
		return nil, apierr.Forbidden("user is banned from this room")
	}
	r, err := o.Entities.AddMember(roomID, targetID, entity.RoleMember)
	if err != nil {
		return nil, err
	}
	o.Hub.PublishRoom(roomID, marshal(memberChangedEvent{Type: eventMemberUpdate, RoomID: roomID, UserID: targetID, Role: string(entity.RoleMember)}))
	return r, nil
}

// LeaveRoom implements the owner-leave Open Question decision: see
// entity.Store.RemoveMember for the forbid-without-transfer policy.
func (o *Orchestrator) LeaveRoom(roomID, userID, transferTo string) (*entity.Room, error) {
	r, err := o.Entities.RemoveMember(roomID, userID, o.OwnerLeavePolicy, transferTo)
	if err != nil {
		return nil, err
	}
	o.Hub.PublishRoom(roomID, marshal(memberChangedEvent{Type: eventMemberUpdate, RoomID: roomID, UserID: userID, Left: true}))
	return r, nil
}

// KickMember requires at least admin, and an admin may never kick the
// owner (they must use LeaveRoom/ownership transfer instead).
func (o *Orchestrator) KickMember(roomID, targetID, callerID string) (*entity.Room, error) {
	role, err := o.requireMember(roomID, callerID)
	if err != nil {
		return nil, err
	}
	if !role.AtLeast(entity.RoleAdmin) {
		return nil, apierr.Forbidden("admin role required to remove members")
	}
	if targetRole, ok := o.Entities.GetRole(roomID, targetID); ok && targetRole == entity.RoleOwner {
		return nil, apierr.Forbidden("cannot remove the room owner")
	}
	r, err := o.Entities.RemoveMember(roomID, targetID, entity.OwnerLeaveForbid, "")
	if err != nil {
		return nil, err
	}
	o.Hub.PublishRoom(roomID, marshal(memberChangedEvent{Type: eventMemberUpdate, RoomID: roomID, UserID: targetID, Left: true}))
	return r, nil
}

// SetRole requires the caller to already be a member; entity.Store.SetRole
// enforces the owner-only-assigns-ownership rule.
func (o *Orchestrator) SetRole(roomID, targetID string, role entity.Role, callerID string) (*entity.Room, error) {
	r, err := o.Entities.SetRole(roomID, callerID, targetID, role)
	if err != nil {
		return nil, err
	}
	o.Hub.PublishRoom(roomID, marshal(memberChangedEvent{Type: eventMemberUpdate, RoomID: roomID, UserID: targetID, Role: string(role)}))
	return r, nil
}

// BanMember requires at least admin and, like KickMember, can never target
// the owner.
func (o *Orchestrator) BanMember(roomID, targetID, callerID string) (*entity.Room, error) {
	role, err := o.requireMember(roomID, callerID)
	if err != nil {
		return nil, err
	}
	if !role.AtLeast(entity.RoleAdmin) {
		return nil, apierr.Forbidden("admin role required to ban members")
	}
	if targetRole, ok := o.Entities.GetRole(roomID, targetID); ok && targetRole == entity.RoleOwner {
		return nil, apierr.Forbidden("cannot ban the room owner")
	}
	r, err := o.Entities.BanMember(roomID, targetID)
	if err != nil {
		return nil, err
	}
	o.Hub.PublishRoom(roomID, marshal(memberChangedEvent{Type: eventMemberBan, RoomID: roomID, UserID: targetID, Left: true}))
	return r, nil
}

func (o *Orchestrator) UnbanMember(roomID, targetID, callerID string) (*entity.Room, error) {
	role, err := o.requireMember(roomID, callerID)
	if err != nil {
		return nil, err
	}
	if !role.AtLeast(entity.RoleAdmin) {
		return nil, apierr.Forbidden("admin role required to unban members")
	}
	return o.Entities.UnbanMember(roomID, targetID)
}

// MuteMember requires at least moderator and, like KickMember, can never
// target the owner; untilMS is milliseconds from now.
func (o *Orchestrator) MuteMember(roomID, targetID, callerID string, untilMS int64) (*entity.Room, error) {
	role, err := o.requireMember(roomID, callerID)
	if err != nil {
		return nil, err
	}
	if !role.AtLeast(entity.RoleModerator) {
		return nil, apierr.Forbidden("moderator role required to mute members")
	}
	if targetRole, ok := o.Entities.GetRole(roomID, targetID); ok && targetRole == entity.RoleOwner {
		return nil, apierr.Forbidden("cannot mute the room owner")
	}
	until := time.Now().Add(time.Duration(untilMS) * time.Millisecond)
	r, err := o.Entities.MuteMember(roomID, targetID, until)
	if err != nil {
		return nil, err
	}
	o.Hub.PublishRoom(roomID, marshal(memberChangedEvent{Type: eventMemberMute, RoomID: roomID, UserID: targetID}))
	return r, nil
}

func (o *Orchestrator) UnmuteMember(roomID, targetID, callerID string) (*entity.Room, error) {
	role, err := o.requireMember(roomID, callerID)
	if err != nil {
		return nil, err
	}
	if !role.AtLeast(entity.RoleModerator) {
		return nil, apierr.Forbidden("moderator role required to unmute members")
	}
	return o.Entities.UnmuteMember(roomID, targetID)
}
