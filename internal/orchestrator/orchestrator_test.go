package orchestrator

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openrooms/orc/internal/apierr"
	"github.com/openrooms/orc/internal/entity"
	"github.com/openrooms/orc/internal/hub"
	"github.com/openrooms/orc/internal/stream"
)

type recordingSession struct {
	id     string
	userID string
	frames [][]byte
}

func (r *recordingSession) ID() string     { return r.id }
func (r *recordingSession) UserID() string { return r.userID }
func (r *recordingSession) TryEnqueue(frame []byte) bool {
	r.frames = append(r.frames, frame)
	return true
}

func newOrch() (*Orchestrator, *entity.Store, *hub.Hub) {
	entities := entity.New()
	streams := stream.New(stream.DefaultConfig())
	h := hub.New(nil)
	return New(entities, streams, h, entity.OwnerLeaveForbid), entities, h
}

func frameType(t *testing.T, frame []byte) string {
	var env struct {
		Type string `json:"type"`
	}
	require.NoError(t, json.Unmarshal(frame, &env))
	return env.Type
}

func TestPostMessageRequiresRoomMembership(t *testing.T) {
	orch, entities, _ := newOrch()
	r, err := entities.CreateRoom("alice", "General", "", entity.VisibilityPublic)
	require.NoError(t, err)

	_, err = orch.PostMessage(stream.RoomKey(r.RoomID), "bob", "hi", "text/plain", "", nil)
	require.Error(t, err)
	assert.Equal(t, apierr.KindForbidden, apierr.KindOf(err))
}

func TestPostMessagePublishesToRoomSubscribers(t *testing.T) {
	orch, entities, h := newOrch()
	r, err := entities.CreateRoom("alice", "General", "", entity.VisibilityPublic)
	require.NoError(t, err)

	sess := &recordingSession{id: "s1", userID: "alice"}
	h.Attach(sess, hub.Subscriptions{Rooms: map[string]struct{}{r.RoomID: {}}})

	msg, err := orch.PostMessage(stream.RoomKey(r.RoomID), "alice", "hello", "text/plain", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "hello", msg.Text)

	require.Len(t, sess.frames, 1)
	assert.Equal(t, eventMessageCreate, frameType(t, sess.frames[0]))
}

func TestPostMessageRejectsMutedMember(t *testing.T) {
	orch, entities, _ := newOrch()
	r, err := entities.CreateRoom("alice", "General", "", entity.VisibilityPublic)
	require.NoError(t, err)
	_, err = entities.AddMember(r.RoomID, "bob", entity.RoleMember)
	require.NoError(t, err)
	_, err = orch.MuteMember(r.RoomID, "bob", "alice", 60000)
	require.NoError(t, err)

	_, err = orch.PostMessage(stream.RoomKey(r.RoomID), "bob", "hi", "text/plain", "", nil)
	require.Error(t, err)
	assert.Equal(t, apierr.KindForbidden, apierr.KindOf(err))
}

func TestPostMessageDMRequiresNoMembership(t *testing.T) {
	orch, _, _ := newOrch()
	_, err := orch.PostMessage(stream.DMKey("alice", "bob"), "alice", "hi", "text/plain", "", nil)
	require.NoError(t, err)
}

func TestDeleteMessageGrantsPurgeToModerators(t *testing.T) {
	orch, entities, _ := newOrch()
	r, err := entities.CreateRoom("alice", "General", "", entity.VisibilityPublic)
	require.NoError(t, err)
	_, err = entities.AddMember(r.RoomID, "mod", entity.RoleModerator)
	require.NoError(t, err)
	_, err = entities.AddMember(r.RoomID, "bob", entity.RoleMember)
	require.NoError(t, err)

	key := stream.RoomKey(r.RoomID)
	msg, err := orch.PostMessage(key, "bob", "spam", "text/plain", "", nil)
	require.NoError(t, err)

	err = orch.DeleteMessage(key, msg.MessageID, "mod", "spam")
	require.NoError(t, err)
}

func TestBanMemberCannotTargetOwner(t *testing.T) {
	orch, entities, _ := newOrch()
	r, err := entities.CreateRoom("alice", "General", "", entity.VisibilityPublic)
	require.NoError(t, err)
	_, err = entities.AddMember(r.RoomID, "admin", entity.RoleAdmin)
	require.NoError(t, err)

	_, err = orch.BanMember(r.RoomID, "alice", "admin")
	require.Error(t, err)
	assert.Equal(t, apierr.KindForbidden, apierr.KindOf(err))
}

func TestBanMemberRequiresAdminRole(t *testing.T) {
	orch, entities, _ := newOrch()
	r, err := entities.CreateRoom("alice", "General", "", entity.VisibilityPublic)
	require.NoError(t, err)
	_, err = entities.AddMember(r.RoomID, "bob", entity.RoleMember)
	require.NoError(t, err)
	_, err = entities.AddMember(r.RoomID, "carol", entity.RoleMember)
	require.NoError(t, err)

	_, err = orch.BanMember(r.RoomID, "carol", "bob")
	require.Error(t, err)
	assert.Equal(t, apierr.KindForbidden, apierr.KindOf(err))
}

func TestJoinRoomRejectsBannedUser(t *testing.T) {
	orch, entities, _ := newOrch()
	r, err := entities.CreateRoom("alice", "General", "", entity.VisibilityPublic)
	require.NoError(t, err)
	_, err = entities.AddMember(r.RoomID, "bob", entity.RoleMember)
	require.NoError(t, err)
	_, err = orch.BanMember(r.RoomID, "bob", "alice")
	require.NoError(t, err)

	_, err = orch.JoinRoom(r.RoomID, "bob")
	require.Error(t, err)
	assert.Equal(t, apierr.KindForbidden, apierr.KindOf(err))
}

func TestJoinRoomRejectsPrivateRoomWithoutInvite(t *testing.T) {
	orch, entities, _ := newOrch()
	r, err := entities.CreateRoom("alice", "Secret", "", entity.VisibilityPrivate)
	require.NoError(t, err)

	_, err = orch.JoinRoom(r.RoomID, "bob")
	require.Error(t, err)
	assert.Equal(t, apierr.KindForbidden, apierr.KindOf(err))
}

func TestKickMemberCannotTargetOwner(t *testing.T) {
	orch, entities, _ := newOrch()
	r, err := entities.CreateRoom("alice", "General", "", entity.VisibilityPublic)
	require.NoError(t, err)
	_, err = entities.AddMember(r.RoomID, "admin", entity.RoleAdmin)
	require.NoError(t, err)

	_, err = orch.KickMember(r.RoomID, "alice", "admin")
	require.Error(t, err)
	assert.Equal(t, apierr.KindForbidden, apierr.KindOf(err))
}

func TestRenameRoomRequiresAdmin(t *testing.T) {
	orch, entities, _ := newOrch()
	r, err := entities.CreateRoom("alice", "General", "", entity.VisibilityPublic)
	require.NoError(t, err)
	_, err = entities.AddMember(r.RoomID, "bob", entity.RoleMember)
	require.NoError(t, err)

	_, err = orch.RenameRoom(r.RoomID, "renamed", "bob")
	require.Error(t, err)
	assert.Equal(t, apierr.KindForbidden, apierr.KindOf(err))

	r, err = orch.RenameRoom(r.RoomID, "renamed", "alice")
	require.NoError(t, err)
	assert.Equal(t, "renamed", r.Name)
}

func TestSameStreamPublishOrderMatchesMutationOrder(t *testing.T) {
	orch, entities, h := newOrch()
	r, err := entities.CreateRoom("alice", "General", "", entity.VisibilityPublic)
	require.NoError(t, err)

	sess := &recordingSession{id: "s1", userID: "alice"}
	h.Attach(sess, hub.Subscriptions{Rooms: map[string]struct{}{r.RoomID: {}}})

	key := stream.RoomKey(r.RoomID)
	for i := 0; i < 10; i++ {
		_, err := orch.PostMessage(key, "alice", "msg", "text/plain", "", nil)
		require.NoError(t, err)
	}

	require.Len(t, sess.frames, 10)
	var lastSeq uint64
	for _, frame := range sess.frames {
		var env struct {
			Message struct {
				Seq uint64 `json:"seq"`
			} `json:"message"`
		}
		require.NoError(t, json.Unmarshal(frame, &env))
		assert.Greater(t, env.Message.Seq, lastSeq)
		lastSeq = env.Message.Seq
	}
}
