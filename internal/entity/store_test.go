package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openrooms/orc/internal/apierr"
)

func TestCreateRoomRejectsDuplicateNameCaseInsensitive(t *testing.T) {
	s := New()
	_, err := s.CreateRoom("alice", "General", "", VisibilityPublic)
	require.NoError(t, err)

	_, err = s.CreateRoom("bob", "general", "", VisibilityPublic)
	require.Error(t, err)
	assert.Equal(t, apierr.KindConflict, apierr.KindOf(err))
}

func TestResolveAcceptsIDOrName(t *testing.T) {
	s := New()
	r, err := s.CreateRoom("alice", "General", "", VisibilityPublic)
	require.NoError(t, err)

	byName, err := s.Resolve("general")
	require.NoError(t, err)
	assert.Equal(t, r.RoomID, byName.RoomID)

	byID, err := s.Resolve(r.RoomID)
	require.NoError(t, err)
	assert.Equal(t, r.RoomID, byID.RoomID)
}

func TestAddMemberIsIdempotentAndPreservesRole(t *testing.T) {
	s := New()
	r, err := s.CreateRoom("alice", "General", "", VisibilityPublic)
	require.NoError(t, err)

	_, err = s.AddMember(r.RoomID, "bob", RoleModerator)
	require.NoError(t, err)
	role, _ := s.GetRole(r.RoomID, "bob")
	assert.Equal(t, RoleModerator, role)

	_, err = s.AddMember(r.RoomID, "bob", RoleMember)
	require.NoError(t, err)
	role, _ = s.GetRole(r.RoomID, "bob")
	assert.Equal(t, RoleModerator, role, "re-adding an existing member must not downgrade their role")
}

func TestMemberCountTracksAddAndRemove(t *testing.T) {
	s := New()
	r, err := s.CreateRoom("alice", "General", "", VisibilityPublic)
	require.NoError(t, err)
	assert.Equal(t, 1, r.MemberCount)

	r, err = s.AddMember(r.RoomID, "bob", RoleMember)
	require.NoError(t, err)
	assert.Equal(t, 2, r.MemberCount)

	r, err = s.RemoveMember(r.RoomID, "bob", OwnerLeaveForbid, "")
	require.NoError(t, err)
	assert.Equal(t, 1, r.MemberCount)
}

func TestRemoveMemberForbidsOwnerLeaveWithoutTransfer(t *testing.T) {
	s := New()
	r, err := s.CreateRoom("alice", "General", "", VisibilityPublic)
	require.NoError(t, err)
	_, err = s.AddMember(r.RoomID, "bob", RoleMember)
	require.NoError(t, err)

	_, err = s.RemoveMember(r.RoomID, "alice", OwnerLeaveForbid, "")
	require.Error(t, err)
	assert.Equal(t, apierr.KindConflict, apierr.KindOf(err))

	r, err = s.RemoveMember(r.RoomID, "alice", OwnerLeaveForbid, "bob")
	require.NoError(t, err)
	assert.Equal(t, "bob", r.OwnerID)
	role, _ := s.GetRole(r.RoomID, "bob")
	assert.Equal(t, RoleOwner, role)
}

func TestRemoveMemberAutoPromotesAdminUnderAutoPromotePolicy(t *testing.T) {
	s := New()
	r, err := s.CreateRoom("alice", "General", "", VisibilityPublic)
	require.NoError(t, err)
	_, err = s.AddMember(r.RoomID, "bob", RoleAdmin)
	require.NoError(t, err)

	r, err = s.RemoveMember(r.RoomID, "alice", OwnerLeaveAutoPromote, "")
	require.NoError(t, err)
	assert.Equal(t, "bob", r.OwnerID)
}

func TestSetRoleOnlyOwnerAssignsOwnership(t *testing.T) {
	s := New()
	r, err := s.CreateRoom("alice", "General", "", VisibilityPublic)
	require.NoError(t, err)
	_, err = s.AddMember(r.RoomID, "bob", RoleAdmin)
	require.NoError(t, err)
	_, err = s.AddMember(r.RoomID, "carol", RoleMember)
	require.NoError(t, err)

	_, err = s.SetRole(r.RoomID, "bob", "carol", RoleOwner)
	require.Error(t, err)
	assert.Equal(t, apierr.KindForbidden, apierr.KindOf(err))

	r, err = s.SetRole(r.RoomID, "alice", "carol", RoleOwner)
	require.NoError(t, err)
	assert.Equal(t, "carol", r.OwnerID)

	aliceRole, _ := s.GetRole(r.RoomID, "alice")
	assert.Equal(t, RoleAdmin, aliceRole, "the previous owner is demoted to admin")
}

func TestAddPinIsIdempotent(t *testing.T) {
	s := New()
	r, err := s.CreateRoom("alice", "General", "", VisibilityPublic)
	require.NoError(t, err)

	r, err = s.AddPin(r.RoomID, "msg-1")
	require.NoError(t, err)
	r, err = s.AddPin(r.RoomID, "msg-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"msg-1"}, r.PinnedMessageIDs)
}

func TestBanMemberRemovesMembershipAndBlocksRejoin(t *testing.T) {
	s := New()
	r, err := s.CreateRoom("alice", "General", "", VisibilityPublic)
	require.NoError(t, err)
	_, err = s.AddMember(r.RoomID, "bob", RoleMember)
	require.NoError(t, err)

	r, err = s.BanMember(r.RoomID, "bob")
	require.NoError(t, err)
	assert.False(t, s.IsMember(r.RoomID, "bob"))
	assert.Equal(t, 1, r.MemberCount)
	assert.True(t, s.IsBanned(r.RoomID, "bob"))

	_, err = s.UnbanMember(r.RoomID, "bob")
	require.NoError(t, err)
	assert.False(t, s.IsBanned(r.RoomID, "bob"))
}

func TestMuteMemberExpiresAfterDeadline(t *testing.T) {
	s := New()
	r, err := s.CreateRoom("alice", "General", "", VisibilityPublic)
	require.NoError(t, err)

	_, err = s.MuteMember(r.RoomID, "bob", time.Now().Add(time.Millisecond))
	require.NoError(t, err)
	assert.True(t, s.IsMuted(r.RoomID, "bob"))

	time.Sleep(5 * time.Millisecond)
	assert.False(t, s.IsMuted(r.RoomID, "bob"))
}

func TestUnmuteMemberClearsMuteImmediately(t *testing.T) {
	s := New()
	r, err := s.CreateRoom("alice", "General", "", VisibilityPublic)
	require.NoError(t, err)

	_, err = s.MuteMember(r.RoomID, "bob", time.Now().Add(time.Hour))
	require.NoError(t, err)
	_, err = s.UnmuteMember(r.RoomID, "bob")
	require.NoError(t, err)
	assert.False(t, s.IsMuted(r.RoomID, "bob"))
}

func TestPutBlobDedupesByContent(t *testing.T) {
	s := New()
	blob := []byte("hello world")

	first := s.PutBlob(blob, "text/plain")
	second := s.PutBlob(blob, "text/plain")
	assert.Equal(t, first.CID, second.CID)
	assert.Equal(t, first.SHA256, second.SHA256)

	mime, got, err := s.GetBlob(first.CID)
	require.NoError(t, err)
	assert.Equal(t, "text/plain", mime)
	assert.Equal(t, blob, got)
}
