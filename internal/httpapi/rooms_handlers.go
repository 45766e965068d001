package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/openrooms/orc/internal/apierr"
	"github.com/openrooms/orc/internal/entity"
)

type roomResponse struct {
	Room *entity.Room `json:"room"`
}

type roomsListResponse struct {
	Rooms []*entity.Room `json:"rooms"`
}

// roomFromPath resolves the {name} path param to a Room via
// entity.Interface.Resolve, which accepts either a room_id or a room name
// per DESIGN.md's Open Question #1 decision.
func (s *Server) roomFromPath(r *http.Request) (*entity.Room, error) {
	return s.deps.Entities.Resolve(chi.URLParam(r, "name"))
}

type createRoomRequest struct {
	Name       string `json:"name"`
	Topic      string `json:"topic,omitempty"`
	Visibility string `json:"visibility,omitempty"`
}

func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Name == "" {
		writeError(w, apierr.BadRequest("name is required"))
		return
	}
	vis := entity.VisibilityPublic
	if req.Visibility == string(entity.VisibilityPrivate) {
		vis = entity.VisibilityPrivate
	}
	room, err := s.deps.Orch.CreateRoom(userIDFrom(r), req.Name, req.Topic, vis)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, roomResponse{Room: room})
}

func (s *Server) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	room, err := s.roomFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, roomResponse{Room: room})
}

type patchRoomRequest struct {
	Name  *string `json:"name,omitempty"`
	Topic *string `json:"topic,omitempty"`
}

func (s *Server) handlePatchRoom(w http.ResponseWriter, r *http.Request) {
	room, err := s.roomFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req patchRoomRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	callerID := userIDFrom(r)
	if req.Name != nil {
		room, err = s.deps.Orch.RenameRoom(room.RoomID, *req.Name, callerID)
		if err != nil {
			writeError(w, err)
			return
		}
	}
	if req.Topic != nil {
		room, err = s.deps.Orch.UpdateTopic(room.RoomID, *req.Topic, callerID)
		if err != nil {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, roomResponse{Room: room})
}

// handleListMyRooms serves GET /rooms, which in this surface always means
// "rooms I am a member of" (SPEC_FULL.md §D): public discovery lives at
// GET /directory/rooms instead, so there is no ?mine= flag to branch on.
func (s *Server) handleListMyRooms(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, roomsListResponse{Rooms: s.deps.Entities.ListMyRooms(userIDFrom(r))})
}

func (s *Server) handleDirectoryRooms(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	limit := queryInt(r, "limit", 20)
	writeJSON(w, http.StatusOK, roomsListResponse{Rooms: s.deps.Entities.ListPublicRooms(q, limit)})
}

func (s *Server) handleRoomJoin(w http.ResponseWriter, r *http.Request) {
	room, err := s.roomFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if _, err := s.deps.Orch.JoinRoom(room.RoomID, userIDFrom(r)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type leaveRequest struct {
	TransferTo string `json:"transfer_to,omitempty"`
}

func (s *Server) handleRoomLeave(w http.ResponseWriter, r *http.Request) {
	room, err := s.roomFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req leaveRequest
	_ = decodeJSON(r, &req)
	if _, err := s.deps.Orch.LeaveRoom(room.RoomID, userIDFrom(r), req.TransferTo); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type inviteRequest struct {
	UserID string `json:"user_id"`
}

func (s *Server) handleRoomInvite(w http.ResponseWriter, r *http.Request) {
	room, err := s.roomFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req inviteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if _, err := s.deps.Orch.AddMemberByAdmin(room.RoomID, req.UserID, userIDFrom(r)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type kickRequest struct {
	UserID string `json:"user_id"`
}

func (s *Server) handleRoomKick(w http.ResponseWriter, r *http.Request) {
	room, err := s.roomFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req kickRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if _, err := s.deps.Orch.KickMember(room.RoomID, req.UserID, userIDFrom(r)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type pinRequest struct {
	MessageID string `json:"message_id"`
}

func (s *Server) handleRoomPin(w http.ResponseWriter, r *http.Request) {
	room, err := s.roomFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req pinRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if _, err := s.deps.Orch.PinMessage(room.RoomID, req.MessageID, userIDFrom(r)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRoomUnpin(w http.ResponseWriter, r *http.Request) {
	room, err := s.roomFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req pinRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if _, err := s.deps.Orch.UnpinMessage(room.RoomID, req.MessageID, userIDFrom(r)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type setRoleRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

func (s *Server) handleRoomSetRole(w http.ResponseWriter, r *http.Request) {
	room, err := s.roomFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req setRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if _, err := s.deps.Orch.SetRole(room.RoomID, req.UserID, entity.Role(req.Role), userIDFrom(r)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type banRequest struct {
	UserID string `json:"user_id"`
}

func (s *Server) handleRoomBan(w http.ResponseWriter, r *http.Request) {
	room, err := s.roomFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req banRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if _, err := s.deps.Orch.BanMember(room.RoomID, req.UserID, userIDFrom(r)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRoomUnban(w http.ResponseWriter, r *http.Request) {
	room, err := s.roomFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req banRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if _, err := s.deps.Orch.UnbanMember(room.RoomID, req.UserID, userIDFrom(r)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type muteRequest struct {
	UserID  string `json:"user_id"`
	UntilMS int64  `json:"mute_for_ms"`
}

func (s *Server) handleRoomMute(w http.ResponseWriter, r *http.Request) {
	room, err := s.roomFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req muteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if _, err := s.deps.Orch.MuteMember(room.RoomID, req.UserID, userIDFrom(r), req.UntilMS); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRoomUnmute(w http.ResponseWriter, r *http.Request) {
	room, err := s.roomFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req muteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if _, err := s.deps.Orch.UnmuteMember(room.RoomID, req.UserID, userIDFrom(r)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
