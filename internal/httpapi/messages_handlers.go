package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/openrooms/orc/internal/apierr"
	"github.com/openrooms/orc/internal/stream"
)

type messagesResponse struct {
	Messages []*stream.Message `json:"messages"`
	NextSeq  uint64             `json:"next_seq,omitempty"`
	PrevSeq  uint64             `json:"prev_seq,omitempty"`
}

type postMessageRequest struct {
	Text        string               `json:"text"`
	ContentType string               `json:"content_type,omitempty"`
	ParentID    string               `json:"parent_id,omitempty"`
	Attachments []stream.Attachment  `json:"attachments,omitempty"`
}

func (s *Server) handleRoomMessagesForward(w http.ResponseWriter, r *http.Request) {
	room, err := s.roomFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}
	s.forwardRead(w, r, stream.RoomKey(room.RoomID))
}

func (s *Server) handleRoomMessagesBackfill(w http.ResponseWriter, r *http.Request) {
	room, err := s.roomFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}
	s.backfillRead(w, r, stream.RoomKey(room.RoomID))
}

func (s *Server) handleRoomMessagesPost(w http.ResponseWriter, r *http.Request) {
	room, err := s.roomFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}
	s.postMessage(w, r, stream.RoomKey(room.RoomID))
}

func (s *Server) handleRoomAck(w http.ResponseWriter, r *http.Request) {
	room, err := s.roomFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}
	s.ack(w, r, stream.RoomKey(room.RoomID))
}

func (s *Server) handleRoomCursor(w http.ResponseWriter, r *http.Request) {
	room, err := s.roomFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}
	s.cursor(w, r, stream.RoomKey(room.RoomID))
}

func (s *Server) forwardRead(w http.ResponseWriter, r *http.Request, key stream.Key) {
	fromSeq := uint64(queryInt(r, "from_seq", 1))
	limit := queryInt(r, "limit", 50)
	msgs, next, err := s.deps.Streams.ForwardRead(key, fromSeq, limit, userIDFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messagesResponse{Messages: msgs, NextSeq: next})
}

func (s *Server) backfillRead(w http.ResponseWriter, r *http.Request, key stream.Key) {
	beforeSeq := uint64(queryInt(r, "before_seq", 0))
	limit := queryInt(r, "limit", 50)
	msgs, prev, err := s.deps.Streams.BackfillRead(key, beforeSeq, limit, userIDFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messagesResponse{Messages: msgs, PrevSeq: prev})
}

func (s *Server) postMessage(w http.ResponseWriter, r *http.Request, key stream.Key) {
	var req postMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.ContentType == "" {
		req.ContentType = "text/plain"
	}
	m, err := s.deps.Orch.PostMessage(key, userIDFrom(r), req.Text, req.ContentType, req.ParentID, req.Attachments)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

type ackRequest struct {
	Seq uint64 `json:"seq"`
}

func (s *Server) ack(w http.ResponseWriter, r *http.Request, key stream.Key) {
	var req ackRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	s.deps.Streams.SetCursor(key, userIDFrom(r), req.Seq)
	w.WriteHeader(http.StatusNoContent)
}

type cursorResponse struct {
	Seq uint64 `json:"seq"`
}

func (s *Server) cursor(w http.ResponseWriter, r *http.Request, key stream.Key) {
	writeJSON(w, http.StatusOK, cursorResponse{Seq: s.deps.Streams.GetCursor(key, userIDFrom(r))})
}

// streamKeyFromQuery resolves a bare message id to the stream key it lives in.
// The Stream Engine indexes messages within a stream, not globally, so the
// Orchestrator needs a key — edit/delete/react therefore take room_id or
// dm_peer_id as a query hint alongside the path id.
func streamKeyFromQuery(r *http.Request, callerID string) (stream.Key, error) {
	if roomID := r.URL.Query().Get("room_id"); roomID != "" {
		return stream.RoomKey(roomID), nil
	}
	if peerID := r.URL.Query().Get("dm_peer_id"); peerID != "" {
		return stream.DMKey(callerID, peerID), nil
	}
	return stream.Key{}, apierr.BadRequest("room_id or dm_peer_id query parameter is required")
}

type editMessageRequest struct {
	Text        *string             `json:"text,omitempty"`
	Attachments []stream.Attachment `json:"attachments,omitempty"`
}

func (s *Server) handleMessageEdit(w http.ResponseWriter, r *http.Request) {
	callerID := userIDFrom(r)
	key, err := streamKeyFromQuery(r, callerID)
	if err != nil {
		writeError(w, err)
		return
	}
	var req editMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	m, err := s.deps.Orch.EditMessage(key, chi.URLParam(r, "id"), callerID, req.Text, req.Attachments)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

type deleteMessageRequest struct {
	Reason string `json:"reason,omitempty"`
}

func (s *Server) handleMessageDelete(w http.ResponseWriter, r *http.Request) {
	callerID := userIDFrom(r)
	key, err := streamKeyFromQuery(r, callerID)
	if err != nil {
		writeError(w, err)
		return
	}
	var req deleteMessageRequest
	_ = decodeJSON(r, &req)
	if err := s.deps.Orch.DeleteMessage(key, chi.URLParam(r, "id"), callerID, req.Reason); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type reactionRequest struct {
	Emoji string `json:"emoji"`
}

func (s *Server) handleReactionAdd(w http.ResponseWriter, r *http.Request) {
	s.react(w, r, true)
}

func (s *Server) handleReactionRemove(w http.ResponseWriter, r *http.Request) {
	s.react(w, r, false)
}

func (s *Server) react(w http.ResponseWriter, r *http.Request, add bool) {
	callerID := userIDFrom(r)
	key, err := streamKeyFromQuery(r, callerID)
	if err != nil {
		writeError(w, err)
		return
	}
	var req reactionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	counts, err := s.deps.Orch.React(key, chi.URLParam(r, "id"), callerID, req.Emoji, add)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Reactions []stream.ReactionCount `json:"reactions"`
	}{Reactions: counts})
}
