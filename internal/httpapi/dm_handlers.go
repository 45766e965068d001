package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/openrooms/orc/internal/stream"
)

// dmKeyFromPath builds the canonical DM stream key for the caller and the
// {user_id} path param, per spec.md §3's pair(a,b) addressing.
func (s *Server) dmKeyFromPath(r *http.Request) stream.Key {
	peer := chi.URLParam(r, "user_id")
	return stream.DMKey(userIDFrom(r), peer)
}

func (s *Server) handleDMMessagesForward(w http.ResponseWriter, r *http.Request) {
	s.forwardRead(w, r, s.dmKeyFromPath(r))
}

func (s *Server) handleDMMessagesBackfill(w http.ResponseWriter, r *http.Request) {
	s.backfillRead(w, r, s.dmKeyFromPath(r))
}

func (s *Server) handleDMMessagesPost(w http.ResponseWriter, r *http.Request) {
	s.postMessage(w, r, s.dmKeyFromPath(r))
}

func (s *Server) handleDMAck(w http.ResponseWriter, r *http.Request) {
	s.ack(w, r, s.dmKeyFromPath(r))
}

func (s *Server) handleDMCursor(w http.ResponseWriter, r *http.Request) {
	s.cursor(w, r, s.dmKeyFromPath(r))
}
