package httpapi

import (
	"net/http"

	"github.com/openrooms/orc/internal/ids"
)

func newGuestID() string { return ids.New() }

type guestRequest struct {
	DisplayName string `json:"display_name,omitempty"`
}

type guestResponse struct {
	AccessToken string      `json:"access_token"`
	User        interface{} `json:"user"`
}

// handleAuthGuest issues a guest identity and an opaque access token, per
// spec.md §6.1's POST /auth/guest. No prior credential is required; the
// user id is minted fresh each call.
func (s *Server) handleAuthGuest(w http.ResponseWriter, r *http.Request) {
	var req guestRequest
	_ = decodeJSON(r, &req) // an empty body is valid; display_name is optional

	userID := newGuestID()
	user := s.deps.Entities.EnsureUser(userID, req.DisplayName)
	token := s.deps.Identity.IssueGuest(userID)

	writeJSON(w, http.StatusOK, guestResponse{AccessToken: token, User: user})
}

type ticketResponse struct {
	Ticket      string `json:"ticket"`
	ExpiresInMS int64  `json:"expires_in_ms"`
}

// handleRTMTicket mints a single-use WS ticket for the already-authenticated
// caller, per spec.md §6.1's POST /rtm/ticket.
func (s *Server) handleRTMTicket(w http.ResponseWriter, r *http.Request) {
	tk, ttlMS := s.deps.Identity.MintTicket(userIDFrom(r))
	writeJSON(w, http.StatusOK, ticketResponse{Ticket: tk, ExpiresInMS: ttlMS})
}
