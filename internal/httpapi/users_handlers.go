package httpapi

import (
	"net/http"
	"strconv"

	"github.com/openrooms/orc/internal/entity"
)

type userResponse struct {
	User *entity.User `json:"user"`
}

func (s *Server) handleGetMe(w http.ResponseWriter, r *http.Request) {
	u, err := s.deps.Entities.GetUser(userIDFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{User: u})
}

type patchMeRequest struct {
	DisplayName *string `json:"display_name,omitempty"`
	Bio         *string `json:"bio,omitempty"`
	StatusText  *string `json:"status_text,omitempty"`
	StatusEmoji *string `json:"status_emoji,omitempty"`
	PhotoCID    *string `json:"photo_cid,omitempty"`
}

func (s *Server) handlePatchMe(w http.ResponseWriter, r *http.Request) {
	var req patchMeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	u, err := s.deps.Entities.UpdateUser(userIDFrom(r), func(u *entity.User) {
		if req.DisplayName != nil {
			u.DisplayName = *req.DisplayName
		}
		if req.Bio != nil {
			u.Bio = *req.Bio
		}
		if req.StatusText != nil {
			u.StatusText = *req.StatusText
		}
		if req.StatusEmoji != nil {
			u.StatusEmoji = *req.StatusEmoji
		}
		if req.PhotoCID != nil {
			u.PhotoCID = *req.PhotoCID
		}
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{User: u})
}

type usersListResponse struct {
	Users []*entity.User `json:"users"`
}

func (s *Server) handleDirectoryUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	limit := queryInt(r, "limit", 20)
	writeJSON(w, http.StatusOK, usersListResponse{Users: s.deps.Entities.SearchUsers(q, limit)})
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
