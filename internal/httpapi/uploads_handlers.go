package httpapi

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/openrooms/orc/internal/apierr"
)

type uploadResponse struct {
	CID    string `json:"cid"`
	Bytes  int    `json:"bytes"`
	Mime   string `json:"mime"`
	SHA256 string `json:"sha256"`
}

// handleUpload accepts either a raw octet-stream body or a single-file
// multipart form, per spec.md §6.1's POST /uploads.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	var blob []byte
	mime := r.Header.Get("Content-Type")

	if mime != "" && len(mime) >= 19 && mime[:19] == "multipart/form-data" {
		if err := r.ParseMultipartForm(int64(s.deps.MaxUploadBytes)); err != nil {
			writeError(w, apierr.BadRequest("malformed multipart body"))
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, apierr.BadRequest("missing file field"))
			return
		}
		defer file.Close()
		mime = header.Header.Get("Content-Type")
		blob, err = io.ReadAll(io.LimitReader(file, int64(s.deps.MaxUploadBytes)+1))
		if err != nil {
			writeError(w, apierr.Internal("failed reading upload"))
			return
		}
	} else {
		var err error
		blob, err = io.ReadAll(io.LimitReader(r.Body, int64(s.deps.MaxUploadBytes)+1))
		if err != nil {
			writeError(w, apierr.Internal("failed reading upload"))
			return
		}
	}

	if len(blob) > s.deps.MaxUploadBytes {
		// spec.md §6.1 calls this out as its own 413 status, distinct from
		// the tagged apierr.Kind taxonomy used for the rest of the surface.
		writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: errorDetail{
			Code:    "payload_too_large",
			Message: "upload exceeds maximum size",
			Details: map[string]any{"max_bytes": s.deps.MaxUploadBytes},
		}})
		return
	}

	meta := s.deps.Entities.PutBlob(blob, mime)
	writeJSON(w, http.StatusCreated, uploadResponse{CID: meta.CID, Bytes: meta.Bytes, Mime: meta.MimeHint, SHA256: meta.SHA256})
}

// handleMediaGet serves GET/HEAD /media/{cid}; HEAD omits the body exactly
// as net/http already does when the handler never calls Write.
func (s *Server) handleMediaGet(w http.ResponseWriter, r *http.Request) {
	mime, blob, err := s.deps.Entities.GetBlob(chi.URLParam(r, "cid"))
	if err != nil {
		writeError(w, err)
		return
	}
	if mime != "" {
		w.Header().Set("Content-Type", mime)
	}
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(blob)
}
