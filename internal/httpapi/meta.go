package httpapi

import "net/http"

type capabilityResponse struct {
	Capabilities    []string `json:"capabilities"`
	MaxUploadBytes  int      `json:"max_upload_bytes"`
	HeartbeatMS     int64    `json:"heartbeat_ms"`
	OutboundBufSize int      `json:"outbound_buf_size"`
}

// handleCapabilities is reachable without auth, per the supplemented
// pre-auth capability discovery in SPEC_FULL.md §D.
func (s *Server) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, capabilityResponse{
		Capabilities:    s.deps.Capabilities,
		MaxUploadBytes:  s.deps.MaxUploadBytes,
		HeartbeatMS:     s.deps.HeartbeatMS,
		OutboundBufSize: s.deps.OutboundBufSize,
	})
}
