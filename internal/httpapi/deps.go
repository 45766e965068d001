package httpapi

import (
	"github.com/openrooms/orc/internal/entity"
	"github.com/openrooms/orc/internal/hub"
	"github.com/openrooms/orc/internal/orchestrator"
	"github.com/openrooms/orc/internal/stream"
)

// IdentityStore is the subset of internal/identity.Store (or its
// redisstore alternate) the HTTP surface needs.
type IdentityStore interface {
	TokenValidator
	IssueGuest(userID string) string
	MintTicket(userID string) (string, int64)
	Resolve(token string) (string, bool)
	ConsumeTicket(ticket string) (string, bool)
}

// Deps bundles every Core component the HTTP surface touches.
type Deps struct {
	Identity IdentityStore
	Entities entity.Interface
	Streams  *stream.Engine
	Hub      *hub.Hub
	Orch     *orchestrator.Orchestrator

	MaxUploadBytes  int
	HeartbeatMS     int64
	OutboundBufSize int
	OriginAllowlist []string
	Capabilities    []string
}
