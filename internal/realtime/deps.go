package realtime

import (
	"github.com/openrooms/orc/internal/entity"
	"github.com/openrooms/orc/internal/hub"
	"github.com/openrooms/orc/internal/stream"
)

// Deps is what a Session needs from the rest of Core. It does not include
// the orchestrator, so realtime does not depend on that package.
type Deps struct {
	Hub          *hub.Hub
	Entities     entity.Interface
	Streams      *stream.Engine
	HeartbeatMS  int64
	Capabilities []string
}

// resolveRoomSubscriptions turns the room ids/names from a hello frame into
// hub.Subscriptions, silently dropping names that do not resolve (spec.md
// is silent on this; failing the whole handshake over one bad room name
// would be more surprising than ignoring it).
func (d Deps) resolveRoomSubscriptions(names []string) map[string]struct{} {
	out := make(map[string]struct{}, len(names))
	for _, n := range names {
		if r, err := d.Entities.Resolve(n); err == nil {
			out[r.RoomID] = struct{}{}
		}
	}
	return out
}
