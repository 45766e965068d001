// Package httpapi implements spec.md §6.1: the JSON-over-HTTP surface, plus
// the /rtm WebSocket upgrade route. Grounded on the teacher's
// cmd/server/main.go chi wiring (middleware.Logger/Recoverer, route groups
// split by auth requirement) and internal/middleware/jwt.go's auth
// boundary, generalized to opaque bearer tokens and the full ORC route set.
package httpapi

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/openrooms/orc/internal/apierr"
	orcmetrics "github.com/openrooms/orc/internal/metrics"
	"github.com/openrooms/orc/internal/realtime"
)

// Server holds everything the HTTP surface needs to build its router.
type Server struct {
	deps Deps
	log  *zap.Logger
	auth *authMiddleware

	limitersMu sync.Mutex
	limiters   map[string]*rate.Limiter
	rps        rate.Limit
	burst      int
}

// NewServer wires Deps into a Server ready to build a router.
func NewServer(deps Deps, log *zap.Logger, ratePerMinute, burst int) *Server {
	return &Server{
		deps:     deps,
		log:      log,
		auth:     newAuthMiddleware(deps.Identity),
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(float64(ratePerMinute) / 60.0),
		burst:    burst,
	}
}

// Router builds the full chi.Mux per spec.md §6.1.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.zapLogger)
	r.Use(middleware.Recoverer)
	r.Use(s.cors)
	r.Use(s.rateLimit)

	r.Get("/metrics", orcmetrics.Handler().ServeHTTP)

	r.Get("/meta/capabilities", s.handleCapabilities)
	r.Post("/auth/guest", s.handleAuthGuest)
	r.Get("/rtm", s.handleRTM)

	r.Group(func(r chi.Router) {
		r.Use(s.auth.handle)

		r.Post("/rtm/ticket", s.handleRTMTicket)

		r.Get("/users/me", s.handleGetMe)
		r.Patch("/users/me", s.handlePatchMe)
		r.Get("/directory/users", s.handleDirectoryUsers)
		r.Get("/directory/rooms", s.handleDirectoryRooms)

		r.Post("/rooms", s.handleCreateRoom)
		r.Get("/rooms/{name}", s.handleGetRoom)
		r.Patch("/rooms/{name}", s.handlePatchRoom)
		r.Get("/rooms", s.handleListMyRooms) // ?mine=true is the default and only mode here

		r.Post("/rooms/{name}/join", s.handleRoomJoin)
		r.Post("/rooms/{name}/leave", s.handleRoomLeave)
		r.Post("/rooms/{name}/invite", s.handleRoomInvite)
		r.Post("/rooms/{name}/kick", s.handleRoomKick)
		r.Post("/rooms/{name}/pins", s.handleRoomPin)
		r.Delete("/rooms/{name}/pins", s.handleRoomUnpin)
		r.Post("/rooms/{name}/roles", s.handleRoomSetRole)
		r.Post("/rooms/{name}/bans", s.handleRoomBan)
		r.Delete("/rooms/{name}/bans", s.handleRoomUnban)
		r.Post("/rooms/{name}/mutes", s.handleRoomMute)
		r.Delete("/rooms/{name}/mutes", s.handleRoomUnmute)

		r.Get("/rooms/{name}/messages", s.handleRoomMessagesForward)
		r.Post("/rooms/{name}/messages", s.handleRoomMessagesPost)
		r.Get("/rooms/{name}/messages/backfill", s.handleRoomMessagesBackfill)
		r.Post("/rooms/{name}/ack", s.handleRoomAck)
		r.Get("/rooms/{name}/cursor", s.handleRoomCursor)

		r.Get("/dms/{user_id}/messages", s.handleDMMessagesForward)
		r.Post("/dms/{user_id}/messages", s.handleDMMessagesPost)
		r.Get("/dms/{user_id}/messages/backfill", s.handleDMMessagesBackfill)
		r.Post("/dms/{user_id}/ack", s.handleDMAck)
		r.Get("/dms/{user_id}/cursor", s.handleDMCursor)

		r.Patch("/messages/{id}", s.handleMessageEdit)
		r.Delete("/messages/{id}", s.handleMessageDelete)
		r.Post("/messages/{id}/reactions", s.handleReactionAdd)
		r.Delete("/messages/{id}/reactions", s.handleReactionRemove)

		r.Post("/uploads", s.handleUpload)
	})

	r.Get("/media/{cid}", s.handleMediaGet)
	r.Head("/media/{cid}", s.handleMediaGet)

	return r
}

// zapLogger replaces the teacher's middleware.Logger with a structured
// equivalent, and feeds orc_http_requests_total/orc_http_request_duration.
func (s *Server) zapLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		orcmetrics.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		orcmetrics.HTTPLatency.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())

		s.log.Info("http_request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

// cors implements spec.md §6.1's CORS policy against the configured
// allowlist (empty allowlist means "*").
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := allowedOrigin(s.deps.OriginAllowlist, r.Header.Get("Origin"))
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func allowedOrigin(allowlist []string, origin string) string {
	if len(allowlist) == 0 {
		return "*"
	}
	for _, o := range allowlist {
		if o == origin {
			return origin
		}
	}
	return allowlist[0]
}

// rateLimit enforces RATE_LIMIT_PER_MINUTE/RATE_LIMIT_BURST per bearer
// token (falling back to remote addr for unauthenticated requests), per
// spec.md §5's per-connection token-bucket requirement generalized to HTTP.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := bearerToken(r)
		if key == "" {
			key = r.RemoteAddr
		}
		if !s.limiterFor(key).Allow() {
			writeError(w, apierr.RateLimited("too many requests"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) limiterFor(key string) *rate.Limiter {
	s.limitersMu.Lock()
	defer s.limitersMu.Unlock()
	l, ok := s.limiters[key]
	if !ok {
		l = rate.NewLimiter(s.rps, s.burst)
		s.limiters[key] = l
	}
	return l
}

func (s *Server) handleRTM(w http.ResponseWriter, r *http.Request) {
	realtime.Upgrade(w, r, s.deps.Identity, realtime.Deps{
		Hub:          s.deps.Hub,
		Entities:     s.deps.Entities,
		Streams:      s.deps.Streams,
		HeartbeatMS:  s.deps.HeartbeatMS,
		Capabilities: s.deps.Capabilities,
	}, s.deps.OriginAllowlist, s.deps.OutboundBufSize, s.log)
}
