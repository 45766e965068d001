// Command orc-server runs the Open Rooms Chat process: it wires the
// configured Identity/Entity store drivers, the Stream Engine and
// Subscription Hub, and serves the HTTP+WebSocket surface until it
// receives SIGINT/SIGTERM. Grounded on the teacher's cmd/server/main.go
// wiring order (config -> platform deps -> feature deps -> routes ->
// listen), generalized with an errgroup-driven graceful shutdown.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/openrooms/orc/internal/config"
	"github.com/openrooms/orc/internal/entity"
	"github.com/openrooms/orc/internal/entity/postgres"
	"github.com/openrooms/orc/internal/httpapi"
	"github.com/openrooms/orc/internal/hub"
	"github.com/openrooms/orc/internal/identity"
	"github.com/openrooms/orc/internal/identity/redisstore"
	"github.com/openrooms/orc/internal/logging"
	"github.com/openrooms/orc/internal/orchestrator"
	"github.com/openrooms/orc/internal/stream"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("server exited with error", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	entities, closeEntities, err := buildEntityStore(cfg, log)
	if err != nil {
		return err
	}
	defer closeEntities()

	identityStore, err := buildIdentityStore(cfg, log)
	if err != nil {
		return err
	}

	streams := stream.New(stream.Config{
		MaxMessageBytes:        cfg.MaxMessageBytes,
		MaxReactionsPerMessage: cfg.MaxReactionsPerMessage,
		TombstoneRetainText:    cfg.TombstoneRetainText,
	})

	h := hub.New(func(s hub.Session) {
		log.Info("session_detached_slow_consumer", zap.String("session_id", s.ID()), zap.String("user_id", s.UserID()))
	})
	h.OnPresenceChange(func(userID string, online bool) {
		state := "offline"
		if online {
			state = "online"
		}
		h.BroadcastAll(marshalPresence(userID, state))
	})

	ownerLeavePolicy := entity.OwnerLeaveForbid
	if cfg.OwnerLeavePolicy == string(entity.OwnerLeaveAutoPromote) {
		ownerLeavePolicy = entity.OwnerLeaveAutoPromote
	}
	orch := orchestrator.New(entities, streams, h, ownerLeavePolicy)

	srv := httpapi.NewServer(httpapi.Deps{
		Identity:        identityStore,
		Entities:        entities,
		Streams:         streams,
		Hub:             h,
		Orch:            orch,
		MaxUploadBytes:  cfg.MaxUploadBytes,
		HeartbeatMS:     cfg.HeartbeatMS,
		OutboundBufSize: cfg.OutboundBufSize,
		OriginAllowlist: cfg.OriginAllowlist(),
		Capabilities:    []string{"rooms", "dms", "reactions", "uploads", "typing", "presence"},
	}, log, cfg.RateLimitPerMinute, cfg.RateLimitBurst)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // WebSocket connections are long-lived
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// presenceEvent is spec.md:151's event.presence, fanned out to every
// attached session whenever a user's attached-session count crosses 0.
type presenceEvent struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
	State  string `json:"state"`
}

func marshalPresence(userID, state string) []byte {
	b, err := json.Marshal(presenceEvent{Type: "event.presence", UserID: userID, State: state})
	if err != nil {
		panic("orc-server: marshal presence event: " + err.Error())
	}
	return b
}

func buildEntityStore(cfg *config.Config, log *zap.Logger) (entity.Interface, func(), error) {
	switch cfg.EntityStoreDriver {
	case "postgres":
		store, err := postgres.Open(cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		log.Info("entity_store", zap.String("driver", "postgres"))
		return store, func() { store.Close() }, nil
	default:
		log.Info("entity_store", zap.String("driver", "memory"))
		return entity.New(), func() {}, nil
	}
}

func buildIdentityStore(cfg *config.Config, log *zap.Logger) (httpapi.IdentityStore, error) {
	switch cfg.IdentityStoreDriver {
	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if _, err := rdb.Ping(context.Background()).Result(); err != nil {
			return nil, err
		}
		log.Info("identity_store", zap.String("driver", "redis"))
		return redisstore.New(rdb, cfg.TicketTTL()), nil
	default:
		log.Info("identity_store", zap.String("driver", "memory"))
		return identity.New(cfg.TicketTTL()), nil
	}
}
