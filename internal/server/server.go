// Package server exposes the turn ledger over HTTP and websockets. Every
// mutation goes through the managers in internal/game; every connected
// client receives full snapshots fanned out by the per-game sync
// coordinator, so the initiating device and remote devices share one
// update path.
package server

import (
	"context"
	"net/http"
	stdsync "sync"
	"time"

	"rollbook/internal/config"
	"rollbook/internal/game"
	"rollbook/internal/ledger"
	gamesync "rollbook/internal/sync"
)

type Server struct {
	store   ledger.Store
	games   *game.Manager
	cache   *gamesync.Cache
	ws      *wsHub
	cfg     config.Config
	limiter *rateLimiter

	coordMu stdsync.Mutex
	coords  map[uint]context.CancelFunc
	baseCtx context.Context
	cancel  context.CancelFunc
}

func New(store ledger.Store, cfg config.Config) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		store:   store,
		games:   game.NewManager(store),
		cache:   gamesync.NewCache(),
		ws:      newWSHub(),
		cfg:     cfg,
		limiter: newRateLimiter(cfg.RateLimitPerMinute, cfg.RateLimitBurst),
		coords:  make(map[uint]context.CancelFunc),
		baseCtx: ctx,
		cancel:  cancel,
	}
	return s
}

// Close stops every running coordinator.
func (s *Server) Close() {
	s.cancel()
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/games", s.handleCreateGame)
	mux.HandleFunc("POST /api/games/join", s.handleJoinGame)
	mux.HandleFunc("GET /api/games/", s.handleGameSubroutes)
	mux.HandleFunc("POST /api/games/", s.handleGameSubroutes)
	mux.HandleFunc("DELETE /api/games/", s.handleGameSubroutes)
	mux.HandleFunc("GET /ws/games/", s.handleWebsocket)
	return mux
}

// ensureCoordinator starts the sync coordinator and hint relay for a game
// on first use. Coordinators live for the process lifetime, matching the
// session cache they feed.
func (s *Server) ensureCoordinator(gameID uint) {
	s.coordMu.Lock()
	defer s.coordMu.Unlock()
	if _, running := s.coords[gameID]; running {
		return
	}
	ctx, cancel := context.WithCancel(s.baseCtx)
	s.coords[gameID] = cancel

	coordinator := gamesync.NewCoordinator(
		s.store, s.cache, gameID,
		gamesync.WithFetchTimeout(time.Duration(s.cfg.FetchTimeoutSeconds)*time.Second),
		gamesync.WithOnUpdate(func(view gamesync.View) {
			s.ws.Broadcast(gameID, snapshot(view))
		}),
	)
	go coordinator.Run(ctx)
	go s.relayHints(ctx, gameID)
}

// relayHints forwards broadcast hints to every websocket in the game's
// group, the sender included, so a client's own hint echoes back to it.
func (s *Server) relayHints(ctx context.Context, gameID uint) {
	sub := s.store.SubscribeHints(gameID)
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case hint, ok := <-sub.C:
			if !ok {
				return
			}
			s.ws.Broadcast(gameID, map[string]any{
				"type": "hint",
				"hint": hint,
			})
		}
	}
}

// currentView returns the cached view for a game, fetching synchronously
// when the cache is cold.
func (s *Server) currentView(ctx context.Context, gameID uint) (gamesync.View, error) {
	if view, ok := s.cache.Get(gameID); ok {
		return view, nil
	}
	view, err := gamesync.FetchView(ctx, s.store, gameID)
	if err != nil {
		return gamesync.View{}, err
	}
	s.cache.Put(gameID, view)
	return view, nil
}
