package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"pong-arena/internal/game"
	"pong-arena/internal/tournament"
)

// GameRegistry is the part of game.Manager the REST API reads.
type GameRegistry interface {
	ListActive() []game.Snapshot
	ListWaiting() []game.Snapshot
	GetSession(id string) (*game.Session, bool)
}

// TournamentStarter starts a tournament. *tournament.Coordinator starts it
// and launches round one; *tournament.Service only seeds the bracket.
type TournamentStarter interface {
	Start(id, requester string) (tournament.Tournament, error)
}

// RouterConfig contains all dependencies needed to construct the HTTP router.
//
// Example usage in tests:
//
//	router := api.NewRouter(api.RouterConfig{
//	    Games:       manager,
//	    Tournaments: tournament.NewService(),
//	    RateLimitConfig: &api.RateLimitConfig{RequestsPerSecond: 1000, Burst: 1000},
//	})
//	ts := httptest.NewServer(router)
type RouterConfig struct {
	Games       GameRegistry        // required
	Tournaments *tournament.Service // required
	Starter     TournamentStarter   // optional, defaults to Tournaments

	// RateLimiter is an optional pre-configured rate limiter.
	// If nil, a new one is created from RateLimitConfig.
	RateLimiter     *IPRateLimiter
	RateLimitConfig *RateLimitConfig

	// CORSOrigins is an optional list of allowed CORS origins.
	// If empty, only localhost origins are allowed.
	CORSOrigins []string

	// DisableLogging disables the request logger middleware (useful for benchmarks).
	DisableLogging bool
}

type routerHandlers struct {
	games       GameRegistry
	tournaments *tournament.Service
	starter     TournamentStarter
}

// NewRouter constructs the HTTP router with all middleware and REST routes.
//
// It has no side effects beyond the rate limiter's sweep goroutine when
// no RateLimiter is supplied: no listeners are opened. The WebSocket route is
// added by Server because it needs the Hub.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	if !cfg.DisableLogging {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)

	// Rate limiting before CORS to reject early
	rateLimiter := cfg.RateLimiter
	if rateLimiter == nil {
		rlCfg := RateLimitConfig{RequestsPerSecond: 10, Burst: 20}
		if cfg.RateLimitConfig != nil {
			rlCfg = *cfg.RateLimitConfig
		}
		rateLimiter = NewIPRateLimiter(rlCfg)
	}
	r.Use(rateLimiter.Middleware)

	corsOrigins := cfg.CORSOrigins
	if len(corsOrigins) == 0 {
		corsOrigins = []string{
			"http://localhost:*",
			"http://127.0.0.1:*",
		}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))

	h := &routerHandlers{
		games:       cfg.Games,
		tournaments: cfg.Tournaments,
		starter:     cfg.Starter,
	}
	if h.starter == nil {
		h.starter = cfg.Tournaments
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/games", h.handleListGames)
		r.Get("/games/{id}", h.handleGetGame)

		r.Route("/tournaments", func(r chi.Router) {
			r.Get("/", h.handleListTournaments)
			r.Post("/", h.handleCreateTournament)
			r.Get("/{id}", h.handleGetTournament)
			r.Delete("/{id}", h.handleDeleteTournament)
			r.Post("/{id}/join", h.handleJoinTournament)
			r.Post("/{id}/start", h.handleStartTournament)
		})
	})

	return r
}
