package httptransport

import (
	"expvar"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"bingo-hall/internal/config"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

// Deps carries the services the router dispatches to. Limiter may be nil.
type Deps struct {
	Lobby       Lobby
	Claims      Claims
	Games       Games
	Stream      Streamer
	Tournaments Tournaments
	Admin       AdminStore
	Limiter     RateLimiter
}

func NewRouter(deps Deps, cfg config.ServerConfig) *chi.Mux {
	gameHandlers := NewGameHandlers(deps.Lobby, deps.Claims, deps.Games, deps.Stream, deps.Limiter)
	tournamentHandlers := NewTournamentHandlers(deps.Tournaments)
	adminHandlers := NewAdminHandlers(deps.Admin)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)

	r.With(APILogMiddleware()).Get("/healthz", adminHandlers.Health())

	r.Route("/api", func(r chi.Router) {
		r.Use(APILogMiddleware())
		r.Get("/rooms", adminHandlers.Rooms())
		r.Post("/rooms/{room_id}/join", gameHandlers.Join())
		r.Get("/games/{game_id}", gameHandlers.State())
		r.Get("/games/{game_id}/ws", gameHandlers.Stream())
		r.Post("/games/{game_id}/leave", gameHandlers.Leave())
		r.Post("/games/{game_id}/claim", gameHandlers.Claim())
		r.Get("/players/{user_id}/stats", adminHandlers.Stats())
		r.Get("/tournaments/{tournament_id}/leaderboard", tournamentHandlers.Leaderboard())

		// Scheduler and payment callbacks share the admin key.
		r.Group(func(r chi.Router) {
			r.Use(AdminAuthMiddleware(cfg.AdminAPIKey))
			r.Post("/internal/games/{game_id}/calls", gameHandlers.RecordCall())
			r.Post("/internal/deposits", tournamentHandlers.Deposit())
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(AdminAuthMiddleware(cfg.AdminAPIKey))
			r.Get("/ledger", adminHandlers.Ledger())
			r.Post("/users", adminHandlers.Users())
			r.Post("/users/{user_id}/status", adminHandlers.UserStatus())
			r.Get("/wallets/{user_id}", adminHandlers.Wallet())
			r.Get("/games/{game_id}/audit", adminHandlers.GameAudit())
			r.Get("/bots/{bot_id}/earnings", adminHandlers.BotEarnings())
			r.Post("/topup", adminHandlers.Topup())
			r.Post("/rooms", adminHandlers.UpsertRoom())
			r.Post("/tournaments", adminHandlers.CreateTournament())
			r.Post("/tournaments/{tournament_id}/finalize", tournamentHandlers.Finalize())

			r.Route("/debug", func(r chi.Router) {
				r.Use(BodyCaptureMiddleware(4096))
				r.Get("/vars", expvar.Handler().ServeHTTP)
			})
		})
	})
	return r
}

func LogRoutes(r chi.Router) {
	type routeDef struct {
		Method string
		Path   string
	}
	routes := make([]routeDef, 0, 64)
	err := chi.Walk(r, func(method string, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		routes = append(routes, routeDef{Method: method, Path: route})
		return nil
	})
	if err != nil {
		log.Error().Err(err).Msg("walk routes failed")
		return
	}
	sort.Slice(routes, func(i, j int) bool {
		if routes[i].Path == routes[j].Path {
			return routes[i].Method < routes[j].Method
		}
		return routes[i].Path < routes[j].Path
	})
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Registered routes (%d):\n", len(routes)))
	for _, rt := range routes {
		b.WriteString(fmt.Sprintf("  %-6s %s\n", rt.Method, rt.Path))
	}
	fmt.Print(b.String())
}
