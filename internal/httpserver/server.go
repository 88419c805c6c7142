// internal/httpserver/server.go
//
// HTTP server wiring for the wordler service.
// Responsibilities:
//   - Router + middleware (JSON, CORS, timeouts, panic recovery, request IDs).
//   - Public endpoints: "/", "/health", "/debug/words", leaderboards and stats.
//   - Game commands (require a player JWT): /games/*.
//   - Admin endpoints (require X-Admin-Key): token minting, scope settings.
//   - Websocket endpoint for direct messages and channel events: /ws.
//
// Notes:
//   - The websocket route sits outside the request timeout.
//   - Players never sign up here; a trusted frontend mints their tokens via /admin/tokens.

package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/language"

	"github.com/robalobadob/wordler/internal/game"
	"github.com/robalobadob/wordler/internal/notify"
	"github.com/robalobadob/wordler/internal/session"
	"github.com/robalobadob/wordler/internal/settings"
	"github.com/robalobadob/wordler/internal/stats"
)

// Dictionary describes the loaded word lists.
type Dictionary interface {
	Supports(tag language.Tag) bool
	Languages() []language.Tag
	Stats(tag language.Tag) (answers int, allowed int)
}

// Deps are the collaborators the handlers use.
type Deps struct {
	Registry       *session.Registry
	Stats          *stats.Aggregator
	Settings       *settings.Store
	Words          Dictionary
	Hub            *notify.Hub
	Auth           AuthConfig
	ClientOrigin   string
	RequestTimeout time.Duration
}

// Server bundles router and dependencies.
type Server struct {
	r        *chi.Mux
	http     *http.Server
	registry *session.Registry
	stats    *stats.Aggregator
	settings *settings.Store
	words    Dictionary
	hub      *notify.Hub
	auth     AuthConfig
}

// New constructs a Server, installs middleware, and registers routes.
func New(d Deps) *Server {
	s := &Server{
		r:        chi.NewRouter(),
		http:     &http.Server{ReadHeaderTimeout: 5 * time.Second},
		registry: d.Registry,
		stats:    d.Stats,
		settings: d.Settings,
		words:    d.Words,
		hub:      d.Hub,
		auth:     d.Auth,
	}
	timeout := d.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	// --- middleware ---
	s.r.Use(chimw.RequestID)      // add X-Request-ID
	s.r.Use(chimw.RealIP)         // set RemoteAddr from X-Forwarded-For etc.
	s.r.Use(requestLogger)        // zerolog access log
	s.r.Use(chimw.Recoverer)      // recover from panics
	s.r.Use(cors(d.ClientOrigin)) // credentials-friendly CORS

	s.r.With(s.requireAuth()).Get("/ws", s.handleWS)

	s.r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(timeout)) // bound handler time
		r.Use(jsonContentType)        // default JSON responses

		// --- diagnostics ---
		r.Get("/", s.handleHelp)
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"ok": true, "sessions": s.registry.Len()})
		})
		r.Get("/debug/words", s.handleDebugWords)

		// --- games (require auth) ---
		r.Route("/games", func(r chi.Router) {
			r.Use(s.requireAuth())
			r.Post("/solo", s.handleSolo)
			r.Post("/multiplayer", s.handleMultiplayer)
			r.Post("/guess", s.handleGuess)
			r.Post("/giveup", s.handleGiveUp)
			r.Get("/{id}", s.handleGetGame)
		})

		// --- stats ---
		r.Get("/leaderboard", s.handleLeaderboard)
		r.Get("/stats/{playerID}", s.handlePlayerStats)
		r.With(s.requireAuth()).Get("/points", s.handlePoints)

		// --- admin ---
		r.Route("/admin", func(r chi.Router) {
			r.Use(s.requireAdmin())
			r.Post("/tokens", s.handleMintToken)
			r.Get("/sessions", s.handleListSessions)
			r.Delete("/sessions/{id}", s.handleRemoveSession)
			r.Put("/scopes/{scopeID}/channel", s.handleSetChannel)
			r.Put("/scopes/{scopeID}/language", s.handleSetLanguage)
		})
	})

	// JSON 404 for easier debugging
	s.r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not_found", Message: r.URL.Path})
	})
	s.http.Handler = s.r

	return s
}

// Start listens on addr and serves until Shutdown, which makes it return nil.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Router exposes the internal router (useful for tests).
func (s *Server) Router() chi.Router { return s.r }

// ----------------------------- middleware ----------------------------------

// jsonContentType sets a default JSON Content-Type header on all responses.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		next.ServeHTTP(w, r)
	})
}

// cors enables credentialed CORS for a single origin.
func cors(origin string) func(http.Handler) http.Handler {
	if origin == "" {
		origin = "http://localhost:5173"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Admin-Key")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requestLogger writes one zerolog line per request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("requestId", chimw.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Msg("http request")
	})
}

// ------------------------------ diagnostics --------------------------------

func (s *Server) handleHelp(w http.ResponseWriter, r *http.Request) {
	scoring := make(map[int]int, 11)
	for n := 1; n <= 11; n++ {
		scoring[n] = game.ComputePoints(n)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "wordler",
		"endpoints": []string{
			"/health",
			"POST /games/solo",
			"POST /games/multiplayer",
			"POST /games/guess",
			"POST /games/giveup",
			"GET /games/{id}",
			"GET /leaderboard?scope=guild|global&scopeId=",
			"GET /points?scopeId=",
			"GET /stats/{playerID}",
			"GET /ws?channel=",
		},
		"rules": map[string]any{
			"wordLength":     game.WordLength,
			"multiplayer":    []int{game.MinMultiplayer, game.MaxMultiplayer},
			"pointsByGuess":  scoring,
			"multiplayerPts": 0,
		},
	})
}

func (s *Server) handleDebugWords(w http.ResponseWriter, r *http.Request) {
	out := map[string]map[string]int{}
	for _, tag := range s.words.Languages() {
		a, g := s.words.Stats(tag)
		out[tag.String()] = map[string]int{"answers": a, "allowed": g}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	me := currentUser(r)
	s.hub.ServeWS(w, r, me.ID, r.URL.Query().Get("channel"))
}

// ------------------------------ helpers ------------------------------------

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("encode response")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad_json", Message: err.Error()})
		return false
	}
	return true
}
