// internal/httpserver/server.go
//
// HTTP server wiring for the reelfling backend.
// Responsibilities:
//   - Router + middleware (JSON, CORS, timeouts, panic recovery, request IDs).
//   - Public endpoints: "/", "/health".
//   - Single-player endpoints: /game/*, mounted from routes_game.go.
//   - Daily Challenge endpoints: mounted under /daily.
//   - Multiplayer lobbies: /lobby/* (HTTP) and /lobby/{id}/ws (websocket).
//   - Anonymous identity cookie shared by single-player, daily and stats routes.
//
// Notes:
//   - CORS is origin-aware and credentials-enabled (so cookies work).
//   - The websocket route sits outside the request timeout; everything else is
//     bounded at 10s.

package httpserver

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/robalobadob/reelfling/internal/daily"
	"github.com/robalobadob/reelfling/internal/match"
	"github.com/robalobadob/reelfling/internal/movies"
	"github.com/robalobadob/reelfling/internal/progress"
	"github.com/robalobadob/reelfling/internal/results"
	"github.com/robalobadob/reelfling/internal/session"
	"github.com/robalobadob/reelfling/internal/store"
)

// Stats reads a player's profile page.
type Stats interface {
	Profile(ctx context.Context, playerID string) (progress.Profile, error)
	Recent(ctx context.Context, playerID string, limit int) ([]results.Played, error)
}

// Deps are the collaborators a Server routes to. Recorder, Stats and Ping may be nil.
type Deps struct {
	Sessions store.Store
	Daily    *daily.Service
	Lobbies  *match.Manager
	Provider movies.Provider
	Recorder session.Recorder
	Stats    Stats
	Ping     func(ctx context.Context) error

	Policy       session.HintPolicy
	TokenSecret  string
	TokenTTL     time.Duration // 0 means 24h
	ClientOrigin string        // CORS origin, default http://localhost:5173
	PublicURL    string        // base URL encoded in lobby QR codes
}

// requestTimeout bounds every handler except the websocket.
const requestTimeout = 10 * time.Second

// Server bundles the router and its dependencies.
type Server struct {
	r *chi.Mux
	Deps
	secureCookies bool
}

// New constructs a Server, installs middleware, and registers routes.
func New(d Deps) *Server {
	if d.ClientOrigin == "" {
		d.ClientOrigin = "http://localhost:5173"
	}
	if d.TokenTTL <= 0 {
		d.TokenTTL = 24 * time.Hour
	}
	if d.Sessions == nil {
		d.Sessions = store.NewMemoryStore()
	}
	s := &Server{
		r:             chi.NewRouter(),
		Deps:          d,
		secureCookies: strings.HasPrefix(d.ClientOrigin, "https://"),
	}

	// --- middleware ---
	s.r.Use(chimw.RequestID)      // add X-Request-ID
	s.r.Use(chimw.RealIP)         // set RemoteAddr from X-Forwarded-For etc.
	s.r.Use(chimw.Recoverer)      // recover from panics
	s.r.Use(jsonContentType)      // default JSON responses
	s.r.Use(cors(d.ClientOrigin)) // credentials-friendly CORS

	s.r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(requestTimeout)) // bound handler time

		// --- diagnostics ---
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"service":"reelfling","endpoints":["/health","POST /game/new","POST /daily/new","POST /lobby","/stats/me"]}`))
		})
		r.Get("/health", s.handleHealth)

		s.mountGame(r)
		s.mountDaily(r)
	})

	// Lobby routes apply the timeout themselves; the websocket is long-lived.
	s.mountLobby(s.r)

	// JSON 404 for easier debugging
	s.r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"not_found","path":"`+r.URL.Path+`"}`, http.StatusNotFound)
	})

	return s
}

// Handler exposes the router for http.Server and tests.
func (s *Server) Handler() http.Handler { return s.r }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.Ping != nil {
		if err := s.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"ok":false,"db":"unreachable"}`))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"ok":      true,
		"lobbies": s.lobbyCount(),
	})
}

func (s *Server) lobbyCount() int {
	if s.Lobbies == nil {
		return 0
	}
	return s.Lobbies.Len()
}

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
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ------------------------------ identity -----------------------------------

const anonCookieName = "reelfling_anon"

// ensureAnonID returns an existing anon cookie or sets a new one.
// It identifies the player for single-player, daily and stats routes.
func (s *Server) ensureAnonID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(anonCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	id := genID()
	sameSite := http.SameSiteLaxMode
	if s.secureCookies {
		sameSite = http.SameSiteNoneMode // required for cross-site cookies when Secure
	}
	http.SetCookie(w, &http.Cookie{
		Name:     anonCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: sameSite,
		Expires:  time.Now().Add(180 * 24 * time.Hour),
	})
	return id
}

// genID creates a 22-char URL-safe, crypto-random identifier (no padding).
func genID() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	s := base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(b[:])
	if len(s) > 22 {
		return s[:22]
	}
	return s
}

// decode reads a JSON body. An empty body leaves v untouched.
func decode(r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	return err == nil || errors.Is(err, io.EOF)
}
