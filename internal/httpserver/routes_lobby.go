// internal/httpserver/routes_lobby.go
//
// Multiplayer lobby routes.
//   - POST /lobby            {name, passcode?, settings?} → create + join as host
//   - POST /lobby/{id}/join  {name, passcode?}            → join as player
//   - GET  /lobby/{id}                                    → public snapshot
//   - GET  /lobby/{id}/qr                                 → PNG share code
//   - GET  /lobby/{id}/ws?token=                          → websocket (ws.go)
//
// Both POSTs return a player token for the websocket.
// Private lobbies keep only a bcrypt hash of their passcode.

package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/skip2/go-qrcode"
	"golang.org/x/crypto/bcrypt"

	"github.com/robalobadob/reelfling/internal/match"
	"github.com/robalobadob/reelfling/internal/puzzle"
)

// qrSize is the PNG edge in pixels (mobile-friendly).
const qrSize = 320

func (s *Server) mountLobby(r chi.Router) {
	r.Route("/lobby", func(r chi.Router) {
		r.Use(s.requireLobbies)
		r.Get("/{id}/ws", s.handleLobbyWS)
		r.Group(func(r chi.Router) {
			r.Use(chimw.Timeout(requestTimeout))
			r.Post("/", s.handleCreateLobby)
			r.Post("/{id}/join", s.handleJoinLobby)
			r.Get("/{id}", s.handleGetLobby)
			r.Get("/{id}/qr", s.handleLobbyQR)
		})
	})
}

func (s *Server) requireLobbies(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Lobbies == nil {
			http.Error(w, `{"error":"lobbies_unavailable"}`, http.StatusServiceUnavailable)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// lobbySettings is the host's optional initial configuration.
type lobbySettings struct {
	Difficulty  string `json:"difficulty"`
	TotalRounds int    `json:"totalRounds"`
	Genre       string `json:"genre"`
	Industry    string `json:"industry"`
}

type createLobbyReq struct {
	Name     string         `json:"name"`
	Passcode string         `json:"passcode"`
	Settings *lobbySettings `json:"settings"`
}

type joinLobbyReq struct {
	Name     string `json:"name"`
	Passcode string `json:"passcode"`
}

// ticketRes grants a seat in a lobby.
type ticketRes struct {
	LobbyID  string `json:"lobbyId"`
	PlayerID string `json:"playerId"`
	Token    string `json:"token"`
	Host     bool   `json:"host"`
}

// lobbyRes is the public lobby view.
type lobbyRes struct {
	match.Snapshot
	Private bool `json:"private"`
}

func (s *Server) handleCreateLobby(w http.ResponseWriter, r *http.Request) {
	var req createLobbyReq
	if !decode(r, &req) {
		http.Error(w, `{"error":"bad_json"}`, http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		http.Error(w, `{"error":"invalid_name"}`, http.StatusBadRequest)
		return
	}
	settings, err := req.Settings.resolve()
	if err != nil {
		http.Error(w, `{"error":"`+match.ErrorCode(err)+`"}`, http.StatusBadRequest)
		return
	}

	var hash []byte
	if req.Passcode != "" {
		hash, err = bcrypt.GenerateFromPassword([]byte(req.Passcode), bcrypt.DefaultCost)
		if err != nil {
			log.Error().Err(err).Msg("hash lobby passcode")
			http.Error(w, `{"error":"server_error"}`, http.StatusInternalServerError)
			return
		}
	}

	l, err := s.Lobbies.Create(settings, hash)
	if err != nil {
		http.Error(w, `{"error":"`+match.ErrorCode(err)+`"}`, http.StatusBadRequest)
		return
	}
	ticket, status, err := s.seat(r, l, req.Name)
	if err != nil {
		s.Lobbies.Remove(l.ID)
		http.Error(w, `{"error":"`+match.ErrorCode(err)+`"}`, status)
		return
	}
	ticket.Host = true
	log.Info().Str("lobby", l.ID).Bool("private", hash != nil).Msg("lobby created")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(ticket)
}

func (s *Server) handleJoinLobby(w http.ResponseWriter, r *http.Request) {
	l, ok := s.lobby(w, r)
	if !ok {
		return
	}
	var req joinLobbyReq
	if !decode(r, &req) {
		http.Error(w, `{"error":"bad_json"}`, http.StatusBadRequest)
		return
	}
	if len(l.PasscodeHash) > 0 && bcrypt.CompareHashAndPassword(l.PasscodeHash, []byte(req.Passcode)) != nil {
		http.Error(w, `{"error":"bad_passcode"}`, http.StatusForbidden)
		return
	}
	ticket, status, err := s.seat(r, l, req.Name)
	if err != nil {
		http.Error(w, `{"error":"`+match.ErrorCode(err)+`"}`, status)
		return
	}
	_ = json.NewEncoder(w).Encode(ticket)
}

// seat joins a fresh player to l and signs their token.
func (s *Server) seat(r *http.Request, l *match.Lobby, name string) (ticketRes, int, error) {
	playerID := uuid.NewString()
	if err := l.Submit(r.Context(), match.Command{Kind: match.CmdJoin, PlayerID: playerID, Name: name}); err != nil {
		return ticketRes{}, joinStatus(err), err
	}
	tok, err := s.signPlayerToken(l.ID, playerID, match.DisplayName(name))
	if err != nil {
		log.Error().Err(err).Msg("sign player token")
		return ticketRes{}, http.StatusInternalServerError, err
	}
	return ticketRes{LobbyID: l.ID, PlayerID: playerID, Token: tok}, http.StatusOK, nil
}

func joinStatus(err error) int {
	switch {
	case errors.Is(err, match.ErrLobbyFull), errors.Is(err, match.ErrWrongPhase):
		return http.StatusConflict
	case errors.Is(err, match.ErrLobbyClosed):
		return http.StatusGone
	}
	return http.StatusBadRequest
}

func (s *Server) handleGetLobby(w http.ResponseWriter, r *http.Request) {
	l, ok := s.lobby(w, r)
	if !ok {
		return
	}
	snap, err := l.Snapshot(r.Context(), "")
	if err != nil {
		http.Error(w, `{"error":"`+match.ErrorCode(err)+`"}`, http.StatusGone)
		return
	}
	_ = json.NewEncoder(w).Encode(lobbyRes{Snapshot: snap, Private: len(l.PasscodeHash) > 0})
}

// handleLobbyQR encodes the lobby's join URL as a PNG.
func (s *Server) handleLobbyQR(w http.ResponseWriter, r *http.Request) {
	l, ok := s.lobby(w, r)
	if !ok {
		return
	}
	png, err := qrcode.Encode(s.joinURL(r, l.ID), qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, `{"error":"qr_failed"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

// joinURL is PublicURL/lobby/{id}, or derived from the request when unset.
func (s *Server) joinURL(r *http.Request, id string) string {
	base := strings.TrimSuffix(s.PublicURL, "/")
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}
		base = scheme + "://" + r.Host
	}
	return base + "/lobby/" + id
}

// lobby resolves {id}, writing a 404 when it is unknown.
func (s *Server) lobby(w http.ResponseWriter, r *http.Request) (*match.Lobby, bool) {
	l, err := s.Lobbies.Get(strings.ToUpper(chi.URLParam(r, "id")))
	if err != nil {
		http.Error(w, `{"error":"lobby_not_found"}`, http.StatusNotFound)
		return nil, false
	}
	return l, true
}

// resolve fills unset fields from match.DefaultSettings.
func (ls *lobbySettings) resolve() (match.Settings, error) {
	out := match.DefaultSettings()
	if ls == nil {
		return out, nil
	}
	if ls.Difficulty != "" {
		d, err := puzzle.ParseDifficulty(ls.Difficulty)
		if err != nil {
			return out, err
		}
		out.Difficulty = d
	}
	if ls.TotalRounds != 0 {
		out.TotalRounds = ls.TotalRounds
	}
	out.Genre = ls.Genre
	out.Industry = ls.Industry
	return out, out.Validate()
}
