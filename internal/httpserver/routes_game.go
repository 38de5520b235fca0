// internal/httpserver/routes_game.go
//
// Single-player routes and the player's stats page.
//   - POST /game/new   {genre, industry, difficulty} → fresh session
//   - POST /game/guess {gameId, letter}              → apply one letter
//   - POST /game/hint  {gameId}                      → reveal a consonant
//   - GET  /game/{id}                                → current view
//   - GET  /stats/me                                 → profile + recent movies
//
// Sessions belong to the anonymous cookie that created them; other players get 404.
// The title only appears in a view once the game is over.

package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/reelfling/internal/movies"
	"github.com/robalobadob/reelfling/internal/progress"
	"github.com/robalobadob/reelfling/internal/puzzle"
	"github.com/robalobadob/reelfling/internal/results"
	"github.com/robalobadob/reelfling/internal/session"
	"github.com/robalobadob/reelfling/internal/store"
)

func (s *Server) mountGame(r chi.Router) {
	r.Post("/game/new", s.handleNewGame)
	r.Post("/game/guess", s.handleGuess)
	r.Post("/game/hint", s.handleHint)
	r.Get("/game/{id}", s.handleGetGame)
	r.Get("/stats/me", s.handleStats)
}

// newGameReq is the POST /game/new payload. Empty fields mean any genre,
// any industry and medium difficulty.
type newGameReq struct {
	Genre      string `json:"genre"`
	Industry   string `json:"industry"`
	Difficulty string `json:"difficulty"`
}

func (s *Server) handleNewGame(w http.ResponseWriter, r *http.Request) {
	var req newGameReq
	if !decode(r, &req) {
		http.Error(w, `{"error":"bad_json"}`, http.StatusBadRequest)
		return
	}
	d, err := puzzle.ParseDifficulty(req.Difficulty)
	if err != nil {
		http.Error(w, `{"error":"invalid_difficulty"}`, http.StatusBadRequest)
		return
	}
	if s.Provider == nil {
		http.Error(w, `{"error":"no_movies"}`, http.StatusServiceUnavailable)
		return
	}
	m, err := s.Provider.Movie(r.Context(), movies.Criteria{Genre: req.Genre, Industry: req.Industry, Difficulty: d})
	if err != nil {
		log.Warn().Err(err).Str("genre", req.Genre).Str("industry", req.Industry).Msg("no movie for new game")
		http.Error(w, `{"error":"no_movies"}`, http.StatusServiceUnavailable)
		return
	}

	sess := session.New(genID(), s.ensureAnonID(w, r), s.Policy, s.Recorder)
	if err := sess.Start(m, d); err != nil {
		log.Error().Err(err).Int("movieId", m.ID).Msg("start session")
		http.Error(w, `{"error":"bad_movie"}`, http.StatusInternalServerError)
		return
	}
	if err := s.Sessions.Save(r.Context(), sess); err != nil {
		log.Error().Err(err).Msg("save session")
		http.Error(w, `{"error":"save_failed"}`, http.StatusInternalServerError)
		return
	}
	log.Debug().Str("gameId", sess.ID).Int("movieId", m.ID).Str("difficulty", string(d)).Msg("game started")
	_ = json.NewEncoder(w).Encode(sess.View())
}

// letterReq carries one letter for a session (single-player or daily).
type letterReq struct {
	GameID string `json:"gameId"`
	Letter string `json:"letter"`
}

// guessRes is a session view plus what the letter did.
type guessRes struct {
	Outcome string `json:"outcome"` // ignored | revealed | strike
	session.View
}

// hintRes is a session view plus the revealed letter.
type hintRes struct {
	Letter string `json:"letter"`
	session.View
}

func (s *Server) handleGuess(w http.ResponseWriter, r *http.Request) {
	var req letterReq
	if !decode(r, &req) {
		http.Error(w, `{"error":"bad_json"}`, http.StatusBadRequest)
		return
	}
	sess, ok := s.ownedSession(w, r, req.GameID)
	if !ok {
		return
	}
	applyGuess(w, sess, req.Letter)
}

func (s *Server) handleHint(w http.ResponseWriter, r *http.Request) {
	var req letterReq
	if !decode(r, &req) {
		http.Error(w, `{"error":"bad_json"}`, http.StatusBadRequest)
		return
	}
	sess, ok := s.ownedSession(w, r, req.GameID)
	if !ok {
		return
	}
	applyHint(w, sess)
}

func (s *Server) handleGetGame(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.ownedSession(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	_ = json.NewEncoder(w).Encode(sess.View())
}

// ownedSession loads a single-player session for the caller, writing the error response itself.
func (s *Server) ownedSession(w http.ResponseWriter, r *http.Request, id string) (*session.Session, bool) {
	if id == "" {
		http.Error(w, `{"error":"missing_game_id"}`, http.StatusBadRequest)
		return nil, false
	}
	sess, err := s.Sessions.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) || (err == nil && sess.PlayerID != s.ensureAnonID(w, r)) {
		http.Error(w, `{"error":"not_found"}`, http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		log.Error().Err(err).Str("gameId", id).Msg("load session")
		http.Error(w, `{"error":"server_error"}`, http.StatusInternalServerError)
		return nil, false
	}
	return sess, true
}

// applyGuess is shared by /game/guess and /daily/guess. Anything but a single
// character is a malformed request; a single non-letter is a silent no-op.
func applyGuess(w http.ResponseWriter, sess *session.Session, letter string) {
	if utf8.RuneCountInString(letter) != 1 {
		http.Error(w, `{"error":"invalid_letter"}`, http.StatusBadRequest)
		return
	}
	rn, _ := utf8.DecodeRuneInString(letter)
	out := sess.Guess(rn)
	_ = json.NewEncoder(w).Encode(guessRes{Outcome: outcomeName(out), View: sess.View()})
}

// applyHint is shared by /game/hint and /daily/hint.
func applyHint(w http.ResponseWriter, sess *session.Session) {
	letter, err := sess.UseHint()
	switch {
	case errors.Is(err, session.ErrNoHintsLeft):
		http.Error(w, `{"error":"no_hints_left"}`, http.StatusConflict)
		return
	case errors.Is(err, session.ErrNoHintAvailable):
		http.Error(w, `{"error":"no_hint_available"}`, http.StatusConflict)
		return
	case err != nil:
		http.Error(w, `{"error":"not_started"}`, http.StatusConflict)
		return
	}
	_ = json.NewEncoder(w).Encode(hintRes{Letter: string(letter), View: sess.View()})
}

func outcomeName(o puzzle.Outcome) string {
	switch o {
	case puzzle.Revealed:
		return "revealed"
	case puzzle.Strike:
		return "strike"
	}
	return "ignored"
}

// statsRes is the GET /stats/me payload.
type statsRes struct {
	PlayerID string           `json:"playerId"`
	Profile  progress.Profile `json:"profile"`
	Recent   []results.Played `json:"recent"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.Stats == nil {
		http.Error(w, `{"error":"stats_unavailable"}`, http.StatusServiceUnavailable)
		return
	}
	id := s.ensureAnonID(w, r)
	p, err := s.Stats.Profile(r.Context(), id)
	if err != nil {
		log.Warn().Err(err).Str("player", id).Msg("load profile")
		http.Error(w, `{"error":"db_error"}`, http.StatusInternalServerError)
		return
	}
	recent, err := s.Stats.Recent(r.Context(), id, 0)
	if err != nil {
		log.Warn().Err(err).Str("player", id).Msg("load recent movies")
		http.Error(w, `{"error":"db_error"}`, http.StatusInternalServerError)
		return
	}
	if recent == nil {
		recent = []results.Played{}
	}
	_ = json.NewEncoder(w).Encode(statsRes{PlayerID: id, Profile: p, Recent: recent})
}
