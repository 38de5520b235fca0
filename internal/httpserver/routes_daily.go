// internal/httpserver/routes_daily.go
//
// HTTP routes for the "Daily Challenge" mode.
// Exposes four endpoints under /daily:
//   - POST /daily/new         → start a daily game (creates or reuses session)
//   - POST /daily/guess       → submit a letter for today's daily game
//   - POST /daily/hint        → spend a hint on today's daily game
//   - GET  /daily/leaderboard → fetch top 20 results for today (or a given date)
//
// Each player can play once per day (enforced by DB + in-memory session).
// The movie is chosen deterministically from the date and salt.

package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/reelfling/internal/daily"
	"github.com/robalobadob/reelfling/internal/session"
)

// mountDaily registers all /daily routes.
func (s *Server) mountDaily(r chi.Router) {
	r.Route("/daily", func(r chi.Router) {
		r.Use(s.requireDaily)
		r.Post("/new", s.handleDailyNew)
		r.Post("/guess", s.handleDailyGuess)
		r.Post("/hint", s.handleDailyHint)
		r.Get("/leaderboard", s.handleDailyLeaderboard)
	})
}

func (s *Server) requireDaily(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Daily == nil {
			http.Error(w, `{"error":"daily_unavailable"}`, http.StatusServiceUnavailable)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// dailyNewRes is returned by /daily/new. Game is absent when Played is true.
type dailyNewRes struct {
	GameID string        `json:"gameId"`
	Date   string        `json:"date"`
	Played bool          `json:"played"`
	Game   *session.View `json:"game,omitempty"`
}

// handleDailyNew creates or reuses today's session.
// A recorded result or a finished session for today reports Played=true.
func (s *Server) handleDailyNew(w http.ResponseWriter, r *http.Request) {
	uid := s.ensureAnonID(w, r)
	sess, err := s.Daily.Start(r.Context(), uid)
	if errors.Is(err, daily.ErrAlreadyPlayed) {
		_ = json.NewEncoder(w).Encode(dailyNewRes{Date: s.Daily.Today(), Played: true})
		return
	}
	if err != nil {
		log.Error().Err(err).Str("player", uid).Msg("start daily")
		http.Error(w, `{"error":"server_error"}`, http.StatusInternalServerError)
		return
	}
	v := sess.View()
	_ = json.NewEncoder(w).Encode(dailyNewRes{GameID: sess.ID, Date: sess.Date, Game: &v})
}

func (s *Server) handleDailyGuess(w http.ResponseWriter, r *http.Request) {
	var req letterReq
	if !decode(r, &req) {
		http.Error(w, `{"error":"bad_json"}`, http.StatusBadRequest)
		return
	}
	sess, ok := s.dailySession(w, r, req.GameID)
	if !ok {
		return
	}
	applyGuess(w, sess, req.Letter)
}

func (s *Server) handleDailyHint(w http.ResponseWriter, r *http.Request) {
	var req letterReq
	if !decode(r, &req) {
		http.Error(w, `{"error":"bad_json"}`, http.StatusBadRequest)
		return
	}
	sess, ok := s.dailySession(w, r, req.GameID)
	if !ok {
		return
	}
	applyHint(w, sess)
}

// dailySession finds today's session for the caller, which must match gameID.
func (s *Server) dailySession(w http.ResponseWriter, r *http.Request, gameID string) (*session.Session, bool) {
	if gameID == "" {
		http.Error(w, `{"error":"missing_game_id"}`, http.StatusBadRequest)
		return nil, false
	}
	sess, err := s.Daily.Session(s.ensureAnonID(w, r), gameID)
	if err != nil {
		http.Error(w, `{"error":"no_session"}`, http.StatusConflict)
		return nil, false
	}
	return sess, true
}

// lbRes is returned by /daily/leaderboard.
type lbRes struct {
	Date string        `json:"date"`
	Top  []daily.Entry `json:"top"`
}

// handleDailyLeaderboard returns the leaderboard for the given date (default today).
func (s *Server) handleDailyLeaderboard(w http.ResponseWriter, r *http.Request) {
	date, rows, err := s.Daily.Leaderboard(r.Context(), r.URL.Query().Get("date"))
	if errors.Is(err, daily.ErrBadDate) {
		http.Error(w, `{"error":"bad_date"}`, http.StatusBadRequest)
		return
	}
	if err != nil {
		log.Error().Err(err).Str("date", date).Msg("daily leaderboard")
		http.Error(w, `{"error":"server_error"}`, http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(lbRes{Date: date, Top: rows})
}
