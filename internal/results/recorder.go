// internal/results/recorder.go
//
// Result recording and read-back.
// Responsibilities:
//   - RecordGameResult: fold a finished game into the player's profile, log the
//     movie (last 50 kept) and, for daily games, insert the day's result once.
//   - RecordSessionRank: one row per ranked finish in a multiplayer round.
//   - Profile/Recent: the player's stats page.
//   - AlreadyPlayed/Leaderboard: daily challenge reads.

package results

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/robalobadob/reelfling/internal/daily"
	"github.com/robalobadob/reelfling/internal/match"
	"github.com/robalobadob/reelfling/internal/progress"
	"github.com/robalobadob/reelfling/internal/puzzle"
	"github.com/robalobadob/reelfling/internal/session"
)

var (
	_ session.Recorder   = (*Store)(nil)
	_ match.RankRecorder = (*Store)(nil)
	_ daily.Store        = (*Store)(nil)
)

// Played is one entry of a player's movie history.
type Played struct {
	MovieID    int               `json:"movieId"`
	Title      string            `json:"title"`
	Result     string            `json:"result"` // won | lost
	Difficulty puzzle.Difficulty `json:"difficulty"`
	PlayedAt   string            `json:"playedAt"`
}

// RecordGameResult implements session.Recorder.
// A second daily result for the same player and date is dropped whole.
func (s *Store) RecordGameResult(ctx context.Context, r session.GameResult) error {
	s.profileMu.Lock()
	defer s.profileMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	now := s.stamp()
	if r.Mode == session.ModeDaily {
		res, err := tx.ExecContext(ctx, s.rebind(s.dialect.InsertDailyQuery()),
			r.PlayerID, r.Date, r.MovieID, boolInt(r.Won), r.Strikes, r.Elapsed.Milliseconds(), now)
		if err != nil {
			return fmt.Errorf("insert daily result: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			log.Warn().Str("player", r.PlayerID).Str("date", r.Date).Msg("duplicate daily result ignored")
			return nil
		}
	}

	p, err := loadProfile(ctx, tx, s.rebind, r.PlayerID)
	if err != nil {
		return err
	}
	earned := p.Apply(r.Won, r.Difficulty, len(r.Incorrect))
	if r.Mode == session.ModeDaily {
		p.ApplyDaily(r.Date)
	}
	if _, err := tx.ExecContext(ctx, s.rebind(s.dialect.UpsertProfileQuery()),
		p.PlayerID, p.GamesPlayed, p.Wins, p.Losses, p.Streak, p.HighestStreak,
		p.XP, p.Level, p.DailyStreak, p.LastDaily, now); err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}

	if _, err := tx.ExecContext(ctx, s.rebind(`
		INSERT INTO played_movies (player_id, movie_id, title, result, difficulty, guessed, incorrect, played_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		r.PlayerID, r.MovieID, r.Title, resultWord(r.Won), string(r.Difficulty),
		strings.Join(r.Guessed, ""), strings.Join(r.Incorrect, ""), now); err != nil {
		return fmt.Errorf("insert played movie: %w", err)
	}
	if err := prunePlayed(ctx, tx, s.rebind, r.PlayerID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	log.Debug().Str("player", r.PlayerID).Str("mode", string(r.Mode)).Bool("won", r.Won).
		Int("xp", earned).Int("level", p.Level).Msg("game recorded")
	return nil
}

// RecordSessionRank implements match.RankRecorder.
func (s *Store) RecordSessionRank(ctx context.Context, r match.RankRecord) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO session_ranks (match_id, round, player_id, display_name, player_rank, completion_time, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		r.MatchID, r.Round, r.PlayerID, r.Name, r.Rank, r.CompletionTime, s.stamp())
	if err != nil {
		return fmt.Errorf("insert session rank: %w", err)
	}
	return nil
}

// Profile returns the player's profile, or a fresh one if nothing is recorded.
func (s *Store) Profile(ctx context.Context, playerID string) (progress.Profile, error) {
	return loadProfile(ctx, s.db, s.rebind, playerID)
}

// Recent lists the player's most recent movies, newest first.
func (s *Store) Recent(ctx context.Context, playerID string, limit int) ([]Played, error) {
	if limit <= 0 || limit > progress.MaxRecent {
		limit = progress.MaxRecent
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT movie_id, title, result, difficulty, played_at
		FROM played_movies
		WHERE player_id=?
		ORDER BY id DESC
		LIMIT ?`), playerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Played, 0, limit)
	for rows.Next() {
		var p Played
		var d string
		if err := rows.Scan(&p.MovieID, &p.Title, &p.Result, &d, &p.PlayedAt); err != nil {
			return nil, err
		}
		p.Difficulty = puzzle.Difficulty(d)
		out = append(out, p)
	}
	return out, rows.Err()
}

// AlreadyPlayed implements daily.Store.
func (s *Store) AlreadyPlayed(ctx context.Context, playerID, date string) (bool, error) {
	var cnt int
	if err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT COUNT(1) FROM daily_results WHERE player_id=? AND date=?`),
		playerID, date,
	).Scan(&cnt); err != nil {
		return false, err
	}
	return cnt > 0, nil
}

// Leaderboard implements daily.Store: winners only, fewest strikes, then fastest,
// then first to finish.
func (s *Store) Leaderboard(ctx context.Context, date string, limit int) ([]daily.Entry, error) {
	if limit <= 0 {
		limit = daily.LeaderboardLimit
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT player_id, strikes, elapsed_ms
		FROM daily_results
		WHERE date=? AND won=1
		ORDER BY strikes ASC, elapsed_ms ASC, created_at ASC
		LIMIT ?`), date, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]daily.Entry, 0, limit)
	for rows.Next() {
		e := daily.Entry{Position: len(out) + 1}
		if err := rows.Scan(&e.PlayerID, &e.Strikes, &e.ElapsedMs); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// querier is the read side shared by *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func loadProfile(ctx context.Context, q querier, rebind func(string) string, playerID string) (progress.Profile, error) {
	p := progress.New(playerID)
	err := q.QueryRowContext(ctx, rebind(`
		SELECT games_played, wins, losses, streak, highest_streak, xp, level, daily_streak, last_daily
		FROM profiles WHERE player_id=?`), playerID,
	).Scan(&p.GamesPlayed, &p.Wins, &p.Losses, &p.Streak, &p.HighestStreak, &p.XP, &p.Level, &p.DailyStreak, &p.LastDaily)
	if errors.Is(err, sql.ErrNoRows) {
		return p, nil
	}
	if err != nil {
		return p, fmt.Errorf("load profile: %w", err)
	}
	p.NextLevelXP = progress.LevelThreshold(p.Level + 1)
	return p, nil
}

// prunePlayed keeps the newest progress.MaxRecent rows for playerID.
func prunePlayed(ctx context.Context, tx *sql.Tx, rebind func(string) string, playerID string) error {
	var oldestKept int64
	err := tx.QueryRowContext(ctx, rebind(`
		SELECT id FROM played_movies WHERE player_id=? ORDER BY id DESC LIMIT 1 OFFSET ?`),
		playerID, progress.MaxRecent-1,
	).Scan(&oldestKept)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("find prune point: %w", err)
	}
	if _, err := tx.ExecContext(ctx, rebind(`DELETE FROM played_movies WHERE player_id=? AND id < ?`),
		playerID, oldestKept); err != nil {
		return fmt.Errorf("prune played movies: %w", err)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func resultWord(won bool) string {
	if won {
		return "won"
	}
	return "lost"
}
