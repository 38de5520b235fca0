// internal/daily/service.go
//
// Daily challenge sessions.
// Responsibilities:
//   - One session per player per UTC day, keyed player|date, reused on reconnect.
//   - Refuse a second attempt once today's result is recorded or the session has ended.
//   - Forget sessions from previous days.
//   - Serve the leaderboard for a date (default today).

package daily

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/robalobadob/reelfling/internal/puzzle"
	"github.com/robalobadob/reelfling/internal/session"
)

var (
	ErrAlreadyPlayed = errors.New("daily: already played today")
	ErrNoSession     = errors.New("daily: no session for today")
	ErrBadDate       = errors.New("daily: date must be YYYY-MM-DD")
)

// LeaderboardLimit is the number of entries returned by Leaderboard.
const LeaderboardLimit = 20

// Options configure a Service. Store and Recorder may be nil.
type Options struct {
	Picker   Picker
	Store    Store
	Recorder session.Recorder
	Salt     string
	Policy   session.HintPolicy
	Now      func() time.Time // nil means time.Now
}

// Service hands out today's daily sessions.
type Service struct {
	opts Options
	now  func() time.Time

	mu       sync.Mutex
	sessions map[string]*session.Session // keyed player|date
}

// NewService builds a Service.
func NewService(opts Options) *Service {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Service{opts: opts, now: now, sessions: make(map[string]*session.Session)}
}

// Today is the current date key.
func (s *Service) Today() string { return DateKey(s.now()) }

// Start returns playerID's session for today, creating it on the first call.
func (s *Service) Start(ctx context.Context, playerID string) (*session.Session, error) {
	date := s.Today()
	if s.opts.Store != nil {
		played, err := s.opts.Store.AlreadyPlayed(ctx, playerID, date)
		if err != nil {
			return nil, fmt.Errorf("daily: check played: %w", err)
		}
		if played {
			return nil, ErrAlreadyPlayed
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked(date)

	key := playerID + "|" + date
	if sess, ok := s.sessions[key]; ok {
		if sess.Status().Terminal() {
			return nil, ErrAlreadyPlayed
		}
		return sess, nil
	}

	m, err := Pick(s.opts.Picker, date, s.opts.Salt)
	if err != nil {
		return nil, fmt.Errorf("daily: pick movie for %s: %w", date, err)
	}
	d := m.Difficulty
	if !d.Valid() {
		d = puzzle.Medium
	}
	sess := session.New(uuid.NewString(), playerID, s.opts.Policy, s.opts.Recorder)
	sess.Mode = session.ModeDaily
	sess.Date = date
	if err := sess.Start(m, d); err != nil {
		return nil, fmt.Errorf("daily: start %s: %w", date, err)
	}
	s.sessions[key] = sess
	return sess, nil
}

// Session looks up today's session for playerID and checks it is gameID.
func (s *Service) Session(playerID, gameID string) (*session.Session, error) {
	key := playerID + "|" + s.Today()
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[key]
	if !ok || sess.ID != gameID {
		return nil, ErrNoSession
	}
	return sess, nil
}

// Leaderboard returns the top entries for date. An empty date means today.
func (s *Service) Leaderboard(ctx context.Context, date string) (string, []Entry, error) {
	if date == "" {
		date = s.Today()
	}
	if _, err := time.Parse(time.DateOnly, date); err != nil {
		return date, nil, ErrBadDate
	}
	if s.opts.Store == nil {
		return date, []Entry{}, nil
	}
	rows, err := s.opts.Store.Leaderboard(ctx, date, LeaderboardLimit)
	if err != nil {
		return date, nil, err
	}
	if rows == nil {
		rows = []Entry{}
	}
	return date, rows, nil
}

// Len is the number of live sessions.
func (s *Service) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Service) pruneLocked(today string) {
	for k, sess := range s.sessions {
		if sess.Date != today {
			delete(s.sessions, k)
		}
	}
}
