// internal/session/session.go
//
// Single-player session: one player, one movie, no timer.
// Responsibilities:
//   - Seed a fresh puzzle from a Movie at a chosen difficulty.
//   - Forward guesses to the puzzle engine.
//   - Manage the hint allowance under the configured HintPolicy.
//   - Report the finished game to a Recorder exactly once, off the request path.
//
// Notes:
//   - Sessions are shared between concurrent HTTP requests, so every method locks.
//   - Recorder failures are logged and otherwise ignored; they never touch game state.

package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/robalobadob/reelfling/internal/movies"
	"github.com/robalobadob/reelfling/internal/puzzle"
)

var (
	// ErrNoHintsLeft: the allowance is spent. Nothing changed.
	ErrNoHintsLeft = errors.New("session: no hints left")
	// ErrNoHintAvailable: every title consonant is already guessed. The allowance is kept.
	ErrNoHintAvailable = errors.New("session: no hint available")
	// ErrNotStarted: Start has not been called yet.
	ErrNotStarted = errors.New("session: not started")
	// ErrUnknownHintPolicy is returned by ParseHintPolicy.
	ErrUnknownHintPolicy = errors.New("session: unknown hint policy")
)

// HintPolicy decides how many hints a game grants.
type HintPolicy string

const (
	// PolicyDifficulty grants 2 hints on easy/medium and 1 on hard.
	PolicyDifficulty HintPolicy = "difficulty"
	// PolicyFixed grants exactly one hint per game.
	PolicyFixed HintPolicy = "fixed"
)

// ParseHintPolicy accepts "difficulty" (default when empty) or "fixed".
func ParseHintPolicy(s string) (HintPolicy, error) {
	switch HintPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyDifficulty:
		return PolicyDifficulty, nil
	case PolicyFixed:
		return PolicyFixed, nil
	}
	return "", ErrUnknownHintPolicy
}

// Allowance is the number of hints for a game at d.
func (p HintPolicy) Allowance(d puzzle.Difficulty) int {
	if p == PolicyFixed {
		return 1
	}
	return d.HintAllowance()
}

// Mode tags where a game was played.
type Mode string

const (
	ModeSingle Mode = "single"
	ModeDaily  Mode = "daily"
)

// GameResult is emitted once per finished game.
type GameResult struct {
	GameID     string
	PlayerID   string
	Mode       Mode
	Date       string // daily key, empty for ModeSingle
	MovieID    int
	Title      string
	Difficulty puzzle.Difficulty
	Won        bool
	Guessed    []string
	Incorrect  []string
	Strikes    int
	Elapsed    time.Duration
	FinishedAt time.Time
}

// Recorder persists finished games.
type Recorder interface {
	RecordGameResult(ctx context.Context, r GameResult) error
}

// recordTimeout bounds a single background RecordGameResult call.
const recordTimeout = 5 * time.Second

// Session is one player's game.
type Session struct {
	ID       string
	PlayerID string
	Mode     Mode
	Date     string

	policy   HintPolicy
	recorder Recorder
	now      func() time.Time

	mu         sync.Mutex
	movie      movies.Movie
	difficulty puzzle.Difficulty
	puzzle     *puzzle.State
	hintsLeft  int
	startedAt  time.Time
	finishedAt time.Time
	reported   bool
}

// New creates an idle session. rec may be nil.
func New(id, playerID string, policy HintPolicy, rec Recorder) *Session {
	if policy == "" {
		policy = PolicyDifficulty
	}
	return &Session{
		ID:       id,
		PlayerID: playerID,
		Mode:     ModeSingle,
		policy:   policy,
		recorder: rec,
		now:      time.Now,
	}
}

// Start seeds a fresh puzzle. A running game is discarded without being recorded.
func (s *Session) Start(m movies.Movie, d puzzle.Difficulty) error {
	if !d.Valid() {
		return puzzle.ErrUnknownDifficulty
	}
	p, err := puzzle.New(m.Title, d)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.movie = m
	s.difficulty = d
	s.puzzle = p
	s.hintsLeft = s.policy.Allowance(d)
	s.startedAt = s.now()
	s.finishedAt = time.Time{}
	s.reported = false
	// Vowel-only titles are already won.
	s.finishLocked()
	return nil
}

// Guess applies one letter. Invalid or repeated letters are silent no-ops.
func (s *Session) Guess(letter rune) puzzle.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.puzzle == nil {
		return puzzle.Ignored
	}
	out := s.puzzle.ApplyGuess(letter)
	if out != puzzle.Ignored {
		s.finishLocked()
	}
	return out
}

// UseHint reveals the most frequent unguessed consonant and returns it.
func (s *Session) UseHint() (rune, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.puzzle == nil {
		return 0, ErrNotStarted
	}
	if s.hintsLeft <= 0 {
		return 0, ErrNoHintsLeft
	}
	if s.puzzle.Status() != puzzle.StatusPlaying {
		return 0, ErrNoHintAvailable
	}
	letter, ok := s.puzzle.HintLetter()
	if !ok {
		return 0, ErrNoHintAvailable
	}
	s.hintsLeft--
	s.puzzle.ApplyGuess(letter)
	s.finishLocked()
	return letter, nil
}

// Status is the puzzle status, idle before Start.
func (s *Session) Status() puzzle.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.puzzle.Status()
}

// HintsLeft reports the remaining allowance.
func (s *Session) HintsLeft() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hintsLeft
}

// Movie returns the movie being played.
func (s *Session) Movie() movies.Movie {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.movie
}

// MovieView is the part of a Movie a player may see. ID, poster and
// description are withheld until the game is over.
type MovieView struct {
	ID          int    `json:"id,omitempty"`
	Genre       string `json:"genre,omitempty"`
	Industry    string `json:"industry,omitempty"`
	ReleaseYear int    `json:"releaseYear,omitempty"`
	PosterPath  string `json:"posterPath,omitempty"`
	Description string `json:"description,omitempty"`
}

// View is the transport snapshot of a session.
type View struct {
	GameID     string            `json:"gameId"`
	Mode       Mode              `json:"mode"`
	Date       string            `json:"date,omitempty"`
	Difficulty puzzle.Difficulty `json:"difficulty"`
	HintsLeft  int               `json:"hintsLeft"`
	ElapsedMs  int64             `json:"elapsedMs"`
	Movie      MovieView         `json:"movie"`
	puzzle.View
}

// View snapshots the session.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := View{
		GameID:     s.ID,
		Mode:       s.Mode,
		Date:       s.Date,
		Difficulty: s.difficulty,
		HintsLeft:  s.hintsLeft,
		Movie: MovieView{
			Genre:       s.movie.Genre,
			Industry:    s.movie.Industry,
			ReleaseYear: s.movie.ReleaseYear,
		},
	}
	if s.puzzle == nil {
		v.View = puzzle.View{Status: puzzle.StatusIdle, Guessed: []string{}, Incorrect: []string{}}
		return v
	}
	v.View = s.puzzle.View()
	v.ElapsedMs = s.elapsedLocked().Milliseconds()
	if v.Status.Terminal() {
		v.Movie.ID = s.movie.ID
		v.Movie.PosterPath = s.movie.PosterPath
		v.Movie.Description = s.movie.Description
	}
	return v
}

func (s *Session) elapsedLocked() time.Duration {
	if !s.finishedAt.IsZero() {
		return s.finishedAt.Sub(s.startedAt)
	}
	return s.now().Sub(s.startedAt)
}

// finishLocked stamps the finish time and reports the result once the puzzle is terminal.
func (s *Session) finishLocked() {
	if s.reported || !s.puzzle.Status().Terminal() {
		return
	}
	s.reported = true
	s.finishedAt = s.now()
	if s.recorder == nil {
		return
	}

	res := GameResult{
		GameID:     s.ID,
		PlayerID:   s.PlayerID,
		Mode:       s.Mode,
		Date:       s.Date,
		MovieID:    s.movie.ID,
		Title:      s.movie.Title,
		Difficulty: s.difficulty,
		Won:        s.puzzle.Status() == puzzle.StatusWon,
		Guessed:    s.puzzle.GuessedLetters(),
		Incorrect:  s.puzzle.IncorrectLetters(),
		Strikes:    s.puzzle.Strikes(),
		Elapsed:    s.finishedAt.Sub(s.startedAt),
		FinishedAt: s.finishedAt.UTC(),
	}
	rec := s.recorder
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()
		if err := rec.RecordGameResult(ctx, res); err != nil {
			log.Warn().Err(err).Str("gameId", res.GameID).Str("player", res.PlayerID).Msg("record game result")
		}
	}()
}
