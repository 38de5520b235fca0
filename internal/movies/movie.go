// internal/movies/movie.go
//
// Movie record and the provider contract consumed by the game engine.
//
// A Provider returns movies matching loose criteria (genre, industry, difficulty).
// Providers may fail or come back empty; orchestration (session/match setup)
// chains them with Fallback so the puzzle only ever sees a valid Movie.

package movies

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/robalobadob/reelfling/internal/puzzle"
)

// ErrNoMovie means a provider had nothing matching the criteria.
var ErrNoMovie = errors.New("movies: no movie available")

// Movie is read-only to the engine. Only Title and Difficulty drive gameplay.
type Movie struct {
	ID          int               `json:"id"`
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	PosterPath  string            `json:"posterPath,omitempty"`
	ReleaseYear int               `json:"releaseYear,omitempty"`
	Genre       string            `json:"genre,omitempty"`
	Industry    string            `json:"industry,omitempty"`
	Difficulty  puzzle.Difficulty `json:"difficulty"`
}

// Validate checks the invariant the puzzle depends on: a title with at least one letter.
func (m Movie) Validate() error {
	if strings.TrimSpace(m.Title) == "" || !puzzle.HasLetter(m.Title) {
		return fmt.Errorf("movie %d: %w", m.ID, puzzle.ErrNoLetters)
	}
	return nil
}

// Criteria narrows movie selection. Empty Genre/Industry or "All" mean any.
type Criteria struct {
	Genre      string            `json:"genre"`
	Industry   string            `json:"industry"`
	Difficulty puzzle.Difficulty `json:"difficulty"`
}

// Provider sources movies for sessions and matches.
type Provider interface {
	// Movie returns one movie for the criteria or ErrNoMovie.
	Movie(ctx context.Context, c Criteria) (Movie, error)

	// Movies returns count movies, one per multiplayer round.
	Movies(ctx context.Context, c Criteria, count int) ([]Movie, error)
}

// anyValue reports whether a filter value means "no filter".
func anyValue(v string) bool {
	v = strings.TrimSpace(v)
	return v == "" || strings.EqualFold(v, "all")
}
