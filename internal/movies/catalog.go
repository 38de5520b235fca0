// internal/movies/catalog.go
//
// In-process movie catalog.
//
// Responsibilities:
//   - Load the catalog from a JSON file (MOVIES_FILE / --movies-file) or fall
//     back to the embedded assets/movies.json.
//   - Filter by genre, industry and difficulty, relaxing filters when nothing matches.
//   - Pick movies with an explicit *rand.Rand (seeded for the daily challenge,
//     time-seeded otherwise). The package never touches the global math/rand source.
//
// Filter relaxation mirrors the game's mock-data behavior:
//   1. genre + industry + difficulty
//   2. difficulty only
//   3. everything

package movies

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/robalobadob/reelfling/assets"
	"github.com/robalobadob/reelfling/internal/puzzle"
)

// Catalog is a fixed list of movies and implements Provider.
type Catalog struct {
	movies []Movie

	mu  sync.Mutex // guards rng
	rng *rand.Rand
}

// LoadCatalog reads path when set, otherwise the embedded catalog.
// Entries without a guessable title are dropped with a warning.
func LoadCatalog(path string) (*Catalog, error) {
	var (
		raw []byte
		err error
	)
	if path != "" {
		raw, err = os.ReadFile(path)
	} else {
		raw, err = assets.MoviesJSON()
	}
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var list []Movie
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	kept := list[:0]
	for _, m := range list {
		if err := m.Validate(); err != nil {
			log.Warn().Err(err).Int("movieId", m.ID).Msg("skipping catalog entry")
			continue
		}
		if !m.Difficulty.Valid() {
			m.Difficulty = puzzle.Medium
		}
		kept = append(kept, m)
	}
	if len(kept) == 0 {
		return nil, errors.New("movies: catalog is empty")
	}
	return NewCatalog(kept, nil), nil
}

// NewCatalog wraps list. A nil rng gets a time-seeded generator.
func NewCatalog(list []Movie, rng *rand.Rand) *Catalog {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Catalog{movies: list, rng: rng}
}

// Len is the number of movies loaded.
func (c *Catalog) Len() int { return len(c.movies) }

// Filter returns the candidate pool for cr after relaxation.
func (c *Catalog) Filter(cr Criteria) []Movie {
	var strict, byDiff []Movie
	for _, m := range c.movies {
		if cr.Difficulty != "" && m.Difficulty != cr.Difficulty {
			continue
		}
		byDiff = append(byDiff, m)
		if !anyValue(cr.Genre) && !strings.EqualFold(m.Genre, cr.Genre) {
			continue
		}
		if !anyValue(cr.Industry) && !strings.EqualFold(m.Industry, cr.Industry) {
			continue
		}
		strict = append(strict, m)
	}
	switch {
	case len(strict) > 0:
		return strict
	case len(byDiff) > 0:
		return byDiff
	default:
		return append([]Movie(nil), c.movies...)
	}
}

// Pick selects one movie with the supplied generator.
func (c *Catalog) Pick(rng *rand.Rand, cr Criteria) (Movie, error) {
	pool := c.Filter(cr)
	if len(pool) == 0 {
		return Movie{}, ErrNoMovie
	}
	return pool[rng.Intn(len(pool))], nil
}

// Movie implements Provider using the catalog's own generator.
func (c *Catalog) Movie(ctx context.Context, cr Criteria) (Movie, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Pick(c.rng, cr)
}

// Movies implements Provider. Movies are distinct while the pool allows it;
// a pool smaller than count is cycled.
func (c *Catalog) Movies(ctx context.Context, cr Criteria, count int) ([]Movie, error) {
	if count <= 0 {
		return nil, nil
	}
	pool := c.Filter(cr)
	if len(pool) == 0 {
		return nil, ErrNoMovie
	}

	c.mu.Lock()
	c.rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	c.mu.Unlock()

	out := make([]Movie, count)
	for i := range out {
		out[i] = pool[i%len(pool)]
	}
	return out, nil
}
