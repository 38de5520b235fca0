// internal/movies/fallback.go
//
// Provider chain: try each source in order, first valid answer wins.
// Typical wiring is Fallback{tmdb, catalog}: live data when reachable,
// embedded catalog otherwise.

package movies

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Fallback queries providers in order.
type Fallback []Provider

// Movie implements Provider.
func (f Fallback) Movie(ctx context.Context, cr Criteria) (Movie, error) {
	var errs []error
	for i, p := range f {
		m, err := p.Movie(ctx, cr)
		if err == nil {
			err = m.Validate()
		}
		if err == nil {
			return m, nil
		}
		logSkip(i, err)
		errs = append(errs, err)
	}
	return Movie{}, exhausted(errs)
}

// Movies implements Provider. A provider's batch is accepted only if every
// entry is valid and the count matches.
func (f Fallback) Movies(ctx context.Context, cr Criteria, count int) ([]Movie, error) {
	var errs []error
	for i, p := range f {
		list, err := p.Movies(ctx, cr, count)
		if err == nil && len(list) != count {
			err = fmt.Errorf("got %d movies, want %d", len(list), count)
		}
		if err == nil {
			for _, m := range list {
				if err = m.Validate(); err != nil {
					break
				}
			}
		}
		if err == nil {
			return list, nil
		}
		logSkip(i, err)
		errs = append(errs, err)
	}
	return nil, exhausted(errs)
}

func logSkip(i int, err error) {
	if errors.Is(err, ErrNoMovie) {
		log.Debug().Err(err).Int("provider", i).Msg("movie provider empty, trying next")
		return
	}
	log.Warn().Err(err).Int("provider", i).Msg("movie provider failed, trying next")
}

func exhausted(errs []error) error {
	if len(errs) == 0 {
		return ErrNoMovie
	}
	return fmt.Errorf("%w: %w", ErrNoMovie, errors.Join(errs...))
}
