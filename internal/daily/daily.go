// internal/daily/daily.go
//
// Deterministic daily movie selection.
// Responsibilities:
//   - DateKey: the UTC calendar day a challenge belongs to.
//   - Seed/Rand: a per-day generator derived from HMAC(salt, date).
//   - Pick: the day's movie from a catalog, identical for every player.

package daily

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"math/rand"
	"time"

	"github.com/robalobadob/reelfling/internal/movies"
)

// DateKey returns YYYY-MM-DD in UTC.
func DateKey(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}

// Seed derives a generator seed from HMAC(salt, date).
func Seed(date, salt string) int64 {
	h := hmac.New(sha256.New, []byte(salt))
	h.Write([]byte(date))
	sum := h.Sum(nil)
	// first 8 bytes are plenty of entropy for a seed
	return int64(binary.BigEndian.Uint64(sum[:8]))
}

// Rand returns a fresh generator for date. Never shared across calls.
func Rand(date, salt string) *rand.Rand {
	return rand.New(rand.NewSource(Seed(date, salt)))
}

// Picker selects a movie with a caller-supplied generator. *movies.Catalog implements it.
type Picker interface {
	Pick(rng *rand.Rand, cr movies.Criteria) (movies.Movie, error)
}

// Pick returns the movie for date. Every call with the same inputs agrees.
func Pick(p Picker, date, salt string) (movies.Movie, error) {
	return p.Pick(Rand(date, salt), movies.Criteria{})
}
