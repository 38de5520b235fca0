// internal/movies/tmdb.go
//
// TMDb "discover" client.
//
// Responsibilities:
//   - Translate Criteria into discover query params (genre id, original language, region).
//   - Convert results into Movie (title upper-cased, year from release_date,
//     difficulty from popularity).
//   - Pick a random result matching the requested difficulty, or any result if none match.
//
// Notes:
//   - A missing API key is reported as ErrNoMovie so Fallback moves on quietly.
//   - "Hollywood" and "All" industries add no language filter.

package movies

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robalobadob/reelfling/internal/puzzle"
)

// DefaultTMDbBaseURL is the public v3 API root.
const DefaultTMDbBaseURL = "https://api.themoviedb.org/3"

var genreByID = map[int]string{
	28:    "Action",
	12:    "Adventure",
	16:    "Animation",
	35:    "Comedy",
	80:    "Crime",
	99:    "Documentary",
	18:    "Drama",
	10751: "Family",
	14:    "Fantasy",
	36:    "History",
	27:    "Horror",
	10402: "Music",
	9648:  "Mystery",
	10749: "Romance",
	878:   "Science Fiction",
	10770: "TV Movie",
	53:    "Thriller",
	10752: "War",
	37:    "Western",
}

type industryFilter struct {
	language string
	region   string
}

var industries = map[string]industryFilter{
	"bollywood":      {language: "hi", region: "IN"},
	"korean":         {language: "ko", region: "KR"},
	"japanese":       {language: "ja", region: "JP"},
	"french":         {language: "fr", region: "FR"},
	"spanish":        {language: "es"},
	"chinese cinema": {language: "zh"},
}

// DifficultyForPopularity maps TMDb popularity onto the game's difficulty scale.
func DifficultyForPopularity(p float64) puzzle.Difficulty {
	switch {
	case p > 50:
		return puzzle.Easy
	case p > 20:
		return puzzle.Medium
	default:
		return puzzle.Hard
	}
}

// GenreID returns the TMDb id for a genre name (case-insensitive).
func GenreID(name string) (int, bool) {
	for id, n := range genreByID {
		if strings.EqualFold(n, strings.TrimSpace(name)) {
			return id, true
		}
	}
	return 0, false
}

// TMDb implements Provider against the TMDb discover endpoint.
type TMDb struct {
	apiKey  string
	baseURL string
	client  *http.Client

	mu  sync.Mutex
	rng *rand.Rand
}

// NewTMDb builds a client. An empty baseURL selects DefaultTMDbBaseURL.
func NewTMDb(apiKey, baseURL string, timeout time.Duration) *TMDb {
	if baseURL == "" {
		baseURL = DefaultTMDbBaseURL
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &TMDb{
		apiKey:  apiKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

type discoverResponse struct {
	Results []struct {
		ID          int     `json:"id"`
		Title       string  `json:"title"`
		PosterPath  *string `json:"poster_path"`
		ReleaseDate string  `json:"release_date"`
		GenreIDs    []int   `json:"genre_ids"`
		Popularity  float64 `json:"popularity"`
		Overview    string  `json:"overview"`
	} `json:"results"`
}

// DiscoverURL renders the discover request for cr.
func (t *TMDb) DiscoverURL(cr Criteria) string {
	q := url.Values{}
	q.Set("api_key", t.apiKey)
	q.Set("language", "en-US")
	q.Set("sort_by", "popularity.desc")
	q.Set("page", "1")
	if !anyValue(cr.Genre) {
		if id, ok := GenreID(cr.Genre); ok {
			q.Set("with_genres", strconv.Itoa(id))
		}
	}
	if f, ok := industries[strings.ToLower(strings.TrimSpace(cr.Industry))]; ok {
		q.Set("with_original_language", f.language)
		if f.region != "" {
			q.Set("region", f.region)
		}
	}
	return t.baseURL + "/discover/movie?" + q.Encode()
}

// Discover fetches and converts one page of results.
func (t *TMDb) Discover(ctx context.Context, cr Criteria) ([]Movie, error) {
	if t.apiKey == "" {
		return nil, ErrNoMovie
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.DiscoverURL(cr), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	res, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tmdb discover: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tmdb discover: status %d", res.StatusCode)
	}

	var body discoverResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("tmdb decode: %w", err)
	}

	industry := strings.TrimSpace(cr.Industry)
	if industry == "" {
		industry = "Hollywood"
	}
	out := make([]Movie, 0, len(body.Results))
	for _, r := range body.Results {
		m := Movie{
			ID:          r.ID,
			Title:       strings.ToUpper(strings.TrimSpace(r.Title)),
			Description: r.Overview,
			Genre:       "Other",
			Industry:    industry,
			Difficulty:  DifficultyForPopularity(r.Popularity),
		}
		if r.PosterPath != nil {
			m.PosterPath = *r.PosterPath
		}
		if len(r.ReleaseDate) >= 4 {
			m.ReleaseYear, _ = strconv.Atoi(r.ReleaseDate[:4])
		}
		if len(r.GenreIDs) > 0 {
			if g, ok := genreByID[r.GenreIDs[0]]; ok {
				m.Genre = g
			}
		}
		if m.Description == "" {
			m.Description = "No description available for this movie."
		}
		if m.Validate() != nil {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// pool narrows results to the requested difficulty when possible.
func pool(list []Movie, d puzzle.Difficulty) []Movie {
	if d == "" {
		return list
	}
	var out []Movie
	for _, m := range list {
		if m.Difficulty == d {
			out = append(out, m)
		}
	}
	if len(out) == 0 {
		return list
	}
	return out
}

// Movie implements Provider.
func (t *TMDb) Movie(ctx context.Context, cr Criteria) (Movie, error) {
	list, err := t.Discover(ctx, cr)
	if err != nil {
		return Movie{}, err
	}
	p := pool(list, cr.Difficulty)
	if len(p) == 0 {
		return Movie{}, ErrNoMovie
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return p[t.rng.Intn(len(p))], nil
}

// Movies implements Provider with a single discover call.
// Fails with ErrNoMovie when the page has fewer distinct titles than count.
func (t *TMDb) Movies(ctx context.Context, cr Criteria, count int) ([]Movie, error) {
	if count <= 0 {
		return nil, nil
	}
	list, err := t.Discover(ctx, cr)
	if err != nil {
		return nil, err
	}
	p := pool(list, cr.Difficulty)
	if len(p) < count {
		p = list
	}
	if len(p) < count {
		return nil, ErrNoMovie
	}
	t.mu.Lock()
	t.rng.Shuffle(len(p), func(i, j int) { p[i], p[j] = p[j], p[i] })
	t.mu.Unlock()
	return append([]Movie(nil), p[:count]...), nil
}
