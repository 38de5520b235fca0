package movies

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/robalobadob/reelfling/internal/puzzle"
)

func testCatalog() *Catalog {
	return NewCatalog([]Movie{
		{ID: 1, Title: "INCEPTION", Genre: "Science Fiction", Industry: "Hollywood", Difficulty: puzzle.Medium},
		{ID: 2, Title: "PARASITE", Genre: "Drama", Industry: "Korean", Difficulty: puzzle.Hard},
		{ID: 3, Title: "OLDBOY", Genre: "Thriller", Industry: "Korean", Difficulty: puzzle.Hard},
		{ID: 4, Title: "TITANIC", Genre: "Romance", Industry: "Hollywood", Difficulty: puzzle.Easy},
		{ID: 5, Title: "GET OUT", Genre: "Horror", Industry: "Hollywood", Difficulty: puzzle.Medium},
	}, rand.New(rand.NewSource(1)))
}

func ids(list []Movie) map[int]bool {
	out := map[int]bool{}
	for _, m := range list {
		out[m.ID] = true
	}
	return out
}

func TestCatalogFilter(t *testing.T) {
	c := testCatalog()
	tests := []struct {
		name string
		cr   Criteria
		want []int
	}{
		{"strict match", Criteria{Genre: "Drama", Industry: "Korean", Difficulty: puzzle.Hard}, []int{2}},
		{"case-insensitive", Criteria{Genre: "drama", Industry: "KOREAN", Difficulty: puzzle.Hard}, []int{2}},
		{"all means any", Criteria{Genre: "All", Industry: "all", Difficulty: puzzle.Medium}, []int{1, 5}},
		{"relax to difficulty", Criteria{Genre: "Western", Difficulty: puzzle.Hard}, []int{2, 3}},
		{"no difficulty", Criteria{Industry: "Korean"}, []int{2, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ids(c.Filter(tt.cr))
			if len(got) != len(tt.want) {
				t.Fatalf("Filter(%+v) = %v, want %v", tt.cr, got, tt.want)
			}
			for _, id := range tt.want {
				if !got[id] {
					t.Fatalf("Filter(%+v) missing %d: %v", tt.cr, id, got)
				}
			}
		})
	}

	empty := NewCatalog([]Movie{{ID: 9, Title: "UP", Difficulty: puzzle.Easy}}, nil)
	if got := empty.Filter(Criteria{Difficulty: puzzle.Hard}); len(got) != 1 {
		t.Fatalf("unmatched difficulty should fall back to everything, got %d", len(got))
	}
}

func TestCatalogPickIsDeterministicForSeed(t *testing.T) {
	c := testCatalog()
	a, err := c.Pick(rand.New(rand.NewSource(42)), Criteria{})
	if err != nil {
		t.Fatal(err)
	}
	b, _ := c.Pick(rand.New(rand.NewSource(42)), Criteria{})
	if a.ID != b.ID {
		t.Fatalf("same seed picked %d and %d", a.ID, b.ID)
	}
}

func TestCatalogMovies(t *testing.T) {
	c := testCatalog()
	list, err := c.Movies(context.Background(), Criteria{Difficulty: puzzle.Hard}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID == list[1].ID {
		t.Fatalf("expected two distinct hard movies, got %+v", list)
	}

	cycled, err := c.Movies(context.Background(), Criteria{Difficulty: puzzle.Easy}, 3)
	if err != nil || len(cycled) != 3 {
		t.Fatalf("cycled pool: %v %d", err, len(cycled))
	}
	for _, m := range cycled {
		if m.ID != 4 {
			t.Fatalf("unexpected movie %d in easy pool", m.ID)
		}
	}
}

func TestLoadCatalogEmbedded(t *testing.T) {
	c, err := LoadCatalog("")
	if err != nil {
		t.Fatal(err)
	}
	if c.Len() < 10 {
		t.Fatalf("embedded catalog has %d movies", c.Len())
	}
	for _, d := range []puzzle.Difficulty{puzzle.Easy, puzzle.Medium, puzzle.Hard} {
		for _, m := range c.Filter(Criteria{Difficulty: d}) {
			if m.Difficulty != d {
				t.Fatalf("%s pool contains %s movie %q", d, m.Difficulty, m.Title)
			}
		}
	}
}

func TestDifficultyForPopularity(t *testing.T) {
	tests := []struct {
		p    float64
		want puzzle.Difficulty
	}{
		{120, puzzle.Easy},
		{50.1, puzzle.Easy},
		{50, puzzle.Medium},
		{20.5, puzzle.Medium},
		{20, puzzle.Hard},
		{0, puzzle.Hard},
	}
	for _, tt := range tests {
		if got := DifficultyForPopularity(tt.p); got != tt.want {
			t.Errorf("DifficultyForPopularity(%v) = %s, want %s", tt.p, got, tt.want)
		}
	}
}

func TestTMDbDiscoverURL(t *testing.T) {
	c := NewTMDb("k", "http://tmdb.test/3/", time.Second)
	u, err := url.Parse(c.DiscoverURL(Criteria{Genre: "Horror", Industry: "Korean"}))
	if err != nil {
		t.Fatal(err)
	}
	q := u.Query()
	if u.Path != "/3/discover/movie" {
		t.Fatalf("path = %q", u.Path)
	}
	checks := map[string]string{
		"api_key":                "k",
		"with_genres":            "27",
		"with_original_language": "ko",
		"region":                 "KR",
		"sort_by":                "popularity.desc",
	}
	for k, v := range checks {
		if q.Get(k) != v {
			t.Errorf("%s = %q, want %q", k, q.Get(k), v)
		}
	}

	plain, _ := url.Parse(c.DiscoverURL(Criteria{Genre: "All", Industry: "Hollywood"}))
	if plain.Query().Has("with_genres") || plain.Query().Has("with_original_language") {
		t.Fatalf("unexpected filters: %s", plain.RawQuery)
	}
}

const discoverBody = `{"results":[
 {"id":1,"title":"Spirited Away","poster_path":"/a.jpg","release_date":"2001-07-20","genre_ids":[16],"popularity":80,"overview":"A girl."},
 {"id":2,"title":"Your Name","poster_path":null,"release_date":"2016-08-26","genre_ids":[],"popularity":30,"overview":""},
 {"id":3,"title":"1917","release_date":"2019-12-25","genre_ids":[18],"popularity":10}
]}`

func TestTMDbMovie(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("api_key") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(discoverBody))
	}))
	defer srv.Close()

	c := NewTMDb("secret", srv.URL, time.Second)
	list, err := c.Discover(context.Background(), Criteria{Industry: "Japanese"})
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("titles without letters must be dropped, got %d movies", len(list))
	}
	first := list[0]
	if first.Title != "SPIRITED AWAY" || first.ReleaseYear != 2001 || first.Genre != "Animation" ||
		first.Difficulty != puzzle.Easy || first.Industry != "Japanese" || first.PosterPath != "/a.jpg" {
		t.Fatalf("unexpected conversion: %+v", first)
	}
	if list[1].Genre != "Other" || list[1].Description == "" || list[1].Difficulty != puzzle.Medium {
		t.Fatalf("unexpected defaults: %+v", list[1])
	}

	m, err := c.Movie(context.Background(), Criteria{Difficulty: puzzle.Medium})
	if err != nil || m.ID != 2 {
		t.Fatalf("Movie(medium) = %+v, %v", m, err)
	}
	// No hard titles survive, so any result is acceptable.
	if _, err := c.Movie(context.Background(), Criteria{Difficulty: puzzle.Hard}); err != nil {
		t.Fatalf("Movie(hard) should fall back to any result: %v", err)
	}
	if _, err := c.Movies(context.Background(), Criteria{}, 5); !errors.Is(err, ErrNoMovie) {
		t.Fatalf("Movies beyond page size: %v", err)
	}

	bad := NewTMDb("wrong", srv.URL, time.Second)
	if _, err := bad.Movie(context.Background(), Criteria{}); err == nil {
		t.Fatal("expected error on non-200")
	}
	if _, err := NewTMDb("", srv.URL, time.Second).Movie(context.Background(), Criteria{}); !errors.Is(err, ErrNoMovie) {
		t.Fatalf("missing key: %v", err)
	}
}

type stubProvider struct {
	movie Movie
	list  []Movie
	err   error
	calls int
}

func (s *stubProvider) Movie(context.Context, Criteria) (Movie, error) {
	s.calls++
	return s.movie, s.err
}

func (s *stubProvider) Movies(context.Context, Criteria, int) ([]Movie, error) {
	s.calls++
	return s.list, s.err
}

func TestFallback(t *testing.T) {
	failing := &stubProvider{err: errors.New("boom")}
	invalid := &stubProvider{movie: Movie{ID: 7, Title: "1917"}, list: []Movie{{ID: 7, Title: "1917"}}}
	good := &stubProvider{movie: Movie{ID: 1, Title: "JAWS"}, list: []Movie{{ID: 1, Title: "JAWS"}, {ID: 2, Title: "HEAT"}}}

	f := Fallback{failing, invalid, good}
	m, err := f.Movie(context.Background(), Criteria{})
	if err != nil || m.ID != 1 {
		t.Fatalf("Movie = %+v, %v", m, err)
	}
	list, err := f.Movies(context.Background(), Criteria{}, 2)
	if err != nil || len(list) != 2 {
		t.Fatalf("Movies = %+v, %v", list, err)
	}
	if failing.calls != 2 || invalid.calls != 2 || good.calls != 2 {
		t.Fatalf("calls = %d %d %d", failing.calls, invalid.calls, good.calls)
	}

	if _, err := (Fallback{failing}).Movie(context.Background(), Criteria{}); !errors.Is(err, ErrNoMovie) {
		t.Fatalf("exhausted chain: %v", err)
	}
	if _, err := (Fallback{good}).Movies(context.Background(), Criteria{}, 3); !errors.Is(err, ErrNoMovie) {
		t.Fatalf("short batch should be rejected: %v", err)
	}
}
