package puzzle

import (
	"math/rand"
	"reflect"
	"testing"
)

func mustNew(t *testing.T, title string, d Difficulty) *State {
	t.Helper()
	s, err := New(title, d)
	if err != nil {
		t.Fatalf("New(%q): %v", title, err)
	}
	return s
}

func TestDeriveMask(t *testing.T) {
	tests := []struct {
		title string
		want  string
	}{
		{"INCEPTION", "I__E__IO_"},
		{"The Dark Knight", "__e _a__ __i___"},
		{"WALL-E", "_A__-E"},
		{"2001: A Space Odyssey", "2001: A __a_e O____e_"},
		{"Amélie", "A_é_ie"},
		{"El Niño", "E_ _i_o"},
		{"Ça", "_a"},
	}
	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			got := DeriveMask(tt.title)
			if got != tt.want {
				t.Fatalf("DeriveMask(%q) = %q, want %q", tt.title, got, tt.want)
			}
			if again := DeriveMask(tt.title); again != got {
				t.Fatalf("DeriveMask not stable: %q vs %q", got, again)
			}
			if s := mustNew(t, tt.title, Medium); s.Mask() != got {
				t.Fatalf("New(%q).Mask() = %q, want %q", tt.title, s.Mask(), got)
			}
		})
	}
}

func TestNewRejectsTitlesWithoutLetters(t *testing.T) {
	for _, title := range []string{"", "   ", "1917", "!!"} {
		if _, err := New(title, Easy); err != ErrNoLetters {
			t.Errorf("New(%q) err = %v, want ErrNoLetters", title, err)
		}
	}
}

func TestMaxStrikesByDifficulty(t *testing.T) {
	want := map[Difficulty]int{Easy: 8, Medium: 5, Hard: 4}
	for d, n := range want {
		if got := mustNew(t, "JAWS", d).MaxStrikes(); got != n {
			t.Errorf("%s: MaxStrikes = %d, want %d", d, got, n)
		}
	}
}

func TestInceptionScenario(t *testing.T) {
	s := mustNew(t, "INCEPTION", Medium)
	if s.Mask() != "I__E__IO_" {
		t.Fatalf("initial mask = %q", s.Mask())
	}

	if out := s.ApplyGuess('n'); out != Revealed {
		t.Fatalf("guess N outcome = %v, want Revealed", out)
	}
	if s.Mask() != "IN_E__ION" {
		t.Fatalf("mask after N = %q, want %q", s.Mask(), "IN_E__ION")
	}

	if out := s.ApplyGuess('Z'); out != Strike || s.Strikes() != 1 {
		t.Fatalf("guess Z: outcome %v strikes %d", out, s.Strikes())
	}
	for _, l := range "QWXY" {
		s.ApplyGuess(l)
	}
	if s.Strikes() != 5 || s.Status() != StatusLost {
		t.Fatalf("after five misses: strikes=%d status=%s", s.Strikes(), s.Status())
	}
	if out := s.ApplyGuess('C'); out != Ignored {
		t.Fatalf("guess after loss should be ignored, got %v", out)
	}
}

func TestApplyGuessIdempotent(t *testing.T) {
	for _, l := range "nNzZ" {
		once := mustNew(t, "INCEPTION", Medium)
		once.ApplyGuess(l)

		twice := mustNew(t, "INCEPTION", Medium)
		twice.ApplyGuess(l)
		if out := twice.ApplyGuess(l); out != Ignored {
			t.Fatalf("second %q outcome = %v, want Ignored", l, out)
		}
		if !reflect.DeepEqual(once.View(), twice.View()) {
			t.Fatalf("%q twice differs from once:\n%+v\n%+v", l, once.View(), twice.View())
		}
	}
}

func TestInvalidInputIgnored(t *testing.T) {
	s := mustNew(t, "HEAT", Hard)
	for _, r := range []rune{'1', ' ', '-', 'é', '_'} {
		if out := s.ApplyGuess(r); out != Ignored {
			t.Errorf("ApplyGuess(%q) = %v, want Ignored", r, out)
		}
	}
	if len(s.GuessedLetters()) != 0 || s.Strikes() != 0 {
		t.Fatalf("invalid input mutated state: %+v", s.View())
	}

	var idle State
	if idle.Status() != StatusIdle || idle.ApplyGuess('A') != Ignored {
		t.Fatalf("zero State must be idle and ignore guesses")
	}
}

func TestWinIsOrderIndependent(t *testing.T) {
	title := "The Silence of the Lambs"
	distinct := []rune{}
	seen := map[rune]bool{}
	for _, r := range title {
		u := toUpper(r)
		if isLetter(r) && !seen[u] {
			seen[u] = true
			distinct = append(distinct, u)
		}
	}

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		order := append([]rune(nil), distinct...)
		rng.Shuffle(len(order), func(a, b int) { order[a], order[b] = order[b], order[a] })

		s := mustNew(t, title, Hard)
		for _, l := range order {
			s.ApplyGuess(l)
		}
		if s.Status() != StatusWon || s.Hidden() != 0 {
			t.Fatalf("order %q: status=%s hidden=%d", string(order), s.Status(), s.Hidden())
		}
		if s.Strikes() != 0 {
			t.Fatalf("order %q: strikes=%d", string(order), s.Strikes())
		}
	}
}

func TestLossAfterExactlyMaxStrikes(t *testing.T) {
	for _, d := range []Difficulty{Easy, Medium, Hard} {
		t.Run(string(d), func(t *testing.T) {
			s := mustNew(t, "UP", d)
			misses := []rune("BCDFGHJKLM")
			n := d.MaxStrikes()
			for i := 0; i < n-1; i++ {
				s.ApplyGuess(misses[i])
			}
			if s.Status() != StatusPlaying {
				t.Fatalf("after %d misses status = %s", n-1, s.Status())
			}
			s.ApplyGuess(misses[n-1])
			if s.Status() != StatusLost || s.Strikes() != n {
				t.Fatalf("after %d misses status=%s strikes=%d", n, s.Status(), s.Strikes())
			}
			if s.Strikes() != len(s.IncorrectLetters()) {
				t.Fatalf("strikes %d != incorrect %d", s.Strikes(), len(s.IncorrectLetters()))
			}
		})
	}
}

func TestVowelGuesses(t *testing.T) {
	s := mustNew(t, "JAWS", Medium)
	if out := s.ApplyGuess('A'); out != Revealed {
		t.Fatalf("present vowel outcome = %v, want Revealed", out)
	}
	if out := s.ApplyGuess('O'); out != Strike {
		t.Fatalf("absent vowel outcome = %v, want Strike", out)
	}
}

func TestHintLetter(t *testing.T) {
	tests := []struct {
		name    string
		title   string
		guesses string
		want    rune
		ok      bool
	}{
		{"most frequent", "INCEPTION", "", 'N', true},
		{"skips guessed", "INCEPTION", "N", 'C', true},
		{"alphabet tie-break", "CAB", "", 'B', true},
		{"ignores incorrect", "TOOT", "Z", 'T', true},
		{"none left", "TOOT", "T", 0, false},
		{"vowels only", "IOU", "", 0, false},
		{"accented consonant folds", "ÇAÇA B", "", 'C', true},
		{"non-latin letter after A-Z", "ÞAB", "", 'B', true},
		{"non-latin letter alone", "ÞA", "", 'Þ', true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := mustNew(t, tt.title, Easy)
			for _, g := range tt.guesses {
				s.ApplyGuess(g)
			}
			got, ok := s.HintLetter()
			if got != tt.want || ok != tt.ok {
				t.Fatalf("HintLetter() = %q,%v want %q,%v", got, ok, tt.want, tt.ok)
			}
			if ok && (s.Guessed(got) || contains(s.IncorrectLetters(), string(got))) {
				t.Fatalf("hint %q was already tried", got)
			}
		})
	}
}

func TestFailOnlyWhilePlaying(t *testing.T) {
	s := mustNew(t, "JAWS", Easy)
	if !s.Fail() || s.Status() != StatusLost {
		t.Fatalf("Fail on playing puzzle: status=%s", s.Status())
	}

	won := mustNew(t, "UP", Easy)
	won.ApplyGuess('P')
	if won.Status() != StatusWon {
		t.Fatalf("UP after P: %s", won.Status())
	}
	if won.Fail() || won.Status() != StatusWon {
		t.Fatalf("Fail must not revert a win")
	}
}

func TestViewHidesTitleUntilTerminal(t *testing.T) {
	s := mustNew(t, "JAWS", Easy)
	if v := s.View(); v.Title != "" {
		t.Fatalf("title leaked while playing: %q", v.Title)
	}
	s.ApplyGuess('J')
	s.ApplyGuess('W')
	s.ApplyGuess('S')
	if v := s.View(); v.Status != StatusWon || v.Title != "JAWS" {
		t.Fatalf("terminal view = %+v", v)
	}
}

func TestParseDifficulty(t *testing.T) {
	for in, want := range map[string]Difficulty{"": Medium, "EASY": Easy, " hard ": Hard, "medium": Medium} {
		got, err := ParseDifficulty(in)
		if err != nil || got != want {
			t.Errorf("ParseDifficulty(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseDifficulty("nightmare"); err != ErrUnknownDifficulty {
		t.Errorf("expected ErrUnknownDifficulty, got %v", err)
	}
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

func TestAccentedLetters(t *testing.T) {
	s := mustNew(t, "El Niño", Medium)
	if out := s.ApplyGuess('n'); out != Revealed {
		t.Fatalf("guess n = %v, want Revealed", out)
	}
	if got := s.Mask(); got != "E_ Niño" {
		t.Fatalf("mask = %q, want %q", got, "E_ Niño")
	}
	if out := s.ApplyGuess('Ñ'); out != Ignored {
		t.Fatalf("Ñ after N = %v, want Ignored", out)
	}
	if out := s.ApplyGuess('L'); out != Revealed || s.Status() != StatusWon {
		t.Fatalf("guess L = %v, status %v", out, s.Status())
	}

	a := mustNew(t, "Amélie", Easy)
	a.ApplyGuess('M')
	a.ApplyGuess('L')
	if a.Status() != StatusWon || a.Mask() != "Amélie" {
		t.Fatalf("Amélie after M,L: %q %v", a.Mask(), a.Status())
	}
}
