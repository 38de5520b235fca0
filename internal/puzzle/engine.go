// internal/puzzle/engine.go
//
// Puzzle engine for a single movie title.
// Responsibilities:
//   - Seed the mask: vowels and non-letters are shown, consonants are hidden.
//   - Validate and apply letter guesses (all occurrences revealed at once).
//   - Track strikes and the playing → won/lost transitions.
//   - Pick the hint letter (most frequent unrevealed consonant).
//
// Notes:
//   - Any Unicode letter is guessable; everything else is revealed verbatim.
//   - Letters compare by their uppercased base form (É matches E, ñ matches N),
//     the mask keeps the title's own spelling.
//   - Won/lost are terminal; every later guess is a no-op.
package puzzle

import (
	"errors"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const (
	vowels     = "AEIOU"
	consonants = "BCDFGHJKLMNPQRSTVWXYZ"
)

// ErrNoLetters is returned by New when the title has nothing to guess.
var ErrNoLetters = errors.New("puzzle: title must contain at least one letter")

// State is the per-player (or per-session) puzzle.
// The zero value is an idle puzzle that ignores every guess.
type State struct {
	title      []rune
	upper      []rune
	revealed   []bool
	guessed    []rune // accepted guesses, in order
	incorrect  []rune // subset of guessed that missed
	maxStrikes int
	status     Status
}

// New seeds a fresh puzzle for title at difficulty d and moves it to playing.
func New(title string, d Difficulty) (*State, error) {
	if !HasLetter(title) {
		return nil, ErrNoLetters
	}
	t := []rune(title)
	s := &State{
		title:      t,
		upper:      make([]rune, len(t)),
		revealed:   make([]bool, len(t)),
		maxStrikes: d.MaxStrikes(),
		status:     StatusPlaying,
	}
	for i, r := range t {
		s.upper[i] = toUpper(r)
		s.revealed[i] = !isLetter(r) || isVowel(r)
	}
	// A title made only of vowels is solved on arrival.
	if s.solved() {
		s.status = StatusWon
	}
	return s, nil
}

// DeriveMask renders the starting mask for title without building a State.
func DeriveMask(title string) string {
	var b strings.Builder
	for _, r := range title {
		if !isLetter(r) || isVowel(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(Placeholder)
		}
	}
	return b.String()
}

// HasLetter reports whether title contains at least one guessable letter.
func HasLetter(title string) bool {
	for _, r := range title {
		if isLetter(r) {
			return true
		}
	}
	return false
}

// ApplyGuess applies one letter.
//
// The guess is ignored when the puzzle is not playing, the rune is not a letter,
// or the letter (case-normalized) was already guessed. Otherwise exactly one of
// "reveal every occurrence" or "add a strike" happens.
func (s *State) ApplyGuess(letter rune) Outcome {
	if s.status != StatusPlaying || !isLetter(letter) {
		return Ignored
	}
	l := toUpper(letter)
	if slices.Contains(s.guessed, l) {
		return Ignored
	}
	s.guessed = append(s.guessed, l)

	hit := false
	for i, u := range s.upper {
		if u == l {
			s.revealed[i] = true
			hit = true
		}
	}
	if hit {
		if s.solved() {
			s.status = StatusWon
		}
		return Revealed
	}

	s.incorrect = append(s.incorrect, l)
	if len(s.incorrect) >= s.maxStrikes {
		s.status = StatusLost
	}
	return Strike
}

// HintLetter returns the consonant a hint would reveal.
// Among title consonants not yet guessed, the most frequent wins; ties go to the
// earlier letter of the consonant alphabet, then to the lower rune for letters
// outside A–Z. ok is false when nothing qualifies.
func (s *State) HintLetter() (letter rune, ok bool) {
	counts := make(map[rune]int)
	for i, u := range s.upper {
		if isLetter(s.title[i]) && !isVowel(u) && !slices.Contains(s.guessed, u) {
			counts[u]++
		}
	}
	best := 0
	for c, n := range counts {
		if n > best || (n == best && hintOrder(c) < hintOrder(letter)) {
			best, letter = n, c
		}
	}
	return letter, best > 0
}

// hintOrder ranks A–Z consonants first, in alphabet order.
func hintOrder(r rune) rune {
	if i := strings.IndexRune(consonants, r); i >= 0 {
		return rune(i)
	}
	return utf8.MaxRune + r
}

// Fail force-transitions a playing puzzle to lost (round timeout).
// Terminal puzzles are left untouched.
func (s *State) Fail() bool {
	if s.status != StatusPlaying {
		return false
	}
	s.status = StatusLost
	return true
}

// Status reports the lifecycle state; the zero State is idle.
func (s *State) Status() Status {
	if s == nil || s.status == "" {
		return StatusIdle
	}
	return s.status
}

// Strikes is the number of incorrect guesses, always len(IncorrectLetters()).
func (s *State) Strikes() int { return len(s.incorrect) }

// MaxStrikes is the strike limit chosen at creation.
func (s *State) MaxStrikes() int { return s.maxStrikes }

// Title returns the original title.
func (s *State) Title() string { return string(s.title) }

// Mask renders the current mask, hidden positions shown as Placeholder.
func (s *State) Mask() string {
	out := make([]rune, len(s.title))
	for i, r := range s.title {
		if s.revealed[i] {
			out[i] = r
		} else {
			out[i] = Placeholder
		}
	}
	return string(out)
}

// Hidden is the number of positions still masked.
func (s *State) Hidden() int {
	n := 0
	for _, ok := range s.revealed {
		if !ok {
			n++
		}
	}
	return n
}

// GuessedLetters returns accepted guesses in the order they were made.
func (s *State) GuessedLetters() []string { return letters(s.guessed) }

// IncorrectLetters returns the misses in the order they were made.
func (s *State) IncorrectLetters() []string { return letters(s.incorrect) }

// Guessed reports whether letter was already accepted.
func (s *State) Guessed(letter rune) bool { return slices.Contains(s.guessed, toUpper(letter)) }

// View snapshots the puzzle for transport.
func (s *State) View() View {
	v := View{
		Mask:       s.Mask(),
		Guessed:    s.GuessedLetters(),
		Incorrect:  s.IncorrectLetters(),
		Strikes:    s.Strikes(),
		MaxStrikes: s.maxStrikes,
		Status:     s.Status(),
	}
	if v.Status.Terminal() {
		v.Title = s.Title()
	}
	return v
}

// solved reports whether every position is visible.
func (s *State) solved() bool {
	return !slices.Contains(s.revealed, false)
}

// letters converts a rune slice into one-letter strings (never nil, so JSON gets []).
func letters(rs []rune) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, string(r))
	}
	return out
}

func isLetter(r rune) bool { return unicode.IsLetter(r) }

func isVowel(r rune) bool { return strings.ContainsRune(vowels, toUpper(r)) }

// toUpper folds a letter to its uppercase base form: the first rune of its
// canonical decomposition, so accented letters share a key with A–Z.
func toUpper(r rune) rune {
	if !isLetter(r) {
		return r
	}
	base, _ := utf8.DecodeRuneInString(norm.NFD.String(string(r)))
	return unicode.ToUpper(base)
}
