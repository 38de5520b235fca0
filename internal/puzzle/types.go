// internal/puzzle/types.go
//
// Core type definitions for the movie-title puzzle.
// Defines:
//   - Difficulty: shared easy/medium/hard enum and the limits derived from it.
//   - Status: per-puzzle lifecycle (idle → playing → won | lost).
//   - Outcome: what a single guess did to the puzzle.
//   - View: a JSON-friendly snapshot of a puzzle for transport.

package puzzle

import (
	"errors"
	"strings"
)

// Difficulty is expressed as easy | medium | hard at every boundary.
type Difficulty string

const (
	Easy   Difficulty = "easy"
	Medium Difficulty = "medium"
	Hard   Difficulty = "hard"
)

// ErrUnknownDifficulty is returned by ParseDifficulty for anything outside the enum.
var ErrUnknownDifficulty = errors.New("puzzle: unknown difficulty")

// ParseDifficulty normalizes s into a Difficulty.
// An empty string selects Medium, matching the default game settings.
func ParseDifficulty(s string) (Difficulty, error) {
	switch Difficulty(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return Medium, nil
	case Easy:
		return Easy, nil
	case Medium:
		return Medium, nil
	case Hard:
		return Hard, nil
	}
	return "", ErrUnknownDifficulty
}

// Valid reports whether d is one of the three known difficulties.
func (d Difficulty) Valid() bool {
	return d == Easy || d == Medium || d == Hard
}

// MaxStrikes is the number of incorrect guesses that ends a puzzle.
func (d Difficulty) MaxStrikes() int {
	switch d {
	case Easy:
		return 8
	case Hard:
		return 4
	default:
		return 5
	}
}

// HintAllowance is the number of hints granted per puzzle under the difficulty policy.
func (d Difficulty) HintAllowance() int {
	if d == Hard {
		return 1
	}
	return 2
}

// Status is the puzzle lifecycle state.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusPlaying Status = "playing"
	StatusWon     Status = "won"
	StatusLost    Status = "lost"
)

// Terminal reports whether no further guesses can change the puzzle.
func (s Status) Terminal() bool { return s == StatusWon || s == StatusLost }

// Outcome describes the effect of a single ApplyGuess call.
type Outcome int

const (
	// Ignored: invalid, repeated, or out-of-phase input. Nothing changed.
	Ignored Outcome = iota
	// Revealed: the letter is in the title and every occurrence is now visible.
	Revealed
	// Strike: the letter is absent and one strike was added.
	Strike
)

// Placeholder is rendered in the mask for every hidden position.
const Placeholder = '_'

// View is the transport form of a puzzle.
// Title is only filled once the puzzle is terminal so clients cannot read the answer early.
type View struct {
	Mask       string   `json:"mask"`
	Guessed    []string `json:"guessedLetters"`
	Incorrect  []string `json:"incorrectLetters"`
	Strikes    int      `json:"strikes"`
	MaxStrikes int      `json:"maxStrikes"`
	Status     Status   `json:"status"`
	Title      string   `json:"title,omitempty"`
}
