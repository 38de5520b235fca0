// internal/match/results.go
//
// Round history and final standings.

package match

import (
	"sort"

	"github.com/robalobadob/reelfling/internal/puzzle"
)

// RoundEntry is one player's outcome in a closed round.
type RoundEntry struct {
	PlayerID       string        `json:"playerId"`
	Name           string        `json:"displayName"`
	Status         puzzle.Status `json:"status"`
	Strikes        int           `json:"strikes"`
	Rank           *int          `json:"rank"`
	CompletionTime *int          `json:"completionTime"`
}

// RoundResult summarizes a closed round. NoWinner is set when nobody solved it.
type RoundResult struct {
	Round    int          `json:"round"`
	MovieID  int          `json:"movieId"`
	Title    string       `json:"title"`
	TimedOut bool         `json:"timedOut"`
	NoWinner bool         `json:"noWinner"`
	Players  []RoundEntry `json:"players"`
}

// sortEntries puts ranked players first by rank, the rest keep join order.
func sortEntries(es []RoundEntry) {
	sort.SliceStable(es, func(i, j int) bool {
		a, b := es[i].Rank, es[j].Rank
		switch {
		case a != nil && b != nil:
			return *a < *b
		case a != nil:
			return true
		default:
			return false
		}
	})
}

// Standing is a player's line in the final results.
type Standing struct {
	Position  int    `json:"position"`
	PlayerID  string `json:"playerId"`
	Name      string `json:"displayName"`
	RoundsWon int    `json:"roundsWon"`
	TotalTime int    `json:"totalTime"`
	Winner    bool   `json:"winner"`
}

// Results is exposed once the match has ended.
type Results struct {
	Standings []Standing    `json:"standings"`
	Rounds    []RoundResult `json:"rounds"`
	NoWinner  bool          `json:"noWinner"`
}

// Standings orders players by rounds won, then total completion time, then join order.
func (m *Match) Standings() []Standing {
	out := make([]Standing, 0, len(m.players))
	for _, p := range m.players {
		out = append(out, Standing{PlayerID: p.ID, Name: p.Name, RoundsWon: p.roundsWon, TotalTime: p.totalTime})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].RoundsWon != out[j].RoundsWon {
			return out[i].RoundsWon > out[j].RoundsWon
		}
		if out[i].RoundsWon == 0 {
			return false
		}
		return out[i].TotalTime < out[j].TotalTime
	})
	for i := range out {
		out[i].Position = i + 1
	}
	if len(out) > 0 && out[0].RoundsWon > 0 {
		out[0].Winner = true
	}
	return out
}

// Results returns the final view, or nil before the match has ended.
func (m *Match) Results() *Results {
	if m.phase != PhaseEnded {
		return nil
	}
	st := m.Standings()
	return &Results{
		Standings: st,
		Rounds:    append([]RoundResult(nil), m.history...),
		NoWinner:  len(st) == 0 || !st[0].Winner,
	}
}

// History returns every round closed so far.
func (m *Match) History() []RoundResult {
	return append([]RoundResult(nil), m.history...)
}
