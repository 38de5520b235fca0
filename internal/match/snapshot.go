// internal/match/snapshot.go
//
// Per-viewer snapshots for transport.
// Other players are reduced to progress counters; only the viewer's own
// puzzle carries a mask, since a solved mask is the answer.

package match

import "github.com/robalobadob/reelfling/internal/puzzle"

// PlayerView is what everybody may see about a player.
type PlayerView struct {
	ID             string        `json:"id"`
	Name           string        `json:"displayName"`
	Ready          bool          `json:"ready"`
	Host           bool          `json:"host"`
	Status         puzzle.Status `json:"status"`
	Strikes        int           `json:"strikes"`
	MaxStrikes     int           `json:"maxStrikes"`
	Hidden         int           `json:"hidden"`
	CompletionTime *int          `json:"completionTime"`
	Rank           *int          `json:"rank"`
	RoundsWon      int           `json:"roundsWon"`
}

// Self is the viewer's own puzzle.
type Self struct {
	PlayerID  string `json:"playerId"`
	HintsLeft int    `json:"hintsLeft"`
	puzzle.View
}

// Snapshot is the full match state as seen by one viewer.
type Snapshot struct {
	ID               string        `json:"id"`
	Phase            Phase         `json:"phase"`
	HostID           string        `json:"hostId"`
	Settings         Settings      `json:"settings"`
	CurrentRound     int           `json:"currentRound"`
	TotalRounds      int           `json:"totalRounds"`
	RoundSeconds     int           `json:"roundSeconds"`
	RemainingSeconds int           `json:"remainingSeconds"`
	Countdown        int           `json:"countdown"`
	Players          []PlayerView  `json:"players"`
	You              *Self         `json:"you,omitempty"`
	History          []RoundResult `json:"history"`
	Results          *Results      `json:"results,omitempty"`
}

// Snapshot renders the match for viewer. An empty viewer gets the public view.
func (m *Match) Snapshot(viewer string) Snapshot {
	s := Snapshot{
		ID:               m.ID,
		Phase:            m.phase,
		HostID:           m.hostID,
		Settings:         m.settings,
		CurrentRound:     m.round,
		TotalRounds:      m.settings.TotalRounds,
		RoundSeconds:     RoundSeconds(m.settings.Difficulty),
		RemainingSeconds: m.remaining,
		Players:          make([]PlayerView, 0, len(m.players)),
		History:          m.History(),
		Results:          m.Results(),
	}
	if m.phase == PhaseCountdown {
		s.Countdown = m.countdown
	}
	for _, p := range m.players {
		pv := PlayerView{
			ID:        p.ID,
			Name:      p.Name,
			Ready:     p.Ready,
			Host:      p.ID == m.hostID,
			Status:    p.puzzle.Status(),
			RoundsWon: p.roundsWon,
		}
		if p.puzzle != nil {
			pv.Strikes = p.puzzle.Strikes()
			pv.MaxStrikes = p.puzzle.MaxStrikes()
			pv.Hidden = p.puzzle.Hidden()
		}
		if p.rank != nil {
			pv.Rank = intPtr(*p.rank)
			pv.CompletionTime = intPtr(*p.completion)
		}
		s.Players = append(s.Players, pv)

		if p.ID == viewer && p.puzzle != nil {
			s.You = &Self{PlayerID: p.ID, HintsLeft: p.hintsLeft, View: p.puzzle.View()}
		}
	}
	return s
}
