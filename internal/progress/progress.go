// internal/progress/progress.go
//
// Player progression math.
// Responsibilities:
//   - XP earned per finished game (base by result, difficulty multiplier, clean-win bonus).
//   - Level curve: level = 1 + floor(sqrt(xp / 10)).
//   - Win/loss streak bookkeeping and the consecutive-day daily streak.
//
// Everything here is pure; persistence lives in internal/results.

package progress

import (
	"math"
	"time"

	"github.com/robalobadob/reelfling/internal/puzzle"
)

// MaxRecent bounds the played-movies history kept per player.
const MaxRecent = 50

// XP returns the experience earned for one finished game.
func XP(won bool, d puzzle.Difficulty, incorrect int) int {
	xp := 2.0
	if won {
		xp = 10
	}
	switch d {
	case puzzle.Medium:
		xp *= 1.5
	case puzzle.Hard:
		xp *= 2
	}
	if won && incorrect <= 3 {
		xp += 5
	}
	return int(math.Floor(xp))
}

// Level maps total XP onto the level curve. Negative XP counts as zero.
func Level(xp int) int {
	if xp < 0 {
		xp = 0
	}
	return 1 + int(math.Floor(math.Sqrt(float64(xp)/10)))
}

// LevelThreshold is the total XP at which level starts.
func LevelThreshold(level int) int {
	if level <= 1 {
		return 0
	}
	return 10 * (level - 1) * (level - 1)
}

// Profile is a player's aggregate record.
type Profile struct {
	PlayerID      string `json:"playerId"`
	GamesPlayed   int    `json:"gamesPlayed"`
	Wins          int    `json:"wins"`
	Losses        int    `json:"losses"`
	Streak        int    `json:"streak"`
	HighestStreak int    `json:"highestStreak"`
	XP            int    `json:"xp"`
	Level         int    `json:"level"`
	NextLevelXP   int    `json:"nextLevelXp"`
	DailyStreak   int    `json:"dailyStreak"`
	LastDaily     string `json:"lastDaily,omitempty"`
}

// New returns an empty level-1 profile.
func New(playerID string) Profile {
	return Profile{PlayerID: playerID, Level: 1, NextLevelXP: LevelThreshold(2)}
}

// Apply folds one finished game into p and returns the XP earned.
func (p *Profile) Apply(won bool, d puzzle.Difficulty, incorrect int) int {
	p.GamesPlayed++
	if won {
		p.Wins++
		p.Streak++
		if p.Streak > p.HighestStreak {
			p.HighestStreak = p.Streak
		}
	} else {
		p.Losses++
		p.Streak = 0
	}
	earned := XP(won, d, incorrect)
	p.XP += earned
	p.Level = Level(p.XP)
	p.NextLevelXP = LevelThreshold(p.Level + 1)
	return earned
}

// ApplyDaily records a completed daily challenge on date (YYYY-MM-DD).
// Completing the day after LastDaily extends the streak, any gap restarts it,
// and repeating the same date is a no-op.
func (p *Profile) ApplyDaily(date string) {
	if date == p.LastDaily {
		return
	}
	if p.LastDaily != "" && isNextDay(p.LastDaily, date) {
		p.DailyStreak++
	} else {
		p.DailyStreak = 1
	}
	p.LastDaily = date
}

func isNextDay(prev, next string) bool {
	a, err := time.Parse(time.DateOnly, prev)
	if err != nil {
		return false
	}
	b, err := time.Parse(time.DateOnly, next)
	if err != nil {
		return false
	}
	return a.AddDate(0, 0, 1).Equal(b)
}
