package progress

import (
	"testing"

	"github.com/robalobadob/reelfling/internal/puzzle"
)

func TestXP(t *testing.T) {
	tests := []struct {
		name      string
		won       bool
		d         puzzle.Difficulty
		incorrect int
		want      int
	}{
		{"easy clean win", true, puzzle.Easy, 0, 15},
		{"easy messy win", true, puzzle.Easy, 4, 10},
		{"medium clean win", true, puzzle.Medium, 3, 20},
		{"medium messy win", true, puzzle.Medium, 5, 15},
		{"hard clean win", true, puzzle.Hard, 1, 25},
		{"easy loss", false, puzzle.Easy, 8, 2},
		{"medium loss", false, puzzle.Medium, 5, 3},
		{"hard loss", false, puzzle.Hard, 0, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := XP(tt.won, tt.d, tt.incorrect); got != tt.want {
				t.Fatalf("XP = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestLevel(t *testing.T) {
	for xp, want := range map[int]int{-5: 1, 0: 1, 9: 1, 10: 2, 39: 2, 40: 3, 90: 4, 1000: 11} {
		if got := Level(xp); got != want {
			t.Errorf("Level(%d) = %d, want %d", xp, got, want)
		}
	}
	for lvl := 1; lvl < 10; lvl++ {
		if Level(LevelThreshold(lvl)) != lvl {
			t.Errorf("threshold for level %d maps to level %d", lvl, Level(LevelThreshold(lvl)))
		}
	}
}

func TestProfileApply(t *testing.T) {
	p := New("p1")
	p.Apply(true, puzzle.Hard, 0)
	p.Apply(true, puzzle.Easy, 5)
	p.Apply(false, puzzle.Medium, 5)
	p.Apply(true, puzzle.Easy, 0)

	if p.GamesPlayed != 4 || p.Wins != 3 || p.Losses != 1 {
		t.Fatalf("counters: %+v", p)
	}
	if p.Streak != 1 || p.HighestStreak != 2 {
		t.Fatalf("streaks: %d / %d", p.Streak, p.HighestStreak)
	}
	if p.XP != 25+10+3+15 {
		t.Fatalf("xp = %d", p.XP)
	}
	if p.Level != Level(p.XP) || p.NextLevelXP != LevelThreshold(p.Level+1) {
		t.Fatalf("level bookkeeping: %+v", p)
	}
}

func TestApplyDaily(t *testing.T) {
	p := New("p1")
	steps := []struct {
		date string
		want int
	}{
		{"2024-03-01", 1},
		{"2024-03-02", 2},
		{"2024-03-02", 2},
		{"2024-03-03", 3},
		{"2024-03-05", 1},
		{"2024-03-06", 2},
	}
	for _, s := range steps {
		p.ApplyDaily(s.date)
		if p.DailyStreak != s.want || p.LastDaily != s.date {
			t.Fatalf("after %s: streak=%d last=%s", s.date, p.DailyStreak, p.LastDaily)
		}
	}
}
