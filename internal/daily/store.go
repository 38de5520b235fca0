package daily

import "context"

// Entry is one line of a daily leaderboard.
type Entry struct {
	Position  int    `json:"position"`
	PlayerID  string `json:"playerId"`
	Strikes   int    `json:"strikes"`
	ElapsedMs int64  `json:"elapsedMs"`
}

// Store is what the daily service reads back. Results are written through
// session.Recorder when a daily game finishes.
type Store interface {
	// AlreadyPlayed reports whether playerID has a recorded result for date.
	AlreadyPlayed(ctx context.Context, playerID, date string) (bool, error)

	// Leaderboard returns the winners for date, fewest strikes first, then fastest.
	Leaderboard(ctx context.Context, date string, limit int) ([]Entry, error)
}
