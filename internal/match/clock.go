// internal/match/clock.go
//
// Time source for lobbies. Production uses the wall clock; tests drive ticks by hand.

package match

import "time"

// Ticker is the subset of *time.Ticker a lobby needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Clock creates tickers and reads the current time.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

// WallClock is the real time source.
type WallClock struct{}

func (WallClock) Now() time.Time { return time.Now() }

func (WallClock) NewTicker(d time.Duration) Ticker { return wallTicker{time.NewTicker(d)} }

type wallTicker struct{ t *time.Ticker }

func (w wallTicker) C() <-chan time.Time { return w.t.C }
func (w wallTicker) Stop()               { w.t.Stop() }
