package match

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/robalobadob/reelfling/internal/movies"
	"github.com/robalobadob/reelfling/internal/puzzle"
)

// fakeClock hands out tickers that only fire when the test says so.
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
}

type fakeTicker struct {
	d       time.Duration
	c       chan time.Time
	stopped atomic.Bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.c }
func (t *fakeTicker) Stop()               { t.stopped.Store(true) }

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) NewTicker(d time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTicker{d: d, c: make(chan time.Time)}
	c.tickers = append(c.tickers, t)
	return t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// live counts tickers of period d that have not been stopped.
func (c *fakeClock) live(d time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.tickers {
		if t.d == d && !t.stopped.Load() {
			n++
		}
	}
	return n
}

// fire delivers one tick on the newest live ticker of period d and waits
// until the lobby has taken it.
func (c *fakeClock) fire(t *testing.T, d time.Duration) {
	t.Helper()
	c.mu.Lock()
	var tk *fakeTicker
	for i := len(c.tickers) - 1; i >= 0; i-- {
		if c.tickers[i].d == d && !c.tickers[i].stopped.Load() {
			tk = c.tickers[i]
			break
		}
	}
	now := c.now
	c.mu.Unlock()
	if tk == nil {
		t.Fatalf("no live %v ticker", d)
	}
	select {
	case tk.c <- now:
	case <-time.After(2 * time.Second):
		t.Fatalf("%v tick not consumed", d)
	}
}

type stubProvider struct {
	list    []movies.Movie
	err     error
	release chan struct{} // optional, blocks Movies until closed
}

func (p stubProvider) Movie(ctx context.Context, _ movies.Criteria) (movies.Movie, error) {
	list, err := p.Movies(ctx, movies.Criteria{}, 1)
	if err != nil {
		return movies.Movie{}, err
	}
	return list[0], nil
}

func (p stubProvider) Movies(ctx context.Context, _ movies.Criteria, count int) ([]movies.Movie, error) {
	if p.release != nil {
		select {
		case <-p.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if p.err != nil {
		return nil, p.err
	}
	if count > len(p.list) {
		return nil, movies.ErrNoMovie
	}
	return p.list[:count], nil
}

type rankRecorder struct{ got chan RankRecord }

func (r *rankRecorder) RecordSessionRank(_ context.Context, rec RankRecord) error {
	r.got <- rec
	return nil
}

func openLobby(t *testing.T, s Settings, opts Options) *Lobby {
	t.Helper()
	l, err := NewLobby("L1", s, opts)
	if err != nil {
		t.Fatalf("NewLobby: %v", err)
	}
	t.Cleanup(l.Close)
	return l
}

func submit(t *testing.T, l *Lobby, c Command) {
	t.Helper()
	if err := l.Submit(context.Background(), c); err != nil {
		t.Fatalf("%s by %s: %v", c.Kind, c.PlayerID, err)
	}
}

func subscribe(t *testing.T, l *Lobby, id string) *Subscription {
	t.Helper()
	sub, err := l.Subscribe(context.Background(), id)
	if err != nil {
		t.Fatalf("Subscribe %s: %v", id, err)
	}
	return sub
}

func recv(t *testing.T, sub *Subscription) (Outbound, bool) {
	t.Helper()
	select {
	case msg, ok := <-sub.C:
		return msg, ok
	case <-time.After(2 * time.Second):
		t.Fatalf("nothing delivered to %s", sub.PlayerID)
	}
	return Outbound{}, false
}

// waitFor drains sub until a message satisfies match.
func waitFor(t *testing.T, sub *Subscription, match func(Outbound) bool) Outbound {
	t.Helper()
	for {
		msg, ok := recv(t, sub)
		if !ok {
			t.Fatalf("subscription for %s closed while waiting", sub.PlayerID)
		}
		if match(msg) {
			return msg
		}
	}
}

func inPhase(p Phase) func(Outbound) bool {
	return func(o Outbound) bool { return o.Type == "state" && o.State.Phase == p }
}

func hard1() Settings { return Settings{Difficulty: puzzle.Hard, TotalRounds: 1} }

func TestLobbyFullGame(t *testing.T) {
	clk := newFakeClock()
	rec := &rankRecorder{got: make(chan RankRecord, 4)}
	l := openLobby(t, hard1(), Options{
		Provider: stubProvider{list: []movies.Movie{jaws}},
		Recorder: rec,
		Clock:    clk,
	})

	submit(t, l, Command{Kind: CmdJoin, PlayerID: "a", Name: "Ann"})
	submit(t, l, Command{Kind: CmdJoin, PlayerID: "b", Name: "Bo"})
	if l.Players() != 2 {
		t.Fatalf("players = %d", l.Players())
	}
	subA := subscribe(t, l, "a")
	if first, _ := recv(t, subA); first.Type != "state" || first.State.HostID != "a" {
		t.Fatalf("initial push = %+v", first)
	}

	submit(t, l, Command{Kind: CmdReady, PlayerID: "a", Ready: true})
	submit(t, l, Command{Kind: CmdReady, PlayerID: "b", Ready: true})
	submit(t, l, Command{Kind: CmdStart, PlayerID: "a"})
	waitFor(t, subA, inPhase(PhaseCountdown))

	for i := 0; i < CountdownSeconds; i++ {
		clk.fire(t, time.Second)
	}
	waitFor(t, subA, inPhase(PhasePlaying))
	clk.fire(t, time.Second)
	clk.fire(t, time.Second)

	for _, r := range "JWS" {
		submit(t, l, Command{Kind: CmdGuess, PlayerID: "a", Round: 0, Letter: r})
	}
	for _, r := range "BCDF" {
		submit(t, l, Command{Kind: CmdGuess, PlayerID: "b", Round: 0, Letter: r})
	}
	end := waitFor(t, subA, inPhase(PhaseEnded))
	if end.State.Results == nil || end.State.Results.Standings[0].PlayerID != "a" {
		t.Fatalf("results = %+v", end.State.Results)
	}
	if n := clk.live(time.Second); n != 0 {
		t.Fatalf("%d round tickers still running after the end", n)
	}

	select {
	case r := <-rec.got:
		if r.MatchID != "L1" || r.PlayerID != "a" || r.Rank != 1 || r.CompletionTime != 2 || r.MovieID != jaws.ID {
			t.Fatalf("rank record = %+v", r)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no rank recorded")
	}
	select {
	case r := <-rec.got:
		t.Fatalf("unranked player recorded: %+v", r)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestLobbyLateGuessIgnored(t *testing.T) {
	clk := newFakeClock()
	l := openLobby(t, Settings{Difficulty: puzzle.Hard, TotalRounds: 2}, Options{
		Provider: stubProvider{list: []movies.Movie{jaws, heat}},
		Clock:    clk,
	})
	submit(t, l, Command{Kind: CmdJoin, PlayerID: "a", Name: "Ann"})
	submit(t, l, Command{Kind: CmdReady, PlayerID: "a", Ready: true})
	sub := subscribe(t, l, "a")
	submit(t, l, Command{Kind: CmdStart, PlayerID: "a"})
	waitFor(t, sub, inPhase(PhaseCountdown))
	for i := 0; i < CountdownSeconds; i++ {
		clk.fire(t, time.Second)
	}
	for _, r := range "JWS" {
		submit(t, l, Command{Kind: CmdGuess, PlayerID: "a", Round: 0, Letter: r})
	}
	submit(t, l, Command{Kind: CmdGuess, PlayerID: "a", Round: 0, Letter: 'H'})

	snap, err := l.Snapshot(context.Background(), "a")
	if err != nil {
		t.Fatal(err)
	}
	if snap.CurrentRound != 1 || snap.You.Mask != "_EA_" || len(snap.You.Guessed) != 0 {
		t.Fatalf("round 1 after a late guess = %+v", snap.You)
	}
}

func TestLobbyStartFailureReportsToHost(t *testing.T) {
	l := openLobby(t, hard1(), Options{Provider: stubProvider{err: movies.ErrNoMovie}, Clock: newFakeClock()})
	submit(t, l, Command{Kind: CmdJoin, PlayerID: "a", Name: "Ann"})
	submit(t, l, Command{Kind: CmdReady, PlayerID: "a", Ready: true})
	sub := subscribe(t, l, "a")
	submit(t, l, Command{Kind: CmdStart, PlayerID: "a"})

	msg := waitFor(t, sub, func(o Outbound) bool { return o.Type == "error" })
	if msg.Error != "no_movies" {
		t.Fatalf("error = %q", msg.Error)
	}
	snap, _ := l.Snapshot(context.Background(), "a")
	if snap.Phase != PhaseLobby {
		t.Fatalf("phase = %s after failed start", snap.Phase)
	}
}

func TestLobbyConfigureBlockedWhileStarting(t *testing.T) {
	clk := newFakeClock()
	release := make(chan struct{})
	l := openLobby(t, hard1(), Options{Provider: stubProvider{list: []movies.Movie{jaws}, release: release}, Clock: clk})
	submit(t, l, Command{Kind: CmdJoin, PlayerID: "a", Name: "Ann"})
	submit(t, l, Command{Kind: CmdReady, PlayerID: "a", Ready: true})
	sub := subscribe(t, l, "a")
	submit(t, l, Command{Kind: CmdStart, PlayerID: "a"})

	ctx := context.Background()
	err := l.Submit(ctx, Command{Kind: CmdConfigure, PlayerID: "a", Settings: DefaultSettings()})
	if !errors.Is(err, ErrStartPending) {
		t.Fatalf("configure during fetch: %v", err)
	}
	if err := l.Submit(ctx, Command{Kind: CmdStart, PlayerID: "a"}); !errors.Is(err, ErrStartPending) {
		t.Fatalf("double start: %v", err)
	}
	close(release)
	waitFor(t, sub, inPhase(PhaseCountdown))
}

func TestLobbyRejectsStrangers(t *testing.T) {
	l := openLobby(t, hard1(), Options{Clock: newFakeClock()})
	submit(t, l, Command{Kind: CmdJoin, PlayerID: "a", Name: "Ann"})
	err := l.Submit(context.Background(), Command{Kind: CmdChat, PlayerID: "x", Text: "hi"})
	if !errors.Is(err, ErrUnknownPlayer) {
		t.Fatalf("stranger chat: %v", err)
	}
	if _, err := l.Subscribe(context.Background(), "x"); !errors.Is(err, ErrUnknownPlayer) {
		t.Fatalf("stranger subscribe: %v", err)
	}
	if snap, err := l.Snapshot(context.Background(), ""); err != nil || len(snap.Players) != 1 {
		t.Fatalf("public snapshot = %+v, %v", snap, err)
	}
}

func TestLobbyChat(t *testing.T) {
	l := openLobby(t, hard1(), Options{Clock: newFakeClock()})
	submit(t, l, Command{Kind: CmdJoin, PlayerID: "a", Name: "Ann"})
	if err := l.Submit(context.Background(), Command{Kind: CmdChat, PlayerID: "a", Text: "   "}); !errors.Is(err, ErrEmptyChat) {
		t.Fatalf("blank chat: %v", err)
	}
	for i := 0; i < ChatHistory+5; i++ {
		submit(t, l, Command{Kind: CmdChat, PlayerID: "a", Text: fmt.Sprintf("msg %d", i)})
	}

	sub := subscribe(t, l, "a")
	first, _ := recv(t, sub)
	if len(first.Chat) != ChatHistory {
		t.Fatalf("chat log = %d messages", len(first.Chat))
	}
	if first.Chat[0].Text != "msg 5" || first.Chat[ChatHistory-1].Name != "Ann" {
		t.Fatalf("chat log head = %+v", first.Chat[0])
	}

	submit(t, l, Command{Kind: CmdChat, PlayerID: "a", Text: "live"})
	live := waitFor(t, sub, func(o Outbound) bool { return o.Type == "chat" })
	if len(live.Chat) != 1 || live.Chat[0].Text != "live" {
		t.Fatalf("live chat = %+v", live.Chat)
	}
}

func TestLobbyKickClosesSubscription(t *testing.T) {
	l := openLobby(t, hard1(), Options{Clock: newFakeClock()})
	submit(t, l, Command{Kind: CmdJoin, PlayerID: "a", Name: "Ann"})
	submit(t, l, Command{Kind: CmdJoin, PlayerID: "b", Name: "Bo"})
	subB := subscribe(t, l, "b")
	recv(t, subB)

	submit(t, l, Command{Kind: CmdKick, PlayerID: "a", Target: "b"})
	msg, ok := recv(t, subB)
	if !ok || msg.Type != "kicked" || msg.Error != "kicked" {
		t.Fatalf("kick notice = %+v, %v", msg, ok)
	}
	if _, ok := recv(t, subB); ok {
		t.Fatal("subscription still open after kick")
	}
	if err := l.Submit(context.Background(), Command{Kind: CmdReady, PlayerID: "b", Ready: true}); !errors.Is(err, ErrUnknownPlayer) {
		t.Fatalf("kicked player command: %v", err)
	}
	if l.Players() != 1 {
		t.Fatalf("players = %d", l.Players())
	}
}

func TestLobbyResubscribeClosesOld(t *testing.T) {
	l := openLobby(t, hard1(), Options{Clock: newFakeClock()})
	submit(t, l, Command{Kind: CmdJoin, PlayerID: "a", Name: "Ann"})
	old := subscribe(t, l, "a")
	recv(t, old)
	fresh := subscribe(t, l, "a")
	if _, ok := recv(t, old); ok {
		t.Fatal("old subscription left open")
	}
	if msg, ok := recv(t, fresh); !ok || msg.Type != "state" {
		t.Fatalf("fresh push = %+v", msg)
	}
	l.Unsubscribe(old)
	submit(t, l, Command{Kind: CmdReady, PlayerID: "a", Ready: true})
	if msg, ok := recv(t, fresh); !ok || !msg.State.Players[0].Ready {
		t.Fatal("unsubscribing a stale subscription detached the fresh one")
	}
}

func TestLobbySweepsInactivePlayers(t *testing.T) {
	clk := newFakeClock()
	l := openLobby(t, hard1(), Options{Clock: clk, PlayerTimeout: 2 * time.Minute})
	submit(t, l, Command{Kind: CmdJoin, PlayerID: "a", Name: "Ann"})
	submit(t, l, Command{Kind: CmdJoin, PlayerID: "b", Name: "Bo"})
	subB := subscribe(t, l, "b")
	recv(t, subB)

	clk.advance(3 * time.Minute)
	submit(t, l, Command{Kind: CmdTouch, PlayerID: "a"})
	clk.fire(t, time.Minute)

	snap, err := l.Snapshot(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Players) != 1 || snap.Players[0].ID != "a" || l.Players() != 1 {
		t.Fatalf("players after sweep = %+v", snap.Players)
	}
	if msg, ok := recv(t, subB); !ok || msg.Error != "inactive" {
		t.Fatalf("inactive notice = %+v, %v", msg, ok)
	}
}

func TestLobbyLeaveAndClose(t *testing.T) {
	l, err := NewLobby("L2", hard1(), Options{Clock: newFakeClock()})
	if err != nil {
		t.Fatal(err)
	}
	submit(t, l, Command{Kind: CmdJoin, PlayerID: "a", Name: "Ann"})
	sub := subscribe(t, l, "a")
	recv(t, sub)
	submit(t, l, Command{Kind: CmdLeave, PlayerID: "a"})
	if _, ok := recv(t, sub); ok {
		t.Fatal("leave kept the subscription open")
	}

	l.Close()
	l.Close()
	select {
	case <-l.Done():
	default:
		t.Fatal("Done not closed")
	}
	if err := l.Submit(context.Background(), Command{Kind: CmdTouch, PlayerID: "a"}); !errors.Is(err, ErrLobbyClosed) {
		t.Fatalf("submit after close: %v", err)
	}
}

func TestManager(t *testing.T) {
	clk := newFakeClock()
	m := NewManager(Options{Clock: clk}, 30*time.Minute)
	defer m.Close()

	if _, err := m.Create(Settings{Difficulty: puzzle.Easy, TotalRounds: 0}, nil); !errors.Is(err, ErrInvalidRounds) {
		t.Fatalf("bad settings: %v", err)
	}
	empty, err := m.Create(DefaultSettings(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(empty.ID) != idLength {
		t.Fatalf("id %q", empty.ID)
	}
	for _, r := range empty.ID {
		if !containsRune(idAlphabet, r) {
			t.Fatalf("id %q has %q", empty.ID, r)
		}
	}
	busy, err := m.Create(DefaultSettings(), []byte("hash"))
	if err != nil {
		t.Fatal(err)
	}
	if string(busy.PasscodeHash) != "hash" {
		t.Fatal("passcode hash not kept")
	}
	submit(t, busy, Command{Kind: CmdJoin, PlayerID: "a", Name: "Ann"})

	if got, err := m.Get(empty.ID); err != nil || got != empty {
		t.Fatalf("Get = %v, %v", got, err)
	}
	if _, err := m.Get("NOPE"); !errors.Is(err, ErrLobbyNotFound) {
		t.Fatalf("unknown lobby: %v", err)
	}

	clk.advance(2 * time.Minute)
	if n := m.Reap(); n != 1 {
		t.Fatalf("reaped %d, want the empty lobby only", n)
	}
	<-empty.Done()
	if _, err := m.Get(empty.ID); !errors.Is(err, ErrLobbyNotFound) {
		t.Fatal("reaped lobby still registered")
	}

	clk.advance(30 * time.Minute)
	if n := m.Reap(); n != 1 || m.Len() != 0 {
		t.Fatalf("idle lobby not reaped: %d, len %d", n, m.Len())
	}
}

func containsRune(s string, r rune) bool {
	for _, c := range s {
		if c == r {
			return true
		}
	}
	return false
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{ErrNotHost, "not_host"},
		{ErrNotAllReady, "not_all_ready"},
		{fmt.Errorf("wrapped: %w", ErrKickSelf), "kick_self"},
		{puzzle.ErrUnknownDifficulty, "invalid_difficulty"},
		{movies.ErrNoMovie, "no_movies"},
		{ErrLobbyClosed, "lobby_closed"},
		{errors.New("boom"), "bad_request"},
	}
	for _, tc := range tests {
		if got := ErrorCode(tc.err); got != tc.want {
			t.Errorf("ErrorCode(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
