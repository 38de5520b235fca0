// internal/match/lobby.go
//
// Lobby is the goroutine that owns one Match.
// Responsibilities:
//   - Serialize every inbound command, timer tick and movie fetch through one loop.
//   - Own the one-second ticker: started on countdown, stopped on reset, end or close.
//   - Fetch round movies off-loop and apply them when they arrive.
//   - Push per-player snapshots and chat to subscribers (non-blocking, lossy).
//   - Report closed-round ranks to a RankRecorder in the background.
//   - Drop players that have gone quiet for longer than the player timeout.

package match

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/robalobadob/reelfling/internal/movies"
	"github.com/robalobadob/reelfling/internal/puzzle"
	"github.com/robalobadob/reelfling/internal/session"
)

var (
	ErrLobbyClosed  = errors.New("match: lobby closed")
	ErrStartPending = errors.New("match: start already in progress")
	ErrEmptyChat    = errors.New("match: empty chat message")
)

const (
	// ChatHistory is the number of chat messages a lobby keeps.
	ChatHistory = 50
	// MaxChatLength bounds a chat message in runes.
	MaxChatLength = 280

	fetchTimeout  = 10 * time.Second
	recordTimeout = 5 * time.Second
	subBuffer     = 16
)

// Kind names an inbound command.
type Kind string

const (
	CmdJoin      Kind = "join"
	CmdLeave     Kind = "leave"
	CmdReady     Kind = "ready"
	CmdConfigure Kind = "configure"
	CmdStart     Kind = "start"
	CmdGuess     Kind = "guess"
	CmdHint      Kind = "hint"
	CmdKick      Kind = "kick"
	CmdChat      Kind = "chat"
	CmdPlayAgain Kind = "play_again"
	CmdSync      Kind = "sync"
	CmdTouch     Kind = "touch"
)

// Command is one inbound event. PlayerID is always the acting player.
type Command struct {
	Kind     Kind
	PlayerID string
	Name     string
	Target   string
	Ready    bool
	Settings Settings
	Round    int
	Letter   rune
	Text     string
}

// ChatMessage is one lobby chat line.
type ChatMessage struct {
	PlayerID string    `json:"playerId"`
	Name     string    `json:"displayName"`
	Text     string    `json:"text"`
	At       time.Time `json:"at"`
}

// Outbound is pushed to subscribers.
type Outbound struct {
	Type  string        `json:"type"` // state | chat | error | kicked
	State *Snapshot     `json:"state,omitempty"`
	Chat  []ChatMessage `json:"chat,omitempty"`
	Error string        `json:"error,omitempty"`
}

// RankRecord is one ranked finish in a closed round.
type RankRecord struct {
	MatchID        string
	Round          int
	MovieID        int
	PlayerID       string
	Name           string
	Rank           int
	CompletionTime int
}

// RankRecorder persists ranked finishes.
type RankRecorder interface {
	RecordSessionRank(ctx context.Context, r RankRecord) error
}

// Options are the dependencies shared by every lobby.
type Options struct {
	Provider      movies.Provider
	Recorder      RankRecorder // optional
	Clock         Clock        // nil means WallClock
	Policy        session.HintPolicy
	PlayerTimeout time.Duration // 0 disables the inactivity sweep
}

// Subscription receives a player's outbound messages. C is closed when the
// player leaves, is kicked, reconnects elsewhere or the lobby closes.
type Subscription struct {
	PlayerID string
	C        <-chan Outbound

	c    chan Outbound
	once sync.Once
}

func (s *Subscription) close() { s.once.Do(func() { close(s.c) }) }

type request struct {
	cmd   Command
	reply chan reply
}

type reply struct {
	snap Snapshot
	err  error
}

type fetchResult struct {
	actor    string
	epoch    uint64
	settings Settings
	list     []movies.Movie
	err      error
}

// Lobby wraps a Match with its own goroutine.
type Lobby struct {
	ID           string
	PasscodeHash []byte // empty for open lobbies
	CreatedAt    time.Time

	opts  Options
	clock Clock
	match *Match

	inbox   chan request
	fetched chan fetchResult
	quit    chan struct{}
	done    chan struct{}
	closeMu sync.Once

	// loop-owned
	ticker    Ticker
	tickEpoch uint64
	starting  bool
	chat      []ChatMessage
	seen      map[string]time.Time

	subsMu sync.Mutex
	subs   map[string]*Subscription

	lastActive atomic.Int64
	players    atomic.Int32
}

// NewLobby starts a lobby goroutine for a fresh match.
func NewLobby(id string, settings Settings, opts Options) (*Lobby, error) {
	m, err := New(id, settings, opts.Policy)
	if err != nil {
		return nil, err
	}
	clock := opts.Clock
	if clock == nil {
		clock = WallClock{}
	}
	l := &Lobby{
		ID:        id,
		CreatedAt: clock.Now(),
		opts:      opts,
		clock:     clock,
		match:     m,
		inbox:     make(chan request),
		fetched:   make(chan fetchResult),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
		seen:      make(map[string]time.Time),
		subs:      make(map[string]*Subscription),
	}
	l.touch()
	go l.run()
	log.Info().Str("lobby", id).Msg("lobby opened")
	return l, nil
}

// Submit queues cmd and waits for it to be applied.
func (l *Lobby) Submit(ctx context.Context, cmd Command) error {
	_, err := l.call(ctx, cmd)
	return err
}

// Snapshot returns the match as seen by viewer.
func (l *Lobby) Snapshot(ctx context.Context, viewer string) (Snapshot, error) {
	return l.call(ctx, Command{Kind: CmdSync, PlayerID: viewer})
}

func (l *Lobby) call(ctx context.Context, cmd Command) (Snapshot, error) {
	req := request{cmd: cmd, reply: make(chan reply, 1)}
	select {
	case l.inbox <- req:
	case <-l.quit:
		return Snapshot{}, ErrLobbyClosed
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
	select {
	case r := <-req.reply:
		return r.snap, r.err
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

// Subscribe registers playerID for outbound messages and pushes the current
// state plus chat log. A previous subscription for the same player is closed.
func (l *Lobby) Subscribe(ctx context.Context, playerID string) (*Subscription, error) {
	c := make(chan Outbound, subBuffer)
	sub := &Subscription{PlayerID: playerID, C: c, c: c}

	l.subsMu.Lock()
	if old, ok := l.subs[playerID]; ok {
		old.close()
	}
	l.subs[playerID] = sub
	l.subsMu.Unlock()

	if _, err := l.call(ctx, Command{Kind: CmdSync, PlayerID: playerID, Ready: true}); err != nil {
		l.Unsubscribe(sub)
		return nil, err
	}
	return sub, nil
}

// Unsubscribe detaches sub if it is still the player's current subscription.
func (l *Lobby) Unsubscribe(sub *Subscription) {
	l.subsMu.Lock()
	defer l.subsMu.Unlock()
	if l.subs[sub.PlayerID] == sub {
		delete(l.subs, sub.PlayerID)
	}
	sub.close()
}

// Close stops the lobby goroutine and its ticker.
func (l *Lobby) Close() {
	l.closeMu.Do(func() { close(l.quit) })
	<-l.done
}

// Done is closed once the lobby goroutine has exited.
func (l *Lobby) Done() <-chan struct{} { return l.done }

// LastActive is the time of the last applied command.
func (l *Lobby) LastActive() time.Time { return time.Unix(0, l.lastActive.Load()) }

// Players is the current number of players.
func (l *Lobby) Players() int { return int(l.players.Load()) }

func (l *Lobby) touch() { l.lastActive.Store(l.clock.Now().UnixNano()) }

func (l *Lobby) run() {
	defer close(l.done)
	defer l.shutdown()

	var sweepC <-chan time.Time
	if l.opts.PlayerTimeout > 0 {
		sweep := l.clock.NewTicker(l.opts.PlayerTimeout / 2)
		defer sweep.Stop()
		sweepC = sweep.C()
	}

	for {
		var tickC <-chan time.Time
		if l.ticker != nil {
			tickC = l.ticker.C()
		}

		var (
			changed bool
			pending *request
			r       reply
		)
		select {
		case <-l.quit:
			return

		case req := <-l.inbox:
			changed, r.err = l.handle(req.cmd)
			if req.cmd.Kind == CmdSync && r.err == nil {
				r.snap = l.match.Snapshot(req.cmd.PlayerID)
			}
			pending = &req

		case res := <-l.fetched:
			changed = l.finishStart(res)

		case <-tickC:
			changed = l.match.Tick(l.tickEpoch)

		case <-sweepC:
			changed = l.sweep()
		}

		l.syncTicker()
		l.flushRounds()
		l.players.Store(int32(l.match.Len()))
		if changed {
			l.broadcast()
		}
		// Reply last so callers observe the ticker, counters and broadcasts already applied.
		if pending != nil {
			pending.reply <- r
		}
	}
}

func (l *Lobby) shutdown() {
	l.stopTicker()
	l.subsMu.Lock()
	for id, s := range l.subs {
		s.close()
		delete(l.subs, id)
	}
	l.subsMu.Unlock()
	log.Info().Str("lobby", l.ID).Msg("lobby closed")
}

// handle applies one command and reports whether a broadcast is due.
func (l *Lobby) handle(c Command) (bool, error) {
	m := l.match
	if c.Kind != CmdJoin {
		if _, ok := m.Player(c.PlayerID); !ok {
			// The public snapshot is available to anyone.
			if c.Kind == CmdSync && c.PlayerID == "" {
				return false, nil
			}
			return false, ErrUnknownPlayer
		}
	}
	l.seen[c.PlayerID] = l.clock.Now()
	if c.Kind != CmdTouch && c.Kind != CmdSync {
		l.touch()
	}

	switch c.Kind {
	case CmdJoin:
		added, err := m.Join(c.PlayerID, c.Name)
		if err != nil {
			delete(l.seen, c.PlayerID)
		}
		return added, err

	case CmdLeave:
		m.Leave(c.PlayerID)
		l.drop(c.PlayerID, "")
		return true, nil

	case CmdReady:
		target := c.Target
		if target == "" {
			target = c.PlayerID
		}
		return true, m.SetReady(c.PlayerID, target, c.Ready)

	case CmdConfigure:
		if l.starting {
			return false, ErrStartPending
		}
		return true, m.Configure(c.PlayerID, c.Settings)

	case CmdStart:
		return false, l.beginStart(c.PlayerID)

	case CmdGuess:
		return m.Guess(c.PlayerID, c.Round, c.Letter), nil

	case CmdHint:
		_, err := m.Hint(c.PlayerID, c.Round)
		return err == nil, err

	case CmdKick:
		if err := m.Kick(c.PlayerID, c.Target); err != nil {
			return false, err
		}
		l.drop(c.Target, "kicked")
		return true, nil

	case CmdChat:
		return false, l.postChat(c)

	case CmdPlayAgain:
		return true, m.PlayAgain(c.PlayerID)

	case CmdSync:
		// Subscribe sets Ready to ask for the chat log along with the state.
		if c.Ready {
			snap := m.Snapshot(c.PlayerID)
			l.send(c.PlayerID, Outbound{Type: "state", State: &snap, Chat: l.chatLog()})
		}
		return false, nil

	case CmdTouch:
		return false, nil
	}
	return false, errors.New("match: unknown command " + string(c.Kind))
}

// beginStart validates and kicks off the movie fetch. The match starts when
// the fetch result comes back through the loop.
func (l *Lobby) beginStart(actor string) error {
	if l.starting {
		return ErrStartPending
	}
	if err := l.match.CheckStart(actor); err != nil {
		return err
	}
	if l.opts.Provider == nil {
		return movies.ErrNoMovie
	}
	l.starting = true
	settings := l.match.Settings()
	epoch := l.match.Epoch()
	provider := l.opts.Provider
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()
		list, err := provider.Movies(ctx, settings.Criteria(), settings.TotalRounds)
		select {
		case l.fetched <- fetchResult{actor: actor, epoch: epoch, settings: settings, list: list, err: err}:
		case <-l.quit:
		}
	}()
	return nil
}

func (l *Lobby) finishStart(res fetchResult) bool {
	l.starting = false
	err := res.err
	if err == nil && (res.epoch != l.match.Epoch() || res.settings != l.match.Settings()) {
		err = ErrWrongPhase
	}
	if err == nil {
		err = l.match.Start(res.actor, res.list)
	}
	if err != nil {
		log.Warn().Err(err).Str("lobby", l.ID).Msg("match start failed")
		l.send(res.actor, Outbound{Type: "error", Error: ErrorCode(err)})
		return false
	}
	log.Info().Str("lobby", l.ID).Int("rounds", res.settings.TotalRounds).
		Str("difficulty", string(res.settings.Difficulty)).Int("players", l.match.Len()).Msg("match started")
	return true
}

func (l *Lobby) postChat(c Command) error {
	text := strings.TrimSpace(c.Text)
	if text == "" {
		return ErrEmptyChat
	}
	if utf8.RuneCountInString(text) > MaxChatLength {
		text = string([]rune(text)[:MaxChatLength])
	}
	p, _ := l.match.Player(c.PlayerID)
	msg := ChatMessage{PlayerID: p.ID, Name: p.Name, Text: text, At: l.clock.Now().UTC()}
	l.chat = append(l.chat, msg)
	if len(l.chat) > ChatHistory {
		l.chat = append([]ChatMessage(nil), l.chat[len(l.chat)-ChatHistory:]...)
	}
	l.sendAll(Outbound{Type: "chat", Chat: []ChatMessage{msg}})
	return nil
}

func (l *Lobby) chatLog() []ChatMessage {
	return append([]ChatMessage(nil), l.chat...)
}

// sweep removes players not seen within the player timeout.
func (l *Lobby) sweep() bool {
	cutoff := l.clock.Now().Add(-l.opts.PlayerTimeout)
	changed := false
	for id, at := range l.seen {
		if !at.Before(cutoff) {
			continue
		}
		if l.match.Leave(id) {
			log.Info().Str("lobby", l.ID).Str("player", id).Msg("removed inactive player")
			changed = true
		}
		l.drop(id, "inactive")
	}
	return changed
}

// drop forgets a departed player and ends their subscription.
// A non-empty reason is delivered as a "kicked" message first.
func (l *Lobby) drop(id, reason string) {
	delete(l.seen, id)
	l.subsMu.Lock()
	defer l.subsMu.Unlock()
	s, ok := l.subs[id]
	if !ok {
		return
	}
	if reason != "" {
		select {
		case s.c <- Outbound{Type: "kicked", Error: reason}:
		default:
		}
	}
	s.close()
	delete(l.subs, id)
}

func (l *Lobby) syncTicker() {
	switch {
	case !l.match.Ticking():
		l.stopTicker()
	case l.ticker == nil || l.tickEpoch != l.match.Epoch():
		l.stopTicker()
		l.ticker = l.clock.NewTicker(time.Second)
		l.tickEpoch = l.match.Epoch()
	}
}

func (l *Lobby) stopTicker() {
	if l.ticker != nil {
		l.ticker.Stop()
		l.ticker = nil
	}
}

// flushRounds hands newly closed rounds to the recorder.
func (l *Lobby) flushRounds() {
	rounds := l.match.TakeClosedRounds()
	if l.opts.Recorder == nil {
		return
	}
	for _, r := range rounds {
		for _, e := range r.Players {
			if e.Rank == nil {
				continue
			}
			rec := RankRecord{
				MatchID:        l.ID,
				Round:          r.Round,
				MovieID:        r.MovieID,
				PlayerID:       e.PlayerID,
				Name:           e.Name,
				Rank:           *e.Rank,
				CompletionTime: *e.CompletionTime,
			}
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
				defer cancel()
				if err := l.opts.Recorder.RecordSessionRank(ctx, rec); err != nil {
					log.Warn().Err(err).Str("lobby", rec.MatchID).Str("player", rec.PlayerID).Msg("record session rank")
				}
			}()
		}
	}
}

func (l *Lobby) broadcast() {
	l.subsMu.Lock()
	defer l.subsMu.Unlock()
	for id, s := range l.subs {
		snap := l.match.Snapshot(id)
		trySend(s, Outbound{Type: "state", State: &snap})
	}
}

func (l *Lobby) send(id string, msg Outbound) {
	l.subsMu.Lock()
	defer l.subsMu.Unlock()
	if s, ok := l.subs[id]; ok {
		trySend(s, msg)
	}
}

func (l *Lobby) sendAll(msg Outbound) {
	l.subsMu.Lock()
	defer l.subsMu.Unlock()
	for _, s := range l.subs {
		trySend(s, msg)
	}
}

// trySend drops the message when the subscriber is not keeping up.
// Callers hold subsMu, so the channel cannot be closed underneath.
func trySend(s *Subscription, msg Outbound) {
	select {
	case s.c <- msg:
	default:
		log.Debug().Str("player", s.PlayerID).Str("type", msg.Type).Msg("subscriber slow, message dropped")
	}
}

// ErrorCode maps errors to the short codes used on the wire.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrNotHost):
		return "not_host"
	case errors.Is(err, ErrNotSelf):
		return "not_self"
	case errors.Is(err, ErrWrongPhase):
		return "wrong_phase"
	case errors.Is(err, ErrUnknownPlayer):
		return "unknown_player"
	case errors.Is(err, ErrKickSelf):
		return "kick_self"
	case errors.Is(err, ErrNotAllReady):
		return "not_all_ready"
	case errors.Is(err, ErrInvalidRounds):
		return "invalid_rounds"
	case errors.Is(err, puzzle.ErrUnknownDifficulty):
		return "invalid_difficulty"
	case errors.Is(err, ErrInvalidName):
		return "invalid_name"
	case errors.Is(err, ErrNoHintsLeft):
		return "no_hints_left"
	case errors.Is(err, ErrNoHintAvailable):
		return "no_hint_available"
	case errors.Is(err, ErrLobbyFull):
		return "lobby_full"
	case errors.Is(err, ErrStartPending):
		return "start_pending"
	case errors.Is(err, ErrEmptyChat):
		return "empty_chat"
	case errors.Is(err, movies.ErrNoMovie):
		return "no_movies"
	case errors.Is(err, ErrLobbyClosed):
		return "lobby_closed"
	}
	return "bad_request"
}
