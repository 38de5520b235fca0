// internal/match/match.go
//
// Multiplayer match state machine.
// Responsibilities:
//   - Lobby: join/leave, host-only configure and kick, self-only ready toggle.
//   - Countdown: fixed 5 ticks before the first round.
//   - Rounds: one shared movie per round, an independent puzzle per player,
//     completion times and ranks for winners, timeout failing every unfinished player.
//   - Results: per-round history and the final standings once the match ends.
//
// Notes:
//   - Match is not goroutine-safe. Lobby owns one and feeds it events serially.
//   - Ticks carry the epoch they were scheduled under; a stale epoch is dropped.
//   - Late or invalid guesses are no-ops, never errors.

package match

import (
	"errors"
	"slices"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/robalobadob/reelfling/internal/movies"
	"github.com/robalobadob/reelfling/internal/puzzle"
	"github.com/robalobadob/reelfling/internal/session"
)

var (
	ErrNotHost         = errors.New("match: host only")
	ErrNotSelf         = errors.New("match: players may only change their own ready flag")
	ErrWrongPhase      = errors.New("match: not allowed in this phase")
	ErrUnknownPlayer   = errors.New("match: unknown player")
	ErrKickSelf        = errors.New("match: host cannot kick themselves")
	ErrNotAllReady     = errors.New("match: not every player is ready")
	ErrInvalidRounds   = errors.New("match: rounds must be between 1 and 10")
	ErrMovieCount      = errors.New("match: one movie per round required")
	ErrInvalidName     = errors.New("match: display name required")
	ErrNoHintsLeft     = errors.New("match: no hints left")
	ErrNoHintAvailable = errors.New("match: no hint available")
	ErrLobbyFull       = errors.New("match: lobby is full")
)

// Phase is the match lifecycle.
type Phase string

const (
	PhaseLobby     Phase = "lobby"
	PhaseCountdown Phase = "countdown"
	PhasePlaying   Phase = "playing"
	PhaseEnded     Phase = "ended"
)

const (
	// CountdownSeconds precede the first round.
	CountdownSeconds = 5
	// MaxRounds bounds Settings.TotalRounds.
	MaxRounds = 10
	// MaxPlayers bounds lobby size.
	MaxPlayers = 16
	// MaxNameLength is the display name limit in runes.
	MaxNameLength = 24
)

// RoundSeconds is the round timer for a difficulty.
func RoundSeconds(d puzzle.Difficulty) int {
	switch d {
	case puzzle.Easy:
		return 180
	case puzzle.Hard:
		return 60
	default:
		return 120
	}
}

// Settings are chosen by the host in the lobby.
type Settings struct {
	Difficulty  puzzle.Difficulty `json:"difficulty"`
	TotalRounds int               `json:"totalRounds"`
	Genre       string            `json:"genre,omitempty"`
	Industry    string            `json:"industry,omitempty"`
}

// DefaultSettings is medium difficulty over three rounds.
func DefaultSettings() Settings {
	return Settings{Difficulty: puzzle.Medium, TotalRounds: 3}
}

// Validate rejects malformed configuration.
func (s Settings) Validate() error {
	if !s.Difficulty.Valid() {
		return puzzle.ErrUnknownDifficulty
	}
	if s.TotalRounds <= 0 || s.TotalRounds > MaxRounds {
		return ErrInvalidRounds
	}
	return nil
}

// Criteria is the movie request for these settings.
func (s Settings) Criteria() movies.Criteria {
	return movies.Criteria{Genre: s.Genre, Industry: s.Industry, Difficulty: s.Difficulty}
}

// Player is one participant.
type Player struct {
	ID    string
	Name  string
	Ready bool

	puzzle     *puzzle.State
	hintsLeft  int
	completion *int
	rank       *int

	roundsWon int
	totalTime int
}

// Match is the authoritative state of one multiplayer game.
type Match struct {
	ID string

	policy   session.HintPolicy
	settings Settings
	hostID   string
	players  []*Player // join order

	phase     Phase
	epoch     uint64
	countdown int
	round     int
	remaining int
	movies    []movies.Movie

	history []RoundResult
	pending []RoundResult
}

// New creates an empty match in the lobby phase. The first player to join hosts it.
func New(id string, settings Settings, policy session.HintPolicy) (*Match, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if policy == "" {
		policy = session.PolicyDifficulty
	}
	return &Match{ID: id, policy: policy, settings: settings, phase: PhaseLobby}, nil
}

// Phase reports the current phase.
func (m *Match) Phase() Phase { return m.phase }

// Epoch identifies the current timer generation.
func (m *Match) Epoch() uint64 { return m.epoch }

// Ticking reports whether the match needs one-second ticks.
func (m *Match) Ticking() bool { return m.phase == PhaseCountdown || m.phase == PhasePlaying }

// HostID is the current host, empty when nobody is left.
func (m *Match) HostID() string { return m.hostID }

// Settings returns the active configuration.
func (m *Match) Settings() Settings { return m.settings }

// CurrentRound is the 0-based round index.
func (m *Match) CurrentRound() int { return m.round }

// Remaining is the round timer in seconds.
func (m *Match) Remaining() int { return m.remaining }

// Len is the number of players.
func (m *Match) Len() int { return len(m.players) }

// Player looks up a participant.
func (m *Match) Player(id string) (*Player, bool) {
	i := m.index(id)
	if i < 0 {
		return nil, false
	}
	return m.players[i], true
}

func (m *Match) index(id string) int {
	return slices.IndexFunc(m.players, func(p *Player) bool { return p.ID == id })
}

// DisplayName is name as a match stores it: trimmed and cut to MaxNameLength runes.
func DisplayName(name string) string {
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) > MaxNameLength {
		name = strings.TrimSpace(string([]rune(name)[:MaxNameLength]))
	}
	return name
}

// Join adds a player. Joining twice is a no-op that reports added == false.
func (m *Match) Join(id, name string) (added bool, err error) {
	if m.index(id) >= 0 {
		return false, nil
	}
	if m.phase != PhaseLobby && m.phase != PhaseEnded {
		return false, ErrWrongPhase
	}
	if len(m.players) >= MaxPlayers {
		return false, ErrLobbyFull
	}
	name = DisplayName(name)
	if name == "" || id == "" {
		return false, ErrInvalidName
	}
	m.players = append(m.players, &Player{ID: id, Name: name})
	if m.hostID == "" {
		m.hostID = id
	}
	return true, nil
}

// Leave removes a player. The next player by join order inherits the host role.
func (m *Match) Leave(id string) bool {
	i := m.index(id)
	if i < 0 {
		return false
	}
	m.players = slices.Delete(m.players, i, i+1)
	if m.hostID == id {
		m.hostID = ""
		if len(m.players) > 0 {
			m.hostID = m.players[0].ID
		}
	}
	if m.phase == PhasePlaying {
		m.rank()
		if len(m.players) > 0 && m.allTerminal() {
			m.closeRound(false)
		}
	}
	return true
}

// Kick lets the host remove another player.
func (m *Match) Kick(actor, target string) error {
	if actor != m.hostID {
		return ErrNotHost
	}
	if actor == target {
		return ErrKickSelf
	}
	if !m.Leave(target) {
		return ErrUnknownPlayer
	}
	return nil
}

// SetReady toggles target's ready flag. Only target itself may do so.
func (m *Match) SetReady(actor, target string, ready bool) error {
	if actor != target {
		return ErrNotSelf
	}
	if m.phase != PhaseLobby {
		return ErrWrongPhase
	}
	p, ok := m.Player(target)
	if !ok {
		return ErrUnknownPlayer
	}
	p.Ready = ready
	return nil
}

// Configure replaces the settings. Host only, lobby only.
func (m *Match) Configure(actor string, s Settings) error {
	if actor != m.hostID {
		return ErrNotHost
	}
	if m.phase != PhaseLobby {
		return ErrWrongPhase
	}
	if err := s.Validate(); err != nil {
		return err
	}
	m.settings = s
	return nil
}

// AllReady reports whether every player is ready. An empty lobby counts as ready.
func (m *Match) AllReady() bool {
	for _, p := range m.players {
		if !p.Ready {
			return false
		}
	}
	return true
}

// CheckStart reports whether actor may start the match right now.
func (m *Match) CheckStart(actor string) error {
	if actor != m.hostID {
		return ErrNotHost
	}
	if m.phase != PhaseLobby {
		return ErrWrongPhase
	}
	if !m.AllReady() {
		return ErrNotAllReady
	}
	return nil
}

// Start fixes the round movies and enters the countdown.
func (m *Match) Start(actor string, list []movies.Movie) error {
	if err := m.CheckStart(actor); err != nil {
		return err
	}
	if len(list) != m.settings.TotalRounds {
		return ErrMovieCount
	}
	for _, mv := range list {
		if err := mv.Validate(); err != nil {
			return err
		}
	}
	m.movies = slices.Clone(list)
	m.history = nil
	m.pending = nil
	m.round = 0
	m.remaining = 0
	for _, p := range m.players {
		p.roundsWon, p.totalTime = 0, 0
		p.puzzle, p.completion, p.rank = nil, nil, nil
	}
	m.phase = PhaseCountdown
	m.countdown = CountdownSeconds
	m.epoch++
	return nil
}

// Tick advances the countdown or round timer by one second.
// Ticks from an older epoch, or outside countdown/playing, are ignored.
func (m *Match) Tick(epoch uint64) bool {
	if epoch != m.epoch || !m.Ticking() {
		return false
	}
	switch m.phase {
	case PhaseCountdown:
		m.countdown--
		if m.countdown <= 0 {
			m.beginRound(0)
		}
	case PhasePlaying:
		m.remaining--
		switch {
		case m.remaining <= 0:
			m.remaining = 0
			m.closeRound(true)
		case len(m.players) > 0 && m.allTerminal():
			m.closeRound(false)
		}
	}
	return true
}

// Guess applies letter to playerID's puzzle for round.
// Returns false when nothing changed.
func (m *Match) Guess(playerID string, round int, letter rune) bool {
	p, ok := m.activePlayer(playerID, round)
	if !ok {
		return false
	}
	if p.puzzle.ApplyGuess(letter) == puzzle.Ignored {
		return false
	}
	m.afterMove(p)
	return true
}

// Hint spends one of playerID's hints for round and applies the hint letter.
func (m *Match) Hint(playerID string, round int) (rune, error) {
	p, ok := m.activePlayer(playerID, round)
	if !ok {
		return 0, ErrWrongPhase
	}
	if p.hintsLeft <= 0 {
		return 0, ErrNoHintsLeft
	}
	letter, ok := p.puzzle.HintLetter()
	if !ok {
		return 0, ErrNoHintAvailable
	}
	p.hintsLeft--
	p.puzzle.ApplyGuess(letter)
	m.afterMove(p)
	return letter, nil
}

func (m *Match) activePlayer(id string, round int) (*Player, bool) {
	if m.phase != PhasePlaying || round != m.round {
		return nil, false
	}
	p, ok := m.Player(id)
	if !ok || p.puzzle.Status() != puzzle.StatusPlaying {
		return nil, false
	}
	return p, true
}

// afterMove records a win and closes the round once everybody is done.
func (m *Match) afterMove(p *Player) {
	if p.puzzle.Status() == puzzle.StatusWon && p.completion == nil {
		t := RoundSeconds(m.settings.Difficulty) - m.remaining
		p.completion = &t
		m.rank()
	}
	if m.allTerminal() {
		m.closeRound(false)
	}
}

// Reset returns to the lobby keeping players. Ready flags are cleared.
func (m *Match) Reset() {
	m.phase = PhaseLobby
	m.epoch++
	m.movies = nil
	m.history = nil
	m.pending = nil
	m.round, m.remaining, m.countdown = 0, 0, 0
	for _, p := range m.players {
		p.Ready = false
		p.puzzle, p.completion, p.rank = nil, nil, nil
		p.hintsLeft, p.roundsWon, p.totalTime = 0, 0, 0
	}
}

// PlayAgain is the host's reset after a finished match.
func (m *Match) PlayAgain(actor string) error {
	if actor != m.hostID {
		return ErrNotHost
	}
	if m.phase != PhaseEnded {
		return ErrWrongPhase
	}
	m.Reset()
	return nil
}

// TakeClosedRounds returns rounds closed since the last call.
func (m *Match) TakeClosedRounds() []RoundResult {
	out := m.pending
	m.pending = nil
	return out
}

func (m *Match) beginRound(i int) {
	m.phase = PhasePlaying
	m.round = i
	m.remaining = RoundSeconds(m.settings.Difficulty)
	title := m.movies[i].Title
	for _, p := range m.players {
		// Titles are validated at Start.
		p.puzzle, _ = puzzle.New(title, m.settings.Difficulty)
		p.hintsLeft = m.policy.Allowance(m.settings.Difficulty)
		p.completion, p.rank = nil, nil
		if p.puzzle.Status() == puzzle.StatusWon {
			zero := 0
			p.completion = &zero
		}
	}
	m.rank()
}

func (m *Match) allTerminal() bool {
	for _, p := range m.players {
		if !p.puzzle.Status().Terminal() {
			return false
		}
	}
	return true
}

// closeRound ends the current round. On timeout every unfinished puzzle is
// failed before anything else is observed.
func (m *Match) closeRound(timeout bool) {
	if timeout {
		for _, p := range m.players {
			p.puzzle.Fail()
		}
	}
	m.rank()

	res := RoundResult{
		Round:    m.round,
		MovieID:  m.movies[m.round].ID,
		Title:    m.movies[m.round].Title,
		TimedOut: timeout,
		NoWinner: true,
		Players:  make([]RoundEntry, 0, len(m.players)),
	}
	for _, p := range m.players {
		e := RoundEntry{
			PlayerID: p.ID,
			Name:     p.Name,
			Status:   p.puzzle.Status(),
			Strikes:  p.puzzle.Strikes(),
		}
		if p.rank != nil {
			e.Rank = intPtr(*p.rank)
			e.CompletionTime = intPtr(*p.completion)
			res.NoWinner = false
			p.roundsWon++
			p.totalTime += *p.completion
		}
		res.Players = append(res.Players, e)
	}
	sortEntries(res.Players)
	m.history = append(m.history, res)
	m.pending = append(m.pending, res)

	if m.round+1 < len(m.movies) {
		m.beginRound(m.round + 1)
		return
	}
	m.phase = PhaseEnded
	m.remaining = 0
	m.epoch++
}

// rank recomputes ranks for winners of the current round.
func (m *Match) rank() {
	times := make([]*int, len(m.players))
	for i, p := range m.players {
		p.rank = nil
		if p.puzzle.Status() == puzzle.StatusWon {
			times[i] = p.completion
		}
	}
	for i, r := range Rank(times) {
		m.players[i].rank = r
	}
}

// Rank assigns 1-based ranks to non-nil completion times, ascending, with
// ties kept in input order. Nil entries stay unranked.
func Rank(times []*int) []*int {
	idx := make([]int, 0, len(times))
	for i, t := range times {
		if t != nil {
			idx = append(idx, i)
		}
	}
	sort.SliceStable(idx, func(a, b int) bool { return *times[idx[a]] < *times[idx[b]] })
	out := make([]*int, len(times))
	for pos, i := range idx {
		out[i] = intPtr(pos + 1)
	}
	return out
}

func intPtr(v int) *int { return &v }
