// internal/match/manager.go
//
// Manager is the lobby registry.
// Responsibilities:
//   - Mint collision-free lobby IDs (short, crypto-random, easy to type).
//   - Create, look up and close lobbies.
//   - Reap lobbies that are empty past a short grace period or idle past the lobby timeout.

package match

import (
	"crypto/rand"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrLobbyNotFound is returned by Get for unknown or reaped lobbies.
var ErrLobbyNotFound = errors.New("match: lobby not found")

// idAlphabet skips look-alike characters (0/O, 1/I/L).
const idAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// idLength is the lobby code length.
const idLength = 6

// emptyGrace is how long an empty lobby survives, so a host can reconnect.
const emptyGrace = time.Minute

// Manager holds every live lobby.
type Manager struct {
	opts         Options
	lobbyTimeout time.Duration

	mu      sync.Mutex
	lobbies map[string]*Lobby

	quit chan struct{}
	once sync.Once
}

// NewManager starts the reaper when lobbyTimeout > 0.
func NewManager(opts Options, lobbyTimeout time.Duration) *Manager {
	if opts.Clock == nil {
		opts.Clock = WallClock{}
	}
	m := &Manager{
		opts:         opts,
		lobbyTimeout: lobbyTimeout,
		lobbies:      make(map[string]*Lobby),
		quit:         make(chan struct{}),
	}
	if lobbyTimeout > 0 {
		go m.reaperLoop()
	}
	return m
}

// Create opens a lobby with settings. passcodeHash may be nil.
func (m *Manager) Create(settings Settings, passcodeHash []byte) (*Lobby, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.newIDLocked()
	l, err := NewLobby(id, settings, m.opts)
	if err != nil {
		return nil, err
	}
	l.PasscodeHash = passcodeHash
	m.lobbies[id] = l
	return l, nil
}

// Get looks a lobby up by ID.
func (m *Manager) Get(id string) (*Lobby, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.lobbies[id]; ok {
		return l, nil
	}
	return nil, ErrLobbyNotFound
}

// Len is the number of live lobbies.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.lobbies)
}

// Remove closes and forgets a lobby.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	l, ok := m.lobbies[id]
	delete(m.lobbies, id)
	m.mu.Unlock()
	if ok {
		l.Close()
	}
}

// Close stops the reaper and every lobby.
func (m *Manager) Close() {
	m.once.Do(func() { close(m.quit) })
	m.mu.Lock()
	all := m.lobbies
	m.lobbies = make(map[string]*Lobby)
	m.mu.Unlock()
	for _, l := range all {
		l.Close()
	}
}

func (m *Manager) newIDLocked() string {
	buf := make([]byte, idLength)
	for {
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		out := make([]byte, idLength)
		for i := range out {
			out[i] = idAlphabet[int(buf[i])%len(idAlphabet)]
		}
		if _, exists := m.lobbies[string(out)]; !exists {
			return string(out)
		}
	}
}

// Reap closes lobbies that are empty past the grace period or idle past the
// lobby timeout, and returns how many were removed.
func (m *Manager) Reap() int {
	now := m.opts.Clock.Now()
	var stale []*Lobby

	m.mu.Lock()
	for id, l := range m.lobbies {
		idle := now.Sub(l.LastActive())
		if (l.Players() == 0 && idle > emptyGrace) || (m.lobbyTimeout > 0 && idle > m.lobbyTimeout) {
			delete(m.lobbies, id)
			stale = append(stale, l)
		}
	}
	m.mu.Unlock()

	for _, l := range stale {
		log.Info().Str("lobby", l.ID).Msg("reaping idle lobby")
		l.Close()
	}
	return len(stale)
}

func (m *Manager) reaperLoop() {
	every := m.lobbyTimeout / 2
	if every > emptyGrace {
		every = emptyGrace
	}
	t := m.opts.Clock.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-m.quit:
			return
		case <-t.C():
			m.Reap()
		}
	}
}
