// internal/store/memory.go
//
// In-memory implementation of the Store interface for single-player sessions.
//
// Characteristics:
//   - Stores *session.Session objects keyed by ID in a map.
//   - Concurrency-safe via RWMutex (concurrent reads allowed, writes exclusive).
//   - Every Save/Get stamps the entry; Reap drops entries idle past a TTL.
//   - State is lost when the process restarts; finished games already live in
//     the results database.

package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/robalobadob/reelfling/internal/session"
)

// ErrNotFound is returned by Get for unknown IDs.
var ErrNotFound = errors.New("store: session not found")

// Store defines the persistence interface for live game sessions.
type Store interface {
	// Save persists or replaces a session.
	Save(ctx context.Context, s *session.Session) error

	// Get retrieves a session by ID, or ErrNotFound.
	Get(ctx context.Context, id string) (*session.Session, error)

	// Delete forgets a session. Unknown IDs are ignored.
	Delete(ctx context.Context, id string) error

	// Idle lists sessions last saved or read before cutoff.
	Idle(ctx context.Context, cutoff time.Time) ([]string, error)
}

type entry struct {
	sess *session.Session
	seen atomic.Int64 // unix nanos
}

// memory is an in-memory map-based Store implementation.
type memory struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	now      func() time.Time
}

// NewMemoryStore constructs a new in-memory Store.
func NewMemoryStore() Store {
	return &memory{sessions: make(map[string]*entry), now: time.Now}
}

func (m *memory) Save(ctx context.Context, s *session.Session) error {
	if s == nil || s.ID == "" {
		return errors.New("store: session needs an id")
	}
	e := &entry{sess: s}
	e.seen.Store(m.now().UnixNano())
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = e
	return nil
}

func (m *memory) Get(ctx context.Context, id string) (*session.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if e, ok := m.sessions[id]; ok {
		e.seen.Store(m.now().UnixNano())
		return e.sess, nil
	}
	return nil, ErrNotFound
}

func (m *memory) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *memory) Idle(ctx context.Context, cutoff time.Time) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []string
	for id, e := range m.sessions {
		if e.seen.Load() < cutoff.UnixNano() {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Reap deletes sessions idle for longer than ttl and returns how many went.
func Reap(ctx context.Context, st Store, now time.Time, ttl time.Duration) (int, error) {
	ids, err := st.Idle(ctx, now.Add(-ttl))
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		if err := st.Delete(ctx, id); err != nil {
			return 0, err
		}
	}
	return len(ids), nil
}

// RunReaper calls Reap every ttl/2 until ctx is done. ttl <= 0 returns at once.
func RunReaper(ctx context.Context, st Store, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	t := time.NewTicker(ttl / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := Reap(ctx, st, now, ttl)
			if err != nil {
				log.Warn().Err(err).Msg("reap sessions")
				continue
			}
			if n > 0 {
				log.Debug().Int("sessions", n).Msg("reaped idle sessions")
			}
		}
	}
}
