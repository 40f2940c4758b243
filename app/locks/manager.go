package locks

import (
	"log/slog"
	"sync"
	"time"

	"github.com/lysyi3m/sports-comb/app/feed"
)

const DefaultStaleAfter = 600 * time.Second

type entry struct {
	held       chan struct{} // capacity 1; a buffered token means Held
	acquiredAt time.Time
	releasedAt time.Time
}

// Manager hands out one refresh slot per (source, section). A slot held for
// longer than StaleAfter is granted to the next caller regardless; the
// original holder's release then frees the slot for everyone.
type Manager struct {
	staleAfter time.Duration
	now        func() time.Time

	mu      sync.Mutex
	entries map[feed.SectionKey]*entry
}

func NewManager(staleAfter time.Duration) *Manager {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &Manager{
		staleAfter: staleAfter,
		now:        time.Now,
		entries:    make(map[feed.SectionKey]*entry),
	}
}

// Acquire returns false only when key is held and the hold is not stale.
func (m *Manager) Acquire(key feed.SectionKey) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.pruneLocked(now)

	e, ok := m.entries[key]
	if !ok {
		e = &entry{held: make(chan struct{}, 1)}
		m.entries[key] = e
	}

	select {
	case e.held <- struct{}{}:
		e.acquiredAt = now
		return true
	default:
	}

	heldFor := now.Sub(e.acquiredAt)
	if heldFor <= m.staleAfter {
		return false
	}

	slog.Warn("Overriding stale section lock", "source", key.Source, "section", key.Section, "held_for", heldFor)
	e.acquiredAt = now
	return true
}

// Release is idempotent and ignores unknown keys. Slots are not owned: once a
// stale lock has been overridden, the original holder's Release frees the slot
// while the new holder is still running, and a third caller may then acquire it.
func (m *Manager) Release(key feed.SectionKey) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return
	}

	select {
	case <-e.held:
		e.releasedAt = m.now()
	default:
	}
}

// IsHeld reports whether key is currently held, stale or not.
func (m *Manager) IsHeld(key feed.SectionKey) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	return ok && len(e.held) == 1
}

// Held lists the keys currently held together with the time they were last
// acquired.
func (m *Manager) Held() map[feed.SectionKey]time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()

	held := make(map[feed.SectionKey]time.Time)
	for key, e := range m.entries {
		if len(e.held) == 1 {
			held[key] = e.acquiredAt
		}
	}
	return held
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// pruneLocked drops free entries that have been idle longer than the stale
// threshold. Held entries are never dropped.
func (m *Manager) pruneLocked(now time.Time) {
	for key, e := range m.entries {
		if len(e.held) == 0 && now.Sub(e.releasedAt) > m.staleAfter {
			delete(m.entries, key)
		}
	}
}
