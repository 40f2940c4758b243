package locks

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lysyi3m/sports-comb/app/feed"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestManager(staleAfter time.Duration) (*Manager, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 5, 10, 18, 0, 0, 0, time.UTC)}
	m := NewManager(staleAfter)
	m.now = clock.Now
	return m, clock
}

var geFutebol = feed.SectionKey{Source: "ge", Section: "futebol"}

func TestAcquireRelease(t *testing.T) {
	m, _ := newTestManager(time.Minute)

	if !m.Acquire(geFutebol) {
		t.Fatal("Expected first acquire to succeed")
	}
	if m.Acquire(geFutebol) {
		t.Error("Expected second acquire to fail while held")
	}
	if !m.IsHeld(geFutebol) {
		t.Error("Expected key to be held")
	}

	m.Release(geFutebol)

	if m.IsHeld(geFutebol) {
		t.Error("Expected key to be free after release")
	}
	if !m.Acquire(geFutebol) {
		t.Error("Expected acquire after release to succeed")
	}
}

func TestAcquireIndependentKeys(t *testing.T) {
	m, _ := newTestManager(time.Minute)

	if !m.Acquire(geFutebol) {
		t.Fatal("Expected acquire to succeed")
	}
	if !m.Acquire(feed.SectionKey{Source: "ge", Section: "basquete"}) {
		t.Error("Expected acquire on a different section to succeed")
	}
	if !m.Acquire(feed.SectionKey{Source: "lance", Section: "futebol"}) {
		t.Error("Expected acquire on a different source to succeed")
	}
}

func TestConcurrentAcquireExactlyOneWins(t *testing.T) {
	for round := 0; round < 50; round++ {
		m := NewManager(time.Hour)

		var wins atomic.Int32
		var wg sync.WaitGroup
		start := make(chan struct{})

		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				if m.Acquire(geFutebol) {
					wins.Add(1)
				}
			}()
		}

		close(start)
		wg.Wait()

		if wins.Load() != 1 {
			t.Fatalf("Round %d: expected exactly one winner, got %d", round, wins.Load())
		}
	}
}

func TestStaleLockOverride(t *testing.T) {
	m, clock := newTestManager(2 * time.Minute)

	if !m.Acquire(geFutebol) {
		t.Fatal("Expected first acquire to succeed")
	}

	clock.Advance(2 * time.Minute)
	if m.Acquire(geFutebol) {
		t.Error("Expected acquire at exactly the threshold to fail")
	}

	clock.Advance(time.Second)
	if !m.Acquire(geFutebol) {
		t.Error("Expected acquire on a stale lock to succeed")
	}

	if m.Acquire(geFutebol) {
		t.Error("Expected the override to reset the hold timer")
	}
}

func TestReleaseAfterStaleOverrideFreesSlot(t *testing.T) {
	m, clock := newTestManager(time.Minute)

	m.Acquire(geFutebol)
	clock.Advance(time.Minute + time.Second)
	if !m.Acquire(geFutebol) {
		t.Fatal("Expected stale override to succeed")
	}

	// The first holder finishes late and releases.
	m.Release(geFutebol)

	if !m.Acquire(geFutebol) {
		t.Error("Expected the slot to be free after the original holder released")
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	m, _ := newTestManager(time.Minute)

	m.Release(geFutebol)

	m.Acquire(geFutebol)
	m.Release(geFutebol)
	m.Release(geFutebol)

	if !m.Acquire(geFutebol) {
		t.Error("Expected acquire to succeed after repeated releases")
	}
	if m.Acquire(geFutebol) {
		t.Error("Expected repeated releases not to leave extra capacity")
	}
}

func TestIdleEntriesArePruned(t *testing.T) {
	m, clock := newTestManager(time.Minute)
	other := feed.SectionKey{Source: "lance", Section: "flamengo"}

	m.Acquire(geFutebol)
	m.Release(geFutebol)
	m.Acquire(other)

	clock.Advance(2 * time.Minute)
	m.Acquire(feed.SectionKey{Source: "marca", Section: "futbol"})

	if m.Len() != 2 {
		t.Errorf("Expected 2 entries after pruning, got %d", m.Len())
	}
	if !m.IsHeld(other) {
		t.Error("Expected held entry to survive pruning")
	}

	held := m.Held()
	if _, ok := held[geFutebol]; ok {
		t.Error("Expected released key not to be reported as held")
	}
	if len(held) != 2 {
		t.Errorf("Expected 2 held keys, got %d", len(held))
	}
}
