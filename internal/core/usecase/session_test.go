package usecase

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestGetOrCreateMintsIDWhenMissing(t *testing.T) {
	seq := 0
	m := NewSessionManager(nil, SessionOptions{NewID: func() string {
		seq++
		return fmt.Sprintf("sess-%d", seq)
	}})

	s := m.GetOrCreate("  ")
	if s.ID != "sess-1" {
		t.Fatalf("expected minted id, got %q", s.ID)
	}
	if again := m.GetOrCreate("sess-1"); again != s {
		t.Fatalf("expected same session for known id")
	}
	if other := m.GetOrCreate("client-chosen"); other.ID != "client-chosen" {
		t.Fatalf("expected first reference to create session under given id, got %q", other.ID)
	}
	if m.Count() != 2 {
		t.Fatalf("expected 2 sessions, got %d", m.Count())
	}
}

func TestSweepEvictsOnlyIdleSessions(t *testing.T) {
	clock := &manualClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	var swept []int
	m := NewSessionManager(nil, SessionOptions{
		Timeout: 60 * time.Minute,
		Now:     clock.Now,
		OnSweep: func(evicted, _ int) { swept = append(swept, evicted) },
	})

	m.GetOrCreate("idle")
	clock.Advance(30 * time.Minute)
	m.GetOrCreate("busy")

	clock.Advance(60 * time.Minute)
	if m.Count() != 2 {
		t.Fatalf("idle session must be present before sweep")
	}

	evicted := m.Sweep()
	if len(evicted) != 1 || evicted[0] != "idle" {
		t.Fatalf("expected only idle session evicted, got %v", evicted)
	}
	if m.Count() != 1 {
		t.Fatalf("expected one remaining session, got %d", m.Count())
	}
	if len(swept) != 1 || swept[0] != 1 {
		t.Fatalf("expected sweep callback with one eviction, got %v", swept)
	}
}

func TestSweepKeepsSessionAtExactTimeout(t *testing.T) {
	clock := &manualClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	m := NewSessionManager(nil, SessionOptions{Timeout: time.Minute, Now: clock.Now})
	m.GetOrCreate("s")
	clock.Advance(time.Minute)
	if len(m.Sweep()) != 0 {
		t.Fatalf("session idle for exactly the timeout must survive")
	}
}

func TestSweeperStopJoinsLoop(t *testing.T) {
	clock := &manualClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	m := NewSessionManager(nil, SessionOptions{Timeout: time.Minute, Now: clock.Now})
	m.GetOrCreate("s")
	clock.Advance(2 * time.Minute)

	sw := m.StartSweeper(context.Background(), 5*time.Millisecond)
	deadline := time.Now().Add(2 * time.Second)
	for m.Count() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	sw.Stop()

	if m.Count() != 0 {
		t.Fatalf("expected background sweep to evict expired session")
	}
}

func TestGetOrCreateConcurrentSameID(t *testing.T) {
	m := NewSessionManager(nil, SessionOptions{})
	var wg sync.WaitGroup
	sessions := make([]*Session, 32)
	for i := range sessions {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sessions[i] = m.GetOrCreate("shared")
		}(i)
	}
	wg.Wait()
	for _, s := range sessions {
		if s != sessions[0] {
			t.Fatalf("expected a single session instance for a shared id")
		}
	}
}
