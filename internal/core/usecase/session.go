package usecase

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	defaultSessionTimeout = 60 * time.Minute
	defaultSweepInterval  = 5 * time.Minute
)

// Session pairs a conversation with its own lock. Turn mutation happens only
// while the session lock is held.
type Session struct {
	ID string

	mu           sync.Mutex
	conversation *Conversation
	lastActivity time.Time
}

func (s *Session) Lock()   { s.mu.Lock() }
func (s *Session) Unlock() { s.mu.Unlock() }

func (s *Session) Conversation() *Conversation {
	return s.conversation
}

type SessionOptions struct {
	Timeout    time.Duration
	MaxHistory int
	Now        func() time.Time
	NewID      func() string
	// OnSweep is called after each sweep with the eviction count and remaining table size.
	OnSweep func(evicted, remaining int)
}

// SessionManager owns the session table. Creation, touch and eviction share
// one table-wide lock.
type SessionManager struct {
	mu       sync.Mutex
	sessions map[string]*Session

	meta *MetaMatcher
	opts SessionOptions
}

func NewSessionManager(meta *MetaMatcher, opts SessionOptions) *SessionManager {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultSessionTimeout
	}
	if opts.MaxHistory <= 0 {
		opts.MaxHistory = defaultMaxHistory
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &SessionManager{
		sessions: make(map[string]*Session),
		meta:     meta,
		opts:     opts,
	}
}

// GetOrCreate returns the session for id, creating it on first reference. An
// empty id mints a fresh one. Either way last activity is set to now.
func (m *SessionManager) GetOrCreate(id string) *Session {
	id = strings.TrimSpace(id)

	m.mu.Lock()
	defer m.mu.Unlock()

	if id == "" {
		id = m.opts.NewID()
		for m.sessions[id] != nil {
			id = m.opts.NewID()
		}
	}
	session, ok := m.sessions[id]
	if !ok {
		session = &Session{
			ID:           id,
			conversation: NewConversation(m.opts.MaxHistory, m.meta),
		}
		m.sessions[id] = session
	}
	session.lastActivity = m.opts.Now()
	return session
}

// Sweep evicts sessions idle for longer than the timeout and returns their ids.
func (m *SessionManager) Sweep() []string {
	m.mu.Lock()
	now := m.opts.Now()
	var evicted []string
	for id, session := range m.sessions {
		if now.Sub(session.lastActivity) > m.opts.Timeout {
			delete(m.sessions, id)
			evicted = append(evicted, id)
		}
	}
	remaining := len(m.sessions)
	m.mu.Unlock()

	if m.opts.OnSweep != nil {
		m.opts.OnSweep(len(evicted), remaining)
	}
	return evicted
}

func (m *SessionManager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *SessionManager) Timeout() time.Duration {
	return m.opts.Timeout
}

// Sweeper is the handle of a running background sweep loop.
type Sweeper struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// StartSweeper runs Sweep every interval until ctx is cancelled or Stop is called.
func (m *SessionManager) StartSweeper(ctx context.Context, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	ctx, cancel := context.WithCancel(ctx)
	sw := &Sweeper{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(sw.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if evicted := m.Sweep(); len(evicted) > 0 {
					slog.Info("session_sweep", "evicted", len(evicted), "active", m.Count())
				}
			}
		}
	}()
	return sw
}

// Stop cancels the loop and waits for it to exit.
func (s *Sweeper) Stop() {
	if s == nil {
		return
	}
	s.cancel()
	<-s.done
}
