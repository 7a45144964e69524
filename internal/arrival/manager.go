package arrival

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/albapepper/arrival/internal/location"
)

// ErrStoppedWhileStarting is returned by Manager.Start when the session was
// stopped before it finished starting.
var ErrStoppedWhileStarting = errors.New("session stopped while starting")

// Manager tracks one session per user.
type Manager struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(cfg Config, deps Deps, logger *slog.Logger) *Manager {
	return &Manager{
		cfg:      cfg,
		deps:     deps,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// Start starts (or returns the already running) session for userID.
func (m *Manager) Start(ctx context.Context, userID string) (*Session, error) {
	m.mu.Lock()
	s, ok := m.sessions[userID]
	if !ok {
		s = NewSession(userID, m.cfg, m.deps, m.logger)
		m.sessions[userID] = s
	}
	m.mu.Unlock()

	if err := s.Start(ctx); err != nil {
		m.mu.Lock()
		if m.sessions[userID] == s && !s.Running() {
			delete(m.sessions, userID)
		}
		m.mu.Unlock()
		return nil, err
	}

	// A Stop that ran before s.Start took the session lock saw nothing to
	// stop. The session is no longer tracked and must not keep running.
	m.mu.Lock()
	tracked := m.sessions[userID] == s
	m.mu.Unlock()
	if !tracked {
		s.Stop()
		return nil, ErrStoppedWhileStarting
	}
	return s, nil
}

// Stop stops and forgets the session for userID. Reports whether one existed.
func (m *Manager) Stop(userID string) bool {
	m.mu.Lock()
	s, ok := m.sessions[userID]
	delete(m.sessions, userID)
	m.mu.Unlock()

	if !ok {
		return false
	}
	s.Stop()
	return true
}

func (m *Manager) Get(userID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	return s, ok
}

// Feed implements location.FeedLookup for running sessions.
func (m *Manager) Feed(userID string) (*location.Feed, bool) {
	s, ok := m.Get(userID)
	if !ok || !s.Running() {
		return nil, false
	}
	return s.Feed(), true
}

// Len is the number of tracked sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) snapshot() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// RestartAll reloads POIs into every session. Sessions whose restart fails
// are dropped.
func (m *Manager) RestartAll(ctx context.Context) int {
	sessions := m.snapshot()

	var g errgroup.Group
	g.SetLimit(8)
	for _, s := range sessions {
		s := s
		g.Go(func() error {
			if err := s.Restart(ctx); err != nil {
				m.logger.Warn("Session restart failed", "user_id", s.UserID(), "error", err)
				m.forget(s)
			}
			return nil
		})
	}
	_ = g.Wait()

	m.logger.Info("Sessions restarted", "count", len(sessions))
	return len(sessions)
}

// StopAll stops every session concurrently and waits for all of them.
func (m *Manager) StopAll() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	clear(m.sessions)
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range sessions {
		s := s
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Stop()
		}()
	}
	wg.Wait()
}

// Reap stops sessions that have not received a fix for longer than idle.
func (m *Manager) Reap(now time.Time, idle time.Duration) int {
	reaped := 0
	for _, s := range m.snapshot() {
		if now.Sub(s.IdleSince()) <= idle {
			continue
		}
		if m.forget(s) {
			s.Stop()
			reaped++
			m.logger.Info("Idle session reaped", "user_id", s.UserID())
		}
	}
	return reaped
}

func (m *Manager) forget(s *Session) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions[s.UserID()] != s {
		return false
	}
	delete(m.sessions, s.UserID())
	return true
}
