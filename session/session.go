// Package session keeps per-visitor state: the login flag and a cached copy
// of each dataset.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vainnor/painel/metrics"
	"github.com/vainnor/painel/models"
)

var ErrNotFound = errors.New("session not found")

type Session struct {
	ID        string
	Flights   *Dataset[models.Flight]
	Logistics *Dataset[models.Logistics]

	mu       sync.Mutex
	user     string
	lastSeen time.Time
}

// User returns the logged in username, or "" for anonymous sessions.
func (s *Session) User() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

func (s *Session) LoggedIn() bool { return s.User() != "" }

func (s *Session) Login(user string) {
	s.mu.Lock()
	s.user = user
	s.mu.Unlock()
}

func (s *Session) Logout() { s.Login("") }

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastSeen)
}

// Manager owns every live session.
type Manager struct {
	stores Stores
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(stores Stores, ttl time.Duration, logger *zap.Logger) *Manager {
	return &Manager{
		stores:   stores,
		ttl:      ttl,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Create starts an anonymous session with empty caches.
func (m *Manager) Create() *Session {
	s := &Session{ID: uuid.NewString()}
	s.Flights = NewDataset(FlightsKind, m.stores, m.logger.With(zap.String("session", s.ID)))
	s.Logistics = NewDataset(LogisticsKind, m.stores, m.logger.With(zap.String("session", s.ID)))
	s.touch(m.now())

	m.mu.Lock()
	m.sessions[s.ID] = s
	n := len(m.sessions)
	m.mu.Unlock()
	metrics.ActiveSessions.Set(float64(n))
	return s
}

// Get returns a live session and marks it used.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	now := m.now()
	if m.ttl > 0 && s.idleSince(now) > m.ttl {
		m.Delete(id)
		return nil, ErrNotFound
	}
	s.touch(now)
	return s, nil
}

// Rotate moves s under a new id and retires the old one. The cached datasets
// carry over; the login state does not.
func (m *Manager) Rotate(s *Session) *Session {
	ns := &Session{ID: uuid.NewString(), Flights: s.Flights, Logistics: s.Logistics}
	ns.touch(m.now())

	m.mu.Lock()
	delete(m.sessions, s.ID)
	m.sessions[ns.ID] = ns
	n := len(m.sessions)
	m.mu.Unlock()
	metrics.ActiveSessions.Set(float64(n))
	return ns
}

func (m *Manager) Delete(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	n := len(m.sessions)
	m.mu.Unlock()
	metrics.ActiveSessions.Set(float64(n))
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep removes sessions idle for longer than the TTL.
func (m *Manager) Sweep() int {
	if m.ttl <= 0 {
		return 0
	}
	now := m.now()
	m.mu.Lock()
	var removed int
	for id, s := range m.sessions {
		if s.idleSince(now) > m.ttl {
			delete(m.sessions, id)
			removed++
		}
	}
	n := len(m.sessions)
	m.mu.Unlock()
	metrics.ActiveSessions.Set(float64(n))
	return removed
}

// Run sweeps expired sessions until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	if m.ttl <= 0 {
		return
	}
	interval := m.ttl / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				m.logger.Info("expired sessions removed", zap.Int("count", n))
			}
		}
	}
}
