package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bimakw/referral-dashboard/internal/config"
	"github.com/bimakw/referral-dashboard/internal/domain/repositories"
	"github.com/bimakw/referral-dashboard/internal/infrastructure/metrics"
)

// Session is one dashboard session and its aggregator
type Session struct {
	ID         string
	CreatedAt  time.Time
	Aggregator *Aggregator

	lastSeen time.Time
}

// SessionManager keeps dashboard sessions in memory and evicts idle ones
type SessionManager struct {
	source repositories.HistorySource
	config config.SessionConfig
	logger *zap.Logger
	now    func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewSessionManager creates a session manager; every session shares the history source
func NewSessionManager(source repositories.HistorySource, cfg config.SessionConfig, logger *zap.Logger) *SessionManager {
	return &SessionManager{
		source:   source,
		config:   cfg,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[string]*Session),
		stopCh:   make(chan struct{}),
	}
}

// Create starts a new session with no active address
func (m *SessionManager) Create() *Session {
	now := m.now()
	session := &Session{
		ID:         uuid.NewString(),
		CreatedAt:  now,
		Aggregator: NewAggregator(m.source, m.logger),
		lastSeen:   now,
	}

	m.mu.Lock()
	m.sessions[session.ID] = session
	count := len(m.sessions)
	m.mu.Unlock()

	metrics.ActiveSessions.Set(float64(count))
	m.logger.Debug("Session created", zap.String("session_id", session.ID))
	return session
}

// Get returns a session and marks it as used
func (m *SessionManager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	session.lastSeen = m.now()
	return session, true
}

// Delete discards a session and cancels its in-flight fetches
func (m *SessionManager) Delete(id string) bool {
	m.mu.Lock()
	session, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	count := len(m.sessions)
	m.mu.Unlock()

	if !ok {
		return false
	}

	session.Aggregator.Close()
	metrics.ActiveSessions.Set(float64(count))
	m.logger.Debug("Session deleted", zap.String("session_id", id))
	return true
}

// Len returns the number of live sessions
func (m *SessionManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep evicts sessions idle for longer than the configured TTL
func (m *SessionManager) Sweep() int {
	cutoff := m.now().Add(-m.config.IdleTTL)

	m.mu.Lock()
	expired := make([]*Session, 0)
	for id, session := range m.sessions {
		if session.lastSeen.Before(cutoff) {
			expired = append(expired, session)
			delete(m.sessions, id)
		}
	}
	count := len(m.sessions)
	m.mu.Unlock()

	for _, session := range expired {
		session.Aggregator.Close()
	}

	if len(expired) > 0 {
		metrics.ActiveSessions.Set(float64(count))
		m.logger.Info("Evicted idle sessions",
			zap.Int("evicted", len(expired)),
			zap.Int("remaining", count),
		)
	}
	return len(expired)
}

// Start runs the idle-session janitor
func (m *SessionManager) Start(ctx context.Context) {
	interval := m.config.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stopCh:
				return
			case <-ticker.C:
				m.Sweep()
			}
		}
	}()
}

// Stop halts the janitor and closes every session
func (m *SessionManager) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()

	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, session := range sessions {
		session.Aggregator.Close()
	}
	metrics.ActiveSessions.Set(0)
}
