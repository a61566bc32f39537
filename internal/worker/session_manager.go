package worker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/position-dashboard/internal/errors"
	"github.com/position-dashboard/internal/logging"
	"github.com/position-dashboard/internal/metrics"
	"github.com/position-dashboard/internal/state"
	"github.com/position-dashboard/internal/types"
)

// SessionManager owns one RefreshWorker per dashboard session
type SessionManager struct {
	store        *state.Store
	fetcher      Fetcher
	pollInterval time.Duration
	fetchTimeout time.Duration
	idleTimeout  time.Duration
	metrics      *metrics.Metrics

	mu       sync.Mutex
	sessions map[string]*session
	running  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
	now      func() time.Time

	logger *logging.Logger
}

type session struct {
	worker   *RefreshWorker
	lastSeen time.Time
}

// SessionManagerConfig holds configuration for a session manager
type SessionManagerConfig struct {
	Store        *state.Store
	Fetcher      Fetcher
	PollInterval time.Duration
	FetchTimeout time.Duration
	// IdleTimeout reaps sessions nobody has touched; zero disables reaping
	IdleTimeout time.Duration
	Metrics     *metrics.Metrics
}

// NewSessionManager creates a session manager
func NewSessionManager(cfg *SessionManagerConfig) *SessionManager {
	return &SessionManager{
		store:        cfg.Store,
		fetcher:      cfg.Fetcher,
		pollInterval: cfg.PollInterval,
		fetchTimeout: cfg.FetchTimeout,
		idleTimeout:  cfg.IdleTimeout,
		metrics:      cfg.Metrics,
		sessions:     make(map[string]*session),
		now:          time.Now,
		logger:       logging.GetGlobalLogger().WithField("component", "sessions"),
	}
}

// Create opens a disconnected session and returns its initial state
func (m *SessionManager) Create() (*types.DisplayState, error) {
	id := uuid.NewString()

	st := m.store.Create(id)
	w, err := NewRefreshWorker(&RefreshWorkerConfig{
		SessionID:    id,
		Store:        m.store,
		Fetcher:      m.fetcher,
		PollInterval: m.pollInterval,
		FetchTimeout: m.fetchTimeout,
	})
	if err != nil {
		m.store.Remove(id)
		return nil, apperrors.NewInternalError("failed to create refresh worker", err)
	}

	m.mu.Lock()
	m.sessions[id] = &session{worker: w, lastSeen: m.now()}
	m.mu.Unlock()

	m.metrics.SessionOpened()
	m.logger.WithField("session", id).Info("Session created")
	return st, nil
}

// Connect validates rawKey and points the session at it
func (m *SessionManager) Connect(sessionID, rawKey string) (*types.DisplayState, error) {
	wallet, err := types.ParsePublicKey(rawKey)
	if err != nil {
		return nil, apperrors.NewInvalidPublicKeyError(rawKey, err)
	}

	s, err := m.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.worker.Connect(wallet); err != nil {
		return nil, err
	}
	return m.State(sessionID)
}

// Disconnect clears the wallet of a session
func (m *SessionManager) Disconnect(sessionID string) (*types.DisplayState, error) {
	s, err := m.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.worker.Disconnect(); err != nil {
		return nil, err
	}
	return m.State(sessionID)
}

// State returns the current state of a session
func (m *SessionManager) State(sessionID string) (*types.DisplayState, error) {
	if _, err := m.lookup(sessionID); err != nil {
		return nil, err
	}
	st, ok := m.store.Get(sessionID)
	if !ok {
		return nil, apperrors.NewNotFoundError("session", sessionID)
	}
	return st, nil
}

// Touch marks a session as in use. It reports whether the session exists.
func (m *SessionManager) Touch(sessionID string) bool {
	_, err := m.lookup(sessionID)
	return err == nil
}

// Teardown stops a session's polling and forgets its state
func (m *SessionManager) Teardown(sessionID string) error {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	delete(m.sessions, sessionID)
	m.mu.Unlock()

	if !ok {
		return apperrors.NewNotFoundError("session", sessionID)
	}

	s.worker.Close()
	m.store.Remove(sessionID)
	m.metrics.SessionClosed()
	m.logger.WithField("session", sessionID).Info("Session torn down")
	return nil
}

// Count returns the number of open sessions
func (m *SessionManager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Start launches the idle session reaper
func (m *SessionManager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running || m.idleTimeout <= 0 {
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	go m.reapLoop(m.stopCh, m.doneCh)
}

// Shutdown stops the reaper and tears down every session
func (m *SessionManager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	running := m.running
	m.running = false
	stopCh, doneCh := m.stopCh, m.doneCh
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	if running {
		close(stopCh)
		select {
		case <-doneCh:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	for _, id := range ids {
		_ = m.Teardown(id)
	}
	m.logger.WithField("sessions", len(ids)).Info("Session manager stopped")
	return nil
}

func (m *SessionManager) lookup(sessionID string) (*session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, apperrors.NewNotFoundError("session", sessionID)
	}
	s.lastSeen = m.now()
	return s, nil
}

func (m *SessionManager) reapLoop(stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	interval := m.idleTimeout / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if n := m.reapIdle(); n > 0 {
				m.logger.WithField("reaped", n).Info("Reaped idle sessions")
			}
		}
	}
}

// reapIdle tears down sessions idle for longer than idleTimeout
func (m *SessionManager) reapIdle() int {
	m.mu.Lock()
	cutoff := m.now().Add(-m.idleTimeout)
	var idle []string
	for id, s := range m.sessions {
		if s.lastSeen.Before(cutoff) {
			idle = append(idle, id)
		}
	}
	m.mu.Unlock()

	reaped := 0
	for _, id := range idle {
		if m.Teardown(id) == nil {
			reaped++
		}
	}
	return reaped
}
