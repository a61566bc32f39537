// Package state owns the per-session DisplayState.
//
// Every fetch is stamped with the session generation, the wallet and a
// monotonic sequence when it is dispatched. Commit accepts a result only when
// all three still match the session and the sequence is newer than the last
// committed one, so a result arriving after a disconnect, a wallet change or
// a newer commit is dropped as stale.
package state

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/position-dashboard/internal/errors"
	"github.com/position-dashboard/internal/logging"
	"github.com/position-dashboard/internal/metrics"
	"github.com/position-dashboard/internal/types"
)

const (
	defaultQueueSize = 1024
	sinkTimeout      = 5 * time.Second
)

// Sink receives every accepted state change in commit order
type Sink interface {
	Name() string
	Publish(ctx context.Context, state *types.DisplayState) error
}

// Remover is implemented by sinks that hold per-session data
type Remover interface {
	Remove(ctx context.Context, sessionID string) error
}

// Stamp identifies the dispatch context of one fetch
type Stamp struct {
	SessionID  string
	Generation uint64
	Wallet     types.PublicKey
	Sequence   uint64
}

type entry struct {
	state        *types.DisplayState
	generation   uint64
	wallet       types.PublicKey
	committedSeq uint64
}

type event struct {
	state   *types.DisplayState
	removed string
}

// Store holds the DisplayState of every session
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*entry

	sinks  []Sink
	queue  chan event
	done   chan struct{}
	closed bool

	metrics *metrics.Metrics
	logger  *logging.Logger
}

// NewStore creates a store delivering commits to sinks from one goroutine
func NewStore(m *metrics.Metrics, sinks ...Sink) *Store {
	s := &Store{
		sessions: make(map[string]*entry),
		sinks:    sinks,
		queue:    make(chan event, defaultQueueSize),
		done:     make(chan struct{}),
		metrics:  m,
		logger:   logging.GetGlobalLogger().WithField("component", "state"),
	}
	go s.deliver()
	return s
}

// Close stops delivery after the queued events are flushed
func (s *Store) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()
	<-s.done
}

// Create registers a disconnected session. Creating an existing session is a no-op.
func (s *Store) Create(sessionID string) *types.DisplayState {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.sessions[sessionID]; ok {
		return e.state.Clone()
	}
	e := &entry{state: types.NewDisconnectedState(sessionID)}
	s.sessions[sessionID] = e
	s.enqueueLocked(event{state: e.state.Clone()})
	return e.state.Clone()
}

// Get returns a copy of the session state
func (s *Store) Get(sessionID string) (*types.DisplayState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.sessions[sessionID]
	if !ok {
		return nil, false
	}
	return e.state.Clone(), true
}

// Connect starts a new generation for wallet and moves the session to loading.
// Results stamped with any earlier generation become stale.
func (s *Store) Connect(sessionID string, wallet types.PublicKey) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[sessionID]
	if !ok {
		return 0, apperrors.NewNotFoundError("session", sessionID)
	}

	e.generation++
	e.wallet = wallet

	st := types.NewDisconnectedState(sessionID)
	st.Wallet = wallet
	st.Status = types.StatusLoading
	st.Generation = e.generation
	st.Sequence = e.committedSeq
	st.LendingStatus = types.SectionLoading
	st.PerpStatus = types.SectionLoading
	e.state = st

	s.enqueueLocked(event{state: st.Clone()})
	return e.generation, nil
}

// Disconnect starts a new generation with no wallet and resets the state
func (s *Store) Disconnect(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[sessionID]
	if !ok {
		return apperrors.NewNotFoundError("session", sessionID)
	}

	e.generation++
	e.wallet = ""

	st := types.NewDisconnectedState(sessionID)
	st.Generation = e.generation
	st.Sequence = e.committedSeq
	e.state = st

	s.enqueueLocked(event{state: st.Clone()})
	return nil
}

// Remove deletes the session. Pending results for it become stale.
func (s *Store) Remove(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return false
	}
	delete(s.sessions, sessionID)
	s.enqueueLocked(event{removed: sessionID})
	return true
}

// MarkLoading flags a refresh in progress while keeping the displayed values
func (s *Store) MarkLoading(stamp Stamp) error {
	return s.update(stamp, false, func(st *types.DisplayState) {
		st.Status = types.StatusLoading
	})
}

// Commit applies a fetch result when stamp is still current. A superseded
// stamp returns a StaleResult error and leaves the state untouched.
func (s *Store) Commit(stamp Stamp, apply func(st *types.DisplayState)) error {
	err := s.update(stamp, true, apply)
	if apperrors.IsStale(err) {
		s.metrics.RecordStale()
	}
	return err
}

func (s *Store) update(stamp Stamp, advance bool, apply func(st *types.DisplayState)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[stamp.SessionID]
	if !ok {
		return apperrors.NewStaleResultError(stamp.Generation, stamp.Sequence)
	}
	if e.wallet == "" || e.wallet != stamp.Wallet || e.generation != stamp.Generation {
		return apperrors.NewStaleResultError(stamp.Generation, stamp.Sequence)
	}
	if stamp.Sequence <= e.committedSeq {
		return apperrors.NewStaleResultError(stamp.Generation, stamp.Sequence)
	}

	next := e.state.Clone()
	apply(next)
	next.SessionID = stamp.SessionID
	next.Wallet = stamp.Wallet
	next.Generation = e.generation
	next.UpdatedAt = time.Now().UTC()
	if advance {
		e.committedSeq = stamp.Sequence
		next.Sequence = stamp.Sequence
		s.metrics.RecordCommit(string(next.Status))
	}
	e.state = next

	s.enqueueLocked(event{state: next.Clone()})
	return nil
}

// must be called with s.mu held so events are queued in commit order
func (s *Store) enqueueLocked(ev event) {
	if s.closed || len(s.sinks) == 0 {
		return
	}
	select {
	case s.queue <- ev:
	default:
		s.metrics.RecordSinkError("queue")
		s.logger.Warn("Sink queue full, dropping state event")
	}
}

func (s *Store) deliver() {
	defer close(s.done)

	for ev := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
		for _, sink := range s.sinks {
			var err error
			if ev.removed != "" {
				if r, ok := sink.(Remover); ok {
					err = r.Remove(ctx, ev.removed)
				}
			} else {
				err = sink.Publish(ctx, ev.state)
			}
			if err != nil {
				s.metrics.RecordSinkError(sink.Name())
				s.logger.WithFields(map[string]interface{}{
					"sink":    sink.Name(),
					"session": sessionOf(ev),
				}).WithError(err).Warn("Sink delivery failed")
			}
		}
		cancel()
	}
}

func sessionOf(ev event) string {
	if ev.removed != "" {
		return ev.removed
	}
	return ev.state.SessionID
}
