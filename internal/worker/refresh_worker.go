package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/position-dashboard/internal/errors"
	"github.com/position-dashboard/internal/logging"
	"github.com/position-dashboard/internal/service"
	"github.com/position-dashboard/internal/state"
	"github.com/position-dashboard/internal/types"
)

// Fetcher produces one snapshot of a wallet's positions and prices
type Fetcher interface {
	Fetch(ctx context.Context, wallet types.PublicKey) *service.Snapshot
}

// RefreshWorker polls the positions of the wallet connected to one session.
// At most one poll loop runs per worker; connecting a new wallet stops the
// previous loop before the next one starts.
type RefreshWorker struct {
	sessionID    string
	store        *state.Store
	fetcher      Fetcher
	pollInterval time.Duration
	fetchTimeout time.Duration

	mu     sync.Mutex
	wallet types.PublicKey
	loop   *pollLoop
	closed bool

	seq   atomic.Uint64
	loops atomic.Int32

	// fetches still running; idle is closed when the count drops to zero
	inflightMu sync.Mutex
	inflight   int
	idle       chan struct{}

	logger *logging.Logger
}

// RefreshWorkerConfig holds configuration for a refresh worker
type RefreshWorkerConfig struct {
	SessionID    string
	Store        *state.Store
	Fetcher      Fetcher
	PollInterval time.Duration
	FetchTimeout time.Duration
}

type pollLoop struct {
	wallet     types.PublicKey
	generation uint64
	stopCh     chan struct{}
	doneCh     chan struct{}
}

// NewRefreshWorker creates a worker for an existing session
func NewRefreshWorker(cfg *RefreshWorkerConfig) (*RefreshWorker, error) {
	if cfg.SessionID == "" {
		return nil, fmt.Errorf("session id cannot be empty")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("state store cannot be nil")
	}
	if cfg.Fetcher == nil {
		return nil, fmt.Errorf("fetcher cannot be nil")
	}

	pollInterval := cfg.PollInterval
	if pollInterval == 0 {
		pollInterval = 30 * time.Second
	}
	fetchTimeout := cfg.FetchTimeout
	if fetchTimeout == 0 {
		fetchTimeout = pollInterval
	}

	return &RefreshWorker{
		sessionID:    cfg.SessionID,
		store:        cfg.Store,
		fetcher:      cfg.Fetcher,
		pollInterval: pollInterval,
		fetchTimeout: fetchTimeout,
		logger: logging.GetGlobalLogger().WithFields(map[string]interface{}{
			"component": "refresh",
			"session":   cfg.SessionID,
		}),
	}, nil
}

// Connect points the worker at wallet. A fetch is dispatched immediately and
// then every poll interval. Connecting the wallet already connected is a no-op.
func (w *RefreshWorker) Connect(wallet types.PublicKey) error {
	if wallet.IsZero() {
		return apperrors.NewInvalidPublicKeyError("", nil)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("refresh worker for session %s is closed", w.sessionID)
	}
	if w.loop != nil && w.wallet == wallet {
		return nil
	}

	w.stopLoopLocked()

	generation, err := w.store.Connect(w.sessionID, wallet)
	if err != nil {
		return err
	}
	w.wallet = wallet

	loop := &pollLoop{
		wallet:     wallet,
		generation: generation,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
	w.loop = loop
	w.loops.Add(1)
	w.dispatch(loop)
	go w.run(loop)

	w.logger.WithFields(map[string]interface{}{
		"wallet":     wallet.Short(),
		"generation": generation,
	}).Info("Wallet connected")
	return nil
}

// Disconnect stops polling and resets the session to disconnected. Results
// still in flight are discarded when they arrive.
func (w *RefreshWorker) Disconnect() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.stopLoopLocked()
	w.wallet = ""

	if err := w.store.Disconnect(w.sessionID); err != nil {
		return err
	}
	w.logger.Info("Wallet disconnected")
	return nil
}

// Close stops polling for good. The session state is left to the caller.
func (w *RefreshWorker) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	w.closed = true
	w.stopLoopLocked()
}

// Wallet returns the connected wallet, empty when disconnected
func (w *RefreshWorker) Wallet() types.PublicKey {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.wallet
}

// ActiveLoops reports how many poll loops are running
func (w *RefreshWorker) ActiveLoops() int {
	return int(w.loops.Load())
}

// WaitIdle blocks until every dispatched fetch has finished or ctx is done.
// Fetches dispatched while waiting extend the wait.
func (w *RefreshWorker) WaitIdle(ctx context.Context) error {
	for {
		w.inflightMu.Lock()
		idle := w.idle
		w.inflightMu.Unlock()
		if idle == nil {
			return nil
		}

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (w *RefreshWorker) fetchStarted() {
	w.inflightMu.Lock()
	defer w.inflightMu.Unlock()
	if w.inflight == 0 {
		w.idle = make(chan struct{})
	}
	w.inflight++
}

func (w *RefreshWorker) fetchDone() {
	w.inflightMu.Lock()
	defer w.inflightMu.Unlock()
	w.inflight--
	if w.inflight == 0 {
		close(w.idle)
		w.idle = nil
	}
}

// must be called with w.mu held
func (w *RefreshWorker) stopLoopLocked() {
	if w.loop == nil {
		return
	}
	close(w.loop.stopCh)
	<-w.loop.doneCh
	w.loop = nil
}

func (w *RefreshWorker) run(loop *pollLoop) {
	ticker := time.NewTicker(w.pollInterval)
	defer func() {
		ticker.Stop()
		w.loops.Add(-1)
		close(loop.doneCh)
	}()

	for {
		select {
		case <-loop.stopCh:
			return
		case <-ticker.C:
			w.dispatch(loop)
		}
	}
}

// dispatch stamps a fetch and runs it in the background. Fetches may overlap;
// the store keeps only the newest result of the current generation.
func (w *RefreshWorker) dispatch(loop *pollLoop) {
	stamp := state.Stamp{
		SessionID:  w.sessionID,
		Generation: loop.generation,
		Wallet:     loop.wallet,
		Sequence:   w.seq.Add(1),
	}

	if err := w.store.MarkLoading(stamp); err != nil {
		w.logger.WithError(err).Debug("Skipping refresh for superseded generation")
		return
	}

	logger := w.logger.WithFields(map[string]interface{}{
		"wallet":     stamp.Wallet.Short(),
		"generation": stamp.Generation,
		"fetchId":    uuid.NewString(),
	})

	w.fetchStarted()
	go func() {
		defer w.fetchDone()

		ctx, cancel := context.WithTimeout(context.Background(), w.fetchTimeout)
		defer cancel()
		ctx = logging.WithLogger(ctx, logger)

		snap := w.fetcher.Fetch(ctx, stamp.Wallet)
		snap.Log(logger)

		if err := w.store.Commit(stamp, snap.ApplyTo); err != nil {
			if apperrors.IsStale(err) {
				logger.WithField("sequence", stamp.Sequence).Debug("Discarded stale refresh result")
				return
			}
			logger.WithError(err).Warn("Failed to commit refresh result")
		}
	}()
}
