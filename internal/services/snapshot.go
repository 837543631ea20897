package services

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"provably-fair-dice/internal/models"
)

// snapshotWriter persists ledger snapshots off the mutating goroutine. Only the
// newest pending snapshot is written; failed writes are logged and dropped.
type snapshotWriter struct {
	store    LedgerStore
	playerID string
	timeout  time.Duration
	log      *zap.Logger

	mu      sync.Mutex
	pending *models.LedgerState
	closed  bool

	wake      chan struct{}
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func newSnapshotWriter(store LedgerStore, playerID string, timeout time.Duration, log *zap.Logger) *snapshotWriter {
	w := &snapshotWriter{
		store:    store,
		playerID: playerID,
		timeout:  timeout,
		log:      log,
		wake:     make(chan struct{}, 1),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go w.run()
	return w
}

// Submit queues state, replacing any snapshot not yet written. After Close the
// write happens synchronously, which only occurs for a ledger that was evicted
// while a caller still held it.
func (w *snapshotWriter) Submit(state *models.LedgerState) {
	w.mu.Lock()
	if w.closed {
		w.save(state)
		w.mu.Unlock()
		return
	}
	w.pending = state
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Close flushes the pending snapshot and stops the writer.
func (w *snapshotWriter) Close() {
	w.closeOnce.Do(func() {
		close(w.quit)
		<-w.done

		// Writes after this point are saved under w.mu, in submission order.
		w.mu.Lock()
		defer w.mu.Unlock()
		w.closed = true
		if w.pending != nil {
			w.save(w.pending)
			w.pending = nil
		}
	})
}

func (w *snapshotWriter) run() {
	defer close(w.done)

	for {
		select {
		case <-w.wake:
			w.flush()
		case <-w.quit:
			w.flush()
			return
		}
	}
}

func (w *snapshotWriter) flush() {
	w.mu.Lock()
	state := w.pending
	w.pending = nil
	w.mu.Unlock()

	if state == nil {
		return
	}
	w.save(state)
}

func (w *snapshotWriter) save(state *models.LedgerState) {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	if err := w.store.SaveLedger(ctx, w.playerID, state); err != nil {
		w.log.Warn("ledger snapshot write failed",
			zap.String("player_id", w.playerID),
			zap.Int64("nonce", state.Nonce),
			zap.Error(err))
	}
}
