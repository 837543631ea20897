package services

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"provably-fair-dice/internal/config"
	"provably-fair-dice/internal/fair"
	"provably-fair-dice/internal/models"
)

type RegistryConfig struct {
	StartingBalance float64
	DefaultBet      float64
	SettleDelay     time.Duration

	Seeds     fair.SeedGenerator
	Scheduler Scheduler
	Store     LedgerStore
	Logger    *zap.Logger
	// Optional. Defaults to time.Now; only used for idle tracking.
	Now func() time.Time

	// Optional fan-out targets for every ledger.
	Broadcaster   Broadcaster
	RollListeners []RollListener
}

// LedgerRegistry hands out one RoundLedger per player, restoring it from the
// store on first use and evicting it again once idle.
type LedgerRegistry struct {
	cfg   RegistryConfig
	log   *zap.Logger
	now   func() time.Time
	loads singleflight.Group

	mu      sync.Mutex
	ledgers map[string]*registryEntry
}

type registryEntry struct {
	ledger   *RoundLedger
	lastUsed time.Time
}

func NewLedgerRegistry(cfg *RegistryConfig) (*LedgerRegistry, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}
	if cfg.Seeds == nil {
		return nil, ErrNilSeedGenerator
	}
	if cfg.StartingBalance <= 0 {
		return nil, ErrInvalidStartingBal
	}

	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &LedgerRegistry{
		cfg:     *cfg,
		log:     log,
		now:     now,
		ledgers: make(map[string]*registryEntry),
	}, nil
}

// RegistryConfigFrom builds the ledger settings from application config.
func RegistryConfigFrom(cfg *config.Config) RegistryConfig {
	return RegistryConfig{
		StartingBalance: cfg.StartingBalance,
		DefaultBet:      cfg.DefaultBet,
		SettleDelay:     cfg.SettleDelay,
		Seeds:           fair.CryptoSeedGenerator{},
	}
}

// Get returns the player's ledger, loading it on first use. Loads for
// different players run concurrently; loads for the same player are shared.
func (r *LedgerRegistry) Get(ctx context.Context, playerID string) (*RoundLedger, error) {
	if playerID == "" {
		return nil, ErrEmptyPlayerID
	}
	if l, ok := r.touch(playerID); ok {
		return l, nil
	}

	v, err, _ := r.loads.Do(playerID, func() (interface{}, error) {
		if l, ok := r.touch(playerID); ok {
			return l, nil
		}
		return r.load(ctx, playerID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*RoundLedger), nil
}

func (r *LedgerRegistry) touch(playerID string) (*RoundLedger, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.ledgers[playerID]
	if !ok {
		return nil, false
	}
	e.lastUsed = r.now()
	return e.ledger, true
}

func (r *LedgerRegistry) load(ctx context.Context, playerID string) (*RoundLedger, error) {
	// The load is shared by every waiting request, so it must not die with
	// the first caller's context.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), SnapshotLoadTimeout)
	defer cancel()

	l, err := NewRoundLedger(ctx, &LedgerConfig{
		PlayerID:        playerID,
		StartingBalance: r.cfg.StartingBalance,
		DefaultBet:      r.cfg.DefaultBet,
		SettleDelay:     r.cfg.SettleDelay,
		Seeds:           r.cfg.Seeds,
		Scheduler:       r.cfg.Scheduler,
		Store:           r.cfg.Store,
		Logger:          r.log,
	})
	if err != nil {
		return nil, err
	}
	l.Subscribe(r.fanOut)

	r.mu.Lock()
	r.ledgers[playerID] = &registryEntry{ledger: l, lastUsed: r.now()}
	r.mu.Unlock()

	return l, nil
}

func (r *LedgerRegistry) fanOut(ev models.LedgerEvent) {
	switch ev.Type {
	case models.EventStateChanged:
		if r.cfg.Broadcaster != nil {
			r.cfg.Broadcaster.BroadcastStateUpdate(ev.PlayerID, ev.State)
		}
	case models.EventRollSettled:
		if r.cfg.Broadcaster != nil {
			r.cfg.Broadcaster.BroadcastRollSettled(ev.PlayerID, ev.Record)
		}
		for _, listener := range r.cfg.RollListeners {
			listener.OnRoll()
		}
	}
}

// EvictIdle closes and forgets every ledger not used within maxAge. Ledgers
// with a roll in flight are kept. The next Get restores from the store.
func (r *LedgerRegistry) EvictIdle(maxAge time.Duration) int {
	cutoff := r.now().Add(-maxAge)

	r.mu.Lock()
	var evicted []*RoundLedger
	for playerID, e := range r.ledgers {
		if e.lastUsed.After(cutoff) || e.ledger.IsRolling() {
			continue
		}
		delete(r.ledgers, playerID)
		evicted = append(evicted, e.ledger)
	}
	remaining := len(r.ledgers)
	r.mu.Unlock()

	for _, l := range evicted {
		l.Close()
	}

	if len(evicted) > 0 {
		r.log.Info("evicted idle ledgers",
			zap.Int("evicted", len(evicted)),
			zap.Int("remaining", remaining))
	}
	return len(evicted)
}

// Len is the number of ledgers currently loaded.
func (r *LedgerRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ledgers)
}

// Close flushes every ledger's last snapshot.
func (r *LedgerRegistry) Close() {
	r.mu.Lock()
	ledgers := make([]*RoundLedger, 0, len(r.ledgers))
	for _, e := range r.ledgers {
		ledgers = append(ledgers, e.ledger)
	}
	r.mu.Unlock()

	for _, l := range ledgers {
		l.Close()
	}
}
