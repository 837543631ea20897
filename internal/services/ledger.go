package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"provably-fair-dice/internal/fair"
	"provably-fair-dice/internal/models"
)

// MaxClientSeedLength bounds player supplied client seeds.
const MaxClientSeedLength = 64

// stateVersion orders state changes across all ledgers in the process, so a
// player's versions keep increasing even if their ledger is evicted and reloaded.
var stateVersion atomic.Uint64

// Scheduler runs f once after d without blocking the caller.
type Scheduler interface {
	AfterFunc(d time.Duration, f func())
}

type timerScheduler struct{}

func (timerScheduler) AfterFunc(d time.Duration, f func()) {
	time.AfterFunc(d, f)
}

type LedgerConfig struct {
	PlayerID        string
	StartingBalance float64
	DefaultBet      float64
	SettleDelay     time.Duration

	Seeds fair.SeedGenerator
	// Optional. Defaults to time.AfterFunc.
	Scheduler Scheduler
	// Optional. A nil store keeps the ledger in memory only.
	Store  LedgerStore
	Logger *zap.Logger
	Now    func() time.Time
}

// RoundLedger owns one player's balance, seeds, nonce and roll history and runs
// the Idle -> Rolling -> Idle round lifecycle.
type RoundLedger struct {
	playerID        string
	startingBalance float64
	defaultBet      float64
	settleDelay     time.Duration
	seeds           fair.SeedGenerator
	scheduler       Scheduler
	log             *zap.Logger
	now             func() time.Time
	writer          *snapshotWriter

	mu             sync.Mutex
	state          *models.LedgerState
	version        uint64
	observers      []observer
	nextObserverID int
}

type observer struct {
	id int
	fn func(models.LedgerEvent)
}

// round is the secret side of an accepted bet.
type round struct {
	serverSeed string
	commitment string
	clientSeed string
	nonce      int64
	bet        float64
}

func NewRoundLedger(ctx context.Context, cfg *LedgerConfig) (*RoundLedger, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}
	if cfg.PlayerID == "" {
		return nil, ErrEmptyPlayerID
	}
	if cfg.Seeds == nil {
		return nil, ErrNilSeedGenerator
	}
	if cfg.StartingBalance <= 0 || math.IsInf(cfg.StartingBalance, 0) {
		return nil, ErrInvalidStartingBal
	}

	l := &RoundLedger{
		playerID:        cfg.PlayerID,
		startingBalance: cfg.StartingBalance,
		defaultBet:      cfg.DefaultBet,
		settleDelay:     cfg.SettleDelay,
		seeds:           cfg.Seeds,
		scheduler:       cfg.Scheduler,
		log:             cfg.Logger,
		now:             cfg.Now,
	}
	if l.scheduler == nil {
		l.scheduler = timerScheduler{}
	}
	if l.log == nil {
		l.log = zap.NewNop()
	}
	l.log = l.log.With(zap.String("player_id", cfg.PlayerID))
	if l.now == nil {
		l.now = time.Now
	}

	var restored bool
	l.state, restored = l.restore(ctx, cfg.Store)
	l.version = stateVersion.Add(1)

	if cfg.Store != nil {
		l.writer = newSnapshotWriter(cfg.Store, cfg.PlayerID, SnapshotWriteTimeout, l.log)
		if !restored {
			l.writer.Submit(l.state.Clone())
		}
	}

	return l, nil
}

func (l *RoundLedger) restore(ctx context.Context, store LedgerStore) (*models.LedgerState, bool) {
	if store == nil {
		return l.freshState(), false
	}

	state, err := store.LoadLedger(ctx, l.playerID)
	if errors.Is(err, ErrSnapshotNotFound) {
		l.log.Debug("no ledger snapshot, starting fresh")
		return l.freshState(), false
	}
	if err != nil {
		l.log.Warn("ledger snapshot unreadable, starting fresh", zap.Error(err))
		return l.freshState(), false
	}
	if err := validateSnapshot(state); err != nil {
		l.log.Warn("ledger snapshot invalid, starting fresh", zap.Error(err))
		return l.freshState(), false
	}

	// A round that was in flight when the snapshot was written never settled.
	state.IsRolling = false
	if len(state.PreviousRolls) > models.MaxHistory {
		state.PreviousRolls = state.PreviousRolls[:models.MaxHistory]
	}
	if state.PreviousRolls == nil {
		state.PreviousRolls = []models.RollRecord{}
	}

	return state, true
}

func validateSnapshot(s *models.LedgerState) error {
	switch {
	case s == nil:
		return errors.New("empty snapshot")
	case s.ServerSeed == "":
		return errors.New("missing server seed")
	case s.ClientSeed == "":
		return errors.New("missing client seed")
	case s.Nonce < 0:
		return fmt.Errorf("negative nonce %d", s.Nonce)
	case !validAmount(s.Balance):
		return fmt.Errorf("bad balance %v", s.Balance)
	case !validAmount(s.BetAmount):
		return fmt.Errorf("bad bet amount %v", s.BetAmount)
	}
	return nil
}

func validAmount(v float64) bool {
	return v >= 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}

func (l *RoundLedger) freshState() *models.LedgerState {
	return &models.LedgerState{
		Balance:       l.startingBalance,
		BetAmount:     l.defaultBet,
		ServerSeed:    l.seeds.NewServerSeed(),
		ClientSeed:    l.seeds.NewClientSeed(),
		Nonce:         0,
		PreviousRolls: []models.RollRecord{},
	}
}

func (l *RoundLedger) PlayerID() string {
	return l.playerID
}

// PlaceBet accepts a bet against the currently committed server seed and
// schedules its settlement. Rejected bets leave the ledger untouched.
func (l *RoundLedger) PlaceBet(amount float64) (*models.PendingRound, error) {
	l.mu.Lock()

	if l.state.IsRolling {
		l.mu.Unlock()
		return nil, ErrConcurrentBet
	}
	if amount <= 0 || !validAmount(amount) || amount > l.state.Balance {
		balance := l.state.Balance
		l.mu.Unlock()
		return nil, fmt.Errorf("%w: %v with balance %v", ErrInvalidBet, amount, balance)
	}

	r := round{
		serverSeed: l.state.ServerSeed,
		commitment: fair.Commit(l.state.ServerSeed),
		clientSeed: l.state.ClientSeed,
		nonce:      l.state.Nonce,
		bet:        amount,
	}

	l.state.BetAmount = amount
	l.state.IsRolling = true
	ev := l.commitLocked()
	l.mu.Unlock()

	l.log.Debug("bet accepted",
		zap.Float64("amount", amount),
		zap.Int64("nonce", r.nonce),
		zap.String("commitment", r.commitment))

	l.emit(ev)
	l.scheduler.AfterFunc(l.settleDelay, func() { l.settle(r) })

	return &models.PendingRound{
		Commitment: r.commitment,
		ClientSeed: r.clientSeed,
		Nonce:      r.nonce,
		BetAmount:  r.bet,
	}, nil
}

// PlaceCurrentBet bets the ledger's current bet amount.
func (l *RoundLedger) PlaceCurrentBet() (*models.PendingRound, error) {
	l.mu.Lock()
	amount := l.state.BetAmount
	l.mu.Unlock()

	return l.PlaceBet(amount)
}

func (l *RoundLedger) settle(r round) {
	l.mu.Lock()

	roll := fair.Roll(r.serverSeed, r.clientSeed, r.nonce)
	result, balance := fair.Settle(l.state.Balance, r.bet, roll)

	record := models.RollRecord{
		Roll:             roll,
		BetAmount:        r.bet,
		Result:           result,
		ServerSeed:       r.serverSeed,
		ClientSeed:       r.clientSeed,
		Nonce:            r.nonce,
		HashedServerSeed: r.commitment,
		SettledAt:        l.now().Unix(),
	}

	l.state.Balance = balance
	l.state.LastRoll = roll
	l.state.LastResult = result
	l.state.ServerSeed = l.seeds.NewServerSeed()
	l.state.Nonce = r.nonce + 1
	l.state.PreviousRolls = prependRecord(l.state.PreviousRolls, record)
	l.state.IsRolling = false
	ev := l.commitLocked()
	l.mu.Unlock()

	l.log.Debug("roll settled",
		zap.Int("roll", roll),
		zap.String("result", string(result)),
		zap.Float64("balance", balance),
		zap.Int64("nonce", r.nonce))

	l.emit(ev)
	l.emit(models.LedgerEvent{
		Type:     models.EventRollSettled,
		PlayerID: l.playerID,
		Record:   &record,
	})
}

func prependRecord(history []models.RollRecord, record models.RollRecord) []models.RollRecord {
	n := len(history) + 1
	if n > models.MaxHistory {
		n = models.MaxHistory
	}

	out := make([]models.RollRecord, 0, n)
	out = append(out, record)
	return append(out, history[:n-1]...)
}

// SetClientSeed replaces the client seed. Nonce and server seed are untouched.
func (l *RoundLedger) SetClientSeed(seed string) error {
	if len(seed) > MaxClientSeedLength || !fair.IsSeed(seed) {
		return fmt.Errorf("%w: must be 1-%d alphanumeric characters", ErrInvalidClientSeed, MaxClientSeedLength)
	}

	l.mu.Lock()
	if l.state.IsRolling {
		l.mu.Unlock()
		return ErrRollInProgress
	}
	if l.state.ClientSeed == seed {
		l.mu.Unlock()
		return nil
	}

	l.state.ClientSeed = seed
	ev := l.commitLocked()
	l.mu.Unlock()

	l.emit(ev)
	return nil
}

func (l *RoundLedger) RotateClientSeed() (string, error) {
	seed := l.seeds.NewClientSeed()
	if err := l.SetClientSeed(seed); err != nil {
		return "", err
	}
	return seed, nil
}

// AdjustBet changes the pending bet amount. value is only read by AdjustSet.
func (l *RoundLedger) AdjustBet(mode models.AdjustMode, value float64) (float64, error) {
	l.mu.Lock()

	bet := l.state.BetAmount
	switch mode {
	case models.AdjustHalf:
		bet = math.Max(bet/2, 1)
	case models.AdjustDouble:
		bet = math.Min(bet*2, l.state.Balance)
	case models.AdjustMax:
		bet = l.state.Balance
	case models.AdjustSet:
		if !validAmount(value) {
			current := l.state.BetAmount
			l.mu.Unlock()
			return current, fmt.Errorf("%w: %v", ErrInvalidBet, value)
		}
		bet = value
	default:
		current := l.state.BetAmount
		l.mu.Unlock()
		return current, fmt.Errorf("%w: %q", ErrInvalidAdjustMode, mode)
	}

	if bet == l.state.BetAmount {
		l.mu.Unlock()
		return bet, nil
	}

	l.state.BetAmount = bet
	ev := l.commitLocked()
	l.mu.Unlock()

	l.emit(ev)
	return bet, nil
}

// Reset replaces the whole state with a fresh one: starting balance, new seed
// pair, zero nonce, empty history.
func (l *RoundLedger) Reset() error {
	l.mu.Lock()
	if l.state.IsRolling {
		l.mu.Unlock()
		return ErrRollInProgress
	}

	l.state = l.freshState()
	ev := l.commitLocked()
	l.mu.Unlock()

	l.log.Info("ledger reset")
	l.emit(ev)
	return nil
}

// PublicState returns the view that is safe to show before the current server
// seed is revealed.
func (l *RoundLedger) PublicState() *models.PublicState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return publicView(l.state, l.version)
}

// IsRolling reports whether a bet is waiting to settle.
func (l *RoundLedger) IsRolling() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.IsRolling
}

// Snapshot returns a copy of the full state, including the live server seed.
func (l *RoundLedger) Snapshot() *models.LedgerState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.Clone()
}

// History returns roll records, newest first.
func (l *RoundLedger) History() []models.RollRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]models.RollRecord{}, l.state.PreviousRolls...)
}

func publicView(s *models.LedgerState, version uint64) *models.PublicState {
	return &models.PublicState{
		Version:        version,
		Balance:        s.Balance,
		BetAmount:      s.BetAmount,
		IsRolling:      s.IsRolling,
		LastRoll:       s.LastRoll,
		LastResult:     s.LastResult,
		ServerSeedHash: fair.Commit(s.ServerSeed),
		ClientSeed:     s.ClientSeed,
		Nonce:          s.Nonce,
		HistoryLength:  len(s.PreviousRolls),
	}
}

// Subscribe registers fn for every ledger event. Observers run on the goroutine
// that changed the state, after the ledger lock is released.
func (l *RoundLedger) Subscribe(fn func(models.LedgerEvent)) (unsubscribe func()) {
	l.mu.Lock()
	id := l.nextObserverID
	l.nextObserverID++
	l.observers = append(l.observers, observer{id: id, fn: fn})
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		for i, o := range l.observers {
			if o.id == id {
				l.observers = append(l.observers[:i:i], l.observers[i+1:]...)
				return
			}
		}
	}
}

// commitLocked stamps the current state with the next version and queues its
// snapshot. It must be called with l.mu held so that snapshots and events are
// versioned in the order the state actually changed.
func (l *RoundLedger) commitLocked() models.LedgerEvent {
	l.version = stateVersion.Add(1)
	snapshot := l.state.Clone()
	if l.writer != nil {
		l.writer.Submit(snapshot)
	}

	return models.LedgerEvent{
		Type:     models.EventStateChanged,
		PlayerID: l.playerID,
		State:    publicView(snapshot, l.version),
	}
}

func (l *RoundLedger) emit(ev models.LedgerEvent) {
	l.mu.Lock()
	observers := append([]observer(nil), l.observers...)
	l.mu.Unlock()

	for _, o := range observers {
		o.fn(ev)
	}
}

// Close flushes the last snapshot to the store.
func (l *RoundLedger) Close() {
	if l.writer != nil {
		l.writer.Close()
	}
}
