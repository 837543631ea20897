// Package wallet tracks the on-chain balance shown next to the game. It knows
// nothing about the dice ledger beyond being told that a roll happened.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/params"
	"go.uber.org/zap"
)

// BalanceReader is satisfied by *ethclient.Client.
type BalanceReader interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

type Balance struct {
	Address   string `json:"address"`
	Wei       string `json:"wei"`
	Ether     string `json:"ether"`
	UpdatedAt int64  `json:"updated_at"`
}

type Config struct {
	Reader  BalanceReader
	Address string
	Timeout time.Duration
	Logger  *zap.Logger
}

type Watcher struct {
	reader  BalanceReader
	address common.Address
	timeout time.Duration
	log     *zap.Logger
	now     func() time.Time

	// reads numbers each BalanceAt call in the order it started.
	reads atomic.Uint64

	mu         sync.RWMutex
	latest     *Balance
	latestRead uint64
}

func NewWatcher(cfg *Config) (*Watcher, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if cfg.Reader == nil {
		return nil, errors.New("balance reader cannot be nil")
	}
	if !common.IsHexAddress(cfg.Address) {
		return nil, fmt.Errorf("invalid wallet address: %q", cfg.Address)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return &Watcher{
		reader:  cfg.Reader,
		address: common.HexToAddress(cfg.Address),
		timeout: timeout,
		log:     log,
		now:     time.Now,
	}, nil
}

// Dial connects to an Ethereum JSON-RPC endpoint.
func Dial(ctx context.Context, rpcURL string) (*ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	return client, nil
}

// Refresh reads the latest balance. On failure the last known balance is kept.
// A read that finishes after a newer one is returned but not stored.
func (w *Watcher) Refresh(ctx context.Context) (*Balance, error) {
	read := w.reads.Add(1)
	wei, err := w.reader.BalanceAt(ctx, w.address, nil)
	if err != nil {
		return nil, fmt.Errorf("balance of %s: %w", w.address.Hex(), err)
	}

	b := &Balance{
		Address:   w.address.Hex(),
		Wei:       wei.String(),
		Ether:     FormatEther(wei),
		UpdatedAt: w.now().Unix(),
	}

	w.mu.Lock()
	if read > w.latestRead {
		w.latest = b
		w.latestRead = read
	}
	w.mu.Unlock()

	return b, nil
}

// OnRoll refreshes in the background; the ledger never waits on it.
func (w *Watcher) OnRoll() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		defer cancel()

		if _, err := w.Refresh(ctx); err != nil {
			w.log.Warn("wallet balance refresh failed", zap.Error(err))
		}
	}()
}

// Latest returns the last successfully read balance.
func (w *Watcher) Latest() (Balance, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.latest == nil {
		return Balance{Address: w.address.Hex()}, false
	}
	return *w.latest, true
}

// FormatEther renders wei as a decimal ether amount, e.g. "1.5" or "0.0".
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0.0"
	}

	unit := big.NewInt(params.Ether)
	whole, frac := new(big.Int).QuoRem(wei, unit, new(big.Int))

	sign := ""
	if wei.Sign() < 0 {
		sign = "-"
		whole.Abs(whole)
		frac.Abs(frac)
	}

	fracStr := frac.String()
	fracStr = strings.Repeat("0", 18-len(fracStr)) + fracStr
	fracStr = strings.TrimRight(fracStr, "0")
	if fracStr == "" {
		fracStr = "0"
	}

	return sign + whole.String() + "." + fracStr
}
