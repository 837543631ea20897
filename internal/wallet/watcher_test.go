package wallet

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAddress = "0xABCDEF1234567890ABCDEF1234567890ABCDEF12"

type fakeReader struct {
	mu      sync.Mutex
	balance *big.Int
	err     error
	calls   int
	lastArg common.Address
}

func (f *fakeReader) BalanceAt(_ context.Context, account common.Address, _ *big.Int) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastArg = account
	if f.err != nil {
		return nil, f.err
	}
	return new(big.Int).Set(f.balance), nil
}

func (f *fakeReader) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func mustWei(t *testing.T, s string) *big.Int {
	t.Helper()
	v, ok := new(big.Int).SetString(s, 10)
	require.True(t, ok)
	return v
}

func TestFormatEther(t *testing.T) {
	tests := []struct {
		wei  string
		want string
	}{
		{"0", "0.0"},
		{"1000000000000000000", "1.0"},
		{"1500000000000000000", "1.5"},
		{"1", "0.000000000000000001"},
		{"123456789000000000000", "123.456789"},
		{"-250000000000000000", "-0.25"},
	}

	for _, tt := range tests {
		t.Run(tt.wei, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatEther(mustWei(t, tt.wei)))
		})
	}
	assert.Equal(t, "0.0", FormatEther(nil))
}

func TestNewWatcher_InvalidConfig(t *testing.T) {
	_, err := NewWatcher(nil)
	assert.Error(t, err)

	_, err = NewWatcher(&Config{Address: testAddress})
	assert.Error(t, err)

	_, err = NewWatcher(&Config{Reader: &fakeReader{}, Address: "nope"})
	assert.Error(t, err)
}

func TestWatcher_Refresh(t *testing.T) {
	reader := &fakeReader{balance: mustWei(t, "1500000000000000000")}
	w, err := NewWatcher(&Config{Reader: reader, Address: testAddress})
	require.NoError(t, err)
	w.now = func() time.Time { return time.Unix(1_700_000_000, 0) }

	_, ok := w.Latest()
	assert.False(t, ok)

	b, err := w.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1.5", b.Ether)
	assert.Equal(t, "1500000000000000000", b.Wei)
	assert.Equal(t, int64(1_700_000_000), b.UpdatedAt)
	assert.Equal(t, common.HexToAddress(testAddress), reader.lastArg)

	reader.mu.Lock()
	reader.err = errors.New("rpc down")
	reader.mu.Unlock()

	_, err = w.Refresh(context.Background())
	assert.Error(t, err)

	latest, ok := w.Latest()
	assert.True(t, ok)
	assert.Equal(t, "1.5", latest.Ether, "failed refresh keeps the last balance")
}

func TestWatcher_OnRoll(t *testing.T) {
	reader := &fakeReader{balance: mustWei(t, "2000000000000000000")}
	w, err := NewWatcher(&Config{Reader: reader, Address: testAddress, Timeout: time.Second})
	require.NoError(t, err)

	w.OnRoll()

	assert.Eventually(t, func() bool {
		b, ok := w.Latest()
		return ok && b.Ether == "2.0"
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, reader.Calls())
}

// slowFirstReader holds its first read until released.
type slowFirstReader struct {
	mu      sync.Mutex
	calls   int
	entered chan struct{}
	release chan struct{}
}

func (r *slowFirstReader) BalanceAt(_ context.Context, _ common.Address, _ *big.Int) (*big.Int, error) {
	r.mu.Lock()
	r.calls++
	first := r.calls == 1
	r.mu.Unlock()

	if first {
		close(r.entered)
		<-r.release
		return big.NewInt(1_000_000_000_000_000_000), nil
	}
	return big.NewInt(2_000_000_000_000_000_000), nil
}

func TestWatcher_OutOfOrderRefreshKeepsNewest(t *testing.T) {
	reader := &slowFirstReader{entered: make(chan struct{}), release: make(chan struct{})}
	w, err := NewWatcher(&Config{Reader: reader, Address: testAddress, Timeout: time.Second})
	require.NoError(t, err)

	done := make(chan *Balance)
	go func() {
		b, err := w.Refresh(context.Background())
		assert.NoError(t, err)
		done <- b
	}()
	<-reader.entered

	newer, err := w.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2.0", newer.Ether)

	close(reader.release)
	older := <-done
	assert.Equal(t, "1.0", older.Ether)

	latest, ok := w.Latest()
	require.True(t, ok)
	assert.Equal(t, "2.0", latest.Ether, "a slow older read must not replace a newer balance")
}
