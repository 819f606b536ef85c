package pool

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"cloudMining/internal/ledger"
	"cloudMining/internal/lock"
)

var btc = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")

func TestWatcherRunOnce(t *testing.T) {
	h := newHarness(t)
	s := h.deploy(t, tokens(50))

	h.bank.Mint(eth, reservoir, tokens(2))
	h.bank.Mint(btc, reservoir, tokens(1))

	w := NewWatcher(WatchConfig{Assets: []common.Address{eth, btc}, Interval: time.Hour}, s, lock.Noop{}, zaptest.NewLogger(t))
	results, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, tokens(2).String(), results[0].NewAmount.String())

	// a second pass finds nothing new
	results, err = w.RunOnce(context.Background())
	require.NoError(t, err)
	for _, r := range results {
		require.True(t, r.Empty())
	}
	require.Equal(t, tokens(1).String(), s.Ledger().Pending(owner, btc).String())
}

func TestWatcherSkipsWhenNoShares(t *testing.T) {
	h := newHarness(t)
	s := h.deploy(t, nil)
	h.bank.Mint(eth, reservoir, tokens(1))

	w := NewWatcher(WatchConfig{Assets: []common.Address{eth}, Interval: time.Hour, MaxRetries: 3, RetryBackoff: time.Hour}, s, nil, nil)
	results, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestWatcherRunStopsOnCancel(t *testing.T) {
	h := newHarness(t)
	s := h.deploy(t, tokens(50))

	ctx, cancel := context.WithCancel(context.Background())
	w := NewWatcher(WatchConfig{Assets: []common.Address{eth}, Interval: time.Millisecond}, s, nil, nil)

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop")
	}

	require.Error(t, NewWatcher(WatchConfig{Interval: time.Second}, s, nil, nil).Run(context.Background()))
}

func TestWithRetry(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), 3, time.Millisecond, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("rpc timeout")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)

	calls = 0
	err = withRetry(context.Background(), 3, time.Millisecond, func(context.Context) error {
		calls++
		return ledger.ErrNoSharesIssued
	})
	require.ErrorIs(t, err, ledger.ErrNoSharesIssued)
	require.Equal(t, 1, calls)

	calls = 0
	err = withRetry(context.Background(), 2, time.Millisecond, func(context.Context) error {
		calls++
		return errors.New("still down")
	})
	require.Error(t, err)
	require.Equal(t, 3, calls)
}
