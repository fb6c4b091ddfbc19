package trader

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hayden-dev/perpmind/internal/market"
)

type stubCompleter struct {
	reply string
	err   error
	calls int
}

func (s *stubCompleter) Complete(ctx context.Context, msgs []*schema.Message) (string, error) {
	s.calls++
	return s.reply, s.err
}

type stubBalance struct {
	balance *big.Int
	err     error
	calls   atomic.Int32
}

func (s *stubBalance) NativeBalance(ctx context.Context, addr common.Address) (*big.Int, error) {
	s.calls.Add(1)
	return s.balance, s.err
}

func TestRunCycleBalanceGate(t *testing.T) {
	placer := &fakePlacer{}
	ex, store := newTestExecutor(t, placer)
	completer := &stubCompleter{}
	balance := &stubBalance{balance: big.NewInt(1)} // far below the floor

	s := NewScheduler(nil, nil, completer, ex, balance, common.Address{}, "ETH", time.Minute, zerolog.Nop())

	require.NoError(t, s.runCycle(context.Background(), zerolog.Nop()))

	assert.Zero(t, completer.calls, "no reasoning below the balance floor")
	assert.Empty(t, placer.placed)

	audits := readAudits(t, store)
	require.Len(t, audits, 1)
	assert.Equal(t, ActionStayIdle, audits[0].Action)
	assert.Equal(t, "balance below trade minimum", audits[0].Reason)
}

func TestRunCycleBalanceAtFloorTrades(t *testing.T) {
	candleSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[[1735689600000, 100, 110, 95, 100], [1735776000000, 100, 112, 99, 105]]`))
	}))
	defer candleSrv.Close()
	sentimentSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"info": "Token not found"}`))
	}))
	defer sentimentSrv.Close()

	placer := &fakePlacer{}
	ex, store := newTestExecutor(t, placer)
	completer := &stubCompleter{reply: `{"action": "buy_more", "leverage": 2, "amount": 0.005, "isLong": true, "reason": "uptrend"}`}
	balance := &stubBalance{balance: new(big.Int).Set(MinTradeBalance)}

	aggregator := market.NewAggregator(
		market.NewCandleClient(candleSrv.URL),
		market.NewSentimentClient(sentimentSrv.URL, completer, zerolog.Nop()),
		2,
	)
	s := NewScheduler(aggregator, nil, completer, ex, balance, common.Address{}, "ETH", time.Minute, zerolog.Nop())

	require.NoError(t, s.runCycle(context.Background(), zerolog.Nop()))

	require.Len(t, placer.placed, 1)
	assert.Equal(t, uint(2), placer.placed[0].leverage)

	audits := readAudits(t, store)
	require.Len(t, audits, 1)
	assert.Equal(t, ActionBuyMore, audits[0].Action)
	assert.NotEmpty(t, audits[0].TxHash)
}

func TestRunCycleBalanceReadFailure(t *testing.T) {
	ex, store := newTestExecutor(t, &fakePlacer{})
	balance := &stubBalance{err: errors.New("rpc down")}

	s := NewScheduler(nil, nil, &stubCompleter{}, ex, balance, common.Address{}, "ETH", time.Minute, zerolog.Nop())

	require.Error(t, s.runCycle(context.Background(), zerolog.Nop()))
	assert.Empty(t, readAudits(t, store), "a failed cycle leaves no audit entry")
}

func TestTickSwallowsCycleErrors(t *testing.T) {
	ex, _ := newTestExecutor(t, &fakePlacer{})
	balance := &stubBalance{err: errors.New("rpc down")}

	s := NewScheduler(nil, nil, &stubCompleter{}, ex, balance, common.Address{}, "ETH", time.Minute, zerolog.Nop())

	// must not panic or propagate
	s.tick(context.Background())
	assert.Equal(t, int32(1), balance.calls.Load())

	// the cycle id is recorded for the heartbeat even when the cycle fails
	id, ok := s.lastCycle.Load().(string)
	require.True(t, ok)
	assert.NotEmpty(t, id)
}

// blockingBalance parks the cycle until released, simulating a long
// confirmation wait.
type blockingBalance struct {
	release chan struct{}
}

func (b *blockingBalance) NativeBalance(ctx context.Context, addr common.Address) (*big.Int, error) {
	<-b.release
	return nil, errors.New("stopped")
}

func TestRunStaysResponsiveDuringLongCycle(t *testing.T) {
	ex, _ := newTestExecutor(t, &fakePlacer{})
	release := make(chan struct{})
	defer close(release)
	balance := &blockingBalance{release: release}

	s := NewScheduler(nil, nil, &stubCompleter{}, ex, balance, common.Address{}, "ETH", time.Hour, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	// let the first cycle start and park, then stop the scheduler; the
	// select loop must keep servicing its timers and ctx while the cycle
	// is in flight
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler loop blocked behind an in-flight cycle")
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	ex, _ := newTestExecutor(t, &fakePlacer{})
	balance := &stubBalance{balance: big.NewInt(1)}

	s := NewScheduler(nil, nil, &stubCompleter{}, ex, balance, common.Address{}, "ETH", time.Hour, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	// let the immediate first cycle fire, then stop
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop on cancel")
	}
	assert.GreaterOrEqual(t, balance.calls.Load(), int32(1), "first cycle fires immediately")
}

func TestNewSchedulerDefaultsInterval(t *testing.T) {
	s := NewScheduler(nil, nil, &stubCompleter{}, nil, nil, common.Address{}, "ETH", 0, zerolog.Nop())
	assert.Equal(t, 10*time.Minute, s.interval)
}
