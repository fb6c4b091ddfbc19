package trader

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hayden-dev/perpmind/internal/chain"
	"github.com/hayden-dev/perpmind/internal/storage"
)

type placedTrade struct {
	leverage uint
	amount   *big.Int
	isLong   bool
}

type closedPosition struct {
	asset            string
	sizeUsd          *big.Int
	collateralAmount *big.Int
	isLong           bool
}

// fakePlacer records calls and returns scripted results.
type fakePlacer struct {
	placeErr error
	closeErr error
	sizeUsd  *big.Int

	placed []placedTrade
	closed []closedPosition
}

func (f *fakePlacer) PlaceTrade(ctx context.Context, key *ecdsa.PrivateKey, collateralAsset, targetAsset string, chainID int64, leverage uint, amount *big.Int, isLong bool) (chain.TradeReceipt, error) {
	if f.placeErr != nil {
		return chain.TradeReceipt{}, f.placeErr
	}
	f.placed = append(f.placed, placedTrade{leverage: leverage, amount: amount, isLong: isLong})
	size := f.sizeUsd
	if size == nil {
		size = big.NewInt(1000)
	}
	return chain.TradeReceipt{
		TxHash:  common.HexToHash("0xaa11"),
		SizeUSD: size,
	}, nil
}

func (f *fakePlacer) ClosePosition(ctx context.Context, key *ecdsa.PrivateKey, targetAsset string, chainID int64, sizeUsd, collateralAmount *big.Int, isLong bool) (common.Hash, error) {
	if f.closeErr != nil {
		return common.Hash{}, f.closeErr
	}
	f.closed = append(f.closed, closedPosition{asset: targetAsset, sizeUsd: sizeUsd, collateralAmount: collateralAmount, isLong: isLong})
	return common.HexToHash("0xbb22"), nil
}

func newTestExecutor(t *testing.T, placer OrderPlacer) (*Executor, storage.Store) {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	owner := crypto.PubkeyToAddress(key.PublicKey).Hex()

	return NewExecutor(placer, store, key, owner, 42161, "ETH", "ETH", zerolog.Nop()), store
}

func readAudits(t *testing.T, store storage.Store) []AuditRecord {
	t.Helper()
	records, err := store.Read(context.Background(), TradesCollection, storage.Filter{})
	require.NoError(t, err)
	audits := make([]AuditRecord, len(records))
	for i, rec := range records {
		require.NoError(t, rec.DecodeData(&audits[i]))
	}
	return audits
}

func TestExecuteStayIdleAudits(t *testing.T) {
	placer := &fakePlacer{}
	ex, store := newTestExecutor(t, placer)

	err := ex.Execute(context.Background(), Decision{Action: ActionStayIdle, Reason: "mixed signals"})
	require.NoError(t, err)

	audits := readAudits(t, store)
	require.Len(t, audits, 1)
	assert.Equal(t, ActionStayIdle, audits[0].Action)
	assert.Equal(t, "mixed signals", audits[0].Reason)
	assert.Empty(t, audits[0].TxHash)
	assert.Empty(t, placer.placed)
}

func TestExecuteBuyMore(t *testing.T) {
	placer := &fakePlacer{sizeUsd: big.NewInt(5000)}
	ex, store := newTestExecutor(t, placer)

	err := ex.Execute(context.Background(), Decision{
		Action:   ActionBuyMore,
		Leverage: 5,
		Amount:   0.01,
		IsLong:   true,
		Reason:   "bullish trend",
	})
	require.NoError(t, err)

	require.Len(t, placer.placed, 1)
	assert.Equal(t, uint(5), placer.placed[0].leverage)
	assert.Equal(t, "10000000000000000", placer.placed[0].amount.String(), "0.01 converted to smallest units")
	assert.True(t, placer.placed[0].isLong)

	audits := readAudits(t, store)
	require.Len(t, audits, 1)
	assert.Equal(t, ActionBuyMore, audits[0].Action)
	assert.Equal(t, common.HexToHash("0xaa11").Hex(), audits[0].TxHash)
	require.NotNil(t, audits[0].Trade)
	assert.Equal(t, "ETH", audits[0].Trade.Asset)
	assert.Equal(t, "5000", audits[0].Trade.SizeUSD)
	assert.Equal(t, "10000000000000000", audits[0].Trade.AmountWei)
}

func TestExecuteBuyMoreFailureLeavesNoAudit(t *testing.T) {
	placer := &fakePlacer{placeErr: errors.New("rpc down")}
	ex, store := newTestExecutor(t, placer)

	err := ex.Execute(context.Background(), Decision{
		Action:   ActionBuyMore,
		Leverage: 2,
		Amount:   0.01,
		Reason:   "r",
	})
	require.Error(t, err)
	assert.Empty(t, readAudits(t, store))
}

func TestExecuteClosePosition(t *testing.T) {
	placer := &fakePlacer{sizeUsd: big.NewInt(7000)}
	ex, store := newTestExecutor(t, placer)
	ctx := context.Background()

	// open first so a closable record exists
	require.NoError(t, ex.Execute(ctx, Decision{
		Action:   ActionBuyMore,
		Leverage: 7,
		Amount:   0.002,
		IsLong:   true,
		Reason:   "open",
	}))

	records, err := store.Read(ctx, TradesCollection, storage.Filter{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	tradeID := records[0].ID

	require.NoError(t, ex.Execute(ctx, Decision{
		Action:  ActionClosePosition,
		TradeID: tradeID,
		Reason:  "take profit",
	}))

	require.Len(t, placer.closed, 1)
	assert.Equal(t, "ETH", placer.closed[0].asset)
	assert.Equal(t, "7000", placer.closed[0].sizeUsd.String())
	assert.Equal(t, "2000000000000000", placer.closed[0].collateralAmount.String())
	assert.True(t, placer.closed[0].isLong)

	audits := readAudits(t, store)
	require.Len(t, audits, 2)
	closeAudit := audits[1]
	assert.Equal(t, ActionClosePosition, closeAudit.Action)
	assert.Equal(t, common.HexToHash("0xbb22").Hex(), closeAudit.TxHash)
	require.NotNil(t, closeAudit.Trade)
	assert.Equal(t, tradeID, closeAudit.Trade.ReferenceTradeID)
}

func TestExecuteCloseUnknownTrade(t *testing.T) {
	placer := &fakePlacer{}
	ex, _ := newTestExecutor(t, placer)

	err := ex.Execute(context.Background(), Decision{
		Action:  ActionClosePosition,
		TradeID: "no-such-trade",
		Reason:  "r",
	})
	require.Error(t, err)
	assert.Empty(t, placer.closed)
}

func TestExecuteCloseRejectsNonTradeRecord(t *testing.T) {
	placer := &fakePlacer{}
	ex, store := newTestExecutor(t, placer)
	ctx := context.Background()

	// a stay_idle audit is not a closable position
	require.NoError(t, ex.Execute(ctx, Decision{Action: ActionStayIdle, Reason: "idle"}))
	records, err := store.Read(ctx, TradesCollection, storage.Filter{})
	require.NoError(t, err)
	require.Len(t, records, 1)

	err = ex.Execute(ctx, Decision{
		Action:  ActionClosePosition,
		TradeID: records[0].ID,
		Reason:  "r",
	})
	require.Error(t, err)
	assert.Empty(t, placer.closed)
}

func TestExecuteUnknownAction(t *testing.T) {
	ex, store := newTestExecutor(t, &fakePlacer{})
	err := ex.Execute(context.Background(), Decision{Action: Action("yolo")})
	require.Error(t, err)
	assert.Empty(t, readAudits(t, store))
}
