package trader

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/hayden-dev/perpmind/internal/chain"
	"github.com/hayden-dev/perpmind/internal/storage"
)

// TradesCollection is the durable-storage collection audit records live in.
const TradesCollection = "trades"

// OrderPlacer is the order-builder capability the executor depends on.
type OrderPlacer interface {
	PlaceTrade(ctx context.Context, key *ecdsa.PrivateKey, collateralAsset, targetAsset string, chainID int64, leverage uint, amount *big.Int, isLong bool) (chain.TradeReceipt, error)
	ClosePosition(ctx context.Context, key *ecdsa.PrivateKey, targetAsset string, chainID int64, sizeUsd, collateralAmount *big.Int, isLong bool) (common.Hash, error)
}

// TradeData captures enough of an executed trade to reconstruct it and to
// close it later.
type TradeData struct {
	Asset            string `json:"asset"`
	Leverage         uint   `json:"leverage"`
	AmountWei        string `json:"amount_wei"`
	IsLong           bool   `json:"is_long"`
	SizeUSD          string `json:"size_usd,omitempty"`
	ReferenceTradeID string `json:"reference_trade_id,omitempty"`
}

// AuditRecord is the append-only per-cycle entry. Never updated or deleted.
type AuditRecord struct {
	Action    Action     `json:"action"`
	Reason    string     `json:"reason"`
	TxHash    string     `json:"tx_hash,omitempty"`
	Trade     *TradeData `json:"trade_data,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// Executor maps a Decision onto order-builder calls and writes the audit
// trail. Every call ends in exactly one audit write or one returned error.
type Executor struct {
	exchange        OrderPlacer
	store           storage.Store
	key             *ecdsa.PrivateKey
	owner           string
	chainID         int64
	collateralAsset string
	targetAsset     string
	log             zerolog.Logger
}

func NewExecutor(exchange OrderPlacer, store storage.Store, key *ecdsa.PrivateKey, owner string, chainID int64, collateralAsset, targetAsset string, log zerolog.Logger) *Executor {
	return &Executor{
		exchange:        exchange,
		store:           store,
		key:             key,
		owner:           owner,
		chainID:         chainID,
		collateralAsset: collateralAsset,
		targetAsset:     targetAsset,
		log:             log.With().Str("component", "executor").Logger(),
	}
}

func (ex *Executor) Execute(ctx context.Context, d Decision) error {
	switch d.Action {
	case ActionStayIdle:
		return ex.writeAudit(ctx, AuditRecord{Action: ActionStayIdle, Reason: d.Reason})
	case ActionBuyMore:
		return ex.executeBuy(ctx, d)
	case ActionClosePosition:
		return ex.executeClose(ctx, d)
	default:
		return fmt.Errorf("execute: unknown action %q", d.Action)
	}
}

func (ex *Executor) executeBuy(ctx context.Context, d Decision) error {
	amountWei := decimal.NewFromFloat(d.Amount).
		Mul(decimal.New(1, 18)).
		BigInt()

	receipt, err := ex.exchange.PlaceTrade(ctx, ex.key, ex.collateralAsset, ex.targetAsset, ex.chainID, d.Leverage, amountWei, d.IsLong)
	if err != nil {
		// No audit write on failure: the cycle failed, it was not idle.
		return fmt.Errorf("place trade: %w", err)
	}

	return ex.writeAudit(ctx, AuditRecord{
		Action: ActionBuyMore,
		Reason: d.Reason,
		TxHash: receipt.TxHash.Hex(),
		Trade: &TradeData{
			Asset:     ex.targetAsset,
			Leverage:  d.Leverage,
			AmountWei: amountWei.String(),
			IsLong:    d.IsLong,
			SizeUSD:   receipt.SizeUSD.String(),
		},
	})
}

func (ex *Executor) executeClose(ctx context.Context, d Decision) error {
	prior, err := ex.lookupTrade(ctx, d.TradeID)
	if err != nil {
		return err
	}

	sizeUsd, ok := new(big.Int).SetString(prior.SizeUSD, 10)
	if !ok {
		return fmt.Errorf("trade %s has malformed size %q", d.TradeID, prior.SizeUSD)
	}
	amountWei, ok := new(big.Int).SetString(prior.AmountWei, 10)
	if !ok {
		return fmt.Errorf("trade %s has malformed amount %q", d.TradeID, prior.AmountWei)
	}

	txHash, err := ex.exchange.ClosePosition(ctx, ex.key, prior.Asset, ex.chainID, sizeUsd, amountWei, prior.IsLong)
	if err != nil {
		return fmt.Errorf("close position %s: %w", d.TradeID, err)
	}

	return ex.writeAudit(ctx, AuditRecord{
		Action: ActionClosePosition,
		Reason: d.Reason,
		TxHash: txHash.Hex(),
		Trade: &TradeData{
			Asset:            prior.Asset,
			Leverage:         prior.Leverage,
			AmountWei:        prior.AmountWei,
			IsLong:           prior.IsLong,
			SizeUSD:          prior.SizeUSD,
			ReferenceTradeID: d.TradeID,
		},
	})
}

// lookupTrade resolves a referenced prior trade's recorded parameters.
func (ex *Executor) lookupTrade(ctx context.Context, tradeID string) (*TradeData, error) {
	records, err := ex.store.Read(ctx, TradesCollection, storage.Filter{"id": tradeID})
	if err != nil {
		return nil, fmt.Errorf("lookup trade %s: %w", tradeID, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("no recorded trade with id %s", tradeID)
	}

	var audit AuditRecord
	if err := records[0].DecodeData(&audit); err != nil {
		return nil, err
	}
	if audit.Action != ActionBuyMore || audit.Trade == nil {
		return nil, fmt.Errorf("trade %s is not a closable position (action=%s)", tradeID, audit.Action)
	}
	return audit.Trade, nil
}

func (ex *Executor) writeAudit(ctx context.Context, record AuditRecord) error {
	record.Timestamp = time.Now().UTC()

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}

	ids, err := ex.store.Write(ctx, TradesCollection, []storage.Record{{
		OwnerID: ex.owner,
		Data:    data,
	}})
	if err != nil {
		return fmt.Errorf("write audit record: %w", err)
	}

	ex.log.Info().
		Str("audit_id", ids[0]).
		Str("action", string(record.Action)).
		Str("tx", record.TxHash).
		Msg("cycle audited")
	return nil
}
