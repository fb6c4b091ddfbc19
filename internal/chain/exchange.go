package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
)

const (
	orderGasLimit  = 5_000_000
	confirmTimeout = 5 * time.Minute
)

// Exchange builds and submits orders against the perpetuals protocol.
// The signing key is supplied per call and never retained.
type Exchange struct {
	client *ethclient.Client
	oracle *OracleClient
	log    zerolog.Logger
}

func NewExchange(rpcURL, oracleURL string, log zerolog.Logger) (*Exchange, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	return &Exchange{
		client: client,
		oracle: NewOracleClient(oracleURL),
		log:    log.With().Str("component", "exchange").Logger(),
	}, nil
}

// NativeBalance reads the signer's native balance at the latest block.
func (e *Exchange) NativeBalance(ctx context.Context, addr common.Address) (*big.Int, error) {
	balance, err := e.client.BalanceAt(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("read balance: %w", err)
	}
	return balance, nil
}

// resolveMarket reads the market address stored in the datastore registry
// under the derived key.
func (e *Exchange) resolveMarket(ctx context.Context, dataStore common.Address, key common.Hash) (common.Address, error) {
	data, err := packGetAddress(key)
	if err != nil {
		return common.Address{}, err
	}
	output, err := e.client.CallContract(ctx, ethereum.CallMsg{To: &dataStore, Data: data}, nil)
	if err != nil {
		return common.Address{}, fmt.Errorf("datastore getAddress: %w", err)
	}
	addr, err := unpackAddress(output)
	if err != nil {
		return common.Address{}, err
	}
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("no market registered under key %s", key.Hex())
	}
	return addr, nil
}

// TradeReceipt reports a confirmed increase order. SizeUSD is recorded so
// a later close can unwind the exact position size.
type TradeReceipt struct {
	TxHash  common.Hash
	SizeUSD *big.Int
}

// PlaceTrade opens or extends a position: market-increase order for amount
// collateral units at the given leverage.
func (e *Exchange) PlaceTrade(ctx context.Context, key *ecdsa.PrivateKey, collateralAsset, targetAsset string, chainID int64, leverage uint, amount *big.Int, isLong bool) (TradeReceipt, error) {
	if leverage == 0 {
		return TradeReceipt{}, fmt.Errorf("leverage must be positive")
	}
	if amount == nil || amount.Sign() <= 0 {
		return TradeReceipt{}, fmt.Errorf("amount must be positive")
	}

	addrs, err := AddressesForChain(chainID)
	if err != nil {
		return TradeReceipt{}, err
	}
	targetToken, err := addrs.Token(targetAsset)
	if err != nil {
		return TradeReceipt{}, err
	}
	collateralToken, err := addrs.Token(collateralAsset)
	if err != nil {
		return TradeReceipt{}, err
	}

	prices, err := e.oracle.LatestPrices(ctx)
	if err != nil {
		return TradeReceipt{}, err
	}
	collateralPrice, err := FindPrice(prices, collateralAsset)
	if err != nil {
		return TradeReceipt{}, err
	}
	targetPrice, err := FindPrice(prices, targetAsset)
	if err != nil {
		return TradeReceipt{}, err
	}

	notional := NotionalUSD(amount, collateralPrice.Midpoint())
	sizeUsd := SizeUSD(notional, leverage)
	acceptable := AcceptablePrice(targetPrice.Midpoint(), isLong)

	marketKey := DeriveMarketKey(targetToken, targetToken, addrs.Stable)
	market, err := e.resolveMarket(ctx, addrs.DataStore, marketKey)
	if err != nil {
		return TradeReceipt{}, err
	}

	// Margin arrives as wrapped native; a position in any other asset
	// routes the collateral swap through the native/stable reference pool.
	swapPath := []common.Address{}
	if collateralToken != targetToken {
		refKey := DeriveMarketKey(addrs.WrappedNative, addrs.WrappedNative, addrs.Stable)
		refMarket, err := e.resolveMarket(ctx, addrs.DataStore, refKey)
		if err != nil {
			return TradeReceipt{}, err
		}
		swapPath = append(swapPath, refMarket)
	}

	params := createOrderParams{
		Addresses: orderAddresses{
			Receiver:               crypto.PubkeyToAddress(key.PublicKey),
			Market:                 market,
			InitialCollateralToken: addrs.WrappedNative,
			SwapPath:               swapPath,
		},
		Numbers: orderNumbers{
			SizeDeltaUsd:                 sizeUsd,
			InitialCollateralDeltaAmount: big.NewInt(0),
			TriggerPrice:                 big.NewInt(0),
			AcceptablePrice:              acceptable,
			ExecutionFee:                 addrs.ExecutionFee,
			CallbackGasLimit:             big.NewInt(0),
			MinOutputAmount:              big.NewInt(0),
		},
		OrderType: OrderTypeMarketIncrease,
		IsLong:    isLong,
	}

	e.log.Info().
		Str("target", targetAsset).
		Str("market", market.Hex()).
		Str("size_usd", sizeUsd.String()).
		Str("acceptable_price", acceptable.String()).
		Bool("is_long", isLong).
		Msg("placing increase order")

	value := new(big.Int).Add(amount, addrs.ExecutionFee)
	txHash, err := e.submitOrder(ctx, key, chainID, addrs, value, value, params)
	if err != nil {
		return TradeReceipt{}, err
	}
	return TradeReceipt{TxHash: txHash, SizeUSD: sizeUsd}, nil
}

// ClosePosition issues a market-decrease order unwinding a previously
// opened position. sizeUsd and collateralAmount come from the recorded
// trade being closed.
func (e *Exchange) ClosePosition(ctx context.Context, key *ecdsa.PrivateKey, targetAsset string, chainID int64, sizeUsd, collateralAmount *big.Int, isLong bool) (common.Hash, error) {
	if sizeUsd == nil || sizeUsd.Sign() <= 0 {
		return common.Hash{}, fmt.Errorf("size must be positive")
	}

	addrs, err := AddressesForChain(chainID)
	if err != nil {
		return common.Hash{}, err
	}
	targetToken, err := addrs.Token(targetAsset)
	if err != nil {
		return common.Hash{}, err
	}

	prices, err := e.oracle.LatestPrices(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	targetPrice, err := FindPrice(prices, targetAsset)
	if err != nil {
		return common.Hash{}, err
	}

	// Closing fills on the opposite side, so the tolerable price moves the
	// other way from the open.
	acceptable := AcceptablePrice(targetPrice.Midpoint(), !isLong)

	marketKey := DeriveMarketKey(targetToken, targetToken, addrs.Stable)
	market, err := e.resolveMarket(ctx, addrs.DataStore, marketKey)
	if err != nil {
		return common.Hash{}, err
	}

	params := createOrderParams{
		Addresses: orderAddresses{
			Receiver:               crypto.PubkeyToAddress(key.PublicKey),
			Market:                 market,
			InitialCollateralToken: addrs.WrappedNative,
			SwapPath:               []common.Address{},
		},
		Numbers: orderNumbers{
			SizeDeltaUsd:                 sizeUsd,
			InitialCollateralDeltaAmount: collateralAmount,
			TriggerPrice:                 big.NewInt(0),
			AcceptablePrice:              acceptable,
			ExecutionFee:                 addrs.ExecutionFee,
			CallbackGasLimit:             big.NewInt(0),
			MinOutputAmount:              big.NewInt(0),
		},
		OrderType:               OrderTypeMarketDecrease,
		IsLong:                  isLong,
		ShouldUnwrapNativeToken: true,
	}

	e.log.Info().
		Str("target", targetAsset).
		Str("market", market.Hex()).
		Str("size_usd", sizeUsd.String()).
		Bool("is_long", isLong).
		Msg("placing decrease order")

	fee := new(big.Int).Set(addrs.ExecutionFee)
	return e.submitOrder(ctx, key, chainID, addrs, fee, fee, params)
}

// submitOrder broadcasts the atomic multicall (vault top-up + order
// creation) and blocks until the chain includes it, bounded by
// confirmTimeout. A timeout or reverted receipt is a transaction failure.
func (e *Exchange) submitOrder(ctx context.Context, key *ecdsa.PrivateKey, chainID int64, addrs Addresses, wntAmount, txValue *big.Int, params createOrderParams) (common.Hash, error) {
	sendWnt, err := packSendWnt(addrs.OrderVault, wntAmount)
	if err != nil {
		return common.Hash{}, err
	}
	createOrder, err := packCreateOrder(params)
	if err != nil {
		return common.Hash{}, err
	}
	calldata, err := packMulticall([][]byte{sendWnt, createOrder})
	if err != nil {
		return common.Hash{}, err
	}

	from := crypto.PubkeyToAddress(key.PublicKey)
	nonce, err := e.client.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("fetch nonce: %w", err)
	}
	gasPrice, err := e.client.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("suggest gas price: %w", err)
	}

	tx := types.NewTransaction(nonce, addrs.ExchangeRouter, txValue, orderGasLimit, gasPrice, calldata)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(big.NewInt(chainID)), key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign order tx: %w", err)
	}

	if err := e.client.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("broadcast order tx: %w", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, confirmTimeout)
	defer cancel()
	receipt, err := bind.WaitMined(waitCtx, e.client, signed)
	if err != nil {
		return common.Hash{}, fmt.Errorf("await confirmation of %s: %w", signed.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return common.Hash{}, fmt.Errorf("order tx %s reverted", signed.Hash().Hex())
	}

	e.log.Info().
		Str("tx", signed.Hash().Hex()).
		Uint64("block", receipt.BlockNumber.Uint64()).
		Msg("order confirmed")

	return signed.Hash(), nil
}
