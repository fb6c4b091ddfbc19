package chain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Order types understood by the exchange router.
const (
	OrderTypeMarketSwap     uint8 = 0
	OrderTypeLimitSwap      uint8 = 1
	OrderTypeMarketIncrease uint8 = 2
	OrderTypeLimitIncrease  uint8 = 3
	OrderTypeMarketDecrease uint8 = 4
)

// SlippageBps is the fixed tolerance applied to the oracle midpoint when
// computing the acceptable execution price.
const SlippageBps = 100 // 1%

// AcceptablePrice offsets the oracle midpoint by the slippage tolerance:
// added for longs, subtracted for shorts, so the order tolerates the worst
// price in the direction the fill moves against.
func AcceptablePrice(mid *big.Int, isLong bool) *big.Int {
	adj := new(big.Int).Mul(mid, big.NewInt(SlippageBps))
	adj.Div(adj, big.NewInt(10_000))
	if isLong {
		return new(big.Int).Add(mid, adj)
	}
	return new(big.Int).Sub(mid, adj)
}

// NotionalUSD converts a collateral amount (smallest units) into the
// protocol's USD representation using the collateral oracle price.
func NotionalUSD(amount, collateralPrice *big.Int) *big.Int {
	return new(big.Int).Mul(amount, collateralPrice)
}

// SizeUSD is the position size: notional multiplied by leverage.
func SizeUSD(notional *big.Int, leverage uint) *big.Int {
	return new(big.Int).Mul(notional, big.NewInt(int64(leverage)))
}

const exchangeRouterABIJSON = `[
  {"inputs":[{"internalType":"bytes[]","name":"data","type":"bytes[]"}],"name":"multicall","outputs":[{"internalType":"bytes[]","name":"results","type":"bytes[]"}],"stateMutability":"payable","type":"function"},
  {"inputs":[{"internalType":"address","name":"receiver","type":"address"},{"internalType":"uint256","name":"amount","type":"uint256"}],"name":"sendWnt","outputs":[],"stateMutability":"payable","type":"function"},
  {"inputs":[{"components":[
      {"components":[
        {"internalType":"address","name":"receiver","type":"address"},
        {"internalType":"address","name":"callbackContract","type":"address"},
        {"internalType":"address","name":"uiFeeReceiver","type":"address"},
        {"internalType":"address","name":"market","type":"address"},
        {"internalType":"address","name":"initialCollateralToken","type":"address"},
        {"internalType":"address[]","name":"swapPath","type":"address[]"}
      ],"internalType":"struct CreateOrderParamsAddresses","name":"addresses","type":"tuple"},
      {"components":[
        {"internalType":"uint256","name":"sizeDeltaUsd","type":"uint256"},
        {"internalType":"uint256","name":"initialCollateralDeltaAmount","type":"uint256"},
        {"internalType":"uint256","name":"triggerPrice","type":"uint256"},
        {"internalType":"uint256","name":"acceptablePrice","type":"uint256"},
        {"internalType":"uint256","name":"executionFee","type":"uint256"},
        {"internalType":"uint256","name":"callbackGasLimit","type":"uint256"},
        {"internalType":"uint256","name":"minOutputAmount","type":"uint256"}
      ],"internalType":"struct CreateOrderParamsNumbers","name":"numbers","type":"tuple"},
      {"internalType":"uint8","name":"orderType","type":"uint8"},
      {"internalType":"uint8","name":"decreasePositionSwapType","type":"uint8"},
      {"internalType":"bool","name":"isLong","type":"bool"},
      {"internalType":"bool","name":"shouldUnwrapNativeToken","type":"bool"},
      {"internalType":"bytes32","name":"referralCode","type":"bytes32"}
    ],"internalType":"struct CreateOrderParams","name":"params","type":"tuple"}],
   "name":"createOrder","outputs":[{"internalType":"bytes32","name":"","type":"bytes32"}],"stateMutability":"payable","type":"function"}
]`

const dataStoreABIJSON = `[
  {"inputs":[{"internalType":"bytes32","name":"key","type":"bytes32"}],"name":"getAddress","outputs":[{"internalType":"address","name":"","type":"address"}],"stateMutability":"view","type":"function"}
]`

var (
	exchangeRouterABI = mustParseABI(exchangeRouterABIJSON)
	dataStoreABI      = mustParseABI(dataStoreABIJSON)
)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("parse abi: %v", err))
	}
	return parsed
}

// The tuple layouts mirror the router ABI; field names must match the
// component names for go-ethereum's packer.

type orderAddresses struct {
	Receiver               common.Address
	CallbackContract       common.Address
	UiFeeReceiver          common.Address
	Market                 common.Address
	InitialCollateralToken common.Address
	SwapPath               []common.Address
}

type orderNumbers struct {
	SizeDeltaUsd                 *big.Int
	InitialCollateralDeltaAmount *big.Int
	TriggerPrice                 *big.Int
	AcceptablePrice              *big.Int
	ExecutionFee                 *big.Int
	CallbackGasLimit             *big.Int
	MinOutputAmount              *big.Int
}

type createOrderParams struct {
	Addresses                orderAddresses
	Numbers                  orderNumbers
	OrderType                uint8
	DecreasePositionSwapType uint8
	IsLong                   bool
	ShouldUnwrapNativeToken  bool
	ReferralCode             [32]byte
}

func packSendWnt(receiver common.Address, amount *big.Int) ([]byte, error) {
	data, err := exchangeRouterABI.Pack("sendWnt", receiver, amount)
	if err != nil {
		return nil, fmt.Errorf("pack sendWnt: %w", err)
	}
	return data, nil
}

func packCreateOrder(params createOrderParams) ([]byte, error) {
	data, err := exchangeRouterABI.Pack("createOrder", params)
	if err != nil {
		return nil, fmt.Errorf("pack createOrder: %w", err)
	}
	return data, nil
}

func packMulticall(calls [][]byte) ([]byte, error) {
	data, err := exchangeRouterABI.Pack("multicall", calls)
	if err != nil {
		return nil, fmt.Errorf("pack multicall: %w", err)
	}
	return data, nil
}

func packGetAddress(key common.Hash) ([]byte, error) {
	data, err := dataStoreABI.Pack("getAddress", [32]byte(key))
	if err != nil {
		return nil, fmt.Errorf("pack getAddress: %w", err)
	}
	return data, nil
}

func unpackAddress(output []byte) (common.Address, error) {
	values, err := dataStoreABI.Unpack("getAddress", output)
	if err != nil {
		return common.Address{}, fmt.Errorf("unpack getAddress: %w", err)
	}
	addr, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("unexpected getAddress output type %T", values[0])
	}
	return addr, nil
}
