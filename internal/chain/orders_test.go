package chain

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcceptablePrice(t *testing.T) {
	mid := big.NewInt(3_000_000)

	long := AcceptablePrice(mid, true)
	assert.Equal(t, "3030000", long.String(), "long tolerates 1% above mid")

	short := AcceptablePrice(mid, false)
	assert.Equal(t, "2970000", short.String(), "short tolerates 1% below mid")

	// input must not be mutated
	assert.Equal(t, "3000000", mid.String())
}

func TestAcceptablePriceTruncates(t *testing.T) {
	// 101 * 100 / 10000 = 1.01 truncated to 1
	assert.Equal(t, "102", AcceptablePrice(big.NewInt(101), true).String())
	assert.Equal(t, "100", AcceptablePrice(big.NewInt(101), false).String())
}

func TestNotionalAndSize(t *testing.T) {
	amount := big.NewInt(2_000_000_000_000_000) // 0.002 in native units
	price := big.NewInt(3_000)

	notional := NotionalUSD(amount, price)
	assert.Equal(t, "6000000000000000000", notional.String())

	size := SizeUSD(notional, 5)
	assert.Equal(t, "30000000000000000000", size.String())
	assert.Equal(t, notional, SizeUSD(notional, 1))
}

func TestPackOrderCalldata(t *testing.T) {
	params := createOrderParams{
		Addresses: orderAddresses{
			Receiver:               common.HexToAddress("0x1111111111111111111111111111111111111111"),
			Market:                 common.HexToAddress("0x2222222222222222222222222222222222222222"),
			InitialCollateralToken: arbitrum.WrappedNative,
			SwapPath:               []common.Address{},
		},
		Numbers: orderNumbers{
			SizeDeltaUsd:                 big.NewInt(1000),
			InitialCollateralDeltaAmount: big.NewInt(0),
			TriggerPrice:                 big.NewInt(0),
			AcceptablePrice:              big.NewInt(3030),
			ExecutionFee:                 arbitrum.ExecutionFee,
			CallbackGasLimit:             big.NewInt(0),
			MinOutputAmount:              big.NewInt(0),
		},
		OrderType: OrderTypeMarketIncrease,
		IsLong:    true,
	}

	createOrder, err := packCreateOrder(params)
	require.NoError(t, err)
	assert.Equal(t, exchangeRouterABI.Methods["createOrder"].ID, createOrder[:4])

	sendWnt, err := packSendWnt(arbitrum.OrderVault, big.NewInt(1))
	require.NoError(t, err)

	multicall, err := packMulticall([][]byte{sendWnt, createOrder})
	require.NoError(t, err)
	assert.Equal(t, exchangeRouterABI.Methods["multicall"].ID, multicall[:4])
}

func TestGetAddressRoundTrip(t *testing.T) {
	key := DeriveMarketKey(arbitrum.WrappedNative, arbitrum.WrappedNative, arbitrum.Stable)

	calldata, err := packGetAddress(key)
	require.NoError(t, err)
	assert.Equal(t, dataStoreABI.Methods["getAddress"].ID, calldata[:4])

	want := common.HexToAddress("0x3333333333333333333333333333333333333333")
	output, err := dataStoreABI.Methods["getAddress"].Outputs.Pack(want)
	require.NoError(t, err)

	got, err := unpackAddress(output)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
