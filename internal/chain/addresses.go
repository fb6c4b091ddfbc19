package chain

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrUnsupportedChain = errors.New("chain: unsupported chain id")
	ErrUnsupportedAsset = errors.New("chain: no token mapping for asset")
)

// Addresses is the static protocol address set for one chain.
type Addresses struct {
	WrappedNative  common.Address
	Stable         common.Address
	ExchangeRouter common.Address
	OrderVault     common.Address
	DataStore      common.Address

	// ExecutionFee is the fixed native amount attached per order to pay
	// the keeper that executes it.
	ExecutionFee *big.Int

	Tokens map[string]common.Address
}

// Arbitrum One deployment of the exchange protocol.
var arbitrum = Addresses{
	WrappedNative:  common.HexToAddress("0x82aF49447D8a07e3bd95BD0d56f35241523fBab1"), // WETH
	Stable:         common.HexToAddress("0xaf88d065e77c8cC2239327C5EDb3A432268e5831"), // USDC
	ExchangeRouter: common.HexToAddress("0x900173A66dbD345006C51fA35fA3aB760FcD843b"),
	OrderVault:     common.HexToAddress("0x31eF83a530Fde1B38EE9A18093A333D8Bbbc40D5"),
	DataStore:      common.HexToAddress("0xFD70de6b91282D8017aA4E741e9Ae325CAb992d8"),
	ExecutionFee:   big.NewInt(600_000_000_000_000), // 0.0006 ETH
	Tokens: map[string]common.Address{
		"ETH":  common.HexToAddress("0x82aF49447D8a07e3bd95BD0d56f35241523fBab1"),
		"WETH": common.HexToAddress("0x82aF49447D8a07e3bd95BD0d56f35241523fBab1"),
		"BTC":  common.HexToAddress("0x2f2a2543B76A4166549F7aaB2e75Bef0aefC5B0f"),
		"WBTC": common.HexToAddress("0x2f2a2543B76A4166549F7aaB2e75Bef0aefC5B0f"),
		"USDC": common.HexToAddress("0xaf88d065e77c8cC2239327C5EDb3A432268e5831"),
	},
}

var chains = map[int64]Addresses{
	42161: arbitrum,
}

// AddressesForChain resolves the static address table for a chain id.
func AddressesForChain(chainID int64) (Addresses, error) {
	addrs, ok := chains[chainID]
	if !ok {
		return Addresses{}, fmt.Errorf("%w: %d", ErrUnsupportedChain, chainID)
	}
	return addrs, nil
}

// Token resolves an asset symbol to its token address on this chain.
func (a Addresses) Token(symbol string) (common.Address, error) {
	addr, ok := a.Tokens[strings.ToUpper(symbol)]
	if !ok {
		return common.Address{}, fmt.Errorf("%w: %s", ErrUnsupportedAsset, symbol)
	}
	return addr, nil
}
