package chain

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Market address derivation. The exchange protocol stores each liquidity
// market under a deterministic datastore key: the tuple
// (domain tag, index token, long token, short token, market type) is
// ABI-encoded and hashed, and that salt is hashed again together with the
// hashed "MARKET_SALT" domain tag. The encoding below is a protocol
// contract, not a local choice.

var (
	typString, _  = abi.NewType("string", "", nil)
	typAddress, _ = abi.NewType("address", "", nil)
	typBytes32, _ = abi.NewType("bytes32", "", nil)
)

// DefaultMarketType tags the standard single-asset perpetual market.
var DefaultMarketType = HashString("basic-v1")

// HashString is keccak256 of the ABI-encoded string.
func HashString(s string) common.Hash {
	args := abi.Arguments{{Type: typString}}
	encoded, err := args.Pack(s)
	if err != nil {
		panic(fmt.Sprintf("abi encode string: %v", err))
	}
	return crypto.Keccak256Hash(encoded)
}

// MarketSalt binds the market tuple into the first-stage hash.
func MarketSalt(indexToken, longToken, shortToken common.Address, marketType common.Hash) common.Hash {
	args := abi.Arguments{
		{Type: typString},
		{Type: typAddress},
		{Type: typAddress},
		{Type: typAddress},
		{Type: typBytes32},
	}
	encoded, err := args.Pack("GMX_MARKET", indexToken, longToken, shortToken, [32]byte(marketType))
	if err != nil {
		panic(fmt.Sprintf("abi encode market salt: %v", err))
	}
	return crypto.Keccak256Hash(encoded)
}

var marketSaltTag = HashString("MARKET_SALT")

// MarketKey is the second-stage hash: the salt-domain tag bound with the
// first-stage salt. The datastore stores the market address under this key.
func MarketKey(salt common.Hash) common.Hash {
	args := abi.Arguments{
		{Type: typBytes32},
		{Type: typBytes32},
	}
	encoded, err := args.Pack([32]byte(marketSaltTag), [32]byte(salt))
	if err != nil {
		panic(fmt.Sprintf("abi encode market key: %v", err))
	}
	return crypto.Keccak256Hash(encoded)
}

// DeriveMarketKey runs both stages for a standard market of the given
// index/long/short tokens.
func DeriveMarketKey(indexToken, longToken, shortToken common.Address) common.Hash {
	return MarketKey(MarketSalt(indexToken, longToken, shortToken, DefaultMarketType))
}
