package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// TickerPrice is one signed oracle entry. Min and max bound the price the
// keepers will accept; orders are priced off the midpoint.
type TickerPrice struct {
	TokenSymbol  string
	TokenAddress string
	MinPrice     *big.Int
	MaxPrice     *big.Int
}

// Midpoint averages the oracle bounds with truncating integer division.
func (t TickerPrice) Midpoint() *big.Int {
	sum := new(big.Int).Add(t.MinPrice, t.MaxPrice)
	return sum.Div(sum, big.NewInt(2))
}

// OracleClient fetches the signed price feed the exchange keepers publish.
type OracleClient struct {
	client *resty.Client
}

func NewOracleClient(baseURL string) *OracleClient {
	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetTimeout(15 * time.Second)
	client.SetHeader("User-Agent", "perpmind/1.0")
	return &OracleClient{client: client}
}

type signedPricesResponse struct {
	SignedPrices []struct {
		TokenSymbol  string `json:"tokenSymbol"`
		TokenAddress string `json:"tokenAddress"`
		MinPriceFull string `json:"minPriceFull"`
		MaxPriceFull string `json:"maxPriceFull"`
	} `json:"signedPrices"`
}

// LatestPrices returns the current signed oracle entries.
func (oc *OracleClient) LatestPrices(ctx context.Context) ([]TickerPrice, error) {
	resp, err := oc.client.R().
		SetContext(ctx).
		Get("/signed_prices/latest")
	if err != nil {
		return nil, fmt.Errorf("fetch oracle prices: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("oracle endpoint returned HTTP %d", resp.StatusCode())
	}

	var parsed signedPricesResponse
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return nil, fmt.Errorf("malformed oracle payload: %w", err)
	}

	prices := make([]TickerPrice, 0, len(parsed.SignedPrices))
	for _, entry := range parsed.SignedPrices {
		minPrice, ok := new(big.Int).SetString(entry.MinPriceFull, 10)
		if !ok {
			return nil, fmt.Errorf("malformed min price %q for %s", entry.MinPriceFull, entry.TokenSymbol)
		}
		maxPrice, ok := new(big.Int).SetString(entry.MaxPriceFull, 10)
		if !ok {
			return nil, fmt.Errorf("malformed max price %q for %s", entry.MaxPriceFull, entry.TokenSymbol)
		}
		prices = append(prices, TickerPrice{
			TokenSymbol:  entry.TokenSymbol,
			TokenAddress: entry.TokenAddress,
			MinPrice:     minPrice,
			MaxPrice:     maxPrice,
		})
	}
	return prices, nil
}

// FindPrice locates the entry for a token symbol. Wrapped and native
// symbols are treated as the same asset.
func FindPrice(prices []TickerPrice, symbol string) (TickerPrice, error) {
	symbol = strings.ToUpper(symbol)
	wrapped := "W" + symbol
	for _, p := range prices {
		ps := strings.ToUpper(p.TokenSymbol)
		if ps == symbol || ps == wrapped {
			return p, nil
		}
	}
	return TickerPrice{}, fmt.Errorf("no oracle price for %s", symbol)
}
