package market

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// asset slug mapping for the candle endpoint
var candleSlugs = map[string]string{
	"ETH": "ethereum",
	"BTC": "bitcoin",
}

// CandleClient fetches daily OHLC series from the market-data source.
type CandleClient struct {
	client  *resty.Client
	limiter *rate.Limiter
	retry   *RetryConfig
}

func NewCandleClient(baseURL string) *CandleClient {
	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetTimeout(30 * time.Second)
	client.SetHeader("User-Agent", "perpmind/1.0")

	return &CandleClient{
		client: client,
		// public candle endpoints throttle aggressively; stay well under
		limiter: rate.NewLimiter(rate.Every(2*time.Second), 1),
		retry:   DefaultRetryConfig(),
	}
}

// GetDailyCandles retrieves days of 1-day bars for the asset, oldest first.
func (cc *CandleClient) GetDailyCandles(ctx context.Context, asset string, days int) ([]Candle, error) {
	slug, ok := candleSlugs[strings.ToUpper(asset)]
	if !ok {
		slug = strings.ToLower(asset)
	}

	if err := cc.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var raw [][]float64
	err := WithRetry(ctx, cc.retry, func() error {
		resp, err := cc.client.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"vs_currency": "usd",
				"days":        fmt.Sprintf("%d", days),
			}).
			Get(fmt.Sprintf("/coins/%s/ohlc", slug))
		if err != nil {
			return fmt.Errorf("fetch candles for %s: %w", asset, err)
		}
		if resp.StatusCode() != 200 {
			return fmt.Errorf("candle endpoint returned HTTP %d for %s", resp.StatusCode(), asset)
		}
		if err := json.Unmarshal(resp.Body(), &raw); err != nil {
			return fmt.Errorf("malformed candle payload for %s: %w", asset, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	candles := make([]Candle, 0, len(raw))
	for i, row := range raw {
		if len(row) < 5 {
			return nil, fmt.Errorf("malformed candle row %d for %s: %d fields", i, asset, len(row))
		}
		candles = append(candles, Candle{
			Timestamp: time.UnixMilli(int64(row[0])),
			Open:      decimal.NewFromFloat(row[1]),
			High:      decimal.NewFromFloat(row[2]),
			Low:       decimal.NewFromFloat(row[3]),
			Close:     decimal.NewFromFloat(row[4]),
		})
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("candle endpoint returned no bars for %s", asset)
	}
	return candles, nil
}
