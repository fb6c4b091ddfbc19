package market

import (
	"context"
)

// Aggregator joins the candle and sentiment sources into the per-cycle
// analysis pair. The two fetches are independent and run concurrently.
type Aggregator struct {
	candles   *CandleClient
	sentiment *SentimentClient
	lookback  int
}

func NewAggregator(candles *CandleClient, sentiment *SentimentClient, lookbackDays int) *Aggregator {
	if lookbackDays < 2 {
		lookbackDays = 30
	}
	return &Aggregator{
		candles:   candles,
		sentiment: sentiment,
		lookback:  lookbackDays,
	}
}

// GatherAnalysis fetches market data and sentiment for the asset. A candle
// failure aborts the call; sentiment always yields a report (fallback on
// failure) and never aborts.
func (a *Aggregator) GatherAnalysis(ctx context.Context, asset string) (Analysis, SentimentReport, error) {
	type candleResult struct {
		analysis Analysis
		err      error
	}

	candleCh := make(chan candleResult, 1)
	sentimentCh := make(chan SentimentReport, 1)

	go func() {
		bars, err := a.candles.GetDailyCandles(ctx, asset, a.lookback)
		if err != nil {
			candleCh <- candleResult{err: err}
			return
		}
		analysis, err := Analyze(asset, bars)
		candleCh <- candleResult{analysis: analysis, err: err}
	}()

	go func() {
		sentimentCh <- a.sentiment.GetReport(ctx, asset)
	}()

	candle := <-candleCh
	report := <-sentimentCh
	if candle.err != nil {
		return Analysis{}, SentimentReport{}, candle.err
	}
	return candle.analysis, report, nil
}
