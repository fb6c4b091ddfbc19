package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"github.com/piquette/finance-go/quote"

	"github.com/hayden-dev/perpmind/internal/market"
)

// Tool is one callable capability exposed to conversations. The set is
// closed: tools are registered explicitly at construction, never looked up
// dynamically.
type Tool interface {
	Name() string
	Description() string
	Execute(ctx context.Context, input string) (string, error)
}

// PriceLookupTool quotes the current spot price for an asset symbol.
type PriceLookupTool struct{}

func (PriceLookupTool) Name() string { return "price_lookup" }

func (PriceLookupTool) Description() string {
	return "Look up the current USD spot price for a crypto asset. Input: asset symbol, e.g. ETH."
}

func (PriceLookupTool) Execute(ctx context.Context, input string) (string, error) {
	symbol := strings.ToUpper(strings.TrimSpace(input))
	if symbol == "" {
		return "", fmt.Errorf("price_lookup: asset symbol is required")
	}

	q, err := quote.Get(symbol + "-USD")
	if err != nil {
		return "", fmt.Errorf("price_lookup: quote %s: %w", symbol, err)
	}
	return fmt.Sprintf("%s is trading at %.2f USD (24h range %.2f - %.2f)",
		symbol, q.RegularMarketPrice, q.RegularMarketDayLow, q.RegularMarketDayHigh), nil
}

// HeadlinesTool scrapes recent news headlines for a query.
type HeadlinesTool struct {
	client *resty.Client
}

func NewHeadlinesTool() *HeadlinesTool {
	client := resty.New()
	client.SetTimeout(20 * time.Second)
	client.SetHeader("User-Agent", "Mozilla/5.0 (compatible; perpmind/1.0)")
	return &HeadlinesTool{client: client}
}

func (t *HeadlinesTool) Name() string { return "headlines" }

func (t *HeadlinesTool) Description() string {
	return "Fetch recent news headlines for a topic. Input: search query, e.g. ethereum."
}

func (t *HeadlinesTool) Execute(ctx context.Context, input string) (string, error) {
	query := strings.TrimSpace(input)
	if query == "" {
		return "", fmt.Errorf("headlines: search query is required")
	}

	resp, err := t.client.R().
		SetContext(ctx).
		SetQueryParam("q", query).
		Get("https://news.google.com/search")
	if err != nil {
		return "", fmt.Errorf("headlines: fetch: %w", err)
	}
	if resp.StatusCode() != 200 {
		return "", fmt.Errorf("headlines: HTTP %d", resp.StatusCode())
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(resp.String()))
	if err != nil {
		return "", fmt.Errorf("headlines: parse: %w", err)
	}

	var titles []string
	doc.Find("article a").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		title := strings.TrimSpace(sel.Text())
		if title != "" && len(title) > 20 {
			titles = append(titles, "- "+title)
		}
		return len(titles) < 10
	})
	if len(titles) == 0 {
		return fmt.Sprintf("No recent headlines found for %q.", query), nil
	}
	return fmt.Sprintf("Recent headlines for %q:\n%s", query, strings.Join(titles, "\n")), nil
}

// MarketAnalysisTool runs the candle analysis pipeline on demand.
type MarketAnalysisTool struct {
	candles  *market.CandleClient
	lookback int
}

func NewMarketAnalysisTool(candles *market.CandleClient, lookbackDays int) *MarketAnalysisTool {
	if lookbackDays < 2 {
		lookbackDays = 30
	}
	return &MarketAnalysisTool{candles: candles, lookback: lookbackDays}
}

func (t *MarketAnalysisTool) Name() string { return "market_analysis" }

func (t *MarketAnalysisTool) Description() string {
	return "Analyze recent daily candles for a crypto asset: price change, volatility, trend, support and resistance. Input: asset symbol, e.g. ETH."
}

func (t *MarketAnalysisTool) Execute(ctx context.Context, input string) (string, error) {
	asset := strings.ToUpper(strings.TrimSpace(input))
	if asset == "" {
		return "", fmt.Errorf("market_analysis: asset symbol is required")
	}

	candles, err := t.candles.GetDailyCandles(ctx, asset, t.lookback)
	if err != nil {
		return "", fmt.Errorf("market_analysis: %w", err)
	}
	analysis, err := market.Analyze(asset, candles)
	if err != nil {
		return "", fmt.Errorf("market_analysis: %w", err)
	}

	return fmt.Sprintf(
		"%s: price %.2f USD, %d-day change %.2f%%, volatility %.4f, trend %s (strength %.0f), support %.2f, resistance %.2f",
		asset, analysis.CurrentPrice, t.lookback, analysis.PriceChange24h*100,
		analysis.Volatility24h, analysis.Trend.Direction, analysis.Trend.Strength,
		analysis.Trend.Support, analysis.Trend.Resistance), nil
}
