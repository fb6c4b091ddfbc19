package market

import (
	"time"

	"github.com/shopspring/decimal"
)

type TrendDirection string

const (
	TrendBullish  TrendDirection = "bullish"
	TrendBearish  TrendDirection = "bearish"
	TrendSideways TrendDirection = "sideways"
)

// Candle is one OHLC bar.
type Candle struct {
	Timestamp time.Time       `json:"timestamp"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
}

// Trend summarizes the direction of a candle window.
type Trend struct {
	Direction  TrendDirection `json:"direction"`
	Strength   float64        `json:"strength"` // 0-100
	Support    float64        `json:"support"`
	Resistance float64        `json:"resistance"`
}

// Analysis is the normalized market shape fed into the decision prompt.
// Derived fresh each cycle, never persisted.
type Analysis struct {
	Asset          string  `json:"asset"`
	CurrentPrice   float64 `json:"current_price"`
	PriceChange24h float64 `json:"price_change_24h"` // fractional
	Volatility24h  float64 `json:"volatility_24h"`   // stddev of returns
	Trend          Trend   `json:"trend"`
}

// SentimentReport is the condensed news-sentiment view. Scores are 0-100.
type SentimentReport struct {
	OverallSentiment float64  `json:"overallSentiment"`
	EngagementScore  float64  `json:"engagementScore"`
	TopInfluencers   []string `json:"topInfluencers"`
	KeyPhrases       []string `json:"keyPhrases"`
}

// FallbackReport is the neutral report substituted whenever the sentiment
// feed or the summarization parse fails.
func FallbackReport() SentimentReport {
	return SentimentReport{
		OverallSentiment: 50,
		EngagementScore:  50,
		TopInfluencers:   []string{},
		KeyPhrases:       []string{},
	}
}

// Votes mirrors the sentiment feed's per-post vote tally.
type Votes struct {
	Positive  int `json:"positive"`
	Negative  int `json:"negative"`
	Important int `json:"important"`
	Liked     int `json:"liked"`
	Disliked  int `json:"disliked"`
	LOL       int `json:"lol"`
	Toxic     int `json:"toxic"`
	Comments  int `json:"comments"`
	Saved     int `json:"saved"`
}

// Post is one news item from the sentiment feed.
type Post struct {
	Title string `json:"title"`
	Votes Votes  `json:"votes"`
}

// Score is the weighted vote tally for a post, in [-1, 1]. Posts with no
// votes score 0.
func (p Post) Score() float64 {
	total := p.Votes.Positive + p.Votes.Negative + p.Votes.Important +
		p.Votes.Liked + p.Votes.Disliked + p.Votes.LOL +
		p.Votes.Toxic + p.Votes.Comments + p.Votes.Saved
	if total == 0 {
		return 0
	}
	weighted := p.Votes.Positive + p.Votes.Liked + p.Votes.Important -
		p.Votes.Negative - p.Votes.Disliked - p.Votes.Toxic
	return float64(weighted) / float64(total)
}
