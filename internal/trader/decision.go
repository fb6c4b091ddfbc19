package trader

import (
	"fmt"
	"strings"

	"github.com/hayden-dev/perpmind/internal/llm"
	"github.com/hayden-dev/perpmind/internal/market"
	"github.com/hayden-dev/perpmind/internal/retrieval"
)

type Action string

const (
	ActionStayIdle      Action = "stay_idle"
	ActionBuyMore       Action = "buy_more"
	ActionClosePosition Action = "close_position"
)

// Decision is the tagged outcome of one reasoning call. Produced once per
// cycle and never mutated afterwards.
type Decision struct {
	Action   Action  `json:"action"`
	Leverage uint    `json:"leverage,omitempty"`
	Amount   float64 `json:"amount,omitempty"` // native collateral units
	IsLong   bool    `json:"isLong,omitempty"`
	TradeID  string  `json:"tradeId,omitempty"`
	Reason   string  `json:"reason"`
}

const decisionSystemPrompt = `You are an autonomous perpetuals trading agent.
Given market analysis, news sentiment and reference notes, choose exactly one action:
- "stay_idle": no trade this cycle
- "buy_more": open or extend a position ("leverage" 1-10, "amount" in native collateral units, "isLong" true/false)
- "close_position": unwind an earlier trade ("tradeId" of the open trade)
Respond with a single JSON object:
{"action": "...", "leverage": 0, "amount": 0, "isLong": true, "tradeId": "", "reason": "..."}
Be conservative; "stay_idle" is the right call whenever the evidence is mixed.`

// ParseDecision recovers a Decision from completion text. Output that
// cannot be parsed or fails validation degrades to stay_idle so a bad
// completion never halts the loop with an ambiguous state.
func ParseDecision(text string) Decision {
	var d Decision
	if err := llm.DecodeLoose(text, &d); err != nil {
		return Decision{Action: ActionStayIdle, Reason: "unparseable decision output"}
	}

	switch d.Action {
	case ActionStayIdle:
		return d
	case ActionBuyMore:
		if d.Amount <= 0 {
			return Decision{Action: ActionStayIdle, Reason: "buy_more decision without a positive amount"}
		}
		if d.Leverage < 1 {
			d.Leverage = 1
		}
		if d.Leverage > 10 {
			d.Leverage = 10
		}
		return d
	case ActionClosePosition:
		if strings.TrimSpace(d.TradeID) == "" {
			return Decision{Action: ActionStayIdle, Reason: "close_position decision without a trade id"}
		}
		return d
	default:
		return Decision{Action: ActionStayIdle, Reason: fmt.Sprintf("unknown action %q", d.Action)}
	}
}

// BuildDecisionPrompt synthesizes the per-cycle report handed to the
// reasoning service: analysis and sentiment first, reference notes after.
func BuildDecisionPrompt(analysis market.Analysis, sentiment market.SentimentReport, docs []retrieval.Doc) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Market analysis for %s:\n", analysis.Asset)
	fmt.Fprintf(&sb, "- current price: %.2f USD\n", analysis.CurrentPrice)
	fmt.Fprintf(&sb, "- 24h change: %.2f%%\n", analysis.PriceChange24h*100)
	fmt.Fprintf(&sb, "- volatility (stddev of daily returns): %.4f\n", analysis.Volatility24h)
	fmt.Fprintf(&sb, "- trend: %s (strength %.0f/100), support %.2f, resistance %.2f\n",
		analysis.Trend.Direction, analysis.Trend.Strength, analysis.Trend.Support, analysis.Trend.Resistance)

	fmt.Fprintf(&sb, "\nNews sentiment:\n")
	fmt.Fprintf(&sb, "- overall sentiment: %.0f/100\n", sentiment.OverallSentiment)
	fmt.Fprintf(&sb, "- engagement: %.0f/100\n", sentiment.EngagementScore)
	if len(sentiment.KeyPhrases) > 0 {
		fmt.Fprintf(&sb, "- key phrases: %s\n", strings.Join(sentiment.KeyPhrases, ", "))
	}
	if len(sentiment.TopInfluencers) > 0 {
		fmt.Fprintf(&sb, "- top influencers: %s\n", strings.Join(sentiment.TopInfluencers, ", "))
	}

	if len(docs) > 0 {
		fmt.Fprintf(&sb, "\nReference notes:\n")
		for _, doc := range docs {
			fmt.Fprintf(&sb, "[%s] %s\n", doc.ReportID, doc.Content)
		}
	}

	return sb.String()
}
