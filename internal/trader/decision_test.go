package trader

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hayden-dev/perpmind/internal/market"
	"github.com/hayden-dev/perpmind/internal/retrieval"
)

func TestParseDecisionStayIdle(t *testing.T) {
	d := ParseDecision(`{"action": "stay_idle", "reason": "mixed signals"}`)
	assert.Equal(t, ActionStayIdle, d.Action)
	assert.Equal(t, "mixed signals", d.Reason)
}

func TestParseDecisionBuyMore(t *testing.T) {
	d := ParseDecision(`{"action": "buy_more", "leverage": 3, "amount": 0.01, "isLong": true, "reason": "bullish"}`)
	assert.Equal(t, ActionBuyMore, d.Action)
	assert.Equal(t, uint(3), d.Leverage)
	assert.Equal(t, 0.01, d.Amount)
	assert.True(t, d.IsLong)
}

func TestParseDecisionLeverageClamped(t *testing.T) {
	d := ParseDecision(`{"action": "buy_more", "leverage": 50, "amount": 0.01, "reason": "r"}`)
	assert.Equal(t, uint(10), d.Leverage)

	d = ParseDecision(`{"action": "buy_more", "amount": 0.01, "reason": "r"}`)
	assert.Equal(t, uint(1), d.Leverage)
}

func TestParseDecisionBuyMoreNeedsAmount(t *testing.T) {
	d := ParseDecision(`{"action": "buy_more", "leverage": 2, "reason": "r"}`)
	assert.Equal(t, ActionStayIdle, d.Action)

	d = ParseDecision(`{"action": "buy_more", "amount": -1, "reason": "r"}`)
	assert.Equal(t, ActionStayIdle, d.Action)
}

func TestParseDecisionCloseNeedsTradeID(t *testing.T) {
	d := ParseDecision(`{"action": "close_position", "reason": "take profit"}`)
	assert.Equal(t, ActionStayIdle, d.Action)

	d = ParseDecision(`{"action": "close_position", "tradeId": "abc-123", "reason": "take profit"}`)
	assert.Equal(t, ActionClosePosition, d.Action)
	assert.Equal(t, "abc-123", d.TradeID)
}

func TestParseDecisionUnknownAction(t *testing.T) {
	d := ParseDecision(`{"action": "yolo", "reason": "r"}`)
	assert.Equal(t, ActionStayIdle, d.Action)
	assert.Contains(t, d.Reason, "yolo")
}

func TestParseDecisionUnparseable(t *testing.T) {
	d := ParseDecision("I think we should probably wait and see.")
	assert.Equal(t, ActionStayIdle, d.Action)
	assert.Equal(t, "unparseable decision output", d.Reason)
}

func TestParseDecisionEmbeddedJSON(t *testing.T) {
	d := ParseDecision("Here is my call:\n```json\n{\"action\": \"stay_idle\", \"reason\": \"chop\"}\n```")
	assert.Equal(t, ActionStayIdle, d.Action)
	assert.Equal(t, "chop", d.Reason)
}

func TestBuildDecisionPrompt(t *testing.T) {
	analysis := market.Analysis{
		Asset:          "ETH",
		CurrentPrice:   3000,
		PriceChange24h: 0.031,
		Volatility24h:  0.02,
		Trend: market.Trend{
			Direction:  market.TrendBullish,
			Strength:   3.1,
			Support:    2900,
			Resistance: 3100,
		},
	}
	sentiment := market.SentimentReport{
		OverallSentiment: 70,
		EngagementScore:  55,
		KeyPhrases:       []string{"etf inflows"},
	}
	docs := []retrieval.Doc{{ReportID: "risk-playbook", Content: "size down in chop"}}

	prompt := BuildDecisionPrompt(analysis, sentiment, docs)
	assert.Contains(t, prompt, "Market analysis for ETH")
	assert.Contains(t, prompt, "3.10%")
	assert.Contains(t, prompt, "bullish")
	assert.Contains(t, prompt, "etf inflows")
	assert.Contains(t, prompt, "[risk-playbook] size down in chop")

	// analysis before sentiment before notes
	assert.Less(t, strings.Index(prompt, "Market analysis"), strings.Index(prompt, "News sentiment"))
	assert.Less(t, strings.Index(prompt, "News sentiment"), strings.Index(prompt, "Reference notes"))

	bare := BuildDecisionPrompt(analysis, sentiment, nil)
	assert.NotContains(t, bare, "Reference notes")
}
