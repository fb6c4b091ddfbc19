package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDirective(t *testing.T) {
	d, ok := ParseDirective("<tool>price_lookup:ETH</tool>")
	require.True(t, ok)
	assert.Equal(t, "price_lookup", d.Name)
	assert.Equal(t, "ETH", d.Input)
}

func TestParseDirectiveSurroundingText(t *testing.T) {
	d, ok := ParseDirective("Let me check that for you.\n<tool>headlines: ethereum etf </tool>\nOne moment.")
	require.True(t, ok)
	assert.Equal(t, "headlines", d.Name)
	assert.Equal(t, "ethereum etf", d.Input, "input is trimmed")
}

func TestParseDirectiveMultilineInput(t *testing.T) {
	d, ok := ParseDirective("<tool>market_analysis:ETH\n30 days</tool>")
	require.True(t, ok)
	assert.Equal(t, "ETH\n30 days", d.Input)
}

func TestParseDirectiveFirstMatchWins(t *testing.T) {
	d, ok := ParseDirective("<tool>price_lookup:ETH</tool> and <tool>headlines:btc</tool>")
	require.True(t, ok)
	assert.Equal(t, "price_lookup", d.Name)
	assert.Equal(t, "ETH", d.Input)
}

func TestParseDirectiveNoMatch(t *testing.T) {
	for _, text := range []string{
		"ETH is trading around 3000 USD.",
		"<tool>price_lookup</tool>", // missing the colon
		"<tool>:ETH</tool>",         // missing the name
		"<tool>bad name:x</tool>",   // spaces are not valid in names
		"",
	} {
		_, ok := ParseDirective(text)
		assert.False(t, ok, "expected no directive in %q", text)
	}
}

func TestParseDirectiveEmptyInput(t *testing.T) {
	d, ok := ParseDirective("<tool>headlines:</tool>")
	require.True(t, ok)
	assert.Equal(t, "headlines", d.Name)
	assert.Empty(t, d.Input)
}
