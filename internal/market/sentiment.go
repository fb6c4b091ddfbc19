package market

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/hayden-dev/perpmind/internal/llm"
)

const sentimentSystemPrompt = `You are a crypto news sentiment analyst.
Summarize the scored headlines you are given into a single JSON object:
{"overallSentiment": 0-100, "engagementScore": 0-100, "topInfluencers": ["..."], "keyPhrases": ["..."]}
Respond with the JSON object only.`

// SentimentClient turns the raw news feed into a SentimentReport. It is
// deliberately failure-proof: any upstream or parse problem degrades to the
// neutral fallback report instead of failing the trading cycle.
type SentimentClient struct {
	client    *resty.Client
	completer llm.Completer
	retry     *RetryConfig
	log       zerolog.Logger
}

func NewSentimentClient(baseURL string, completer llm.Completer, log zerolog.Logger) *SentimentClient {
	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetTimeout(30 * time.Second)
	client.SetHeader("User-Agent", "perpmind/1.0")

	return &SentimentClient{
		client:    client,
		completer: completer,
		retry:     DefaultRetryConfig(),
		log:       log.With().Str("component", "sentiment").Logger(),
	}
}

type postsResponse struct {
	Info    string `json:"info"`
	Results []Post `json:"results"`
}

// GetReport fetches recent posts for the asset and condenses them. It never
// returns an error; the fallback report covers every failure mode.
func (sc *SentimentClient) GetReport(ctx context.Context, asset string) SentimentReport {
	posts, found, err := sc.fetchPosts(ctx, asset)
	if err != nil {
		sc.log.Warn().Err(err).Str("asset", asset).Msg("sentiment fetch failed, using fallback")
		return FallbackReport()
	}
	if !found {
		sc.log.Info().Str("asset", asset).Msg("asset not tracked by sentiment feed")
		return FallbackReport()
	}
	if len(posts) == 0 {
		return FallbackReport()
	}
	return sc.summarize(ctx, asset, posts)
}

// fetchPosts returns (posts, assetFound, err). An explicit "Token not found"
// reply from the feed is not an error, it just means no coverage.
func (sc *SentimentClient) fetchPosts(ctx context.Context, asset string) ([]Post, bool, error) {
	var parsed postsResponse
	err := WithRetry(ctx, sc.retry, func() error {
		resp, err := sc.client.R().
			SetContext(ctx).
			SetQueryParam("currencies", strings.ToUpper(asset)).
			Get("/posts/")
		if err != nil {
			return fmt.Errorf("fetch posts for %s: %w", asset, err)
		}
		if resp.StatusCode() != 200 {
			return fmt.Errorf("sentiment endpoint returned HTTP %d for %s", resp.StatusCode(), asset)
		}
		parsed = postsResponse{}
		if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
			return fmt.Errorf("malformed sentiment payload for %s: %w", asset, err)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if strings.Contains(strings.ToLower(parsed.Info), "not found") {
		return nil, false, nil
	}
	return parsed.Results, true, nil
}

// summarize asks the reasoning service to condense the scored batch, then
// applies field-level defaulting to whatever comes back.
func (sc *SentimentClient) summarize(ctx context.Context, asset string, posts []Post) SentimentReport {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Recent %s headlines with community vote scores (-1 to 1):\n", asset)
	for _, p := range posts {
		fmt.Fprintf(&sb, "- [%.2f] %s\n", p.Score(), p.Title)
	}

	reply, err := sc.completer.Complete(ctx, []*schema.Message{
		schema.SystemMessage(sentimentSystemPrompt),
		schema.UserMessage(sb.String()),
	})
	if err != nil {
		sc.log.Warn().Err(err).Str("asset", asset).Msg("sentiment summarization failed, using fallback")
		return FallbackReport()
	}

	return ParseReport(reply)
}

// ParseReport recovers a SentimentReport from completion text. Each field
// defaults independently so one mistyped field never discards the rest.
func ParseReport(text string) SentimentReport {
	var loose struct {
		OverallSentiment *float64  `json:"overallSentiment"`
		EngagementScore  *float64  `json:"engagementScore"`
		TopInfluencers   *[]string `json:"topInfluencers"`
		KeyPhrases       *[]string `json:"keyPhrases"`
	}

	report := FallbackReport()
	if err := llm.DecodeLoose(text, &loose); err != nil {
		return report
	}

	if loose.OverallSentiment != nil && *loose.OverallSentiment >= 0 && *loose.OverallSentiment <= 100 {
		report.OverallSentiment = *loose.OverallSentiment
	}
	if loose.EngagementScore != nil && *loose.EngagementScore >= 0 && *loose.EngagementScore <= 100 {
		report.EngagementScore = *loose.EngagementScore
	}
	if loose.TopInfluencers != nil {
		report.TopInfluencers = *loose.TopInfluencers
	}
	if loose.KeyPhrases != nil {
		report.KeyPhrases = *loose.KeyPhrases
	}
	return report
}
