package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// DefaultReportIDs is the fixed set of precomputed reference reports the
// trading prompt is augmented with.
var DefaultReportIDs = []string{"market-structure", "perp-mechanics", "risk-playbook"}

// Doc is one retrieved reference snippet.
type Doc struct {
	Content   string  `json:"content"`
	ReportID  string  `json:"report_id"`
	Relevance float64 `json:"relevance"`
}

// Client queries the retrieval/report service. Callers treat it as
// best-effort: a nil client or a failed query just means no augmentation.
type Client struct {
	client    *resty.Client
	reportIDs []string
}

func NewClient(baseURL string, reportIDs []string) *Client {
	if len(reportIDs) == 0 {
		reportIDs = DefaultReportIDs
	}
	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetTimeout(15 * time.Second)
	client.SetHeader("User-Agent", "perpmind/1.0")
	return &Client{client: client, reportIDs: reportIDs}
}

type queryRequest struct {
	Query     string   `json:"query"`
	ReportIDs []string `json:"report_ids"`
}

type queryResponse struct {
	Results []Doc `json:"results"`
}

// Query returns reference snippets relevant to the query text.
func (c *Client) Query(ctx context.Context, query string) ([]Doc, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(queryRequest{Query: query, ReportIDs: c.reportIDs}).
		Post("/query")
	if err != nil {
		return nil, fmt.Errorf("retrieval query: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("retrieval endpoint returned HTTP %d", resp.StatusCode())
	}

	var parsed queryResponse
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return nil, fmt.Errorf("malformed retrieval payload: %w", err)
	}
	return parsed.Results, nil
}
