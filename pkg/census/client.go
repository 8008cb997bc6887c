// Package census implements the Census Bureau ACS 1-year estimates API
// client. It issues place-level group queries per state, with bounded
// retries for transient failures; a 404 is a benign "group not offered
// for this year/state" outcome, not an error worth retrying.
package census

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/censusflow/censusflow/pkg/clients"
	"github.com/censusflow/censusflow/pkg/errors"
)

// Options configures the client
type Options struct {
	// BaseURL is the ACS endpoint with a %d slot for the year
	BaseURL string
	// APIKey is the Census API key appended to data queries
	APIKey string
	// RequestTimeout bounds each request
	RequestTimeout time.Duration
	// RequestPause spaces successive requests
	RequestPause time.Duration
	// MaxAttempts bounds retries for transient failures
	MaxAttempts int
}

// Client is the ACS API client
type Client struct {
	opts   Options
	http   *clients.HTTPClient
	retry  *clients.RetryPolicy
	logger *zap.Logger
}

// NewClient creates an ACS API client
func NewClient(opts Options, logger *zap.Logger) *Client {
	httpCfg := clients.DefaultHTTPConfig()
	if opts.RequestTimeout > 0 {
		httpCfg.RequestTimeout = opts.RequestTimeout
	}
	httpCfg.RequestPause = opts.RequestPause

	attempts := opts.MaxAttempts
	if attempts < 1 {
		attempts = 3
	}

	return &Client{
		opts:   opts,
		http:   clients.NewHTTPClient(httpCfg, logger),
		retry:  clients.NewRetryPolicy(attempts, 1*time.Second),
		logger: logger.With(zap.String("component", "census_client")),
	}
}

// GroupTable is a raw descriptive group response: the first header row
// holds variable codes, the second human-readable labels, and the rest
// the data. JSON nulls arrive as empty strings.
type GroupTable struct {
	Codes  []string
	Labels []string
	Rows   [][]string
}

// Empty reports whether the response carried no data rows
func (t *GroupTable) Empty() bool {
	return t == nil || len(t.Rows) == 0
}

// GroupData fetches one (year, state, group) table with descriptive
// headers. A not_found error means the group is not offered for this
// year/state; transient failures are retried with exponential backoff.
func (c *Client) GroupData(ctx context.Context, year int, stateFIPS, group string) (*GroupTable, error) {
	url := fmt.Sprintf(
		"%s?get=group(%s)&for=place:*&in=state:%s&key=%s&descriptive=true",
		fmt.Sprintf(c.opts.BaseURL, year), group, stateFIPS, c.opts.APIKey,
	)

	var table *GroupTable
	err := c.retry.ExecuteWithCondition(ctx, func() error {
		raw, err := c.get(ctx, url)
		if err != nil {
			return err
		}

		var cells [][]*string
		if err := json.Unmarshal(raw, &cells); err != nil {
			return errors.Wrap(err, errors.ErrorTypeData, "failed to decode group response").
				WithDetail("group", group).
				WithDetail("state", stateFIPS)
		}

		// Fewer than three rows means headers without data
		if len(cells) < 3 {
			table = &GroupTable{}
			return nil
		}

		table = &GroupTable{
			Codes:  derefRow(cells[0]),
			Labels: derefRow(cells[1]),
			Rows:   make([][]string, 0, len(cells)-2),
		}
		for _, row := range cells[2:] {
			table.Rows = append(table.Rows, derefRow(row))
		}
		return nil
	}, errors.IsRetryable)
	if err != nil {
		return nil, err
	}
	return table, nil
}

// GroupDescriptions fetches the group code to description mapping from
// the groups metadata endpoint.
func (c *Client) GroupDescriptions(ctx context.Context, year int) (map[string]string, error) {
	url := fmt.Sprintf(c.opts.BaseURL, year) + "/groups.json"

	raw, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Groups []struct {
			Name        string `json:"name"`
			Description string `json:"description"`
		} `json:"groups"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to decode groups metadata")
	}

	descriptions := make(map[string]string, len(payload.Groups))
	for _, g := range payload.Groups {
		descriptions[g.Name] = g.Description
	}
	return descriptions, nil
}

// Close releases the underlying HTTP resources
func (c *Client) Close() {
	c.http.Close()
}

// get performs one request and maps HTTP status to structured errors
func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	resp, err := c.http.Get(ctx, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "request failed")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, errors.New(errors.ErrorTypeNotFound, "resource not available").
			WithDetail("url", url)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, errors.New(errors.ErrorTypeRateLimit, "rate limited by API")
	case resp.StatusCode != http.StatusOK:
		return nil, errors.New(errors.ErrorTypeConnection, "unexpected status").
			WithDetail("status", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to read response body")
	}
	return body, nil
}

func derefRow(row []*string) []string {
	out := make([]string, len(row))
	for i, cell := range row {
		if cell != nil {
			out[i] = *cell
		}
	}
	return out
}
