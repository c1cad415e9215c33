// Package subgraph queries the protocol's GraphQL indexer for vault snapshots
// and account interaction history.
package subgraph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/mtlprog/vaultstat/internal/domain"
)

// Client is a GraphQL-over-HTTP client for the vault indexer with retry on 429 and 5xx.
type Client struct {
	url        string
	httpClient *http.Client
	maxRetries int
	baseDelay  time.Duration
	limiter    *rate.Limiter
}

// NewClient creates a new subgraph client. limiter may be nil.
func NewClient(url string, maxRetries int, baseDelay time.Duration, limiter *rate.Limiter) *Client {
	return &Client{
		url:        url,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		limiter:    limiter,
	}
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors"`
}

// post sends one GraphQL request, retrying throttled and server-side failures.
func (c *Client) post(ctx context.Context, payload []byte) ([]byte, error) {
	var lastErr error
	for attempt := range c.maxRetries + 1 {
		if attempt > 0 {
			delay := c.baseDelay * time.Duration(1<<uint(attempt-1))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("waiting for rate limiter: %w", err)
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("executing request: %w", ctx.Err())
			}
			lastErr = fmt.Errorf("executing request (attempt %d/%d): %w", attempt+1, c.maxRetries+1, err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("reading response: %w", ctx.Err())
			}
			lastErr = fmt.Errorf("reading response (attempt %d/%d): %w", attempt+1, c.maxRetries+1, err)
			continue
		}

		if resp.StatusCode == http.StatusOK {
			return body, nil
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			lastErr = fmt.Errorf("HTTP %d from %s (attempt %d/%d)", resp.StatusCode, c.url, attempt+1, c.maxRetries+1)
			continue
		}

		return nil, fmt.Errorf("HTTP %d from %s: %s", resp.StatusCode, c.url, string(body))
	}

	return nil, lastErr
}

// query executes a GraphQL query and unmarshals its data field into dest.
// Every failure wraps domain.ErrSubgraphUnreachable.
func (c *Client) query(ctx context.Context, query string, vars map[string]any, dest any) error {
	payload, err := json.Marshal(graphQLRequest{Query: query, Variables: vars})
	if err != nil {
		return fmt.Errorf("encoding query: %w", err)
	}

	body, err := c.post(ctx, payload)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrSubgraphUnreachable, err)
	}

	var resp graphQLResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("%w: parsing response: %w", domain.ErrSubgraphUnreachable, err)
	}
	if len(resp.Errors) > 0 {
		msgs := make([]string, len(resp.Errors))
		for i, e := range resp.Errors {
			msgs[i] = e.Message
		}
		return fmt.Errorf("%w: graphql: %s", domain.ErrSubgraphUnreachable, strings.Join(msgs, "; "))
	}
	if err := json.Unmarshal(resp.Data, dest); err != nil {
		return fmt.Errorf("%w: parsing data: %w", domain.ErrSubgraphUnreachable, err)
	}
	return nil
}
