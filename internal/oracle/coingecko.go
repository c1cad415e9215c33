package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/time/rate"

	"github.com/mtlprog/vaultstat/internal/domain"
	"github.com/mtlprog/vaultstat/internal/fixedpoint"
)

// CoinGeckoClient fetches token USD prices by contract address from the CoinGecko API.
type CoinGeckoClient struct {
	baseURL    string
	platform   string
	httpClient *http.Client
	delay      time.Duration
	maxRetries int
	limiter    *rate.Limiter
}

// NewCoinGeckoClient creates a new CoinGecko API client. limiter may be nil.
func NewCoinGeckoClient(baseURL, platform string, delay time.Duration, maxRetries int, limiter *rate.Limiter) *CoinGeckoClient {
	return &CoinGeckoClient{
		baseURL:    baseURL,
		platform:   platform,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		delay:      delay,
		maxRetries: maxRetries,
		limiter:    limiter,
	}
}

// PriceUsd returns the USD price of token truncated to USDC scale.
func (c *CoinGeckoClient) PriceUsd(ctx context.Context, token common.Address) (fixedpoint.Amount, error) {
	prices, err := c.PricesUsd(ctx, []common.Address{token})
	if err != nil {
		return fixedpoint.Amount{}, err
	}
	price, ok := prices[token]
	if !ok {
		return fixedpoint.Amount{}, fmt.Errorf("%w: token %s: not listed on CoinGecko", domain.ErrPriceUnavailable, token.Hex())
	}
	return price, nil
}

// PricesUsd fetches several token prices in one request. Tokens without a quote are absent from the result.
func (c *CoinGeckoClient) PricesUsd(ctx context.Context, tokens []common.Address) (map[common.Address]fixedpoint.Amount, error) {
	addrs := make([]string, 0, len(tokens))
	for _, t := range tokens {
		addrs = append(addrs, strings.ToLower(t.Hex()))
	}

	url := fmt.Sprintf("%s/simple/token_price/%s?contract_addresses=%s&vs_currencies=usd",
		c.baseURL, c.platform, strings.Join(addrs, ","))

	body, err := c.fetchWithRetry(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrPriceUnavailable, err)
	}

	// Parse: {"0xabc...":{"usd":1.0012},...}; numbers stay textual to avoid float rounding.
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var raw map[string]map[string]json.Number
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: parsing CoinGecko response: %w", domain.ErrPriceUnavailable, err)
	}

	result := make(map[common.Address]fixedpoint.Amount, len(raw))
	for addr, quotes := range raw {
		usd, ok := quotes["usd"]
		if !ok || !common.IsHexAddress(addr) {
			continue
		}
		price, err := fixedpoint.FromDecimalString(usd.String(), fixedpoint.USDDecimals)
		if err != nil || price.Sign() <= 0 {
			continue
		}
		result[common.HexToAddress(addr)] = price
	}

	return result, nil
}

func (c *CoinGeckoClient) fetchWithRetry(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	for attempt := range c.maxRetries + 1 {
		if attempt > 0 {
			baseDelay := c.delay
			if baseDelay == 0 {
				baseDelay = 10 * time.Second
			}
			delay := baseDelay * time.Duration(1<<uint(attempt-1))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("waiting for CoinGecko rate limiter: %w", err)
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("creating CoinGecko request: %w", err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("CoinGecko request failed: %w", ctx.Err())
			}
			lastErr = fmt.Errorf("CoinGecko request failed (attempt %d/%d): %w", attempt+1, c.maxRetries+1, err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("reading CoinGecko response: %w", ctx.Err())
			}
			lastErr = fmt.Errorf("reading CoinGecko response (attempt %d/%d): %w", attempt+1, c.maxRetries+1, err)
			continue
		}

		if resp.StatusCode == http.StatusOK {
			return body, nil
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			lastErr = fmt.Errorf("CoinGecko HTTP %d (attempt %d/%d)", resp.StatusCode, attempt+1, c.maxRetries+1)
			continue
		}

		return nil, fmt.Errorf("CoinGecko HTTP %d: %s", resp.StatusCode, string(body))
	}

	return nil, lastErr
}
