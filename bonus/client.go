package bonus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/osmi-labs/cardlink/core"
)

const (
	defaultRequestTimeout = 10 * time.Second
	maxResponseBytes      = 1 << 20 // 1 MiB
)

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Config struct {
	BaseURL        string
	APIKey         string
	HTTPClient     HTTPDoer
	RequestTimeout time.Duration
}

// Client disburses loyalty bonuses through the bonus API, authenticating
// with the X-API-Key header.
type Client struct {
	baseURL        string
	apiKey         string
	httpClient     HTTPDoer
	requestTimeout time.Duration
}

func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		return nil, fmt.Errorf("bonus: base url is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("bonus: api key is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	requestTimeout := cfg.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeout
	}
	return &Client{
		baseURL:        baseURL,
		apiKey:         strings.TrimSpace(cfg.APIKey),
		httpClient:     httpClient,
		requestTimeout: requestTimeout,
	}, nil
}

func (c *Client) Disburse(ctx context.Context, number string, sum float64, comment string) error {
	if c == nil || c.httpClient == nil {
		return fmt.Errorf("bonus: client is not configured")
	}
	number = strings.TrimSpace(number)
	if number == "" {
		return fmt.Errorf("bonus: number is required")
	}
	if sum <= 0 {
		return fmt.Errorf("bonus: sum must be positive")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	requestCtx := ctx
	cancel := func() {}
	if c.requestTimeout > 0 {
		requestCtx, cancel = context.WithTimeout(ctx, c.requestTimeout)
	}
	defer cancel()

	body, err := json.Marshal(map[string]any{
		"number":  number,
		"sum":     sum,
		"comment": strings.TrimSpace(comment),
	})
	if err != nil {
		return fmt.Errorf("bonus: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(requestCtx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if _, err := io.Copy(io.Discard, io.LimitReader(res.Body, maxResponseBytes)); err != nil {
		return fmt.Errorf("bonus: drain response: %w", err)
	}
	if res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("bonus: disbursement returned status %d", res.StatusCode)
	}
	return nil
}

var _ core.BonusClient = (*Client)(nil)
