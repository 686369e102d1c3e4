package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/osmi-labs/cardlink/core"
)

const (
	defaultRequestTimeout = 10 * time.Second
	maxResponseBytes      = 1 << 20 // 1 MiB
	defaultPageSize       = 100
)

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Config struct {
	BaseURL        string
	Username       string
	APIKey         string
	HTTPClient     HTTPDoer
	RequestTimeout time.Duration
	PageSize       int
}

// Client talks to the subscriber directory API with HTTP basic auth. The
// upsert endpoint is the configured base URL; listing appends pagination
// query parameters to the same endpoint.
type Client struct {
	baseURL        string
	username       string
	apiKey         string
	httpClient     HTTPDoer
	requestTimeout time.Duration
	pageSize       int
}

func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		return nil, fmt.Errorf("directory: base url is required")
	}
	if strings.TrimSpace(cfg.Username) == "" {
		return nil, fmt.Errorf("directory: username is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("directory: api key is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	requestTimeout := cfg.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeout
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &Client{
		baseURL:        baseURL,
		username:       strings.TrimSpace(cfg.Username),
		apiKey:         strings.TrimSpace(cfg.APIKey),
		httpClient:     httpClient,
		requestTimeout: requestTimeout,
		pageSize:       pageSize,
	}, nil
}

// Upsert posts the payload bytes verbatim and returns the directory's
// subscriber identifier. Replayed payloads must arrive here unmodified, so
// the client never re-encodes the body.
func (c *Client) Upsert(ctx context.Context, payload []byte) (string, error) {
	if c == nil || c.httpClient == nil {
		return "", fmt.Errorf("directory: client is not configured")
	}
	if len(payload) == 0 {
		return "", fmt.Errorf("directory: payload is required")
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

	req, err := http.NewRequestWithContext(requestCtx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.username, c.apiKey)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()
	body, readErr := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes+1))
	if readErr != nil {
		return "", fmt.Errorf("directory: read upsert response: %w", readErr)
	}
	if int64(len(body)) > maxResponseBytes {
		return "", fmt.Errorf("directory: upsert response exceeds %d bytes", maxResponseBytes)
	}
	if res.StatusCode != http.StatusOK && res.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("directory: upsert returned status %d", res.StatusCode)
	}

	var decoded struct {
		Data struct {
			ID json.Number `json:"id"`
		} `json:"data"`
		UUID string `json:"uuid"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", fmt.Errorf("directory: decode upsert response: %w", err)
	}
	if id := strings.TrimSpace(decoded.Data.ID.String()); id != "" && id != "0" {
		return id, nil
	}
	if id := strings.TrimSpace(decoded.UUID); id != "" {
		return id, nil
	}
	return "unknown", nil
}

// ListPage fetches one page of list members and reports whether another
// page follows.
func (c *Client) ListPage(ctx context.Context, listID int, page int) ([]core.DirectoryEntry, bool, error) {
	if c == nil || c.httpClient == nil {
		return nil, false, fmt.Errorf("directory: client is not configured")
	}
	if page < 1 {
		page = 1
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

	endpoint, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, false, fmt.Errorf("directory: parse base url: %w", err)
	}
	query := endpoint.Query()
	query.Set("list_id", strconv.Itoa(listID))
	query.Set("status", "enabled")
	query.Set("page", strconv.Itoa(page))
	query.Set("per_page", strconv.Itoa(c.pageSize))
	endpoint.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(requestCtx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(c.username, c.apiKey)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, false, err
	}
	defer res.Body.Close()
	body, readErr := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes+1))
	if readErr != nil {
		return nil, false, fmt.Errorf("directory: read list response: %w", readErr)
	}
	if int64(len(body)) > maxResponseBytes {
		return nil, false, fmt.Errorf("directory: list response exceeds %d bytes", maxResponseBytes)
	}
	if res.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("directory: list returned status %d", res.StatusCode)
	}

	var decoded struct {
		Data struct {
			Results []subscriberEntry `json:"results"`
			Next    *string           `json:"next"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, false, fmt.Errorf("directory: decode list response: %w", err)
	}

	entries := make([]core.DirectoryEntry, 0, len(decoded.Data.Results))
	for _, result := range decoded.Data.Results {
		entries = append(entries, result.toDomain())
	}
	hasNext := decoded.Data.Next != nil && strings.TrimSpace(*decoded.Data.Next) != ""
	return entries, hasNext, nil
}

// ListAll drives ListPage until the directory reports no further pages.
func (c *Client) ListAll(ctx context.Context, listID int) ([]core.DirectoryEntry, error) {
	var all []core.DirectoryEntry
	for page := 1; ; page++ {
		entries, hasNext, err := c.ListPage(ctx, listID, page)
		if err != nil {
			return nil, err
		}
		all = append(all, entries...)
		if !hasNext {
			return all, nil
		}
	}
}

type subscriberEntry struct {
	UUID    string `json:"uuid"`
	Email   string `json:"email"`
	Status  string `json:"status"`
	Attribs struct {
		Phone string `json:"phone"`
	} `json:"attribs"`
	Lists []struct {
		ID                 int    `json:"id"`
		SubscriptionStatus string `json:"subscription_status"`
	} `json:"lists"`
}

func (e subscriberEntry) toDomain() core.DirectoryEntry {
	entry := core.DirectoryEntry{
		UUID:   strings.TrimSpace(e.UUID),
		Email:  strings.TrimSpace(e.Email),
		Status: strings.TrimSpace(e.Status),
		Phone:  strings.TrimSpace(e.Attribs.Phone),
	}
	for _, list := range e.Lists {
		entry.Lists = append(entry.Lists, core.DirectoryListMembership{
			ID:                 list.ID,
			SubscriptionStatus: strings.TrimSpace(list.SubscriptionStatus),
		})
	}
	return entry
}

var _ core.DirectoryClient = (*Client)(nil)
