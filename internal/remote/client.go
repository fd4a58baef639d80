// Package remote is a client for the remote ledger's JSON:API endpoints.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultBaseURL is the production ledger API root.
const DefaultBaseURL = "https://api.up.com.au/api/v1"

// DefaultPageSize is the transaction page size requested when none is configured.
const DefaultPageSize = 100

var (
	// ErrUnauthorized means the ledger rejected the credential (HTTP 401).
	ErrUnauthorized = errors.New("remote: unauthorized")
	// ErrRateLimited means the ledger is throttling requests (HTTP 429).
	ErrRateLimited = errors.New("remote: rate limited")
)

// APIError is any other non-2xx response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("remote: http %d: %s", e.StatusCode, e.Body)
}

// Client talks to the ledger API. The credential is supplied per call.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a client. timeout bounds each request; zero keeps the
// http.Client default of no timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{baseURL: baseURL, http: &http.Client{Timeout: timeout}}
}

// Accounts fetches every account in one request.
func (c *Client) Accounts(ctx context.Context, token string) ([]Account, error) {
	var body accountsResponse
	if err := c.get(ctx, token, c.baseURL+"/accounts?page%5Bsize%5D=100", &body); err != nil {
		return nil, fmt.Errorf("fetch accounts: %w", err)
	}
	out := make([]Account, 0, len(body.Data))
	for _, r := range body.Data {
		out = append(out, r.toAccount())
	}
	return out, nil
}

// TransactionsURL builds the first page URL for one status stream. A nil
// since requests the full history.
func (c *Client) TransactionsURL(since *time.Time, pageSize int, status Status) string {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	q := url.Values{}
	q.Set("page[size]", strconv.Itoa(pageSize))
	if status != "" {
		q.Set("filter[status]", string(status))
	}
	if since != nil && !since.IsZero() {
		q.Set("filter[since]", since.UTC().Format(time.RFC3339))
	}
	return c.baseURL + "/transactions?" + q.Encode()
}

// TransactionsPage fetches one page from a URL produced by TransactionsURL
// or a previous page's Next link.
func (c *Client) TransactionsPage(ctx context.Context, token, pageURL string) (TransactionPage, error) {
	var body transactionsResponse
	if err := c.get(ctx, token, pageURL, &body); err != nil {
		return TransactionPage{}, fmt.Errorf("fetch transactions page: %w", err)
	}
	page := TransactionPage{Data: make([]Transaction, 0, len(body.Data))}
	for _, r := range body.Data {
		page.Data = append(page.Data, r.toTransaction())
	}
	if body.Links.Next != nil {
		page.Next = *body.Links.Next
	}
	return page, nil
}

// Categories fetches the full category list.
func (c *Client) Categories(ctx context.Context, token string) ([]Category, error) {
	var body categoriesResponse
	if err := c.get(ctx, token, c.baseURL+"/categories", &body); err != nil {
		return nil, fmt.Errorf("fetch categories: %w", err)
	}
	out := make([]Category, 0, len(body.Data))
	for _, r := range body.Data {
		out = append(out, r.toCategory())
	}
	return out, nil
}

// Validate reports whether token is accepted. Only an authorization
// rejection yields false with a nil error; other failures are returned.
func (c *Client) Validate(ctx context.Context, token string) (bool, error) {
	var body accountsResponse
	err := c.get(ctx, token, c.baseURL+"/accounts?page%5Bsize%5D=1", &body)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrUnauthorized):
		return false, nil
	default:
		return false, err
	}
}

func (c *Client) get(ctx context.Context, token, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(token))
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	case resp.StatusCode >= 400:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
