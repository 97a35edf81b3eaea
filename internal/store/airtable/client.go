package airtable

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wolfman30/guestpilot/internal/rental"
	"golang.org/x/time/rate"
)

const (
	defaultAPIBase     = "https://api.airtable.com/v0"
	defaultHTTPTimeout = 10 * time.Second

	// Airtable allows five requests per second per base.
	requestsPerSecond = 5
)

// APIError is a non-2xx response from the Airtable REST API.
type APIError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("airtable: API error %d %s: %s", e.StatusCode, e.Type, e.Message)
}

// Unavailable reports throttling and server-side failures.
func (e *APIError) Unavailable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Client is a minimal Airtable REST client for one base.
type Client struct {
	apiKey     string
	baseID     string
	apiBase    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a client for the given base.
func NewClient(apiKey, baseID string) *Client {
	return &Client{
		apiKey:     apiKey,
		baseID:     baseID,
		apiBase:    defaultAPIBase,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		limiter:    rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond),
	}
}

// SetAPIBase overrides the API base URL (useful for testing).
func (c *Client) SetAPIBase(base string) {
	c.apiBase = strings.TrimRight(base, "/")
}

type listResponse struct {
	Records []rental.Record `json:"records"`
	Offset  string          `json:"offset"`
}

type writeRequest struct {
	Fields   map[string]any `json:"fields"`
	Typecast bool           `json:"typecast,omitempty"`
}

type errorEnvelope struct {
	Error json.RawMessage `json:"error"`
}

// List returns every record of table matching formula, following pagination.
func (c *Client) List(ctx context.Context, table, formula string) ([]rental.Record, error) {
	var out []rental.Record
	offset := ""
	for {
		q := url.Values{}
		if formula != "" {
			q.Set("filterByFormula", formula)
		}
		if offset != "" {
			q.Set("offset", offset)
		}
		var page listResponse
		if err := c.do(ctx, http.MethodGet, c.tableURL(table)+"?"+q.Encode(), nil, &page); err != nil {
			return nil, err
		}
		out = append(out, page.Records...)
		if page.Offset == "" {
			return out, nil
		}
		offset = page.Offset
	}
}

// Get fetches one record.
func (c *Client) Get(ctx context.Context, table, id string) (rental.Record, error) {
	var rec rental.Record
	err := c.do(ctx, http.MethodGet, c.tableURL(table)+"/"+url.PathEscape(id), nil, &rec)
	return rec, err
}

// Create inserts one record.
func (c *Client) Create(ctx context.Context, table string, fields map[string]any) (rental.Record, error) {
	var rec rental.Record
	err := c.do(ctx, http.MethodPost, c.tableURL(table), writeRequest{Fields: fields, Typecast: true}, &rec)
	return rec, err
}

// Update patches the given fields of one record.
func (c *Client) Update(ctx context.Context, table, id string, fields map[string]any) (rental.Record, error) {
	var rec rental.Record
	err := c.do(ctx, http.MethodPatch, c.tableURL(table)+"/"+url.PathEscape(id), writeRequest{Fields: fields, Typecast: true}, &rec)
	return rec, err
}

// Delete removes one record.
func (c *Client) Delete(ctx context.Context, table, id string) error {
	return c.do(ctx, http.MethodDelete, c.tableURL(table)+"/"+url.PathEscape(id), nil, nil)
}

func (c *Client) tableURL(table string) string {
	return fmt.Sprintf("%s/%s/%s", c.apiBase, url.PathEscape(c.baseID), url.PathEscape(table))
}

func (c *Client) do(ctx context.Context, method, endpoint string, in, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("airtable: rate limit wait: %w", err)
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("airtable: marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("airtable: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("airtable: %s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("airtable: read response: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return rental.ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp.StatusCode, respBody)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("airtable: unmarshal response: %w", err)
	}
	return nil
}

// decodeAPIError handles both error shapes Airtable returns: a bare string
// or an object with type and message.
func decodeAPIError(status int, body []byte) error {
	apiErr := &APIError{StatusCode: status, Message: strings.TrimSpace(string(body))}
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err != nil || len(env.Error) == 0 {
		return apiErr
	}
	var detail struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(env.Error, &detail); err == nil {
		apiErr.Type = detail.Type
		apiErr.Message = detail.Message
		return apiErr
	}
	var code string
	if err := json.Unmarshal(env.Error, &code); err == nil {
		apiErr.Type = code
		apiErr.Message = code
	}
	return apiErr
}

// quote renders s as an Airtable formula string literal.
func quote(s string) string {
	return "'" + strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s) + "'"
}
