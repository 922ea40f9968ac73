// Package client is a typed HTTP client for the EVGraph API.
package client

import (
	"bytes"
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

	"github.com/rewired-gh/evgraph/internal/chart"
	"github.com/rewired-gh/evgraph/internal/models"
	"github.com/rewired-gh/evgraph/internal/viewport"
)

// ClientConfig tunes retries of failed requests.
type ClientConfig struct {
	MaxRetries     int
	RetryDelayBase time.Duration
}

// Client provides access to the EVGraph API
type Client struct {
	baseURL        string
	httpClient     *http.Client
	maxRetries     int
	retryDelayBase time.Duration
}

// APIError is a non-2xx answer from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// New creates a client for the API rooted at baseURL.
func New(baseURL string, timeout time.Duration, cfg ClientConfig) *Client {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelayBase <= 0 {
		cfg.RetryDelayBase = time.Second
	}
	return &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		httpClient:     &http.Client{Timeout: timeout},
		maxRetries:     cfg.MaxRetries,
		retryDelayBase: cfg.RetryDelayBase,
	}
}

// Health checks the server and its storage.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil, nil)
}

// Sessions lists the most recent sessions. limit <= 0 uses the server default.
func (c *Client) Sessions(ctx context.Context, limit int, includeStats bool) ([]models.SessionSummary, error) {
	q := url.Values{}
	setLimit(q, limit)
	q.Set("include_stats", strconv.FormatBool(includeStats))

	var out []models.SessionSummary
	if err := c.do(ctx, http.MethodGet, "/api/sessions", q, nil, &out); err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return out, nil
}

func (c *Client) Session(ctx context.Context, id int64) (*models.SessionSummary, error) {
	var out models.SessionSummary
	if err := c.do(ctx, http.MethodGet, "/api/sessions/"+strconv.FormatInt(id, 10), nil, nil, &out); err != nil {
		return nil, fmt.Errorf("failed to fetch session %d: %w", id, err)
	}
	return &out, nil
}

func (c *Client) SessionBets(ctx context.Context, id int64, limit int) ([]models.Bet, error) {
	q := url.Values{}
	setLimit(q, limit)

	var out []models.Bet
	path := "/api/sessions/" + strconv.FormatInt(id, 10) + "/bets"
	if err := c.do(ctx, http.MethodGet, path, q, nil, &out); err != nil {
		return nil, fmt.Errorf("failed to fetch bets of session %d: %w", id, err)
	}
	return out, nil
}

func (c *Client) Bet(ctx context.Context, betID string) (*models.Bet, error) {
	var out models.Bet
	if err := c.do(ctx, http.MethodGet, "/api/bets", url.Values{"bet_id": {betID}}, nil, &out); err != nil {
		return nil, fmt.Errorf("failed to fetch bet %s: %w", betID, err)
	}
	return &out, nil
}

func (c *Client) EVRecords(ctx context.Context, betID string) ([]models.EVRecord, error) {
	var out []models.EVRecord
	if err := c.do(ctx, http.MethodGet, "/api/bets/ev", url.Values{"bet_id": {betID}}, nil, &out); err != nil {
		return nil, fmt.Errorf("failed to fetch EV records of bet %s: %w", betID, err)
	}
	return out, nil
}

// Chart fetches the chart of betID. A non-zero sessionID adds session overlays.
func (c *Client) Chart(ctx context.Context, betID string, sessionID int64) (*chart.Chart, error) {
	q := url.Values{"bet_id": {betID}}
	if sessionID != 0 {
		q.Set("session_id", strconv.FormatInt(sessionID, 10))
	}
	var out chart.Chart
	if err := c.do(ctx, http.MethodGet, "/api/bets/chart", q, nil, &out); err != nil {
		return nil, fmt.Errorf("failed to fetch chart of bet %s: %w", betID, err)
	}
	return &out, nil
}

// ViewportResult is the answer of ApplyViewport. Viewport is nil when Empty.
type ViewportResult struct {
	Viewport *viewport.Viewport `json:"viewport"`
	Empty    bool               `json:"empty"`
}

// ApplyViewport applies one button or wheel gesture to current over n
// samples. A nil current starts from the full range.
func (c *Client) ApplyViewport(ctx context.Context, n int, current *viewport.Viewport, ev viewport.Event) (*ViewportResult, error) {
	body, err := json.Marshal(struct {
		N        int                `json:"n"`
		Viewport *viewport.Viewport `json:"viewport,omitempty"`
		Event    viewport.Event     `json:"event"`
	}{n, current, ev})
	if err != nil {
		return nil, fmt.Errorf("failed to encode viewport request: %w", err)
	}
	var out ViewportResult
	if err := c.do(ctx, http.MethodPost, "/api/viewport", nil, body, &out); err != nil {
		return nil, fmt.Errorf("failed to apply %s: %w", ev.Kind, err)
	}
	return &out, nil
}

func setLimit(q url.Values, limit int) {
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
}

// do performs the request with retry on transport errors and 5xx answers,
// and decodes a 2xx body into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body []byte, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryDelayBase * time.Duration(i)):
			}
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, u, reader)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			continue
		}

		if resp.StatusCode >= 500 {
			lastErr = decodeError(resp)
			continue
		}
		if resp.StatusCode >= 400 {
			return decodeError(resp)
		}

		return decodeBody(resp, out)
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func decodeBody(resp *http.Response, out any) error {
	defer resp.Body.Close()
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	defer resp.Body.Close()
	apiErr := &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&payload); err == nil && payload.Error != "" {
		apiErr.Message = payload.Error
	}
	return apiErr
}
