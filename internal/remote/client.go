// Package remote talks to the highlights export API: cursor pagination,
// 429 back-off, token probing and the two-step delta fetch.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/starford/marginalia/internal/apperr"
	"github.com/starford/marginalia/internal/models"
)

const (
	defaultBaseURL    = "https://readwise.io/api/v2"
	defaultPageSize   = 1000
	defaultRetryAfter = time.Second
	// maxIDsPerRequest bounds the ids filter so request URLs stay short.
	maxIDsPerRequest = 100
	errorBodyBytes   = 512
	userAgent        = "marginalia/1.0"
)

// Observer receives fetch events.
type Observer interface {
	ObservePage(kind string)
	ObserveRateLimit(kind string)
	ObserveFetchError(kind string)
}

type nopObserver struct{}

func (nopObserver) ObservePage(string)       {}
func (nopObserver) ObserveRateLimit(string)  {}
func (nopObserver) ObserveFetchError(string) {}

// Options configures a Client.
type Options struct {
	BaseURL           string
	Token             string
	PageSize          int
	RequestsPerMinute int
	DefaultRetryAfter time.Duration
}

// Query selects one page of records.
type Query struct {
	Kind         string
	UpdatedAfter *time.Time
	IDs          []int64
	Cursor       string
}

// Page is one decoded API response.
type Page struct {
	Count      int                     `json:"count"`
	NextCursor *string                 `json:"nextPageCursor"`
	Results    []models.DocumentRecord `json:"results"`
}

// Client fetches document records from the remote API.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	endpoint   string // overridable in tests
	token      string
	pageSize   int
	retryAfter time.Duration
	limiter    *rate.Limiter
	observer   Observer
	sleep      func(ctx context.Context, d time.Duration) error

	tokenValid atomic.Bool
}

// NewClient creates a Client. A zero RequestsPerMinute disables pacing.
func NewClient(httpClient *http.Client, logger *slog.Logger, opts Options) *Client {
	c := &Client{
		httpClient: httpClient,
		logger:     logger,
		endpoint:   strings.TrimRight(opts.BaseURL, "/"),
		token:      opts.Token,
		pageSize:   opts.PageSize,
		retryAfter: opts.DefaultRetryAfter,
		observer:   nopObserver{},
		sleep:      sleepCtx,
	}
	if c.endpoint == "" {
		c.endpoint = defaultBaseURL
	}
	if c.pageSize <= 0 {
		c.pageSize = defaultPageSize
	}
	if c.retryAfter <= 0 {
		c.retryAfter = defaultRetryAfter
	}
	if opts.RequestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RequestsPerMinute)), 1)
	}
	return c
}

// SetObserver installs a fetch event observer.
func (c *Client) SetObserver(o Observer) {
	if o != nil {
		c.observer = o
	}
}

// TokenValid reports the result of the last ValidateToken call.
func (c *Client) TokenValid() bool {
	return c.tokenValid.Load()
}

// ValidateToken probes the auth endpoint and caches the result.
// 204 means valid, 401/403 invalid; any other status is an error.
func (c *Client) ValidateToken(ctx context.Context) (bool, error) {
	resp, err := c.do(ctx, c.endpoint+"/auth/")
	if err != nil {
		c.tokenValid.Store(false)
		return false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent, http.StatusOK:
		c.tokenValid.Store(true)
		return true, nil
	case http.StatusUnauthorized, http.StatusForbidden:
		c.tokenValid.Store(false)
		return false, nil
	default:
		c.tokenValid.Store(false)
		return false, &apperr.FetchError{Kind: "auth", StatusCode: resp.StatusCode, Body: readSnippet(resp.Body)}
	}
}

// FetchPage fetches one page. A 429 answer is retried after the advertised
// delay with the same query; any other non-success status is a FetchError.
func (c *Client) FetchPage(ctx context.Context, q Query) (*Page, error) {
	reqURL, err := c.pageURL(q)
	if err != nil {
		return nil, err
	}
	for {
		resp, err := c.do(ctx, reqURL)
		if err != nil {
			c.observer.ObserveFetchError(q.Kind)
			c.logger.Error("remote request failed", slog.String("kind", q.Kind), slog.String("error", err.Error()))
			return nil, fmt.Errorf("fetch %s: %w", q.Kind, err)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			wait := c.parseRetryAfter(resp.Header.Get("Retry-After"))
			drain(resp.Body)
			c.observer.ObserveRateLimit(q.Kind)
			c.logger.Info("rate limited, retrying",
				slog.String("kind", q.Kind),
				slog.String("cursor", q.Cursor),
				slog.Duration("retry_after", wait),
			)
			if err := c.sleep(ctx, wait); err != nil {
				return nil, err
			}
			continue
		}

		if resp.StatusCode != http.StatusOK {
			body := readSnippet(resp.Body)
			resp.Body.Close()
			c.observer.ObserveFetchError(q.Kind)
			c.logger.Error("remote returned error status",
				slog.String("kind", q.Kind),
				slog.Int("http_status", resp.StatusCode),
			)
			return nil, &apperr.FetchError{Kind: q.Kind, StatusCode: resp.StatusCode, Body: body}
		}

		var page Page
		err = json.NewDecoder(resp.Body).Decode(&page)
		resp.Body.Close()
		if err != nil {
			c.observer.ObserveFetchError(q.Kind)
			return nil, fmt.Errorf("fetch %s: decode page: %w", q.Kind, err)
		}
		c.observer.ObservePage(q.Kind)
		return &page, nil
	}
}

// FetchAll follows cursors until the server stops returning one and returns
// every record in response order.
func (c *Client) FetchAll(ctx context.Context, kind string, updatedAfter *time.Time, ids []int64) ([]models.DocumentRecord, error) {
	if len(ids) > maxIDsPerRequest {
		var out []models.DocumentRecord
		for start := 0; start < len(ids); start += maxIDsPerRequest {
			end := min(start+maxIDsPerRequest, len(ids))
			recs, err := c.FetchAll(ctx, kind, updatedAfter, ids[start:end])
			if err != nil {
				return nil, err
			}
			out = append(out, recs...)
		}
		return out, nil
	}

	var out []models.DocumentRecord
	q := Query{Kind: kind, UpdatedAfter: updatedAfter, IDs: ids}
	for {
		page, err := c.FetchPage(ctx, q)
		if err != nil {
			return nil, err
		}
		out = append(out, page.Results...)
		c.logger.Debug("fetched page",
			slog.String("kind", kind),
			slog.Int("records", len(page.Results)),
			slog.Int("total", len(out)),
		)
		if page.NextCursor == nil || *page.NextCursor == "" {
			return out, nil
		}
		q.Cursor = *page.NextCursor
	}
}

// FetchDelta returns the documents changed since the checkpoint, each with its
// complete current highlight set. Changed documents are re-fetched by id with
// no time bound.
func (c *Client) FetchDelta(ctx context.Context, kind string, since time.Time) ([]models.DocumentRecord, error) {
	changed, err := c.FetchAll(ctx, kind, &since, nil)
	if err != nil {
		return nil, err
	}
	if len(changed) == 0 {
		return changed, nil
	}
	ids := make([]int64, 0, len(changed))
	seen := make(map[int64]struct{}, len(changed))
	for _, d := range changed {
		if _, ok := seen[d.ID]; ok {
			continue
		}
		seen[d.ID] = struct{}{}
		ids = append(ids, d.ID)
	}
	c.logger.Info("delta fetch", slog.String("kind", kind), slog.Int("changed", len(ids)))
	return c.FetchAll(ctx, kind, nil, ids)
}

func (c *Client) pageURL(q Query) (string, error) {
	u, err := url.Parse(c.endpoint + "/" + q.Kind + "/")
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	v := u.Query()
	v.Set("page_size", strconv.Itoa(c.pageSize))
	if q.UpdatedAfter != nil {
		v.Set("updatedAfter", q.UpdatedAfter.UTC().Format(time.RFC3339))
	}
	if len(q.IDs) > 0 {
		parts := make([]string, len(q.IDs))
		for i, id := range q.IDs {
			parts[i] = strconv.FormatInt(id, 10)
		}
		v.Set("ids", strings.Join(parts, ","))
	}
	if q.Cursor != "" {
		v.Set("pageCursor", q.Cursor)
	}
	u.RawQuery = v.Encode()
	return u.String(), nil
}

func (c *Client) do(ctx context.Context, reqURL string) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+c.token)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	return c.httpClient.Do(req)
}

// parseRetryAfter accepts delay-seconds or an HTTP date.
func (c *Client) parseRetryAfter(h string) time.Duration {
	h = strings.TrimSpace(h)
	if secs, err := strconv.Atoi(h); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
		return 0
	}
	return c.retryAfter
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func readSnippet(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, errorBodyBytes))
	return strings.TrimSpace(string(b))
}

func drain(rc io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(rc, errorBodyBytes))
	rc.Close()
}
