package hub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// AuthScheme is the Authorization header prefix a hub API expects.
type AuthScheme string

const (
	SchemeBearer AuthScheme = "Bearer"
	SchemeToken  AuthScheme = "Token"
)

const (
	userAgent = "ahctl"
	// maxPages limits pagination so a misbehaving next link cannot loop forever.
	maxPages = 50
)

// Options tune the HTTP client shared by every backend.
type Options struct {
	Timeout time.Duration
	// RateLimit is requests per second; <= 0 disables limiting.
	RateLimit float64
	// ReadRetries is how many times a GET is repeated on transport errors,
	// 429 and 5xx. Triggers are never repeated here.
	ReadRetries    int
	ReadRetryDelay time.Duration
	Transport      http.RoundTripper
}

func DefaultOptions() Options {
	return Options{
		Timeout:        30 * time.Second,
		RateLimit:      10,
		ReadRetries:    3,
		ReadRetryDelay: time.Second,
	}
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Body       []byte
}

// StatusError is returned for unexpected HTTP status codes.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// Client talks JSON to one hub, adding auth, rate limiting and read retries.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	opts    Options
}

func NewClient(baseURL, token string, scheme AuthScheme, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.ReadRetries < 0 {
		opts.ReadRetries = 0
	}
	base := opts.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: string(scheme)})
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http: &http.Client{
			Timeout:   opts.Timeout,
			Transport: &oauth2.Transport{Source: src, Base: base},
		},
		limiter: rate.NewLimiter(limit, 1),
		opts:    opts,
	}
}

// url resolves hub-relative paths; absolute URLs (next links) pass through.
func (c *Client) url(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return c.baseURL + path
}

// Do sends one request and returns the response whatever its status. GETs
// are retried with backoff on transport errors and retryable statuses.
func (c *Client) Do(ctx context.Context, method, path string, body any) (*Response, error) {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, fmt.Errorf("encode body: %w", err)
		}
	}
	if method != http.MethodGet {
		return c.send(ctx, method, path, payload)
	}

	var resp *Response
	attempts := c.opts.ReadRetries + 1
	err := retry.Do(
		func() error {
			r, err := c.send(ctx, method, path, nil)
			if err != nil {
				return err
			}
			if retryableStatus(r.StatusCode) {
				return &StatusError{Method: method, URL: c.url(path), StatusCode: r.StatusCode, Body: string(r.Body)}
			}
			resp = r
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(attempts)),
		retry.Delay(c.opts.ReadRetryDelay),
		retry.MaxDelay(30*time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			if int(n)+1 >= attempts {
				return
			}
			log.Warn().
				Err(err).
				Int("attempt", int(n)+1).
				Int("max_retries", c.opts.ReadRetries).
				Str("url", c.url(path)).
				Msg("HTTP request failed, retrying")
		}),
	)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte) (*Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.url(path), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	log.Debug().Str("method", method).Str("url", req.URL.String()).Int("status", resp.StatusCode).Msg("HTTP request")
	return &Response{StatusCode: resp.StatusCode, Body: data}, nil
}

// getJSON fetches path and decodes a 2xx body into out.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	resp, err := c.Do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Method: http.MethodGet, URL: c.url(path), StatusCode: resp.StatusCode, Body: string(resp.Body)}
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

type page[T any] struct {
	Count   int    `json:"count"`
	Next    string `json:"next"`
	Results []T    `json:"results"`
}

// listAll follows next links and concatenates every page's results.
func listAll[T any](ctx context.Context, c *Client, path string) ([]T, error) {
	var out []T
	for n := 0; path != ""; n++ {
		if n == maxPages {
			log.Warn().Int("pages", n).Msg("Pagination limit reached, results truncated")
			break
		}
		var p page[T]
		if err := c.getJSON(ctx, path, &p); err != nil {
			return nil, err
		}
		out = append(out, p.Results...)
		path = p.Next
	}
	return out, nil
}

// idString renders a JSON id that may be a number or a string.
func idString(v any) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return id
	case float64:
		return fmt.Sprintf("%.0f", id)
	case json.Number:
		return id.String()
	}
	return fmt.Sprint(v)
}
