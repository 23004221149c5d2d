package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"lifesync/internal/syncerr"
)

const maxResponseBytes = 32 << 20

// Client is a provider REST client. Every call goes through WithRetry, the
// optional rate limiter and the optional circuit breaker.
type Client struct {
	Service string
	BaseURL string
	HTTP    *http.Client
	Auth    Authorizer
	Policy  Policy
	Limiter *rate.Limiter
	Breaker *gobreaker.CircuitBreaker[*Response]
	Logger  *zap.Logger
	Header  http.Header

	calls atomic.Int64
}

type Request struct {
	Method string
	// Path is joined to BaseURL unless it is already absolute.
	Path   string
	Query  url.Values
	Header http.Header
	JSON   any
	Form   url.Values
}

func NewClient(service, baseURL string, httpClient *http.Client) *Client {
	return &Client{
		Service: service,
		BaseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		HTTP:    httpClient,
		Policy:  DefaultPolicy(),
	}
}

// Calls returns the number of HTTP attempts made so far.
func (c *Client) Calls() int64 {
	if c == nil {
		return 0
	}
	return c.calls.Load()
}

func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: path, Query: query})
}

func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out any) error {
	return c.DoJSON(ctx, Request{Method: http.MethodGet, Path: path, Query: query}, out)
}

func (c *Client) DoJSON(ctx context.Context, r Request, out any) error {
	resp, err := c.Do(ctx, r)
	if err != nil {
		return err
	}
	if out == nil || len(resp.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("%s: decode %s: %w", c.Service, r.Path, err)
	}
	return nil
}

// Do sends the request. A 401 is retried once after a forced credential
// refresh when the authorizer supports it.
func (c *Client) Do(ctx context.Context, r Request) (*Response, error) {
	if c == nil {
		return nil, errors.New("fetch client is nil")
	}
	resp, err := c.execute(ctx, r)
	var apiErr *APIError
	if err == nil || !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		return resp, err
	}
	ref, ok := c.Auth.(Refresher)
	if !ok {
		return resp, err
	}
	if rerr := ref.Refresh(ctx); rerr != nil {
		if errors.Is(rerr, ErrNotRefreshable) {
			return resp, syncerr.Auth(c.Service, "request unauthorized", err)
		}
		return nil, rerr
	}
	if c.Logger != nil {
		c.Logger.Info("credentials refreshed after 401", zap.String("service", c.Service), zap.String("path", r.Path))
	}
	resp, err = c.execute(ctx, r)
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
		return resp, syncerr.Auth(c.Service, "request unauthorized after refresh", err)
	}
	return resp, err
}

func (c *Client) execute(ctx context.Context, r Request) (*Response, error) {
	policy := c.Policy
	if policy.OnRetry == nil && c.Logger != nil {
		policy.OnRetry = func(status, attempt int, wait time.Duration) {
			c.Logger.Warn("provider retry",
				zap.String("service", c.Service),
				zap.String("path", r.Path),
				zap.Int("status", status),
				zap.Int("attempt", attempt),
				zap.Duration("wait", wait),
			)
		}
	}
	call := func() (*Response, error) {
		resp, err := WithRetry(ctx, policy, func(ctx context.Context) (*Response, error) {
			return c.attempt(ctx, r)
		})
		var se *syncerr.Error
		if errors.As(err, &se) && se.Service == "" {
			se.Service = c.Service
		}
		return resp, err
	}
	if c.Breaker == nil {
		return call()
	}
	resp, err := c.Breaker.Execute(call)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, syncerr.New(syncerr.ErrTransientServer, c.Service, "circuit breaker "+c.Breaker.State().String(), err)
	}
	return resp, err
}

func (c *Client) attempt(ctx context.Context, r Request) (*Response, error) {
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	req, err := c.newRequest(ctx, r)
	if err != nil {
		return nil, err
	}
	if c.Auth != nil {
		if err := c.Auth.Authorize(ctx, req); err != nil {
			return nil, err
		}
	}
	c.calls.Add(1)
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return &Response{Status: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

func (c *Client) newRequest(ctx context.Context, r Request) (*http.Request, error) {
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}
	fullURL := r.Path
	if !strings.HasPrefix(fullURL, "http://") && !strings.HasPrefix(fullURL, "https://") {
		fullURL = c.BaseURL + "/" + strings.TrimLeft(r.Path, "/")
	}
	if len(r.Query) > 0 {
		fullURL = fullURL + "?" + r.Query.Encode()
	}

	var body io.Reader
	contentType := ""
	switch {
	case r.JSON != nil:
		b, err := json.Marshal(r.JSON)
		if err != nil {
			return nil, fmt.Errorf("failed to encode body: %w", err)
		}
		body = bytes.NewReader(b)
		contentType = "application/json"
	case r.Form != nil:
		body = strings.NewReader(r.Form.Encode())
		contentType = "application/x-www-form-urlencoded"
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, vs := range c.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	for k, vs := range r.Header {
		req.Header.Del(k)
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return req, nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return &http.Client{Timeout: 30 * time.Second}
}
