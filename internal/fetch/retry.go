package fetch

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"lifesync/internal/syncerr"
)

type Class int

const (
	ClassSuccess Class = iota
	ClassRateLimited
	ClassServerError
	ClassFatal
)

func ClassifyStatus(status int) Class {
	switch {
	case status < 400:
		return ClassSuccess
	case status == http.StatusTooManyRequests:
		return ClassRateLimited
	case status >= 500 && status < 600:
		return ClassServerError
	default:
		return ClassFatal
	}
}

// Policy drives WithRetry. Zero values fall back to DefaultPolicy.
type Policy struct {
	DefaultRetryAfter time.Duration
	// MaxRetryAfter caps a single Retry-After wait. Zero means no cap.
	MaxRetryAfter time.Duration
	// MaxRateLimitRetries bounds consecutive 429 retries. Zero means unlimited.
	MaxRateLimitRetries int
	ServerErrorDelay    time.Duration
	ServerErrorRetries  int

	Classify func(status int) Class
	Sleep    func(ctx context.Context, d time.Duration) error
	OnRetry  func(status int, attempt int, wait time.Duration)
}

func DefaultPolicy() Policy {
	return Policy{
		DefaultRetryAfter:   time.Second,
		MaxRetryAfter:       5 * time.Minute,
		MaxRateLimitRetries: 30,
		ServerErrorDelay:    time.Second,
		ServerErrorRetries:  1,
		Classify:            ClassifyStatus,
		Sleep:               Sleep,
	}
}

func (p Policy) normalized() Policy {
	if p.DefaultRetryAfter <= 0 {
		p.DefaultRetryAfter = time.Second
	}
	if p.ServerErrorDelay <= 0 {
		p.ServerErrorDelay = time.Second
	}
	if p.ServerErrorRetries <= 0 {
		p.ServerErrorRetries = 1
	}
	if p.Classify == nil {
		p.Classify = ClassifyStatus
	}
	if p.Sleep == nil {
		p.Sleep = Sleep
	}
	return p
}

type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.Status, e.Body)
}

// WithRetry runs fn until it returns a successful response or the policy gives up.
// 429 waits for Retry-After, 5xx is retried ServerErrorRetries times, other
// statuses >= 400 fail immediately with *APIError.
func WithRetry(ctx context.Context, p Policy, fn func(ctx context.Context) (*Response, error)) (*Response, error) {
	p = p.normalized()
	rateLimited := 0
	serverErrors := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		resp, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		switch p.Classify(resp.Status) {
		case ClassSuccess:
			return resp, nil
		case ClassRateLimited:
			serverErrors = 0
			rateLimited++
			if p.MaxRateLimitRetries > 0 && rateLimited > p.MaxRateLimitRetries {
				return resp, syncerr.New(syncerr.ErrRateLimit, "", fmt.Sprintf("gave up after %d retries", p.MaxRateLimitRetries), apiError(resp))
			}
			wait := RetryAfter(resp.Header, p.DefaultRetryAfter)
			if p.MaxRetryAfter > 0 && wait > p.MaxRetryAfter {
				wait = p.MaxRetryAfter
			}
			if p.OnRetry != nil {
				p.OnRetry(resp.Status, rateLimited, wait)
			}
			if err := p.Sleep(ctx, wait); err != nil {
				return nil, err
			}
		case ClassServerError:
			serverErrors++
			if serverErrors > p.ServerErrorRetries {
				return resp, syncerr.New(syncerr.ErrTransientServer, "", "retry exhausted", apiError(resp))
			}
			if p.OnRetry != nil {
				p.OnRetry(resp.Status, serverErrors, p.ServerErrorDelay)
			}
			if err := p.Sleep(ctx, p.ServerErrorDelay); err != nil {
				return nil, err
			}
		default:
			return resp, apiError(resp)
		}
	}
}

// RetryAfter reads the Retry-After header as whole or fractional seconds.
func RetryAfter(h http.Header, fallback time.Duration) time.Duration {
	if h == nil {
		return fallback
	}
	raw := strings.TrimSpace(h.Get("Retry-After"))
	if raw == "" {
		return fallback
	}
	secs, err := strconv.ParseFloat(raw, 64)
	if err != nil || secs < 0 || math.IsNaN(secs) || math.IsInf(secs, 0) {
		return fallback
	}
	return time.Duration(secs * float64(time.Second))
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func apiError(resp *Response) *APIError {
	return &APIError{Status: resp.Status, Body: strings.TrimSpace(string(resp.Body))}
}
