package fetch

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"lifesync/internal/syncerr"
)

type scripted struct {
	responses []*Response
	calls     int
}

// fn replays responses in order and repeats the last one.
func (s *scripted) fn(context.Context) (*Response, error) {
	i := min(s.calls, len(s.responses)-1)
	s.calls++
	return s.responses[i], nil
}

func status(code int, header ...string) *Response {
	h := http.Header{}
	for i := 0; i+1 < len(header); i += 2 {
		h.Set(header[i], header[i+1])
	}
	return &Response{Status: code, Header: h, Body: []byte(http.StatusText(code))}
}

func recordingPolicy(waits *[]time.Duration) Policy {
	p := DefaultPolicy()
	p.Sleep = func(_ context.Context, d time.Duration) error {
		*waits = append(*waits, d)
		return nil
	}
	return p
}

func TestWithRetryRateLimitHonoursRetryAfter(t *testing.T) {
	var waits []time.Duration
	s := &scripted{responses: []*Response{
		status(429, "Retry-After", "2"),
		status(429, "Retry-After", "0.5"),
		status(200),
	}}
	resp, err := WithRetry(context.Background(), recordingPolicy(&waits), s.fn)
	if err != nil || resp.Status != 200 {
		t.Fatalf("status=%v err=%v", resp, err)
	}
	want := []time.Duration{2 * time.Second, 500 * time.Millisecond}
	if len(waits) != len(want) || waits[0] != want[0] || waits[1] != want[1] {
		t.Fatalf("waits=%v want=%v", waits, want)
	}
}

func TestWithRetryRateLimitDefaultsAndCap(t *testing.T) {
	var waits []time.Duration
	p := recordingPolicy(&waits)
	p.MaxRetryAfter = 10 * time.Second
	s := &scripted{responses: []*Response{
		status(429),
		status(429, "Retry-After", "3600"),
		status(200),
	}}
	if _, err := WithRetry(context.Background(), p, s.fn); err != nil {
		t.Fatalf("err=%v", err)
	}
	if waits[0] != time.Second || waits[1] != 10*time.Second {
		t.Fatalf("waits=%v", waits)
	}
}

func TestWithRetryRateLimitCeiling(t *testing.T) {
	var waits []time.Duration
	p := recordingPolicy(&waits)
	p.MaxRateLimitRetries = 3
	s := &scripted{responses: []*Response{status(429)}}
	_, err := WithRetry(context.Background(), p, s.fn)
	if !errors.Is(err, syncerr.ErrRateLimit) {
		t.Fatalf("err=%v want=%v", err, syncerr.ErrRateLimit)
	}
	if len(waits) != 3 {
		t.Fatalf("waits=%d want=3", len(waits))
	}
}

func TestWithRetryServerErrorRetriedOnce(t *testing.T) {
	var waits []time.Duration
	s := &scripted{responses: []*Response{status(503), status(502)}}
	_, err := WithRetry(context.Background(), recordingPolicy(&waits), s.fn)
	if !errors.Is(err, syncerr.ErrTransientServer) {
		t.Fatalf("err=%v want=%v", err, syncerr.ErrTransientServer)
	}
	if len(waits) != 1 || waits[0] != time.Second {
		t.Fatalf("waits=%v", waits)
	}

	waits = nil
	s = &scripted{responses: []*Response{status(500), status(200)}}
	if resp, err := WithRetry(context.Background(), recordingPolicy(&waits), s.fn); err != nil || resp.Status != 200 {
		t.Fatalf("resp=%v err=%v", resp, err)
	}
}

func TestWithRetryClientErrorFailsFast(t *testing.T) {
	var waits []time.Duration
	s := &scripted{responses: []*Response{status(404), status(200)}}
	_, err := WithRetry(context.Background(), recordingPolicy(&waits), s.fn)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != 404 {
		t.Fatalf("err=%v", err)
	}
	if len(waits) != 0 || s.calls != 1 {
		t.Fatalf("waits=%v calls=%d", waits, s.calls)
	}
}

func TestWithRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := DefaultPolicy()
	p.Sleep = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}
	s := &scripted{responses: []*Response{status(429)}}
	if _, err := WithRetry(ctx, p, s.fn); !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v want=%v", err, context.Canceled)
	}
}

func TestRetryAfter(t *testing.T) {
	cases := []struct {
		raw  string
		want time.Duration
	}{
		{"", time.Second},
		{"5", 5 * time.Second},
		{"1.5", 1500 * time.Millisecond},
		{"-1", time.Second},
		{"Wed, 21 Oct 2015 07:28:00 GMT", time.Second},
	}
	for _, tc := range cases {
		h := http.Header{}
		if tc.raw != "" {
			h.Set("Retry-After", tc.raw)
		}
		if got := RetryAfter(h, time.Second); got != tc.want {
			t.Fatalf("raw=%q got=%v want=%v", tc.raw, got, tc.want)
		}
	}
}

func TestClassifyStatus(t *testing.T) {
	cases := map[int]Class{
		200: ClassSuccess,
		304: ClassSuccess,
		400: ClassFatal,
		401: ClassFatal,
		429: ClassRateLimited,
		500: ClassServerError,
		599: ClassServerError,
	}
	for code, want := range cases {
		if got := ClassifyStatus(code); got != want {
			t.Fatalf("status=%d class=%v want=%v", code, got, want)
		}
	}
}
