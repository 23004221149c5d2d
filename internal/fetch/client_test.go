package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"lifesync/internal/syncerr"
)

type stubTokens struct {
	token     atomic.Value
	refreshes atomic.Int32
	refreshFn func() error
}

func (s *stubTokens) AccessToken(context.Context) (string, error) {
	return s.token.Load().(string), nil
}

func (s *stubTokens) Refresh(context.Context) error {
	s.refreshes.Add(1)
	if s.refreshFn != nil {
		return s.refreshFn()
	}
	s.token.Store("fresh")
	return nil
}

type plainTokens struct{}

func (plainTokens) AccessToken(context.Context) (string, error) { return "static", nil }

func noSleep() Policy {
	p := DefaultPolicy()
	p.Sleep = func(context.Context, time.Duration) error { return nil }
	return p
}

func TestClientRefreshesOn401(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"ok": "yes"})
	}))
	defer srv.Close()

	src := &stubTokens{}
	src.token.Store("stale")
	c := NewClient("svc", srv.URL, srv.Client())
	c.Auth = Bearer(src)
	c.Policy = noSleep()

	var out map[string]string
	if err := c.GetJSON(context.Background(), "/thing", nil, &out); err != nil {
		t.Fatalf("err=%v", err)
	}
	if out["ok"] != "yes" || src.refreshes.Load() != 1 {
		t.Fatalf("out=%v refreshes=%d", out, src.refreshes.Load())
	}
	if c.Calls() != 2 {
		t.Fatalf("calls=%d want=2", c.Calls())
	}
}

func TestClient401AfterRefreshIsAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	src := &stubTokens{}
	src.token.Store("stale")
	c := NewClient("svc", srv.URL, srv.Client())
	c.Auth = Bearer(src)
	_, err := c.Get(context.Background(), "/x", nil)
	if !errors.Is(err, syncerr.ErrAuth) {
		t.Fatalf("err=%v want=%v", err, syncerr.ErrAuth)
	}
}

func TestClient401WithoutRefresherIsAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient("svc", srv.URL, srv.Client())
	c.Auth = Bearer(plainTokens{})
	_, err := c.Get(context.Background(), "/x", nil)
	if !errors.Is(err, syncerr.ErrAuth) {
		t.Fatalf("err=%v want=%v", err, syncerr.ErrAuth)
	}
}

func TestClientBuildsRequest(t *testing.T) {
	var got *http.Request
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient("svc", srv.URL+"/v1/", srv.Client())
	c.Header = http.Header{"X-Version": {"1"}}
	c.Auth = QueryToken("access_token", plainTokens{})
	_, err := c.Do(context.Background(), Request{
		Method: http.MethodPost,
		Path:   "/items",
		Query:  url.Values{"page": {"2"}},
		Header: http.Header{"X-Version": {"2"}},
		JSON:   map[string]any{"a": 1},
	})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if got.URL.Path != "/v1/items" {
		t.Fatalf("path=%s", got.URL.Path)
	}
	if got.URL.Query().Get("page") != "2" || got.URL.Query().Get("access_token") != "static" {
		t.Fatalf("query=%s", got.URL.RawQuery)
	}
	if got.Header.Get("X-Version") != "2" || got.Header.Get("Content-Type") != "application/json" {
		t.Fatalf("headers=%v", got.Header)
	}
	if body["a"] != float64(1) {
		t.Fatalf("body=%v", body)
	}
}

func TestClientBreakerOpensOnServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient("svc", srv.URL, srv.Client())
	c.Policy = noSleep()
	c.Breaker = NewBreaker("svc", BreakerConfig{Enabled: true, FailureThreshold: 2, Timeout: time.Minute}, nil)

	for i := 0; i < 2; i++ {
		if _, err := c.Get(context.Background(), "/x", nil); !errors.Is(err, syncerr.ErrTransientServer) {
			t.Fatalf("call %d err=%v", i, err)
		}
	}
	before := hits.Load()
	_, err := c.Get(context.Background(), "/x", nil)
	if !errors.Is(err, syncerr.ErrTransientServer) {
		t.Fatalf("err=%v", err)
	}
	if hits.Load() != before {
		t.Fatalf("open breaker let a request through")
	}
}

func TestBreakerIgnoresClientErrors(t *testing.T) {
	if breakerFailure(&APIError{Status: 404}) {
		t.Fatalf("404 counted as failure")
	}
	if breakerFailure(context.Canceled) {
		t.Fatalf("cancel counted as failure")
	}
	if !breakerFailure(errors.New("dial tcp: refused")) {
		t.Fatalf("transport error not counted")
	}
	if NewBreaker("x", BreakerConfig{}, nil) != nil {
		t.Fatalf("disabled breaker not nil")
	}
}
