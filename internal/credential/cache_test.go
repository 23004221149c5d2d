package credential

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"lifesync/internal/fetch"
	"lifesync/internal/syncerr"
)

type countingProvider struct {
	calls atomic.Int32
	ttl   time.Duration
	now   func() time.Time
	err   error
}

func (p *countingProvider) Refresh(_ context.Context, _ *Secret) (*Grant, error) {
	n := p.calls.Add(1)
	if p.err != nil {
		return nil, p.err
	}
	tok := fmt.Sprintf("token-%d", n)
	return &Grant{AccessToken: tok, ExpiresAt: p.now().Add(p.ttl), Updates: map[string]any{"access_token": tok}}, nil
}

func seededVault(t *testing.T, service string, creds map[string]any, exp *time.Time) *Vault {
	t.Helper()
	v, _ := newTestVault(t, testKey)
	if err := v.Save(context.Background(), &Secret{Service: service, AuthType: AuthOAuth2, Credentials: creds, ExpiresAt: exp}); err != nil {
		t.Fatalf("Save err=%v", err)
	}
	return v
}

func TestCacheRefreshesOnceForConcurrentCallers(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	v := seededVault(t, "fitbit", map[string]any{"refresh_token": "rt"}, nil)
	cache := NewCache(v, 0, nil)
	cache.Now = clock
	p := &countingProvider{ttl: time.Hour, now: clock}

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := cache.Token(context.Background(), "fitbit", p, false); err != nil {
				t.Errorf("Token err=%v", err)
			}
		}()
	}
	wg.Wait()
	if got := p.calls.Load(); got != 1 {
		t.Fatalf("refresh calls=%d want=1", got)
	}
}

func TestCacheRefreshesNearExpiry(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	v := seededVault(t, "fitbit", map[string]any{"refresh_token": "rt"}, nil)
	cache := NewCache(v, 5*time.Minute, nil)
	cache.Now = clock
	p := &countingProvider{ttl: 10 * time.Minute, now: clock}

	first, err := cache.Token(context.Background(), "fitbit", p, false)
	if err != nil {
		t.Fatalf("Token err=%v", err)
	}
	now = now.Add(4 * time.Minute)
	second, _ := cache.Token(context.Background(), "fitbit", p, false)
	if second.AccessToken != first.AccessToken {
		t.Fatalf("token refreshed too early: %s -> %s", first.AccessToken, second.AccessToken)
	}
	now = now.Add(2 * time.Minute)
	third, _ := cache.Token(context.Background(), "fitbit", p, false)
	if third.AccessToken == first.AccessToken {
		t.Fatalf("token not refreshed inside threshold")
	}
	if got := p.calls.Load(); got != 2 {
		t.Fatalf("refresh calls=%d want=2", got)
	}
}

func TestCachePersistsBeforeCaching(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	v := seededVault(t, "google_calendar", map[string]any{"refresh_token": "rt", "calendar_id": "primary"}, nil)
	cache := NewCache(v, 0, nil)
	cache.Now = clock
	tok, err := cache.Token(context.Background(), "google_calendar", &countingProvider{ttl: time.Hour, now: clock}, false)
	if err != nil {
		t.Fatalf("Token err=%v", err)
	}
	stored, _ := v.Get(context.Background(), "google_calendar")
	if stored.String("access_token") != tok.AccessToken {
		t.Fatalf("stored access_token=%q want=%q", stored.String("access_token"), tok.AccessToken)
	}
	if stored.ExpiresAt == nil || !stored.ExpiresAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("stored expires_at=%v", stored.ExpiresAt)
	}
	if tok.Config["calendar_id"] != "primary" {
		t.Fatalf("config=%v", tok.Config)
	}
}

func TestCacheReusesFreshStoredToken(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	exp := now.Add(time.Hour)
	v := seededVault(t, "fitbit", map[string]any{"refresh_token": "rt", "access_token": "stored"}, &exp)
	cache := NewCache(v, 0, nil)
	cache.Now = func() time.Time { return now }
	p := &countingProvider{ttl: time.Hour, now: cache.Now}
	tok, err := cache.Token(context.Background(), "fitbit", p, false)
	if err != nil {
		t.Fatalf("Token err=%v", err)
	}
	if tok.AccessToken != "stored" || p.calls.Load() != 0 {
		t.Fatalf("token=%s calls=%d want stored/0", tok.AccessToken, p.calls.Load())
	}
	forced, _ := cache.Token(context.Background(), "fitbit", p, true)
	if forced.AccessToken == "stored" || p.calls.Load() != 1 {
		t.Fatalf("force did not refresh: token=%s calls=%d", forced.AccessToken, p.calls.Load())
	}
}

func TestCacheErrors(t *testing.T) {
	v := seededVault(t, "fitbit", map[string]any{"refresh_token": "rt"}, nil)
	cache := NewCache(v, 0, nil)

	_, err := cache.Token(context.Background(), "zaim", Static{Field: "access_token"}, false)
	if !errors.Is(err, syncerr.ErrConfiguration) {
		t.Fatalf("missing credentials err=%v want configuration", err)
	}
	_, err = cache.Token(context.Background(), "fitbit", &countingProvider{err: errors.New("invalid_grant")}, false)
	if !errors.Is(err, syncerr.ErrAuth) {
		t.Fatalf("refresh err=%v want auth", err)
	}
}

func TestStaticSourceIsNotRefreshable(t *testing.T) {
	v := seededVault(t, "notion", map[string]any{"api_key": "secret"}, nil)
	cache := NewCache(v, 0, nil)
	src := cache.Source("notion", Static{Field: "api_key"})
	tok, err := src.AccessToken(context.Background())
	if err != nil || tok != "secret" {
		t.Fatalf("token=%q err=%v", tok, err)
	}
	if err := src.Refresh(context.Background()); !errors.Is(err, fetch.ErrNotRefreshable) {
		t.Fatalf("Refresh err=%v want=%v", err, fetch.ErrNotRefreshable)
	}
}

func TestOAuth2RefresherRotatesRefreshToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "cid" || pass != "csecret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = r.ParseForm()
		if r.Form.Get("grant_type") != "refresh_token" || r.Form.Get("refresh_token") != "old-rt" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"new-at","refresh_token":"new-rt","token_type":"Bearer","expires_in":28800,"scope":"sleep heartrate"}`))
	}))
	defer srv.Close()

	p := &OAuth2Refresher{TokenURL: srv.URL, AuthStyle: oauth2.AuthStyleInHeader, HTTP: srv.Client()}
	grant, err := p.Refresh(context.Background(), &Secret{Service: "fitbit", Credentials: map[string]any{
		"client_id": "cid", "client_secret": "csecret", "refresh_token": "old-rt",
	}})
	if err != nil {
		t.Fatalf("Refresh err=%v", err)
	}
	if grant.AccessToken != "new-at" || grant.Updates["refresh_token"] != "new-rt" || grant.Updates["scope"] != "sleep heartrate" {
		t.Fatalf("grant=%+v", grant)
	}
	if time.Until(grant.ExpiresAt) < 7*time.Hour {
		t.Fatalf("expires_at=%v", grant.ExpiresAt)
	}
}

func TestFormRefresherSendsRedirectURI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.Form.Get("redirect_uri") != "https://example.com/cb" || r.Form.Get("client_secret") != "cs" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_request"}`))
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"at","expires_in":2592000,"refresh_token":"rt"}`))
	}))
	defer srv.Close()

	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	p := &FormRefresher{TokenURL: srv.URL, Client: fetch.NewClient("tanita_health_planet", "", srv.Client()), Now: func() time.Time { return now }}
	grant, err := p.Refresh(context.Background(), &Secret{Service: "tanita_health_planet", Credentials: map[string]any{
		"client_id": "cid", "client_secret": "cs", "refresh_token": "rt", "redirect_uri": "https://example.com/cb",
	}})
	if err != nil {
		t.Fatalf("Refresh err=%v", err)
	}
	if grant.AccessToken != "at" || !grant.ExpiresAt.Equal(now.Add(30*24*time.Hour)) {
		t.Fatalf("grant=%+v", grant)
	}
	if _, ok := grant.Updates["refresh_token"]; ok {
		t.Fatalf("unchanged refresh token should not be persisted: %v", grant.Updates)
	}
}
