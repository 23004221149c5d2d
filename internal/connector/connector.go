// Package connector holds what the provider packages share: dependencies,
// client construction and small parsing helpers.
package connector

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"lifesync/internal/config"
	"lifesync/internal/credential"
	"lifesync/internal/engine"
	"lifesync/internal/fetch"
)

// Deps is passed to every connector constructor.
type Deps struct {
	Cache      *credential.Cache
	HTTP       *http.Client
	Logger     *zap.Logger
	Policy     fetch.Policy
	Breaker    fetch.BreakerConfig
	Location   *time.Location
	ChunkDelay time.Duration
	Config     config.ConnectorConfig
	// RawSchema prefixes warehouse table names.
	RawSchema string
}

// Factory builds the engine service of one provider.
type Factory func(d Deps) engine.Service

func (d Deps) Log(service string) *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger.Named(service)
}

func (d Deps) Loc() *time.Location {
	if d.Location != nil {
		return d.Location
	}
	return time.UTC
}

// Table returns the warehouse table for a resource.
func (d Deps) Table(service, resource string) string {
	schema := strings.TrimSpace(d.RawSchema)
	if schema == "" {
		schema = "raw"
	}
	return schema + "." + service + "__" + resource
}

func (d Deps) BaseURL(fallback string) string {
	if u := strings.TrimSpace(d.Config.BaseURL); u != "" {
		return u
	}
	return fallback
}

func (d Deps) AuxURL(fallback string) string {
	if u := strings.TrimSpace(d.Config.AuxURL); u != "" {
		return u
	}
	return fallback
}

func (d Deps) TokenURL(fallback string) string {
	if u := strings.TrimSpace(d.Config.TokenURL); u != "" {
		return u
	}
	return fallback
}

func (d Deps) ChunkDays(fallback int) int {
	if d.Config.ChunkDays > 0 && d.Config.ChunkDays < fallback {
		return d.Config.ChunkDays
	}
	return fallback
}

func (d Deps) PageSize(fallback int) int {
	if d.Config.PageSize > 0 {
		return d.Config.PageSize
	}
	return fallback
}

// HTTPClient returns the shared client, or a new one when the connector
// sets its own timeout.
func (d Deps) HTTPClient() *http.Client {
	if d.Config.Timeout > 0 {
		base := d.HTTP
		if base == nil {
			base = &http.Client{}
		}
		c := *base
		c.Timeout = d.Config.Timeout
		return &c
	}
	if d.HTTP != nil {
		return d.HTTP
	}
	return &http.Client{Timeout: 30 * time.Second}
}

// NewClient builds a provider client for baseURL with retry policy, pacing
// and breaker. Callers resolve overrides with BaseURL or AuxURL first.
func (d Deps) NewClient(service, baseURL string, auth fetch.Authorizer) *fetch.Client {
	c := fetch.NewClient(service, baseURL, d.HTTPClient())
	c.Auth = auth
	c.Policy = d.Policy
	c.Logger = d.Log(service)
	c.Breaker = fetch.NewBreaker(service, d.Breaker, d.Log(service))
	if d.Config.RatePerSecond > 0 {
		burst := d.Config.Burst
		if burst <= 0 {
			burst = 1
		}
		c.Limiter = rate.NewLimiter(rate.Limit(d.Config.RatePerSecond), burst)
	}
	return c
}

// Preflight resolves the service token once so credential problems surface
// before any resource runs.
func Preflight(src fetch.TokenSource) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		_, err := src.AccessToken(ctx)
		return err
	}
}

// ParseTime accepts RFC3339 with or without fractional seconds, and plain dates in loc.
func ParseTime(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02 15:04:05", fetch.DateLayout} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func TimePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
