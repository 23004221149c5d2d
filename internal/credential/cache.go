package credential

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"lifesync/internal/fetch"
	"lifesync/internal/syncerr"
)

const DefaultThreshold = 5 * time.Minute

// Token is a resolved access token plus the decrypted credential set it came
// from. A zero ExpiresAt never expires.
type Token struct {
	AccessToken string
	ExpiresAt   time.Time
	Config      map[string]any
}

// Grant is the outcome of a provider refresh. Updates are deep-merged into the
// stored credentials before the token is cached.
type Grant struct {
	AccessToken string
	ExpiresAt   time.Time
	Updates     map[string]any
}

type Provider interface {
	Refresh(ctx context.Context, secret *Secret) (*Grant, error)
}

// Store is the part of Vault the cache needs.
type Store interface {
	Get(ctx context.Context, service string) (*Secret, error)
	Update(ctx context.Context, service string, partial map[string]any, expiresAt *time.Time) error
}

type entry struct {
	token Token
}

// Cache keeps one token per service. Refreshes for the same service are
// serialized; different services refresh independently.
type Cache struct {
	Store     Store
	Threshold time.Duration
	Logger    *zap.Logger
	Now       func() time.Time

	mu      sync.Mutex
	entries map[string]entry
	locks   map[string]*sync.Mutex
}

func NewCache(store Store, threshold time.Duration, logger *zap.Logger) *Cache {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{Store: store, Threshold: threshold, Logger: logger}
}

func (c *Cache) Token(ctx context.Context, service string, provider Provider, force bool) (Token, error) {
	lock := c.serviceLock(service)
	lock.Lock()
	defer lock.Unlock()

	if !force {
		if tok, ok := c.cached(service); ok {
			return tok, nil
		}
	}
	if c.Store == nil {
		return Token{}, syncerr.Configuration(service, "credential store is not configured")
	}
	secret, err := c.Store.Get(ctx, service)
	if err != nil {
		return Token{}, syncerr.Configuration(service, "load credentials: %v", err)
	}
	if secret == nil {
		return Token{}, syncerr.Configuration(service, "no credentials stored")
	}

	// A stored token that is still fresh is reused without a refresh.
	if !force && secret.ExpiresAt != nil {
		if stored := secret.String("access_token"); stored != "" && c.valid(*secret.ExpiresAt) {
			tok := Token{AccessToken: stored, ExpiresAt: *secret.ExpiresAt, Config: secret.Credentials}
			c.put(service, tok)
			return tok, nil
		}
	}

	if provider == nil {
		return Token{}, syncerr.Configuration(service, "no credential provider")
	}
	grant, err := provider.Refresh(ctx, secret)
	if err != nil {
		var se *syncerr.Error
		if errors.As(err, &se) {
			return Token{}, err
		}
		return Token{}, syncerr.Auth(service, "refresh", err)
	}
	if grant == nil || grant.AccessToken == "" {
		return Token{}, syncerr.Auth(service, "refresh", errors.New("provider returned no access token"))
	}

	config := secret.Credentials
	if len(grant.Updates) > 0 {
		var exp *time.Time
		if !grant.ExpiresAt.IsZero() {
			e := grant.ExpiresAt.UTC()
			exp = &e
		}
		if err := c.Store.Update(ctx, service, grant.Updates, exp); err != nil {
			return Token{}, syncerr.Auth(service, "persist refreshed token", err)
		}
		if config == nil {
			config = map[string]any{}
		}
		deepMerge(config, grant.Updates)
		c.Logger.Info("credentials refreshed",
			zap.String("service", service),
			zap.Time("expires_at", grant.ExpiresAt),
		)
	}
	tok := Token{AccessToken: grant.AccessToken, ExpiresAt: grant.ExpiresAt, Config: config}
	c.put(service, tok)
	return tok, nil
}

func (c *Cache) Invalidate(service string) {
	c.mu.Lock()
	delete(c.entries, service)
	c.mu.Unlock()
}

// Source adapts the cache to fetch.TokenSource for one service.
func (c *Cache) Source(service string, provider Provider) *Source {
	return &Source{cache: c, service: service, provider: provider}
}

func (c *Cache) cached(service string) (Token, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[service]
	if !ok {
		return Token{}, false
	}
	if !e.token.ExpiresAt.IsZero() && !c.valid(e.token.ExpiresAt) {
		return Token{}, false
	}
	return e.token, true
}

func (c *Cache) put(service string, tok Token) {
	c.mu.Lock()
	if c.entries == nil {
		c.entries = map[string]entry{}
	}
	c.entries[service] = entry{token: tok}
	c.mu.Unlock()
}

func (c *Cache) valid(expiresAt time.Time) bool {
	return expiresAt.Sub(c.now()) > c.threshold()
}

func (c *Cache) serviceLock(service string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.locks == nil {
		c.locks = map[string]*sync.Mutex{}
	}
	l, ok := c.locks[service]
	if !ok {
		l = &sync.Mutex{}
		c.locks[service] = l
	}
	return l
}

func (c *Cache) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Cache) threshold() time.Duration {
	if c.Threshold > 0 {
		return c.Threshold
	}
	return DefaultThreshold
}

// Source resolves tokens for one service. It implements fetch.TokenSource and,
// for refreshable providers, fetch.Refresher.
type Source struct {
	cache    *Cache
	service  string
	provider Provider
}

func (s *Source) AccessToken(ctx context.Context) (string, error) {
	tok, err := s.cache.Token(ctx, s.service, s.provider, false)
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

// Config returns the decrypted credential map behind the current token.
func (s *Source) Config(ctx context.Context) (map[string]any, error) {
	tok, err := s.cache.Token(ctx, s.service, s.provider, false)
	if err != nil {
		return nil, err
	}
	return tok.Config, nil
}

// Decode copies the current credentials into out. See Decode.
func (s *Source) Decode(ctx context.Context, out any) error {
	cfg, err := s.Config(ctx)
	if err != nil {
		return err
	}
	return Decode(&Secret{Service: s.service, Credentials: cfg}, out)
}

func (s *Source) Refresh(ctx context.Context) error {
	if _, ok := s.provider.(Static); ok {
		return fetch.ErrNotRefreshable
	}
	_, err := s.cache.Token(ctx, s.service, s.provider, true)
	return err
}
