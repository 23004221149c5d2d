package fetch

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

var ErrNotRefreshable = errors.New("credentials cannot be refreshed")

type Authorizer interface {
	Authorize(ctx context.Context, req *http.Request) error
}

// Refresher is implemented by authorizers that can force a credential refresh.
type Refresher interface {
	Refresh(ctx context.Context) error
}

type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

type AuthorizerFunc func(ctx context.Context, req *http.Request) error

func (f AuthorizerFunc) Authorize(ctx context.Context, req *http.Request) error {
	return f(ctx, req)
}

type tokenAuth struct {
	src   TokenSource
	apply func(req *http.Request, token string)
}

func (a tokenAuth) Authorize(ctx context.Context, req *http.Request) error {
	tok, err := a.src.AccessToken(ctx)
	if err != nil {
		return err
	}
	a.apply(req, tok)
	return nil
}

func (a tokenAuth) Refresh(ctx context.Context) error {
	if r, ok := a.src.(Refresher); ok {
		return r.Refresh(ctx)
	}
	return ErrNotRefreshable
}

// Bearer sets "Authorization: Bearer <token>".
func Bearer(src TokenSource) Authorizer {
	return tokenAuth{src: src, apply: func(req *http.Request, token string) {
		req.Header.Set("Authorization", "Bearer "+token)
	}}
}

// QueryToken passes the token as a query parameter.
func QueryToken(param string, src TokenSource) Authorizer {
	return tokenAuth{src: src, apply: func(req *http.Request, token string) {
		q := req.URL.Query()
		q.Set(param, token)
		req.URL.RawQuery = q.Encode()
	}}
}

// Basic uses HTTP basic auth with credentials resolved per request.
func Basic(src func(ctx context.Context) (user, pass string, err error)) Authorizer {
	return AuthorizerFunc(func(ctx context.Context, req *http.Request) error {
		user, pass, err := src(ctx)
		if err != nil {
			return err
		}
		req.SetBasicAuth(strings.TrimSpace(user), strings.TrimSpace(pass))
		return nil
	})
}
