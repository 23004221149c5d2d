package credential

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"lifesync/internal/fetch"
	"lifesync/internal/syncerr"
)

type oauthClient struct {
	ClientID     string `mapstructure:"client_id" validate:"required"`
	ClientSecret string `mapstructure:"client_secret" validate:"required"`
	RefreshToken string `mapstructure:"refresh_token" validate:"required"`
}

// OAuth2Refresher runs the refresh_token grant through x/oauth2.
type OAuth2Refresher struct {
	TokenURL  string
	AuthStyle oauth2.AuthStyle
	HTTP      *http.Client
}

func (p *OAuth2Refresher) Refresh(ctx context.Context, secret *Secret) (*Grant, error) {
	var creds oauthClient
	if err := Decode(secret, &creds); err != nil {
		return nil, err
	}
	cfg := oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  p.TokenURL,
			AuthStyle: p.AuthStyle,
		},
	}
	if p.HTTP != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, p.HTTP)
	}
	tok, err := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: creds.RefreshToken}).Token()
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) && rerr.Response != nil {
			return nil, syncerr.Auth(secret.Service, "refresh token grant", fmt.Errorf("%s: %s", rerr.Response.Status, strings.TrimSpace(string(rerr.Body))))
		}
		return nil, syncerr.Auth(secret.Service, "refresh token grant", err)
	}
	updates := map[string]any{"access_token": tok.AccessToken}
	if tok.RefreshToken != "" && tok.RefreshToken != creds.RefreshToken {
		updates["refresh_token"] = tok.RefreshToken
	}
	if tok.TokenType != "" {
		updates["token_type"] = tok.TokenType
	}
	if scope, ok := tok.Extra("scope").(string); ok && scope != "" {
		updates["scope"] = scope
	}
	return &Grant{AccessToken: tok.AccessToken, ExpiresAt: tok.Expiry, Updates: updates}, nil
}

type formClient struct {
	ClientID     string `mapstructure:"client_id" validate:"required"`
	ClientSecret string `mapstructure:"client_secret" validate:"required"`
	RefreshToken string `mapstructure:"refresh_token" validate:"required"`
	RedirectURI  string `mapstructure:"redirect_uri" validate:"required"`
}

type formTokenResponse struct {
	AccessToken  string  `json:"access_token"`
	RefreshToken string  `json:"refresh_token"`
	ExpiresIn    float64 `json:"expires_in"`
}

// FormRefresher posts a refresh_token grant that also carries redirect_uri,
// which some providers require.
type FormRefresher struct {
	TokenURL string
	Client   *fetch.Client
	Now      func() time.Time
}

func (p *FormRefresher) Refresh(ctx context.Context, secret *Secret) (*Grant, error) {
	var creds formClient
	if err := Decode(secret, &creds); err != nil {
		return nil, err
	}
	client := p.Client
	if client == nil {
		client = fetch.NewClient(secret.Service, "", nil)
	}
	form := url.Values{}
	form.Set("client_id", creds.ClientID)
	form.Set("client_secret", creds.ClientSecret)
	form.Set("redirect_uri", creds.RedirectURI)
	form.Set("refresh_token", creds.RefreshToken)
	form.Set("grant_type", "refresh_token")

	var out formTokenResponse
	if err := client.DoJSON(ctx, fetch.Request{Method: http.MethodPost, Path: p.TokenURL, Form: form}, &out); err != nil {
		return nil, syncerr.Auth(secret.Service, "refresh token grant", err)
	}
	if out.AccessToken == "" {
		return nil, syncerr.Auth(secret.Service, "refresh token grant", errors.New("response has no access_token"))
	}
	now := time.Now()
	if p.Now != nil {
		now = p.Now()
	}
	expiresIn := time.Duration(out.ExpiresIn) * time.Second
	if expiresIn <= 0 {
		expiresIn = time.Hour
	}
	updates := map[string]any{"access_token": out.AccessToken}
	if out.RefreshToken != "" && out.RefreshToken != creds.RefreshToken {
		updates["refresh_token"] = out.RefreshToken
	}
	return &Grant{AccessToken: out.AccessToken, ExpiresAt: now.Add(expiresIn), Updates: updates}, nil
}

// Static serves a long-lived token from the credential field Field. It never
// refreshes; a 401 is an auth error.
type Static struct {
	Field string
}

func (p Static) Refresh(_ context.Context, secret *Secret) (*Grant, error) {
	field := p.Field
	if field == "" {
		field = "access_token"
	}
	tok := secret.String(field)
	if tok == "" {
		return nil, syncerr.Configuration(secret.Service, "missing credentials: %s", field)
	}
	return &Grant{AccessToken: tok}, nil
}
