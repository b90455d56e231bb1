// Package entraid acquires and caches OAuth2 client-credentials tokens from
// Entra ID for machine-to-machine calls.
package entraid

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// safetyMargin keeps a token from being handed out when it could expire
// while the request using it is still in flight.
const safetyMargin = 5 * time.Second

// AuthError is returned when the token endpoint cannot be reached or refuses
// the client credentials.
type AuthError struct {
	Endpoint string
	Err      error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("entraid: token request to %s failed: %v", e.Endpoint, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

type cachedToken struct {
	value    string
	issuedAt time.Time
	ttl      time.Duration
}

func (t *cachedToken) validAt(now time.Time) bool {
	return now.Before(t.issuedAt.Add(t.ttl - safetyMargin))
}

// Cache hands out the current access token and refreshes it lazily on the
// first call after it has expired. Concurrent callers that all observe an
// expired token each refresh; the last one to finish wins.
type Cache struct {
	cfg        clientcredentials.Config
	httpClient *http.Client
	now        func() time.Time
	onRefresh  func(error)

	current atomic.Pointer[cachedToken]
}

type Option func(*Cache)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Cache) {
		c.httpClient = httpClient
	}
}

// WithRefreshHook registers fn to be called after every token exchange with
// its result.
func WithRefreshHook(fn func(error)) Option {
	return func(c *Cache) {
		c.onRefresh = fn
	}
}

// New creates a Cache for the client-credentials flow against tokenEndpoint.
func New(clientID, clientSecret, tokenEndpoint, scope string, opts ...Option) (*Cache, error) {
	if strings.TrimSpace(clientID) == "" {
		return nil, errors.New("entraid: client id must not be empty")
	}
	if clientSecret == "" {
		return nil, errors.New("entraid: client secret must not be empty")
	}
	if strings.TrimSpace(tokenEndpoint) == "" {
		return nil, errors.New("entraid: token endpoint must not be empty")
	}
	if strings.TrimSpace(scope) == "" {
		return nil, errors.New("entraid: scope must not be empty")
	}
	c := &Cache{
		cfg: clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     tokenEndpoint,
			Scopes:       []string{scope},
			AuthStyle:    oauth2.AuthStyleInParams,
		},
		httpClient: &http.Client{Timeout: 10 * time.Second},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Scope builds the ".default" scope of the application registered as
// "<env>.<app>".
func Scope(env, app string) string {
	return fmt.Sprintf("api://%s.%s/.default", strings.TrimSpace(env), strings.TrimSpace(app))
}

// Token returns a token that stays valid for at least the safety margin,
// fetching a new one when needed.
func (c *Cache) Token(ctx context.Context) (string, error) {
	now := c.now()
	if tok := c.current.Load(); tok != nil && tok.validAt(now) {
		return tok.value, nil
	}

	tok, err := c.exchange(ctx, now)
	if c.onRefresh != nil {
		c.onRefresh(err)
	}
	if err != nil {
		return "", err
	}
	c.current.Store(tok)
	return tok.value, nil
}

func (c *Cache) exchange(ctx context.Context, now time.Time) (*cachedToken, error) {
	if c.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	}
	tok, err := c.cfg.Token(ctx)
	if err != nil {
		return nil, &AuthError{Endpoint: c.cfg.TokenURL, Err: err}
	}
	return &cachedToken{
		value:    tok.AccessToken,
		issuedAt: now,
		ttl:      lifetime(tok),
	}, nil
}

// lifetime reads expires_in from the raw token response. Tokens without it
// get a zero lifetime and are refreshed on every call.
func lifetime(tok *oauth2.Token) time.Duration {
	var seconds float64
	switch v := tok.Extra("expires_in").(type) {
	case float64:
		seconds = v
	case int64:
		seconds = float64(v)
	case json.Number:
		seconds, _ = v.Float64()
	case string:
		seconds, _ = strconv.ParseFloat(v, 64)
	default:
		if !tok.Expiry.IsZero() {
			return time.Until(tok.Expiry)
		}
	}
	if seconds <= 0 {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}
