// Package token manages OAuth access tokens for GBP connections. It
// keeps a process-local cache keyed by connection id and collapses
// concurrent refreshes for the same connection into a single upstream
// call.
package token

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultConnectionID names the single env-credential manager-account
// connection that exists without any database record.
const DefaultConnectionID = "default"

// RefreshBuffer is the safety margin before actual expiry at which a
// token is treated as already expired. It tolerates clock skew and
// request latency on the way to the provider.
const RefreshBuffer = 5 * time.Minute

// Token is a cached access token. It is never persisted; the broker
// remains the source of truth for refresh tokens across restarts.
type Token struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Refresher performs the actual credential exchange for a connection.
type Refresher interface {
	// Refresh obtains a fresh token for the given connection id.
	Refresh(ctx context.Context, connectionID string) (Token, error)
	// RefreshDefault obtains a fresh token for the env-credential
	// default connection.
	RefreshDefault(ctx context.Context) (Token, error)
}

// Manager hands out currently-valid bearer tokens. It is an explicitly
// constructed object so tests can run isolated instances; one instance
// per process is expected in production.
type Manager struct {
	refresher Refresher
	// staticFallback is returned for the default connection when a
	// refresh fails and no cached token exists.
	staticFallback string

	mu    sync.RWMutex
	cache map[string]Token

	group singleflight.Group

	now func() time.Time
	log *zap.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithStaticFallback sets the last-resort access token for the default
// connection.
func WithStaticFallback(accessToken string) Option {
	return func(m *Manager) {
		m.staticFallback = accessToken
	}
}

// WithClock overrides the time source. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a token manager backed by the given refresher.
func NewManager(refresher Refresher, log *zap.Logger, opts ...Option) *Manager {
	m := &Manager{
		refresher: refresher,
		cache:     make(map[string]Token),
		now:       time.Now,
		log:       log,
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.log == nil {
		m.log = zap.NewNop()
	}

	return m
}

// Token returns a currently-valid access token for the connection. A
// cached token outside the refresh buffer is returned without I/O.
// Otherwise exactly one refresh runs per connection; concurrent callers
// wait for and share its result. The in-flight entry is released on
// both success and failure, so a later call after an error starts a
// fresh refresh.
func (m *Manager) Token(ctx context.Context, connectionID string) (string, error) {
	if tok, ok := m.cached(connectionID); ok {
		return tok.AccessToken, nil
	}

	v, err, shared := m.group.Do(connectionID, func() (any, error) {
		// Re-check under the flight: a refresh that completed while we
		// waited for the flight slot already filled the cache.
		if tok, ok := m.cached(connectionID); ok {
			return tok, nil
		}

		tok, err := m.refresher.Refresh(ctx, connectionID)
		if err != nil {
			return Token{}, err
		}

		m.store(connectionID, tok)

		return tok, nil
	})
	if err != nil {
		return "", fmt.Errorf("refresh token for connection %s: %w", connectionID, err)
	}

	if shared {
		m.log.Debug("joined in-flight token refresh", zap.String("connection_id", connectionID))
	}

	return v.(Token).AccessToken, nil
}

// DefaultToken returns a token for the env-credential default
// connection. On refresh failure it falls back to the configured static
// access token when one exists.
func (m *Manager) DefaultToken(ctx context.Context) (string, error) {
	if tok, ok := m.cached(DefaultConnectionID); ok {
		return tok.AccessToken, nil
	}

	v, err, _ := m.group.Do(DefaultConnectionID, func() (any, error) {
		if tok, ok := m.cached(DefaultConnectionID); ok {
			return tok, nil
		}

		tok, err := m.refresher.RefreshDefault(ctx)
		if err != nil {
			return Token{}, err
		}

		m.store(DefaultConnectionID, tok)

		return tok, nil
	})
	if err != nil {
		if m.staticFallback != "" {
			m.log.Warn("default token refresh failed, using static fallback", zap.Error(err))

			return m.staticFallback, nil
		}

		return "", fmt.Errorf("refresh default token: %w", err)
	}

	return v.(Token).AccessToken, nil
}

// CacheToken seeds the cache directly. Used right after an OAuth
// callback completes so the very next call skips an unnecessary refresh
// round-trip.
func (m *Manager) CacheToken(connectionID, accessToken, refreshToken string, expiresIn time.Duration) {
	m.store(connectionID, Token{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    m.now().Add(expiresIn),
	})
}

// ClearCache invalidates the cached token for one connection. Used when
// a caller learns independently that a token was revoked.
func (m *Manager) ClearCache(connectionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.cache, connectionID)
}

// ClearAll invalidates every cached token.
func (m *Manager) ClearAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cache = make(map[string]Token)
}

// cached returns the token for the connection when it is still outside
// the refresh buffer.
func (m *Manager) cached(connectionID string) (Token, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tok, ok := m.cache[connectionID]
	if !ok {
		return Token{}, false
	}

	if !tok.ExpiresAt.After(m.now().Add(RefreshBuffer)) {
		return Token{}, false
	}

	return tok, true
}

func (m *Manager) store(connectionID string, tok Token) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cache[connectionID] = tok
}
