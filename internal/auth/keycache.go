// ABOUTME: Process-wide cache of issuer signing keys fetched from a JWKS endpoint
// ABOUTME: TTL expiry, per-kid singleflight, and a fetch-rate ceiling protecting the key service

package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/2389/mcp-runtime/internal/apierr"
)

// Key cache errors. Both are returned wrapped in an apierr.Error with
// CodeKeyFetch, so errors.Is and apierr.CodeOf both work on them.
var (
	ErrKeyFetchRateLimited = errors.New("key fetch rate limit exceeded")
	ErrKeyNotFound         = errors.New("signing key not found")
)

const maxKeySetBytes = 1 << 20

// KeyStore resolves a key identifier to a verification key.
type KeyStore interface {
	SigningKey(ctx context.Context, kid string) (*SigningKey, error)
}

// JWKSCacheConfig configures a JWKSCache.
type JWKSCacheConfig struct {
	URL               string
	TTL               time.Duration
	Size              int
	RequestsPerMinute int
	Timeout           time.Duration
	HTTPClient        *http.Client
	Logger            *slog.Logger
}

// JWKSCache is a KeyStore backed by a remote JWKS document.
//
// Reads are served from an expirable LRU without locking the whole cache.
// A miss triggers at most one fetch per kid at a time; concurrent callers
// for the same kid wait on that fetch. Fetches are additionally bounded by a
// token bucket; when it is empty the lookup fails immediately.
type JWKSCache struct {
	url     string
	timeout time.Duration
	client  *http.Client
	logger  *slog.Logger

	keys    *expirable.LRU[string, *SigningKey]
	flight  singleflight.Group
	limiter *rate.Limiter
	fetches atomic.Int64
}

// NewJWKSCache creates a cache for the key set at cfg.URL.
func NewJWKSCache(cfg JWKSCacheConfig) (*JWKSCache, error) {
	if cfg.URL == "" {
		return nil, errors.New("jwks url is required")
	}
	if cfg.TTL <= 0 {
		return nil, errors.New("key cache ttl must be positive")
	}
	if cfg.RequestsPerMinute <= 0 {
		return nil, errors.New("jwks requests per minute must be positive")
	}
	if cfg.Size <= 0 {
		cfg.Size = 64
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &JWKSCache{
		url:     cfg.URL,
		timeout: cfg.Timeout,
		client:  client,
		logger:  logger,
		keys:    expirable.NewLRU[string, *SigningKey](cfg.Size, nil, cfg.TTL),
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), cfg.RequestsPerMinute),
	}, nil
}

// SigningKey returns the key for kid, fetching the key set if it is not cached.
func (c *JWKSCache) SigningKey(ctx context.Context, kid string) (*SigningKey, error) {
	if key, ok := c.keys.Get(kid); ok {
		return key, nil
	}

	v, err, shared := c.flight.Do(kid, func() (any, error) {
		// A fetch for another kid may have landed while we waited.
		if key, ok := c.keys.Get(kid); ok {
			return key, nil
		}
		return c.refresh(ctx, kid)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.logger.Debug("shared key fetch", "kid", kid)
	}
	return v.(*SigningKey), nil
}

// Fetches reports how many upstream key set requests have been issued.
func (c *JWKSCache) Fetches() int64 {
	return c.fetches.Load()
}

func (c *JWKSCache) refresh(ctx context.Context, kid string) (*SigningKey, error) {
	if !c.limiter.Allow() {
		c.logger.Warn("key fetch rate limited", "kid", kid)
		return nil, apierr.Wrap(apierr.CodeKeyFetch, "key fetch rate limited", ErrKeyFetchRateLimited)
	}

	// The fetch result is shared with other waiters, so it must not die
	// with the first caller's request.
	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	keys, err := c.fetch(fetchCtx)
	if err != nil {
		c.logger.Warn("key fetch failed", "url", c.url, "error", err)
		return nil, apierr.Wrap(apierr.CodeKeyFetch, "key fetch failed", err)
	}

	for id, key := range keys {
		c.keys.Add(id, key)
	}
	c.logger.Debug("key set refreshed", "url", c.url, "keys", len(keys))

	key, ok := keys[kid]
	if !ok {
		return nil, apierr.Wrap(apierr.CodeKeyFetch, "signing key not found", fmt.Errorf("%w: kid %q", ErrKeyNotFound, kid))
	}
	return key, nil
}

func (c *JWKSCache) fetch(ctx context.Context) (map[string]*SigningKey, error) {
	c.fetches.Add(1)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting key set: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("key set endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxKeySetBytes))
	if err != nil {
		return nil, fmt.Errorf("reading key set: %w", err)
	}

	return parseKeySet(body, time.Now())
}

// StaticKeyStore is a KeyStore over a fixed set of keys. A non-nil Err is
// returned for every lookup.
type StaticKeyStore struct {
	Keys map[string]*SigningKey
	Err  error
}

// SigningKey implements KeyStore.
func (s *StaticKeyStore) SigningKey(_ context.Context, kid string) (*SigningKey, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	key, ok := s.Keys[kid]
	if !ok {
		return nil, apierr.Wrap(apierr.CodeKeyFetch, "signing key not found", ErrKeyNotFound)
	}
	return key, nil
}
