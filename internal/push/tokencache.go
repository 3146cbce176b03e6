package push

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// cachedToken is the value stored behind the atomic snapshot: readers never
// block on it, only the refresh path takes the mutex (spec.md §4.7, §9).
type cachedToken struct {
	accessToken string
	expiry      time.Time
}

// valid reports whether the token is still usable, refreshing 60s before
// its stated expiry per spec.md §4.7.
func (c *cachedToken) valid(now time.Time) bool {
	return c != nil && c.accessToken != "" && now.Before(c.expiry.Add(-60*time.Second))
}

// tokenSource abstracts the OAuth2 exchange so the cache can be tested
// without a real service account.
type tokenSource interface {
	Token(ctx context.Context) (accessToken string, expiry time.Time, err error)
}

// tokenCache is a small atomically-updated cell guarded by a mutex that
// covers only the refresh, so concurrent readers never block behind a
// refresh they don't need (spec.md §9). backing is an optional
// write-through layer (Redis today); when nil the cache is purely
// in-process.
type tokenCache struct {
	source  tokenSource
	backing backingCache

	snapshot atomic.Pointer[cachedToken]
	mu       sync.Mutex
}

// backingCache is the optional shared layer behind the in-process cell.
type backingCache interface {
	Load(ctx context.Context) (accessToken string, expiry time.Time, ok bool)
	Store(ctx context.Context, accessToken string, expiry time.Time)
}

func newTokenCache(source tokenSource, backing backingCache) *tokenCache {
	return &tokenCache{source: source, backing: backing}
}

// Get returns a valid access token, refreshing under the mutex if the
// cached one (in-process, then the optional shared backing) has expired.
func (c *tokenCache) Get(ctx context.Context, now time.Time) (string, error) {
	if t := c.snapshot.Load(); t.valid(now) {
		return t.accessToken, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Re-check: another goroutine may have refreshed while we waited.
	if t := c.snapshot.Load(); t.valid(now) {
		return t.accessToken, nil
	}

	if c.backing != nil {
		if tok, expiry, ok := c.backing.Load(ctx); ok {
			ct := &cachedToken{accessToken: tok, expiry: expiry}
			if ct.valid(now) {
				c.snapshot.Store(ct)
				return ct.accessToken, nil
			}
		}
	}

	tok, expiry, err := c.source.Token(ctx)
	if err != nil {
		return "", err
	}

	c.snapshot.Store(&cachedToken{accessToken: tok, expiry: expiry})
	if c.backing != nil {
		c.backing.Store(ctx, tok, expiry)
	}
	return tok, nil
}
