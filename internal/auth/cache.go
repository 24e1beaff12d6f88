package auth

import (
	"crypto/sha256"
	"sync"
	"time"
)

// defaultCacheEntries bounds the number of remembered tokens.
const defaultCacheEntries = 1024

type tokenDigest [sha256.Size]byte

// tokenCache remembers verified operator tokens for ttl. Entries are keyed by
// the SHA-256 digest of the token so raw credentials are not kept in memory.
//
// An expired entry is still served while exactly one caller re-verifies it;
// everyone else keeps getting the old identity until that caller stores or
// forgets the token.
type tokenCache struct {
	ttl        time.Duration
	maxEntries int
	now        func() time.Time

	mu      sync.Mutex
	entries map[tokenDigest]*verifiedToken
}

type verifiedToken struct {
	identity   *Identity
	verifiedAt time.Time
	refreshing bool
}

func newTokenCache(ttl time.Duration, maxEntries int) *tokenCache {
	if maxEntries <= 0 {
		maxEntries = defaultCacheEntries
	}
	return &tokenCache{
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
		entries:    make(map[tokenDigest]*verifiedToken),
	}
}

// lookup returns the cached identity for token, or nil on a miss. refresh is
// true for the single caller that must re-verify an expired entry.
func (c *tokenCache) lookup(token string) (id *Identity, refresh bool) {
	key := sha256.Sum256([]byte(token))

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.verifiedAt) < c.ttl || e.refreshing {
		return e.identity, false
	}
	e.refreshing = true
	return e.identity, true
}

// store records a freshly verified identity for token.
func (c *tokenCache) store(token string, id *Identity) {
	key := sha256.Sum256([]byte(token))
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; !ok && len(c.entries) >= c.maxEntries {
		c.evictLocked(now)
	}
	c.entries[key] = &verifiedToken{identity: id, verifiedAt: now}
}

// forget drops token so the next request verifies it synchronously.
func (c *tokenCache) forget(token string) {
	key := sha256.Sum256([]byte(token))
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

func (c *tokenCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// evictLocked makes room for one entry: expired tokens go first, otherwise
// the oldest verification is dropped. c.mu must be held.
func (c *tokenCache) evictLocked(now time.Time) {
	var (
		oldestKey tokenDigest
		oldestAt  time.Time
		found     bool
	)
	for k, e := range c.entries {
		if e.refreshing {
			continue
		}
		if now.Sub(e.verifiedAt) >= c.ttl {
			delete(c.entries, k)
			continue
		}
		if !found || e.verifiedAt.Before(oldestAt) {
			oldestKey, oldestAt, found = k, e.verifiedAt, true
		}
	}
	if len(c.entries) >= c.maxEntries && found {
		delete(c.entries, oldestKey)
	}
}
