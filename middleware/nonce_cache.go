// middleware/nonce_cache.go
package middleware

import (
	"sync"
	"time"
)

// NonceCache is the in-process replay guard. It remembers consumed
// authorization nonces until their validBefore horizon has passed, so a
// duplicate request racing the same authorization is rejected before any
// facilitator call. Constructed once at startup and injected into the payment
// middleware — never ambient process state.
//
// This only covers a single instance; the storage-level uniqueness on
// payment_tx_hash remains the source of truth across restarts and replicas.
type NonceCache struct {
	mu      sync.Mutex
	entries map[string]time.Time // replay key -> expiry
	minTTL  time.Duration
}

// NewNonceCache creates a cache whose entries live at least minTTL, even when
// the authorization's validBefore is sooner.
func NewNonceCache(minTTL time.Duration) *NonceCache {
	return &NonceCache{
		entries: make(map[string]time.Time),
		minTTL:  minTTL,
	}
}

// Seen reports whether the key has already been consumed.
func (c *NonceCache) Seen(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	exp, ok := c.entries[key]
	if !ok {
		return false
	}
	if time.Now().After(exp) {
		delete(c.entries, key)
		return false
	}
	return true
}

// MarkUsed records the key as consumed until validBefore (or minTTL from now,
// whichever is later). Returns false if the key was already present — the
// check and the insert are one atomic step, so two racing requests cannot
// both claim the nonce.
func (c *NonceCache) MarkUsed(key string, validBefore time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if exp, ok := c.entries[key]; ok && now.Before(exp) {
		return false
	}

	exp := validBefore
	if min := now.Add(c.minTTL); exp.Before(min) {
		exp = min
	}
	c.entries[key] = exp

	c.evictExpiredLocked(now)
	return true
}

// Len returns the number of live entries (expired ones included until the
// next write evicts them).
func (c *NonceCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *NonceCache) evictExpiredLocked(now time.Time) {
	for k, exp := range c.entries {
		if now.After(exp) {
			delete(c.entries, k)
		}
	}
}
