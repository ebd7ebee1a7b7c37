package ratelimit

import (
	"sync"
	"time"
)

// TokenBucket is a refilling bucket keyed per user and action.
type TokenBucket struct {
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time
	mu         sync.Mutex
}

func NewTokenBucket(maxTokens, refillRate float64) *TokenBucket {
	return &TokenBucket{
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(tb.lastRefill).Seconds()
	tb.tokens += elapsed * tb.refillRate
	if tb.tokens > tb.maxTokens {
		tb.tokens = tb.maxTokens
	}
	tb.lastRefill = now

	if tb.tokens >= 1 {
		tb.tokens--
		return true
	}
	return false
}

// Limit describes one action's budget.
type Limit struct {
	Burst float64
	Rate  float64
}

// RateLimiter holds a bucket per (user, action) pair. Buckets idle beyond
// bucketTTL are pruned by a background sweep.
type RateLimiter struct {
	limits  map[string]Limit
	buckets map[string]*bucketEntry
	mu      sync.Mutex
}

type bucketEntry struct {
	bucket   *TokenBucket
	lastSeen time.Time
}

const bucketTTL = 10 * time.Minute

func NewRateLimiter(limits map[string]Limit) *RateLimiter {
	rl := &RateLimiter{
		limits:  limits,
		buckets: make(map[string]*bucketEntry),
	}
	go rl.sweep()
	return rl
}

// Allow reports whether userID may perform action now. Unknown actions are
// never limited.
func (rl *RateLimiter) Allow(userID, action string) bool {
	limit, ok := rl.limits[action]
	if !ok {
		return true
	}

	key := userID + ":" + action
	rl.mu.Lock()
	entry, ok := rl.buckets[key]
	if !ok {
		entry = &bucketEntry{bucket: NewTokenBucket(limit.Burst, limit.Rate)}
		rl.buckets[key] = entry
	}
	entry.lastSeen = time.Now()
	rl.mu.Unlock()

	return entry.bucket.Allow()
}

func (rl *RateLimiter) sweep() {
	ticker := time.NewTicker(bucketTTL)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-bucketTTL)
		rl.mu.Lock()
		for key, entry := range rl.buckets {
			if entry.lastSeen.Before(cutoff) {
				delete(rl.buckets, key)
			}
		}
		rl.mu.Unlock()
	}
}
