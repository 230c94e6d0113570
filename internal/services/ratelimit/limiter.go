// Package ratelimit provides fixed-window request throttling backed by Redis.
package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/chatforge/chat-service/internal/core/cache"
)

// Window is the fixed counting window.
const Window = time.Minute

// endpointLimits maps route prefixes to per-window request limits. Longest
// prefix wins, so the stream route is checked before the generic messages
// route.
var endpointLimits = map[string]int{
	"/api/v1/auth/register": 5,
	"/api/v1/auth/login":    10,
	"/api/v1/conversations": 30,
	"/messages":             20,
	"/messages/stream":      15,
}

// Result is the outcome of a single rate limit check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	// RetryAfter is how long until the current window may expire. Only
	// meaningful when Allowed is false.
	RetryAfter time.Duration
}

// Limiter counts requests per client per endpoint in fixed one-minute
// windows.
type Limiter struct {
	cache        cache.Cache
	defaultLimit int
}

// NewLimiter creates a limiter with the given default per-minute limit.
func NewLimiter(c cache.Cache, defaultLimit int) *Limiter {
	if defaultLimit <= 0 {
		defaultLimit = 60
	}
	return &Limiter{cache: c, defaultLimit: defaultLimit}
}

// LimitFor returns the per-window limit for a request path. Suffix rules
// cover the per-conversation message routes whose prefixes embed an ID.
func (l *Limiter) LimitFor(path string) int {
	if strings.HasSuffix(path, "/messages/stream") {
		return endpointLimits["/messages/stream"]
	}
	if strings.HasSuffix(path, "/messages") {
		return endpointLimits["/messages"]
	}

	best := ""
	for prefix := range endpointLimits {
		if strings.HasPrefix(path, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best != "" {
		return endpointLimits[best]
	}
	return l.defaultLimit
}

// Allow records one request for clientID against path and reports whether
// it fits in the current window.
//
// The counter is incremented before the check, so a burst of concurrent
// requests cannot all sneak under the limit. The window TTL is attached on
// the first increment; once the key expires, the next request starts a
// fresh window.
//
// Store errors fail open: throttling is a protection layer, not a
// correctness guarantee, and an unreachable store should not take the API
// down with it.
func (l *Limiter) Allow(ctx context.Context, clientID, path string) (*Result, error) {
	limit := l.LimitFor(path)
	key := fmt.Sprintf("rate_limit:%s:%s", clientID, path)

	count, err := l.cache.Incr(ctx, key)
	if err != nil {
		log.Warn().Err(err).Str("client", clientID).Msg("Rate limit store unavailable, allowing request")
		return &Result{Allowed: true, Limit: limit, Remaining: limit}, nil
	}

	if count == 1 {
		if _, err := l.cache.Expire(ctx, key, Window); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Failed to set rate limit window TTL")
		}
	}

	if count > int64(limit) {
		return &Result{
			Allowed:    false,
			Limit:      limit,
			Remaining:  0,
			RetryAfter: Window,
		}, nil
	}

	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return &Result{Allowed: true, Limit: limit, Remaining: remaining}, nil
}
