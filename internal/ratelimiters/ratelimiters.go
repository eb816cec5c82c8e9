// Package ratelimiters provides in-memory per-key rate limiters for the
// bot's inbound surfaces.
package ratelimiters

import (
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// limits
const (
	botUpdateLimitPerSecond            = 2
	oauthRedirectRequestLimitPerMinute = 3
)

// entryTTL is how long an idle key keeps its bucket
const entryTTL = 5 * time.Minute

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// keyedLimiter tracks token buckets per key, expiring idle ones
type keyedLimiter struct {
	mu      sync.Mutex
	entries map[string]*entry
	limit   rate.Limit
	burst   int
	now     func() time.Time
}

func newKeyedLimiter(limit rate.Limit, burst int) *keyedLimiter {
	return &keyedLimiter{
		entries: make(map[string]*entry),
		limit:   limit,
		burst:   burst,
		now:     time.Now,
	}
}

// allow reports whether an event for the given key may proceed
func (l *keyedLimiter) allow(key string) bool {
	now := l.now()

	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[key] = e
	}
	e.lastSeen = now
	l.gcLocked(now)
	l.mu.Unlock()

	return e.limiter.Allow()
}

func (l *keyedLimiter) gcLocked(now time.Time) {
	for key, e := range l.entries {
		if now.Sub(e.lastSeen) > entryTTL {
			delete(l.entries, key)
		}
	}
}

var (
	botUpdateLimiter     = newKeyedLimiter(rate.Limit(botUpdateLimitPerSecond), botUpdateLimitPerSecond)
	oauthRedirectLimiter = newKeyedLimiter(rate.Every(time.Minute/oauthRedirectRequestLimitPerMinute), oauthRedirectRequestLimitPerMinute)
)

// BotUpdateAllowed checks if an incoming bot Update from a user with the
// given ID is allowed to get processed
func BotUpdateAllowed(userID int64) bool {
	return botUpdateLimiter.allow(strconv.FormatInt(userID, 10))
}

// OAuthRedirectRequestAllowed checks if an incoming OAuth redirect request
// from the given IP address is allowed to get processed
func OAuthRedirectRequestAllowed(IP string) bool {
	return oauthRedirectLimiter.allow(IP)
}
