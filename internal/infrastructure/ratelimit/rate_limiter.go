package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Actions with their own budgets. Anything else gets DefaultPolicy.
const (
	ActionSendMessage   = "send_message"
	ActionCreateListing = "create_listing"
	ActionBuyListing    = "buy_listing"
	ActionAuth          = "auth"
)

// Policy is a token bucket: Burst tokens, refilled one every Every.
type Policy struct {
	Burst int
	Every time.Duration
}

var DefaultPolicy = Policy{Burst: 20, Every: 3 * time.Second}

// DefaultPolicies mirrors what the marketplace UI can reasonably produce.
var DefaultPolicies = map[string]Policy{
	// 10 messages per minute
	ActionSendMessage: {Burst: 10, Every: 6 * time.Second},
	// 5 listings per 10 minutes
	ActionCreateListing: {Burst: 5, Every: 2 * time.Minute},
	ActionBuyListing:    {Burst: 5, Every: 12 * time.Second},
	// sign-in / sign-up attempts per client IP
	ActionAuth: {Burst: 10, Every: 30 * time.Second},
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one bucket per subject:action pair.
type RateLimiter struct {
	policies map[string]Policy
	buckets  map[string]*bucket
	mutex    sync.Mutex
	now      func() time.Time
}

func NewRateLimiter() *RateLimiter {
	return NewRateLimiterWithPolicies(DefaultPolicies)
}

func NewRateLimiterWithPolicies(policies map[string]Policy) *RateLimiter {
	return &RateLimiter{
		policies: policies,
		buckets:  make(map[string]*bucket),
		now:      time.Now,
	}
}

// Allow consumes a token for subject performing action. When the bucket is
// empty it reports how long until the next token is available.
func (rl *RateLimiter) Allow(subject, action string) (bool, time.Duration) {
	now := rl.now()
	b := rl.bucket(subject, action, now)

	r := b.limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, 0
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// Tokens reports the tokens left for subject:action, or the full burst when the
// pair has not been seen yet.
func (rl *RateLimiter) Tokens(subject, action string) (tokens float64, burst int) {
	key := subject + ":" + action

	rl.mutex.Lock()
	b, ok := rl.buckets[key]
	rl.mutex.Unlock()

	policy := rl.policy(action)
	if !ok {
		return float64(policy.Burst), policy.Burst
	}
	return b.limiter.TokensAt(rl.now()), policy.Burst
}

func (rl *RateLimiter) bucket(subject, action string, now time.Time) *bucket {
	key := subject + ":" + action

	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	b, ok := rl.buckets[key]
	if !ok {
		policy := rl.policy(action)
		b = &bucket{limiter: rate.NewLimiter(rate.Every(policy.Every), policy.Burst)}
		rl.buckets[key] = b
	}
	b.lastSeen = now
	return b
}

func (rl *RateLimiter) policy(action string) Policy {
	if p, ok := rl.policies[action]; ok {
		return p
	}
	return DefaultPolicy
}

// Cleanup drops buckets idle for longer than maxIdle.
func (rl *RateLimiter) Cleanup(maxIdle time.Duration) {
	now := rl.now()

	rl.mutex.Lock()
	defer rl.mutex.Unlock()
	for key, b := range rl.buckets {
		if now.Sub(b.lastSeen) > maxIdle {
			delete(rl.buckets, key)
		}
	}
}

// StartCleanupRoutine prunes idle buckets every interval until stop is closed.
func (rl *RateLimiter) StartCleanupRoutine(interval time.Duration, stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				rl.Cleanup(time.Hour)
			case <-stop:
				return
			}
		}
	}()
}
