package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fixedClock(rl *RateLimiter, at *time.Time) {
	rl.now = func() time.Time { return *at }
}

func TestAllowExhaustsBurst(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	rl := NewRateLimiterWithPolicies(map[string]Policy{
		ActionSendMessage: {Burst: 3, Every: time.Second},
	})
	fixedClock(rl, &now)

	for i := 0; i < 3; i++ {
		ok, _ := rl.Allow("alice", ActionSendMessage)
		assert.True(t, ok, "attempt %d", i)
	}

	ok, wait := rl.Allow("alice", ActionSendMessage)
	assert.False(t, ok)
	assert.Greater(t, wait, time.Duration(0))
	assert.LessOrEqual(t, wait, time.Second)

	now = now.Add(time.Second)
	ok, _ = rl.Allow("alice", ActionSendMessage)
	assert.True(t, ok, "one token refilled")
}

func TestSubjectsAndActionsAreIndependent(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	rl := NewRateLimiterWithPolicies(map[string]Policy{
		ActionSendMessage: {Burst: 1, Every: time.Minute},
	})
	fixedClock(rl, &now)

	ok, _ := rl.Allow("alice", ActionSendMessage)
	assert.True(t, ok)
	ok, _ = rl.Allow("alice", ActionSendMessage)
	assert.False(t, ok)

	ok, _ = rl.Allow("bob", ActionSendMessage)
	assert.True(t, ok)
	ok, _ = rl.Allow("alice", ActionBuyListing)
	assert.True(t, ok, "unknown action falls back to the default policy")
}

func TestTokensAndCleanup(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	rl := NewRateLimiterWithPolicies(map[string]Policy{
		ActionCreateListing: {Burst: 2, Every: time.Minute},
	})
	fixedClock(rl, &now)

	tokens, burst := rl.Tokens("alice", ActionCreateListing)
	assert.Equal(t, 2, burst)
	assert.Equal(t, 2.0, tokens)

	rl.Allow("alice", ActionCreateListing)
	tokens, _ = rl.Tokens("alice", ActionCreateListing)
	assert.InDelta(t, 1.0, tokens, 0.001)

	now = now.Add(2 * time.Hour)
	rl.Cleanup(time.Hour)
	assert.Empty(t, rl.buckets)
}
