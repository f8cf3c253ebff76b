package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimiterAllowWithinCapacity(t *testing.T) {
	l := New()

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("client:scan", 3, 0), "request %d should pass", i+1)
	}
	assert.False(t, l.Allow("client:scan", 3, 0), "request over capacity should be denied")
}

func TestLimiterRefill(t *testing.T) {
	l := New()

	assert.True(t, l.Allow("client:scan", 1, 1000))
	assert.False(t, l.Allow("client:scan", 1, 1000))

	time.Sleep(5 * time.Millisecond)
	assert.True(t, l.Allow("client:scan", 1, 1000), "bucket should refill over time")
}

func TestLimiterKeysIndependent(t *testing.T) {
	l := New()

	assert.True(t, l.Allow("a:scan", 1, 0))
	assert.False(t, l.Allow("a:scan", 1, 0))

	assert.True(t, l.Allow("b:scan", 1, 0), "exhausting one key must not affect another")
	assert.Equal(t, 2, l.Len())
}
