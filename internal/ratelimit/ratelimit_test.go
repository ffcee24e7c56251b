package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/nexiath/sovera/pkg/logger"
)

func TestWindowKey(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)

	key := windowKey(7, now)
	sameWindow := windowKey(7, now.Add(20*time.Minute))
	nextWindow := windowKey(7, now.Add(time.Hour))
	otherProject := windowKey(8, now)

	assert.Equal(t, key, sameWindow, "requests in the same hour share a counter")
	assert.NotEqual(t, key, nextWindow, "a new hour starts a new counter")
	assert.NotEqual(t, key, otherProject, "projects are counted separately")
}

func TestAllowWithoutRedis(t *testing.T) {
	limiter := New(nil, logger.New("ratelimit-test", "dev"))

	allowed, _ := limiter.Allow(context.Background(), 1, 10)
	assert.True(t, allowed, "a disabled limiter must not block requests")
}

func TestAllowZeroQuota(t *testing.T) {
	limiter := New(nil, logger.New("ratelimit-test", "dev"))

	// Zero or negative quota means unlimited, not blocked.
	allowed, _ := limiter.Allow(context.Background(), 1, 0)
	assert.True(t, allowed)
}
