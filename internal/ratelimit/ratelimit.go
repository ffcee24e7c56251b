package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nexiath/sovera/pkg/logger"
)

// window is the fixed accounting interval for project quotas.
const window = time.Hour

// Limiter enforces per-project request quotas with a fixed window counter
// in Redis. When Redis is unreachable the limiter fails open: losing rate
// accounting must not take the API down with it.
type Limiter struct {
	client *redis.Client
	logger *logger.Logger
}

// New creates a limiter. A nil client disables limiting entirely.
func New(client *redis.Client, log *logger.Logger) *Limiter {
	return &Limiter{client: client, logger: log}
}

func windowKey(projectID int64, now time.Time) string {
	return fmt.Sprintf("ratelimit:%d:%d", projectID, now.Unix()/int64(window.Seconds()))
}

// Allow counts one request against the project's quota and reports whether
// it fits. remaining is the number of requests left in the current window.
func (l *Limiter) Allow(ctx context.Context, projectID int64, quota int) (allowed bool, remaining int) {
	if l.client == nil || quota <= 0 {
		return true, 0
	}

	key := windowKey(projectID, time.Now())

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		l.logger.Warnf("Rate limit check failed for project %d, allowing request: %v", projectID, err)
		return true, 0
	}

	count := int(incr.Val())
	if count > quota {
		return false, 0
	}
	return true, quota - count
}
