package security

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"
)

// ScanThrottle caps scan attempts per client IP over a sliding window,
// backed by Redis INCR+EXPIRE. Redis trouble fails open: a broken limiter
// must not take the scanner down with it.
type ScanThrottle struct {
	redis  *redis.Client
	limit  int64
	window time.Duration
}

func NewScanThrottle(redisClient *redis.Client, limit int, window time.Duration) *ScanThrottle {
	return &ScanThrottle{
		redis:  redisClient,
		limit:  int64(limit),
		window: window,
	}
}

func (t *ScanThrottle) Allow(ctx context.Context, ip string) bool {
	key := fmt.Sprintf("scanlimit:%s", ip)

	count, err := t.redis.Incr(ctx, key).Result()
	if err != nil {
		return true
	}
	if count == 1 {
		if err := t.redis.Expire(ctx, key, t.window).Err(); err != nil {
			// A counter without a TTL would throttle the IP forever.
			t.redis.Del(ctx, key)
		}
	}
	return count <= t.limit
}

// Middleware rejects over-limit scan requests with 429.
func (t *ScanThrottle) Middleware() func(e *core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		if !t.Allow(e.Request.Context(), e.RealIP()) {
			return e.JSON(http.StatusTooManyRequests, map[string]string{
				"error": "Too many scan attempts. Please slow down.",
			})
		}
		return e.Next()
	}
}
