package middleware

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

// NewRateLimiter creates a per-client-IP rate limiting middleware allowing
// perMinute requests each minute, backed by an in-memory store.
func NewRateLimiter(perMinute int) (gin.HandlerFunc, error) {
	if perMinute <= 0 {
		return nil, fmt.Errorf("rate limit must be positive, got %d", perMinute)
	}

	rate := limiter.Rate{
		Period: time.Minute,
		Limit:  int64(perMinute),
	}

	instance := limiter.New(memory.NewStore(), rate)
	return mgin.NewMiddleware(instance), nil
}
