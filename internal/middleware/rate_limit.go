package middleware

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/noah-isme/teachmate-api/internal/utils"
)

// RateLimit caps requests per caller under the bucket name. Authenticated callers are keyed by
// account id, anonymous ones by IP. A nil storage keeps counters in process memory.
func RateLimit(bucket string, max int, window time.Duration, storage fiber.Storage) fiber.Handler {
	if max <= 0 {
		max = 10
	}
	if window <= 0 {
		window = time.Second
	}

	cfg := limiter.Config{
		Max:          max,
		Expiration:   window,
		KeyGenerator: func(c *fiber.Ctx) string { return bucket + ":" + callerKey(c) },
		LimitReached: func(c *fiber.Ctx) error {
			return utils.Fail(c, fiber.StatusTooManyRequests, "rate limit exceeded", fiber.Map{
				"bucket":         bucket,
				"retry_after_ms": window.Milliseconds(),
			})
		},
	}
	if storage != nil {
		cfg.Storage = storage
	}
	return limiter.New(cfg)
}

func callerKey(c *fiber.Ctx) string {
	if id, ok := c.Locals(LocalUserID).(uint); ok && id != 0 {
		return "user:" + strconv.FormatUint(uint64(id), 10)
	}
	return "ip:" + c.IP()
}
