package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/teachmate-api/internal/observability"
)

// Observability records request counters and latency for /api routes and writes one access
// log line per request. Long-lived SSE and websocket routes are skipped.
func Observability(logger zerolog.Logger) fiber.Handler {
	observability.RegisterMetrics()
	access := logger.With().Str("component", "http").Logger()

	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		if !instrumented(c.Path()) {
			return err
		}

		elapsed := time.Since(start)
		method := c.Method()
		route := routeTemplate(c)
		status := c.Response().StatusCode()
		if err != nil {
			// the app error handler has not written the status yet
			status = fiber.StatusInternalServerError
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			}
		}
		statusLabel := strconv.Itoa(status)

		observability.APIRequests().WithLabelValues(method, route, statusLabel).Inc()
		observability.APILatency().WithLabelValues(method, route).Observe(elapsed.Seconds())
		if status >= fiber.StatusBadRequest {
			observability.APIErrors().WithLabelValues(method, route, statusLabel).Inc()
		}

		var event *zerolog.Event
		switch {
		case status >= fiber.StatusInternalServerError:
			event = access.Error().Err(err)
		case status >= fiber.StatusBadRequest:
			event = access.Warn()
		default:
			event = access.Info()
		}
		event = event.
			Str("correlation_id", GetCorrelationID(c)).
			Str("method", method).
			Str("route", route).
			Int("status", status).
			Dur("latency", elapsed)
		if id, ok := c.Locals(LocalUserID).(uint); ok {
			event = event.Uint("user_id", id).Str("role", roleOf(c))
		}
		event.Msg("request")

		return err
	}
}

func instrumented(path string) bool {
	if !strings.HasPrefix(path, "/api/") {
		return false
	}
	return !strings.HasSuffix(path, "/stream") && !strings.Contains(path, "/chat/ws/")
}

func routeTemplate(c *fiber.Ctx) string {
	if r := c.Route(); r != nil && r.Path != "" {
		return r.Path
	}
	return c.Path()
}
