package middleware

import (
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Medu-coder/Area-privada-clinicas-v2/internal/logger"
	"github.com/Medu-coder/Area-privada-clinicas-v2/internal/metrics"
)

// RequestLogger tags each request with an id (reusing X-Request-ID when the
// client sends one), logs it on completion and counts it.
func RequestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			id := req.Header.Get(echo.HeaderXRequestID)
			if id == "" {
				id = uuid.NewString()
			}
			c.Response().Header().Set(echo.HeaderXRequestID, id)
			c.SetRequest(req.WithContext(logger.WithRequestID(req.Context(), id)))

			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			status := c.Response().Status
			route := c.Path()
			metrics.HTTPRequests.WithLabelValues(req.Method, route, strconv.Itoa(status)).Inc()

			ev := logger.FromContext(c.Request().Context()).Info()
			if status >= 500 {
				ev = logger.FromContext(c.Request().Context()).Error().Err(err)
			}
			ev.Str("method", req.Method).
				Str("route", route).
				Int("status", status).
				Dur("latency", time.Since(start)).
				Str("user_id", CurrentUserID(c)).
				Msg("http request")
			return nil
		}
	}
}
