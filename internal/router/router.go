package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Medu-coder/Area-privada-clinicas-v2/internal/handler"
	"github.com/Medu-coder/Area-privada-clinicas-v2/internal/middleware"
	"github.com/Medu-coder/Area-privada-clinicas-v2/internal/model"
)

// RegisterRoutes registers the operational endpoints: health check and
// Prometheus metrics.
func RegisterRoutes(e *echo.Echo, h *handler.HealthHandler) {
	e.GET("/healthz", h.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// RegisterAuth registers the session endpoints under /v1/auth and the
// profile endpoint /v1/me. limiter guards the credential endpoints.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string, limiter echo.MiddlewareFunc) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register, limiter)
	g.POST("/login", a.Login, limiter)
	g.POST("/refresh", a.Refresh, limiter)
	// Logout accepts either a refresh token in the body or a bearer token,
	// so it runs without JWTAuth.
	g.POST("/logout", a.Logout)

	e.GET("/v1/me", a.Me,
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RolePatient, model.RoleStaff),
	)
}

// RegisterPublic registers unauthenticated read endpoints. cache wraps the
// availability reads.
func RegisterPublic(e *echo.Echo, av *handler.AvailabilityHandler, ap *handler.AppointmentHandler, cache echo.MiddlewareFunc) {
	g := e.Group("/v1/availability", cache)
	g.GET("/dates", av.Dates)
	g.GET("/dates/:date/hours", av.Hours)

	e.GET("/v1/appointments/reasons", ap.Reasons)
}
