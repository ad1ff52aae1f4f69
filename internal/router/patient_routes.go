package router

import (
	"github.com/labstack/echo/v4"

	"github.com/Medu-coder/Area-privada-clinicas-v2/internal/handler"
	"github.com/Medu-coder/Area-privada-clinicas-v2/internal/middleware"
	"github.com/Medu-coder/Area-privada-clinicas-v2/internal/model"
)

// RegisterPatient registers the appointment endpoints. All routes require a
// valid JWT with the PATIENT role; mutations also pass through limiter.
func RegisterPatient(e *echo.Echo, h *handler.AppointmentHandler, jwtSecret string, limiter echo.MiddlewareFunc) {
	g := e.Group(
		"/v1/appointments",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RolePatient),
	)
	g.GET("", h.List)
	g.POST("", h.Book, limiter)
	g.PUT("/:id", h.Reschedule, limiter)
	g.DELETE("/:id", h.Cancel, limiter)
}
