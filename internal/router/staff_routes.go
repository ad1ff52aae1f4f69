package router

import (
	"github.com/labstack/echo/v4"

	"github.com/Medu-coder/Area-privada-clinicas-v2/internal/handler"
	"github.com/Medu-coder/Area-privada-clinicas-v2/internal/middleware"
	"github.com/Medu-coder/Area-privada-clinicas-v2/internal/model"
)

// RegisterStaff registers calendar management endpoints for STAFF users.
func RegisterStaff(e *echo.Echo, h *handler.StaffHandler, jwtSecret string) {
	g := e.Group(
		"/v1/staff",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleStaff),
	)
	g.POST("/slots", h.SeedSlots)
	g.GET("/reconcile", h.Reconcile)
	g.POST("/reconcile", h.Reconcile)
}
