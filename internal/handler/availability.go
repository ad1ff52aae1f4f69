package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Medu-coder/Area-privada-clinicas-v2/internal/service"
)

// AvailabilityHandler exposes the read side of the calendar. Responses are
// safe to cache until the next slot mutation.
type AvailabilityHandler struct {
	Svc *service.ReservationService
}

func NewAvailabilityHandler(svc *service.ReservationService) *AvailabilityHandler {
	return &AvailabilityHandler{Svc: svc}
}

// Dates handles GET /v1/availability/dates?from=&to=.
func (h *AvailabilityHandler) Dates(c echo.Context) error {
	dates, err := h.Svc.ListAvailableDates(c.Request().Context(), c.QueryParam("from"), c.QueryParam("to"))
	if err != nil {
		body := reservationErrorBody(err)
		body["dates"] = dates
		return c.JSON(statusFor(err), body)
	}
	return c.JSON(http.StatusOK, echo.Map{"dates": dates})
}

// Hours handles GET /v1/availability/dates/:date/hours.
func (h *AvailabilityHandler) Hours(c echo.Context) error {
	date := c.Param("date")
	hours, err := h.Svc.ListAvailableHours(c.Request().Context(), date)
	if err != nil {
		body := reservationErrorBody(err)
		body["hours"] = hours
		return c.JSON(statusFor(err), body)
	}
	return c.JSON(http.StatusOK, echo.Map{"date": date, "hours": hours})
}
