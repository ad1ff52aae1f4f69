package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Medu-coder/Area-privada-clinicas-v2/internal/logger"
	"github.com/Medu-coder/Area-privada-clinicas-v2/internal/middleware"
	"github.com/Medu-coder/Area-privada-clinicas-v2/internal/service"
)

// StaffHandler manages the calendar itself: publishing slots and repairing
// drift between slots and appointments.
type StaffHandler struct {
	Svc            *service.ReservationService
	OnSlotsChanged SlotsChangedFunc
}

func NewStaffHandler(svc *service.ReservationService, onChange SlotsChangedFunc) *StaffHandler {
	return &StaffHandler{Svc: svc, OnSlotsChanged: onChange}
}

// SeedSlots handles POST /v1/staff/slots.
func (h *StaffHandler) SeedSlots(c echo.Context) error {
	var req service.SeedRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("INVALID_REQUEST", "invalid body"))
	}
	ctx := c.Request().Context()
	created, err := h.Svc.SeedSlots(ctx, req)
	if created > 0 && h.OnSlotsChanged != nil {
		h.OnSlotsChanged(ctx)
	}
	if err != nil {
		body := reservationErrorBody(err)
		body["created"] = created
		return c.JSON(statusFor(err), body)
	}
	logger.FromContext(ctx).Info().Str("staff_id", middleware.CurrentUserID(c)).Int("created", created).Msg("slots published")
	return c.JSON(http.StatusCreated, echo.Map{"created": created})
}

// Reconcile handles GET (report only) and POST (report and fix)
// /v1/staff/reconcile.
func (h *StaffHandler) Reconcile(c echo.Context) error {
	fix := c.Request().Method == http.MethodPost
	ctx := c.Request().Context()
	report, err := h.Svc.Reconcile(ctx, fix)
	if err != nil {
		return c.JSON(statusFor(err), reservationErrorBody(err))
	}
	if fix && report.Released+report.Occupied > 0 && h.OnSlotsChanged != nil {
		h.OnSlotsChanged(ctx)
	}
	return c.JSON(http.StatusOK, echo.Map{"consistent": report.Consistent(), "report": report})
}
