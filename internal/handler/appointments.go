package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Medu-coder/Area-privada-clinicas-v2/internal/logger"
	"github.com/Medu-coder/Area-privada-clinicas-v2/internal/model"
	"github.com/Medu-coder/Area-privada-clinicas-v2/internal/repository"
	"github.com/Medu-coder/Area-privada-clinicas-v2/internal/service"
)

// AppointmentHandler serves the patient's appointment endpoints. All
// routes except Reasons expect JWTAuth to have run.
type AppointmentHandler struct {
	Svc            *service.ReservationService
	OnSlotsChanged SlotsChangedFunc
}

func NewAppointmentHandler(svc *service.ReservationService, onChange SlotsChangedFunc) *AppointmentHandler {
	if svc == nil {
		panic("nil service passed to NewAppointmentHandler")
	}
	return &AppointmentHandler{Svc: svc, OnSlotsChanged: onChange}
}

type bookReq struct {
	Date   string `json:"date"`
	Hour   string `json:"hour"`
	Reason string `json:"reason"`
}

type rescheduleReq struct {
	OldDate string `json:"old_date"`
	OldHour string `json:"old_hour"`
	NewDate string `json:"new_date"`
	NewHour string `json:"new_hour"`
	Reason  string `json:"reason"`
}

// List handles GET /v1/appointments. On failure the list is still present
// (empty) next to the error.
func (h *AppointmentHandler) List(c echo.Context) error {
	list, err := h.Svc.ListActiveAppointments(c.Request().Context(), identity(c))
	views := make([]model.AppointmentView, 0, len(list))
	for _, a := range list {
		views = append(views, a.View())
	}
	if err != nil {
		body := reservationErrorBody(err)
		body["appointments"] = views
		return c.JSON(statusFor(err), body)
	}
	return c.JSON(http.StatusOK, echo.Map{"appointments": views})
}

// Book handles POST /v1/appointments.
func (h *AppointmentHandler) Book(c echo.Context) error {
	var req bookReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("INVALID_REQUEST", "invalid body"))
	}
	appt, err := h.Svc.BookAppointment(c.Request().Context(), identity(c), service.BookRequest{
		Date:   req.Date,
		Hour:   req.Hour,
		Reason: req.Reason,
	})
	return h.respond(c, http.StatusCreated, appt, err)
}

// Reschedule handles PUT /v1/appointments/:id.
func (h *AppointmentHandler) Reschedule(c echo.Context) error {
	var req rescheduleReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("INVALID_REQUEST", "invalid body"))
	}
	appt, err := h.Svc.RescheduleAppointment(c.Request().Context(), identity(c), service.RescheduleRequest{
		AppointmentID: c.Param("id"),
		OldDate:       req.OldDate,
		OldHour:       req.OldHour,
		NewDate:       req.NewDate,
		NewHour:       req.NewHour,
		NewReason:     req.Reason,
	})
	return h.respond(c, http.StatusOK, appt, err)
}

// Cancel handles DELETE /v1/appointments/:id.
func (h *AppointmentHandler) Cancel(c echo.Context) error {
	appt, err := h.Svc.CancelAppointment(c.Request().Context(), identity(c), c.Param("id"))
	return h.respond(c, http.StatusOK, appt, err)
}

// Reasons handles GET /v1/appointments/reasons.
func (h *AppointmentHandler) Reasons(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"reasons": model.Reasons})
}

// respond writes the outcome of a mutation. A partial failure that still
// produced an appointment is reported as success with a warning.
func (h *AppointmentHandler) respond(c echo.Context, okStatus int, appt *model.Appointment, err error) error {
	ctx := c.Request().Context()
	if err != nil && (appt == nil || !service.IsPartial(err)) {
		// A taken slot means cached availability offered it; drop the cache.
		if service.IsPartial(err) || errors.Is(err, repository.ErrSlotTaken) {
			h.slotsChanged(ctx)
		}
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			logger.FromContext(ctx).Error().Err(err).Msg("appointment request failed")
		}
		return c.JSON(status, reservationErrorBody(err))
	}
	h.slotsChanged(ctx)
	body := echo.Map{"appointment": appt.View()}
	if err != nil {
		logger.FromContext(ctx).Warn().Err(err).Str("appointment_id", appt.ID).Msg("appointment saved with warning")
		body["warning"] = warningFor(err)
	}
	return c.JSON(okStatus, body)
}

func (h *AppointmentHandler) slotsChanged(ctx context.Context) {
	if h.OnSlotsChanged != nil {
		h.OnSlotsChanged(context.WithoutCancel(ctx))
	}
}
