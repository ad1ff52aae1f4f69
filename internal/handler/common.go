package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Medu-coder/Area-privada-clinicas-v2/internal/middleware"
	"github.com/Medu-coder/Area-privada-clinicas-v2/internal/repository"
	"github.com/Medu-coder/Area-privada-clinicas-v2/internal/service"
)

// SlotsChangedFunc is called after a request changed the availability
// calendar, typically to purge cached availability responses.
type SlotsChangedFunc func(ctx context.Context)

// identity adapts the JWT subject to the service's Identity collaborator.
func identity(c echo.Context) service.Identity {
	return service.UserID(middleware.CurrentUserID(c))
}

func errorBody(code, message string) echo.Map {
	return echo.Map{"error": code, "message": message}
}

// statusFor maps reservation errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrAuthRequired):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrAppointmentNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrAppointmentNotLive),
		errors.Is(err, service.ErrSlotAlreadyTaken):
		return http.StatusConflict
	case errors.Is(err, repository.ErrAppointmentNotLive):
		return http.StatusConflict
	case errors.Is(err, repository.ErrSlotNotFound):
		return http.StatusNotFound
	case errors.Is(err, repository.ErrSlotTaken):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// reservationErrorBody renders err as {"error", "message"} plus "partial"
// when the failure left data half applied.
func reservationErrorBody(err error) echo.Map {
	var re *service.ReservationError
	if !errors.As(err, &re) {
		return errorBody("INTERNAL", "internal error")
	}
	body := errorBody(re.Code, re.Message)
	if re.Step != "" {
		body["step"] = re.Step
	}
	if re.Partial {
		body["partial"] = true
	}
	return body
}

// warningFor describes a partial failure attached to a successful response.
func warningFor(err error) echo.Map {
	var re *service.ReservationError
	if !errors.As(err, &re) {
		return nil
	}
	return echo.Map{"code": re.Code, "message": re.Message, "step": re.Step}
}
