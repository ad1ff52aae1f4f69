package service

import (
	"errors"
	"fmt"
)

// ReservationError is the failure type of every reservation operation. Code
// identifies the failed step, Err carries the underlying store error and
// Partial marks a failure after the primary mutation already committed.
type ReservationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Step    string `json:"step,omitempty"`
	Partial bool   `json:"partial,omitempty"`
	Err     error  `json:"-"`
}

func (e *ReservationError) Error() string {
	msg := e.Code + ": " + e.Message
	if e.Partial {
		msg += " (partial)"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *ReservationError) Unwrap() error { return e.Err }

// Is matches any ReservationError with the same code, so the package
// sentinels work with errors.Is after WithError copies.
func (e *ReservationError) Is(target error) bool {
	t, ok := target.(*ReservationError)
	return ok && t.Code == e.Code
}

// WithError returns a copy carrying err.
func (e *ReservationError) WithError(err error) *ReservationError {
	c := *e
	c.Err = err
	return &c
}

// WithMessage returns a copy with a more specific message.
func (e *ReservationError) WithMessage(msg string) *ReservationError {
	c := *e
	c.Message = msg
	return &c
}

// AsPartial returns a copy flagged as partial.
func (e *ReservationError) AsPartial() *ReservationError {
	c := *e
	c.Partial = true
	return &c
}

// Steps of the reservation protocol, reported in ReservationError.Step.
const (
	StepInsert       = "insert_appointment"
	StepOccupyNew    = "occupy_new_slot"
	StepFreeOld      = "free_old_slot"
	StepUpdate       = "update_appointment"
	StepCancelStatus = "cancel_status"
	StepLoad         = "load_appointment"
	StepQuery        = "query"
)

var (
	ErrAuthRequired = &ReservationError{
		Code:    "AUTH_REQUIRED",
		Message: "authentication required",
	}
	ErrInvalidRequest = &ReservationError{
		Code:    "INVALID_REQUEST",
		Message: "invalid request",
	}
	ErrAppointmentNotFound = &ReservationError{
		Code:    "APPOINTMENT_NOT_FOUND",
		Message: "appointment not found",
		Step:    StepLoad,
	}
	ErrAppointmentNotLive = &ReservationError{
		Code:    "APPOINTMENT_NOT_LIVE",
		Message: "appointment is already cancelled",
		Step:    StepLoad,
	}
	ErrBookingFailed = &ReservationError{
		Code:    "BOOKING_FAILED",
		Message: "could not book the appointment",
		Step:    StepInsert,
	}
	ErrSlotAlreadyTaken = &ReservationError{
		Code:    "SLOT_ALREADY_TAKEN",
		Message: "the slot is no longer available",
		Step:    StepOccupyNew,
	}
	ErrFreeOldSlotFailed = &ReservationError{
		Code:    "FREE_OLD_SLOT_FAILED",
		Message: "could not free the previous slot",
		Step:    StepFreeOld,
	}
	ErrOccupyNewSlotFailed = &ReservationError{
		Code:    "OCCUPY_NEW_SLOT_FAILED",
		Message: "could not reserve the new slot",
		Step:    StepOccupyNew,
	}
	ErrAppointmentUpdateFailed = &ReservationError{
		Code:    "APPOINTMENT_UPDATE_FAILED",
		Message: "could not update the appointment",
		Step:    StepUpdate,
	}
	ErrCancelFailed = &ReservationError{
		Code:    "CANCEL_FAILED",
		Message: "could not cancel the appointment",
		Step:    StepCancelStatus,
	}
	ErrQueryFailed = &ReservationError{
		Code:    "QUERY_FAILED",
		Message: "could not load data",
		Step:    StepQuery,
	}
)

// IsPartial reports whether err is a partial reservation failure.
func IsPartial(err error) bool {
	var re *ReservationError
	return errors.As(err, &re) && re.Partial
}

// Code returns the reservation error code of err, or "" for other errors.
func Code(err error) string {
	var re *ReservationError
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}
