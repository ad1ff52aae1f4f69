// Package repository implements the data store behind the clinic portal:
// appointments, the availability calendar, users and refresh tokens. The
// sentinel values below let the reservation service tell apart the ways a
// conditional slot flip or an appointment lookup can fail.
package repository

import "errors"

// ErrSlotNotFound is returned when no availability row exists for the
// requested (date, hour).
var ErrSlotNotFound = errors.New("slot not found")

// ErrSlotTaken is returned when occupying a slot that is already
// unavailable.
var ErrSlotTaken = errors.New("slot already taken")

// ErrSlotAlreadyFree is returned when releasing a slot that is already
// available.
var ErrSlotAlreadyFree = errors.New("slot already free")

// ErrAppointmentNotFound is returned when no appointment matches the id.
var ErrAppointmentNotFound = errors.New("appointment not found")

// ErrAppointmentNotLive is returned by conditional status updates when the
// appointment is no longer pending or confirmed.
var ErrAppointmentNotLive = errors.New("appointment is not live")

// ErrEmailExists is returned when registering an email twice.
var ErrEmailExists = errors.New("email already exists")

// ErrUserNotFound is returned when no user matches.
var ErrUserNotFound = errors.New("user not found")
