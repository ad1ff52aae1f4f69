package model

import (
	"fmt"
	"strings"
	"time"
)

// Appointment statuses. An appointment is created pending, may be confirmed
// by the clinic, and ends cancelled. Rows are never deleted.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
)

// Reason categories offered to patients when booking.
var Reasons = []string{"Revisión", "Limpieza", "Odontología", "General"}

// LiveStatuses lists the statuses for which an appointment holds its slot.
func LiveStatuses() []string { return []string{StatusPending, StatusConfirmed} }

// Appointment is a patient's claim on one availability slot.
//
// Fields:
//
//	ID        – UUID generated when the appointment is booked.
//	UserID    – owner of the appointment (users.id).
//	Date      – wall clock start, second precision, no timezone.
//	Reason    – free text, normally one of Reasons.
//	Status    – pending, confirmed or cancelled.
//	CreatedAt – insertion timestamp (UTC).
//	UpdatedAt – last modification timestamp (UTC).
type Appointment struct {
	ID        string    `json:"id"`         // appointments.id
	UserID    string    `json:"user_id"`    // appointments.user_id
	Date      time.Time `json:"-"`          // appointments.date
	Reason    string    `json:"reason"`     // appointments.reason
	Status    string    `json:"status"`     // appointments.status
	CreatedAt time.Time `json:"created_at"` // appointments.created_at
	UpdatedAt time.Time `json:"updated_at"` // appointments.updated_at
}

// IsLive reports whether the appointment still occupies its slot.
func (a Appointment) IsLive() bool {
	return a.Status == StatusPending || a.Status == StatusConfirmed
}

// Slot derives the availability slot the appointment occupies.
func (a Appointment) Slot() SlotKey { return SlotOf(a.Date) }

// AppointmentView is the JSON shape returned to clients. Date and hour are
// split the same way the availability calendar stores them.
type AppointmentView struct {
	ID        string `json:"id"`
	Date      string `json:"date"`
	Hour      string `json:"hour"`
	DateTime  string `json:"datetime"`
	Reason    string `json:"reason"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// View renders the appointment for API responses.
func (a Appointment) View() AppointmentView {
	k := a.Slot()
	return AppointmentView{
		ID:        a.ID,
		Date:      k.Date,
		Hour:      k.ShortHour(),
		DateTime:  a.Date.Format(DateTimeLayout),
		Reason:    a.Reason,
		Status:    a.Status,
		CreatedAt: a.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: a.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// NormalizeReason trims a reason and rejects empty values.
func NormalizeReason(reason string) (string, error) {
	r := strings.TrimSpace(reason)
	if r == "" {
		return "", fmt.Errorf("reason is required")
	}
	if len(r) > 64 {
		return "", fmt.Errorf("reason is too long")
	}
	return r, nil
}
