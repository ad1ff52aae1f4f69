// Package queue carries appointment lifecycle events over RabbitMQ: the
// payload, a publisher the reservation service notifies, and a consumer that
// appends every event to an audit log.
package queue

// Event types.
const (
	EventBooked      = "appointment.booked"
	EventRescheduled = "appointment.rescheduled"
	EventCancelled   = "appointment.cancelled"
)

// AppointmentEvent is published after a reservation operation commits. It
// carries enough for downstream consumers to log or notify without
// querying the database. Partial is set when the paired slot flip failed.
type AppointmentEvent struct {
	Type          string `json:"type"`
	AppointmentID string `json:"appointment_id"`
	UserID        string `json:"user_id"`
	Date          string `json:"date"`
	Hour          string `json:"hour"`
	Reason        string `json:"reason"`
	Status        string `json:"status"`
	PreviousDate  string `json:"previous_date,omitempty"`
	PreviousHour  string `json:"previous_hour,omitempty"`
	Partial       bool   `json:"partial,omitempty"`
	OccurredAt    string `json:"occurred_at"`
}
