package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Medu-coder/Area-privada-clinicas-v2/internal/logger"
	"github.com/Medu-coder/Area-privada-clinicas-v2/internal/metrics"
	"github.com/Medu-coder/Area-privada-clinicas-v2/internal/model"
	"github.com/Medu-coder/Area-privada-clinicas-v2/internal/repository"
)

// UnclaimedAppointment is a live appointment whose slot is free or missing.
type UnclaimedAppointment struct {
	AppointmentID string        `json:"appointment_id"`
	UserID        string        `json:"user_id"`
	Slot          model.SlotKey `json:"slot"`
	SlotMissing   bool          `json:"slot_missing"`
}

// DoubleBooking lists live appointments sharing one slot.
type DoubleBooking struct {
	Slot           model.SlotKey `json:"slot"`
	AppointmentIDs []string      `json:"appointment_ids"`
}

// ReconcileReport describes how far the calendar has drifted from the
// appointments and, when fixing, what was repaired.
type ReconcileReport struct {
	CheckedAt             time.Time              `json:"checked_at"`
	LiveAppointments      int                    `json:"live_appointments"`
	OccupiedSlots         int                    `json:"occupied_slots"`
	OrphanSlots           []model.SlotKey        `json:"orphan_slots"`
	UnclaimedAppointments []UnclaimedAppointment `json:"unclaimed_appointments"`
	DoubleBookings        []DoubleBooking        `json:"double_bookings"`
	Fixed                 bool                   `json:"fixed"`
	Released              int                    `json:"released"`
	Occupied              int                    `json:"occupied"`
	FixErrors             []string               `json:"fix_errors,omitempty"`
}

// Consistent reports whether nothing was found.
func (r *ReconcileReport) Consistent() bool {
	return len(r.OrphanSlots) == 0 && len(r.UnclaimedAppointments) == 0 && len(r.DoubleBookings) == 0
}

// Reconcile compares live appointments with unavailable slots. With fix,
// orphan slots are released and unclaimed appointments get their slot
// occupied when the row exists. Double bookings are only reported.
func (s *ReservationService) Reconcile(ctx context.Context, fix bool) (report *ReconcileReport, err error) {
	ctx, done := s.begin(ctx, "reconcile")
	defer func() { done(err) }()

	live, err := s.store.ListLiveAppointments(ctx)
	if err != nil {
		return nil, ErrQueryFailed.WithError(err)
	}
	occupied, err := s.store.ListOccupiedSlots(ctx)
	if err != nil {
		return nil, ErrQueryFailed.WithError(err)
	}

	report = &ReconcileReport{
		CheckedAt:             s.now().UTC(),
		LiveAppointments:      len(live),
		OccupiedSlots:         len(occupied),
		OrphanSlots:           []model.SlotKey{},
		UnclaimedAppointments: []UnclaimedAppointment{},
		DoubleBookings:        []DoubleBooking{},
	}

	bySlot := make(map[model.SlotKey][]model.Appointment)
	var order []model.SlotKey
	for _, a := range live {
		k := a.Slot()
		if _, seen := bySlot[k]; !seen {
			order = append(order, k)
		}
		bySlot[k] = append(bySlot[k], a)
	}
	taken := make(map[model.SlotKey]bool, len(occupied))
	for _, sl := range occupied {
		k := sl.Key()
		taken[k] = true
		if _, claimed := bySlot[k]; !claimed {
			report.OrphanSlots = append(report.OrphanSlots, k)
		}
	}
	var unclaimedSlots []model.SlotKey
	for _, k := range order {
		appts := bySlot[k]
		if len(appts) > 1 {
			ids := make([]string, 0, len(appts))
			for _, a := range appts {
				ids = append(ids, a.ID)
			}
			report.DoubleBookings = append(report.DoubleBookings, DoubleBooking{Slot: k, AppointmentIDs: ids})
		}
		if taken[k] {
			continue
		}
		missing := false
		if _, gerr := s.store.GetSlot(ctx, k); errors.Is(gerr, repository.ErrSlotNotFound) {
			missing = true
		} else if gerr != nil {
			return nil, ErrQueryFailed.WithError(gerr)
		}
		for _, a := range appts {
			report.UnclaimedAppointments = append(report.UnclaimedAppointments, UnclaimedAppointment{
				AppointmentID: a.ID, UserID: a.UserID, Slot: k, SlotMissing: missing,
			})
		}
		if !missing {
			unclaimedSlots = append(unclaimedSlots, k)
		}
	}

	metrics.ReconcileFindings.WithLabelValues("orphan_slot").Set(float64(len(report.OrphanSlots)))
	metrics.ReconcileFindings.WithLabelValues("unclaimed_appointment").Set(float64(len(report.UnclaimedAppointments)))
	metrics.ReconcileFindings.WithLabelValues("double_booking").Set(float64(len(report.DoubleBookings)))

	log := logger.FromContext(ctx)
	if !report.Consistent() {
		log.Warn().
			Int("orphan_slots", len(report.OrphanSlots)).
			Int("unclaimed", len(report.UnclaimedAppointments)).
			Int("double_bookings", len(report.DoubleBookings)).
			Msg("availability out of sync with appointments")
	}
	if !fix {
		return report, nil
	}

	report.Fixed = true
	for _, k := range report.OrphanSlots {
		if ferr := s.store.ReleaseSlot(ctx, k); ferr != nil && !errors.Is(ferr, repository.ErrSlotAlreadyFree) {
			report.FixErrors = append(report.FixErrors, fmt.Sprintf("release %s: %v", k, ferr))
			continue
		}
		report.Released++
	}
	for _, k := range unclaimedSlots {
		if ferr := s.store.OccupySlot(ctx, k); ferr != nil {
			report.FixErrors = append(report.FixErrors, fmt.Sprintf("occupy %s: %v", k, ferr))
			continue
		}
		report.Occupied++
	}
	log.Info().Int("released", report.Released).Int("occupied", report.Occupied).
		Int("errors", len(report.FixErrors)).Msg("reconciliation applied")
	return report, nil
}
