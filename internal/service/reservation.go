// Package service implements the slot reservation protocol: booking,
// rescheduling and cancelling appointments while keeping the availability
// calendar consistent with the set of live appointments.
package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Medu-coder/Area-privada-clinicas-v2/internal/logger"
	"github.com/Medu-coder/Area-privada-clinicas-v2/internal/metrics"
	"github.com/Medu-coder/Area-privada-clinicas-v2/internal/model"
	"github.com/Medu-coder/Area-privada-clinicas-v2/internal/queue"
	"github.com/Medu-coder/Area-privada-clinicas-v2/internal/repository"
)

// User is the authenticated caller.
type User struct {
	ID string
}

// Identity supplies the caller of an operation.
type Identity interface {
	CurrentUser() (User, bool)
}

// UserID is an Identity for an already authenticated user id. The empty
// value means nobody is signed in.
type UserID string

func (u UserID) CurrentUser() (User, bool) {
	if u == "" {
		return User{}, false
	}
	return User{ID: string(u)}, true
}

// Notifier receives lifecycle events after an operation commits. It must
// not block and its failures are not reported back.
type Notifier interface {
	Notify(ctx context.Context, ev queue.AppointmentEvent)
}

// Mode selects how the steps of an operation are applied.
type Mode string

const (
	// ModeAtomic runs all steps of an operation in one transaction.
	ModeAtomic Mode = "atomic"
	// ModeSequential applies steps one by one, compensating where it can
	// and reporting partial failures where it cannot.
	ModeSequential Mode = "sequential"
)

// Options configures a ReservationService. Zero values get defaults.
type Options struct {
	Mode        Mode
	Timeout     time.Duration
	SlotMinutes int
	Notifier    Notifier
	Now         func() time.Time
}

// ReservationService owns the invariant: every live appointment holds
// exactly one unavailable slot and every unavailable slot belongs to
// exactly one live appointment.
type ReservationService struct {
	store       repository.Store
	mode        Mode
	timeout     time.Duration
	slotMinutes int
	notifier    Notifier
	now         func() time.Time
}

// NewReservationService wires the service to its data store.
func NewReservationService(store repository.Store, opts Options) *ReservationService {
	s := &ReservationService{
		store:       store,
		mode:        opts.Mode,
		timeout:     opts.Timeout,
		slotMinutes: opts.SlotMinutes,
		notifier:    opts.Notifier,
		now:         opts.Now,
	}
	if s.mode != ModeSequential {
		s.mode = ModeAtomic
	}
	if s.timeout <= 0 {
		s.timeout = 5 * time.Second
	}
	if s.slotMinutes <= 0 {
		s.slotMinutes = 30
	}
	if s.notifier == nil {
		s.notifier = queue.LogNotifier{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Mode reports the configured execution mode.
func (s *ReservationService) Mode() Mode { return s.mode }

// SlotMinutes reports the slot grid step.
func (s *ReservationService) SlotMinutes() int { return s.slotMinutes }

// BookRequest asks for one slot.
type BookRequest struct {
	Date   string // YYYY-MM-DD
	Hour   string // HH:MM or HH:MM:SS
	Reason string
}

// BookAppointment creates a pending appointment for the caller and claims
// its slot.
func (s *ReservationService) BookAppointment(ctx context.Context, who Identity, req BookRequest) (appt *model.Appointment, err error) {
	ctx, done := s.begin(ctx, "book")
	defer func() { done(err) }()

	user, ok := currentUser(who)
	if !ok {
		return nil, ErrAuthRequired
	}
	slot, err := s.parseSlot(req.Date, req.Hour)
	if err != nil {
		return nil, err
	}
	reason, rerr := model.NormalizeReason(req.Reason)
	if rerr != nil {
		return nil, ErrInvalidRequest.WithMessage(rerr.Error())
	}
	at, _ := slot.Time()
	appt = &model.Appointment{
		ID:     uuid.NewString(),
		UserID: user.ID,
		Date:   at,
		Reason: reason,
		Status: model.StatusPending,
	}
	log := opLogger(ctx, "book", appt.ID, slot)

	if s.mode == ModeAtomic {
		err = s.store.WithinTx(ctx, func(st repository.Store) error {
			if err := st.CreateAppointment(ctx, appt); err != nil {
				return ErrBookingFailed.WithError(err)
			}
			if err := st.OccupySlot(ctx, slot); err != nil {
				return bookingOccupyFailure(err)
			}
			return nil
		})
		if err != nil {
			return nil, asReservationError(err, ErrBookingFailed)
		}
		s.notify(ctx, queue.EventBooked, appt, nil, false)
		return appt, nil
	}

	if err := s.store.CreateAppointment(ctx, appt); err != nil {
		return nil, ErrBookingFailed.WithError(err)
	}
	if oerr := s.store.OccupySlot(ctx, slot); oerr != nil {
		failure := bookingOccupyFailure(oerr)
		if errors.Is(oerr, repository.ErrSlotTaken) || errors.Is(oerr, repository.ErrSlotNotFound) {
			// The slot was never ours: retire the appointment we just made.
			if cerr := s.store.CancelAppointment(ctx, appt.ID); cerr != nil {
				log.Error().Err(cerr).Msg("compensating cancel failed; live appointment without slot")
				metrics.Inconsistencies.WithLabelValues("book", StepInsert).Inc()
				return nil, failure.WithError(errors.Join(oerr, cerr)).AsPartial()
			}
			return nil, failure
		}
		// Outcome of the slot update is unknown; keep the appointment and
		// let the reconciler settle the slot.
		log.Warn().Err(oerr).Msg("slot update failed after appointment insert")
		metrics.Inconsistencies.WithLabelValues("book", StepOccupyNew).Inc()
		s.notify(ctx, queue.EventBooked, appt, nil, true)
		return appt, failure.AsPartial()
	}
	s.notify(ctx, queue.EventBooked, appt, nil, false)
	return appt, nil
}

// RescheduleRequest moves an appointment to a new slot. OldDate/OldHour are
// optional; when given they must match the stored appointment. An empty
// NewReason keeps the current reason.
type RescheduleRequest struct {
	AppointmentID string
	OldDate       string
	OldHour       string
	NewDate       string
	NewHour       string
	NewReason     string
}

// RescheduleAppointment frees the old slot, claims the new one and then
// updates the appointment. Status is not changed.
func (s *ReservationService) RescheduleAppointment(ctx context.Context, who Identity, req RescheduleRequest) (appt *model.Appointment, err error) {
	ctx, done := s.begin(ctx, "reschedule")
	defer func() { done(err) }()

	user, ok := currentUser(who)
	if !ok {
		return nil, ErrAuthRequired
	}
	newSlot, err := s.parseSlot(req.NewDate, req.NewHour)
	if err != nil {
		return nil, err
	}
	var newReason string
	if strings.TrimSpace(req.NewReason) != "" {
		r, rerr := model.NormalizeReason(req.NewReason)
		if rerr != nil {
			return nil, ErrInvalidRequest.WithMessage(rerr.Error())
		}
		newReason = r
	}
	var expectedOld *model.SlotKey
	if req.OldDate != "" || req.OldHour != "" {
		k, perr := model.ParseSlot(req.OldDate, req.OldHour)
		if perr != nil {
			return nil, ErrInvalidRequest.WithMessage(perr.Error())
		}
		expectedOld = &k
	}
	newAt, _ := newSlot.Time()

	var prev model.SlotKey
	apply := func(st repository.Store) error {
		cur, err := loadOwned(ctx, st, user, req.AppointmentID)
		if err != nil {
			return err
		}
		if !cur.IsLive() {
			return ErrAppointmentNotLive
		}
		oldSlot := cur.Slot()
		if expectedOld != nil && *expectedOld != oldSlot {
			return ErrInvalidRequest.WithMessage("appointment has changed since it was loaded")
		}
		prev = oldSlot
		reason := newReason
		if reason == "" {
			reason = cur.Reason
		}
		log := opLogger(ctx, "reschedule", cur.ID, newSlot).With().Str("old_slot", oldSlot.String()).Logger()

		moved := oldSlot != newSlot
		if moved {
			if err := s.moveSlot(ctx, st, oldSlot, newSlot, &log); err != nil {
				return err
			}
		}
		if err := st.RescheduleAppointment(ctx, cur.ID, newAt, reason); err != nil {
			failure := ErrAppointmentUpdateFailed.WithError(err)
			if s.mode == ModeSequential && moved {
				if rerr := s.moveSlot(ctx, st, newSlot, oldSlot, &log); rerr != nil {
					log.Error().Err(rerr).Msg("could not restore slots after failed appointment update")
					metrics.Inconsistencies.WithLabelValues("reschedule", StepUpdate).Inc()
					return failure.WithError(errors.Join(err, rerr)).AsPartial()
				}
			}
			return failure
		}
		cur.Date, cur.Reason, cur.UpdatedAt = newAt, reason, s.now().UTC()
		appt = cur
		return nil
	}

	if err := s.run(ctx, apply); err != nil {
		return nil, asReservationError(err, ErrAppointmentUpdateFailed)
	}
	s.notify(ctx, queue.EventRescheduled, appt, &prev, false)
	return appt, nil
}

// moveSlot releases from and claims to. In atomic mode any failure aborts
// at once and the transaction undoes the rest; in sequential mode the
// release failure is recorded, the claim is still attempted, and whichever
// step succeeded is undone before reporting.
func (s *ReservationService) moveSlot(ctx context.Context, st repository.Store, from, to model.SlotKey, log *zerolog.Logger) error {
	freeErr := releaseTolerant(ctx, st, from, log)
	if freeErr != nil && s.mode == ModeAtomic {
		return ErrFreeOldSlotFailed.WithError(freeErr)
	}
	occErr := st.OccupySlot(ctx, to)
	switch {
	case freeErr == nil && occErr == nil:
		return nil
	case occErr != nil:
		failure := ErrOccupyNewSlotFailed.WithError(errors.Join(freeErr, occErr))
		if s.mode == ModeSequential && freeErr == nil {
			if rerr := st.OccupySlot(ctx, from); rerr != nil {
				log.Error().Err(rerr).Msg("could not re-occupy previous slot")
				metrics.Inconsistencies.WithLabelValues("reschedule", StepFreeOld).Inc()
				return failure.WithError(errors.Join(occErr, rerr)).AsPartial()
			}
		}
		return failure
	default:
		// Sequential only: the new slot is ours but the old one is still
		// marked taken. Give the new one back.
		failure := ErrFreeOldSlotFailed.WithError(freeErr)
		if rerr := st.ReleaseSlot(ctx, to); rerr != nil {
			log.Error().Err(rerr).Msg("could not release new slot after failed free")
			metrics.Inconsistencies.WithLabelValues("reschedule", StepOccupyNew).Inc()
			return failure.WithError(errors.Join(freeErr, rerr)).AsPartial()
		}
		return failure
	}
}

// CancelAppointment marks a live appointment cancelled and frees its slot.
// A second cancel fails with CANCEL_FAILED and leaves the calendar alone.
func (s *ReservationService) CancelAppointment(ctx context.Context, who Identity, appointmentID string) (appt *model.Appointment, err error) {
	ctx, done := s.begin(ctx, "cancel")
	defer func() { done(err) }()

	user, ok := currentUser(who)
	if !ok {
		return nil, ErrAuthRequired
	}

	var partial *ReservationError
	apply := func(st repository.Store) error {
		cur, err := loadOwned(ctx, st, user, appointmentID)
		if err != nil {
			return err
		}
		if !cur.IsLive() {
			return ErrCancelFailed.WithMessage("appointment is already cancelled").WithError(repository.ErrAppointmentNotLive)
		}
		if err := st.CancelAppointment(ctx, cur.ID); err != nil {
			return ErrCancelFailed.WithError(err)
		}
		cur.Status, cur.UpdatedAt = model.StatusCancelled, s.now().UTC()

		slot := cur.Slot()
		log := opLogger(ctx, "cancel", cur.ID, slot)
		if rerr := releaseTolerant(ctx, st, slot, &log); rerr != nil {
			if s.mode == ModeAtomic {
				return ErrFreeOldSlotFailed.WithError(rerr)
			}
			log.Warn().Err(rerr).Msg("appointment cancelled but slot still marked taken")
			metrics.Inconsistencies.WithLabelValues("cancel", StepFreeOld).Inc()
			partial = ErrFreeOldSlotFailed.WithError(rerr).AsPartial()
		}
		appt = cur
		return nil
	}

	if err := s.run(ctx, apply); err != nil {
		return nil, asReservationError(err, ErrCancelFailed)
	}
	s.notify(ctx, queue.EventCancelled, appt, nil, partial != nil)
	if partial != nil {
		return appt, partial
	}
	return appt, nil
}

// ListActiveAppointments returns the caller's pending and confirmed
// appointments by date ascending. On failure the list is empty, never nil.
func (s *ReservationService) ListActiveAppointments(ctx context.Context, who Identity) (list []model.Appointment, err error) {
	ctx, done := s.begin(ctx, "list")
	defer func() { done(err) }()

	user, ok := currentUser(who)
	if !ok {
		return []model.Appointment{}, ErrAuthRequired
	}
	list, err = s.store.ListAppointmentsByUser(ctx, user.ID, model.LiveStatuses())
	if err != nil {
		return []model.Appointment{}, ErrQueryFailed.WithError(err)
	}
	return list, nil
}

// ListAvailableDates returns dates with at least one free slot. from and to
// are optional inclusive YYYY-MM-DD bounds.
func (s *ReservationService) ListAvailableDates(ctx context.Context, from, to string) (dates []string, err error) {
	ctx, done := s.begin(ctx, "available_dates")
	defer func() { done(err) }()

	for _, d := range []string{from, to} {
		if d == "" {
			continue
		}
		if _, perr := time.Parse(model.DateLayout, d); perr != nil {
			return []string{}, ErrInvalidRequest.WithMessage("invalid date " + d)
		}
	}
	if from != "" && to != "" && from > to {
		return []string{}, ErrInvalidRequest.WithMessage("from is after to")
	}
	dates, err = s.store.AvailableDates(ctx, from, to)
	if err != nil {
		return []string{}, ErrQueryFailed.WithError(err)
	}
	return dates, nil
}

// ListAvailableHours returns the free HH:MM hours of date, ascending and
// without duplicates.
func (s *ReservationService) ListAvailableHours(ctx context.Context, date string) (hours []string, err error) {
	ctx, done := s.begin(ctx, "available_hours")
	defer func() { done(err) }()

	if _, perr := time.Parse(model.DateLayout, date); perr != nil {
		return []string{}, ErrInvalidRequest.WithMessage("invalid date " + date)
	}
	raw, err := s.store.AvailableHours(ctx, date)
	if err != nil {
		return []string{}, ErrQueryFailed.WithError(err)
	}
	hours = make([]string, 0, len(raw))
	for _, h := range raw {
		short := model.ShortHour(h)
		if n := len(hours); n > 0 && hours[n-1] == short {
			continue
		}
		hours = append(hours, short)
	}
	return hours, nil
}

// run applies fn inside a transaction in atomic mode, directly otherwise.
func (s *ReservationService) run(ctx context.Context, fn func(repository.Store) error) error {
	if s.mode == ModeAtomic {
		return s.store.WithinTx(ctx, fn)
	}
	return fn(s.store)
}

// begin bounds the operation with the configured timeout and returns a
// completion func that records metrics.
func (s *ReservationService) begin(ctx context.Context, op string) (context.Context, func(error)) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	start := time.Now()
	return ctx, func(err error) {
		cancel()
		result := "ok"
		if err != nil {
			result = Code(err)
			if result == "" {
				result = "error"
			}
			if IsPartial(err) {
				result += "_PARTIAL"
			}
		}
		metrics.Operations.WithLabelValues(op, result).Inc()
		metrics.OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}

func (s *ReservationService) parseSlot(date, hour string) (model.SlotKey, error) {
	k, err := model.ParseSlot(date, hour)
	if err != nil {
		return model.SlotKey{}, ErrInvalidRequest.WithMessage(err.Error())
	}
	if !k.OnGrid(s.slotMinutes) {
		return model.SlotKey{}, ErrInvalidRequest.WithMessage("hour is not on the clinic's slot grid")
	}
	return k, nil
}

func (s *ReservationService) notify(ctx context.Context, typ string, a *model.Appointment, prev *model.SlotKey, partial bool) {
	k := a.Slot()
	ev := queue.AppointmentEvent{
		Type:          typ,
		AppointmentID: a.ID,
		UserID:        a.UserID,
		Date:          k.Date,
		Hour:          k.Hour,
		Reason:        a.Reason,
		Status:        a.Status,
		Partial:       partial,
		OccurredAt:    s.now().UTC().Format(time.RFC3339),
	}
	if prev != nil && *prev != k {
		ev.PreviousDate, ev.PreviousHour = prev.Date, prev.Hour
	}
	s.notifier.Notify(ctx, ev)
}

func currentUser(who Identity) (User, bool) {
	if who == nil {
		return User{}, false
	}
	u, ok := who.CurrentUser()
	if !ok || u.ID == "" {
		return User{}, false
	}
	return u, true
}

// loadOwned re-reads an appointment and hides rows of other users.
func loadOwned(ctx context.Context, st repository.Store, user User, id string) (*model.Appointment, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrInvalidRequest.WithMessage("appointment id is required")
	}
	a, err := st.GetAppointment(ctx, id)
	if errors.Is(err, repository.ErrAppointmentNotFound) {
		return nil, ErrAppointmentNotFound
	}
	if err != nil {
		e := ErrQueryFailed.WithError(err)
		e.Step = StepLoad
		return nil, e
	}
	if a.UserID != user.ID {
		return nil, ErrAppointmentNotFound
	}
	return a, nil
}

// releaseTolerant frees slot. A slot that is already free or missing has
// nothing left to release, so those outcomes count as success.
func releaseTolerant(ctx context.Context, st repository.Store, slot model.SlotKey, log *zerolog.Logger) error {
	err := st.ReleaseSlot(ctx, slot)
	if errors.Is(err, repository.ErrSlotAlreadyFree) || errors.Is(err, repository.ErrSlotNotFound) {
		log.Warn().Err(err).Str("released_slot", slot.String()).Msg("slot was not held")
		return nil
	}
	return err
}

func bookingOccupyFailure(err error) *ReservationError {
	switch {
	case errors.Is(err, repository.ErrSlotTaken):
		return ErrSlotAlreadyTaken.WithError(err)
	case errors.Is(err, repository.ErrSlotNotFound):
		e := ErrBookingFailed.WithMessage("the requested slot does not exist").WithError(err)
		e.Step = StepOccupyNew
		return e
	default:
		return ErrOccupyNewSlotFailed.WithError(err)
	}
}

// asReservationError keeps coded errors and wraps anything else (begin or
// commit failures) in fallback.
func asReservationError(err error, fallback *ReservationError) error {
	var re *ReservationError
	if errors.As(err, &re) {
		return err
	}
	return fallback.WithError(err)
}

func opLogger(ctx context.Context, op, appointmentID string, slot model.SlotKey) zerolog.Logger {
	return logger.FromContext(ctx).With().
		Str("op", op).
		Str("appointment_id", appointmentID).
		Str("slot", slot.String()).
		Logger()
}
