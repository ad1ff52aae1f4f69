package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Medu-coder/Area-privada-clinicas-v2/internal/model"
	"github.com/doug-martin/goqu/v9"
)

// AppointmentRepo provides access to the appointments table.
type AppointmentRepo struct {
	db      DBTX
	dialect string
}

// NewAppointmentRepo binds the repo to a pool or a transaction.
func NewAppointmentRepo(db DBTX, dialect string) *AppointmentRepo {
	return &AppointmentRepo{db: db, dialect: dialect}
}

var appointmentColumns = []any{"id", "user_id", "date", "reason", "status", "created_at", "updated_at"}

// CreateAppointment inserts a. CreatedAt/UpdatedAt are filled in.
func (r *AppointmentRepo) CreateAppointment(ctx context.Context, a *model.Appointment) error {
	now := nowUTC()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO appointments (id, user_id, date, reason, status, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, formatTime(a.Date), a.Reason, a.Status, formatTime(now), formatTime(now))
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	a.CreatedAt, a.UpdatedAt = wallClock(now), wallClock(now)
	return nil
}

// GetAppointment loads one appointment by id.
func (r *AppointmentRepo) GetAppointment(ctx context.Context, id string) (*model.Appointment, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, date, reason, status, created_at, updated_at
         FROM appointments WHERE id = ? LIMIT 1`, id)
	a, err := scanAppointment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAppointmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return a, nil
}

// RescheduleAppointment changes date and reason of a live appointment.
// Status is left as is.
func (r *AppointmentRepo) RescheduleAppointment(ctx context.Context, id string, date time.Time, reason string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE appointments SET date = ?, reason = ?, updated_at = ?
         WHERE id = ? AND status IN (?, ?)`,
		formatTime(date), reason, formatTime(nowUTC()), id, model.StatusPending, model.StatusConfirmed)
	if err != nil {
		return fmt.Errorf("update appointment: %w", err)
	}
	return r.resolveNoRows(ctx, res, id)
}

// CancelAppointment moves a live appointment to cancelled. It returns
// ErrAppointmentNotLive when the appointment was already cancelled, so a
// second cancel never reaches the slot.
func (r *AppointmentRepo) CancelAppointment(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE appointments SET status = ?, updated_at = ?
         WHERE id = ? AND status IN (?, ?)`,
		model.StatusCancelled, formatTime(nowUTC()), id, model.StatusPending, model.StatusConfirmed)
	if err != nil {
		return fmt.Errorf("cancel appointment: %w", err)
	}
	return r.resolveNoRows(ctx, res, id)
}

// resolveNoRows turns a zero-row conditional update into the matching
// sentinel.
func (r *AppointmentRepo) resolveNoRows(ctx context.Context, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}
	if _, err := r.GetAppointment(ctx, id); err != nil {
		return err
	}
	return ErrAppointmentNotLive
}

// ListAppointmentsByUser returns the user's appointments whose status is in
// statuses (all statuses when empty), ordered by date ascending.
func (r *AppointmentRepo) ListAppointmentsByUser(ctx context.Context, userID string, statuses []string) ([]model.Appointment, error) {
	ds := builder(r.dialect).From("appointments").
		Select(appointmentColumns...).
		Where(goqu.C("user_id").Eq(userID))
	if len(statuses) > 0 {
		ds = ds.Where(goqu.C("status").In(statuses))
	}
	query, args, err := ds.Order(goqu.C("date").Asc(), goqu.C("id").Asc()).Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	return r.queryAppointments(ctx, query, args...)
}

// ListLiveAppointments returns every pending or confirmed appointment.
func (r *AppointmentRepo) ListLiveAppointments(ctx context.Context) ([]model.Appointment, error) {
	query, args, err := builder(r.dialect).From("appointments").
		Select(appointmentColumns...).
		Where(goqu.C("status").In(model.LiveStatuses())).
		Order(goqu.C("date").Asc(), goqu.C("created_at").Asc()).
		Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	return r.queryAppointments(ctx, query, args...)
}

func (r *AppointmentRepo) queryAppointments(ctx context.Context, query string, args ...any) ([]model.Appointment, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()
	out := []model.Appointment{}
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan appointment: %w", err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAppointment(s rowScanner) (*model.Appointment, error) {
	var (
		a                      model.Appointment
		date, created, updated dbTime
	)
	if err := s.Scan(&a.ID, &a.UserID, &date, &a.Reason, &a.Status, &created, &updated); err != nil {
		return nil, err
	}
	a.Date, a.CreatedAt, a.UpdatedAt = date.Time, created.Time, updated.Time
	return &a, nil
}
