package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Medu-coder/Area-privada-clinicas-v2/internal/model"
	"github.com/doug-martin/goqu/v9"
)

// AvailabilityRepo provides access to the availability calendar. Slot rows
// are keyed by (date, hour); the reservation protocol only ever flips the
// available flag, and it does so with conditional updates so concurrent
// requests cannot both claim one slot.
type AvailabilityRepo struct {
	db      DBTX
	dialect string
}

// NewAvailabilityRepo binds the repo to a pool or a transaction.
func NewAvailabilityRepo(db DBTX, dialect string) *AvailabilityRepo {
	return &AvailabilityRepo{db: db, dialect: dialect}
}

// OccupySlot marks a free slot unavailable. It returns ErrSlotTaken when the
// slot is already unavailable and ErrSlotNotFound when no row exists.
func (r *AvailabilityRepo) OccupySlot(ctx context.Context, slot model.SlotKey) error {
	return r.flip(ctx, slot, false)
}

// ReleaseSlot marks an unavailable slot available again. It returns
// ErrSlotAlreadyFree when the slot is already available and ErrSlotNotFound
// when no row exists.
func (r *AvailabilityRepo) ReleaseSlot(ctx context.Context, slot model.SlotKey) error {
	return r.flip(ctx, slot, true)
}

func (r *AvailabilityRepo) flip(ctx context.Context, slot model.SlotKey, available bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE availability SET available = ?, updated_at = ?
         WHERE date = ? AND hour = ? AND available = ?`,
		available, formatTime(nowUTC()), slot.Date, slot.Hour, !available)
	if err != nil {
		return fmt.Errorf("update slot %s: %w", slot, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}
	// Nothing changed: either the row is missing or it is already in the
	// target state.
	if _, err := r.GetSlot(ctx, slot); err != nil {
		return err
	}
	if available {
		return ErrSlotAlreadyFree
	}
	return ErrSlotTaken
}

// GetSlot loads one slot row.
func (r *AvailabilityRepo) GetSlot(ctx context.Context, slot model.SlotKey) (*model.Slot, error) {
	var (
		s       model.Slot
		updated dbTime
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT date, hour, available, updated_at FROM availability WHERE date = ? AND hour = ? LIMIT 1`,
		slot.Date, slot.Hour).Scan(&s.Date, &s.Hour, &s.Available, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSlotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get slot %s: %w", slot, err)
	}
	s.UpdatedAt = updated.Time
	return &s, nil
}

// AvailableDates returns the distinct dates with at least one available
// slot, ascending. from and to are optional inclusive bounds (YYYY-MM-DD).
func (r *AvailabilityRepo) AvailableDates(ctx context.Context, from, to string) ([]string, error) {
	ds := builder(r.dialect).From("availability").
		Select(goqu.C("date")).
		Where(goqu.C("available").Eq(true))
	if from != "" {
		ds = ds.Where(goqu.C("date").Gte(from))
	}
	if to != "" {
		ds = ds.Where(goqu.C("date").Lte(to))
	}
	query, args, err := ds.GroupBy(goqu.C("date")).Order(goqu.C("date").Asc()).Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	return r.queryStrings(ctx, query, args...)
}

// AvailableHours returns the distinct available HH:MM:SS hours on date,
// ascending.
func (r *AvailabilityRepo) AvailableHours(ctx context.Context, date string) ([]string, error) {
	return r.queryStrings(ctx,
		`SELECT DISTINCT hour FROM availability WHERE date = ? AND available = ? ORDER BY hour ASC`,
		date, true)
}

// ListOccupiedSlots returns every unavailable slot.
func (r *AvailabilityRepo) ListOccupiedSlots(ctx context.Context) ([]model.Slot, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT date, hour, available, updated_at FROM availability WHERE available = ? ORDER BY date, hour`,
		false)
	if err != nil {
		return nil, fmt.Errorf("list occupied slots: %w", err)
	}
	defer rows.Close()
	out := []model.Slot{}
	for rows.Next() {
		var (
			s       model.Slot
			updated dbTime
		)
		if err := rows.Scan(&s.Date, &s.Hour, &s.Available, &updated); err != nil {
			return nil, fmt.Errorf("scan slot: %w", err)
		}
		s.UpdatedAt = updated.Time
		out = append(out, s)
	}
	return out, rows.Err()
}

// InsertSlots creates available slot rows, skipping any (date, hour) that
// already exists. It returns the number of rows inserted.
func (r *AvailabilityRepo) InsertSlots(ctx context.Context, slots []model.SlotKey) (int, error) {
	if len(slots) == 0 {
		return 0, nil
	}
	now := formatTime(nowUTC())
	rows := make([]any, 0, len(slots))
	for _, s := range slots {
		rows = append(rows, goqu.Record{"date": s.Date, "hour": s.Hour, "available": true, "updated_at": now})
	}
	query, args, err := builder(r.dialect).Insert("availability").
		Rows(rows...).
		OnConflict(goqu.DoNothing()).
		Prepared(true).ToSQL()
	if err != nil {
		return 0, fmt.Errorf("build insert: %w", err)
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("insert slots: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

func (r *AvailabilityRepo) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query availability: %w", err)
	}
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan availability: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
