package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Medu-coder/Area-privada-clinicas-v2/internal/model"
	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/mysql"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx so repositories can run
// inside or outside a transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// AppointmentStore is the appointments collection.
type AppointmentStore interface {
	CreateAppointment(ctx context.Context, a *model.Appointment) error
	GetAppointment(ctx context.Context, id string) (*model.Appointment, error)
	RescheduleAppointment(ctx context.Context, id string, date time.Time, reason string) error
	CancelAppointment(ctx context.Context, id string) error
	ListAppointmentsByUser(ctx context.Context, userID string, statuses []string) ([]model.Appointment, error)
	ListLiveAppointments(ctx context.Context) ([]model.Appointment, error)
}

// AvailabilityStore is the availability calendar.
type AvailabilityStore interface {
	OccupySlot(ctx context.Context, slot model.SlotKey) error
	ReleaseSlot(ctx context.Context, slot model.SlotKey) error
	GetSlot(ctx context.Context, slot model.SlotKey) (*model.Slot, error)
	AvailableDates(ctx context.Context, from, to string) ([]string, error)
	AvailableHours(ctx context.Context, date string) ([]string, error)
	ListOccupiedSlots(ctx context.Context) ([]model.Slot, error)
	InsertSlots(ctx context.Context, slots []model.SlotKey) (int, error)
}

// Store is the data store consumed by the reservation service. WithinTx
// runs fn against a store bound to a single transaction; fn's error rolls
// the transaction back.
type Store interface {
	AppointmentStore
	AvailabilityStore
	WithinTx(ctx context.Context, fn func(Store) error) error
}

// SQLStore implements Store on database/sql for MySQL and SQLite.
type SQLStore struct {
	*AppointmentRepo
	*AvailabilityRepo

	db      *sql.DB
	tx      *sql.Tx
	dialect string
}

// NewSQLStore builds a store for driver ("mysql" or "sqlite").
func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	d := Dialect(driver)
	return &SQLStore{
		AppointmentRepo:  NewAppointmentRepo(db, d),
		AvailabilityRepo: NewAvailabilityRepo(db, d),
		db:               db,
		dialect:          d,
	}
}

// Dialect maps a database/sql driver name to its goqu dialect.
func Dialect(driver string) string {
	if driver == "sqlite" || driver == "sqlite3" {
		return "sqlite3"
	}
	return "mysql"
}

// DB exposes the underlying pool.
func (s *SQLStore) DB() *sql.DB { return s.db }

// WithinTx begins a transaction, runs fn and commits. Nested calls reuse
// the outer transaction.
func (s *SQLStore) WithinTx(ctx context.Context, fn func(Store) error) (err error) {
	if s.tx != nil {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				err = errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
			}
		}
	}()
	txStore := &SQLStore{
		AppointmentRepo:  NewAppointmentRepo(tx, s.dialect),
		AvailabilityRepo: NewAvailabilityRepo(tx, s.dialect),
		db:               s.db,
		tx:               tx,
		dialect:          s.dialect,
	}
	if err = fn(txStore); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

func builder(dialect string) goqu.DialectWrapper { return goqu.Dialect(dialect) }
