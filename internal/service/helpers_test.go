package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Medu-coder/Area-privada-clinicas-v2/internal/database"
	"github.com/Medu-coder/Area-privada-clinicas-v2/internal/model"
	"github.com/Medu-coder/Area-privada-clinicas-v2/internal/queue"
	"github.com/Medu-coder/Area-privada-clinicas-v2/internal/repository"
	"github.com/Medu-coder/Area-privada-clinicas-v2/internal/service"
)

var modes = []service.Mode{service.ModeAtomic, service.ModeSequential}

const (
	alice = service.UserID("11111111-1111-4111-8111-111111111111")
	bob   = service.UserID("22222222-2222-4222-8222-222222222222")
)

type recorder struct {
	mu     sync.Mutex
	events []queue.AppointmentEvent
}

func (r *recorder) Notify(_ context.Context, ev queue.AppointmentEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) all() []queue.AppointmentEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]queue.AppointmentEvent(nil), r.events...)
}

func newStore(t *testing.T) *repository.SQLStore {
	t.Helper()
	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(context.Background(), db, "sqlite"))
	return repository.NewSQLStore(db, "sqlite")
}

func newService(t *testing.T, store repository.Store, mode service.Mode) (*service.ReservationService, *recorder) {
	t.Helper()
	rec := &recorder{}
	svc := service.NewReservationService(store, service.Options{
		Mode:        mode,
		Timeout:     5 * time.Second,
		SlotMinutes: 30,
		Notifier:    rec,
	})
	return svc, rec
}

func key(t *testing.T, date, hour string) model.SlotKey {
	t.Helper()
	k, err := model.ParseSlot(date, hour)
	require.NoError(t, err)
	return k
}

func seedSlots(t *testing.T, store repository.Store, slots ...[2]string) {
	t.Helper()
	keys := make([]model.SlotKey, 0, len(slots))
	for _, s := range slots {
		keys = append(keys, key(t, s[0], s[1]))
	}
	_, err := store.InsertSlots(context.Background(), keys)
	require.NoError(t, err)
}

func available(t *testing.T, store repository.Store, date, hour string) bool {
	t.Helper()
	s, err := store.GetSlot(context.Background(), key(t, date, hour))
	require.NoError(t, err)
	return s.Available
}

func liveFor(t *testing.T, store repository.Store, user service.UserID) []model.Appointment {
	t.Helper()
	list, err := store.ListAppointmentsByUser(context.Background(), string(user), model.LiveStatuses())
	require.NoError(t, err)
	return list
}

// faultyStore injects failures into selected store calls. Faults carry
// over into transactions.
type faultyStore struct {
	repository.Store
	occupyErr  error
	occupyOn   *model.SlotKey
	releaseErr error
	releaseOn  *model.SlotKey
	updateErr  error
}

func (f *faultyStore) OccupySlot(ctx context.Context, k model.SlotKey) error {
	if f.occupyErr != nil && (f.occupyOn == nil || *f.occupyOn == k) {
		return f.occupyErr
	}
	return f.Store.OccupySlot(ctx, k)
}

func (f *faultyStore) ReleaseSlot(ctx context.Context, k model.SlotKey) error {
	if f.releaseErr != nil && (f.releaseOn == nil || *f.releaseOn == k) {
		return f.releaseErr
	}
	return f.Store.ReleaseSlot(ctx, k)
}

func (f *faultyStore) RescheduleAppointment(ctx context.Context, id string, date time.Time, reason string) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	return f.Store.RescheduleAppointment(ctx, id, date, reason)
}

func (f *faultyStore) WithinTx(ctx context.Context, fn func(repository.Store) error) error {
	return f.Store.WithinTx(ctx, func(tx repository.Store) error {
		inner := *f
		inner.Store = tx
		return fn(&inner)
	})
}
