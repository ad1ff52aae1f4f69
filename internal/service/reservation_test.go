package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Medu-coder/Area-privada-clinicas-v2/internal/model"
	"github.com/Medu-coder/Area-privada-clinicas-v2/internal/queue"
	"github.com/Medu-coder/Area-privada-clinicas-v2/internal/repository"
	"github.com/Medu-coder/Area-privada-clinicas-v2/internal/service"
)

func TestBookAppointment(t *testing.T) {
	for _, mode := range modes {
		t.Run(string(mode), func(t *testing.T) {
			ctx := context.Background()
			store := newStore(t)
			svc, rec := newService(t, store, mode)
			seedSlots(t, store, [2]string{"2025-05-20", "10:00"})

			appt, err := svc.BookAppointment(ctx, alice, service.BookRequest{Date: "2025-05-20", Hour: "10:00", Reason: "Limpieza"})
			require.NoError(t, err)
			assert.Equal(t, model.StatusPending, appt.Status)
			assert.Equal(t, string(alice), appt.UserID)
			assert.Equal(t, "2025-05-20 10:00:00", appt.Date.Format(model.DateTimeLayout))
			assert.False(t, available(t, store, "2025-05-20", "10:00"))

			live := liveFor(t, store, alice)
			require.Len(t, live, 1)
			assert.Equal(t, appt.ID, live[0].ID)

			events := rec.all()
			require.Len(t, events, 1)
			assert.Equal(t, queue.EventBooked, events[0].Type)
			assert.Equal(t, "10:00:00", events[0].Hour)
		})
	}
}

func TestBookAppointmentRequiresIdentity(t *testing.T) {
	store := newStore(t)
	svc, _ := newService(t, store, service.ModeAtomic)
	seedSlots(t, store, [2]string{"2025-05-20", "10:00"})

	for _, who := range []service.Identity{nil, service.UserID("")} {
		_, err := svc.BookAppointment(context.Background(), who, service.BookRequest{Date: "2025-05-20", Hour: "10:00", Reason: "General"})
		assert.ErrorIs(t, err, service.ErrAuthRequired)
	}
	assert.True(t, available(t, store, "2025-05-20", "10:00"))
}

func TestBookAppointmentValidation(t *testing.T) {
	store := newStore(t)
	svc, _ := newService(t, store, service.ModeAtomic)

	tests := []struct {
		name string
		req  service.BookRequest
	}{
		{"bad date", service.BookRequest{Date: "20-05-2025", Hour: "10:00", Reason: "General"}},
		{"bad hour", service.BookRequest{Date: "2025-05-20", Hour: "25:00", Reason: "General"}},
		{"off grid", service.BookRequest{Date: "2025-05-20", Hour: "10:15", Reason: "General"}},
		{"empty reason", service.BookRequest{Date: "2025-05-20", Hour: "10:00", Reason: "   "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.BookAppointment(context.Background(), alice, tt.req)
			assert.ErrorIs(t, err, service.ErrInvalidRequest)
		})
	}
}

func TestBookAppointmentSlotTaken(t *testing.T) {
	for _, mode := range modes {
		t.Run(string(mode), func(t *testing.T) {
			ctx := context.Background()
			store := newStore(t)
			svc, _ := newService(t, store, mode)
			seedSlots(t, store, [2]string{"2025-05-20", "10:00"})

			_, err := svc.BookAppointment(ctx, alice, service.BookRequest{Date: "2025-05-20", Hour: "10:00", Reason: "Limpieza"})
			require.NoError(t, err)

			appt, err := svc.BookAppointment(ctx, bob, service.BookRequest{Date: "2025-05-20", Hour: "10:00", Reason: "General"})
			assert.Nil(t, appt)
			assert.ErrorIs(t, err, service.ErrSlotAlreadyTaken)
			assert.ErrorIs(t, err, repository.ErrSlotTaken)
			assert.False(t, service.IsPartial(err))
			assert.Empty(t, liveFor(t, store, bob))
			assert.False(t, available(t, store, "2025-05-20", "10:00"))
		})
	}
}

func TestBookAppointmentMissingSlot(t *testing.T) {
	for _, mode := range modes {
		t.Run(string(mode), func(t *testing.T) {
			store := newStore(t)
			svc, rec := newService(t, store, mode)

			_, err := svc.BookAppointment(context.Background(), alice, service.BookRequest{Date: "2025-05-20", Hour: "10:00", Reason: "General"})
			assert.ErrorIs(t, err, service.ErrBookingFailed)
			assert.ErrorIs(t, err, repository.ErrSlotNotFound)
			assert.Empty(t, liveFor(t, store, alice))
			assert.Empty(t, rec.all())
		})
	}
}

func TestBookAppointmentUnknownSlotOutcome(t *testing.T) {
	boom := errors.New("connection reset")

	t.Run("atomic rolls back", func(t *testing.T) {
		store := newStore(t)
		seedSlots(t, store, [2]string{"2025-05-20", "10:00"})
		svc, _ := newService(t, &faultyStore{Store: store, occupyErr: boom}, service.ModeAtomic)

		appt, err := svc.BookAppointment(context.Background(), alice, service.BookRequest{Date: "2025-05-20", Hour: "10:00", Reason: "General"})
		assert.Nil(t, appt)
		assert.ErrorIs(t, err, service.ErrOccupyNewSlotFailed)
		assert.False(t, service.IsPartial(err))
		assert.Empty(t, liveFor(t, store, alice))
	})

	t.Run("sequential keeps the appointment", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)
		seedSlots(t, store, [2]string{"2025-05-20", "10:00"})
		svc, rec := newService(t, &faultyStore{Store: store, occupyErr: boom}, service.ModeSequential)

		appt, err := svc.BookAppointment(ctx, alice, service.BookRequest{Date: "2025-05-20", Hour: "10:00", Reason: "General"})
		require.NotNil(t, appt)
		assert.ErrorIs(t, err, service.ErrOccupyNewSlotFailed)
		assert.ErrorIs(t, err, boom)
		assert.True(t, service.IsPartial(err))
		assert.Len(t, liveFor(t, store, alice), 1)
		require.Len(t, rec.all(), 1)
		assert.True(t, rec.all()[0].Partial)

		// the reconciler sees the stray appointment and claims its slot
		clean, _ := newService(t, store, service.ModeSequential)
		report, err := clean.Reconcile(ctx, true)
		require.NoError(t, err)
		require.Len(t, report.UnclaimedAppointments, 1)
		assert.Equal(t, appt.ID, report.UnclaimedAppointments[0].AppointmentID)
		assert.Equal(t, 1, report.Occupied)
		assert.False(t, available(t, store, "2025-05-20", "10:00"))

		report, err = clean.Reconcile(ctx, false)
		require.NoError(t, err)
		assert.True(t, report.Consistent())
	})
}

func TestConcurrentBookingsOfOneSlot(t *testing.T) {
	for _, mode := range modes {
		t.Run(string(mode), func(t *testing.T) {
			ctx := context.Background()
			store := newStore(t)
			svc, _ := newService(t, store, mode)
			seedSlots(t, store, [2]string{"2025-05-20", "10:00"})

			const n = 8
			var (
				wg        sync.WaitGroup
				mu        sync.Mutex
				successes int
				taken     int
			)
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					who := service.UserID(string(rune('a'+i)) + "-user")
					_, err := svc.BookAppointment(ctx, who, service.BookRequest{Date: "2025-05-20", Hour: "10:00", Reason: "General"})
					mu.Lock()
					defer mu.Unlock()
					switch {
					case err == nil:
						successes++
					case errors.Is(err, service.ErrSlotAlreadyTaken):
						taken++
					}
				}(i)
			}
			wg.Wait()

			assert.Equal(t, 1, successes)
			assert.Equal(t, n-1, taken)
			live, err := store.ListLiveAppointments(ctx)
			require.NoError(t, err)
			assert.Len(t, live, 1)

			report, err := svc.Reconcile(ctx, false)
			require.NoError(t, err)
			assert.True(t, report.Consistent())
		})
	}
}

func TestRescheduleAppointment(t *testing.T) {
	for _, mode := range modes {
		t.Run(string(mode), func(t *testing.T) {
			ctx := context.Background()
			store := newStore(t)
			svc, rec := newService(t, store, mode)
			seedSlots(t, store, [2]string{"2025-05-20", "10:00"}, [2]string{"2025-05-21", "11:00"})

			booked, err := svc.BookAppointment(ctx, alice, service.BookRequest{Date: "2025-05-20", Hour: "10:00", Reason: "Limpieza"})
			require.NoError(t, err)

			appt, err := svc.RescheduleAppointment(ctx, alice, service.RescheduleRequest{
				AppointmentID: booked.ID,
				OldDate:       "2025-05-20",
				OldHour:       "10:00",
				NewDate:       "2025-05-21",
				NewHour:       "11:00",
				NewReason:     "Odontología",
			})
			require.NoError(t, err)
			assert.Equal(t, "2025-05-21 11:00:00", appt.Date.Format(model.DateTimeLayout))
			assert.Equal(t, "Odontología", appt.Reason)
			assert.Equal(t, model.StatusPending, appt.Status)

			assert.True(t, available(t, store, "2025-05-20", "10:00"))
			assert.False(t, available(t, store, "2025-05-21", "11:00"))

			stored, err := store.GetAppointment(ctx, booked.ID)
			require.NoError(t, err)
			assert.Equal(t, "2025-05-21 11:00:00", stored.Date.Format(model.DateTimeLayout))

			events := rec.all()
			require.Len(t, events, 2)
			assert.Equal(t, queue.EventRescheduled, events[1].Type)
			assert.Equal(t, "2025-05-20", events[1].PreviousDate)
			assert.Equal(t, "10:00:00", events[1].PreviousHour)
		})
	}
}

func TestRescheduleToTakenSlot(t *testing.T) {
	for _, mode := range modes {
		t.Run(string(mode), func(t *testing.T) {
			ctx := context.Background()
			store := newStore(t)
			svc, _ := newService(t, store, mode)
			seedSlots(t, store, [2]string{"2025-05-20", "10:00"}, [2]string{"2025-05-21", "11:00"})

			mine, err := svc.BookAppointment(ctx, alice, service.BookRequest{Date: "2025-05-20", Hour: "10:00", Reason: "Limpieza"})
			require.NoError(t, err)
			_, err = svc.BookAppointment(ctx, bob, service.BookRequest{Date: "2025-05-21", Hour: "11:00", Reason: "General"})
			require.NoError(t, err)

			_, err = svc.RescheduleAppointment(ctx, alice, service.RescheduleRequest{AppointmentID: mine.ID, NewDate: "2025-05-21", NewHour: "11:00"})
			assert.ErrorIs(t, err, service.ErrOccupyNewSlotFailed)
			assert.ErrorIs(t, err, repository.ErrSlotTaken)
			assert.False(t, service.IsPartial(err))

			// the old slot is still held by the unchanged appointment
			assert.False(t, available(t, store, "2025-05-20", "10:00"))
			stored, err := store.GetAppointment(ctx, mine.ID)
			require.NoError(t, err)
			assert.Equal(t, "2025-05-20 10:00:00", stored.Date.Format(model.DateTimeLayout))

			report, err := svc.Reconcile(ctx, false)
			require.NoError(t, err)
			assert.True(t, report.Consistent())
		})
	}
}

func TestRescheduleGuards(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	svc, _ := newService(t, store, service.ModeAtomic)
	seedSlots(t, store, [2]string{"2025-05-20", "10:00"}, [2]string{"2025-05-21", "11:00"})

	appt, err := svc.BookAppointment(ctx, alice, service.BookRequest{Date: "2025-05-20", Hour: "10:00", Reason: "Limpieza"})
	require.NoError(t, err)

	_, err = svc.RescheduleAppointment(ctx, bob, service.RescheduleRequest{AppointmentID: appt.ID, NewDate: "2025-05-21", NewHour: "11:00"})
	assert.ErrorIs(t, err, service.ErrAppointmentNotFound)

	_, err = svc.RescheduleAppointment(ctx, alice, service.RescheduleRequest{AppointmentID: "missing", NewDate: "2025-05-21", NewHour: "11:00"})
	assert.ErrorIs(t, err, service.ErrAppointmentNotFound)

	_, err = svc.RescheduleAppointment(ctx, alice, service.RescheduleRequest{
		AppointmentID: appt.ID, OldDate: "2025-05-19", OldHour: "10:00", NewDate: "2025-05-21", NewHour: "11:00",
	})
	assert.ErrorIs(t, err, service.ErrInvalidRequest)

	_, err = svc.CancelAppointment(ctx, alice, appt.ID)
	require.NoError(t, err)
	_, err = svc.RescheduleAppointment(ctx, alice, service.RescheduleRequest{AppointmentID: appt.ID, NewDate: "2025-05-21", NewHour: "11:00"})
	assert.ErrorIs(t, err, service.ErrAppointmentNotLive)
	assert.True(t, available(t, store, "2025-05-21", "11:00"))
}

func TestRescheduleSameSlotOnlyChangesReason(t *testing.T) {
	for _, mode := range modes {
		t.Run(string(mode), func(t *testing.T) {
			ctx := context.Background()
			store := newStore(t)
			svc, _ := newService(t, store, mode)
			seedSlots(t, store, [2]string{"2025-05-20", "10:00"})

			appt, err := svc.BookAppointment(ctx, alice, service.BookRequest{Date: "2025-05-20", Hour: "10:00", Reason: "Limpieza"})
			require.NoError(t, err)

			updated, err := svc.RescheduleAppointment(ctx, alice, service.RescheduleRequest{
				AppointmentID: appt.ID, NewDate: "2025-05-20", NewHour: "10:00:00", NewReason: "Revisión",
			})
			require.NoError(t, err)
			assert.Equal(t, "Revisión", updated.Reason)
			assert.False(t, available(t, store, "2025-05-20", "10:00"))
		})
	}
}

func TestRescheduleFreeOldSlotFails(t *testing.T) {
	boom := errors.New("lock wait timeout")
	for _, mode := range modes {
		t.Run(string(mode), func(t *testing.T) {
			ctx := context.Background()
			store := newStore(t)
			seedSlots(t, store, [2]string{"2025-05-20", "10:00"}, [2]string{"2025-05-21", "11:00"})
			plain, _ := newService(t, store, mode)
			appt, err := plain.BookAppointment(ctx, alice, service.BookRequest{Date: "2025-05-20", Hour: "10:00", Reason: "Limpieza"})
			require.NoError(t, err)

			old := key(t, "2025-05-20", "10:00")
			svc, _ := newService(t, &faultyStore{Store: store, releaseErr: boom, releaseOn: &old}, mode)
			_, err = svc.RescheduleAppointment(ctx, alice, service.RescheduleRequest{AppointmentID: appt.ID, NewDate: "2025-05-21", NewHour: "11:00"})
			assert.ErrorIs(t, err, service.ErrFreeOldSlotFailed)
			assert.ErrorIs(t, err, boom)

			// whatever happened in between, the calendar ends where it started
			assert.False(t, available(t, store, "2025-05-20", "10:00"))
			assert.True(t, available(t, store, "2025-05-21", "11:00"))
			stored, err := store.GetAppointment(ctx, appt.ID)
			require.NoError(t, err)
			assert.Equal(t, "2025-05-20 10:00:00", stored.Date.Format(model.DateTimeLayout))
		})
	}
}

func TestRescheduleUpdateFails(t *testing.T) {
	boom := errors.New("deadlock")
	for _, mode := range modes {
		t.Run(string(mode), func(t *testing.T) {
			ctx := context.Background()
			store := newStore(t)
			seedSlots(t, store, [2]string{"2025-05-20", "10:00"}, [2]string{"2025-05-21", "11:00"})
			plain, _ := newService(t, store, mode)
			appt, err := plain.BookAppointment(ctx, alice, service.BookRequest{Date: "2025-05-20", Hour: "10:00", Reason: "Limpieza"})
			require.NoError(t, err)

			svc, _ := newService(t, &faultyStore{Store: store, updateErr: boom}, mode)
			_, err = svc.RescheduleAppointment(ctx, alice, service.RescheduleRequest{AppointmentID: appt.ID, NewDate: "2025-05-21", NewHour: "11:00"})
			assert.ErrorIs(t, err, service.ErrAppointmentUpdateFailed)
			assert.False(t, service.IsPartial(err))

			assert.False(t, available(t, store, "2025-05-20", "10:00"))
			assert.True(t, available(t, store, "2025-05-21", "11:00"))
		})
	}
}

func TestCancelAppointment(t *testing.T) {
	for _, mode := range modes {
		t.Run(string(mode), func(t *testing.T) {
			ctx := context.Background()
			store := newStore(t)
			svc, rec := newService(t, store, mode)
			seedSlots(t, store, [2]string{"2025-05-20", "10:00"})

			appt, err := svc.BookAppointment(ctx, alice, service.BookRequest{Date: "2025-05-20", Hour: "10:00", Reason: "Limpieza"})
			require.NoError(t, err)

			_, err = svc.CancelAppointment(ctx, bob, appt.ID)
			assert.ErrorIs(t, err, service.ErrAppointmentNotFound)

			cancelled, err := svc.CancelAppointment(ctx, alice, appt.ID)
			require.NoError(t, err)
			assert.Equal(t, model.StatusCancelled, cancelled.Status)
			assert.True(t, available(t, store, "2025-05-20", "10:00"))
			assert.Empty(t, liveFor(t, store, alice))

			// bob takes the freed slot; a repeated cancel must not free it again
			_, err = svc.BookAppointment(ctx, bob, service.BookRequest{Date: "2025-05-20", Hour: "10:00", Reason: "General"})
			require.NoError(t, err)
			_, err = svc.CancelAppointment(ctx, alice, appt.ID)
			assert.ErrorIs(t, err, service.ErrCancelFailed)
			assert.False(t, available(t, store, "2025-05-20", "10:00"))

			types := []string{}
			for _, ev := range rec.all() {
				types = append(types, ev.Type)
			}
			assert.Equal(t, []string{queue.EventBooked, queue.EventCancelled, queue.EventBooked}, types)
		})
	}
}

func TestCancelReleaseFails(t *testing.T) {
	boom := errors.New("connection lost")

	t.Run("atomic rolls back", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)
		seedSlots(t, store, [2]string{"2025-05-20", "10:00"})
		plain, _ := newService(t, store, service.ModeAtomic)
		appt, err := plain.BookAppointment(ctx, alice, service.BookRequest{Date: "2025-05-20", Hour: "10:00", Reason: "Limpieza"})
		require.NoError(t, err)

		svc, _ := newService(t, &faultyStore{Store: store, releaseErr: boom}, service.ModeAtomic)
		got, err := svc.CancelAppointment(ctx, alice, appt.ID)
		assert.Nil(t, got)
		assert.ErrorIs(t, err, service.ErrFreeOldSlotFailed)
		assert.Len(t, liveFor(t, store, alice), 1)
		assert.False(t, available(t, store, "2025-05-20", "10:00"))
	})

	t.Run("sequential reports partial", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)
		seedSlots(t, store, [2]string{"2025-05-20", "10:00"})
		plain, _ := newService(t, store, service.ModeSequential)
		appt, err := plain.BookAppointment(ctx, alice, service.BookRequest{Date: "2025-05-20", Hour: "10:00", Reason: "Limpieza"})
		require.NoError(t, err)

		svc, _ := newService(t, &faultyStore{Store: store, releaseErr: boom}, service.ModeSequential)
		got, err := svc.CancelAppointment(ctx, alice, appt.ID)
		require.NotNil(t, got)
		assert.Equal(t, model.StatusCancelled, got.Status)
		assert.ErrorIs(t, err, service.ErrFreeOldSlotFailed)
		assert.True(t, service.IsPartial(err))
		assert.Empty(t, liveFor(t, store, alice))

		report, err := plain.Reconcile(ctx, true)
		require.NoError(t, err)
		assert.Equal(t, []model.SlotKey{key(t, "2025-05-20", "10:00")}, report.OrphanSlots)
		assert.Equal(t, 1, report.Released)
		assert.True(t, available(t, store, "2025-05-20", "10:00"))
	})
}

func TestListActiveAppointments(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	svc, _ := newService(t, store, service.ModeAtomic)
	seedSlots(t, store,
		[2]string{"2025-05-22", "09:00"},
		[2]string{"2025-05-20", "10:00"},
		[2]string{"2025-05-21", "10:00"},
		[2]string{"2025-05-23", "10:00"},
	)
	book := func(who service.UserID, date, hour string) *model.Appointment {
		a, err := svc.BookAppointment(ctx, who, service.BookRequest{Date: date, Hour: hour, Reason: "General"})
		require.NoError(t, err)
		return a
	}
	book(alice, "2025-05-22", "09:00")
	book(alice, "2025-05-20", "10:00")
	gone := book(alice, "2025-05-21", "10:00")
	book(bob, "2025-05-23", "10:00")
	_, err := svc.CancelAppointment(ctx, alice, gone.ID)
	require.NoError(t, err)

	list, err := svc.ListActiveAppointments(ctx, alice)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "2025-05-20", list[0].Slot().Date)
	assert.Equal(t, "2025-05-22", list[1].Slot().Date)

	list, err = svc.ListActiveAppointments(ctx, service.UserID(""))
	assert.ErrorIs(t, err, service.ErrAuthRequired)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func TestAvailabilityQueries(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	svc, _ := newService(t, store, service.ModeAtomic)
	seedSlots(t, store,
		[2]string{"2025-05-21", "09:30"},
		[2]string{"2025-05-20", "11:00"},
		[2]string{"2025-05-20", "10:00"},
		[2]string{"2025-05-22", "10:00"},
	)
	_, err := svc.BookAppointment(ctx, alice, service.BookRequest{Date: "2025-05-22", Hour: "10:00", Reason: "General"})
	require.NoError(t, err)

	dates, err := svc.ListAvailableDates(ctx, "", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-05-20", "2025-05-21"}, dates)

	dates, err = svc.ListAvailableDates(ctx, "2025-05-21", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-05-21"}, dates)

	_, err = svc.ListAvailableDates(ctx, "2025-05-22", "2025-05-01")
	assert.ErrorIs(t, err, service.ErrInvalidRequest)

	hours, err := svc.ListAvailableHours(ctx, "2025-05-20")
	require.NoError(t, err)
	assert.Equal(t, []string{"10:00", "11:00"}, hours)

	hours, err = svc.ListAvailableHours(ctx, "2025-05-22")
	require.NoError(t, err)
	assert.Empty(t, hours)

	_, err = svc.ListAvailableHours(ctx, "tomorrow")
	assert.ErrorIs(t, err, service.ErrInvalidRequest)
}

type mockNotifier struct{ mock.Mock }

func (m *mockNotifier) Notify(ctx context.Context, ev queue.AppointmentEvent) { m.Called(ctx, ev) }

func TestNotifierReceivesLifecycleEvents(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	seedSlots(t, store, [2]string{"2025-05-20", "10:00"})

	n := &mockNotifier{}
	n.On("Notify", mock.Anything, mock.MatchedBy(func(ev queue.AppointmentEvent) bool {
		return ev.Type == queue.EventBooked && ev.UserID == string(alice) && !ev.Partial
	})).Once()
	n.On("Notify", mock.Anything, mock.MatchedBy(func(ev queue.AppointmentEvent) bool {
		return ev.Type == queue.EventCancelled && ev.Status == model.StatusCancelled
	})).Once()

	svc := service.NewReservationService(store, service.Options{Notifier: n})
	appt, err := svc.BookAppointment(ctx, alice, service.BookRequest{Date: "2025-05-20", Hour: "10:00", Reason: "General"})
	require.NoError(t, err)
	_, err = svc.CancelAppointment(ctx, alice, appt.ID)
	require.NoError(t, err)

	n.AssertExpectations(t)
}
