package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Medu-coder/Area-privada-clinicas-v2/internal/model"
	"github.com/Medu-coder/Area-privada-clinicas-v2/internal/service"
)

func TestReconcileFindsAndFixesDrift(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	svc, _ := newService(t, store, service.ModeAtomic)
	seedSlots(t, store,
		[2]string{"2025-05-20", "10:00"}, // double booked
		[2]string{"2025-05-20", "10:30"}, // orphan
		[2]string{"2025-05-20", "11:00"}, // unclaimed
		[2]string{"2025-05-20", "12:00"}, // healthy
	)
	at := func(s string) time.Time {
		d, err := time.Parse(model.DateTimeLayout, s)
		require.NoError(t, err)
		return d
	}
	insert := func(id, when string) {
		require.NoError(t, store.CreateAppointment(ctx, &model.Appointment{
			ID: id, UserID: string(alice), Date: at(when), Reason: "General", Status: model.StatusPending,
		}))
	}
	insert("dup-1", "2025-05-20 10:00:00")
	insert("dup-2", "2025-05-20 10:00:00")
	insert("stray", "2025-05-20 11:00:00")
	insert("ok", "2025-05-20 12:00:00")
	insert("nowhere", "2025-06-01 08:00:00")
	for _, h := range []string{"10:00", "10:30", "12:00"} {
		require.NoError(t, store.OccupySlot(ctx, key(t, "2025-05-20", h)))
	}

	report, err := svc.Reconcile(ctx, false)
	require.NoError(t, err)
	assert.False(t, report.Consistent())
	assert.Equal(t, []model.SlotKey{key(t, "2025-05-20", "10:30")}, report.OrphanSlots)
	require.Len(t, report.DoubleBookings, 1)
	assert.ElementsMatch(t, []string{"dup-1", "dup-2"}, report.DoubleBookings[0].AppointmentIDs)
	require.Len(t, report.UnclaimedAppointments, 2)
	assert.Equal(t, "stray", report.UnclaimedAppointments[0].AppointmentID)
	assert.False(t, report.UnclaimedAppointments[0].SlotMissing)
	assert.Equal(t, "nowhere", report.UnclaimedAppointments[1].AppointmentID)
	assert.True(t, report.UnclaimedAppointments[1].SlotMissing)
	assert.False(t, report.Fixed)
	assert.True(t, available(t, store, "2025-05-20", "11:00"))

	report, err = svc.Reconcile(ctx, true)
	require.NoError(t, err)
	assert.True(t, report.Fixed)
	assert.Equal(t, 1, report.Released)
	assert.Equal(t, 1, report.Occupied)
	assert.Empty(t, report.FixErrors)
	assert.True(t, available(t, store, "2025-05-20", "10:30"))
	assert.False(t, available(t, store, "2025-05-20", "11:00"))

	// only the findings a fix cannot settle remain
	report, err = svc.Reconcile(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, report.OrphanSlots)
	assert.Len(t, report.DoubleBookings, 1)
	require.Len(t, report.UnclaimedAppointments, 1)
	assert.Equal(t, "nowhere", report.UnclaimedAppointments[0].AppointmentID)
}
