package reconciler

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/clinicore/booking-engine/internal/appointment"
	"github.com/clinicore/booking-engine/internal/outbox"
	"github.com/clinicore/booking-engine/internal/schedule"
)

type fakeApptStore struct {
	needingSync map[uuid.UUID][]appointment.Appointment
}

func (s *fakeApptStore) ListNeedingSync(_ context.Context, doctorID uuid.UUID, _ time.Duration) ([]appointment.Appointment, error) {
	return s.needingSync[doctorID], nil
}

type fakeTaskStore struct {
	active   map[uuid.UUID]bool
	enqueued []enqueueCall
}

type enqueueCall struct {
	AppointmentID uuid.UUID
	Op            outbox.Op
}

func (s *fakeTaskStore) EnqueueIfAbsent(_ context.Context, appointmentID uuid.UUID, op outbox.Op) (bool, error) {
	if s.active[appointmentID] {
		return false, nil
	}
	s.active[appointmentID] = true
	s.enqueued = append(s.enqueued, enqueueCall{AppointmentID: appointmentID, Op: op})
	return true, nil
}

type fakeDoctorStore struct {
	doctors []schedule.Doctor
}

func (s *fakeDoctorStore) ListSyncEnabledDoctors(_ context.Context) ([]schedule.Doctor, error) {
	return s.doctors, nil
}

func TestReconcileDoctorEnqueuesByEventPresence(t *testing.T) {
	doctorID := uuid.New()
	eventID := "ev-1"

	unsyncedNew := appointment.Appointment{ID: uuid.New(), DoctorID: doctorID, SyncStatus: appointment.SyncPending}
	unsyncedKnown := appointment.Appointment{ID: uuid.New(), DoctorID: doctorID, SyncStatus: appointment.SyncFailed, ExternalEventID: &eventID}

	appts := &fakeApptStore{needingSync: map[uuid.UUID][]appointment.Appointment{
		doctorID: {unsyncedNew, unsyncedKnown},
	}}
	tasks := &fakeTaskStore{active: map[uuid.UUID]bool{}}

	r := New(appts, tasks, &fakeDoctorStore{}, nil)

	n, err := r.ReconcileDoctor(context.Background(), doctorID)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, []enqueueCall{
		{AppointmentID: unsyncedNew.ID, Op: outbox.OpCreate},
		{AppointmentID: unsyncedKnown.ID, Op: outbox.OpUpdate},
	}, tasks.enqueued)
}

func TestReconcileDoctorSkipsActiveTasks(t *testing.T) {
	doctorID := uuid.New()
	appt := appointment.Appointment{ID: uuid.New(), DoctorID: doctorID, SyncStatus: appointment.SyncPending}

	appts := &fakeApptStore{needingSync: map[uuid.UUID][]appointment.Appointment{doctorID: {appt}}}
	tasks := &fakeTaskStore{active: map[uuid.UUID]bool{appt.ID: true}}

	r := New(appts, tasks, &fakeDoctorStore{}, nil)

	n, err := r.ReconcileDoctor(context.Background(), doctorID)
	require.NoError(t, err)
	require.Zero(t, n, "appointments with a live task must not be re-enqueued")
	require.Empty(t, tasks.enqueued)
}

func TestSweepCoversAllSyncEnabledDoctors(t *testing.T) {
	docA, docB := uuid.New(), uuid.New()

	appts := &fakeApptStore{needingSync: map[uuid.UUID][]appointment.Appointment{
		docA: {{ID: uuid.New(), DoctorID: docA, SyncStatus: appointment.SyncPending}},
		docB: {{ID: uuid.New(), DoctorID: docB, SyncStatus: appointment.SyncPending}},
	}}
	tasks := &fakeTaskStore{active: map[uuid.UUID]bool{}}
	doctors := &fakeDoctorStore{doctors: []schedule.Doctor{{ID: docA}, {ID: docB}}}

	r := New(appts, tasks, doctors, nil)
	r.sweep(context.Background())

	require.Len(t, tasks.enqueued, 2)
}
