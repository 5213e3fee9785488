package availability

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/clinicore/booking-engine/internal/appointment"
	"github.com/clinicore/booking-engine/internal/schedule"
)

type fakeScheduleRepo struct {
	doctors   map[uuid.UUID]*schedule.Doctor
	schedules map[uuid.UUID]*schedule.Schedule
}

func (f *fakeScheduleRepo) GetDoctor(_ context.Context, id uuid.UUID) (*schedule.Doctor, error) {
	d, ok := f.doctors[id]
	if !ok {
		return nil, schedule.ErrDoctorNotFound
	}
	return d, nil
}

func (f *fakeScheduleRepo) GetSchedule(_ context.Context, doctorID uuid.UUID) (*schedule.Schedule, error) {
	s, ok := f.schedules[doctorID]
	if !ok {
		return nil, schedule.ErrScheduleNotFound
	}
	return s, nil
}

func (f *fakeScheduleRepo) GetDoctorByChannel(_ context.Context, _ string) (*schedule.Doctor, error) {
	return nil, schedule.ErrChannelNotFound
}

func (f *fakeScheduleRepo) ListSyncEnabledDoctors(_ context.Context) ([]schedule.Doctor, error) {
	return nil, nil
}

type fakeBookingReader struct {
	byDate map[string][]appointment.Appointment
}

func (f *fakeBookingReader) ListActiveByDoctorDate(_ context.Context, _ uuid.UUID, date string) ([]appointment.Appointment, error) {
	return f.byDate[date], nil
}

func newTestEngine(t *testing.T) (*Engine, uuid.UUID, *fakeBookingReader, *time.Location) {
	t.Helper()

	doctorID := uuid.New()
	sched := &schedule.Schedule{
		DoctorID: doctorID,
		WorkingDays: map[time.Weekday]bool{
			time.Monday:    true,
			time.Tuesday:   true,
			time.Wednesday: true,
			time.Thursday:  true,
			time.Friday:    true,
		},
		DayStart:    9 * 60,
		DayEnd:      17 * 60,
		SlotMinutes: 30,
		Timezone:    "UTC",
		Active:      true,
		Leaves:      map[string]bool{},
	}

	repo := &fakeScheduleRepo{
		doctors:   map[uuid.UUID]*schedule.Doctor{doctorID: {ID: doctorID, Active: true}},
		schedules: map[uuid.UUID]*schedule.Schedule{doctorID: sched},
	}
	bookings := &fakeBookingReader{byDate: map[string][]appointment.Appointment{}}

	loc, err := sched.Location()
	require.NoError(t, err)

	return NewEngine(repo, bookings, 30), doctorID, bookings, loc
}

func TestSearchExcludesBookedSlot(t *testing.T) {
	engine, doctorID, bookings, loc := newTestEngine(t)

	// Mon-Fri 09:00-17:00, 30-minute slots, one booking at 10:00-10:30 on
	// Monday 2026-09-07.
	bookings.byDate["2026-09-07"] = []appointment.Appointment{{
		ID:       uuid.New(),
		DoctorID: doctorID,
		Date:     "2026-09-07",
		StartAt:  time.Date(2026, 9, 7, 10, 0, 0, 0, loc),
		EndAt:    time.Date(2026, 9, 7, 10, 30, 0, 0, loc),
		Status:   appointment.StatusBooked,
	}}

	slots, err := engine.Search(context.Background(), doctorID, "2026-09-07", "2026-09-07", 0)
	require.NoError(t, err)
	require.Len(t, slots, 15, "16 grid slots minus the booked one")

	for _, s := range slots {
		require.False(t, s.Start.Equal(time.Date(2026, 9, 7, 10, 0, 0, 0, loc)),
			"the 10:00 slot must not be offered")
	}

	// Adjacent slots around the booking stay open.
	require.Equal(t, time.Date(2026, 9, 7, 9, 30, 0, 0, loc), slots[1].Start)
	require.Equal(t, time.Date(2026, 9, 7, 10, 30, 0, 0, loc), slots[2].Start)
}

func TestSearchSkipsLeaveDays(t *testing.T) {
	engine, doctorID, _, _ := newTestEngine(t)

	sched := engine.schedules.(*fakeScheduleRepo).schedules[doctorID]
	sched.Leaves["2026-09-08"] = true

	// Mon 2026-09-07 through Wed 2026-09-09 with Tuesday on leave.
	slots, err := engine.Search(context.Background(), doctorID, "2026-09-07", "2026-09-09", 0)
	require.NoError(t, err)
	require.Len(t, slots, 32)
	for _, s := range slots {
		require.NotEqual(t, "2026-09-08", s.Date)
	}
}

func TestSearchSkipsWeekend(t *testing.T) {
	engine, doctorID, _, _ := newTestEngine(t)

	// Sat 2026-09-05 and Sun 2026-09-06 are outside the working days.
	slots, err := engine.Search(context.Background(), doctorID, "2026-09-05", "2026-09-06", 0)
	require.NoError(t, err)
	require.Empty(t, slots)
}

func TestSearchCapsAtMax(t *testing.T) {
	engine, doctorID, _, _ := newTestEngine(t)

	slots, err := engine.Search(context.Background(), doctorID, "2026-09-07", "2026-09-11", 5)
	require.NoError(t, err)
	require.Len(t, slots, 5)

	for i := 1; i < len(slots); i++ {
		require.True(t, slots[i-1].Start.Before(slots[i].Start), "slots must be chronological")
	}
}

func TestSearchClampsToHorizon(t *testing.T) {
	engine, doctorID, _, _ := newTestEngine(t)
	engine.horizonDays = 3

	// Mon through Fri requested, horizon allows Mon through Wed only.
	slots, err := engine.Search(context.Background(), doctorID, "2026-09-07", "2026-09-11", 0)
	require.NoError(t, err)
	require.Len(t, slots, 48)
	require.Equal(t, "2026-09-09", slots[len(slots)-1].Date)
}

func TestSearchInvalidRange(t *testing.T) {
	engine, doctorID, _, _ := newTestEngine(t)

	_, err := engine.Search(context.Background(), doctorID, "07-09-2026", "2026-09-08", 0)
	require.ErrorIs(t, err, ErrInvalidRange)

	_, err = engine.Search(context.Background(), doctorID, "2026-09-08", "2026-09-07", 0)
	require.ErrorIs(t, err, ErrInvalidRange)
}

func TestSearchInactiveScheduleYieldsNothing(t *testing.T) {
	engine, doctorID, _, _ := newTestEngine(t)
	engine.schedules.(*fakeScheduleRepo).schedules[doctorID].Active = false

	slots, err := engine.Search(context.Background(), doctorID, "2026-09-07", "2026-09-11", 0)
	require.NoError(t, err)
	require.Empty(t, slots)
}
