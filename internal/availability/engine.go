package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/booking-engine/internal/appointment"
	"github.com/clinicore/booking-engine/internal/schedule"
)

var ErrInvalidRange = errors.New("invalid availability range")

// ActiveAppointmentReader is the slice of the appointment repository the
// availability engine needs: active bookings per doctor per date.
type ActiveAppointmentReader interface {
	ListActiveByDoctorDate(ctx context.Context, doctorID uuid.UUID, date string) ([]appointment.Appointment, error)
}

// Engine derives open slots from working hours, slot duration, leaves and
// existing bookings. Pure read: results may be stale the moment they are
// returned, which is why booking re-validates under its lock.
type Engine struct {
	schedules    schedule.Repository
	appointments ActiveAppointmentReader
	horizonDays  int
}

func NewEngine(schedules schedule.Repository, appointments ActiveAppointmentReader, horizonDays int) *Engine {
	if horizonDays <= 0 {
		horizonDays = 30
	}
	return &Engine{
		schedules:    schedules,
		appointments: appointments,
		horizonDays:  horizonDays,
	}
}

// Search returns up to max open slots for the doctor between from and to
// (inclusive civil dates), chronologically ordered. The range is clamped
// to the configured horizon. A doctor with no working time in the range
// yields an empty result, not an error.
func (e *Engine) Search(ctx context.Context, doctorID uuid.UUID, from, to string, max int) ([]schedule.Slot, error) {
	fromDay, err := time.Parse(schedule.DateLayout, from)
	if err != nil {
		return nil, fmt.Errorf("%w: from must be %s", ErrInvalidRange, schedule.DateLayout)
	}
	toDay, err := time.Parse(schedule.DateLayout, to)
	if err != nil {
		return nil, fmt.Errorf("%w: to must be %s", ErrInvalidRange, schedule.DateLayout)
	}
	if toDay.Before(fromDay) {
		return nil, fmt.Errorf("%w: to before from", ErrInvalidRange)
	}
	if max <= 0 {
		max = 100
	}

	if horizon := fromDay.AddDate(0, 0, e.horizonDays-1); toDay.After(horizon) {
		toDay = horizon
	}

	sched, err := e.schedules.GetSchedule(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	if !sched.Active {
		return nil, nil
	}

	var open []schedule.Slot
	for day := fromDay; !day.After(toDay); day = day.AddDate(0, 0, 1) {
		date := day.Format(schedule.DateLayout)

		// Whole-day leaves are skipped before any grid work.
		if sched.OnLeave(date) {
			continue
		}

		slots, err := sched.SlotsForDay(date)
		if err != nil {
			return nil, err
		}
		if len(slots) == 0 {
			continue
		}

		booked, err := e.appointments.ListActiveByDoctorDate(ctx, doctorID, date)
		if err != nil {
			return nil, fmt.Errorf("load active appointments for %s: %w", date, err)
		}

		for _, slot := range slots {
			if overlapsAny(slot, booked) {
				continue
			}
			open = append(open, slot)
			if len(open) >= max {
				return open, nil
			}
		}
	}

	return open, nil
}

func overlapsAny(slot schedule.Slot, booked []appointment.Appointment) bool {
	for _, a := range booked {
		if schedule.Overlaps(slot.Start, slot.End, a.StartAt, a.EndAt) {
			return true
		}
	}
	return false
}
