package appointment

import (
	"fmt"
	"time"

	"github.com/clinicore/booking-engine/internal/schedule"
)

func parseDate(date string) (time.Time, error) {
	d, err := time.Parse(schedule.DateLayout, date)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date must be %s", ErrValidation, schedule.DateLayout)
	}
	return d, nil
}

func parseInterval(start, end string) (schedule.TimeOfDay, schedule.TimeOfDay, error) {
	s, err := schedule.ParseTimeOfDay(start)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: start must be HH:MM", ErrValidation)
	}
	eod, err := schedule.ParseTimeOfDay(end)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: end must be HH:MM", ErrValidation)
	}
	if eod <= s {
		return 0, 0, fmt.Errorf("%w: end must be after start", ErrValidation)
	}
	return s, eod, nil
}

// validateAgainstSchedule checks the requested interval against the
// doctor's working definition and converts it to instants in the doctor's
// timezone. Schedule-level rejections are business conflicts, not
// validation errors: the slot simply is not offered.
func (e *Engine) validateAgainstSchedule(sched *schedule.Schedule, date string, start, end schedule.TimeOfDay) (time.Time, time.Time, error) {
	if _, err := parseDate(date); err != nil {
		return time.Time{}, time.Time{}, err
	}
	if !sched.Active {
		return time.Time{}, time.Time{}, ErrDoctorInactive
	}

	loc, err := sched.Location()
	if err != nil {
		return time.Time{}, time.Time{}, err
	}

	day, err := time.ParseInLocation(schedule.DateLayout, date, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: date must be %s", ErrValidation, schedule.DateLayout)
	}

	if !sched.WorkingDays[day.Weekday()] || sched.OnLeave(date) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: doctor is not working on %s", ErrSlotUnavailable, date)
	}
	if !sched.WithinWorkingWindow(start, end) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: interval outside working hours", ErrSlotUnavailable)
	}

	return sched.InstantsFor(date, start, end)
}
