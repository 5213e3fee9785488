package schedule

import (
	"fmt"
	"time"
)

// SlotsForDay generates the slot grid for one civil date, in chronological
// order. It returns nil (no error) for inactive schedules, non-working days
// and leave days. A trailing interval shorter than the slot duration is
// dropped rather than shortened.
func (s *Schedule) SlotsForDay(date string) ([]Slot, error) {
	if !s.Active || s.SlotMinutes <= 0 {
		return nil, nil
	}
	if s.OnLeave(date) {
		return nil, nil
	}

	loc, err := s.Location()
	if err != nil {
		return nil, err
	}

	day, err := time.ParseInLocation(DateLayout, date, loc)
	if err != nil {
		return nil, fmt.Errorf("parse date %q: %w", date, err)
	}

	if !s.WorkingDays[day.Weekday()] {
		return nil, nil
	}

	// Anchor both window edges with time.Date so DST shifts inside the
	// working window cannot skew the grid origin.
	y, m, d := day.Date()
	windowStart := time.Date(y, m, d, int(s.DayStart)/60, int(s.DayStart)%60, 0, 0, loc)
	windowEnd := time.Date(y, m, d, int(s.DayEnd)/60, int(s.DayEnd)%60, 0, 0, loc)
	if !windowStart.Before(windowEnd) {
		return nil, nil
	}

	dur := time.Duration(s.SlotMinutes) * time.Minute

	var slots []Slot
	for cur := windowStart; !cur.Add(dur).After(windowEnd); cur = cur.Add(dur) {
		slots = append(slots, Slot{
			DoctorID: s.DoctorID,
			Date:     date,
			Start:    cur,
			End:      cur.Add(dur),
		})
	}

	return slots, nil
}

// InstantsFor converts a date plus start/end times of day into concrete
// instants in the schedule's timezone.
func (s *Schedule) InstantsFor(date string, start, end TimeOfDay) (time.Time, time.Time, error) {
	loc, err := s.Location()
	if err != nil {
		return time.Time{}, time.Time{}, err
	}

	day, err := time.ParseInLocation(DateLayout, date, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse date %q: %w", date, err)
	}

	y, m, d := day.Date()
	startAt := time.Date(y, m, d, int(start)/60, int(start)%60, 0, 0, loc)
	endAt := time.Date(y, m, d, int(end)/60, int(end)%60, 0, 0, loc)
	return startAt, endAt, nil
}

// WithinWorkingWindow reports whether [start,end) times of day fall inside
// the schedule's working hours.
func (s *Schedule) WithinWorkingWindow(start, end TimeOfDay) bool {
	return start >= s.DayStart && end <= s.DayEnd
}
