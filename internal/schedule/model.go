package schedule

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DateLayout is the wire and storage format for civil dates.
const DateLayout = "2006-01-02"

// TimeOfDay is minutes from midnight in the schedule's timezone.
type TimeOfDay int

func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("parse time of day %q: %w", s, err)
	}
	return TimeOfDay(t.Hour()*60 + t.Minute()), nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

type Doctor struct {
	ID          uuid.UUID
	Name        string
	Active      bool
	SyncEnabled bool
	CalendarID  string // external calendar the doctor's appointments mirror into
	ChannelID   string // push notification channel registered with the calendar
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Schedule is the read-only working-hours definition for one doctor.
// Administrative mutation happens outside this engine.
type Schedule struct {
	DoctorID    uuid.UUID
	WorkingDays map[time.Weekday]bool
	DayStart    TimeOfDay
	DayEnd      TimeOfDay
	SlotMinutes int
	Timezone    string
	Active      bool
	Leaves      map[string]bool // DateLayout date -> on leave
}

func (s *Schedule) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", s.Timezone, err)
	}
	return loc, nil
}

// OnLeave reports whether the given date is wholly blocked by a leave.
func (s *Schedule) OnLeave(date string) bool {
	return s.Leaves[date]
}

// Slot is one bookable interval. Start and End are instants in the
// schedule's timezone; Date is the owning civil date.
type Slot struct {
	DoctorID uuid.UUID `json:"doctor_id"`
	Date     string    `json:"date"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
}

// Overlaps is the half-open interval test used everywhere in the engine:
// [aStart,aEnd) and [bStart,bEnd) overlap iff aStart < bEnd && bStart < aEnd.
// Exactly adjacent intervals (10:00-10:30 vs 10:30-11:00) do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}
