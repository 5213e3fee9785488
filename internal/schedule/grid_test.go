package schedule

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func weekdaySchedule() *Schedule {
	return &Schedule{
		DoctorID: uuid.New(),
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
		Timezone:    "Asia/Kolkata",
		Active:      true,
		Leaves:      map[string]bool{},
	}
}

func TestSlotsForDayGeneratesGrid(t *testing.T) {
	s := weekdaySchedule()

	// 2026-09-07 is a Monday.
	slots, err := s.SlotsForDay("2026-09-07")
	require.NoError(t, err)
	require.Len(t, slots, 16) // 8 hours of 30-minute slots

	loc, err := s.Location()
	require.NoError(t, err)

	require.Equal(t, time.Date(2026, 9, 7, 9, 0, 0, 0, loc), slots[0].Start)
	require.Equal(t, time.Date(2026, 9, 7, 9, 30, 0, 0, loc), slots[0].End)
	require.Equal(t, time.Date(2026, 9, 7, 16, 30, 0, 0, loc), slots[len(slots)-1].Start)
	require.Equal(t, time.Date(2026, 9, 7, 17, 0, 0, 0, loc), slots[len(slots)-1].End)

	for i := 1; i < len(slots); i++ {
		require.True(t, slots[i-1].End.Equal(slots[i].Start), "grid must be contiguous")
	}
}

func TestSlotsForDayDropsPartialTrailingSlot(t *testing.T) {
	s := weekdaySchedule()
	s.DayEnd = 17*60 + 15 // 09:00-17:15 with 30-minute slots

	slots, err := s.SlotsForDay("2026-09-07")
	require.NoError(t, err)
	require.Len(t, slots, 16, "the 17:00-17:15 remainder must not become a slot")
}

func TestSlotsForDayNonWorkingDay(t *testing.T) {
	s := weekdaySchedule()

	// 2026-09-06 is a Sunday.
	slots, err := s.SlotsForDay("2026-09-06")
	require.NoError(t, err)
	require.Empty(t, slots)
}

func TestSlotsForDayLeaveAndInactive(t *testing.T) {
	s := weekdaySchedule()
	s.Leaves["2026-09-07"] = true

	slots, err := s.SlotsForDay("2026-09-07")
	require.NoError(t, err)
	require.Empty(t, slots)

	s = weekdaySchedule()
	s.Active = false
	slots, err = s.SlotsForDay("2026-09-07")
	require.NoError(t, err)
	require.Empty(t, slots)
}

func TestSlotsForDayAcrossDSTTransition(t *testing.T) {
	s := weekdaySchedule()
	s.Timezone = "America/New_York"

	// US DST ends 2026-11-01; the following Monday grid must still start at
	// 09:00 wall clock and contain exactly 16 slots.
	slots, err := s.SlotsForDay("2026-11-02")
	require.NoError(t, err)
	require.Len(t, slots, 16)

	loc, err := s.Location()
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 11, 2, 9, 0, 0, 0, loc), slots[0].Start)
}

func TestOverlapsHalfOpen(t *testing.T) {
	base := time.Date(2026, 9, 7, 10, 0, 0, 0, time.UTC)
	at := func(min int) time.Time { return base.Add(time.Duration(min) * time.Minute) }

	tests := []struct {
		name                       string
		aStart, aEnd, bStart, bEnd time.Time
		want                       bool
	}{
		{"identical", at(0), at(30), at(0), at(30), true},
		{"contained", at(0), at(60), at(15), at(30), true},
		{"partial overlap", at(0), at(30), at(15), at(45), true},
		{"adjacent intervals do not overlap", at(0), at(30), at(30), at(60), false},
		{"disjoint", at(0), at(30), at(60), at(90), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Overlaps(tt.aStart, tt.aEnd, tt.bStart, tt.bEnd))
			require.Equal(t, tt.want, Overlaps(tt.bStart, tt.bEnd, tt.aStart, tt.aEnd), "overlap must be symmetric")
		})
	}
}

func TestParseTimeOfDay(t *testing.T) {
	got, err := ParseTimeOfDay("09:30")
	require.NoError(t, err)
	require.Equal(t, TimeOfDay(9*60+30), got)
	require.Equal(t, "09:30", got.String())

	_, err = ParseTimeOfDay("9:30am")
	require.Error(t, err)
}
