package appointment

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusBooked      Status = "booked"
	StatusRescheduled Status = "rescheduled"
	StatusCancelled   Status = "cancelled"
	StatusCompleted   Status = "completed"
)

// Active reports whether the appointment still occupies its slot.
func (s Status) Active() bool {
	return s == StatusBooked || s == StatusRescheduled
}

// SyncStatus tracks the external calendar mirror only. It never feeds back
// into booking decisions: the database is the sole source of truth.
type SyncStatus string

const (
	SyncPending SyncStatus = "pending"
	SyncSyncing SyncStatus = "syncing"
	SyncSynced  SyncStatus = "synced"
	SyncFailed  SyncStatus = "failed"
)

type Patient struct {
	ID        uuid.UUID
	Name      string
	Mobile    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Appointment struct {
	ID              uuid.UUID
	DoctorID        uuid.UUID
	PatientID       uuid.UUID
	Date            string // schedule.DateLayout, in the doctor's timezone
	StartAt         time.Time
	EndAt           time.Time
	Timezone        string
	Status          Status
	Source          string // who/what created the booking
	CancelReason    *string
	Notes           *string
	ExternalEventID *string
	SyncStatus      SyncStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
