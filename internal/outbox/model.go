package outbox

import (
	"time"

	"github.com/google/uuid"
)

type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusInFlight Status = "in_flight"
	StatusDone     Status = "done"
	StatusDead     Status = "dead"
)

// Task is one pending external-calendar operation. It is written in the
// same transaction as the appointment mutation that requires it and is
// never consulted for booking correctness.
type Task struct {
	ID            uuid.UUID
	AppointmentID uuid.UUID
	Op            Op
	Status        Status
	Attempts      int
	NextRetryAt   time.Time
	ClaimedAt     *time.Time
	LastError     *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Stats is the operator-visible view of outbox health.
type Stats struct {
	PendingDepth  int
	InFlight      int
	DeadCount     int
	OldestDeadAge time.Duration
}
