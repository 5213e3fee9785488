package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/booking-engine/internal/outbox"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrPatientNotFound     = errors.New("patient not found")
)

// Tx is the transactional view used inside a doctor+date critical section.
// The appointment write and its sync task commit or roll back together.
type Tx interface {
	Get(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// ListActiveOverlapping returns active appointments for the doctor on
	// the date whose [start,end) interval overlaps the given one, excluding
	// at most one appointment id (the one being moved).
	ListActiveOverlapping(ctx context.Context, doctorID uuid.UUID, date string, start, end time.Time, exclude uuid.UUID) ([]Appointment, error)

	Insert(ctx context.Context, a *Appointment) error
	Update(ctx context.Context, a *Appointment) error

	EnqueueSync(ctx context.Context, appointmentID uuid.UUID, op outbox.Op) error
}

// Repository contains all appointment persistence the engine and the sync
// layer need. Sync-side writers get only SetSyncState; business-state
// transitions funnel through InTx.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListByDoctorDate(ctx context.Context, doctorID uuid.UUID, date string) ([]Appointment, error)
	ListActiveByDoctorDate(ctx context.Context, doctorID uuid.UUID, date string) ([]Appointment, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error)

	GetOrCreatePatient(ctx context.Context, mobile, name string) (*Patient, error)

	// ListNeedingSync returns active appointments whose mirror is not
	// confirmed fresh: sync status != synced, or synced longer ago than
	// the freshness threshold.
	ListNeedingSync(ctx context.Context, doctorID uuid.UUID, freshness time.Duration) ([]Appointment, error)

	// SetSyncState is the only write available to the sync layer. It
	// touches sync bookkeeping fields and nothing else.
	SetSyncState(ctx context.Context, id uuid.UUID, status SyncStatus, externalEventID *string) error

	// InTx runs fn inside a transaction holding the doctor+date advisory
	// lock, serializing all booking mutations for that scope.
	InTx(ctx context.Context, doctorID uuid.UUID, date string, fn func(tx Tx) error) error
}
