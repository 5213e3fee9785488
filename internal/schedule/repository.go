package schedule

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrDoctorNotFound   = errors.New("doctor not found")
	ErrScheduleNotFound = errors.New("doctor schedule not found")
	ErrChannelNotFound  = errors.New("calendar channel not found")
)

// Repository is the read-only view of doctors and their schedules the
// booking engine depends on.
type Repository interface {
	GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetSchedule(ctx context.Context, doctorID uuid.UUID) (*Schedule, error)

	// Webhook intake maps a push channel back to its doctor.
	GetDoctorByChannel(ctx context.Context, channelID string) (*Doctor, error)

	// Reconciler sweeps every doctor with calendar sync enabled.
	ListSyncEnabledDoctors(ctx context.Context) ([]Doctor, error)
}
