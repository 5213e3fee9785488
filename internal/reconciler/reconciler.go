package reconciler

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/booking-engine/internal/appointment"
	"github.com/clinicore/booking-engine/internal/outbox"
	"github.com/clinicore/booking-engine/internal/schedule"
	"github.com/clinicore/booking-engine/pkg/logging"
)

type appointmentStore interface {
	ListNeedingSync(ctx context.Context, doctorID uuid.UUID, freshness time.Duration) ([]appointment.Appointment, error)
}

type taskStore interface {
	EnqueueIfAbsent(ctx context.Context, appointmentID uuid.UUID, op outbox.Op) (bool, error)
}

type doctorStore interface {
	ListSyncEnabledDoctors(ctx context.Context) ([]schedule.Doctor, error)
}

// Reconciler is the backstop for missed webhooks and dead sync tasks: it
// re-derives what the mirror should look like from the database and
// re-enqueues divergent operations. It never writes appointment data from
// external state; local data is authoritative and drift is only repaired
// outward.
type Reconciler struct {
	appointments appointmentStore
	tasks        taskStore
	doctors      doctorStore
	logger       *logging.Logger

	interval  time.Duration
	freshness time.Duration
}

func New(appointments appointmentStore, tasks taskStore, doctors doctorStore, logger *logging.Logger) *Reconciler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Reconciler{
		appointments: appointments,
		tasks:        tasks,
		doctors:      doctors,
		logger:       logger,
		interval:     15 * time.Minute,
		freshness:    6 * time.Hour,
	}
}

func (r *Reconciler) WithInterval(d time.Duration) *Reconciler {
	if d > 0 {
		r.interval = d
	}
	return r
}

func (r *Reconciler) WithFreshness(d time.Duration) *Reconciler {
	if d > 0 {
		r.freshness = d
	}
	return r
}

func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *Reconciler) sweep(ctx context.Context) {
	doctors, err := r.doctors.ListSyncEnabledDoctors(ctx)
	if err != nil {
		r.logger.Error("reconciler: list doctors failed", "error", err)
		return
	}

	start := time.Now()
	total := 0
	for _, d := range doctors {
		n, err := r.ReconcileDoctor(ctx, d.ID)
		if err != nil {
			r.logger.Error("reconciler: doctor sweep failed", "doctor_id", d.ID, "error", err)
			continue
		}
		total += n
	}

	if total > 0 {
		r.logger.Info("reconciler: sweep complete",
			"doctors", len(doctors), "enqueued", total, "elapsed", time.Since(start))
	}
}

// ReconcileDoctor re-enqueues sync work for one doctor's unsynced or stale
// active appointments, skipping any that already have an active task. This
// is also the narrow path triggered by webhook notifications.
func (r *Reconciler) ReconcileDoctor(ctx context.Context, doctorID uuid.UUID) (int, error) {
	appts, err := r.appointments.ListNeedingSync(ctx, doctorID, r.freshness)
	if err != nil {
		return 0, err
	}

	enqueued := 0
	for _, a := range appts {
		op := outbox.OpUpdate
		if a.ExternalEventID == nil {
			op = outbox.OpCreate
		}

		ok, err := r.tasks.EnqueueIfAbsent(ctx, a.ID, op)
		if err != nil {
			r.logger.Error("reconciler: enqueue failed", "appointment_id", a.ID, "error", err)
			continue
		}
		if ok {
			enqueued++
			r.logger.Debug("reconciler: re-enqueued sync",
				"appointment_id", a.ID, "op", op, "sync_status", a.SyncStatus)
		}
	}

	return enqueued, nil
}
