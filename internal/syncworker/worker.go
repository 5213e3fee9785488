package syncworker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/booking-engine/internal/appointment"
	"github.com/clinicore/booking-engine/internal/calendar"
	"github.com/clinicore/booking-engine/internal/observability/metrics"
	"github.com/clinicore/booking-engine/internal/outbox"
	"github.com/clinicore/booking-engine/internal/schedule"
	"github.com/clinicore/booking-engine/pkg/logging"
)

type taskStore interface {
	ClaimDue(ctx context.Context, limit int) ([]outbox.Task, error)
	MarkDone(ctx context.Context, id uuid.UUID) error
	RescheduleRetry(ctx context.Context, id uuid.UUID, attempts int, nextRetry time.Time, lastErr string) error
	MarkDead(ctx context.Context, id uuid.UUID, lastErr string) error
	ReclaimStale(ctx context.Context, claimTimeout time.Duration) (int, error)
	Stats(ctx context.Context) (outbox.Stats, error)
}

type appointmentStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	SetSyncState(ctx context.Context, id uuid.UUID, status appointment.SyncStatus, externalEventID *string) error
}

type doctorStore interface {
	GetDoctor(ctx context.Context, id uuid.UUID) (*schedule.Doctor, error)
}

// Worker drains the sync outbox toward the external calendar. Sync failure
// never touches booking state: the appointment stays valid in the database
// whatever happens here.
type Worker struct {
	tasks        taskStore
	appointments appointmentStore
	doctors      doctorStore
	calendar     calendar.Client
	logger       *logging.Logger
	metrics      *metrics.EngineMetrics

	interval     time.Duration
	batchSize    int
	maxAttempts  int
	baseDelay    time.Duration
	maxDelay     time.Duration
	claimTimeout time.Duration
}

func NewWorker(tasks taskStore, appointments appointmentStore, doctors doctorStore, cal calendar.Client, logger *logging.Logger) *Worker {
	if logger == nil {
		logger = logging.Default()
	}
	return &Worker{
		tasks:        tasks,
		appointments: appointments,
		doctors:      doctors,
		calendar:     cal,
		logger:       logger,
		interval:     5 * time.Second,
		batchSize:    20,
		maxAttempts:  8,
		baseDelay:    10 * time.Second,
		maxDelay:     15 * time.Minute,
		claimTimeout: 2 * time.Minute,
	}
}

func (w *Worker) WithInterval(d time.Duration) *Worker {
	if d > 0 {
		w.interval = d
	}
	return w
}

func (w *Worker) WithBatchSize(n int) *Worker {
	if n > 0 {
		w.batchSize = n
	}
	return w
}

func (w *Worker) WithMaxAttempts(n int) *Worker {
	if n > 0 {
		w.maxAttempts = n
	}
	return w
}

func (w *Worker) WithBackoff(base, max time.Duration) *Worker {
	if base > 0 {
		w.baseDelay = base
	}
	if max > 0 {
		w.maxDelay = max
	}
	return w
}

func (w *Worker) WithClaimTimeout(d time.Duration) *Worker {
	if d > 0 {
		w.claimTimeout = d
	}
	return w
}

func (w *Worker) WithMetrics(m *metrics.EngineMetrics) *Worker {
	w.metrics = m
	return w
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.drain(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.drain(ctx)
		}
	}
}

func (w *Worker) drain(ctx context.Context) {
	if reclaimed, err := w.tasks.ReclaimStale(ctx, w.claimTimeout); err != nil {
		w.logger.Error("reclaim stale sync claims failed", "error", err)
	} else if reclaimed > 0 {
		w.logger.Warn("reclaimed stale sync claims", "count", reclaimed)
	}

	tasks, err := w.tasks.ClaimDue(ctx, w.batchSize)
	if err != nil {
		w.logger.Error("claim due sync tasks failed", "error", err)
		return
	}

	for _, task := range tasks {
		w.processTask(ctx, task)
	}

	if stats, err := w.tasks.Stats(ctx); err == nil {
		w.metrics.SetOutboxStats(stats.PendingDepth, stats.DeadCount, stats.OldestDeadAge.Seconds())
	}
}

func (w *Worker) processTask(ctx context.Context, task outbox.Task) {
	appt, err := w.appointments.GetByID(ctx, task.AppointmentID)
	if err != nil {
		// Without the appointment there is nothing meaningful to retry.
		w.logger.Error("sync task references missing appointment",
			"task_id", task.ID, "appointment_id", task.AppointmentID, "error", err)
		if err := w.tasks.MarkDead(ctx, task.ID, "appointment not found"); err != nil {
			w.logger.Error("mark dead failed", "task_id", task.ID, "error", err)
		}
		return
	}

	if err := w.appointments.SetSyncState(ctx, appt.ID, appointment.SyncSyncing, nil); err != nil {
		w.logger.Error("set syncing state failed", "appointment_id", appt.ID, "error", err)
	}

	eventID, syncErr := w.perform(ctx, task, appt)
	if syncErr != nil {
		w.metrics.ObserveSync(string(task.Op), "failure")
		w.handleFailure(ctx, task, appt, syncErr)
		return
	}

	w.metrics.ObserveSync(string(task.Op), "success")
	// The event ref is stamped before the task is released: a task
	// superseded between claim and MarkDone still retries as an update
	// instead of creating a second event.
	if err := w.appointments.SetSyncState(ctx, appt.ID, appointment.SyncSynced, eventID); err != nil {
		w.logger.Error("set synced state failed", "appointment_id", appt.ID, "error", err)
	}
	if err := w.tasks.MarkDone(ctx, task.ID); err != nil {
		w.logger.Error("mark done failed", "task_id", task.ID, "error", err)
		return
	}

	w.logger.Info("sync task done",
		"task_id", task.ID, "appointment_id", appt.ID, "op", task.Op)
}

// perform executes the external call. Returns the external event id to
// stamp when one was created.
func (w *Worker) perform(ctx context.Context, task outbox.Task, appt *appointment.Appointment) (*string, error) {
	doctor, err := w.doctors.GetDoctor(ctx, appt.DoctorID)
	if err != nil {
		return nil, fmt.Errorf("load doctor: %w", err)
	}
	if doctor.CalendarID == "" {
		// No mirror configured: the task completes trivially.
		return nil, nil
	}

	ev := calendar.Event{
		Summary:  fmt.Sprintf("Appointment %s", shortID(appt.ID)),
		Start:    appt.StartAt,
		End:      appt.EndAt,
		Timezone: appt.Timezone,
	}

	switch task.Op {
	case outbox.OpCreate, outbox.OpUpdate:
		// A retried create with a stored event reference becomes an
		// update, keeping at-least-once delivery from duplicating events.
		if appt.ExternalEventID != nil {
			err := w.calendar.UpdateEvent(ctx, doctor.CalendarID, *appt.ExternalEventID, ev)
			if err == nil {
				return nil, nil
			}
			if !errors.Is(err, calendar.ErrEventNotFound) {
				return nil, err
			}
			// Mirror lost the event; recreate it.
		}
		id, err := w.calendar.CreateEvent(ctx, doctor.CalendarID, ev)
		if err != nil {
			return nil, err
		}
		return &id, nil

	case outbox.OpDelete:
		if appt.ExternalEventID == nil {
			return nil, nil
		}
		return nil, w.calendar.DeleteEvent(ctx, doctor.CalendarID, *appt.ExternalEventID)

	default:
		return nil, fmt.Errorf("unknown sync op %q", task.Op)
	}
}

func (w *Worker) handleFailure(ctx context.Context, task outbox.Task, appt *appointment.Appointment, syncErr error) {
	attempts := task.Attempts + 1

	if attempts >= w.maxAttempts {
		w.logger.Error("sync task exhausted retries",
			"task_id", task.ID, "appointment_id", appt.ID, "attempts", attempts, "error", syncErr)
		if err := w.tasks.MarkDead(ctx, task.ID, syncErr.Error()); err != nil {
			w.logger.Error("mark dead failed", "task_id", task.ID, "error", err)
		}
		if err := w.appointments.SetSyncState(ctx, appt.ID, appointment.SyncFailed, nil); err != nil {
			w.logger.Error("set failed state failed", "appointment_id", appt.ID, "error", err)
		}
		return
	}

	next := time.Now().Add(w.nextDelay(attempts))
	w.logger.Warn("sync task failed, rescheduling",
		"task_id", task.ID, "appointment_id", appt.ID,
		"attempts", attempts, "next_retry", next, "error", syncErr)

	if err := w.tasks.RescheduleRetry(ctx, task.ID, attempts, next, syncErr.Error()); err != nil {
		w.logger.Error("reschedule retry failed", "task_id", task.ID, "error", err)
	}
	if err := w.appointments.SetSyncState(ctx, appt.ID, appointment.SyncPending, nil); err != nil {
		w.logger.Error("reset pending state failed", "appointment_id", appt.ID, "error", err)
	}
}

func (w *Worker) nextDelay(attempts int) time.Duration {
	delay := w.baseDelay
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= w.maxDelay {
			return w.maxDelay
		}
	}
	if delay > w.maxDelay {
		return w.maxDelay
	}
	return delay
}

func shortID(id uuid.UUID) string {
	s := id.String()
	if len(s) > 8 {
		return s[:8]
	}
	return s
}
