package appointment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/clinicore/booking-engine/internal/idempotency"
	"github.com/clinicore/booking-engine/internal/observability/metrics"
	"github.com/clinicore/booking-engine/internal/outbox"
	"github.com/clinicore/booking-engine/internal/schedule"
	"github.com/clinicore/booking-engine/pkg/logging"
)

// Engine is the state-changing core. Every operation runs in a single
// transaction holding the doctor+date advisory lock, re-validates the
// requested interval against live data, and writes the appointment and its
// sync task together. The external calendar never participates here.
type Engine struct {
	repo      Repository
	schedules schedule.Repository
	idemp     idempotency.Store
	metrics   *metrics.EngineMetrics
	logger    *logging.Logger
}

func NewEngine(repo Repository, schedules schedule.Repository, idemp idempotency.Store, m *metrics.EngineMetrics, logger *logging.Logger) *Engine {
	if logger == nil {
		logger = logging.Default()
	}
	return &Engine{
		repo:      repo,
		schedules: schedules,
		idemp:     idemp,
		metrics:   m,
		logger:    logger,
	}
}

type BookRequest struct {
	DoctorID         uuid.UUID
	Date             string // schedule.DateLayout
	Start            string // "15:04" in the doctor's timezone
	End              string
	PatientName      string
	PatientMobile    string
	Source           string
	IdempotencyToken string
}

type RescheduleRequest struct {
	AppointmentID    uuid.UUID
	NewDate          string
	NewStart         string
	NewEnd           string
	IdempotencyToken string
}

// Book reserves the requested interval for the patient, or fails with
// ErrSlotUnavailable when any active appointment overlaps it.
func (e *Engine) Book(ctx context.Context, req BookRequest) (*Appointment, error) {
	start, end, err := parseInterval(req.Start, req.End)
	if err != nil {
		return nil, err
	}
	if req.PatientMobile == "" {
		return nil, fmt.Errorf("%w: patient mobile is required", ErrValidation)
	}

	fingerprint := idempotency.Fingerprint("book", req.DoctorID.String(), req.Date, req.Start, req.End, req.PatientMobile)
	appt, err := e.withIdempotency(ctx, req.IdempotencyToken, fingerprint, func() (*Appointment, error) {
		return e.book(ctx, req, start, end)
	})

	e.observe("book", err)
	return appt, err
}

func (e *Engine) book(ctx context.Context, req BookRequest, start, end schedule.TimeOfDay) (*Appointment, error) {
	doctor, err := e.schedules.GetDoctor(ctx, req.DoctorID)
	if err != nil {
		return nil, err
	}
	if !doctor.Active {
		return nil, ErrDoctorInactive
	}

	sched, err := e.schedules.GetSchedule(ctx, req.DoctorID)
	if err != nil {
		return nil, err
	}

	startAt, endAt, err := e.validateAgainstSchedule(sched, req.Date, start, end)
	if err != nil {
		return nil, err
	}

	patient, err := e.repo.GetOrCreatePatient(ctx, req.PatientMobile, req.PatientName)
	if err != nil {
		return nil, err
	}

	appt := &Appointment{
		ID:         uuid.New(),
		DoctorID:   req.DoctorID,
		PatientID:  patient.ID,
		Date:       req.Date,
		StartAt:    startAt,
		EndAt:      endAt,
		Timezone:   sched.Timezone,
		Status:     StatusBooked,
		Source:     req.Source,
		SyncStatus: SyncPending,
	}

	err = e.repo.InTx(ctx, req.DoctorID, req.Date, func(tx Tx) error {
		// Re-derive availability inside the lock; never trust the client's
		// earlier availability read.
		overlapping, err := tx.ListActiveOverlapping(ctx, req.DoctorID, req.Date, startAt, endAt, uuid.Nil)
		if err != nil {
			return fmt.Errorf("check overlap: %w", err)
		}
		if len(overlapping) > 0 {
			return ErrSlotUnavailable
		}

		if err := tx.Insert(ctx, appt); err != nil {
			return err
		}
		return tx.EnqueueSync(ctx, appt.ID, outbox.OpCreate)
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("appointment booked",
		"appointment_id", appt.ID, "doctor_id", req.DoctorID,
		"date", req.Date, "start", req.Start, "end", req.End)
	return appt, nil
}

// Reschedule moves an active appointment to a new interval, validating the
// new interval for conflicts while ignoring the appointment being moved.
func (e *Engine) Reschedule(ctx context.Context, req RescheduleRequest) (*Appointment, error) {
	start, end, err := parseInterval(req.NewStart, req.NewEnd)
	if err != nil {
		return nil, err
	}

	fingerprint := idempotency.Fingerprint("reschedule", req.AppointmentID.String(), req.NewDate, req.NewStart, req.NewEnd)
	appt, err := e.withIdempotency(ctx, req.IdempotencyToken, fingerprint, func() (*Appointment, error) {
		return e.reschedule(ctx, req, start, end)
	})

	e.observe("reschedule", err)
	return appt, err
}

func (e *Engine) reschedule(ctx context.Context, req RescheduleRequest, start, end schedule.TimeOfDay) (*Appointment, error) {
	current, err := e.repo.GetByID(ctx, req.AppointmentID)
	if err != nil {
		return nil, err
	}
	if !current.Status.Active() {
		return nil, fmt.Errorf("%w: cannot reschedule %s appointment", ErrInvalidStatusTransition, current.Status)
	}

	sched, err := e.schedules.GetSchedule(ctx, current.DoctorID)
	if err != nil {
		return nil, err
	}

	startAt, endAt, err := e.validateAgainstSchedule(sched, req.NewDate, start, end)
	if err != nil {
		return nil, err
	}

	var updated *Appointment
	err = e.repo.InTx(ctx, current.DoctorID, req.NewDate, func(tx Tx) error {
		appt, err := tx.Get(ctx, req.AppointmentID)
		if err != nil {
			return err
		}
		if !appt.Status.Active() {
			return fmt.Errorf("%w: cannot reschedule %s appointment", ErrInvalidStatusTransition, appt.Status)
		}

		overlapping, err := tx.ListActiveOverlapping(ctx, appt.DoctorID, req.NewDate, startAt, endAt, appt.ID)
		if err != nil {
			return fmt.Errorf("check overlap: %w", err)
		}
		if len(overlapping) > 0 {
			return ErrSlotUnavailable
		}

		appt.Date = req.NewDate
		appt.StartAt = startAt
		appt.EndAt = endAt
		appt.Status = StatusRescheduled
		appt.SyncStatus = SyncPending

		if err := tx.Update(ctx, appt); err != nil {
			return err
		}
		updated = appt
		return tx.EnqueueSync(ctx, appt.ID, outbox.OpUpdate)
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("appointment rescheduled",
		"appointment_id", updated.ID, "new_date", req.NewDate,
		"new_start", req.NewStart, "new_end", req.NewEnd)
	return updated, nil
}

// Cancel releases the slot. Cancelling an already-cancelled appointment is
// a no-op success and enqueues no duplicate sync task.
func (e *Engine) Cancel(ctx context.Context, appointmentID uuid.UUID, reason, token string) (*Appointment, error) {
	fingerprint := idempotency.Fingerprint("cancel", appointmentID.String())
	appt, err := e.withIdempotency(ctx, token, fingerprint, func() (*Appointment, error) {
		return e.cancel(ctx, appointmentID, reason)
	})

	e.observe("cancel", err)
	return appt, err
}

func (e *Engine) cancel(ctx context.Context, appointmentID uuid.UUID, reason string) (*Appointment, error) {
	current, err := e.repo.GetByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}

	var result *Appointment
	err = e.repo.InTx(ctx, current.DoctorID, current.Date, func(tx Tx) error {
		appt, err := tx.Get(ctx, appointmentID)
		if err != nil {
			return err
		}

		if appt.Status == StatusCancelled {
			result = appt
			return nil
		}
		if appt.Status == StatusCompleted {
			return fmt.Errorf("%w: cannot cancel completed appointment", ErrInvalidStatusTransition)
		}

		appt.Status = StatusCancelled
		if reason != "" {
			appt.CancelReason = &reason
		}
		appt.SyncStatus = SyncPending

		if err := tx.Update(ctx, appt); err != nil {
			return err
		}
		result = appt
		return tx.EnqueueSync(ctx, appt.ID, outbox.OpDelete)
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("appointment cancelled", "appointment_id", appointmentID, "reason", reason)
	return result, nil
}

// Complete is a terminal transition with no external-calendar effect, so no
// sync task is enqueued.
func (e *Engine) Complete(ctx context.Context, appointmentID uuid.UUID, notes string) (*Appointment, error) {
	current, err := e.repo.GetByID(ctx, appointmentID)
	if err != nil {
		e.observe("complete", err)
		return nil, err
	}

	var result *Appointment
	err = e.repo.InTx(ctx, current.DoctorID, current.Date, func(tx Tx) error {
		appt, err := tx.Get(ctx, appointmentID)
		if err != nil {
			return err
		}
		if !appt.Status.Active() {
			return fmt.Errorf("%w: cannot complete %s appointment", ErrInvalidStatusTransition, appt.Status)
		}

		appt.Status = StatusCompleted
		if notes != "" {
			appt.Notes = &notes
		}

		if err := tx.Update(ctx, appt); err != nil {
			return err
		}
		result = appt
		return nil
	})

	e.observe("complete", err)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (e *Engine) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return e.repo.GetByID(ctx, id)
}

func (e *Engine) ListByDoctor(ctx context.Context, doctorID uuid.UUID, date string) ([]Appointment, error) {
	if _, err := parseDate(date); err != nil {
		return nil, err
	}
	return e.repo.ListByDoctorDate(ctx, doctorID, date)
}

func (e *Engine) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return e.repo.ListByPatient(ctx, patientID, limit, offset)
}

// withIdempotency brackets an operation with the token protocol. An empty
// token runs the operation directly.
func (e *Engine) withIdempotency(ctx context.Context, token, fingerprint string, op func() (*Appointment, error)) (*Appointment, error) {
	if token == "" || e.idemp == nil {
		return op()
	}

	begin, err := e.idemp.Begin(ctx, token, fingerprint)
	if err != nil {
		return nil, fmt.Errorf("idempotency begin: %w", err)
	}

	switch begin.State {
	case idempotency.StateConflict:
		return nil, ErrIdempotencyConflict
	case idempotency.StateInProgress:
		return nil, ErrRequestInProgress
	case idempotency.StateReplayed:
		if begin.AppointmentID != nil {
			return e.repo.GetByID(ctx, *begin.AppointmentID)
		}
		return nil, replayFailure(begin.FailureCode)
	}

	appt, opErr := op()
	if opErr == nil {
		if err := e.idemp.Complete(ctx, token, appt.ID); err != nil {
			e.logger.Error("idempotency complete failed", "token", token, "error", err)
		}
		return appt, nil
	}

	if code := failureCode(opErr); code != "" {
		// Definitive business rejection: cache it so retries replay the
		// rejection instead of re-executing.
		if err := e.idemp.CompleteFailure(ctx, token, code); err != nil {
			e.logger.Error("idempotency failure record failed", "token", token, "error", err)
		}
	} else {
		// Transient failure: release the token so a real retry can run.
		if err := e.idemp.Fail(ctx, token); err != nil {
			e.logger.Error("idempotency release failed", "token", token, "error", err)
		}
	}
	return nil, opErr
}

func (e *Engine) observe(op string, err error) {
	outcome := "success"
	switch {
	case err == nil:
	case errors.Is(err, ErrSlotUnavailable):
		outcome = "conflict"
	case errors.Is(err, ErrIdempotencyConflict), errors.Is(err, ErrRequestInProgress):
		outcome = "idempotency"
	case errors.Is(err, ErrValidation), errors.Is(err, ErrInvalidStatusTransition), errors.Is(err, ErrDoctorInactive):
		outcome = "rejected"
	default:
		outcome = "error"
	}
	e.metrics.ObserveBooking(op, outcome)
}
