package appointment

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/booking-engine/internal/outbox"
)

type PgRepository struct {
	pool   *pgxpool.Pool
	outbox outbox.Repository
}

func NewPgRepository(pool *pgxpool.Pool, outboxRepo outbox.Repository) *PgRepository {
	return &PgRepository{pool: pool, outbox: outboxRepo}
}

const appointmentColumns = `id, doctor_id, patient_id, to_char(date, 'YYYY-MM-DD'), start_at, end_at,
	timezone, status, source, cancel_reason, notes, external_event_id, sync_status, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.DoctorID,
		&a.PatientID,
		&a.Date,
		&a.StartAt,
		&a.EndAt,
		&a.Timezone,
		&a.Status,
		&a.Source,
		&a.CancelReason,
		&a.Notes,
		&a.ExternalEventID,
		&a.SyncStatus,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	return &a, nil
}

func scanAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	return result, rows.Err()
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListByDoctorDate(ctx context.Context, doctorID uuid.UUID, date string) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1 AND date = $2
		ORDER BY start_at
	`, doctorID, date)
	if err != nil {
		return nil, err
	}
	return scanAppointments(rows)
}

func (r *PgRepository) ListActiveByDoctorDate(ctx context.Context, doctorID uuid.UUID, date string) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1 AND date = $2
		  AND status IN ('booked', 'rescheduled')
		ORDER BY start_at
	`, doctorID, date)
	if err != nil {
		return nil, err
	}
	return scanAppointments(rows)
}

func (r *PgRepository) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY start_at DESC
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	if err != nil {
		return nil, err
	}
	return scanAppointments(rows)
}

func (r *PgRepository) GetOrCreatePatient(ctx context.Context, mobile, name string) (*Patient, error) {
	var p Patient

	// Upsert keyed on the mobile number; an existing patient keeps their
	// stored name.
	err := r.pool.QueryRow(ctx, `
		INSERT INTO patients (id, name, mobile, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
		ON CONFLICT (mobile) DO UPDATE SET updated_at = now()
		RETURNING id, name, mobile, created_at, updated_at
	`, uuid.New(), name, mobile).Scan(&p.ID, &p.Name, &p.Mobile, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("get or create patient: %w", err)
	}
	return &p, nil
}

func (r *PgRepository) ListNeedingSync(ctx context.Context, doctorID uuid.UUID, freshness time.Duration) ([]Appointment, error) {
	cutoff := time.Now().Add(-freshness)

	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		  AND status IN ('booked', 'rescheduled')
		  AND (sync_status <> 'synced' OR updated_at < $2)
		ORDER BY start_at
	`, doctorID, cutoff)
	if err != nil {
		return nil, err
	}
	return scanAppointments(rows)
}

func (r *PgRepository) SetSyncState(ctx context.Context, id uuid.UUID, status SyncStatus, externalEventID *string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET sync_status = $2,
		    external_event_id = COALESCE($3, external_event_id),
		    updated_at = now()
		WHERE id = $1
	`, id, status, externalEventID)
	if err != nil {
		return fmt.Errorf("set sync state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

// lockKey derives the advisory lock key for one doctor+date scope.
func lockKey(doctorID uuid.UUID, date string) int64 {
	h := fnv.New64a()
	h.Write([]byte(doctorID.String()))
	h.Write([]byte{'|'})
	h.Write([]byte(date))
	return int64(h.Sum64())
}

func (r *PgRepository) InTx(ctx context.Context, doctorID uuid.UUID, date string, fn func(tx Tx) error) error {
	pgxTx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin booking tx: %w", err)
	}
	defer pgxTx.Rollback(ctx)

	// Transaction-scoped advisory lock: released on commit or rollback,
	// serializes every mutation for this doctor+date across processes.
	if _, err := pgxTx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, lockKey(doctorID, date)); err != nil {
		return fmt.Errorf("acquire doctor+date lock: %w", err)
	}

	if err := fn(&pgTx{tx: pgxTx, outbox: r.outbox}); err != nil {
		return err
	}

	if err := pgxTx.Commit(ctx); err != nil {
		return fmt.Errorf("commit booking tx: %w", err)
	}
	return nil
}

type pgTx struct {
	tx     pgx.Tx
	outbox outbox.Repository
}

// Get row-locks the appointment for the rest of the transaction. The
// advisory lock only serializes one doctor+date scope; operations on the
// same appointment from different date scopes meet at this row lock, so
// the status re-checks above it never read a stale row.
func (t *pgTx) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, id)
	return scanAppointment(row)
}

func (t *pgTx) ListActiveOverlapping(ctx context.Context, doctorID uuid.UUID, date string, start, end time.Time, exclude uuid.UUID) ([]Appointment, error) {
	// Half-open interval overlap: startA < endB AND startB < endA.
	rows, err := t.tx.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1 AND date = $2
		  AND status IN ('booked', 'rescheduled')
		  AND start_at < $4 AND $3 < end_at
		  AND id <> $5
		ORDER BY start_at
	`, doctorID, date, start, end, exclude)
	if err != nil {
		return nil, err
	}
	return scanAppointments(rows)
}

func (t *pgTx) Insert(ctx context.Context, a *Appointment) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO appointments (id, doctor_id, patient_id, date, start_at, end_at, timezone,
			status, source, cancel_reason, notes, external_event_id, sync_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now(), now())
		RETURNING created_at, updated_at
	`, a.ID, a.DoctorID, a.PatientID, a.Date, a.StartAt, a.EndAt, a.Timezone,
		a.Status, a.Source, a.CancelReason, a.Notes, a.ExternalEventID, a.SyncStatus,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (t *pgTx) Update(ctx context.Context, a *Appointment) error {
	err := t.tx.QueryRow(ctx, `
		UPDATE appointments
		SET date = $2, start_at = $3, end_at = $4, status = $5,
		    cancel_reason = $6, notes = $7, sync_status = $8, updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, a.ID, a.Date, a.StartAt, a.EndAt, a.Status,
		a.CancelReason, a.Notes, a.SyncStatus,
	).Scan(&a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrAppointmentNotFound
		}
		return fmt.Errorf("update appointment: %w", err)
	}
	return nil
}

func (t *pgTx) EnqueueSync(ctx context.Context, appointmentID uuid.UUID, op outbox.Op) error {
	_, err := t.outbox.Enqueue(ctx, t.tx, appointmentID, op)
	return err
}
