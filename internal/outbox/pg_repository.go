package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const taskColumns = `id, appointment_id, op, status, attempts, next_retry_at, claimed_at, last_error, created_at, updated_at`

func scanTask(row pgx.Row) (*Task, error) {
	var t Task
	err := row.Scan(
		&t.ID,
		&t.AppointmentID,
		&t.Op,
		&t.Status,
		&t.Attempts,
		&t.NextRetryAt,
		&t.ClaimedAt,
		&t.LastError,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (r *PgRepository) Enqueue(ctx context.Context, q Querier, appointmentID uuid.UUID, op Op) (*Task, error) {
	if q == nil {
		q = r.pool
	}

	// Supersede a still-active task first; the booking transaction holds
	// the doctor+date advisory lock, so this cannot race with itself.
	row := q.QueryRow(ctx, `
		UPDATE sync_tasks
		SET op = $2,
		    status = 'pending',
		    attempts = 0,
		    next_retry_at = now(),
		    claimed_at = NULL,
		    last_error = NULL,
		    updated_at = now()
		WHERE appointment_id = $1
		  AND status IN ('pending', 'in_flight')
		RETURNING `+taskColumns, appointmentID, op)

	task, err := scanTask(row)
	if err == nil {
		return task, nil
	}
	if !errors.Is(err, ErrTaskNotFound) {
		return nil, fmt.Errorf("supersede sync task: %w", err)
	}

	row = q.QueryRow(ctx, `
		INSERT INTO sync_tasks (id, appointment_id, op, status, attempts, next_retry_at, created_at, updated_at)
		VALUES ($1, $2, $3, 'pending', 0, now(), now(), now())
		RETURNING `+taskColumns, uuid.New(), appointmentID, op)

	task, err = scanTask(row)
	if err != nil {
		return nil, fmt.Errorf("insert sync task: %w", err)
	}
	return task, nil
}

func (r *PgRepository) EnqueueIfAbsent(ctx context.Context, appointmentID uuid.UUID, op Op) (bool, error) {
	// The partial unique index on (appointment_id) WHERE status IN
	// ('pending','in_flight') makes this race-safe across reconciler and
	// booking-path writers.
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO sync_tasks (id, appointment_id, op, status, attempts, next_retry_at, created_at, updated_at)
		VALUES ($1, $2, $3, 'pending', 0, now(), now(), now())
		ON CONFLICT (appointment_id) WHERE status IN ('pending', 'in_flight')
		DO NOTHING
	`, uuid.New(), appointmentID, op)
	if err != nil {
		return false, fmt.Errorf("enqueue sync task if absent: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PgRepository) ClaimDue(ctx context.Context, limit int) ([]Task, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE sync_tasks t
		SET status = 'in_flight',
		    claimed_at = now(),
		    updated_at = now()
		FROM (
			SELECT id
			FROM sync_tasks
			WHERE status = 'pending'
			  AND next_retry_at <= now()
			ORDER BY next_retry_at, created_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		) due
		WHERE t.id = due.id
		RETURNING t.id, t.appointment_id, t.op, t.status, t.attempts, t.next_retry_at,
		          t.claimed_at, t.last_error, t.created_at, t.updated_at
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("claim due sync tasks: %w", err)
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}

	return tasks, rows.Err()
}

func (r *PgRepository) MarkDone(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE sync_tasks
		SET status = 'done', claimed_at = NULL, updated_at = now()
		WHERE id = $1 AND status = 'in_flight'
	`, id)
	if err != nil {
		return fmt.Errorf("mark sync task done: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTaskNotFound
	}
	return nil
}

func (r *PgRepository) RescheduleRetry(ctx context.Context, id uuid.UUID, attempts int, nextRetry time.Time, lastErr string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE sync_tasks
		SET status = 'pending',
		    attempts = $2,
		    next_retry_at = $3,
		    claimed_at = NULL,
		    last_error = $4,
		    updated_at = now()
		WHERE id = $1 AND status = 'in_flight'
	`, id, attempts, nextRetry, lastErr)
	if err != nil {
		return fmt.Errorf("reschedule sync task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTaskNotFound
	}
	return nil
}

func (r *PgRepository) MarkDead(ctx context.Context, id uuid.UUID, lastErr string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE sync_tasks
		SET status = 'dead', claimed_at = NULL, last_error = $2, updated_at = now()
		WHERE id = $1 AND status = 'in_flight'
	`, id, lastErr)
	if err != nil {
		return fmt.Errorf("mark sync task dead: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTaskNotFound
	}
	return nil
}

func (r *PgRepository) ReclaimStale(ctx context.Context, claimTimeout time.Duration) (int, error) {
	cutoff := time.Now().Add(-claimTimeout)

	tag, err := r.pool.Exec(ctx, `
		UPDATE sync_tasks
		SET status = 'pending', claimed_at = NULL, updated_at = now()
		WHERE status = 'in_flight' AND claimed_at < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale sync tasks: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *PgRepository) RequeueDead(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE sync_tasks
		SET status = 'pending',
		    attempts = 0,
		    next_retry_at = now(),
		    claimed_at = NULL,
		    updated_at = now()
		WHERE id = $1 AND status = 'dead'
	`, id)
	if err != nil {
		return fmt.Errorf("requeue dead sync task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTaskNotFound
	}
	return nil
}

func (r *PgRepository) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	var oldestDead *time.Time

	err := r.pool.QueryRow(ctx, `
		SELECT
			count(*) FILTER (WHERE status = 'pending'),
			count(*) FILTER (WHERE status = 'in_flight'),
			count(*) FILTER (WHERE status = 'dead'),
			min(updated_at) FILTER (WHERE status = 'dead')
		FROM sync_tasks
	`).Scan(&s.PendingDepth, &s.InFlight, &s.DeadCount, &oldestDead)
	if err != nil {
		return Stats{}, fmt.Errorf("outbox stats: %w", err)
	}

	if oldestDead != nil {
		s.OldestDeadAge = time.Since(*oldestDead)
	}
	return s, nil
}
