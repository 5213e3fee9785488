package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var ErrTaskNotFound = errors.New("sync task not found")

// Querier is satisfied by *pgxpool.Pool and pgx.Tx, so Enqueue can join
// the booking transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository is the durable queue of pending calendar operations.
type Repository interface {
	// Enqueue records an operation for an appointment, superseding any
	// still-active task for it: the latest mutation wins, and at most one
	// task per appointment is ever pending or in flight.
	Enqueue(ctx context.Context, q Querier, appointmentID uuid.UUID, op Op) (*Task, error)

	// EnqueueIfAbsent inserts a task only when no active one exists.
	// Used by the reconciler so sweeps never duplicate work.
	EnqueueIfAbsent(ctx context.Context, appointmentID uuid.UUID, op Op) (bool, error)

	// ClaimDue atomically flips up to limit due pending tasks to in-flight
	// and returns them. Safe under concurrent workers.
	ClaimDue(ctx context.Context, limit int) ([]Task, error)

	MarkDone(ctx context.Context, id uuid.UUID) error
	RescheduleRetry(ctx context.Context, id uuid.UUID, attempts int, nextRetry time.Time, lastErr string) error
	MarkDead(ctx context.Context, id uuid.UUID, lastErr string) error

	// ReclaimStale returns in-flight tasks whose claim is older than the
	// timeout back to pending, covering crashed workers.
	ReclaimStale(ctx context.Context, claimTimeout time.Duration) (int, error)

	// RequeueDead is the explicit operator path for retrying a dead task.
	RequeueDead(ctx context.Context, id uuid.UUID) error

	Stats(ctx context.Context) (Stats, error)
}
