package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgStore struct {
	pool *pgxpool.Pool
	ttl  time.Duration
}

func NewPgStore(pool *pgxpool.Pool, ttl time.Duration) *PgStore {
	return &PgStore{pool: pool, ttl: ttl}
}

func (s *PgStore) Begin(ctx context.Context, token, fingerprint string) (BeginResult, error) {
	expiresAt := time.Now().Add(s.ttl)

	// Insert-if-absent on the token primary key is the atomicity point.
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO idempotency_keys (token, fingerprint, status, expires_at, created_at, updated_at)
		VALUES ($1, $2, 'in_progress', $3, now(), now())
		ON CONFLICT (token) DO NOTHING
	`, token, fingerprint, expiresAt)
	if err != nil {
		return BeginResult{}, fmt.Errorf("claim idempotency token: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return BeginResult{State: StateNew}, nil
	}

	var storedFingerprint, status string
	var appointmentID *uuid.UUID
	var failureCode *string
	var storedExpiry time.Time

	err = s.pool.QueryRow(ctx, `
		SELECT fingerprint, status, appointment_id, failure_code, expires_at
		FROM idempotency_keys
		WHERE token = $1
	`, token).Scan(&storedFingerprint, &status, &appointmentID, &failureCode, &storedExpiry)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Row purged between insert and read; claim again.
			return s.Begin(ctx, token, fingerprint)
		}
		return BeginResult{}, fmt.Errorf("load idempotency token: %w", err)
	}

	if storedExpiry.Before(time.Now()) {
		// Expired record: take the token over for this attempt.
		tag, err := s.pool.Exec(ctx, `
			UPDATE idempotency_keys
			SET fingerprint = $2,
			    status = 'in_progress',
			    appointment_id = NULL,
			    failure_code = NULL,
			    expires_at = $3,
			    updated_at = now()
			WHERE token = $1 AND expires_at < now()
		`, token, fingerprint, expiresAt)
		if err != nil {
			return BeginResult{}, fmt.Errorf("take over expired idempotency token: %w", err)
		}
		if tag.RowsAffected() > 0 {
			return BeginResult{State: StateNew}, nil
		}
		// Lost the takeover race; fall through with a fresh read.
		return s.Begin(ctx, token, fingerprint)
	}

	if storedFingerprint != fingerprint {
		return BeginResult{State: StateConflict}, nil
	}

	switch status {
	case "in_progress":
		return BeginResult{State: StateInProgress}, nil
	case "completed":
		return BeginResult{State: StateReplayed, AppointmentID: appointmentID}, nil
	case "failed":
		code := ""
		if failureCode != nil {
			code = *failureCode
		}
		return BeginResult{State: StateReplayed, FailureCode: code}, nil
	default:
		return BeginResult{}, fmt.Errorf("idempotency token %q in unknown status %q", token, status)
	}
}

func (s *PgStore) Complete(ctx context.Context, token string, appointmentID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE idempotency_keys
		SET status = 'completed',
		    appointment_id = $2,
		    expires_at = $3,
		    updated_at = now()
		WHERE token = $1
	`, token, appointmentID, time.Now().Add(s.ttl))
	if err != nil {
		return fmt.Errorf("complete idempotency token: %w", err)
	}
	return nil
}

func (s *PgStore) CompleteFailure(ctx context.Context, token, failureCode string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE idempotency_keys
		SET status = 'failed',
		    failure_code = $2,
		    expires_at = $3,
		    updated_at = now()
		WHERE token = $1
	`, token, failureCode, time.Now().Add(s.ttl))
	if err != nil {
		return fmt.Errorf("record idempotency failure: %w", err)
	}
	return nil
}

func (s *PgStore) Fail(ctx context.Context, token string) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM idempotency_keys
		WHERE token = $1 AND status = 'in_progress'
	`, token)
	if err != nil {
		return fmt.Errorf("release idempotency token: %w", err)
	}
	return nil
}

func (s *PgStore) PurgeExpired(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM idempotency_keys
		WHERE expires_at < now()
	`)
	if err != nil {
		return 0, fmt.Errorf("purge expired idempotency tokens: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
