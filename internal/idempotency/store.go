package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

type State int

const (
	// StateNew means the token was claimed and the caller must execute,
	// then call Complete, CompleteFailure or Fail.
	StateNew State = iota
	// StateInProgress means another request holding the same token has not
	// finished yet; the caller reports "still processing" and must not
	// execute again.
	StateInProgress
	// StateReplayed means a terminal outcome for this token exists and is
	// returned verbatim instead of re-executing.
	StateReplayed
	// StateConflict means the token was reused with a different payload.
	StateConflict
)

// BeginResult carries the replayed outcome when State is StateReplayed:
// either the appointment produced earlier or the cached business failure.
type BeginResult struct {
	State         State
	AppointmentID *uuid.UUID
	FailureCode   string
}

// Store records request fingerprints and their outcomes so client retries
// of the same logical operation are safe.
//
// Begin must be atomic under concurrent callers presenting the same token;
// implementations rely on a uniqueness constraint, never check-then-insert.
type Store interface {
	Begin(ctx context.Context, token, fingerprint string) (BeginResult, error)

	// Complete caches a successful outcome until expiry.
	Complete(ctx context.Context, token string, appointmentID uuid.UUID) error

	// CompleteFailure caches a definitive business rejection, so retries
	// replay the rejection instead of re-executing.
	CompleteFailure(ctx context.Context, token, failureCode string) error

	// Fail releases the token after a transient engine failure so a
	// genuinely new attempt can proceed.
	Fail(ctx context.Context, token string) error

	PurgeExpired(ctx context.Context) (int, error)
}

// Fingerprint hashes the request payload fields that define the logical
// operation. Two requests with the same token must produce the same
// fingerprint or be rejected as a conflict.
func Fingerprint(parts ...string) string {
	h := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(h[:])
}
