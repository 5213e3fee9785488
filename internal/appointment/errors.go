package appointment

import "errors"

var (
	// ErrSlotUnavailable is the double-booking defense: the requested
	// interval overlaps an active appointment at validation time, even if
	// it was free moments earlier. Safe to retry with a different slot.
	ErrSlotUnavailable = errors.New("slot unavailable")

	// ErrIdempotencyConflict means a token was reused with a different
	// payload. Client error, never silently accepted.
	ErrIdempotencyConflict = errors.New("idempotency token reused with different payload")

	// ErrRequestInProgress means an earlier request with the same token is
	// still executing; the caller should poll rather than re-submit.
	ErrRequestInProgress = errors.New("request with this idempotency token is still processing")

	ErrInvalidStatusTransition = errors.New("invalid status transition")
	ErrDoctorInactive          = errors.New("doctor is not accepting bookings")
	ErrValidation              = errors.New("invalid booking request")
)

// failure codes cached in the idempotency store for definitive business
// rejections, replayed verbatim to retries.
const (
	failureSlotUnavailable   = "slot_unavailable"
	failureInvalidTransition = "invalid_status_transition"
)

func failureCode(err error) string {
	switch {
	case errors.Is(err, ErrSlotUnavailable):
		return failureSlotUnavailable
	case errors.Is(err, ErrInvalidStatusTransition):
		return failureInvalidTransition
	default:
		return ""
	}
}

func replayFailure(code string) error {
	switch code {
	case failureSlotUnavailable:
		return ErrSlotUnavailable
	case failureInvalidTransition:
		return ErrInvalidStatusTransition
	default:
		return ErrSlotUnavailable
	}
}
