package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/clinicore/booking-engine/internal/appointment"
	"github.com/clinicore/booking-engine/internal/availability"
	"github.com/clinicore/booking-engine/internal/outbox"
	"github.com/clinicore/booking-engine/internal/schedule"
)

type fakeTaskRepo struct {
	dead     map[uuid.UUID]bool
	requeued []uuid.UUID
}

func (f *fakeTaskRepo) Enqueue(_ context.Context, _ outbox.Querier, _ uuid.UUID, _ outbox.Op) (*outbox.Task, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeTaskRepo) EnqueueIfAbsent(_ context.Context, _ uuid.UUID, _ outbox.Op) (bool, error) {
	return false, nil
}

func (f *fakeTaskRepo) ClaimDue(_ context.Context, _ int) ([]outbox.Task, error) { return nil, nil }

func (f *fakeTaskRepo) MarkDone(_ context.Context, _ uuid.UUID) error { return nil }

func (f *fakeTaskRepo) RescheduleRetry(_ context.Context, _ uuid.UUID, _ int, _ time.Time, _ string) error {
	return nil
}

func (f *fakeTaskRepo) MarkDead(_ context.Context, _ uuid.UUID, _ string) error { return nil }

func (f *fakeTaskRepo) ReclaimStale(_ context.Context, _ time.Duration) (int, error) { return 0, nil }

func (f *fakeTaskRepo) RequeueDead(_ context.Context, id uuid.UUID) error {
	if !f.dead[id] {
		return outbox.ErrTaskNotFound
	}
	f.requeued = append(f.requeued, id)
	return nil
}

func (f *fakeTaskRepo) Stats(_ context.Context) (outbox.Stats, error) { return outbox.Stats{}, nil }

func newRequeueRouter(tasks outbox.Repository) http.Handler {
	r := chi.NewRouter()
	r.Post("/admin/sync-tasks/{id}/requeue", requeueDeadTaskHandler(tasks))
	return r
}

func TestRequeueDeadTask(t *testing.T) {
	taskID := uuid.New()
	repo := &fakeTaskRepo{dead: map[uuid.UUID]bool{taskID: true}}
	router := newRequeueRouter(repo)

	req := httptest.NewRequest(http.MethodPost, "/admin/sync-tasks/"+taskID.String()+"/requeue", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, []uuid.UUID{taskID}, repo.requeued)
}

func TestRequeueUnknownTask(t *testing.T) {
	repo := &fakeTaskRepo{dead: map[uuid.UUID]bool{}}
	router := newRequeueRouter(repo)

	req := httptest.NewRequest(http.MethodPost, "/admin/sync-tasks/"+uuid.NewString()+"/requeue", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/admin/sync-tasks/not-a-uuid/requeue", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBookingErrorStatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"slot conflict", appointment.ErrSlotUnavailable, http.StatusConflict, "slot_unavailable"},
		{"idempotency conflict", appointment.ErrIdempotencyConflict, http.StatusConflict, "idempotency_conflict"},
		{"in progress", appointment.ErrRequestInProgress, http.StatusConflict, "request_in_progress"},
		{"bad transition", appointment.ErrInvalidStatusTransition, http.StatusConflict, "invalid_status_transition"},
		{"inactive doctor", appointment.ErrDoctorInactive, http.StatusUnprocessableEntity, "doctor_inactive"},
		{"validation", appointment.ErrValidation, http.StatusBadRequest, "validation_failed"},
		{"missing appointment", appointment.ErrAppointmentNotFound, http.StatusNotFound, "appointment_not_found"},
		{"missing doctor", schedule.ErrDoctorNotFound, http.StatusNotFound, "doctor_not_found"},
		{"wrapped sentinel", errors.Join(errors.New("ctx"), appointment.ErrSlotUnavailable), http.StatusConflict, "slot_unavailable"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handleBookingError(rec, tt.err)

			require.Equal(t, tt.wantStatus, rec.Code)

			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			require.Equal(t, tt.wantCode, body.Error)
		})
	}
}

func TestAvailabilityErrorStatusMapping(t *testing.T) {
	rec := httptest.NewRecorder()
	handleAvailabilityError(rec, availability.ErrInvalidRange)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	handleAvailabilityError(rec, schedule.ErrScheduleNotFound)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	handleAvailabilityError(rec, errors.New("boom"))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestListAppointmentsRequiresFilter(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/appointments", listAppointmentsHandler(nil))

	req := httptest.NewRequest(http.MethodGet, "/appointments", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "missing_filter", body.Error)
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.NotEmpty(t, seen)
	require.Equal(t, seen, rec.Header().Get("X-Request-ID"))

	// A caller-provided ID is propagated as-is.
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-from-client")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, "req-from-client", rec.Header().Get("X-Request-ID"))
}
