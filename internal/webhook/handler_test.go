package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/clinicore/booking-engine/internal/schedule"
)

type fakeResolver struct {
	byChannel map[string]*schedule.Doctor
}

func (f *fakeResolver) GetDoctorByChannel(_ context.Context, channelID string) (*schedule.Doctor, error) {
	d, ok := f.byChannel[channelID]
	if !ok {
		return nil, schedule.ErrChannelNotFound
	}
	return d, nil
}

type fakeReconciler struct {
	calls []uuid.UUID
}

func (f *fakeReconciler) ReconcileDoctor(_ context.Context, doctorID uuid.UUID) (int, error) {
	f.calls = append(f.calls, doctorID)
	return 1, nil
}

const testSecret = "webhook-test-secret"

func sign(payload []byte) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func newFixture() (*Handler, *fakeReconciler, uuid.UUID) {
	doctorID := uuid.New()
	resolver := &fakeResolver{byChannel: map[string]*schedule.Doctor{
		"chan-1": {ID: doctorID, Active: true, SyncEnabled: true},
	}}
	recon := &fakeReconciler{}
	h := NewHandler(testSecret, resolver, recon, nil, nil)
	return h, recon, doctorID
}

func post(h *Handler, payload []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/calendar", bytes.NewReader(payload))
	if signature != "" {
		req.Header.Set(SignatureHeader, signature)
	}
	rec := httptest.NewRecorder()
	h.Handle(rec, req)
	return rec
}

func TestValidNotificationTriggersReconcile(t *testing.T) {
	h, recon, doctorID := newFixture()

	payload := []byte(`{"channel_id":"chan-1","resource":"events"}`)
	rec := post(h, payload, sign(payload))

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, []uuid.UUID{doctorID}, recon.calls)
}

func TestInvalidSignatureRejectedWithoutSideEffect(t *testing.T) {
	h, recon, _ := newFixture()

	payload := []byte(`{"channel_id":"chan-1"}`)

	rec := post(h, payload, "sha256=deadbeef")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = post(h, payload, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// Signature computed over a different body.
	rec = post(h, payload, sign([]byte(`{"channel_id":"chan-2"}`)))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	require.Empty(t, recon.calls)
}

func TestUnknownChannelAcknowledgedAndDropped(t *testing.T) {
	h, recon, _ := newFixture()

	payload := []byte(`{"channel_id":"chan-expired"}`)
	rec := post(h, payload, sign(payload))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, recon.calls)
}

func TestMalformedPayloadRejected(t *testing.T) {
	h, recon, _ := newFixture()

	payload := []byte(`not json`)
	rec := post(h, payload, sign(payload))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	payload = []byte(`{}`)
	rec = post(h, payload, sign(payload))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	require.Empty(t, recon.calls)
}

func TestMissingSecretFailsClosed(t *testing.T) {
	recon := &fakeReconciler{}
	h := NewHandler("", &fakeResolver{}, recon, nil, nil)

	payload := []byte(`{"channel_id":"chan-1"}`)
	rec := post(h, payload, sign(payload))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Empty(t, recon.calls)
}
