package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/clinicore/booking-engine/internal/observability/metrics"
	"github.com/clinicore/booking-engine/internal/schedule"
	"github.com/clinicore/booking-engine/pkg/logging"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw request body.
const SignatureHeader = "X-Calendar-Signature"

type doctorResolver interface {
	GetDoctorByChannel(ctx context.Context, channelID string) (*schedule.Doctor, error)
}

type reconcileTrigger interface {
	ReconcileDoctor(ctx context.Context, doctorID uuid.UUID) (int, error)
}

type notification struct {
	ChannelID string `json:"channel_id"`
	Resource  string `json:"resource,omitempty"`
}

// Handler verifies and decodes calendar push notifications. It never
// mutates appointment data: a valid notification only triggers a narrow
// reconciliation for the affected doctor.
type Handler struct {
	secret     string
	doctors    doctorResolver
	reconciler reconcileTrigger
	logger     *logging.Logger
	metrics    *metrics.EngineMetrics
}

func NewHandler(secret string, doctors doctorResolver, reconciler reconcileTrigger, m *metrics.EngineMetrics, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		secret:     strings.TrimSpace(secret),
		doctors:    doctors,
		reconciler: reconciler,
		logger:     logger,
		metrics:    m,
	}
}

func (h *Handler) Handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.secret == "" {
		h.logger.Error("calendar webhook secret not configured")
		http.Error(w, "webhook not configured", http.StatusInternalServerError)
		return
	}

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if !verifySignature(h.secret, payload, r.Header.Get(SignatureHeader)) {
		h.logger.Warn("invalid calendar webhook signature")
		h.metrics.ObserveWebhook("invalid_signature")
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	var n notification
	if err := json.Unmarshal(payload, &n); err != nil || n.ChannelID == "" {
		h.metrics.ObserveWebhook("malformed")
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	doctor, err := h.doctors.GetDoctorByChannel(r.Context(), n.ChannelID)
	if err != nil {
		if errors.Is(err, schedule.ErrChannelNotFound) {
			// Expired or unknown channels are routine after re-registration;
			// acknowledge and drop.
			h.logger.Warn("webhook for unknown channel", "channel_id", n.ChannelID)
			h.metrics.ObserveWebhook("unknown_channel")
			w.WriteHeader(http.StatusOK)
			return
		}
		h.logger.Error("webhook channel lookup failed", "channel_id", n.ChannelID, "error", err)
		http.Error(w, "lookup failed", http.StatusInternalServerError)
		return
	}

	enqueued, err := h.reconciler.ReconcileDoctor(r.Context(), doctor.ID)
	if err != nil {
		h.logger.Error("webhook reconcile failed", "doctor_id", doctor.ID, "error", err)
		http.Error(w, "reconcile failed", http.StatusInternalServerError)
		return
	}

	h.metrics.ObserveWebhook("accepted")
	h.logger.Info("webhook processed",
		"channel_id", n.ChannelID, "doctor_id", doctor.ID, "enqueued", enqueued)
	w.WriteHeader(http.StatusAccepted)
}

func verifySignature(secret string, payload []byte, header string) bool {
	header = strings.TrimSpace(header)
	if header == "" {
		return false
	}
	header = strings.TrimPrefix(header, "sha256=")

	provided, err := hex.DecodeString(header)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hmac.Equal(provided, mac.Sum(nil))
}
