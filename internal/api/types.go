package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/booking-engine/internal/appointment"
	"github.com/clinicore/booking-engine/internal/schedule"
)

type BookAppointmentRequest struct {
	DoctorID      string `json:"doctor_id"`
	Date          string `json:"date"`
	Start         string `json:"start"`
	End           string `json:"end"`
	PatientName   string `json:"patient_name"`
	PatientMobile string `json:"patient_mobile"`
	Source        string `json:"source,omitempty"`
}

type RescheduleAppointmentRequest struct {
	Date  string `json:"date"`
	Start string `json:"start"`
	End   string `json:"end"`
}

type CancelAppointmentRequest struct {
	Reason string `json:"reason,omitempty"`
}

type CompleteAppointmentRequest struct {
	Notes string `json:"notes,omitempty"`
}

type AppointmentResponse struct {
	ID              uuid.UUID `json:"id"`
	DoctorID        uuid.UUID `json:"doctor_id"`
	PatientID       uuid.UUID `json:"patient_id"`
	Date            string    `json:"date"`
	StartAt         time.Time `json:"start_at"`
	EndAt           time.Time `json:"end_at"`
	Timezone        string    `json:"timezone"`
	Status          string    `json:"status"`
	SyncStatus      string    `json:"sync_status"`
	ExternalEventID *string   `json:"external_event_id,omitempty"`
	CancelReason    *string   `json:"cancel_reason,omitempty"`
	Notes           *string   `json:"notes,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type SlotResponse struct {
	DoctorID uuid.UUID `json:"doctor_id"`
	Date     string    `json:"date"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
}

type AvailabilityResponse struct {
	DoctorID uuid.UUID      `json:"doctor_id"`
	From     string         `json:"from"`
	To       string         `json:"to"`
	Slots    []SlotResponse `json:"slots"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:              a.ID,
		DoctorID:        a.DoctorID,
		PatientID:       a.PatientID,
		Date:            a.Date,
		StartAt:         a.StartAt,
		EndAt:           a.EndAt,
		Timezone:        a.Timezone,
		Status:          string(a.Status),
		SyncStatus:      string(a.SyncStatus),
		ExternalEventID: a.ExternalEventID,
		CancelReason:    a.CancelReason,
		Notes:           a.Notes,
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
}

func toSlotResponses(slots []schedule.Slot) []SlotResponse {
	out := make([]SlotResponse, 0, len(slots))
	for _, s := range slots {
		out = append(out, SlotResponse{
			DoctorID: s.DoctorID,
			Date:     s.Date,
			Start:    s.Start,
			End:      s.End,
		})
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}
