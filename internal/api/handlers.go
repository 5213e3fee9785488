package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/clinicore/booking-engine/internal/appointment"
	"github.com/clinicore/booking-engine/internal/availability"
	"github.com/clinicore/booking-engine/internal/outbox"
	"github.com/clinicore/booking-engine/internal/schedule"
)

// IdempotencyHeader carries the client-chosen retry token for mutating
// booking operations.
const IdempotencyHeader = "Idempotency-Key"

func searchAvailabilityHandler(engine *availability.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		doctorID, err := uuid.Parse(q.Get("doctor_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
			return
		}

		from, to := q.Get("from"), q.Get("to")
		max := 0
		if raw := q.Get("max"); raw != "" {
			max, err = strconv.Atoi(raw)
			if err != nil || max < 0 {
				writeError(w, http.StatusBadRequest, "invalid_max", "max must be a non-negative integer")
				return
			}
		}

		slots, err := engine.Search(r.Context(), doctorID, from, to, max)
		if err != nil {
			handleAvailabilityError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, AvailabilityResponse{
			DoctorID: doctorID,
			From:     from,
			To:       to,
			Slots:    toSlotResponses(slots),
		})
	}
}

func bookAppointmentHandler(engine *appointment.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BookAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		doctorID, err := uuid.Parse(req.DoctorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
			return
		}

		appt, err := engine.Book(r.Context(), appointment.BookRequest{
			DoctorID:         doctorID,
			Date:             req.Date,
			Start:            req.Start,
			End:              req.End,
			PatientName:      req.PatientName,
			PatientMobile:    req.PatientMobile,
			Source:           req.Source,
			IdempotencyToken: r.Header.Get(IdempotencyHeader),
		})
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func rescheduleAppointmentHandler(engine *appointment.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		var req RescheduleAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		appt, err := engine.Reschedule(r.Context(), appointment.RescheduleRequest{
			AppointmentID:    id,
			NewDate:          req.Date,
			NewStart:         req.Start,
			NewEnd:           req.End,
			IdempotencyToken: r.Header.Get(IdempotencyHeader),
		})
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func cancelAppointmentHandler(engine *appointment.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		var req CancelAppointmentRequest
		if r.ContentLength > 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
				return
			}
		}

		appt, err := engine.Cancel(r.Context(), id, req.Reason, r.Header.Get(IdempotencyHeader))
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func completeAppointmentHandler(engine *appointment.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		var req CompleteAppointmentRequest
		if r.ContentLength > 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
				return
			}
		}

		appt, err := engine.Complete(r.Context(), id, req.Notes)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func getAppointmentHandler(engine *appointment.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		appt, err := engine.GetAppointment(r.Context(), id)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func listAppointmentsHandler(engine *appointment.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		var (
			appts []appointment.Appointment
			err   error
		)
		switch {
		case q.Get("doctor_id") != "":
			doctorID, parseErr := uuid.Parse(q.Get("doctor_id"))
			if parseErr != nil {
				writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
				return
			}
			appts, err = engine.ListByDoctor(r.Context(), doctorID, q.Get("date"))

		case q.Get("patient_id") != "":
			patientID, parseErr := uuid.Parse(q.Get("patient_id"))
			if parseErr != nil {
				writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
				return
			}
			limit, _ := strconv.Atoi(q.Get("limit"))
			offset, _ := strconv.Atoi(q.Get("offset"))
			appts, err = engine.ListByPatient(r.Context(), patientID, limit, offset)

		default:
			writeError(w, http.StatusBadRequest, "missing_filter", "doctor_id+date or patient_id is required")
			return
		}

		if err != nil {
			handleBookingError(w, err)
			return
		}

		out := make([]AppointmentResponse, 0, len(appts))
		for i := range appts {
			out = append(out, toAppointmentResponse(&appts[i]))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func requeueDeadTaskHandler(tasks outbox.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		if err := tasks.RequeueDead(r.Context(), id); err != nil {
			if errors.Is(err, outbox.ErrTaskNotFound) {
				writeError(w, http.StatusNotFound, "task_not_found", "no dead task with that id")
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		writeJSON(w, http.StatusAccepted, map[string]string{"status": "requeued"})
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func handleBookingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, schedule.ErrDoctorNotFound):
		writeError(w, http.StatusNotFound, "doctor_not_found", err.Error())
	case errors.Is(err, schedule.ErrScheduleNotFound):
		writeError(w, http.StatusNotFound, "schedule_not_found", err.Error())
	case errors.Is(err, appointment.ErrSlotUnavailable):
		writeError(w, http.StatusConflict, "slot_unavailable", err.Error())
	case errors.Is(err, appointment.ErrIdempotencyConflict):
		writeError(w, http.StatusConflict, "idempotency_conflict", err.Error())
	case errors.Is(err, appointment.ErrRequestInProgress):
		writeError(w, http.StatusConflict, "request_in_progress", "an identical request is still being processed, retry shortly")
	case errors.Is(err, appointment.ErrInvalidStatusTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	case errors.Is(err, appointment.ErrDoctorInactive):
		writeError(w, http.StatusUnprocessableEntity, "doctor_inactive", err.Error())
	case errors.Is(err, appointment.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func handleAvailabilityError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, availability.ErrInvalidRange):
		writeError(w, http.StatusBadRequest, "invalid_range", err.Error())
	case errors.Is(err, schedule.ErrScheduleNotFound), errors.Is(err, schedule.ErrDoctorNotFound):
		writeError(w, http.StatusNotFound, "doctor_not_found", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
