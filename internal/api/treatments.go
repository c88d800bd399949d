package api

import (
	"net/http"

	"github.com/hackgods/dental-clinic-engine/internal/coordinator"
	"github.com/hackgods/dental-clinic-engine/internal/treatment"
)

func (h *Handler) createTreatment(w http.ResponseWriter, r *http.Request) {
	var req CreateTreatmentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	res, err := h.coord.CreateTreatment(r.Context(), req.draft(CallerFromContext(r.Context())), toConsumptions(req.Medications))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, newTreatmentResult(res))
}

func (h *Handler) replaceTreatment(w http.ResponseWriter, r *http.Request) {
	id, err := urlUUID(r, "id")
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	var req UpdateTreatmentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	res, err := h.coord.CompleteTreatmentWithMedication(r.Context(), id, req.update(),
		toConsumptions(req.Medications), CallerFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newTreatmentResult(res))
}

func (h *Handler) getTreatment(w http.ResponseWriter, r *http.Request) {
	id, err := urlUUID(r, "id")
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	t, err := h.treatments.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newTreatmentResponse(*t))
}

func (h *Handler) listTreatments(w http.ResponseWriter, r *http.Request) {
	patientID, err := queryUUID(r, "patientId")
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	appointmentID, err := queryUUID(r, "appointmentId")
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	var list []treatment.Treatment
	switch {
	case appointmentID != nil:
		list, err = h.treatments.ListByAppointment(r.Context(), *appointmentID)
	case patientID != nil:
		list, err = h.treatments.ListByPatient(r.Context(), *patientID)
	default:
		err = requireOne("patientId", "appointmentId")
	}
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newTreatmentList(list))
}

func (h *Handler) deleteTreatment(w http.ResponseWriter, r *http.Request) {
	id, err := urlUUID(r, "id")
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	if err := h.coord.DeleteTreatment(r.Context(), id); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func newTreatmentResult(res *coordinator.TreatmentResult) TreatmentResponse {
	resp := newTreatmentResponse(res.Treatment)
	for _, c := range res.Consumed {
		resp.Consumed = append(resp.Consumed, newHistoryResponse(c.Entry))
	}
	return resp
}
