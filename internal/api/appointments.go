package api

import (
	"errors"
	"net/http"

	"github.com/hackgods/dental-clinic-engine/internal/appointment"
)

func (h *Handler) createAppointment(w http.ResponseWriter, r *http.Request) {
	var req CreateAppointmentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	draft := req.draft(CallerFromContext(r.Context()))
	appt, err := h.coord.BookAppointment(r.Context(), draft)
	if err != nil {
		if errors.Is(err, appointment.ErrSlotConflict) {
			h.writeConflictWithAlternatives(w, r, draft, err)
			return
		}
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, newAppointmentResponse(*appt))
}

// writeConflictWithAlternatives answers a rejected booking with the free
// slots left on the requested day across every scope the booking was checked
// against.
func (h *Handler) writeConflictWithAlternatives(w http.ResponseWriter, r *http.Request, d appointment.Draft, err error) {
	var conflict *appointment.ConflictError
	if !errors.As(err, &conflict) {
		writeServiceError(w, h.logger, err)
		return
	}

	resp := ErrorResponse{
		Error:                    "slot_conflict",
		Details:                  err.Error(),
		ConflictingAppointmentID: &conflict.ConflictingID,
	}

	day := d.Start.In(h.loc)
	scopes := conflict.Scopes
	if len(scopes) == 0 {
		scopes = []appointment.Scope{conflict.Scope}
	}
	free, ferr := h.appointments.FreeSlotsForScopes(r.Context(), day, day, scopes)
	if ferr != nil {
		h.logger.Warn().Err(ferr).Msg("could not compute alternative slots")
	} else {
		resp.Alternatives = newSlotList(free)
	}

	writeJSON(w, http.StatusConflict, resp)
}

func (h *Handler) listAppointments(w http.ResponseWriter, r *http.Request) {
	patientID, err := queryUUID(r, "patientId")
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	if patientID != nil && r.URL.Query().Get("from") == "" {
		apps, err := h.appointments.ListByPatient(r.Context(), *patientID)
		if err != nil {
			writeServiceError(w, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, newAppointmentList(apps))
		return
	}

	if r.URL.Query().Get("from") == "" {
		writeServiceError(w, h.logger, requireOne("patientId", "from"))
		return
	}
	from, err := queryDate(r, "from", h.loc)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	to, err := queryDate(r, "to", h.loc)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	filter, err := rangeFilter(r)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	filter.PatientID = patientID

	apps, err := h.appointments.ListInRange(r.Context(), from, to, filter)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newAppointmentList(apps))
}

func (h *Handler) getAppointment(w http.ResponseWriter, r *http.Request) {
	id, err := urlUUID(r, "id")
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	appt, err := h.appointments.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newAppointmentResponse(*appt))
}

func (h *Handler) updateAppointment(w http.ResponseWriter, r *http.Request) {
	id, err := urlUUID(r, "id")
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	var req UpdateAppointmentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	appt, err := h.coord.UpdateAppointment(r.Context(), id, req.update())
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newAppointmentResponse(*appt))
}

func (h *Handler) confirmAppointment(w http.ResponseWriter, r *http.Request) {
	id, err := urlUUID(r, "id")
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	appt, err := h.coord.ConfirmPayment(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newAppointmentResponse(*appt))
}

func (h *Handler) deleteAppointment(w http.ResponseWriter, r *http.Request) {
	id, err := urlUUID(r, "id")
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	if err := h.coord.DeleteAppointment(r.Context(), id); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getAvailability(w http.ResponseWriter, r *http.Request) {
	from, err := queryDate(r, "from", h.loc)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	to := from
	if r.URL.Query().Get("to") != "" {
		if to, err = queryDate(r, "to", h.loc); err != nil {
			writeServiceError(w, h.logger, err)
			return
		}
	}
	filter, err := rangeFilter(r)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	if filter.PatientID, err = queryUUID(r, "patientId"); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	lookup := h.appointments.Availability
	if r.URL.Query().Get("free") == "true" {
		lookup = h.appointments.FreeSlots
	}
	result, err := lookup(r.Context(), from, to, filter)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newSlotList(result))
}

func (h *Handler) getCatalog(w http.ResponseWriter, _ *http.Request) {
	out := make(map[string][]string)
	for t, names := range h.catalog.All() {
		out[string(t)] = names
	}
	writeJSON(w, http.StatusOK, out)
}

func rangeFilter(r *http.Request) (appointment.RangeFilter, error) {
	var f appointment.RangeFilter
	var err error
	if f.DentistID, err = queryUUID(r, "dentistId"); err != nil {
		return f, err
	}
	if f.ChairID, err = queryUUID(r, "chairId"); err != nil {
		return f, err
	}
	return f, nil
}
