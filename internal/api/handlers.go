package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/dental-clinic-engine/internal/apperr"
	"github.com/hackgods/dental-clinic-engine/internal/appointment"
	"github.com/hackgods/dental-clinic-engine/internal/inventory"
	redisclient "github.com/hackgods/dental-clinic-engine/internal/redis"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// writeServiceError maps the engine's error taxonomy onto HTTP.
func writeServiceError(w http.ResponseWriter, logger zerolog.Logger, err error) {
	var (
		ve       *apperr.ValidationError
		conflict *appointment.ConflictError
		stock    *inventory.InsufficientStockError
	)
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation_error", Details: ve.Reason, Field: ve.Field})
	case errors.As(err, &conflict):
		id := conflict.ConflictingID
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:                    "slot_conflict",
			Details:                  err.Error(),
			ConflictingAppointmentID: &id,
		})
	case errors.As(err, &stock):
		id, available := stock.ItemID, stock.Available
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:     "insufficient_stock",
			Details:   err.Error(),
			ItemID:    &id,
			Requested: stock.Requested,
			Available: &available,
			Shortfall: stock.Shortfall,
		})
	case errors.Is(err, appointment.ErrReferencedByTreatment):
		writeError(w, http.StatusConflict, "referenced_by_treatment", err.Error())
	case errors.Is(err, apperr.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusServiceUnavailable, "resource_busy", "resource is currently being booked, please retry shortly")
	case errors.Is(err, apperr.ErrOperationFailed):
		logger.Error().Err(err).Msg("operation failed")
		writeError(w, http.StatusServiceUnavailable, "operation_failed", "the operation could not be completed, please retry")
	default:
		logger.Error().Err(err).Msg("unhandled error")
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperr.Invalid("", "could not parse JSON: %v", err)
	}
	return nil
}

func urlUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, apperr.Invalid(name, "must be a valid UUID")
	}
	return id, nil
}

// queryUUID returns nil when the parameter is absent.
func queryUUID(r *http.Request, name string) (*uuid.UUID, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, apperr.Invalid(name, "must be a valid UUID")
	}
	return &id, nil
}

// queryDate parses YYYY-MM-DD or RFC 3339.
func queryDate(r *http.Request, name string, loc *time.Location) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, apperr.Invalid(name, "is required")
	}
	if t, err := time.ParseInLocation(time.DateOnly, raw, loc); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, apperr.Invalid(name, "must be YYYY-MM-DD or RFC 3339")
	}
	return t, nil
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, apperr.Invalid(name, "must be a positive integer")
	}
	return n, nil
}

func requireOne(names ...string) error {
	return apperr.Invalid(names[0], "one of %v is required", names)
}
