package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/dental-clinic-engine/internal/apperr"
	"github.com/hackgods/dental-clinic-engine/internal/appointment"
	"github.com/hackgods/dental-clinic-engine/internal/coordinator"
	"github.com/hackgods/dental-clinic-engine/internal/interval"
	"github.com/hackgods/dental-clinic-engine/internal/inventory"
	"github.com/hackgods/dental-clinic-engine/internal/logging"
	"github.com/hackgods/dental-clinic-engine/internal/slots"
	"github.com/hackgods/dental-clinic-engine/internal/treatment"
)

// Fakes embed the interface so tests only implement what they call.

type fakeCoordinator struct {
	Coordinator
	book     func(appointment.Draft) (*appointment.Appointment, error)
	confirm  func(uuid.UUID) (*appointment.Appointment, error)
	del      func(uuid.UUID) error
	complete func(uuid.UUID, treatment.Update, []inventory.Consumption, string) (*coordinator.TreatmentResult, error)
}

func (f *fakeCoordinator) BookAppointment(_ context.Context, d appointment.Draft) (*appointment.Appointment, error) {
	return f.book(d)
}

func (f *fakeCoordinator) ConfirmPayment(_ context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	return f.confirm(id)
}

func (f *fakeCoordinator) DeleteAppointment(_ context.Context, id uuid.UUID) error {
	return f.del(id)
}

func (f *fakeCoordinator) CompleteTreatmentWithMedication(_ context.Context, id uuid.UUID, u treatment.Update, meds []inventory.Consumption, actor string) (*coordinator.TreatmentResult, error) {
	return f.complete(id, u, meds, actor)
}

type fakeAppointments struct {
	Appointments
	get       func(uuid.UUID) (*appointment.Appointment, error)
	freeSlots func(from, to time.Time, f appointment.RangeFilter) ([]slots.Slot, error)
	freeFor   func(from, to time.Time, scopes []appointment.Scope) ([]slots.Slot, error)
}

func (f *fakeAppointments) Get(_ context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	return f.get(id)
}

func (f *fakeAppointments) FreeSlots(_ context.Context, from, to time.Time, filter appointment.RangeFilter) ([]slots.Slot, error) {
	return f.freeSlots(from, to, filter)
}

func (f *fakeAppointments) FreeSlotsForScopes(_ context.Context, from, to time.Time, scopes []appointment.Scope) ([]slots.Slot, error) {
	return f.freeFor(from, to, scopes)
}

type fakeInventory struct {
	Inventory
	history func(uuid.UUID, int) ([]inventory.HistoryEntry, error)
}

func (f *fakeInventory) History(_ context.Context, id uuid.UUID, limit int) ([]inventory.HistoryEntry, error) {
	return f.history(id, limit)
}

type fakeLedger struct {
	Ledger
	increment func(uuid.UUID, int, inventory.Meta) (*inventory.Change, error)
}

func (f *fakeLedger) Increment(_ context.Context, id uuid.UUID, n int, meta inventory.Meta) (*inventory.Change, error) {
	return f.increment(id, n, meta)
}

func newTestRouter(cfg RouterConfig) http.Handler {
	cfg.Logger = logging.Nop()
	if cfg.Catalog == nil {
		cfg.Catalog = treatment.DefaultCatalog()
	}
	return NewRouter(cfg)
}

func do(t *testing.T, h http.Handler, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

var nine = time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)

func bookingRequest() CreateAppointmentRequest {
	return CreateAppointmentRequest{
		PatientID:     uuid.New(),
		ServiceID:     uuid.New(),
		Start:         nine,
		End:           nine.Add(30 * time.Minute),
		NumberOfTeeth: 1,
		ServiceFee:    5000,
	}
}

func TestCreateAppointmentRecordsCaller(t *testing.T) {
	var got appointment.Draft
	router := newTestRouter(RouterConfig{Coordinator: &fakeCoordinator{
		book: func(d appointment.Draft) (*appointment.Appointment, error) {
			got = d
			a := d.Appointment()
			return &a, nil
		},
	}})

	req := bookingRequest()
	rec := do(t, router, http.MethodPost, "/appointments", req, CallerHeader, "front-desk-2")

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "front-desk-2", got.CreatedBy)
	assert.Equal(t, int64(5000), got.ServiceFeeCents)

	var resp AppointmentResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, req.PatientID, resp.PatientID)
	assert.Equal(t, "pending", resp.Status)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestCreateAppointmentConflictOffersAlternatives(t *testing.T) {
	existing := uuid.New()
	req := bookingRequest()
	var asked []appointment.Scope

	router := newTestRouter(RouterConfig{
		Coordinator: &fakeCoordinator{
			book: func(d appointment.Draft) (*appointment.Appointment, error) {
				patient := appointment.Scope{Kind: appointment.ScopePatient, ID: d.PatientID}
				return nil, &appointment.ConflictError{
					Scope:         patient,
					ConflictingID: existing,
					Scopes:        []appointment.Scope{patient},
				}
			},
		},
		Appointments: &fakeAppointments{
			freeFor: func(from, to time.Time, scopes []appointment.Scope) ([]slots.Slot, error) {
				asked = scopes
				return []slots.Slot{{
					Interval:  interval.Interval{Start: nine.Add(time.Hour), End: nine.Add(90 * time.Minute)},
					Available: true,
				}}, nil
			},
		},
	})

	rec := do(t, router, http.MethodPost, "/appointments", req)

	require.Equal(t, http.StatusConflict, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, "slot_conflict", resp.Error)
	require.NotNil(t, resp.ConflictingAppointmentID)
	assert.Equal(t, existing, *resp.ConflictingAppointmentID)
	require.Len(t, resp.Alternatives, 1)
	assert.True(t, resp.Alternatives[0].Start.Equal(nine.Add(time.Hour)))
	assert.Equal(t, []appointment.Scope{{Kind: appointment.ScopePatient, ID: req.PatientID}}, asked)
}

// A booking with a dentist that clashes on the patient must not offer slots
// the patient already holds.
func TestConflictAlternativesFollowConflictingScopes(t *testing.T) {
	req := bookingRequest()
	dentist := uuid.New()
	req.DentistID = &dentist
	var asked []appointment.Scope

	router := newTestRouter(RouterConfig{
		Coordinator: &fakeCoordinator{
			book: func(d appointment.Draft) (*appointment.Appointment, error) {
				patient := appointment.Scope{Kind: appointment.ScopePatient, ID: d.PatientID}
				return nil, &appointment.ConflictError{
					Scope:         patient,
					ConflictingID: uuid.New(),
					Scopes:        []appointment.Scope{{Kind: appointment.ScopeDentist, ID: *d.DentistID}, patient},
				}
			},
		},
		Appointments: &fakeAppointments{
			freeFor: func(from, to time.Time, scopes []appointment.Scope) ([]slots.Slot, error) {
				asked = scopes
				return nil, nil
			},
		},
	})

	rec := do(t, router, http.MethodPost, "/appointments", req)

	require.Equal(t, http.StatusConflict, rec.Code)
	assert.ElementsMatch(t, []appointment.Scope{
		{Kind: appointment.ScopePatient, ID: req.PatientID},
		{Kind: appointment.ScopeDentist, ID: dentist},
	}, asked)
}

func TestConflictAlternativesFallBackToConflictScope(t *testing.T) {
	req := bookingRequest()
	var asked []appointment.Scope

	router := newTestRouter(RouterConfig{
		Coordinator: &fakeCoordinator{
			book: func(d appointment.Draft) (*appointment.Appointment, error) {
				return nil, &appointment.ConflictError{
					Scope:         appointment.Scope{Kind: appointment.ScopePatient, ID: d.PatientID},
					ConflictingID: uuid.New(),
				}
			},
		},
		Appointments: &fakeAppointments{
			freeFor: func(from, to time.Time, scopes []appointment.Scope) ([]slots.Slot, error) {
				asked = scopes
				return nil, nil
			},
		},
	})

	rec := do(t, router, http.MethodPost, "/appointments", req)

	require.Equal(t, http.StatusConflict, rec.Code)
	require.Len(t, asked, 1)
	assert.Equal(t, req.PatientID, asked[0].ID)
}

func TestCreateAppointmentRejectsMalformedBody(t *testing.T) {
	router := newTestRouter(RouterConfig{Coordinator: &fakeCoordinator{}})

	rec := do(t, router, http.MethodPost, "/appointments", map[string]any{"patientId": "not-a-uuid"})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", decodeError(t, rec).Error)
}

func TestCreateAppointmentValidationFromEngine(t *testing.T) {
	router := newTestRouter(RouterConfig{Coordinator: &fakeCoordinator{
		book: func(appointment.Draft) (*appointment.Appointment, error) {
			return nil, apperr.Invalid("end", "must be after start")
		},
	}})

	rec := do(t, router, http.MethodPost, "/appointments", bookingRequest())

	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, "end", resp.Field)
	assert.Equal(t, "must be after start", resp.Details)
}

func TestGetAppointment(t *testing.T) {
	known := uuid.New()
	router := newTestRouter(RouterConfig{Appointments: &fakeAppointments{
		get: func(id uuid.UUID) (*appointment.Appointment, error) {
			if id != known {
				return nil, appointment.ErrAppointmentNotFound
			}
			return &appointment.Appointment{ID: id, Status: appointment.StatusConfirmed}, nil
		},
	}})

	rec := do(t, router, http.MethodGet, "/appointments/"+known.String(), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, http.MethodGet, "/appointments/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, router, http.MethodGet, "/appointments/nope", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConfirmAppointment(t *testing.T) {
	id := uuid.New()
	router := newTestRouter(RouterConfig{Coordinator: &fakeCoordinator{
		confirm: func(got uuid.UUID) (*appointment.Appointment, error) {
			return &appointment.Appointment{ID: got, Status: appointment.StatusConfirmed}, nil
		},
	}})

	rec := do(t, router, http.MethodPost, "/appointments/"+id.String()+"/confirm", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp AppointmentResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, id, resp.ID)
	assert.Equal(t, "confirmed", resp.Status)
}

func TestDeleteAppointmentStatuses(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
		code string
	}{
		{"deleted", nil, http.StatusNoContent, ""},
		{"referenced", appointment.ErrReferencedByTreatment, http.StatusConflict, "referenced_by_treatment"},
		{"store down", apperr.OperationFailed("delete appointment", errors.New("conn reset")), http.StatusServiceUnavailable, "operation_failed"},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(RouterConfig{Coordinator: &fakeCoordinator{
				del: func(uuid.UUID) error { return tt.err },
			}})

			rec := do(t, router, http.MethodDelete, "/appointments/"+uuid.NewString(), nil)

			require.Equal(t, tt.want, rec.Code)
			if tt.code != "" {
				assert.Equal(t, tt.code, decodeError(t, rec).Error)
			}
		})
	}
}

func TestReplaceTreatmentInsufficientStock(t *testing.T) {
	itemID := uuid.New()
	router := newTestRouter(RouterConfig{Coordinator: &fakeCoordinator{
		complete: func(uuid.UUID, treatment.Update, []inventory.Consumption, string) (*coordinator.TreatmentResult, error) {
			return nil, &inventory.InsufficientStockError{ItemID: itemID, Requested: 2, Available: 1, Shortfall: 1}
		},
	}})

	rec := do(t, router, http.MethodPut, "/treatments/"+uuid.NewString(), UpdateTreatmentRequest{
		DentistID:   uuid.New(),
		Type:        "medical",
		Teeth:       []ToothTreatmentDTO{{ToothNumber: "16", TreatmentName: "Filling", Status: "done"}},
		Medications: []MedicationDTO{{ItemID: itemID, Quantity: 2}},
	})

	require.Equal(t, http.StatusConflict, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, "insufficient_stock", resp.Error)
	require.NotNil(t, resp.ItemID)
	assert.Equal(t, itemID, *resp.ItemID)
	assert.Equal(t, 2, resp.Requested)
	require.NotNil(t, resp.Available)
	assert.Equal(t, 1, *resp.Available)
	assert.Equal(t, 1, resp.Shortfall)
}

func TestReplaceTreatmentReportsConsumption(t *testing.T) {
	id, itemID := uuid.New(), uuid.New()
	var gotMeds []inventory.Consumption
	var gotActor string
	router := newTestRouter(RouterConfig{Coordinator: &fakeCoordinator{
		complete: func(got uuid.UUID, u treatment.Update, meds []inventory.Consumption, actor string) (*coordinator.TreatmentResult, error) {
			gotMeds, gotActor = meds, actor
			tr := treatment.Treatment{ID: got, DentistID: u.DentistID, Type: u.Type, Teeth: u.Teeth}
			return &coordinator.TreatmentResult{
				Treatment: tr,
				Completed: true,
				Consumed: []inventory.Change{{
					Item:  inventory.Item{ID: itemID, Quantity: 3},
					Entry: inventory.HistoryEntry{ItemID: itemID, PreviousQuantity: 5, NewQuantity: 3, ChangeType: inventory.ChangePrescription, TreatmentID: &got},
				}},
			}, nil
		},
	}})

	rec := do(t, router, http.MethodPut, "/treatments/"+id.String(), UpdateTreatmentRequest{
		DentistID:   uuid.New(),
		Type:        "medical",
		Teeth:       []ToothTreatmentDTO{{ToothNumber: "16", TreatmentName: "Filling", Status: "done"}},
		Medications: []MedicationDTO{{ItemID: itemID, Quantity: 2}},
	}, CallerHeader, "dr-ana")

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []inventory.Consumption{{ItemID: itemID, Quantity: 2}}, gotMeds)
	assert.Equal(t, "dr-ana", gotActor)

	var resp TreatmentResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp.Completed)
	require.Len(t, resp.Consumed, 1)
	assert.Equal(t, -2, resp.Consumed[0].Delta)
	assert.Equal(t, "prescription", resp.Consumed[0].ChangeType)
}

func TestItemHistoryLimit(t *testing.T) {
	id := uuid.New()
	var gotLimit int
	router := newTestRouter(RouterConfig{Inventory: &fakeInventory{
		history: func(_ uuid.UUID, limit int) ([]inventory.HistoryEntry, error) {
			gotLimit = limit
			return []inventory.HistoryEntry{{ItemID: id, PreviousQuantity: 0, NewQuantity: 10, ChangeType: inventory.ChangeRestock}}, nil
		},
	}})

	rec := do(t, router, http.MethodGet, "/inventory/"+id.String()+"/history?limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, gotLimit)

	rec = do(t, router, http.MethodGet, "/inventory/"+id.String()+"/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, inventory.DefaultHistoryLimit, gotLimit)

	rec = do(t, router, http.MethodGet, "/inventory/"+id.String()+"/history?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRestockCarriesCallerAsActor(t *testing.T) {
	id := uuid.New()
	var gotMeta inventory.Meta
	var gotQty int
	router := newTestRouter(RouterConfig{Ledger: &fakeLedger{
		increment: func(itemID uuid.UUID, n int, meta inventory.Meta) (*inventory.Change, error) {
			gotQty, gotMeta = n, meta
			return &inventory.Change{
				Item:  inventory.Item{ID: itemID, Quantity: 12},
				Entry: inventory.HistoryEntry{ID: uuid.New(), ItemID: itemID, PreviousQuantity: 2, NewQuantity: 12, ChangeType: meta.ChangeType},
			}, nil
		},
	}})

	rec := do(t, router, http.MethodPost, "/inventory/"+id.String()+"/restock",
		StockRequest{Quantity: 10, Note: "delivery 42"}, CallerHeader, "stock-clerk")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 10, gotQty)
	assert.Equal(t, "stock-clerk", gotMeta.Actor)
	assert.Equal(t, inventory.ChangeRestock, gotMeta.ChangeType)
	assert.Equal(t, "delivery 42", gotMeta.Note)

	var resp ChangeResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 12, resp.Item.Quantity)
	require.NotNil(t, resp.Entry)
	assert.Equal(t, 10, resp.Entry.Delta)
}

func TestAvailabilityFreeOnly(t *testing.T) {
	dentist := uuid.New()
	var gotFrom, gotTo time.Time
	var gotFilter appointment.RangeFilter
	router := newTestRouter(RouterConfig{Appointments: &fakeAppointments{
		freeSlots: func(from, to time.Time, f appointment.RangeFilter) ([]slots.Slot, error) {
			gotFrom, gotTo, gotFilter = from, to, f
			return nil, nil
		},
	}})

	rec := do(t, router, http.MethodGet, "/availability?from=2025-03-03&free=true&dentistId="+dentist.String(), nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, gotFrom.Equal(time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)))
	assert.True(t, gotTo.Equal(gotFrom))
	require.NotNil(t, gotFilter.DentistID)
	assert.Equal(t, dentist, *gotFilter.DentistID)

	rec = do(t, router, http.MethodGet, "/availability", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCatalogListsBothTypes(t *testing.T) {
	router := newTestRouter(RouterConfig{})

	rec := do(t, router, http.MethodGet, "/catalog/treatments", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string][]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Contains(t, resp["medical"], "Filling")
	assert.Contains(t, resp["cosmetic"], "Veneer")
}

func TestRequestIDIsEchoed(t *testing.T) {
	router := newTestRouter(RouterConfig{})

	rec := do(t, router, http.MethodGet, "/catalog/treatments", nil, "X-Request-ID", "req-123")

	assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))
}
