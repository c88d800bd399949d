package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/dental-clinic-engine/internal/appointment"
	"github.com/hackgods/dental-clinic-engine/internal/inventory"
	"github.com/hackgods/dental-clinic-engine/internal/slots"
	"github.com/hackgods/dental-clinic-engine/internal/treatment"
)

type CreateAppointmentRequest struct {
	PatientID     uuid.UUID  `json:"patientId"`
	ServiceID     uuid.UUID  `json:"serviceId"`
	DentistID     *uuid.UUID `json:"dentistId,omitempty"`
	ChairID       *uuid.UUID `json:"chairId,omitempty"`
	Start         time.Time  `json:"start"`
	End           time.Time  `json:"end"`
	Status        string     `json:"status,omitempty"`
	NumberOfTeeth int        `json:"numberOfTeeth"`
	ServiceFee    int64      `json:"serviceFee"`
	Notes         string     `json:"notes,omitempty"`
}

func (r CreateAppointmentRequest) draft(caller string) appointment.Draft {
	return appointment.Draft{
		PatientID:       r.PatientID,
		ServiceID:       r.ServiceID,
		DentistID:       r.DentistID,
		ChairID:         r.ChairID,
		Start:           r.Start,
		End:             r.End,
		Status:          appointment.Status(r.Status),
		NumberOfTeeth:   r.NumberOfTeeth,
		ServiceFeeCents: r.ServiceFee,
		Notes:           r.Notes,
		CreatedBy:       caller,
	}
}

// UpdateAppointmentRequest is a partial edit; omitted fields stay unchanged.
type UpdateAppointmentRequest struct {
	Start         *time.Time `json:"start,omitempty"`
	End           *time.Time `json:"end,omitempty"`
	Status        *string    `json:"status,omitempty"`
	DentistID     *uuid.UUID `json:"dentistId,omitempty"`
	ChairID       *uuid.UUID `json:"chairId,omitempty"`
	NumberOfTeeth *int       `json:"numberOfTeeth,omitempty"`
	ServiceFee    *int64     `json:"serviceFee,omitempty"`
	Notes         *string    `json:"notes,omitempty"`
}

func (r UpdateAppointmentRequest) update() appointment.Update {
	u := appointment.Update{
		Start:           r.Start,
		End:             r.End,
		DentistID:       r.DentistID,
		ChairID:         r.ChairID,
		NumberOfTeeth:   r.NumberOfTeeth,
		ServiceFeeCents: r.ServiceFee,
		Notes:           r.Notes,
	}
	if r.Status != nil {
		s := appointment.Status(*r.Status)
		u.Status = &s
	}
	return u
}

type AppointmentResponse struct {
	ID            uuid.UUID  `json:"id"`
	PatientID     uuid.UUID  `json:"patientId"`
	ServiceID     uuid.UUID  `json:"serviceId"`
	DentistID     *uuid.UUID `json:"dentistId,omitempty"`
	ChairID       *uuid.UUID `json:"chairId,omitempty"`
	Start         time.Time  `json:"start"`
	End           time.Time  `json:"end"`
	Status        string     `json:"status"`
	NumberOfTeeth int        `json:"numberOfTeeth"`
	ServiceFee    int64      `json:"serviceFee"`
	Notes         string     `json:"notes,omitempty"`
	CreatedBy     string     `json:"createdBy,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

func newAppointmentResponse(a appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:            a.ID,
		PatientID:     a.PatientID,
		ServiceID:     a.ServiceID,
		DentistID:     a.DentistID,
		ChairID:       a.ChairID,
		Start:         a.Start,
		End:           a.End,
		Status:        string(a.Status),
		NumberOfTeeth: a.NumberOfTeeth,
		ServiceFee:    a.ServiceFeeCents,
		Notes:         a.Notes,
		CreatedBy:     a.CreatedBy,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
}

func newAppointmentList(apps []appointment.Appointment) []AppointmentResponse {
	out := make([]AppointmentResponse, len(apps))
	for i, a := range apps {
		out[i] = newAppointmentResponse(a)
	}
	return out
}

type SlotResponse struct {
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Available bool      `json:"available"`
}

func newSlotList(ss []slots.Slot) []SlotResponse {
	out := make([]SlotResponse, len(ss))
	for i, s := range ss {
		out[i] = SlotResponse{Start: s.Start, End: s.End, Available: s.Available}
	}
	return out
}

type ToothTreatmentDTO struct {
	ToothNumber   string `json:"toothNumber"`
	TreatmentName string `json:"treatmentName"`
	Status        string `json:"status,omitempty"`
}

type MedicationDTO struct {
	ItemID   uuid.UUID `json:"itemId"`
	Quantity int       `json:"quantity"`
}

type CreateTreatmentRequest struct {
	PatientID     uuid.UUID           `json:"patientId"`
	AppointmentID *uuid.UUID          `json:"appointmentId,omitempty"`
	DentistID     uuid.UUID           `json:"dentistId"`
	Date          time.Time           `json:"date"`
	Notes         string              `json:"notes,omitempty"`
	Type          string              `json:"type"`
	Teeth         []ToothTreatmentDTO `json:"teeth"`
	Medications   []MedicationDTO     `json:"medications,omitempty"`
}

func (r CreateTreatmentRequest) draft(caller string) treatment.Draft {
	return treatment.Draft{
		PatientID:     r.PatientID,
		AppointmentID: r.AppointmentID,
		DentistID:     r.DentistID,
		Date:          r.Date,
		Notes:         r.Notes,
		Type:          treatment.Type(r.Type),
		Teeth:         toTeeth(r.Teeth),
		CreatedBy:     caller,
	}
}

// UpdateTreatmentRequest replaces the whole treatment document.
type UpdateTreatmentRequest struct {
	DentistID   uuid.UUID           `json:"dentistId"`
	Date        time.Time           `json:"date"`
	Notes       string              `json:"notes,omitempty"`
	Type        string              `json:"type"`
	Teeth       []ToothTreatmentDTO `json:"teeth"`
	Medications []MedicationDTO     `json:"medications,omitempty"`
}

func (r UpdateTreatmentRequest) update() treatment.Update {
	return treatment.Update{
		DentistID: r.DentistID,
		Date:      r.Date,
		Notes:     r.Notes,
		Type:      treatment.Type(r.Type),
		Teeth:     toTeeth(r.Teeth),
	}
}

func toTeeth(in []ToothTreatmentDTO) []treatment.ToothTreatment {
	out := make([]treatment.ToothTreatment, len(in))
	for i, t := range in {
		out[i] = treatment.ToothTreatment{
			ToothNumber:   t.ToothNumber,
			TreatmentName: t.TreatmentName,
			Status:        treatment.ToothStatus(t.Status),
		}
	}
	return out
}

func toConsumptions(in []MedicationDTO) []inventory.Consumption {
	if len(in) == 0 {
		return nil
	}
	out := make([]inventory.Consumption, len(in))
	for i, m := range in {
		out[i] = inventory.Consumption{ItemID: m.ItemID, Quantity: m.Quantity}
	}
	return out
}

type TreatmentResponse struct {
	ID            uuid.UUID           `json:"id"`
	PatientID     uuid.UUID           `json:"patientId"`
	AppointmentID *uuid.UUID          `json:"appointmentId,omitempty"`
	DentistID     uuid.UUID           `json:"dentistId"`
	Date          string              `json:"date"`
	Notes         string              `json:"notes,omitempty"`
	Type          string              `json:"type"`
	Teeth         []ToothTreatmentDTO `json:"teeth"`
	Completed     bool                `json:"completed"`
	CreatedBy     string              `json:"createdBy,omitempty"`
	CreatedAt     time.Time           `json:"createdAt"`
	UpdatedAt     time.Time           `json:"updatedAt"`
	// Consumed is set on writes that took medication from stock.
	Consumed []HistoryResponse `json:"consumed,omitempty"`
}

func newTreatmentResponse(t treatment.Treatment) TreatmentResponse {
	teeth := make([]ToothTreatmentDTO, len(t.Teeth))
	for i, tt := range t.Teeth {
		teeth[i] = ToothTreatmentDTO{ToothNumber: tt.ToothNumber, TreatmentName: tt.TreatmentName, Status: string(tt.Status)}
	}
	return TreatmentResponse{
		ID:            t.ID,
		PatientID:     t.PatientID,
		AppointmentID: t.AppointmentID,
		DentistID:     t.DentistID,
		Date:          t.Date.Format(time.DateOnly),
		Notes:         t.Notes,
		Type:          string(t.Type),
		Teeth:         teeth,
		Completed:     t.Completed(),
		CreatedBy:     t.CreatedBy,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
	}
}

func newTreatmentList(ts []treatment.Treatment) []TreatmentResponse {
	out := make([]TreatmentResponse, len(ts))
	for i, t := range ts {
		out[i] = newTreatmentResponse(t)
	}
	return out
}

type CreateItemRequest struct {
	Name        string     `json:"name"`
	Category    string     `json:"category,omitempty"`
	Quantity    int        `json:"quantity"`
	MinQuantity int        `json:"minQuantity"`
	SupplierID  *uuid.UUID `json:"supplierId,omitempty"`
	BatchNumber string     `json:"batchNumber,omitempty"`
	Location    string     `json:"location,omitempty"`
	Expiration  *time.Time `json:"expiration,omitempty"`
}

func (r CreateItemRequest) draft() inventory.ItemDraft {
	return inventory.ItemDraft{
		Name:        r.Name,
		Category:    r.Category,
		Quantity:    r.Quantity,
		MinQuantity: r.MinQuantity,
		SupplierID:  r.SupplierID,
		BatchNumber: r.BatchNumber,
		Location:    r.Location,
		Expiration:  r.Expiration,
	}
}

// StockRequest drives restock, consume and absolute adjustments.
type StockRequest struct {
	Quantity int    `json:"quantity"`
	Note     string `json:"note,omitempty"`
}

type CorrectionRequest struct {
	Delta int    `json:"delta"`
	Note  string `json:"note,omitempty"`
}

type ItemResponse struct {
	ID          uuid.UUID  `json:"id"`
	Name        string     `json:"name"`
	Category    string     `json:"category,omitempty"`
	Quantity    int        `json:"quantity"`
	MinQuantity int        `json:"minQuantity"`
	LowStock    bool       `json:"lowStock"`
	SupplierID  *uuid.UUID `json:"supplierId,omitempty"`
	BatchNumber string     `json:"batchNumber,omitempty"`
	Location    string     `json:"location,omitempty"`
	Expiration  *time.Time `json:"expiration,omitempty"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

func newItemResponse(i inventory.Item) ItemResponse {
	return ItemResponse{
		ID:          i.ID,
		Name:        i.Name,
		Category:    i.Category,
		Quantity:    i.Quantity,
		MinQuantity: i.MinQuantity,
		LowStock:    i.LowStock(),
		SupplierID:  i.SupplierID,
		BatchNumber: i.BatchNumber,
		Location:    i.Location,
		Expiration:  i.Expiration,
		UpdatedAt:   i.UpdatedAt,
	}
}

func newItemList(items []inventory.Item) []ItemResponse {
	out := make([]ItemResponse, len(items))
	for i, it := range items {
		out[i] = newItemResponse(it)
	}
	return out
}

type HistoryResponse struct {
	ID               uuid.UUID  `json:"id"`
	ItemID           uuid.UUID  `json:"itemId"`
	PreviousQuantity int        `json:"previousQuantity"`
	NewQuantity      int        `json:"newQuantity"`
	Delta            int        `json:"delta"`
	ChangeType       string     `json:"changeType"`
	Note             string     `json:"note,omitempty"`
	Actor            string     `json:"actor,omitempty"`
	TreatmentID      *uuid.UUID `json:"treatmentId,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
}

func newHistoryResponse(h inventory.HistoryEntry) HistoryResponse {
	return HistoryResponse{
		ID:               h.ID,
		ItemID:           h.ItemID,
		PreviousQuantity: h.PreviousQuantity,
		NewQuantity:      h.NewQuantity,
		Delta:            h.Delta(),
		ChangeType:       string(h.ChangeType),
		Note:             h.Note,
		Actor:            h.Actor,
		TreatmentID:      h.TreatmentID,
		CreatedAt:        h.CreatedAt,
	}
}

func newHistoryList(entries []inventory.HistoryEntry) []HistoryResponse {
	out := make([]HistoryResponse, len(entries))
	for i, h := range entries {
		out[i] = newHistoryResponse(h)
	}
	return out
}

// ChangeResponse is the result of a single stock mutation.
type ChangeResponse struct {
	Item  ItemResponse     `json:"item"`
	Entry *HistoryResponse `json:"entry,omitempty"`
}

func newChangeResponse(c inventory.Change) ChangeResponse {
	resp := ChangeResponse{Item: newItemResponse(c.Item)}
	if c.Recorded() {
		entry := newHistoryResponse(c.Entry)
		resp.Entry = &entry
	}
	return resp
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Field   string `json:"field,omitempty"`

	ConflictingAppointmentID *uuid.UUID     `json:"conflictingAppointmentId,omitempty"`
	Alternatives             []SlotResponse `json:"alternatives,omitempty"`

	ItemID    *uuid.UUID `json:"itemId,omitempty"`
	Requested int        `json:"requested,omitempty"`
	Available *int       `json:"available,omitempty"`
	Shortfall int        `json:"shortfall,omitempty"`
}
