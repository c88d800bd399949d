package coordinator

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/dental-clinic-engine/internal/appointment"
	"github.com/hackgods/dental-clinic-engine/internal/treatment"
)

type appointmentPayload struct {
	ID        uuid.UUID  `json:"id"`
	PatientID uuid.UUID  `json:"patientId"`
	DentistID *uuid.UUID `json:"dentistId,omitempty"`
	ChairID   *uuid.UUID `json:"chairId,omitempty"`
	Start     time.Time  `json:"start"`
	End       time.Time  `json:"end"`
	Status    string     `json:"status"`
}

func newAppointmentPayload(a appointment.Appointment) appointmentPayload {
	return appointmentPayload{
		ID:        a.ID,
		PatientID: a.PatientID,
		DentistID: a.DentistID,
		ChairID:   a.ChairID,
		Start:     a.Start,
		End:       a.End,
		Status:    string(a.Status),
	}
}

type toothPayload struct {
	ToothNumber   string `json:"toothNumber"`
	TreatmentName string `json:"treatmentName"`
	Status        string `json:"status"`
}

type treatmentPayload struct {
	ID            uuid.UUID      `json:"id"`
	PatientID     uuid.UUID      `json:"patientId"`
	AppointmentID *uuid.UUID     `json:"appointmentId,omitempty"`
	Type          string         `json:"type"`
	Completed     bool           `json:"completed"`
	Teeth         []toothPayload `json:"teeth"`
}

func newTreatmentPayload(t treatment.Treatment) treatmentPayload {
	teeth := make([]toothPayload, len(t.Teeth))
	for i, tt := range t.Teeth {
		teeth[i] = toothPayload{ToothNumber: tt.ToothNumber, TreatmentName: tt.TreatmentName, Status: string(tt.Status)}
	}
	return treatmentPayload{
		ID:            t.ID,
		PatientID:     t.PatientID,
		AppointmentID: t.AppointmentID,
		Type:          string(t.Type),
		Completed:     t.Completed(),
		Teeth:         teeth,
	}
}
