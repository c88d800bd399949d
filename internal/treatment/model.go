package treatment

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/dental-clinic-engine/internal/apperr"
)

type Type string

const (
	TypeMedical  Type = "medical"
	TypeCosmetic Type = "cosmetic"
)

func (t Type) Valid() bool {
	return t == TypeMedical || t == TypeCosmetic
}

type ToothStatus string

const (
	ToothPending ToothStatus = "pending"
	ToothOngoing ToothStatus = "ongoing"
	ToothDone    ToothStatus = "done"
)

func (s ToothStatus) Valid() bool {
	switch s {
	case ToothPending, ToothOngoing, ToothDone:
		return true
	}
	return false
}

// MaxTeeth is the size of a full permanent dentition.
const MaxTeeth = 32

var ErrTreatmentNotFound = fmt.Errorf("treatment %w", apperr.ErrNotFound)

type ToothTreatment struct {
	ToothNumber   string
	TreatmentName string
	Status        ToothStatus
}

type Treatment struct {
	ID            uuid.UUID
	PatientID     uuid.UUID
	AppointmentID *uuid.UUID
	DentistID     uuid.UUID
	Date          time.Time
	Notes         string
	Type          Type
	Teeth         []ToothTreatment
	CreatedBy     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Completed is DeriveCompletion over the treatment's current teeth.
func (t Treatment) Completed() bool {
	return DeriveCompletion(t.Teeth)
}

// Draft is the input to Create.
type Draft struct {
	PatientID     uuid.UUID
	AppointmentID *uuid.UUID
	DentistID     uuid.UUID
	Date          time.Time
	Notes         string
	Type          Type
	Teeth         []ToothTreatment
	CreatedBy     string
}

// Update is the whole-document input to Replace. Teeth replace the stored
// list entirely.
type Update struct {
	DentistID uuid.UUID
	Date      time.Time
	Notes     string
	Type      Type
	Teeth     []ToothTreatment
}

// DeriveCompletion reports whether every tooth is done. An empty list is
// never complete.
func DeriveCompletion(teeth []ToothTreatment) bool {
	if len(teeth) == 0 {
		return false
	}
	for _, t := range teeth {
		if t.Status != ToothDone {
			return false
		}
	}
	return true
}

// Transition reports whether completion flipped from false to true between
// two snapshots.
func Transition(before, after []ToothTreatment) bool {
	return !DeriveCompletion(before) && DeriveCompletion(after)
}

// ValidToothNumber accepts FDI two-digit labels for permanent (11-48) and
// primary (51-85) teeth.
func ValidToothNumber(s string) bool {
	if len(s) != 2 || s[0] < '1' || s[0] > '8' || s[1] < '1' {
		return false
	}
	if s[0] <= '4' {
		return s[1] <= '8'
	}
	return s[1] <= '5'
}
