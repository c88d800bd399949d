package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/dental-clinic-engine/internal/apperr"
	"github.com/hackgods/dental-clinic-engine/internal/db"
	"github.com/hackgods/dental-clinic-engine/internal/interval"
)

var ErrAppointmentNotFound = fmt.Errorf("appointment %w", apperr.ErrNotFound)

// RangeFilter narrows range listings. Nil fields match everything.
type RangeFilter struct {
	PatientID *uuid.UUID
	DentistID *uuid.UUID
	ChairID   *uuid.UUID
}

// Repository contains all DB interactions for appointments. Methods run on
// the Querier they are given so callers own the transaction boundary.
type Repository interface {
	Get(ctx context.Context, q db.Querier, id uuid.UUID) (*Appointment, error)
	// GetForUpdate locks the row until the transaction ends.
	GetForUpdate(ctx context.Context, q db.Querier, id uuid.UUID) (*Appointment, error)
	ListByPatient(ctx context.Context, q db.Querier, patientID uuid.UUID) ([]Appointment, error)
	ListInRange(ctx context.Context, q db.Querier, from, to time.Time, filter RangeFilter) ([]Appointment, error)

	// ListForScope returns every appointment of scope overlapping window,
	// whatever its status. The guard decides what blocks.
	ListForScope(ctx context.Context, q db.Querier, scope Scope, window interval.Interval) ([]Appointment, error)
	// ListForScopes returns appointments overlapping window that belong to
	// any of scopes.
	ListForScopes(ctx context.Context, q db.Querier, scopes []Scope, window interval.Interval) ([]Appointment, error)

	Insert(ctx context.Context, q db.Querier, a Appointment) (*Appointment, error)
	Update(ctx context.Context, q db.Querier, a Appointment) (*Appointment, error)
	Delete(ctx context.Context, q db.Querier, id uuid.UUID) error

	CountTreatmentRefs(ctx context.Context, q db.Querier, id uuid.UUID) (int, error)
}
