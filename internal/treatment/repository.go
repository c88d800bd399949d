package treatment

import (
	"context"

	"github.com/google/uuid"

	"github.com/hackgods/dental-clinic-engine/internal/db"
)

// Repository persists treatments and their tooth rows. Errors are either
// ErrTreatmentNotFound or classified as apperr.ErrOperationFailed.
type Repository interface {
	Insert(ctx context.Context, q db.Querier, t Treatment) (*Treatment, error)
	Get(ctx context.Context, q db.Querier, id uuid.UUID) (*Treatment, error)
	GetForUpdate(ctx context.Context, q db.Querier, id uuid.UUID) (*Treatment, error)
	ListByPatient(ctx context.Context, q db.Querier, patientID uuid.UUID) ([]Treatment, error)
	ListByAppointment(ctx context.Context, q db.Querier, appointmentID uuid.UUID) ([]Treatment, error)
	UpdateHeader(ctx context.Context, q db.Querier, t Treatment) (*Treatment, error)
	Delete(ctx context.Context, q db.Querier, id uuid.UUID) error

	InsertTeeth(ctx context.Context, q db.Querier, treatmentID uuid.UUID, teeth []ToothTreatment) error
	DeleteTeeth(ctx context.Context, q db.Querier, treatmentID uuid.UUID) error
}
