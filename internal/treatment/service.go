package treatment

import (
	"context"

	"github.com/google/uuid"

	"github.com/hackgods/dental-clinic-engine/internal/db"
)

// Service serves treatment reads.
type Service struct {
	q    db.Querier
	repo Repository
}

func NewService(q db.Querier, repo Repository) *Service {
	return &Service{q: q, repo: repo}
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Treatment, error) {
	return s.repo.Get(ctx, s.q, id)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]Treatment, error) {
	return s.repo.ListByPatient(ctx, s.q, patientID)
}

func (s *Service) ListByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]Treatment, error) {
	return s.repo.ListByAppointment(ctx, s.q, appointmentID)
}
