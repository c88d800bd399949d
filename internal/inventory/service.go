package inventory

import (
	"context"

	"github.com/google/uuid"

	"github.com/hackgods/dental-clinic-engine/internal/db"
)

const DefaultHistoryLimit = 100

// Service serves read-only inventory queries.
type Service struct {
	q    db.Querier
	repo Repository
}

func NewService(q db.Querier, repo Repository) *Service {
	return &Service{q: q, repo: repo}
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Item, error) {
	return s.repo.GetItem(ctx, s.q, id)
}

func (s *Service) List(ctx context.Context) ([]Item, error) {
	return s.repo.ListItems(ctx, s.q)
}

func (s *Service) LowStock(ctx context.Context) ([]Item, error) {
	return s.repo.ListLowStock(ctx, s.q)
}

// History returns the newest entries first. It 404s for unknown items
// rather than returning an empty list.
func (s *Service) History(ctx context.Context, itemID uuid.UUID, limit int) ([]HistoryEntry, error) {
	if limit <= 0 || limit > 1000 {
		limit = DefaultHistoryLimit
	}
	if _, err := s.repo.GetItem(ctx, s.q, itemID); err != nil {
		return nil, err
	}
	return s.repo.ListHistory(ctx, s.q, itemID, limit)
}
