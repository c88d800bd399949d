package appointment

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/dental-clinic-engine/internal/apperr"
	"github.com/hackgods/dental-clinic-engine/internal/db"
	"github.com/hackgods/dental-clinic-engine/internal/slots"
)

// maxAvailabilityDays bounds a single availability query.
const maxAvailabilityDays = 31

// Service answers appointment reads and availability. Writes go through the
// coordinator so they share its transaction and locking.
type Service struct {
	q         db.Querier
	repo      Repository
	allocator *slots.Allocator
}

func NewService(q db.Querier, repo Repository, allocator *slots.Allocator) *Service {
	return &Service{q: q, repo: repo, allocator: allocator}
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.Get(ctx, s.q, id)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]Appointment, error) {
	return s.repo.ListByPatient(ctx, s.q, patientID)
}

func (s *Service) ListInRange(ctx context.Context, from, to time.Time, filter RangeFilter) ([]Appointment, error) {
	if !from.Before(to) {
		return nil, apperr.Invalid("to", "must be after from")
	}
	return s.repo.ListInRange(ctx, s.q, from, to, filter)
}

// Availability lists every slot between the calendar days of from and to,
// marking those taken by blocking appointments that match filter.
func (s *Service) Availability(ctx context.Context, from, to time.Time, filter RangeFilter) ([]slots.Slot, error) {
	if to.Before(from) {
		return nil, apperr.Invalid("to", "must not be before from")
	}
	if to.Sub(from) > maxAvailabilityDays*24*time.Hour {
		return nil, apperr.Invalid("to", "range is limited to %d days", maxAvailabilityDays)
	}

	window := s.allocator.Range(from, to)
	existing, err := s.repo.ListInRange(ctx, s.q, window.Start, window.End, filter)
	if err != nil {
		return nil, err
	}
	return slices.Collect(s.allocator.Slots(from, to, BlockingIntervals(existing))), nil
}

// FreeSlotsForScopes lists the bookable slots between the calendar days of
// from and to that none of scopes holds. Unlike a RangeFilter the scopes are
// alternatives: a slot is taken when any one of them has it blocked.
func (s *Service) FreeSlotsForScopes(ctx context.Context, from, to time.Time, scopes []Scope) ([]slots.Slot, error) {
	if to.Before(from) {
		return nil, apperr.Invalid("to", "must not be before from")
	}
	window := s.allocator.Range(from, to)
	existing, err := s.repo.ListForScopes(ctx, s.q, scopes, window)
	if err != nil {
		return nil, err
	}
	all := s.allocator.Slots(from, to, BlockingIntervals(existing))
	return slices.Collect(slots.Available(all)), nil
}

// FreeSlots is Availability reduced to bookable slots.
func (s *Service) FreeSlots(ctx context.Context, from, to time.Time, filter RangeFilter) ([]slots.Slot, error) {
	all, err := s.Availability(ctx, from, to, filter)
	if err != nil {
		return nil, err
	}
	return slices.Collect(slots.Available(slices.Values(all))), nil
}
