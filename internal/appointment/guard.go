package appointment

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/hackgods/dental-clinic-engine/internal/interval"
)

var (
	ErrSlotConflict          = errors.New("slot conflict")
	ErrReferencedByTreatment = errors.New("appointment is referenced by a treatment")
)

type Reason string

const ReasonOverlap Reason = "overlap"

// Decision is the guard's verdict for one scope.
type Decision struct {
	Accepted      bool
	Reason        Reason
	ConflictingID uuid.UUID
}

// CheckConflict accepts proposed unless a blocking appointment in scope,
// other than excludeID, overlaps it. It is pure; callers run it inside the
// transaction that writes the appointment, after locking the scope.
func CheckConflict(proposed interval.Interval, scope Scope, existing []Appointment, excludeID *uuid.UUID) Decision {
	for _, a := range existing {
		if excludeID != nil && a.ID == *excludeID {
			continue
		}
		if s, ok := ScopeOf(a, scope.Kind); !ok || s.ID != scope.ID {
			continue
		}
		if !a.Status.Blocking() {
			continue
		}
		if interval.Overlaps(proposed, a.Interval()) {
			return Decision{Accepted: false, Reason: ReasonOverlap, ConflictingID: a.ID}
		}
	}
	return Decision{Accepted: true}
}

// ConflictError is returned when a booking or edit would double-book a scope.
type ConflictError struct {
	Scope         Scope
	ConflictingID uuid.UUID
	Proposed      interval.Interval
	// Scopes holds every scope the proposal was checked against.
	Scopes []Scope
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("slot conflict for %s %s: overlaps appointment %s",
		e.Scope.Kind, e.Scope.ID, e.ConflictingID)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrSlotConflict
}
