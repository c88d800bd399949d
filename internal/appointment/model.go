package appointment

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/dental-clinic-engine/internal/apperr"
	"github.com/hackgods/dental-clinic-engine/internal/interval"
)

type Status string

const (
	StatusPending          Status = "pending"
	StatusConfirmed        Status = "confirmed"
	StatusInProgress       Status = "in_progress"
	StatusOnHold           Status = "on_hold"
	StatusFollowUpRequired Status = "follow_up_required"
	StatusCancelled        Status = "cancelled"
	StatusCompleted        Status = "completed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusInProgress, StatusOnHold,
		StatusFollowUpRequired, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

// Blocking reports whether an appointment in this status occupies its time.
func (s Status) Blocking() bool {
	switch s {
	case StatusConfirmed, StatusInProgress, StatusOnHold, StatusFollowUpRequired:
		return true
	}
	return false
}

// Terminal statuses never need a conflict check.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

type Appointment struct {
	ID              uuid.UUID
	PatientID       uuid.UUID
	ServiceID       uuid.UUID
	DentistID       *uuid.UUID
	ChairID         *uuid.UUID
	Start           time.Time
	End             time.Time
	Status          Status
	NumberOfTeeth   int
	ServiceFeeCents int64
	Notes           string
	CreatedBy       string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (a Appointment) Interval() interval.Interval {
	return interval.Interval{Start: a.Start, End: a.End}
}

// BlockingIntervals keeps only appointments that occupy their time slot.
func BlockingIntervals(apps []Appointment) []interval.Interval {
	out := make([]interval.Interval, 0, len(apps))
	for _, a := range apps {
		if a.Status.Blocking() {
			out = append(out, a.Interval())
		}
	}
	return out
}

type ScopeKind string

const (
	ScopePatient ScopeKind = "patient"
	ScopeDentist ScopeKind = "dentist"
	ScopeChair   ScopeKind = "chair"
)

func ParseScopeKinds(raw []string) ([]ScopeKind, error) {
	kinds := make([]ScopeKind, 0, len(raw))
	for _, r := range raw {
		switch k := ScopeKind(r); k {
		case ScopePatient, ScopeDentist, ScopeChair:
			kinds = append(kinds, k)
		default:
			return nil, fmt.Errorf("unknown conflict scope %q", r)
		}
	}
	return kinds, nil
}

// Scope is the resource whose calendar a booking must not double-book.
type Scope struct {
	Kind ScopeKind
	ID   uuid.UUID
}

// Key identifies the scope in advisory and Redis locks.
func (s Scope) Key() string {
	return fmt.Sprintf("appointment:%s:%s", s.Kind, s.ID)
}

// ScopeOf returns the scope of kind for a, or false when a carries no
// reference of that kind.
func ScopeOf(a Appointment, kind ScopeKind) (Scope, bool) {
	switch kind {
	case ScopePatient:
		return Scope{Kind: kind, ID: a.PatientID}, a.PatientID != uuid.Nil
	case ScopeDentist:
		if a.DentistID != nil {
			return Scope{Kind: kind, ID: *a.DentistID}, true
		}
	case ScopeChair:
		if a.ChairID != nil {
			return Scope{Kind: kind, ID: *a.ChairID}, true
		}
	}
	return Scope{}, false
}

// Scopes lists the scopes of a under the given policy.
func Scopes(a Appointment, kinds []ScopeKind) []Scope {
	out := make([]Scope, 0, len(kinds))
	for _, k := range kinds {
		if s, ok := ScopeOf(a, k); ok {
			out = append(out, s)
		}
	}
	return out
}

// Draft is a booking request.
type Draft struct {
	PatientID       uuid.UUID
	ServiceID       uuid.UUID
	DentistID       *uuid.UUID
	ChairID         *uuid.UUID
	Start           time.Time
	End             time.Time
	Status          Status
	NumberOfTeeth   int
	ServiceFeeCents int64
	Notes           string
	CreatedBy       string
}

func (d Draft) Validate() error {
	if d.PatientID == uuid.Nil {
		return apperr.Invalid("patientId", "is required")
	}
	if d.ServiceID == uuid.Nil {
		return apperr.Invalid("serviceId", "is required")
	}
	if d.Start.IsZero() || d.End.IsZero() {
		return apperr.Invalid("start", "start and end are required")
	}
	if _, err := interval.New(d.Start, d.End); err != nil {
		return apperr.Invalid("end", "must be after start")
	}
	if d.Status != "" && !d.Status.Valid() {
		return apperr.Invalid("status", "unknown status %q", d.Status)
	}
	if d.Status.Terminal() {
		return apperr.Invalid("status", "cannot book a %s appointment", d.Status)
	}
	if d.NumberOfTeeth <= 0 {
		return apperr.Invalid("numberOfTeeth", "must be positive")
	}
	if d.ServiceFeeCents < 0 {
		return apperr.Invalid("serviceFee", "must not be negative")
	}
	return nil
}

// Appointment builds the row to insert. Status defaults to pending.
func (d Draft) Appointment() Appointment {
	status := d.Status
	if status == "" {
		status = StatusPending
	}
	return Appointment{
		ID:              uuid.New(),
		PatientID:       d.PatientID,
		ServiceID:       d.ServiceID,
		DentistID:       d.DentistID,
		ChairID:         d.ChairID,
		Start:           d.Start.UTC(),
		End:             d.End.UTC(),
		Status:          status,
		NumberOfTeeth:   d.NumberOfTeeth,
		ServiceFeeCents: d.ServiceFeeCents,
		Notes:           d.Notes,
		CreatedBy:       d.CreatedBy,
	}
}

// Update is a staff edit. Nil fields are left unchanged.
type Update struct {
	Start           *time.Time
	End             *time.Time
	Status          *Status
	DentistID       *uuid.UUID
	ChairID         *uuid.UUID
	NumberOfTeeth   *int
	ServiceFeeCents *int64
	Notes           *string
}

// Apply returns a copy of a with u applied, validated as a whole.
func (u Update) Apply(a Appointment) (Appointment, error) {
	if u.Start != nil {
		a.Start = u.Start.UTC()
	}
	if u.End != nil {
		a.End = u.End.UTC()
	}
	if u.Status != nil {
		if !u.Status.Valid() {
			return Appointment{}, apperr.Invalid("status", "unknown status %q", *u.Status)
		}
		a.Status = *u.Status
	}
	if u.DentistID != nil {
		id := *u.DentistID
		a.DentistID = &id
	}
	if u.ChairID != nil {
		id := *u.ChairID
		a.ChairID = &id
	}
	if u.NumberOfTeeth != nil {
		if *u.NumberOfTeeth <= 0 {
			return Appointment{}, apperr.Invalid("numberOfTeeth", "must be positive")
		}
		a.NumberOfTeeth = *u.NumberOfTeeth
	}
	if u.ServiceFeeCents != nil {
		if *u.ServiceFeeCents < 0 {
			return Appointment{}, apperr.Invalid("serviceFee", "must not be negative")
		}
		a.ServiceFeeCents = *u.ServiceFeeCents
	}
	if u.Notes != nil {
		a.Notes = *u.Notes
	}
	if _, err := interval.New(a.Start, a.End); err != nil {
		return Appointment{}, apperr.Invalid("end", "must be after start")
	}
	return a, nil
}

// Reschedules reports whether u moves the appointment or changes its status.
func (u Update) Reschedules() bool {
	return u.Start != nil || u.End != nil || u.Status != nil || u.DentistID != nil || u.ChairID != nil
}
