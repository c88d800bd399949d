package treatment

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/dental-clinic-engine/internal/apperr"
	"github.com/hackgods/dental-clinic-engine/internal/db"
)

// Machine owns treatment lifecycle writes. It validates before touching the
// store and runs every write on the caller's transaction.
type Machine struct {
	repo    Repository
	catalog *Catalog
}

func NewMachine(repo Repository, catalog *Catalog) *Machine {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &Machine{repo: repo, catalog: catalog}
}

func (m *Machine) Catalog() *Catalog { return m.catalog }

// Replacement carries both snapshots of a Replace.
type Replacement struct {
	Before Treatment
	After  Treatment
}

// Completed reports whether this replacement completed the treatment.
func (r Replacement) Completed() bool {
	return Transition(r.Before.Teeth, r.After.Teeth)
}

func (m *Machine) Create(ctx context.Context, q db.Querier, d Draft) (*Treatment, error) {
	if d.PatientID == uuid.Nil {
		return nil, apperr.Invalid("patientId", "is required")
	}
	if d.DentistID == uuid.Nil {
		return nil, apperr.Invalid("dentistId", "is required")
	}
	teeth, err := m.normalize(d.Type, d.Teeth)
	if err != nil {
		return nil, err
	}

	t := Treatment{
		ID:            uuid.New(),
		PatientID:     d.PatientID,
		AppointmentID: d.AppointmentID,
		DentistID:     d.DentistID,
		Date:          dateOnly(d.Date),
		Notes:         d.Notes,
		Type:          d.Type,
		Teeth:         teeth,
		CreatedBy:     d.CreatedBy,
	}
	created, err := m.repo.Insert(ctx, q, t)
	if err != nil {
		return nil, err
	}
	if err := m.repo.InsertTeeth(ctx, q, created.ID, teeth); err != nil {
		return nil, err
	}
	created.Teeth = teeth
	return created, nil
}

// Replace overwrites the header and the whole tooth list of id. The row is
// locked for the rest of the caller's transaction.
func (m *Machine) Replace(ctx context.Context, q db.Querier, id uuid.UUID, u Update) (*Replacement, error) {
	if u.DentistID == uuid.Nil {
		return nil, apperr.Invalid("dentistId", "is required")
	}
	teeth, err := m.normalize(u.Type, u.Teeth)
	if err != nil {
		return nil, err
	}

	before, err := m.repo.GetForUpdate(ctx, q, id)
	if err != nil {
		return nil, err
	}

	next := *before
	next.DentistID = u.DentistID
	next.Notes = u.Notes
	next.Type = u.Type
	if !u.Date.IsZero() {
		next.Date = dateOnly(u.Date)
	}

	after, err := m.repo.UpdateHeader(ctx, q, next)
	if err != nil {
		return nil, err
	}
	if err := m.repo.DeleteTeeth(ctx, q, id); err != nil {
		return nil, err
	}
	if err := m.repo.InsertTeeth(ctx, q, id, teeth); err != nil {
		return nil, err
	}
	after.Teeth = teeth
	return &Replacement{Before: *before, After: *after}, nil
}

// Delete removes the treatment and its teeth.
func (m *Machine) Delete(ctx context.Context, q db.Querier, id uuid.UUID) (*Treatment, error) {
	existing, err := m.repo.GetForUpdate(ctx, q, id)
	if err != nil {
		return nil, err
	}
	if err := m.repo.DeleteTeeth(ctx, q, id); err != nil {
		return nil, err
	}
	if err := m.repo.Delete(ctx, q, id); err != nil {
		return nil, err
	}
	return existing, nil
}

// Validate checks a tooth list against the catalog without normalizing it.
func (m *Machine) Validate(t Type, teeth []ToothTreatment) error {
	_, err := m.normalize(t, teeth)
	return err
}

func (m *Machine) normalize(t Type, teeth []ToothTreatment) ([]ToothTreatment, error) {
	if !t.Valid() {
		return nil, apperr.Invalid("type", "must be medical or cosmetic")
	}
	if len(teeth) == 0 {
		return nil, apperr.Invalid("teeth", "must not be empty")
	}
	if len(teeth) > MaxTeeth {
		return nil, apperr.Invalid("teeth", "at most %d teeth per treatment", MaxTeeth)
	}

	out := make([]ToothTreatment, len(teeth))
	seen := make(map[string]bool, len(teeth))
	for i, tt := range teeth {
		num := strings.TrimSpace(tt.ToothNumber)
		if !ValidToothNumber(num) {
			return nil, apperr.Invalid("teeth", "tooth %q is not an FDI tooth number", tt.ToothNumber)
		}
		if seen[num] {
			return nil, apperr.Invalid("teeth", "tooth %s appears more than once", num)
		}
		seen[num] = true

		name, ok := m.catalog.Canonical(t, tt.TreatmentName)
		if !ok {
			return nil, apperr.Invalid("teeth", "unknown %s treatment %q", t, tt.TreatmentName)
		}
		status := tt.Status
		if status == "" {
			status = ToothPending
		}
		if !status.Valid() {
			return nil, apperr.Invalid("teeth", "unknown status %q for tooth %s", tt.Status, num)
		}
		out[i] = ToothTreatment{ToothNumber: num, TreatmentName: name, Status: status}
	}
	return out, nil
}

func dateOnly(t time.Time) time.Time {
	if t.IsZero() {
		t = time.Now()
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
