package inventory

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/dental-clinic-engine/internal/apperr"
)

type ChangeType string

const (
	ChangeManualUpdate ChangeType = "manual_update"
	ChangePrescription ChangeType = "prescription"
	ChangeAdjustment   ChangeType = "adjustment"
	ChangeRestock      ChangeType = "restock"
)

func (c ChangeType) Valid() bool {
	switch c {
	case ChangeManualUpdate, ChangePrescription, ChangeAdjustment, ChangeRestock:
		return true
	}
	return false
}

var (
	ErrItemNotFound      = fmt.Errorf("inventory item %w", apperr.ErrNotFound)
	ErrInsufficientStock = errors.New("insufficient stock")
)

// InsufficientStockError names the first item that could not cover a request.
type InsufficientStockError struct {
	ItemID    uuid.UUID
	Requested int
	Available int
	Shortfall int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for item %s: requested %d, available %d, short by %d",
		e.ItemID, e.Requested, e.Available, e.Shortfall)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

type Item struct {
	ID          uuid.UUID
	Name        string
	Category    string
	Quantity    int
	MinQuantity int
	SupplierID  *uuid.UUID
	BatchNumber string
	Location    string
	Expiration  *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// LowStock reports whether the item is at or below its reorder threshold.
func (i Item) LowStock() bool {
	return i.Quantity <= i.MinQuantity
}

// HistoryEntry is one immutable ledger row.
type HistoryEntry struct {
	ID               uuid.UUID
	ItemID           uuid.UUID
	PreviousQuantity int
	NewQuantity      int
	ChangeType       ChangeType
	Note             string
	Actor            string
	TreatmentID      *uuid.UUID
	CreatedAt        time.Time
}

func (h HistoryEntry) Delta() int {
	return h.NewQuantity - h.PreviousQuantity
}

// Consumption asks the ledger to take Quantity units of ItemID.
type Consumption struct {
	ItemID   uuid.UUID
	Quantity int
}

// Meta is attached to every history row a mutation writes.
type Meta struct {
	ChangeType  ChangeType
	Note        string
	Actor       string
	TreatmentID *uuid.UUID
}

// Change is the outcome of one committed (or about to be committed) mutation.
type Change struct {
	Item  Item
	Entry HistoryEntry
	// CrossedThreshold is set when the item dropped to or below MinQuantity
	// with this mutation.
	CrossedThreshold bool
}

// Recorded reports whether the change wrote a history row.
func (c Change) Recorded() bool { return c.Entry.ID != uuid.Nil }

type ItemDraft struct {
	Name        string
	Category    string
	Quantity    int
	MinQuantity int
	SupplierID  *uuid.UUID
	BatchNumber string
	Location    string
	Expiration  *time.Time
}

func (d ItemDraft) Validate() error {
	if d.Name == "" {
		return apperr.Invalid("name", "is required")
	}
	if d.Quantity < 0 {
		return apperr.Invalid("quantity", "must not be negative")
	}
	if d.MinQuantity < 0 {
		return apperr.Invalid("minQuantity", "must not be negative")
	}
	return nil
}
