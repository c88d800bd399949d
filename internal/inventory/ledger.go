package inventory

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/hackgods/dental-clinic-engine/internal/apperr"
	"github.com/hackgods/dental-clinic-engine/internal/db"
	"github.com/hackgods/dental-clinic-engine/internal/metrics"
	"github.com/hackgods/dental-clinic-engine/internal/notify"
)

// Ledger is the only writer of inventory quantities. Each mutation locks the
// item row, rejects results below zero, updates the quantity and appends one
// history row in the same transaction.
type Ledger struct {
	pool      db.Beginner
	repo      Repository
	notifier  notify.Notifier
	metrics   *metrics.Engine
	logger    zerolog.Logger
	txTimeout time.Duration
}

type LedgerOption func(*Ledger)

func WithMetrics(m *metrics.Engine) LedgerOption {
	return func(l *Ledger) { l.metrics = m }
}

func WithLogger(logger zerolog.Logger) LedgerOption {
	return func(l *Ledger) { l.logger = logger }
}

func WithTxTimeout(d time.Duration) LedgerOption {
	return func(l *Ledger) { l.txTimeout = d }
}

func NewLedger(pool db.Beginner, repo Repository, notifier notify.Notifier, opts ...LedgerOption) *Ledger {
	l := &Ledger{
		pool:     pool,
		repo:     repo,
		notifier: notifier,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Decrement takes quantity units out of stock. The change type defaults to
// prescription.
func (l *Ledger) Decrement(ctx context.Context, itemID uuid.UUID, quantity int, meta Meta) (*Change, error) {
	if meta.ChangeType == "" {
		meta.ChangeType = ChangePrescription
	}
	if err := validateMutation(itemID, quantity, meta); err != nil {
		return nil, err
	}
	return l.single(ctx, "inventory_decrement", meta.ChangeType, func(tx pgx.Tx) (*Change, error) {
		return l.applyDelta(ctx, tx, itemID, -quantity, meta)
	})
}

// Increment restocks an item.
func (l *Ledger) Increment(ctx context.Context, itemID uuid.UUID, quantity int, meta Meta) (*Change, error) {
	if meta.ChangeType == "" {
		meta.ChangeType = ChangeRestock
	}
	if err := validateMutation(itemID, quantity, meta); err != nil {
		return nil, err
	}
	return l.single(ctx, "inventory_increment", meta.ChangeType, func(tx pgx.Tx) (*Change, error) {
		return l.applyDelta(ctx, tx, itemID, quantity, meta)
	})
}

// Adjust sets an absolute quantity after a stock count. A count that matches
// the stored quantity writes nothing and returns a Change with no entry.
func (l *Ledger) Adjust(ctx context.Context, itemID uuid.UUID, newQuantity int, meta Meta) (*Change, error) {
	meta.ChangeType = ChangeManualUpdate
	if itemID == uuid.Nil {
		return nil, apperr.Invalid("itemId", "is required")
	}
	if newQuantity < 0 {
		return nil, apperr.Invalid("quantity", "must not be negative")
	}
	return l.single(ctx, "inventory_adjust", meta.ChangeType, func(tx pgx.Tx) (*Change, error) {
		item, err := l.repo.LockItem(ctx, tx, itemID)
		if err != nil {
			return nil, err
		}
		if item.Quantity == newQuantity {
			return &Change{Item: *item}, nil
		}
		return l.write(ctx, tx, *item, newQuantity, meta)
	})
}

// Correct applies a signed correction and records it as an adjustment.
func (l *Ledger) Correct(ctx context.Context, itemID uuid.UUID, delta int, meta Meta) (*Change, error) {
	meta.ChangeType = ChangeAdjustment
	if itemID == uuid.Nil {
		return nil, apperr.Invalid("itemId", "is required")
	}
	if delta == 0 {
		return nil, apperr.Invalid("delta", "must not be zero")
	}
	return l.single(ctx, "inventory_correct", meta.ChangeType, func(tx pgx.Tx) (*Change, error) {
		return l.applyDelta(ctx, tx, itemID, delta, meta)
	})
}

// CreateItem inserts a new item. A non-zero opening quantity is recorded as a
// restock so the history always explains the current quantity.
func (l *Ledger) CreateItem(ctx context.Context, draft ItemDraft, actor string) (*Item, error) {
	if err := draft.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := l.withTimeout(ctx)
	defer cancel()

	var created *Item
	var change *Change
	err := db.WithTx(ctx, l.pool, func(tx pgx.Tx) error {
		item, err := l.repo.CreateItem(ctx, tx, Item{
			Name:        draft.Name,
			Category:    draft.Category,
			MinQuantity: draft.MinQuantity,
			SupplierID:  draft.SupplierID,
			BatchNumber: draft.BatchNumber,
			Location:    draft.Location,
			Expiration:  draft.Expiration,
		})
		if err != nil {
			return err
		}
		created = item
		if draft.Quantity == 0 {
			return nil
		}
		change, err = l.write(ctx, tx, *item, draft.Quantity, Meta{
			ChangeType: ChangeRestock,
			Note:       "opening stock",
			Actor:      actor,
		})
		if err != nil {
			return err
		}
		created = &change.Item
		return nil
	})
	if err != nil {
		return nil, err
	}

	if change != nil {
		l.PublishChanges(ctx, []Change{*change})
	} else {
		notify.Emit(ctx, l.notifier, l.logger, notify.InventoryUpdated, created.ID, itemPayload(*created, nil))
	}
	return created, nil
}

// BatchDecrement consumes several items in one transaction. Either every
// item is decremented or none is.
func (l *Ledger) BatchDecrement(ctx context.Context, items []Consumption, meta Meta) ([]Change, error) {
	if meta.ChangeType == "" {
		meta.ChangeType = ChangePrescription
	}

	ctx, cancel := l.withTimeout(ctx)
	defer cancel()
	start := time.Now()

	var changes []Change
	err := db.WithTx(ctx, l.pool, func(tx pgx.Tx) error {
		var err error
		changes, err = l.BatchDecrementTx(ctx, tx, items, meta)
		return err
	})
	l.metrics.ObserveTx("inventory_batch_decrement", start)
	l.observe(meta.ChangeType, err)
	if err != nil {
		return nil, err
	}

	l.PublishChanges(ctx, changes)
	return changes, nil
}

// BatchDecrementTx runs the batch on the caller's transaction and does not
// publish. Duplicate item ids are merged and rows are locked in ascending id
// order.
func (l *Ledger) BatchDecrementTx(ctx context.Context, q db.Querier, items []Consumption, meta Meta) ([]Change, error) {
	if meta.ChangeType == "" {
		meta.ChangeType = ChangePrescription
	}
	merged, err := MergeConsumptions(items)
	if err != nil {
		return nil, err
	}
	if !meta.ChangeType.Valid() {
		return nil, apperr.Invalid("changeType", "unknown change type %q", meta.ChangeType)
	}

	changes := make([]Change, 0, len(merged))
	for _, c := range merged {
		change, err := l.applyDelta(ctx, q, c.ItemID, -c.Quantity, meta)
		if err != nil {
			return nil, err
		}
		changes = append(changes, *change)
	}
	return changes, nil
}

// MergeConsumptions validates items, sums duplicates and sorts by item id.
func MergeConsumptions(items []Consumption) ([]Consumption, error) {
	if len(items) == 0 {
		return nil, apperr.Invalid("medications", "must not be empty")
	}
	totals := make(map[uuid.UUID]int, len(items))
	for i, c := range items {
		if c.ItemID == uuid.Nil {
			return nil, apperr.Invalid("medications", "entry %d has no item id", i)
		}
		if c.Quantity <= 0 {
			return nil, apperr.Invalid("medications", "entry %d quantity must be positive", i)
		}
		totals[c.ItemID] += c.Quantity
	}

	merged := make([]Consumption, 0, len(totals))
	for id, qty := range totals {
		merged = append(merged, Consumption{ItemID: id, Quantity: qty})
	}
	slices.SortFunc(merged, func(a, b Consumption) int {
		return bytes.Compare(a.ItemID[:], b.ItemID[:])
	})
	return merged, nil
}

// PublishChanges emits inventory.updated for every change and
// inventory.low_stock for items that crossed their threshold. Call it only
// after the transaction that produced the changes has committed.
func (l *Ledger) PublishChanges(ctx context.Context, changes []Change) {
	for _, c := range changes {
		if !c.Recorded() {
			continue
		}
		entry := c.Entry
		notify.Emit(ctx, l.notifier, l.logger, notify.InventoryUpdated, c.Item.ID, itemPayload(c.Item, &entry))
		if c.CrossedThreshold {
			notify.Emit(ctx, l.notifier, l.logger, notify.InventoryLowStock, c.Item.ID, itemPayload(c.Item, nil))
		}
	}
}

func (l *Ledger) single(ctx context.Context, op string, ct ChangeType, fn func(tx pgx.Tx) (*Change, error)) (*Change, error) {
	ctx, cancel := l.withTimeout(ctx)
	defer cancel()
	start := time.Now()

	var change *Change
	err := db.WithTx(ctx, l.pool, func(tx pgx.Tx) error {
		var err error
		change, err = fn(tx)
		return err
	})
	l.metrics.ObserveTx(op, start)
	l.observe(ct, err)
	if err != nil {
		return nil, err
	}

	l.PublishChanges(ctx, []Change{*change})
	return change, nil
}

func (l *Ledger) applyDelta(ctx context.Context, q db.Querier, itemID uuid.UUID, delta int, meta Meta) (*Change, error) {
	item, err := l.repo.LockItem(ctx, q, itemID)
	if err != nil {
		return nil, err
	}
	next := item.Quantity + delta
	if next < 0 {
		return nil, &InsufficientStockError{
			ItemID:    itemID,
			Requested: -delta,
			Available: item.Quantity,
			Shortfall: -next,
		}
	}
	return l.write(ctx, q, *item, next, meta)
}

func (l *Ledger) write(ctx context.Context, q db.Querier, item Item, next int, meta Meta) (*Change, error) {
	updated, err := l.repo.SetQuantity(ctx, q, item.ID, next)
	if err != nil {
		return nil, err
	}
	entry, err := l.repo.InsertHistory(ctx, q, HistoryEntry{
		ItemID:           item.ID,
		PreviousQuantity: item.Quantity,
		NewQuantity:      next,
		ChangeType:       meta.ChangeType,
		Note:             meta.Note,
		Actor:            meta.Actor,
		TreatmentID:      meta.TreatmentID,
	})
	if err != nil {
		return nil, err
	}
	return &Change{
		Item:             *updated,
		Entry:            *entry,
		CrossedThreshold: !item.LowStock() && updated.LowStock(),
	}, nil
}

func (l *Ledger) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if l.txTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, l.txTimeout)
}

func (l *Ledger) observe(ct ChangeType, err error) {
	switch {
	case err == nil:
		l.metrics.ObserveLedger(string(ct), "ok")
	case errors.Is(err, ErrInsufficientStock):
		l.metrics.ObserveLedger(string(ct), "insufficient_stock")
	case errors.Is(err, apperr.ErrNotFound):
		l.metrics.ObserveLedger(string(ct), "not_found")
	default:
		l.metrics.ObserveLedger(string(ct), "error")
	}
}

func validateMutation(itemID uuid.UUID, quantity int, meta Meta) error {
	if itemID == uuid.Nil {
		return apperr.Invalid("itemId", "is required")
	}
	if quantity <= 0 {
		return apperr.Invalid("quantity", "must be positive")
	}
	if !meta.ChangeType.Valid() {
		return apperr.Invalid("changeType", "unknown change type %q", meta.ChangeType)
	}
	return nil
}

type eventPayload struct {
	ItemID           uuid.UUID  `json:"itemId"`
	Name             string     `json:"name"`
	Quantity         int        `json:"quantity"`
	MinQuantity      int        `json:"minQuantity"`
	PreviousQuantity *int       `json:"previousQuantity,omitempty"`
	ChangeType       ChangeType `json:"changeType,omitempty"`
	HistoryID        *uuid.UUID `json:"historyId,omitempty"`
	TreatmentID      *uuid.UUID `json:"treatmentId,omitempty"`
}

func itemPayload(item Item, entry *HistoryEntry) eventPayload {
	p := eventPayload{
		ItemID:      item.ID,
		Name:        item.Name,
		Quantity:    item.Quantity,
		MinQuantity: item.MinQuantity,
	}
	if entry != nil {
		prev := entry.PreviousQuantity
		id := entry.ID
		p.PreviousQuantity = &prev
		p.ChangeType = entry.ChangeType
		p.HistoryID = &id
		p.TreatmentID = entry.TreatmentID
	}
	return p
}
