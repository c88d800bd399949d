package inventory

import (
	"context"

	"github.com/google/uuid"

	"github.com/hackgods/dental-clinic-engine/internal/db"
)

// Repository is the SQL surface of the ledger. Every method runs on the
// Querier it is given so that callers decide the transaction boundary.
// Errors are either ErrItemNotFound or classified as apperr.ErrOperationFailed.
type Repository interface {
	CreateItem(ctx context.Context, q db.Querier, item Item) (*Item, error)
	GetItem(ctx context.Context, q db.Querier, id uuid.UUID) (*Item, error)
	ListItems(ctx context.Context, q db.Querier) ([]Item, error)
	ListLowStock(ctx context.Context, q db.Querier) ([]Item, error)

	// LockItem reads the row with SELECT ... FOR UPDATE.
	LockItem(ctx context.Context, q db.Querier, id uuid.UUID) (*Item, error)
	SetQuantity(ctx context.Context, q db.Querier, id uuid.UUID, quantity int) (*Item, error)

	InsertHistory(ctx context.Context, q db.Querier, entry HistoryEntry) (*HistoryEntry, error)
	ListHistory(ctx context.Context, q db.Querier, itemID uuid.UUID, limit int) ([]HistoryEntry, error)
}
