package inventory

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hackgods/dental-clinic-engine/internal/apperr"
	"github.com/hackgods/dental-clinic-engine/internal/db"
)

const itemColumns = `id, name, category, quantity, min_quantity, supplier_id, batch_number, location, expiration, created_at, updated_at`

const historyColumns = `id, item_id, previous_quantity, new_quantity, change_type, note, actor, treatment_id, created_at`

type PgRepository struct{}

func NewPgRepository() *PgRepository {
	return &PgRepository{}
}

func scanItem(row pgx.Row) (*Item, error) {
	var it Item
	err := row.Scan(
		&it.ID,
		&it.Name,
		&it.Category,
		&it.Quantity,
		&it.MinQuantity,
		&it.SupplierID,
		&it.BatchNumber,
		&it.Location,
		&it.Expiration,
		&it.CreatedAt,
		&it.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrItemNotFound
		}
		return nil, err
	}
	return &it, nil
}

func scanHistory(row pgx.Row) (*HistoryEntry, error) {
	var h HistoryEntry
	var changeType string
	err := row.Scan(
		&h.ID,
		&h.ItemID,
		&h.PreviousQuantity,
		&h.NewQuantity,
		&changeType,
		&h.Note,
		&h.Actor,
		&h.TreatmentID,
		&h.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	h.ChangeType = ChangeType(changeType)
	return &h, nil
}

func (r *PgRepository) CreateItem(ctx context.Context, q db.Querier, item Item) (*Item, error) {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	row := q.QueryRow(ctx, `
		INSERT INTO inventory_items (id, name, category, quantity, min_quantity, supplier_id, batch_number, location, expiration, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
		RETURNING `+itemColumns,
		item.ID, item.Name, item.Category, item.Quantity, item.MinQuantity,
		item.SupplierID, item.BatchNumber, item.Location, item.Expiration)

	created, err := scanItem(row)
	if err != nil {
		return nil, apperr.OperationFailed("insert inventory item", err)
	}
	return created, nil
}

func (r *PgRepository) GetItem(ctx context.Context, q db.Querier, id uuid.UUID) (*Item, error) {
	row := q.QueryRow(ctx, `SELECT `+itemColumns+` FROM inventory_items WHERE id = $1`, id)
	return classify("get inventory item", row)
}

func (r *PgRepository) LockItem(ctx context.Context, q db.Querier, id uuid.UUID) (*Item, error) {
	row := q.QueryRow(ctx, `SELECT `+itemColumns+` FROM inventory_items WHERE id = $1 FOR UPDATE`, id)
	return classify("lock inventory item", row)
}

func (r *PgRepository) SetQuantity(ctx context.Context, q db.Querier, id uuid.UUID, quantity int) (*Item, error) {
	row := q.QueryRow(ctx, `
		UPDATE inventory_items
		SET quantity = $2,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+itemColumns, id, quantity)
	return classify("update inventory quantity", row)
}

func (r *PgRepository) ListItems(ctx context.Context, q db.Querier) ([]Item, error) {
	return r.listItems(ctx, q, "list inventory items", `SELECT `+itemColumns+` FROM inventory_items ORDER BY name, id`)
}

func (r *PgRepository) ListLowStock(ctx context.Context, q db.Querier) ([]Item, error) {
	return r.listItems(ctx, q, "list low stock items", `
		SELECT `+itemColumns+`
		FROM inventory_items
		WHERE quantity <= min_quantity
		ORDER BY quantity - min_quantity, name`)
}

func (r *PgRepository) listItems(ctx context.Context, q db.Querier, op, sql string, args ...any) ([]Item, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, apperr.OperationFailed(op, err)
	}
	defer rows.Close()

	var result []Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, apperr.OperationFailed(op, err)
		}
		result = append(result, *it)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.OperationFailed(op, err)
	}
	return result, nil
}

func (r *PgRepository) InsertHistory(ctx context.Context, q db.Querier, entry HistoryEntry) (*HistoryEntry, error) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	row := q.QueryRow(ctx, `
		INSERT INTO inventory_history (id, item_id, previous_quantity, new_quantity, change_type, note, actor, treatment_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, clock_timestamp())
		RETURNING `+historyColumns,
		entry.ID, entry.ItemID, entry.PreviousQuantity, entry.NewQuantity,
		string(entry.ChangeType), entry.Note, entry.Actor, entry.TreatmentID)

	h, err := scanHistory(row)
	if err != nil {
		return nil, apperr.OperationFailed("insert inventory history", err)
	}
	return h, nil
}

// ListHistory orders by seq, which follows the order writes took the item
// lock. created_at is informational only.
func (r *PgRepository) ListHistory(ctx context.Context, q db.Querier, itemID uuid.UUID, limit int) ([]HistoryEntry, error) {
	rows, err := q.Query(ctx, `
		SELECT `+historyColumns+`
		FROM inventory_history
		WHERE item_id = $1
		ORDER BY seq DESC
		LIMIT $2`, itemID, limit)
	if err != nil {
		return nil, apperr.OperationFailed("list inventory history", err)
	}
	defer rows.Close()

	var result []HistoryEntry
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			return nil, apperr.OperationFailed("list inventory history", err)
		}
		result = append(result, *h)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.OperationFailed("list inventory history", err)
	}
	return result, nil
}

func classify(op string, row pgx.Row) (*Item, error) {
	it, err := scanItem(row)
	if err != nil {
		if errors.Is(err, ErrItemNotFound) {
			return nil, err
		}
		return nil, apperr.OperationFailed(op, err)
	}
	return it, nil
}
