package api

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/hackgods/dental-clinic-engine/internal/inventory"
)

func (h *Handler) createItem(w http.ResponseWriter, r *http.Request) {
	var req CreateItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	item, err := h.ledger.CreateItem(r.Context(), req.draft(), CallerFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, newItemResponse(*item))
}

func (h *Handler) listItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.inventory.List(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newItemList(items))
}

func (h *Handler) listLowStock(w http.ResponseWriter, r *http.Request) {
	items, err := h.inventory.LowStock(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newItemList(items))
}

func (h *Handler) getItem(w http.ResponseWriter, r *http.Request) {
	id, err := urlUUID(r, "id")
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	item, err := h.inventory.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newItemResponse(*item))
}

func (h *Handler) getItemHistory(w http.ResponseWriter, r *http.Request) {
	id, err := urlUUID(r, "id")
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	limit, err := queryInt(r, "limit", inventory.DefaultHistoryLimit)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	entries, err := h.inventory.History(r.Context(), id, limit)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newHistoryList(entries))
}

type stockMutation func(ctx context.Context, itemID uuid.UUID, n int, meta inventory.Meta) (*inventory.Change, error)

func (h *Handler) restockItem(w http.ResponseWriter, r *http.Request) {
	h.mutateStock(w, r, h.ledger.Increment, inventory.ChangeRestock)
}

func (h *Handler) consumeItem(w http.ResponseWriter, r *http.Request) {
	h.mutateStock(w, r, h.ledger.Decrement, inventory.ChangePrescription)
}

func (h *Handler) adjustItem(w http.ResponseWriter, r *http.Request) {
	h.mutateStock(w, r, h.ledger.Adjust, inventory.ChangeManualUpdate)
}

func (h *Handler) mutateStock(w http.ResponseWriter, r *http.Request, apply stockMutation, ct inventory.ChangeType) {
	id, err := urlUUID(r, "id")
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	var req StockRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	change, err := apply(r.Context(), id, req.Quantity, inventory.Meta{
		ChangeType: ct,
		Note:       req.Note,
		Actor:      CallerFromContext(r.Context()),
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newChangeResponse(*change))
}

func (h *Handler) correctItem(w http.ResponseWriter, r *http.Request) {
	id, err := urlUUID(r, "id")
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	var req CorrectionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	change, err := h.ledger.Correct(r.Context(), id, req.Delta, inventory.Meta{
		ChangeType: inventory.ChangeAdjustment,
		Note:       req.Note,
		Actor:      CallerFromContext(r.Context()),
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newChangeResponse(*change))
}
