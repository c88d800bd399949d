package inventory

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/dental-clinic-engine/internal/notify"
)

// ReorderScanner publishes inventory.low_stock for items at or below their
// threshold. An item is announced once per quantity it sits at, so a
// periodic scan does not repeat itself while nothing changes. Alerts the
// ledger already sent for a threshold crossing are fed in through Observe.
type ReorderScanner struct {
	svc      *Service
	notifier notify.Notifier
	logger   zerolog.Logger

	announced map[uuid.UUID]int
}

func NewReorderScanner(svc *Service, notifier notify.Notifier, logger zerolog.Logger) *ReorderScanner {
	return &ReorderScanner{
		svc:       svc,
		notifier:  notifier,
		logger:    logger.With().Str("component", "reorder_scanner").Logger(),
		announced: make(map[uuid.UUID]int),
	}
}

// Observe records a low_stock alert published elsewhere so the next scan
// does not repeat it. Other event types are ignored.
func (s *ReorderScanner) Observe(ev notify.Event) {
	if ev.Type != notify.InventoryLowStock {
		return
	}
	var p eventPayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		s.logger.Warn().Err(err).Str("item_id", ev.EntityID.String()).Msg("unreadable low stock payload")
		return
	}
	s.announced[ev.EntityID] = p.Quantity
}

// Scan returns how many items were announced on this pass. Scan and Observe
// must not be called concurrently.
func (s *ReorderScanner) Scan(ctx context.Context) (int, error) {
	items, err := s.svc.LowStock(ctx)
	if err != nil {
		return 0, err
	}

	low := make(map[uuid.UUID]bool, len(items))
	sent := 0
	for _, it := range items {
		low[it.ID] = true
		if qty, ok := s.announced[it.ID]; ok && qty == it.Quantity {
			continue
		}
		notify.Emit(ctx, s.notifier, s.logger, notify.InventoryLowStock, it.ID, itemPayload(it, nil))
		s.announced[it.ID] = it.Quantity
		sent++
		s.logger.Info().
			Str("item_id", it.ID.String()).
			Str("name", it.Name).
			Int("quantity", it.Quantity).
			Int("min_quantity", it.MinQuantity).
			Msg("item below reorder threshold")
	}
	for id := range s.announced {
		if !low[id] {
			delete(s.announced, id)
		}
	}
	return sent, nil
}
