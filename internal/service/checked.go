package service

import (
	"context"

	"go.uber.org/zap"

	"kiranabook/backend/internal/domain"
	"kiranabook/backend/internal/reconcile"
	"kiranabook/backend/internal/store"
)

// UpdateCheckedQty applies one verification step to a single item and
// returns the item as stored.
func (s *Service) UpdateCheckedQty(ctx context.Context, kind domain.Kind, txID string, itemID string, req domain.CheckedQtyRequest) (item domain.LineItem, err error) {
	ctx, span := s.startSpan(ctx, "transaction.checked_qty", kind)
	defer func() { finishSpan(span, err) }()

	if err := requireKind(kind); err != nil {
		return domain.LineItem{}, err
	}
	if err := s.validateStruct(req); err != nil {
		return domain.LineItem{}, err
	}

	err = s.repo.Atomic(ctx, func(tx store.Tx) error {
		if _, err := tx.GetTransactionForUpdate(ctx, kind, txID); err != nil {
			return err
		}
		current, err := tx.GetItemForUpdate(ctx, kind, txID, itemID)
		if err != nil {
			return err
		}
		next, err := reconcile.NextCheckedQty(req.Action, current.CheckedQty, current.Quantity)
		if err != nil {
			return err
		}
		now := s.now()
		if err := tx.SetCheckedQty(ctx, kind, itemID, next, now); err != nil {
			return err
		}
		item = *current
		item.CheckedQty = next
		item.UpdatedAt = now
		return nil
	})
	if err != nil {
		return domain.LineItem{}, err
	}
	return item, nil
}

// BatchCheckedQty marks or clears every item of a bill and returns the
// refreshed items.
func (s *Service) BatchCheckedQty(ctx context.Context, kind domain.Kind, txID string, req domain.CheckedQtyBatchRequest) (items []domain.LineItem, err error) {
	ctx, span := s.startSpan(ctx, "transaction.checked_qty_batch", kind)
	defer func() { finishSpan(span, err) }()

	if err := requireKind(kind); err != nil {
		return nil, err
	}
	if err := s.validateStruct(req); err != nil {
		return nil, err
	}

	err = s.repo.Atomic(ctx, func(tx store.Tx) error {
		if _, err := tx.GetTransactionForUpdate(ctx, kind, txID); err != nil {
			return err
		}
		if err := tx.SetAllChecked(ctx, kind, txID, req.Action == domain.CheckMarkAll, s.now()); err != nil {
			return err
		}
		items, err = tx.ListItems(ctx, kind, txID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("checked quantities reset",
		zap.String("type", string(kind)),
		zap.String("id", txID),
		zap.String("action", string(req.Action)),
		zap.Int("items", len(items)),
	)
	return items, nil
}
