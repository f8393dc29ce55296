package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"kiranabook/backend/internal/domain"
	"kiranabook/backend/internal/money"
	"kiranabook/backend/internal/reconcile"
	"kiranabook/backend/internal/store"
	"kiranabook/backend/internal/xid"
)

// checkedUnset marks a submitted row that carried no checkedQty. Real
// values are never negative once they pass the codec.
const checkedUnset int64 = -1

func (s *Service) GetTransaction(ctx context.Context, kind domain.Kind, id string) (domain.Transaction, error) {
	if err := requireKind(kind); err != nil {
		return domain.Transaction{}, err
	}
	t, err := s.repo.GetTransaction(ctx, kind, id)
	if err != nil {
		return domain.Transaction{}, err
	}
	return *t, nil
}

func (s *Service) ListTransactions(ctx context.Context, kind domain.Kind, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	if err := requireKind(kind); err != nil {
		return nil, err
	}
	if filter.Limit < 1 || filter.Limit > 500 {
		filter.Limit = 100
	}
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, fmt.Errorf("%w: to must not be before from", store.ErrInvalid)
	}
	return s.repo.ListTransactions(ctx, kind, filter)
}

// CreateTransaction persists a new bill with all its items and credits
// every referenced product with the item quantities, in one atomic unit.
func (s *Service) CreateTransaction(ctx context.Context, kind domain.Kind, in domain.TransactionInput) (resp domain.CreateTransactionResponse, err error) {
	ctx, span := s.startSpan(ctx, "transaction.create", kind)
	defer func() { finishSpan(span, err) }()

	if err := requireKind(kind); err != nil {
		return domain.CreateTransactionResponse{}, err
	}
	if err := s.validateStruct(in); err != nil {
		return domain.CreateTransactionResponse{}, err
	}

	var deltas []domain.ProductDelta
	err = s.repo.Atomic(ctx, func(tx store.Tx) error {
		customer, err := s.resolveCustomer(ctx, tx, in.CustomerID, in.CustomerName)
		if err != nil {
			return err
		}
		drafts, err := s.normalizeItems(ctx, tx, in.Items)
		if err != nil {
			return err
		}

		sequenceNo, err := s.assignSequenceNo(ctx, tx, kind, in.TransactionNo, "")
		if err != nil {
			return err
		}

		now := s.now()
		header := domain.Transaction{
			ID:         xid.New(idPrefix(kind)),
			Kind:       kind,
			SequenceNo: sequenceNo,
			CustomerID: customer.ID,
			IsPaid:     in.IsPaid,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if in.CreatedAt != nil {
			header.CreatedAt = in.CreatedAt.UTC()
		}

		plan, err := reconcile.Diff(nil, drafts)
		if err != nil {
			return err
		}
		stampInserts(plan.Insert, header.ID, now)
		if header.GrandTotal, header.TotalQuantity, err = reconcile.Totals(plan.Insert); err != nil {
			return err
		}
		deltas = reconcile.QuantityDeltas(plan)

		if err := tx.InsertTransaction(ctx, kind, header); err != nil {
			return err
		}
		if err := tx.InsertItems(ctx, kind, plan.Insert); err != nil {
			return err
		}
		if err := tx.ApplyQuantityDeltas(ctx, deltas, now); err != nil {
			return err
		}

		resp = domain.CreateTransactionResponse{
			ID:    header.ID,
			Type:  kind,
			Items: make([]domain.ItemIdentity, 0, len(plan.Insert)),
		}
		for _, item := range plan.Insert {
			resp.Items = append(resp.Items, domain.ItemIdentity{RowID: item.RowID, ID: item.ID, ParentID: item.ParentID})
		}
		return nil
	})
	if err != nil {
		return domain.CreateTransactionResponse{}, err
	}

	s.invalidateProducts(ctx, reconcile.ProductIDs(deltas))
	s.logger.Info("transaction created",
		zap.String("type", string(kind)),
		zap.String("id", resp.ID),
		zap.Int("items", len(resp.Items)),
		zap.Int("products_touched", len(deltas)),
	)
	return resp, nil
}

// UpdateTransaction replaces a bill's items with the submitted set. Items
// are matched by persisted id; the inventory delta is computed from the
// items as they were before this call and applied once per product.
func (s *Service) UpdateTransaction(ctx context.Context, kind domain.Kind, id string, in domain.TransactionInput) (result domain.Transaction, err error) {
	ctx, span := s.startSpan(ctx, "transaction.update", kind)
	defer func() { finishSpan(span, err) }()

	if err := requireKind(kind); err != nil {
		return domain.Transaction{}, err
	}
	if err := s.validateStruct(in); err != nil {
		return domain.Transaction{}, err
	}

	var deltas []domain.ProductDelta
	err = s.repo.Atomic(ctx, func(tx store.Tx) error {
		header, err := tx.GetTransactionForUpdate(ctx, kind, id)
		if err != nil {
			return err
		}
		previous, err := tx.ListItems(ctx, kind, id)
		if err != nil {
			return err
		}

		if strings.TrimSpace(in.CustomerID) != "" || strings.TrimSpace(in.CustomerName) != "" {
			customer, err := s.resolveCustomer(ctx, tx, in.CustomerID, in.CustomerName)
			if err != nil {
				return err
			}
			header.CustomerID = customer.ID
			header.CustomerName = customer.Name
		}
		drafts, err := s.normalizeItems(ctx, tx, in.Items)
		if err != nil {
			return err
		}
		if in.TransactionNo != nil && *in.TransactionNo != header.SequenceNo {
			if header.SequenceNo, err = s.assignSequenceNo(ctx, tx, kind, in.TransactionNo, id); err != nil {
				return err
			}
		}

		plan, err := reconcile.Diff(previous, drafts)
		if err != nil {
			return err
		}

		now := s.now()
		stampInserts(plan.Insert, id, now)
		updates := make([]domain.LineItem, 0, len(plan.Update))
		for i := range plan.Update {
			change := &plan.Update[i]
			next := change.Next
			next.ParentID = id
			next.CreatedAt = change.Previous.CreatedAt
			next.UpdatedAt = now
			if next.CheckedQty == checkedUnset {
				next.CheckedQty = change.Previous.CheckedQty
			}
			next.CheckedQty = reconcile.SettleCheckedQty(next.CheckedQty, next.Quantity)
			change.Next = next
			updates = append(updates, next)
		}
		deltas = reconcile.QuantityDeltas(plan)

		if err := tx.DeleteItems(ctx, kind, plan.DeleteIDs()); err != nil {
			return err
		}
		if err := tx.UpdateItems(ctx, kind, updates); err != nil {
			return err
		}
		if err := tx.InsertItems(ctx, kind, plan.Insert); err != nil {
			return err
		}
		if err := tx.ApplyQuantityDeltas(ctx, deltas, now); err != nil {
			return err
		}

		live := append(append(make([]domain.LineItem, 0, len(updates)+len(plan.Insert)), updates...), plan.Insert...)
		if header.GrandTotal, header.TotalQuantity, err = reconcile.Totals(live); err != nil {
			return err
		}
		header.IsPaid = in.IsPaid
		if in.CreatedAt != nil {
			header.CreatedAt = in.CreatedAt.UTC()
		}
		header.UpdatedAt = now
		if err := tx.UpdateTransaction(ctx, kind, *header); err != nil {
			return err
		}

		items, err := tx.ListItems(ctx, kind, id)
		if err != nil {
			return err
		}
		rowIDs := make(map[string]string, len(live))
		for _, item := range live {
			rowIDs[item.ID] = item.RowID
		}
		for i := range items {
			items[i].RowID = rowIDs[items[i].ID]
		}
		header.Kind = kind
		header.Items = items
		result = *header
		return nil
	})
	if err != nil {
		return domain.Transaction{}, err
	}

	s.invalidateProducts(ctx, reconcile.ProductIDs(deltas))
	s.logger.Debug("transaction updated",
		zap.String("type", string(kind)),
		zap.String("id", id),
		zap.Int("items", len(result.Items)),
		zap.Int("products_touched", len(deltas)),
	)
	return result, nil
}

// DeleteTransaction removes a bill and debits every product it credited.
func (s *Service) DeleteTransaction(ctx context.Context, kind domain.Kind, id string) (err error) {
	ctx, span := s.startSpan(ctx, "transaction.delete", kind)
	defer func() { finishSpan(span, err) }()

	if err := requireKind(kind); err != nil {
		return err
	}

	var deltas []domain.ProductDelta
	err = s.repo.Atomic(ctx, func(tx store.Tx) error {
		if _, err := tx.GetTransactionForUpdate(ctx, kind, id); err != nil {
			return err
		}
		previous, err := tx.ListItems(ctx, kind, id)
		if err != nil {
			return err
		}
		deltas = reconcile.QuantityDeltas(reconcile.ReplaceAll(previous, nil))

		if err := tx.DeleteTransaction(ctx, kind, id); err != nil {
			return err
		}
		return tx.ApplyQuantityDeltas(ctx, deltas, s.now())
	})
	if err != nil {
		return err
	}

	s.invalidateProducts(ctx, reconcile.ProductIDs(deltas))
	s.logger.Info("transaction deleted", zap.String("type", string(kind)), zap.String("id", id))
	return nil
}

// ConvertTransaction moves a sale to estimates or back. The target gets its
// own next sequence number and fresh ids; the source row is removed. The
// items leave one kind and enter the other, so the merged inventory delta
// nets to zero.
func (s *Service) ConvertTransaction(ctx context.Context, kind domain.Kind, id string) (resp domain.ConvertTransactionResponse, err error) {
	ctx, span := s.startSpan(ctx, "transaction.convert", kind)
	defer func() { finishSpan(span, err) }()

	if err := requireKind(kind); err != nil {
		return domain.ConvertTransactionResponse{}, err
	}
	target := kind.Other()

	var deltas []domain.ProductDelta
	err = s.repo.Atomic(ctx, func(tx store.Tx) error {
		source, err := tx.GetTransactionForUpdate(ctx, kind, id)
		if err != nil {
			return err
		}
		previous, err := tx.ListItems(ctx, kind, id)
		if err != nil {
			return err
		}
		sequenceNo, err := tx.NextSequenceNo(ctx, target)
		if err != nil {
			return err
		}

		now := s.now()
		moved := *source
		moved.ID = xid.New(idPrefix(target))
		moved.Kind = target
		moved.SequenceNo = sequenceNo
		moved.UpdatedAt = now

		carried := make([]domain.LineItem, 0, len(previous))
		for _, item := range previous {
			item.ID = ""
			item.RowID = ""
			carried = append(carried, item)
		}
		plan, err := reconcile.Diff(nil, carried)
		if err != nil {
			return err
		}
		for i := range plan.Insert {
			plan.Insert[i].ID = xid.New("itm")
			plan.Insert[i].ParentID = moved.ID
			plan.Insert[i].UpdatedAt = now
		}
		if moved.GrandTotal, moved.TotalQuantity, err = reconcile.Totals(plan.Insert); err != nil {
			return err
		}
		deltas = reconcile.MergeDeltas(
			reconcile.QuantityDeltas(reconcile.ReplaceAll(previous, nil)),
			reconcile.QuantityDeltas(plan),
		)

		if err := tx.InsertTransaction(ctx, target, moved); err != nil {
			return err
		}
		if err := tx.InsertItems(ctx, target, plan.Insert); err != nil {
			return err
		}
		if err := tx.DeleteTransaction(ctx, kind, id); err != nil {
			return err
		}
		if err := tx.ApplyQuantityDeltas(ctx, deltas, now); err != nil {
			return err
		}
		resp = domain.ConvertTransactionResponse{ID: moved.ID, Type: target}
		return nil
	})
	if err != nil {
		return domain.ConvertTransactionResponse{}, err
	}

	s.invalidateProducts(ctx, reconcile.ProductIDs(deltas))
	s.logger.Info("transaction converted",
		zap.String("from_type", string(kind)),
		zap.String("from_id", id),
		zap.String("to_type", string(target)),
		zap.String("to_id", resp.ID),
	)
	return resp, nil
}

// assignSequenceNo validates a caller-chosen number or allocates the next
// one for the kind. excludeID is the bill being renumbered, if any.
func (s *Service) assignSequenceNo(ctx context.Context, tx store.Tx, kind domain.Kind, requested *int64, excludeID string) (int64, error) {
	if requested == nil {
		return tx.NextSequenceNo(ctx, kind)
	}
	if *requested < 1 {
		return 0, fmt.Errorf("%w: transactionNo must be positive", store.ErrInvalid)
	}
	taken, err := tx.SequenceTaken(ctx, kind, *requested, excludeID)
	if err != nil {
		return 0, err
	}
	if taken {
		return 0, fmt.Errorf("%w: %s number %d is already used", store.ErrConflict, kind, *requested)
	}
	return *requested, nil
}

// normalizeItems runs every submitted row through the codec, copies
// missing attributes down from the referenced product and computes the
// line total server-side.
func (s *Service) normalizeItems(ctx context.Context, tx store.Tx, inputs []domain.LineItemInput) ([]domain.LineItem, error) {
	productIDs := make([]string, 0, len(inputs))
	for _, in := range inputs {
		if id := strings.TrimSpace(in.ProductID); id != "" {
			productIDs = append(productIDs, id)
		}
	}
	products, err := tx.GetProducts(ctx, productIDs)
	if err != nil {
		return nil, err
	}

	drafts := make([]domain.LineItem, 0, len(inputs))
	for i, in := range inputs {
		label := in.RowID
		if label == "" {
			label = fmt.Sprintf("#%d", i+1)
		}

		item := domain.LineItem{
			ID:              strings.TrimSpace(in.ID),
			RowID:           in.RowID,
			ProductID:       strings.TrimSpace(in.ProductID),
			Name:            strings.TrimSpace(in.Name),
			ProductSnapshot: strings.TrimSpace(in.ProductSnapshot),
			Weight:          strings.TrimSpace(in.Weight),
			Unit:            strings.TrimSpace(in.Unit),
			CheckedQty:      checkedUnset,
			IsInventoryItem: in.IsInventoryItem,
		}
		if item.Name == "" {
			return nil, fmt.Errorf("%w: item %s: name is required", store.ErrInvalid, label)
		}
		if item.Price, err = minorField("item "+label+": price", in.Price); err != nil {
			return nil, err
		}
		if item.Quantity, err = milliField("item "+label+": quantity", in.Quantity); err != nil {
			return nil, err
		}
		if item.Price < 1 {
			return nil, fmt.Errorf("%w: item %s: price must be positive", store.ErrInvalid, label)
		}
		if item.Quantity < 1 {
			return nil, fmt.Errorf("%w: item %s: quantity must be positive", store.ErrInvalid, label)
		}
		if in.MRP.Valid {
			if item.MRP, err = minorField("item "+label+": mrp", in.MRP.Decimal); err != nil {
				return nil, err
			}
			if item.MRP < 0 {
				return nil, fmt.Errorf("%w: item %s: mrp cannot be negative", store.ErrInvalid, label)
			}
		}
		if in.PurchasePrice.Valid {
			if item.PurchasePrice, err = minorField("item "+label+": purchasePrice", in.PurchasePrice.Decimal); err != nil {
				return nil, err
			}
			if item.PurchasePrice < 0 {
				return nil, fmt.Errorf("%w: item %s: purchasePrice cannot be negative", store.ErrInvalid, label)
			}
		}

		if item.ProductID != "" {
			product, ok := products[item.ProductID]
			if !ok {
				return nil, fmt.Errorf("%w: item %s: product %s", store.ErrNotFound, label, item.ProductID)
			}
			if item.Weight == "" {
				item.Weight = product.Weight
			}
			if item.Unit == "" {
				item.Unit = product.Unit
			}
			if !in.MRP.Valid {
				item.MRP = product.MRP
			}
			if !in.PurchasePrice.Valid {
				item.PurchasePrice = product.PurchasePrice
			}
		}
		if item.ProductSnapshot == "" {
			item.ProductSnapshot = reconcile.BuildSnapshot(item.Name, item.Weight, item.Unit, item.MRP)
		}
		if item.TotalPrice, err = money.LineTotal(item.Price, item.Quantity); err != nil {
			return nil, fmt.Errorf("%w: item %s: %w", store.ErrInvalid, label, err)
		}

		if in.CheckedQty.Valid {
			checked, err := milliField("item "+label+": checkedQty", in.CheckedQty.Decimal)
			if err != nil {
				return nil, err
			}
			item.CheckedQty = max(checked, 0)
		}
		drafts = append(drafts, item)
	}
	return drafts, nil
}

func stampInserts(items []domain.LineItem, parentID string, now time.Time) {
	for i := range items {
		items[i].ID = xid.New("itm")
		items[i].ParentID = parentID
		items[i].CreatedAt = now
		items[i].UpdatedAt = now
		if items[i].CheckedQty == checkedUnset {
			items[i].CheckedQty = 0
		}
		items[i].CheckedQty = reconcile.SettleCheckedQty(items[i].CheckedQty, items[i].Quantity)
	}
}

func minorField(field string, value decimal.Decimal) (int64, error) {
	amount, err := money.ToMinor(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", store.ErrInvalid, field, err)
	}
	return amount, nil
}

func milliField(field string, value decimal.Decimal) (int64, error) {
	qty, err := money.ToMilli(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", store.ErrInvalid, field, err)
	}
	return qty, nil
}
