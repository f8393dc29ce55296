package reconcile

import (
	"fmt"
	"sort"

	"kiranabook/backend/internal/domain"
	"kiranabook/backend/internal/money"
	"kiranabook/backend/internal/store"
)

// QuantityDeltas sums the inventory effect of a plan per product. Inserts
// credit their product, deletes debit theirs, and updates debit the old
// product and credit the new one so a reassignment moves quantity between
// products. Rows without a product contribute nothing. Zero deltas are
// dropped and the result is ordered by product id.
func QuantityDeltas(plan Plan) []domain.ProductDelta {
	sums := make(map[string]int64)
	add := func(productID string, qty int64) {
		if productID == "" {
			return
		}
		sums[productID] += qty
	}

	for _, item := range plan.Insert {
		add(item.ProductID, item.Quantity)
	}
	for _, item := range plan.Delete {
		add(item.ProductID, -item.Quantity)
	}
	for _, change := range plan.Update {
		add(change.Previous.ProductID, -change.Previous.Quantity)
		add(change.Next.ProductID, change.Next.Quantity)
	}
	return collect(sums)
}

// MergeDeltas folds several delta lists into one with the same ordering
// and zero-dropping rules as QuantityDeltas.
func MergeDeltas(lists ...[]domain.ProductDelta) []domain.ProductDelta {
	sums := make(map[string]int64)
	for _, list := range lists {
		for _, d := range list {
			sums[d.ProductID] += d.Delta
		}
	}
	return collect(sums)
}

// ProductIDs lists the products a delta list touches.
func ProductIDs(deltas []domain.ProductDelta) []string {
	ids := make([]string, 0, len(deltas))
	for _, d := range deltas {
		ids = append(ids, d.ProductID)
	}
	return ids
}

func collect(sums map[string]int64) []domain.ProductDelta {
	deltas := make([]domain.ProductDelta, 0, len(sums))
	for productID, delta := range sums {
		if delta == 0 {
			continue
		}
		deltas = append(deltas, domain.ProductDelta{ProductID: productID, Delta: delta})
	}
	sort.Slice(deltas, func(i, j int) bool {
		return deltas[i].ProductID < deltas[j].ProductID
	})
	return deltas
}

// Totals recomputes a bill's aggregates from its live items. A sum that
// does not fit the fixed-point range is rejected as invalid input.
func Totals(items []domain.LineItem) (grandTotal int64, totalQuantity int64, err error) {
	for _, item := range items {
		if grandTotal, err = money.Add(grandTotal, item.TotalPrice); err != nil {
			return 0, 0, fmt.Errorf("%w: grand total: %w", store.ErrInvalid, err)
		}
		if totalQuantity, err = money.Add(totalQuantity, item.Quantity); err != nil {
			return 0, 0, fmt.Errorf("%w: total quantity: %w", store.ErrInvalid, err)
		}
	}
	return grandTotal, totalQuantity, nil
}
