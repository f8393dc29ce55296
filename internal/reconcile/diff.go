// Package reconcile holds the pure parts of bill reconciliation: diffing a
// submitted item set against the persisted one, turning that diff into
// per-product quantity deltas, recomputing aggregates, and the
// checked-quantity state machine. Nothing here touches storage.
package reconcile

import (
	"fmt"

	"kiranabook/backend/internal/domain"
	"kiranabook/backend/internal/store"
)

// ItemChange pairs a persisted item with the submitted row that replaces it.
type ItemChange struct {
	Previous domain.LineItem
	Next     domain.LineItem
}

// Plan is the classification of one save. Every previous item is in
// exactly one of Update or Delete and every submitted item is in exactly
// one of Insert or Update.
type Plan struct {
	Insert []domain.LineItem
	Update []ItemChange
	Delete []domain.LineItem
}

func (p Plan) Empty() bool {
	return len(p.Insert) == 0 && len(p.Update) == 0 && len(p.Delete) == 0
}

// DeleteIDs lists the ids of items the plan removes.
func (p Plan) DeleteIDs() []string {
	ids := make([]string, 0, len(p.Delete))
	for _, item := range p.Delete {
		ids = append(ids, item.ID)
	}
	return ids
}

// Diff matches submitted rows to previous rows by persisted id. RowID plays
// no part in matching. A submitted id that is unknown to the previous set
// (a row removed by a concurrent save, or copied from another bill) is
// treated as a new row and loses its id.
func Diff(previous []domain.LineItem, submitted []domain.LineItem) (Plan, error) {
	byID := make(map[string]domain.LineItem, len(previous))
	for _, item := range previous {
		byID[item.ID] = item
	}

	plan := Plan{
		Insert: make([]domain.LineItem, 0, len(submitted)),
		Update: make([]ItemChange, 0, len(submitted)),
	}
	claimed := make(map[string]struct{}, len(submitted))
	for _, item := range submitted {
		if item.ID == "" {
			plan.Insert = append(plan.Insert, item)
			continue
		}
		if _, dup := claimed[item.ID]; dup {
			return Plan{}, fmt.Errorf("%w: item %s submitted more than once", store.ErrInvalid, item.ID)
		}
		claimed[item.ID] = struct{}{}

		prev, ok := byID[item.ID]
		if !ok {
			item.ID = ""
			plan.Insert = append(plan.Insert, item)
			continue
		}
		plan.Update = append(plan.Update, ItemChange{Previous: prev, Next: item})
	}

	plan.Delete = make([]domain.LineItem, 0, len(previous))
	for _, item := range previous {
		if _, kept := claimed[item.ID]; !kept {
			plan.Delete = append(plan.Delete, item)
		}
	}
	return plan, nil
}

// ReplaceAll is the plan that drops every previous item and inserts the
// given ones, used when a bill is deleted or moved to the other variant.
func ReplaceAll(previous []domain.LineItem, inserted []domain.LineItem) Plan {
	return Plan{Insert: inserted, Delete: previous}
}
