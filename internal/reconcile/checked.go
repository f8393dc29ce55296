package reconcile

import (
	"fmt"

	"kiranabook/backend/internal/domain"
	"kiranabook/backend/internal/money"
	"kiranabook/backend/internal/store"
)

// checkedPrecision is the grid checked quantities are snapped to: two
// decimal places of a unit.
const checkedPrecision int64 = 10

// NextCheckedQty applies one verification action to an item's checked
// quantity. Both values are milli-units. The result always lies within
// [0, quantity].
func NextCheckedQty(action domain.CheckAction, checked int64, quantity int64) (int64, error) {
	if quantity < 0 {
		quantity = 0
	}
	checked = clamp(checked, 0, quantity)

	var next int64
	switch action {
	case domain.CheckSet:
		if checked == quantity {
			next = 0
		} else {
			next = quantity
		}
	case domain.CheckIncrement:
		next = checked + money.MilliPerUnit
		if next > quantity {
			// Snap to the fractional tail: 2 of 2.5 goes to 2.5, not 3.
			snapped := floorUnit(checked) + quantity%money.MilliPerUnit
			if snapped <= checked || snapped > quantity {
				snapped = quantity
			}
			next = snapped
		}
	case domain.CheckDecrement:
		if checked == quantity && quantity%money.MilliPerUnit != 0 {
			next = floorUnit(quantity)
		} else {
			next = checked - money.MilliPerUnit
		}
	case domain.CheckMarkAll:
		next = quantity
	case domain.CheckUnmarkAll:
		next = 0
	default:
		return 0, fmt.Errorf("%w: unknown checked-qty action %q", store.ErrInvalid, action)
	}
	return SettleCheckedQty(next, quantity), nil
}

// SettleCheckedQty clamps a checked quantity into [0, quantity] and rounds
// it to the nearest 10 milli-units without leaving that range.
func SettleCheckedQty(checked int64, quantity int64) int64 {
	if quantity < 0 {
		quantity = 0
	}
	v := clamp(checked, 0, quantity)
	v = roundHalfUp(v, checkedPrecision) * checkedPrecision
	return clamp(v, 0, quantity)
}

func floorUnit(milli int64) int64 {
	return milli - milli%money.MilliPerUnit
}

func roundHalfUp(v int64, step int64) int64 {
	q := v / step
	if (v%step)*2 >= step {
		q++
	}
	return q
}

func clamp(v int64, lo int64, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
