package reconcile

import (
	"strings"

	"kiranabook/backend/internal/money"
)

// ignoredWeights are weight+unit spellings that carry no information on a
// printed bill, so the snapshot leaves them out.
var ignoredWeights = map[string]struct{}{
	"1pc":    {},
	"1pcs":   {},
	"1piece": {},
	"1nos":   {},
	"none":   {},
	"na":     {},
	"0":      {},
}

// BuildSnapshot freezes a product's description at the time of sale, e.g.
// "Sugar 1kg MRP ₹45.00", so old bills keep reading correctly after the
// product changes.
func BuildSnapshot(name string, weight string, unit string, mrp int64) string {
	parts := make([]string, 0, 3)
	if n := strings.TrimSpace(name); n != "" {
		parts = append(parts, n)
	}
	if w := weightLabel(weight, unit); w != "" {
		parts = append(parts, w)
	}
	if mrp > 0 {
		parts = append(parts, "MRP "+money.FormatMinor(mrp))
	}
	return strings.Join(parts, " ")
}

func weightLabel(weight string, unit string) string {
	w := strings.TrimSpace(weight)
	if w == "" {
		return ""
	}
	label := w + strings.TrimSpace(unit)
	key := strings.ToLower(strings.ReplaceAll(label, " ", ""))
	if _, skip := ignoredWeights[key]; skip {
		return ""
	}
	return label
}
