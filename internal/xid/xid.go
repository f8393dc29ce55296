package xid

import (
	"strings"

	"github.com/google/uuid"
)

// New returns a prefixed opaque identifier such as "sal_0190c4e2...".
// Version 7 UUIDs sort by creation time, which keeps primary-key inserts
// append-mostly.
func New(prefix string) string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return prefix + "_" + strings.ReplaceAll(id.String(), "-", "")
}
