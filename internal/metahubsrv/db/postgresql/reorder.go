package postgresql

import (
	"github.com/metahub-io/metahub-server/internal/common/uuid"
	"github.com/metahub-io/metahub-server/internal/metahubsrv/mhcommon"
)

// rowOrder pairs a row id with its sort order for reorder computations.
type rowOrder struct {
	ID    uuid.UUID
	Order int
}

// denseChanges takes rows in their intended final order and returns the
// subset whose stored order differs from the dense 1..N sequence. Writing
// only the returned rows makes self-healing reorders cheap when the sequence
// is already dense.
func denseChanges(rows []rowOrder) []rowOrder {
	var changed []rowOrder
	for i, r := range rows {
		want := i + 1
		if r.Order != want {
			changed = append(changed, rowOrder{ID: r.ID, Order: want})
		}
	}
	return changed
}

// indexOf returns the position of id in rows, or -1.
func indexOf(rows []rowOrder, id uuid.UUID) int {
	for i, r := range rows {
		if r.ID == id {
			return i
		}
	}
	return -1
}

// neighborIndex returns the index the row at idx swaps with for the given
// direction, or -1 when the move falls off either end.
func neighborIndex(idx, n int, direction mhcommon.MoveDirection) int {
	switch direction {
	case mhcommon.MoveUp:
		if idx <= 0 {
			return -1
		}
		return idx - 1
	case mhcommon.MoveDown:
		if idx < 0 || idx >= n-1 {
			return -1
		}
		return idx + 1
	}
	return -1
}

// splice removes the row at from and reinserts it at to, returning the new
// ordering. to is expected to already be clamped into [0, len(rows)-1].
func splice(rows []rowOrder, from, to int) []rowOrder {
	if from < 0 || from >= len(rows) {
		return rows
	}
	row := rows[from]
	rest := make([]rowOrder, 0, len(rows))
	rest = append(rest, rows[:from]...)
	rest = append(rest, rows[from+1:]...)
	out := make([]rowOrder, 0, len(rows))
	out = append(out, rest[:to]...)
	out = append(out, row)
	out = append(out, rest[to:]...)
	return out
}

// clampIndex clamps idx into [0, max].
func clampIndex(idx, max int) int {
	if idx < 0 {
		return 0
	}
	if idx > max {
		return max
	}
	return idx
}
