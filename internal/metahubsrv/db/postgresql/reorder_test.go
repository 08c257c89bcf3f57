package postgresql

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/metahub-io/metahub-server/internal/common/uuid"
	"github.com/metahub-io/metahub-server/internal/metahubsrv/mhcommon"
)

func ids(n int) []uuid.UUID {
	out := make([]uuid.UUID, n)
	for i := range out {
		out[i] = uuid.New()
	}
	return out
}

func TestDenseChanges(t *testing.T) {
	rid := ids(4)

	tests := []struct {
		name   string
		rows   []rowOrder
		expect []rowOrder
	}{
		{
			name:   "already dense",
			rows:   []rowOrder{{rid[0], 1}, {rid[1], 2}, {rid[2], 3}},
			expect: nil,
		},
		{
			name:   "gap in the middle",
			rows:   []rowOrder{{rid[0], 1}, {rid[1], 3}, {rid[2], 4}},
			expect: []rowOrder{{rid[1], 2}, {rid[2], 3}},
		},
		{
			name:   "swapped pair",
			rows:   []rowOrder{{rid[0], 2}, {rid[1], 1}},
			expect: []rowOrder{{rid[0], 1}, {rid[1], 2}},
		},
		{
			name:   "duplicate orders",
			rows:   []rowOrder{{rid[0], 1}, {rid[1], 1}, {rid[2], 1}, {rid[3], 2}},
			expect: []rowOrder{{rid[1], 2}, {rid[2], 3}, {rid[3], 4}},
		},
		{
			name:   "empty",
			rows:   nil,
			expect: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, denseChanges(tt.rows))
		})
	}
}

func TestNeighborIndex(t *testing.T) {
	tests := []struct {
		name      string
		idx, n    int
		direction mhcommon.MoveDirection
		expect    int
	}{
		{"up from middle", 2, 4, mhcommon.MoveUp, 1},
		{"up from top", 0, 4, mhcommon.MoveUp, -1},
		{"down from middle", 1, 4, mhcommon.MoveDown, 2},
		{"down from bottom", 3, 4, mhcommon.MoveDown, -1},
		{"not found", -1, 4, mhcommon.MoveDown, -1},
		{"single row up", 0, 1, mhcommon.MoveUp, -1},
		{"single row down", 0, 1, mhcommon.MoveDown, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, neighborIndex(tt.idx, tt.n, tt.direction))
		})
	}
}

func TestSplice(t *testing.T) {
	rid := ids(4)
	rows := []rowOrder{{rid[0], 1}, {rid[1], 2}, {rid[2], 3}, {rid[3], 4}}

	out := splice(rows, 0, 2)
	assert.Equal(t, []uuid.UUID{rid[1], rid[2], rid[0], rid[3]}, orderedIDs(out))

	out = splice(rows, 3, 0)
	assert.Equal(t, []uuid.UUID{rid[3], rid[0], rid[1], rid[2]}, orderedIDs(out))

	out = splice(rows, 1, 1)
	assert.Equal(t, []uuid.UUID{rid[0], rid[1], rid[2], rid[3]}, orderedIDs(out))

	// out-of-range source leaves rows untouched
	out = splice(rows, 9, 0)
	assert.Equal(t, rows, out)
}

func orderedIDs(rows []rowOrder) []uuid.UUID {
	out := make([]uuid.UUID, len(rows))
	for i, r := range rows {
		out[i] = r.ID
	}
	return out
}

func TestClampIndex(t *testing.T) {
	assert.Equal(t, 0, clampIndex(-5, 3))
	assert.Equal(t, 3, clampIndex(7, 3))
	assert.Equal(t, 2, clampIndex(2, 3))
	assert.Equal(t, 0, clampIndex(0, 0))
}

func TestIndexOf(t *testing.T) {
	rid := ids(3)
	rows := []rowOrder{{rid[0], 1}, {rid[1], 2}, {rid[2], 3}}
	assert.Equal(t, 1, indexOf(rows, rid[1]))
	assert.Equal(t, -1, indexOf(rows, uuid.New()))
}
