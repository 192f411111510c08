package shared

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewPagination(t *testing.T) {
	p := NewPagination(2, 25, 120)
	assert.Equal(t, 2, p.Page)
	assert.Equal(t, 25, p.PerPage)
	assert.Equal(t, 120, p.Total)
	assert.Equal(t, 5, p.TotalPages)

	p = NewPagination(0, 0, 0)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 20, p.PerPage)
	assert.Equal(t, 0, p.TotalPages)
}

func TestLimitOffset(t *testing.T) {
	tests := []struct {
		name       string
		limit      int
		offset     int
		maxLimit   int
		wantLimit  int
		wantOffset int
	}{
		{"in range", 10, 30, 100, 10, 30},
		{"zero limit uses max", 0, 0, 100, 100, 0},
		{"over max clamps", 500, 0, 100, 100, 0},
		{"negative offset resets", 10, -5, 100, 10, 0},
		{"zero max falls back", 10, 0, 0, 10, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			limit, offset := LimitOffset(tc.limit, tc.offset, tc.maxLimit)
			assert.Equal(t, tc.wantLimit, limit)
			assert.Equal(t, tc.wantOffset, offset)
		})
	}
}
