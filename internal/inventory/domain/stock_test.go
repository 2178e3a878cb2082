package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/convenience-store/pkg/apperr"
)

func TestCheckAvailable(t *testing.T) {
	p := Product{Code: "P0001", StockQty: 3, Status: StatusActive}

	assert.NoError(t, p.CheckAvailable(3))

	err := p.CheckAvailable(4)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
	assert.Equal(t, "Insufficient stock for product: P0001", apperr.Message(err))

	p.Status = StatusInactive
	err = p.CheckAvailable(1)
	assert.Equal(t, "Product is inactive: P0001", apperr.Message(err))
}

func TestTake(t *testing.T) {
	p := Product{Code: "P0001", StockQty: 5, Status: StatusActive}

	require.NoError(t, p.Take(2))
	assert.Equal(t, 3, p.StockQty)
	assert.Equal(t, StatusActive, p.Status)

	require.NoError(t, p.Take(3))
	assert.Equal(t, 0, p.StockQty)
	assert.Equal(t, StatusOutOfStock, p.Status)

	err := p.Take(1)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
	assert.Equal(t, 0, p.StockQty)
}

func TestSortLinesDoesNotMutateInput(t *testing.T) {
	in := []Line{{ProductID: "c"}, {ProductID: "a"}, {ProductID: "b"}}

	out := SortLines(in)

	assert.Equal(t, []string{"a", "b", "c"}, []string{out[0].ProductID, out[1].ProductID, out[2].ProductID})
	assert.Equal(t, "c", in[0].ProductID)
}
