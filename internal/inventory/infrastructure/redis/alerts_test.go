package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/convenience-store/internal/inventory/domain"
)

func TestRaiseOpensOnce(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewAlertStore(db)
	since := time.Date(2024, 1, 1, 5, 15, 0, 0, time.UTC)
	payload, err := json.Marshal(alertRecord{Code: "P0001", Since: since})
	require.NoError(t, err)

	mock.ExpectHSetNX(alertsKey, "p1", payload).SetVal(true)
	mock.ExpectHSetNX(alertsKey, "p1", payload).SetVal(false)

	opened, err := store.Raise(context.Background(), domain.RestockAlert{ProductID: "p1", Code: "P0001", Since: since})
	require.NoError(t, err)
	assert.True(t, opened)

	opened, err = store.Raise(context.Background(), domain.RestockAlert{ProductID: "p1", Code: "P0001", Since: since})
	require.NoError(t, err)
	assert.False(t, opened)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpenSortsByCode(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewAlertStore(db)

	mock.ExpectHGetAll(alertsKey).SetVal(map[string]string{
		"p2": `{"code":"P1002","since":"2024-01-01T05:15:00Z"}`,
		"p1": `{"code":"P0001","since":"2024-01-01T06:00:00Z"}`,
	})

	alerts, err := store.Open(context.Background())
	require.NoError(t, err)

	require.Len(t, alerts, 2)
	assert.Equal(t, "p1", alerts[0].ProductID)
	assert.Equal(t, "P1002", alerts[1].Code)
	assert.True(t, alerts[1].Since.Equal(time.Date(2024, 1, 1, 5, 15, 0, 0, time.UTC)))
	assert.NoError(t, mock.ExpectationsWereMet())
}
