package redis

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/dmehra2102/convenience-store/internal/inventory/domain"
)

const alertsKey = "inventory:restock_alerts"

type alertRecord struct {
	Code  string    `json:"code"`
	Since time.Time `json:"since"`
}

// AlertStore keeps open restock alerts in one hash keyed by product id.
type AlertStore struct {
	rdb goredis.Cmdable
}

func NewAlertStore(rdb goredis.Cmdable) *AlertStore {
	return &AlertStore{rdb: rdb}
}

func (s *AlertStore) Raise(ctx context.Context, a domain.RestockAlert) (bool, error) {
	b, err := json.Marshal(alertRecord{Code: a.Code, Since: a.Since.UTC()})
	if err != nil {
		return false, err
	}
	return s.rdb.HSetNX(ctx, alertsKey, a.ProductID, b).Result()
}

func (s *AlertStore) Open(ctx context.Context) ([]domain.RestockAlert, error) {
	raw, err := s.rdb.HGetAll(ctx, alertsKey).Result()
	if err != nil {
		return nil, err
	}
	out := make([]domain.RestockAlert, 0, len(raw))
	for id, v := range raw {
		var rec alertRecord
		if err := json.Unmarshal([]byte(v), &rec); err != nil {
			return nil, err
		}
		out = append(out, domain.RestockAlert{ProductID: id, Code: rec.Code, Since: rec.Since})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}
