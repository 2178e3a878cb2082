package memory

import (
	"context"
	"time"

	"github.com/dmehra2102/convenience-store/pkg/outbox"
)

const maxRetries = 5

// LockBatch follows the Postgres store: pending rows, expired leases and
// failed rows that still have retries left.
func (s *Store) LockBatch(_ context.Context, relayID string, batchSize int, lease time.Duration) ([]outbox.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var out []outbox.Event
	for i := range s.st.events {
		if len(out) == batchSize {
			break
		}
		ev := &s.st.events[i]
		eligible := ev.Status == outbox.StatusPending ||
			(ev.Status == outbox.StatusInProgress && s.leases[ev.ID].Before(now)) ||
			(ev.Status == outbox.StatusFailed && ev.RetryCount < maxRetries)
		if !eligible {
			continue
		}
		ev.Status = outbox.StatusInProgress
		ev.RelayID = relayID
		s.leases[ev.ID] = now.Add(lease)
		out = append(out, *ev)
	}
	return out, nil
}

func (s *Store) MarkSent(_ context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.each(ids, func(ev *outbox.Event) {
		ev.Status = outbox.StatusSent
		delete(s.leases, ev.ID)
	})
	return nil
}

func (s *Store) MarkFailed(_ context.Context, id int64, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.each([]int64{id}, func(ev *outbox.Event) {
		ev.Status = outbox.StatusFailed
		ev.RetryCount++
		msg := errMsg
		ev.LastError = &msg
		delete(s.leases, ev.ID)
	})
	return nil
}

func (s *Store) ExtendLease(_ context.Context, relayID string, ids []int64, lease time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	until := s.now().Add(lease)
	s.each(ids, func(ev *outbox.Event) {
		if ev.RelayID == relayID && ev.Status == outbox.StatusInProgress {
			s.leases[ev.ID] = until
		}
	})
	return nil
}

func (s *Store) each(ids []int64, fn func(ev *outbox.Event)) {
	want := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	for i := range s.st.events {
		if _, ok := want[s.st.events[i].ID]; ok {
			fn(&s.st.events[i])
		}
	}
}
