package idempotency

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	Header         = "Idempotency-Key"
	ReplayedHeader = "Idempotent-Replayed"
	pendingMarker  = "pending"
)

type Store struct {
	rdb redis.Cmdable
	ttl time.Duration
	log *slog.Logger
}

func NewStore(rdb redis.Cmdable, ttl time.Duration, log *slog.Logger) *Store {
	return &Store{rdb: rdb, ttl: ttl, log: log}
}

func (s *Store) Key(topic string, partition int, offset int64) string {
	return fmt.Sprintf("idem:%s:%d:%d", topic, partition, offset)
}

// Seen marks key as processed and reports whether it already was.
func (s *Store) Seen(ctx context.Context, key string) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, key, "1", s.ttl).Result()
	if err != nil {
		return false, err
	}

	return !ok, nil
}

// Forget releases a key whose processing failed so a redelivery is handled.
func (s *Store) Forget(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}

type record struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        string `json:"body"`
}

func encodeRecord(rec record) string {
	b, _ := json.Marshal(rec)
	return string(b)
}

func httpKey(r *http.Request, key string) string {
	return fmt.Sprintf("idem:http:%s:%s:%s", r.Method, r.URL.Path, key)
}

// Middleware replays the stored response for a repeated Idempotency-Key.
// A key whose first request is still running gets 409; responses with a 5xx
// status are not stored so the client may retry.
func (s *Store) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(Header)
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}
		ctx := r.Context()
		rkey := httpKey(r, key)

		acquired, err := s.rdb.SetNX(ctx, rkey, pendingMarker, s.ttl).Result()
		if err != nil {
			s.log.Warn("idempotency store unavailable, serving without replay", "err", err)
			next.ServeHTTP(w, r)
			return
		}
		if !acquired {
			s.replay(w, r, rkey)
			return
		}

		rec := &recorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		if rec.status >= http.StatusInternalServerError {
			if err := s.rdb.Del(ctx, rkey).Err(); err != nil {
				s.log.Warn("idempotency release failed", "key", key, "err", err)
			}
			return
		}
		stored := encodeRecord(record{
			Status:      rec.status,
			ContentType: rec.Header().Get("Content-Type"),
			Body:        rec.buf.String(),
		})
		if err := s.rdb.Set(ctx, rkey, stored, s.ttl).Err(); err != nil {
			s.log.Warn("idempotency save failed", "key", key, "err", err)
		}
	})
}

func (s *Store) replay(w http.ResponseWriter, r *http.Request, rkey string) {
	raw, err := s.rdb.Get(r.Context(), rkey).Result()
	if errors.Is(err, redis.Nil) || raw == pendingMarker {
		conflict(w)
		return
	}
	if err != nil {
		s.log.Error("idempotency lookup failed", "err", err)
		http.Error(w, `{"message":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	var rec record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		s.log.Error("idempotency record corrupt", "err", err)
		http.Error(w, `{"message":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	if rec.ContentType != "" {
		w.Header().Set("Content-Type", rec.ContentType)
	}
	w.Header().Set(ReplayedHeader, "true")
	w.WriteHeader(rec.Status)
	_, _ = w.Write([]byte(rec.Body))
}

func conflict(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusConflict)
	_, _ = w.Write([]byte(`{"message":"a request with this Idempotency-Key is already in progress"}`))
}

type recorder struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
}

func (r *recorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *recorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.buf.Write(b)
	return r.ResponseWriter.Write(b)
}
