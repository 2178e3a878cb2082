package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/convenience-store/internal/inventory/application"
	"github.com/dmehra2102/convenience-store/internal/inventory/domain"
	"github.com/dmehra2102/convenience-store/pkg/idempotency"
	"github.com/dmehra2102/convenience-store/pkg/outbox"
	"github.com/dmehra2102/convenience-store/pkg/tracing"
)

// Consumer reads the store event stream and opens restock alerts for
// ProductOutOfStock events. Other event types are committed and skipped.
type Consumer struct {
	log     *slog.Logger
	reader  *kafka.Reader
	svc     *application.Service
	idem    *idempotency.Store
	tracer  trace.Tracer
	backoff time.Duration // first pause before a failed record is retried
}

const maxBackoff = 10 * time.Second

func NewConsumer(log *slog.Logger, brokers []string, topic, group string, svc *application.Service, idem *idempotency.Store) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: group,
	})
	return &Consumer{
		log:     log,
		reader:  r,
		svc:     svc,
		idem:    idem,
		tracer:  otel.Tracer("inventory-consumer"),
		backoff: 500 * time.Millisecond,
	}
}

func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			return err
		}
		// a later commit would skip past a failed record, so it is
		// retried here until it goes through
		if err := c.handleUntilDone(ctx, msg); err != nil {
			return err
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			return err
		}
	}
}

// handleUntilDone retries Handle with a growing pause. It only gives up when
// ctx ends.
func (c *Consumer) handleUntilDone(ctx context.Context, msg kafka.Message) error {
	wait := c.backoff
	for {
		err := c.Handle(ctx, msg)
		if err == nil {
			return nil
		}
		c.log.Error("restock alert failed, retrying", "offset", msg.Offset, "wait", wait, "err", err)

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		wait = min(wait*2, maxBackoff)
	}
}

// Handle processes one record. A returned error means the record should be
// handled again.
func (c *Consumer) Handle(ctx context.Context, msg kafka.Message) error {
	if tracing.HeaderValue(msg.Headers, outbox.EventTypeHeader) != domain.EventProductOutOfStock {
		return nil
	}

	key := c.idem.Key(msg.Topic, msg.Partition, msg.Offset)
	seen, err := c.idem.Seen(ctx, key)
	if err != nil {
		return err
	}
	if seen {
		c.log.Info("duplicate message skipped", "key", key)
		return nil
	}

	msgCtx := tracing.ExtractKafkaHeaders(ctx, msg.Headers)
	msgCtx, span := c.tracer.Start(msgCtx, "ConsumeProductOutOfStock")
	defer span.End()

	var ev domain.ProductOutOfStock
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		c.log.Error("unmarshal failed", "key", key, "err", err)
		return nil
	}
	span.SetAttributes(attribute.String("product.id", ev.ProductID))

	if err := c.svc.OutOfStock(msgCtx, ev); err != nil {
		if ferr := c.idem.Forget(ctx, key); ferr != nil {
			c.log.Error("idempotency release failed", "key", key, "err", ferr)
		}
		return err
	}
	return nil
}
