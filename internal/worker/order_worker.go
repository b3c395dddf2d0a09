package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/flicky/marketplace-api/internal/audit"
	"github.com/flicky/marketplace-api/internal/model"
)

type EventLedger interface {
	Processed(ctx context.Context, eventID uuid.UUID) (bool, error)
	MarkProcessed(ctx context.Context, eventID uuid.UUID) error
}

type TimelineWriter interface {
	Append(ctx context.Context, record model.StatusRecord) error
}

type CacheInvalidator interface {
	Invalidate(ctx context.Context, ids ...uuid.UUID)
}

// OrderEventWorker consumes order events: it appends them to the status
// timeline and evicts cached products whose stock moved.
type OrderEventWorker struct {
	channel  *amqp.Channel
	ledger   EventLedger
	timeline TimelineWriter
	cache    CacheInvalidator
	log      *slog.Logger
	done     chan struct{}
	wg       sync.WaitGroup
}

func NewOrderEventWorker(
	ch *amqp.Channel,
	ledger EventLedger,
	timeline TimelineWriter,
	cache CacheInvalidator,
	log *slog.Logger,
) *OrderEventWorker {
	return &OrderEventWorker{
		channel:  ch,
		ledger:   ledger,
		timeline: timeline,
		cache:    cache,
		log:      log,
		done:     make(chan struct{}),
	}
}

func (w *OrderEventWorker) Start(ctx context.Context) error {
	msgs, err := w.channel.Consume(eventsQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx, msgs)
	}()

	w.log.Info("order event worker started")
	return nil
}

func (w *OrderEventWorker) run(ctx context.Context, msgs <-chan amqp.Delivery) {
	for {
		select {
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			w.processMessage(ctx, msg)
		case <-w.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop signals the consumer loop and waits for the in-flight message.
func (w *OrderEventWorker) Stop() {
	close(w.done)
	w.wg.Wait()
}

func (w *OrderEventWorker) processMessage(ctx context.Context, msg amqp.Delivery) {
	var event model.OrderEvent
	if err := json.Unmarshal(msg.Body, &event); err != nil || event.ID == uuid.Nil {
		w.log.Error("unmarshal order event", "error", err, "message_id", msg.MessageId)
		_ = msg.Nack(false, false)
		return
	}

	log := w.log.With("event_id", event.ID, "event", event.Type, "order_id", event.OrderID)

	processed, err := w.ledger.Processed(ctx, event.ID)
	if err != nil {
		log.Error("check processed event", "error", err)
		_ = msg.Nack(false, true)
		return
	}
	if processed {
		log.Info("event already processed, skipping")
		_ = msg.Ack(false)
		return
	}

	if err := w.handle(ctx, event); err != nil {
		log.Error("handle order event failed", "error", err)
		_ = msg.Nack(false, false) // dead-lettered
		return
	}

	if err := w.ledger.MarkProcessed(ctx, event.ID); err != nil {
		log.Error("mark event processed", "error", err)
	}

	_ = msg.Ack(false)
	log.Info("order event processed")
}

func (w *OrderEventWorker) handle(ctx context.Context, event model.OrderEvent) error {
	if w.timeline != nil {
		if err := w.timeline.Append(ctx, audit.RecordFromEvent(event)); err != nil {
			return err
		}
	}
	if w.cache != nil && len(event.ProductIDs) > 0 {
		w.cache.Invalidate(ctx, event.ProductIDs...)
	}
	return nil
}
