package worker

import (
	"context"
	"sync/atomic"

	"github.com/segmentio/kafka-go"

	"todo-sync/internal/models"
	"todo-sync/internal/queue"
	"todo-sync/pkg/logger"
)

// GroupID is the consumer group shared by every server replica's worker.
const GroupID = "todo-cache-invalidators"

// Invalidator drops cached list responses. *cache.Cache implements it.
type Invalidator interface {
	Invalidate(ctx context.Context)
}

// Run consumes the change feed and invalidates the list cache for every event,
// so replicas that did not handle the write stop serving a stale list.
// Blocks until ctx is done. No brokers means nothing to consume.
func Run(ctx context.Context, brokers []string, topic string, inv Invalidator) {
	if len(brokers) == 0 {
		logger.Info(ctx, "Worker disabled (no Kafka brokers)")
		return
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	defer reader.Close()

	var processed int64
	logger.Info(ctx, "Kafka consumer started", "topic", topic)
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info(ctx, "Kafka consumer stopped", "processed", atomic.LoadInt64(&processed))
				return
			}
			logger.Error(ctx, "Worker fetch failed", "error", err)
			continue
		}
		if err := Handle(ctx, inv, msg.Value); err != nil {
			logger.Error(ctx, "Worker handle failed", "error", err, "payload", string(msg.Value))
			// Commit anyway to avoid poison pill blocking the partition
			_ = reader.CommitMessages(ctx, msg)
			continue
		}
		if err := reader.CommitMessages(ctx, msg); err != nil {
			logger.Error(ctx, "Worker commit failed", "error", err)
		}
		atomic.AddInt64(&processed, 1)
	}
}

// Handle applies one event payload.
func Handle(ctx context.Context, inv Invalidator, payload []byte) error {
	ev, err := queue.Decode(payload)
	if err != nil {
		return err
	}
	switch ev.Action {
	case models.EventCreated, models.EventUpdated, models.EventDeleted, models.EventCleared, models.EventToggledAll:
		inv.Invalidate(ctx)
		logger.Debug(ctx, "Cache invalidated", "action", ev.Action, "id", ev.ID)
	default:
		logger.Debug(ctx, "Ignoring unknown event", "action", ev.Action)
	}
	return nil
}
