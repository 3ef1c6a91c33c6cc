package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"todo-sync/internal/models"
	"todo-sync/pkg/logger"
)

// Publisher sends todo change events. Publishing is best-effort for callers.
type Publisher interface {
	Publish(ctx context.Context, ev models.TodoEvent) error
	Close() error
}

// Nop drops every event. Used when Kafka is not configured.
type Nop struct{}

func (Nop) Publish(context.Context, models.TodoEvent) error { return nil }
func (Nop) Close() error                                    { return nil }

// EnsureTopic creates topic with the given partitions (idempotent).
// If it fails (e.g. no broker or topic exists), the app still runs.
func EnsureTopic(ctx context.Context, brokers []string, topic string, partitions int) {
	if len(brokers) == 0 {
		return
	}
	conn, err := kafka.DialContext(ctx, "tcp", brokers[0])
	if err != nil {
		logger.Debug(ctx, "Kafka dial for topic creation failed", "error", err)
		return
	}
	defer conn.Close()
	controller, err := conn.Controller()
	if err != nil {
		logger.Debug(ctx, "Kafka controller lookup failed", "error", err)
		return
	}
	ctrlConn, err := kafka.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", controller.Host, controller.Port))
	if err != nil {
		logger.Debug(ctx, "Kafka controller dial failed", "error", err)
		return
	}
	defer ctrlConn.Close()
	err = ctrlConn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     partitions,
		ReplicationFactor: 1,
	})
	if err != nil {
		logger.Debug(ctx, "Kafka create topic failed (topic may already exist)", "error", err)
		return
	}
	logger.Info(ctx, "Kafka topic ensured", "topic", topic, "partitions", partitions)
}

// Kafka publishes TodoEvents to one topic.
type Kafka struct {
	writer *kafka.Writer
}

// NewPublisher returns a Kafka publisher, or Nop when brokers is empty.
func NewPublisher(ctx context.Context, brokers []string, topic string) Publisher {
	if len(brokers) == 0 {
		logger.Info(ctx, "KAFKA_BROKERS not set; change feed disabled")
		return Nop{}
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 0,
		Async:        true,
		RequiredAcks: kafka.RequireOne,
	}
	logger.Info(ctx, "Kafka producer initialized", "topic", topic, "brokers", brokers)
	return &Kafka{writer: w}
}

func (k *Kafka) Publish(ctx context.Context, ev models.TodoEvent) error {
	msg, err := Message(ev)
	if err != nil {
		return err
	}
	return k.writer.WriteMessages(ctx, msg)
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}

// Message encodes ev. Record events are keyed by todo id so they stay ordered per
// partition; bulk events are keyed by action.
func Message(ev models.TodoEvent) (kafka.Message, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, err
	}
	key := ev.ID
	if key == "" {
		key = ev.Action
	}
	return kafka.Message{Key: []byte(key), Value: payload}, nil
}

// Decode parses a message value back into an event.
func Decode(value []byte) (models.TodoEvent, error) {
	var ev models.TodoEvent
	if err := json.Unmarshal(value, &ev); err != nil {
		return ev, err
	}
	if ev.Action == "" {
		return ev, fmt.Errorf("event without action")
	}
	return ev, nil
}
