package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"

	"github.com/z80dev/puente/pkg/messaging"
)

var (
	brokerList = []string{"localhost:9092"}
	topic      = "puente-book-events"
)

const maxRetry = 5

// SetBrokerConfig overrides the Kafka brokers and topic used by new senders
func SetBrokerConfig(brokers []string, t string) {
	if len(brokers) > 0 {
		brokerList = brokers
	}
	if t != "" {
		topic = t
	}
}

// syncProducer is the slice of sarama.SyncProducer the sender needs
type syncProducer interface {
	SendMessage(msg *sarama.ProducerMessage) (partition int32, offset int64, err error)
	Close() error
}

// QueueEventSender publishes book events to Kafka. It holds one persistent
// sync producer; use the pool in sender_pool.go for concurrent emitters.
type QueueEventSender struct {
	producer syncProducer
}

// NewQueueEventSender creates a sender with its own producer connection
func NewQueueEventSender() (*QueueEventSender, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.Retry.Max = maxRetry
	cfg.Producer.RequiredAcks = sarama.WaitForLocal

	producer, err := sarama.NewSyncProducer(brokerList, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %v", err)
	}

	return &QueueEventSender{producer: producer}, nil
}

// newQueueEventSenderWithProducer wires an existing producer, used in tests
func newQueueEventSenderWithProducer(producer syncProducer) *QueueEventSender {
	return &QueueEventSender{producer: producer}
}

// SendBookEvent publishes one event to the Kafka queue
func (q *QueueEventSender) SendBookEvent(ctx context.Context, event *messaging.BookEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	messageBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal book event: %v", err)
	}

	// Keyed by book so a consumer sees one book's events in order
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(event.Book),
		Value: sarama.ByteEncoder(messageBytes),
	}

	if _, _, err := q.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("failed to send event to Kafka: %v", err)
	}

	return nil
}

// Close shuts down the underlying producer
func (q *QueueEventSender) Close() error {
	return q.producer.Close()
}

var _ messaging.EventSender = (*QueueEventSender)(nil)
