package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/z80dev/puente/pkg/messaging"
)

// KafkaEventSender implements EventSender using Kafka
type KafkaEventSender struct {
	writer *kafka.Writer
	topic  string
}

// NewKafkaEventSender creates a new Kafka event sender
func NewKafkaEventSender(brokerAddr, topic string) (*KafkaEventSender, error) {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokerAddr),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
	}

	return &KafkaEventSender{
		writer: writer,
		topic:  topic,
	}, nil
}

// SendBookEvent sends a book event to Kafka
func (k *KafkaEventSender) SendBookEvent(ctx context.Context, event *messaging.BookEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal book event: %w", err)
	}

	// Key by nonce so all events for one order land on one partition
	msg := kafka.Message{
		Key:   []byte(strconv.FormatUint(event.Nonce, 10)),
		Value: data,
		Time:  time.Now(),
	}

	sendCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := k.writer.WriteMessages(sendCtx, msg); err != nil {
		return fmt.Errorf("failed to send event to Kafka: %w", err)
	}

	return nil
}

// Close closes the Kafka writer
func (k *KafkaEventSender) Close() error {
	return k.writer.Close()
}

// Ensure KafkaEventSender implements EventSender
var _ messaging.EventSender = (*KafkaEventSender)(nil)
