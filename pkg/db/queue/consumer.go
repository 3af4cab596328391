package queue

import (
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"

	"github.com/z80dev/puente/pkg/messaging"
)

// QueueEventConsumer reads book events back off the Kafka queue
type QueueEventConsumer struct {
	consumer sarama.Consumer
	done     chan struct{}
}

// NewQueueEventConsumer creates a consumer against the configured brokers
func NewQueueEventConsumer() (*QueueEventConsumer, error) {
	consumer, err := sarama.NewConsumer(brokerList, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka consumer: %v", err)
	}

	return &QueueEventConsumer{
		consumer: consumer,
		done:     make(chan struct{}),
	}, nil
}

// ConsumeBookEvents reads events from the topic and invokes handler for each
// until Close is called. Malformed payloads are skipped.
func (c *QueueEventConsumer) ConsumeBookEvents(handler func(*messaging.BookEvent) error) error {
	partitionConsumer, err := c.consumer.ConsumePartition(topic, 0, sarama.OffsetNewest)
	if err != nil {
		return fmt.Errorf("failed to consume partition: %v", err)
	}
	defer partitionConsumer.Close()

	for {
		select {
		case msg, ok := <-partitionConsumer.Messages():
			if !ok {
				return nil
			}

			var event messaging.BookEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				continue
			}

			if err := handler(&event); err != nil {
				return err
			}
		case <-c.done:
			return nil
		}
	}
}

// Close stops consumption and releases the underlying consumer
func (c *QueueEventConsumer) Close() error {
	close(c.done)
	return c.consumer.Close()
}
