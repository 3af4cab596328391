package kafka

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/z80dev/puente/pkg/db/queue"
	"github.com/z80dev/puente/pkg/messaging"
)

// SetupConsumer initializes and starts the Kafka consumer for book events.
// This is a developer aid: it pretty-prints what lands on the queue.
func SetupConsumer(ctx context.Context, logger zerolog.Logger) (*queue.QueueEventConsumer, error) {
	kafkaConsumer, err := queue.NewQueueEventConsumer()
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to create Kafka consumer - continuing without Kafka support")
		return nil, err
	}

	go func() {
		logger.Info().Msg("Starting Kafka consumer")
		err := kafkaConsumer.ConsumeBookEvents(func(event *messaging.BookEvent) error {
			logger.Info().
				Str("type", event.Type).
				Str("book", event.Book).
				Uint32("domain", event.Domain).
				Uint64("nonce", event.Nonce).
				Str("maker", event.Maker).
				Str("taker", event.Taker).
				Str("amount", event.Amount).
				Msg("Received book event")
			return nil
		})
		if err != nil {
			logger.Error().Err(err).Msg("Kafka consumer error")
		}
	}()

	return kafkaConsumer, nil
}
