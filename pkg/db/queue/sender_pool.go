package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/z80dev/puente/pkg/messaging"
)

var (
	senderPool   chan *QueueEventSender
	poolInitOnce sync.Once
	maxPoolSize  = 32
)

// initSenderPool initializes the sender pool
func initSenderPool() {
	poolInitOnce.Do(func() {
		senderPool = make(chan *QueueEventSender, maxPoolSize)
		// Pre-populate the entire pool
		for i := 0; i < maxPoolSize; i++ {
			sender, err := NewQueueEventSender()
			if err != nil {
				fmt.Printf("Error creating sender: %v\n", err)
				continue
			}
			if sender != nil {
				senderPool <- sender
			}
		}
	})
}

// GetSender gets a sender from the pool
func GetSender() *QueueEventSender {
	initSenderPool()

	select {
	case sender := <-senderPool:
		return sender
	default:
		fmt.Printf("Warning: sender pool is empty\n")
		return nil
	}
}

// ReturnSender returns a sender to the pool
func ReturnSender(sender *QueueEventSender) {
	if sender == nil {
		return
	}

	select {
	case senderPool <- sender:
		// Successfully returned to pool
	default:
		fmt.Printf("Warning: sender pool is full\n")
		_ = sender.Close()
	}
}

// SendEvent sends a book event using a pooled sender
func SendEvent(ctx context.Context, event *messaging.BookEvent) error {
	sender := GetSender()
	if sender == nil {
		return fmt.Errorf("failed to get event sender from pool")
	}
	defer ReturnSender(sender)

	err := sender.SendBookEvent(ctx, event)
	if err != nil {
		fmt.Printf("Error sending event: %v\n", err)
		// Connection may be bad; don't reuse this sender
		_ = sender.Close()
		return err
	}

	return nil
}
