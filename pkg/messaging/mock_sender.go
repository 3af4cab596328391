package messaging

import (
	"context"
	"sync"
)

// MockEventSender records events in memory for tests.
type MockEventSender struct {
	mu     sync.Mutex
	events []*BookEvent
}

// NewMockEventSender creates a new MockEventSender.
func NewMockEventSender() *MockEventSender {
	return &MockEventSender{}
}

// SendBookEvent records the event.
func (m *MockEventSender) SendBookEvent(ctx context.Context, event *BookEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

// Events returns a snapshot of everything recorded so far.
func (m *MockEventSender) Events() []*BookEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*BookEvent, len(m.events))
	copy(out, m.events)
	return out
}

// ByType returns recorded events of one type.
func (m *MockEventSender) ByType(eventType string) []*BookEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*BookEvent
	for _, e := range m.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// Close does nothing.
func (m *MockEventSender) Close() error {
	return nil
}

// Ensure MockEventSender implements EventSender
var _ EventSender = (*MockEventSender)(nil)
