package messaging

import "context"

// EventSender defines an interface for publishing book notifications
// This helps decouple the core package from specific implementations
// like Kafka in the queue package
type EventSender interface {
	SendBookEvent(ctx context.Context, event *BookEvent) error
}

// Event types, mirroring the book's on-ledger notifications
const (
	EventOrderAdded               = "order_added"
	EventOrderCanceled            = "order_canceled"
	EventOrderFilled              = "order_filled"
	EventRemoteOrderFillCandidate = "remote_order_fill_candidate"
	EventRemoteOrderFillConfirmed = "remote_order_fill_confirmed"
	EventRemoteOrderFillCanceled  = "remote_order_fill_canceled"
	EventMessageFailed            = "message_failed"
	EventRetrySucceeded           = "retry_succeeded"
)

// BookEvent represents one notification emitted by a book. Addresses and
// amounts travel as strings so the envelope stays transport-friendly.
type BookEvent struct {
	Type          string `json:"type"`
	Book          string `json:"book"`
	Domain        uint32 `json:"domain"`
	Nonce         uint64 `json:"nonce"`
	Maker         string `json:"maker,omitempty"`
	Taker         string `json:"taker,omitempty"`
	Asset         string `json:"asset,omitempty"`
	Amount        string `json:"amount,omitempty"`
	Desired       string `json:"desired,omitempty"`
	DesiredAmount string `json:"desiredAmount,omitempty"`
	RemoteBook    string `json:"remoteBook,omitempty"`
	SrcDomain     uint32 `json:"srcDomain,omitempty"`
	Sequence      uint64 `json:"sequence,omitempty"`
	PayloadHash   string `json:"payloadHash,omitempty"`
}
