package core

import "github.com/ethereum/go-ethereum/common"

// BookBackend defines the storage interface for one book instance
type BookBackend interface {
	// Order ledger
	GetOrder(nonce uint64) *Order
	StoreOrder(order *Order) error
	UpdateOrder(order *Order) error
	ReserveNonce() uint64
	CurrentNonce() uint64

	// Trust registry
	SetTrustedBook(book common.Address, trusted bool)
	IsTrustedBook(book common.Address) bool

	// Remote fill sessions, keyed by (remote book, nonce)
	GetFillState(remote common.Address, nonce uint64) *FillState
	SetFillState(remote common.Address, nonce uint64, state *FillState) error

	// Signed-order replay protection
	MarkSignedNonce(maker common.Address, nonce uint64) error
	IsSignedNonceUsed(maker common.Address, nonce uint64) bool

	// Relay paths and failure store
	SetTrustedPath(domain uint32, path []byte)
	GetTrustedPath(domain uint32) []byte
	StoreFailedMessage(msg *FailedMessage) error
	GetFailedMessage(srcDomain uint32, src common.Address, sequence uint64) *FailedMessage
	DeleteFailedMessage(srcDomain uint32, src common.Address, sequence uint64)
}
