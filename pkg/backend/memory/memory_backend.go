package memory

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/z80dev/puente/pkg/core"
)

type fillKey struct {
	remote common.Address
	nonce  uint64
}

type signedKey struct {
	maker common.Address
	nonce uint64
}

type failedKey struct {
	srcDomain uint32
	src       common.Address
	sequence  uint64
}

// MemoryBackend keeps all book state in process memory. Reads hand out
// copies; mutations must come back through StoreOrder/UpdateOrder so the
// backend stays the single owner of stored state.
type MemoryBackend struct {
	sync.RWMutex
	orders       map[uint64]*core.Order
	nextNonce    uint64
	trusted      map[common.Address]bool
	fills        map[fillKey]*core.FillState
	signedNonces map[signedKey]bool
	paths        map[uint32][]byte
	failed       map[failedKey]*core.FailedMessage
}

// NewMemoryBackend creates a new instance of MemoryBackend
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		orders:       make(map[uint64]*core.Order),
		trusted:      make(map[common.Address]bool),
		fills:        make(map[fillKey]*core.FillState),
		signedNonces: make(map[signedKey]bool),
		paths:        make(map[uint32][]byte),
		failed:       make(map[failedKey]*core.FailedMessage),
	}
}

// GetOrder returns a copy of the order at nonce, or nil
func (b *MemoryBackend) GetOrder(nonce uint64) *core.Order {
	b.RLock()
	defer b.RUnlock()

	order, ok := b.orders[nonce]
	if !ok {
		return nil
	}
	return order.Clone()
}

// StoreOrder stores a new order under its nonce
func (b *MemoryBackend) StoreOrder(order *core.Order) error {
	b.Lock()
	defer b.Unlock()

	if _, exists := b.orders[order.Nonce()]; exists {
		return fmt.Errorf("order with nonce %d already exists", order.Nonce())
	}

	b.orders[order.Nonce()] = order.Clone()
	return nil
}

// UpdateOrder replaces a stored order. A deactivated order can never be
// flipped back to active.
func (b *MemoryBackend) UpdateOrder(order *core.Order) error {
	b.Lock()
	defer b.Unlock()

	stored, ok := b.orders[order.Nonce()]
	if !ok {
		return core.ErrNonexistentOrder
	}

	if !stored.IsActive() && order.IsActive() {
		return fmt.Errorf("%w: cannot reactivate order %d", core.ErrInvalidState, order.Nonce())
	}

	b.orders[order.Nonce()] = order.Clone()
	return nil
}

// ReserveNonce returns the next sequential nonce and advances the counter
func (b *MemoryBackend) ReserveNonce() uint64 {
	b.Lock()
	defer b.Unlock()

	nonce := b.nextNonce
	b.nextNonce++
	return nonce
}

// CurrentNonce returns the nonce the next order will receive
func (b *MemoryBackend) CurrentNonce() uint64 {
	b.RLock()
	defer b.RUnlock()
	return b.nextNonce
}

// SetTrustedBook records the trust flag for a remote book identity
func (b *MemoryBackend) SetTrustedBook(book common.Address, trusted bool) {
	b.Lock()
	defer b.Unlock()
	b.trusted[book] = trusted
}

// IsTrustedBook reports whether a remote book is trusted
func (b *MemoryBackend) IsTrustedBook(book common.Address) bool {
	b.RLock()
	defer b.RUnlock()
	return b.trusted[book]
}

// GetFillState returns a copy of the remote fill session state, or nil
func (b *MemoryBackend) GetFillState(remote common.Address, nonce uint64) *core.FillState {
	b.RLock()
	defer b.RUnlock()

	state, ok := b.fills[fillKey{remote, nonce}]
	if !ok {
		return nil
	}

	copied := *state
	return &copied
}

// SetFillState stores the remote fill session state
func (b *MemoryBackend) SetFillState(remote common.Address, nonce uint64, state *core.FillState) error {
	b.Lock()
	defer b.Unlock()

	copied := *state
	b.fills[fillKey{remote, nonce}] = &copied
	return nil
}

// MarkSignedNonce consumes a (maker, nonce) pair for signed-order fills
func (b *MemoryBackend) MarkSignedNonce(maker common.Address, nonce uint64) error {
	b.Lock()
	defer b.Unlock()

	key := signedKey{maker, nonce}
	if b.signedNonces[key] {
		return core.ErrNonceUsed
	}

	b.signedNonces[key] = true
	return nil
}

// IsSignedNonceUsed reports whether a (maker, nonce) pair was consumed
func (b *MemoryBackend) IsSignedNonceUsed(maker common.Address, nonce uint64) bool {
	b.RLock()
	defer b.RUnlock()
	return b.signedNonces[signedKey{maker, nonce}]
}

// SetTrustedPath stores the accepted relay path for a source domain
func (b *MemoryBackend) SetTrustedPath(domain uint32, path []byte) {
	b.Lock()
	defer b.Unlock()

	copied := make([]byte, len(path))
	copy(copied, path)
	b.paths[domain] = copied
}

// GetTrustedPath returns the stored path for a source domain, or nil
func (b *MemoryBackend) GetTrustedPath(domain uint32) []byte {
	b.RLock()
	defer b.RUnlock()

	path, ok := b.paths[domain]
	if !ok {
		return nil
	}

	copied := make([]byte, len(path))
	copy(copied, path)
	return copied
}

// StoreFailedMessage records a failed inbound message for later retry
func (b *MemoryBackend) StoreFailedMessage(msg *core.FailedMessage) error {
	b.Lock()
	defer b.Unlock()

	copied := *msg
	b.failed[failedKey{msg.SrcDomain, msg.SrcAddress, msg.Sequence}] = &copied
	return nil
}

// GetFailedMessage returns a copy of the stored failure record, or nil
func (b *MemoryBackend) GetFailedMessage(srcDomain uint32, src common.Address, sequence uint64) *core.FailedMessage {
	b.RLock()
	defer b.RUnlock()

	msg, ok := b.failed[failedKey{srcDomain, src, sequence}]
	if !ok {
		return nil
	}

	copied := *msg
	return &copied
}

// DeleteFailedMessage clears a failure record after a successful retry
func (b *MemoryBackend) DeleteFailedMessage(srcDomain uint32, src common.Address, sequence uint64) {
	b.Lock()
	defer b.Unlock()
	delete(b.failed, failedKey{srcDomain, src, sequence})
}

var _ core.BookBackend = (*MemoryBackend)(nil)
