package memory

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/z80dev/puente/pkg/core"
)

func newOrder(t *testing.T, nonce uint64) *core.Order {
	t.Helper()

	order, err := core.NewOrder(
		core.MustRandomAddress(), core.MustRandomAddress(), big.NewInt(100),
		core.MustRandomAddress(), big.NewInt(50), nonce)
	if err != nil {
		t.Fatalf("NewOrder() error = %v", err)
	}
	return order
}

func TestReserveNonce(t *testing.T) {
	b := NewMemoryBackend()

	for want := uint64(0); want < 3; want++ {
		if b.CurrentNonce() != want {
			t.Errorf("CurrentNonce() = %d, want %d", b.CurrentNonce(), want)
		}
		if got := b.ReserveNonce(); got != want {
			t.Errorf("ReserveNonce() = %d, want %d", got, want)
		}
	}
}

func TestStoreAndGetOrder(t *testing.T) {
	b := NewMemoryBackend()

	if b.GetOrder(0) != nil {
		t.Error("Expected nil for missing order")
	}

	order := newOrder(t, 0)
	if err := b.StoreOrder(order); err != nil {
		t.Fatalf("StoreOrder() error = %v", err)
	}

	stored := b.GetOrder(0)
	if stored == nil {
		t.Fatal("Expected stored order")
	}
	if stored.Maker() != order.Maker() {
		t.Error("Maker not preserved")
	}

	// Duplicate nonce is refused
	if err := b.StoreOrder(newOrder(t, 0)); err == nil {
		t.Error("Expected error storing duplicate nonce")
	}
}

func TestGetOrderReturnsClone(t *testing.T) {
	b := NewMemoryBackend()

	if err := b.StoreOrder(newOrder(t, 0)); err != nil {
		t.Fatalf("StoreOrder() error = %v", err)
	}

	// Mutating the returned order must not touch stored state
	b.GetOrder(0).Deactivate()

	if !b.GetOrder(0).IsActive() {
		t.Error("Stored order mutated through a returned copy")
	}
}

func TestUpdateOrder(t *testing.T) {
	b := NewMemoryBackend()

	order := newOrder(t, 0)
	if err := b.StoreOrder(order); err != nil {
		t.Fatalf("StoreOrder() error = %v", err)
	}

	order.Deactivate()
	if err := b.UpdateOrder(order); err != nil {
		t.Fatalf("UpdateOrder() error = %v", err)
	}

	if b.GetOrder(0).IsActive() {
		t.Error("Expected order to be inactive after update")
	}
}

func TestUpdateOrderMissing(t *testing.T) {
	b := NewMemoryBackend()

	if err := b.UpdateOrder(newOrder(t, 5)); err == nil {
		t.Error("Expected error updating missing order")
	}
}

func TestUpdateOrderRefusesReactivation(t *testing.T) {
	b := NewMemoryBackend()

	order := newOrder(t, 0)
	if err := b.StoreOrder(order); err != nil {
		t.Fatalf("StoreOrder() error = %v", err)
	}

	order.Deactivate()
	if err := b.UpdateOrder(order); err != nil {
		t.Fatalf("UpdateOrder() error = %v", err)
	}

	// An active copy of the same nonce must not overwrite the dead one
	if err := b.UpdateOrder(newOrder(t, 0)); err == nil {
		t.Error("Expected reactivation to be refused")
	}

	if b.GetOrder(0).IsActive() {
		t.Error("Order must stay inactive")
	}
}

func TestTrustedBooks(t *testing.T) {
	b := NewMemoryBackend()
	book := core.MustRandomAddress()

	if b.IsTrustedBook(book) {
		t.Error("Expected untrusted by default")
	}

	b.SetTrustedBook(book, true)
	if !b.IsTrustedBook(book) {
		t.Error("Expected trusted after set")
	}

	b.SetTrustedBook(book, false)
	if b.IsTrustedBook(book) {
		t.Error("Expected untrusted after unset")
	}
}

func TestFillState(t *testing.T) {
	b := NewMemoryBackend()
	remote := core.MustRandomAddress()

	if b.GetFillState(remote, 1) != nil {
		t.Error("Expected nil fill state initially")
	}

	st := &core.FillState{
		Status: core.FillEscrowed,
		Taker:  core.MustRandomAddress(),
		Asset:  core.MustRandomAddress(),
		Amount: big.NewInt(50),
	}
	if err := b.SetFillState(remote, 1, st); err != nil {
		t.Fatalf("SetFillState() error = %v", err)
	}

	got := b.GetFillState(remote, 1)
	if got == nil || got.Status != core.FillEscrowed {
		t.Fatalf("GetFillState() = %v, want ESCROWED", got)
	}
	if got.Amount.Int64() != 50 {
		t.Errorf("Amount = %s, want 50", got.Amount)
	}

	// Sessions are keyed by (remote, nonce)
	if b.GetFillState(remote, 2) != nil {
		t.Error("Different nonce must be a separate session")
	}
	if b.GetFillState(core.MustRandomAddress(), 1) != nil {
		t.Error("Different remote must be a separate session")
	}

	// Mutating the returned state must not touch the stored record
	got.Status = core.FillConfirmed
	got.Amount.SetInt64(999)
	again := b.GetFillState(remote, 1)
	if again.Status != core.FillEscrowed || again.Amount.Int64() != 50 {
		t.Error("Stored fill state mutated through a returned copy")
	}
}

func TestSignedNonces(t *testing.T) {
	b := NewMemoryBackend()
	maker := core.MustRandomAddress()

	if b.IsSignedNonceUsed(maker, 7) {
		t.Error("Expected nonce unused initially")
	}

	if err := b.MarkSignedNonce(maker, 7); err != nil {
		t.Fatalf("MarkSignedNonce() error = %v", err)
	}

	if !b.IsSignedNonceUsed(maker, 7) {
		t.Error("Expected nonce used after mark")
	}

	if err := b.MarkSignedNonce(maker, 7); err != core.ErrNonceUsed {
		t.Errorf("Expected ErrNonceUsed, got %v", err)
	}

	// Scoped per maker
	if b.IsSignedNonceUsed(core.MustRandomAddress(), 7) {
		t.Error("Nonce usage must be scoped to the maker")
	}
}

func TestTrustedPaths(t *testing.T) {
	b := NewMemoryBackend()

	if b.GetTrustedPath(2) != nil {
		t.Error("Expected no path initially")
	}

	path := []byte{1, 2, 3, 4}
	b.SetTrustedPath(2, path)

	// Stored as a copy
	path[0] = 9
	got := b.GetTrustedPath(2)
	if len(got) != 4 || got[0] != 1 {
		t.Errorf("GetTrustedPath() = %v, want stored copy [1 2 3 4]", got)
	}
}

func TestFailedMessages(t *testing.T) {
	b := NewMemoryBackend()
	src := core.MustRandomAddress()

	if b.GetFailedMessage(2, src, 1) != nil {
		t.Error("Expected no failed message initially")
	}

	failed := &core.FailedMessage{
		SrcDomain:   2,
		SrcAddress:  src,
		Sequence:    1,
		PayloadHash: common.BytesToHash([]byte{0xde, 0xad}),
	}
	if err := b.StoreFailedMessage(failed); err != nil {
		t.Fatalf("StoreFailedMessage() error = %v", err)
	}

	got := b.GetFailedMessage(2, src, 1)
	if got == nil {
		t.Fatal("Expected stored failed message")
	}
	if got.PayloadHash != failed.PayloadHash {
		t.Error("Payload hash not preserved")
	}

	// Keyed on the full (domain, address, sequence) triple
	if b.GetFailedMessage(3, src, 1) != nil || b.GetFailedMessage(2, src, 2) != nil {
		t.Error("Failed messages must be keyed on the full triple")
	}

	b.DeleteFailedMessage(2, src, 1)
	if b.GetFailedMessage(2, src, 1) != nil {
		t.Error("Expected record gone after delete")
	}
}
