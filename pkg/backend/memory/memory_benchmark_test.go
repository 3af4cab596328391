package memory

import (
	"math/big"
	"testing"

	"github.com/z80dev/puente/pkg/core"
)

func benchOrder(b *testing.B, nonce uint64) *core.Order {
	b.Helper()

	order, err := core.NewOrder(
		core.MustRandomAddress(), core.MustRandomAddress(), big.NewInt(100),
		core.MustRandomAddress(), big.NewInt(50), nonce)
	if err != nil {
		b.Fatalf("NewOrder() error = %v", err)
	}
	return order
}

func BenchmarkMemoryBackend_StoreOrder(b *testing.B) {
	backend := NewMemoryBackend()

	orders := make([]*core.Order, b.N)
	for i := range orders {
		orders[i] = benchOrder(b, uint64(i))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = backend.StoreOrder(orders[i])
	}
}

func BenchmarkMemoryBackend_GetOrder(b *testing.B) {
	backend := NewMemoryBackend()

	numOrders := 1000
	for i := 0; i < numOrders; i++ {
		_ = backend.StoreOrder(benchOrder(b, uint64(i)))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = backend.GetOrder(uint64(i % numOrders))
	}
}

func BenchmarkMemoryBackend_FillState(b *testing.B) {
	backend := NewMemoryBackend()
	remote := core.MustRandomAddress()

	st := &core.FillState{
		Status: core.FillEscrowed,
		Taker:  core.MustRandomAddress(),
		Asset:  core.MustRandomAddress(),
		Amount: big.NewInt(50),
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = backend.SetFillState(remote, uint64(i), st)
		_ = backend.GetFillState(remote, uint64(i))
	}
}
