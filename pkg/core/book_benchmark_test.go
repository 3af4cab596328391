package core

import (
	"context"
	"math/big"
	"testing"

	"github.com/z80dev/puente/pkg/token"
)

// BenchmarkAddOrder measures order placement throughput on the in-package
// memory backend
func BenchmarkAddOrder(b *testing.B) {
	backend := newMemBackend()
	ledger := token.NewMemoryLedger()

	book, err := NewBook(Config{Domain: 1, Address: MustRandomAddress(), Backend: backend, Tokens: ledger})
	if err != nil {
		b.Fatalf("NewBook() error = %v", err)
	}

	ctx := context.Background()
	maker := MustRandomAddress()
	asset := MustRandomAddress()
	desired := MustRandomAddress()
	amount := big.NewInt(100)
	desiredAmount := big.NewInt(50)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := book.AddOrder(ctx, maker, asset, amount, desired, desiredAmount); err != nil {
			b.Fatalf("AddOrder() error = %v", err)
		}
	}
}

// BenchmarkFillOrder measures the full place-and-settle cycle including both
// transfer legs
func BenchmarkFillOrder(b *testing.B) {
	backend := newMemBackend()
	ledger := token.NewMemoryLedger()

	book, err := NewBook(Config{Domain: 1, Address: MustRandomAddress(), Backend: backend, Tokens: ledger})
	if err != nil {
		b.Fatalf("NewBook() error = %v", err)
	}

	ctx := context.Background()
	maker := MustRandomAddress()
	taker := MustRandomAddress()
	asset := MustRandomAddress()
	desired := MustRandomAddress()

	// Fund both sides for every iteration up front
	total := big.NewInt(int64(b.N) * 100)
	ledger.Mint(asset, maker, total)
	ledger.Approve(asset, maker, book.Address(), total)
	ledger.Mint(desired, taker, total)
	ledger.Approve(desired, taker, book.Address(), total)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		nonce, err := book.AddOrder(ctx, maker, asset, big.NewInt(100), desired, big.NewInt(50))
		if err != nil {
			b.Fatalf("AddOrder() error = %v", err)
		}
		if err := book.FillOrder(ctx, taker, nonce); err != nil {
			b.Fatalf("FillOrder() error = %v", err)
		}
	}
}

// BenchmarkOrderDigest measures EIP-712 struct hashing
func BenchmarkOrderDigest(b *testing.B) {
	backend := newMemBackend()
	book, err := NewBook(Config{Domain: 1, Address: MustRandomAddress(), Backend: backend, Tokens: token.NewMemoryLedger()})
	if err != nil {
		b.Fatalf("NewBook() error = %v", err)
	}

	order, err := NewOrder(MustRandomAddress(), MustRandomAddress(), big.NewInt(100), MustRandomAddress(), big.NewInt(50), 0)
	if err != nil {
		b.Fatalf("NewOrder() error = %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = book.OrderDigest(order)
	}
}
