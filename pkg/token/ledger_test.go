package token

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

var (
	asset   = common.HexToAddress("0x01")
	assetB  = common.HexToAddress("0x02")
	alice   = common.HexToAddress("0xa1")
	bob     = common.HexToAddress("0xb1")
	spender = common.HexToAddress("0x5e")
)

func TestMintAndBalance(t *testing.T) {
	l := NewMemoryLedger()

	if l.BalanceOf(asset, alice).Sign() != 0 {
		t.Error("Expected zero balance before mint")
	}

	l.Mint(asset, alice, big.NewInt(100))
	l.Mint(asset, alice, big.NewInt(20))

	if got := l.BalanceOf(asset, alice).Int64(); got != 120 {
		t.Errorf("Balance = %d, want 120", got)
	}

	// Balances are per asset
	if l.BalanceOf(assetB, alice).Sign() != 0 {
		t.Error("Mint must not leak across assets")
	}
}

func TestBalanceOfReturnsCopy(t *testing.T) {
	l := NewMemoryLedger()
	l.Mint(asset, alice, big.NewInt(100))

	l.BalanceOf(asset, alice).SetInt64(0)

	if got := l.BalanceOf(asset, alice).Int64(); got != 100 {
		t.Errorf("Balance = %d, want 100 (copies only)", got)
	}
}

func TestTransferFromOwnFunds(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()

	l.Mint(asset, alice, big.NewInt(100))

	// Spending from one's own account needs no allowance
	err := l.TransferFrom(ctx, alice, Transfer{Asset: asset, From: alice, To: bob, Amount: big.NewInt(40)})
	if err != nil {
		t.Fatalf("TransferFrom() error = %v", err)
	}

	if got := l.BalanceOf(asset, alice).Int64(); got != 60 {
		t.Errorf("Alice = %d, want 60", got)
	}
	if got := l.BalanceOf(asset, bob).Int64(); got != 40 {
		t.Errorf("Bob = %d, want 40", got)
	}
}

func TestTransferFromRequiresAllowance(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()

	l.Mint(asset, alice, big.NewInt(100))

	mv := Transfer{Asset: asset, From: alice, To: bob, Amount: big.NewInt(40)}

	if err := l.TransferFrom(ctx, spender, mv); !errors.Is(err, ErrInsufficientAllowance) {
		t.Fatalf("Expected ErrInsufficientAllowance, got %v", err)
	}

	l.Approve(asset, alice, spender, big.NewInt(50))

	if err := l.TransferFrom(ctx, spender, mv); err != nil {
		t.Fatalf("TransferFrom() error = %v", err)
	}

	// Allowance is consumed
	if got := l.Allowance(asset, alice, spender).Int64(); got != 10 {
		t.Errorf("Allowance = %d, want 10", got)
	}

	if err := l.TransferFrom(ctx, spender, mv); !errors.Is(err, ErrInsufficientAllowance) {
		t.Errorf("Expected ErrInsufficientAllowance after consumption, got %v", err)
	}
}

func TestTransferFromInsufficientBalance(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()

	l.Mint(asset, alice, big.NewInt(10))

	err := l.TransferFrom(ctx, alice, Transfer{Asset: asset, From: alice, To: bob, Amount: big.NewInt(11)})
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Errorf("Expected ErrInsufficientBalance, got %v", err)
	}
}

func TestTransferFromInvalidAmount(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()

	err := l.TransferFrom(ctx, alice, Transfer{Asset: asset, From: alice, To: bob, Amount: nil})
	if !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("Expected ErrInvalidAmount for nil, got %v", err)
	}

	err = l.TransferFrom(ctx, alice, Transfer{Asset: asset, From: alice, To: bob, Amount: big.NewInt(-1)})
	if !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("Expected ErrInvalidAmount for negative, got %v", err)
	}
}

func TestTryTransferFrom(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()

	l.Mint(asset, alice, big.NewInt(10))

	if !l.TryTransferFrom(ctx, alice, Transfer{Asset: asset, From: alice, To: bob, Amount: big.NewInt(10)}) {
		t.Error("Expected funded transfer to succeed")
	}

	if l.TryTransferFrom(ctx, alice, Transfer{Asset: asset, From: alice, To: bob, Amount: big.NewInt(1)}) {
		t.Error("Expected unfunded transfer to report false")
	}
}

func TestSwapAllOrNothing(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()

	l.Mint(asset, alice, big.NewInt(100))
	l.Approve(asset, alice, spender, big.NewInt(100))

	// Second leg fails: bob has no assetB
	err := l.Swap(ctx, spender,
		Transfer{Asset: asset, From: alice, To: bob, Amount: big.NewInt(100)},
		Transfer{Asset: assetB, From: bob, To: alice, Amount: big.NewInt(50)},
	)
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("Expected ErrInsufficientBalance, got %v", err)
	}

	// First leg was unwound, including the allowance
	if got := l.BalanceOf(asset, alice).Int64(); got != 100 {
		t.Errorf("Alice = %d, want 100 (unwound)", got)
	}
	if got := l.BalanceOf(asset, bob).Int64(); got != 0 {
		t.Errorf("Bob = %d, want 0", got)
	}
	if got := l.Allowance(asset, alice, spender).Int64(); got != 100 {
		t.Errorf("Allowance = %d, want 100 (restored)", got)
	}
}

func TestSwapSettlesSequentially(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()

	l.Mint(asset, alice, big.NewInt(50))
	l.Approve(asset, alice, spender, big.NewInt(50))
	l.Approve(asset, bob, spender, big.NewInt(50))

	// Bob starts empty; the second leg spends what the first delivered
	err := l.Swap(ctx, spender,
		Transfer{Asset: asset, From: alice, To: bob, Amount: big.NewInt(50)},
		Transfer{Asset: asset, From: bob, To: alice, Amount: big.NewInt(50)},
	)
	if err != nil {
		t.Fatalf("Swap() error = %v", err)
	}

	if got := l.BalanceOf(asset, alice).Int64(); got != 50 {
		t.Errorf("Alice = %d, want 50", got)
	}
}

func TestSwapBothLegs(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()

	l.Mint(asset, alice, big.NewInt(100))
	l.Mint(assetB, bob, big.NewInt(50))
	l.Approve(asset, alice, spender, big.NewInt(100))
	l.Approve(assetB, bob, spender, big.NewInt(50))

	err := l.Swap(ctx, spender,
		Transfer{Asset: asset, From: alice, To: bob, Amount: big.NewInt(100)},
		Transfer{Asset: assetB, From: bob, To: alice, Amount: big.NewInt(50)},
	)
	if err != nil {
		t.Fatalf("Swap() error = %v", err)
	}

	if got := l.BalanceOf(asset, bob).Int64(); got != 100 {
		t.Errorf("Bob asset = %d, want 100", got)
	}
	if got := l.BalanceOf(assetB, alice).Int64(); got != 50 {
		t.Errorf("Alice assetB = %d, want 50", got)
	}
}

func TestZeroAmountTransferIsNoop(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()

	err := l.TransferFrom(ctx, alice, Transfer{Asset: asset, From: alice, To: bob, Amount: big.NewInt(0)})
	if err != nil {
		t.Fatalf("Zero-amount transfer error = %v", err)
	}

	if l.BalanceOf(asset, bob).Sign() != 0 {
		t.Error("Zero-amount transfer must move nothing")
	}
}
