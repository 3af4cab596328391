// Package token provides the asset-transfer primitive the book settles
// against. A Ledger moves value between identities and never partially
// applies a transfer.
package token

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Errors
var (
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrInvalidAmount         = errors.New("invalid amount")
)

// Transfer is one leg of an asset movement
type Transfer struct {
	Asset  common.Address
	From   common.Address
	To     common.Address
	Amount *big.Int
}

// Ledger is the boundary to the underlying asset ledger. TransferFrom is the
// reverting variant; TryTransferFrom never fails the caller. Swap applies
// all legs or none of them.
type Ledger interface {
	BalanceOf(asset, owner common.Address) *big.Int
	Allowance(asset, owner, spender common.Address) *big.Int
	Approve(asset, owner, spender common.Address, amount *big.Int)
	TransferFrom(ctx context.Context, spender common.Address, t Transfer) error
	TryTransferFrom(ctx context.Context, spender common.Address, t Transfer) bool
	Swap(ctx context.Context, spender common.Address, legs ...Transfer) error
}

// MemoryLedger implements Ledger with in-memory balances and allowances
type MemoryLedger struct {
	sync.RWMutex
	balances   map[common.Address]map[common.Address]*big.Int
	allowances map[common.Address]map[common.Address]map[common.Address]*big.Int
}

// NewMemoryLedger creates an empty in-memory ledger
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		balances:   make(map[common.Address]map[common.Address]*big.Int),
		allowances: make(map[common.Address]map[common.Address]map[common.Address]*big.Int),
	}
}

// Mint credits amount of asset to the owner
func (l *MemoryLedger) Mint(asset, owner common.Address, amount *big.Int) {
	l.Lock()
	defer l.Unlock()

	l.credit(asset, owner, amount)
}

// BalanceOf returns a copy of the owner's balance of asset
func (l *MemoryLedger) BalanceOf(asset, owner common.Address) *big.Int {
	l.RLock()
	defer l.RUnlock()

	if bals, ok := l.balances[asset]; ok {
		if b, ok := bals[owner]; ok {
			return new(big.Int).Set(b)
		}
	}

	return new(big.Int)
}

// Allowance returns a copy of what spender may move on the owner's behalf
func (l *MemoryLedger) Allowance(asset, owner, spender common.Address) *big.Int {
	l.RLock()
	defer l.RUnlock()

	return new(big.Int).Set(l.allowance(asset, owner, spender))
}

// Approve sets the spender's allowance over the owner's asset balance
func (l *MemoryLedger) Approve(asset, owner, spender common.Address, amount *big.Int) {
	l.Lock()
	defer l.Unlock()

	byOwner, ok := l.allowances[asset]
	if !ok {
		byOwner = make(map[common.Address]map[common.Address]*big.Int)
		l.allowances[asset] = byOwner
	}

	bySpender, ok := byOwner[owner]
	if !ok {
		bySpender = make(map[common.Address]*big.Int)
		byOwner[owner] = bySpender
	}

	bySpender[spender] = new(big.Int).Set(amount)
}

// TransferFrom moves one leg on behalf of spender. Moving funds out of the
// spender's own account needs no allowance; custody held by a book moves
// freely.
func (l *MemoryLedger) TransferFrom(ctx context.Context, spender common.Address, t Transfer) error {
	l.Lock()
	defer l.Unlock()

	if err := l.check(spender, t); err != nil {
		return err
	}

	l.apply(spender, t)
	return nil
}

// TryTransferFrom is the non-reverting variant of TransferFrom
func (l *MemoryLedger) TryTransferFrom(ctx context.Context, spender common.Address, t Transfer) bool {
	return l.TransferFrom(ctx, spender, t) == nil
}

// Swap applies all legs or none. Legs settle sequentially, so a later leg
// may spend funds received in an earlier one.
func (l *MemoryLedger) Swap(ctx context.Context, spender common.Address, legs ...Transfer) error {
	l.Lock()
	defer l.Unlock()

	applied := make([]Transfer, 0, len(legs))
	for _, leg := range legs {
		if err := l.check(spender, leg); err != nil {
			// Unwind the legs already applied
			for i := len(applied) - 1; i >= 0; i-- {
				l.unapply(spender, applied[i])
			}
			return err
		}
		l.apply(spender, leg)
		applied = append(applied, leg)
	}

	return nil
}

// callers must hold the lock

func (l *MemoryLedger) check(spender common.Address, t Transfer) error {
	if t.Amount == nil || t.Amount.Sign() < 0 {
		return ErrInvalidAmount
	}

	if l.balance(t.Asset, t.From).Cmp(t.Amount) < 0 {
		return ErrInsufficientBalance
	}

	if t.From != spender && l.allowance(t.Asset, t.From, spender).Cmp(t.Amount) < 0 {
		return ErrInsufficientAllowance
	}

	return nil
}

func (l *MemoryLedger) apply(spender common.Address, t Transfer) {
	if t.Amount.Sign() == 0 {
		return
	}

	l.debit(t.Asset, t.From, t.Amount)
	l.credit(t.Asset, t.To, t.Amount)

	if t.From != spender {
		l.allowance(t.Asset, t.From, spender).Sub(l.allowance(t.Asset, t.From, spender), t.Amount)
	}
}

func (l *MemoryLedger) unapply(spender common.Address, t Transfer) {
	if t.Amount.Sign() == 0 {
		return
	}

	l.debit(t.Asset, t.To, t.Amount)
	l.credit(t.Asset, t.From, t.Amount)

	if t.From != spender {
		l.allowance(t.Asset, t.From, spender).Add(l.allowance(t.Asset, t.From, spender), t.Amount)
	}
}

func (l *MemoryLedger) balance(asset, owner common.Address) *big.Int {
	if bals, ok := l.balances[asset]; ok {
		if b, ok := bals[owner]; ok {
			return b
		}
	}
	return new(big.Int)
}

func (l *MemoryLedger) allowance(asset, owner, spender common.Address) *big.Int {
	if byOwner, ok := l.allowances[asset]; ok {
		if bySpender, ok := byOwner[owner]; ok {
			if a, ok := bySpender[spender]; ok {
				return a
			}
		}
	}
	return new(big.Int)
}

func (l *MemoryLedger) credit(asset, owner common.Address, amount *big.Int) {
	bals, ok := l.balances[asset]
	if !ok {
		bals = make(map[common.Address]*big.Int)
		l.balances[asset] = bals
	}

	b, ok := bals[owner]
	if !ok {
		b = new(big.Int)
		bals[owner] = b
	}

	b.Add(b, amount)
}

func (l *MemoryLedger) debit(asset, owner common.Address, amount *big.Int) {
	l.balances[asset][owner].Sub(l.balances[asset][owner], amount)
}

// Ensure MemoryLedger implements Ledger
var _ Ledger = (*MemoryLedger)(nil)
