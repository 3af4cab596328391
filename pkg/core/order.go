package core

import (
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Order stores a standing offer on one book: the maker offers amount of
// asset in exchange for desiredAmount of desired. Orders are never deleted;
// the active flag flips to false at most once and never back.
type Order struct {
	maker         common.Address
	asset         common.Address
	amount        *big.Int
	desired       common.Address
	desiredAmount *big.Int
	nonce         uint64
	active        bool
}

// NewOrder creates a new active Order at the given nonce
func NewOrder(maker, asset common.Address, amount *big.Int, desired common.Address, desiredAmount *big.Int, nonce uint64) (*Order, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}

	if desiredAmount == nil || desiredAmount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}

	return &Order{
		maker:         maker,
		asset:         asset,
		amount:        new(big.Int).Set(amount),
		desired:       desired,
		desiredAmount: new(big.Int).Set(desiredAmount),
		nonce:         nonce,
		active:        true,
	}, nil
}

// Maker returns the owning identity of the order
func (o *Order) Maker() common.Address {
	return o.maker
}

// Asset returns the token being offered
func (o *Order) Asset() common.Address {
	return o.asset
}

// Amount returns a copy of the offered amount
func (o *Order) Amount() *big.Int {
	return new(big.Int).Set(o.amount)
}

// Desired returns the token wanted in exchange
func (o *Order) Desired() common.Address {
	return o.desired
}

// DesiredAmount returns a copy of the wanted amount
func (o *Order) DesiredAmount() *big.Int {
	return new(big.Int).Set(o.desiredAmount)
}

// Nonce returns the order's book-local sequential id
func (o *Order) Nonce() uint64 {
	return o.nonce
}

// IsActive returns whether the order can still be filled or canceled
func (o *Order) IsActive() bool {
	return o.active
}

// Deactivate permanently retires the order. There is no way back to active.
func (o *Order) Deactivate() {
	o.active = false
}

// MarshalJSON implements custom JSON marshaling for Order
func (o *Order) MarshalJSON() ([]byte, error) {
	type OrderJSON struct {
		Maker         string `json:"maker"`
		Asset         string `json:"asset"`
		Amount        string `json:"amount"`
		Desired       string `json:"desired"`
		DesiredAmount string `json:"desiredAmount"`
		Nonce         uint64 `json:"nonce"`
		Active        bool   `json:"active"`
	}

	return json.Marshal(OrderJSON{
		Maker:         o.maker.Hex(),
		Asset:         o.asset.Hex(),
		Amount:        o.amount.String(),
		Desired:       o.desired.Hex(),
		DesiredAmount: o.desiredAmount.String(),
		Nonce:         o.nonce,
		Active:        o.active,
	})
}

// UnmarshalJSON implements custom JSON unmarshaling for Order
func (o *Order) UnmarshalJSON(data []byte) error {
	type OrderJSON struct {
		Maker         string `json:"maker"`
		Asset         string `json:"asset"`
		Amount        string `json:"amount"`
		Desired       string `json:"desired"`
		DesiredAmount string `json:"desiredAmount"`
		Nonce         uint64 `json:"nonce"`
		Active        bool   `json:"active"`
	}

	var orderJSON OrderJSON
	if err := json.Unmarshal(data, &orderJSON); err != nil {
		return err
	}

	o.maker = common.HexToAddress(orderJSON.Maker)
	o.asset = common.HexToAddress(orderJSON.Asset)
	o.desired = common.HexToAddress(orderJSON.Desired)
	o.nonce = orderJSON.Nonce
	o.active = orderJSON.Active

	var ok bool
	if o.amount, ok = new(big.Int).SetString(orderJSON.Amount, 10); !ok {
		o.amount = new(big.Int)
	}

	if o.desiredAmount, ok = new(big.Int).SetString(orderJSON.DesiredAmount, 10); !ok {
		o.desiredAmount = new(big.Int)
	}

	return nil
}

// Clone returns a deep copy of the order. Backends hand out clones so the
// ledger's stored record stays mutable only through the book itself.
func (o *Order) Clone() *Order {
	return &Order{
		maker:         o.maker,
		asset:         o.asset,
		amount:        new(big.Int).Set(o.amount),
		desired:       o.desired,
		desiredAmount: new(big.Int).Set(o.desiredAmount),
		nonce:         o.nonce,
		active:        o.active,
	}
}

// String implements Stringer interface
func (o *Order) String() string {
	j, _ := o.MarshalJSON()
	return string(j)
}

// XOrder is an order authorized off the ledger for a specific destination
// domain. It is never stored in book state; validity is a pure function of
// its signature and the evaluating book's domain matching TargetDomain.
type XOrder struct {
	Maker         common.Address `json:"maker"`
	Asset         common.Address `json:"asset"`
	Amount        *big.Int       `json:"amount"`
	Desired       common.Address `json:"desired"`
	DesiredAmount *big.Int       `json:"desiredAmount"`
	Nonce         uint64         `json:"nonce"`
	SourceDomain  uint32         `json:"sourceDomain"`
	TargetDomain  uint32         `json:"targetDomain"`
}
