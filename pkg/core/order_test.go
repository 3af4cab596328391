package core

import (
	"encoding/json"
	"math/big"
	"testing"
)

func TestNewOrder(t *testing.T) {
	maker := MustRandomAddress()
	asset := MustRandomAddress()
	desired := MustRandomAddress()

	order, err := NewOrder(maker, asset, big.NewInt(100), desired, big.NewInt(50), 3)
	if err != nil {
		t.Fatalf("NewOrder() error = %v", err)
	}

	if order.Maker() != maker {
		t.Errorf("Expected maker %s, got %s", maker.Hex(), order.Maker().Hex())
	}

	if order.Asset() != asset {
		t.Errorf("Expected asset %s, got %s", asset.Hex(), order.Asset().Hex())
	}

	if order.Amount().Int64() != 100 {
		t.Errorf("Expected amount 100, got %s", order.Amount())
	}

	if order.Desired() != desired {
		t.Errorf("Expected desired %s, got %s", desired.Hex(), order.Desired().Hex())
	}

	if order.DesiredAmount().Int64() != 50 {
		t.Errorf("Expected desired amount 50, got %s", order.DesiredAmount())
	}

	if order.Nonce() != 3 {
		t.Errorf("Expected nonce 3, got %d", order.Nonce())
	}

	if !order.IsActive() {
		t.Error("Expected new order to be active")
	}
}

func TestNewOrderInvalidAmounts(t *testing.T) {
	maker := MustRandomAddress()
	asset := MustRandomAddress()
	desired := MustRandomAddress()

	tests := []struct {
		name          string
		amount        *big.Int
		desiredAmount *big.Int
	}{
		{"NilAmount", nil, big.NewInt(50)},
		{"ZeroAmount", big.NewInt(0), big.NewInt(50)},
		{"NegativeAmount", big.NewInt(-5), big.NewInt(50)},
		{"NilDesired", big.NewInt(100), nil},
		{"ZeroDesired", big.NewInt(100), big.NewInt(0)},
		{"NegativeDesired", big.NewInt(100), big.NewInt(-1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewOrder(maker, asset, tt.amount, desired, tt.desiredAmount, 0); err != ErrInvalidAmount {
				t.Errorf("Expected ErrInvalidAmount, got %v", err)
			}
		})
	}
}

func TestOrderDeactivateOneWay(t *testing.T) {
	order, _ := NewOrder(MustRandomAddress(), MustRandomAddress(), big.NewInt(1), MustRandomAddress(), big.NewInt(1), 0)

	order.Deactivate()
	if order.IsActive() {
		t.Error("Expected order to be inactive after Deactivate")
	}

	// Deactivate is idempotent
	order.Deactivate()
	if order.IsActive() {
		t.Error("Order must stay inactive")
	}
}

func TestOrderAmountsAreCopies(t *testing.T) {
	amount := big.NewInt(100)
	order, _ := NewOrder(MustRandomAddress(), MustRandomAddress(), amount, MustRandomAddress(), big.NewInt(50), 0)

	// Mutating the input after construction must not leak in
	amount.SetInt64(999)
	if order.Amount().Int64() != 100 {
		t.Errorf("Constructor must copy amounts, got %s", order.Amount())
	}

	// Mutating a getter result must not leak back
	order.Amount().SetInt64(1)
	if order.Amount().Int64() != 100 {
		t.Errorf("Getters must return copies, got %s", order.Amount())
	}
}

func TestOrderJSON(t *testing.T) {
	order, _ := NewOrder(MustRandomAddress(), MustRandomAddress(), big.NewInt(100), MustRandomAddress(), big.NewInt(50), 9)
	order.Deactivate()

	data, err := json.Marshal(order)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var decoded Order
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if decoded.Maker() != order.Maker() {
		t.Errorf("Maker mismatch after round trip")
	}
	if decoded.Amount().Cmp(order.Amount()) != 0 {
		t.Errorf("Amount mismatch after round trip")
	}
	if decoded.Nonce() != 9 {
		t.Errorf("Expected nonce 9, got %d", decoded.Nonce())
	}
	if decoded.IsActive() {
		t.Error("Active flag lost in round trip")
	}
}

func TestOrderClone(t *testing.T) {
	order, _ := NewOrder(MustRandomAddress(), MustRandomAddress(), big.NewInt(100), MustRandomAddress(), big.NewInt(50), 2)

	clone := order.Clone()
	clone.Deactivate()

	if !order.IsActive() {
		t.Error("Deactivating a clone must not affect the original")
	}

	if clone.Maker() != order.Maker() || clone.Nonce() != order.Nonce() {
		t.Error("Clone must preserve identity fields")
	}
}
