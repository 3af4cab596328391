package core

import (
	"crypto/rand"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// RandomAddress generates a fresh random book or account identity
func RandomAddress() (common.Address, error) {
	var a common.Address
	if _, err := rand.Read(a[:]); err != nil {
		return common.Address{}, fmt.Errorf("failed to generate random address: %w", err)
	}
	return a, nil
}

// MustRandomAddress is RandomAddress for callers with no error path, such
// as test setup
func MustRandomAddress() common.Address {
	a, err := RandomAddress()
	if err != nil {
		panic(err)
	}
	return a
}
