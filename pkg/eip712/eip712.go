// Package eip712 implements deterministic, domain-separated struct hashing
// and ECDSA signer recovery for off-ledger order authorization.
package eip712

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Errors
var (
	ErrMalformedSignature = errors.New("malformed signature")
)

// SignatureLength is the expected r || s || v signature size
const SignatureLength = 65

var domainTypeHash = TypeHash("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)")

// Domain binds signed structs to one application instance: a static
// name/version, a chain id, and the verifying book's own identity.
type Domain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract common.Address
}

// Separator returns the domain separator hash
func (d Domain) Separator() common.Hash {
	return crypto.Keccak256Hash(
		domainTypeHash.Bytes(),
		crypto.Keccak256([]byte(d.Name)),
		crypto.Keccak256([]byte(d.Version)),
		UintWord(d.ChainID),
		AddressWord(d.VerifyingContract),
	)
}

// TypeHash hashes a struct type signature
func TypeHash(signature string) common.Hash {
	return crypto.Keccak256Hash([]byte(signature))
}

// Digest combines the structured prefix, the domain separator and a struct
// hash into the final signable digest
func Digest(separator, structHash common.Hash) common.Hash {
	return crypto.Keccak256Hash([]byte{0x19, 0x01}, separator.Bytes(), structHash.Bytes())
}

// AddressWord left-pads an address to a 32-byte word
func AddressWord(a common.Address) []byte {
	return common.LeftPadBytes(a.Bytes(), 32)
}

// UintWord encodes an unsigned big integer as a 32-byte word
func UintWord(v *big.Int) []byte {
	if v == nil {
		v = new(big.Int)
	}
	return common.LeftPadBytes(v.Bytes(), 32)
}

// Uint64Word encodes a uint64 as a 32-byte word
func Uint64Word(v uint64) []byte {
	return UintWord(new(big.Int).SetUint64(v))
}

// BoolWord encodes a bool as a 0/1 word
func BoolWord(v bool) []byte {
	w := make([]byte, 32)
	if v {
		w[31] = 1
	}
	return w
}

// RecoverSigner recovers the address that produced signature over digest.
// Signatures must be 65 bytes, v in {0,1,27,28}, s in the lower half-order.
// Anything malformed is rejected deterministically.
func RecoverSigner(digest common.Hash, signature []byte) (common.Address, error) {
	if len(signature) != SignatureLength {
		return common.Address{}, ErrMalformedSignature
	}

	sig := make([]byte, SignatureLength)
	copy(sig, signature)

	if sig[64] >= 27 {
		sig[64] -= 27
	}
	if sig[64] > 1 {
		return common.Address{}, ErrMalformedSignature
	}

	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:64])
	if !crypto.ValidateSignatureValues(sig[64], r, s, true) {
		return common.Address{}, ErrMalformedSignature
	}

	pub, err := crypto.SigToPub(digest.Bytes(), sig)
	if err != nil {
		return common.Address{}, ErrMalformedSignature
	}

	return crypto.PubkeyToAddress(*pub), nil
}
