package core

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/z80dev/puente/pkg/eip712"
	"github.com/z80dev/puente/pkg/messaging"
	"github.com/z80dev/puente/pkg/otel"
	"github.com/z80dev/puente/pkg/token"
)

// Signing domain identity. Each book derives its own separator from these
// plus its chain id and address, so a signature never transfers between books.
const (
	SigningName    = "puente"
	SigningVersion = "1"
)

var (
	orderTypeHash = eip712.TypeHash(
		"Order(address maker,address asset,uint256 amount,address desired,uint256 desiredAmount,uint256 nonce,bool active)")
	xorderTypeHash = eip712.TypeHash(
		"XOrder(address maker,address asset,uint256 amount,address desired,uint256 desiredAmount,uint256 nonce,uint256 sourceDomain,uint256 targetDomain)")
)

// SigningDomainFor returns the signing domain for a book identity. Exposed
// so off-process signers can compute digests without a Book instance.
func SigningDomainFor(chainID *big.Int, book common.Address) eip712.Domain {
	return eip712.Domain{
		Name:              SigningName,
		Version:           SigningVersion,
		ChainID:           chainID,
		VerifyingContract: book,
	}
}

// OrderDigestFor computes the digest a maker signs for an order on the given
// book identity
func OrderDigestFor(chainID *big.Int, book common.Address, o *Order) common.Hash {
	return eip712.Digest(SigningDomainFor(chainID, book).Separator(), hashOrder(o))
}

// XOrderDigestFor computes the digest a maker signs for a cross-domain order
// on the given book identity
func XOrderDigestFor(chainID *big.Int, book common.Address, x *XOrder) common.Hash {
	return eip712.Digest(SigningDomainFor(chainID, book).Separator(), hashXOrder(x))
}

func (b *Book) signingDomain() eip712.Domain {
	return SigningDomainFor(b.chainID, b.address)
}

// hashOrder computes the struct hash over the full field tuple. The active
// flag is part of the tuple: a signature binds the order in a specific
// ledger-visible state, and deactivation invalidates it.
func hashOrder(o *Order) common.Hash {
	return crypto.Keccak256Hash(
		orderTypeHash.Bytes(),
		eip712.AddressWord(o.Maker()),
		eip712.AddressWord(o.Asset()),
		eip712.UintWord(o.Amount()),
		eip712.AddressWord(o.Desired()),
		eip712.UintWord(o.DesiredAmount()),
		eip712.Uint64Word(o.Nonce()),
		eip712.BoolWord(o.IsActive()),
	)
}

func hashXOrder(x *XOrder) common.Hash {
	return crypto.Keccak256Hash(
		xorderTypeHash.Bytes(),
		eip712.AddressWord(x.Maker),
		eip712.AddressWord(x.Asset),
		eip712.UintWord(x.Amount),
		eip712.AddressWord(x.Desired),
		eip712.UintWord(x.DesiredAmount),
		eip712.Uint64Word(x.Nonce),
		eip712.Uint64Word(uint64(x.SourceDomain)),
		eip712.Uint64Word(uint64(x.TargetDomain)),
	)
}

// OrderDigest returns the digest a maker signs to authorize an order on this
// book without placing it on the ledger first
func (b *Book) OrderDigest(o *Order) common.Hash {
	return OrderDigestFor(b.chainID, b.address, o)
}

// XOrderDigest returns the digest a maker signs for a cross-domain order
func (b *Book) XOrderDigest(x *XOrder) common.Hash {
	return XOrderDigestFor(b.chainID, b.address, x)
}

// CheckOrderSignature reports whether signature over the order's digest
// recovers exactly signer. Malformed signatures are false, never an error
// that could read as "valid for no one in particular".
func (b *Book) CheckOrderSignature(o *Order, signature []byte, signer common.Address) bool {
	recovered, err := eip712.RecoverSigner(b.OrderDigest(o), signature)
	if err != nil {
		return false
	}
	return recovered == signer
}

// ValidateXOrder reports whether the XOrder is signed by its maker and
// destined for this book's domain. The domain check comes first: a signature
// valid elsewhere is worthless here regardless of its cryptographic merit.
func (b *Book) ValidateXOrder(x *XOrder, signature []byte) bool {
	if x.TargetDomain != b.domain {
		return false
	}

	recovered, err := eip712.RecoverSigner(b.XOrderDigest(x), signature)
	if err != nil {
		return false
	}
	return recovered == x.Maker
}

// CheckXOrderDomain surfaces the domain check separately for callers that
// want a distinguishable error rather than a bare false
func (b *Book) CheckXOrderDomain(x *XOrder) error {
	if x.TargetDomain != b.domain {
		return fmt.Errorf("%w: order targets domain %d, book is on %d",
			ErrDomainMismatch, x.TargetDomain, b.domain)
	}
	return nil
}

// FillSignedOrder settles a maker-signed order that was never placed on the
// ledger. Settlement is the same dual transfer as FillOrder; replay is
// prevented by consuming the (maker, nonce) pair.
func (b *Book) FillSignedOrder(ctx context.Context, taker common.Address, o *Order, signature []byte) error {
	ctx, span := otel.StartBookSpan(ctx, otel.SpanSignedFill,
		attribute.String(otel.AttributeTaker, taker.Hex()),
		attribute.String(otel.AttributeMaker, o.Maker().Hex()),
		attribute.Int64(otel.AttributeNonce, int64(o.Nonce())),
	)
	defer span.End()

	if !b.CheckOrderSignature(o, signature, o.Maker()) {
		span.SetStatus(codes.Error, "invalid signature")
		return ErrSignatureInvalid
	}

	if taker == o.Maker() {
		span.SetStatus(codes.Error, "self fill")
		return ErrSelfFill
	}

	if !o.IsActive() {
		span.SetStatus(codes.Error, "order not active")
		return ErrInvalidState
	}

	b.mu.Lock()

	if b.backend.IsSignedNonceUsed(o.Maker(), o.Nonce()) {
		b.mu.Unlock()
		span.SetStatus(codes.Error, "nonce already used")
		return ErrNonceUsed
	}

	err := b.tokens.Swap(ctx, b.address,
		token.Transfer{Asset: o.Desired(), From: taker, To: o.Maker(), Amount: o.DesiredAmount()},
		token.Transfer{Asset: o.Asset(), From: o.Maker(), To: taker, Amount: o.Amount()},
	)
	if err != nil {
		b.mu.Unlock()
		span.SetStatus(codes.Error, "settlement failed")
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	if err := b.backend.MarkSignedNonce(o.Maker(), o.Nonce()); err != nil {
		b.mu.Unlock()
		return err
	}
	b.mu.Unlock()

	span.SetStatus(codes.Ok, "signed order filled")
	otel.GetBookMetrics().RecordOrderFilled(ctx, "signed")

	b.emit(ctx, &messaging.BookEvent{
		Type:          messaging.EventOrderFilled,
		Nonce:         o.Nonce(),
		Maker:         o.Maker().Hex(),
		Taker:         taker.Hex(),
		Asset:         o.Asset().Hex(),
		Amount:        o.Amount().String(),
		Desired:       o.Desired().Hex(),
		DesiredAmount: o.DesiredAmount().String(),
	})

	return nil
}

// ChainID returns the chain identifier bound into this book's signing domain
func (b *Book) ChainID() *big.Int {
	return new(big.Int).Set(b.chainID)
}
