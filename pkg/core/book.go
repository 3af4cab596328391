package core

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/z80dev/puente/pkg/messaging"
	"github.com/z80dev/puente/pkg/otel"
	"github.com/z80dev/puente/pkg/relay"
	"github.com/z80dev/puente/pkg/token"
)

// BookReader is the read-only surface one book exposes to another. Reading
// needs no trust; the answer is only what the remote side currently claims.
type BookReader interface {
	Domain() uint32
	Address() common.Address
	GetOrder(ctx context.Context, nonce uint64) (*Order, error)
}

// Resolver locates the reader for a remote book identity
type Resolver interface {
	Resolve(domain uint32, address common.Address) (BookReader, error)
}

// Directory is a map-based Resolver for books reachable in-process
type Directory struct {
	mu    sync.RWMutex
	books map[Peer]BookReader
}

// NewDirectory creates an empty Directory
func NewDirectory() *Directory {
	return &Directory{books: make(map[Peer]BookReader)}
}

// Register adds a book to the directory
func (d *Directory) Register(b BookReader) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.books[Peer{b.Domain(), b.Address()}] = b
}

// Resolve implements Resolver
func (d *Directory) Resolve(domain uint32, address common.Address) (BookReader, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	b, ok := d.books[Peer{domain, address}]
	if !ok {
		return nil, fmt.Errorf("no reader for book %s on domain %d", address.Hex(), domain)
	}
	return b, nil
}

// Config collects everything a Book needs
type Config struct {
	Domain   uint32
	ChainID  *big.Int
	Address  common.Address
	Owner    common.Address
	Backend  BookBackend
	Tokens   token.Ledger
	Endpoint relay.Endpoint
	Events   messaging.EventSender
	Books    Resolver

	// RequireActiveCancel rejects cancels of already-inactive orders
	// instead of silently re-emitting
	RequireActiveCancel bool

	// RelayFee is attached to every outbound protocol message
	RelayFee *big.Int
}

// Book is one order ledger instance together with its remote-fill
// coordinator. All state transitions are serialized; each call either
// completes fully or leaves no partial state change.
type Book struct {
	mu                  sync.Mutex
	domain              uint32
	chainID             *big.Int
	address             common.Address
	owner               common.Address
	backend             BookBackend
	tokens              token.Ledger
	endpoint            relay.Endpoint
	events              messaging.EventSender
	books               Resolver
	requireActiveCancel bool
	relayFee            *big.Int
	logger              zerolog.Logger
}

// NewBook creates a Book instance for one domain
func NewBook(cfg Config) (*Book, error) {
	if cfg.Backend == nil {
		return nil, fmt.Errorf("book requires a backend")
	}
	if cfg.Tokens == nil {
		return nil, fmt.Errorf("book requires a token ledger")
	}

	chainID := cfg.ChainID
	if chainID == nil {
		chainID = new(big.Int).SetUint64(uint64(cfg.Domain))
	}

	relayFee := cfg.RelayFee
	if relayFee == nil {
		relayFee = new(big.Int)
	}

	events := cfg.Events
	if events == nil {
		events = messaging.NewMockEventSender()
	}

	return &Book{
		domain:              cfg.Domain,
		chainID:             chainID,
		address:             cfg.Address,
		owner:               cfg.Owner,
		backend:             cfg.Backend,
		tokens:              cfg.Tokens,
		endpoint:            cfg.Endpoint,
		events:              events,
		books:               cfg.Books,
		requireActiveCancel: cfg.RequireActiveCancel,
		relayFee:            relayFee,
		logger: log.With().
			Uint32("domain", cfg.Domain).
			Str("book", cfg.Address.Hex()).
			Logger(),
	}, nil
}

// Domain returns the book's domain id
func (b *Book) Domain() uint32 {
	return b.domain
}

// Address returns the book's identity
func (b *Book) Address() common.Address {
	return b.address
}

// Owner returns the administrator identity
func (b *Book) Owner() common.Address {
	return b.owner
}

// CurrentNonce returns the nonce the next order will receive
func (b *Book) CurrentNonce() uint64 {
	return b.backend.CurrentNonce()
}

// GetOrder returns a copy of the order at nonce
func (b *Book) GetOrder(ctx context.Context, nonce uint64) (*Order, error) {
	order := b.backend.GetOrder(nonce)
	if order == nil {
		return nil, ErrNonexistentOrder
	}
	return order, nil
}

// AddOrder appends a new active order at the next sequential nonce
func (b *Book) AddOrder(ctx context.Context, maker, asset common.Address, amount *big.Int, desired common.Address, desiredAmount *big.Int) (uint64, error) {
	ctx, span := otel.StartBookSpan(ctx, otel.SpanAddOrder,
		attribute.String(otel.AttributeMaker, maker.Hex()),
		attribute.String(otel.AttributeAsset, asset.Hex()),
	)
	defer span.End()

	if amount == nil || amount.Sign() <= 0 || desiredAmount == nil || desiredAmount.Sign() <= 0 {
		span.SetStatus(codes.Error, "invalid order")
		return 0, ErrInvalidAmount
	}

	b.mu.Lock()
	nonce := b.backend.ReserveNonce()

	order, err := NewOrder(maker, asset, amount, desired, desiredAmount, nonce)
	if err != nil {
		b.mu.Unlock()
		span.SetStatus(codes.Error, "invalid order")
		return 0, err
	}

	if err := b.backend.StoreOrder(order); err != nil {
		b.mu.Unlock()
		span.SetStatus(codes.Error, "failed to store order")
		return 0, err
	}
	b.mu.Unlock()

	otel.AddAttributes(span, attribute.Int64(otel.AttributeNonce, int64(nonce)))
	span.SetStatus(codes.Ok, "order added")
	otel.GetBookMetrics().RecordOrderAdded(ctx)

	b.emit(ctx, &messaging.BookEvent{
		Type:          messaging.EventOrderAdded,
		Nonce:         nonce,
		Maker:         maker.Hex(),
		Asset:         asset.Hex(),
		Amount:        amount.String(),
		Desired:       desired.Hex(),
		DesiredAmount: desiredAmount.String(),
	})

	return nonce, nil
}

// CancelOrder deactivates the caller's own order. By default a cancel of an
// already-inactive order succeeds and re-emits, matching the ledger's
// idempotent state semantics; RequireActiveCancel turns that into
// ErrInvalidState.
func (b *Book) CancelOrder(ctx context.Context, caller common.Address, nonce uint64) error {
	b.mu.Lock()

	order := b.backend.GetOrder(nonce)
	if order == nil {
		b.mu.Unlock()
		return ErrNonexistentOrder
	}

	if order.Maker() != caller {
		b.mu.Unlock()
		return ErrUnauthorized
	}

	if b.requireActiveCancel && !order.IsActive() {
		b.mu.Unlock()
		return ErrInvalidState
	}

	order.Deactivate()
	if err := b.backend.UpdateOrder(order); err != nil {
		b.mu.Unlock()
		return err
	}
	b.mu.Unlock()

	b.emit(ctx, &messaging.BookEvent{
		Type:  messaging.EventOrderCanceled,
		Nonce: nonce,
		Maker: caller.Hex(),
	})

	return nil
}

// FillOrder settles an active order locally: desiredAmount of desired moves
// taker to maker and amount of asset moves maker to taker, both legs or
// neither.
func (b *Book) FillOrder(ctx context.Context, taker common.Address, nonce uint64) error {
	ctx, span := otel.StartBookSpan(ctx, otel.SpanFillOrder,
		attribute.String(otel.AttributeTaker, taker.Hex()),
		attribute.Int64(otel.AttributeNonce, int64(nonce)),
	)
	defer span.End()

	b.mu.Lock()

	order := b.backend.GetOrder(nonce)
	if order == nil {
		b.mu.Unlock()
		span.SetStatus(codes.Error, "nonexistent order")
		return ErrNonexistentOrder
	}

	if !order.IsActive() {
		b.mu.Unlock()
		span.SetStatus(codes.Error, "order not active")
		return ErrInvalidState
	}

	if order.Maker() == taker {
		b.mu.Unlock()
		span.SetStatus(codes.Error, "self fill")
		return ErrSelfFill
	}

	err := b.tokens.Swap(ctx, b.address,
		token.Transfer{Asset: order.Desired(), From: taker, To: order.Maker(), Amount: order.DesiredAmount()},
		token.Transfer{Asset: order.Asset(), From: order.Maker(), To: taker, Amount: order.Amount()},
	)
	if err != nil {
		b.mu.Unlock()
		span.SetStatus(codes.Error, "settlement failed")
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	order.Deactivate()
	if err := b.backend.UpdateOrder(order); err != nil {
		b.mu.Unlock()
		return err
	}
	b.mu.Unlock()

	span.SetStatus(codes.Ok, "order filled")
	otel.GetBookMetrics().RecordOrderFilled(ctx, "direct")

	b.emit(ctx, &messaging.BookEvent{
		Type:          messaging.EventOrderFilled,
		Nonce:         nonce,
		Maker:         order.Maker().Hex(),
		Taker:         taker.Hex(),
		Asset:         order.Asset().Hex(),
		Amount:        order.Amount().String(),
		Desired:       order.Desired().Hex(),
		DesiredAmount: order.DesiredAmount().String(),
	})

	return nil
}

// AddTrustedBook admits a remote book identity into the trust registry.
// Trust is append-only at this layer; there is no removal operation.
func (b *Book) AddTrustedBook(ctx context.Context, caller, book common.Address) error {
	if caller != b.owner {
		return ErrUnauthorized
	}

	b.backend.SetTrustedBook(book, true)
	b.logger.Info().Str("trusted_book", book.Hex()).Msg("Added trusted book")
	return nil
}

// IsTrustedBook reports whether a remote book may drive this book's
// remote-fill transitions
func (b *Book) IsTrustedBook(book common.Address) bool {
	return b.backend.IsTrustedBook(book)
}

// SetTrustedPath configures the relay path accepted for a source domain
func (b *Book) SetTrustedPath(ctx context.Context, caller common.Address, domain uint32, remote common.Address) error {
	if caller != b.owner {
		return ErrUnauthorized
	}

	b.backend.SetTrustedPath(domain, relay.EncodePath(remote, b.address))
	b.logger.Info().
		Uint32("src_domain", domain).
		Str("remote", remote.Hex()).
		Msg("Set trusted path")
	return nil
}

// FillOrderOnBook initiates a remote fill: escrow the taker's payment here,
// then ask the order's home book to adjudicate. The outcome arrives later as
// a confirm or cancel callback.
//
// A fill may be re-initiated once the previous attempt reaches a terminal
// state. Because the relay delivers at least once, a stale duplicate of an
// earlier confirm or cancel that arrives after re-initiation settles the new
// escrow; deployments that cannot tolerate that window should wait for the
// remote side's outcome event before retrying a nonce.
func (b *Book) FillOrderOnBook(ctx context.Context, taker common.Address, remote BookReader, nonce uint64) error {
	ctx, span := otel.StartBookSpan(ctx, otel.SpanRemoteFill,
		attribute.String(otel.AttributeTaker, taker.Hex()),
		attribute.String(otel.AttributeRemoteBook, remote.Address().Hex()),
		attribute.Int64(otel.AttributeNonce, int64(nonce)),
	)
	defer span.End()

	order, err := remote.GetOrder(ctx, nonce)
	if err != nil {
		span.SetStatus(codes.Error, "remote read failed")
		return err
	}

	if order.Maker() == taker {
		span.SetStatus(codes.Error, "self fill")
		return ErrSelfFill
	}

	if !b.backend.IsTrustedBook(remote.Address()) {
		span.SetStatus(codes.Error, "untrusted book")
		return ErrUntrustedBook
	}

	b.mu.Lock()

	if st := b.backend.GetFillState(remote.Address(), nonce); st != nil && st.Status == FillEscrowed {
		b.mu.Unlock()
		span.SetStatus(codes.Error, "fill already pending")
		return fmt.Errorf("%w: remote fill already pending", ErrInvalidState)
	}

	escrow := token.Transfer{
		Asset:  order.Desired(),
		From:   taker,
		To:     b.address,
		Amount: order.DesiredAmount(),
	}
	if err := b.tokens.TransferFrom(ctx, b.address, escrow); err != nil {
		b.mu.Unlock()
		span.SetStatus(codes.Error, "escrow failed")
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	state := &FillState{
		Status: FillEscrowed,
		Taker:  taker,
		Asset:  order.Desired(),
		Amount: order.DesiredAmount(),
	}
	if err := b.backend.SetFillState(remote.Address(), nonce, state); err != nil {
		b.tokens.TryTransferFrom(ctx, b.address, token.Transfer{
			Asset: escrow.Asset, From: b.address, To: taker, Amount: escrow.Amount,
		})
		b.mu.Unlock()
		return err
	}
	b.mu.Unlock()

	b.emit(ctx, &messaging.BookEvent{
		Type:          messaging.EventRemoteOrderFillCandidate,
		Nonce:         nonce,
		Taker:         taker.Hex(),
		RemoteBook:    remote.Address().Hex(),
		Desired:       order.Desired().Hex(),
		DesiredAmount: order.DesiredAmount().String(),
	})

	peer := Peer{Domain: remote.Domain(), Address: remote.Address()}
	if err := b.sendCall(ctx, peer, CallOrderFilled, nonce, taker); err != nil {
		// The relay refused the message; unwind the escrow so the caller
		// sees no state change.
		b.mu.Lock()
		b.tokens.TryTransferFrom(ctx, b.address, token.Transfer{
			Asset: escrow.Asset, From: b.address, To: taker, Amount: escrow.Amount,
		})
		b.backend.SetFillState(remote.Address(), nonce, &FillState{Status: FillNone})
		b.mu.Unlock()
		span.SetStatus(codes.Error, "relay send failed")
		return err
	}

	span.SetStatus(codes.Ok, "remote fill initiated")
	otel.GetBookMetrics().RecordRemoteFill(ctx, "initiated")
	return nil
}

// OnOrderFilled adjudicates a remote fill candidate against the local order.
// The order is irrevocably consumed before the maker's asset moves; a failed
// maker-side transfer is converted into a cancel message, never an error,
// because by then the order must not become fillable again.
func (b *Book) OnOrderFilled(ctx context.Context, caller Peer, nonce uint64, taker common.Address) error {
	if !b.backend.IsTrustedBook(caller.Address) {
		return ErrUntrustedBook
	}

	b.mu.Lock()

	order := b.backend.GetOrder(nonce)
	if order == nil || !order.IsActive() {
		b.mu.Unlock()
		b.logger.Debug().
			Uint64("nonce", nonce).
			Msg("Remote fill candidate for inactive order, cancelling")
		return b.sendCall(ctx, caller, CallFillCancel, nonce, taker)
	}

	if order.Maker() == taker {
		b.mu.Unlock()
		return b.sendCall(ctx, caller, CallFillCancel, nonce, taker)
	}

	order.Deactivate()
	if err := b.backend.UpdateOrder(order); err != nil {
		b.mu.Unlock()
		return err
	}
	b.mu.Unlock()

	delivered := b.tokens.TryTransferFrom(ctx, b.address, token.Transfer{
		Asset:  order.Asset(),
		From:   order.Maker(),
		To:     taker,
		Amount: order.Amount(),
	})

	if !delivered {
		b.logger.Warn().
			Uint64("nonce", nonce).
			Str("maker", order.Maker().Hex()).
			Msg("Maker-side transfer failed, order consumed without settlement")
		otel.GetBookMetrics().RecordRemoteFill(ctx, "maker_transfer_failed")
		return b.sendCall(ctx, caller, CallFillCancel, nonce, taker)
	}

	otel.GetBookMetrics().RecordOrderFilled(ctx, "remote")

	b.emit(ctx, &messaging.BookEvent{
		Type:          messaging.EventOrderFilled,
		Nonce:         nonce,
		Maker:         order.Maker().Hex(),
		Taker:         taker.Hex(),
		Asset:         order.Asset().Hex(),
		Amount:        order.Amount().String(),
		Desired:       order.Desired().Hex(),
		DesiredAmount: order.DesiredAmount().String(),
	})

	return b.sendCall(ctx, caller, CallFillConfirm, nonce, taker)
}

// OnRemoteFillConfirm releases the escrow to the maker. The maker address is
// re-queried from the order's home book rather than trusted from the
// callback; the refund target and amount were bound at escrow time.
func (b *Book) OnRemoteFillConfirm(ctx context.Context, caller Peer, nonce uint64, taker common.Address) error {
	if !b.backend.IsTrustedBook(caller.Address) {
		return ErrUntrustedBook
	}

	b.mu.Lock()
	st := b.backend.GetFillState(caller.Address, nonce)
	b.mu.Unlock()

	if st == nil || st.Status != FillEscrowed {
		b.logger.Debug().
			Uint64("nonce", nonce).
			Msg("Confirm for non-pending fill, ignoring")
		return nil
	}

	if st.Taker != taker {
		b.logger.Warn().
			Uint64("nonce", nonce).
			Str("claimed_taker", taker.Hex()).
			Str("escrowed_taker", st.Taker.Hex()).
			Msg("Confirm taker mismatch, using escrowed taker")
	}

	if b.books == nil {
		return fmt.Errorf("no resolver configured for remote book reads")
	}

	remote, err := b.books.Resolve(caller.Domain, caller.Address)
	if err != nil {
		return err
	}

	order, err := remote.GetOrder(ctx, nonce)
	if err != nil {
		return err
	}

	b.mu.Lock()

	st = b.backend.GetFillState(caller.Address, nonce)
	if st == nil || st.Status != FillEscrowed {
		b.mu.Unlock()
		return nil
	}

	release := token.Transfer{
		Asset:  st.Asset,
		From:   b.address,
		To:     order.Maker(),
		Amount: st.Amount,
	}
	if err := b.tokens.TransferFrom(ctx, b.address, release); err != nil {
		b.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	st.Status = FillConfirmed
	if err := b.backend.SetFillState(caller.Address, nonce, st); err != nil {
		b.mu.Unlock()
		return err
	}
	b.mu.Unlock()

	otel.GetBookMetrics().RecordRemoteFill(ctx, "confirmed")

	b.emit(ctx, &messaging.BookEvent{
		Type:       messaging.EventRemoteOrderFillConfirmed,
		Nonce:      nonce,
		Taker:      st.Taker.Hex(),
		Maker:      order.Maker().Hex(),
		RemoteBook: caller.Address.Hex(),
	})

	return nil
}

// OnRemoteFillCancel refunds the escrow to the taker bound at escrow time
func (b *Book) OnRemoteFillCancel(ctx context.Context, caller Peer, nonce uint64, taker common.Address) error {
	if !b.backend.IsTrustedBook(caller.Address) {
		return ErrUntrustedBook
	}

	b.mu.Lock()

	st := b.backend.GetFillState(caller.Address, nonce)
	if st == nil || st.Status != FillEscrowed {
		b.mu.Unlock()
		b.logger.Debug().
			Uint64("nonce", nonce).
			Msg("Cancel for non-pending fill, ignoring")
		return nil
	}

	if st.Taker != taker {
		b.logger.Warn().
			Uint64("nonce", nonce).
			Str("claimed_taker", taker.Hex()).
			Str("escrowed_taker", st.Taker.Hex()).
			Msg("Cancel taker mismatch, refunding escrowed taker")
	}

	refund := token.Transfer{
		Asset:  st.Asset,
		From:   b.address,
		To:     st.Taker,
		Amount: st.Amount,
	}
	if err := b.tokens.TransferFrom(ctx, b.address, refund); err != nil {
		b.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	st.Status = FillCancelled
	if err := b.backend.SetFillState(caller.Address, nonce, st); err != nil {
		b.mu.Unlock()
		return err
	}
	b.mu.Unlock()

	otel.GetBookMetrics().RecordRemoteFill(ctx, "cancelled")

	b.emit(ctx, &messaging.BookEvent{
		Type:       messaging.EventRemoteOrderFillCanceled,
		Nonce:      nonce,
		Taker:      st.Taker.Hex(),
		RemoteBook: caller.Address.Hex(),
	})

	return nil
}

// FillState returns the remote-fill session state for (remote, nonce)
func (b *Book) FillState(remote common.Address, nonce uint64) *FillState {
	return b.backend.GetFillState(remote, nonce)
}

// Receive is the relay transport's entry point. Path-mismatched packets are
// rejected outright; packets that match but fail to apply are durably
// recorded for retry instead of failing the transport, which would block the
// source domain's queue.
func (b *Book) Receive(ctx context.Context, pkt *relay.Packet) error {
	ctx, span := otel.StartBookSpan(ctx, otel.SpanReceive,
		attribute.Int64(otel.AttributeSrcDomain, int64(pkt.SrcDomain)),
		attribute.Int64(otel.AttributeSequence, int64(pkt.Sequence)),
	)
	defer span.End()

	want := b.backend.GetTrustedPath(pkt.SrcDomain)
	got := relay.EncodePath(pkt.SrcAddress, b.address)
	if len(want) == 0 || !bytes.Equal(want, got) {
		span.SetStatus(codes.Error, "untrusted path")
		return fmt.Errorf("%w: no trusted path for %s on domain %d",
			ErrUntrustedBook, pkt.SrcAddress.Hex(), pkt.SrcDomain)
	}

	if err := b.apply(ctx, pkt.SrcDomain, pkt.SrcAddress, pkt.Payload); err != nil {
		hash := crypto.Keccak256Hash(pkt.Payload)
		failed := &FailedMessage{
			SrcDomain:   pkt.SrcDomain,
			SrcAddress:  pkt.SrcAddress,
			Sequence:    pkt.Sequence,
			PayloadHash: hash,
		}
		if storeErr := b.backend.StoreFailedMessage(failed); storeErr != nil {
			b.logger.Error().Err(storeErr).Msg("Failed to record failed message")
		}

		b.logger.Warn().
			Uint32("src_domain", pkt.SrcDomain).
			Uint64("sequence", pkt.Sequence).
			Str("payload_hash", hash.Hex()).
			Err(err).
			Msg("Inbound message failed, stored for retry")

		span.SetStatus(codes.Error, "message application failed")
		otel.GetBookMetrics().RecordFailedMessage(ctx)

		b.emit(ctx, &messaging.BookEvent{
			Type:        messaging.EventMessageFailed,
			SrcDomain:   pkt.SrcDomain,
			RemoteBook:  pkt.SrcAddress.Hex(),
			Sequence:    pkt.Sequence,
			PayloadHash: hash.Hex(),
		})

		return nil
	}

	span.SetStatus(codes.Ok, "message applied")
	return nil
}

// RetryMessage re-attempts a previously failed inbound payload. The payload
// must hash to exactly what was recorded; success clears the record.
func (b *Book) RetryMessage(ctx context.Context, caller common.Address, srcDomain uint32, srcAddress common.Address, sequence uint64, payload []byte) error {
	if caller != b.owner {
		return ErrUnauthorized
	}

	stored := b.backend.GetFailedMessage(srcDomain, srcAddress, sequence)
	if stored == nil {
		return ErrNoFailedMessage
	}

	if crypto.Keccak256Hash(payload) != stored.PayloadHash {
		return ErrInvalidPayload
	}

	if err := b.apply(ctx, srcDomain, srcAddress, payload); err != nil {
		return err
	}

	b.backend.DeleteFailedMessage(srcDomain, srcAddress, sequence)

	b.emit(ctx, &messaging.BookEvent{
		Type:        messaging.EventRetrySucceeded,
		SrcDomain:   srcDomain,
		RemoteBook:  srcAddress.Hex(),
		Sequence:    sequence,
		PayloadHash: stored.PayloadHash.Hex(),
	})

	return nil
}

// FailedMessage returns the stored failure record, if any
func (b *Book) FailedMessage(srcDomain uint32, srcAddress common.Address, sequence uint64) *FailedMessage {
	return b.backend.GetFailedMessage(srcDomain, srcAddress, sequence)
}

// apply dispatches a relayed payload in an isolated scope: a panic in a
// handler becomes an error instead of taking down the transport loop.
func (b *Book) apply(ctx context.Context, srcDomain uint32, srcAddress common.Address, payload []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	call, err := DecodeCall(payload)
	if err != nil {
		return err
	}

	caller := Peer{Domain: srcDomain, Address: srcAddress}

	switch call.Kind {
	case CallOrderFilled:
		return b.OnOrderFilled(ctx, caller, call.Nonce, call.Taker)
	case CallFillConfirm:
		return b.OnRemoteFillConfirm(ctx, caller, call.Nonce, call.Taker)
	case CallFillCancel:
		return b.OnRemoteFillCancel(ctx, caller, call.Nonce, call.Taker)
	default:
		return fmt.Errorf("%w: %q", ErrInvalidPayload, call.Kind)
	}
}

func (b *Book) sendCall(ctx context.Context, to Peer, kind string, nonce uint64, taker common.Address) error {
	if b.endpoint == nil {
		return fmt.Errorf("no relay endpoint configured")
	}

	call := &Call{Kind: kind, Nonce: nonce, Taker: taker}
	payload, err := EncodeCall(call)
	if err != nil {
		return err
	}

	return b.endpoint.Send(ctx, b.address, to.Domain, to.Address, call.MsgType(), payload, b.relayFee)
}

func (b *Book) emit(ctx context.Context, event *messaging.BookEvent) {
	event.Book = b.address.Hex()
	event.Domain = b.domain

	if err := b.events.SendBookEvent(ctx, event); err != nil {
		b.logger.Error().Err(err).Str("event", event.Type).Msg("Failed to publish event")
	}
}

// Ensure Book implements the interfaces it is consumed through
var (
	_ BookReader     = (*Book)(nil)
	_ relay.Receiver = (*Book)(nil)
)
