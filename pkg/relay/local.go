package relay

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type feeKey struct {
	domain  uint32
	msgType uint8
}

type pathKey struct {
	dstDomain uint32
	src       common.Address
	dst       common.Address
}

// LocalEndpoint is an in-process relay endpoint. Endpoints for different
// domains are wired to each other directly; delivery is synchronous by
// default, or queued for tests that need to delay, drop or replay packets.
type LocalEndpoint struct {
	mu        sync.Mutex
	domain    uint32
	receivers map[common.Address]Receiver
	remotes   map[uint32]*LocalEndpoint
	outSeq    map[pathKey]uint64
	minFee    map[feeKey]*big.Int
	queued    bool
	inbox     []*Packet
}

// NewLocalEndpoint creates an endpoint for the given domain
func NewLocalEndpoint(domain uint32) *LocalEndpoint {
	return &LocalEndpoint{
		domain:    domain,
		receivers: make(map[common.Address]Receiver),
		remotes:   make(map[uint32]*LocalEndpoint),
		outSeq:    make(map[pathKey]uint64),
		minFee:    make(map[feeKey]*big.Int),
	}
}

// Domain returns the endpoint's domain id
func (e *LocalEndpoint) Domain() uint32 {
	return e.domain
}

// Queued switches the endpoint to queued delivery: inbound packets are held
// until Flush is called.
func (e *LocalEndpoint) Queued(on bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.queued = on
}

// RegisterReceiver attaches an application to this endpoint
func (e *LocalEndpoint) RegisterReceiver(r Receiver) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.receivers[r.Address()] = r
}

// SetRemote wires the endpoint serving a destination domain
func (e *LocalEndpoint) SetRemote(domain uint32, remote *LocalEndpoint) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.remotes[domain] = remote
}

// SetMinFee sets the forwarding-cost floor for a destination domain and
// message type
func (e *LocalEndpoint) SetMinFee(dstDomain uint32, msgType uint8, fee *big.Int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.minFee[feeKey{dstDomain, msgType}] = new(big.Int).Set(fee)
}

// Send relays a payload toward a destination domain
func (e *LocalEndpoint) Send(ctx context.Context, src common.Address, dstDomain uint32, dstAddress common.Address, msgType uint8, payload []byte, fee *big.Int) error {
	e.mu.Lock()

	if floor, ok := e.minFee[feeKey{dstDomain, msgType}]; ok {
		paid := fee
		if paid == nil {
			paid = new(big.Int)
		}
		if paid.Cmp(floor) < 0 {
			e.mu.Unlock()
			return fmt.Errorf("%w: paid %s, floor %s", ErrInsufficientFee, paid, floor)
		}
	}

	dst, ok := e.remotes[dstDomain]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrUnknownDomain, dstDomain)
	}

	key := pathKey{dstDomain, src, dstAddress}
	e.outSeq[key]++

	pkt := &Packet{
		GUID:       uuid.NewString(),
		SrcDomain:  e.domain,
		SrcAddress: src,
		DstDomain:  dstDomain,
		DstAddress: dstAddress,
		Sequence:   e.outSeq[key],
		Payload:    append([]byte(nil), payload...),
	}
	e.mu.Unlock()

	return dst.deliver(ctx, pkt)
}

func (e *LocalEndpoint) deliver(ctx context.Context, pkt *Packet) error {
	e.mu.Lock()
	if e.queued {
		e.inbox = append(e.inbox, pkt)
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	return e.Dispatch(ctx, pkt)
}

// Dispatch hands a packet to the receiver registered at its destination
// address. Application-level failures are the receiver's problem; the
// transport only logs them.
func (e *LocalEndpoint) Dispatch(ctx context.Context, pkt *Packet) error {
	e.mu.Lock()
	r, ok := e.receivers[pkt.DstAddress]
	e.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownReceiver, pkt.DstAddress.Hex())
	}

	if err := r.Receive(ctx, pkt); err != nil {
		log.Warn().
			Str("guid", pkt.GUID).
			Uint32("src_domain", pkt.SrcDomain).
			Uint64("sequence", pkt.Sequence).
			Err(err).
			Msg("Receiver rejected packet")
		return err
	}

	return nil
}

// Flush delivers all queued packets in arrival order and returns how many
// were dispatched
func (e *LocalEndpoint) Flush(ctx context.Context) int {
	e.mu.Lock()
	pending := e.inbox
	e.inbox = nil
	e.mu.Unlock()

	for _, pkt := range pending {
		_ = e.Dispatch(ctx, pkt)
	}

	return len(pending)
}

// Pending returns copies of the queued packets without delivering them
func (e *LocalEndpoint) Pending() []*Packet {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]*Packet, len(e.inbox))
	copy(out, e.inbox)
	return out
}

// Ensure LocalEndpoint implements Endpoint
var _ Endpoint = (*LocalEndpoint)(nil)
