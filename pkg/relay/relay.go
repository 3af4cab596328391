// Package relay models the asynchronous cross-domain message channel:
// at-least-once delivery, per-source-path sequence numbers, and out-of-band
// fee accounting. Books never mutate remote state directly; everything
// crosses this channel.
package relay

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Errors
var (
	ErrUnknownDomain   = errors.New("unknown destination domain")
	ErrUnknownReceiver = errors.New("no receiver at destination address")
	ErrInsufficientFee = errors.New("insufficient relay fee")
)

// Packet is one relayed message. Sequence numbers are per source path
// (source address to destination address within a domain pair).
type Packet struct {
	GUID       string         `json:"guid"`
	SrcDomain  uint32         `json:"srcDomain"`
	SrcAddress common.Address `json:"srcAddress"`
	DstDomain  uint32         `json:"dstDomain"`
	DstAddress common.Address `json:"dstAddress"`
	Sequence   uint64         `json:"sequence"`
	Payload    []byte         `json:"payload"`
}

// Receiver is the application side of the channel. Receive is invoked only
// by the transport; returning an error tells the transport the message was
// rejected before application (for example a path mismatch).
type Receiver interface {
	Address() common.Address
	Receive(ctx context.Context, pkt *Packet) error
}

// Endpoint sends messages toward a destination domain. Fire-and-forget from
// the caller's perspective; the fee pays the relay, and an insufficient fee
// is a caller error, not a protocol state.
type Endpoint interface {
	Domain() uint32
	Send(ctx context.Context, src common.Address, dstDomain uint32, dstAddress common.Address, msgType uint8, payload []byte, fee *big.Int) error
}

// EncodePath packs a remote/local address pair into the byte-exact trusted
// path form checked by inbound handlers.
func EncodePath(remote, local common.Address) []byte {
	path := make([]byte, 0, 2*common.AddressLength)
	path = append(path, remote.Bytes()...)
	path = append(path, local.Bytes()...)
	return path
}
