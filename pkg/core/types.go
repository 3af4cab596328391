package core

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// FillStatus tracks one remote fill session keyed by (remote book, nonce)
// on the taker's book.
type FillStatus int

// Remote fill states. Confirmed and Cancelled are terminal.
const (
	FillNone FillStatus = iota
	FillEscrowed
	FillConfirmed
	FillCancelled
)

// String returns status as string
func (s FillStatus) String() string {
	switch s {
	case FillNone:
		return "NONE"
	case FillEscrowed:
		return "ESCROWED"
	case FillConfirmed:
		return "CONFIRMED"
	case FillCancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether no further transition is allowed
func (s FillStatus) Terminal() bool {
	return s == FillConfirmed || s == FillCancelled
}

// FillState is the escrow record for a pending or settled remote fill. The
// funding taker and the escrowed amount are bound here at escrow time, so
// the confirm/cancel callbacks cannot be steered to an arbitrary address by
// the remote side.
type FillState struct {
	Status FillStatus     `json:"status"`
	Taker  common.Address `json:"taker"`
	Asset  common.Address `json:"asset"`
	Amount *big.Int       `json:"amount"`
}

// FailedMessage records an inbound relay message whose application failed.
// Append-only once written; the payload hash is never mutated, preserving
// tamper-evidence of what may be retried.
type FailedMessage struct {
	SrcDomain   uint32         `json:"srcDomain"`
	SrcAddress  common.Address `json:"srcAddress"`
	Sequence    uint64         `json:"sequence"`
	PayloadHash common.Hash    `json:"payloadHash"`
}

// Peer identifies a remote book as authenticated by the relay transport.
type Peer struct {
	Domain  uint32
	Address common.Address
}

// String implements Stringer interface
func (p Peer) String() string {
	return fmt.Sprintf("%d:%s", p.Domain, p.Address.Hex())
}

// Relayed call kinds
const (
	CallOrderFilled = "order_filled"
	CallFillConfirm = "fill_confirm"
	CallFillCancel  = "fill_cancel"
)

// Relay message types, used by the transport for per-type fee floors
const (
	MsgOrderFilled uint8 = iota + 1
	MsgFillConfirm
	MsgFillCancel
)

// Call is the payload of a cross-domain protocol message.
type Call struct {
	Kind  string         `json:"kind"`
	Nonce uint64         `json:"nonce"`
	Taker common.Address `json:"taker"`
}

// EncodeCall serializes a protocol call for the relay channel
func EncodeCall(c *Call) ([]byte, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to encode call: %w", err)
	}
	return data, nil
}

// DecodeCall parses a relayed payload back into a Call
func DecodeCall(payload []byte) (*Call, error) {
	var c Call
	if err := json.Unmarshal(payload, &c); err != nil {
		return nil, fmt.Errorf("failed to decode call: %w", err)
	}

	switch c.Kind {
	case CallOrderFilled, CallFillConfirm, CallFillCancel:
		return &c, nil
	default:
		return nil, fmt.Errorf("%w: unknown call kind %q", ErrInvalidPayload, c.Kind)
	}
}

// MsgType maps a call kind to its relay message type
func (c *Call) MsgType() uint8 {
	switch c.Kind {
	case CallFillConfirm:
		return MsgFillConfirm
	case CallFillCancel:
		return MsgFillCancel
	default:
		return MsgOrderFilled
	}
}
