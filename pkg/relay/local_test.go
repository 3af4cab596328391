package relay

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

// recordingReceiver collects delivered packets
type recordingReceiver struct {
	mu      sync.Mutex
	address common.Address
	packets []*Packet
	reject  error
}

func newRecordingReceiver(address common.Address) *recordingReceiver {
	return &recordingReceiver{address: address}
}

func (r *recordingReceiver) Address() common.Address {
	return r.address
}

func (r *recordingReceiver) Receive(ctx context.Context, pkt *Packet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.reject != nil {
		return r.reject
	}
	r.packets = append(r.packets, pkt)
	return nil
}

func (r *recordingReceiver) received() []*Packet {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Packet, len(r.packets))
	copy(out, r.packets)
	return out
}

func twoEndpoints() (*LocalEndpoint, *LocalEndpoint) {
	a := NewLocalEndpoint(1)
	b := NewLocalEndpoint(2)
	a.SetRemote(2, b)
	b.SetRemote(1, a)
	return a, b
}

func TestSendDelivers(t *testing.T) {
	epA, epB := twoEndpoints()
	ctx := context.Background()

	src := common.HexToAddress("0x0a")
	dst := common.HexToAddress("0x0b")
	rcv := newRecordingReceiver(dst)
	epB.RegisterReceiver(rcv)

	payload := []byte("hello")
	if err := epA.Send(ctx, src, 2, dst, 1, payload, nil); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	got := rcv.received()
	if len(got) != 1 {
		t.Fatalf("Expected 1 packet, got %d", len(got))
	}

	pkt := got[0]
	if pkt.SrcDomain != 1 || pkt.DstDomain != 2 {
		t.Errorf("Domains = %d->%d, want 1->2", pkt.SrcDomain, pkt.DstDomain)
	}
	if pkt.SrcAddress != src || pkt.DstAddress != dst {
		t.Error("Addresses not carried through")
	}
	if !bytes.Equal(pkt.Payload, payload) {
		t.Errorf("Payload = %q, want %q", pkt.Payload, payload)
	}
	if pkt.GUID == "" {
		t.Error("Expected a GUID")
	}
}

func TestSendSequencesPerPath(t *testing.T) {
	epA, epB := twoEndpoints()
	ctx := context.Background()

	srcA := common.HexToAddress("0x0a")
	srcB := common.HexToAddress("0x0c")
	dst := common.HexToAddress("0x0b")
	rcv := newRecordingReceiver(dst)
	epB.RegisterReceiver(rcv)

	for i := 0; i < 3; i++ {
		if err := epA.Send(ctx, srcA, 2, dst, 1, []byte("x"), nil); err != nil {
			t.Fatalf("Send() error = %v", err)
		}
	}
	// A different source address starts its own sequence
	if err := epA.Send(ctx, srcB, 2, dst, 1, []byte("x"), nil); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	got := rcv.received()
	if len(got) != 4 {
		t.Fatalf("Expected 4 packets, got %d", len(got))
	}

	for i, want := range []uint64{1, 2, 3, 1} {
		if got[i].Sequence != want {
			t.Errorf("Packet %d sequence = %d, want %d", i, got[i].Sequence, want)
		}
	}
}

func TestSendUnknownDomain(t *testing.T) {
	epA, _ := twoEndpoints()

	err := epA.Send(context.Background(), common.Address{}, 9, common.Address{}, 1, nil, nil)
	if !errors.Is(err, ErrUnknownDomain) {
		t.Errorf("Expected ErrUnknownDomain, got %v", err)
	}
}

func TestSendUnknownReceiver(t *testing.T) {
	epA, _ := twoEndpoints()

	err := epA.Send(context.Background(), common.Address{}, 2, common.HexToAddress("0xdd"), 1, nil, nil)
	if !errors.Is(err, ErrUnknownReceiver) {
		t.Errorf("Expected ErrUnknownReceiver, got %v", err)
	}
}

func TestFeeFloor(t *testing.T) {
	epA, epB := twoEndpoints()
	ctx := context.Background()

	dst := common.HexToAddress("0x0b")
	epB.RegisterReceiver(newRecordingReceiver(dst))

	epA.SetMinFee(2, 1, big.NewInt(10))

	tests := []struct {
		name    string
		msgType uint8
		fee     *big.Int
		wantErr bool
	}{
		{"NilFeeBelowFloor", 1, nil, true},
		{"BelowFloor", 1, big.NewInt(9), true},
		{"AtFloor", 1, big.NewInt(10), false},
		{"AboveFloor", 1, big.NewInt(11), false},
		{"OtherTypeUnaffected", 2, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := epA.Send(ctx, common.Address{}, 2, dst, tt.msgType, []byte("x"), tt.fee)
			if tt.wantErr && !errors.Is(err, ErrInsufficientFee) {
				t.Errorf("Expected ErrInsufficientFee, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Unexpected error %v", err)
			}
		})
	}
}

func TestQueuedDelivery(t *testing.T) {
	epA, epB := twoEndpoints()
	ctx := context.Background()

	dst := common.HexToAddress("0x0b")
	rcv := newRecordingReceiver(dst)
	epB.RegisterReceiver(rcv)

	epB.Queued(true)

	for i := 0; i < 3; i++ {
		if err := epA.Send(ctx, common.Address{}, 2, dst, 1, []byte("x"), nil); err != nil {
			t.Fatalf("Send() error = %v", err)
		}
	}

	if len(rcv.received()) != 0 {
		t.Fatal("Queued endpoint must not deliver before Flush")
	}

	if got := len(epB.Pending()); got != 3 {
		t.Errorf("Pending() = %d, want 3", got)
	}

	if n := epB.Flush(ctx); n != 3 {
		t.Errorf("Flush() = %d, want 3", n)
	}

	got := rcv.received()
	if len(got) != 3 {
		t.Fatalf("Expected 3 delivered packets, got %d", len(got))
	}

	// Arrival order is preserved
	for i := 1; i < len(got); i++ {
		if got[i].Sequence <= got[i-1].Sequence {
			t.Error("Flush must deliver in arrival order")
		}
	}

	if len(epB.Pending()) != 0 {
		t.Error("Pending must be empty after Flush")
	}
}

func TestDispatchSurfacesReceiverError(t *testing.T) {
	_, epB := twoEndpoints()
	ctx := context.Background()

	dst := common.HexToAddress("0x0b")
	rcv := newRecordingReceiver(dst)
	rcv.reject = errors.New("path mismatch")
	epB.RegisterReceiver(rcv)

	pkt := &Packet{DstDomain: 2, DstAddress: dst, Payload: []byte("x")}
	if err := epB.Dispatch(ctx, pkt); err == nil {
		t.Error("Expected receiver rejection to surface")
	}
}

func TestSendCopiesPayload(t *testing.T) {
	epA, epB := twoEndpoints()
	ctx := context.Background()

	dst := common.HexToAddress("0x0b")
	rcv := newRecordingReceiver(dst)
	epB.RegisterReceiver(rcv)

	payload := []byte("mutate me")
	if err := epA.Send(ctx, common.Address{}, 2, dst, 1, payload, nil); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	payload[0] = 'X'

	if got := rcv.received()[0].Payload; got[0] == 'X' {
		t.Error("Send must copy the payload")
	}
}

func TestEncodePath(t *testing.T) {
	remote := common.HexToAddress("0x01")
	local := common.HexToAddress("0x02")

	path := EncodePath(remote, local)
	if len(path) != 2*common.AddressLength {
		t.Fatalf("Path length = %d, want %d", len(path), 2*common.AddressLength)
	}

	if !bytes.Equal(path[:common.AddressLength], remote.Bytes()) {
		t.Error("Path must start with the remote address")
	}
	if !bytes.Equal(path[common.AddressLength:], local.Bytes()) {
		t.Error("Path must end with the local address")
	}

	if bytes.Equal(EncodePath(remote, local), EncodePath(local, remote)) {
		t.Error("Path encoding must be direction-sensitive")
	}
}
