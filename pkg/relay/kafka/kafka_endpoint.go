// Package kafka carries relay packets between domains over Kafka topics.
// Each domain consumes one topic; delivery is at-least-once and per-source
// ordered, which matches what the protocol layer is written to tolerate.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/z80dev/puente/pkg/relay"
)

// TopicForDomain returns the relay topic consumed by a domain
func TopicForDomain(domain uint32) string {
	return fmt.Sprintf("puente.relay.%d", domain)
}

type feeKey struct {
	domain  uint32
	msgType uint8
}

type pathKey struct {
	dstDomain uint32
	src       common.Address
	dst       common.Address
}

// KafkaEndpoint is a relay endpoint backed by Kafka. Outbound packets go to
// the destination domain's topic; Run consumes this domain's own topic and
// dispatches to registered receivers.
type KafkaEndpoint struct {
	mu        sync.Mutex
	domain    uint32
	brokers   []string
	groupID   string
	writers   map[uint32]*kafkago.Writer
	receivers map[common.Address]relay.Receiver
	outSeq    map[pathKey]uint64
	minFee    map[feeKey]*big.Int
	logger    zerolog.Logger
}

// NewKafkaEndpoint creates an endpoint for the given domain
func NewKafkaEndpoint(domain uint32, brokers []string, groupID string) *KafkaEndpoint {
	return &KafkaEndpoint{
		domain:    domain,
		brokers:   brokers,
		groupID:   groupID,
		writers:   make(map[uint32]*kafkago.Writer),
		receivers: make(map[common.Address]relay.Receiver),
		outSeq:    make(map[pathKey]uint64),
		minFee:    make(map[feeKey]*big.Int),
		logger:    log.With().Uint32("domain", domain).Str("component", "kafka-relay").Logger(),
	}
}

// Domain returns the endpoint's domain id
func (e *KafkaEndpoint) Domain() uint32 {
	return e.domain
}

// RegisterReceiver attaches an application to this endpoint
func (e *KafkaEndpoint) RegisterReceiver(r relay.Receiver) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.receivers[r.Address()] = r
}

// SetMinFee sets the forwarding-cost floor for a destination domain and
// message type
func (e *KafkaEndpoint) SetMinFee(dstDomain uint32, msgType uint8, fee *big.Int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.minFee[feeKey{dstDomain, msgType}] = new(big.Int).Set(fee)
}

func (e *KafkaEndpoint) writerFor(dstDomain uint32) *kafkago.Writer {
	e.mu.Lock()
	defer e.mu.Unlock()

	w, ok := e.writers[dstDomain]
	if !ok {
		w = &kafkago.Writer{
			Addr:         kafkago.TCP(e.brokers...),
			Topic:        TopicForDomain(dstDomain),
			Balancer:     &kafkago.LeastBytes{},
			BatchTimeout: 10 * time.Millisecond,
		}
		e.writers[dstDomain] = w
	}
	return w
}

// Send relays a payload toward a destination domain
func (e *KafkaEndpoint) Send(ctx context.Context, src common.Address, dstDomain uint32, dstAddress common.Address, msgType uint8, payload []byte, fee *big.Int) error {
	e.mu.Lock()

	if floor, ok := e.minFee[feeKey{dstDomain, msgType}]; ok {
		paid := fee
		if paid == nil {
			paid = new(big.Int)
		}
		if paid.Cmp(floor) < 0 {
			e.mu.Unlock()
			return fmt.Errorf("%w: paid %s, floor %s", relay.ErrInsufficientFee, paid, floor)
		}
	}

	key := pathKey{dstDomain, src, dstAddress}
	e.outSeq[key]++
	seq := e.outSeq[key]
	e.mu.Unlock()

	pkt := &relay.Packet{
		GUID:       uuid.NewString(),
		SrcDomain:  e.domain,
		SrcAddress: src,
		DstDomain:  dstDomain,
		DstAddress: dstAddress,
		Sequence:   seq,
		Payload:    append([]byte(nil), payload...),
	}

	value, err := json.Marshal(pkt)
	if err != nil {
		return err
	}

	// Keyed by source so Kafka preserves per-source ordering
	msg := kafkago.Message{
		Key:   []byte(fmt.Sprintf("%d:%s", e.domain, src.Hex())),
		Value: value,
	}

	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := e.writerFor(dstDomain).WriteMessages(writeCtx, msg); err != nil {
		return fmt.Errorf("failed to publish relay packet: %w", err)
	}

	e.logger.Debug().
		Str("guid", pkt.GUID).
		Uint32("dst_domain", dstDomain).
		Uint64("sequence", seq).
		Msg("Relay packet published")

	return nil
}

// Run consumes this domain's topic until the context is cancelled,
// dispatching each packet to the receiver at its destination address.
// Receiver rejections are logged and the offset committed anyway; the
// protocol layer records its own failures for retry.
func (e *KafkaEndpoint) Run(ctx context.Context) error {
	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  e.brokers,
		GroupID:  e.groupID,
		Topic:    TopicForDomain(e.domain),
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	defer reader.Close()

	e.logger.Info().Str("topic", TopicForDomain(e.domain)).Msg("Relay consumer started")

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to read relay packet: %w", err)
		}

		var pkt relay.Packet
		if err := json.Unmarshal(msg.Value, &pkt); err != nil {
			e.logger.Error().Err(err).Msg("Discarding malformed relay packet")
			continue
		}

		e.mu.Lock()
		r, ok := e.receivers[pkt.DstAddress]
		e.mu.Unlock()

		if !ok {
			e.logger.Warn().
				Str("dst", pkt.DstAddress.Hex()).
				Msg("No receiver registered for relay packet")
			continue
		}

		if err := r.Receive(ctx, &pkt); err != nil {
			e.logger.Warn().
				Str("guid", pkt.GUID).
				Uint32("src_domain", pkt.SrcDomain).
				Uint64("sequence", pkt.Sequence).
				Err(err).
				Msg("Receiver rejected packet")
		}
	}
}

// Close shuts down all producers
func (e *KafkaEndpoint) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var firstErr error
	for _, w := range e.writers {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

var _ relay.Endpoint = (*KafkaEndpoint)(nil)
