package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/z80dev/puente/pkg/core"
)

// RedisOptions represents configuration options for Redis connection
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

var defaultOptions = &RedisOptions{
	Addr:     "localhost:6379",
	Password: "",
	DB:       0,
}

// SetDefaultRedisOptions sets the default options for Redis connections
func SetDefaultRedisOptions(options *RedisOptions) {
	defaultOptions = options
}

// GetRedisClient creates a new Redis client using the default options
func GetRedisClient() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     defaultOptions.Addr,
		Password: defaultOptions.Password,
		DB:       defaultOptions.DB,
	})
}

// RedisBackend implements the BookBackend interface with Redis storage.
// All keys are namespaced under the book prefix so several books can share
// one Redis instance.
type RedisBackend struct {
	sync.RWMutex
	client   *redis.Client
	ctx      context.Context
	prefix   string
	nonceKey string
	logger   *zap.Logger
}

// NewRedisBackend creates a new instance of RedisBackend
func NewRedisBackend(client *redis.Client, prefix string, logger *zap.Logger) *RedisBackend {
	return &RedisBackend{
		client:   client,
		ctx:      context.Background(),
		prefix:   prefix,
		nonceKey: fmt.Sprintf("%s:nonce", prefix),
		logger:   logger,
	}
}

func (b *RedisBackend) orderKey(nonce uint64) string {
	return fmt.Sprintf("%s:order:%d", b.prefix, nonce)
}

func (b *RedisBackend) trustedKey(book common.Address) string {
	return fmt.Sprintf("%s:trusted:%s", b.prefix, book.Hex())
}

func (b *RedisBackend) fillKey(remote common.Address, nonce uint64) string {
	return fmt.Sprintf("%s:fill:%s:%d", b.prefix, remote.Hex(), nonce)
}

func (b *RedisBackend) signedKey(maker common.Address, nonce uint64) string {
	return fmt.Sprintf("%s:signed:%s:%d", b.prefix, maker.Hex(), nonce)
}

func (b *RedisBackend) pathKey(domain uint32) string {
	return fmt.Sprintf("%s:path:%d", b.prefix, domain)
}

func (b *RedisBackend) failedKey(srcDomain uint32, src common.Address, sequence uint64) string {
	return fmt.Sprintf("%s:failed:%d:%s:%d", b.prefix, srcDomain, src.Hex(), sequence)
}

// GetOrder retrieves an order from Redis by its nonce
func (b *RedisBackend) GetOrder(nonce uint64) *core.Order {
	b.RLock()
	defer b.RUnlock()

	data, err := b.client.Get(b.ctx, b.orderKey(nonce)).Bytes()
	if err != nil {
		if err != redis.Nil {
			b.logger.Error("failed to get order",
				zap.Uint64("nonce", nonce),
				zap.Error(err))
		}
		return nil
	}

	var order core.Order
	if err := json.Unmarshal(data, &order); err != nil {
		b.logger.Error("failed to unmarshal order",
			zap.Uint64("nonce", nonce),
			zap.Error(err))
		return nil
	}

	return &order
}

// StoreOrder stores a new order in Redis
func (b *RedisBackend) StoreOrder(order *core.Order) error {
	b.Lock()
	defer b.Unlock()

	key := b.orderKey(order.Nonce())
	exists, err := b.client.Exists(b.ctx, key).Result()
	if err != nil {
		return err
	}
	if exists > 0 {
		return fmt.Errorf("order with nonce %d already exists", order.Nonce())
	}

	data, err := json.Marshal(order)
	if err != nil {
		return err
	}

	return b.client.Set(b.ctx, key, data, 0).Err()
}

// UpdateOrder replaces a stored order, refusing to reactivate one that was
// already deactivated
func (b *RedisBackend) UpdateOrder(order *core.Order) error {
	b.Lock()
	defer b.Unlock()

	key := b.orderKey(order.Nonce())
	data, err := b.client.Get(b.ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return core.ErrNonexistentOrder
		}
		return err
	}

	var stored core.Order
	if err := json.Unmarshal(data, &stored); err != nil {
		return err
	}

	if !stored.IsActive() && order.IsActive() {
		return fmt.Errorf("%w: cannot reactivate order %d", core.ErrInvalidState, order.Nonce())
	}

	updated, err := json.Marshal(order)
	if err != nil {
		return err
	}

	return b.client.Set(b.ctx, key, updated, 0).Err()
}

// ReserveNonce atomically returns the next sequential nonce
func (b *RedisBackend) ReserveNonce() uint64 {
	val, err := b.client.Incr(b.ctx, b.nonceKey).Result()
	if err != nil {
		b.logger.Error("failed to reserve nonce", zap.Error(err))
		return 0
	}
	return uint64(val - 1)
}

// CurrentNonce returns the nonce the next order will receive
func (b *RedisBackend) CurrentNonce() uint64 {
	val, err := b.client.Get(b.ctx, b.nonceKey).Result()
	if err != nil {
		if err != redis.Nil {
			b.logger.Error("failed to read nonce counter", zap.Error(err))
		}
		return 0
	}

	n, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		b.logger.Error("corrupt nonce counter", zap.String("value", val), zap.Error(err))
		return 0
	}
	return n
}

// SetTrustedBook records the trust flag for a remote book identity
func (b *RedisBackend) SetTrustedBook(book common.Address, trusted bool) {
	value := "0"
	if trusted {
		value = "1"
	}
	if err := b.client.Set(b.ctx, b.trustedKey(book), value, 0).Err(); err != nil {
		b.logger.Error("failed to set trusted book",
			zap.String("book", book.Hex()),
			zap.Error(err))
	}
}

// IsTrustedBook reports whether a remote book is trusted
func (b *RedisBackend) IsTrustedBook(book common.Address) bool {
	val, err := b.client.Get(b.ctx, b.trustedKey(book)).Result()
	if err != nil {
		if err != redis.Nil {
			b.logger.Error("failed to read trusted book",
				zap.String("book", book.Hex()),
				zap.Error(err))
		}
		return false
	}
	return val == "1"
}

// GetFillState retrieves the remote fill session state, or nil
func (b *RedisBackend) GetFillState(remote common.Address, nonce uint64) *core.FillState {
	data, err := b.client.Get(b.ctx, b.fillKey(remote, nonce)).Bytes()
	if err != nil {
		if err != redis.Nil {
			b.logger.Error("failed to get fill state",
				zap.String("remote", remote.Hex()),
				zap.Uint64("nonce", nonce),
				zap.Error(err))
		}
		return nil
	}

	var state core.FillState
	if err := json.Unmarshal(data, &state); err != nil {
		b.logger.Error("failed to unmarshal fill state",
			zap.String("remote", remote.Hex()),
			zap.Uint64("nonce", nonce),
			zap.Error(err))
		return nil
	}

	return &state
}

// SetFillState stores the remote fill session state
func (b *RedisBackend) SetFillState(remote common.Address, nonce uint64, state *core.FillState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return b.client.Set(b.ctx, b.fillKey(remote, nonce), data, 0).Err()
}

// MarkSignedNonce consumes a (maker, nonce) pair for signed-order fills
func (b *RedisBackend) MarkSignedNonce(maker common.Address, nonce uint64) error {
	ok, err := b.client.SetNX(b.ctx, b.signedKey(maker, nonce), "1", 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return core.ErrNonceUsed
	}
	return nil
}

// IsSignedNonceUsed reports whether a (maker, nonce) pair was consumed
func (b *RedisBackend) IsSignedNonceUsed(maker common.Address, nonce uint64) bool {
	exists, err := b.client.Exists(b.ctx, b.signedKey(maker, nonce)).Result()
	if err != nil {
		b.logger.Error("failed to check signed nonce",
			zap.String("maker", maker.Hex()),
			zap.Uint64("nonce", nonce),
			zap.Error(err))
		return false
	}
	return exists > 0
}

// SetTrustedPath stores the accepted relay path for a source domain
func (b *RedisBackend) SetTrustedPath(domain uint32, path []byte) {
	if err := b.client.Set(b.ctx, b.pathKey(domain), path, 0).Err(); err != nil {
		b.logger.Error("failed to set trusted path",
			zap.Uint32("domain", domain),
			zap.Error(err))
	}
}

// GetTrustedPath returns the stored path for a source domain, or nil
func (b *RedisBackend) GetTrustedPath(domain uint32) []byte {
	data, err := b.client.Get(b.ctx, b.pathKey(domain)).Bytes()
	if err != nil {
		if err != redis.Nil {
			b.logger.Error("failed to get trusted path",
				zap.Uint32("domain", domain),
				zap.Error(err))
		}
		return nil
	}
	return data
}

// StoreFailedMessage records a failed inbound message for later retry
func (b *RedisBackend) StoreFailedMessage(msg *core.FailedMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	key := b.failedKey(msg.SrcDomain, msg.SrcAddress, msg.Sequence)
	return b.client.Set(b.ctx, key, data, 0).Err()
}

// GetFailedMessage returns the stored failure record, or nil
func (b *RedisBackend) GetFailedMessage(srcDomain uint32, src common.Address, sequence uint64) *core.FailedMessage {
	data, err := b.client.Get(b.ctx, b.failedKey(srcDomain, src, sequence)).Bytes()
	if err != nil {
		if err != redis.Nil {
			b.logger.Error("failed to get failed message",
				zap.Uint32("src_domain", srcDomain),
				zap.Uint64("sequence", sequence),
				zap.Error(err))
		}
		return nil
	}

	var msg core.FailedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		b.logger.Error("failed to unmarshal failed message",
			zap.Uint32("src_domain", srcDomain),
			zap.Uint64("sequence", sequence),
			zap.Error(err))
		return nil
	}

	return &msg
}

// DeleteFailedMessage clears a failure record after a successful retry
func (b *RedisBackend) DeleteFailedMessage(srcDomain uint32, src common.Address, sequence uint64) {
	if err := b.client.Del(b.ctx, b.failedKey(srcDomain, src, sequence)).Err(); err != nil {
		b.logger.Error("failed to delete failed message",
			zap.Uint32("src_domain", srcDomain),
			zap.Uint64("sequence", sequence),
			zap.Error(err))
	}
}

var _ core.BookBackend = (*RedisBackend)(nil)
