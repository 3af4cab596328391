package server

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	redisClient "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/z80dev/puente/pkg/backend/memory"
	"github.com/z80dev/puente/pkg/backend/redis"
	"github.com/z80dev/puente/pkg/core"
	"github.com/z80dev/puente/pkg/logging"
	"github.com/z80dev/puente/pkg/messaging"
	"github.com/z80dev/puente/pkg/relay"
	relaykafka "github.com/z80dev/puente/pkg/relay/kafka"
	"github.com/z80dev/puente/pkg/token"
)

var (
	// ErrBookExists is returned when trying to create a book on a domain that already has one
	ErrBookExists = errors.New("book for this domain already exists")

	// ErrBookNotFound is returned when trying to access a non-existent book
	ErrBookNotFound = errors.New("book not found")
)

// BookInfo contains metadata about a book
type BookInfo struct {
	Name      string
	Domain    uint32
	Address   string
	Owner     string
	Backend   string
	CreatedAt time.Time
}

// kafkaRelayConfig selects Kafka topics instead of the in-process mesh as
// the transport between domains
type kafkaRelayConfig struct {
	brokers []string
	groupID string
}

// BookManager manages one book per domain. By default the domains are wired
// together through an in-process relay mesh; with UseKafkaRelay each book
// instead relays over Kafka topics shared with other processes. All domains
// settle against one shared in-memory asset ledger, which is the
// single-process stand-in for per-chain token contracts.
type BookManager struct {
	mu         sync.RWMutex
	books      map[uint32]*core.Book
	info       map[uint32]*BookInfo
	local      map[uint32]*relay.LocalEndpoint
	endpoints  map[uint32]relay.Endpoint
	redisPool  map[string]*redisClient.Client
	ledger     *token.MemoryLedger
	directory  *core.Directory
	events     messaging.EventSender
	zapLogger  *zap.Logger
	kafkaRelay *kafkaRelayConfig
	relayCtx   context.Context
	relayStop  context.CancelFunc
	relayClose []func() error
}

// NewBookManager creates a new BookManager
func NewBookManager(events messaging.EventSender) *BookManager {
	zapLogger, err := zap.NewProduction()
	if err != nil {
		zapLogger = zap.NewNop()
	}

	if events == nil {
		events = messaging.NewMockEventSender()
	}

	relayCtx, relayStop := context.WithCancel(context.Background())

	return &BookManager{
		books:     make(map[uint32]*core.Book),
		info:      make(map[uint32]*BookInfo),
		local:     make(map[uint32]*relay.LocalEndpoint),
		endpoints: make(map[uint32]relay.Endpoint),
		redisPool: make(map[string]*redisClient.Client),
		ledger:    token.NewMemoryLedger(),
		directory: core.NewDirectory(),
		events:    events,
		zapLogger: zapLogger,
		relayCtx:  relayCtx,
		relayStop: relayStop,
	}
}

// UseKafkaRelay makes books created afterwards relay over Kafka topics,
// letting domains hosted by different processes reach each other. Must be
// called before any book is created.
func (m *BookManager) UseKafkaRelay(brokers []string, groupID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.books) > 0 {
		return fmt.Errorf("relay transport must be chosen before creating books")
	}
	m.kafkaRelay = &kafkaRelayConfig{brokers: brokers, groupID: groupID}
	return nil
}

// CreateMemoryBook creates a book with an in-memory backend
func (m *BookManager) CreateMemoryBook(ctx context.Context, name string, domain uint32, address, owner common.Address) (*BookInfo, error) {
	return m.createBook(ctx, name, domain, address, owner, memory.NewMemoryBackend(), "memory")
}

// CreateRedisBook creates a book with a Redis backend
func (m *BookManager) CreateRedisBook(ctx context.Context, name string, domain uint32, address, owner common.Address, options map[string]string) (*BookInfo, error) {
	addr := "localhost:6379"
	password := ""
	dbStr := "0"
	prefix := name

	if val, ok := options["addr"]; ok && val != "" {
		addr = val
	}
	if val, ok := options["password"]; ok {
		password = val
	}
	if val, ok := options["db"]; ok && val != "" {
		dbStr = val
	}
	if val, ok := options["prefix"]; ok && val != "" {
		prefix = val
	}

	db, err := strconv.Atoi(dbStr)
	if err != nil {
		return nil, fmt.Errorf("invalid redis db %q: %v", dbStr, err)
	}

	m.mu.Lock()
	redisKey := addr + ":" + dbStr
	client, ok := m.redisPool[redisKey]
	if !ok {
		client = redisClient.NewClient(&redisClient.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		})
		m.redisPool[redisKey] = client
	}
	m.mu.Unlock()

	backend := redis.NewRedisBackend(client, prefix, m.zapLogger)
	return m.createBook(ctx, name, domain, address, owner, backend, "redis")
}

func (m *BookManager) createBook(ctx context.Context, name string, domain uint32, address, owner common.Address, backend core.BookBackend, backendName string) (*BookInfo, error) {
	logger := logging.FromContext(ctx).With().Str("book", name).Uint32("domain", domain).Logger()

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.books[domain]; exists {
		logger.Error().Msg("Book already exists")
		return nil, ErrBookExists
	}

	if address == (common.Address{}) {
		var err error
		if address, err = core.RandomAddress(); err != nil {
			return nil, err
		}
	}

	var endpoint relay.Endpoint
	var attach func(relay.Receiver)
	if m.kafkaRelay != nil {
		kep := relaykafka.NewKafkaEndpoint(domain, m.kafkaRelay.brokers, m.kafkaRelay.groupID)
		go func() {
			if err := kep.Run(m.relayCtx); err != nil {
				m.zapLogger.Error("Relay consumer stopped",
					zap.Uint32("domain", domain), zap.Error(err))
			}
		}()
		m.relayClose = append(m.relayClose, kep.Close)
		endpoint = kep
		attach = kep.RegisterReceiver
	} else {
		lep := relay.NewLocalEndpoint(domain)
		for other, ep := range m.local {
			lep.SetRemote(other, ep)
			ep.SetRemote(domain, lep)
		}
		m.local[domain] = lep
		endpoint = lep
		attach = lep.RegisterReceiver
	}

	book, err := core.NewBook(core.Config{
		Domain:   domain,
		Address:  address,
		Owner:    owner,
		Backend:  backend,
		Tokens:   m.ledger,
		Endpoint: endpoint,
		Events:   m.events,
		Books:    m.directory,
	})
	if err != nil {
		return nil, err
	}

	attach(book)
	m.directory.Register(book)

	m.books[domain] = book
	m.endpoints[domain] = endpoint

	info := &BookInfo{
		Name:      name,
		Domain:    domain,
		Address:   address.Hex(),
		Owner:     owner.Hex(),
		Backend:   backendName,
		CreatedAt: time.Now(),
	}
	m.info[domain] = info

	logger.Info().Str("backend", backendName).Msg("Created new book")
	return info, nil
}

// GetBook returns the book serving a domain
func (m *BookManager) GetBook(domain uint32) (*core.Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	book, ok := m.books[domain]
	if !ok {
		return nil, ErrBookNotFound
	}
	return book, nil
}

// GetBookInfo returns metadata for the book serving a domain
func (m *BookManager) GetBookInfo(domain uint32) (*BookInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	info, ok := m.info[domain]
	if !ok {
		return nil, ErrBookNotFound
	}
	copied := *info
	return &copied, nil
}

// ListBooks returns metadata for all books
func (m *BookManager) ListBooks() []*BookInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*BookInfo, 0, len(m.info))
	for _, info := range m.info {
		copied := *info
		out = append(out, &copied)
	}
	return out
}

// Ledger returns the shared asset ledger
func (m *BookManager) Ledger() *token.MemoryLedger {
	return m.ledger
}

// Endpoint returns the relay endpoint serving a domain
func (m *BookManager) Endpoint(domain uint32) (relay.Endpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ep, ok := m.endpoints[domain]
	if !ok {
		return nil, ErrBookNotFound
	}
	return ep, nil
}

// Mint credits an account on the shared ledger, for development topologies
func (m *BookManager) Mint(asset, account common.Address, amount *big.Int) {
	m.ledger.Mint(asset, account, amount)
}

// Close stops relay consumers and releases pooled connections
func (m *BookManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.relayStop()

	var firstErr error
	for _, closeFn := range m.relayClose {
		if err := closeFn(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	m.relayClose = nil

	for _, client := range m.redisPool {
		if err := client.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	m.redisPool = make(map[string]*redisClient.Client)
	return firstErr
}
