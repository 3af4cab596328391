package server

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/z80dev/puente/pkg/core"
)

func TestCreateMemoryBook(t *testing.T) {
	m := NewBookManager(nil)
	defer m.Close()
	ctx := context.Background()

	owner := core.MustRandomAddress()
	info, err := m.CreateMemoryBook(ctx, "main", 1, common.Address{}, owner)
	if err != nil {
		t.Fatalf("CreateMemoryBook() error = %v", err)
	}

	if info.Name != "main" || info.Domain != 1 || info.Backend != "memory" {
		t.Errorf("BookInfo = %+v", info)
	}

	// A zero address is replaced with a generated identity
	if info.Address == (common.Address{}).Hex() {
		t.Error("Expected a generated book address")
	}

	book, err := m.GetBook(1)
	if err != nil {
		t.Fatalf("GetBook() error = %v", err)
	}
	if book.Owner() != owner {
		t.Errorf("Owner = %s, want %s", book.Owner().Hex(), owner.Hex())
	}
}

func TestCreateBookDuplicateDomain(t *testing.T) {
	m := NewBookManager(nil)
	defer m.Close()
	ctx := context.Background()

	if _, err := m.CreateMemoryBook(ctx, "a", 1, common.Address{}, core.MustRandomAddress()); err != nil {
		t.Fatalf("CreateMemoryBook() error = %v", err)
	}

	_, err := m.CreateMemoryBook(ctx, "b", 1, common.Address{}, core.MustRandomAddress())
	if !errors.Is(err, ErrBookExists) {
		t.Errorf("Expected ErrBookExists, got %v", err)
	}
}

func TestGetBookNotFound(t *testing.T) {
	m := NewBookManager(nil)
	defer m.Close()

	if _, err := m.GetBook(9); !errors.Is(err, ErrBookNotFound) {
		t.Errorf("Expected ErrBookNotFound, got %v", err)
	}
	if _, err := m.GetBookInfo(9); !errors.Is(err, ErrBookNotFound) {
		t.Errorf("Expected ErrBookNotFound, got %v", err)
	}
}

func TestListBooks(t *testing.T) {
	m := NewBookManager(nil)
	defer m.Close()
	ctx := context.Background()

	if len(m.ListBooks()) != 0 {
		t.Error("Expected empty list initially")
	}

	for domain := uint32(1); domain <= 3; domain++ {
		if _, err := m.CreateMemoryBook(ctx, "book", domain, common.Address{}, core.MustRandomAddress()); err != nil {
			t.Fatalf("CreateMemoryBook(%d) error = %v", domain, err)
		}
	}

	if got := len(m.ListBooks()); got != 3 {
		t.Errorf("ListBooks() = %d entries, want 3", got)
	}
}

// TestManagerRemoteFill drives a complete remote fill across two
// manager-created books over the wired endpoints
func TestManagerRemoteFill(t *testing.T) {
	m := NewBookManager(nil)
	defer m.Close()
	ctx := context.Background()

	owner := core.MustRandomAddress()

	if _, err := m.CreateMemoryBook(ctx, "local", 1, common.Address{}, owner); err != nil {
		t.Fatalf("CreateMemoryBook(1) error = %v", err)
	}
	if _, err := m.CreateMemoryBook(ctx, "remote", 2, common.Address{}, owner); err != nil {
		t.Fatalf("CreateMemoryBook(2) error = %v", err)
	}

	bookL, _ := m.GetBook(1)
	bookR, _ := m.GetBook(2)

	for _, pair := range []struct{ a, b *core.Book }{{bookL, bookR}, {bookR, bookL}} {
		if err := pair.a.AddTrustedBook(ctx, owner, pair.b.Address()); err != nil {
			t.Fatalf("AddTrustedBook() error = %v", err)
		}
		if err := pair.a.SetTrustedPath(ctx, owner, pair.b.Domain(), pair.b.Address()); err != nil {
			t.Fatalf("SetTrustedPath() error = %v", err)
		}
	}

	maker := core.MustRandomAddress()
	taker := core.MustRandomAddress()
	assetX := core.MustRandomAddress()
	assetY := core.MustRandomAddress()

	ledger := m.Ledger()
	m.Mint(assetX, maker, big.NewInt(100))
	ledger.Approve(assetX, maker, bookR.Address(), big.NewInt(100))
	m.Mint(assetY, taker, big.NewInt(50))
	ledger.Approve(assetY, taker, bookL.Address(), big.NewInt(50))

	nonce, err := bookR.AddOrder(ctx, maker, assetX, big.NewInt(100), assetY, big.NewInt(50))
	if err != nil {
		t.Fatalf("AddOrder() error = %v", err)
	}

	if err := bookL.FillOrderOnBook(ctx, taker, bookR, nonce); err != nil {
		t.Fatalf("FillOrderOnBook() error = %v", err)
	}

	if got := ledger.BalanceOf(assetX, taker).Int64(); got != 100 {
		t.Errorf("Taker assetX = %d, want 100", got)
	}
	if got := ledger.BalanceOf(assetY, maker).Int64(); got != 50 {
		t.Errorf("Maker assetY = %d, want 50", got)
	}

	st := bookL.FillState(bookR.Address(), nonce)
	if st == nil || st.Status != core.FillConfirmed {
		t.Errorf("FillState = %v, want CONFIRMED", st)
	}
}

func TestEndpointWiring(t *testing.T) {
	m := NewBookManager(nil)
	defer m.Close()
	ctx := context.Background()

	// Books created in any order end up fully meshed
	for _, domain := range []uint32{3, 1, 2} {
		if _, err := m.CreateMemoryBook(ctx, "book", domain, common.Address{}, core.MustRandomAddress()); err != nil {
			t.Fatalf("CreateMemoryBook(%d) error = %v", domain, err)
		}
	}

	for _, domain := range []uint32{1, 2, 3} {
		ep, err := m.Endpoint(domain)
		if err != nil || ep == nil {
			t.Errorf("Expected an endpoint for domain %d, got %v", domain, err)
		}
		if ep != nil && ep.Domain() != domain {
			t.Errorf("Endpoint domain = %d, want %d", ep.Domain(), domain)
		}
	}

	if _, err := m.Endpoint(99); err != ErrBookNotFound {
		t.Errorf("Endpoint(99) error = %v, want ErrBookNotFound", err)
	}
}

func TestUseKafkaRelayAfterBooksIsRejected(t *testing.T) {
	m := NewBookManager(nil)
	defer m.Close()

	if _, err := m.CreateMemoryBook(context.Background(), "book", 1, common.Address{}, core.MustRandomAddress()); err != nil {
		t.Fatalf("CreateMemoryBook() error = %v", err)
	}

	if err := m.UseKafkaRelay([]string{"localhost:9092"}, "puente"); err == nil {
		t.Error("Expected error choosing transport after book creation, got nil")
	}
}
