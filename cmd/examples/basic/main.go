package main

import (
	"context"
	"fmt"
	"math/big"

	"github.com/z80dev/puente/pkg/backend/memory"
	"github.com/z80dev/puente/pkg/core"
	"github.com/z80dev/puente/pkg/relay"
	"github.com/z80dev/puente/pkg/token"
)

// Walks one cross-domain fill end to end: a maker posts an offer on
// domain 2, a taker on domain 1 initiates the fill, and the in-process
// relay mesh carries escrow, adjudication and the confirm leg.
func main() {
	ctx := context.Background()

	ledger := token.NewMemoryLedger()
	directory := core.NewDirectory()
	owner := core.MustRandomAddress()

	epLocal := relay.NewLocalEndpoint(1)
	epRemote := relay.NewLocalEndpoint(2)
	epLocal.SetRemote(2, epRemote)
	epRemote.SetRemote(1, epLocal)

	newBook := func(domain uint32, ep *relay.LocalEndpoint) *core.Book {
		book, err := core.NewBook(core.Config{
			Domain:   domain,
			Address:  core.MustRandomAddress(),
			Owner:    owner,
			Backend:  memory.NewMemoryBackend(),
			Tokens:   ledger,
			Endpoint: ep,
			Books:    directory,
		})
		if err != nil {
			panic(err)
		}
		ep.RegisterReceiver(book)
		directory.Register(book)
		return book
	}

	local := newBook(1, epLocal)
	remote := newBook(2, epRemote)

	// Each side trusts the other's identity and relay path
	for _, pair := range []struct{ a, b *core.Book }{{local, remote}, {remote, local}} {
		if err := pair.a.AddTrustedBook(ctx, owner, pair.b.Address()); err != nil {
			panic(err)
		}
		if err := pair.a.SetTrustedPath(ctx, owner, pair.b.Domain(), pair.b.Address()); err != nil {
			panic(err)
		}
	}

	maker := core.MustRandomAddress()
	taker := core.MustRandomAddress()
	gold := core.MustRandomAddress()
	silver := core.MustRandomAddress()

	// Fund both parties and let the books pull from them
	ledger.Mint(gold, maker, big.NewInt(100))
	ledger.Approve(gold, maker, remote.Address(), big.NewInt(100))
	ledger.Mint(silver, taker, big.NewInt(50))
	ledger.Approve(silver, taker, local.Address(), big.NewInt(50))

	nonce, err := remote.AddOrder(ctx, maker, gold, big.NewInt(100), silver, big.NewInt(50))
	if err != nil {
		panic(err)
	}
	fmt.Printf("Maker posted offer %d on domain %d: 100 gold for 50 silver\n", nonce, remote.Domain())

	if err := local.FillOrderOnBook(ctx, taker, remote, nonce); err != nil {
		panic(err)
	}
	fmt.Printf("Taker on domain %d filled the offer\n", local.Domain())

	st := local.FillState(remote.Address(), nonce)
	fmt.Printf("\nFill state: %s\n", st.Status)
	fmt.Printf("Maker balances: %s gold, %s silver\n",
		ledger.BalanceOf(gold, maker), ledger.BalanceOf(silver, maker))
	fmt.Printf("Taker balances: %s gold, %s silver\n",
		ledger.BalanceOf(gold, taker), ledger.BalanceOf(silver, taker))
	fmt.Printf("Escrow residue on local book: %s silver\n",
		ledger.BalanceOf(silver, local.Address()))
}
