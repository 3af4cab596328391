// Load test driving cross-domain fills through an in-process two-domain
// topology: makers place orders on domain 2, takers on domain 1 initiate
// remote fills, and the local relay mesh carries the round trip.
package main

import (
	"context"
	"encoding/binary"
	"flag"
	"fmt"
	"log"
	"math/big"
	"os"
	"os/signal"
	"sync"
	"time"

	hdrhistogram "github.com/HdrHistogram/hdrhistogram-go"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/time/rate"

	"github.com/z80dev/puente/pkg/backend/memory"
	"github.com/z80dev/puente/pkg/core"
	"github.com/z80dev/puente/pkg/db/queue"
	"github.com/z80dev/puente/pkg/messaging"
	"github.com/z80dev/puente/pkg/relay"
	"github.com/z80dev/puente/pkg/token"
)

const (
	localDomain  = uint32(1)
	remoteDomain = uint32(2)
)

var (
	numWorkers     = flag.Int("workers", 32, "concurrent workers")
	fillsPerWorker = flag.Int("fills", 100, "remote fills per worker")
	maxRate        = flag.Int("rate", 2000, "max fills per second")
	publishEvents  = flag.Bool("publish", false, "publish fill events to Kafka through the pooled sender")
	orderAmount    = big.NewInt(100)
	desiredAmount  = big.NewInt(50)
	assetX         = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	assetY         = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	bookLAddr      = common.HexToAddress("0x0000000000000000000000000000000000000011")
	bookRAddr      = common.HexToAddress("0x0000000000000000000000000000000000000022")
	adminAddr      = common.HexToAddress("0x00000000000000000000000000000000000000ff")
)

func main() {
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	go func() {
		<-sigChan
		log.Println("Received interrupt signal, cleaning up...")
		cancel()
	}()

	ledger := token.NewMemoryLedger()
	directory := core.NewDirectory()

	epL := relay.NewLocalEndpoint(localDomain)
	epR := relay.NewLocalEndpoint(remoteDomain)
	epL.SetRemote(remoteDomain, epR)
	epR.SetRemote(localDomain, epL)

	bookL := mustBook(core.Config{
		Domain: localDomain, Address: bookLAddr, Owner: adminAddr,
		Backend: memory.NewMemoryBackend(), Tokens: ledger, Endpoint: epL, Books: directory,
	})
	bookR := mustBook(core.Config{
		Domain: remoteDomain, Address: bookRAddr, Owner: adminAddr,
		Backend: memory.NewMemoryBackend(), Tokens: ledger, Endpoint: epR, Books: directory,
	})

	epL.RegisterReceiver(bookL)
	epR.RegisterReceiver(bookR)
	directory.Register(bookL)
	directory.Register(bookR)

	must(bookL.AddTrustedBook(ctx, adminAddr, bookRAddr))
	must(bookR.AddTrustedBook(ctx, adminAddr, bookLAddr))
	must(bookL.SetTrustedPath(ctx, adminAddr, remoteDomain, bookRAddr))
	must(bookR.SetTrustedPath(ctx, adminAddr, localDomain, bookLAddr))

	total := *numWorkers * *fillsPerWorker
	fund(ledger, total)

	// Place one order per planned fill on the remote book
	nonces := make([]uint64, 0, total)
	for i := 0; i < total; i++ {
		maker := makerAddr(i)
		nonce, err := bookR.AddOrder(ctx, maker, assetX, orderAmount, assetY, desiredAmount)
		if err != nil {
			log.Fatalf("Failed to place order: %v", err)
		}
		nonces = append(nonces, nonce)
	}
	log.Printf("Placed %d orders on domain %d", total, remoteDomain)

	limiter := rate.NewLimiter(rate.Limit(*maxRate), *maxRate)
	hist := hdrhistogram.New(1, int64(10*time.Second/time.Microsecond), 3)
	var histMu sync.Mutex

	errChan := make(chan error, total)
	var wg sync.WaitGroup

	start := time.Now()
	log.Printf("Starting %d workers, %d fills per worker...", *numWorkers, *fillsPerWorker)

	for w := 0; w < *numWorkers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			taker := takerAddr(workerID)

			for j := 0; j < *fillsPerWorker; j++ {
				if err := limiter.Wait(ctx); err != nil {
					errChan <- fmt.Errorf("rate limiter error: %v", err)
					return
				}

				nonce := nonces[workerID**fillsPerWorker+j]
				fillStart := time.Now()

				if err := bookL.FillOrderOnBook(ctx, taker, bookR, nonce); err != nil {
					errChan <- fmt.Errorf("fill %d failed: %v", nonce, err)
					continue
				}

				elapsed := time.Since(fillStart).Microseconds()
				histMu.Lock()
				_ = hist.RecordValue(elapsed)
				histMu.Unlock()

				if *publishEvents {
					_ = queue.SendEvent(ctx, &messaging.BookEvent{
						Type:   messaging.EventRemoteOrderFillConfirmed,
						Book:   bookLAddr.Hex(),
						Domain: localDomain,
						Nonce:  nonce,
						Taker:  taker.Hex(),
					})
				}
			}
		}(w)
	}

	wg.Wait()
	duration := time.Since(start)
	close(errChan)

	var errs []error
	for err := range errChan {
		errs = append(errs, err)
	}

	confirmed := 0
	for _, nonce := range nonces {
		if st := bookL.FillState(bookRAddr, nonce); st != nil && st.Status == core.FillConfirmed {
			confirmed++
		}
	}

	log.Printf("Load test completed in %v", duration)
	log.Printf("Total fills attempted: %d", total)
	log.Printf("Confirmed: %d", confirmed)
	log.Printf("Errors encountered: %d", len(errs))
	log.Printf("Throughput: %.0f fills/sec", float64(total-len(errs))/duration.Seconds())
	log.Printf("Latency p50: %dus p95: %dus p99: %dus max: %dus",
		hist.ValueAtQuantile(50),
		hist.ValueAtQuantile(95),
		hist.ValueAtQuantile(99),
		hist.Max())

	if len(errs) > 0 {
		log.Printf("First error: %v", errs[0])
		os.Exit(1)
	}
}

func mustBook(cfg core.Config) *core.Book {
	book, err := core.NewBook(cfg)
	if err != nil {
		log.Fatalf("Failed to create book: %v", err)
	}
	return book
}

func must(err error) {
	if err != nil {
		log.Fatalf("Setup failed: %v", err)
	}
}

// fund credits and approves every maker and taker the test will use
func fund(ledger *token.MemoryLedger, total int) {
	for i := 0; i < total; i++ {
		maker := makerAddr(i)
		ledger.Mint(assetX, maker, orderAmount)
		ledger.Approve(assetX, maker, bookRAddr, orderAmount)
	}

	perWorker := new(big.Int).Mul(desiredAmount, big.NewInt(int64(*fillsPerWorker)))
	for w := 0; w < *numWorkers; w++ {
		taker := takerAddr(w)
		ledger.Mint(assetY, taker, perWorker)
		ledger.Approve(assetY, taker, bookLAddr, perWorker)
	}
}

func makerAddr(i int) common.Address {
	var a common.Address
	a[0] = 0x10
	binary.BigEndian.PutUint64(a[12:], uint64(i)+1)
	return a
}

func takerAddr(w int) common.Address {
	var a common.Address
	a[0] = 0x20
	binary.BigEndian.PutUint64(a[12:], uint64(w)+1)
	return a
}
