package main

import (
	"context"
	"fmt"
	"math/big"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	redisbackend "github.com/z80dev/puente/pkg/backend/redis"
	"github.com/z80dev/puente/pkg/core"
	"github.com/z80dev/puente/pkg/token"
)

const (
	redisAddr = "localhost:6379"
	redisDB   = 0
	prefix    = "puente"
)

// Runs one book against a live Redis instance, then reopens the backend
// to show the order ledger surviving a process restart.
func main() {
	ctx := context.Background()

	// Connect to Redis
	client := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: "", // no password set
		DB:       redisDB,
	})

	pong, err := client.Ping(ctx).Result()
	if err != nil {
		panic(fmt.Sprintf("Failed to connect to Redis: %v", err))
	}
	fmt.Printf("Redis connection established: %s\n", pong)

	// Flush the database to start fresh
	client.FlushDB(ctx)

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	ledger := token.NewMemoryLedger()
	owner := core.MustRandomAddress()
	bookAddress := core.MustRandomAddress()

	openBook := func() *core.Book {
		book, err := core.NewBook(core.Config{
			Domain:  1,
			Address: bookAddress,
			Owner:   owner,
			Backend: redisbackend.NewRedisBackend(client, prefix, logger),
			Tokens:  ledger,
		})
		if err != nil {
			panic(err)
		}
		return book
	}

	book := openBook()

	maker := core.MustRandomAddress()
	gold := core.MustRandomAddress()
	silver := core.MustRandomAddress()

	ledger.Mint(gold, maker, big.NewInt(100))
	ledger.Approve(gold, maker, book.Address(), big.NewInt(100))

	nonce, err := book.AddOrder(ctx, maker, gold, big.NewInt(100), silver, big.NewInt(50))
	if err != nil {
		panic(err)
	}
	fmt.Printf("Created offer %d: 100 gold for 50 silver\n", nonce)

	// Show what landed in Redis
	jsonData, _ := client.Get(ctx, fmt.Sprintf("%s:order:%d", prefix, nonce)).Result()
	fmt.Printf("Offer as stored in Redis: %s\n", jsonData)

	if err := book.CancelOrder(ctx, maker, nonce); err != nil {
		panic(err)
	}
	fmt.Printf("Maker cancelled offer %d\n", nonce)

	// A fresh backend over the same keys sees the same ledger
	reopened := openBook()
	order, err := reopened.GetOrder(ctx, nonce)
	if err != nil {
		panic(err)
	}

	fmt.Println("\nAfter reopening the backend:")
	fmt.Printf("- Offer %d maker: %s\n", order.Nonce(), order.Maker().Hex())
	fmt.Printf("- Offer %d active: %v\n", order.Nonce(), order.IsActive())
	fmt.Printf("- Next nonce to assign: %d\n", reopened.CurrentNonce())
}
