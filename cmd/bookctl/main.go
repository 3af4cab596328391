// bookctl is a command-line client for the puente JSON API. Connection
// settings come from flags or PUENTE_* environment variables.
package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/z80dev/puente/pkg/core"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	viper.SetEnvPrefix("puente")
	viper.AutomaticEnv()
	viper.SetDefault("addr", "http://localhost:8080")

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	os.Args = append(os.Args[:1], os.Args[2:]...)

	c := &client{
		base: viper.GetString("addr"),
		http: &http.Client{Timeout: 10 * time.Second},
	}

	switch command {
	case "create-book":
		createBook(c)
	case "list-books":
		listBooks(c)
	case "add-order":
		addOrder(c)
	case "get-order":
		getOrder(c)
	case "cancel-order":
		cancelOrder(c)
	case "fill-order":
		fillOrder(c)
	case "remote-fill":
		remoteFill(c)
	case "fill-state":
		fillState(c)
	case "trust-book":
		trustBook(c)
	case "set-path":
		setPath(c)
	case "retry":
		retryMessage(c)
	case "mint":
		mint(c)
	case "approve":
		approve(c)
	case "balance":
		balance(c)
	case "sign-xorder":
		signXOrder()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: bookctl <command> [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  create-book   Create a book on a domain")
	fmt.Println("  list-books    List all books")
	fmt.Println("  add-order     Place an order on a book")
	fmt.Println("  get-order     Show one order")
	fmt.Println("  cancel-order  Cancel an order (maker only)")
	fmt.Println("  fill-order    Fill an order locally")
	fmt.Println("  remote-fill   Initiate a cross-domain fill")
	fmt.Println("  fill-state    Show a remote fill session")
	fmt.Println("  trust-book    Admit a remote book (owner only)")
	fmt.Println("  set-path      Configure a trusted relay path (owner only)")
	fmt.Println("  retry         Retry a failed inbound message (owner only)")
	fmt.Println("  mint          Credit the dev ledger")
	fmt.Println("  approve       Set a ledger allowance")
	fmt.Println("  balance       Show a ledger balance")
	fmt.Println("  sign-xorder   Sign a cross-domain order with a local key")
	fmt.Println()
	fmt.Println("Environment: PUENTE_ADDR, PUENTE_KEY")
}

type client struct {
	base string
	http *http.Client
}

func (c *client) post(path string, body, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	resp, err := c.http.Post(c.base+path, "application/json", bytes.NewReader(data))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return decodeResponse(resp, out)
}

func (c *client) get(path string, out interface{}) error {
	resp, err := c.http.Get(c.base + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out interface{}) error {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			return fmt.Errorf("%s (HTTP %d)", e.Error, resp.StatusCode)
		}
		return fmt.Errorf("request failed with HTTP %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func ok(msg string) {
	green := color.New(color.FgGreen).SprintFunc()
	fmt.Println(green("✓"), msg)
}

func createBook(c *client) {
	name := flag.String("name", "default", "Book name")
	domain := flag.Uint("domain", 1, "Domain id")
	address := flag.String("address", "", "Book address")
	owner := flag.String("owner", "", "Owner address")
	backendType := flag.String("backend", "memory", "Backend type (memory or redis)")
	flag.Parse()

	options := make(map[string]string)
	if *backendType == "redis" {
		options["addr"] = "localhost:6379"
		options["db"] = "0"
		options["prefix"] = *name
	}

	var out map[string]interface{}
	err := c.post("/v1/books", map[string]interface{}{
		"name":    *name,
		"domain":  *domain,
		"address": *address,
		"owner":   *owner,
		"backend": *backendType,
		"options": options,
	}, &out)
	if err != nil {
		log.Fatal().Err(err).Msg("create-book failed")
	}

	ok(fmt.Sprintf("created book %q on domain %d", *name, *domain))
}

func listBooks(c *client) {
	var books []struct {
		Name    string `json:"Name"`
		Domain  uint32 `json:"Domain"`
		Address string `json:"Address"`
		Owner   string `json:"Owner"`
		Backend string `json:"Backend"`
	}
	if err := c.get("/v1/books", &books); err != nil {
		log.Fatal().Err(err).Msg("list-books failed")
	}

	cyan := color.New(color.FgCyan).SprintfFunc()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
		cyan("Domain"), cyan("Name"), cyan("Backend"), cyan("Address"), cyan("Owner"))
	for _, b := range books {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", b.Domain, b.Name, b.Backend, b.Address, b.Owner)
	}
	w.Flush()
}

func addOrder(c *client) {
	domain := flag.Uint("domain", 1, "Domain id")
	maker := flag.String("maker", "", "Maker address")
	asset := flag.String("asset", "", "Offered asset")
	amount := flag.String("amount", "", "Offered amount (base units)")
	desired := flag.String("desired", "", "Desired asset")
	desiredAmount := flag.String("desired-amount", "", "Desired amount (base units)")
	flag.Parse()

	var out struct {
		Nonce uint64 `json:"nonce"`
	}
	err := c.post(fmt.Sprintf("/v1/books/%d/orders", *domain), map[string]string{
		"maker":         *maker,
		"asset":         *asset,
		"amount":        *amount,
		"desired":       *desired,
		"desiredAmount": *desiredAmount,
	}, &out)
	if err != nil {
		log.Fatal().Err(err).Msg("add-order failed")
	}

	ok(fmt.Sprintf("order placed with nonce %d", out.Nonce))
}

func getOrder(c *client) {
	domain := flag.Uint("domain", 1, "Domain id")
	nonce := flag.Uint64("nonce", 0, "Order nonce")
	flag.Parse()

	var order struct {
		Nonce         uint64 `json:"nonce"`
		Maker         string `json:"maker"`
		Asset         string `json:"asset"`
		Amount        string `json:"amount"`
		Desired       string `json:"desired"`
		DesiredAmount string `json:"desiredAmount"`
		Active        bool   `json:"active"`
	}
	if err := c.get(fmt.Sprintf("/v1/books/%d/orders/%d", *domain, *nonce), &order); err != nil {
		log.Fatal().Err(err).Msg("get-order failed")
	}

	status := color.New(color.FgRed).Sprint("inactive")
	if order.Active {
		status = color.New(color.FgGreen).Sprint("active")
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintf(w, "Nonce:\t%d\n", order.Nonce)
	fmt.Fprintf(w, "Maker:\t%s\n", order.Maker)
	fmt.Fprintf(w, "Offers:\t%s %s\n", order.Amount, order.Asset)
	fmt.Fprintf(w, "Wants:\t%s %s\n", order.DesiredAmount, order.Desired)
	fmt.Fprintf(w, "Status:\t%s\n", status)
	w.Flush()
}

func cancelOrder(c *client) {
	domain := flag.Uint("domain", 1, "Domain id")
	nonce := flag.Uint64("nonce", 0, "Order nonce")
	caller := flag.String("caller", "", "Caller address (must be the maker)")
	flag.Parse()

	err := c.post(fmt.Sprintf("/v1/books/%d/orders/%d/cancel", *domain, *nonce),
		map[string]string{"caller": *caller}, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("cancel-order failed")
	}

	ok(fmt.Sprintf("order %d cancelled", *nonce))
}

func fillOrder(c *client) {
	domain := flag.Uint("domain", 1, "Domain id")
	nonce := flag.Uint64("nonce", 0, "Order nonce")
	taker := flag.String("taker", "", "Taker address")
	flag.Parse()

	err := c.post(fmt.Sprintf("/v1/books/%d/orders/%d/fill", *domain, *nonce),
		map[string]string{"taker": *taker}, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("fill-order failed")
	}

	ok(fmt.Sprintf("order %d filled", *nonce))
}

func remoteFill(c *client) {
	domain := flag.Uint("domain", 1, "Local domain id")
	remoteDomain := flag.Uint("remote-domain", 2, "Domain holding the order")
	nonce := flag.Uint64("nonce", 0, "Order nonce on the remote book")
	taker := flag.String("taker", "", "Taker address")
	flag.Parse()

	err := c.post(fmt.Sprintf("/v1/books/%d/remote-fills", *domain), map[string]interface{}{
		"taker":        *taker,
		"remoteDomain": *remoteDomain,
		"nonce":        *nonce,
	}, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("remote-fill failed")
	}

	ok(fmt.Sprintf("remote fill initiated for nonce %d on domain %d", *nonce, *remoteDomain))
}

func fillState(c *client) {
	domain := flag.Uint("domain", 1, "Local domain id")
	remote := flag.String("remote", "", "Remote book address")
	nonce := flag.Uint64("nonce", 0, "Order nonce")
	flag.Parse()

	var out struct {
		Status string `json:"status"`
		Taker  string `json:"taker"`
		Asset  string `json:"asset"`
		Amount string `json:"amount"`
	}
	err := c.get(fmt.Sprintf("/v1/books/%d/remote-fills/%s/%d", *domain, *remote, *nonce), &out)
	if err != nil {
		log.Fatal().Err(err).Msg("fill-state failed")
	}

	fmt.Printf("status: %s\n", out.Status)
	if out.Taker != "" {
		fmt.Printf("taker:  %s\n", out.Taker)
		fmt.Printf("escrow: %s of %s\n", out.Amount, out.Asset)
	}
}

func trustBook(c *client) {
	domain := flag.Uint("domain", 1, "Domain id")
	caller := flag.String("caller", viper.GetString("caller"), "Caller address (must be the owner)")
	book := flag.String("book", "", "Remote book address to trust")
	flag.Parse()

	err := c.post(fmt.Sprintf("/v1/books/%d/trusted-books", *domain),
		map[string]string{"caller": *caller, "book": *book}, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("trust-book failed")
	}

	ok(fmt.Sprintf("book %s trusted on domain %d", *book, *domain))
}

func setPath(c *client) {
	domain := flag.Uint("domain", 1, "Domain id")
	caller := flag.String("caller", viper.GetString("caller"), "Caller address (must be the owner)")
	srcDomain := flag.Uint("src-domain", 2, "Source domain of the path")
	remote := flag.String("remote", "", "Remote book address on the source domain")
	flag.Parse()

	err := c.post(fmt.Sprintf("/v1/books/%d/trusted-paths", *domain), map[string]interface{}{
		"caller":    *caller,
		"srcDomain": *srcDomain,
		"remote":    *remote,
	}, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("set-path failed")
	}

	ok(fmt.Sprintf("trusted path set for domain %d", *srcDomain))
}

func retryMessage(c *client) {
	domain := flag.Uint("domain", 1, "Domain id")
	caller := flag.String("caller", viper.GetString("caller"), "Caller address (must be the owner)")
	srcDomain := flag.Uint("src-domain", 2, "Source domain of the failed message")
	srcAddress := flag.String("src-address", "", "Source book address")
	sequence := flag.Uint64("sequence", 0, "Relay sequence number")
	payload := flag.String("payload", "", "Original payload (hex)")
	flag.Parse()

	err := c.post(fmt.Sprintf("/v1/books/%d/retry", *domain), map[string]interface{}{
		"caller":     *caller,
		"srcDomain":  *srcDomain,
		"srcAddress": *srcAddress,
		"sequence":   *sequence,
		"payload":    *payload,
	}, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("retry failed")
	}

	ok(fmt.Sprintf("message %d from domain %d retried", *sequence, *srcDomain))
}

func mint(c *client) {
	asset := flag.String("asset", "", "Asset address")
	account := flag.String("account", "", "Account to credit")
	amount := flag.String("amount", "", "Amount (base units)")
	flag.Parse()

	err := c.post("/v1/ledger/mint",
		map[string]string{"asset": *asset, "account": *account, "amount": *amount}, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("mint failed")
	}

	ok(fmt.Sprintf("minted %s to %s", *amount, *account))
}

func approve(c *client) {
	asset := flag.String("asset", "", "Asset address")
	owner := flag.String("owner", "", "Allowance owner")
	spender := flag.String("spender", "", "Spender (usually a book address)")
	amount := flag.String("amount", "", "Amount (base units)")
	flag.Parse()

	err := c.post("/v1/ledger/approve", map[string]string{
		"asset": *asset, "owner": *owner, "spender": *spender, "amount": *amount,
	}, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("approve failed")
	}

	ok(fmt.Sprintf("approved %s for %s", *amount, *spender))
}

func balance(c *client) {
	asset := flag.String("asset", "", "Asset address")
	account := flag.String("account", "", "Account address")
	flag.Parse()

	var out struct {
		Balance string `json:"balance"`
	}
	err := c.get(fmt.Sprintf("/v1/ledger/balances?asset=%s&account=%s", *asset, *account), &out)
	if err != nil {
		log.Fatal().Err(err).Msg("balance failed")
	}

	fmt.Println(out.Balance)
}

// signXOrder signs a cross-domain order entirely locally. The key never
// leaves the process; only the signature is printed.
func signXOrder() {
	keyHex := flag.String("key", viper.GetString("key"), "Maker private key (hex)")
	chainID := flag.Int64("chain-id", 1, "Chain id of the target book")
	book := flag.String("book", "", "Target book address")
	maker := flag.String("maker", "", "Maker address")
	asset := flag.String("asset", "", "Offered asset")
	amount := flag.String("amount", "", "Offered amount (base units)")
	desired := flag.String("desired", "", "Desired asset")
	desiredAmount := flag.String("desired-amount", "", "Desired amount (base units)")
	nonce := flag.Uint64("nonce", 0, "Order nonce")
	srcDomain := flag.Uint("src-domain", 1, "Source domain id")
	dstDomain := flag.Uint("dst-domain", 2, "Target domain id")
	flag.Parse()

	if *keyHex == "" {
		log.Fatal().Msg("missing -key (or PUENTE_KEY)")
	}

	key, err := crypto.HexToECDSA(*keyHex)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid private key")
	}

	amt, ok1 := new(big.Int).SetString(*amount, 10)
	dAmt, ok2 := new(big.Int).SetString(*desiredAmount, 10)
	if !ok1 || !ok2 {
		log.Fatal().Msg("invalid amount")
	}

	x := &core.XOrder{
		Maker:         common.HexToAddress(*maker),
		Asset:         common.HexToAddress(*asset),
		Amount:        amt,
		Desired:       common.HexToAddress(*desired),
		DesiredAmount: dAmt,
		Nonce:         *nonce,
		SourceDomain:  uint32(*srcDomain),
		TargetDomain:  uint32(*dstDomain),
	}

	digest := core.XOrderDigestFor(big.NewInt(*chainID), common.HexToAddress(*book), x)
	sig, err := crypto.Sign(digest.Bytes(), key)
	if err != nil {
		log.Fatal().Err(err).Msg("signing failed")
	}

	fmt.Printf("digest:    0x%s\n", hex.EncodeToString(digest.Bytes()))
	fmt.Printf("signature: 0x%s\n", hex.EncodeToString(sig))
}
