package server

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/z80dev/puente/pkg/core"
	"github.com/z80dev/puente/pkg/logging"
	"github.com/z80dev/puente/pkg/otel"
)

// HTTPServer exposes the book manager over a JSON API
type HTTPServer struct {
	manager *BookManager
}

// NewHTTPServer creates an HTTPServer around a manager
func NewHTTPServer(manager *BookManager) *HTTPServer {
	return &HTTPServer{manager: manager}
}

// Handler builds the route table
func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/books", s.handleCreateBook)
	mux.HandleFunc("GET /v1/books", s.handleListBooks)
	mux.HandleFunc("GET /v1/books/{domain}", s.handleGetBook)

	mux.HandleFunc("POST /v1/books/{domain}/orders", s.handleAddOrder)
	mux.HandleFunc("GET /v1/books/{domain}/orders/{nonce}", s.handleGetOrder)
	mux.HandleFunc("POST /v1/books/{domain}/orders/{nonce}/cancel", s.handleCancelOrder)
	mux.HandleFunc("POST /v1/books/{domain}/orders/{nonce}/fill", s.handleFillOrder)

	mux.HandleFunc("POST /v1/books/{domain}/remote-fills", s.handleRemoteFill)
	mux.HandleFunc("GET /v1/books/{domain}/remote-fills/{remote}/{nonce}", s.handleGetFillState)

	mux.HandleFunc("POST /v1/books/{domain}/trusted-books", s.handleAddTrustedBook)
	mux.HandleFunc("POST /v1/books/{domain}/trusted-paths", s.handleSetTrustedPath)
	mux.HandleFunc("POST /v1/books/{domain}/retry", s.handleRetryMessage)

	mux.HandleFunc("POST /v1/ledger/mint", s.handleMint)
	mux.HandleFunc("POST /v1/ledger/approve", s.handleApprove)
	mux.HandleFunc("GET /v1/ledger/balances", s.handleBalance)

	return logging.Middleware(metricsMiddleware(mux))
}

// ListenAndServe runs the API server until it fails
func (s *HTTPServer) ListenAndServe(addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		route := r.Method + " " + r.URL.Path

		m := otel.GetHTTPServerMetrics()
		m.RecordRequestStart(r.Context(), route)

		rec := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		m.RecordRequestEnd(r.Context(), route, rec.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, ErrBookNotFound), errors.Is(err, core.ErrNonexistentOrder),
		errors.Is(err, core.ErrNoFailedMessage):
		status = http.StatusNotFound
	case errors.Is(err, ErrBookExists), errors.Is(err, core.ErrInvalidState),
		errors.Is(err, core.ErrSelfFill), errors.Is(err, core.ErrNonceUsed):
		status = http.StatusConflict
	case errors.Is(err, core.ErrUnauthorized), errors.Is(err, core.ErrUntrustedBook):
		status = http.StatusForbidden
	case errors.Is(err, core.ErrInvalidAmount), errors.Is(err, core.ErrInvalidPayload),
		errors.Is(err, core.ErrSignatureInvalid), errors.Is(err, core.ErrDomainMismatch):
		status = http.StatusBadRequest
	case errors.Is(err, core.ErrTransferFailed):
		status = http.StatusUnprocessableEntity
	}

	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func pathDomain(r *http.Request) (uint32, error) {
	d, err := strconv.ParseUint(r.PathValue("domain"), 10, 32)
	return uint32(d), err
}

func pathNonce(r *http.Request) (uint64, error) {
	return strconv.ParseUint(r.PathValue("nonce"), 10, 64)
}

func parseAmount(s string) (*big.Int, bool) {
	return new(big.Int).SetString(s, 10)
}

type orderView struct {
	Nonce         uint64 `json:"nonce"`
	Maker         string `json:"maker"`
	Asset         string `json:"asset"`
	Amount        string `json:"amount"`
	Desired       string `json:"desired"`
	DesiredAmount string `json:"desiredAmount"`
	Active        bool   `json:"active"`
}

func viewOrder(o *core.Order) orderView {
	return orderView{
		Nonce:         o.Nonce(),
		Maker:         o.Maker().Hex(),
		Asset:         o.Asset().Hex(),
		Amount:        o.Amount().String(),
		Desired:       o.Desired().Hex(),
		DesiredAmount: o.DesiredAmount().String(),
		Active:        o.IsActive(),
	}
}

func (s *HTTPServer) handleCreateBook(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name    string            `json:"name"`
		Domain  uint32            `json:"domain"`
		Address string            `json:"address"`
		Owner   string            `json:"owner"`
		Backend string            `json:"backend"`
		Options map[string]string `json:"options"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	address := common.HexToAddress(req.Address)
	owner := common.HexToAddress(req.Owner)

	var (
		info *BookInfo
		err  error
	)
	switch strings.ToLower(req.Backend) {
	case "", "memory":
		info, err = s.manager.CreateMemoryBook(r.Context(), req.Name, req.Domain, address, owner)
	case "redis":
		info, err = s.manager.CreateRedisBook(r.Context(), req.Name, req.Domain, address, owner, req.Options)
	default:
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unknown backend " + req.Backend})
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, info)
}

func (s *HTTPServer) handleListBooks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.ListBooks())
}

func (s *HTTPServer) handleGetBook(w http.ResponseWriter, r *http.Request) {
	domain, err := pathDomain(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid domain"})
		return
	}

	info, err := s.manager.GetBookInfo(domain)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, info)
}

func (s *HTTPServer) handleAddOrder(w http.ResponseWriter, r *http.Request) {
	domain, err := pathDomain(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid domain"})
		return
	}

	var req struct {
		Maker         string `json:"maker"`
		Asset         string `json:"asset"`
		Amount        string `json:"amount"`
		Desired       string `json:"desired"`
		DesiredAmount string `json:"desiredAmount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	amount, ok := parseAmount(req.Amount)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid amount"})
		return
	}
	desiredAmount, ok := parseAmount(req.DesiredAmount)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid desiredAmount"})
		return
	}

	book, err := s.manager.GetBook(domain)
	if err != nil {
		writeError(w, err)
		return
	}

	nonce, err := book.AddOrder(r.Context(),
		common.HexToAddress(req.Maker),
		common.HexToAddress(req.Asset), amount,
		common.HexToAddress(req.Desired), desiredAmount)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]uint64{"nonce": nonce})
}

func (s *HTTPServer) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	domain, err := pathDomain(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid domain"})
		return
	}
	nonce, err := pathNonce(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid nonce"})
		return
	}

	book, err := s.manager.GetBook(domain)
	if err != nil {
		writeError(w, err)
		return
	}

	order, err := book.GetOrder(r.Context(), nonce)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, viewOrder(order))
}

func (s *HTTPServer) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	domain, err := pathDomain(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid domain"})
		return
	}
	nonce, err := pathNonce(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid nonce"})
		return
	}

	var req struct {
		Caller string `json:"caller"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	book, err := s.manager.GetBook(domain)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := book.CancelOrder(r.Context(), common.HexToAddress(req.Caller), nonce); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (s *HTTPServer) handleFillOrder(w http.ResponseWriter, r *http.Request) {
	domain, err := pathDomain(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid domain"})
		return
	}
	nonce, err := pathNonce(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid nonce"})
		return
	}

	var req struct {
		Taker string `json:"taker"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	book, err := s.manager.GetBook(domain)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := book.FillOrder(r.Context(), common.HexToAddress(req.Taker), nonce); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "filled"})
}

func (s *HTTPServer) handleRemoteFill(w http.ResponseWriter, r *http.Request) {
	domain, err := pathDomain(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid domain"})
		return
	}

	var req struct {
		Taker        string `json:"taker"`
		RemoteDomain uint32 `json:"remoteDomain"`
		Nonce        uint64 `json:"nonce"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	book, err := s.manager.GetBook(domain)
	if err != nil {
		writeError(w, err)
		return
	}

	remote, err := s.manager.GetBook(req.RemoteDomain)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := book.FillOrderOnBook(r.Context(), common.HexToAddress(req.Taker), remote, req.Nonce); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "initiated"})
}

func (s *HTTPServer) handleGetFillState(w http.ResponseWriter, r *http.Request) {
	domain, err := pathDomain(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid domain"})
		return
	}
	nonce, err := pathNonce(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid nonce"})
		return
	}

	book, err := s.manager.GetBook(domain)
	if err != nil {
		writeError(w, err)
		return
	}

	st := book.FillState(common.HexToAddress(r.PathValue("remote")), nonce)
	if st == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": core.FillNone.String()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": st.Status.String(),
		"taker":  st.Taker.Hex(),
		"asset":  st.Asset.Hex(),
		"amount": st.Amount.String(),
	})
}

func (s *HTTPServer) handleAddTrustedBook(w http.ResponseWriter, r *http.Request) {
	domain, err := pathDomain(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid domain"})
		return
	}

	var req struct {
		Caller string `json:"caller"`
		Book   string `json:"book"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	book, err := s.manager.GetBook(domain)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := book.AddTrustedBook(r.Context(), common.HexToAddress(req.Caller), common.HexToAddress(req.Book)); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "trusted"})
}

func (s *HTTPServer) handleSetTrustedPath(w http.ResponseWriter, r *http.Request) {
	domain, err := pathDomain(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid domain"})
		return
	}

	var req struct {
		Caller    string `json:"caller"`
		SrcDomain uint32 `json:"srcDomain"`
		Remote    string `json:"remote"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	book, err := s.manager.GetBook(domain)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := book.SetTrustedPath(r.Context(), common.HexToAddress(req.Caller), req.SrcDomain, common.HexToAddress(req.Remote)); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "set"})
}

func (s *HTTPServer) handleRetryMessage(w http.ResponseWriter, r *http.Request) {
	domain, err := pathDomain(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid domain"})
		return
	}

	var req struct {
		Caller     string `json:"caller"`
		SrcDomain  uint32 `json:"srcDomain"`
		SrcAddress string `json:"srcAddress"`
		Sequence   uint64 `json:"sequence"`
		Payload    string `json:"payload"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	payload, err := hex.DecodeString(strings.TrimPrefix(req.Payload, "0x"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid payload hex"})
		return
	}

	book, err := s.manager.GetBook(domain)
	if err != nil {
		writeError(w, err)
		return
	}

	err = book.RetryMessage(r.Context(), common.HexToAddress(req.Caller),
		req.SrcDomain, common.HexToAddress(req.SrcAddress), req.Sequence, payload)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "retried"})
}

func (s *HTTPServer) handleMint(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Asset   string `json:"asset"`
		Account string `json:"account"`
		Amount  string `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	amount, ok := parseAmount(req.Amount)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid amount"})
		return
	}

	s.manager.Mint(common.HexToAddress(req.Asset), common.HexToAddress(req.Account), amount)
	writeJSON(w, http.StatusOK, map[string]string{"status": "minted"})
}

func (s *HTTPServer) handleApprove(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Asset   string `json:"asset"`
		Owner   string `json:"owner"`
		Spender string `json:"spender"`
		Amount  string `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	amount, ok := parseAmount(req.Amount)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid amount"})
		return
	}

	s.manager.Ledger().Approve(
		common.HexToAddress(req.Asset),
		common.HexToAddress(req.Owner),
		common.HexToAddress(req.Spender),
		amount)
	writeJSON(w, http.StatusOK, map[string]string{"status": "approved"})
}

func (s *HTTPServer) handleBalance(w http.ResponseWriter, r *http.Request) {
	asset := common.HexToAddress(r.URL.Query().Get("asset"))
	account := common.HexToAddress(r.URL.Query().Get("account"))

	balance := s.manager.Ledger().BalanceOf(asset, account)
	writeJSON(w, http.StatusOK, map[string]string{
		"asset":   asset.Hex(),
		"account": account.Hex(),
		"balance": balance.String(),
	})
}
