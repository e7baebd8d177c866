package rpc

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"shardmarket/native/market"
	"shardmarket/native/token"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
)

// Server exposes the market engine and the shard ledger over JSON-RPC 2.0.
type Server struct {
	engine *market.Engine
	ledger *token.Ledger
	log    *slog.Logger
}

func NewServer(engine *market.Engine, ledger *token.Ledger, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{engine: engine, ledger: ledger, log: logger}
}

// Router assembles the HTTP surface: the RPC endpoint, a liveness probe and
// the Prometheus scrape target.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/", s.handle)
	return r
}

// Start serves the router on the given address and blocks.
func (s *Server) Start(addr string) error {
	s.log.Info("starting JSON-RPC server", "addr", addr)
	return http.ListenAndServe(addr, s.Router())
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      int               `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "unable to read request body", nil)
		return
	}
	var req RPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported JSON-RPC version", nil)
		return
	}

	switch req.Method {
	case "market_buyShardsInETH":
		s.handleBuy(w, &req, buyPathETH)
	case "market_buyShardsInMATIC":
		s.handleBuy(w, &req, buyPathMATIC)
	case "market_buyShardsInUSD":
		s.handleBuy(w, &req, buyPathUSD)
	case "market_withdraw":
		s.handleWithdraw(w, &req)
	case "market_getReserve":
		s.handleGetReserve(w, &req)
	case "market_getTreasury":
		s.handleGetTreasury(w, &req)
	case "market_getOwner":
		s.handleGetOwner(w, &req)
	case "market_convertEthInUsd":
		s.handleConvert(w, &req, s.engine.ConvertETHInUSD)
	case "market_convertUsdInEth":
		s.handleConvert(w, &req, s.engine.ConvertUSDInETH)
	case "market_convertMaticInUsd":
		s.handleConvert(w, &req, s.engine.ConvertMATICInUSD)
	case "market_convertUsdInMatic":
		s.handleConvert(w, &req, s.engine.ConvertUSDInMATIC)
	case "market_convertEthInMatic":
		s.handleConvert(w, &req, s.engine.ConvertETHInMATIC)
	case "shard_balanceOf":
		s.handleBalanceOf(w, &req)
	case "shard_totalSupply":
		s.handleTotalSupply(w, &req)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method not found", req.Method)
	}
}
