package rpc

import (
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strings"

	"shardmarket/crypto"
	"shardmarket/native/market"
	"shardmarket/observability/metrics"
)

type buyPath int

const (
	buyPathETH buyPath = iota
	buyPathMATIC
	buyPathUSD
)

func (p buyPath) String() string {
	switch p {
	case buyPathETH:
		return "eth"
	case buyPathMATIC:
		return "matic"
	case buyPathUSD:
		return "usd"
	}
	return "unknown"
}

func (s *Server) handleBuy(w http.ResponseWriter, req *RPCRequest, path buyPath) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected buy payload", nil)
		return
	}
	var payload struct {
		Buyer    string `json:"buyer"`
		Quantity string `json:"quantity"`
		Paid     string `json:"paid"`
	}
	if err := json.Unmarshal(req.Params[0], &payload); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid payload", err.Error())
		return
	}
	buyer, err := parseAddressParam(payload.Buyer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	quantity, err := parseAmountParam("quantity", payload.Quantity)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	paid, err := parseAmountParam("paid", payload.Paid)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}

	switch path {
	case buyPathETH:
		err = s.engine.BuyShardsInETH(buyer, quantity, paid)
	case buyPathMATIC:
		err = s.engine.BuyShardsInMATIC(buyer, quantity, paid)
	case buyPathUSD:
		err = s.engine.BuyShardsInUSD(buyer, quantity, paid)
	}
	if err != nil {
		s.writeBuyError(w, req, err)
		return
	}
	writeResult(w, req.ID, map[string]string{
		"buyer":    payload.Buyer,
		"paid":     paid.String(),
		"quantity": quantity.String(),
		"currency": path.String(),
	})
}

func (s *Server) writeBuyError(w http.ResponseWriter, req *RPCRequest, err error) {
	switch {
	case errors.Is(err, market.ErrInvalidQuantity),
		errors.Is(err, market.ErrInvalidAmount),
		errors.Is(err, market.ErrInsufficientReserve):
		metrics.Market().ObservePurchaseRejected("validation")
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
	case errors.Is(err, market.ErrPaymentMismatch):
		metrics.Market().ObservePurchaseRejected("payment_mismatch")
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
	case errors.Is(err, market.ErrNoFreshQuote), errors.Is(err, market.ErrNoPricePublished),
		errors.Is(err, market.ErrDivisionByZero), errors.Is(err, market.ErrInvalidPrice):
		metrics.Market().ObservePurchaseRejected("oracle")
		writeError(w, http.StatusBadGateway, req.ID, codeServerError, err.Error(), nil)
	default:
		metrics.Market().ObservePurchaseRejected("internal")
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, err.Error(), nil)
	}
}

func (s *Server) handleWithdraw(w http.ResponseWriter, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected withdraw payload", nil)
		return
	}
	var payload struct {
		Caller string `json:"caller"`
	}
	if err := json.Unmarshal(req.Params[0], &payload); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid payload", err.Error())
		return
	}
	caller, err := parseAddressParam(payload.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	amount, err := s.engine.Withdraw(caller)
	if err != nil {
		switch {
		case errors.Is(err, market.ErrUnauthorized), errors.Is(err, market.ErrOwnerNotSet):
			writeError(w, http.StatusUnauthorized, req.ID, codeUnauthorized, err.Error(), nil)
		default:
			writeError(w, http.StatusInternalServerError, req.ID, codeServerError, err.Error(), nil)
		}
		return
	}
	writeResult(w, req.ID, map[string]string{"withdrawn": amount.String()})
}

func (s *Server) handleGetReserve(w http.ResponseWriter, req *RPCRequest) {
	reserve, err := s.engine.ReserveBalance()
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, err.Error(), nil)
		return
	}
	metrics.Market().SetReserveBalance(reserve)
	writeResult(w, req.ID, map[string]string{"reserve": reserve.String()})
}

func (s *Server) handleGetTreasury(w http.ResponseWriter, req *RPCRequest) {
	balance, err := s.engine.TreasuryBalance()
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, err.Error(), nil)
		return
	}
	metrics.Market().SetTreasuryBalance(balance)
	writeResult(w, req.ID, map[string]string{"treasury": balance.String()})
}

func (s *Server) handleGetOwner(w http.ResponseWriter, req *RPCRequest) {
	owner, err := s.engine.Owner()
	if err != nil {
		if errors.Is(err, market.ErrOwnerNotSet) {
			writeError(w, http.StatusNotFound, req.ID, codeServerError, err.Error(), nil)
			return
		}
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, err.Error(), nil)
		return
	}
	writeResult(w, req.ID, map[string]string{"owner": crypto.MustNewAddress(owner[:]).String()})
}

func (s *Server) handleConvert(w http.ResponseWriter, req *RPCRequest, convert func(*big.Int) (*big.Int, error)) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected conversion payload", nil)
		return
	}
	var payload struct {
		Amount string `json:"amount"`
	}
	if err := json.Unmarshal(req.Params[0], &payload); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid payload", err.Error())
		return
	}
	amount, err := parseAmountParam("amount", payload.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	result, err := convert(amount)
	if err != nil {
		switch {
		case errors.Is(err, market.ErrInvalidAmount), errors.Is(err, market.ErrInvalidPrice),
			errors.Is(err, market.ErrDivisionByZero):
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		default:
			writeError(w, http.StatusBadGateway, req.ID, codeServerError, err.Error(), nil)
		}
		return
	}
	writeResult(w, req.ID, map[string]string{"amount": result.String()})
}

func (s *Server) handleBalanceOf(w http.ResponseWriter, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected address payload", nil)
		return
	}
	var payload struct {
		Address string `json:"address"`
	}
	if err := json.Unmarshal(req.Params[0], &payload); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid payload", err.Error())
		return
	}
	addr, err := parseAddressParam(payload.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	balance, err := s.ledger.BalanceOf(addr)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, err.Error(), nil)
		return
	}
	writeResult(w, req.ID, map[string]string{"balance": balance.String()})
}

func (s *Server) handleTotalSupply(w http.ResponseWriter, req *RPCRequest) {
	supply, err := s.ledger.TotalSupply()
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, err.Error(), nil)
		return
	}
	writeResult(w, req.ID, map[string]string{"totalSupply": supply.String()})
}

func parseAddressParam(raw string) ([20]byte, error) {
	var out [20]byte
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return out, errors.New("address required")
	}
	addr, err := crypto.DecodeAddress(trimmed)
	if err != nil {
		return out, err
	}
	return addr.Array(), nil
}

func parseAmountParam(field, raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, errors.New(field + " required")
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, errors.New("invalid " + field)
	}
	return value, nil
}
