package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"shardmarket/crypto"
	"shardmarket/native/market"
	"shardmarket/native/token"
	"shardmarket/storage"
)

var (
	testETHPrice   = big.NewInt(162896000000)
	testMATICPrice = big.NewInt(55000000)
)

type rpcFixture struct {
	server *httptest.Server
	engine *market.Engine
	owner  crypto.Address
	buyer  crypto.Address
}

func newRPCFixture(t *testing.T) *rpcFixture {
	t.Helper()
	db := storage.NewMemDB()
	ledger := token.NewLedger(db)
	store := market.NewStore(db)

	owner := crypto.MustNewAddress([]byte{1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0})
	buyer := crypto.MustNewAddress([]byte{2, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0})
	marketAddr := [20]byte{0xAA}

	unit := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	supply := new(big.Int).Mul(big.NewInt(2000), unit)
	reserve := new(big.Int).Mul(big.NewInt(1000), unit)
	if err := ledger.InitGenesis(owner.Array(), supply); err != nil {
		t.Fatalf("genesis: %v", err)
	}
	if err := ledger.Transfer(owner.Array(), marketAddr, reserve); err != nil {
		t.Fatalf("fund reserve: %v", err)
	}

	ethFeed := market.NewManualFeed()
	maticFeed := market.NewManualFeed()
	if err := ethFeed.Set(testETHPrice, time.Now()); err != nil {
		t.Fatalf("set eth price: %v", err)
	}
	if err := maticFeed.Set(testMATICPrice, time.Now()); err != nil {
		t.Fatalf("set matic price: %v", err)
	}

	engine := market.NewEngine(marketAddr)
	engine.SetLedger(ledger)
	engine.SetState(store)
	engine.SetFeeds(ethFeed, maticFeed)
	engine.SetPayout(market.NewPayoutJournal(db))
	if err := engine.TransferOwnership(owner.Array()); err != nil {
		t.Fatalf("transfer ownership: %v", err)
	}

	server := httptest.NewServer(NewServer(engine, ledger, nil).Router())
	t.Cleanup(server.Close)
	return &rpcFixture{server: server, engine: engine, owner: owner, buyer: buyer}
}

func (f *rpcFixture) call(t *testing.T, method string, params ...interface{}) (*http.Response, RPCResponse) {
	t.Helper()
	encoded := make([]json.RawMessage, 0, len(params))
	for _, p := range params {
		raw, err := json.Marshal(p)
		if err != nil {
			t.Fatalf("marshal param: %v", err)
		}
		encoded = append(encoded, raw)
	}
	body, err := json.Marshal(RPCRequest{JSONRPC: "2.0", Method: method, Params: encoded, ID: 1})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	resp, err := http.Post(f.server.URL+"/", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	var decoded RPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, decoded
}

func resultField(t *testing.T, resp RPCResponse, key string) string {
	t.Helper()
	if resp.Error != nil {
		t.Fatalf("unexpected RPC error: %+v", resp.Error)
	}
	fields, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatalf("unexpected result shape: %T", resp.Result)
	}
	value, ok := fields[key].(string)
	if !ok {
		t.Fatalf("missing %q in result: %v", key, fields)
	}
	return value
}

func TestBuyAndQueryRoundTrip(t *testing.T) {
	f := newRPCFixture(t)
	unit := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	quantity := new(big.Int).Mul(big.NewInt(100), unit)
	required, err := market.USDToCurrency(quantity, testMATICPrice)
	if err != nil {
		t.Fatalf("required payment: %v", err)
	}

	httpResp, resp := f.call(t, "market_buyShardsInMATIC", map[string]string{
		"buyer":    f.buyer.String(),
		"quantity": quantity.String(),
		"paid":     required.String(),
	})
	if httpResp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", httpResp.StatusCode)
	}
	if got := resultField(t, resp, "currency"); got != "matic" {
		t.Fatalf("expected matic purchase, got %q", got)
	}

	_, resp = f.call(t, "market_getReserve")
	wantReserve := new(big.Int).Mul(big.NewInt(900), unit)
	if got := resultField(t, resp, "reserve"); got != wantReserve.String() {
		t.Fatalf("expected reserve %s, got %s", wantReserve, got)
	}

	_, resp = f.call(t, "market_getTreasury")
	if got := resultField(t, resp, "treasury"); got != required.String() {
		t.Fatalf("expected treasury %s, got %s", required, got)
	}

	_, resp = f.call(t, "shard_balanceOf", map[string]string{"address": f.buyer.String()})
	if got := resultField(t, resp, "balance"); got != quantity.String() {
		t.Fatalf("expected balance %s, got %s", quantity, got)
	}
}

func TestBuyRejectsPaymentMismatchOverRPC(t *testing.T) {
	f := newRPCFixture(t)
	httpResp, resp := f.call(t, "market_buyShardsInMATIC", map[string]string{
		"buyer":    f.buyer.String(),
		"quantity": "1000000000000000000",
		"paid":     "1",
	})
	if httpResp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", httpResp.StatusCode)
	}
	if resp.Error == nil || resp.Error.Code != codeInvalidParams {
		t.Fatalf("expected invalid-params error, got %+v", resp.Error)
	}
}

func TestWithdrawRequiresOwnerOverRPC(t *testing.T) {
	f := newRPCFixture(t)
	httpResp, resp := f.call(t, "market_withdraw", map[string]string{"caller": f.buyer.String()})
	if httpResp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", httpResp.StatusCode)
	}
	if resp.Error == nil || resp.Error.Code != codeUnauthorized {
		t.Fatalf("expected unauthorized error, got %+v", resp.Error)
	}

	_, resp = f.call(t, "market_withdraw", map[string]string{"caller": f.owner.String()})
	if got := resultField(t, resp, "withdrawn"); got != "0" {
		t.Fatalf("expected empty treasury withdrawal, got %s", got)
	}
}

func TestConvertEndpoints(t *testing.T) {
	f := newRPCFixture(t)
	_, resp := f.call(t, "market_convertUsdInEth", map[string]string{"amount": "2"})
	if got := resultField(t, resp, "amount"); got != "1227777232099007" {
		t.Fatalf("unexpected USD->ETH quote: %s", got)
	}

	oneEth := "1000000000000000000"
	_, resp = f.call(t, "market_convertEthInMatic", map[string]string{"amount": oneEth})
	if got := resultField(t, resp, "amount"); got != "2961745454545454545454" {
		t.Fatalf("unexpected ETH->MATIC quote: %s", got)
	}
}

func TestGetOwner(t *testing.T) {
	f := newRPCFixture(t)
	_, resp := f.call(t, "market_getOwner")
	if got := resultField(t, resp, "owner"); got != f.owner.String() {
		t.Fatalf("expected owner %s, got %s", f.owner.String(), got)
	}
}

func TestMethodNotFound(t *testing.T) {
	f := newRPCFixture(t)
	httpResp, resp := f.call(t, "market_doesNotExist")
	if httpResp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", httpResp.StatusCode)
	}
	if resp.Error == nil || resp.Error.Code != codeMethodNotFound {
		t.Fatalf("expected method-not-found error, got %+v", resp.Error)
	}
}

func TestMalformedJSONReturnsParseError(t *testing.T) {
	f := newRPCFixture(t)
	resp, err := http.Post(f.server.URL+"/", "application/json", bytes.NewReader([]byte("{not json")))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	var decoded RPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Error == nil || decoded.Error.Code != codeParseError {
		t.Fatalf("expected parse error, got %+v", decoded.Error)
	}
}

func TestHealthz(t *testing.T) {
	f := newRPCFixture(t)
	resp, err := http.Get(fmt.Sprintf("%s/healthz", f.server.URL))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}
