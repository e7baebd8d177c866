package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
)

const usage = `Usage: market-cli [-rpc <url>] <command> [args]

Commands:
  reserve                                  Shards held by the market
  treasury                                 Accrued native currency balance
  owner                                    Market owner address
  supply                                   Total shard supply
  balance <address>                        Shard balance of an address
  convert <pair> <amount>                  Pairs: eth-usd usd-eth matic-usd usd-matic eth-matic
  buy <eth|matic|usd> <buyer> <qty> <paid> Purchase shards
  withdraw <caller>                        Withdraw the treasury (owner only)
`

func main() {
	rpcURL := flag.String("rpc", "http://localhost:8645", "JSON-RPC endpoint of marketd")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	client := &client{url: *rpcURL}
	if err := client.run(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type client struct {
	url string
}

func (c *client) run(args []string) error {
	switch args[0] {
	case "reserve":
		return c.call("market_getReserve", nil)
	case "treasury":
		return c.call("market_getTreasury", nil)
	case "owner":
		return c.call("market_getOwner", nil)
	case "supply":
		return c.call("shard_totalSupply", nil)
	case "balance":
		if len(args) != 2 {
			return fmt.Errorf("usage: balance <address>")
		}
		return c.call("shard_balanceOf", []any{map[string]string{"address": args[1]}})
	case "convert":
		if len(args) != 3 {
			return fmt.Errorf("usage: convert <pair> <amount>")
		}
		method, ok := convertMethods[args[1]]
		if !ok {
			return fmt.Errorf("unknown pair %q", args[1])
		}
		return c.call(method, []any{map[string]string{"amount": args[2]}})
	case "buy":
		if len(args) != 5 {
			return fmt.Errorf("usage: buy <eth|matic|usd> <buyer> <quantity> <paid>")
		}
		method, ok := buyMethods[args[1]]
		if !ok {
			return fmt.Errorf("unknown currency %q", args[1])
		}
		return c.call(method, []any{map[string]string{
			"buyer":    args[2],
			"quantity": args[3],
			"paid":     args[4],
		}})
	case "withdraw":
		if len(args) != 2 {
			return fmt.Errorf("usage: withdraw <caller>")
		}
		return c.call("market_withdraw", []any{map[string]string{"caller": args[1]}})
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

var convertMethods = map[string]string{
	"eth-usd":   "market_convertEthInUsd",
	"usd-eth":   "market_convertUsdInEth",
	"matic-usd": "market_convertMaticInUsd",
	"usd-matic": "market_convertUsdInMatic",
	"eth-matic": "market_convertEthInMatic",
}

var buyMethods = map[string]string{
	"eth":   "market_buyShardsInETH",
	"matic": "market_buyShardsInMATIC",
	"usd":   "market_buyShardsInUSD",
}

func (c *client) call(method string, params []any) error {
	request := map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
	}
	if params != nil {
		request["params"] = params
	} else {
		request["params"] = []any{}
	}
	body, err := json.Marshal(request)
	if err != nil {
		return err
	}
	resp, err := http.Post(c.url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("call %s: %w", method, err)
	}
	defer func() { _ = resp.Body.Close() }()

	var payload struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if payload.Error != nil {
		return fmt.Errorf("%s (code %d)", payload.Error.Message, payload.Error.Code)
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, payload.Result, "", "  "); err != nil {
		return err
	}
	fmt.Println(pretty.String())
	return nil
}
