package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"strings"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"shardmarket/config"
	"shardmarket/core/events"
	"shardmarket/native/market"
	"shardmarket/native/token"
	"shardmarket/observability/logging"
	"shardmarket/observability/metrics"
	"shardmarket/rpc"
	"shardmarket/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	memory := flag.Bool("memory", false, "DEV ONLY: run against an in-memory store instead of LevelDB")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.SetupWithOptions("marketd", cfg.Env, logging.Options{FilePath: cfg.LogFile})

	var db storage.Database
	if *memory {
		db = storage.NewMemDB()
	} else {
		ldb, err := storage.NewLevelDB(cfg.DataDir)
		if err != nil {
			logger.Error("open database", "path", cfg.DataDir, "err", err)
			os.Exit(1)
		}
		db = ldb
	}
	defer db.Close()

	engine, ledger, err := bootstrap(cfg, db, logger)
	if err != nil {
		logger.Error("bootstrap market", "err", err)
		os.Exit(1)
	}

	server := rpc.NewServer(engine, ledger, logger)
	if err := server.Start(cfg.ListenAddress); err != nil {
		logger.Error("rpc server stopped", "err", err)
		os.Exit(1)
	}
}

// marketAddress is the ledger identity that custodies the sale reserve. It is
// fixed per deployment, derived from a domain tag rather than a key pair
// because nothing ever signs for it.
func marketAddress() [20]byte {
	var addr [20]byte
	digest := ethcrypto.Keccak256([]byte("shardmarket/market/v1"))
	copy(addr[:], digest[len(digest)-20:])
	return addr
}

// bootstrap replays the deployment flow against the store: mint the fixed
// supply to the owner, fund the market reserve, assign ownership. Each step
// is idempotent so restarts reuse the persisted state.
func bootstrap(cfg *config.Config, db storage.Database, logger *slog.Logger) (*market.Engine, *token.Ledger, error) {
	ownerAddr, err := cfg.Owner()
	if err != nil {
		return nil, nil, err
	}
	owner := ownerAddr.Array()
	marketAddr := marketAddress()

	ledger := token.NewLedger(db)
	initialised, err := ledger.Initialised()
	if err != nil {
		return nil, nil, err
	}
	if !initialised {
		supply, err := cfg.Supply()
		if err != nil {
			return nil, nil, err
		}
		reserve, err := cfg.Reserve()
		if err != nil {
			return nil, nil, err
		}
		if err := ledger.InitGenesis(owner, supply); err != nil {
			return nil, nil, err
		}
		if err := ledger.Transfer(owner, marketAddr, reserve); err != nil {
			return nil, nil, err
		}
		logger.Info("genesis complete", "supply", supply.String(), "reserve", reserve.String())
	}

	engine := market.NewEngine(marketAddr)
	engine.SetLedger(ledger)
	engine.SetState(market.NewStore(db))
	engine.SetPayout(market.NewPayoutJournal(db))
	engine.SetEmitter(&logEmitter{log: logger})

	ethFeed, err := buildFeed("eth", cfg.ETHFeed, cfg.MaxQuoteAge())
	if err != nil {
		return nil, nil, err
	}
	maticFeed, err := buildFeed("matic", cfg.MATICFeed, cfg.MaxQuoteAge())
	if err != nil {
		return nil, nil, err
	}
	engine.SetFeeds(ethFeed, maticFeed)

	if err := engine.TransferOwnership(owner); err != nil && !errors.Is(err, market.ErrOwnerAlreadySet) {
		return nil, nil, err
	}
	logger.Info("market ready", "owner", ownerAddr.String())
	return engine, ledger, nil
}

// buildFeed assembles the feed set for one currency: the HTTP endpoint first
// when configured, then the manual override price.
func buildFeed(name string, cfg config.FeedConfig, maxAge time.Duration) (market.PriceFeed, error) {
	set := market.NewFeedSet(nil, maxAge)
	if endpoint := strings.TrimSpace(cfg.Endpoint); endpoint != "" {
		set.Register(name, &meteredFeed{name: name, inner: market.NewHTTPFeed(nil, endpoint, name)})
	}
	if manual := strings.TrimSpace(cfg.ManualPrice); manual != "" {
		feed := market.NewManualFeed()
		if err := feed.SetDecimal(manual, time.Now()); err != nil {
			return nil, fmt.Errorf("feed %s: %w", name, err)
		}
		// Manual overrides never go stale; republish on each read window is
		// not required for a static configuration price.
		set.Register("manual-"+name, &pinnedFeed{inner: feed})
	}
	return set, nil
}

// meteredFeed counts upstream read failures per feed.
type meteredFeed struct {
	name  string
	inner market.QuoteFeed
}

func (m *meteredFeed) LatestQuote() (market.Quote, error) {
	quote, err := m.inner.LatestQuote()
	if err != nil {
		metrics.Market().ObserveOracleReadFailure(m.name)
	}
	return quote, err
}

func (m *meteredFeed) LatestPrice() (*big.Int, error) {
	quote, err := m.LatestQuote()
	if err != nil {
		return nil, err
	}
	return quote.Price, nil
}

// pinnedFeed stamps the manual quote with the current time so a configured
// override survives the freshness window.
type pinnedFeed struct {
	inner *market.ManualFeed
}

func (p *pinnedFeed) LatestQuote() (market.Quote, error) {
	quote, err := p.inner.LatestQuote()
	if err != nil {
		return market.Quote{}, err
	}
	quote.Timestamp = time.Now()
	return quote, nil
}

func (p *pinnedFeed) LatestPrice() (*big.Int, error) {
	quote, err := p.LatestQuote()
	if err != nil {
		return nil, err
	}
	return quote.Price, nil
}

// logEmitter surfaces engine events through the structured logger and keeps
// the Prometheus gauges in step.
type logEmitter struct {
	log *slog.Logger
}

func (l *logEmitter) Emit(event events.Event) {
	if l == nil || l.log == nil || event == nil {
		return
	}
	l.log.Info("market event", "type", event.EventType())
	switch event.EventType() {
	case events.TypeShardsPurchasedETH:
		metrics.Market().ObservePurchase("eth")
	case events.TypeShardsPurchasedMATIC:
		metrics.Market().ObservePurchase("matic")
	case events.TypeShardsPurchasedUSD:
		metrics.Market().ObservePurchase("usd")
	case events.TypeTreasuryWithdrawn:
		metrics.Market().ObserveWithdrawal()
	}
}
