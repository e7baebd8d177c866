package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"shardmarket/crypto"
)

// FeedConfig describes how to resolve one currency/USD price feed. A manual
// price acts as the fallback when the HTTP endpoint is unset or failing.
type FeedConfig struct {
	Endpoint    string `toml:"Endpoint"`
	ManualPrice string `toml:"ManualPrice"`
}

type Config struct {
	ListenAddress      string     `toml:"ListenAddress"`
	DataDir            string     `toml:"DataDir"`
	Env                string     `toml:"Env"`
	LogFile            string     `toml:"LogFile"`
	OwnerAddress       string     `toml:"OwnerAddress"`
	GenesisSupply      string     `toml:"GenesisSupply"`
	MarketReserve      string     `toml:"MarketReserve"`
	MaxQuoteAgeSeconds int64      `toml:"MaxQuoteAgeSeconds"`
	ETHFeed            FeedConfig `toml:"ETHFeed"`
	MATICFeed          FeedConfig `toml:"MATICFeed"`
}

// Deploy-time defaults. Supplies are expressed in the token's smallest
// denomination; manual prices are 8dp fixed point.
const (
	defaultListenAddress   = ":8645"
	defaultDataDir         = "./market-data"
	defaultGenesisSupply   = "5000000000000000000000"
	defaultMarketReserve   = "4000000000000000000000"
	defaultETHManualPrice  = "162896000000"
	defaultMATICManual     = "55000000"
	defaultMaxQuoteAgeSecs = 120
)

// Load reads the configuration from the given path, writing a default file
// when none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = defaultListenAddress
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = defaultDataDir
	}
	if strings.TrimSpace(cfg.GenesisSupply) == "" {
		cfg.GenesisSupply = defaultGenesisSupply
	}
	if strings.TrimSpace(cfg.MarketReserve) == "" {
		cfg.MarketReserve = defaultMarketReserve
	}
	if strings.TrimSpace(cfg.ETHFeed.ManualPrice) == "" && strings.TrimSpace(cfg.ETHFeed.Endpoint) == "" {
		cfg.ETHFeed.ManualPrice = defaultETHManualPrice
	}
	if strings.TrimSpace(cfg.MATICFeed.ManualPrice) == "" && strings.TrimSpace(cfg.MATICFeed.Endpoint) == "" {
		cfg.MATICFeed.ManualPrice = defaultMATICManual
	}
	if cfg.MaxQuoteAgeSeconds <= 0 {
		cfg.MaxQuoteAgeSeconds = defaultMaxQuoteAgeSecs
	}
}

// Validate checks the parseability of every typed field.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.OwnerAddress) != "" {
		if _, err := c.Owner(); err != nil {
			return err
		}
	}
	supply, err := c.Supply()
	if err != nil {
		return err
	}
	reserve, err := c.Reserve()
	if err != nil {
		return err
	}
	if reserve.Cmp(supply) > 0 {
		return fmt.Errorf("config: market reserve %s exceeds genesis supply %s", reserve, supply)
	}
	return nil
}

// Owner parses the configured owner address.
func (c *Config) Owner() (crypto.Address, error) {
	trimmed := strings.TrimSpace(c.OwnerAddress)
	if trimmed == "" {
		return crypto.Address{}, fmt.Errorf("config: OwnerAddress required")
	}
	addr, err := crypto.DecodeAddress(trimmed)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("config: invalid OwnerAddress: %w", err)
	}
	return addr, nil
}

// Supply parses the genesis supply.
func (c *Config) Supply() (*big.Int, error) {
	return parseAmount("GenesisSupply", c.GenesisSupply)
}

// Reserve parses the portion of the supply funded to the market at deploy.
func (c *Config) Reserve() (*big.Int, error) {
	return parseAmount("MarketReserve", c.MarketReserve)
}

// MaxQuoteAge returns the feed freshness window as a duration.
func (c *Config) MaxQuoteAge() time.Duration {
	if c.MaxQuoteAgeSeconds <= 0 {
		return 0
	}
	return time.Duration(c.MaxQuoteAgeSeconds) * time.Second
}

func parseAmount(field, raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("config: %s required", field)
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || value.Sign() < 0 {
		return nil, fmt.Errorf("config: invalid %s %q", field, raw)
	}
	return value, nil
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	applyDefaults(cfg)

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("config: create directory: %w", err)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("config: write default: %w", err)
	}
	defer func() { _ = file.Close() }()
	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return nil, fmt.Errorf("config: encode default: %w", err)
	}
	return cfg, nil
}
