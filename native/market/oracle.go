package market

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"
)

// PriceFeed resolves the latest published quote for one currency/USD pair as
// an 8dp fixed-point integer. Adapters perform no staleness or bounds
// validation of their own: a stale or malformed upstream value propagates
// as-is. That trust boundary is deliberate.
type PriceFeed interface {
	LatestPrice() (*big.Int, error)
}

// Quote pairs a price with the timestamp reported by the upstream feed and
// the feed identifier that produced it.
type Quote struct {
	Price     *big.Int
	Timestamp time.Time
	Source    string
}

// Clone returns a deep copy so callers cannot mutate shared state.
func (q Quote) Clone() Quote {
	clone := Quote{Timestamp: q.Timestamp, Source: q.Source}
	if q.Price != nil {
		clone.Price = new(big.Int).Set(q.Price)
	}
	return clone
}

// QuoteFeed extends PriceFeed with the upstream timestamp, which FeedSet uses
// when a freshness window is configured.
type QuoteFeed interface {
	PriceFeed
	LatestQuote() (Quote, error)
}

// ErrNoFreshQuote indicates that no registered feed produced a quote within
// the configured freshness window.
var ErrNoFreshQuote = errors.New("market: no fresh oracle quote available")

// ErrNoPricePublished indicates a manual feed that has never been set.
var ErrNoPricePublished = errors.New("market: no price published")

// --- Manual feed ---

// ManualFeed is an in-memory feed used by tests and for manual overrides
// during incident response.
type ManualFeed struct {
	mu    sync.RWMutex
	quote Quote
	set   bool
}

// NewManualFeed constructs an empty manual feed.
func NewManualFeed() *ManualFeed {
	return &ManualFeed{}
}

// Set stores the supplied 8dp price with the given timestamp.
func (m *ManualFeed) Set(price *big.Int, ts time.Time) error {
	if m == nil {
		return fmt.Errorf("market: manual feed not configured")
	}
	if price == nil || price.Sign() < 0 {
		return ErrInvalidPrice
	}
	m.mu.Lock()
	m.quote = Quote{Price: new(big.Int).Set(price), Timestamp: ts, Source: "manual"}
	m.set = true
	m.mu.Unlock()
	return nil
}

// SetDecimal parses and stores a decimal price string, scaling it to 8dp.
func (m *ManualFeed) SetDecimal(price string, ts time.Time) error {
	trimmed := strings.TrimSpace(price)
	if trimmed == "" {
		return ErrInvalidPrice
	}
	rat, ok := new(big.Rat).SetString(trimmed)
	if !ok || rat.Sign() < 0 {
		return fmt.Errorf("market: invalid price %q", price)
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(PriceDecimals), nil)
	scaled := new(big.Rat).Mul(rat, new(big.Rat).SetInt(scale))
	value := new(big.Int).Quo(scaled.Num(), scaled.Denom())
	return m.Set(value, ts)
}

// LatestQuote returns the stored quote.
func (m *ManualFeed) LatestQuote() (Quote, error) {
	if m == nil {
		return Quote{}, fmt.Errorf("market: manual feed not configured")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.set {
		return Quote{}, ErrNoPricePublished
	}
	return m.quote.Clone(), nil
}

// LatestPrice implements PriceFeed.
func (m *ManualFeed) LatestPrice() (*big.Int, error) {
	quote, err := m.LatestQuote()
	if err != nil {
		return nil, err
	}
	return quote.Price, nil
}

// --- HTTP feed ---

// HTTPDoer abstracts http.Client for ease of testing.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPFeed adapts a REST aggregator endpoint that reports its latest round in
// the {answer, decimals, updatedAt} shape. The reported decimals are rescaled
// to the 8dp convention, truncating when the upstream carries more precision.
type HTTPFeed struct {
	client   HTTPDoer
	endpoint string
	name     string
}

// NewHTTPFeed constructs an adapter for the given endpoint. When client is
// nil http.DefaultClient is used.
func NewHTTPFeed(client HTTPDoer, endpoint, name string) *HTTPFeed {
	if client == nil {
		client = http.DefaultClient
	}
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		trimmed = "http"
	}
	return &HTTPFeed{client: client, endpoint: strings.TrimSpace(endpoint), name: trimmed}
}

// LatestQuote fetches and normalises the most recent round.
func (f *HTTPFeed) LatestQuote() (Quote, error) {
	if f == nil || f.endpoint == "" {
		return Quote{}, fmt.Errorf("market: http feed not configured")
	}
	req, err := http.NewRequest(http.MethodGet, f.endpoint, nil)
	if err != nil {
		return Quote{}, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return Quote{}, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Quote{}, fmt.Errorf("market: feed %s: status %d: %s", f.name, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var payload struct {
		Answer    json.Number `json:"answer"`
		Decimals  uint8       `json:"decimals"`
		UpdatedAt int64       `json:"updatedAt"`
	}
	decoder := json.NewDecoder(resp.Body)
	decoder.UseNumber()
	if err := decoder.Decode(&payload); err != nil {
		return Quote{}, fmt.Errorf("market: feed %s: decode: %w", f.name, err)
	}
	answer, ok := new(big.Int).SetString(payload.Answer.String(), 10)
	if !ok {
		return Quote{}, fmt.Errorf("market: feed %s: invalid answer %q", f.name, payload.Answer.String())
	}
	price, err := rescalePrice(answer, payload.Decimals)
	if err != nil {
		return Quote{}, fmt.Errorf("market: feed %s: %w", f.name, err)
	}
	ts := time.Time{}
	if payload.UpdatedAt > 0 {
		ts = time.Unix(payload.UpdatedAt, 0).UTC()
	}
	return Quote{Price: price, Timestamp: ts, Source: f.name}, nil
}

// LatestPrice implements PriceFeed.
func (f *HTTPFeed) LatestPrice() (*big.Int, error) {
	quote, err := f.LatestQuote()
	if err != nil {
		return nil, err
	}
	return quote.Price, nil
}

func rescalePrice(answer *big.Int, decimals uint8) (*big.Int, error) {
	if answer == nil || answer.Sign() < 0 {
		return nil, ErrInvalidPrice
	}
	diff := int64(decimals) - PriceDecimals
	if diff == 0 {
		return new(big.Int).Set(answer), nil
	}
	factor := new(big.Int).Exp(big.NewInt(10), big.NewInt(abs64(diff)), nil)
	if diff > 0 {
		return new(big.Int).Quo(answer, factor), nil
	}
	return new(big.Int).Mul(answer, factor), nil
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// --- Feed set ---

// FeedSet consults registered feeds in priority order until one yields a
// usable quote, optionally enforcing a freshness window against the upstream
// timestamp. It implements PriceFeed so the engine can consume it directly.
type FeedSet struct {
	mu       sync.RWMutex
	priority []string
	feeds    map[string]QuoteFeed
	maxAge   time.Duration
	now      func() time.Time
}

// NewFeedSet constructs a set with the given priority ordering and freshness
// window. A zero maxAge disables the freshness check.
func NewFeedSet(priority []string, maxAge time.Duration) *FeedSet {
	return &FeedSet{
		priority: append([]string{}, priority...),
		feeds:    make(map[string]QuoteFeed),
		maxAge:   maxAge,
		now:      time.Now,
	}
}

// SetClock overrides the clock used for freshness checks, for deterministic
// tests.
func (s *FeedSet) SetClock(now func() time.Time) {
	if s == nil || now == nil {
		return
	}
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// Register adds or replaces a feed under the supplied identifier. Unknown
// identifiers are appended to the priority list.
func (s *FeedSet) Register(name string, feed QuoteFeed) {
	if s == nil || feed == nil {
		return
	}
	trimmed := strings.ToLower(strings.TrimSpace(name))
	if trimmed == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feeds[trimmed] = feed
	for _, entry := range s.priority {
		if entry == trimmed {
			return
		}
	}
	s.priority = append(s.priority, trimmed)
}

// LatestQuote walks the priority list and returns the first fresh, usable
// quote.
func (s *FeedSet) LatestQuote() (Quote, error) {
	if s == nil {
		return Quote{}, fmt.Errorf("market: feed set not configured")
	}
	s.mu.RLock()
	priority := append([]string{}, s.priority...)
	maxAge := s.maxAge
	nowFn := s.now
	s.mu.RUnlock()

	cutoff := time.Time{}
	if maxAge > 0 {
		cutoff = nowFn().Add(-maxAge)
	}
	var lastErr error
	for _, name := range priority {
		s.mu.RLock()
		feed := s.feeds[name]
		s.mu.RUnlock()
		if feed == nil {
			continue
		}
		quote, err := feed.LatestQuote()
		if err != nil {
			lastErr = err
			continue
		}
		if quote.Price == nil || quote.Price.Sign() < 0 {
			lastErr = fmt.Errorf("market: feed %s returned invalid price", name)
			continue
		}
		if maxAge > 0 && quote.Timestamp.Before(cutoff) {
			lastErr = ErrNoFreshQuote
			continue
		}
		result := quote.Clone()
		if strings.TrimSpace(result.Source) == "" {
			result.Source = name
		}
		return result, nil
	}
	if lastErr == nil {
		lastErr = ErrNoFreshQuote
	}
	return Quote{}, lastErr
}

// LatestPrice implements PriceFeed.
func (s *FeedSet) LatestPrice() (*big.Int, error) {
	quote, err := s.LatestQuote()
	if err != nil {
		return nil, err
	}
	return quote.Price, nil
}
