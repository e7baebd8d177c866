package market

import (
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestManualFeedRoundTrip(t *testing.T) {
	feed := NewManualFeed()
	if _, err := feed.LatestPrice(); !errors.Is(err, ErrNoPricePublished) {
		t.Fatalf("expected ErrNoPricePublished, got %v", err)
	}
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := feed.Set(big.NewInt(162896000000), ts); err != nil {
		t.Fatalf("set: %v", err)
	}
	quote, err := feed.LatestQuote()
	if err != nil {
		t.Fatalf("latest quote: %v", err)
	}
	if quote.Price.Cmp(big.NewInt(162896000000)) != 0 {
		t.Fatalf("unexpected price %s", quote.Price)
	}
	if !quote.Timestamp.Equal(ts) || quote.Source != "manual" {
		t.Fatalf("unexpected quote metadata: %+v", quote)
	}
	// The returned quote must be a copy.
	quote.Price.SetInt64(1)
	again, err := feed.LatestPrice()
	if err != nil {
		t.Fatalf("latest price: %v", err)
	}
	if again.Cmp(big.NewInt(162896000000)) != 0 {
		t.Fatalf("stored quote mutated through the returned copy")
	}
}

func TestManualFeedRejectsNegativePrice(t *testing.T) {
	feed := NewManualFeed()
	if err := feed.Set(big.NewInt(-1), time.Now()); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("expected ErrInvalidPrice, got %v", err)
	}
}

func TestManualFeedSetDecimal(t *testing.T) {
	feed := NewManualFeed()
	if err := feed.SetDecimal("1628.96", time.Now()); err != nil {
		t.Fatalf("set decimal: %v", err)
	}
	price, err := feed.LatestPrice()
	if err != nil {
		t.Fatalf("latest price: %v", err)
	}
	if price.Cmp(big.NewInt(162896000000)) != 0 {
		t.Fatalf("expected 162896000000, got %s", price)
	}
	if err := feed.SetDecimal("not-a-number", time.Now()); err == nil {
		t.Fatalf("expected parse failure")
	}
}

func TestHTTPFeedRescalesDecimals(t *testing.T) {
	cases := []struct {
		name     string
		answer   string
		decimals uint8
		want     string
	}{
		{"canonical", "162896000000", 8, "162896000000"},
		{"upscale", "162896", 3, "16289600000"},
		{"downscale truncates", "1628960000009", 9, "162896000000"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				fmt.Fprintf(w, `{"answer":%s,"decimals":%d,"updatedAt":1767225600}`, tc.answer, tc.decimals)
			}))
			defer server.Close()

			feed := NewHTTPFeed(server.Client(), server.URL, "chainlink")
			quote, err := feed.LatestQuote()
			if err != nil {
				t.Fatalf("latest quote: %v", err)
			}
			want, _ := new(big.Int).SetString(tc.want, 10)
			if quote.Price.Cmp(want) != 0 {
				t.Fatalf("expected %s, got %s", want, quote.Price)
			}
			if quote.Source != "chainlink" {
				t.Fatalf("unexpected source %q", quote.Source)
			}
			if quote.Timestamp.Unix() != 1767225600 {
				t.Fatalf("unexpected timestamp %s", quote.Timestamp)
			}
		})
	}
}

func TestHTTPFeedRejectsUpstreamFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "round not available", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	feed := NewHTTPFeed(server.Client(), server.URL, "chainlink")
	if _, err := feed.LatestQuote(); err == nil {
		t.Fatalf("expected status error")
	}
}

func TestHTTPFeedRejectsMalformedAnswer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"answer":"garbage","decimals":8}`)
	}))
	defer server.Close()

	feed := NewHTTPFeed(server.Client(), server.URL, "chainlink")
	if _, err := feed.LatestQuote(); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestFeedSetFallsBackInPriorityOrder(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	primary := NewManualFeed() // never published
	secondary := NewManualFeed()
	if err := secondary.Set(big.NewInt(55000000), now); err != nil {
		t.Fatalf("set secondary: %v", err)
	}

	set := NewFeedSet([]string{"primary", "secondary"}, time.Minute)
	set.SetClock(func() time.Time { return now })
	set.Register("primary", primary)
	set.Register("secondary", secondary)

	quote, err := set.LatestQuote()
	if err != nil {
		t.Fatalf("latest quote: %v", err)
	}
	if quote.Price.Cmp(big.NewInt(55000000)) != 0 {
		t.Fatalf("expected fallback price, got %s", quote.Price)
	}
}

func TestFeedSetRejectsStaleQuotes(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	feed := NewManualFeed()
	if err := feed.Set(big.NewInt(55000000), now.Add(-2*time.Minute)); err != nil {
		t.Fatalf("set: %v", err)
	}

	set := NewFeedSet([]string{"manual"}, time.Minute)
	set.SetClock(func() time.Time { return now })
	set.Register("manual", feed)

	if _, err := set.LatestQuote(); !errors.Is(err, ErrNoFreshQuote) {
		t.Fatalf("expected ErrNoFreshQuote, got %v", err)
	}

	// Republishing within the window makes the same feed usable again.
	if err := feed.Set(big.NewInt(55000000), now.Add(-30*time.Second)); err != nil {
		t.Fatalf("set: %v", err)
	}
	price, err := set.LatestPrice()
	if err != nil {
		t.Fatalf("latest price: %v", err)
	}
	if price.Cmp(big.NewInt(55000000)) != 0 {
		t.Fatalf("unexpected price %s", price)
	}
}

func TestFeedSetZeroMaxAgeDisablesFreshness(t *testing.T) {
	feed := NewManualFeed()
	if err := feed.Set(big.NewInt(55000000), time.Time{}); err != nil {
		t.Fatalf("set: %v", err)
	}
	set := NewFeedSet([]string{"manual"}, 0)
	set.Register("manual", feed)
	if _, err := set.LatestPrice(); err != nil {
		t.Fatalf("expected quote with freshness disabled, got %v", err)
	}
}
