// Package marketdata fetches quote and profile data from Finnhub and
// assembles it into a valuemodel.MarketSnapshot, per §4.B. It caches
// per-symbol results for a configurable TTL and coalesces concurrent
// fetches for the same symbol via singleflight, bounding outstanding HTTP
// requests with a buffered-channel semaphore.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/samay58/handspread/internal/valuemodel"
)

const defaultBaseURL = "https://finnhub.io/api/v1"

// DefaultTTL and DefaultConcurrency match §6's documented defaults.
const (
	DefaultTTL         = 300 * time.Second
	DefaultConcurrency = 8
)

type cacheEntry struct {
	snapshot valuemodel.MarketSnapshot
	expires  time.Time
}

// Client is a concurrency-bounded, TTL-caching Finnhub client satisfying whatever
// MarketSource interface the engine declares (Fetch(ctx, symbol) returning a
// MarketSnapshot).
type Client struct {
	http    *http.Client
	baseURL string
	apiKey  string
	ttl     time.Duration
	sem     chan struct{}
	group   singleflight.Group
	mu      sync.RWMutex
	entries map[string]cacheEntry
}

// NewClient builds a Finnhub-backed market data client. ttl == 0 disables
// cache reuse entirely (every call refetches); concurrency <= 0 falls back
// to DefaultConcurrency.
func NewClient(apiKey string, ttl time.Duration, concurrency int) *Client {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Client{
		http:    &http.Client{Timeout: 15 * time.Second},
		baseURL: defaultBaseURL,
		apiKey:  apiKey,
		ttl:     ttl,
		sem:     make(chan struct{}, concurrency),
		entries: make(map[string]cacheEntry),
	}
}

// Fetch returns the current MarketSnapshot for symbol, serving from cache
// when fresh and coalescing concurrent requests for the same symbol.
func (c *Client) Fetch(ctx context.Context, symbol string) (valuemodel.MarketSnapshot, error) {
	key := strings.ToUpper(symbol)

	if snap, ok := c.cached(key); ok {
		return snap, nil
	}

	result, err, _ := c.group.Do(key, func() (interface{}, error) {
		if snap, ok := c.cached(key); ok {
			return snap, nil
		}
		snap, err := c.fetchLive(ctx, key)
		if err != nil {
			return valuemodel.MarketSnapshot{}, err
		}
		c.store(key, snap)
		return snap, nil
	})
	if err != nil {
		return valuemodel.MarketSnapshot{}, err
	}
	return result.(valuemodel.MarketSnapshot), nil
}

func (c *Client) cached(key string) (valuemodel.MarketSnapshot, bool) {
	if c.ttl <= 0 {
		return valuemodel.MarketSnapshot{}, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[key]
	if !ok || time.Now().After(entry.expires) {
		return valuemodel.MarketSnapshot{}, false
	}
	return entry.snapshot, true
}

func (c *Client) store(key string, snap valuemodel.MarketSnapshot) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{snapshot: snap, expires: time.Now().Add(c.ttl)}
}

type quoteResponse struct {
	Current float64 `json:"c"`
}

type profileResponse struct {
	Name                 string  `json:"name"`
	Currency             string  `json:"currency"`
	MarketCapitalization float64 `json:"marketCapitalization"` // millions
	ShareOutstanding     float64 `json:"shareOutstanding"`     // millions
}

func (c *Client) fetchLive(ctx context.Context, symbol string) (valuemodel.MarketSnapshot, error) {
	select {
	case c.sem <- struct{}{}:
		defer func() { <-c.sem }()
	case <-ctx.Done():
		return valuemodel.MarketSnapshot{}, ctx.Err()
	}

	quote, err := c.getQuote(ctx, symbol)
	if err != nil {
		return valuemodel.MarketSnapshot{}, fmt.Errorf("finnhub quote %s: %w", symbol, err)
	}
	profile, err := c.getProfile(ctx, symbol)
	if err != nil {
		return valuemodel.MarketSnapshot{}, fmt.Errorf("finnhub profile2 %s: %w", symbol, err)
	}

	fetchedAt := time.Now()
	snapshot := valuemodel.MarketSnapshot{
		CompanyName: profile.Name,
		FetchedAt:   fetchedAt,
	}

	var priceVal *float64
	var priceWarnings []string
	if p := quote.Current; !isFinitePositive(p) {
		priceWarnings = append(priceWarnings, "invalid quote price")
	} else {
		priceVal = &p
	}
	snapshot.Price = valuemodel.NewMarketValue(priceVal, "USD", "finnhub", "quote", fetchedAt, priceWarnings...)

	var sharesVal *float64
	if s := profile.ShareOutstanding * 1e6; s > 0 {
		sharesVal = &s
	}
	snapshot.SharesOutstanding = valuemodel.NewMarketValue(sharesVal, "shares", "finnhub", "profile2", fetchedAt)

	// ADR-safety: a vendor-reported market cap is preferred over price *
	// shares, since depositary-receipt share counts and local-market
	// prices can disagree with the vendor's own cap computation.
	if mc := profile.MarketCapitalization * 1e6; mc > 0 {
		v := mc
		snapshot.MarketCap = valuemodel.NewMarketValue(&v, "USD", "finnhub", "profile2", fetchedAt)
	} else if priceVal != nil && sharesVal != nil {
		v := *priceVal * *sharesVal
		snapshot.MarketCap = valuemodel.NewComputedValue(
			"price * shares_outstanding",
			map[string]valuemodel.AnyValue{"price": snapshot.Price, "shares_outstanding": snapshot.SharesOutstanding},
			[]string{"price", "shares_outstanding"},
			&v, "USD",
		)
	} else {
		snapshot.MarketCap = valuemodel.NewComputedValue("price * shares_outstanding", nil, nil, nil, "USD")
	}

	return snapshot, nil
}

func (c *Client) getQuote(ctx context.Context, symbol string) (quoteResponse, error) {
	var out quoteResponse
	err := c.getJSON(ctx, "/quote", symbol, &out)
	return out, err
}

func (c *Client) getProfile(ctx context.Context, symbol string) (profileResponse, error) {
	var out profileResponse
	err := c.getJSON(ctx, "/stock/profile2", symbol, &out)
	return out, err
}

func (c *Client) getJSON(ctx context.Context, path, symbol string, out interface{}) error {
	url := fmt.Sprintf("%s%s?symbol=%s&token=%s", c.baseURL, path, symbol, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
	return json.Unmarshal(body, out)
}

func isFinitePositive(v float64) bool {
	return v > 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}
