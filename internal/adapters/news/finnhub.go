package news

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"sentinel/internal/adapters/config"
	"sentinel/internal/metrics"
	"sentinel/pkg/errors"
	"sentinel/pkg/logger"
)

// Finnhub implements Source against the Finnhub company-news endpoint.
// Responses are cached for a short TTL so repeated events for a hot
// symbol within one window do not burn API quota.
type Finnhub struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	cacheTTL   time.Duration
	log        *logger.Logger

	mu    sync.Mutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	items     []Item
	fetchedAt time.Time
}

// NewFinnhub creates a Finnhub news source
func NewFinnhub(cfg config.NewsConfig) *Finnhub {
	rps := float64(cfg.RequestsPerMinute) / 60.0
	burst := cfg.RequestsPerMinute / 10
	if burst < 1 {
		burst = 1
	}

	return &Finnhub{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter:  rate.NewLimiter(rate.Limit(rps), burst),
		cacheTTL: cfg.CacheTTL,
		cache:    make(map[string]cacheEntry),
		log:      logger.Get().With("component", "news_source"),
	}
}

// finnhubArticle mirrors the company-news payload
type finnhubArticle struct {
	Headline string `json:"headline"`
	Source   string `json:"source"`
	Summary  string `json:"summary"`
	Datetime int64  `json:"datetime"` // unix seconds
}

// GetNews fetches recent company news for a symbol
func (f *Finnhub) GetNews(ctx context.Context, symbol string, since time.Time) ([]Item, error) {
	if items, ok := f.cached(symbol); ok {
		f.log.Debugf("News cache hit for %s", symbol)
		metrics.NewsCacheHits.Inc()
		return filterSince(items, since), nil
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, "rate limiter")
	}

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("from", since.Format("2006-01-02"))
	params.Set("to", time.Now().UTC().Format("2006-01-02"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"/company-news?"+params.Encode(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("X-Finnhub-Token", f.apiKey)
	req.Header.Set("User-Agent", "sentinel/1.0")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrSourceUnavailable, "news request: %v", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, errors.Wrapf(errors.ErrRateLimited, "status %d", resp.StatusCode)
	case resp.StatusCode >= 500:
		return nil, errors.Wrapf(errors.ErrSourceUnavailable, "status %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, errors.Wrapf(errors.ErrPermanentUpstream, "status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrSourceUnavailable, "read body: %v", err)
	}

	var articles []finnhubArticle
	if err := json.Unmarshal(body, &articles); err != nil {
		return nil, errors.Wrapf(errors.ErrPermanentUpstream, "decode: %v", err)
	}

	items := make([]Item, 0, len(articles))
	for _, a := range articles {
		if a.Headline == "" {
			continue
		}
		items = append(items, Item{
			Headline:    a.Headline,
			Source:      a.Source,
			Summary:     a.Summary,
			PublishedAt: time.Unix(a.Datetime, 0).UTC(),
		})
	}

	metrics.NewsAPICalls.Inc()
	f.store(symbol, items)
	return filterSince(items, since), nil
}

// cached returns a fresh cache entry for the symbol, if any
func (f *Finnhub) cached(symbol string) ([]Item, bool) {
	if f.cacheTTL <= 0 {
		return nil, false
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	entry, ok := f.cache[symbol]
	if !ok || time.Since(entry.fetchedAt) > f.cacheTTL {
		return nil, false
	}
	return entry.items, true
}

func (f *Finnhub) store(symbol string, items []Item) {
	if f.cacheTTL <= 0 {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	// Drop stale entries while we hold the lock to bound memory
	for key, entry := range f.cache {
		if time.Since(entry.fetchedAt) > f.cacheTTL {
			delete(f.cache, key)
		}
	}
	f.cache[symbol] = cacheEntry{items: items, fetchedAt: time.Now()}
}

func filterSince(items []Item, since time.Time) []Item {
	out := make([]Item, 0, len(items))
	for _, item := range items {
		if item.PublishedAt.After(since) {
			out = append(out, item)
		}
	}
	return out
}

// String identifies the source in logs
func (f *Finnhub) String() string {
	return fmt.Sprintf("finnhub(%s)", f.baseURL)
}
