package quotes

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"sentinel/internal/adapters/config"
	"sentinel/internal/metrics"
	"sentinel/pkg/errors"
	"sentinel/pkg/logger"
)

// AlphaVantage implements Source against the Alpha Vantage GLOBAL_QUOTE
// endpoint. The HTTP client is reused for the process lifetime and all
// calls go through a shared rate limiter to stay inside the API budget.
type AlphaVantage struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *logger.Logger
}

// NewAlphaVantage creates an Alpha Vantage quote source
func NewAlphaVantage(cfg config.QuotesConfig) *AlphaVantage {
	rps := float64(cfg.RequestsPerMinute) / 60.0
	burst := cfg.RequestsPerMinute / 10
	if burst < 1 {
		burst = 1
	}

	return &AlphaVantage{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		log:     logger.Get().With("component", "quote_source"),
	}
}

// globalQuoteResponse mirrors the GLOBAL_QUOTE payload
type globalQuoteResponse struct {
	GlobalQuote struct {
		Symbol string `json:"01. symbol"`
		Price  string `json:"05. price"`
		Volume string `json:"06. volume"`
		Day    string `json:"07. latest trading day"`
	} `json:"Global Quote"`
	Note         string `json:"Note"`
	ErrorMessage string `json:"Error Message"`
}

// GetQuotes fetches current quotes for the watch-list. A failure for
// one symbol is logged and skipped; the batch fails only when no symbol
// could be fetched at all.
func (a *AlphaVantage) GetQuotes(ctx context.Context, symbols []string) (map[string]Quote, error) {
	result := make(map[string]Quote, len(symbols))
	var lastErr error

	for _, symbol := range symbols {
		q, err := a.fetchQuote(ctx, symbol)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return result, err
			}
			a.log.Warnf("Quote fetch failed for %s: %v", symbol, err)
			metrics.QuoteFetchErrors.WithLabelValues(symbol).Inc()
			lastErr = err
			continue
		}
		result[symbol] = q
	}

	if len(result) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return result, nil
}

// fetchQuote fetches a single GLOBAL_QUOTE
func (a *AlphaVantage) fetchQuote(ctx context.Context, symbol string) (Quote, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return Quote{}, errors.Wrap(err, "rate limiter")
	}

	params := url.Values{}
	params.Set("function", "GLOBAL_QUOTE")
	params.Set("symbol", symbol)
	params.Set("apikey", a.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/query?"+params.Encode(), nil)
	if err != nil {
		return Quote{}, errors.Wrap(err, "build request")
	}
	req.Header.Set("User-Agent", "sentinel/1.0")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return Quote{}, errors.Wrapf(errors.ErrSourceUnavailable, "quote request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return Quote{}, errors.Wrapf(errors.ErrRateLimited, "status %d", resp.StatusCode)
	}
	if resp.StatusCode >= 500 {
		return Quote{}, errors.Wrapf(errors.ErrSourceUnavailable, "status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return Quote{}, errors.Wrapf(errors.ErrPermanentUpstream, "status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Quote{}, errors.Wrapf(errors.ErrSourceUnavailable, "read body: %v", err)
	}

	var parsed globalQuoteResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Quote{}, errors.Wrapf(errors.ErrPermanentUpstream, "decode: %v", err)
	}

	// The API signals quota exhaustion in-band with a 200 response
	if parsed.Note != "" {
		return Quote{}, errors.Wrap(errors.ErrRateLimited, parsed.Note)
	}
	if parsed.ErrorMessage != "" {
		return Quote{}, errors.Wrap(errors.ErrPermanentUpstream, parsed.ErrorMessage)
	}
	if parsed.GlobalQuote.Symbol == "" {
		return Quote{}, errors.Wrapf(errors.ErrPermanentUpstream, "empty quote for %s", symbol)
	}

	price, err := decimal.NewFromString(parsed.GlobalQuote.Price)
	if err != nil {
		return Quote{}, errors.Wrapf(errors.ErrPermanentUpstream, "parse price %q: %v", parsed.GlobalQuote.Price, err)
	}
	volume, err := strconv.ParseInt(parsed.GlobalQuote.Volume, 10, 64)
	if err != nil {
		return Quote{}, errors.Wrapf(errors.ErrPermanentUpstream, "parse volume %q: %v", parsed.GlobalQuote.Volume, err)
	}

	return Quote{
		Symbol:    parsed.GlobalQuote.Symbol,
		Price:     price,
		Volume:    volume,
		Timestamp: time.Now().UTC(),
	}, nil
}
