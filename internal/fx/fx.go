// Package fx resolves the USD/KRW exchange rate by scraping an HTML
// fragment and scoring every numeric token it contains. Resolution
// degrades to the last successfully fetched value, annotated with the
// failure reason, rather than erroring.
package fx

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"quotegateway/internal/cache"
	"quotegateway/internal/market"
	"quotegateway/internal/symbol"
)

// HTTPClient describes an HTTP client.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

const fxSource = "naver"

// Config controls the resolver.
type Config struct {
	URL string
	TTL time.Duration
	// Plausible band for the pair; candidates outside it are rejected.
	MinRate float64
	MaxRate float64
}

// Resolver fetches and caches the USD/KRW rate. One instance is shared
// by the whole process so the TTL cache and last-known-good state span
// requests.
type Resolver struct {
	cfg        Config
	httpClient HTTPClient
	log        zerolog.Logger

	cache    *cache.Store[market.FxResult]
	lastGood *cache.LastGood[market.FxResult]
	sf       singleflight.Group
}

func New(cfg Config, httpClient HTTPClient, log zerolog.Logger) *Resolver {
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Second
	}
	if cfg.MinRate <= 0 {
		cfg.MinRate = 500
	}
	if cfg.MaxRate <= 0 {
		cfg.MaxRate = 5000
	}
	return &Resolver{
		cfg:        cfg,
		httpClient: httpClient,
		log:        log,
		cache:      cache.New[market.FxResult](),
		lastGood:   cache.NewLastGood[market.FxResult](),
	}
}

// Rate returns the current USD/KRW rate, serving from cache within the
// TTL. Concurrent cache misses are coalesced into a single scrape.
func (r *Resolver) Rate(ctx context.Context) market.FxResult {
	pair := symbol.FXPairUSDKRW
	if cached, ok := r.cache.Get(pair); ok {
		return cached
	}
	v, _, _ := r.sf.Do(pair, func() (any, error) {
		return r.fetch(ctx, pair), nil
	})
	return v.(market.FxResult)
}

func (r *Resolver) fetch(ctx context.Context, pair string) market.FxResult {
	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, r.cfg.URL, nil)
	if err != nil {
		return r.fallback(pair, "FX request failed")
	}
	req.Header.Set("User-Agent",
		"Mozilla/5.0 (iPhone; CPU iPhone OS 16_5 like Mac OS X) "+
			"AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.5 Mobile/15E148 Safari/604.1")
	req.Header.Set("Accept-Language", "ko-KR,ko;q=0.9,en;q=0.8")
	req.Header.Set("Referer", "https://m.search.naver.com/")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		r.log.Warn().Err(err).Str("pair", pair).Str("source", fxSource).Msg("fx request failed")
		return r.fallback(pair, "FX request failed")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		r.log.Warn().Int("status", resp.StatusCode).Str("pair", pair).Str("source", fxSource).Msg("fx http error")
		return r.fallback(pair, "FX http "+strconv.Itoa(resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return r.fallback(pair, "FX request failed")
	}

	parsed := parseRatePage(string(body))
	r.log.Debug().Str("pair", pair).Str("source", fxSource).
		Int("candidates", parsed.candidateCount).Msg("fx page parsed")
	if parsed.rate == nil || *parsed.rate < r.cfg.MinRate || *parsed.rate > r.cfg.MaxRate {
		return r.fallback(pair, "FX rate missing")
	}

	now := float64(time.Now().Unix())
	result := market.FxResult{
		Pair:          pair,
		Rate:          parsed.rate,
		Change:        parsed.change,
		ChangePercent: parsed.changePercent,
		TS:            &now,
		Source:        fxSource,
	}
	r.cache.Put(pair, result, r.cfg.TTL)
	r.lastGood.Set(pair, result)
	return result
}

// fallback returns the last known good value annotated with the failure
// reason, or a fully null result when no prior success exists.
func (r *Resolver) fallback(pair, errMsg string) market.FxResult {
	if lg, ok := r.lastGood.Get(pair); ok {
		lg.Error = errMsg
		return lg
	}
	return market.FxResult{Pair: pair, Source: fxSource, Error: errMsg}
}
