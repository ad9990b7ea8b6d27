// Package gateway coordinates an aggregate request: normalize and dedupe
// the symbol list, consult the response cache, classify, gate on
// credentials and token, fan fetches out under a bounded semaphore, and
// reassemble results in input order. Past the credential and token gates
// no per-symbol failure ever fails the request; unresolved symbols come
// back as placeholders.
package gateway

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"quotegateway/internal/cache"
	"quotegateway/internal/kis"
	"quotegateway/internal/market"
	"quotegateway/internal/symbol"
)

// Request-fatal failures. Everything else degrades per symbol.
var (
	ErrNotConfigured    = errors.New("KIS credentials not configured")
	ErrTokenUnavailable = errors.New("KIS token acquisition failed")
	ErrInvalidRange     = errors.New("invalid date range")
)

// Broker is the upstream surface the orchestrator fans out to.
type Broker interface {
	Configured() bool
	BaseURLSet() bool
	DefaultExchange() string
	Token(ctx context.Context) string
	DomesticQuote(ctx context.Context, token string, sym symbol.Normalized) market.Quote
	OverseasQuote(ctx context.Context, token string, sym symbol.Normalized) market.Quote
	DomesticHistory(ctx context.Context, token string, sym symbol.Normalized, start, end string) market.HistorySeries
	OverseasHistory(ctx context.Context, token string, sym symbol.Normalized, start, end string) market.HistorySeries
}

// FxResolver resolves the supported FX pair.
type FxResolver interface {
	Rate(ctx context.Context) market.FxResult
}

// Config sizes the per-request limiter and the response caches.
type Config struct {
	Concurrency int
	QuoteTTL    time.Duration
	SearchTTL   time.Duration
}

// Gateway is the aggregation orchestrator. Construct one per process and
// share it; the caches and broker token state span requests.
type Gateway struct {
	cfg    Config
	broker Broker
	fx     FxResolver
	log    zerolog.Logger

	quoteCache  *cache.Store[[]market.Quote]
	searchCache *cache.Store[[]market.SearchResult]
}

func New(cfg Config, broker Broker, fx FxResolver, log zerolog.Logger) *Gateway {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.QuoteTTL <= 0 {
		cfg.QuoteTTL = 30 * time.Second
	}
	if cfg.SearchTTL <= 0 {
		cfg.SearchTTL = cfg.QuoteTTL
	}
	return &Gateway{
		cfg:         cfg,
		broker:      broker,
		fx:          fx,
		log:         log,
		quoteCache:  cache.New[[]market.Quote](),
		searchCache: cache.New[[]market.SearchResult](),
	}
}

// Quotes resolves a quote for every distinct symbol, in first-seen
// order. All FX-pair symbols share one resolver invocation.
func (g *Gateway) Quotes(ctx context.Context, symbols []string) ([]market.Quote, error) {
	normalized := symbol.Normalize(symbols)
	if len(normalized) == 0 {
		return []market.Quote{}, nil
	}

	key := symbol.CacheKey(normalized)
	if cached, ok := g.quoteCache.Get(key); ok {
		return cached, nil
	}

	classified := g.classifyAll(normalized)
	token, err := g.acquireToken(ctx, classified)
	if err != nil {
		return nil, err
	}

	var fxResult market.FxResult
	if hasMarket(classified, symbol.MarketFX) {
		fxResult = g.fx.Rate(ctx)
	}

	sem := semaphore.NewWeighted(int64(g.cfg.Concurrency))
	results := make([]market.Quote, len(classified))
	var wg sync.WaitGroup
	for i, sym := range classified {
		switch sym.Market {
		case symbol.MarketFX:
			results[i] = fxQuote(sym.Raw, fxResult)
		case symbol.MarketKR, symbol.MarketUS:
			wg.Add(1)
			go func(i int, sym symbol.Normalized) {
				defer wg.Done()
				if err := sem.Acquire(ctx, 1); err != nil {
					results[i] = kis.Placeholder(sym)
					return
				}
				defer sem.Release(1)
				if sym.Market == symbol.MarketKR {
					results[i] = g.broker.DomesticQuote(ctx, token, sym)
				} else {
					results[i] = g.broker.OverseasQuote(ctx, token, sym)
				}
			}(i, sym)
		default:
			results[i] = kis.Placeholder(sym)
		}
	}
	wg.Wait()

	g.quoteCache.Put(key, results, g.cfg.QuoteTTL)
	return results, nil
}

// HistoryResult is the aggregate history response.
type HistoryResult struct {
	Start  string                 `json:"start"`
	End    string                 `json:"end"`
	AsOf   string                 `json:"asOf"`
	Series []market.HistorySeries `json:"series"`
}

// History resolves a daily-close series for every distinct symbol within
// the resolved [start, end] range.
func (g *Gateway) History(ctx context.Context, symbols []string, start, end string) (HistoryResult, error) {
	now := time.Now()
	result := HistoryResult{AsOf: market.ISOTime(now), Series: []market.HistorySeries{}}

	normalized := symbol.Normalize(symbols)
	if len(normalized) == 0 {
		return result, nil
	}

	startDate, endDate := kis.ResolveRange(start, end, now)
	// Cannot normally occur after the swap; guarded defensively.
	if startDate > endDate {
		return result, ErrInvalidRange
	}
	result.Start = startDate
	result.End = endDate

	classified := g.classifyAll(normalized)
	token, err := g.acquireToken(ctx, classified)
	if err != nil {
		return result, err
	}

	sem := semaphore.NewWeighted(int64(g.cfg.Concurrency))
	series := make([]market.HistorySeries, len(classified))
	var wg sync.WaitGroup
	for i, sym := range classified {
		switch sym.Market {
		case symbol.MarketKR, symbol.MarketUS:
			wg.Add(1)
			go func(i int, sym symbol.Normalized) {
				defer wg.Done()
				if err := sem.Acquire(ctx, 1); err != nil {
					series[i] = market.HistorySeries{Symbol: sym.Raw, Points: []market.HistoryPoint{}, Source: kis.Source, Warning: kis.WarnRequestFailed}
					return
				}
				defer sem.Release(1)
				if sym.Market == symbol.MarketKR {
					series[i] = g.broker.DomesticHistory(ctx, token, sym, startDate, endDate)
				} else {
					series[i] = g.broker.OverseasHistory(ctx, token, sym, startDate, endDate)
				}
			}(i, sym)
		default:
			series[i] = market.HistorySeries{Symbol: sym.Raw, Points: []market.HistoryPoint{}, Source: kis.Source, Warning: kis.WarnInvalidMarket}
		}
	}
	wg.Wait()

	result.Series = series
	return result, nil
}

// Fx resolves the supported pair.
func (g *Gateway) Fx(ctx context.Context) market.FxResult {
	return g.fx.Rate(ctx)
}

// Search suggests symbols for a query: KR when the query looks like a KR
// code or contains Hangul, otherwise a default-exchange US candidate.
func (g *Gateway) Search(ctx context.Context, query string) []market.SearchResult {
	q := strings.TrimSpace(query)
	if q == "" {
		return []market.SearchResult{}
	}

	key := "search:" + strings.ToUpper(q)
	if cached, ok := g.searchCache.Get(key); ok {
		return cached
	}

	results := []market.SearchResult{}
	if symbol.IsKRQuery(q) || symbol.HasHangul(q) {
		code := symbol.NormalizeKRCode(q)
		if symbol.IsStockCode(code) || symbol.IsETFETNShortCode(code) {
			results = append(results, market.SearchResult{Symbol: code, Market: string(symbol.MarketKR)})
		}
	} else {
		results = append(results, market.SearchResult{
			Symbol: g.broker.DefaultExchange() + ":" + strings.ToUpper(q),
			Market: string(symbol.MarketUS),
		})
	}

	g.searchCache.Put(key, results, g.cfg.SearchTTL)
	return results
}

// Health reports per-upstream configuration state. No cache or token
// interaction.
type Health struct {
	OK            bool `json:"ok"`
	KISConfigured bool `json:"kisConfigured"`
	KISBaseURLSet bool `json:"kisBaseUrlSet"`
}

func (g *Gateway) Health() Health {
	return Health{OK: true, KISConfigured: g.broker.Configured(), KISBaseURLSet: g.broker.BaseURLSet()}
}

func (g *Gateway) classifyAll(normalized []string) []symbol.Normalized {
	out := make([]symbol.Normalized, len(normalized))
	for i, s := range normalized {
		out[i] = symbol.Classify(s, g.broker.DefaultExchange())
	}
	return out
}

// acquireToken applies the two request-fatal gates: broker symbols with
// no credentials configured, and a required token that cannot be
// acquired.
func (g *Gateway) acquireToken(ctx context.Context, classified []symbol.Normalized) (string, error) {
	needBroker := hasMarket(classified, symbol.MarketKR) || hasMarket(classified, symbol.MarketUS)
	if !needBroker {
		return "", nil
	}
	if !g.broker.Configured() {
		return "", ErrNotConfigured
	}
	token := g.broker.Token(ctx)
	if token == "" {
		return "", ErrTokenUnavailable
	}
	return token, nil
}

func hasMarket(classified []symbol.Normalized, m symbol.Market) bool {
	for _, sym := range classified {
		if sym.Market == m {
			return true
		}
	}
	return false
}

// fxQuote shapes a shared FX resolution as a quote record.
func fxQuote(raw string, fx market.FxResult) market.Quote {
	q := market.Quote{
		Symbol:        raw,
		Price:         fx.Rate,
		Change:        fx.Change,
		ChangePercent: fx.ChangePercent,
		Currency:      market.String("KRW"),
		Source:        fx.Source,
	}
	if q.Source == "" {
		q.Source = "naver"
	}
	if fx.Rate != nil {
		q.MarketTime = market.String(market.ISOTime(time.Now()))
	}
	return q
}
