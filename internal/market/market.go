package market

import "time"

// Quote is the normalized quote shape returned for every requested symbol.
// A nil Price means the symbol could not be resolved from any source; the
// record itself is always present so batch responses stay positionally
// complete.
type Quote struct {
	Symbol        string   `json:"symbol"`
	Price         *float64 `json:"price"`
	Change        *float64 `json:"change"`
	ChangePercent *float64 `json:"changePercent"`
	Currency      *string  `json:"currency"`
	MarketTime    *string  `json:"marketTime"`
	Source        string   `json:"source"`
	Name          *string  `json:"name"`
}

// EmptyQuote builds a placeholder quote for a symbol that yielded no data.
func EmptyQuote(symbol, source string) Quote {
	return Quote{Symbol: symbol, Source: source}
}

// HistoryPoint is a single daily close.
type HistoryPoint struct {
	Date  string  `json:"date"`
	Close float64 `json:"close"`
}

// HistorySeries holds the daily closes for one symbol, ascending by date
// with unique dates. Warning carries a degradation code instead of an
// error when no points could be resolved.
type HistorySeries struct {
	Symbol  string         `json:"symbol"`
	Points  []HistoryPoint `json:"points"`
	Source  string         `json:"source"`
	Warning string         `json:"warning,omitempty"`
}

// FxResult is a resolved exchange rate. Error and a non-nil Rate may
// coexist: a stale last-known-good rate is annotated with the reason the
// fresh resolution failed.
type FxResult struct {
	Pair          string   `json:"pair"`
	Rate          *float64 `json:"rate"`
	Change        *float64 `json:"change"`
	ChangePercent *float64 `json:"changePercent"`
	TS            *float64 `json:"ts"`
	Source        string   `json:"source"`
	Error         string   `json:"error,omitempty"`
}

// SearchResult is one symbol suggestion.
type SearchResult struct {
	Symbol string  `json:"symbol"`
	Name   *string `json:"name"`
	Market string  `json:"market"`
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// String returns a pointer to s.
func String(s string) *string { return &s }

// ISOTime formats t as an RFC 3339 UTC timestamp with a Z suffix.
func ISOTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
