// Package symbol classifies raw ticker strings into markets and
// normalized instrument codes. Classification is pure and total: any
// input yields a result, unrecognizable input degrades to a US symbol on
// the default exchange rather than erroring.
package symbol

import (
	"regexp"
	"sort"
	"strings"
)

// Market tags which upstream serves a symbol.
type Market string

const (
	MarketKR      Market = "KR"
	MarketUS      Market = "US"
	MarketFX      Market = "FX"
	MarketUnknown Market = "UNKNOWN"
)

// FXPairUSDKRW is the only supported FX pair.
const FXPairUSDKRW = "USD/KRW"

// Normalized is the classification result for one raw symbol.
type Normalized struct {
	Raw      string
	Market   Market
	Exchange string
	Code     string
}

var (
	stockCodeRe = regexp.MustCompile(`^\d{6}$`)
	shortCodeRe = regexp.MustCompile(`^\d{4}[0-9A-Z]{2}$`)
	letterRe    = regexp.MustCompile(`[A-Z]`)
	isinLikeRe  = regexp.MustCompile(`^A\d{6}$`)
	krLooseRe   = regexp.MustCompile(`^\d[0-9A-Z]{5}$`)
)

// IsStockCode reports whether code is a 6-digit KR instrument code.
func IsStockCode(code string) bool { return stockCodeRe.MatchString(code) }

// IsETFETNShortCode reports whether code is a 4-digit+2-alphanumeric
// ETF/ETN short code containing at least one letter.
func IsETFETNShortCode(code string) bool {
	return shortCodeRe.MatchString(code) && letterRe.MatchString(code)
}

// NormalizeKRCode strips KR decorations: a KR: prefix, a .KS/.KQ suffix,
// and the leading A of an ISIN-like code.
func NormalizeKRCode(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = strings.TrimPrefix(s, "KR:")
	if strings.HasSuffix(s, ".KS") || strings.HasSuffix(s, ".KQ") {
		s = s[:len(s)-3]
	}
	if isinLikeRe.MatchString(s) {
		return s[1:]
	}
	return s
}

// IsKRQuery reports whether a search query looks like a KR instrument.
// Looser than Classify: it also accepts digit-led 6-char codes without a
// letter requirement.
func IsKRQuery(q string) bool {
	s := strings.ToUpper(strings.TrimSpace(q))
	if s == "" {
		return false
	}
	if strings.HasPrefix(s, "KR:") {
		return true
	}
	if strings.HasSuffix(s, ".KS") || strings.HasSuffix(s, ".KQ") {
		return true
	}
	return stockCodeRe.MatchString(s) || krLooseRe.MatchString(s) || isinLikeRe.MatchString(s)
}

// HasHangul reports whether s contains any Hangul syllable.
func HasHangul(s string) bool {
	for _, r := range s {
		if r >= 0xAC00 && r <= 0xD7A3 {
			return true
		}
	}
	return false
}

// Classify maps a raw symbol to its market, exchange and instrument code.
// Priority: the FX pair literal, then KR code forms, then an explicit
// EXCHANGE:SYMBOL, then US on the default exchange.
func Classify(raw, defaultExchange string) Normalized {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return Normalized{Raw: s, Market: MarketUnknown}
	}
	if s == FXPairUSDKRW {
		return Normalized{Raw: s, Market: MarketFX, Code: s}
	}
	code := NormalizeKRCode(s)
	if IsStockCode(code) || IsETFETNShortCode(code) {
		return Normalized{Raw: s, Market: MarketKR, Code: code}
	}
	if i := strings.Index(s, ":"); i > 0 {
		excd := strings.TrimSpace(s[:i])
		symb := strings.TrimSpace(s[i+1:])
		return Normalized{Raw: s, Market: MarketUS, Exchange: excd, Code: symb}
	}
	return Normalized{Raw: s, Market: MarketUS, Exchange: defaultExchange, Code: s}
}

// Normalize trims, upper-cases, drops empties and dedupes a raw symbol
// list preserving first-seen order.
func Normalize(symbols []string) []string {
	out := make([]string, 0, len(symbols))
	seen := make(map[string]struct{}, len(symbols))
	for _, raw := range symbols {
		s := strings.ToUpper(strings.TrimSpace(raw))
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// CacheKey builds an order-independent key from normalized symbols.
func CacheKey(normalized []string) string {
	sorted := make([]string, len(normalized))
	copy(sorted, normalized)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}
