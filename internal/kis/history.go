package kis

import (
	"context"
	"net/http"
	"net/url"
	"sort"
	"time"

	"quotegateway/internal/fieldscan"
	"quotegateway/internal/market"
	"quotegateway/internal/symbol"
)

// History degradation codes. A series with no points carries one of
// these instead of failing the request.
const (
	WarnInvalidMarket = "invalid-market"
	WarnNoHistory     = "no-history"
	WarnHTTPError     = "http-error"
	WarnJSONError     = "json-error"
	WarnRequestFailed = "request-failed"
)

var (
	historyContainerKeys = []string{"output2", "output", "prices", "data", "items", "results"}

	domesticDateKeys  = []string{"stck_bsop_date", "bsop_date", "date", "trd_dd", "bas_dt"}
	domesticCloseKeys = []string{"stck_clpr", "clpr", "close", "last", "stck_prpr"}

	overseasDateKeys  = []string{"xymd", "date", "trd_dd", "bas_dt", "stck_bsop_date"}
	overseasCloseKeys = []string{"clos", "last", "ovrs_nmix_prpr", "ovrs_clpr", "close", "stck_clpr"}
)

// ResolveRange normalizes a requested [start, end] date range: end
// defaults to today, start to end minus 60 days, and an inverted pair is
// swapped.
func ResolveRange(start, end string, now time.Time) (string, string) {
	today := now.UTC().Format("2006-01-02")
	endKey := fieldscan.NormalizeDate(end)
	if endKey == "" {
		endKey = today
	}
	startKey := fieldscan.NormalizeDate(start)
	if startKey == "" {
		endDate, err := time.Parse("2006-01-02", endKey)
		if err != nil {
			endDate = now.UTC()
		}
		startKey = endDate.AddDate(0, 0, -60).Format("2006-01-02")
	}
	if startKey > endKey {
		startKey, endKey = endKey, startKey
	}
	return startKey, endKey
}

// extractPoints pulls (date, close) rows out of whichever container
// field holds a record list, drops rows outside [start, end] or
// unparsable, keeps the last row per date, and sorts ascending.
func extractPoints(payload map[string]any, dateKeys, closeKeys []string, start, end string) []market.HistoryPoint {
	var rows []map[string]any
	for _, key := range historyContainerKeys {
		list, ok := payload[key].([]any)
		if !ok {
			continue
		}
		for _, item := range list {
			if row, ok := item.(map[string]any); ok {
				rows = append(rows, row)
			}
		}
	}
	if len(rows) == 0 && payload != nil {
		rows = []map[string]any{payload}
	}

	byDate := make(map[string]float64, len(rows))
	for _, row := range rows {
		date := fieldscan.NormalizeDate(fieldscan.Find(row, dateKeys))
		closePrice := fieldscan.Number(fieldscan.Find(row, closeKeys))
		if date == "" || closePrice == nil {
			continue
		}
		if date < start || date > end {
			continue
		}
		byDate[date] = *closePrice
	}

	dates := make([]string, 0, len(byDate))
	for date := range byDate {
		dates = append(dates, date)
	}
	sort.Strings(dates)
	points := make([]market.HistoryPoint, 0, len(dates))
	for _, date := range dates {
		points = append(points, market.HistoryPoint{Date: date, Close: byDate[date]})
	}
	return points
}

func emptySeries(sym symbol.Normalized, warning string) market.HistorySeries {
	return market.HistorySeries{Symbol: sym.Raw, Points: []market.HistoryPoint{}, Source: Source, Warning: warning}
}

// DomesticHistory fetches KR daily closes within [start, end], retrying
// across market-division codes before degrading to a warning series.
func (c *Client) DomesticHistory(ctx context.Context, token string, sym symbol.Normalized, start, end string) market.HistorySeries {
	if sym.Market != symbol.MarketKR {
		return emptySeries(sym, WarnInvalidMarket)
	}

	for _, marketCode := range []string{"J", "Q"} {
		params := url.Values{}
		params.Set("FID_COND_MRKT_DIV_CODE", marketCode)
		params.Set("FID_INPUT_ISCD", sym.Code)
		params.Set("FID_INPUT_DATE_1", fieldscan.CompactDate(start))
		params.Set("FID_INPUT_DATE_2", fieldscan.CompactDate(end))
		params.Set("FID_PERIOD_DIV_CODE", "D")
		params.Set("FID_ORG_ADJ_PRC", "1")

		data, status, err := c.getJSON(ctx, token, c.cfg.DailyPricePath, c.cfg.TrIDDailyPrice, params, historyTimeout)
		if err != nil {
			c.log.Warn().Err(err).Str("symbol", sym.Raw).Str("source", Source).Msg("domestic history request failed")
			continue
		}
		if status != http.StatusOK {
			c.log.Warn().Str("symbol", sym.Raw).Str("source", Source).Int("status", status).
				Str("path", c.cfg.DailyPricePath).Str("tr_id", c.cfg.TrIDDailyPrice).Msg("domestic history http error")
			continue
		}
		points := extractPoints(data, domesticDateKeys, domesticCloseKeys, start, end)
		if len(points) > 0 {
			return market.HistorySeries{Symbol: sym.Raw, Points: points, Source: Source}
		}
	}
	return emptySeries(sym, WarnNoHistory)
}

// OverseasHistory fetches US daily closes within [start, end] with the
// same 401/403 invalidate-and-retry-once rule as quotes.
func (c *Client) OverseasHistory(ctx context.Context, token string, sym symbol.Normalized, start, end string) market.HistorySeries {
	if sym.Market != symbol.MarketUS || sym.Exchange == "" || sym.Code == "" {
		return emptySeries(sym, WarnInvalidMarket)
	}

	params := url.Values{}
	params.Set("AUTH", "")
	params.Set("EXCD", sym.Exchange)
	params.Set("SYMB", sym.Code)
	params.Set("GUBN", "0")
	params.Set("BYMD", fieldscan.CompactDate(end))
	params.Set("MODP", "0")

	data, status, err := c.getJSON(ctx, token, c.cfg.OverseasDailyPricePath, c.cfg.TrIDOverseasDailyPrice, params, historyTimeout)
	if err == nil && (status == http.StatusUnauthorized || status == http.StatusForbidden) {
		c.InvalidateToken()
		refreshed := c.Token(ctx)
		if refreshed != "" {
			data, status, err = c.getJSON(ctx, refreshed, c.cfg.OverseasDailyPricePath, c.cfg.TrIDOverseasDailyPrice, params, historyTimeout)
		}
	}
	if err != nil {
		c.log.Warn().Err(err).Str("symbol", sym.Raw).Str("source", Source).Msg("overseas history request failed")
		if status == http.StatusOK {
			return emptySeries(sym, WarnJSONError)
		}
		return emptySeries(sym, WarnRequestFailed)
	}
	if status != http.StatusOK {
		c.log.Warn().Str("symbol", sym.Raw).Str("source", Source).Int("status", status).Msg("overseas history http error")
		return emptySeries(sym, WarnHTTPError)
	}

	points := extractPoints(data, overseasDateKeys, overseasCloseKeys, start, end)
	if len(points) == 0 {
		return emptySeries(sym, WarnNoHistory)
	}
	return market.HistorySeries{Symbol: sym.Raw, Points: points, Source: Source}
}
