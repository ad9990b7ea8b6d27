package kis

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"quotegateway/internal/fieldscan"
	"quotegateway/internal/market"
	"quotegateway/internal/symbol"
)

var (
	priceKeys         = []string{"stck_prpr", "prpr", "price", "current_price"}
	changeKeys        = []string{"prdy_vrss", "change", "price_change"}
	changePercentKeys = []string{"prdy_ctrt", "change_percent", "change_rate"}
	nameKeys          = []string{"hts_kor_isnm", "prdt_name", "stck_name", "name", "isu_nm"}

	overseasPriceKeys         = []string{"last", "last_price", "last_prpr", "price", "current_price"}
	overseasChangeKeys        = []string{"diff", "change", "prdy_vrss", "price_change"}
	overseasChangePercentKeys = []string{"rate", "change_rate", "prdy_ctrt", "change_percent"}
	overseasNameKeys          = []string{"name", "kor_name", "eng_name", "prdt_name", "hts_kor_isnm"}
	overseasCurrencyKeys      = []string{"ccy_code", "currency", "currency_code", "curr_cd"}
)

// Placeholder returns the empty quote for a symbol no source could
// resolve: nil data fields, source tagged, currency best-guessed from
// the market.
func Placeholder(sym symbol.Normalized) market.Quote {
	q := market.EmptyQuote(sym.Raw, Source)
	switch sym.Market {
	case symbol.MarketKR:
		q.Currency = market.String("KRW")
	case symbol.MarketUS:
		q.Currency = market.String("USD")
	}
	return q
}

// marketCandidates orders the market-division codes to try for a KR
// instrument: alternate board first for explicit .KQ symbols, main board
// first otherwise.
func marketCandidates(raw string) []string {
	if strings.HasSuffix(raw, ".KQ") {
		return []string{"Q", "J"}
	}
	return []string{"J", "Q"}
}

type parsedQuote struct {
	price         *float64
	change        *float64
	changePercent *float64
	name          *string
	currency      *string
}

func parseDomesticQuote(data map[string]any) parsedQuote {
	var p parsedQuote
	p.price = fieldscan.Number(fieldscan.Find(data, priceKeys))
	p.change = fieldscan.Number(fieldscan.Find(data, changeKeys))
	p.changePercent = fieldscan.Number(fieldscan.Find(data, changePercentKeys))
	if name := fieldscan.Text(fieldscan.Find(data, nameKeys)); name != "" {
		p.name = market.String(name)
	}
	return p
}

func parseOverseasQuote(data map[string]any) parsedQuote {
	var p parsedQuote
	p.price = fieldscan.Number(fieldscan.Find(data, overseasPriceKeys))
	p.change = fieldscan.Number(fieldscan.Find(data, overseasChangeKeys))
	p.changePercent = fieldscan.Number(fieldscan.Find(data, overseasChangePercentKeys))
	if name := fieldscan.Text(fieldscan.Find(data, overseasNameKeys)); name != "" {
		p.name = market.String(name)
	}
	if currency := fieldscan.Text(fieldscan.Find(data, overseasCurrencyKeys)); currency != "" {
		p.currency = market.String(strings.ToUpper(currency))
	}
	return p
}

// DomesticQuote fetches a KR equity or ETF/ETN quote. ETF/ETN short
// codes try the dedicated fund endpoint before the equity endpoint, each
// with several market-code and field-casing variants; plain codes walk
// the market-division candidates. The first attempt parsing to a
// positive price wins; exhaustion yields a placeholder, never an error.
func (c *Client) DomesticQuote(ctx context.Context, token string, sym symbol.Normalized) market.Quote {
	if sym.Market != symbol.MarketKR {
		return Placeholder(sym)
	}
	if symbol.IsETFETNShortCode(sym.Code) {
		return c.domesticETFETNQuote(ctx, token, sym)
	}

	for _, marketCode := range marketCandidates(sym.Raw) {
		params := url.Values{}
		params.Set("fid_cond_mrkt_div_code", marketCode)
		params.Set("fid_input_iscd", sym.Code)
		data, status, err := c.getJSON(ctx, token, c.cfg.PricePath, c.cfg.TrIDPrice, params, quoteTimeout)
		if err != nil {
			c.log.Warn().Err(err).Str("symbol", sym.Raw).Str("source", Source).Msg("domestic quote request failed")
			continue
		}
		if status != http.StatusOK {
			c.log.Warn().Str("symbol", sym.Raw).Str("source", Source).Int("status", status).
				Str("path", c.cfg.PricePath).Str("tr_id", c.cfg.TrIDPrice).Msg("domestic quote http error")
			continue
		}
		p := parseDomesticQuote(data)
		if p.price == nil || *p.price <= 0 {
			c.log.Debug().Str("symbol", sym.Raw).Str("source", Source).Msg("domestic quote missing price")
			continue
		}
		return market.Quote{
			Symbol:        sym.Raw,
			Price:         p.price,
			Change:        p.change,
			ChangePercent: p.changePercent,
			Currency:      market.String("KRW"),
			MarketTime:    market.String(market.ISOTime(time.Now())),
			Source:        Source,
			Name:          p.name,
		}
	}
	return Placeholder(sym)
}

// etfETNParamVariants covers the provider's inconsistent casing of the
// query parameter names.
func etfETNParamVariants(code string) []url.Values {
	lowerJ := url.Values{}
	lowerJ.Set("fid_cond_mrkt_div_code", "J")
	lowerJ.Set("fid_input_iscd", code)
	upperJ := url.Values{}
	upperJ.Set("FID_COND_MRKT_DIV_CODE", "J")
	upperJ.Set("FID_INPUT_ISCD", code)
	lowerQ := url.Values{}
	lowerQ.Set("fid_cond_mrkt_div_code", "Q")
	lowerQ.Set("fid_input_iscd", code)
	return []url.Values{lowerJ, upperJ, lowerQ}
}

func (c *Client) domesticETFETNQuote(ctx context.Context, token string, sym symbol.Normalized) market.Quote {
	attempts := []struct {
		path string
		trID string
	}{
		{c.cfg.ETFETNPricePath, c.cfg.TrIDETFETNPrice},
		{c.cfg.PricePath, c.cfg.TrIDPrice},
	}
	for _, attempt := range attempts {
		for _, params := range etfETNParamVariants(sym.Code) {
			data, status, err := c.getJSON(ctx, token, attempt.path, attempt.trID, params, quoteTimeout)
			if err != nil {
				c.log.Warn().Err(err).Str("symbol", sym.Raw).Str("source", Source).
					Str("path", attempt.path).Str("tr_id", attempt.trID).Msg("etf/etn quote request failed")
				continue
			}
			if status != http.StatusOK {
				c.log.Warn().Str("symbol", sym.Raw).Str("source", Source).Int("status", status).
					Str("path", attempt.path).Str("tr_id", attempt.trID).Msg("etf/etn quote http error")
				continue
			}
			p := parseDomesticQuote(data)
			if p.price == nil || *p.price <= 0 {
				continue
			}
			return market.Quote{
				Symbol:        sym.Raw,
				Price:         p.price,
				Change:        p.change,
				ChangePercent: p.changePercent,
				Currency:      market.String("KRW"),
				MarketTime:    market.String(market.ISOTime(time.Now())),
				Source:        Source,
				Name:          p.name,
			}
		}
	}
	c.log.Warn().Str("symbol", sym.Raw).Str("source", Source).Str("code", sym.Code).Msg("etf/etn quote exhausted")
	return Placeholder(sym)
}

// OverseasQuote fetches a US quote via (exchange, symbol). A 401/403
// invalidates the token and retries exactly once with a fresh one; any
// other failure exhausts the source and yields a placeholder.
func (c *Client) OverseasQuote(ctx context.Context, token string, sym symbol.Normalized) market.Quote {
	if sym.Market != symbol.MarketUS || sym.Exchange == "" || sym.Code == "" {
		return Placeholder(sym)
	}

	params := url.Values{}
	params.Set("AUTH", "")
	params.Set("EXCD", sym.Exchange)
	params.Set("SYMB", sym.Code)

	data, status, err := c.getJSON(ctx, token, c.cfg.OverseasPricePath, c.cfg.TrIDOverseasPrice, params, quoteTimeout)
	if err != nil {
		c.log.Warn().Err(err).Str("symbol", sym.Raw).Str("source", Source).Msg("overseas quote request failed")
		return Placeholder(sym)
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		c.InvalidateToken()
		refreshed := c.Token(ctx)
		if refreshed != "" {
			data, status, err = c.getJSON(ctx, refreshed, c.cfg.OverseasPricePath, c.cfg.TrIDOverseasPrice, params, quoteTimeout)
			if err != nil {
				c.log.Warn().Err(err).Str("symbol", sym.Raw).Str("source", Source).Msg("overseas quote retry failed")
				return Placeholder(sym)
			}
		}
	}
	if status != http.StatusOK {
		c.log.Warn().Str("symbol", sym.Raw).Str("source", Source).Int("status", status).Msg("overseas quote http error")
		return Placeholder(sym)
	}

	p := parseOverseasQuote(data)
	if p.price == nil || *p.price <= 0 {
		c.log.Debug().Str("symbol", sym.Raw).Str("source", Source).Msg("overseas quote missing price")
		return Placeholder(sym)
	}
	currency := p.currency
	if currency == nil {
		currency = market.String("USD")
	}
	return market.Quote{
		Symbol:        sym.Raw,
		Price:         p.price,
		Change:        p.change,
		ChangePercent: p.changePercent,
		Currency:      currency,
		MarketTime:    market.String(market.ISOTime(time.Now())),
		Source:        Source,
	}
}

// getJSON performs one authenticated GET and decodes the body. A non-200
// status is returned without a decode error so callers can branch on it.
func (c *Client) getJSON(ctx context.Context, token, path, trID string, params url.Values, timeout time.Duration) (map[string]any, int, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.cfg.BaseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return nil, 0, err
	}
	c.apiHeaders(req, token, trID)
	resp, err := c.do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, nil
	}
	data, err := decodeBody(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return data, resp.StatusCode, nil
}
