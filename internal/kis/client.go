// Package kis is a client for a KIS-style broker API: OAuth
// client-credentials token lifecycle, domestic and overseas quote
// endpoints, and daily history endpoints. Fetch methods never return
// errors for per-symbol failures; they degrade to placeholder records so
// batch responses stay positionally complete.
package kis

import (
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"quotegateway/internal/fieldscan"
)

// HTTPClient describes an HTTP client.
//
//go:generate mockgen -package=kis_test -destination=mock_http_client_test.go -source=client.go HTTPClient
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config identifies the broker endpoints and credentials.
type Config struct {
	AppKey          string
	AppSecret       string
	BaseURL         string
	DefaultExchange string

	TokenPath              string
	PricePath              string
	TrIDPrice              string
	ETFETNPricePath        string
	TrIDETFETNPrice        string
	OverseasPricePath      string
	TrIDOverseasPrice      string
	DailyPricePath         string
	TrIDDailyPrice         string
	OverseasDailyPricePath string
	TrIDOverseasDailyPrice string

	// RequestsPerSecond paces all outbound broker calls; 0 disables.
	RequestsPerSecond int
}

// Client talks to one broker. It holds the process-wide token state, so
// one instance is shared by all requests.
type Client struct {
	cfg        Config
	httpClient HTTPClient
	limiter    *rate.Limiter
	log        zerolog.Logger

	tokenMu sync.RWMutex
	token   tokenState
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(httpClient HTTPClient) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// New creates a broker client. Zero-valued paths and transaction IDs fall
// back to the standard KIS values.
func New(cfg Config, options ...Option) *Client {
	if cfg.DefaultExchange == "" {
		cfg.DefaultExchange = "NAS"
	}
	if cfg.TokenPath == "" {
		cfg.TokenPath = "/oauth2/tokenP"
	}
	if cfg.PricePath == "" {
		cfg.PricePath = "/uapi/domestic-stock/v1/quotations/inquire-price"
	}
	if cfg.TrIDPrice == "" {
		cfg.TrIDPrice = "FHKST01010100"
	}
	if cfg.ETFETNPricePath == "" {
		cfg.ETFETNPricePath = "/uapi/domestic-etf/v1/quotations/inquire-price"
	}
	if cfg.TrIDETFETNPrice == "" {
		cfg.TrIDETFETNPrice = "FHKST02400000"
	}
	if cfg.OverseasPricePath == "" {
		cfg.OverseasPricePath = "/uapi/overseas-price/v1/quotations/price"
	}
	if cfg.TrIDOverseasPrice == "" {
		cfg.TrIDOverseasPrice = "HHDFS00000300"
	}
	if cfg.DailyPricePath == "" {
		cfg.DailyPricePath = "/uapi/domestic-stock/v1/quotations/inquire-daily-itemchartprice"
	}
	if cfg.TrIDDailyPrice == "" {
		cfg.TrIDDailyPrice = "FHKST03010100"
	}
	if cfg.OverseasDailyPricePath == "" {
		cfg.OverseasDailyPricePath = "/uapi/overseas-price/v1/quotations/dailyprice"
	}
	if cfg.TrIDOverseasDailyPrice == "" {
		cfg.TrIDOverseasDailyPrice = "HHDFS76240000"
	}
	c := &Client{
		cfg:        cfg,
		httpClient: http.DefaultClient,
		log:        zerolog.Nop(),
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.RequestsPerSecond)
	}
	for _, option := range options {
		option(c)
	}
	return c
}

// Source tags every record produced by this client.
const Source = "kis"

// Configured reports whether credentials and base URL are all present.
func (c *Client) Configured() bool {
	return c.cfg.AppKey != "" && c.cfg.AppSecret != "" && c.cfg.BaseURL != ""
}

// BaseURLSet reports whether the base URL is present, for diagnostics.
func (c *Client) BaseURLSet() bool { return c.cfg.BaseURL != "" }

// DefaultExchange is the exchange code assumed for bare US symbols.
func (c *Client) DefaultExchange() string { return c.cfg.DefaultExchange }

// apiHeaders builds the authenticated header set for a broker call.
func (c *Client) apiHeaders(req *http.Request, token, trID string) {
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("appkey", c.cfg.AppKey)
	req.Header.Set("appsecret", c.cfg.AppSecret)
	req.Header.Set("tr_id", trID)
	req.Header.Set("content-type", "application/json")
}

// do sends a request through the pacing limiter.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return nil, err
		}
	}
	return c.httpClient.Do(req)
}

// decodeBody decodes a JSON response body into a generic tree.
func decodeBody(r io.Reader) (map[string]any, error) {
	var data map[string]any
	dec := json.NewDecoder(r)
	if err := dec.Decode(&data); err != nil {
		return nil, err
	}
	return data, nil
}

// errorSummary pulls a human-readable message out of an error payload.
func errorSummary(payload map[string]any) string {
	if payload == nil {
		return ""
	}
	for _, key := range []string{"return_msg", "msg", "message", "error_description", "msg_cd", "error_code"} {
		if v, ok := payload[key]; ok {
			if s := fieldscan.Text(v); s != "" {
				return s
			}
		}
	}
	return ""
}

const (
	quoteTimeout   = 10 * time.Second
	historyTimeout = 12 * time.Second
)
