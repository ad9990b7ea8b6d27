package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Server struct {
	Port              string `yaml:"port"`
	RequestTimeoutSec int    `yaml:"request_timeout_sec"`
}

type KIS struct {
	AppKey          string `yaml:"app_key"`
	AppSecret       string `yaml:"app_secret"`
	BaseURL         string `yaml:"base_url"`
	DefaultExchange string `yaml:"default_exchange"`

	TokenPath              string `yaml:"token_path"`
	PricePath              string `yaml:"price_path"`
	TrIDPrice              string `yaml:"tr_id_price"`
	ETFETNPricePath        string `yaml:"etf_etn_price_path"`
	TrIDETFETNPrice        string `yaml:"tr_id_etf_etn_price"`
	OverseasPricePath      string `yaml:"overseas_price_path"`
	TrIDOverseasPrice      string `yaml:"tr_id_overseas_price"`
	DailyPricePath         string `yaml:"daily_price_path"`
	TrIDDailyPrice         string `yaml:"tr_id_daily_price"`
	OverseasDailyPricePath string `yaml:"overseas_daily_price_path"`
	TrIDOverseasDailyPrice string `yaml:"tr_id_overseas_daily_price"`

	// RequestsPerSecond paces outbound calls to the broker; 0 disables.
	RequestsPerSecond int `yaml:"requests_per_second"`
}

type FX struct {
	URL string `yaml:"url"`
	// TTLSeconds defaults to the quote TTL when 0.
	TTLSeconds int `yaml:"ttl_sec"`
}

type Cache struct {
	QuoteTTLSeconds int `yaml:"quote_ttl_sec"`
}

type Config struct {
	Server      Server `yaml:"server"`
	KIS         KIS    `yaml:"kis"`
	FX          FX     `yaml:"fx"`
	Cache       Cache  `yaml:"cache"`
	Concurrency int    `yaml:"concurrency"`
	LogLevel    string `yaml:"log_level"`
	SSLVerify   bool   `yaml:"ssl_verify"`
}

const (
	defaultTTLSeconds  = 30
	defaultConcurrency = 6
)

func Default() Config {
	return Config{
		Server: Server{Port: "8080", RequestTimeoutSec: 15},
		KIS: KIS{
			DefaultExchange:        "NAS",
			TokenPath:              "/oauth2/tokenP",
			PricePath:              "/uapi/domestic-stock/v1/quotations/inquire-price",
			TrIDPrice:              "FHKST01010100",
			ETFETNPricePath:        "/uapi/domestic-etf/v1/quotations/inquire-price",
			TrIDETFETNPrice:        "FHKST02400000",
			OverseasPricePath:      "/uapi/overseas-price/v1/quotations/price",
			TrIDOverseasPrice:      "HHDFS00000300",
			DailyPricePath:         "/uapi/domestic-stock/v1/quotations/inquire-daily-itemchartprice",
			TrIDDailyPrice:         "FHKST03010100",
			OverseasDailyPricePath: "/uapi/overseas-price/v1/quotations/dailyprice",
			TrIDOverseasDailyPrice: "HHDFS76240000",
		},
		FX: FX{
			URL: "https://m.search.naver.com/p/csearch/content/qapirender.nhn" +
				"?key=calculator&pkid=141&q=%ED%99%98%EC%9C%A8&where=m&u1=keb&u6=standardUnit&u7=0&u3=USD&u4=KRW&u8=down&u2=1",
		},
		Cache:       Cache{QuoteTTLSeconds: defaultTTLSeconds},
		Concurrency: defaultConcurrency,
		LogLevel:    "info",
		SSLVerify:   true,
	}
}

// Load reads YAML config from path. If path is empty or the file does not
// exist, defaults are used. Environment variables override select fields.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("REQUEST_TIMEOUT_SEC"); v != "" {
		if x := atoi(v); x > 0 {
			cfg.Server.RequestTimeoutSec = x
		}
	}
	if v := os.Getenv("KIS_APP_KEY"); v != "" {
		cfg.KIS.AppKey = v
	}
	if v := os.Getenv("KIS_APP_SECRET"); v != "" {
		cfg.KIS.AppSecret = v
	}
	if v := os.Getenv("KIS_BASE_URL"); v != "" {
		cfg.KIS.BaseURL = strings.TrimRight(strings.TrimSpace(v), "/")
	}
	if v := os.Getenv("KIS_DEFAULT_EXCD"); v != "" {
		cfg.KIS.DefaultExchange = strings.ToUpper(strings.TrimSpace(v))
	}
	if v := os.Getenv("KIS_ETF_ETN_PRICE_PATH"); v != "" {
		cfg.KIS.ETFETNPricePath = strings.TrimSpace(v)
	}
	if v := os.Getenv("KIS_TR_ID_ETF_ETN_PRICE"); v != "" {
		cfg.KIS.TrIDETFETNPrice = strings.TrimSpace(v)
	}
	if v := os.Getenv("KIS_DAILY_PRICE_PATH"); v != "" {
		cfg.KIS.DailyPricePath = strings.TrimSpace(v)
	}
	if v := os.Getenv("KIS_TR_ID_DAILY_PRICE"); v != "" {
		cfg.KIS.TrIDDailyPrice = strings.TrimSpace(v)
	}
	if v := os.Getenv("KIS_OVERSEAS_DAILY_PRICE_PATH"); v != "" {
		cfg.KIS.OverseasDailyPricePath = strings.TrimSpace(v)
	}
	if v := os.Getenv("KIS_TR_ID_OVERSEAS_DAILY_PRICE"); v != "" {
		cfg.KIS.TrIDOverseasDailyPrice = strings.TrimSpace(v)
	}
	if v := os.Getenv("KIS_MAX_RPS"); v != "" {
		if x := atoi(v); x >= 0 {
			cfg.KIS.RequestsPerSecond = x
		}
	}
	if v := os.Getenv("QUOTE_CACHE_TTL"); v != "" {
		if x := atoi(v); x > 0 {
			cfg.Cache.QuoteTTLSeconds = x
		}
	}
	if v := os.Getenv("FX_CACHE_TTL"); v != "" {
		if x := atoi(v); x > 0 {
			cfg.FX.TTLSeconds = x
		}
	}
	if v := os.Getenv("QUOTE_CONCURRENCY"); v != "" {
		if x := atoi(v); x > 0 {
			cfg.Concurrency = x
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("QUOTE_SSL_VERIFY"); v != "" {
		switch strings.ToLower(v) {
		case "1", "true", "yes", "on":
			cfg.SSLVerify = true
		case "0", "false", "no", "off":
			cfg.SSLVerify = false
		}
	}
}

func atoi(s string) int {
	var x int
	_, _ = fmt.Sscanf(strings.TrimSpace(s), "%d", &x)
	return x
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// QuoteTTLSeconds returns the quote cache TTL clamped to [15,60] so
// misconfiguration can neither disable caching nor cache forever.
func (c Config) QuoteTTLSeconds() int {
	return clamp(c.Cache.QuoteTTLSeconds, 15, 60)
}

// FXTTLSeconds returns the FX cache TTL, defaulting to the quote TTL,
// clamped to the same band.
func (c Config) FXTTLSeconds() int {
	if c.FX.TTLSeconds <= 0 {
		return c.QuoteTTLSeconds()
	}
	return clamp(c.FX.TTLSeconds, 15, 60)
}

// ConcurrencyLimit returns the per-request upstream concurrency bound
// clamped to [1,8].
func (c Config) ConcurrencyLimit() int {
	return clamp(c.Concurrency, 1, 8)
}
