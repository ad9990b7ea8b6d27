package main

import (
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"quotegateway/internal/config"
	"quotegateway/internal/fx"
	"quotegateway/internal/gateway"
	"quotegateway/internal/httpx"
	"quotegateway/internal/kis"
	"quotegateway/internal/logx"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		errLog := logx.New("error")
		errLog.Fatal().Err(err).Msg("config")
	}
	log := logx.New(cfg.LogLevel)

	if !cfg.SSLVerify {
		log.Warn().Msg("SSL verification disabled")
	}
	log.Info().
		Bool("kisConfigured", cfg.KIS.AppKey != "" && cfg.KIS.AppSecret != "").
		Bool("kisBaseUrlSet", cfg.KIS.BaseURL != "").
		Msg("upstream configuration")

	httpClient := httpx.New(time.Duration(cfg.Server.RequestTimeoutSec)*time.Second, !cfg.SSLVerify)

	broker := kis.New(kis.Config{
		AppKey:                 cfg.KIS.AppKey,
		AppSecret:              cfg.KIS.AppSecret,
		BaseURL:                strings.TrimRight(cfg.KIS.BaseURL, "/"),
		DefaultExchange:        cfg.KIS.DefaultExchange,
		TokenPath:              cfg.KIS.TokenPath,
		PricePath:              cfg.KIS.PricePath,
		TrIDPrice:              cfg.KIS.TrIDPrice,
		ETFETNPricePath:        cfg.KIS.ETFETNPricePath,
		TrIDETFETNPrice:        cfg.KIS.TrIDETFETNPrice,
		OverseasPricePath:      cfg.KIS.OverseasPricePath,
		TrIDOverseasPrice:      cfg.KIS.TrIDOverseasPrice,
		DailyPricePath:         cfg.KIS.DailyPricePath,
		TrIDDailyPrice:         cfg.KIS.TrIDDailyPrice,
		OverseasDailyPricePath: cfg.KIS.OverseasDailyPricePath,
		TrIDOverseasDailyPrice: cfg.KIS.TrIDOverseasDailyPrice,
		RequestsPerSecond:      cfg.KIS.RequestsPerSecond,
	}, kis.WithHTTPClient(httpClient), kis.WithLogger(log))

	fxResolver := fx.New(fx.Config{
		URL: cfg.FX.URL,
		TTL: time.Duration(cfg.FXTTLSeconds()) * time.Second,
	}, httpClient, log)

	gw := gateway.New(gateway.Config{
		Concurrency: cfg.ConcurrencyLimit(),
		QuoteTTL:    time.Duration(cfg.QuoteTTLSeconds()) * time.Second,
	}, broker, fxResolver, log)

	s := &server{gw: gw, log: log}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/quotes", s.handleQuotes)
	mux.HandleFunc("/history", s.handleHistory)
	mux.HandleFunc("/fx", s.handleFx)
	mux.HandleFunc("/search", s.handleSearch)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           withJSONHeaders(withGzip(recoverPanic(mux))),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server")
		}
	}()

	// graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func withJSONHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		// Basic CORS for browser usage; adjust as needed.
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withGzip compresses the response when the client supports gzip.
func withGzip(next http.Handler) http.Handler {
	var gzPool = sync.Pool{New: func() any {
		w, _ := gzip.NewWriterLevel(io.Discard, gzip.BestSpeed)
		return w
	}}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			next.ServeHTTP(w, r)
			return
		}
		gz := gzPool.Get().(*gzip.Writer)
		gz.Reset(w)
		defer func() {
			_ = gz.Close()
			gz.Reset(io.Discard)
			gzPool.Put(gz)
		}()
		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Add("Vary", "Accept-Encoding")
		next.ServeHTTP(gzipResponseWriter{ResponseWriter: w, Writer: gz}, r)
	})
}

type gzipResponseWriter struct {
	http.ResponseWriter
	Writer io.Writer
}

func (g gzipResponseWriter) Write(b []byte) (int, error) {
	return g.Writer.Write(b)
}

// recoverPanic protects handlers from panics.
func recoverPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
