package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"quotegateway/internal/gateway"
	"quotegateway/internal/market"
	"quotegateway/internal/symbol"
)

const maxSymbols = 1000

// aggregator is the slice of the gateway the handlers need.
type aggregator interface {
	Quotes(ctx context.Context, symbols []string) ([]market.Quote, error)
	History(ctx context.Context, symbols []string, start, end string) (gateway.HistoryResult, error)
	Fx(ctx context.Context) market.FxResult
	Search(ctx context.Context, query string) []market.SearchResult
	Health() gateway.Health
}

type server struct {
	gw  aggregator
	log zerolog.Logger
}

type quotesResponse struct {
	Quotes []market.Quote `json:"quotes"`
}

type fxResponse struct {
	Fx market.FxResult `json:"fx"`
}

type searchResponse struct {
	Results []market.SearchResult `json:"results"`
}

func (s *server) handleQuotes(w http.ResponseWriter, r *http.Request) {
	symbols := splitCSV(r.URL.Query().Get("symbols"))
	if len(symbols) > maxSymbols {
		http.Error(w, "too many symbols (max 1000)", http.StatusBadRequest)
		return
	}
	quotes, err := s.gw.Quotes(r.Context(), symbols)
	if err != nil {
		s.writeGatewayError(w, err)
		return
	}
	writeJSON(w, quotesResponse{Quotes: quotes})
}

func (s *server) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	symbols := splitCSV(q.Get("symbols"))
	if len(symbols) > maxSymbols {
		http.Error(w, "too many symbols (max 1000)", http.StatusBadRequest)
		return
	}
	result, err := s.gw.History(r.Context(), symbols, q.Get("start"), q.Get("end"))
	if err != nil {
		s.writeGatewayError(w, err)
		return
	}
	writeJSON(w, result)
}

func (s *server) handleFx(w http.ResponseWriter, r *http.Request) {
	pair := r.URL.Query().Get("pair")
	if pair == "" {
		pair = symbol.FXPairUSDKRW
	}
	if strings.ToUpper(strings.TrimSpace(pair)) != symbol.FXPairUSDKRW {
		http.Error(w, "unsupported pair", http.StatusBadRequest)
		return
	}
	writeJSON(w, fxResponse{Fx: s.gw.Fx(r.Context())})
}

func (s *server) handleSearch(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, searchResponse{Results: s.gw.Search(r.Context(), r.URL.Query().Get("q"))})
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.gw.Health())
}

func (s *server) writeGatewayError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, gateway.ErrInvalidRange):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, gateway.ErrNotConfigured), errors.Is(err, gateway.ErrTokenUnavailable):
		http.Error(w, err.Error(), http.StatusInternalServerError)
	default:
		s.log.Error().Err(err).Msg("aggregate request failed")
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.WriteHeader(http.StatusOK)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
