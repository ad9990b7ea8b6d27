package fx

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type stubHTTPClient struct {
	fn func(*http.Request) (*http.Response, error)
}

func (s *stubHTTPClient) Do(req *http.Request) (*http.Response, error) { return s.fn(req) }

func htmlResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{},
	}
}

const ratePage = `<div class="rate"><strong>매매기준율</strong>
<span>1,384.50</span> KRW</div>
<div class="diff">전일대비 <em>5.50</em>원 상승 <em>+0.40</em>%</div>`

func TestParseRatePage(t *testing.T) {
	page := parseRatePage(ratePage)
	require.NotNil(t, page.rate)
	require.Equal(t, 1384.50, *page.rate)
	require.NotNil(t, page.change)
	require.Equal(t, 5.50, *page.change)
	require.NotNil(t, page.changePercent)
	require.Equal(t, 0.40, *page.changePercent)
}

func TestParseRatePage_BandBeatsAnchorlessNumbers(t *testing.T) {
	page := parseRatePage(`<p>visits 123 today, updated 37 times, rate 1,380.25</p>`)
	require.NotNil(t, page.rate)
	require.Equal(t, 1380.25, *page.rate)
}

func TestParseRatePage_TieBrokenByLargerValue(t *testing.T) {
	// both in band, no anchors: same score, larger value wins
	page := parseRatePage(`<p>700 900</p>`)
	require.Equal(t, 900.0, *page.rate)
}

func TestParseRatePage_NoNumericTokens(t *testing.T) {
	page := parseRatePage(`<p>환율 정보를 불러올 수 없습니다</p>`)
	require.Nil(t, page.rate)
	require.Zero(t, page.candidateCount)
}

func TestRate_SuccessAndCache(t *testing.T) {
	calls := 0
	client := &stubHTTPClient{fn: func(req *http.Request) (*http.Response, error) {
		calls++
		require.NotEmpty(t, req.Header.Get("User-Agent"))
		return htmlResponse(http.StatusOK, ratePage), nil
	}}
	r := New(Config{URL: "https://fx.example.test", TTL: time.Minute}, client, zerolog.Nop())

	first := r.Rate(context.Background())
	require.Equal(t, "USD/KRW", first.Pair)
	require.NotNil(t, first.Rate)
	require.Equal(t, 1384.50, *first.Rate)
	require.Equal(t, "naver", first.Source)
	require.Empty(t, first.Error)
	require.NotNil(t, first.TS)

	second := r.Rate(context.Background())
	require.Equal(t, first, second)
	require.Equal(t, 1, calls)
}

func TestRate_FailureWithoutPriorSuccess(t *testing.T) {
	client := &stubHTTPClient{fn: func(*http.Request) (*http.Response, error) {
		return nil, errors.New("dial tcp: connection refused")
	}}
	r := New(Config{URL: "https://fx.example.test"}, client, zerolog.Nop())

	res := r.Rate(context.Background())
	require.Nil(t, res.Rate)
	require.Equal(t, "FX request failed", res.Error)
}

func TestRate_HTTPErrorAnnotatesStatus(t *testing.T) {
	client := &stubHTTPClient{fn: func(*http.Request) (*http.Response, error) {
		return htmlResponse(http.StatusServiceUnavailable, ""), nil
	}}
	r := New(Config{URL: "https://fx.example.test"}, client, zerolog.Nop())

	res := r.Rate(context.Background())
	require.Nil(t, res.Rate)
	require.Equal(t, "FX http 503", res.Error)
}

func TestRate_OutOfBandFallsBack(t *testing.T) {
	client := &stubHTTPClient{fn: func(*http.Request) (*http.Response, error) {
		return htmlResponse(http.StatusOK, `<p>42</p>`), nil
	}}
	r := New(Config{URL: "https://fx.example.test"}, client, zerolog.Nop())

	res := r.Rate(context.Background())
	require.Nil(t, res.Rate)
	require.Equal(t, "FX rate missing", res.Error)
}

func TestRate_LastKnownGoodSurvivesFailure(t *testing.T) {
	fail := false
	client := &stubHTTPClient{fn: func(*http.Request) (*http.Response, error) {
		if fail {
			return nil, errors.New("timeout")
		}
		return htmlResponse(http.StatusOK, ratePage), nil
	}}
	r := New(Config{URL: "https://fx.example.test", TTL: time.Millisecond}, client, zerolog.Nop())

	first := r.Rate(context.Background())
	require.NotNil(t, first.Rate)

	fail = true
	time.Sleep(5 * time.Millisecond)
	stale := r.Rate(context.Background())
	require.NotNil(t, stale.Rate)
	require.Equal(t, *first.Rate, *stale.Rate)
	require.Equal(t, "FX request failed", stale.Error)
}
