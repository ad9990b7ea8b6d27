package kis_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"quotegateway/internal/kis"
	"quotegateway/internal/symbol"
)

func TestPlaceholder_CurrencyByMarket(t *testing.T) {
	kr := kis.Placeholder(symbol.Classify("005930", "NAS"))
	require.NotNil(t, kr.Currency)
	require.Equal(t, "KRW", *kr.Currency)
	require.Nil(t, kr.Price)
	require.Equal(t, kis.Source, kr.Source)

	us := kis.Placeholder(symbol.Classify("AAPL", "NAS"))
	require.NotNil(t, us.Currency)
	require.Equal(t, "USD", *us.Currency)

	unknown := kis.Placeholder(symbol.Normalized{Raw: "", Market: symbol.MarketUnknown})
	require.Nil(t, unknown.Currency)
}

func TestDomesticQuote_MarketCodeFallback(t *testing.T) {
	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	var codes []string
	httpClient.EXPECT().Do(gomock.Any()).DoAndReturn(func(req *http.Request) (*http.Response, error) {
		code := req.URL.Query().Get("fid_cond_mrkt_div_code")
		codes = append(codes, code)
		if code == "J" {
			return jsonResponse(http.StatusInternalServerError, `{}`), nil
		}
		return jsonResponse(http.StatusOK, `{"output":{"stck_prpr":"70100","prdy_vrss":"-300","prdy_ctrt":"-0.43","hts_kor_isnm":"삼성전자"}}`), nil
	}).Times(2)

	client := kis.New(testConfig(), kis.WithHTTPClient(httpClient))
	q := client.DomesticQuote(context.Background(), "tok", symbol.Classify("005930", "NAS"))

	require.Equal(t, []string{"J", "Q"}, codes)
	require.NotNil(t, q.Price)
	require.Equal(t, 70100.0, *q.Price)
	require.Equal(t, -300.0, *q.Change)
	require.Equal(t, "KRW", *q.Currency)
	require.Equal(t, "삼성전자", *q.Name)
	require.NotNil(t, q.MarketTime)
}

func TestDomesticQuote_KosdaqSuffixTriesQFirst(t *testing.T) {
	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().Do(gomock.Any()).DoAndReturn(func(req *http.Request) (*http.Response, error) {
		require.Equal(t, "Q", req.URL.Query().Get("fid_cond_mrkt_div_code"))
		return jsonResponse(http.StatusOK, `{"output":{"stck_prpr":"12345"}}`), nil
	}).Times(1)

	client := kis.New(testConfig(), kis.WithHTTPClient(httpClient))
	q := client.DomesticQuote(context.Background(), "tok", symbol.Classify("035720.KQ", "NAS"))
	require.Equal(t, 12345.0, *q.Price)
}

func TestDomesticQuote_NonPositivePriceExhausts(t *testing.T) {
	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().Do(gomock.Any()).
		Return(jsonResponse(http.StatusOK, `{"output":{"stck_prpr":"0"}}`), nil).
		Times(2)

	client := kis.New(testConfig(), kis.WithHTTPClient(httpClient))
	q := client.DomesticQuote(context.Background(), "tok", symbol.Classify("005930", "NAS"))
	require.Nil(t, q.Price)
	require.Equal(t, "KRW", *q.Currency)
}

func TestDomesticQuote_ETFETNEndpointAndParamOrder(t *testing.T) {
	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	type attempt struct {
		path string
		trID string
		code string
	}
	var attempts []attempt
	httpClient.EXPECT().Do(gomock.Any()).DoAndReturn(func(req *http.Request) (*http.Response, error) {
		query := req.URL.Query()
		code := query.Get("fid_cond_mrkt_div_code")
		if code == "" {
			code = query.Get("FID_COND_MRKT_DIV_CODE")
		}
		attempts = append(attempts, attempt{path: req.URL.Path, trID: req.Header.Get("tr_id"), code: code})
		if len(attempts) < 4 {
			return jsonResponse(http.StatusNotFound, `{}`), nil
		}
		return jsonResponse(http.StatusOK, `{"output":{"stck_prpr":"9875"}}`), nil
	}).Times(4)

	client := kis.New(testConfig(), kis.WithHTTPClient(httpClient))
	q := client.DomesticQuote(context.Background(), "tok", symbol.Classify("5800K2", "NAS"))

	require.Equal(t, []attempt{
		{path: "/uapi/domestic-etf/v1/quotations/inquire-price", trID: "FHKST02400000", code: "J"},
		{path: "/uapi/domestic-etf/v1/quotations/inquire-price", trID: "FHKST02400000", code: "J"},
		{path: "/uapi/domestic-etf/v1/quotations/inquire-price", trID: "FHKST02400000", code: "Q"},
		{path: "/uapi/domestic-stock/v1/quotations/inquire-price", trID: "FHKST01010100", code: "J"},
	}, attempts)
	require.Equal(t, 9875.0, *q.Price)
	require.Equal(t, "KRW", *q.Currency)
}

func TestOverseasQuote_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().Do(gomock.Any()).DoAndReturn(func(req *http.Request) (*http.Response, error) {
		query := req.URL.Query()
		require.Equal(t, "NAS", query.Get("EXCD"))
		require.Equal(t, "AAPL", query.Get("SYMB"))
		require.Equal(t, "Bearer tok", req.Header.Get("Authorization"))
		require.Equal(t, "HHDFS00000300", req.Header.Get("tr_id"))
		return jsonResponse(http.StatusOK, `{"output":{"last":"189.95","diff":"1.20","rate":"0.64"}}`), nil
	})

	client := kis.New(testConfig(), kis.WithHTTPClient(httpClient))
	q := client.OverseasQuote(context.Background(), "tok", symbol.Classify("AAPL", "NAS"))
	require.Equal(t, 189.95, *q.Price)
	require.Equal(t, "USD", *q.Currency)
	require.Equal(t, kis.Source, q.Source)
}

func TestOverseasQuote_UnauthorizedRetriesOnceWithFreshToken(t *testing.T) {
	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	gomock.InOrder(
		httpClient.EXPECT().Do(gomock.Any()).DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, "Bearer stale", req.Header.Get("Authorization"))
			return jsonResponse(http.StatusUnauthorized, `{}`), nil
		}),
		httpClient.EXPECT().Do(gomock.Any()).DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, "/oauth2/tokenP", req.URL.Path)
			return jsonResponse(http.StatusOK, `{"access_token":"fresh","expires_in":3600}`), nil
		}),
		httpClient.EXPECT().Do(gomock.Any()).DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, "Bearer fresh", req.Header.Get("Authorization"))
			return jsonResponse(http.StatusOK, `{"output":{"last":"412.50"}}`), nil
		}),
	)

	client := kis.New(testConfig(), kis.WithHTTPClient(httpClient))
	q := client.OverseasQuote(context.Background(), "stale", symbol.Classify("MSFT", "NAS"))
	require.Equal(t, 412.50, *q.Price)
}

func TestOverseasQuote_RefreshFailureDegradesToPlaceholder(t *testing.T) {
	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	gomock.InOrder(
		httpClient.EXPECT().Do(gomock.Any()).
			Return(jsonResponse(http.StatusUnauthorized, `{}`), nil),
		httpClient.EXPECT().Do(gomock.Any()).
			Return(jsonResponse(http.StatusForbidden, `{"msg":"denied"}`), nil),
	)

	client := kis.New(testConfig(), kis.WithHTTPClient(httpClient))
	q := client.OverseasQuote(context.Background(), "stale", symbol.Classify("MSFT", "NAS"))
	require.Nil(t, q.Price)
	require.Equal(t, "USD", *q.Currency)
}

func TestOverseasQuote_CurrencyFromPayload(t *testing.T) {
	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().Do(gomock.Any()).
		Return(jsonResponse(http.StatusOK, `{"output":{"last":"55.10","ccy_code":"hkd"}}`), nil)

	client := kis.New(testConfig(), kis.WithHTTPClient(httpClient))
	q := client.OverseasQuote(context.Background(), "tok", symbol.Classify("HKS:0005", "NAS"))
	require.Equal(t, "HKD", *q.Currency)
}
